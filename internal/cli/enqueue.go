package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markdave123-py/talktrack/internal/app"
	"github.com/markdave123-py/talktrack/internal/core"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <file-id>",
	Short: "Queue an ingestion job for an existing file",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	q, err := app.OpenQueue(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	if q == nil {
		return core.ErrQueueDisabled
	}
	defer q.Close()

	job, err := q.Enqueue(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", args[0], err)
	}
	cmd.Printf("Queued job %s for file %s\n", job.ID, job.FileID)
	return nil
}
