package cli

import (
	"github.com/spf13/cobra"

	"github.com/markdave123-py/talktrack/internal/app"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume ingestion jobs",
	Long: `Runs the ingestion worker until interrupted. Without a configured
broker the worker logs that ingestion is disabled and exits.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	application, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer application.Close()

	return application.Worker.Run(ctx)
}
