package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/talktrack/internal/app"
)

var withWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Runs the upload and status API. With --with-worker the ingestion
worker runs in the same process.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&withWorker, "with-worker", false, "also consume ingestion jobs")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
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

	g, gctx := errgroup.WithContext(ctx)
	g.Go(application.Server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 15*time.Second)
		defer cancel()
		return application.Server.Shutdown(shutdownCtx)
	})
	if withWorker {
		g.Go(func() error {
			return application.Worker.Run(gctx)
		})
	}

	err = g.Wait()
	log.Info("talktrack stopped")
	return err
}
