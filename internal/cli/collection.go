package cli

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	db "github.com/markdave123-py/talktrack/internal/core/database"
	"github.com/markdave123-py/talktrack/internal/core/vectorindex"
)

var ensureCollectionCmd = &cobra.Command{
	Use:   "ensure-collection",
	Short: "Create the vector collection and its fileId index if missing",
	RunE:  runEnsureCollection,
}

func init() {
	rootCmd.AddCommand(ensureCollectionCmd)
}

func runEnsureCollection(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var sqlDB *sql.DB
	if cfg.VectorBackend == "pgvector" {
		sqlDB, err = db.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer sqlDB.Close()
	}

	index, err := vectorindex.New(cfg, sqlDB)
	if err != nil {
		return err
	}
	defer index.Close()

	if err := index.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure collection %s: %w", cfg.CollectionName, err)
	}
	cmd.Printf("Collection %s ready (%s, %d dims)\n", cfg.CollectionName, cfg.VectorBackend, cfg.EmbedDim)
	return nil
}
