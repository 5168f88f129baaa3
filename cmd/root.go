package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/mapchat/internal/chat"
	"github.com/sells-group/mapchat/internal/config"
	"github.com/sells-group/mapchat/internal/db"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "mapchat",
	Short: "Geospatial chat backend for NYC map conversations",
	Long:  "Serves area-scoped spatial queries over MapPLUTO, NYC Open Data lookups, and the chat-driven map layer pipeline.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// openPool connects to Postgres using the configured database URL.
func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("store.database_url is not configured")
	}
	return db.Connect(ctx, cfg.Store.DatabaseURL)
}

// openStore opens the configured chat store driver. The returned pool is nil
// for the sqlite driver, where no spatial backend is available.
func openStore(ctx context.Context) (chat.Store, *pgxpool.Pool, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		store, err := chat.NewSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case "postgres", "":
		pool, err := openPool(ctx)
		if err != nil {
			return nil, nil, err
		}
		return chat.NewPostgres(pool), pool, nil
	default:
		return nil, nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
