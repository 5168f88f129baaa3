package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/mapchat/internal/db"
	"github.com/sells-group/mapchat/internal/parcel"
)

var (
	plutoBatchSize   int
	plutoConcurrency int
)

var plutoloadCmd = &cobra.Command{
	Use:   "plutoload <shapefile>",
	Short: "Load a MapPLUTO shapefile into PostGIS",
	Long: `Reads a MapPLUTO shapefile (geometry plus DBF attributes), reprojects
nothing (the source must already be WGS84), and upserts lots into gis.mappluto
keyed by BBL. Safe to re-run on a newer release of the same dataset.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := db.Migrate(ctx, pool); err != nil {
			return err
		}

		opts := parcel.LoadOptions{
			BatchSize:   plutoBatchSize,
			Concurrency: plutoConcurrency,
		}
		if opts.BatchSize == 0 {
			opts.BatchSize = cfg.Pluto.BatchSize
		}
		if opts.Concurrency == 0 {
			opts.Concurrency = cfg.Pluto.Concurrency
		}

		total, err := parcel.Load(ctx, pool, args[0], opts)
		if err != nil {
			return err
		}
		zap.L().Info("mappluto load complete", zap.Int64("lots", total))
		return nil
	},
}

func init() {
	plutoloadCmd.Flags().IntVar(&plutoBatchSize, "batch-size", 0, "rows per upsert batch (default from config)")
	plutoloadCmd.Flags().IntVar(&plutoConcurrency, "concurrency", 0, "concurrent batch writers (default from config)")
	rootCmd.AddCommand(plutoloadCmd)
}
