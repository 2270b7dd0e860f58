package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/riskmap/internal/enrich"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Fetch environmental features from OpenStreetMap",
	Long: `Queries the Overpass API once per point-of-interest category over the whole
region, assigns counts to grid cells locally, computes nearest-subway
distances, and persists the resulting feature vectors.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		idx, err := loadIndex(ctx, st)
		if err != nil {
			return err
		}
		features, err := loadFeatureStore(ctx, st, idx)
		if err != nil {
			return err
		}

		var minInterval time.Duration
		if cfg.Enrich.RatePerSecond > 0 {
			minInterval = time.Duration(float64(time.Second) / cfg.Enrich.RatePerSecond)
		}
		timeout := time.Duration(cfg.Enrich.TimeoutSecs) * time.Second
		client := enrich.NewClient(cfg.Enrich.OverpassURL, minInterval, timeout)
		enricher := enrich.NewEnricher(client, idx, features, cfg.Enrich.Workers,
			enrich.WithSubwayPad(cfg.Enrich.SubwayPadMiles))

		start := time.Now()
		summary, err := enricher.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "enrich: run")
		}

		written, err := st.BulkUpsertFeatures(ctx, enrich.VectorsByCell(idx, features.Snapshot()))
		if err != nil {
			return eris.Wrap(err, "enrich: persist")
		}

		zap.L().Info("enrichment persisted",
			zap.Int64("rows", written),
			zap.Duration("elapsed", time.Since(start)),
		)
		fmt.Printf("Enriched %d cells in %s\n", summary.CellsUpdated, time.Since(start).Round(time.Second))
		for name, count := range summary.POICounts {
			fmt.Printf("  %-28s %d\n", name, count)
		}
		fmt.Printf("  %-28s %d\n", "subway_stations", summary.SubwayCount)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enrichCmd)
}
