package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/riskmap/internal/grid"
	"github.com/sells-group/riskmap/internal/store"
)

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Manage the spatial grid definition",
}

var gridInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Tessellate the configured region and persist the grid",
	Long: `Divides the configured region into fixed square cells and persists the
definition. Re-running replaces the grid; feature vectors keyed by cells that
no longer exist are ignored on load.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		region := grid.Region{
			MinLat: cfg.Region.MinLat,
			MaxLat: cfg.Region.MaxLat,
			MinLon: cfg.Region.MinLon,
			MaxLon: cfg.Region.MaxLon,
		}
		idx, err := grid.New(region, cfg.Grid.CellSizeMiles)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.SaveGrid(ctx, region, cfg.Grid.CellSizeMiles, idx.Cells()); err != nil {
			return eris.Wrap(err, "grid init: save")
		}

		zap.L().Info("grid initialized",
			zap.Float64("cell_size_miles", cfg.Grid.CellSizeMiles),
			zap.Int("cells", idx.Len()),
		)
		fmt.Printf("Grid initialized: %d cells of %.2f mi over (%.4f,%.4f)-(%.4f,%.4f)\n",
			idx.Len(), cfg.Grid.CellSizeMiles,
			region.MinLat, region.MinLon, region.MaxLat, region.MaxLon)
		return nil
	},
}

var gridStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted grid definition and feature coverage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		region, cellSize, err := st.LoadGrid(ctx)
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				fmt.Println("Grid not initialized. Run 'riskmap grid init' first.")
				return nil
			}
			return err
		}
		idx, err := grid.New(region, cellSize)
		if err != nil {
			return err
		}
		vectors, err := st.LoadFeatures(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Region:     (%.4f,%.4f) - (%.4f,%.4f)\n",
			region.MinLat, region.MinLon, region.MaxLat, region.MaxLon)
		fmt.Printf("Cell size:  %.2f mi\n", cellSize)
		fmt.Printf("Cells:      %d\n", idx.Len())
		fmt.Printf("Enriched:   %d (%.1f%%)\n",
			len(vectors), float64(len(vectors))/float64(idx.Len())*100)
		return nil
	},
}

var gridExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the grid as a GeoJSON FeatureCollection",
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
		out, err := idx.GeoJSON()
		if err != nil {
			return err
		}

		path, _ := cmd.Flags().GetString("output")
		if path == "" {
			_, err := os.Stdout.Write(out)
			return err
		}
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return eris.Wrapf(err, "grid export: write %s", path)
		}
		fmt.Printf("Wrote %d cells to %s\n", idx.Len(), path)
		return nil
	},
}

func init() {
	gridExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	gridCmd.AddCommand(gridInitCmd, gridStatusCmd, gridExportCmd)
	rootCmd.AddCommand(gridCmd)
}
