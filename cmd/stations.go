package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/riskmap/internal/grid"
	"github.com/sells-group/riskmap/internal/stations"
)

var stationsCmd = &cobra.Command{
	Use:   "stations",
	Short: "Manage police station reference data",
}

var stationsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import police stations from a shapefile or GeoJSON file",
	Long: `Replaces the persisted station set with the contents of the given file.
The format is chosen by extension: .shp loads an Esri shapefile, .geojson or
.json loads a GeoJSON FeatureCollection of points. Stations outside the
configured region are dropped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var (
			sts []stations.Station
			err error
		)
		switch ext := strings.ToLower(filepath.Ext(args[0])); ext {
		case ".shp":
			sts, err = stations.ParseShapefile(args[0])
		case ".geojson", ".json":
			sts, err = stations.ParseGeoJSON(args[0])
		default:
			return eris.Errorf("stations: unsupported file extension %q", ext)
		}
		if err != nil {
			return err
		}

		region := grid.Region{
			MinLat: cfg.Region.MinLat,
			MaxLat: cfg.Region.MaxLat,
			MinLon: cfg.Region.MinLon,
			MaxLon: cfg.Region.MaxLon,
		}
		inRegion := stations.FilterRegion(sts, region)

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.ReplaceStations(ctx, inRegion); err != nil {
			return eris.Wrap(err, "stations: replace")
		}

		zap.L().Info("stations imported",
			zap.Int("parsed", len(sts)),
			zap.Int("in_region", len(inRegion)),
		)
		fmt.Printf("Imported %d stations (%d outside region dropped)\n",
			len(inRegion), len(sts)-len(inRegion))
		return nil
	},
}

var stationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted police stations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sts, err := st.StationsWithin(ctx,
			cfg.Region.MinLat, cfg.Region.MinLon, cfg.Region.MaxLat, cfg.Region.MaxLon)
		if err != nil {
			return err
		}
		if len(sts) == 0 {
			fmt.Println("No stations. Run 'riskmap stations import <file>' first.")
			return nil
		}

		fmt.Printf("%-30s %10s %10s  %s\n", "Name", "Lat", "Lon", "Address")
		fmt.Println(strings.Repeat("-", 80))
		for _, s := range sts {
			name := s.Name
			if len(name) > 30 {
				name = name[:27] + "..."
			}
			fmt.Printf("%-30s %10.5f %10.5f  %s\n", name, s.Lat, s.Lon, s.Address)
		}
		return nil
	},
}

func init() {
	stationsCmd.AddCommand(stationsImportCmd, stationsListCmd)
	rootCmd.AddCommand(stationsCmd)
}
