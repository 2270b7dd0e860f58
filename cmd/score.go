package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/riskmap/internal/risk"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a point or radius from the command line",
	Long: `Runs a one-off risk query against the persisted grid and features without
starting the HTTP server.

Examples:
  # Nearest cell to a point, one hour from now
  score --lat 42.6526 --lon -73.7562

  # All cells within two miles at 11pm
  score --lat 42.6526 --lon -73.7562 --radius 2 --hour 23

  # Per-feature attribution for the nearest cell
  score --lat 42.6526 --lon -73.7562 --explain

  # Export to CSV
  score --lat 42.6526 --lon -73.7562 --radius 5 --format csv --output zones.csv`,
	RunE: runScore,
}

func init() {
	f := scoreCmd.Flags()
	f.Float64("lat", 0, "query latitude")
	f.Float64("lon", 0, "query longitude")
	f.Float64("radius", 0, "radius in miles (0 = nearest cell only)")
	f.String("time", "", "prediction time, RFC 3339 (default: one hour from now)")
	f.Int("hour", -1, "prediction hour 0-23, today UTC (alternative to --time)")
	f.Bool("explain", false, "print per-feature attribution for the nearest cell")
	f.String("format", "table", "output format: table or csv")
	f.String("output", "", "output file path (default: stdout)")

	_ = scoreCmd.MarkFlagRequired("lat")
	_ = scoreCmd.MarkFlagRequired("lon")

	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lat, _ := cmd.Flags().GetFloat64("lat")
	lon, _ := cmd.Flags().GetFloat64("lon")
	radius, _ := cmd.Flags().GetFloat64("radius")
	explain, _ := cmd.Flags().GetBool("explain")
	format, _ := cmd.Flags().GetString("format")
	outputPath, _ := cmd.Flags().GetString("output")

	if format != "table" && format != "csv" {
		return eris.Errorf("score: --format must be table or csv (got %q)", format)
	}

	at, err := resolveFlagTime(cmd)
	if err != nil {
		return err
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	engine, _, err := buildEngine(ctx, st, nil)
	if err != nil {
		return err
	}

	if explain {
		zone, err := engine.QueryNearest(lat, lon, at)
		if err != nil {
			return err
		}
		attr, err := engine.QueryAttribution(zone.CellID, at)
		if err != nil {
			return err
		}
		printAttribution(zone, attr)
		return nil
	}

	var zones []risk.ZoneScore
	if radius > 0 {
		zones, err = engine.QueryZones(lat, lon, radius, at)
	} else {
		var zone risk.ZoneScore
		zone, err = engine.QueryNearest(lat, lon, at)
		zones = []risk.ZoneScore{zone}
	}
	if err != nil {
		return err
	}

	return outputZones(zones, format, outputPath)
}

// resolveFlagTime maps --time / --hour to a prediction time. Zero means the
// engine default, one hour from now.
func resolveFlagTime(cmd *cobra.Command) (time.Time, error) {
	if raw, _ := cmd.Flags().GetString("time"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, eris.Wrapf(err, "score: --time must be RFC 3339 (got %q)", raw)
		}
		return at, nil
	}
	if hour, _ := cmd.Flags().GetInt("hour"); hour >= 0 {
		if hour > 23 {
			return time.Time{}, eris.Errorf("score: --hour must be 0-23 (got %d)", hour)
		}
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, nil
}

func printAttribution(zone risk.ZoneScore, attr risk.AttributionResult) {
	fmt.Printf("Cell:       %s\n", attr.CellID)
	fmt.Printf("Risk level: %s (%.1f / 100)\n", attr.Tier, zone.NormalizedScore)
	fmt.Printf("Time:       %s\n", attr.PredictionTime.Format(time.RFC3339))
	fmt.Printf("\n%s\n", attr.Explanation)

	fmt.Printf("\n%-28s %10s %8s %13s\n", "Feature", "Value", "Weight", "Contribution")
	fmt.Println(strings.Repeat("-", 62))
	for _, c := range attr.PerFeature {
		marker := ""
		if c.Unweighted {
			marker = " (unweighted)"
		}
		fmt.Printf("%-28s %10.2f %8.3f %13.4f%s\n",
			c.Feature, c.Value, c.Weight, c.Contribution, marker)
	}
	fmt.Println(strings.Repeat("-", 62))
	fmt.Printf("%-28s %32.4f\n", "Adjusted score", attr.AdjustedScore)
}

func outputZones(zones []risk.ZoneScore, format, outputPath string) error {
	w := os.Stdout
	if outputPath != "" {
		var err error
		w, err = os.Create(outputPath)
		if err != nil {
			return eris.Wrapf(err, "score: create output file %s", outputPath)
		}
		defer w.Close() //nolint:errcheck
	}

	switch format {
	case "csv":
		return writeZoneCSV(w, zones)
	default:
		return writeZoneTable(w, zones)
	}
}

func writeZoneCSV(w *os.File, zones []risk.ZoneScore) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"cell_id", "center_lat", "center_lon", "risk_score", "risk_level", "confidence", "distance_miles"}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "score: write CSV header")
	}
	for _, z := range zones {
		row := []string{
			z.CellID,
			fmt.Sprintf("%.6f", z.CenterLat),
			fmt.Sprintf("%.6f", z.CenterLon),
			fmt.Sprintf("%.2f", z.NormalizedScore),
			string(z.Tier),
			fmt.Sprintf("%.2f", z.Confidence),
			fmt.Sprintf("%.2f", z.DistanceMiles),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "score: write CSV row")
		}
	}
	return nil
}

func writeZoneTable(w *os.File, zones []risk.ZoneScore) error {
	if len(zones) == 0 {
		_, err := fmt.Fprintln(w, "No cells in range.")
		return err
	}
	if _, err := fmt.Fprintf(w, "%-16s %10s %10s %7s %-7s %5s %6s\n",
		"Cell", "Lat", "Lon", "Score", "Level", "Conf", "Dist"); err != nil {
		return eris.Wrap(err, "score: write table header")
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("-", 68)); err != nil {
		return eris.Wrap(err, "score: write table separator")
	}
	for _, z := range zones {
		if _, err := fmt.Fprintf(w, "%-16s %10.5f %10.5f %7.1f %-7s %5.2f %6.2f\n",
			z.CellID, z.CenterLat, z.CenterLon, z.NormalizedScore, z.Tier, z.Confidence, z.DistanceMiles); err != nil {
			return eris.Wrap(err, "score: write table row")
		}
	}
	return nil
}
