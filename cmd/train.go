package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/riskmap/internal/trainer"
	"github.com/sells-group/riskmap/internal/weights"
)

var trainCmd = &cobra.Command{
	Use:   "train <incidents.csv>",
	Short: "Fit weight coefficients from historical incident records",
	Long: `Fits a logistic model over per-cell feature vectors against historical
incident locations and produces a new weight configuration. Hour multipliers
are carried over from the active configuration; only coefficients are fitted.

The fitted configuration is written to a YAML file for review. Pass --save to
also append it to the version history, where it becomes the latest.

Examples:
  # Fit and review
  train incidents.csv --output trained.yaml

  # Fit and persist as the active version
  train incidents.csv --save`,
	Args: cobra.ExactArgs(1),
	RunE: runTrain,
}

func init() {
	f := trainCmd.Flags()
	f.String("output", "trained.yaml", "output YAML file for the fitted configuration")
	f.Bool("save", false, "persist the fitted configuration to the weight history")

	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := zap.L().With(zap.String("command", "train"))

	file, err := os.Open(args[0])
	if err != nil {
		return eris.Wrapf(err, "train: open %s", args[0])
	}
	defer file.Close() //nolint:errcheck

	examples, err := trainer.LoadCSV(file)
	if err != nil {
		return err
	}
	log.Info("incident records loaded", zap.Int("count", len(examples)))

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	idx, err := loadIndex(ctx, st)
	if err != nil {
		return err
	}
	vectors, err := st.LoadFeatures(ctx)
	if err != nil {
		return err
	}
	if len(vectors) == 0 {
		return eris.New("train: no feature vectors persisted, run 'riskmap enrich' first")
	}
	active, err := loadWeights(ctx, st)
	if err != nil {
		return err
	}

	fitter := trainer.NewLogisticFitter()
	if cfg.Trainer.Iterations > 0 {
		fitter.Iterations = cfg.Trainer.Iterations
	}
	if cfg.Trainer.LearningRate > 0 {
		fitter.LearningRate = cfg.Trainer.LearningRate
	}
	if cfg.Trainer.L2Penalty >= 0 {
		fitter.L2 = cfg.Trainer.L2Penalty
	}

	fitted, err := trainer.New(fitter).Train(idx, vectors, examples, active)
	if err != nil {
		return err
	}

	outputPath, _ := cmd.Flags().GetString("output")
	if err := weights.WriteFile(outputPath, fitted); err != nil {
		return err
	}
	fmt.Printf("Fitted configuration %s written to %s\n", fitted.Version, outputPath)
	printCoefficients(fitted)

	if save, _ := cmd.Flags().GetBool("save"); save {
		if err := st.SaveWeights(ctx, fitted); err != nil {
			return eris.Wrap(err, "train: save")
		}
		fmt.Printf("Saved %s as the latest version\n", fitted.Version)
	}
	return nil
}

func printCoefficients(cfg *weights.Config) {
	names := make([]string, 0, len(cfg.Coefficients))
	for name := range cfg.Coefficients {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("\nCoefficients:")
	for _, name := range names {
		fmt.Printf("  %-28s %+.6f\n", name, cfg.Coefficients[name])
	}
}
