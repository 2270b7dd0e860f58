package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/riskmap/internal/store"
	"github.com/sells-group/riskmap/internal/weights"
)

var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Inspect and validate weight configurations",
}

var weightsValidateCmd = &cobra.Command{
	Use:   "validate <file.yaml>",
	Short: "Validate a weight configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := weights.LoadFile(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s is valid (version %s)\n", args[0], cfg.Version)
		return nil
	},
}

var weightsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active configuration and version history",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		active, err := loadWeights(ctx, st)
		if err != nil {
			return err
		}
		fmt.Printf("Active version: %s\n", active.Version)
		printCoefficients(active)

		history, err := st.ListWeightVersions(ctx)
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}
		if len(history) > 0 {
			fmt.Println("\nHistory:")
			for _, rec := range history {
				fmt.Printf("  %-36s %s\n", rec.Version, rec.CreatedAt.Format("2006-01-02 15:04:05"))
			}
		}
		return nil
	},
}

func init() {
	weightsCmd.AddCommand(weightsValidateCmd, weightsShowCmd)
	rootCmd.AddCommand(weightsCmd)
}
