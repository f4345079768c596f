// ABOUTME: CLI commands for training population baselines and behavior correlations.
// ABOUTME: Training is on-demand; results are written to the analytical store.
package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperreed/healthlake/internal/baseline"
	"github.com/harperreed/healthlake/internal/models"
)

var (
	trainJSON       bool
	trainRegenerate bool
	trainSubjects   int
	trainDays       int
	trainSeed       uint64
	trainSignals    []string
	trainUser       string
	trainAll        bool
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train baselines or correlations",
	Long: `Train the learned insight state.

MODELS:

  baselines      Population reference distributions for glucose, heart_rate
                 and hrv, stratified by hour of day and scenario
  correlations   Per-user links between prior-day behaviors and next-day
                 survey outcomes

EXAMPLES:

  healthlake train baselines                    # Train from the existing corpus
  healthlake train baselines --regenerate       # Replace the corpus first
  healthlake train baselines --signal glucose   # Train one signal
  healthlake train correlations --user u1       # One user
  healthlake train correlations --all           # Every user with surveys`,
}

var trainBaselinesCmd = &cobra.Command{
	Use:   "baselines",
	Short: "Retrain population baselines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, s := range trainSignals {
			if _, ok := models.LookupSignal(s); !ok {
				return fmt.Errorf("unknown signal: %s", s)
			}
		}

		res, job := svc.TrainBaselines(cmd.Context(), baseline.TrainOptions{
			Regenerate: trainRegenerate,
			Subjects:   trainSubjects,
			Days:       trainDays,
			Seed:       trainSeed,
			Signals:    trainSignals,
		})
		w := cmd.OutOrStdout()
		if err := finish(w, trainJSON, job); err != nil || trainJSON {
			return err
		}
		if res.Generated > 0 {
			fmt.Fprintf(w, "  generated %d synthetic readings\n", res.Generated)
		}
		fmt.Fprintf(w, "  model %s, %d baselines\n", color.CyanString(res.ModelVersion), len(res.Baselines))
		return nil
	},
}

var trainCorrelationsCmd = &cobra.Command{
	Use:   "correlations",
	Short: "Retrain behavior-outcome correlations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if trainAll == (trainUser != "") {
			return errors.New("specify exactly one of --user or --all")
		}

		var (
			corrs []*models.Correlation
			job   models.JobResult
		)
		if trainAll {
			corrs, job = svc.TrainAllCorrelations(cmd.Context())
		} else {
			corrs, job = svc.TrainCorrelations(cmd.Context(), trainUser)
		}
		w := cmd.OutOrStdout()
		if err := finish(w, trainJSON, job); err != nil || trainJSON {
			return err
		}
		significant := 0
		for _, c := range corrs {
			if c.Significant {
				significant++
			}
		}
		fmt.Fprintf(w, "  %d pairs evaluated, %d significant\n", len(corrs), significant)
		return nil
	},
}

func init() {
	trainCmd.PersistentFlags().BoolVar(&trainJSON, "json", false, "print results as JSON")

	trainBaselinesCmd.Flags().BoolVar(&trainRegenerate, "regenerate", false, "replace the training corpus with fresh synthetic data")
	trainBaselinesCmd.Flags().IntVar(&trainSubjects, "subjects", 0, "synthetic subjects to generate (default 20)")
	trainBaselinesCmd.Flags().IntVar(&trainDays, "days", 0, "synthetic days per subject (default 7)")
	trainBaselinesCmd.Flags().Uint64Var(&trainSeed, "seed", 0, "generator seed")
	trainBaselinesCmd.Flags().StringSliceVar(&trainSignals, "signal", nil, "train only these signals (repeatable)")

	trainCorrelationsCmd.Flags().StringVarP(&trainUser, "user", "u", "", "user to train")
	trainCorrelationsCmd.Flags().BoolVar(&trainAll, "all", false, "train every user with survey data")

	trainCmd.AddCommand(trainBaselinesCmd)
	trainCmd.AddCommand(trainCorrelationsCmd)
	rootCmd.AddCommand(trainCmd)
}
