// ABOUTME: CLI command for scoring one observed value against population baselines.
// ABOUTME: Prints the classification, z-score, percentile bucket and confidence.
package main

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperreed/healthlake/internal/anomaly"
	"github.com/harperreed/healthlake/internal/models"
)

var (
	scoreStratum string
	scorePattern string
	scoreJSON    bool
)

var scoreCmd = &cobra.Command{
	Use:   "score <signal> <value>",
	Short: "Score a value against population baselines",
	Long: `Score one observed value against the learned population baselines.

SIGNALS:

  glucose (mg/dL), heart_rate (bpm), hrv (ms)

The stratum-specific baseline is tried first, then the signal's global
baseline. Hard physiological bounds classify a value as severe even when no
baseline exists.

EXAMPLES:

  healthlake score glucose 182 --stratum 8               # 08:00 reading
  healthlake score heart_rate 95 -s exercise_day -p scenario
  healthlake score hrv 12 --json`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, ok := models.LookupSignal(args[0]); !ok {
			return fmt.Errorf("unknown signal: %s (use glucose, heart_rate, or hrv)", args[0])
		}
		value, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid value: %s", args[1])
		}

		score, err := svc.Score(cmd.Context(), anomaly.Request{
			Signal:  args[0],
			Value:   value,
			Stratum: scoreStratum,
			Pattern: models.PatternType(scorePattern),
		})
		if err != nil {
			return fmt.Errorf("failed to score value: %w", err)
		}

		w := cmd.OutOrStdout()
		if scoreJSON {
			return writeJSON(w, score)
		}

		class := color.GreenString(score.Classification)
		if score.IsAnomaly {
			class = color.RedString(score.Classification)
		}
		faint := color.New(color.Faint)
		fmt.Fprintf(w, "%s %.1f  %s\n", score.Signal, score.Value, class)
		fmt.Fprintf(w, "  z=%.2f bucket=%s confidence=%.2f\n", score.Z, score.Bucket, score.Confidence)
		fmt.Fprintln(w, faint.Sprintf("  matched %s baseline, %d samples", score.MatchedBy, score.SampleCount))
		return nil
	},
}

func init() {
	scoreCmd.Flags().StringVarP(&scoreStratum, "stratum", "s", "", "stratum key: hour of day 0-23, or a scenario")
	scoreCmd.Flags().StringVarP(&scorePattern, "pattern", "p", "", "stratification pattern: hourly (default) or scenario")
	scoreCmd.Flags().BoolVar(&scoreJSON, "json", false, "print the score as JSON")
	rootCmd.AddCommand(scoreCmd)
}
