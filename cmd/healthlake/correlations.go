// ABOUTME: CLI command for listing learned behavior-outcome correlations.
// ABOUTME: Supports filtering by user, significance, actionability and sample size.
package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperreed/healthlake/internal/models"
	"github.com/harperreed/healthlake/internal/storage"
)

var (
	corrUser        string
	corrSignificant bool
	corrActionable  bool
	corrMinSamples  int
	corrLimit       int
	corrJSON        bool
)

var correlationsCmd = &cobra.Command{
	Use:     "correlations",
	Aliases: []string{"corr"},
	Short:   "List behavior-outcome correlations",
	Long: `List learned correlations between prior-day behaviors and next-day outcomes.

OUTPUT FORMAT:

  Each line shows: USER  BEHAVIOR -> OUTCOME  DIRECTION  EFFECT  N  FLAGS

  Results are ranked by effect size. Significant findings differ by more
  than the configured share of their average; actionable findings are
  significant with at least 14 joined days.

EXAMPLES:

  healthlake correlations                    # Top 20 across users
  healthlake correlations --user u1 -n 50
  healthlake correlations --significant --min-samples 10`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		corrs, err := svc.Correlations(cmd.Context(), storage.CorrelationFilter{
			UserID:          corrUser,
			SignificantOnly: corrSignificant,
			ActionableOnly:  corrActionable,
			MinSampleSize:   corrMinSamples,
			Limit:           corrLimit,
		})
		if err != nil {
			return fmt.Errorf("failed to list correlations: %w", err)
		}

		w := cmd.OutOrStdout()
		if corrJSON {
			return writeJSON(w, corrs)
		}
		if len(corrs) == 0 {
			fmt.Fprintln(w, "No correlations found.")
			return nil
		}

		faint := color.New(color.Faint)
		for _, c := range corrs {
			flags := ""
			if c.Significant {
				flags += color.GreenString(" significant")
			}
			if c.Actionable {
				flags += color.CyanString(" actionable")
			}
			fmt.Fprintf(w, "%s %s %s %6.1f%% n=%d%s\n",
				faint.Sprint(padRight(c.UserID, 10)),
				padRight(truncate(c.BehaviorKey+" -> "+c.OutcomeDimension, 36), 36),
				padRight(direction(c), 6),
				c.EffectSizePct,
				c.SampleSize,
				flags)
		}
		return nil
	},
}

func direction(c *models.Correlation) string {
	if c.Direction == models.DirectionHigherIsBetter {
		return "more"
	}
	return "less"
}

func init() {
	correlationsCmd.Flags().StringVarP(&corrUser, "user", "u", "", "filter by user")
	correlationsCmd.Flags().BoolVar(&corrSignificant, "significant", false, "only significant findings")
	correlationsCmd.Flags().BoolVar(&corrActionable, "actionable", false, "only actionable findings")
	correlationsCmd.Flags().IntVar(&corrMinSamples, "min-samples", 0, "minimum joined days")
	correlationsCmd.Flags().IntVarP(&corrLimit, "limit", "n", 20, "max number of results")
	correlationsCmd.Flags().BoolVar(&corrJSON, "json", false, "print correlations as JSON")
	rootCmd.AddCommand(correlationsCmd)
}
