// ABOUTME: CLI command for inspecting daily feature snapshots.
// ABOUTME: Shows one snapshot in detail or lists a user's snapshots over a date range.
package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harperreed/healthlake/internal/models"
)

var (
	snapshotFrom string
	snapshotTo   string
	snapshotJSON bool
)

var snapshotCmd = &cobra.Command{
	Use:     "snapshot <user> [date]",
	Aliases: []string{"snap"},
	Short:   "Show daily feature snapshots",
	Long: `Show the current daily feature snapshot for a user.

With a date, prints every feature and enrichment for that day. Without one,
lists the user's snapshots between --from and --to (default: the last 14 days).

EXAMPLES:

  healthlake snapshot u1 2025-03-18
  healthlake snapshot u1 --from 2025-03-01 --to 2025-03-31
  healthlake snapshot u1 2025-03-18 --json`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := args[0]
		w := cmd.OutOrStdout()

		if len(args) == 2 {
			if _, err := time.Parse(models.DateLayout, args[1]); err != nil {
				return fmt.Errorf("invalid date format: %s (use YYYY-MM-DD)", args[1])
			}
			snap, err := svc.Snapshot(cmd.Context(), userID, args[1])
			if err != nil {
				return fmt.Errorf("failed to get snapshot: %w", err)
			}
			if snapshotJSON {
				return writeJSON(w, snap)
			}
			printSnapshot(w, snap)
			return nil
		}

		from, to, err := dateRange(snapshotFrom, snapshotTo, 14)
		if err != nil {
			return err
		}
		snaps, err := svc.Snapshots(cmd.Context(), userID, from, to)
		if err != nil {
			return fmt.Errorf("failed to list snapshots: %w", err)
		}
		if snapshotJSON {
			return writeJSON(w, snaps)
		}
		if len(snaps) == 0 {
			fmt.Fprintln(w, "No snapshots found.")
			return nil
		}
		faint := color.New(color.Faint)
		for _, s := range snaps {
			fmt.Fprintf(w, "%s %s %s\n",
				s.LocalDate,
				faint.Sprintf("v%d %-9s", s.Version, s.Stage),
				truncate(featureSummary(s), 60))
		}
		return nil
	},
}

// dateRange resolves --from/--to, defaulting to the trailing days ending today.
func dateRange(from, to string, days int) (string, string, error) {
	if to == "" {
		to = time.Now().UTC().Format(models.DateLayout)
	}
	end, err := time.Parse(models.DateLayout, to)
	if err != nil {
		return "", "", fmt.Errorf("invalid date format: %s (use YYYY-MM-DD)", to)
	}
	if from == "" {
		from = end.AddDate(0, 0, -(days - 1)).Format(models.DateLayout)
	}
	if _, err := time.Parse(models.DateLayout, from); err != nil {
		return "", "", fmt.Errorf("invalid date format: %s (use YYYY-MM-DD)", from)
	}
	return from, to, nil
}

func featureSummary(s *models.FeatureSnapshot) string {
	var out string
	for _, f := range models.FeatureFields() {
		if v, ok := s.Features[f]; ok {
			if out != "" {
				out += " "
			}
			out += fmt.Sprintf("%s=%g", f, v)
		}
	}
	return out
}

func printSnapshot(w io.Writer, s *models.FeatureSnapshot) {
	faint := color.New(color.Faint)
	fmt.Fprintf(w, "%s %s %s\n", color.CyanString(s.UserID), s.LocalDate, faint.Sprintf("v%d %s", s.Version, s.Stage))

	for _, name := range sortedNames(s.Features) {
		fmt.Fprintf(w, "  %s %g\n", padRight(name, 20), s.Features[name])
	}
	if s.WeightProvenance != "" {
		fmt.Fprintf(w, "  %s %s\n", padRight("weight_provenance", 20), s.WeightProvenance)
	}

	floats := []struct {
		name string
		v    *float64
	}{
		{"weight_trend_7d", s.WeightTrend7d},
		{"weight_slope", s.WeightSlope},
		{"volatility_score", s.VolatilityScore},
		{"weigh_ins_per_week", s.WeighInsPerWeek},
	}
	for _, f := range floats {
		if f.v != nil {
			fmt.Fprintf(w, "  %s %.3f\n", padRight(f.name, 20), *f.v)
		}
	}
	ints := []struct {
		name string
		v    *int
	}{
		{"days_since_weigh_in", s.DaysSinceWeighIn},
		{"nutrition_days_14d", s.NutritionDays14d},
		{"glucose_days_14d", s.GlucoseDays14d},
	}
	for _, f := range ints {
		if f.v != nil {
			fmt.Fprintf(w, "  %s %d\n", padRight(f.name, 20), *f.v)
		}
	}
}

func init() {
	snapshotCmd.Flags().StringVar(&snapshotFrom, "from", "", "first date (YYYY-MM-DD)")
	snapshotCmd.Flags().StringVar(&snapshotTo, "to", "", "last date (YYYY-MM-DD, default today)")
	snapshotCmd.Flags().BoolVar(&snapshotJSON, "json", false, "print snapshots as JSON")
	rootCmd.AddCommand(snapshotCmd)
}
