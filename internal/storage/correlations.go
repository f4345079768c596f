// ABOUTME: Behavior-outcome correlation upserts and ranked reads.
// ABOUTME: Correlations are keyed by (user, behavior, outcome) so retraining overwrites.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/healthlake/internal/models"
)

// UpsertCorrelations writes correlations keyed by their composite key.
func (s *Store) UpsertCorrelations(ctx context.Context, corrs []*models.Correlation) error {
	rows := make([][]any, 0, len(corrs))
	for _, c := range corrs {
		rows = append(rows, []any{
			c.Key,
			c.UserID,
			c.BehaviorKey,
			c.OutcomeDimension,
			c.Direction,
			c.EffectSizePct,
			c.HighMean,
			c.LowMean,
			int64(c.SampleSize),
			boolInt(c.Significant),
			boolInt(c.Actionable),
			c.TrainedAt.UnixNano(),
		})
	}
	if err := s.insert(ctx, CorrelationTable, rows); err != nil {
		return fmt.Errorf("upsert correlations: %w", err)
	}
	return nil
}

// CorrelationFilter narrows ListCorrelations.
type CorrelationFilter struct {
	UserID          string
	SignificantOnly bool
	ActionableOnly  bool
	MinSampleSize   int
	Limit           int
}

// ListCorrelations returns current correlations ranked by effect size then sample size.
func (s *Store) ListCorrelations(ctx context.Context, filter CorrelationFilter) ([]*models.Correlation, error) {
	var (
		conds []string
		args  []any
	)
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	inner := "1 = 1"
	if len(conds) > 0 {
		inner = strings.Join(conds, " AND ")
	}
	innerArgs := append([]any{}, args...)

	if filter.SignificantOnly {
		conds = append(conds, "significant = 1")
	}
	if filter.ActionableOnly {
		conds = append(conds, "actionable = 1")
	}
	if filter.MinSampleSize > 0 {
		conds = append(conds, "sample_size >= ?")
		args = append(args, int64(filter.MinSampleSize))
	}
	conds = append(conds, latestWhere(CorrelationTable, inner))
	args = append(args, innerArgs...)

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY significant DESC, effect_size_pct DESC, sample_size DESC, corr_key",
		joinCols(CorrelationTable.ColumnNames()), CorrelationTable.Name, strings.Join(conds, " AND "))
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	scan := func(rows Rows) (*models.Correlation, error) {
		var (
			c                                 models.Correlation
			size, significant, actionable, ts int64
		)
		if err := rows.Scan(&c.Key, &c.UserID, &c.BehaviorKey, &c.OutcomeDimension, &c.Direction,
			&c.EffectSizePct, &c.HighMean, &c.LowMean, &size, &significant, &actionable, &ts); err != nil {
			return nil, fmt.Errorf("scan correlation: %w", err)
		}
		c.SampleSize = int(size)
		c.Significant = significant == 1
		c.Actionable = actionable == 1
		c.TrainedAt = time.Unix(0, ts).UTC()
		return &c, nil
	}

	corrs, err := queryRows(ctx, s, scan, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list correlations: %w", err)
	}
	return corrs, nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
