// ABOUTME: Snapshot assembly: outer-joins every domain's rollups onto one row per (user, day).
// ABOUTME: Trend and quality fields are left empty for the enricher.
package pipeline

import (
	"sort"

	"github.com/harperreed/healthlake/internal/models"
)

// Assemble builds one assembled snapshot per (user, date) present in any
// domain's rollups. Domains without a rollup for a day contribute no fields.
func Assemble(rollups map[models.Domain][]*models.DailyRollup, version int64) []*models.FeatureSnapshot {
	index := make(map[models.DayKey]*models.FeatureSnapshot)
	var out []*models.FeatureSnapshot

	for _, spec := range models.RollupDomains {
		for _, r := range rollups[spec.Domain] {
			snap, ok := index[r.Key()]
			if !ok {
				snap = &models.FeatureSnapshot{
					UserID:    r.UserID,
					LocalDate: r.LocalDate,
					Features:  make(map[string]float64),
					Stage:     models.StageAssembled,
					Version:   version,
				}
				index[r.Key()] = snap
				out = append(out, snap)
			}
			for _, f := range spec.Fields {
				if v, ok := r.Fields[f]; ok {
					snap.Features[f] = v
				}
			}
			if spec.Domain == models.DomainWeight {
				snap.WeightProvenance = r.Provenance
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].LocalDate < out[j].LocalDate
	})
	return out
}
