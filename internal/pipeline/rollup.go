// ABOUTME: Daily rollup transforms: one representative value per (user, local day) per domain.
// ABOUTME: Weight prefers the earliest morning reading; other domains take the latest record.
package pipeline

import (
	"sort"

	"github.com/harperreed/healthlake/internal/models"
	"github.com/harperreed/healthlake/internal/stats"
	"github.com/harperreed/healthlake/internal/tz"
)

// Morning window bounds in local hours, [MorningStartHour, MorningEndHour).
const (
	MorningStartHour = 4
	MorningEndHour   = 10
)

type dayGroup struct {
	key    models.DayKey
	events []*models.RawEvent
}

// groupByDay buckets events by (user, date) using dateOf, returning groups
// sorted by user then date. Repeated event IDs are counted once.
func groupByDay(events []*models.RawEvent, dateOf func(*models.RawEvent) string) []*dayGroup {
	seen := make(map[string]bool, len(events))
	index := make(map[models.DayKey]*dayGroup)
	var groups []*dayGroup
	for _, e := range events {
		if seen[e.EventID] {
			continue
		}
		seen[e.EventID] = true

		key := models.DayKey{UserID: e.UserID, LocalDate: dateOf(e)}
		g, ok := index[key]
		if !ok {
			g = &dayGroup{key: key}
			index[key] = g
			groups = append(groups, g)
		}
		g.events = append(g.events, e)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].key.UserID != groups[j].key.UserID {
			return groups[i].key.UserID < groups[j].key.UserID
		}
		return groups[i].key.LocalDate < groups[j].key.LocalDate
	})
	return groups
}

// localDateOf buckets a point reading into its day in the reported timezone.
func localDateOf(e *models.RawEvent) string {
	return tz.LocalDate(e.RecordedAt, e.Timezone)
}

// storedDateOf buckets a daily aggregate by the local-date key it was ingested with.
func storedDateOf(e *models.RawEvent) string {
	if e.LocalDate != "" {
		return e.LocalDate
	}
	return localDateOf(e)
}

// before orders events by recorded time, then by event ID.
func before(a, b *models.RawEvent) bool {
	if !a.RecordedAt.Equal(b.RecordedAt) {
		return a.RecordedAt.Before(b.RecordedAt)
	}
	return a.EventID < b.EventID
}

// BuildWeightRollups picks each day's representative weight. The earliest
// reading inside the local morning window wins; without one, the day's median
// is used. Median, min and max are always recorded.
func BuildWeightRollups(events []*models.RawEvent, version int64) []*models.DailyRollup {
	var out []*models.DailyRollup
	for _, g := range groupByDay(events, localDateOf) {
		var (
			values  []float64
			morning *models.RawEvent
		)
		for _, e := range g.events {
			w, ok := e.Fields[models.FieldWeightKg]
			if !ok {
				continue
			}
			values = append(values, w)

			hour := tz.LocalHour(e.RecordedAt, e.Timezone)
			if hour >= MorningStartHour && hour < MorningEndHour {
				if morning == nil || before(e, morning) {
					morning = e
				}
			}
		}
		if len(values) == 0 {
			continue
		}

		median := stats.Median(values)
		lo, hi := stats.MinMax(values)
		r := &models.DailyRollup{
			UserID:      g.key.UserID,
			Domain:      models.DomainWeight,
			LocalDate:   g.key.LocalDate,
			Median:      models.Float(median),
			Min:         models.Float(lo),
			Max:         models.Float(hi),
			SampleCount: len(values),
			Version:     version,
		}
		if morning != nil {
			r.Fields = map[string]float64{models.FieldWeightKg: morning.Fields[models.FieldWeightKg]}
			r.Provenance = models.ProvenanceMorningPreferred
		} else {
			r.Fields = map[string]float64{models.FieldWeightKg: median}
			r.Provenance = models.ProvenanceMedianFallback
		}
		out = append(out, r)
	}
	return out
}

// BuildLatestRollups collapses a domain's daily aggregates to one row per
// (user, date). Each field takes the value of the latest-recorded event
// carrying it. Summary stats describe the domain's primary field.
func BuildLatestRollups(spec models.DomainSpec, events []*models.RawEvent, version int64) []*models.DailyRollup {
	var out []*models.DailyRollup
	for _, g := range groupByDay(events, storedDateOf) {
		sort.Slice(g.events, func(i, j int) bool { return before(g.events[i], g.events[j]) })

		fields := make(map[string]float64, len(spec.Fields))
		var primary []float64
		for _, e := range g.events {
			for _, f := range spec.Fields {
				if v, ok := e.Fields[f]; ok {
					fields[f] = v
				}
			}
			if v, ok := e.Fields[spec.PrimaryField]; ok {
				primary = append(primary, v)
			}
		}
		if len(fields) == 0 {
			continue
		}

		r := &models.DailyRollup{
			UserID:      g.key.UserID,
			Domain:      spec.Domain,
			LocalDate:   g.key.LocalDate,
			Fields:      fields,
			Provenance:  models.ProvenanceLatestRecord,
			SampleCount: len(g.events),
			Version:     version,
		}
		if len(primary) > 0 {
			lo, hi := stats.MinMax(primary)
			r.Median = models.Float(stats.Median(primary))
			r.Min = models.Float(lo)
			r.Max = models.Float(hi)
		}
		out = append(out, r)
	}
	return out
}

// BuildRollups dispatches to the domain's rollup rule.
func BuildRollups(spec models.DomainSpec, events []*models.RawEvent, version int64) []*models.DailyRollup {
	if spec.Domain == models.DomainWeight {
		return BuildWeightRollups(events, version)
	}
	return BuildLatestRollups(spec, events, version)
}
