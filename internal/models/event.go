// ABOUTME: RawEvent model for per-domain ingested readings.
// ABOUTME: Events are immutable, user-scoped, source-tagged, and carry a stable ID.
package models

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the layout of local-date keys.
const DateLayout = "2006-01-02"

// RawEvent is one ingested reading or daily aggregate for a domain.
type RawEvent struct {
	EventID    string             `json:"event_id"`
	UserID     string             `json:"user_id"`
	Domain     Domain             `json:"domain"`
	LocalDate  string             `json:"local_date"`
	RecordedAt time.Time          `json:"recorded_at"`
	Timezone   string             `json:"timezone"`
	Source     string             `json:"source"`
	Fields     map[string]float64 `json:"fields"`

	// InsertedAt is set by the store when the row is written.
	InsertedAt time.Time `json:"inserted_at"`
}

// NewRawEvent creates a RawEvent with a generated ID recorded at the given instant.
func NewRawEvent(userID string, domain Domain, recordedAt time.Time) *RawEvent {
	return &RawEvent{
		EventID:    uuid.New().String(),
		UserID:     userID,
		Domain:     domain,
		LocalDate:  recordedAt.Format(DateLayout),
		RecordedAt: recordedAt.UTC(),
		Timezone:   "UTC",
		Source:     "manual",
		Fields:     map[string]float64{},
	}
}

// WithField sets a numeric field on the event.
func (e *RawEvent) WithField(name string, value float64) *RawEvent {
	if e.Fields == nil {
		e.Fields = map[string]float64{}
	}
	e.Fields[name] = value
	return e
}

// WithTimezone sets the reported timezone name.
func (e *RawEvent) WithTimezone(name string) *RawEvent {
	e.Timezone = name
	return e
}

// WithLocalDate sets the local-date key.
func (e *RawEvent) WithLocalDate(date string) *RawEvent {
	e.LocalDate = date
	return e
}

// WithSource sets the source tag.
func (e *RawEvent) WithSource(source string) *RawEvent {
	e.Source = source
	return e
}
