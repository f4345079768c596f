// ABOUTME: CLI commands for loading raw events into the per-domain tables.
// ABOUTME: ingest reads a JSON array of events; add records a single event from arguments.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/harperreed/healthlake/internal/models"
	"github.com/harperreed/healthlake/internal/tz"
)

var (
	addUser     string
	addAt       string
	addTimezone string
	addSource   string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Load raw events from a JSON file",
	Long: `Load raw events from a JSON array. Use "-" to read from stdin.

Each event needs user_id, domain, recorded_at and at least one field.
Missing event_id, timezone, source and local_date are filled in; the local
date is derived from recorded_at in the event's timezone.

EXAMPLE EVENT:

  {
    "user_id": "u1",
    "domain": "weight",
    "recorded_at": "2025-03-18T07:05:00Z",
    "timezone": "America/Chicago",
    "fields": {"weight_kg": 81.4}
  }

DOMAINS:

  weight, body_composition, activity, sleep, cardio, nutrition, glucose,
  behavior_factor, survey`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if args[0] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("failed to read events: %w", err)
		}

		var events []*models.RawEvent
		if err := json.Unmarshal(data, &events); err != nil {
			return fmt.Errorf("failed to parse events: %w", err)
		}
		for i, e := range events {
			if err := normalizeEvent(e, "import"); err != nil {
				return fmt.Errorf("event %d: %w", i, err)
			}
		}

		n, err := svc.Ingest(cmd.Context(), events)
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		color.Green("✓ Ingested %d events", n)
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:     "add <domain> <field=value>...",
	Aliases: []string{"a"},
	Short:   "Record one raw event",
	Long: `Record a single raw event with one or more numeric fields.

Examples:
  healthlake add weight weight_kg=82.5 --user u1
  healthlake add sleep sleep_minutes=410 sleep_efficiency=0.91 -u u1 --at "2025-03-18 07:00"
  healthlake add behavior_factor caffeine_mg=200 -u u1 --tz Europe/Berlin
  healthlake add survey energy=7 -u u1`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if addUser == "" {
			return errors.New("--user is required")
		}
		if !models.IsValidDomain(args[0]) {
			return fmt.Errorf("unknown domain: %s", args[0])
		}

		recordedAt := time.Now().UTC()
		if addAt != "" {
			t, err := parseTime(addAt)
			if err != nil {
				return fmt.Errorf("invalid timestamp: %s", addAt)
			}
			recordedAt = t
		}

		e := &models.RawEvent{
			UserID:     addUser,
			Domain:     models.Domain(args[0]),
			RecordedAt: recordedAt,
			Timezone:   addTimezone,
			Fields:     map[string]float64{},
		}
		for _, kv := range args[1:] {
			name, raw, ok := strings.Cut(kv, "=")
			if !ok || name == "" {
				return fmt.Errorf("invalid field %q (use name=value)", kv)
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %s", name, raw)
			}
			e.Fields[name] = v
		}
		if err := normalizeEvent(e, addSource); err != nil {
			return err
		}

		if _, err := svc.Ingest(cmd.Context(), []*models.RawEvent{e}); err != nil {
			return fmt.Errorf("failed to add event: %w", err)
		}

		color.Green("✓ Added %s", e.Domain)
		fmt.Fprintf(cmd.OutOrStdout(), "  %s %s %s\n",
			color.New(color.Faint).Sprint(e.EventID[:8]),
			e.LocalDate,
			featureList(e.Fields))
		return nil
	},
}

// normalizeEvent validates an event and fills the fields callers may omit.
func normalizeEvent(e *models.RawEvent, source string) error {
	if e == nil {
		return errors.New("event is empty")
	}
	if e.UserID == "" {
		return errors.New("user_id is required")
	}
	if !models.IsValidDomain(string(e.Domain)) {
		return fmt.Errorf("unknown domain: %q", e.Domain)
	}
	if e.RecordedAt.IsZero() {
		return errors.New("recorded_at is required")
	}
	if len(e.Fields) == 0 {
		return errors.New("at least one field is required")
	}
	if e.EventID == "" {
		e.EventID = uuid.New().String()
	}
	if e.Timezone == "" {
		e.Timezone = "UTC"
	}
	if e.Source == "" {
		e.Source = source
	}
	e.RecordedAt = e.RecordedAt.UTC()
	if e.LocalDate == "" {
		e.LocalDate = tz.LocalDate(e.RecordedAt, e.Timezone)
	}
	return nil
}

func featureList(fields map[string]float64) string {
	parts := make([]string, 0, len(fields))
	for _, name := range sortedNames(fields) {
		parts = append(parts, fmt.Sprintf("%s=%g", name, fields[name]))
	}
	return strings.Join(parts, " ")
}

func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02 15:04",
		"2006-01-02T15:04",
		"2006-01-02",
		time.RFC3339,
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format")
}

func init() {
	addCmd.Flags().StringVarP(&addUser, "user", "u", "", "user id")
	addCmd.Flags().StringVar(&addAt, "at", "", "timestamp (YYYY-MM-DD HH:MM, UTC)")
	addCmd.Flags().StringVar(&addTimezone, "tz", "UTC", "reported timezone of the reading")
	addCmd.Flags().StringVar(&addSource, "source", "manual", "source tag")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(addCmd)
}
