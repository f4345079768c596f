// ABOUTME: Static timezone-name to fixed UTC offset lookup.
// ABOUTME: Deliberately ignores daylight saving; unknown names map to DefaultOffset.
package tz

import (
	"strings"
	"time"
)

// DefaultOffset is used for empty or unrecognized timezone names.
const DefaultOffset = 0 * time.Hour

// offsets holds standard-time offsets in minutes east of UTC.
var offsets = map[string]int{
	"UTC":     0,
	"Etc/UTC": 0,
	"GMT":     0,

	"America/New_York":    -5 * 60,
	"America/Toronto":     -5 * 60,
	"America/Chicago":     -6 * 60,
	"America/Mexico_City": -6 * 60,
	"America/Denver":      -7 * 60,
	"America/Phoenix":     -7 * 60,
	"America/Los_Angeles": -8 * 60,
	"America/Vancouver":   -8 * 60,
	"America/Anchorage":   -9 * 60,
	"Pacific/Honolulu":    -10 * 60,

	"America/Sao_Paulo":    -3 * 60,
	"America/Buenos_Aires": -3 * 60,

	"Europe/London":    0,
	"Europe/Lisbon":    0,
	"Europe/Dublin":    0,
	"Europe/Paris":     60,
	"Europe/Berlin":    60,
	"Europe/Madrid":    60,
	"Europe/Rome":      60,
	"Europe/Amsterdam": 60,
	"Europe/Stockholm": 60,
	"Europe/Oslo":      60,
	"Europe/Warsaw":    60,
	"Europe/Athens":    2 * 60,
	"Europe/Helsinki":  2 * 60,
	"Europe/Kyiv":      2 * 60,
	"Europe/Istanbul":  3 * 60,
	"Europe/Moscow":    3 * 60,

	"Africa/Cairo":        2 * 60,
	"Africa/Johannesburg": 2 * 60,
	"Africa/Lagos":        60,
	"Africa/Nairobi":      3 * 60,

	"Asia/Dubai":     4 * 60,
	"Asia/Karachi":   5 * 60,
	"Asia/Kolkata":   5*60 + 30,
	"Asia/Kathmandu": 5*60 + 45,
	"Asia/Dhaka":     6 * 60,
	"Asia/Bangkok":   7 * 60,
	"Asia/Jakarta":   7 * 60,
	"Asia/Singapore": 8 * 60,
	"Asia/Shanghai":  8 * 60,
	"Asia/Hong_Kong": 8 * 60,
	"Asia/Taipei":    8 * 60,
	"Asia/Manila":    8 * 60,
	"Asia/Seoul":     9 * 60,
	"Asia/Tokyo":     9 * 60,

	"Australia/Perth":     8 * 60,
	"Australia/Adelaide":  9*60 + 30,
	"Australia/Brisbane":  10 * 60,
	"Australia/Sydney":    10 * 60,
	"Australia/Melbourne": 10 * 60,
	"Pacific/Auckland":    12 * 60,
}

// Offset returns the fixed offset for a timezone name.
func Offset(name string) time.Duration {
	name = strings.TrimSpace(name)
	if m, ok := offsets[name]; ok {
		return time.Duration(m) * time.Minute
	}
	return DefaultOffset
}

// Known reports whether name is in the offset table.
func Known(name string) bool {
	_, ok := offsets[strings.TrimSpace(name)]
	return ok
}

// LocalTime converts a UTC instant to wall-clock time in the named zone.
func LocalTime(t time.Time, name string) time.Time {
	off := Offset(name)
	return t.In(time.FixedZone(name, int(off/time.Second)))
}

// LocalDate returns the YYYY-MM-DD calendar day of t in the named zone.
func LocalDate(t time.Time, name string) string {
	return LocalTime(t, name).Format("2006-01-02")
}

// LocalHour returns the hour of day of t in the named zone.
func LocalHour(t time.Time, name string) int {
	return LocalTime(t, name).Hour()
}
