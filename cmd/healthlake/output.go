// ABOUTME: Shared output helpers for CLI commands.
// ABOUTME: Prints job results with status colors and encodes JSON or YAML payloads.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/harperreed/healthlake/internal/models"
)

// printResults writes one line per job result and reports whether all succeeded.
func printResults(w io.Writer, results []models.JobResult) bool {
	ok := true
	faint := color.New(color.Faint)
	for _, r := range results {
		name := r.Job
		if r.Stage != "" {
			name += "/" + r.Stage
		}
		status := color.GreenString("✓")
		if !r.Success {
			status = color.RedString("✗")
			ok = false
		}
		line := fmt.Sprintf("%s %s rows=%d %s", status, padRight(name, 22), r.RowsAffected, faint.Sprint(r.Duration))
		if r.Error != "" {
			line += " " + color.RedString(r.Error)
		}
		fmt.Fprintln(w, line)
	}
	return ok
}

// finish prints results in the requested format and turns failures into an error.
func finish(w io.Writer, asJSON bool, results ...models.JobResult) error {
	var ok bool
	if asJSON {
		ok = true
		for _, r := range results {
			ok = ok && r.Success
		}
		if err := writeJSON(w, results); err != nil {
			return err
		}
	} else {
		ok = printResults(w, results)
	}
	if !ok {
		return fmt.Errorf("%s failed", results[0].Job)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func encode(format string, v any) ([]byte, error) {
	switch format {
	case "json":
		return json.MarshalIndent(v, "", "  ")
	case "yaml":
		return yaml.Marshal(v)
	default:
		return nil, fmt.Errorf("unknown format: %s (use json or yaml)", format)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func padRight(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return s + strings.Repeat(" ", length-len(s))
}

func sortedNames(m map[string]float64) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
