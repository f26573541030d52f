// Package migrate imports time entries kept by other trackers into the
// Markdown log.
package migrate

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/timelog/tl/internal/timelog/schema"
	"github.com/timelog/tl/internal/timelog/tracker"
)

// Record is one line of a JSON Lines time log. Timestamp is when the work
// ended.
type Record struct {
	Timestamp       time.Time `json:"timestamp"`
	Description     string    `json:"description"`
	DurationMinutes int       `json:"duration_minutes"`
	Project         string    `json:"project,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
}

// Adder writes a closed entry. *tracker.Tracker and *query.Service
// implement it.
type Adder interface {
	Add(ctx context.Context, opts tracker.AddOptions) (*tracker.Change, error)
}

// ImportOptions contains configuration for an import
type ImportOptions struct {
	FromJSONL string         // Input JSON Lines file path
	DryRun    bool           // Convert and validate without writing
	Location  *time.Location // Zone the log is kept in; defaults to time.Local
}

// ImportResult contains statistics about an import
type ImportResult struct {
	Read     int
	Imported int
	Skipped  int

	// Files lists the log files written, in first-write order.
	Files []string

	// Warnings names skipped lines and records.
	Warnings []string
}

// FromJSONL reads records from a JSON Lines file. Blank lines are ignored;
// a line that is not a valid record is reported as a warning and skipped.
func FromJSONL(path string) ([]Record, []string, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()

	var records []Record
	var warnings []string

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			warnings = append(warnings, fmt.Sprintf("line %d: invalid JSON: %v", lineNum, err))
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read JSONL file: %w", err)
	}

	return records, warnings, nil
}

// RecordToAdd converts a record into a closed entry ending at its
// timestamp. Work that crosses midnight is logged on the day it started.
func RecordToAdd(rec Record, loc *time.Location) (tracker.AddOptions, error) {
	if loc == nil {
		loc = time.Local
	}
	if strings.TrimSpace(rec.Description) == "" {
		return tracker.AddOptions{}, schema.Validationf("description is required")
	}
	if rec.Timestamp.IsZero() {
		return tracker.AddOptions{}, schema.Validationf("timestamp is required")
	}
	if rec.DurationMinutes <= 0 || rec.DurationMinutes >= schema.MinutesPerDay {
		return tracker.AddOptions{}, schema.Validationf("duration_minutes %d must be between 1 and %d",
			rec.DurationMinutes, schema.MinutesPerDay-1)
	}

	end := rec.Timestamp.In(loc).Truncate(time.Minute)
	start := end.Add(-time.Duration(rec.DurationMinutes) * time.Minute)

	return tracker.AddOptions{
		Task:      strings.TrimSpace(rec.Description),
		Project:   strings.TrimSpace(rec.Project),
		Tags:      schema.NormalizeTags(rec.Tags),
		Date:      start.Format(schema.DateLayout),
		StartTime: schema.ClockOf(start).String(),
		EndTime:   schema.ClockOf(end).String(),
	}, nil
}

// Import adds every record of opts.FromJSONL through adder. Records that
// cannot be converted or written are skipped with a warning; only an
// unreadable input file or a cancelled context stops the import.
func Import(ctx context.Context, adder Adder, opts ImportOptions) (*ImportResult, error) {
	records, warnings, err := FromJSONL(opts.FromJSONL)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{
		Read:     len(records),
		Skipped:  len(warnings),
		Warnings: warnings,
	}
	seen := make(map[string]bool)

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		add, err := RecordToAdd(rec, opts.Location)
		if err != nil {
			result.Skipped++
			result.Warnings = append(result.Warnings, fmt.Sprintf("record %d (%q): %v", i+1, rec.Description, err))
			continue
		}

		if opts.DryRun {
			result.Imported++
			continue
		}

		change, err := adder.Add(ctx, add)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Skipped++
			result.Warnings = append(result.Warnings, fmt.Sprintf("record %d (%q): failed to add: %v", i+1, rec.Description, err))
			continue
		}

		result.Imported++
		if !seen[change.Path] {
			seen[change.Path] = true
			result.Files = append(result.Files, change.Path)
		}
	}

	return result, nil
}
