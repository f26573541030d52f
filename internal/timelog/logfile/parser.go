package logfile

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/timelog/tl/internal/timelog/schema"
)

// Warning records an entry line that was skipped or a section that looks
// wrong but does not stop parsing.
type Warning struct {
	Line    int
	Content string
	Reason  string
}

func (w Warning) String() string {
	return fmt.Sprintf("line %d: %s: %q", w.Line, w.Reason, w.Content)
}

// Result is the parsed content of one log file.
type Result struct {
	Path string

	// Entries holds the closed entries in file order.
	Entries []schema.TimeEntry

	// Open holds entries whose end time is the open sentinel.
	Open []schema.TimeEntry

	Warnings []Warning
}

// Parse parses log file content. A malformed date or month header fails the
// whole file with a *schema.FormatError; a malformed entry line is skipped
// and reported in Result.Warnings.
func Parse(path, content string) (*Result, error) {
	res := &Result{Path: path}

	var (
		all   []schema.TimeEntry
		month time.Time
		date  time.Time
		cur   = -1 // index in all of the entry receiving continuation lines
	)

	warn := func(n int, line, reason string) {
		res.Warnings = append(res.Warnings, Warning{Line: n, Content: line, Reason: reason})
	}

	for i, line := range splitLines(content) {
		n := i + 1
		kind := Classify(line)

		if kind != KindContinuation {
			cur = -1
		}

		switch kind {
		case KindMonth:
			m, err := ParseMonthHeader(line)
			if err != nil {
				return nil, &schema.FormatError{Path: path, Line: n, Content: line, Reason: "malformed month header"}
			}
			month = m
			date = time.Time{}

		case KindDate:
			d, err := ParseDateHeader(line)
			if err != nil {
				return nil, &schema.FormatError{Path: path, Line: n, Content: line, Reason: "malformed date header"}
			}
			if !month.IsZero() && (d.Year() != month.Year() || d.Month() != month.Month()) {
				warn(n, line, "date is outside its month section")
			}
			date = d

		case KindEntry:
			if date.IsZero() {
				warn(n, line, "entry before any date header")
				continue
			}
			el, err := ParseEntryLine(line)
			if err != nil {
				warn(n, line, err.Error())
				continue
			}
			all = append(all, el.toEntry(date, path, n))
			cur = len(all) - 1

		case KindContinuation:
			if cur >= 0 {
				all[cur].Notes = schema.MergeNotes(all[cur].Notes, continuationText(line))
			}
		}
	}

	for _, e := range all {
		if e.Open {
			res.Open = append(res.Open, e)
		} else {
			res.Entries = append(res.Entries, e)
		}
	}
	return res, nil
}

// ParseFile reads and parses the log file at path.
func ParseFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read log file %s: %w", path, err)
	}
	return Parse(path, string(data))
}

// ScanOpen returns every open entry in content. Unlike Parse it never fails:
// a broken header only leaves the date of the entries below it unknown.
func ScanOpen(path, content string) []schema.TimeEntry {
	var (
		open []schema.TimeEntry
		date time.Time
		cur  = -1
	)

	for i, line := range splitLines(content) {
		kind := Classify(line)
		if kind != KindContinuation {
			cur = -1
		}

		switch kind {
		case KindDate:
			date, _ = ParseDateHeader(line)
		case KindEntry:
			if !strings.Contains(line, schema.OpenSentinel) {
				continue
			}
			el, err := ParseEntryLine(line)
			if err != nil || !el.Open {
				continue
			}
			open = append(open, el.toEntry(date, path, i+1))
			cur = len(open) - 1
		case KindContinuation:
			if cur >= 0 {
				open[cur].Notes = schema.MergeNotes(open[cur].Notes, continuationText(line))
			}
		}
	}
	return open
}

func (el *EntryLine) toEntry(date time.Time, path string, line int) schema.TimeEntry {
	return schema.TimeEntry{
		Date:    date,
		Start:   el.Start,
		End:     el.End,
		Open:    el.Open,
		Task:    el.Task,
		Project: el.Project,
		Tags:    el.Tags,
		Notes:   el.Notes,
		Source:  path,
		Line:    line,
	}
}

// splitLines splits content into lines without their terminators. A final
// newline does not produce an empty last line.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}
