package schema

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DateLayout is the layout of date headers and index dates.
	DateLayout = "2006-01-02"

	// MonthLayout is the layout of month section headers.
	MonthLayout = "January 2006"

	// OpenSentinel replaces the end time of the active entry.
	OpenSentinel = "ONGOING"

	// MinutesPerDay is used for overnight wraparound.
	MinutesPerDay = 24 * 60
)

// Clock is a time of day in minutes since midnight.
type Clock int

// ParseClock parses a strictly zero-padded HH:MM value.
// "9:00", "09:0" and "24:00" are rejected.
func ParseClock(s string) (Clock, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, Validationf("time %q must be HH:MM", s)
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return 0, Validationf("time %q must be HH:MM", s)
		}
	}

	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if h > 23 || m > 59 {
		return 0, Validationf("time %q is out of range", s)
	}
	return Clock(h*60 + m), nil
}

// ClockOf returns the clock time of t, truncated to the minute.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

// String formats the clock as HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// DurationMinutes returns the non-negative number of minutes from start to
// end. An end before the start is treated as crossing midnight.
func DurationMinutes(start, end Clock) int {
	d := int(end) - int(start)
	if d < 0 {
		d += MinutesPerDay
	}
	return d
}

// TimeEntry is one line of work in a log file.
type TimeEntry struct {
	Date    time.Time // calendar day at UTC midnight
	Start   Clock
	End     Clock // meaningless while Open
	Open    bool
	Task    string
	Project string
	Tags    []string
	Notes   string

	// Source position of the entry line.
	Source string
	Line   int
}

// DateKey returns the entry date as YYYY-MM-DD.
func (e *TimeEntry) DateKey() string {
	return e.Date.Format(DateLayout)
}

// DurationMinutes returns the entry length; open entries have none.
func (e *TimeEntry) DurationMinutes() int {
	if e.Open {
		return 0
	}
	return DurationMinutes(e.Start, e.End)
}

// DurationHours returns the entry length in hours.
func (e *TimeEntry) DurationHours() float64 {
	return float64(e.DurationMinutes()) / 60
}

// EndKey returns the end time as it is written in the log.
func (e *TimeEntry) EndKey() string {
	if e.Open {
		return OpenSentinel
	}
	return e.End.String()
}

// HasTag reports whether the entry carries tag.
func (e *TimeEntry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Validate checks the fields every entry must have.
func (e *TimeEntry) Validate() error {
	if strings.TrimSpace(e.Task) == "" {
		return Validationf("task is required")
	}
	if e.Date.IsZero() {
		return Validationf("date is required")
	}
	if e.Start < 0 || e.Start >= MinutesPerDay {
		return Validationf("start %d out of range", e.Start)
	}
	if !e.Open && (e.End < 0 || e.End >= MinutesPerDay) {
		return Validationf("end %d out of range", e.End)
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, Validationf("date %q must be YYYY-MM-DD", s)
	}
	return d, nil
}

// DateOf strips the clock and location from t, keeping its calendar day.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FiscalYearLabel names the July-June fiscal year containing date, for
// example "2025-2026" for any day from 2025-07-01 to 2026-06-30.
func FiscalYearLabel(date time.Time) string {
	y := date.Year()
	if date.Month() >= time.July {
		return fmt.Sprintf("%d-%d", y, y+1)
	}
	return fmt.Sprintf("%d-%d", y-1, y)
}

// NormalizeTags trims tags and drops empty and repeated ones, keeping order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// MergeNotes joins existing notes with newly supplied ones.
func MergeNotes(existing, added string) string {
	existing = strings.TrimSpace(existing)
	added = strings.TrimSpace(added)
	switch {
	case existing == "":
		return added
	case added == "":
		return existing
	default:
		return existing + "; " + added
	}
}

// LogFileExt is the extension of fiscal year log files.
const LogFileExt = ".md"

// LogFileName returns the log file name for a fiscal year label.
func LogFileName(label string) string {
	return label + LogFileExt
}

// ListLogFiles returns the log file paths in dir. Because file names are
// fiscal year labels the result is ordered by fiscal year.
func ListLogFiles(dir string) ([]string, error) {
	return listFiles(dir, LogFileExt)
}
