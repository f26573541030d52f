package logfile

import (
	"fmt"
	"strings"
	"time"

	"github.com/timelog/tl/internal/timelog/schema"
)

// LineKind classifies a single line of a log file.
type LineKind int

const (
	KindBlank LineKind = iota
	KindTitle
	KindMonth
	KindDate
	KindEntry
	KindContinuation
	KindText
)

var kindNames = [...]string{
	KindBlank:        "blank",
	KindTitle:        "title",
	KindMonth:        "month",
	KindDate:         "date",
	KindEntry:        "entry",
	KindContinuation: "continuation",
	KindText:         "text",
}

func (k LineKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("LineKind(%d)", int(k))
}

const (
	titlePrefix = "# "
	monthPrefix = "## "
	datePrefix  = "### "
	entryPrefix = "- **"
	notesPrefix = "- Notes:"

	// TitlePrefix starts the first line of every log file.
	TitlePrefix = "# Time Log "
)

// Classify returns the kind of a log line. Classification only looks at the
// line prefix; whether a header or entry is well formed is decided by the
// matching parse function.
func Classify(line string) LineKind {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return KindBlank
	}
	if line[0] == ' ' || line[0] == '\t' {
		return KindContinuation
	}
	if line[0] == '#' {
		// Markdown needs a space after the hashes; "##notes" is plain text.
		n := headingLevel(line)
		if n >= len(line) || line[n] != ' ' {
			return KindText
		}
		switch n {
		case 1:
			return KindTitle
		case 2:
			return KindMonth
		case 3:
			return KindDate
		}
		return KindText
	}
	if strings.HasPrefix(line, entryPrefix) {
		return KindEntry
	}
	return KindText
}

func headingLevel(line string) int {
	n := 0
	for n < len(line) && line[n] == '#' {
		n++
	}
	return n
}

// ParseDateHeader parses a "### YYYY-MM-DD" line.
func ParseDateHeader(line string) (time.Time, error) {
	line = strings.TrimRight(line, " \t\r")
	if !strings.HasPrefix(line, datePrefix) {
		return time.Time{}, fmt.Errorf("date header must start with %q", datePrefix)
	}
	d, err := time.Parse(schema.DateLayout, strings.TrimSpace(line[len(datePrefix):]))
	if err != nil {
		return time.Time{}, fmt.Errorf("date header must be YYYY-MM-DD")
	}
	return d, nil
}

// ParseMonthHeader parses a "## January 2006" line and returns the first
// day of that month.
func ParseMonthHeader(line string) (time.Time, error) {
	line = strings.TrimRight(line, " \t\r")
	if !strings.HasPrefix(line, monthPrefix) {
		return time.Time{}, fmt.Errorf("month header must start with %q", monthPrefix)
	}
	m, err := time.Parse(schema.MonthLayout, strings.TrimSpace(line[len(monthPrefix):]))
	if err != nil {
		return time.Time{}, fmt.Errorf("month header must look like %q", schema.MonthLayout)
	}
	return m, nil
}

// DateHeader renders the header line of a date section.
func DateHeader(date time.Time) string {
	return datePrefix + date.Format(schema.DateLayout)
}

// MonthHeader renders the header line of the month section containing date.
func MonthHeader(date time.Time) string {
	return monthPrefix + date.Format(schema.MonthLayout)
}

// EntryLine is the tokenized form of a single entry line.
type EntryLine struct {
	Start   schema.Clock
	End     schema.Clock
	Open    bool
	Task    string
	Project string
	Tags    []string
	Notes   string
}

// ParseEntryLine tokenizes an entry line of the form
//
//	- **HH:MM-HH:MM**: task [[project]] [tag, tag] - notes
//
// The end time may be the open sentinel. Both clock times must be zero
// padded. When the text after the task does not tokenize as project, tags
// and notes, the whole text is taken as the task.
func ParseEntryLine(line string) (*EntryLine, error) {
	line = strings.TrimRight(line, " \t\r")
	if !strings.HasPrefix(line, entryPrefix) {
		return nil, fmt.Errorf("entry must start with %q", entryPrefix)
	}
	rest := line[len(entryPrefix):]

	closing := strings.Index(rest, "**")
	if closing < 0 {
		return nil, fmt.Errorf("unterminated time range")
	}
	timeRange, rest := rest[:closing], rest[closing+2:]
	if !strings.HasPrefix(rest, ":") {
		return nil, fmt.Errorf("missing ':' after time range")
	}
	rest = strings.TrimSpace(rest[1:])

	e := &EntryLine{}
	if err := e.parseRange(timeRange); err != nil {
		return nil, err
	}

	if !e.parseText(rest) {
		e.Task, e.Project, e.Tags, e.Notes = rest, "", nil, ""
	}
	if e.Task == "" {
		return nil, fmt.Errorf("empty task")
	}
	return e, nil
}

func (e *EntryLine) parseRange(s string) error {
	start, end, ok := strings.Cut(s, "-")
	if !ok {
		return fmt.Errorf("time range %q must be HH:MM-HH:MM", s)
	}

	var err error
	if e.Start, err = schema.ParseClock(start); err != nil {
		return fmt.Errorf("bad start time: %w", err)
	}
	if end == schema.OpenSentinel {
		e.Open = true
		return nil
	}
	if e.End, err = schema.ParseClock(end); err != nil {
		return fmt.Errorf("bad end time: %w", err)
	}
	return nil
}

// parseText splits the text after the time range. It reports false when the
// tail after the task is not a clean sequence of project, tags and notes.
func (e *EntryLine) parseText(s string) bool {
	cut := len(s)
	for _, marker := range []string{"[[", " [", " - "} {
		if i := strings.Index(s, marker); i >= 0 && i < cut {
			cut = i
		}
	}
	e.Task = strings.TrimSpace(s[:cut])
	tail := strings.TrimSpace(s[cut:])

	var sawProject, sawTags bool
	for tail != "" {
		switch {
		case strings.HasPrefix(tail, "[["):
			end := strings.Index(tail, "]]")
			if sawProject || end < 0 {
				return false
			}
			e.Project = strings.TrimSpace(tail[2:end])
			tail = strings.TrimSpace(tail[end+2:])
			sawProject = true
		case strings.HasPrefix(tail, "["):
			end := strings.Index(tail, "]")
			if sawTags || end < 0 {
				return false
			}
			e.Tags = schema.NormalizeTags(strings.Split(tail[1:end], ","))
			tail = strings.TrimSpace(tail[end+1:])
			sawTags = true
		case tail == "-" || strings.HasPrefix(tail, "- "):
			e.Notes = strings.TrimSpace(tail[1:])
			return true
		default:
			return false
		}
	}
	return true
}

// continuationText returns the note text carried by an indented line.
func continuationText(line string) string {
	text := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(text, notesPrefix):
		return strings.TrimSpace(text[len(notesPrefix):])
	case strings.HasPrefix(text, "- "):
		return strings.TrimSpace(text[2:])
	}
	return text
}
