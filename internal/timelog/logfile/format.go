package logfile

import (
	"fmt"
	"strings"
	"time"

	"github.com/timelog/tl/internal/timelog/schema"
)

// NewLogFile returns the initial content of the log file for a fiscal year.
func NewLogFile(label string) string {
	return TitlePrefix + label + "\n"
}

// FormatEntry renders e as an entry line, followed by a notes line when the
// entry has notes.
func FormatEntry(e schema.TimeEntry) []string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s-%s**: %s", entryPrefix, e.Start, e.EndKey(), oneLine(e.Task))
	if e.Project != "" {
		fmt.Fprintf(&b, " [[%s]]", oneLine(e.Project))
	}
	if tags := schema.NormalizeTags(e.Tags); len(tags) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(tags, ", "))
	}

	lines := []string{b.String()}
	if notes := oneLine(e.Notes); notes != "" {
		lines = append(lines, "  "+notesPrefix+" "+notes)
	}
	return lines
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CheckWritable reports an ErrValidation error when e's task, project or
// tags would not read back unchanged from the entry line FormatEntry
// writes. Text containing the entry separators "[[", " [" or " - " is
// ambiguous in the log grammar.
func CheckWritable(e schema.TimeEntry) error {
	task, project := oneLine(e.Task), oneLine(e.Project)
	tags := schema.NormalizeTags(e.Tags)

	line := FormatEntry(schema.TimeEntry{Start: e.Start, End: e.End, Open: e.Open, Task: task, Project: project, Tags: tags})[0]
	el, err := ParseEntryLine(line)
	if err != nil {
		return schema.Validationf("entry %q cannot be written: %v", line, err)
	}

	switch {
	case el.Task != task:
		return schema.Validationf("task %q must not contain %q, %q or %q", task, "[[", " [", " - ")
	case el.Project != project:
		return schema.Validationf("project %q must not contain %q or %q", project, "]]", " - ")
	case !equalTags(el.Tags, tags):
		return schema.Validationf("tags %q must not contain %q or %q", tags, ",", "]")
	case el.Notes != "":
		return schema.Validationf("entry %q cannot be written: trailing %q", line, " - ")
	}
	return nil
}

func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// InsertEntry adds e to log content and returns the new content together
// with the 1-based line number of the inserted entry line.
//
// Month and date sections are created only when no header for them exists,
// and are placed in chronological order. Inside a date section the entry
// goes after every entry that starts at or before it.
func InsertEntry(content string, e schema.TimeEntry) (string, int, error) {
	if err := e.Validate(); err != nil {
		return "", 0, err
	}
	if err := CheckWritable(e); err != nil {
		return "", 0, err
	}

	lines := splitLines(content)
	entry := FormatEntry(e)

	var at int
	if di := findLine(lines, DateHeader(e.Date)); di >= 0 {
		lines, at = insertIntoDate(lines, di, e.Start, entry)
	} else if mi := findLine(lines, MonthHeader(e.Date)); mi >= 0 {
		block := append([]string{DateHeader(e.Date), ""}, entry...)
		lines, at = insertBlock(lines, dateInsertPoint(lines, mi, e.Date), block)
		at += 2
	} else {
		block := append([]string{MonthHeader(e.Date), "", DateHeader(e.Date), ""}, entry...)
		lines, at = insertBlock(lines, monthInsertPoint(lines, e.Date), block)
		at += 4
	}

	return joinLines(lines, lineEnding(content)), at + 1, nil
}

// CloseOpenEntry closes the open entry whose entry line is at the given
// 1-based line number. Only the open sentinel in the time range is replaced,
// so the rest of the line stays as it was written. notes is appended to the
// last notes line of the entry, or added as a new notes line. The end time
// must be after the start time.
func CloseOpenEntry(content string, line int, end schema.Clock, notes string) (string, *schema.TimeEntry, error) {
	lines := splitLines(content)
	i := line - 1
	if i < 0 || i >= len(lines) || Classify(lines[i]) != KindEntry {
		return "", nil, fmt.Errorf("%w: line %d is not an entry", schema.ErrNotFound, line)
	}

	el, err := ParseEntryLine(lines[i])
	if err != nil {
		return "", nil, &schema.FormatError{Line: line, Content: lines[i], Reason: err.Error()}
	}
	if !el.Open {
		return "", nil, fmt.Errorf("%w: entry on line %d is not open", schema.ErrNotFound, line)
	}
	if end <= el.Start {
		return "", nil, schema.Validationf("end time %s must be after start time %s", end, el.Start)
	}

	sentinel := "-" + schema.OpenSentinel + "**"
	k := strings.Index(lines[i], sentinel)
	if k < 0 {
		return "", nil, &schema.FormatError{Line: line, Content: lines[i], Reason: "open sentinel not found"}
	}
	out := append([]string(nil), lines...)
	out[i] = lines[i][:k] + "-" + end.String() + "**" + lines[i][k+len(sentinel):]

	j := i + 1
	existing := el.Notes
	notesLine := -1
	for j < len(lines) && Classify(lines[j]) == KindContinuation {
		existing = schema.MergeNotes(existing, continuationText(lines[j]))
		if strings.HasPrefix(strings.TrimSpace(lines[j]), notesPrefix) {
			notesLine = j
		}
		j++
	}

	if added := oneLine(notes); added != "" {
		if notesLine >= 0 {
			out[notesLine] = strings.TrimRight(out[notesLine], " \t") + "; " + added
		} else {
			out = insertAt(out, j, []string{"  " + notesPrefix + " " + added})
		}
	}

	closed := el.toEntry(time.Time{}, "", line)
	closed.Open = false
	closed.End = end
	closed.Notes = schema.MergeNotes(existing, notes)
	return joinLines(out, lineEnding(content)), &closed, nil
}

// insertIntoDate inserts entry lines into the date section whose header is
// at index di.
func insertIntoDate(lines []string, di int, start schema.Clock, entry []string) ([]string, int) {
	end := sectionEnd(lines, di, KindDate)

	at := -1
	lastBlockEnd := -1
	for i := di + 1; i < end; i++ {
		if Classify(lines[i]) != KindEntry {
			continue
		}
		el, err := ParseEntryLine(lines[i])
		if err == nil && el.Start > start {
			at = i
			break
		}
		lastBlockEnd = blockEnd(lines, i)
	}

	switch {
	case at >= 0:
		return insertAt(lines, at, entry), at
	case lastBlockEnd >= 0:
		return insertAt(lines, lastBlockEnd, entry), lastBlockEnd
	}

	// Empty section: skip the blank lines below the header.
	at = di + 1
	for at < end && Classify(lines[at]) == KindBlank {
		at++
	}
	return insertBlock(lines, at, entry)
}

// dateInsertPoint returns the index where a new date section for date goes
// inside the month section whose header is at index mi.
func dateInsertPoint(lines []string, mi int, date time.Time) int {
	end := sectionEnd(lines, mi, KindMonth)
	for i := mi + 1; i < end; i++ {
		if Classify(lines[i]) != KindDate {
			continue
		}
		if d, err := ParseDateHeader(lines[i]); err == nil && d.After(date) {
			return i
		}
	}
	return end
}

// monthInsertPoint returns the index where a new month section for date
// goes.
func monthInsertPoint(lines []string, date time.Time) int {
	first := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i, line := range lines {
		if Classify(line) != KindMonth {
			continue
		}
		if m, err := ParseMonthHeader(line); err == nil && m.After(first) {
			return i
		}
	}
	return len(lines)
}

// sectionEnd returns the index of the first header at or above level after
// index start, or len(lines).
func sectionEnd(lines []string, start int, level LineKind) int {
	for i := start + 1; i < len(lines); i++ {
		k := Classify(lines[i])
		if k == KindTitle || k == KindMonth || (level == KindDate && k == KindDate) {
			return i
		}
	}
	return len(lines)
}

// blockEnd returns the index after the entry at i and its indented lines.
func blockEnd(lines []string, i int) int {
	j := i + 1
	for j < len(lines) && Classify(lines[j]) == KindContinuation {
		j++
	}
	return j
}

// insertBlock inserts block at index at, keeping it separated from
// neighbouring lines by a blank line. It returns the new lines and the
// index of the first block line.
func insertBlock(lines []string, at int, block []string) ([]string, int) {
	var b []string
	if at > 0 && Classify(lines[at-1]) != KindBlank {
		b = append(b, "")
	}
	first := at + len(b)
	b = append(b, block...)
	if at < len(lines) && Classify(lines[at]) != KindBlank {
		b = append(b, "")
	}
	return insertAt(lines, at, b), first
}

func insertAt(lines []string, at int, block []string) []string {
	out := make([]string, 0, len(lines)+len(block))
	out = append(out, lines[:at]...)
	out = append(out, block...)
	return append(out, lines[at:]...)
}

func findLine(lines []string, want string) int {
	for i, line := range lines {
		if strings.TrimRight(line, " \t\r") == want {
			return i
		}
	}
	return -1
}

// lineEnding returns the line terminator content uses. Files written on
// Windows keep their CRLF endings.
func lineEnding(content string) string {
	if strings.Contains(content, "\r\n") {
		return "\r\n"
	}
	return "\n"
}

func joinLines(lines []string, eol string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, eol) + eol
}
