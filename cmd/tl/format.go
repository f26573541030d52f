package main

import (
	"fmt"
	"strings"

	"github.com/timelog/tl/internal/timelog/schema"
	"github.com/timelog/tl/internal/ui"
)

// entryJSON is the --json form of an entry.
type entryJSON struct {
	Date    string   `json:"date"`
	Start   string   `json:"start"`
	End     string   `json:"end"`
	Hours   float64  `json:"hours"`
	Task    string   `json:"task"`
	Project string   `json:"project,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Notes   string   `json:"notes,omitempty"`
	Source  string   `json:"source,omitempty"`
	Line    int      `json:"line,omitempty"`
}

func toJSON(entries []schema.TimeEntry) []entryJSON {
	out := make([]entryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryJSON{
			Date:    e.DateKey(),
			Start:   e.Start.String(),
			End:     e.EndKey(),
			Hours:   e.DurationHours(),
			Task:    e.Task,
			Project: e.Project,
			Tags:    e.Tags,
			Notes:   e.Notes,
			Source:  e.Source,
			Line:    e.Line,
		})
	}
	return out
}

// formatEntry renders one entry as a report line.
func formatEntry(e schema.TimeEntry, withDate bool) string {
	var b strings.Builder
	if withDate {
		b.WriteString(ui.RenderMuted(e.DateKey()) + " ")
	}
	fmt.Fprintf(&b, "%s-%s ", e.Start, e.EndKey())
	if e.Open {
		b.WriteString(ui.RenderAccent("running") + " ")
	} else {
		fmt.Fprintf(&b, "%6s ", ui.Hours(e.DurationHours()))
	}
	b.WriteString(e.Task)
	if e.Project != "" {
		b.WriteString(" " + ui.RenderAccent("["+e.Project+"]"))
	}
	if len(e.Tags) > 0 {
		b.WriteString(" " + ui.RenderMuted("#"+strings.Join(e.Tags, " #")))
	}
	return b.String()
}

func printEntries(entries []schema.TimeEntry, withDate bool) {
	for _, e := range entries {
		fmt.Println("  " + formatEntry(e, withDate))
		if e.Notes != "" {
			fmt.Println("      " + ui.RenderMuted(e.Notes))
		}
	}
}

func splitTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		out = append(out, strings.Split(t, ",")...)
	}
	return schema.NormalizeTags(out)
}
