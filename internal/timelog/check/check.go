// Package check finds gaps and overlaps between the entries of a day.
//
// Checks are advisory: they never modify or reject entries. Times are
// compared in minutes since midnight, and an entry whose end is before its
// start runs past midnight.
package check

import (
	"fmt"
	"sort"

	"github.com/timelog/tl/internal/timelog/schema"
)

// Gap is an uncovered interval between two consecutive entries.
type Gap struct {
	Start         schema.Clock
	End           schema.Clock
	DurationHours float64
}

func (g Gap) String() string {
	return fmt.Sprintf("%s-%s (%.2fh)", g.Start, g.End, g.DurationHours)
}

// Overlap is a pair of consecutive entries whose intervals intersect.
type Overlap struct {
	First   schema.TimeEntry
	Second  schema.TimeEntry
	Minutes int
}

func (o Overlap) String() string {
	return fmt.Sprintf("%s %s-%s %q overlaps %s-%s %q by %d min",
		o.First.DateKey(),
		o.First.Start, o.First.EndKey(), o.First.Task,
		o.Second.Start, o.Second.EndKey(), o.Second.Task,
		o.Minutes)
}

// span is an entry with its end expressed relative to the day start, so an
// overnight entry ends after 24:00.
type span struct {
	entry      schema.TimeEntry
	start, end int
}

// sorted returns the closed entries ordered by start time. Entries with the
// same start keep their input order.
func sorted(entries []schema.TimeEntry) []span {
	spans := make([]span, 0, len(entries))
	for _, e := range entries {
		if e.Open {
			continue
		}
		start := int(e.Start)
		spans = append(spans, span{entry: e, start: start, end: start + e.DurationMinutes()})
	}
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].start < spans[j].start
	})
	return spans
}

// FindGapsInDay returns the gaps between consecutive entries of one day.
// Nothing is reported before the first or after the last entry.
func FindGapsInDay(entries []schema.TimeEntry) []Gap {
	spans := sorted(entries)

	var gaps []Gap
	for i := 0; i+1 < len(spans); i++ {
		cur, next := spans[i], spans[i+1]
		if next.start > cur.end {
			gaps = append(gaps, Gap{
				Start:         schema.Clock(cur.end),
				End:           schema.Clock(next.start),
				DurationHours: float64(next.start-cur.end) / 60,
			})
		}
	}
	return gaps
}

// CheckForOverlaps returns the overlapping pairs among consecutive entries
// of one day.
func CheckForOverlaps(entries []schema.TimeEntry) []Overlap {
	spans := sorted(entries)

	var overlaps []Overlap
	for i := 0; i+1 < len(spans); i++ {
		cur, next := spans[i], spans[i+1]
		if cur.end > next.start {
			overlaps = append(overlaps, Overlap{
				First:   cur.entry,
				Second:  next.entry,
				Minutes: min(cur.end, next.end) - next.start,
			})
		}
	}
	return overlaps
}

// GroupByDate groups entries by their YYYY-MM-DD date.
func GroupByDate(entries []schema.TimeEntry) map[string][]schema.TimeEntry {
	groups := make(map[string][]schema.TimeEntry)
	for _, e := range entries {
		key := e.DateKey()
		groups[key] = append(groups[key], e)
	}
	return groups
}

// OverlapsByDate checks every date separately and returns all overlaps
// ordered by date.
func OverlapsByDate(entries []schema.TimeEntry) []Overlap {
	groups := GroupByDate(entries)
	dates := make([]string, 0, len(groups))
	for d := range groups {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	var all []Overlap
	for _, d := range dates {
		all = append(all, CheckForOverlaps(groups[d])...)
	}
	return all
}

// DayReport summarizes one day.
type DayReport struct {
	Date        string
	Entries     []schema.TimeEntry
	Gaps        []Gap
	Overlaps    []Overlap
	LoggedHours float64
	GapHours    float64
}

// Day builds the report for the entries of a single date. Entries are
// returned in start order.
func Day(date string, entries []schema.TimeEntry) *DayReport {
	r := &DayReport{
		Date:     date,
		Gaps:     FindGapsInDay(entries),
		Overlaps: CheckForOverlaps(entries),
	}
	for _, s := range sorted(entries) {
		r.Entries = append(r.Entries, s.entry)
		r.LoggedHours += s.entry.DurationHours()
	}
	for _, g := range r.Gaps {
		r.GapHours += g.DurationHours
	}
	return r
}
