package check

import (
	"testing"

	"github.com/timelog/tl/internal/timelog/schema"
)

func entry(t *testing.T, date, start, end, task string) schema.TimeEntry {
	t.Helper()
	d, err := schema.ParseDate(date)
	if err != nil {
		t.Fatal(err)
	}
	s, err := schema.ParseClock(start)
	if err != nil {
		t.Fatal(err)
	}
	e := schema.TimeEntry{Date: d, Start: s, Task: task}
	if end == schema.OpenSentinel {
		e.Open = true
		return e
	}
	if e.End, err = schema.ParseClock(end); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestFindGapsInDay(t *testing.T) {
	t.Run("one gap", func(t *testing.T) {
		gaps := FindGapsInDay([]schema.TimeEntry{
			entry(t, "2025-08-01", "10:30", "11:30", "B"),
			entry(t, "2025-08-01", "09:00", "10:00", "A"),
		})
		if len(gaps) != 1 {
			t.Fatalf("got %d gaps, want 1", len(gaps))
		}
		g := gaps[0]
		if g.Start.String() != "10:00" || g.End.String() != "10:30" || g.DurationHours != 0.5 {
			t.Errorf("gap = %v, want 10:00-10:30 (0.50h)", g)
		}
	})

	t.Run("back to back", func(t *testing.T) {
		gaps := FindGapsInDay([]schema.TimeEntry{
			entry(t, "2025-08-01", "09:00", "10:00", "A"),
			entry(t, "2025-08-01", "10:00", "11:00", "B"),
		})
		if len(gaps) != 0 {
			t.Errorf("got %d gaps, want 0", len(gaps))
		}
	})

	t.Run("single entry", func(t *testing.T) {
		if gaps := FindGapsInDay([]schema.TimeEntry{entry(t, "2025-08-01", "09:00", "10:00", "A")}); len(gaps) != 0 {
			t.Errorf("got %d gaps, want 0", len(gaps))
		}
	})

	t.Run("open entries ignored", func(t *testing.T) {
		gaps := FindGapsInDay([]schema.TimeEntry{
			entry(t, "2025-08-01", "09:00", "10:00", "A"),
			entry(t, "2025-08-01", "12:00", schema.OpenSentinel, "B"),
		})
		if len(gaps) != 0 {
			t.Errorf("got %d gaps, want 0", len(gaps))
		}
	})
}

func TestCheckForOverlaps(t *testing.T) {
	input := []schema.TimeEntry{
		entry(t, "2025-08-01", "10:00", "11:00", "B"),
		entry(t, "2025-08-01", "09:00", "10:30", "A"),
	}
	overlaps := CheckForOverlaps(input)
	if len(overlaps) != 1 {
		t.Fatalf("got %d overlaps, want 1", len(overlaps))
	}
	o := overlaps[0]
	if o.Minutes != 30 {
		t.Errorf("Minutes = %d, want 30", o.Minutes)
	}
	if o.First.Task != "A" || o.Second.Task != "B" {
		t.Errorf("pair = %s, %s; want A, B", o.First.Task, o.Second.Task)
	}

	// Input order is untouched.
	if input[0].Task != "B" {
		t.Error("CheckForOverlaps reordered its input")
	}
}

func TestCheckForOverlaps_Contained(t *testing.T) {
	overlaps := CheckForOverlaps([]schema.TimeEntry{
		entry(t, "2025-08-01", "09:00", "12:00", "Long"),
		entry(t, "2025-08-01", "10:00", "10:45", "Inner"),
	})
	if len(overlaps) != 1 || overlaps[0].Minutes != 45 {
		t.Errorf("overlaps = %v, want one of 45 min", overlaps)
	}
}

func TestCheckForOverlaps_Overnight(t *testing.T) {
	// 22:00-01:00 runs past midnight, so it overlaps 23:00-23:30 fully.
	overlaps := CheckForOverlaps([]schema.TimeEntry{
		entry(t, "2025-08-01", "22:00", "01:00", "Deploy"),
		entry(t, "2025-08-01", "23:00", "23:30", "Call"),
	})
	if len(overlaps) != 1 || overlaps[0].Minutes != 30 {
		t.Errorf("overlaps = %v, want one of 30 min", overlaps)
	}
}

func TestOverlapsByDate(t *testing.T) {
	overlaps := OverlapsByDate([]schema.TimeEntry{
		entry(t, "2025-08-02", "09:00", "10:30", "C"),
		entry(t, "2025-08-02", "10:00", "11:00", "D"),
		entry(t, "2025-08-01", "09:00", "10:30", "A"),
		entry(t, "2025-08-03", "10:00", "11:00", "B"),
	})
	if len(overlaps) != 1 {
		t.Fatalf("got %d overlaps, want 1 (entries on different dates never overlap)", len(overlaps))
	}
	if overlaps[0].First.DateKey() != "2025-08-02" {
		t.Errorf("overlap date = %s", overlaps[0].First.DateKey())
	}
}

func TestDay(t *testing.T) {
	r := Day("2025-08-01", []schema.TimeEntry{
		entry(t, "2025-08-01", "13:00", "14:30", "C"),
		entry(t, "2025-08-01", "09:00", "10:00", "A"),
		entry(t, "2025-08-01", "10:30", "12:00", "B"),
	})

	if r.LoggedHours != 4.0 {
		t.Errorf("LoggedHours = %v, want 4.0", r.LoggedHours)
	}
	if r.GapHours != 1.5 {
		t.Errorf("GapHours = %v, want 1.5", r.GapHours)
	}
	if len(r.Gaps) != 2 || len(r.Overlaps) != 0 {
		t.Errorf("gaps=%d overlaps=%d", len(r.Gaps), len(r.Overlaps))
	}
	if r.Entries[0].Task != "A" || r.Entries[2].Task != "C" {
		t.Errorf("entries not in start order: %v", r.Entries)
	}
}
