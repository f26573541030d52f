package tracker

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/timelog/tl/internal/timelog/logfile"
	"github.com/timelog/tl/internal/timelog/schema"
)

// setupTestTracker returns a tracker over temp directories whose clock reads
// 2025-08-01 14:05 UTC.
func setupTestTracker(t *testing.T) (*Tracker, string) {
	t.Helper()
	root := t.TempDir()
	tr := New(Config{
		LogsDir:     filepath.Join(root, "logs"),
		ProjectsDir: filepath.Join(root, "projects"),
		Location:    time.UTC,
		Now: func() time.Time {
			return time.Date(2025, 8, 1, 14, 5, 30, 0, time.UTC)
		},
		Logger: log.New(io.Discard, "", 0),
	})
	return tr, root
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func TestStartFinish_RoundTrip(t *testing.T) {
	tr, _ := setupTestTracker(t)
	ctx := context.Background()

	started, err := tr.Start(ctx, StartOptions{Task: "T", Date: "2025-08-01", StartTime: "09:00"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if filepath.Base(started.Path) != "2025-2026.md" {
		t.Errorf("Path = %s, want 2025-2026.md", started.Path)
	}
	if !strings.Contains(readFile(t, started.Path), "- **09:00-ONGOING**: T") {
		t.Fatalf("open entry not written:\n%s", readFile(t, started.Path))
	}

	finished, err := tr.Finish(ctx, FinishOptions{EndTime: "10:00"})
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if finished.Entry.DurationHours() != 1.0 {
		t.Errorf("DurationHours = %v, want 1.0", finished.Entry.DurationHours())
	}
	if finished.Entry.DateKey() != "2025-08-01" {
		t.Errorf("Date = %s, want 2025-08-01", finished.Entry.DateKey())
	}

	content := readFile(t, started.Path)
	if !strings.Contains(content, "- **09:00-10:00**: T") {
		t.Errorf("closed entry missing:\n%s", content)
	}
	if strings.Contains(content, schema.OpenSentinel) {
		t.Errorf("open sentinel left in file:\n%s", content)
	}

	res, err := logfile.Parse(started.Path, content)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(res.Entries) != 1 || len(res.Open) != 0 {
		t.Errorf("entries=%d open=%d, want 1 and 0", len(res.Entries), len(res.Open))
	}
}

func TestStart_Defaults(t *testing.T) {
	tr, _ := setupTestTracker(t)

	change, err := tr.Start(context.Background(), StartOptions{Task: "Now"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if change.Entry.DateKey() != "2025-08-01" || change.Entry.Start.String() != "14:05" {
		t.Errorf("defaults = %s %s, want 2025-08-01 14:05", change.Entry.DateKey(), change.Entry.Start)
	}
	if !change.Entry.Open {
		t.Error("started entry should be open")
	}
}

func TestStart_Conflict(t *testing.T) {
	tr, _ := setupTestTracker(t)
	ctx := context.Background()

	if _, err := tr.Start(ctx, StartOptions{Task: "First", StartTime: "09:00"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// An open entry in another fiscal year still blocks.
	_, err := tr.Start(ctx, StartOptions{Task: "Second", Date: "2026-08-01", StartTime: "10:00"})
	if !errors.Is(err, schema.ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}
	if !strings.Contains(err.Error(), "First") || !strings.Contains(err.Error(), "finish") {
		t.Errorf("conflict message not actionable: %v", err)
	}
	if !schema.IsUserActionRequired(err) {
		t.Error("conflict should require user action")
	}
}

func TestFinish_NotFound(t *testing.T) {
	tr, _ := setupTestTracker(t)

	_, err := tr.Finish(context.Background(), FinishOptions{EndTime: "10:00"})
	if !errors.Is(err, schema.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestFinish_EndNotAfterStart(t *testing.T) {
	tr, _ := setupTestTracker(t)
	ctx := context.Background()

	change, err := tr.Start(ctx, StartOptions{Task: "T", StartTime: "09:00"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	before := readFile(t, change.Path)

	for _, end := range []string{"09:00", "08:30"} {
		if _, err := tr.Finish(ctx, FinishOptions{EndTime: end}); !errors.Is(err, schema.ErrValidation) {
			t.Errorf("Finish(%s) error = %v, want ErrValidation", end, err)
		}
	}
	if _, err := tr.Finish(ctx, FinishOptions{EndTime: "9:30"}); !errors.Is(err, schema.ErrValidation) {
		t.Errorf("unpadded end time error = %v, want ErrValidation", err)
	}

	if readFile(t, change.Path) != before {
		t.Error("rejected finish modified the log file")
	}
}

func TestFinish_MergesNotes(t *testing.T) {
	tr, _ := setupTestTracker(t)
	ctx := context.Background()

	if _, err := tr.Start(ctx, StartOptions{Task: "T", StartTime: "09:00", Notes: "kickoff"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	change, err := tr.Finish(ctx, FinishOptions{EndTime: "11:15", Notes: "wrapped up"})
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if change.Entry.Notes != "kickoff; wrapped up" {
		t.Errorf("Notes = %q", change.Entry.Notes)
	}
	if strings.Count(readFile(t, change.Path), "Notes:") != 1 {
		t.Errorf("expected a single notes line:\n%s", readFile(t, change.Path))
	}
}

func TestFinish_SeveralOpenClosesEarliest(t *testing.T) {
	tr, root := setupTestTracker(t)
	logs := filepath.Join(root, "logs")
	if err := os.MkdirAll(logs, 0755); err != nil {
		t.Fatal(err)
	}
	content := `# Time Log 2025-2026

## August 2025

### 2025-08-01

- **09:00-ONGOING**: Early
- **13:00-ONGOING**: Late
`
	path := filepath.Join(logs, "2025-2026.md")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	change, err := tr.Finish(context.Background(), FinishOptions{EndTime: "12:00"})
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if change.Entry.Task != "Early" {
		t.Errorf("closed %q, want Early", change.Entry.Task)
	}

	status, err := tr.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if status.State != Active || status.Entry.Task != "Late" {
		t.Errorf("status = %+v", status)
	}
}

func TestAdd(t *testing.T) {
	tr, _ := setupTestTracker(t)
	ctx := context.Background()

	t.Run("overnight", func(t *testing.T) {
		change, err := tr.Add(ctx, AddOptions{Task: "Deploy", Date: "2025-08-02", StartTime: "23:00", EndTime: "01:00"})
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if change.Entry.DurationHours() != 2.0 {
			t.Errorf("DurationHours = %v, want 2.0", change.Entry.DurationHours())
		}
	})

	t.Run("zero length", func(t *testing.T) {
		_, err := tr.Add(ctx, AddOptions{Task: "Nothing", StartTime: "10:00", EndTime: "10:00"})
		if !errors.Is(err, schema.ErrValidation) {
			t.Errorf("error = %v, want ErrValidation", err)
		}
	})

	t.Run("missing times", func(t *testing.T) {
		_, err := tr.Add(ctx, AddOptions{Task: "Nothing", StartTime: "10:00"})
		if !errors.Is(err, schema.ErrValidation) {
			t.Errorf("error = %v, want ErrValidation", err)
		}
	})

	t.Run("empty task", func(t *testing.T) {
		_, err := tr.Add(ctx, AddOptions{StartTime: "10:00", EndTime: "11:00"})
		if !errors.Is(err, schema.ErrValidation) {
			t.Errorf("error = %v, want ErrValidation", err)
		}
	})

	t.Run("does not conflict with active entry", func(t *testing.T) {
		if _, err := tr.Start(ctx, StartOptions{Task: "Active", StartTime: "13:00"}); err != nil {
			t.Fatal(err)
		}
		if _, err := tr.Add(ctx, AddOptions{Task: "Earlier", StartTime: "08:00", EndTime: "09:00"}); err != nil {
			t.Errorf("Add failed while an entry is active: %v", err)
		}
	})
}

func TestAdd_FiscalYearFiles(t *testing.T) {
	tr, _ := setupTestTracker(t)
	ctx := context.Background()

	tests := []struct {
		date string
		file string
	}{
		{"2025-07-01", "2025-2026.md"},
		{"2026-06-30", "2025-2026.md"},
		{"2026-07-01", "2026-2027.md"},
	}
	for _, tt := range tests {
		change, err := tr.Add(ctx, AddOptions{Task: "T", Date: tt.date, StartTime: "09:00", EndTime: "10:00"})
		if err != nil {
			t.Fatalf("Add(%s) failed: %v", tt.date, err)
		}
		if filepath.Base(change.Path) != tt.file {
			t.Errorf("Add(%s) wrote %s, want %s", tt.date, filepath.Base(change.Path), tt.file)
		}
		if !strings.HasPrefix(readFile(t, change.Path), "# Time Log "+strings.TrimSuffix(tt.file, ".md")) {
			t.Errorf("%s lacks its title", tt.file)
		}
	}
}

func TestStart_CreatesProjectFile(t *testing.T) {
	tr, root := setupTestTracker(t)
	ctx := context.Background()

	change, err := tr.Start(ctx, StartOptions{Task: "Design", Project: "Website", StartTime: "09:00"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if change.Project == nil {
		t.Fatal("expected a project file to be created")
	}
	if _, err := os.Stat(filepath.Join(root, "projects", "website.md")); err != nil {
		t.Errorf("project file missing: %v", err)
	}

	if _, err := tr.Finish(ctx, FinishOptions{EndTime: "10:00"}); err != nil {
		t.Fatal(err)
	}
	again, err := tr.Add(ctx, AddOptions{Task: "More", Project: "website", StartTime: "10:00", EndTime: "11:00"})
	if err != nil {
		t.Fatal(err)
	}
	if again.Project != nil {
		t.Error("existing project file was created again")
	}
}

func TestStatus(t *testing.T) {
	tr, _ := setupTestTracker(t)
	ctx := context.Background()

	status, err := tr.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.State != Idle || status.Entry != nil {
		t.Errorf("status = %+v, want idle", status)
	}

	if _, err := tr.Start(ctx, StartOptions{Task: "T", StartTime: "13:00"}); err != nil {
		t.Fatal(err)
	}
	status, err = tr.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.State != Active || status.Entry.Task != "T" {
		t.Errorf("status = %+v, want active T", status)
	}
	if status.Elapsed != 65*time.Minute {
		t.Errorf("Elapsed = %v, want 1h5m", status.Elapsed)
	}
}

func TestOpenEntries_CanceledContext(t *testing.T) {
	tr, _ := setupTestTracker(t)
	if _, err := tr.Add(context.Background(), AddOptions{Task: "T", StartTime: "09:00", EndTime: "10:00"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tr.OpenEntries(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestStart_RejectsAmbiguousText(t *testing.T) {
	tr, root := setupTestTracker(t)
	ctx := context.Background()

	for _, task := range []string{"Meeting - planning", "Read [[notes]]", "Fix [bug]"} {
		_, err := tr.Start(ctx, StartOptions{Task: task, Date: "2025-08-01", StartTime: "09:00"})
		if !errors.Is(err, schema.ErrValidation) {
			t.Errorf("Start(%q) error = %v, want ErrValidation", task, err)
		}
	}
	if _, err := tr.Add(ctx, AddOptions{Task: "Sync", Tags: []string{"a,b"}, Date: "2025-08-01", StartTime: "09:00", EndTime: "10:00"}); !errors.Is(err, schema.ErrValidation) {
		t.Errorf("Add with comma tag error = %v, want ErrValidation", err)
	}

	if _, err := os.Stat(filepath.Join(root, "logs", "2025-2026.md")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("log file written for rejected entries: %v", err)
	}
}

func TestStartFinish_KeepsTaskText(t *testing.T) {
	tr, _ := setupTestTracker(t)
	ctx := context.Background()

	started, err := tr.Start(ctx, StartOptions{
		Task:      "Follow-up: re-plan Q3 **roadmap**",
		Project:   "Web-site",
		Tags:      []string{"plan-ning", "q3"},
		Date:      "2025-08-01",
		StartTime: "09:00",
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	openLine := "- **09:00-ONGOING**: Follow-up: re-plan Q3 **roadmap** [[Web-site]] [plan-ning, q3]"
	if !strings.Contains(readFile(t, started.Path), openLine+"\n") {
		t.Fatalf("open entry not written as expected:\n%s", readFile(t, started.Path))
	}

	finished, err := tr.Finish(ctx, FinishOptions{EndTime: "10:00", Notes: "agreed - ship it"})
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	content := readFile(t, started.Path)
	closedLine := "- **09:00-10:00**: Follow-up: re-plan Q3 **roadmap** [[Web-site]] [plan-ning, q3]"
	if !strings.Contains(content, closedLine+"\n  - Notes: agreed - ship it\n") {
		t.Errorf("Finish rewrote the entry:\n%s", content)
	}

	res, err := logfile.Parse(started.Path, content)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(res.Entries))
	}
	got := res.Entries[0]
	if got.Task != "Follow-up: re-plan Q3 **roadmap**" || got.Project != "Web-site" || got.Notes != "agreed - ship it" {
		t.Errorf("parsed entry = %+v", got)
	}
	if got.Task != finished.Entry.Task || got.Notes != finished.Entry.Notes {
		t.Errorf("Finish reported %+v, file holds %+v", finished.Entry, got)
	}
}

func TestFinish_KeepsHandEditedLine(t *testing.T) {
	tr, root := setupTestTracker(t)
	ctx := context.Background()

	path := filepath.Join(root, "logs", "2025-2026.md")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	content := "# Time Log 2025-2026\r\n\r\n## August 2025\r\n\r\n### 2025-08-01\r\n\r\n- **09:00-ONGOING**: Meeting - planning [[Website]] [x\r\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := tr.Finish(ctx, FinishOptions{EndTime: "10:00"}); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	want := strings.Replace(content, "09:00-ONGOING", "09:00-10:00", 1)
	if got := readFile(t, path); got != want {
		t.Errorf("file =\n%q\nwant\n%q", got, want)
	}
}
