package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/timelog/tl/internal/timelog/schema"
)

// setupTestDB opens an index with its schema in a temp directory.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return db
}

func testEntry(date, start, end, task, project string, tags ...string) schema.TimeEntry {
	d, _ := schema.ParseDate(date)
	s, _ := schema.ParseClock(start)
	e, _ := schema.ParseClock(end)
	return schema.TimeEntry{
		Date:    d,
		Start:   s,
		End:     e,
		Task:    task,
		Project: project,
		Tags:    tags,
		Source:  "logs/2025-2026.md",
		Line:    7,
	}
}

// TestInitSchema_Success tests schema creation
func TestInitSchema_Success(t *testing.T) {
	db := setupTestDB(t)

	for _, table := range []string{"time_entries", "projects", "source_files"} {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		if err := db.conn.QueryRow(query, table).Scan(&count); err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}

	// Idempotent.
	if err := db.InitSchema(); err != nil {
		t.Errorf("second InitSchema() failed: %v", err)
	}
}

func TestReady(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	select {
	case <-db.Ready():
		t.Fatal("Ready() closed before InitSchema")
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := db.WaitReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitReady() = %v, want deadline exceeded", err)
	}

	if err := db.InitSchema(); err != nil {
		t.Fatal(err)
	}
	if err := db.WaitReady(context.Background()); err != nil {
		t.Errorf("WaitReady() after InitSchema = %v", err)
	}
}

func TestUpsertEntry_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	e := testEntry("2025-08-01", "09:00", "10:00", "Write", "Website", "docs")

	for i := 0; i < 3; i++ {
		if err := db.UpsertEntry(&e); err != nil {
			t.Fatalf("UpsertEntry() failed: %v", err)
		}
	}

	count, err := db.GetEntryCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}

	// Notes are not part of the key and are updated in place.
	e.Notes = "revised"
	if err := db.UpsertEntry(&e); err != nil {
		t.Fatal(err)
	}
	got, err := db.ListEntries(context.Background(), EntryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Notes != "revised" {
		t.Errorf("entries = %+v", got)
	}
}

func TestUpsertEntry_RejectsOpen(t *testing.T) {
	db := setupTestDB(t)
	e := testEntry("2025-08-01", "09:00", "10:00", "Write", "")
	e.Open = true
	if err := db.UpsertEntry(&e); err == nil {
		t.Error("expected error for open entry")
	}
}

func TestReplaceFileEntries(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	path := "logs/2025-2026.md"

	first := []schema.TimeEntry{
		testEntry("2025-08-01", "09:00", "10:00", "A", ""),
		testEntry("2025-08-01", "10:00", "11:00", "B", ""),
	}
	if err := db.ReplaceFileEntries(ctx, path, first, "h1"); err != nil {
		t.Fatalf("ReplaceFileEntries() failed: %v", err)
	}

	second := []schema.TimeEntry{testEntry("2025-08-01", "09:00", "10:00", "A", "")}
	if err := db.ReplaceFileEntries(ctx, path, second, "h2"); err != nil {
		t.Fatalf("ReplaceFileEntries() failed: %v", err)
	}

	count, _ := db.GetEntryCount()
	if count != 1 {
		t.Errorf("count = %d, want 1 after replacing", count)
	}
	hash, ok, err := db.FileHash(ctx, path)
	if err != nil || !ok || hash != "h2" {
		t.Errorf("FileHash() = %q, %v, %v", hash, ok, err)
	}

	if err := db.DeleteSource(ctx, path); err != nil {
		t.Fatalf("DeleteSource() failed: %v", err)
	}
	count, _ = db.GetEntryCount()
	if count != 0 {
		t.Errorf("count = %d after DeleteSource, want 0", count)
	}
	if _, ok, _ := db.FileHash(ctx, path); ok {
		t.Error("hash still recorded after DeleteSource")
	}
}

func TestListEntries_Filters(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	entries := []schema.TimeEntry{
		testEntry("2025-08-01", "11:00", "12:00", "Late", "Website", "docs"),
		testEntry("2025-08-01", "09:00", "10:00", "Early", "website", "writing", "docs"),
		testEntry("2025-08-02", "09:00", "10:00", "Other", "Infra", "ops"),
		testEntry("2025-08-05", "09:00", "10:00", "Later", "", "docsets"),
	}
	if err := db.ReplaceFileEntries(ctx, "logs/2025-2026.md", entries, "h"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		filter EntryFilter
		want   []string
	}{
		{"all", EntryFilter{}, []string{"Early", "Late", "Other", "Later"}},
		{"date", EntryFilter{Date: "2025-08-01"}, []string{"Early", "Late"}},
		{"range inclusive", EntryFilter{From: "2025-08-02", To: "2025-08-05"}, []string{"Other", "Later"}},
		{"project case-insensitive", EntryFilter{Project: "WEBSITE"}, []string{"Early", "Late"}},
		{"tag membership", EntryFilter{Tag: "docs"}, []string{"Early", "Late"}},
		{"tag and date", EntryFilter{Tag: "ops", Date: "2025-08-02"}, []string{"Other"}},
		{"limit", EntryFilter{Limit: 1}, []string{"Early"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.ListEntries(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListEntries() failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entries, want %v", len(got), tt.want)
			}
			for i, e := range got {
				if e.Task != tt.want[i] {
					t.Errorf("entry %d = %s, want %s", i, e.Task, tt.want[i])
				}
			}
		})
	}
}

func TestListEntries_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	in := testEntry("2025-08-01", "23:00", "01:00", "Deploy", "Infra", "ops", "night")
	in.Notes = "smooth"
	if err := db.UpsertEntry(&in); err != nil {
		t.Fatal(err)
	}

	got, err := db.ListEntries(context.Background(), EntryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	e := got[0]
	if e.DateKey() != "2025-08-01" || e.Start != in.Start || e.End != in.End {
		t.Errorf("times = %s %s-%s", e.DateKey(), e.Start, e.End)
	}
	if e.DurationHours() != 2.0 {
		t.Errorf("DurationHours = %v, want 2.0", e.DurationHours())
	}
	if len(e.Tags) != 2 || e.Tags[1] != "night" || e.Notes != "smooth" {
		t.Errorf("entry = %+v", e)
	}
	if e.Source != in.Source || e.Line != in.Line {
		t.Errorf("source = %s:%d", e.Source, e.Line)
	}
}

func TestProjects(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	p := &schema.ProjectFile{
		Name:   "Website",
		Goals:  schema.StringList{"ship v2"},
		Tags:   schema.StringList{"web"},
		Status: "active",
		Path:   "projects/website.md",
	}
	if err := db.ReplaceFileProject(ctx, p.Path, p, "h1"); err != nil {
		t.Fatalf("ReplaceFileProject() failed: %v", err)
	}

	// Renaming the project inside the same file replaces the old record.
	renamed := *p
	renamed.Name = "Public Website"
	if err := db.ReplaceFileProject(ctx, p.Path, &renamed, "h2"); err != nil {
		t.Fatal(err)
	}

	count, _ := db.GetProjectCount()
	if count != 1 {
		t.Errorf("project count = %d, want 1", count)
	}

	got, err := db.GetProject(ctx, "public website")
	if err != nil {
		t.Fatalf("GetProject() failed: %v", err)
	}
	if got.Name != "Public Website" || len(got.Goals) != 1 || got.Goals[0] != "ship v2" || got.Path != p.Path {
		t.Errorf("project = %+v", got)
	}

	if _, err := db.GetProject(ctx, "Website"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetProject(old name) error = %v, want sql.ErrNoRows", err)
	}

	all, err := db.ListProjects(ctx)
	if err != nil || len(all) != 1 {
		t.Errorf("ListProjects() = %v, %v", all, err)
	}
}

func TestIsEmptyAndReset(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	empty, err := db.IsEmpty(ctx)
	if err != nil || !empty {
		t.Fatalf("IsEmpty() = %v, %v; want true", empty, err)
	}

	if err := db.UpsertProject(&schema.ProjectFile{Name: "P", Path: "p.md"}); err != nil {
		t.Fatal(err)
	}
	e := testEntry("2025-08-01", "09:00", "10:00", "A", "P")
	if err := db.UpsertEntry(&e); err != nil {
		t.Fatal(err)
	}
	if err := db.SetFileHash(ctx, "p.md", "h"); err != nil {
		t.Fatal(err)
	}

	if empty, _ := db.IsEmpty(ctx); empty {
		t.Error("IsEmpty() = true after inserts")
	}

	if err := db.Reset(); err != nil {
		t.Fatalf("Reset() failed: %v", err)
	}
	if empty, _ := db.IsEmpty(ctx); !empty {
		t.Error("IsEmpty() = false after Reset")
	}
	files, err := db.ListSourceFiles(ctx)
	if err != nil || len(files) != 0 {
		t.Errorf("ListSourceFiles() = %v, %v after Reset", files, err)
	}
}

func TestClose_Twice(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
}
