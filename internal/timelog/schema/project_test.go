package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseProjectFile(t *testing.T) {
	data := []byte(`---
name: Website
goals: [ship v2, keep it fast]
directions: accessibility first, mobile
tags:
  - web
  - client
status: active
start_date: 2025-08-01
summary: Public site rebuild
---

Kickoff notes.
`)

	p, warnings, err := ParseProjectFile("projects/website.md", data)
	if err != nil {
		t.Fatalf("ParseProjectFile failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}

	if p.Name != "Website" {
		t.Errorf("Name = %q, want Website", p.Name)
	}
	if len(p.Goals) != 2 || p.Goals[1] != "keep it fast" {
		t.Errorf("Goals = %v", p.Goals)
	}
	if len(p.Directions) != 2 || p.Directions[0] != "accessibility first" {
		t.Errorf("Directions = %v", p.Directions)
	}
	if len(p.Tags) != 2 || p.Tags[0] != "web" {
		t.Errorf("Tags = %v", p.Tags)
	}
	if p.StartDate != "2025-08-01" {
		t.Errorf("StartDate = %q, want 2025-08-01", p.StartDate)
	}
	if p.Body != "Kickoff notes.\n" {
		t.Errorf("Body = %q", p.Body)
	}
}

func TestParseProjectFile_Degrades(t *testing.T) {
	t.Run("no front matter", func(t *testing.T) {
		p, warnings, err := ParseProjectFile("projects/notes.md", []byte("just text\n"))
		if err != nil {
			t.Fatalf("ParseProjectFile failed: %v", err)
		}
		if p.Name != "notes" {
			t.Errorf("Name = %q, want notes", p.Name)
		}
		if len(warnings) != 1 {
			t.Errorf("warnings = %v, want 1", warnings)
		}
	})

	t.Run("bad start date", func(t *testing.T) {
		p, warnings, err := ParseProjectFile("x.md", []byte("---\nname: X\nstart_date: August\n---\n"))
		if err != nil {
			t.Fatalf("ParseProjectFile failed: %v", err)
		}
		if p.StartDate != "" {
			t.Errorf("StartDate = %q, want cleared", p.StartDate)
		}
		if len(warnings) != 1 {
			t.Errorf("warnings = %v, want 1", warnings)
		}
	})

	t.Run("broken yaml", func(t *testing.T) {
		_, _, err := ParseProjectFile("x.md", []byte("---\nname: [unclosed\n---\n"))
		if err == nil {
			t.Fatal("expected error for broken YAML")
		}
	})
}

func TestProjectFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := &ProjectFile{
		Name:    "Data Pipeline",
		Tags:    StringList{"etl"},
		Status:  "paused",
		Summary: "Nightly loads",
		Body:    "Details here.",
	}

	path, err := WriteProjectFile(dir, p)
	if err != nil {
		t.Fatalf("WriteProjectFile failed: %v", err)
	}
	if filepath.Base(path) != "data-pipeline.md" {
		t.Errorf("file name = %s, want data-pipeline.md", filepath.Base(path))
	}

	got, _, err := ReadProjectFile(path)
	if err != nil {
		t.Fatalf("ReadProjectFile failed: %v", err)
	}
	if got.Name != p.Name || got.Status != "paused" || got.Summary != "Nightly loads" {
		t.Errorf("read back %+v", got)
	}
	if strings.TrimSpace(got.Body) != "Details here." {
		t.Errorf("Body = %q", got.Body)
	}

	if _, err := WriteProjectFile(dir, p); err == nil {
		t.Error("expected error when overwriting an existing project file")
	}
}

func TestEnsureProjectFile(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

	p, created, err := EnsureProjectFile(dir, "Website", started)
	if err != nil {
		t.Fatalf("EnsureProjectFile failed: %v", err)
	}
	if !created {
		t.Fatal("expected project file to be created")
	}
	if p.StartDate != "2025-08-01" || p.Status != "active" {
		t.Errorf("generated project = %+v", p)
	}

	again, created, err := EnsureProjectFile(dir, "website", started)
	if err != nil {
		t.Fatalf("second EnsureProjectFile failed: %v", err)
	}
	if created {
		t.Error("existing project must not be recreated")
	}
	if again.Path != p.Path {
		t.Errorf("Path = %s, want %s", again.Path, p.Path)
	}

	paths, err := ListProjectFiles(dir)
	if err != nil {
		t.Fatalf("ListProjectFiles failed: %v", err)
	}
	if len(paths) != 1 {
		t.Errorf("got %d project files, want 1", len(paths))
	}
}

func TestEnsureProjectFile_SlugCollision(t *testing.T) {
	dir := t.TempDir()
	// A hand written file owns the slug but names a different project.
	if err := os.WriteFile(filepath.Join(dir, "web-site.md"), []byte("---\nname: Web/Site\n---\n"), 0644); err != nil {
		t.Fatal(err)
	}

	p, created, err := EnsureProjectFile(dir, "Web Site", time.Now())
	if err != nil {
		t.Fatalf("EnsureProjectFile failed: %v", err)
	}
	if !created {
		t.Fatal("expected a new project file")
	}
	if filepath.Base(p.Path) != "web-site-2.md" {
		t.Errorf("file name = %s, want web-site-2.md", filepath.Base(p.Path))
	}
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Website":         "website",
		"Data Pipeline!":  "data-pipeline",
		"  a  b  ":        "a-b",
		"???":             "project",
		"Ünïcode Project": "ünïcode-project",
	}
	for in, want := range tests {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestListLogFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"2025-2026.md", "2024-2025.md", ".2023-2024.md.swp", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}

	paths, err := ListLogFiles(dir)
	if err != nil {
		t.Fatalf("ListLogFiles failed: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("got %v, want 2 files", paths)
	}
	if filepath.Base(paths[0]) != "2024-2025.md" {
		t.Errorf("first file = %s, want 2024-2025.md", paths[0])
	}

	missing, err := ListLogFiles(filepath.Join(dir, "missing"))
	if err != nil || len(missing) != 0 {
		t.Errorf("missing dir: %v, %v", missing, err)
	}
}
