package logfile

import (
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		line string
		want LineKind
	}{
		{"", KindBlank},
		{"   ", KindBlank},
		{"# Time Log 2025-2026", KindTitle},
		{"## August 2025", KindMonth},
		{"### 2025-08-01", KindDate},
		{"#### Details", KindText},
		{"##notes", KindText},
		{"###x", KindText},
		{"##", KindText},
		{"#hashtag", KindText},
		{"- **09:00-10:00**: Task", KindEntry},
		{"  - Notes: hi", KindContinuation},
		{"\tindented", KindContinuation},
		{"- plain list item", KindText},
		{"Some prose", KindText},
	}

	for _, tt := range tests {
		if got := Classify(tt.line); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestParseEntryLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    EntryLine
		wantErr bool
	}{
		{
			name: "full",
			line: "- **09:00-10:00**: Write report [[Website]] [writing, docs] - first draft",
			want: EntryLine{Start: 540, End: 600, Task: "Write report", Project: "Website", Tags: []string{"writing", "docs"}, Notes: "first draft"},
		},
		{
			name: "task only",
			line: "- **09:00-10:00**: Email",
			want: EntryLine{Start: 540, End: 600, Task: "Email"},
		},
		{
			name: "open",
			line: "- **10:30-ONGOING**: Review PRs [[Website]]",
			want: EntryLine{Start: 630, Open: true, Task: "Review PRs", Project: "Website"},
		},
		{
			name: "tags without project",
			line: "- **13:00-14:00**: Reading [research]",
			want: EntryLine{Start: 780, End: 840, Task: "Reading", Tags: []string{"research"}},
		},
		{
			name: "trailing notes only",
			line: "- **13:00-14:00**: Call - with Ana",
			want: EntryLine{Start: 780, End: 840, Task: "Call", Notes: "with Ana"},
		},
		{
			name: "untokenizable tail becomes task",
			line: "- **13:00-14:00**: Fix [bug] in parser",
			want: EntryLine{Start: 780, End: 840, Task: "Fix [bug] in parser"},
		},
		{
			name: "overnight",
			line: "- **23:00-01:00**: Deploy",
			want: EntryLine{Start: 1380, End: 60, Task: "Deploy"},
		},
		{name: "unpadded start", line: "- **9:00-10:00**: Task", wantErr: true},
		{name: "unpadded minutes", line: "- **09:0-10:00**: Task", wantErr: true},
		{name: "out of range", line: "- **09:00-24:00**: Task", wantErr: true},
		{name: "missing end", line: "- **09:00**: Task", wantErr: true},
		{name: "missing colon", line: "- **09:00-10:00** Task", wantErr: true},
		{name: "empty task", line: "- **09:00-10:00**: ", wantErr: true},
		{name: "unterminated", line: "- **09:00-10:00: Task", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEntryLine(tt.line)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseEntryLine(%q) = %+v, want error", tt.line, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEntryLine(%q) failed: %v", tt.line, err)
			}
			if got.Start != tt.want.Start || got.Open != tt.want.Open || (!got.Open && got.End != tt.want.End) {
				t.Errorf("times = %s-%s open=%v, want %s-%s open=%v", got.Start, got.End, got.Open, tt.want.Start, tt.want.End, tt.want.Open)
			}
			if got.Task != tt.want.Task {
				t.Errorf("Task = %q, want %q", got.Task, tt.want.Task)
			}
			if got.Project != tt.want.Project {
				t.Errorf("Project = %q, want %q", got.Project, tt.want.Project)
			}
			if got.Notes != tt.want.Notes {
				t.Errorf("Notes = %q, want %q", got.Notes, tt.want.Notes)
			}
			if len(got.Tags) != len(tt.want.Tags) {
				t.Fatalf("Tags = %v, want %v", got.Tags, tt.want.Tags)
			}
			for i := range got.Tags {
				if got.Tags[i] != tt.want.Tags[i] {
					t.Errorf("Tags[%d] = %q, want %q", i, got.Tags[i], tt.want.Tags[i])
				}
			}
		})
	}
}

func TestParseHeaders(t *testing.T) {
	if _, err := ParseDateHeader("### 2025-08-01"); err != nil {
		t.Errorf("valid date header rejected: %v", err)
	}
	for _, bad := range []string{"### 2025-8-1", "### August 1", "###"} {
		if _, err := ParseDateHeader(bad); err == nil {
			t.Errorf("ParseDateHeader(%q) accepted", bad)
		}
	}

	m, err := ParseMonthHeader("## August 2025")
	if err != nil {
		t.Fatalf("valid month header rejected: %v", err)
	}
	if m.Month() != 8 || m.Year() != 2025 {
		t.Errorf("ParseMonthHeader = %v", m)
	}
	if _, err := ParseMonthHeader("## Aug 2025"); err == nil {
		t.Error("abbreviated month accepted")
	}
}
