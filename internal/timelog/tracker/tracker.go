// Package tracker starts and finishes the single active time entry.
//
// There is no stored pointer to the active entry. Every operation scans all
// log files for an entry whose end is the open sentinel, so a crash between
// start and finish never leaves the tracker confused: the log text is the
// only state.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/timelog/tl/internal/timelog/logfile"
	"github.com/timelog/tl/internal/timelog/schema"
)

// Config configures a Tracker.
type Config struct {
	// LogsDir holds the fiscal year log files.
	LogsDir string

	// ProjectsDir holds project files. When empty, project files are
	// never created.
	ProjectsDir string

	// Location is used for "today" and "now". Defaults to time.Local.
	Location *time.Location

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// Logger receives warnings. Defaults to stderr.
	Logger *log.Logger
}

// Tracker edits log files to start, finish and add entries.
type Tracker struct {
	logsDir     string
	projectsDir string
	loc         *time.Location
	now         func() time.Time
	logger      *log.Logger
}

// New creates a Tracker.
func New(cfg Config) *Tracker {
	t := &Tracker{
		logsDir:     cfg.LogsDir,
		projectsDir: cfg.ProjectsDir,
		loc:         cfg.Location,
		now:         cfg.Now,
		logger:      cfg.Logger,
	}
	if t.loc == nil {
		t.loc = time.Local
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.logger == nil {
		t.logger = log.New(os.Stderr, "[tracker] ", log.LstdFlags)
	}
	return t
}

// StartOptions describes a new open entry. Date defaults to today and
// StartTime to the current clock time.
type StartOptions struct {
	Task      string
	Project   string
	Tags      []string
	Notes     string
	Date      string // YYYY-MM-DD
	StartTime string // HH:MM
}

// FinishOptions closes the open entry. EndTime defaults to the current
// clock time. Notes are appended to the notes already on the entry.
type FinishOptions struct {
	EndTime string // HH:MM
	Notes   string
}

// AddOptions describes an entry that is already closed. An end time before
// the start time runs past midnight.
type AddOptions struct {
	Task      string
	Project   string
	Tags      []string
	Notes     string
	Date      string // YYYY-MM-DD
	StartTime string // HH:MM
	EndTime   string // HH:MM
}

// Change describes a write to a log file.
type Change struct {
	Entry schema.TimeEntry
	Path  string

	// Project is set when a project file was created for the entry.
	Project *schema.ProjectFile
}

// State is the tracker state.
type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Status is the current tracker state.
type Status struct {
	State State

	// Entry is the active entry, or nil when idle.
	Entry *schema.TimeEntry

	// Elapsed is the time since the active entry started.
	Elapsed time.Duration

	// Others lists further open entries. Only hand edits produce them.
	Others []schema.TimeEntry
}

// LogPath returns the log file that holds entries for date.
func (t *Tracker) LogPath(date time.Time) string {
	return filepath.Join(t.logsDir, schema.LogFileName(schema.FiscalYearLabel(date)))
}

// OpenEntries scans every log file and returns the open entries ordered by
// date and start time.
func (t *Tracker) OpenEntries(ctx context.Context) ([]schema.TimeEntry, error) {
	paths, err := schema.ListLogFiles(t.logsDir)
	if err != nil {
		return nil, err
	}

	var open []schema.TimeEntry
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read log file %s: %w", path, err)
		}
		open = append(open, logfile.ScanOpen(path, string(data))...)
	}

	sort.SliceStable(open, func(i, j int) bool {
		if !open[i].Date.Equal(open[j].Date) {
			return open[i].Date.Before(open[j].Date)
		}
		return open[i].Start < open[j].Start
	})
	return open, nil
}

// Status reports whether an entry is active.
func (t *Tracker) Status(ctx context.Context) (*Status, error) {
	open, err := t.OpenEntries(ctx)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return &Status{State: Idle}, nil
	}

	e := open[0]
	return &Status{
		State:   Active,
		Entry:   &e,
		Elapsed: t.elapsed(e),
		Others:  open[1:],
	}, nil
}

func (t *Tracker) elapsed(e schema.TimeEntry) time.Duration {
	now := t.now().In(t.loc)
	if e.Date.IsZero() {
		return time.Duration(schema.DurationMinutes(e.Start, schema.ClockOf(now))) * time.Minute
	}
	started := time.Date(e.Date.Year(), e.Date.Month(), e.Date.Day(), int(e.Start)/60, int(e.Start)%60, 0, 0, t.loc)
	if d := now.Sub(started); d > 0 {
		return d.Truncate(time.Minute)
	}
	return 0
}

// Start writes a new open entry. It fails with schema.ErrConflict while any
// log file holds an open entry.
func (t *Tracker) Start(ctx context.Context, opts StartOptions) (*Change, error) {
	now := t.now().In(t.loc)
	date, err := dateOrToday(opts.Date, now)
	if err != nil {
		return nil, err
	}
	start, err := clockOrNow(opts.StartTime, now)
	if err != nil {
		return nil, err
	}

	open, err := t.OpenEntries(ctx)
	if err != nil {
		return nil, err
	}
	if len(open) > 0 {
		return nil, conflict(open[0])
	}

	e := schema.TimeEntry{
		Date:    date,
		Start:   start,
		Open:    true,
		Task:    opts.Task,
		Project: opts.Project,
		Tags:    schema.NormalizeTags(opts.Tags),
		Notes:   opts.Notes,
	}
	change, err := t.insert(ctx, e)
	if err != nil {
		return nil, err
	}

	t.logger.Printf("Started %q at %s on %s", e.Task, e.Start, e.DateKey())
	return change, nil
}

// Finish closes the open entry. It fails with schema.ErrNotFound when no
// entry is open and with schema.ErrValidation when the end time is not
// after the start time. When several entries are open the earliest one is
// closed.
func (t *Tracker) Finish(ctx context.Context, opts FinishOptions) (*Change, error) {
	now := t.now().In(t.loc)
	end, err := clockOrNow(opts.EndTime, now)
	if err != nil {
		return nil, err
	}

	open, err := t.OpenEntries(ctx)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, fmt.Errorf("%w: nothing to finish", schema.ErrNotFound)
	}
	if len(open) > 1 {
		t.logger.Printf("WARNING: %d open entries found; finishing the earliest (%s:%d)",
			len(open), open[0].Source, open[0].Line)
	}
	active := open[0]

	data, err := os.ReadFile(active.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to read log file %s: %w", active.Source, err)
	}

	content, closed, err := logfile.CloseOpenEntry(string(data), active.Line, end, opts.Notes)
	if err != nil {
		var fe *schema.FormatError
		if errors.As(err, &fe) {
			fe.Path = active.Source
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := writeFileAtomic(active.Source, content); err != nil {
		return nil, err
	}

	closed.Date = active.Date
	closed.Source = active.Source
	t.logger.Printf("Finished %q at %s (%.2fh)", closed.Task, closed.End, closed.DurationHours())
	return &Change{Entry: *closed, Path: active.Source}, nil
}

// Add writes an entry that is already closed. It does not look at the
// active entry.
func (t *Tracker) Add(ctx context.Context, opts AddOptions) (*Change, error) {
	now := t.now().In(t.loc)
	date, err := dateOrToday(opts.Date, now)
	if err != nil {
		return nil, err
	}
	if opts.StartTime == "" || opts.EndTime == "" {
		return nil, schema.Validationf("start and end times are required")
	}
	start, err := schema.ParseClock(opts.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := schema.ParseClock(opts.EndTime)
	if err != nil {
		return nil, err
	}
	if start == end {
		return nil, schema.Validationf("end time %s equals start time", end)
	}

	e := schema.TimeEntry{
		Date:    date,
		Start:   start,
		End:     end,
		Task:    opts.Task,
		Project: opts.Project,
		Tags:    schema.NormalizeTags(opts.Tags),
		Notes:   opts.Notes,
	}
	change, err := t.insert(ctx, e)
	if err != nil {
		return nil, err
	}

	t.logger.Printf("Added %q %s-%s on %s", e.Task, e.Start, e.End, e.DateKey())
	return change, nil
}

// insert adds e to its fiscal year log file and creates the project file
// if needed.
func (t *Tracker) insert(ctx context.Context, e schema.TimeEntry) (*Change, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	path := t.LogPath(e.Date)
	content, err := readOrCreate(path, schema.FiscalYearLabel(e.Date))
	if err != nil {
		return nil, err
	}

	content, line, err := logfile.InsertEntry(content, e)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(t.logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	if err := writeFileAtomic(path, content); err != nil {
		return nil, err
	}

	e.Source = path
	e.Line = line
	change := &Change{Entry: e, Path: path}

	if e.Project != "" && t.projectsDir != "" {
		p, created, err := schema.EnsureProjectFile(t.projectsDir, e.Project, e.Date)
		switch {
		case err != nil:
			t.logger.Printf("WARNING: failed to create project file for %q: %v", e.Project, err)
		case created:
			t.logger.Printf("Created project file %s", p.Path)
			change.Project = p
		}
	}
	return change, nil
}

func conflict(active schema.TimeEntry) error {
	where := active.DateKey()
	if active.Date.IsZero() {
		where = fmt.Sprintf("%s:%d", filepath.Base(active.Source), active.Line)
	}
	return fmt.Errorf("%w: %q started at %s on %s; finish it first",
		schema.ErrConflict, active.Task, active.Start, where)
}

func dateOrToday(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return schema.DateOf(now), nil
	}
	return schema.ParseDate(s)
}

func clockOrNow(s string, now time.Time) (schema.Clock, error) {
	if s == "" {
		return schema.ClockOf(now), nil
	}
	return schema.ParseClock(s)
}

func readOrCreate(path, label string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return logfile.NewLogFile(label), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read log file %s: %w", path, err)
	}
	return string(data), nil
}

// writeFileAtomic replaces path through a temp file in the same directory.
func writeFileAtomic(path, content string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
