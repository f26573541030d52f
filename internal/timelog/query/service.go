// Package query is the entry point for callers of the time log: it
// writes through the tracker and answers summaries from the index.
//
// Every write is followed by a sync of the touched file, so queries see
// the change immediately. Totals are summed from the returned rows on each
// call; nothing aggregated is stored.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/timelog/tl/internal/timelog/check"
	"github.com/timelog/tl/internal/timelog/db"
	"github.com/timelog/tl/internal/timelog/schema"
	"github.com/timelog/tl/internal/timelog/sync"
	"github.com/timelog/tl/internal/timelog/tracker"
)

// Service answers time log queries over one index handle.
type Service struct {
	db      *db.DB
	tracker *tracker.Tracker
	syncer  sync.Syncer
	logger  *log.Logger
}

// New creates a Service. The index handle is shared by the service's
// syncer and its queries; the caller owns it and closes it.
//
// If logger is nil, a default logger writing to stderr is used.
func New(database *db.DB, trk *tracker.Tracker, dirs sync.Dirs, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stderr, "[query] ", log.LstdFlags)
	}
	return &Service{
		db:      database,
		tracker: trk,
		syncer:  sync.New(database, dirs, logger),
		logger:  logger,
	}
}

// Syncer returns the syncer bound to the service's index.
func (s *Service) Syncer() sync.Syncer {
	return s.syncer
}

// Initialize prepares the index, rebuilding it if it is empty.
func (s *Service) Initialize(ctx context.Context) (*sync.Result, error) {
	return s.syncer.Initialize(ctx)
}

// Reindex refreshes the index. A full reindex discards and rebuilds it;
// otherwise only changed and deleted files are processed.
func (s *Service) Reindex(ctx context.Context, full bool) (*sync.Result, error) {
	if full {
		return s.syncer.IndexAllData(ctx)
	}
	return s.syncer.IndexChanged(ctx)
}

// Start starts a new active entry.
func (s *Service) Start(ctx context.Context, opts tracker.StartOptions) (*tracker.Change, error) {
	change, err := s.tracker.Start(ctx, opts)
	if err != nil {
		return nil, err
	}
	s.syncChange(ctx, change)
	return change, nil
}

// Finish closes the active entry.
func (s *Service) Finish(ctx context.Context, opts tracker.FinishOptions) (*tracker.Change, error) {
	change, err := s.tracker.Finish(ctx, opts)
	if err != nil {
		return nil, err
	}
	s.syncChange(ctx, change)
	return change, nil
}

// Add records an entry that is already closed.
func (s *Service) Add(ctx context.Context, opts tracker.AddOptions) (*tracker.Change, error) {
	change, err := s.tracker.Add(ctx, opts)
	if err != nil {
		return nil, err
	}
	s.syncChange(ctx, change)
	return change, nil
}

// Status reports the active entry, if any.
func (s *Service) Status(ctx context.Context) (*tracker.Status, error) {
	return s.tracker.Status(ctx)
}

// syncChange re-indexes the files touched by a write. The write already
// succeeded, so sync problems are logged rather than returned; the next
// reindex repairs them.
func (s *Service) syncChange(ctx context.Context, change *tracker.Change) {
	paths := []string{change.Path}
	if change.Project != nil {
		paths = append(paths, change.Project.Path)
	}
	for _, path := range paths {
		res, err := s.syncer.SyncFile(ctx, path)
		if err == nil {
			err = res.Err()
		}
		if err != nil {
			s.logger.Printf("WARNING: index not updated for %s: %v", path, err)
		}
	}
}

// DailySummary is the report for one date.
type DailySummary struct {
	Date       string
	Entries    []schema.TimeEntry
	Gaps       []check.Gap
	Overlaps   []check.Overlap
	TotalHours float64
	GapHours   float64
}

// DailySummary returns the entries, gaps and totals of one date.
func (s *Service) DailySummary(ctx context.Context, date time.Time) (*DailySummary, error) {
	key := date.Format(schema.DateLayout)
	entries, err := s.db.ListEntries(ctx, db.EntryFilter{Date: key})
	if err != nil {
		return nil, err
	}

	r := check.Day(key, entries)
	return &DailySummary{
		Date:       key,
		Entries:    r.Entries,
		Gaps:       r.Gaps,
		Overlaps:   r.Overlaps,
		TotalHours: r.LoggedHours,
		GapHours:   r.GapHours,
	}, nil
}

// ProjectSummary is the report for one project.
type ProjectSummary struct {
	Name string

	// Project is the indexed project file, or nil when the project only
	// appears in entries.
	Project *schema.ProjectFile

	Entries    []schema.TimeEntry
	TotalHours float64
}

// ProjectSummary returns every entry of a project, matched by name
// case-insensitively.
func (s *Service) ProjectSummary(ctx context.Context, name string) (*ProjectSummary, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, schema.Validationf("project name is required")
	}

	project, err := s.db.GetProject(ctx, name)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	entries, err := s.db.ListEntries(ctx, db.EntryFilter{Project: name})
	if err != nil {
		return nil, err
	}

	if project != nil {
		name = project.Name
	}
	return &ProjectSummary{
		Name:       name,
		Project:    project,
		Entries:    entries,
		TotalHours: totalHours(entries),
	}, nil
}

// Projects returns every indexed project.
func (s *Service) Projects(ctx context.Context) ([]*schema.ProjectFile, error) {
	return s.db.ListProjects(ctx)
}

// TagSummary is the report for one tag.
type TagSummary struct {
	Tag        string
	Entries    []schema.TimeEntry
	TotalHours float64

	// ProjectHours splits the total by project; untagged work is under "".
	ProjectHours map[string]float64
}

// TagSummary returns every entry carrying tag.
func (s *Service) TagSummary(ctx context.Context, tag string) (*TagSummary, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, schema.Validationf("tag is required")
	}

	entries, err := s.db.ListEntries(ctx, db.EntryFilter{Tag: tag})
	if err != nil {
		return nil, err
	}

	byProject := make(map[string]float64)
	for _, e := range entries {
		byProject[e.Project] += e.DurationHours()
	}
	return &TagSummary{
		Tag:          tag,
		Entries:      entries,
		TotalHours:   totalHours(entries),
		ProjectHours: byProject,
	}, nil
}

// DayTotal is the logged time of one date.
type DayTotal struct {
	Date  string
	Hours float64
}

// RangeSummary is the report for a date range.
type RangeSummary struct {
	Start      string
	End        string
	Entries    []schema.TimeEntry
	TotalHours float64

	// Days lists the dates that have entries, in order.
	Days []DayTotal
}

// RangeQuery returns the entries dated from start to end, both inclusive.
func (s *Service) RangeQuery(ctx context.Context, start, end time.Time) (*RangeSummary, error) {
	from, to := start.Format(schema.DateLayout), end.Format(schema.DateLayout)
	if from > to {
		return nil, schema.Validationf("range start %s is after end %s", from, to)
	}

	entries, err := s.db.ListEntries(ctx, db.EntryFilter{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("failed to query range %s..%s: %w", from, to, err)
	}

	var days []DayTotal
	for _, e := range entries {
		key := e.DateKey()
		if len(days) == 0 || days[len(days)-1].Date != key {
			days = append(days, DayTotal{Date: key})
		}
		days[len(days)-1].Hours += e.DurationHours()
	}

	return &RangeSummary{
		Start:      from,
		End:        to,
		Entries:    entries,
		TotalHours: totalHours(entries),
		Days:       days,
	}, nil
}

func totalHours(entries []schema.TimeEntry) float64 {
	var total float64
	for _, e := range entries {
		total += e.DurationHours()
	}
	return total
}
