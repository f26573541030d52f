package sync

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/timelog/tl/internal/timelog/check"
	"github.com/timelog/tl/internal/timelog/db"
	"github.com/timelog/tl/internal/timelog/logfile"
	"github.com/timelog/tl/internal/timelog/schema"
)

// Dirs locates the text sources.
type Dirs struct {
	Logs     string
	Projects string
}

// syncer implements the Syncer interface.
type syncer struct {
	db     *db.DB
	dirs   Dirs
	logger *log.Logger
}

// New creates a new Syncer over database.
//
// If logger is nil, a default logger writing to stderr is used.
//
// Example:
//
//	database, err := db.Open("index.db")
//	if err != nil {
//	    return err
//	}
//	syncer := sync.New(database, sync.Dirs{Logs: "logs", Projects: "projects"}, nil)
//	res, err := syncer.Initialize(ctx)
func New(database *db.DB, dirs Dirs, logger *log.Logger) Syncer {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &syncer{
		db: database,
		dirs: Dirs{
			Logs:     filepath.Clean(dirs.Logs),
			Projects: filepath.Clean(dirs.Projects),
		},
		logger: logger,
	}
}

// Initialize implements Syncer.Initialize.
func (s *syncer) Initialize(ctx context.Context) (*Result, error) {
	if err := s.db.InitSchemaContext(ctx); err != nil {
		return nil, err
	}
	if err := s.db.WaitReady(ctx); err != nil {
		return nil, err
	}

	empty, err := s.db.IsEmpty(ctx)
	if err != nil {
		return nil, err
	}
	if !empty {
		return &Result{}, nil
	}

	s.logger.Printf("Index is empty; building it from %s", s.dirs.Logs)
	res, err := s.IndexAllData(ctx)
	if err != nil {
		return nil, err
	}
	res.Bootstrapped = true
	return res, nil
}

// IndexAllData implements Syncer.IndexAllData.
func (s *syncer) IndexAllData(ctx context.Context) (*Result, error) {
	s.logger.Printf("Starting full rebuild from logs=%s, projects=%s", s.dirs.Logs, s.dirs.Projects)

	if err := s.db.ResetContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to reset index: %w", err)
	}

	projects, logs, err := s.sources()
	if err != nil {
		return nil, err
	}

	res := &Result{}
	// Projects go first so entries can be matched to them.
	for _, path := range append(projects, logs...) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Printf("WARNING: Failed to read %s: %v", path, err)
			res.fail(path, fmt.Errorf("failed to read file: %w", err))
			continue
		}
		if err := s.indexFile(ctx, path, data, res); err != nil {
			return nil, err
		}
	}

	s.logResult("Full rebuild", res)
	return res, nil
}

// IndexChanged implements Syncer.IndexChanged.
func (s *syncer) IndexChanged(ctx context.Context) (*Result, error) {
	projects, logs, err := s.sources()
	if err != nil {
		return nil, err
	}

	res := &Result{}
	present := make(map[string]bool)
	for _, path := range append(projects, logs...) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		present[path] = true

		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Printf("WARNING: Failed to read %s: %v", path, err)
			res.fail(path, fmt.Errorf("failed to read file: %w", err))
			continue
		}

		old, ok, err := s.db.FileHash(ctx, path)
		if err != nil {
			return nil, err
		}
		if ok && old == hashContent(data) {
			res.FilesUnchanged++
			continue
		}
		if err := s.indexFile(ctx, path, data, res); err != nil {
			return nil, err
		}
	}

	indexed, err := s.db.ListSourceFiles(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range indexed {
		if present[f.Path] {
			continue
		}
		if err := s.RemoveFile(ctx, f.Path); err != nil {
			return nil, err
		}
		res.FilesRemoved++
	}

	s.logResult("Incremental sync", res)
	return res, nil
}

// SyncFile implements Syncer.SyncFile.
func (s *syncer) SyncFile(ctx context.Context, path string) (*Result, error) {
	path = filepath.Clean(path)
	res := &Result{}

	data, err := os.ReadFile(path)
	if err != nil {
		res.fail(path, fmt.Errorf("failed to read file: %w", err))
		return res, nil
	}
	if err := s.indexFile(ctx, path, data, res); err != nil {
		return nil, err
	}
	return res, nil
}

// RemoveFile implements Syncer.RemoveFile.
func (s *syncer) RemoveFile(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	if err := s.db.DeleteSource(ctx, path); err != nil {
		return fmt.Errorf("failed to remove %s from index: %w", path, err)
	}
	s.logger.Printf("Removed from index: %s", path)
	return nil
}

// sources lists the project and log files, each sorted by name. Log file
// names are fiscal year labels, so logs come out in fiscal year order.
func (s *syncer) sources() (projects, logs []string, err error) {
	if projects, err = schema.ListProjectFiles(s.dirs.Projects); err != nil {
		return nil, nil, err
	}
	if logs, err = schema.ListLogFiles(s.dirs.Logs); err != nil {
		return nil, nil, err
	}
	return projects, logs, nil
}

// indexFile indexes one file into res. File level problems are recorded in
// res; only database failures are returned.
func (s *syncer) indexFile(ctx context.Context, path string, data []byte, res *Result) error {
	switch filepath.Dir(path) {
	case s.dirs.Logs:
		return s.indexLog(ctx, path, data, res)
	case s.dirs.Projects:
		return s.indexProject(ctx, path, data, res)
	}
	res.fail(path, fmt.Errorf("not in the logs or projects directory"))
	return nil
}

func (s *syncer) indexLog(ctx context.Context, path string, data []byte, res *Result) error {
	parsed, err := logfile.Parse(path, string(data))
	if err != nil {
		s.logger.Printf("WARNING: Failed to parse %s: %v", path, err)
		res.fail(path, err)
		return nil
	}

	for _, w := range parsed.Warnings {
		res.warn(path, w.Line, "skipped line: %s: %q", w.Reason, w.Content)
	}
	for _, o := range check.OverlapsByDate(parsed.Entries) {
		res.warn(path, o.Second.Line, "overlap: %s", o)
	}

	if err := s.db.ReplaceFileEntries(ctx, path, parsed.Entries, hashContent(data)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Printf("WARNING: Failed to index %s: %v", path, err)
		res.fail(path, err)
		return nil
	}

	res.FilesIndexed++
	res.Entries += len(parsed.Entries)
	s.logger.Printf("Indexed %s: %d entries, %d open, %d warnings",
		filepath.Base(path), len(parsed.Entries), len(parsed.Open), len(parsed.Warnings))
	return nil
}

func (s *syncer) indexProject(ctx context.Context, path string, data []byte, res *Result) error {
	p, warnings, err := schema.ParseProjectFile(path, data)
	if err != nil {
		s.logger.Printf("WARNING: Failed to parse %s: %v", path, err)
		res.fail(path, err)
		return nil
	}
	for _, w := range warnings {
		res.warn(path, 0, "%s", w)
	}

	existing, err := s.db.GetProject(ctx, p.Name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return err
	case existing.Path != path:
		res.warn(path, 0, "project %q is also defined in %s; this file wins", p.Name, existing.Path)
	}

	if err := s.db.ReplaceFileProject(ctx, path, p, hashContent(data)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Printf("WARNING: Failed to index %s: %v", path, err)
		res.fail(path, err)
		return nil
	}

	res.FilesIndexed++
	res.Projects++
	s.logger.Printf("Indexed project: %s", p.Name)
	return nil
}

func (s *syncer) logResult(what string, res *Result) {
	s.logger.Printf("%s complete: files=%d (unchanged=%d, removed=%d, failed=%d), entries=%d, projects=%d, warnings=%d",
		what, res.FilesIndexed, res.FilesUnchanged, res.FilesRemoved, len(res.Errors),
		res.Entries, res.Projects, len(res.Warnings))
}

func hashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
