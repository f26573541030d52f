// Package db is the SQLite index of the time log.
//
// The index is a derived projection of the log and project files. It can be
// deleted at any time and rebuilt from the text sources.
//
// Architecture:
//   - Database file: <data_dir>/index.db (embedded SQLite, no cgo)
//   - WAL mode: concurrent readers during a rebuild
//   - Schema: time_entries, projects, source_files tables
//   - Tags are JSON arrays; tag queries use json_each
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/timelog/tl/internal/timelog/schema"
)

// DB wraps the SQLite connection of the index.
type DB struct {
	conn *sql.DB
	path string

	ready     chan struct{}
	readyOnce sync.Once
}

// Open opens or creates the index database at path.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	database, err := db.Open("index.db")
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn:  conn,
		path:  path,
		ready: make(chan struct{}),
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection after a WAL checkpoint.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// Ready returns a channel that is closed once the schema exists.
func (db *DB) Ready() <-chan struct{} {
	return db.ready
}

// WaitReady blocks until the schema exists or ctx is done.
func (db *DB) WaitReady(ctx context.Context) error {
	select {
	case <-db.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("index not ready: %w", ctx.Err())
	}
}

// InitSchema creates the schema if it doesn't exist. It is idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS time_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,            -- YYYY-MM-DD
		start_time TEXT NOT NULL,      -- HH:MM
		end_time TEXT NOT NULL,        -- HH:MM
		duration_hours REAL NOT NULL,
		task TEXT NOT NULL,
		project TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',  -- JSON array
		notes TEXT NOT NULL DEFAULT '',
		source_file TEXT NOT NULL,
		source_line INTEGER NOT NULL DEFAULT 0,
		UNIQUE (date, start_time, end_time, duration_hours, task, project)
	);

	CREATE TABLE IF NOT EXISTS projects (
		project_name TEXT PRIMARY KEY,
		goals TEXT NOT NULL DEFAULT '[]',       -- JSON array
		directions TEXT NOT NULL DEFAULT '[]',  -- JSON array
		tags TEXT NOT NULL DEFAULT '[]',        -- JSON array
		status TEXT NOT NULL DEFAULT '',
		start_date TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		source_file TEXT NOT NULL
	);

	-- Content hashes for incremental sync
	CREATE TABLE IF NOT EXISTS source_files (
		path TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL,
		indexed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_date ON time_entries(date);
	CREATE INDEX IF NOT EXISTS idx_entries_project ON time_entries(project COLLATE NOCASE);
	CREATE INDEX IF NOT EXISTS idx_entries_source ON time_entries(source_file);
	CREATE INDEX IF NOT EXISTS idx_projects_source ON projects(source_file);
	`

	if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.readyOnce.Do(func() { close(db.ready) })
	return nil
}

// Reset removes every row from the index.
func (db *DB) Reset() error {
	return db.ResetContext(context.Background())
}

// ResetContext removes every row with context support.
func (db *DB) ResetContext(ctx context.Context) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"time_entries", "projects", "source_files"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const upsertEntryQuery = `
	INSERT INTO time_entries (
		date, start_time, end_time, duration_hours, task, project,
		tags, notes, source_file, source_line
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(date, start_time, end_time, duration_hours, task, project) DO UPDATE SET
		tags = excluded.tags,
		notes = excluded.notes,
		source_file = excluded.source_file,
		source_line = excluded.source_line
	`

// UpsertEntry inserts a closed entry. Inserting the same entry again
// updates it in place, so rebuilds never duplicate rows.
func (db *DB) UpsertEntry(e *schema.TimeEntry) error {
	return db.UpsertEntryContext(context.Background(), e)
}

// UpsertEntryContext inserts a closed entry with context support.
func (db *DB) UpsertEntryContext(ctx context.Context, e *schema.TimeEntry) error {
	return upsertEntry(ctx, db.conn, e)
}

func upsertEntry(ctx context.Context, ex execer, e *schema.TimeEntry) error {
	if e.Open {
		return fmt.Errorf("cannot index open entry %q", e.Task)
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid entry: %w", err)
	}

	tagsJSON, err := marshalList(e.Tags)
	if err != nil {
		return err
	}

	_, err = ex.ExecContext(ctx, upsertEntryQuery,
		e.DateKey(),
		e.Start.String(),
		e.End.String(),
		e.DurationHours(),
		e.Task,
		e.Project,
		tagsJSON,
		e.Notes,
		e.Source,
		e.Line,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert entry %s %s %q: %w", e.DateKey(), e.Start, e.Task, err)
	}
	return nil
}

// ReplaceFileEntries replaces all entries indexed from path with entries
// and records the file's content hash, in one transaction.
func (db *DB) ReplaceFileEntries(ctx context.Context, path string, entries []schema.TimeEntry, hash string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM time_entries WHERE source_file = ?`, path); err != nil {
		return fmt.Errorf("failed to clear entries of %s: %w", path, err)
	}
	for i := range entries {
		if err := upsertEntry(ctx, tx, &entries[i]); err != nil {
			return err
		}
	}
	if err := setFileHash(ctx, tx, path, hash); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpsertProject inserts or updates a project record.
func (db *DB) UpsertProject(p *schema.ProjectFile) error {
	return db.UpsertProjectContext(context.Background(), p)
}

// UpsertProjectContext inserts or updates a project with context support.
func (db *DB) UpsertProjectContext(ctx context.Context, p *schema.ProjectFile) error {
	return upsertProject(ctx, db.conn, p)
}

// ReplaceFileProject replaces the project indexed from path with p and
// records the file's content hash, in one transaction.
func (db *DB) ReplaceFileProject(ctx context.Context, path string, p *schema.ProjectFile, hash string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE source_file = ?`, path); err != nil {
		return fmt.Errorf("failed to clear project of %s: %w", path, err)
	}
	if err := upsertProject(ctx, tx, p); err != nil {
		return err
	}
	if err := setFileHash(ctx, tx, path, hash); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func upsertProject(ctx context.Context, ex execer, p *schema.ProjectFile) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid project: %w", err)
	}

	var lists [3]string
	for i, l := range [][]string{p.Goals, p.Directions, p.Tags} {
		s, err := marshalList(l)
		if err != nil {
			return err
		}
		lists[i] = s
	}

	query := `
	INSERT INTO projects (
		project_name, goals, directions, tags, status, start_date, summary, source_file
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(project_name) DO UPDATE SET
		goals = excluded.goals,
		directions = excluded.directions,
		tags = excluded.tags,
		status = excluded.status,
		start_date = excluded.start_date,
		summary = excluded.summary,
		source_file = excluded.source_file
	`

	_, err := ex.ExecContext(ctx, query,
		p.Name, lists[0], lists[1], lists[2],
		p.Status, p.StartDate, p.Summary, p.Path,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert project %s: %w", p.Name, err)
	}
	return nil
}

// DeleteSource removes every entry and project indexed from path, along
// with its recorded hash. Returns nil if nothing was indexed from path.
func (db *DB) DeleteSource(ctx context.Context, path string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM time_entries WHERE source_file = ?`,
		`DELETE FROM projects WHERE source_file = ?`,
		`DELETE FROM source_files WHERE path = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, path); err != nil {
			return fmt.Errorf("failed to delete %s from index: %w", path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SourceFile is an indexed source file and the hash of its content.
type SourceFile struct {
	Path      string
	Hash      string
	IndexedAt time.Time
}

// SetFileHash records the content hash of an indexed file.
func (db *DB) SetFileHash(ctx context.Context, path, hash string) error {
	return setFileHash(ctx, db.conn, path, hash)
}

func setFileHash(ctx context.Context, ex execer, path, hash string) error {
	query := `
	INSERT INTO source_files (path, content_hash, indexed_at)
	VALUES (?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		content_hash = excluded.content_hash,
		indexed_at = excluded.indexed_at
	`
	if _, err := ex.ExecContext(ctx, query, path, hash, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to record hash of %s: %w", path, err)
	}
	return nil
}

// FileHash returns the recorded content hash of path. ok is false when the
// file has not been indexed.
func (db *DB) FileHash(ctx context.Context, path string) (hash string, ok bool, err error) {
	err = db.conn.QueryRowContext(ctx, `SELECT content_hash FROM source_files WHERE path = ?`, path).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get hash of %s: %w", path, err)
	}
	return hash, true, nil
}

// ListSourceFiles returns every indexed source file ordered by path.
func (db *DB) ListSourceFiles(ctx context.Context) ([]SourceFile, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT path, content_hash, indexed_at FROM source_files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list source files: %w", err)
	}
	defer rows.Close()

	var files []SourceFile
	for rows.Next() {
		var f SourceFile
		var indexedAt string
		if err := rows.Scan(&f.Path, &f.Hash, &indexedAt); err != nil {
			return nil, fmt.Errorf("failed to scan source file: %w", err)
		}
		f.IndexedAt, _ = time.Parse(time.RFC3339, indexedAt)
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source files: %w", err)
	}
	return files, nil
}

// EntryFilter configures the ListEntries query. Empty fields do not filter.
type EntryFilter struct {
	// Date filters to one YYYY-MM-DD date.
	Date string
	// From and To filter to an inclusive YYYY-MM-DD date range.
	From string
	To   string
	// Project filters by project name, case-insensitively.
	Project string
	// Tag filters to entries whose tag array contains Tag.
	Tag string
	// Limit restricts the number of results (0 = no limit).
	Limit int
}

// ListEntries returns entries matching filter ordered by date and start
// time.
func (db *DB) ListEntries(ctx context.Context, filter EntryFilter) ([]schema.TimeEntry, error) {
	var conditions []string
	var args []any

	if filter.Date != "" {
		conditions = append(conditions, "e.date = ?")
		args = append(args, filter.Date)
	}
	if filter.From != "" {
		conditions = append(conditions, "e.date >= ?")
		args = append(args, filter.From)
	}
	if filter.To != "" {
		conditions = append(conditions, "e.date <= ?")
		args = append(args, filter.To)
	}
	if filter.Project != "" {
		conditions = append(conditions, "e.project = ? COLLATE NOCASE")
		args = append(args, filter.Project)
	}
	if filter.Tag != "" {
		conditions = append(conditions, "EXISTS (SELECT 1 FROM json_each(e.tags) WHERE json_each.value = ?)")
		args = append(args, filter.Tag)
	}

	query := `
	SELECT e.date, e.start_time, e.end_time, e.task, e.project,
	       e.tags, e.notes, e.source_file, e.source_line
	FROM time_entries e
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY e.date ASC, e.start_time ASC, e.id ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]schema.TimeEntry, error) {
	var entries []schema.TimeEntry

	for rows.Next() {
		var e schema.TimeEntry
		var date, start, end, tagsJSON string

		err := rows.Scan(&date, &start, &end, &e.Task, &e.Project,
			&tagsJSON, &e.Notes, &e.Source, &e.Line)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}

		if e.Date, err = schema.ParseDate(date); err != nil {
			return nil, fmt.Errorf("corrupt date %q in index: %w", date, err)
		}
		if e.Start, err = schema.ParseClock(start); err != nil {
			return nil, fmt.Errorf("corrupt start time %q in index: %w", start, err)
		}
		if e.End, err = schema.ParseClock(end); err != nil {
			return nil, fmt.Errorf("corrupt end time %q in index: %w", end, err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &e.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}
	return entries, nil
}

// GetProject retrieves a project by name, case-insensitively.
// Returns sql.ErrNoRows if the project is not indexed.
func (db *DB) GetProject(ctx context.Context, name string) (*schema.ProjectFile, error) {
	query := `
	SELECT project_name, goals, directions, tags, status, start_date, summary, source_file
	FROM projects
	WHERE project_name = ? COLLATE NOCASE
	`
	rows, err := db.conn.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query project %s: %w", name, err)
	}
	defer rows.Close()

	projects, err := scanProjects(rows)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, sql.ErrNoRows
	}
	return projects[0], nil
}

// ListProjects returns every indexed project ordered by name.
func (db *DB) ListProjects(ctx context.Context) ([]*schema.ProjectFile, error) {
	query := `
	SELECT project_name, goals, directions, tags, status, start_date, summary, source_file
	FROM projects
	ORDER BY project_name COLLATE NOCASE
	`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	return scanProjects(rows)
}

func scanProjects(rows *sql.Rows) ([]*schema.ProjectFile, error) {
	var projects []*schema.ProjectFile

	for rows.Next() {
		var p schema.ProjectFile
		var goals, directions, tags string

		err := rows.Scan(&p.Name, &goals, &directions, &tags,
			&p.Status, &p.StartDate, &p.Summary, &p.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}

		for _, l := range []struct {
			raw string
			dst *schema.StringList
		}{{goals, &p.Goals}, {directions, &p.Directions}, {tags, &p.Tags}} {
			var items []string
			if err := json.Unmarshal([]byte(l.raw), &items); err != nil {
				return nil, fmt.Errorf("failed to unmarshal project %s: %w", p.Name, err)
			}
			*l.dst = items
		}

		projects = append(projects, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}
	return projects, nil
}

// GetEntryCount returns the number of indexed entries.
func (db *DB) GetEntryCount() (int, error) {
	return db.GetEntryCountContext(context.Background())
}

// GetEntryCountContext returns the number of indexed entries with context
// support.
func (db *DB) GetEntryCountContext(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM time_entries").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get entry count: %w", err)
	}
	return count, nil
}

// GetProjectCount returns the number of indexed projects.
func (db *DB) GetProjectCount() (int, error) {
	return db.GetProjectCountContext(context.Background())
}

// GetProjectCountContext returns the number of indexed projects with
// context support.
func (db *DB) GetProjectCountContext(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM projects").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get project count: %w", err)
	}
	return count, nil
}

// IsEmpty reports whether the index holds neither entries nor projects.
func (db *DB) IsEmpty(ctx context.Context) (bool, error) {
	entries, err := db.GetEntryCountContext(ctx)
	if err != nil {
		return false, err
	}
	projects, err := db.GetProjectCountContext(ctx)
	if err != nil {
		return false, err
	}
	return entries == 0 && projects == 0, nil
}

func marshalList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to marshal list: %w", err)
	}
	return string(data), nil
}
