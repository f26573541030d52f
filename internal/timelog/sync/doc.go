// Package sync builds the SQLite index from the text sources.
//
// Overview
//
// The log and project files are the source of truth. The index is a
// projection of them that serves daily, project, tag and range queries:
//
//	<data_dir>
//	     ├── logs/2025-2026.md     → TimeEntry rows (closed entries only)
//	     └── projects/*.md         → project rows
//	                                      ↓
//	                                   Syncer
//	                                      ↓
//	                                   index.db
//
// Rebuilds
//
// IndexAllData discards the index and re-reads every file. Rows are
// upserted on (date, start_time, end_time, duration_hours, task, project),
// so a rebuild is the universal repair operation and can be repeated
// without duplicating rows.
//
// IndexChanged compares a SHA-256 hash of each file with the hash recorded
// when it was last indexed, re-indexes only changed files and drops the
// rows of deleted files. SyncFile and RemoveFile do the same for a single
// path and are used by the daemon and after tracker writes.
//
// Error Handling
//
// A malformed date or month header makes a log file fail as a whole; the
// failure is recorded in Result.Errors and the other files are still
// indexed. Skipped entry lines, degraded project fields and overlapping
// entries become Result.Warnings. Result.Err returns a
// *schema.PartialIndexError when any file failed.
//
// Without a rebuild, rows of entries that were deleted by hand stay in the
// index until the file is synced again.
package sync
