// Package schema defines the data model shared by the time log packages.
//
// # Log files
//
// Work is recorded in Markdown files, one per fiscal year (July 1 to
// June 30), named after the fiscal year label: 2025-2026.md. The grammar of
// those files lives in package logfile; this package holds the values the
// grammar produces:
//
//   - Clock: a time of day, strictly written as zero padded HH:MM
//   - TimeEntry: one entry line plus its notes
//   - FiscalYearLabel: the file a date belongs to
//
// An entry whose end time is OpenSentinel is the active entry. At most one
// may exist across all log files.
//
// # Project files
//
// Projects are described in projects/*.md with YAML front matter:
//
//	---
//	name: Website
//	goals: [ship v2]
//	directions: [accessibility first]
//	tags: [web, client]
//	status: active
//	start_date: 2025-08-01
//	summary: Public site rebuild
//	---
//	Free text notes.
//
// List fields accept either a YAML sequence or a comma separated string.
//
// # Errors
//
// ErrFormat, ErrConflict, ErrNotFound, ErrValidation and ErrPartialIndex
// classify every failure reported by the engine; use errors.Is.
package schema
