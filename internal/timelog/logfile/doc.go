// Package logfile reads and edits the plain text time log files.
//
// Each fiscal year has one log file:
//
//	# Time Log 2025-2026
//
//	## August 2025
//
//	### 2025-08-01
//
//	- **09:00-10:00**: Write report [[Website]] [writing, docs] - first draft
//	  - Notes: sent for review
//	- **10:30-ONGOING**: Review PRs [[Website]]
//
// Lines are classified by prefix (Classify) and entry lines are tokenized by
// ParseEntryLine. Clock times must be two digit zero padded.
//
// Parse is strict about structure and lenient about content: a malformed
// month or date header fails the file with a *schema.FormatError, while a
// malformed entry line is skipped and reported as a Warning.
//
// The writers (InsertEntry, CloseOpenEntry) are pure string transforms. They
// never duplicate a month or date section and keep entries ordered by start
// time.
package logfile
