package sync

import "context"

// Syncer rebuilds the index from the text sources.
//
// The syncer is resilient: a file that cannot be read or parsed is reported
// in Result.Errors and skipped, and the rest of the files are still
// indexed. Only database failures and context cancellation are returned as
// errors.
//
// Calling rebuild methods concurrently on the same index is not supported.
type Syncer interface {
	// Initialize creates the schema, waits for the index to be ready and
	// runs IndexAllData if the index is empty. An index that already holds
	// data is left alone; use IndexChanged or IndexAllData to refresh it.
	//
	// Example:
	//   res, err := syncer.Initialize(ctx)
	Initialize(ctx context.Context) (*Result, error)

	// IndexAllData discards the index and re-indexes every project file,
	// then every log file in fiscal year order. Running it twice on the
	// same files yields the same rows.
	//
	// Example:
	//   res, err := syncer.IndexAllData(ctx)
	//   if err == nil && res.Err() != nil { ... } // some files failed
	IndexAllData(ctx context.Context) (*Result, error)

	// IndexChanged re-indexes only files whose content hash changed since
	// they were last indexed and drops the rows of files that no longer
	// exist.
	IndexChanged(ctx context.Context) (*Result, error)

	// SyncFile re-indexes a single log or project file.
	//
	// Example:
	//   res, err := syncer.SyncFile(ctx, "/data/logs/2025-2026.md")
	SyncFile(ctx context.Context, path string) (*Result, error)

	// RemoveFile drops everything indexed from path. Returns nil if
	// nothing was indexed from it (idempotent).
	RemoveFile(ctx context.Context, path string) error
}
