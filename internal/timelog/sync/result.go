package sync

import (
	"fmt"

	"github.com/timelog/tl/internal/timelog/schema"
)

// Warning is a non-fatal problem found while indexing: a skipped entry
// line, a degraded project field or an overlap between entries.
type Warning struct {
	Path    string
	Line    int
	Message string
}

func (w Warning) String() string {
	if w.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", w.Path, w.Line, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Path, w.Message)
}

// Result reports what an indexing run did.
type Result struct {
	// Bootstrapped is set when Initialize found an empty index and
	// rebuilt it.
	Bootstrapped bool

	FilesIndexed   int
	FilesUnchanged int
	FilesRemoved   int
	Entries        int
	Projects       int

	Warnings []Warning
	Errors   []schema.FileFailure
}

// Err returns a *schema.PartialIndexError when any file failed to index.
func (r *Result) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	return &schema.PartialIndexError{Failures: r.Errors}
}

func (r *Result) fail(path string, err error) {
	r.Errors = append(r.Errors, schema.FileFailure{Path: path, Err: err})
}

func (r *Result) warn(path string, line int, format string, args ...any) {
	r.Warnings = append(r.Warnings, Warning{Path: path, Line: line, Message: fmt.Sprintf(format, args...)})
}
