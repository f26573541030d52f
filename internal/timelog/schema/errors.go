package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by time log operations.
//
// These errors can be checked using errors.Is() for proper error handling:
//
//	if errors.Is(err, schema.ErrConflict) {
//	    // Another entry is already running
//	}
var (
	// ErrFormat is returned when log text does not follow the log grammar.
	// A malformed date or month header makes the whole file unusable; a
	// malformed entry line only produces a warning.
	ErrFormat = errors.New("malformed log file")

	// ErrConflict is returned when starting an entry while another entry
	// is still open.
	ErrConflict = errors.New("an entry is already active")

	// ErrNotFound is returned when finishing while no entry is open.
	ErrNotFound = errors.New("no active entry")

	// ErrValidation is returned for rejected input values such as a
	// malformed clock time or an end time that is not after the start.
	ErrValidation = errors.New("invalid input")

	// ErrPartialIndex is returned when some source files could not be
	// indexed. The rest of the index is still usable.
	ErrPartialIndex = errors.New("index is incomplete")
)

// FormatError describes a structural problem in a log file.
type FormatError struct {
	Path    string
	Line    int
	Content string
	Reason  string
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Content)
	}
	return fmt.Sprintf("%s:%d: %s: %q", e.Path, e.Line, e.Reason, e.Content)
}

// Unwrap lets errors.Is match ErrFormat.
func (e *FormatError) Unwrap() error { return ErrFormat }

// FileFailure records one source file that could not be indexed.
type FileFailure struct {
	Path string
	Err  error
}

// PartialIndexError collects per-file failures of an indexing run.
type PartialIndexError struct {
	Failures []FileFailure
}

func (e *PartialIndexError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Path, f.Err))
	}
	return fmt.Sprintf("%d file(s) failed to index: %s", len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap lets errors.Is match ErrPartialIndex.
func (e *PartialIndexError) Unwrap() error { return ErrPartialIndex }

// Validationf builds an ErrValidation error with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsUserActionRequired returns true if the error is caused by the state of
// the log files or by user input and can be fixed by the user.
func IsUserActionRequired(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrFormat):
		return true
	}
	return false
}

// IsFatal returns true if the error prevents any further work with the
// affected data. Partial index failures are never fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrPartialIndex) {
		return false
	}

	var fe *FormatError
	return errors.As(err, &fe)
}
