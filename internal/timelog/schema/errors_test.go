package schema

import (
	"errors"
	"fmt"
	"testing"
)

func TestFormatError(t *testing.T) {
	err := &FormatError{Path: "2025-2026.md", Line: 7, Content: "### 2025-8-1", Reason: "malformed date header"}

	if !errors.Is(err, ErrFormat) {
		t.Error("FormatError should match ErrFormat")
	}
	want := `2025-2026.md:7: malformed date header: "### 2025-8-1"`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !IsFatal(fmt.Errorf("parse: %w", err)) {
		t.Error("wrapped FormatError should be fatal")
	}
}

func TestPartialIndexError(t *testing.T) {
	err := &PartialIndexError{Failures: []FileFailure{
		{Path: "a.md", Err: errors.New("boom")},
	}}

	if !errors.Is(err, ErrPartialIndex) {
		t.Error("PartialIndexError should match ErrPartialIndex")
	}
	if IsFatal(err) {
		t.Error("partial index errors are never fatal")
	}
}

func TestIsUserActionRequired(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrConflict, true},
		{fmt.Errorf("finish: %w", ErrNotFound), true},
		{Validationf("bad"), true},
		{&FormatError{}, true},
		{errors.New("disk full"), false},
		{ErrPartialIndex, false},
	}

	for _, tt := range tests {
		if got := IsUserActionRequired(tt.err); got != tt.want {
			t.Errorf("IsUserActionRequired(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
