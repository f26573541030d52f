// Package logging builds the component loggers used across tl.
//
// Every component takes a *log.Logger with a "[component] " prefix. The
// loggers made here share one lumberjack-rotated file; in verbose mode they
// also write to stderr.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the shared log output.
type Options struct {
	// File is the log file path. Empty disables file output.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Verbose tees log output to Stderr.
	Verbose bool
	Stderr  io.Writer
}

// Factory hands out component loggers writing to one destination.
type Factory struct {
	out    io.Writer
	closer io.Closer
}

// New opens the shared log destination. With no file and no verbose flag
// the loggers discard everything.
func New(opts Options) (*Factory, error) {
	var writers []io.Writer
	var closer io.Closer

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, err
		}
		rotated := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		writers = append(writers, rotated)
		closer = rotated
	}
	if opts.Verbose {
		stderr := opts.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}
		writers = append(writers, stderr)
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		out = io.Discard
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}
	return &Factory{out: out, closer: closer}, nil
}

// Discard returns a factory whose loggers write nowhere.
func Discard() *Factory {
	return &Factory{out: io.Discard}
}

// Logger returns a logger prefixed with "[component] ".
func (f *Factory) Logger(component string) *log.Logger {
	return log.New(f.out, "["+component+"] ", log.LstdFlags)
}

// Writer returns the shared destination.
func (f *Factory) Writer() io.Writer {
	return f.out
}

// Close closes the log file, if any.
func (f *Factory) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}
