package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	tlsync "github.com/timelog/tl/internal/timelog/sync"
	"github.com/timelog/tl/internal/timelog/tracker"
)

// Notifier receives index events from the daemon. The dashboard server
// implements it; a nil Notifier drops the events.
type Notifier interface {
	// OnIndexComplete is called after the start-up index and after every
	// sweep that changed something.
	OnIndexComplete(res *tlsync.Result, elapsed time.Duration)

	// OnFileSynced is called after a changed file was re-indexed.
	OnFileSynced(path string, res *tlsync.Result)

	// OnFileRemoved is called after a deleted file was dropped from the
	// index.
	OnFileRemoved(path string)

	// OnActiveEntry is called with the tracker state after a log file
	// changed.
	OnActiveEntry(status *tracker.Status)
}

// StatusSource reports the active entry. *tracker.Tracker implements it.
type StatusSource interface {
	Status(ctx context.Context) (*tracker.Status, error)
}

// Config holds daemon configuration.
type Config struct {
	// DebounceInterval is how long a file must be quiet before it is
	// re-indexed. Editors often write a file several times in a row.
	DebounceInterval time.Duration

	// SweepInterval runs IndexChanged periodically to pick up changes the
	// watcher missed. Zero disables the sweep.
	SweepInterval time.Duration

	// Notifier receives index events. Optional.
	Notifier Notifier

	// Status is asked for the active entry after log changes. Optional.
	Status StatusSource

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 200 * time.Millisecond,
		SweepInterval:    5 * time.Minute,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon keeps the index in step with the text sources while it runs.
type Daemon struct {
	syncer tlsync.Syncer
	dirs   tlsync.Dirs
	config *Config

	watcher       *FileWatcher
	changeQueue   map[string]queuedChange
	changeQueueMu sync.Mutex

	// syncMu serializes syncer calls between the change queue and the sweep.
	syncMu sync.Mutex

	ready chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	stop   sync.Once
}

type queuedChange struct {
	event    FileEvent
	queuedAt time.Time
}

// New creates a Daemon with the default configuration.
//
// dirs must be the same directories the syncer was created with.
func New(syncer tlsync.Syncer, dirs tlsync.Dirs) (*Daemon, error) {
	return NewWithConfig(syncer, dirs, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(syncer tlsync.Syncer, dirs tlsync.Dirs, config *Config) (*Daemon, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if dirs.Logs == "" {
		return nil, fmt.Errorf("logs directory cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}

	watcher, err := NewFileWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		syncer:      syncer,
		dirs:        dirs,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]queuedChange),
		ready:       make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start runs the daemon until ctx is cancelled or Stop is called.
//
// The daemon will:
// 1. Initialize the index, building it if it is empty and catching up on
//    files changed since the last run otherwise
// 2. Start watching the logs and projects directories
// 3. Re-index changed files once they have been quiet for DebounceInterval
// 4. Periodically sweep for changes the watcher missed
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	for _, dir := range []string{d.dirs.Logs, d.dirs.Projects} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	started := time.Now()
	res, err := d.syncer.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("initial index failed: %w", err)
	}
	// An existing index may predate edits made while nothing was watching.
	if !res.Bootstrapped {
		if res, err = d.syncer.IndexChanged(ctx); err != nil {
			return fmt.Errorf("initial index failed: %w", err)
		}
	}
	d.notifyIndex(res, time.Since(started))
	d.notifyStatus(ctx)

	if err := d.watcher.Start(d.dirs.Logs, d.dirs.Projects); err != nil {
		return err
	}
	d.config.Logger.Printf("Watching: %s, %s", d.dirs.Logs, d.dirs.Projects)

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.processChangeQueue()
	if d.config.SweepInterval > 0 {
		d.wg.Add(1)
		go d.sweep()
	}
	close(d.ready)

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop shuts the daemon down and waits for its goroutines. It is safe to
// call more than once.
func (d *Daemon) Stop() error {
	var err error
	d.stop.Do(func() {
		d.config.Logger.Println("Stopping daemon")
		d.cancel()
		if err = d.watcher.Stop(); err != nil {
			d.config.Logger.Printf("Error closing watcher: %v", err)
		}
		d.wg.Wait()
		d.config.Logger.Println("Daemon stopped")
	})
	return err
}

// Ready is closed once the initial index is built and the watcher is
// running. Changes made before that may be missed until the next sweep.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Pending returns the number of queued changes not yet processed.
func (d *Daemon) Pending() int {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()
	return len(d.changeQueue)
}

func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	events := d.watcher.Events()
	errs := d.watcher.Errors()
	for {
		select {
		case <-d.ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			d.config.Logger.Printf("File event: %s %s %s", ev.Op, ev.Type, ev.Path)
			d.queueChange(ev)

		case err, ok := <-errs:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange records ev, restarting the debounce timer of its path.
func (d *Daemon) queueChange(ev FileEvent) {
	path := d.sourcePath(ev)

	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = queuedChange{event: ev, queuedAt: time.Now()}
}

// sourcePath maps a watcher path onto the directory spelling the syncer
// uses, so index rows keep one key per file.
func (d *Daemon) sourcePath(ev FileEvent) string {
	dir := d.dirs.Logs
	if ev.Type == TypeProject {
		dir = d.dirs.Projects
	}
	return filepath.Join(dir, filepath.Base(ev.Path))
}

func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges indexes the files that have been quiet long enough.
func (d *Daemon) processPendingChanges() {
	now := time.Now()

	d.changeQueueMu.Lock()
	var ready []queuedChange
	var paths []string
	for path, qc := range d.changeQueue {
		if now.Sub(qc.queuedAt) < d.config.DebounceInterval {
			continue
		}
		ready = append(ready, qc)
		paths = append(paths, path)
		delete(d.changeQueue, path)
	}
	d.changeQueueMu.Unlock()

	logChanged := false
	for i, path := range paths {
		if d.ctx.Err() != nil {
			return
		}
		d.config.Logger.Printf("Processing change: %s", path)
		if err := d.syncPath(d.ctx, path); err != nil {
			d.config.Logger.Printf("Error syncing %s: %v", path, err)
			continue
		}
		if ready[i].event.Type == TypeLog {
			logChanged = true
		}
	}

	if logChanged {
		d.notifyStatus(d.ctx)
	}
}

// syncPath re-indexes path, or drops it from the index when it no longer
// exists. The event op is not trusted: a delete is often followed by a
// create when editors save.
func (d *Daemon) syncPath(ctx context.Context, path string) error {
	d.syncMu.Lock()
	defer d.syncMu.Unlock()

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := d.syncer.RemoveFile(ctx, path); err != nil {
			return err
		}
		if d.config.Notifier != nil {
			d.config.Notifier.OnFileRemoved(path)
		}
		return nil
	}

	res, err := d.syncer.SyncFile(ctx, path)
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		d.config.Logger.Printf("WARNING: %s", w)
	}
	if err := res.Err(); err != nil {
		d.config.Logger.Printf("WARNING: %v", err)
	}
	if d.config.Notifier != nil {
		d.config.Notifier.OnFileSynced(path, res)
	}
	return nil
}

// sweep periodically re-indexes files whose content hash changed.
func (d *Daemon) sweep() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			started := time.Now()
			d.syncMu.Lock()
			res, err := d.syncer.IndexChanged(d.ctx)
			d.syncMu.Unlock()
			if err != nil {
				if d.ctx.Err() == nil {
					d.config.Logger.Printf("Error sweeping index: %v", err)
				}
				continue
			}
			if res.FilesIndexed > 0 || res.FilesRemoved > 0 || len(res.Errors) > 0 {
				d.notifyIndex(res, time.Since(started))
				d.notifyStatus(d.ctx)
			}
		}
	}
}

func (d *Daemon) notifyIndex(res *tlsync.Result, elapsed time.Duration) {
	d.config.Logger.Printf("Index ready in %v: %d files, %d entries, %d projects, %d failed",
		elapsed.Round(time.Millisecond), res.FilesIndexed, res.Entries, res.Projects, len(res.Errors))
	if d.config.Notifier != nil {
		d.config.Notifier.OnIndexComplete(res, elapsed)
	}
}

func (d *Daemon) notifyStatus(ctx context.Context) {
	if d.config.Status == nil || d.config.Notifier == nil {
		return
	}
	status, err := d.config.Status.Status(ctx)
	if err != nil {
		d.config.Logger.Printf("WARNING: Failed to read active entry: %v", err)
		return
	}
	d.config.Notifier.OnActiveEntry(status)
}
