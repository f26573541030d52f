package daemon

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/timelog/tl/internal/timelog/schema"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new file was created or renamed into place.
	OpCreate EventOp = iota
	// OpModify indicates an existing file was written.
	OpModify
	// OpDelete indicates a file was removed or renamed away.
	OpDelete
)

func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileType tells log files and project files apart.
type FileType int

const (
	// TypeLog is a fiscal year log file (logs/*.md).
	TypeLog FileType = iota
	// TypeProject is a project file (projects/*.md).
	TypeProject
)

func (ft FileType) String() string {
	switch ft {
	case TypeLog:
		return "log"
	case TypeProject:
		return "project"
	default:
		return "unknown"
	}
}

// FileEvent is a change to a log or project file.
type FileEvent struct {
	Path string
	Type FileType
	Op   EventOp
}

// FileWatcher watches the logs and projects directories for changes to
// Markdown files.
type FileWatcher struct {
	watcher     *fsnotify.Watcher
	events      chan FileEvent
	errors      chan error
	done        chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
	logsDir     string
	projectsDir string
}

// NewFileWatcher creates a FileWatcher. It emits nothing until Start.
func NewFileWatcher() (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher: watcher,
		events:  make(chan FileEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching logsDir and projectsDir. Both directories must
// exist. An empty projectsDir is not watched.
func (fw *FileWatcher) Start(logsDir, projectsDir string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher already running")
	}

	fw.logsDir = absClean(logsDir)
	if err := fw.watcher.Add(fw.logsDir); err != nil {
		return fmt.Errorf("failed to watch logs directory %s: %w", logsDir, err)
	}

	if projectsDir != "" {
		fw.projectsDir = absClean(projectsDir)
		if err := fw.watcher.Add(fw.projectsDir); err != nil {
			_ = fw.watcher.Remove(fw.logsDir)
			return fmt.Errorf("failed to watch projects directory %s: %w", projectsDir, err)
		}
	}

	fw.running = true
	fw.wg.Add(1)
	go fw.processEvents()

	return nil
}

// Stop stops the watcher and closes the Events and Errors channels. It
// blocks until the event loop has exited.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return fw.watcher.Close()
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.done)

	if err := fw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	fw.wg.Wait()

	close(fw.events)
	close(fw.errors)

	return nil
}

// Events returns the channel of file events. It is closed by Stop.
func (fw *FileWatcher) Events() <-chan FileEvent {
	return fw.events
}

// Errors returns the channel of watcher errors. It is closed by Stop.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

// IsRunning returns true if the watcher is currently running.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if fileEvent, ok := fw.convertEvent(event); ok {
				select {
				case fw.events <- fileEvent:
				case <-fw.done:
					return
				}
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case fw.errors <- err:
			case <-fw.done:
				return
			}
		}
	}
}

// convertEvent maps an fsnotify event to a FileEvent. The second result is
// false for events that should be ignored.
func (fw *FileWatcher) convertEvent(event fsnotify.Event) (FileEvent, bool) {
	name := filepath.Base(event.Name)
	// Editor swap files and the tracker's temp files are hidden.
	if strings.HasPrefix(name, ".") || filepath.Ext(name) != schema.LogFileExt {
		return FileEvent{}, false
	}

	fileType, ok := fw.determineFileType(event.Name)
	if !ok {
		return FileEvent{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// A rename also produces a create for the new name.
		op = OpDelete
	default:
		return FileEvent{}, false
	}

	return FileEvent{
		Path: absClean(event.Name),
		Type: fileType,
		Op:   op,
	}, true
}

func (fw *FileWatcher) determineFileType(path string) (FileType, bool) {
	dir := filepath.Dir(absClean(path))
	switch {
	case dir == fw.logsDir:
		return TypeLog, true
	case fw.projectsDir != "" && dir == fw.projectsDir:
		return TypeProject, true
	}
	return 0, false
}

func absClean(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
