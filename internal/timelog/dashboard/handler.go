package dashboard

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/timelog/tl/internal/timelog/daemon"
	"github.com/timelog/tl/internal/timelog/schema"
	tlsync "github.com/timelog/tl/internal/timelog/sync"
	"github.com/timelog/tl/internal/timelog/tracker"
)

var _ daemon.Notifier = (*Handler)(nil)

// IndexCompleteData summarizes an index build or sweep.
type IndexCompleteData struct {
	FilesIndexed   int   `json:"files_indexed"`
	FilesUnchanged int   `json:"files_unchanged"`
	FilesRemoved   int   `json:"files_removed"`
	FilesFailed    int   `json:"files_failed"`
	Entries        int   `json:"entries"`
	Projects       int   `json:"projects"`
	Warnings       int   `json:"warnings"`
	DurationMS     int64 `json:"duration_ms"`
}

// FileSyncedData describes one re-indexed file.
type FileSyncedData struct {
	Path     string `json:"path"`
	Entries  int    `json:"entries"`
	Projects int    `json:"projects"`
	Warnings int    `json:"warnings"`
	Failed   bool   `json:"failed"`
}

// FileRemovedData names a file dropped from the index.
type FileRemovedData struct {
	Path string `json:"path"`
}

// ActiveEntryData is the tracker state.
type ActiveEntryData struct {
	State          string   `json:"state"`
	Task           string   `json:"task,omitempty"`
	Project        string   `json:"project,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Date           string   `json:"date,omitempty"`
	Start          string   `json:"start,omitempty"`
	ElapsedMinutes int      `json:"elapsed_minutes,omitempty"`
	OtherOpen      int      `json:"other_open,omitempty"`
}

// WarningsData lists problems found while indexing.
type WarningsData struct {
	Warnings []string `json:"warnings,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// Handler turns daemon events into dashboard messages.
type Handler struct {
	server *Server
	logger *log.Logger
}

// NewHandler creates a Handler broadcasting on server.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}
	return &Handler{server: server, logger: logger}
}

// OnIndexComplete implements daemon.Notifier.
func (h *Handler) OnIndexComplete(res *tlsync.Result, elapsed time.Duration) {
	h.send(MessageTypeIndexComplete, IndexCompleteData{
		FilesIndexed:   res.FilesIndexed,
		FilesUnchanged: res.FilesUnchanged,
		FilesRemoved:   res.FilesRemoved,
		FilesFailed:    len(res.Errors),
		Entries:        res.Entries,
		Projects:       res.Projects,
		Warnings:       len(res.Warnings),
		DurationMS:     elapsed.Milliseconds(),
	})
	h.sendWarnings(res)
}

// OnFileSynced implements daemon.Notifier.
func (h *Handler) OnFileSynced(path string, res *tlsync.Result) {
	h.send(MessageTypeFileSynced, FileSyncedData{
		Path:     path,
		Entries:  res.Entries,
		Projects: res.Projects,
		Warnings: len(res.Warnings),
		Failed:   len(res.Errors) > 0,
	})
	h.sendWarnings(res)
}

// OnFileRemoved implements daemon.Notifier.
func (h *Handler) OnFileRemoved(path string) {
	h.send(MessageTypeFileRemoved, FileRemovedData{Path: path})
}

// OnActiveEntry implements daemon.Notifier.
func (h *Handler) OnActiveEntry(status *tracker.Status) {
	h.send(MessageTypeActiveEntry, activeEntryData(status))
}

func activeEntryData(status *tracker.Status) ActiveEntryData {
	data := ActiveEntryData{State: status.State.String()}
	if status.Entry == nil {
		return data
	}
	e := status.Entry
	data.Task = e.Task
	data.Project = e.Project
	data.Tags = e.Tags
	data.Date = e.Date.Format(schema.DateLayout)
	data.Start = e.Start.String()
	data.ElapsedMinutes = int(status.Elapsed / time.Minute)
	data.OtherOpen = len(status.Others)
	return data
}

func (h *Handler) sendWarnings(res *tlsync.Result) {
	if len(res.Warnings) == 0 && len(res.Errors) == 0 {
		return
	}
	var data WarningsData
	for _, w := range res.Warnings {
		data.Warnings = append(data.Warnings, w.String())
	}
	for _, f := range res.Errors {
		data.Errors = append(data.Errors, f.Path+": "+f.Err.Error())
	}
	h.send(MessageTypeWarnings, data)
}

func (h *Handler) send(t MessageType, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", t, err)
		return
	}
	h.server.Broadcast(Message{
		Type:      t,
		Timestamp: time.Now(),
		Data:      raw,
	})
}
