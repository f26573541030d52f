// Package daemon keeps the time log index in step with the text files while
// the user edits them.
//
// # Architecture
//
//   - FileWatcher: fsnotify over the logs and projects directories, Markdown
//     files only, hidden files ignored
//   - Daemon: initializes the index, debounces file events per path and
//     re-indexes each quiet file through the syncer
//
// # File Watching
//
//	fw, err := daemon.NewFileWatcher()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer fw.Stop()
//
//	if err := fw.Start("/data/logs", "/data/projects"); err != nil {
//	    log.Fatal(err)
//	}
//
//	for event := range fw.Events() {
//	    fmt.Printf("%s %s: %s\n", event.Op, event.Type, event.Path)
//	}
//
// The watcher maps fsnotify operations as follows:
//   - fsnotify.Create → OpCreate
//   - fsnotify.Write → OpModify
//   - fsnotify.Remove → OpDelete
//   - fsnotify.Rename → OpDelete (the new name triggers a separate Create)
//
// # Debouncing
//
// Each event restarts the quiet period of its file. Once a file has been
// quiet for DebounceInterval the daemon stats it: a missing file is
// removed from the index, anything else is re-indexed with SyncFile. The
// event op is only logged, because saving through a temp file produces a
// delete and a create for the same path.
//
// # Sweeps
//
// With SweepInterval set, the daemon also runs IndexChanged periodically.
// Content hashes make the sweep cheap when nothing changed, and it catches
// edits made while the daemon was not running or that the platform failed
// to report.
//
// # Graceful Shutdown
//
// Start blocks until its context is cancelled. Stop may also be called
// directly; it closes the watcher and waits for every goroutine.
package daemon
