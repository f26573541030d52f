package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/timelog/tl/internal/timelog/daemon"
	"github.com/timelog/tl/internal/timelog/dashboard"
	tlsync "github.com/timelog/tl/internal/timelog/sync"
	"github.com/timelog/tl/internal/ui"
)

var indexCmd = &cobra.Command{
	Use:     "index",
	GroupID: "index",
	Short:   "Bring the index up to date with the log files",
	Long: `Re-index log and project files that changed since the last run and
drop files that were deleted. With --full the index is cleared and rebuilt
from every file.

The index only caches the text files, so a full rebuild is always safe.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openIndex()
		if err != nil {
			return err
		}
		defer a.Close()

		full, _ := cmd.Flags().GetBool("full")
		started := time.Now()

		res, err := a.service.Initialize(ctx)
		if err != nil {
			return err
		}
		if !res.Bootstrapped {
			if res, err = a.service.Reindex(ctx, full); err != nil {
				return err
			}
		}

		if jsonOutput {
			return printJSON(indexSummary(res, time.Since(started)))
		}

		fmt.Printf("%s Indexed %d file(s), %d unchanged, %d removed\n",
			ui.RenderPass("✓"), res.FilesIndexed, res.FilesUnchanged, res.FilesRemoved)
		if res.FilesIndexed > 0 {
			fmt.Printf("   %d entries, %d projects\n", res.Entries, res.Projects)
		}
		for _, w := range res.Warnings {
			fmt.Printf("%s %s\n", ui.RenderWarn("Warning:"), w)
		}
		reportIndexProblems(res)
		return res.Err()
	},
}

func indexSummary(res *tlsync.Result, elapsed time.Duration) map[string]any {
	warnings := make([]string, 0, len(res.Warnings))
	for _, w := range res.Warnings {
		warnings = append(warnings, w.String())
	}
	failures := make([]map[string]string, 0, len(res.Errors))
	for _, f := range res.Errors {
		failures = append(failures, map[string]string{"path": f.Path, "error": f.Err.Error()})
	}
	return map[string]any{
		"bootstrapped":    res.Bootstrapped,
		"files_indexed":   res.FilesIndexed,
		"files_unchanged": res.FilesUnchanged,
		"files_removed":   res.FilesRemoved,
		"entries":         res.Entries,
		"projects":        res.Projects,
		"warnings":        warnings,
		"errors":          failures,
		"duration_ms":     elapsed.Milliseconds(),
	}
}

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "index",
	Short:   "Keep the index in sync while the log files are edited",
	Long: `Watch the logs and projects directories and re-index files as they
change. Hand edits are picked up within a fraction of a second.

Unless --no-dashboard is given, a live dashboard is served on the
configured port. Browsers can open http://localhost:<port>/ and other
clients can connect to ws://localhost:<port>/ws for JSON events:

- index_complete: the index was built or a sweep found changes
- file_synced: a changed file was re-indexed
- file_removed: a deleted file was dropped from the index
- active_entry: the running entry after a log change
- warnings: malformed lines and files that failed to index

Example usage:
  tl watch                  # Watch with the dashboard on the configured port
  tl watch --port 9000      # Use another port
  tl watch --no-dashboard   # Only keep the index in sync`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openIndex()
		if err != nil {
			return err
		}
		defer a.Close()

		debounce, err := cfg.DebounceInterval()
		if err != nil {
			return err
		}
		sweep, err := cfg.SweepInterval()
		if err != nil {
			return err
		}

		dcfg := daemon.DefaultConfig()
		dcfg.DebounceInterval = debounce
		dcfg.SweepInterval = sweep
		dcfg.Status = a.tracker
		dcfg.Logger = logs.Logger("daemon")

		noDashboard, _ := cmd.Flags().GetBool("no-dashboard")
		var server *dashboard.Server
		if !noDashboard {
			port := cfg.Dashboard.Port
			if cmd.Flags().Changed("port") {
				port, _ = cmd.Flags().GetInt("port")
			}
			server = dashboard.NewServer(&dashboard.Config{
				Port:   port,
				Logger: logs.Logger("dashboard"),
			})
			if err := server.Start(); err != nil {
				return fmt.Errorf("failed to start dashboard: %w", err)
			}
			defer func() {
				if err := server.Stop(); err != nil {
					fmt.Fprintf(os.Stderr, "Error stopping dashboard: %v\n", err)
				}
			}()
			dcfg.Notifier = dashboard.NewHandler(server, logs.Logger("dashboard"))
		}

		d, err := daemon.NewWithConfig(a.service.Syncer(), a.dirs, dcfg)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		go func() {
			select {
			case <-d.Ready():
			case <-ctx.Done():
				return
			}
			fmt.Printf("%s Watching %s and %s\n", ui.RenderPass("✓"), a.dirs.Logs, a.dirs.Projects)
			if server != nil {
				fmt.Printf("   Dashboard: http://%s/\n", server.GetAddr())
				fmt.Printf("   WebSocket: ws://%s/ws\n", server.GetAddr())
			}
			fmt.Println("\nPress Ctrl+C to stop...")
		}()

		if err := d.Start(ctx); err != nil {
			return err
		}
		fmt.Println("\nStopped watching")
		return nil
	},
}

func init() {
	indexCmd.Flags().Bool("full", false, "clear the index and rebuild it from every file")

	watchCmd.Flags().IntP("port", "p", 0, "dashboard port (default from config)")
	watchCmd.Flags().Bool("no-dashboard", false, "do not serve the dashboard")

	rootCmd.AddCommand(indexCmd, watchCmd)
}
