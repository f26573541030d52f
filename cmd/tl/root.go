package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/timelog/tl/internal/config"
	"github.com/timelog/tl/internal/logging"
	"github.com/timelog/tl/internal/timelog/db"
	"github.com/timelog/tl/internal/timelog/query"
	"github.com/timelog/tl/internal/timelog/sync"
	"github.com/timelog/tl/internal/timelog/tracker"
	"github.com/timelog/tl/internal/ui"
)

var (
	configPath string
	dataDir    string
	verbose    bool
	jsonOutput bool

	cfg  *config.Config
	logs *logging.Factory
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Plain-text time log",
	Long: `tl keeps your time log in Markdown files, one per fiscal year, and
answers questions about it from a rebuildable SQLite index.

The log files are the source of truth: edit them by hand at any time and
run 'tl index' (or keep 'tl watch' running) to refresh the index.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.Init(os.Stdout)
		if dataDir != "" {
			if err := os.Setenv("TL_DATA_DIR", dataDir); err != nil {
				return err
			}
		}

		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}

		logs, err = logging.New(logging.Options{
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Verbose:    verbose || cfg.Log.Verbose,
		})
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logs != nil {
			return logs.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "track", Title: "Tracking:"},
		&cobra.Group{ID: "report", Title: "Reports:"},
		&cobra.Group{ID: "index", Title: "Index:"},
	)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/tl/config.toml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (overrides data_dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "also write diagnostic logs to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
}

// app wires the index, tracker and query service from the loaded config.
type app struct {
	db      *db.DB
	tracker *tracker.Tracker
	service *query.Service
	dirs    sync.Dirs
	loc     *time.Location
}

// openApp opens the index and brings it up to date with the text files.
func openApp(ctx context.Context) (*app, error) {
	a, err := openIndex()
	if err != nil {
		return nil, err
	}
	if err := a.refresh(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// openIndex opens the index without touching the text files.
func openIndex() (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	dirs := sync.Dirs{Logs: cfg.LogsDir, Projects: cfg.ProjectsDir}
	trk := tracker.New(tracker.Config{
		LogsDir:     cfg.LogsDir,
		ProjectsDir: cfg.ProjectsDir,
		Location:    loc,
		Logger:      logs.Logger("tracker"),
	})
	svc := query.New(database, trk, dirs, logs.Logger("sync"))

	return &app{db: database, tracker: trk, service: svc, dirs: dirs, loc: loc}, nil
}

// refresh creates the index on first use and picks up hand edits made
// since the last run.
func (a *app) refresh(ctx context.Context) error {
	res, err := a.service.Initialize(ctx)
	if err != nil {
		return err
	}
	if !res.Bootstrapped {
		if res, err = a.service.Reindex(ctx, false); err != nil {
			return err
		}
	}
	reportIndexProblems(res)
	return nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// now returns the current time in the configured zone.
func (a *app) now() time.Time {
	return time.Now().In(a.loc)
}

// reportIndexProblems prints files that could not be indexed. Line level
// warnings only go to the diagnostic log.
func reportIndexProblems(res *sync.Result) {
	for _, f := range res.Errors {
		fmt.Fprintf(os.Stderr, "%s %s: %v\n", ui.RenderWarn("Warning:"), f.Path, f.Err)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
