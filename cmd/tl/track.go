package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/timelog/tl/internal/timelog/schema"
	"github.com/timelog/tl/internal/timelog/tracker"
	"github.com/timelog/tl/internal/timeutil"
	"github.com/timelog/tl/internal/ui"
)

var startCmd = &cobra.Command{
	Use:     "start <task...>",
	GroupID: "track",
	Short:   "Start an entry",
	Long: `Start an open entry. Only one entry can be running at a time.

Examples:
  tl start Write report -p Website -t writing
  tl start Standup --at 09:00 --date yesterday`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		project, _ := cmd.Flags().GetString("project")
		tags, _ := cmd.Flags().GetStringSlice("tag")
		notes, _ := cmd.Flags().GetString("notes")
		at, _ := cmd.Flags().GetString("at")
		date, _ := cmd.Flags().GetString("date")
		yes, _ := cmd.Flags().GetBool("yes")

		now := a.now()
		opts := tracker.StartOptions{
			Task:    strings.Join(args, " "),
			Project: project,
			Tags:    splitTags(tags),
			Notes:   notes,
		}
		if opts.Date, err = timeutil.DateArg(date, now); err != nil {
			return err
		}
		if opts.StartTime, err = timeutil.ClockArg(at, now); err != nil {
			return err
		}

		change, err := a.service.Start(ctx, opts)
		if errors.Is(err, schema.ErrConflict) {
			confirm := ui.AlwaysNo()
			switch {
			case yes:
				confirm = ui.AlwaysYes()
			case ui.IsTerminal(os.Stdin) && ui.IsTerminal(os.Stdout):
				confirm = ui.NewConfirmFunc()
			}
			ok, cerr := confirm("Another entry is running. Finish it and start this one?")
			if cerr != nil || !ok {
				return err
			}
			finished, ferr := a.service.Finish(ctx, tracker.FinishOptions{EndTime: opts.StartTime})
			if ferr != nil {
				return ferr
			}
			fmt.Printf("%s Finished %s\n", ui.RenderPass("✓"), formatEntry(finished.Entry, true))
			change, err = a.service.Start(ctx, opts)
		}
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(toJSON([]schema.TimeEntry{change.Entry})[0])
		}
		fmt.Printf("%s Started %s\n", ui.RenderPass("▶"), formatEntry(change.Entry, true))
		if change.Project != nil {
			fmt.Printf("   New project file: %s\n", change.Project.Path)
		}
		return nil
	},
}

var finishCmd = &cobra.Command{
	Use:     "finish",
	Aliases: []string{"stop"},
	GroupID: "track",
	Short:   "Finish the running entry",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		notes, _ := cmd.Flags().GetString("notes")
		at, _ := cmd.Flags().GetString("at")

		opts := tracker.FinishOptions{Notes: notes}
		if opts.EndTime, err = timeutil.ClockArg(at, a.now()); err != nil {
			return err
		}

		change, err := a.service.Finish(ctx, opts)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(toJSON([]schema.TimeEntry{change.Entry})[0])
		}
		fmt.Printf("%s Finished %s\n", ui.RenderPass("✓"), formatEntry(change.Entry, true))
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:     "add <task...>",
	GroupID: "track",
	Short:   "Add a finished entry",
	Long: `Add an entry that is already finished. An end time before the start
time means the work ran past midnight.

Example:
  tl add Code review --from 14:00 --to 15:30 -p Website --date yesterday`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		project, _ := cmd.Flags().GetString("project")
		tags, _ := cmd.Flags().GetStringSlice("tag")
		notes, _ := cmd.Flags().GetString("notes")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		date, _ := cmd.Flags().GetString("date")

		now := a.now()
		opts := tracker.AddOptions{
			Task:    strings.Join(args, " "),
			Project: project,
			Tags:    splitTags(tags),
			Notes:   notes,
		}
		if opts.Date, err = timeutil.DateArg(date, now); err != nil {
			return err
		}
		if opts.StartTime, err = timeutil.ClockArg(from, now); err != nil {
			return err
		}
		if opts.EndTime, err = timeutil.ClockArg(to, now); err != nil {
			return err
		}

		change, err := a.service.Add(ctx, opts)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(toJSON([]schema.TimeEntry{change.Entry})[0])
		}
		fmt.Printf("%s Added %s\n", ui.RenderPass("✓"), formatEntry(change.Entry, true))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "track",
	Short:   "Show the running entry",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		status, err := a.service.Status(ctx)
		if err != nil {
			return err
		}

		if jsonOutput {
			out := map[string]any{"state": status.State.String()}
			if status.Entry != nil {
				out["entry"] = toJSON([]schema.TimeEntry{*status.Entry})[0]
				out["elapsed_minutes"] = int(status.Elapsed / time.Minute)
			}
			return printJSON(out)
		}

		if status.Entry == nil {
			fmt.Println(ui.RenderMuted("Idle: nothing is running"))
			return nil
		}
		fmt.Printf("%s %s\n", ui.RenderAccent("Running:"), formatEntry(*status.Entry, true))
		fmt.Printf("   Elapsed: %s\n", status.Elapsed.Truncate(time.Minute))
		for _, other := range status.Others {
			fmt.Printf("%s also open at %s:%d: %s\n", ui.RenderWarn("Warning:"), other.Source, other.Line, other.Task)
		}
		return nil
	},
}

func addEntryFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("project", "p", "", "project name")
	cmd.Flags().StringSliceP("tag", "t", nil, "tag (repeatable or comma separated)")
	cmd.Flags().StringP("notes", "n", "", "notes")
	cmd.Flags().String("date", "", "date (YYYY-MM-DD, today, yesterday, last friday...)")
}

func init() {
	addEntryFlags(startCmd)
	startCmd.Flags().String("at", "", "start time (HH:MM, default now)")
	startCmd.Flags().BoolP("yes", "y", false, "finish a running entry without asking")

	finishCmd.Flags().StringP("notes", "n", "", "notes to append")
	finishCmd.Flags().String("at", "", "end time (HH:MM, default now)")

	addEntryFlags(addCmd)
	addCmd.Flags().String("from", "", "start time (HH:MM)")
	addCmd.Flags().String("to", "", "end time (HH:MM)")
	_ = addCmd.MarkFlagRequired("from")
	_ = addCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(startCmd, finishCmd, addCmd, statusCmd)
}
