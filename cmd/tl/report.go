package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/timelog/tl/internal/timelog/check"
	"github.com/timelog/tl/internal/timeutil"
	"github.com/timelog/tl/internal/ui"
)

var dayCmd = &cobra.Command{
	Use:     "day [date]",
	GroupID: "report",
	Short:   "Show one day with gaps and overlaps",
	Long: `Show the entries of one day, the gaps between them and any entries
that overlap. The date defaults to today and accepts YYYY-MM-DD or phrases
such as "yesterday" and "last monday".`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		date, err := timeutil.ParseDate(strings.Join(args, " "), a.now())
		if err != nil {
			return err
		}
		sum, err := a.service.DailySummary(ctx, date)
		if err != nil {
			return err
		}

		if jsonOutput {
			gaps := make([]map[string]any, 0, len(sum.Gaps))
			for _, g := range sum.Gaps {
				gaps = append(gaps, map[string]any{
					"start": g.Start.String(),
					"end":   g.End.String(),
					"hours": g.DurationHours,
				})
			}
			overlaps := make([]string, 0, len(sum.Overlaps))
			for _, o := range sum.Overlaps {
				overlaps = append(overlaps, o.String())
			}
			return printJSON(map[string]any{
				"date":        sum.Date,
				"entries":     toJSON(sum.Entries),
				"gaps":        gaps,
				"overlaps":    overlaps,
				"total_hours": sum.TotalHours,
				"gap_hours":   sum.GapHours,
			})
		}

		fmt.Printf("%s %s\n", ui.RenderAccent("Day"), sum.Date)
		if len(sum.Entries) == 0 {
			fmt.Println(ui.RenderMuted("  No entries"))
			return nil
		}
		printEntries(sum.Entries, false)
		printGaps(sum.Gaps)
		for _, o := range sum.Overlaps {
			fmt.Printf("  %s %s\n", ui.RenderWarn("Overlap:"), o)
		}
		fmt.Printf("\n  Total %s", ui.Hours(sum.TotalHours))
		if sum.GapHours > 0 {
			fmt.Printf(", gaps %s", ui.Hours(sum.GapHours))
		}
		fmt.Println()
		return nil
	},
}

func printGaps(gaps []check.Gap) {
	for _, g := range gaps {
		fmt.Printf("  %s %s\n", ui.RenderMuted("Gap:"), g)
	}
}

var projectCmd = &cobra.Command{
	Use:     "project [name]",
	GroupID: "report",
	Short:   "List projects or show the time logged for one",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 0 {
			projects, err := a.service.Projects(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(projects)
			}
			if len(projects) == 0 {
				fmt.Println(ui.RenderMuted("No projects"))
				return nil
			}
			for _, p := range projects {
				line := "  " + p.Name
				if p.Status != "" {
					line += " " + ui.RenderMuted("("+p.Status+")")
				}
				fmt.Println(line)
			}
			return nil
		}

		sum, err := a.service.ProjectSummary(ctx, args[0])
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(map[string]any{
				"name":        sum.Name,
				"project":     sum.Project,
				"entries":     toJSON(sum.Entries),
				"total_hours": sum.TotalHours,
			})
		}

		fmt.Printf("%s %s\n", ui.RenderAccent("Project"), sum.Name)
		if p := sum.Project; p != nil {
			if p.Status != "" {
				fmt.Printf("  Status: %s\n", p.Status)
			}
			if p.StartDate != "" {
				fmt.Printf("  Started: %s\n", p.StartDate)
			}
			if p.Summary != "" {
				fmt.Printf("  %s\n", p.Summary)
			}
			for _, g := range p.Goals {
				fmt.Printf("  Goal: %s\n", g)
			}
		} else {
			fmt.Println(ui.RenderMuted("  No project file"))
		}
		fmt.Println()
		printEntries(sum.Entries, true)
		fmt.Printf("\n  Total %s over %d entries\n", ui.Hours(sum.TotalHours), len(sum.Entries))
		return nil
	},
}

var tagCmd = &cobra.Command{
	Use:     "tag <tag>",
	GroupID: "report",
	Short:   "Show the time logged under a tag",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		sum, err := a.service.TagSummary(ctx, strings.TrimPrefix(args[0], "#"))
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(map[string]any{
				"tag":           sum.Tag,
				"entries":       toJSON(sum.Entries),
				"total_hours":   sum.TotalHours,
				"project_hours": sum.ProjectHours,
			})
		}

		fmt.Printf("%s #%s\n", ui.RenderAccent("Tag"), sum.Tag)
		printEntries(sum.Entries, true)

		projects := make([]string, 0, len(sum.ProjectHours))
		for p := range sum.ProjectHours {
			projects = append(projects, p)
		}
		sort.Strings(projects)
		if len(projects) > 0 {
			fmt.Println()
		}
		for _, p := range projects {
			name := p
			if name == "" {
				name = "(no project)"
			}
			fmt.Printf("  %-24s %s\n", name, ui.Hours(sum.ProjectHours[p]))
		}
		fmt.Printf("\n  Total %s\n", ui.Hours(sum.TotalHours))
		return nil
	},
}

var rangeCmd = &cobra.Command{
	Use:     "range <start|period> [end]",
	GroupID: "report",
	Short:   "Show the time logged over a date range",
	Long: `Show per-day totals for a range of dates, both ends inclusive.

Examples:
  tl range 2025-08-01 2025-08-31
  tl range "last week"
  tl range "this fiscal year"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		now := a.now()
		start, end, err := timeutil.ParseRange(args[0], now)
		if err != nil {
			return err
		}
		if len(args) == 2 {
			if end, err = timeutil.ParseDate(args[1], now); err != nil {
				return err
			}
		}

		sum, err := a.service.RangeQuery(ctx, start, end)
		if err != nil {
			return err
		}
		detail, _ := cmd.Flags().GetBool("entries")

		if jsonOutput {
			days := make([]map[string]any, 0, len(sum.Days))
			for _, d := range sum.Days {
				days = append(days, map[string]any{"date": d.Date, "hours": d.Hours})
			}
			out := map[string]any{
				"start":       sum.Start,
				"end":         sum.End,
				"days":        days,
				"total_hours": sum.TotalHours,
			}
			if detail {
				out["entries"] = toJSON(sum.Entries)
			}
			return printJSON(out)
		}

		fmt.Printf("%s %s to %s\n", ui.RenderAccent("Range"), sum.Start, sum.End)
		if detail {
			printEntries(sum.Entries, true)
			fmt.Println()
		} else {
			for _, d := range sum.Days {
				fmt.Printf("  %s %s\n", d.Date, ui.Hours(d.Hours))
			}
		}
		fmt.Printf("  Total %s over %d days\n", ui.Hours(sum.TotalHours), len(sum.Days))
		return nil
	},
}

func init() {
	rangeCmd.Flags().Bool("entries", false, "list every entry instead of daily totals")

	rootCmd.AddCommand(dayCmd, projectCmd, tagCmd, rangeCmd)
}
