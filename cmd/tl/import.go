package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/timelog/tl/internal/timelog/migrate"
	"github.com/timelog/tl/internal/ui"
)

var importCmd = &cobra.Command{
	Use:     "import <file.jsonl>",
	GroupID: "index",
	Short:   "Import entries from a JSON Lines file",
	Long: `Import finished entries from a JSON Lines file, one record per line:

  {"timestamp": "2025-08-15T17:30:00+10:00", "description": "Write report",
   "duration_minutes": 90, "project": "Website", "tags": ["writing"]}

The timestamp is when the work ended. Each record is added to the log file
of its fiscal year exactly like 'tl add'. Invalid records are skipped and
reported. Use --dry-run to check a file without writing anything.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		res, err := migrate.Import(ctx, a.service, migrate.ImportOptions{
			FromJSONL: args[0],
			DryRun:    dryRun,
			Location:  a.loc,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(map[string]any{
				"read":     res.Read,
				"imported": res.Imported,
				"skipped":  res.Skipped,
				"files":    res.Files,
				"warnings": res.Warnings,
				"dry_run":  dryRun,
			})
		}

		for _, w := range res.Warnings {
			fmt.Printf("%s %s\n", ui.RenderWarn("Skipped:"), w)
		}
		verb := "Imported"
		if dryRun {
			verb = "Would import"
		}
		fmt.Printf("%s %s %d of %d record(s)\n", ui.RenderPass("✓"), verb, res.Imported, res.Read)
		for _, f := range res.Files {
			fmt.Printf("   %s\n", f)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().Bool("dry-run", false, "validate records without writing")

	rootCmd.AddCommand(importCmd)
}
