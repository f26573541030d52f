// Command tl keeps a plain-text time log.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/timelog/tl/internal/timelog/schema"
	"github.com/timelog/tl/internal/ui"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

// printError reports err on stderr with a hint for errors the user can fix.
func printError(err error) {
	fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)

	switch {
	case errors.Is(err, schema.ErrConflict):
		fmt.Fprintf(os.Stderr, "   Run 'tl finish' first, or 'tl status' to see the active entry\n")
	case errors.Is(err, schema.ErrNotFound):
		fmt.Fprintf(os.Stderr, "   Nothing is running; use 'tl start' to begin an entry\n")
	case schema.IsFatal(err):
		fmt.Fprintf(os.Stderr, "   Fix the log file by hand, then run 'tl index'\n")
	}
}
