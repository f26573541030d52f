// Package ui styles terminal output and asks interactive questions.
package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00CFCF")).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#3FB950"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#D29922"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F85149")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
)

func RenderAccent(text string) string { return accentStyle.Render(text) }
func RenderPass(text string) string   { return passStyle.Render(text) }
func RenderWarn(text string) string   { return warnStyle.Render(text) }
func RenderFail(text string) string   { return failStyle.Render(text) }
func RenderMuted(text string) string  { return mutedStyle.Render(text) }

// Init turns styling off when out is not a terminal or NO_COLOR is set.
func Init(out *os.File) {
	if !IsTerminal(out) || termenv.EnvNoColor() {
		DisableColor()
	}
}

// DisableColor renders every style as plain text.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// Hours formats a duration in hours the way summaries print it.
func Hours(h float64) string {
	return fmt.Sprintf("%.2fh", h)
}

// ConfirmFunc prompts the user for confirmation and returns true if confirmed.
type ConfirmFunc func(prompt string) (bool, error)

// NewConfirmFunc creates a ConfirmFunc using huh's interactive confirm component.
func NewConfirmFunc() ConfirmFunc {
	return func(prompt string) (bool, error) {
		var result bool
		err := huh.NewConfirm().
			Title(prompt).
			Affirmative("Yes").
			Negative("No").
			Value(&result).
			Run()
		return result, err
	}
}

// AlwaysYes returns a ConfirmFunc that always confirms.
func AlwaysYes() ConfirmFunc {
	return func(string) (bool, error) { return true, nil }
}

// AlwaysNo returns a ConfirmFunc that always declines. Used when there is
// no terminal to ask on.
func AlwaysNo() ConfirmFunc {
	return func(string) (bool, error) { return false, nil }
}
