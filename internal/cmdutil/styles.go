package cmdutil

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ANSI palette for broad terminal compatibility.
var (
	Primary = lipgloss.Color("4")
	Success = lipgloss.Color("2")
	Warning = lipgloss.Color("3")
	Error   = lipgloss.Color("1")
	Muted   = lipgloss.Color("245")
)

var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary)

	Label = lipgloss.NewStyle().
		Foreground(lipgloss.Color("7"))

	SuccessText = lipgloss.NewStyle().
			Foreground(Success)

	WarningText = lipgloss.NewStyle().
			Foreground(Warning)

	ErrorText = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	MutedText = lipgloss.NewStyle().
			Foreground(Muted)
)

// Field is one label/value line of a summary block.
type Field struct {
	Label string
	Value any
}

// PrintSummary writes a titled block of aligned label/value lines.
func PrintSummary(w io.Writer, title string, fields []Field) {
	width := 0
	for _, f := range fields {
		if len(f.Label) > width {
			width = len(f.Label)
		}
	}

	fmt.Fprintln(w, Title.Render(title))
	for _, f := range fields {
		label := Label.Render(f.Label + ":" + strings.Repeat(" ", width-len(f.Label)))
		fmt.Fprintf(w, "  %s %v\n", label, f.Value)
	}
}

// Status renders an outcome word colored by severity.
func Status(outcome string) string {
	switch {
	case outcome == "exported" || outcome == "imported" || outcome == "ok":
		return SuccessText.Render(outcome)
	case strings.HasPrefix(outcome, "skipped"):
		return MutedText.Render(outcome)
	case outcome == "failed" || outcome == "error":
		return ErrorText.Render(outcome)
	default:
		return WarningText.Render(outcome)
	}
}
