package common

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	labelStyle   = lipgloss.NewStyle().Width(16)
)

const (
	SymbolPass = "✓"
	SymbolFail = "✗"
	SymbolWarn = "!"
)

func Header(text string) string  { return headerStyle.Render(text) }
func Success(text string) string { return successStyle.Render(text) }
func Failure(text string) string { return errorStyle.Render(text) }
func Warning(text string) string { return warningStyle.Render(text) }
func Detail(text string) string  { return detailStyle.Render(text) }

// Field renders a fixed-width label followed by its value.
func Field(label string, value any) string {
	return labelStyle.Render(label) + fmt.Sprint(value)
}

// PrintFields writes one Field line per pair of label and value.
func PrintFields(w io.Writer, pairs ...any) {
	for i := 0; i+1 < len(pairs); i += 2 {
		fmt.Fprintln(w, Field(fmt.Sprint(pairs[i]), pairs[i+1]))
	}
}
