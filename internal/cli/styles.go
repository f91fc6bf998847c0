package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/linuxmatters/vocalrange/internal/practice"
)

// Color palette
var (
	primaryColor = lipgloss.Color("#A40000") // Vocalrange red
	mutedColor   = lipgloss.Color("#888888") // Gray
	textColor    = lipgloss.Color("#FFFFFF") // White
)

// Styles
var (
	// Title style - bold red with microphone emoji
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// Error message style
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// Key-value pair styles
	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor)
)

// PrintVersion prints version information
func PrintVersion(version string) {
	fmt.Println(TitleStyle.Render("Vocalrange 🎤"))
	fmt.Printf("%s %s\n", KeyStyle.Render("Version:"), ValueStyle.Render(version))
	fmt.Println()
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("Error:"), message)
}

// PrintModes lists the available exercises, marking the selected one
func PrintModes(w io.Writer, modes []practice.ScaleMode, selected string) {
	fmt.Fprintln(w, TitleStyle.Render("Exercises"))
	for _, m := range modes {
		marker := " "
		if m.ID == selected {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s %s %s\n",
			marker,
			ValueStyle.Render(fmt.Sprintf("%-14s", m.ID)),
			m.Name,
			KeyStyle.Render(fmt.Sprintf("%v", m.PatternOffsets)))
	}
}
