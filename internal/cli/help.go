package cli

import (
	"fmt"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
	"github.com/linuxmatters/vocalrange/internal/practice"
)

// Custom help styles
var (
	helpTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#A40000")).
			MarginBottom(1)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Italic(true).
			MarginBottom(1)

	helpSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FFA500")).
				MarginTop(1)

	helpFlagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AA00")).
			Bold(true)

	helpArgStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AAAA")).
			Bold(true)

	helpDefaultStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#888888")).
				Italic(true)
)

// wizardKeys documents the practice screen's key bindings
var wizardKeys = []struct{ key, help string }{
	{"enter", "Run the current step (allow mic, check, calibrate, practise)"},
	{"l", "Play the timing demo"},
	{"r", "Retry a failed check or cycle"},
	{"d", "Switch to descending practice"},
	{"c", "Continue after a failed headphone check, or recalibrate"},
	{"f", "Finish and show your range"},
	{"q", "Quit"},
}

// StyledHelpPrinter renders flags, the built-in exercises and the wizard keys
// with Lipgloss styling.
func StyledHelpPrinter(options kong.HelpOptions, modes []practice.ScaleMode) func(options kong.HelpOptions, ctx *kong.Context) error {
	return func(options kong.HelpOptions, ctx *kong.Context) error {
		var sb strings.Builder

		sb.WriteString(helpTitleStyle.Render("Vocalrange 🎤"))
		sb.WriteString("\n")
		sb.WriteString(helpDescStyle.Render("Scale practice and vocal range finder"))
		sb.WriteString("\n")

		writeSection(&sb, "Usage:")
		sb.WriteString("  " + ctx.Model.Name + " [flags]\n")

		writeSection(&sb, "Flags:")
		for _, row := range flagRows(ctx.Model.Node.Flags) {
			sb.WriteString("  " + helpFlagStyle.Render(row.flags))
			if row.help != "" {
				sb.WriteString("  " + row.help)
			}
			if row.defaultVal != "" {
				sb.WriteString(" " + helpDefaultStyle.Render("(default: "+row.defaultVal+")"))
			}
			sb.WriteString("\n")
		}

		if len(modes) > 0 {
			writeSection(&sb, "Exercises:")
			for _, m := range modes {
				fmt.Fprintf(&sb, "  %s  %s\n", helpArgStyle.Render(fmt.Sprintf("%-14s", m.ID)), m.Name)
			}
		}

		writeSection(&sb, "Keys:")
		for _, k := range wizardKeys {
			fmt.Fprintf(&sb, "  %s  %s\n", helpFlagStyle.Render(fmt.Sprintf("%-5s", k.key)), k.help)
		}

		sb.WriteString("\n")
		fmt.Fprint(ctx.Stdout, sb.String())
		return nil
	}
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString("\n")
	sb.WriteString(helpSectionStyle.Render(title))
	sb.WriteString("\n")
}

type flagRow struct {
	flags      string
	help       string
	defaultVal string
}

// flagRows lists help first, then the visible flags in declaration order.
// Negatable switches show as --[no-]name; a false bool default is omitted.
func flagRows(flags []*kong.Flag) []flagRow {
	rows := []flagRow{{flags: "-h, --help", help: "Show context-sensitive help."}}
	for _, f := range flags {
		if f.Name == "help" || f.Hidden {
			continue
		}

		name := "--" + f.Name
		switch {
		case f.IsBool() && f.Tag.Negatable != "":
			name = "--[no-]" + f.Name
		case !f.IsBool():
			name += "=" + f.FormatPlaceHolder()
		}
		if f.Short != 0 {
			name = fmt.Sprintf("-%c, %s", f.Short, name)
		}

		def := f.Default
		if f.IsBool() && def == "false" {
			def = ""
		}
		rows = append(rows, flagRow{flags: name, help: f.Help, defaultVal: def})
	}
	return rows
}
