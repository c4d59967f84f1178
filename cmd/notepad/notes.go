package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"

	"notepad/internal/update"
)

const defaultWidth = 80

// plainOutput reports whether w should get unstyled text, either because the
// user asked for it or because w is not a color terminal.
func plainOutput(w io.Writer, format string) bool {
	if strings.EqualFold(strings.TrimSpace(format), "plain") {
		return true
	}
	return termenv.NewOutput(w).Profile == termenv.Ascii
}

func terminalWidth() int {
	if cols, err := strconv.Atoi(strings.TrimSpace(os.Getenv("COLUMNS"))); err == nil && cols > 20 {
		return cols
	}
	return defaultWidth
}

// buildNotesRenderer renders release notes markdown, falling back to plain
// word wrapping when glamour is unavailable.
func buildNotesRenderer(format string, width int, plain bool) func(string) string {
	fallback := func(input string) string {
		return wordwrap.String(input, width)
	}
	if plain {
		return fallback
	}

	style := strings.ToLower(strings.TrimSpace(format))
	if style == "" || style == "rich" || style == "dark" {
		style = "dark"
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fallback
	}
	return func(input string) string {
		out, err := renderer.Render(input)
		if err != nil {
			return fallback(input)
		}
		return strings.TrimSpace(out)
	}
}

// underline returns a rule as wide as s is on screen.
func underline(s string) string {
	return strings.Repeat("─", ansi.StringWidth(s))
}

func printCheckResult(w io.Writer, info update.VersionInfo, format string, width int) {
	plain := plainOutput(w, format)
	heading := func(s string) string { return s }
	if !plain {
		heading = func(s string) string { return titleStyle.Render(s) }
	}

	_, _ = fmt.Fprintf(w, "%s %s\n", heading("miaogu-notepad"), info.CurrentVersion)

	latest := info.LatestVersion
	if info.PublishedAt != nil {
		latest = fmt.Sprintf("%s (published %s)", latest, humanize.Time(*info.PublishedAt))
	}
	_, _ = fmt.Fprintf(w, "Latest release: %s\n", latest)

	switch {
	case !info.HasUpdate:
		_, _ = fmt.Fprintln(w, "You're on the latest version.")
		return
	case info.DownloadURL == "":
		_, _ = fmt.Fprintln(w, "An update is available, but no download is published for this platform.")
	default:
		_, _ = fmt.Fprintln(w, "An update is available. Run `notepad update apply` to install it.")
		_, _ = fmt.Fprintf(w, "Download: %s\n", info.DownloadURL)
	}

	notes := strings.TrimSpace(info.ReleaseNotes)
	if notes == "" {
		return
	}
	title := heading("Release notes")
	_, _ = fmt.Fprintf(w, "\n%s\n%s\n", title, underline(title))
	_, _ = fmt.Fprintln(w, buildNotesRenderer(format, width, plain)(notes))
}
