package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"

	"notepad/internal/update"
)

func TestPrintCheckResultPlain(t *testing.T) {
	published := time.Now().Add(-49 * time.Hour)
	tests := []struct {
		name    string
		info    update.VersionInfo
		want    []string
		missing []string
	}{
		{
			name: "up to date",
			info: update.VersionInfo{CurrentVersion: "1.2.0", LatestVersion: "1.2.0"},
			want: []string{"miaogu-notepad 1.2.0", "Latest release: 1.2.0", "You're on the latest version."},
			missing: []string{
				"Release notes",
				"Download:",
			},
		},
		{
			name: "update with notes",
			info: update.VersionInfo{
				CurrentVersion: "1.2.0",
				LatestVersion:  "1.3.0",
				HasUpdate:      true,
				DownloadURL:    "https://example.com/notepad.exe",
				ReleaseNotes:   "Fixes a crash when saving large files.",
				PublishedAt:    &published,
			},
			want: []string{
				"Latest release: 1.3.0 (published 2 days ago)",
				"notepad update apply",
				"Download: https://example.com/notepad.exe",
				"Release notes\n─────────────\n",
				"Fixes a crash when saving large files.",
			},
		},
		{
			name: "update without asset",
			info: update.VersionInfo{CurrentVersion: "1.2.0", LatestVersion: "1.3.0", HasUpdate: true},
			want: []string{"no download is published for this platform"},
			missing: []string{
				"Download:",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printCheckResult(&buf, tt.info, "plain", 80)
			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
			for _, m := range tt.missing {
				if strings.Contains(out, m) {
					t.Errorf("output should not contain %q:\n%s", m, out)
				}
			}
		})
	}
}

func TestBuildNotesRendererPlainWraps(t *testing.T) {
	render := buildNotesRenderer("rich", 20, true)
	got := render("one two three four five six seven")
	for _, line := range strings.Split(got, "\n") {
		if len(line) > 20 {
			t.Errorf("line %q exceeds width", line)
		}
	}
	if !strings.Contains(got, "seven") {
		t.Errorf("wrapped text lost content: %q", got)
	}
}

func TestBuildNotesRendererRich(t *testing.T) {
	render := buildNotesRenderer("light", 60, false)
	got := render("# Changes\n\n- faster search")
	if !strings.Contains(ansi.Strip(got), "faster search") {
		t.Errorf("rendered notes missing content: %q", got)
	}
}

func TestUnderlineMatchesVisibleWidth(t *testing.T) {
	if got := underline("\x1b[1mNotes\x1b[0m"); got != "─────" {
		t.Errorf("underline = %q", got)
	}
}

func TestPlainOutputHonoursFormat(t *testing.T) {
	var buf bytes.Buffer
	if !plainOutput(&buf, "plain") {
		t.Error("expected plain for explicit format")
	}
	if !plainOutput(&buf, "rich") {
		t.Error("expected plain for a non-terminal writer")
	}
}
