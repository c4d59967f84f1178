package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"notepad/internal/history"
)

func TestPrintHistory(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	entries := []history.Entry{
		{Kind: history.KindFlow, At: now.Add(-time.Minute), Stage: "completed", Message: "Installation completed"},
		{Kind: history.KindCheck, At: now.Add(-2 * time.Hour), CurrentVersion: "1.0.0", LatestVersion: "1.1.0", HasUpdate: true},
		{Kind: history.KindCheck, At: now.Add(-3 * time.Hour), CurrentVersion: "1.0.0", LatestVersion: "1.0.0"},
		{Kind: history.KindCheck, At: now.Add(-4 * time.Hour), Error: "network unreachable"},
		{Kind: history.KindFlow, At: now.Add(-5 * time.Hour), Stage: "error", Error: "install update: permission denied"},
	}

	var buf bytes.Buffer
	printHistory(&buf, entries, now)
	out := buf.String()

	for _, want := range []string{
		"1 minute ago",
		"completed: Installation completed",
		"2 hours ago",
		"1.0.0 -> 1.1.0 available",
		"1.0.0 is up to date",
		"check failed: network unreachable",
		"error: install update: permission denied",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("history output missing %q:\n%s", want, out)
		}
	}
	if lines := strings.Count(out, "\n"); lines != len(entries) {
		t.Errorf("expected %d lines, got %d", len(entries), lines)
	}
}

func TestPrintHistoryEmpty(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf, nil, time.Now())
	if got := buf.String(); got != "No update history yet.\n" {
		t.Errorf("empty history output = %q", got)
	}
}
