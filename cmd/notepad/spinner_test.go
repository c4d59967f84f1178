package main

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"notepad/internal/events"
	"notepad/internal/update"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFormatStageMessage(t *testing.T) {
	tests := []struct {
		name string
		in   update.Progress
		want string
	}{
		{
			name: "checking without detail",
			in:   update.Progress{Stage: update.StageChecking},
			want: "Asking GitHub what's new...",
		},
		{
			name: "download shows percent",
			in:   update.Progress{Stage: update.StageDownloading, Progress: 0.5, Message: "Downloaded 1 MB of 2 MB"},
			want: "Fetching fresh ink...  50% - Downloaded 1 MB of 2 MB",
		},
		{
			name: "error prefers error text",
			in:   update.Progress{Stage: update.StageError, Message: "Update failed", Error: "download update: 404"},
			want: "Update failed. - download update: 404",
		},
		{
			name: "unknown stage",
			in:   update.Progress{Stage: "paused", Message: "hold"},
			want: "Working... - hold",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatStageMessage(tt.in); got != tt.want {
				t.Errorf("formatStageMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProgressSpinnerRendersProgressEvents(t *testing.T) {
	var out syncBuffer
	sp := newCustomProgressSpinner(&out, 0, 5*time.Millisecond)

	sp.Emit(events.UpdateAvailable, update.VersionInfo{HasUpdate: true})
	sp.Emit(events.UpdateProgress, update.Progress{Stage: update.StageInstalling, Progress: 0.25, Message: "Backing up"})

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "Swapping pages...  25% - Backing up") {
		if time.Now().After(deadline) {
			t.Fatalf("spinner never rendered stage, output: %q", out.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
	sp.Stop()
	sp.Stop()

	if !strings.HasSuffix(out.String(), "\r\033[2K") {
		t.Errorf("expected spinner to clear its line on stop, got %q", out.String())
	}
}

func TestProgressSpinnerDelayHidesQuickWork(t *testing.T) {
	var out syncBuffer
	sp := newCustomProgressSpinner(&out, time.Hour, time.Millisecond)
	sp.Emit(events.UpdateProgress, update.Progress{Stage: update.StageChecking})
	time.Sleep(20 * time.Millisecond)
	sp.Stop()

	if got := out.String(); got != "" {
		t.Errorf("expected no output before delay, got %q", got)
	}
}

func TestNilProgressSpinnerIsSafe(t *testing.T) {
	var sp *progressSpinner
	sp.Emit(events.UpdateProgress, update.Progress{})
	sp.Stop()
}
