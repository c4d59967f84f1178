package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"notepad/internal/events"
	"notepad/internal/update"
)

const defaultSpinnerInterval = 120 * time.Millisecond

// progressSpinner is the single-line fallback for terminals without color
// and for piped output.
type progressSpinner struct {
	writer        io.Writer
	delay         time.Duration
	frameInterval time.Duration
	frames        []rune

	events chan update.Progress
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once

	mu       sync.Mutex
	frameIdx int
}

func newProgressSpinner(w io.Writer, delay time.Duration) *progressSpinner {
	return newCustomProgressSpinner(w, delay, defaultSpinnerInterval)
}

func newCustomProgressSpinner(w io.Writer, delay, frameInterval time.Duration) *progressSpinner {
	if w == nil {
		w = io.Discard
	}
	sp := &progressSpinner{
		writer:        w,
		delay:         delay,
		frameInterval: frameInterval,
		frames:        []rune{'|', '/', '-', '\\'},
		events:        make(chan update.Progress, 8),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	go sp.loop()
	return sp
}

// Emit implements events.Emitter.
func (s *progressSpinner) Emit(name events.Name, payload any) {
	if s == nil || name != events.UpdateProgress {
		return
	}
	p, ok := payload.(update.Progress)
	if !ok {
		return
	}
	select {
	case <-s.stopCh:
		return
	default:
	}
	select {
	case s.events <- p:
	default:
	}
}

func (s *progressSpinner) Stop() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		close(s.stopCh)
		<-s.doneCh
	})
}

func (s *progressSpinner) loop() {
	defer close(s.doneCh)

	var delayCh <-chan time.Time
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		delayCh = timer.C
	}

	ticker := time.NewTicker(s.frameInterval)
	defer ticker.Stop()

	var current update.Progress
	hasStage := false
	visible := s.delay == 0

	for {
		select {
		case <-s.stopCh:
			if visible {
				s.clearLine()
			}
			return
		case p := <-s.events:
			current = p
			hasStage = true
			if visible {
				s.render(current)
			}
		case <-ticker.C:
			if visible && hasStage {
				s.render(current)
			}
		case <-delayCh:
			delayCh = nil
			if hasStage {
				visible = true
				s.render(current)
			}
		}
	}
}

func (s *progressSpinner) render(p update.Progress) {
	frame := s.nextFrame()
	_, _ = fmt.Fprintf(s.writer, "\r\033[2K%c %s", frame, formatStageMessage(p))
}

func (s *progressSpinner) clearLine() {
	_, _ = fmt.Fprint(s.writer, "\r\033[2K")
}

func (s *progressSpinner) nextFrame() rune {
	s.mu.Lock()
	defer s.mu.Unlock()
	frame := s.frames[s.frameIdx%len(s.frames)]
	s.frameIdx++
	return frame
}

var stageMessages = map[update.Stage]string{
	update.StageChecking:    "Asking GitHub what's new...",
	update.StageDownloading: "Fetching fresh ink...",
	update.StageInstalling:  "Swapping pages...",
	update.StageCompleted:   "All written down.",
	update.StageError:       "Update failed.",
}

func formatStageMessage(p update.Progress) string {
	label := stageMessages[p.Stage]
	if strings.TrimSpace(label) == "" {
		label = "Working..."
	}
	if p.Stage == update.StageDownloading || p.Stage == update.StageInstalling {
		label = fmt.Sprintf("%s %3.0f%%", label, p.Progress*100)
	}
	detail := strings.TrimSpace(p.Message)
	if p.Stage == update.StageError && strings.TrimSpace(p.Error) != "" {
		detail = strings.TrimSpace(p.Error)
	}
	if detail == "" {
		return label
	}
	return fmt.Sprintf("%s - %s", label, detail)
}
