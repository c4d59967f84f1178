package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"notepad/internal/events"
	"notepad/internal/update"
)

var (
	accentColor  = lipgloss.Color("#7D56F4")
	spinColor    = lipgloss.Color("#FF79C6")
	dimColor     = lipgloss.Color("#6272A4")
	textColor    = lipgloss.Color("#F8F8F2")
	successColor = lipgloss.Color("#50FA7B")
	failColor    = lipgloss.Color("#FF5555")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(spinColor)

	statusStyle = lipgloss.NewStyle().
			Foreground(textColor)

	stageStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(successColor)

	failStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(failColor)

	containerStyle = lipgloss.NewStyle().
			Padding(1, 2)
)

const progressBarWidth = 40

// progressModel renders update-progress events as they arrive.
type progressModel struct {
	spinner  spinner.Model
	progress progress.Model

	current update.Progress
	started bool
	done    bool

	updates chan update.Progress
}

type progressMsg update.Progress
type progressDoneMsg struct{}

func newProgressModel() *progressModel {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = spinnerStyle

	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(progressBarWidth),
		progress.WithoutPercentage(),
	)

	return &progressModel{
		spinner:  s,
		progress: p,
		current:  update.Progress{Stage: update.StageChecking, Message: "Starting"},
		updates:  make(chan update.Progress, 32),
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.waitForProgress(),
	)
}

func (m *progressModel) waitForProgress() tea.Cmd {
	return func() tea.Msg {
		p, ok := <-m.updates
		if !ok {
			return progressDoneMsg{}
		}
		return progressMsg(p)
	}
}

// accept reports whether p moves the display forward. Late events from an
// earlier stage are ignored; errors always win.
func (m *progressModel) accept(p update.Progress) bool {
	if !m.started || p.Stage == update.StageError {
		return true
	}
	if m.current.Stage.Terminal() {
		return false
	}
	return p.Stage.Order() >= m.current.Stage.Order()
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		p := update.Progress(msg)
		if !m.accept(p) {
			return m, m.waitForProgress()
		}
		m.current = p
		m.started = true
		if p.Stage.Terminal() {
			m.done = true
			return m, tea.Quit
		}
		return m, tea.Batch(m.progress.SetPercent(p.Progress), m.waitForProgress())

	case progressDoneMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		updated, cmd := m.progress.Update(msg)
		m.progress = updated.(progress.Model)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *progressModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Updating miaogu-notepad"))
	b.WriteString("\n\n")

	p := m.current
	switch p.Stage {
	case update.StageCompleted:
		b.WriteString(successStyle.Render("✓ " + p.Message))
	case update.StageError:
		detail := p.Error
		if detail == "" {
			detail = p.Message
		}
		b.WriteString(failStyle.Render("✗ " + detail))
	case update.StageDownloading, update.StageInstalling:
		b.WriteString(m.progress.View())
		b.WriteString("\n")
		b.WriteString(stageStyle.Render(stageLabel(p.Stage)))
		b.WriteString(" ")
		b.WriteString(statusStyle.Render(p.Message))
	default:
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
		b.WriteString(statusStyle.Render(p.Message))
	}
	return containerStyle.Render(b.String())
}

func stageLabel(stage update.Stage) string {
	order := stage.Order()
	if order < 0 {
		return string(stage)
	}
	return fmt.Sprintf("[%d/4] %s", order+1, strings.ToUpper(string(stage[:1]))+string(stage[1:]))
}

func (m *progressModel) send(p update.Progress) {
	select {
	case m.updates <- p:
	default:
		// Drop if channel is full
	}
}

// progressView is the display an update command reports into.
type progressView interface {
	events.Emitter
	Stop()
}

// progressDisplay runs the bubbletea progress view inline.
type progressDisplay struct {
	program *tea.Program
	model   *progressModel
	done    chan struct{}
	mu      sync.Mutex
	stopped bool
}

func newProgressDisplay(w io.Writer) *progressDisplay {
	model := newProgressModel()
	program := tea.NewProgram(
		model,
		tea.WithOutput(w),
		tea.WithoutSignalHandler(),
	)

	d := &progressDisplay{
		program: program,
		model:   model,
		done:    make(chan struct{}),
	}
	go func() {
		_, _ = program.Run()
		close(d.done)
	}()
	return d
}

// Emit implements events.Emitter.
func (d *progressDisplay) Emit(name events.Name, payload any) {
	if name != events.UpdateProgress {
		return
	}
	p, ok := payload.(update.Progress)
	if !ok {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.model.send(p)
}

// Stop waits briefly for the final frame, then tears the program down.
func (d *progressDisplay) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.model.updates)
	d.mu.Unlock()

	select {
	case <-d.done:
	case <-time.After(500 * time.Millisecond):
		d.program.Kill()
	}
}
