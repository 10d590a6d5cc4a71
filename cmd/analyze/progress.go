package analyze

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/joshsymonds/certify/internal/models"
)

const (
	pollInterval = 200 * time.Millisecond
	barWidth     = 30
)

var (
	phaseStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	barStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// errInterrupted is returned when the user quits the progress view.
var errInterrupted = errors.New("interrupted")

// statusFunc loads the current state of the watched run.
type statusFunc func(ctx context.Context) (*models.AnalysisRun, error)

type tickMsg time.Time

type statusMsg struct {
	run *models.AnalysisRun
	err error
}

// progressModel polls a run and renders its phase and percent.
type progressModel struct {
	ctx         context.Context
	status      statusFunc
	interval    time.Duration
	started     time.Time
	now         time.Time
	run         *models.AnalysisRun
	err         error
	interrupted bool
}

func newProgressModel(ctx context.Context, status statusFunc, interval time.Duration) *progressModel {
	now := time.Now()
	return &progressModel{ctx: ctx, status: status, interval: interval, started: now, now: now}
}

func (m *progressModel) poll() tea.Msg {
	run, err := m.status(m.ctx)
	return statusMsg{run: run, err: err}
}

// Init polls once immediately.
func (m *progressModel) Init() tea.Cmd {
	return m.poll
}

// Update handles status, tick and key messages.
func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.run = msg.run
		if m.run.PhaseStatus.IsTerminal() {
			return m, tea.Quit
		}
		return m, tea.Tick(m.interval, func(t time.Time) tea.Msg {
			return tickMsg(t)
		})

	case tickMsg:
		m.now = time.Time(msg)
		return m, m.poll

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.interrupted = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View renders the current phase, a progress bar and the elapsed time.
func (m *progressModel) View() string {
	if m.run == nil {
		return mutedStyle.Render("Waiting for run...") + "\n"
	}
	if m.run.PhaseStatus.IsTerminal() {
		return ""
	}

	phase := string(m.run.CurrentPhase)
	if phase == "" {
		phase = string(m.run.PhaseStatus)
	}
	filled := barWidth * m.run.Progress / 100
	bar := barStyle.Render(strings.Repeat("█", filled)) + mutedStyle.Render(strings.Repeat("░", barWidth-filled))

	return fmt.Sprintf("%s %s %3d%%  %s\n%s\n",
		phaseStyle.Render(fmt.Sprintf("%-10s", phase)),
		bar,
		m.run.Progress,
		mutedStyle.Render(m.now.Sub(m.started).Round(time.Second).String()),
		mutedStyle.Render("Press q to stop watching"))
}

// watch follows a run until it is terminal. Terminals get an interactive
// progress view; other writers get one line per phase.
func watch(ctx context.Context, out io.Writer, status statusFunc) (*models.AnalysisRun, error) {
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return watchInteractive(ctx, f, status)
	}
	return watchPlain(ctx, out, status, pollInterval)
}

func watchInteractive(ctx context.Context, out *os.File, status statusFunc) (*models.AnalysisRun, error) {
	model := newProgressModel(ctx, status, pollInterval)
	program := tea.NewProgram(model, tea.WithContext(ctx), tea.WithOutput(out))
	if _, err := program.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("running progress view: %w", err)
	}

	switch {
	case model.err != nil:
		return nil, model.err
	case model.interrupted:
		return nil, errInterrupted
	}
	return model.run, nil
}

func watchPlain(ctx context.Context, out io.Writer, status statusFunc, interval time.Duration) (*models.AnalysisRun, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastPhase models.Phase
	for {
		run, err := status(ctx)
		if err != nil {
			return nil, err
		}
		if run.CurrentPhase != "" && run.CurrentPhase != lastPhase {
			lastPhase = run.CurrentPhase
			fmt.Fprintf(out, "  phase %-10s %3d%%\n", run.CurrentPhase, run.Progress)
		}
		if run.PhaseStatus.IsTerminal() {
			return run, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
