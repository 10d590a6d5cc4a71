package analyze

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/certify/internal/models"
)

// scripted returns the given runs in order, repeating the last one.
func scripted(runs ...models.AnalysisRun) statusFunc {
	var mu sync.Mutex
	i := 0
	return func(context.Context) (*models.AnalysisRun, error) {
		mu.Lock()
		defer mu.Unlock()
		run := runs[min(i, len(runs)-1)]
		i++
		return &run, nil
	}
}

func running(phase models.Phase, progress int) models.AnalysisRun {
	return models.AnalysisRun{PhaseStatus: models.PhaseRunning, CurrentPhase: phase, Progress: progress}
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestProgressModel(t *testing.T) {
	m := newProgressModel(context.Background(), scripted(running(models.PhaseAuth, 42)), time.Millisecond)
	assert.Contains(t, m.View(), "Waiting for run")

	msg := m.Init()()
	_, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	assert.False(t, isQuit(cmd))

	view := m.View()
	assert.Contains(t, view, "auth")
	assert.Contains(t, view, "42%")

	_, cmd = m.Update(tickMsg(time.Now()))
	require.NotNil(t, cmd)
	_, ok := cmd().(statusMsg)
	assert.True(t, ok)

	_, cmd = m.Update(statusMsg{run: &models.AnalysisRun{PhaseStatus: models.PhaseCompleted, Progress: 100}})
	assert.True(t, isQuit(cmd))
	assert.Empty(t, m.View())
}

func TestProgressModel_Quits(t *testing.T) {
	tests := []struct {
		name            string
		msg             tea.Msg
		wantErr         bool
		wantInterrupted bool
	}{
		{name: "status error", msg: statusMsg{err: errors.New("db closed")}, wantErr: true},
		{name: "q key", msg: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}, wantInterrupted: true},
		{name: "ctrl+c", msg: tea.KeyMsg{Type: tea.KeyCtrlC}, wantInterrupted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newProgressModel(context.Background(), scripted(running(models.PhaseBuild, 14)), time.Millisecond)
			_, cmd := m.Update(tt.msg)
			assert.True(t, isQuit(cmd))
			assert.Equal(t, tt.wantErr, m.err != nil)
			assert.Equal(t, tt.wantInterrupted, m.interrupted)
		})
	}
}

func TestWatchPlain(t *testing.T) {
	status := scripted(
		models.AnalysisRun{PhaseStatus: models.PhasePending},
		running(models.PhaseOverview, 14),
		running(models.PhaseOverview, 14),
		running(models.PhaseBuild, 28),
		models.AnalysisRun{PhaseStatus: models.PhaseCompleted, CurrentPhase: models.PhaseGap, Progress: 100},
	)

	var out bytes.Buffer
	run, err := watchPlain(context.Background(), &out, status, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseCompleted, run.PhaseStatus)

	lines := out.String()
	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte("overview")))
	assert.Contains(t, lines, "phase build")
	assert.Contains(t, lines, "phase gap")
	assert.Contains(t, lines, "100%")
}

func TestWatchPlain_Errors(t *testing.T) {
	_, err := watchPlain(context.Background(), &bytes.Buffer{}, func(context.Context) (*models.AnalysisRun, error) {
		return nil, errors.New("not found")
	}, time.Millisecond)
	assert.EqualError(t, err, "not found")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = watchPlain(ctx, &bytes.Buffer{}, scripted(running(models.PhaseAuth, 50)), time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWatch_NonTerminalUsesPlainOutput(t *testing.T) {
	var out bytes.Buffer
	run, err := watch(context.Background(), &out, scripted(
		models.AnalysisRun{PhaseStatus: models.PhaseFailed, CurrentPhase: models.PhaseAuth, Progress: 42},
	))
	require.NoError(t, err)
	assert.Equal(t, models.PhaseFailed, run.PhaseStatus)
	assert.Contains(t, out.String(), "phase auth")
}
