package analysis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/certify/internal/apperror"
	"github.com/joshsymonds/certify/internal/audit"
	"github.com/joshsymonds/certify/internal/config"
	"github.com/joshsymonds/certify/internal/database"
	"github.com/joshsymonds/certify/internal/enrichment"
	"github.com/joshsymonds/certify/internal/findings"
	"github.com/joshsymonds/certify/internal/models"
	"github.com/joshsymonds/certify/pkg/logger"
)

var (
	alice = models.Actor{OrganizationID: "org-1", UserID: "alice"}
	mal   = models.Actor{OrganizationID: "org-2", UserID: "mallory"}
)

type harness struct {
	db       *database.DB
	recorder *audit.MemoryRecorder
	log      *logger.MockLogger
	orch     *Orchestrator
}

func newHarness(t *testing.T, cfg config.AnalysisConfig, opts ...Option) *harness {
	t.Helper()

	db, err := database.NewMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{db: db, recorder: audit.NewMemoryRecorder(), log: logger.NewMockLogger()}
	svc := findings.NewService(db, h.recorder, config.Default().Findings, h.log)

	opts = append([]Option{
		WithRecorder(h.recorder),
		WithLogger(h.log),
		WithPollInterval(5 * time.Millisecond),
	}, opts...)
	h.orch = NewOrchestrator(db, svc, cfg, opts...)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	h.orch.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.orch.Stop(ctx)
	})
}

func (h *harness) snapshot(t *testing.T, id, org, path string, status models.SnapshotStatus) {
	t.Helper()
	require.NoError(t, h.db.CreateSnapshot(context.Background(), &models.Snapshot{
		ID: id, OrganizationID: org, Status: status, ExtractedPath: path,
	}))
}

func (h *harness) wait(t *testing.T, runID, org string) *models.AnalysisRun {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	run, err := h.orch.Wait(ctx, runID, org)
	require.NoError(t, err)
	return run
}

func (h *harness) findings(t *testing.T, snapshotID, org string) map[string]models.RepositoryFinding {
	t.Helper()
	rows, _, err := h.db.ListFindings(context.Background(), database.FindingFilter{
		SnapshotID: snapshotID, OrganizationID: org, Limit: 100,
	})
	require.NoError(t, err)

	byControl := make(map[string]models.RepositoryFinding, len(rows))
	for _, r := range rows {
		byControl[r.ControlID] = r
	}
	return byControl
}

func analysisConfig() config.AnalysisConfig {
	return config.Default().Analysis
}

func fixture(t *testing.T) string {
	t.Helper()
	path, err := filepath.Abs(filepath.Join("..", "..", "testdata", "repos", "secure-app"))
	require.NoError(t, err)
	return path
}

func bareRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0o600))
	return dir
}

func TestStartAnalysis_Validation(t *testing.T) {
	tests := []struct {
		name       string
		frameworks []models.Framework
		depth      models.Depth
	}{
		{name: "no frameworks", frameworks: nil, depth: models.DepthFull},
		{name: "blank frameworks", frameworks: []models.Framework{""}, depth: models.DepthFull},
		{name: "bad depth", frameworks: []models.Framework{models.FrameworkSOC2}, depth: "shallow"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, analysisConfig())
			h.snapshot(t, "snap-1", "org-1", bareRepo(t), models.SnapshotIndexed)

			_, err := h.orch.StartAnalysis(context.Background(), "snap-1", tt.frameworks, tt.depth, alice)
			require.Error(t, err)
			assert.True(t, apperror.IsValidation(err))

			active, err := h.db.CountActiveRuns(context.Background(), "snap-1")
			require.NoError(t, err)
			assert.Zero(t, active)
		})
	}
}

func TestStartAnalysis_SnapshotChecks(t *testing.T) {
	h := newHarness(t, analysisConfig())
	h.snapshot(t, "snap-1", "org-1", bareRepo(t), models.SnapshotIndexed)
	h.snapshot(t, "snap-up", "org-1", bareRepo(t), models.SnapshotUploaded)
	ctx := context.Background()
	soc2 := []models.Framework{models.FrameworkSOC2}

	_, err := h.orch.StartAnalysis(ctx, "missing", soc2, models.DepthFull, alice)
	assert.True(t, apperror.IsNotFound(err))

	_, err = h.orch.StartAnalysis(ctx, "snap-1", soc2, models.DepthFull, mal)
	assert.True(t, apperror.IsNotFound(err), "other tenants must not see the snapshot")

	_, err = h.orch.StartAnalysis(ctx, "snap-up", soc2, models.DepthFull, alice)
	assert.True(t, apperror.IsValidation(err))

	runID, err := h.orch.StartAnalysis(ctx, "snap-1", soc2, models.DepthFull, alice)
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	_, err = h.orch.StartAnalysis(ctx, "snap-1", soc2, models.DepthFull, alice)
	assert.True(t, apperror.IsConflict(err))

	run, err := h.orch.GetAnalysisStatus(ctx, runID, "org-1")
	require.NoError(t, err)
	assert.Equal(t, models.PhasePending, run.PhaseStatus)
	assert.Equal(t, soc2, run.Frameworks)

	snap, err := h.db.GetSnapshot(ctx, "snap-1", "org-1")
	require.NoError(t, err)
	assert.Equal(t, models.SnapshotAnalyzing, snap.Status)

	assert.Len(t, h.recorder.Find(audit.ActionStart, audit.EntityRun), 1)
}

func TestStartAnalysis_ConcurrentStarts(t *testing.T) {
	h := newHarness(t, analysisConfig())
	h.snapshot(t, "snap-1", "org-1", bareRepo(t), models.SnapshotIndexed)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		started   int
		conflicts int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.orch.StartAnalysis(context.Background(), "snap-1",
				[]models.Framework{models.FrameworkSOC2}, models.DepthFull, alice)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				started++
			case apperror.IsConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, started)
	assert.Equal(t, callers-1, conflicts)

	active, err := h.db.CountActiveRuns(context.Background(), "snap-1")
	require.NoError(t, err)
	assert.Equal(t, 1, active)
}

func TestAnalysis_EndToEnd(t *testing.T) {
	h := newHarness(t, analysisConfig())
	h.start(t)
	h.snapshot(t, "snap-1", "org-1", fixture(t), models.SnapshotIndexed)

	runID, err := h.orch.StartAnalysis(context.Background(), "snap-1",
		[]models.Framework{models.FrameworkSOC2, models.FrameworkSOC2}, models.DepthSecurityRelevant, alice)
	require.NoError(t, err)

	run := h.wait(t, runID, "org-1")
	require.Equal(t, models.PhaseCompleted, run.PhaseStatus, run.ErrorMessage)
	assert.Equal(t, 100, run.Progress)
	assert.Equal(t, models.PhaseGap, run.CurrentPhase)
	assert.Positive(t, run.FilesAnalyzed)
	assert.Equal(t, 7, run.FindingsGenerated, "duplicate frameworks are mapped once")
	assert.NotNil(t, run.CompletedAt)

	byControl := h.findings(t, "snap-1", "org-1")
	require.Len(t, byControl, 7)
	for _, id := range []string{"CC6.1", "CC6.2"} {
		f := byControl[id]
		assert.Equal(t, models.StatusPass, f.Status, id)
		assert.Equal(t, models.ConfidenceHigh, f.ConfidenceLevel, id)
		assert.Equal(t, runID, f.RunID)
		require.NotEmpty(t, f.Evidence, id)
	}

	snap, err := h.db.GetSnapshot(context.Background(), "snap-1", "org-1")
	require.NoError(t, err)
	assert.Equal(t, models.SnapshotAnalyzed, snap.Status)

	assert.Len(t, h.recorder.Find(audit.ActionComplete, audit.EntityRun), 1)
	assert.Len(t, h.recorder.Find(audit.ActionCreate, audit.EntityFinding), 1)
	assert.True(t, h.log.HasMessage("INFO", "Analysis completed"))

	_, err = h.orch.GetAnalysisStatus(context.Background(), runID, "org-2")
	assert.True(t, apperror.IsNotFound(err))
}

type fixedSummarizer struct {
	mu    sync.Mutex
	calls int
}

func (s *fixedSummarizer) Summarize(_ context.Context, f models.ControlFinding) (*enrichment.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return &enrichment.Summary{Text: "Missing: " + f.ControlID, Model: "stub-1", TokensUsed: 10, Cost: 0.001}, nil
}

func TestAnalysis_NoEvidenceFails(t *testing.T) {
	summarizer := &fixedSummarizer{}
	h := newHarness(t, analysisConfig(), WithSummarizer(summarizer))
	h.start(t)
	h.snapshot(t, "snap-1", "org-1", bareRepo(t), models.SnapshotIndexed)

	runID, err := h.orch.StartAnalysis(context.Background(), "snap-1",
		[]models.Framework{models.FrameworkSOC2}, models.DepthFull, alice)
	require.NoError(t, err)

	run := h.wait(t, runID, "org-1")
	require.Equal(t, models.PhaseCompleted, run.PhaseStatus, run.ErrorMessage)
	assert.Equal(t, 1, run.FilesAnalyzed)
	assert.Equal(t, 7, run.LLMCallsMade)
	assert.Equal(t, 70, run.TokensUsed)
	assert.InDelta(t, 0.007, run.CostEstimate, 1e-9)

	auth := h.findings(t, "snap-1", "org-1")["CC6.1"]
	assert.Equal(t, models.StatusFail, auth.Status)
	assert.NotEmpty(t, auth.Recommendation)
	assert.Empty(t, auth.Evidence)
	assert.Equal(t, "Missing: CC6.1", auth.Summary)
	assert.Equal(t, "stub-1", auth.AIModel)
}

type capturingSummarizer struct {
	mu       sync.Mutex
	evidence []models.Evidence
}

func (s *capturingSummarizer) Summarize(_ context.Context, f models.ControlFinding) (*enrichment.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evidence = append(s.evidence, f.Evidence...)
	return &enrichment.Summary{Text: f.Summary, Model: "stub-1", TokensUsed: 1}, nil
}

func TestAnalysis_CommittedCredentialsStayRedacted(t *testing.T) {
	values := []string{
		"Zq8vR2mK" + "9pLx4TnW7yB3",
		"Hunter2H" + "unter2xx",
		"9f8e7d6c" + "5b4a39281706f5e4",
		"s3cretPa" + "ssw0rd!",
	}
	dir := t.TempDir()
	files := map[string]string{
		".env": "JWT_SECRET=" + values[0] + "\nDB_PASSWORD=" + values[1] + "\nENCRYPTION_KEY=" + values[2] + "\n",
		"config/database.yml": "database:\n  password: " + values[3] + "\n",
		"src/login.ts":        "const ok = speakeasy.totp.verify({ secret, token });\nreturn jwt.sign(claims, key);\n",
	}
	for rel, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
	}

	summarizer := &capturingSummarizer{}
	h := newHarness(t, analysisConfig(), WithSummarizer(summarizer))
	h.start(t)
	h.snapshot(t, "snap-1", "org-1", dir, models.SnapshotIndexed)

	runID, err := h.orch.StartAnalysis(context.Background(), "snap-1",
		[]models.Framework{models.FrameworkSOC2, models.FrameworkISO27001, models.FrameworkNIST80053}, models.DepthFull, alice)
	require.NoError(t, err)
	run := h.wait(t, runID, "org-1")
	require.Equal(t, models.PhaseCompleted, run.PhaseStatus, run.ErrorMessage)

	rows, _, err := h.db.ListFindings(context.Background(), database.FindingFilter{
		SnapshotID: "snap-1", OrganizationID: "org-1", Limit: 100,
	})
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	tasks, err := h.db.ListTasks(context.Background(), "snap-1", "org-1")
	require.NoError(t, err)
	require.NotEmpty(t, tasks)

	for _, v := range values {
		for _, f := range rows {
			assert.NotContains(t, f.Summary, v, f.ControlID)
			assert.NotContains(t, f.Recommendation, v, f.ControlID)
			for _, ev := range f.Evidence {
				assert.NotContains(t, ev.Snippet, v, "%s %s", f.ControlID, ev.Path)
			}
		}
		for _, task := range tasks {
			assert.NotContains(t, task.Description, v, task.Title)
		}
		for _, ev := range summarizer.evidence {
			assert.NotContains(t, ev.Snippet, v, ev.Path)
		}
	}

	for _, f := range rows {
		if f.ControlID == "A.9.2.4" || f.ControlID == "IA-5" {
			assert.Equal(t, models.StatusPartial, f.Status, f.ControlID)
			assert.Contains(t, f.SignalType, "generic_token", f.ControlID)
		}
	}
}

func TestAnalysis_UnknownFrameworkProducesNothing(t *testing.T) {
	h := newHarness(t, analysisConfig())
	h.start(t)
	h.snapshot(t, "snap-1", "org-1", bareRepo(t), models.SnapshotIndexed)

	runID, err := h.orch.StartAnalysis(context.Background(), "snap-1",
		[]models.Framework{"HIPAA"}, models.DepthFull, alice)
	require.NoError(t, err)

	run := h.wait(t, runID, "org-1")
	assert.Equal(t, models.PhaseCompleted, run.PhaseStatus)
	assert.Zero(t, run.FindingsGenerated)
	assert.True(t, h.log.HasMessage("WARN", "Framework has no rule table, it will produce no findings"))
}

type brokenMapper struct{}

func (brokenMapper) MapSignalsToControls(models.Signals, models.Framework) ([]models.ControlFinding, error) {
	return nil, errors.New("rule table corrupted")
}

func TestAnalysis_Failures(t *testing.T) {
	tests := []struct {
		name    string
		cfg     func(*config.AnalysisConfig)
		opts    []Option
		wantMsg string
	}{
		{
			name:    "mapper error",
			opts:    []Option{WithMapper(brokenMapper{})},
			wantMsg: "gap phase: rule table corrupted",
		},
		{
			name: "phase panic",
			opts: []Option{WithBeforePhase(func(_ context.Context, p models.Phase) error {
				if p == models.PhaseAuth {
					panic("nil detector")
				}
				return nil
			})},
			wantMsg: "auth phase: panic: nil detector",
		},
		{
			name: "timeout",
			cfg:  func(c *config.AnalysisConfig) { c.RunTimeout = 50 * time.Millisecond },
			opts: []Option{WithBeforePhase(func(ctx context.Context, p models.Phase) error {
				if p == models.PhaseData {
					<-ctx.Done()
					return ctx.Err()
				}
				return nil
			})},
			wantMsg: "data phase: run exceeded timeout of 50ms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := analysisConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			h := newHarness(t, cfg, tt.opts...)
			h.start(t)
			h.snapshot(t, "snap-1", "org-1", bareRepo(t), models.SnapshotIndexed)

			runID, err := h.orch.StartAnalysis(context.Background(), "snap-1",
				[]models.Framework{models.FrameworkSOC2}, models.DepthFull, alice)
			require.NoError(t, err)

			run := h.wait(t, runID, "org-1")
			assert.Equal(t, models.PhaseFailed, run.PhaseStatus)
			assert.Equal(t, tt.wantMsg, run.ErrorMessage)

			snap, err := h.db.GetSnapshot(context.Background(), "snap-1", "org-1")
			require.NoError(t, err)
			assert.Equal(t, models.SnapshotFailed, snap.Status)

			failed := h.recorder.Find(audit.ActionFail, audit.EntityRun)
			require.Len(t, failed, 1)
			assert.Equal(t, tt.wantMsg, failed[0].Metadata["error"])
		})
	}
}

func TestStartAnalysis_QueueFull(t *testing.T) {
	cfg := analysisConfig()
	cfg.QueueSize = 1
	h := newHarness(t, cfg)
	h.snapshot(t, "snap-1", "org-1", bareRepo(t), models.SnapshotIndexed)
	h.snapshot(t, "snap-2", "org-1", bareRepo(t), models.SnapshotIndexed)
	soc2 := []models.Framework{models.FrameworkSOC2}

	_, err := h.orch.StartAnalysis(context.Background(), "snap-1", soc2, models.DepthFull, alice)
	require.NoError(t, err)

	_, err = h.orch.StartAnalysis(context.Background(), "snap-2", soc2, models.DepthFull, alice)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeAnalysisQueueFull))

	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, 503, appErr.HTTPStatus())

	runs, err := h.db.ListRuns(context.Background(), "snap-2", "org-1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.PhaseFailed, runs[0].PhaseStatus)
}

func TestStartAnalysis_AfterStop(t *testing.T) {
	h := newHarness(t, analysisConfig())
	h.orch.Start()
	require.NoError(t, h.orch.Stop(context.Background()))
	require.NoError(t, h.orch.Stop(context.Background()))

	h.snapshot(t, "snap-1", "org-1", bareRepo(t), models.SnapshotIndexed)
	_, err := h.orch.StartAnalysis(context.Background(), "snap-1",
		[]models.Framework{models.FrameworkSOC2}, models.DepthFull, alice)
	assert.True(t, apperror.HasCode(err, apperror.CodeAnalysisUnavailable))

	snap, err := h.db.GetSnapshot(context.Background(), "snap-1", "org-1")
	require.NoError(t, err)
	assert.Equal(t, models.SnapshotIndexed, snap.Status)
}

func TestNewOrchestrator_DefaultRecorderLogs(t *testing.T) {
	db, err := database.NewMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logger.NewMockLogger()
	svc := findings.NewService(db, audit.NewMemoryRecorder(), config.Default().Findings, log)
	orch := NewOrchestrator(db, svc, analysisConfig(), WithLogger(log))
	assert.IsType(t, &audit.LogRecorder{}, orch.recorder)

	require.NoError(t, db.CreateSnapshot(context.Background(), &models.Snapshot{
		ID: "snap-1", OrganizationID: "org-1", Status: models.SnapshotIndexed, ExtractedPath: bareRepo(t),
	}))
	_, err = orch.StartAnalysis(context.Background(), "snap-1", []models.Framework{models.FrameworkSOC2}, models.DepthFull, alice)
	require.NoError(t, err)
	assert.True(t, log.HasMessage("INFO", "Audit event"))
}

func TestNormalizeFrameworks(t *testing.T) {
	got := normalizeFrameworks([]models.Framework{
		models.FrameworkNIST80053, "", models.FrameworkSOC2, models.FrameworkNIST80053,
	})
	assert.Equal(t, []models.Framework{models.FrameworkNIST80053, models.FrameworkSOC2}, got)
}
