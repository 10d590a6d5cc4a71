// Package analysis runs the compliance pipeline for snapshots: it owns the run
// lifecycle, executes phases on a worker pool and finalizes runs.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/joshsymonds/certify/internal/apperror"
	"github.com/joshsymonds/certify/internal/audit"
	"github.com/joshsymonds/certify/internal/config"
	"github.com/joshsymonds/certify/internal/detector"
	"github.com/joshsymonds/certify/internal/enrichment"
	"github.com/joshsymonds/certify/internal/mapper"
	"github.com/joshsymonds/certify/internal/models"
	"github.com/joshsymonds/certify/pkg/logger"
)

const (
	defaultWorkers      = 4
	defaultQueueSize    = 64
	defaultRunTimeout   = 10 * time.Minute
	defaultPollInterval = 100 * time.Millisecond
	finalizeTimeout     = 30 * time.Second
)

// Store is the run and snapshot persistence the orchestrator needs.
type Store interface {
	GetSnapshot(ctx context.Context, snapshotID, organizationID string) (*models.Snapshot, error)
	CountActiveRuns(ctx context.Context, snapshotID string) (int, error)
	CreateRun(ctx context.Context, run *models.AnalysisRun) error
	MarkRunRunning(ctx context.Context, runID string) error
	UpdateRunProgress(ctx context.Context, runID string, phase models.Phase, progress, filesAnalyzed int) error
	CompleteRun(ctx context.Context, runID string, metrics models.Metrics) error
	FailRun(ctx context.Context, runID, message string) (string, error)
	GetRun(ctx context.Context, runID, organizationID string) (*models.AnalysisRun, error)
}

// FindingsCreator persists mapped findings.
type FindingsCreator interface {
	CreateFindings(ctx context.Context, snapshotID, organizationID, runID string,
		findings []models.ControlFinding, actorUserID string) ([]models.RepositoryFinding, error)
}

// ControlMapper maps signals to framework controls.
type ControlMapper interface {
	MapSignalsToControls(signals models.Signals, framework models.Framework) ([]models.ControlFinding, error)
}

// PhaseHook runs before each phase. Returning an error fails the phase.
type PhaseHook func(ctx context.Context, phase models.Phase) error

type job struct {
	run   models.AnalysisRun
	path  string
	actor models.Actor
}

// Orchestrator starts analysis runs and executes them in the background.
type Orchestrator struct {
	store        Store
	findings     FindingsCreator
	mapper       ControlMapper
	summarizer   enrichment.Summarizer
	recorder     audit.Recorder
	logger       logger.Logger
	beforePhase  PhaseHook
	jobs         chan job
	detectorOpts detector.Options
	workers      int
	runTimeout   time.Duration
	pollInterval time.Duration
	wg           sync.WaitGroup
	mu           sync.RWMutex
	started      bool
	stopped      bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMapper replaces the built-in control mapper.
func WithMapper(m ControlMapper) Option {
	return func(o *Orchestrator) { o.mapper = m }
}

// WithSummarizer enables AI summaries for failing and partial findings.
func WithSummarizer(s enrichment.Summarizer) Option {
	return func(o *Orchestrator) { o.summarizer = s }
}

// WithRecorder sets the audit recorder.
func WithRecorder(r audit.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithPollInterval sets how often Wait checks run status.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.pollInterval = d }
}

// WithBeforePhase installs a hook that runs before every phase.
func WithBeforePhase(h PhaseHook) Option {
	return func(o *Orchestrator) { o.beforePhase = h }
}

// NewOrchestrator creates an orchestrator. Workers are not running until Start.
func NewOrchestrator(store Store, findings FindingsCreator, cfg config.AnalysisConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:        store,
		findings:     findings,
		mapper:       mapper.New(),
		logger:       logger.GetGlobalLogger(),
		detectorOpts: detector.DefaultOptions(),
		workers:      cfg.Workers,
		runTimeout:   cfg.RunTimeout,
		pollInterval: defaultPollInterval,
	}
	if o.workers < 1 {
		o.workers = defaultWorkers
	}
	if o.runTimeout <= 0 {
		o.runTimeout = defaultRunTimeout
	}
	if len(cfg.IgnoreDirs) > 0 {
		o.detectorOpts.IgnoreDirs = cfg.IgnoreDirs
	}
	if cfg.MaxFileSize > 0 {
		o.detectorOpts.MaxFileSize = cfg.MaxFileSize
	}
	if cfg.MaxFiles > 0 {
		o.detectorOpts.MaxFiles = cfg.MaxFiles
	}

	queueSize := cfg.QueueSize
	if queueSize < 1 {
		queueSize = defaultQueueSize
	}
	o.jobs = make(chan job, queueSize)

	for _, opt := range opts {
		opt(o)
	}
	if o.recorder == nil {
		o.recorder = audit.NewLogRecorder(o.logger)
	}
	return o
}

// Start launches the worker pool.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started || o.stopped {
		return
	}
	o.started = true

	for range o.workers {
		o.wg.Add(1)
		go o.worker()
	}
	o.logger.Info("Analysis workers started", "workers", o.workers)
}

// Stop rejects new runs and waits for queued runs to finish.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil
	}
	o.stopped = true
	close(o.jobs)
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.logger.Info("Analysis workers stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for j := range o.jobs {
		o.executeAnalysis(j)
	}
}

// StartAnalysis validates the snapshot, creates a pending run and queues it.
// The run id is returned immediately; callers poll GetAnalysisStatus.
func (o *Orchestrator) StartAnalysis(ctx context.Context, snapshotID string, frameworks []models.Framework,
	depth models.Depth, actor models.Actor,
) (string, error) {
	if o.isStopped() {
		return "", apperror.Internal(apperror.CodeAnalysisUnavailable, "analysis workers are stopped", nil)
	}

	frameworks = normalizeFrameworks(frameworks)
	if len(frameworks) == 0 {
		return "", apperror.Validation("at least one framework is required")
	}
	if !depth.Valid() {
		return "", apperror.Validation("invalid analysis depth %q", depth)
	}
	for _, f := range frameworks {
		if !f.IsSupported() {
			o.logger.Warn("Framework has no rule table, it will produce no findings", "framework", f)
		}
	}

	snapshot, err := o.store.GetSnapshot(ctx, snapshotID, actor.OrganizationID)
	if err != nil {
		return "", apperror.Wrap(err, apperror.CodeAnalysisStart, "failed to start analysis")
	}
	if snapshot.Status != models.SnapshotIndexed {
		active, err := o.store.CountActiveRuns(ctx, snapshotID)
		if err != nil {
			return "", apperror.Wrap(err, apperror.CodeAnalysisStart, "failed to start analysis")
		}
		if active > 0 {
			return "", apperror.Conflict("snapshot %s already has an analysis in progress", snapshotID)
		}
		return "", apperror.Validation("snapshot %s is %s, expected %s", snapshotID, snapshot.Status, models.SnapshotIndexed)
	}

	run := &models.AnalysisRun{
		SnapshotID:     snapshotID,
		OrganizationID: actor.OrganizationID,
		UserID:         actor.UserID,
		Frameworks:     frameworks,
		Depth:          depth,
	}
	if err := o.store.CreateRun(ctx, run); err != nil {
		return "", apperror.Wrap(err, apperror.CodeAnalysisStart, "failed to start analysis")
	}

	o.recorder.Record(ctx, models.AuditEvent{
		Action:         audit.ActionStart,
		EntityType:     audit.EntityRun,
		EntityID:       run.ID,
		OrganizationID: actor.OrganizationID,
		UserID:         actor.UserID,
		Metadata: map[string]any{
			"snapshot_id": snapshotID,
			"frameworks":  frameworks,
			"depth":       string(depth),
		},
	})

	if err := o.enqueue(job{run: *run, path: snapshot.ExtractedPath, actor: actor}); err != nil {
		o.failAnalysis(run.ID, actor, err.Error())
		return "", err
	}

	o.logger.Info("Analysis queued",
		"run_id", run.ID,
		"snapshot_id", snapshotID,
		"organization_id", actor.OrganizationID,
		"frameworks", frameworks)

	return run.ID, nil
}

func (o *Orchestrator) isStopped() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.stopped
}

func (o *Orchestrator) enqueue(j job) error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.stopped {
		return apperror.Internal(apperror.CodeAnalysisUnavailable, "analysis workers are stopped", nil)
	}

	select {
	case o.jobs <- j:
		return nil
	default:
		return apperror.Internal(apperror.CodeAnalysisQueueFull, "analysis queue is full", nil)
	}
}

// GetAnalysisStatus returns a run owned by organizationID.
func (o *Orchestrator) GetAnalysisStatus(ctx context.Context, runID, organizationID string) (*models.AnalysisRun, error) {
	run, err := o.store.GetRun(ctx, runID, organizationID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeAnalysisStatus, "failed to load analysis status")
	}
	return run, nil
}

// Wait polls a run until it is completed or failed.
func (o *Orchestrator) Wait(ctx context.Context, runID, organizationID string) (*models.AnalysisRun, error) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		run, err := o.GetAnalysisStatus(ctx, runID, organizationID)
		if err != nil {
			return nil, err
		}
		if run.PhaseStatus.IsTerminal() {
			return run, nil
		}

		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}

func normalizeFrameworks(frameworks []models.Framework) []models.Framework {
	out := make([]models.Framework, 0, len(frameworks))
	for _, f := range frameworks {
		if f != "" && !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

// executeAnalysis runs every phase of a queued run and finalizes it.
func (o *Orchestrator) executeAnalysis(j job) {
	log := o.logger.With("run_id", j.run.ID, "snapshot_id", j.run.SnapshotID)

	ctx, cancel := context.WithTimeout(context.Background(), o.runTimeout)
	defer cancel()
	ctx = logger.NewContext(ctx, log)

	if err := o.store.MarkRunRunning(ctx, j.run.ID); err != nil {
		log.Error("Failed to mark run running", "error", err)
		o.failAnalysis(j.run.ID, j.actor, fmt.Sprintf("starting run: %v", err))
		return
	}

	ac := &models.AnalysisContext{
		SnapshotID:     j.run.SnapshotID,
		RunID:          j.run.ID,
		ExtractedPath:  j.path,
		OrganizationID: j.actor.OrganizationID,
		UserID:         j.actor.UserID,
		Depth:          j.run.Depth,
		Frameworks:     j.run.Frameworks,
	}

	start := time.Now()
	if err := o.runPhases(ctx, &runState{ac: ac}, log); err != nil {
		log.Error("Analysis failed", "error", err, "duration", time.Since(start))
		o.failAnalysis(j.run.ID, j.actor, err.Error())
		return
	}

	log.Info("Analysis completed",
		"files_analyzed", ac.Metrics.FilesAnalyzed,
		"findings_generated", ac.Metrics.FindingsGenerated,
		"duration", time.Since(start))
	o.completeAnalysis(ac)
}

func (o *Orchestrator) runPhases(ctx context.Context, st *runState, log logger.Logger) error {
	phases := o.phases()
	for i, p := range phases {
		if err := o.runPhase(ctx, p, st); err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%s phase: run exceeded timeout of %s", p.name, o.runTimeout)
			}
			return fmt.Errorf("%s phase: %w", p.name, err)
		}

		progress := min((i+1)*100/len(phases), 99)
		if err := o.store.UpdateRunProgress(ctx, st.ac.RunID, p.name, progress, st.ac.Metrics.FilesAnalyzed); err != nil {
			log.Warn("Failed to record progress", "phase", p.name, "error", err)
		}
		log.Debug("Phase finished", "phase", p.name, "progress", progress)
	}
	return nil
}

func (o *Orchestrator) runPhase(ctx context.Context, p phase, st *runState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if o.beforePhase != nil {
		if err := o.beforePhase(ctx, p.name); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.run(ctx, st)
}

// completeAnalysis marks the run completed and the snapshot analyzed.
func (o *Orchestrator) completeAnalysis(ac *models.AnalysisContext) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if err := o.store.CompleteRun(ctx, ac.RunID, ac.Metrics); err != nil {
		o.logger.Error("Failed to complete run", "run_id", ac.RunID, "error", err)
		o.failAnalysis(ac.RunID, models.Actor{OrganizationID: ac.OrganizationID, UserID: ac.UserID},
			fmt.Sprintf("completing run: %v", err))
		return
	}

	o.recorder.Record(ctx, models.AuditEvent{
		Action:         audit.ActionComplete,
		EntityType:     audit.EntityRun,
		EntityID:       ac.RunID,
		OrganizationID: ac.OrganizationID,
		UserID:         ac.UserID,
		Metadata: map[string]any{
			"snapshot_id":        ac.SnapshotID,
			"files_analyzed":     ac.Metrics.FilesAnalyzed,
			"findings_generated": ac.Metrics.FindingsGenerated,
			"llm_calls_made":     ac.Metrics.LLMCallsMade,
		},
	})
}

// failAnalysis marks the run failed with message and moves the snapshot out of analyzing.
func (o *Orchestrator) failAnalysis(runID string, actor models.Actor, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	snapshotID, err := o.store.FailRun(ctx, runID, message)
	if err != nil {
		o.logger.Error("Failed to mark run failed", "run_id", runID, "error", err)
		return
	}

	o.recorder.Record(ctx, models.AuditEvent{
		Action:         audit.ActionFail,
		EntityType:     audit.EntityRun,
		EntityID:       runID,
		OrganizationID: actor.OrganizationID,
		UserID:         actor.UserID,
		Metadata: map[string]any{
			"snapshot_id": snapshotID,
			"error":       message,
		},
	})
}
