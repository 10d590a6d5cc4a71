// Package app wires the database, audit recorder, findings service and
// analysis orchestrator from a configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshsymonds/certify/internal/analysis"
	"github.com/joshsymonds/certify/internal/audit"
	"github.com/joshsymonds/certify/internal/config"
	"github.com/joshsymonds/certify/internal/database"
	"github.com/joshsymonds/certify/internal/enrichment"
	"github.com/joshsymonds/certify/internal/findings"
	"github.com/joshsymonds/certify/pkg/logger"
)

// App holds the long-lived components of a certify process.
type App struct {
	Config       *config.Config
	DB           *database.DB
	Recorder     *audit.AsyncRecorder
	Findings     *findings.Service
	Orchestrator *analysis.Orchestrator
	logger       logger.Logger
}

// New opens the database and builds every component. Workers are not started.
func New(cfg *config.Config, log logger.Logger) (*App, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	db, err := database.New(cfg.Database.Path,
		database.WithMaxConnections(cfg.Database.MaxConnections),
		database.WithBusyTimeout(cfg.Database.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	recorder := audit.NewAsyncRecorder(db, audit.DefaultBufferSize, log)
	svc := findings.NewService(db, recorder, cfg.Findings, log)

	opts := []analysis.Option{
		analysis.WithRecorder(recorder),
		analysis.WithLogger(log),
	}
	if cfg.AI.Enabled {
		summarizer, err := enrichment.NewOpenAISummarizer(cfg.AI, log)
		if err != nil {
			_ = recorder.Close(context.Background())
			_ = db.Close()
			return nil, fmt.Errorf("configuring AI summaries: %w", err)
		}
		opts = append(opts, analysis.WithSummarizer(summarizer))
		log.Info("AI summaries enabled", "model", cfg.AI.Model)
	}

	return &App{
		Config:       cfg,
		DB:           db,
		Recorder:     recorder,
		Findings:     svc,
		Orchestrator: analysis.NewOrchestrator(db, svc, cfg.Analysis, opts...),
		logger:       log,
	}, nil
}

// Close drains the workers and the audit queue, then closes the database.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Orchestrator.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stopping analysis workers: %w", err))
	}
	if err := a.Recorder.Close(ctx); err != nil && !errors.Is(err, audit.ErrClosed) {
		errs = append(errs, fmt.Errorf("flushing audit events: %w", err))
	}
	if err := a.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	return errors.Join(errs...)
}
