// Package findings persists control findings and their remediation tasks.
package findings

import (
	"context"
	"math"
	"time"

	"github.com/joshsymonds/certify/internal/apperror"
	"github.com/joshsymonds/certify/internal/audit"
	"github.com/joshsymonds/certify/internal/config"
	"github.com/joshsymonds/certify/internal/database"
	"github.com/joshsymonds/certify/internal/models"
	"github.com/joshsymonds/certify/internal/remediation"
	"github.com/joshsymonds/certify/pkg/logger"
)

// Repository is the persistence the service needs. *database.DB implements it.
type Repository interface {
	GetSnapshot(ctx context.Context, snapshotID, organizationID string) (*models.Snapshot, error)
	InsertFindings(ctx context.Context, findings []*models.RepositoryFinding) error
	InsertTask(ctx context.Context, task *models.RepositoryTask) error
	ListFindings(ctx context.Context, filter database.FindingFilter) ([]models.RepositoryFinding, int, error)
	GetFinding(ctx context.Context, findingID, organizationID string) (*models.RepositoryFinding, error)
	UpdateFindingReview(ctx context.Context, finding *models.RepositoryFinding) error
	SummarizeFindings(ctx context.Context, snapshotID, organizationID string) (*models.FindingsSummary, error)
	DeleteFindings(ctx context.Context, snapshotID, organizationID string) (int, error)
	ListTasks(ctx context.Context, snapshotID, organizationID string) ([]models.RepositoryTask, error)
}

// Query selects one page of a snapshot's findings. Unrecognized filter values
// are ignored.
type Query struct {
	Status          string
	ConfidenceLevel string
	Framework       string
	Page            int
	Limit           int
}

// Page is one page of findings.
type Page struct {
	Findings []models.RepositoryFinding `json:"findings"`
	Total    int                        `json:"total"`
	Page     int                        `json:"page"`
	Limit    int                        `json:"limit"`
}

// Review is a reviewer's verdict on a finding. When HumanOverride is set its
// NewStatus becomes the finding's status.
type Review struct {
	HumanOverride *models.HumanOverride `json:"humanOverride,omitempty"`
	Status        models.FindingStatus  `json:"status"`
}

// Service implements the findings operations.
type Service struct {
	repo     Repository
	recorder audit.Recorder
	tasks    *remediation.TaskBuilder
	logger   logger.Logger
	now      func() time.Time
	cfg      config.FindingsConfig
}

// NewService creates a findings service.
func NewService(repo Repository, recorder audit.Recorder, cfg config.FindingsConfig, log logger.Logger) *Service {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Service{
		repo:     repo,
		recorder: recorder,
		tasks:    remediation.NewTaskBuilder(log),
		logger:   log,
		now:      time.Now,
		cfg:      cfg,
	}
}

// CreateFindings persists findings for a snapshot and creates one task per
// failing or partial finding. Task failures are logged and never returned.
func (s *Service) CreateFindings(ctx context.Context, snapshotID, organizationID, runID string,
	findings []models.ControlFinding, actorUserID string,
) ([]models.RepositoryFinding, error) {
	if _, err := s.repo.GetSnapshot(ctx, snapshotID, organizationID); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeFindingsCreate, "failed to create findings")
	}

	rows := make([]*models.RepositoryFinding, 0, len(findings))
	for _, f := range findings {
		rows = append(rows, &models.RepositoryFinding{
			SnapshotID:     snapshotID,
			OrganizationID: organizationID,
			RunID:          runID,
			ControlFinding: f,
		})
	}

	if err := s.repo.InsertFindings(ctx, rows); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeFindingsCreate, "failed to create findings")
	}

	created := 0
	for _, row := range rows {
		task, ok := s.tasks.Build(row, actorUserID)
		if !ok {
			continue
		}
		if err := s.repo.InsertTask(ctx, task); err != nil {
			s.logger.Warn("Failed to create remediation task",
				"finding_id", row.ID,
				"control_id", row.ControlID,
				"error", err)
			continue
		}
		created++
	}

	s.recorder.Record(ctx, models.AuditEvent{
		Action:         audit.ActionCreate,
		EntityType:     audit.EntityFinding,
		EntityID:       snapshotID,
		OrganizationID: organizationID,
		UserID:         actorUserID,
		Metadata: map[string]any{
			"count":  len(rows),
			"tasks":  created,
			"run_id": runID,
		},
	})

	s.logger.Info("Created findings",
		"snapshot_id", snapshotID,
		"run_id", runID,
		"count", len(rows),
		"tasks", created)

	out := make([]models.RepositoryFinding, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	return out, nil
}

// GetFindings returns one page of a snapshot's findings.
func (s *Service) GetFindings(ctx context.Context, snapshotID, organizationID string, q Query) (*Page, error) {
	if _, err := s.repo.GetSnapshot(ctx, snapshotID, organizationID); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeFindingsQuery, "failed to query findings")
	}

	page := max(q.Page, 1)
	limit := q.Limit
	if limit <= 0 {
		limit = s.cfg.DefaultPageSize
	}
	limit = min(limit, s.cfg.MaxPageSize)
	if page-1 > math.MaxInt32/limit {
		return nil, apperror.Validation("page %d is out of range", q.Page)
	}

	filter := database.FindingFilter{
		SnapshotID:     snapshotID,
		OrganizationID: organizationID,
		Limit:          limit,
		Offset:         (page - 1) * limit,
	}
	if status := models.FindingStatus(q.Status); status.Valid() {
		filter.Status = status
	}
	if confidence := models.Confidence(q.ConfidenceLevel); confidence.Valid() {
		filter.ConfidenceLevel = confidence
	}
	if framework := models.Framework(q.Framework); framework.IsSupported() {
		filter.Framework = framework
	}

	rows, total, err := s.repo.ListFindings(ctx, filter)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeFindingsQuery, "failed to query findings")
	}

	return &Page{Findings: rows, Total: total, Page: page, Limit: limit}, nil
}

// GetFindingByID loads a finding owned by organizationID.
func (s *Service) GetFindingByID(ctx context.Context, findingID, organizationID string) (*models.RepositoryFinding, error) {
	f, err := s.repo.GetFinding(ctx, findingID, organizationID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeFindingsQuery, "failed to load finding")
	}
	return f, nil
}

// ReviewFinding records a reviewer's verdict and, when supplied, the override.
func (s *Service) ReviewFinding(ctx context.Context, findingID, organizationID, reviewerUserID string, review Review) (*models.RepositoryFinding, error) {
	f, err := s.GetFindingByID(ctx, findingID, organizationID)
	if err != nil {
		return nil, err
	}

	status := review.Status
	if review.HumanOverride != nil {
		status = review.HumanOverride.NewStatus
	}
	if !status.Valid() {
		return nil, apperror.Validation("invalid finding status %q", status)
	}
	if review.HumanOverride != nil {
		if !review.HumanOverride.OriginalStatus.Valid() {
			return nil, apperror.Validation("invalid original status %q", review.HumanOverride.OriginalStatus)
		}
		override := *review.HumanOverride
		f.HumanOverride = &override
	}

	reviewedAt := s.now().UTC()
	f.Status = status
	f.ReviewedBy = reviewerUserID
	f.ReviewedAt = &reviewedAt

	if err := s.repo.UpdateFindingReview(ctx, f); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeFindingsReview, "failed to review finding")
	}

	s.recorder.Record(ctx, models.AuditEvent{
		Action:         audit.ActionReview,
		EntityType:     audit.EntityFinding,
		EntityID:       findingID,
		OrganizationID: organizationID,
		UserID:         reviewerUserID,
		Metadata: map[string]any{
			"status":   string(status),
			"override": review.HumanOverride != nil,
		},
	})

	return f, nil
}

// GetFindingsSummary aggregates a snapshot's findings.
func (s *Service) GetFindingsSummary(ctx context.Context, snapshotID, organizationID string) (*models.FindingsSummary, error) {
	if _, err := s.repo.GetSnapshot(ctx, snapshotID, organizationID); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeFindingsQuery, "failed to summarize findings")
	}

	summary, err := s.repo.SummarizeFindings(ctx, snapshotID, organizationID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeFindingsQuery, "failed to summarize findings")
	}
	return summary, nil
}

// DeleteSnapshotFindings removes every finding and task of a snapshot.
func (s *Service) DeleteSnapshotFindings(ctx context.Context, snapshotID, organizationID, actorUserID string) (int, error) {
	if _, err := s.repo.GetSnapshot(ctx, snapshotID, organizationID); err != nil {
		return 0, apperror.Wrap(err, apperror.CodeFindingsDelete, "failed to delete findings")
	}

	deleted, err := s.repo.DeleteFindings(ctx, snapshotID, organizationID)
	if err != nil {
		return 0, apperror.Wrap(err, apperror.CodeFindingsDelete, "failed to delete findings")
	}

	s.recorder.Record(ctx, models.AuditEvent{
		Action:         audit.ActionDelete,
		EntityType:     audit.EntityFinding,
		EntityID:       snapshotID,
		OrganizationID: organizationID,
		UserID:         actorUserID,
		Metadata:       map[string]any{"count": deleted},
	})

	return deleted, nil
}

// ListTasks returns the remediation tasks of a snapshot.
func (s *Service) ListTasks(ctx context.Context, snapshotID, organizationID string) ([]models.RepositoryTask, error) {
	if _, err := s.repo.GetSnapshot(ctx, snapshotID, organizationID); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeFindingsQuery, "failed to list tasks")
	}

	tasks, err := s.repo.ListTasks(ctx, snapshotID, organizationID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeFindingsQuery, "failed to list tasks")
	}
	return tasks, nil
}
