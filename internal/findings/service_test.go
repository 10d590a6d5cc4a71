package findings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/certify/internal/apperror"
	"github.com/joshsymonds/certify/internal/audit"
	"github.com/joshsymonds/certify/internal/config"
	"github.com/joshsymonds/certify/internal/database"
	"github.com/joshsymonds/certify/internal/models"
	"github.com/joshsymonds/certify/pkg/logger"
)

type failingTasks struct {
	*database.DB
}

func (failingTasks) InsertTask(context.Context, *models.RepositoryTask) error {
	return errors.New("tasks table locked")
}

type brokenRepo struct {
	*database.DB
}

func (brokenRepo) InsertFindings(context.Context, []*models.RepositoryFinding) error {
	return errors.New("disk I/O error")
}

func setup(t *testing.T) (*database.DB, *audit.MemoryRecorder, *logger.MockLogger) {
	t.Helper()

	db, err := database.NewMemoryDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, s := range []*models.Snapshot{
		{ID: "snap-1", OrganizationID: "org-1", Status: models.SnapshotAnalyzed, ExtractedPath: "/tmp/snap-1"},
		{ID: "snap-2", OrganizationID: "org-2", Status: models.SnapshotAnalyzed, ExtractedPath: "/tmp/snap-2"},
	} {
		require.NoError(t, db.CreateSnapshot(ctx, s))
	}

	return db, audit.NewMemoryRecorder(), logger.NewMockLogger()
}

func newService(repo Repository, rec audit.Recorder, log logger.Logger) *Service {
	return NewService(repo, rec, config.Default().Findings, log)
}

func control(id string, status models.FindingStatus, confidence models.Confidence) models.ControlFinding {
	return models.ControlFinding{
		ControlID:       id,
		ControlTitle:    "Control " + id,
		Framework:       models.FrameworkSOC2,
		Status:          status,
		ConfidenceLevel: confidence,
		SignalType:      "mfa",
		Summary:         "summary " + id,
		Evidence:        []models.Evidence{{Path: "src/auth/mfa.ts", LineNumbers: []int{3}, Snippet: "speakeasy.totp.verify({"}},
	}
}

func mixed() []models.ControlFinding {
	return []models.ControlFinding{
		control("CC6.1", models.StatusPass, models.ConfidenceHigh),
		control("CC6.2", models.StatusFail, models.ConfidenceHigh),
		control("CC6.3", models.StatusPartial, models.ConfidenceMedium),
	}
}

func TestCreateFindings(t *testing.T) {
	db, rec, log := setup(t)
	svc := newService(db, rec, log)
	ctx := context.Background()

	created, err := svc.CreateFindings(ctx, "snap-1", "org-1", "run-1", mixed(), "user-1")
	require.NoError(t, err)
	require.Len(t, created, 3)
	for _, f := range created {
		assert.NotEmpty(t, f.ID)
		assert.Equal(t, "snap-1", f.SnapshotID)
		assert.Equal(t, "run-1", f.RunID)
		assert.Nil(t, f.ReviewedAt)
	}

	page, err := svc.GetFindings(ctx, "snap-1", "org-1", Query{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)

	tasks, err := svc.ListTasks(ctx, "snap-1", "org-1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, created[1].ID, tasks[0].FindingID)
	assert.Equal(t, models.PriorityCritical, tasks[0].Priority)
	assert.Equal(t, created[2].ID, tasks[1].FindingID)
	assert.Equal(t, models.PriorityMedium, tasks[1].Priority)
	assert.Equal(t, "user-1", tasks[0].CreatedBy)

	events := rec.Find(audit.ActionCreate, audit.EntityFinding)
	require.Len(t, events, 1)
	assert.Equal(t, 3, events[0].Metadata["count"])
	assert.Equal(t, 2, events[0].Metadata["tasks"])
	assert.Equal(t, "org-1", events[0].OrganizationID)
}

func TestCreateFindings_TaskFailureIsSwallowed(t *testing.T) {
	db, rec, log := setup(t)
	svc := newService(failingTasks{db}, rec, log)

	created, err := svc.CreateFindings(context.Background(), "snap-1", "org-1", "run-1", mixed(), "user-1")
	require.NoError(t, err)
	assert.Len(t, created, 3)
	assert.Equal(t, 2, log.Count("WARN"))
	assert.True(t, log.HasMessage("WARN", "Failed to create remediation task"))

	tasks, err := db.ListTasks(context.Background(), "snap-1", "org-1")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCreateFindings_Errors(t *testing.T) {
	db, rec, log := setup(t)
	ctx := context.Background()

	_, err := newService(db, rec, log).CreateFindings(ctx, "snap-2", "org-1", "run-1", mixed(), "user-1")
	assert.True(t, apperror.IsNotFound(err))

	_, err = newService(brokenRepo{db}, rec, log).CreateFindings(ctx, "snap-1", "org-1", "run-1", mixed(), "user-1")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeFindingsCreate))
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, 500, appErr.HTTPStatus())

	assert.Empty(t, rec.Events())
}

func TestGetFindings(t *testing.T) {
	db, rec, log := setup(t)
	svc := newService(db, rec, log)
	ctx := context.Background()

	var batch []models.ControlFinding
	for i := range 130 {
		status := models.StatusPass
		if i%2 == 0 {
			status = models.StatusFail
		}
		batch = append(batch, control(fmt.Sprintf("C-%03d", i), status, models.ConfidenceHigh))
	}
	_, err := svc.CreateFindings(ctx, "snap-1", "org-1", "run-1", batch, "user-1")
	require.NoError(t, err)

	tests := []struct {
		name      string
		query     Query
		wantLen   int
		wantTotal int
		wantLimit int
		wantPage  int
	}{
		{name: "default page size", query: Query{}, wantLen: 20, wantTotal: 130, wantLimit: 20, wantPage: 1},
		{name: "limit clamped", query: Query{Limit: 500}, wantLen: 100, wantTotal: 130, wantLimit: 100, wantPage: 1},
		{name: "second page", query: Query{Limit: 100, Page: 2}, wantLen: 30, wantTotal: 130, wantLimit: 100, wantPage: 2},
		{name: "status filter", query: Query{Status: "fail", Limit: 100}, wantLen: 65, wantTotal: 65, wantLimit: 100, wantPage: 1},
		{name: "unknown status ignored", query: Query{Status: "bogus", Limit: 10}, wantLen: 10, wantTotal: 130, wantLimit: 10, wantPage: 1},
		{name: "unknown confidence ignored", query: Query{ConfidenceLevel: "certain"}, wantLen: 20, wantTotal: 130, wantLimit: 20, wantPage: 1},
		{name: "confidence filter", query: Query{ConfidenceLevel: "low"}, wantLen: 0, wantTotal: 0, wantLimit: 20, wantPage: 1},
		{name: "framework filter", query: Query{Framework: "ISO27001"}, wantLen: 0, wantTotal: 0, wantLimit: 20, wantPage: 1},
		{name: "negative page", query: Query{Page: -3, Limit: 5}, wantLen: 5, wantTotal: 130, wantLimit: 5, wantPage: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.GetFindings(ctx, "snap-1", "org-1", tt.query)
			require.NoError(t, err)
			assert.Len(t, page.Findings, tt.wantLen)
			assert.Equal(t, tt.wantTotal, page.Total)
			assert.Equal(t, tt.wantLimit, page.Limit)
			assert.Equal(t, tt.wantPage, page.Page)
		})
	}

	_, err = svc.GetFindings(ctx, "snap-1", "org-2", Query{})
	assert.True(t, apperror.IsNotFound(err))

	for _, p := range []int{math.MaxInt, math.MaxInt32} {
		_, err = svc.GetFindings(ctx, "snap-1", "org-1", Query{Page: p, Limit: 100})
		assert.True(t, apperror.IsValidation(err), "page %d", p)
	}
}

func TestReviewFinding(t *testing.T) {
	db, rec, log := setup(t)
	svc := newService(db, rec, log)
	reviewedAt := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	svc.now = func() time.Time { return reviewedAt }
	ctx := context.Background()

	created, err := svc.CreateFindings(ctx, "snap-1", "org-1", "run-1", mixed(), "user-1")
	require.NoError(t, err)
	failing := created[1]

	override := &models.HumanOverride{
		OriginalStatus: models.StatusFail,
		NewStatus:      models.StatusPass,
		Reason:         "MFA enforced by the identity provider, outside this repository",
	}
	reviewed, err := svc.ReviewFinding(ctx, failing.ID, "org-1", "reviewer-1", Review{HumanOverride: override})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPass, reviewed.Status)

	stored, err := svc.GetFindingByID(ctx, failing.ID, "org-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPass, stored.Status)
	assert.Equal(t, "reviewer-1", stored.ReviewedBy)
	require.NotNil(t, stored.ReviewedAt)
	assert.True(t, reviewedAt.Equal(*stored.ReviewedAt))
	require.NotNil(t, stored.HumanOverride)
	assert.Equal(t, *override, *stored.HumanOverride)

	events := rec.Find(audit.ActionReview, audit.EntityFinding)
	require.Len(t, events, 1)
	assert.Equal(t, true, events[0].Metadata["override"])
	assert.Equal(t, "reviewer-1", events[0].UserID)
}

func TestReviewFinding_WithoutOverride(t *testing.T) {
	db, rec, log := setup(t)
	svc := newService(db, rec, log)
	ctx := context.Background()

	created, err := svc.CreateFindings(ctx, "snap-1", "org-1", "run-1", mixed(), "user-1")
	require.NoError(t, err)

	reviewed, err := svc.ReviewFinding(ctx, created[2].ID, "org-1", "reviewer-1", Review{Status: models.StatusPartial})
	require.NoError(t, err)
	assert.Nil(t, reviewed.HumanOverride)
	assert.Equal(t, models.StatusPartial, reviewed.Status)

	events := rec.Find(audit.ActionReview, audit.EntityFinding)
	require.Len(t, events, 1)
	assert.Equal(t, false, events[0].Metadata["override"])
}

func TestReviewFinding_Errors(t *testing.T) {
	db, rec, log := setup(t)
	svc := newService(db, rec, log)
	ctx := context.Background()

	created, err := svc.CreateFindings(ctx, "snap-1", "org-1", "run-1", mixed(), "user-1")
	require.NoError(t, err)
	id := created[0].ID

	_, err = svc.ReviewFinding(ctx, id, "org-2", "reviewer-1", Review{Status: models.StatusFail})
	assert.True(t, apperror.IsNotFound(err), "cross-tenant review must look like a missing finding")

	_, err = svc.ReviewFinding(ctx, "missing", "org-1", "reviewer-1", Review{Status: models.StatusFail})
	assert.True(t, apperror.IsNotFound(err))

	_, err = svc.ReviewFinding(ctx, id, "org-1", "reviewer-1", Review{Status: "great"})
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.ReviewFinding(ctx, id, "org-1", "reviewer-1", Review{
		HumanOverride: &models.HumanOverride{OriginalStatus: "?", NewStatus: models.StatusFail},
	})
	assert.True(t, apperror.IsValidation(err))
}

func TestGetFindingsSummary(t *testing.T) {
	db, rec, log := setup(t)
	svc := newService(db, rec, log)
	ctx := context.Background()

	batch := append(mixed(), control("CC7.2", models.StatusFail, models.ConfidenceMedium))
	_, err := svc.CreateFindings(ctx, "snap-1", "org-1", "run-1", batch, "user-1")
	require.NoError(t, err)

	summary, err := svc.GetFindingsSummary(ctx, "snap-1", "org-1")
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 1, summary.CriticalCount)
	assert.Equal(t, 2, summary.ByStatus[models.StatusFail])
	assert.Equal(t, 1, summary.ByStatus[models.StatusPass])
	assert.Equal(t, 4, summary.ByFramework[models.FrameworkSOC2])
	assert.Equal(t, 2, summary.ByConfidence[models.ConfidenceHigh])

	_, err = svc.GetFindingsSummary(ctx, "snap-2", "org-1")
	assert.True(t, apperror.IsNotFound(err))
}

func TestDeleteSnapshotFindings(t *testing.T) {
	db, rec, log := setup(t)
	svc := newService(db, rec, log)
	ctx := context.Background()

	_, err := svc.CreateFindings(ctx, "snap-1", "org-1", "run-1", mixed(), "user-1")
	require.NoError(t, err)

	_, err = svc.DeleteSnapshotFindings(ctx, "snap-1", "org-2", "user-2")
	assert.True(t, apperror.IsNotFound(err))

	deleted, err := svc.DeleteSnapshotFindings(ctx, "snap-1", "org-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	page, err := svc.GetFindings(ctx, "snap-1", "org-1", Query{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	tasks, err := svc.ListTasks(ctx, "snap-1", "org-1")
	require.NoError(t, err)
	assert.Empty(t, tasks)

	events := rec.Find(audit.ActionDelete, audit.EntityFinding)
	require.Len(t, events, 1)
	assert.Equal(t, 3, events[0].Metadata["count"])
}
