package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/joshsymonds/certify/internal/apperror"
	"github.com/joshsymonds/certify/internal/models"
)

const runColumns = `id, snapshot_id, organization_id, user_id, frameworks, depth, phase_status,
	current_phase, progress, files_analyzed, findings_generated, llm_calls_made, tokens_used,
	cost_estimate, error_message, created_at, started_at, completed_at`

// CreateRun atomically inserts a pending run and moves its snapshot from
// indexed to analyzing. It fails with a Conflict error when the snapshot
// already has a pending or running analysis.
func (db *DB) CreateRun(ctx context.Context, run *models.AnalysisRun) error {
	if run.ID == "" {
		run.ID = newID()
	}
	run.PhaseStatus = models.PhasePending
	run.CreatedAt = db.now()

	frameworks, err := json.Marshal(run.Frameworks)
	if err != nil {
		return fmt.Errorf("marshaling frameworks: %w", err)
	}

	err = db.InTransaction(ctx, func(tx *sql.Tx) error {
		var active int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM analysis_runs
			WHERE snapshot_id = ? AND phase_status IN ('pending', 'running')
		`, run.SnapshotID).Scan(&active); err != nil {
			return fmt.Errorf("checking active runs: %w", err)
		}
		if active > 0 {
			return apperror.Conflict("snapshot %s already has an analysis in progress", run.SnapshotID)
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE snapshots SET status = ?, updated_at = ?
			WHERE id = ? AND organization_id = ? AND status = ?
		`, models.SnapshotAnalyzing, run.CreatedAt, run.SnapshotID, run.OrganizationID, models.SnapshotIndexed)
		if err != nil {
			return fmt.Errorf("marking snapshot analyzing: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("getting rows affected: %w", err)
		} else if n == 0 {
			return apperror.Validation("snapshot %s is not indexed", run.SnapshotID)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO analysis_runs (id, snapshot_id, organization_id, user_id, frameworks, depth,
				phase_status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, run.ID, run.SnapshotID, run.OrganizationID, run.UserID, string(frameworks), run.Depth,
			run.PhaseStatus, run.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("snapshot %s already has an analysis in progress", run.SnapshotID)
			}
			return fmt.Errorf("inserting run: %w", err)
		}

		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("snapshot %s already has an analysis in progress", run.SnapshotID)
		}
		return err
	}

	return nil
}

// MarkRunRunning moves a pending run to running.
func (db *DB) MarkRunRunning(ctx context.Context, runID string) error {
	now := db.now()
	return db.transitionRun(ctx, runID, models.PhaseRunning, `
		UPDATE analysis_runs SET phase_status = ?, started_at = ?
		WHERE id = ? AND phase_status = ?
	`, models.PhaseRunning, now, runID, models.PhasePending)
}

// UpdateRunProgress records the phase just finished and the overall progress.
func (db *DB) UpdateRunProgress(ctx context.Context, runID string, phase models.Phase, progress, filesAnalyzed int) error {
	return db.transitionRun(ctx, runID, models.PhaseRunning, `
		UPDATE analysis_runs SET current_phase = ?, progress = ?, files_analyzed = ?
		WHERE id = ? AND phase_status = ?
	`, phase, progress, filesAnalyzed, runID, models.PhaseRunning)
}

// CompleteRun marks a running run completed, copies its metrics and marks
// the snapshot analyzed.
func (db *DB) CompleteRun(ctx context.Context, runID string, metrics models.Metrics) error {
	now := db.now()
	return db.InTransaction(ctx, func(tx *sql.Tx) error {
		snapshotID, err := runSnapshotID(ctx, tx, runID)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE analysis_runs
			SET phase_status = ?, progress = 100, files_analyzed = ?, findings_generated = ?,
				llm_calls_made = ?, tokens_used = ?, cost_estimate = ?, completed_at = ?
			WHERE id = ? AND phase_status = ?
		`, models.PhaseCompleted, metrics.FilesAnalyzed, metrics.FindingsGenerated,
			metrics.LLMCallsMade, metrics.TokensUsed, metrics.CostEstimate, now,
			runID, models.PhaseRunning)
		if err != nil {
			return fmt.Errorf("completing run: %w", err)
		}
		if err := requireTransition(result, runID, models.PhaseCompleted); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE snapshots SET status = ?, updated_at = ? WHERE id = ? AND status = ?
		`, models.SnapshotAnalyzed, now, snapshotID, models.SnapshotAnalyzing)
		if err != nil {
			return fmt.Errorf("marking snapshot analyzed: %w", err)
		}
		return nil
	})
}

// FailRun marks a pending or running run failed with message and moves the
// snapshot out of analyzing. It returns the snapshot id for auditing.
func (db *DB) FailRun(ctx context.Context, runID, message string) (string, error) {
	now := db.now()
	var snapshotID string
	err := db.InTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		snapshotID, err = runSnapshotID(ctx, tx, runID)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE analysis_runs SET phase_status = ?, error_message = ?, completed_at = ?
			WHERE id = ? AND phase_status IN (?, ?)
		`, models.PhaseFailed, message, now, runID, models.PhasePending, models.PhaseRunning)
		if err != nil {
			return fmt.Errorf("failing run: %w", err)
		}
		if err := requireTransition(result, runID, models.PhaseFailed); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE snapshots SET status = ?, updated_at = ? WHERE id = ? AND status = ?
		`, models.SnapshotFailed, now, snapshotID, models.SnapshotAnalyzing)
		if err != nil {
			return fmt.Errorf("marking snapshot failed: %w", err)
		}
		return nil
	})
	return snapshotID, err
}

// GetRun loads a run scoped to an organization.
func (db *DB) GetRun(ctx context.Context, runID, organizationID string) (*models.AnalysisRun, error) {
	row := db.QueryRowContext(ctx, `SELECT `+runColumns+`
		FROM analysis_runs WHERE id = ? AND organization_id = ?`, runID, organizationID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("analysis run", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return run, nil
}

// ListRuns returns the runs of a snapshot, newest first.
func (db *DB) ListRuns(ctx context.Context, snapshotID, organizationID string) ([]models.AnalysisRun, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+runColumns+`
		FROM analysis_runs WHERE snapshot_id = ? AND organization_id = ?
		ORDER BY created_at DESC, rowid DESC`, snapshotID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var runs []models.AnalysisRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// CountActiveRuns returns the number of pending or running runs for a snapshot.
func (db *DB) CountActiveRuns(ctx context.Context, snapshotID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM analysis_runs
		WHERE snapshot_id = ? AND phase_status IN ('pending', 'running')
	`, snapshotID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting active runs: %w", err)
	}
	return n, nil
}

func (db *DB) transitionRun(ctx context.Context, runID string, to models.PhaseStatus, query string, args ...any) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", runID, err)
	}
	return requireTransition(result, runID, to)
}

func requireTransition(result sql.Result, runID string, to models.PhaseStatus) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return apperror.Conflict("run %s cannot move to %s", runID, to)
	}
	return nil
}

func runSnapshotID(ctx context.Context, tx *sql.Tx, runID string) (string, error) {
	var snapshotID string
	err := tx.QueryRowContext(ctx, `SELECT snapshot_id FROM analysis_runs WHERE id = ?`, runID).Scan(&snapshotID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperror.NotFound("analysis run", runID)
	}
	if err != nil {
		return "", fmt.Errorf("querying run: %w", err)
	}
	return snapshotID, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.AnalysisRun, error) {
	var (
		run         models.AnalysisRun
		frameworks  string
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	err := row.Scan(
		&run.ID, &run.SnapshotID, &run.OrganizationID, &run.UserID, &frameworks, &run.Depth,
		&run.PhaseStatus, &run.CurrentPhase, &run.Progress, &run.FilesAnalyzed,
		&run.FindingsGenerated, &run.LLMCallsMade, &run.TokensUsed, &run.CostEstimate,
		&run.ErrorMessage, &run.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(frameworks) != "" {
		if err := json.Unmarshal([]byte(frameworks), &run.Frameworks); err != nil {
			return nil, fmt.Errorf("unmarshaling frameworks: %w", err)
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		run.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return &run, nil
}
