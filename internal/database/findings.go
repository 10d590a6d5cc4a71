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

const findingColumns = `id, snapshot_id, organization_id, run_id, control_id, control_title, framework,
	status, confidence_level, signal_type, summary, recommendation, evidence, ai_model,
	reviewed_by, reviewed_at, human_override, created_at, updated_at`

// FindingFilter selects findings for a snapshot. Empty filter fields match everything.
type FindingFilter struct {
	SnapshotID      string
	OrganizationID  string
	Status          models.FindingStatus
	ConfidenceLevel models.Confidence
	Framework       models.Framework
	Limit           int
	Offset          int
}

// InsertFindings inserts a batch of findings in a single transaction.
// IDs and timestamps are assigned on the passed values.
func (db *DB) InsertFindings(ctx context.Context, findings []*models.RepositoryFinding) error {
	if len(findings) == 0 {
		return nil
	}

	now := db.now()
	return db.InTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO repository_findings (id, snapshot_id, organization_id, run_id, control_id,
				control_title, framework, status, confidence_level, signal_type, summary,
				recommendation, evidence, ai_model, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		defer func() {
			_ = stmt.Close()
		}()

		for _, f := range findings {
			if f.ID == "" {
				f.ID = newID()
			}
			f.CreatedAt = now
			f.UpdatedAt = now

			evidence, err := marshalEvidence(f.Evidence)
			if err != nil {
				return err
			}

			_, err = stmt.ExecContext(ctx,
				f.ID, f.SnapshotID, f.OrganizationID, f.RunID, f.ControlID,
				f.ControlTitle, f.Framework, f.Status, f.ConfidenceLevel, f.SignalType, f.Summary,
				f.Recommendation, evidence, f.AIModel, now, now,
			)
			if err != nil {
				return fmt.Errorf("inserting finding %s: %w", f.ControlID, err)
			}
		}

		return nil
	})
}

// ListFindings returns one page of findings and the total number matching filter.
func (db *DB) ListFindings(ctx context.Context, filter FindingFilter) ([]models.RepositoryFinding, int, error) {
	where := []string{"snapshot_id = ?", "organization_id = ?"}
	args := []any{filter.SnapshotID, filter.OrganizationID}

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.ConfidenceLevel != "" {
		where = append(where, "confidence_level = ?")
		args = append(args, filter.ConfidenceLevel)
	}
	if filter.Framework != "" {
		where = append(where, "framework = ?")
		args = append(args, filter.Framework)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM repository_findings WHERE "+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting findings: %w", err)
	}

	query := "SELECT " + findingColumns + " FROM repository_findings WHERE " + clause +
		" ORDER BY created_at ASC, rowid ASC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying findings: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	findings := []models.RepositoryFinding{}
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning finding: %w", err)
		}
		findings = append(findings, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating findings: %w", err)
	}

	return findings, total, nil
}

// GetFinding loads a finding scoped to an organization.
func (db *DB) GetFinding(ctx context.Context, findingID, organizationID string) (*models.RepositoryFinding, error) {
	row := db.QueryRowContext(ctx, "SELECT "+findingColumns+
		" FROM repository_findings WHERE id = ? AND organization_id = ?", findingID, organizationID)

	f, err := scanFinding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("finding", findingID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying finding: %w", err)
	}
	return f, nil
}

// UpdateFindingReview persists the review fields of a finding.
func (db *DB) UpdateFindingReview(ctx context.Context, finding *models.RepositoryFinding) error {
	var override sql.NullString
	if finding.HumanOverride != nil {
		data, err := json.Marshal(finding.HumanOverride)
		if err != nil {
			return fmt.Errorf("marshaling human override: %w", err)
		}
		override = sql.NullString{String: string(data), Valid: true}
	}

	finding.UpdatedAt = db.now()
	result, err := db.ExecContext(ctx, `
		UPDATE repository_findings
		SET status = ?, reviewed_by = ?, reviewed_at = ?, human_override = ?, updated_at = ?
		WHERE id = ? AND organization_id = ?
	`, finding.Status, finding.ReviewedBy, finding.ReviewedAt, override, finding.UpdatedAt,
		finding.ID, finding.OrganizationID)
	if err != nil {
		return fmt.Errorf("updating finding review: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("finding", finding.ID)
	}
	return nil
}

// SummarizeFindings aggregates a snapshot's findings by status, framework and confidence.
func (db *DB) SummarizeFindings(ctx context.Context, snapshotID, organizationID string) (*models.FindingsSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT status, framework, confidence_level, COUNT(*)
		FROM repository_findings
		WHERE snapshot_id = ? AND organization_id = ?
		GROUP BY status, framework, confidence_level
	`, snapshotID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("summarizing findings: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	summary := models.NewFindingsSummary()
	for rows.Next() {
		var (
			status     models.FindingStatus
			framework  models.Framework
			confidence models.Confidence
			count      int
		)
		if err := rows.Scan(&status, &framework, &confidence, &count); err != nil {
			return nil, fmt.Errorf("scanning summary row: %w", err)
		}
		summary.Add(status, framework, confidence, count)
	}

	return summary, rows.Err()
}

// DeleteFindings removes all findings and tasks of a snapshot and returns the
// number of findings deleted.
func (db *DB) DeleteFindings(ctx context.Context, snapshotID, organizationID string) (int, error) {
	var deleted int64
	err := db.InTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM repository_tasks WHERE snapshot_id = ? AND organization_id = ?
		`, snapshotID, organizationID); err != nil {
			return fmt.Errorf("deleting tasks: %w", err)
		}

		result, err := tx.ExecContext(ctx, `
			DELETE FROM repository_findings WHERE snapshot_id = ? AND organization_id = ?
		`, snapshotID, organizationID)
		if err != nil {
			return fmt.Errorf("deleting findings: %w", err)
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return int(deleted), err
}

func marshalEvidence(evidence []models.Evidence) (string, error) {
	if evidence == nil {
		evidence = []models.Evidence{}
	}
	data, err := json.Marshal(evidence)
	if err != nil {
		return "", fmt.Errorf("marshaling evidence: %w", err)
	}
	return string(data), nil
}

func scanFinding(row rowScanner) (*models.RepositoryFinding, error) {
	var (
		f          models.RepositoryFinding
		evidence   string
		reviewedBy sql.NullString
		reviewedAt sql.NullTime
		override   sql.NullString
	)
	err := row.Scan(
		&f.ID, &f.SnapshotID, &f.OrganizationID, &f.RunID, &f.ControlID, &f.ControlTitle,
		&f.Framework, &f.Status, &f.ConfidenceLevel, &f.SignalType, &f.Summary,
		&f.Recommendation, &evidence, &f.AIModel, &reviewedBy, &reviewedAt, &override,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(evidence), &f.Evidence); err != nil {
		return nil, fmt.Errorf("unmarshaling evidence: %w", err)
	}
	f.ReviewedBy = reviewedBy.String
	if reviewedAt.Valid {
		t := reviewedAt.Time
		f.ReviewedAt = &t
	}
	if override.Valid && override.String != "" {
		var ho models.HumanOverride
		if err := json.Unmarshal([]byte(override.String), &ho); err != nil {
			return nil, fmt.Errorf("unmarshaling human override: %w", err)
		}
		f.HumanOverride = &ho
	}

	return &f, nil
}
