package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joshsymonds/certify/internal/apperror"
	"github.com/joshsymonds/certify/internal/models"
)

// CreateSnapshot inserts a snapshot record. This models the ingestion boundary.
func (db *DB) CreateSnapshot(ctx context.Context, snapshot *models.Snapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = newID()
	}
	if snapshot.Status == "" {
		snapshot.Status = models.SnapshotIndexed
	}
	if !snapshot.Status.Valid() {
		return apperror.Validation("invalid snapshot status %q", snapshot.Status)
	}
	now := db.now()
	snapshot.CreatedAt = now
	snapshot.UpdatedAt = now

	_, err := db.ExecContext(ctx, `
		INSERT INTO snapshots (id, organization_id, status, extracted_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, snapshot.ID, snapshot.OrganizationID, snapshot.Status, snapshot.ExtractedPath, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("snapshot %s already exists", snapshot.ID)
		}
		return fmt.Errorf("inserting snapshot: %w", err)
	}

	return nil
}

// GetSnapshot loads a snapshot scoped to an organization.
func (db *DB) GetSnapshot(ctx context.Context, snapshotID, organizationID string) (*models.Snapshot, error) {
	var s models.Snapshot
	err := db.QueryRowContext(ctx, `
		SELECT id, organization_id, status, extracted_path, created_at, updated_at
		FROM snapshots
		WHERE id = ? AND organization_id = ?
	`, snapshotID, organizationID).Scan(
		&s.ID, &s.OrganizationID, &s.Status, &s.ExtractedPath, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("snapshot", snapshotID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}
	return &s, nil
}

// ListSnapshots returns an organization's snapshots, newest first.
func (db *DB) ListSnapshots(ctx context.Context, organizationID string) ([]models.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, organization_id, status, extracted_path, created_at, updated_at
		FROM snapshots
		WHERE organization_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var snapshots []models.Snapshot
	for rows.Next() {
		var s models.Snapshot
		if err := rows.Scan(&s.ID, &s.OrganizationID, &s.Status, &s.ExtractedPath, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}

	return snapshots, rows.Err()
}

// UpdateSnapshotStatus sets a snapshot's status.
func (db *DB) UpdateSnapshotStatus(ctx context.Context, snapshotID string, status models.SnapshotStatus) error {
	if !status.Valid() {
		return apperror.Validation("invalid snapshot status %q", status)
	}

	result, err := db.ExecContext(ctx, `
		UPDATE snapshots SET status = ?, updated_at = ? WHERE id = ?
	`, status, db.now(), snapshotID)
	if err != nil {
		return fmt.Errorf("updating snapshot status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NotFound("snapshot", snapshotID)
	}

	return nil
}
