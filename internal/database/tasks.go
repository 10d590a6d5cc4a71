package database

import (
	"context"
	"fmt"

	"github.com/joshsymonds/certify/internal/apperror"
	"github.com/joshsymonds/certify/internal/models"
)

// InsertTask inserts a remediation task.
func (db *DB) InsertTask(ctx context.Context, task *models.RepositoryTask) error {
	if task.ID == "" {
		task.ID = newID()
	}
	if task.Status == "" {
		task.Status = models.TaskStatusOpen
	}
	task.CreatedAt = db.now()

	_, err := db.ExecContext(ctx, `
		INSERT INTO repository_tasks (id, organization_id, snapshot_id, finding_id, title,
			description, priority, status, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.OrganizationID, task.SnapshotID, task.FindingID, task.Title,
		task.Description, task.Priority, task.Status, task.CreatedBy, task.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("finding %s already has a task", task.FindingID)
		}
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

// ListTasks returns the remediation tasks of a snapshot in creation order.
func (db *DB) ListTasks(ctx context.Context, snapshotID, organizationID string) ([]models.RepositoryTask, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, organization_id, snapshot_id, finding_id, title, description, priority,
			status, created_by, created_at
		FROM repository_tasks
		WHERE snapshot_id = ? AND organization_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, snapshotID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	tasks := []models.RepositoryTask{}
	for rows.Next() {
		var t models.RepositoryTask
		if err := rows.Scan(&t.ID, &t.OrganizationID, &t.SnapshotID, &t.FindingID, &t.Title,
			&t.Description, &t.Priority, &t.Status, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
