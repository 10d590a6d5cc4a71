package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/joshsymonds/certify/internal/models"
)

// InsertAuditEvent stores one audit record.
func (db *DB) InsertAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	if event.ID == "" {
		event.ID = newID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = db.now()
	}

	metadata := []byte("{}")
	if len(event.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling audit metadata: %w", err)
		}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO audit_events (id, action, entity_type, entity_id, organization_id, user_id,
			metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.Action, event.EntityType, event.EntityID, event.OrganizationID,
		event.UserID, string(metadata), event.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

// ListAuditEvents returns the audit trail of an entity in an organization, oldest first.
func (db *DB) ListAuditEvents(ctx context.Context, organizationID, entityID string) ([]models.AuditEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, action, entity_type, entity_id, organization_id, user_id, metadata, created_at
		FROM audit_events
		WHERE organization_id = ? AND entity_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, organizationID, entityID)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var events []models.AuditEvent
	for rows.Next() {
		var (
			e        models.AuditEvent
			metadata string
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.EntityType, &e.EntityID, &e.OrganizationID,
			&e.UserID, &metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling audit metadata: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
