package repository

import (
	"context"
	"encoding/json"

	"github.com/asuwest1/ContractReviewOA/internal/database"
	"github.com/asuwest1/ContractReviewOA/internal/errors"
)

// AuditRepository appends immutable audit-log entries. Append is the only
// mutation exposed; rows are never updated or deleted.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AppendAudit inserts one audit entry.
func (r *AuditRepository) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	var detailsJSON []byte
	if entry.Details != nil {
		var err error
		detailsJSON, err = json.Marshal(entry.Details)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit details")
		}
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO audit_log (entity_type, entity_id, action, actor, details)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING audit_id, created_at
	`,
		entry.EntityType, entry.EntityID, entry.Action, entry.Actor, detailsJSON,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert audit entry")
	}
	return nil
}
