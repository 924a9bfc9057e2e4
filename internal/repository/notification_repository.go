package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/asuwest1/ContractReviewOA/internal/database"
	"github.com/asuwest1/ContractReviewOA/internal/errors"
)

// NotificationRepository records outbound notifications and the reminder log
// that keeps the aging evaluator idempotent.
type NotificationRepository struct {
	db *database.DB
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *database.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// InsertNotification appends one notification record.
func (r *NotificationRepository) InsertNotification(ctx context.Context, n *Notification) error {
	var payloadJSON []byte
	if n.Payload != nil {
		var err error
		payloadJSON, err = json.Marshal(n.Payload)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal notification payload")
		}
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO notifications (workflow_id, event, recipient, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING notification_id, created_at
	`, n.WorkflowID, n.Event, n.Recipient, payloadJSON).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert notification")
	}
	return nil
}

// ListNotifications returns recorded notifications, newest first, optionally
// filtered to one workflow.
func (r *NotificationRepository) ListNotifications(ctx context.Context, workflowID *int64) ([]*Notification, error) {
	var rows pgx.Rows
	var err error
	if workflowID == nil {
		rows, err = r.db.Query(ctx, `
			SELECT notification_id, workflow_id, event, recipient, created_at, payload
			FROM notifications
			ORDER BY notification_id DESC
		`)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT notification_id, workflow_id, event, recipient, created_at, payload
			FROM notifications
			WHERE workflow_id = $1
			ORDER BY notification_id DESC
		`, *workflowID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list notifications")
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		n := &Notification{}
		var payloadJSON []byte
		err := rows.Scan(&n.ID, &n.WorkflowID, &n.Event, &n.Recipient, &n.CreatedAt, &payloadJSON)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan notification")
		}
		if payloadJSON != nil {
			if err := json.Unmarshal(payloadJSON, &n.Payload); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal notification payload")
			}
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

// HasReminder reports whether a reminder was already sent for the workflow at
// the given threshold.
func (r *NotificationRepository) HasReminder(ctx context.Context, workflowID int64, thresholdDays int) (bool, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM reminder_log
		WHERE workflow_id = $1 AND threshold_days = $2
	`, workflowID, thresholdDays).Scan(&count)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to check reminder log")
	}
	return count > 0, nil
}

// InsertReminder appends one reminder-log row.
func (r *NotificationRepository) InsertReminder(ctx context.Context, rem *Reminder) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO reminder_log (workflow_id, step_id, threshold_days)
		VALUES ($1, $2, $3)
		RETURNING reminder_id, reminded_at
	`, rem.WorkflowID, rem.StepID, rem.ThresholdDays).Scan(&rem.ID, &rem.RemindedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert reminder log")
	}
	return nil
}
