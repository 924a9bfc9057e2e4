package service

import (
	"context"
	"fmt"

	"github.com/asuwest1/ContractReviewOA/internal/logger"
	"github.com/asuwest1/ContractReviewOA/internal/repository"
)

// Notifier is the notification emitter: given an event it records one
// Notification row per recipient, hands delivery to the mailer and event
// publisher, and audits each SMTP dispatch. Emission is best effort — a
// failing collaborator never fails the engine operation that triggered it.
type Notifier struct {
	notifications NotificationStore
	audit         AuditStore
	mailer        EventMailer
	publisher     EventPublisher
	log           *logger.Logger
}

// NewNotifier creates a Notifier. mailer and publisher may be nil.
func NewNotifier(
	notifications NotificationStore,
	audit AuditStore,
	mailer EventMailer,
	publisher EventPublisher,
	log *logger.Logger,
) *Notifier {
	return &Notifier{
		notifications: notifications,
		audit:         audit,
		mailer:        mailer,
		publisher:     publisher,
		log:           log,
	}
}

// Notify emits one event to each recipient.
func (n *Notifier) Notify(ctx context.Context, workflowID int64, actor, event string, recipients []string, payload map[string]any) {
	for _, recipient := range recipients {
		record := &repository.Notification{
			WorkflowID: &workflowID,
			Event:      event,
			Recipient:  recipient,
			Payload:    payload,
		}
		if err := n.notifications.InsertNotification(ctx, record); err != nil {
			n.log.Warn().Err(err).
				Int64("workflow_id", workflowID).
				Str("event", event).
				Msg("Failed to record notification")
			continue
		}

		sent := false
		var sendErr error
		if n.mailer != nil {
			sent, sendErr = n.mailer.SendEvent(recipient, event, payload)
		}
		details := map[string]any{"emailSent": sent}
		if sendErr != nil {
			details["error"] = sendErr.Error()
			n.log.Warn().Err(sendErr).
				Str("recipient", recipient).
				Str("event", event).
				Msg("SMTP delivery failed (non-fatal)")
		}
		n.appendAudit(ctx, &repository.AuditEntry{
			EntityType: "notification",
			EntityID:   fmt.Sprintf("%d:%s:%s", workflowID, recipient, event),
			Action:     "smtp_dispatch",
			Actor:      "system",
			Details:    details,
		})
	}

	if n.publisher != nil {
		n.publisher.PublishWorkflowEvent(ctx, event, workflowID, actor, recipients, payload)
	}
}

// appendAudit writes an audit entry and logs a warning on failure.
func (n *Notifier) appendAudit(ctx context.Context, entry *repository.AuditEntry) {
	if err := n.audit.AppendAudit(ctx, entry); err != nil {
		n.log.Warn().Err(err).
			Str("entity_type", entry.EntityType).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}
