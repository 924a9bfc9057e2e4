package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NotificationPublisher publishes workflow events to NATS for consumption by
// downstream notification services and the browser console's event feed.
//
// Subject convention: notifications.review.<event_type>
// Event types: WorkflowLaunched, WorkflowStatusChanged, WorkflowRejected,
//              WorkflowCancelled, WorkflowCompleted, WorkflowHold,
//              AgingReminder
//
// All publish operations are non-fatal — errors are logged but never
// propagated to the caller, so publishing failures never interrupt engine
// operations. A nil publisher is valid and publishes nothing.
type NotificationPublisher struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// WorkflowEvent is the JSON schema published to NATS.
type WorkflowEvent struct {
	EventType  string         `json:"event_type"`
	WorkflowID int64          `json:"workflow_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Recipients []string       `json:"recipients"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher connects to NATS. An empty URL returns a nil
// publisher, which disables publishing.
func NewNotificationPublisher(url string, log zerolog.Logger) (*NotificationPublisher, error) {
	if url == "" {
		return nil, nil
	}
	conn, err := nats.Connect(url, nats.Name("contract-review"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NotificationPublisher{conn: conn, log: log}, nil
}

// Close drains the connection.
func (p *NotificationPublisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	_ = p.conn.Drain()
}

// PublishWorkflowEvent publishes one workflow event.
// Subject: notifications.review.<eventType>
func (p *NotificationPublisher) PublishWorkflowEvent(ctx context.Context, eventType string, workflowID int64, actorID string, recipients []string, payload map[string]any) {
	if p == nil || p.conn == nil {
		return
	}
	if len(recipients) == 0 {
		return
	}

	event := &WorkflowEvent{
		EventType:  eventType,
		WorkflowID: workflowID,
		ActorID:    actorID,
		Recipients: recipients,
		Payload:    payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.review.%s", eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Int64("workflow_id", workflowID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Int64("workflow_id", workflowID).
		Int("recipients", len(recipients)).
		Msg("notification: event published")
}
