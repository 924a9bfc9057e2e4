package service

import (
	"context"

	"github.com/asuwest1/ContractReviewOA/internal/repository"
)

// The engine consumes record storage through these interfaces. The pgx-backed
// repositories in internal/repository are the production implementations;
// tests substitute in-memory fakes. Every method that performs a multi-row
// write is atomic: either all of its rows become visible or none do.

// WorkflowStore persists workflows and their status transitions.
type WorkflowStore interface {
	CreateWorkflow(ctx context.Context, wf *repository.Workflow, steps []*repository.Step, doc *repository.Document, history *repository.StatusChange) error
	GetWorkflow(ctx context.Context, id int64) (*repository.Workflow, error)
	GetWorkflowDetail(ctx context.Context, id int64) (*repository.WorkflowDetail, error)
	ListWorkflows(ctx context.Context, vis repository.Visibility) ([]*repository.Workflow, error)
	ListByStatuses(ctx context.Context, statuses []string) ([]*repository.Workflow, error)
	UpdateWorkflowStatus(ctx context.Context, id int64, upd repository.StatusUpdate) (*repository.StatusChange, error)
	SetHold(ctx context.Context, id int64, hold bool) error
	CountByStatus(ctx context.Context, vis repository.Visibility) (map[string]int, error)
	ListCorrectionQueue(ctx context.Context, vis repository.Visibility) ([]*repository.Workflow, error)
}

// StepStore persists approval steps and decisions.
type StepStore interface {
	GetStep(ctx context.Context, id int64) (*repository.Step, error)
	ListSteps(ctx context.Context, workflowID int64) ([]*repository.Step, error)
	ApplyDecision(ctx context.Context, upd repository.DecisionUpdate) (*repository.StatusChange, error)
	ListPendingSteps(ctx context.Context, vis repository.Visibility) ([]*repository.PendingStep, error)
}

// DocumentStore persists workflow documents.
type DocumentStore interface {
	AddDocument(ctx context.Context, doc *repository.Document) error
	ListDocuments(ctx context.Context, workflowID int64) ([]*repository.Document, error)
	MaxVersion(ctx context.Context, workflowID int64) (int, error)
}

// SettingsStore persists system settings, the role catalog and user-role
// mappings.
type SettingsStore interface {
	GetSettings(ctx context.Context) (map[string]string, error)
	PutSetting(ctx context.Context, key, value string) error
	ListRoles(ctx context.Context) ([]string, error)
	RoleExists(ctx context.Context, name string) (bool, error)
	CreateRole(ctx context.Context, name string) error
	ListUserRoles(ctx context.Context, user string) ([]*repository.UserRole, error)
	ReplaceUserRoles(ctx context.Context, user string, roles []string) error
	UsersWithRole(ctx context.Context, role string) ([]string, error)
}

// NotificationStore records notifications and the reminder idempotence log.
type NotificationStore interface {
	InsertNotification(ctx context.Context, n *repository.Notification) error
	ListNotifications(ctx context.Context, workflowID *int64) ([]*repository.Notification, error)
	HasReminder(ctx context.Context, workflowID int64, thresholdDays int) (bool, error)
	InsertReminder(ctx context.Context, rem *repository.Reminder) error
}

// AuditStore appends immutable audit entries.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry *repository.AuditEntry) error
}

// DocumentWriter is the storage-path collaborator: it writes sanitized
// filenames into lifecycle-partitioned folders and returns the stored path.
type DocumentWriter interface {
	Save(filename, content, status string) (string, error)
}

// EventPublisher pushes workflow events to the message bus. A nil-safe
// implementation is provided by internal/client.
type EventPublisher interface {
	PublishWorkflowEvent(ctx context.Context, eventType string, workflowID int64, actorID string, recipients []string, payload map[string]any)
}

// EventMailer delivers one event email. internal/client.Mailer implements it.
type EventMailer interface {
	SendEvent(recipient, event string, payload map[string]any) (bool, error)
}
