package repository

import "time"

// Workflow is one purchase-order or contract review record.
type Workflow struct {
	ID            int64      `json:"workflowId"`
	Title         string     `json:"title"`
	DocType       string     `json:"docType"`
	CurrentStatus string     `json:"currentStatus"`
	IsHold        bool       `json:"isHold"`
	Resubmitted   bool       `json:"resubmitted"`
	CreatedBy     string     `json:"createdBy"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// WorkflowDetail is a workflow hydrated with its owned records.
type WorkflowDetail struct {
	Workflow
	Documents []*Document     `json:"documents"`
	Steps     []*Step         `json:"steps"`
	History   []*StatusChange `json:"history"`
}

// Document is one uploaded file reference. At most one document per workflow
// carries IsGolden at any time.
type Document struct {
	ID         int64     `json:"docId"`
	WorkflowID int64     `json:"workflowId"`
	FilePath   string    `json:"filePath"`
	IsGolden   bool      `json:"isGolden"`
	Version    int       `json:"version"`
	Note       *string   `json:"note,omitempty"`
	UploadedBy string    `json:"uploadedBy"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Step is a single approval step. Steps sharing a workflow, sequence order and
// parallel group are concurrent peers.
type Step struct {
	ID              int64      `json:"stepId"`
	WorkflowID      int64      `json:"workflowId"`
	RequiredRole    string     `json:"requiredRole"`
	SequenceOrder   int        `json:"sequenceOrder"`
	ParallelGroup   int        `json:"parallelGroup"`
	Status          string     `json:"stepStatus"` // Pending | Completed | Rejected
	AssignedTo      *string    `json:"assignedTo,omitempty"`
	AssignedAt      *time.Time `json:"assignedAt,omitempty"`
	DecidedBy       *string    `json:"decidedBy,omitempty"`
	DecidedAt       *time.Time `json:"decidedAt,omitempty"`
	Decision        *string    `json:"decision,omitempty"`
	DecisionComment *string    `json:"decisionComment,omitempty"`
}

// Decision is one immutable decide event. A step re-decided after resubmission
// produces a second row; rows are never updated.
type Decision struct {
	ID         int64     `json:"decisionId"`
	WorkflowID int64     `json:"workflowId"`
	StepID     int64     `json:"stepId"`
	Decision   string    `json:"decision"`
	Comment    string    `json:"comment"`
	DecidedBy  string    `json:"decidedBy"`
	DecidedAt  time.Time `json:"decidedAt"`
}

// StatusChange is one append-only status-history row.
type StatusChange struct {
	ID         int64     `json:"historyId"`
	WorkflowID int64     `json:"workflowId"`
	OldStatus  *string   `json:"oldStatus,omitempty"`
	NewStatus  string    `json:"newStatus"`
	ChangedBy  string    `json:"changedBy"`
	ChangedAt  time.Time `json:"changedAt"`
	Reason     *string   `json:"reason,omitempty"`
}

// Notification is one recorded outbound event.
type Notification struct {
	ID         int64          `json:"notificationId"`
	WorkflowID *int64         `json:"workflowId,omitempty"`
	Event      string         `json:"event"`
	Recipient  string         `json:"recipient"`
	CreatedAt  time.Time      `json:"createdAt"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Reminder is one reminder-log row. Its presence makes the aging evaluator
// idempotent per (workflow, threshold) pair.
type Reminder struct {
	ID            int64     `json:"reminderId"`
	WorkflowID    int64     `json:"workflowId"`
	StepID        *int64    `json:"stepId,omitempty"`
	ThresholdDays int       `json:"thresholdDays"`
	RemindedAt    time.Time `json:"remindedAt"`
}

// AuditEntry is one immutable audit-log row.
type AuditEntry struct {
	ID         int64          `json:"auditId"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Action     string         `json:"action"`
	Actor      string         `json:"actor"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// UserRole is one (user, role) mapping.
type UserRole struct {
	UserName string `json:"userName"`
	RoleName string `json:"roleName"`
}

// PendingStep is a dashboard row joining a pending step with its workflow.
type PendingStep struct {
	StepID       int64      `json:"stepId"`
	RequiredRole string     `json:"requiredRole"`
	AssignedTo   *string    `json:"assignedTo,omitempty"`
	AssignedAt   *time.Time `json:"assignedAt,omitempty"`
	WorkflowID   int64      `json:"workflowId"`
	Title        string     `json:"title"`
}

// Visibility scopes queries to what a caller may see. All=true bypasses the
// participant filter (view_all / dashboard permissions).
type Visibility struct {
	All   bool
	User  string
	Roles []string
}

// StatusUpdate carries one workflow status transition plus the flag changes
// that must land in the same transaction.
type StatusUpdate struct {
	NewStatus        string
	ChangedBy        string
	Reason           string
	SetResubmitted   *bool
	ClearHold        bool
}

// DecisionUpdate carries every write belonging to a single decide call: the
// step mutation, the append-only decision row, and the workflow status change
// derived from it (nil when the workflow status is unchanged).
type DecisionUpdate struct {
	StepID     int64
	WorkflowID int64
	StepStatus string
	Decision   string
	Comment    string
	DecidedBy  string
	Workflow   *StatusUpdate
}
