package service

import "slices"

// Workflow statuses. Any status may move to any other by explicit operator
// action; the terminal three only end normal progression, they do not freeze
// the record.
const (
	StatusActive      = "Active"
	StatusReviewing   = "Reviewing"
	StatusNegotiating = "Negotiating"
	StatusArchived    = "Archived"
	StatusInReview    = "In Review"
	StatusRejected    = "Rejected"
	StatusCancelled   = "Cancelled"
)

// AllowedStatuses is the fixed status enum.
var AllowedStatuses = []string{
	StatusActive,
	StatusReviewing,
	StatusNegotiating,
	StatusArchived,
	StatusInReview,
	StatusRejected,
	StatusCancelled,
}

// InProcessStatuses are the non-terminal statuses; only these age.
var InProcessStatuses = []string{
	StatusActive,
	StatusReviewing,
	StatusNegotiating,
	StatusInReview,
}

// Document types.
var AllowedDocTypes = []string{"PO", "Contract"}

// Step statuses.
const (
	StepPending   = "Pending"
	StepCompleted = "Completed"
	StepRejected  = "Rejected"
)

// Decisions.
const (
	DecisionApprove = "Approve"
	DecisionReject  = "Reject"
)

// Notification event kinds.
const (
	EventWorkflowLaunched      = "WorkflowLaunched"
	EventWorkflowStatusChanged = "WorkflowStatusChanged"
	EventWorkflowRejected      = "WorkflowRejected"
	EventWorkflowCancelled     = "WorkflowCancelled"
	EventWorkflowCompleted     = "WorkflowCompleted"
	EventWorkflowHold          = "WorkflowHold"
	EventAgingReminder         = "AgingReminder"
)

// settingKeys is the closed set of admin-editable settings. Keys outside it
// are rejected before anything is written, never stored.
var settingKeys = []string{
	"aging_threshold_1",
	"aging_threshold_2",
	"aging_threshold_3",
	"aging_threshold_4",
	"aging_threshold_5",
}

func isSettingKey(key string) bool {
	return slices.Contains(settingKeys, key)
}

// Input bounds.
const (
	MaxTitleLength    = 255
	MaxCommentLength  = 2000
	MaxReasonLength   = 1000
	MaxRoleNameLength = 100
)

// RoleAdmin short-circuits every permission and step-role check.
const RoleAdmin = "Admin"

// Permissions.
const (
	PermWorkflowCreate    = "workflow:create"
	PermWorkflowViewAll   = "workflow:view_all"
	PermWorkflowManageAll = "workflow:manage_all"
	PermDashboardFull     = "dashboard:full"
	PermAdminSettings     = "admin:settings"
	PermAdminRoles        = "admin:roles"
	PermSystemReminders   = "system:reminders"
)

// rolePermissions maps roles onto permission sets. Roles absent from the map
// carry no standing permissions; they still qualify their holder to decide
// steps requiring that role.
var rolePermissions = map[string][]string{
	RoleAdmin: {
		PermWorkflowCreate,
		PermWorkflowViewAll,
		PermWorkflowManageAll,
		PermDashboardFull,
		PermAdminSettings,
		PermAdminRoles,
		PermSystemReminders,
	},
	"Customer Service": {
		PermWorkflowCreate,
	},
}

// hasPermission reports whether any of the roles grants the permission.
func hasPermission(roles []string, permission string) bool {
	for _, role := range roles {
		if slices.Contains(rolePermissions[role], permission) {
			return true
		}
	}
	return false
}

func isAllowedStatus(status string) bool {
	return slices.Contains(AllowedStatuses, status)
}

func isTerminalStatus(status string) bool {
	return status == StatusArchived || status == StatusRejected || status == StatusCancelled
}
