package service

import (
	"context"

	"github.com/asuwest1/ContractReviewOA/internal/identity"
	"github.com/asuwest1/ContractReviewOA/internal/repository"
)

// DashboardSummary aggregates the workload counters shown on the landing
// dashboard.
type DashboardSummary struct {
	ByStatus           map[string]int `json:"byStatus"`
	WorkflowsInProcess int            `json:"workflowsInProcess"`
	PendingApprovals   int            `json:"pendingApprovals"`
	CorrectionQueue    int            `json:"correctionQueue"`
}

// DashboardService assembles read-only views over the workflow stores. Every
// view is scoped: holders of the full-dashboard permission see everything,
// other callers see only workflows they participate in.
type DashboardService struct {
	workflows WorkflowStore
	steps     StepStore
	aging     *AgingService
}

// NewDashboardService creates a DashboardService.
func NewDashboardService(workflows WorkflowStore, steps StepStore, aging *AgingService) *DashboardService {
	return &DashboardService{workflows: workflows, steps: steps, aging: aging}
}

func dashboardVisibility(ident identity.Identity) repository.Visibility {
	if hasPermission(ident.Roles, PermDashboardFull) {
		return repository.Visibility{All: true}
	}
	return repository.Visibility{User: ident.User, Roles: ident.Roles}
}

// Summary returns the aggregate counters for the caller's visible workflows.
func (s *DashboardService) Summary(ctx context.Context, ident identity.Identity) (*DashboardSummary, error) {
	vis := dashboardVisibility(ident)

	byStatus, err := s.workflows.CountByStatus(ctx, vis)
	if err != nil {
		return nil, err
	}
	inProcess := 0
	for _, status := range InProcessStatuses {
		inProcess += byStatus[status]
	}

	pending, err := s.steps.ListPendingSteps(ctx, vis)
	if err != nil {
		return nil, err
	}
	correction, err := s.workflows.ListCorrectionQueue(ctx, vis)
	if err != nil {
		return nil, err
	}

	return &DashboardSummary{
		ByStatus:           byStatus,
		WorkflowsInProcess: inProcess,
		PendingApprovals:   len(pending),
		CorrectionQueue:    len(correction),
	}, nil
}

// Pending returns the caller's pending-approval worklist.
func (s *DashboardService) Pending(ctx context.Context, ident identity.Identity) ([]*repository.PendingStep, error) {
	return s.steps.ListPendingSteps(ctx, dashboardVisibility(ident))
}

// Aging returns the aging view: in-process workflows past the first
// configured threshold.
func (s *DashboardService) Aging(ctx context.Context, ident identity.Identity) ([]*AgingWorkflow, error) {
	return s.aging.Evaluate(ctx, ident)
}

// CorrectionQueue returns rejected workflows awaiting resubmission. Without
// the full-dashboard permission the queue is scoped to the caller's own
// workflows.
func (s *DashboardService) CorrectionQueue(ctx context.Context, ident identity.Identity) ([]*repository.Workflow, error) {
	return s.workflows.ListCorrectionQueue(ctx, dashboardVisibility(ident))
}
