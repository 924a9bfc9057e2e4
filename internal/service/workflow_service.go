package service

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/asuwest1/ContractReviewOA/internal/errors"
	"github.com/asuwest1/ContractReviewOA/internal/identity"
	"github.com/asuwest1/ContractReviewOA/internal/logger"
	"github.com/asuwest1/ContractReviewOA/internal/repository"
	"github.com/asuwest1/ContractReviewOA/internal/storage"
)

// workflowLocks serializes mutating operations per workflow id. Two decide
// calls against parallel-group peers of one workflow must not interleave
// their completion re-evaluation; operations on different workflows proceed
// independently.
// Entries are refcounted so the table stays bounded by the number of
// workflows with an operation in flight, not the number ever touched.
type workflowLocks struct {
	mu    sync.Mutex
	locks map[int64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newWorkflowLocks() *workflowLocks {
	return &workflowLocks{locks: make(map[int64]*lockEntry)}
}

func (l *workflowLocks) lock(id int64) func() {
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &lockEntry{}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()
	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// WorkflowService owns the workflow/step/decision state machine.
type WorkflowService struct {
	workflows WorkflowStore
	steps     StepStore
	documents DocumentStore
	settings  SettingsStore
	audit     AuditStore
	files     DocumentWriter
	notifier  *Notifier
	log       *logger.Logger

	// finalStatus is the status a fully approved workflow reaches.
	finalStatus string

	locks *workflowLocks
}

// NewWorkflowService creates a WorkflowService.
func NewWorkflowService(
	workflows WorkflowStore,
	steps StepStore,
	documents DocumentStore,
	settings SettingsStore,
	audit AuditStore,
	files DocumentWriter,
	notifier *Notifier,
	finalStatus string,
	log *logger.Logger,
) *WorkflowService {
	if finalStatus == "" || !isAllowedStatus(finalStatus) {
		finalStatus = StatusArchived
	}
	return &WorkflowService{
		workflows:   workflows,
		steps:       steps,
		documents:   documents,
		settings:    settings,
		audit:       audit,
		files:       files,
		notifier:    notifier,
		log:         log,
		finalStatus: finalStatus,
		locks:       newWorkflowLocks(),
	}
}

// StepInput is one caller-supplied step definition.
type StepInput struct {
	RequiredRole  string `json:"requiredRole"`
	SequenceOrder int    `json:"sequenceOrder"`
	ParallelGroup int    `json:"parallelGroup"`
	AssignedTo    string `json:"assignedTo,omitempty"`
}

// DocumentInput is one caller-supplied document upload.
type DocumentInput struct {
	Filename     string `json:"filename"`
	Content      string `json:"content,omitempty"`
	Version      int    `json:"version,omitempty"`
	IsGolden     bool   `json:"isGolden"`
	Note         string `json:"note,omitempty"`
	Resubmission bool   `json:"resubmission,omitempty"`
}

// CreateWorkflowRequest creates a workflow with its initial step set and
// document.
type CreateWorkflowRequest struct {
	Title         string         `json:"title"`
	DocType       string         `json:"docType"`
	InitialStatus string         `json:"initialStatus,omitempty"`
	Steps         []StepInput    `json:"steps"`
	Document      *DocumentInput `json:"document,omitempty"`
}

// CreateWorkflow validates the request, persists the workflow with its steps,
// initial golden document and opening history row in one transaction, and
// notifies the creator plus first-sequence approvers. The returned detail is
// fully hydrated so the caller needs no follow-up fetch.
func (s *WorkflowService) CreateWorkflow(ctx context.Context, req *CreateWorkflowRequest, ident identity.Identity) (*repository.WorkflowDetail, error) {
	if !hasPermission(ident.Roles, PermWorkflowCreate) {
		return nil, errors.Unauthorized("your role does not have permission to create workflows")
	}
	if req.Title == "" || len(req.Title) > MaxTitleLength {
		return nil, errors.Newf(errors.ErrCodeValidation,
			"title is required and must be at most %d characters", MaxTitleLength)
	}
	docType := req.DocType
	if docType == "" {
		docType = "PO"
	}
	if !slices.Contains(AllowedDocTypes, docType) {
		return nil, errors.Validation("docType must be one of: Contract, PO")
	}
	status := req.InitialStatus
	if status == "" {
		status = StatusActive
	}
	if !isAllowedStatus(status) {
		return nil, errors.Validation("invalid initial status")
	}

	now := time.Now().UTC()
	steps := make([]*repository.Step, 0, len(req.Steps))
	for _, in := range req.Steps {
		known, err := s.settings.RoleExists(ctx, in.RequiredRole)
		if err != nil {
			return nil, err
		}
		if !known {
			return nil, errors.Newf(errors.ErrCodeValidation, "unknown required role: %s", in.RequiredRole)
		}
		seq := in.SequenceOrder
		if seq < 1 {
			seq = 1
		}
		step := &repository.Step{
			RequiredRole:  in.RequiredRole,
			SequenceOrder: seq,
			ParallelGroup: in.ParallelGroup,
			Status:        StepPending,
			AssignedAt:    &now,
		}
		if in.AssignedTo != "" {
			assignee := in.AssignedTo
			step.AssignedTo = &assignee
		}
		steps = append(steps, step)
	}

	var doc *repository.Document
	if req.Document != nil {
		var err error
		// The initial document is always the golden record of truth, version 1.
		doc, err = s.buildDocument(0, &DocumentInput{
			Filename: req.Document.Filename,
			Content:  req.Document.Content,
			Version:  1,
			IsGolden: true,
			Note:     req.Document.Note,
		}, status, ident.User, 0)
		if err != nil {
			return nil, err
		}
	}

	wf := &repository.Workflow{
		Title:         req.Title,
		DocType:       docType,
		CurrentStatus: status,
		CreatedBy:     ident.User,
	}
	history := &repository.StatusChange{
		NewStatus: status,
		ChangedBy: ident.User,
	}
	reason := "Workflow created"
	history.Reason = &reason

	if err := s.workflows.CreateWorkflow(ctx, wf, steps, doc, history); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, "workflow", wf.ID, "create", ident.User, map[string]any{
		"title":   wf.Title,
		"docType": wf.DocType,
		"steps":   len(steps),
	})

	recipients := s.launchRecipients(ctx, wf, steps)
	s.notifier.Notify(ctx, wf.ID, ident.User, EventWorkflowLaunched, recipients, map[string]any{
		"title": wf.Title,
	})

	s.log.Info().
		Int64("workflow_id", wf.ID).
		Str("title", wf.Title).
		Int("steps", len(steps)).
		Msg("Workflow created")

	return s.workflows.GetWorkflowDetail(ctx, wf.ID)
}

// launchRecipients returns the creator plus the approvers of the first
// sequence order: assigned users directly, role holders for unassigned steps.
func (s *WorkflowService) launchRecipients(ctx context.Context, wf *repository.Workflow, steps []*repository.Step) []string {
	recipients := []string{wf.CreatedBy}
	if len(steps) == 0 {
		return recipients
	}
	first := steps[0].SequenceOrder
	for _, step := range steps {
		if step.SequenceOrder < first {
			first = step.SequenceOrder
		}
	}
	for _, step := range steps {
		if step.SequenceOrder != first {
			continue
		}
		recipients = s.appendStepApprovers(ctx, recipients, step)
	}
	return recipients
}

// appendStepApprovers adds a step's approvers to recipients without duplicates.
func (s *WorkflowService) appendStepApprovers(ctx context.Context, recipients []string, step *repository.Step) []string {
	if step.AssignedTo != nil {
		if !slices.Contains(recipients, *step.AssignedTo) {
			recipients = append(recipients, *step.AssignedTo)
		}
		return recipients
	}
	users, err := s.settings.UsersWithRole(ctx, step.RequiredRole)
	if err != nil {
		s.log.Warn().Err(err).Str("role", step.RequiredRole).Msg("Could not resolve users for role")
		return recipients
	}
	for _, user := range users {
		if !slices.Contains(recipients, user) {
			recipients = append(recipients, user)
		}
	}
	return recipients
}

// GetWorkflow returns a hydrated workflow, enforcing participant visibility
// for callers without the view-all permission.
func (s *WorkflowService) GetWorkflow(ctx context.Context, id int64, ident identity.Identity) (*repository.WorkflowDetail, error) {
	detail, err := s.workflows.GetWorkflowDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(detail, ident); err != nil {
		return nil, err
	}
	return detail, nil
}

// ListWorkflows returns workflows visible to the caller.
func (s *WorkflowService) ListWorkflows(ctx context.Context, ident identity.Identity) ([]*repository.Workflow, error) {
	return s.workflows.ListWorkflows(ctx, s.visibility(ident, PermWorkflowViewAll))
}

// requireAccess enforces the participant rule: creators, assignees and
// holders of a step's required role may see a workflow.
func (s *WorkflowService) requireAccess(detail *repository.WorkflowDetail, ident identity.Identity) error {
	if hasPermission(ident.Roles, PermWorkflowViewAll) {
		return nil
	}
	if detail.CreatedBy == ident.User {
		return nil
	}
	for _, step := range detail.Steps {
		if step.AssignedTo != nil && *step.AssignedTo == ident.User {
			return nil
		}
		if ident.HasRole(step.RequiredRole) {
			return nil
		}
	}
	return errors.Unauthorized("access denied to this workflow")
}

func (s *WorkflowService) visibility(ident identity.Identity, perm string) repository.Visibility {
	if hasPermission(ident.Roles, perm) {
		return repository.Visibility{All: true}
	}
	return repository.Visibility{User: ident.User, Roles: ident.Roles}
}

// UpdateStatus transitions a workflow to any recognized status. There is no
// linear ordering between non-terminal statuses; the domain is a flexible
// manual workflow. Entering a terminal status notifies the creator and the
// currently pending approvers.
func (s *WorkflowService) UpdateStatus(ctx context.Context, id int64, newStatus, reason string, ident identity.Identity) (*repository.WorkflowDetail, error) {
	if !isAllowedStatus(newStatus) {
		return nil, errors.Newf(errors.ErrCodeConflict, "unrecognized status: %s", newStatus)
	}
	if len(reason) > MaxReasonLength {
		return nil, errors.Newf(errors.ErrCodeValidation,
			"reason must be at most %d characters", MaxReasonLength)
	}

	unlock := s.locks.lock(id)
	defer unlock()

	wf, err := s.workflows.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if !hasPermission(ident.Roles, PermWorkflowManageAll) && wf.CreatedBy != ident.User {
		return nil, errors.Unauthorized("only the workflow creator or an Admin can update status")
	}

	change, err := s.workflows.UpdateWorkflowStatus(ctx, id, repository.StatusUpdate{
		NewStatus: newStatus,
		ChangedBy: ident.User,
		Reason:    reason,
	})
	if err != nil {
		return nil, err
	}

	s.appendAudit(ctx, "workflow", id, "status_change", ident.User, map[string]any{
		"old": *change.OldStatus,
		"new": newStatus,
	})

	if isTerminalStatus(newStatus) {
		recipients := s.terminalRecipients(ctx, wf)
		s.notifier.Notify(ctx, id, ident.User, terminalEvent(newStatus), recipients, map[string]any{
			"status": newStatus,
			"reason": reason,
		})
	}

	return s.workflows.GetWorkflowDetail(ctx, id)
}

// terminalEvent maps a terminal status onto its notification kind.
func terminalEvent(status string) string {
	switch status {
	case StatusRejected:
		return EventWorkflowRejected
	case StatusCancelled:
		return EventWorkflowCancelled
	case StatusArchived:
		return EventWorkflowCompleted
	default:
		return EventWorkflowStatusChanged
	}
}

// terminalRecipients returns the creator plus all pending approvers.
func (s *WorkflowService) terminalRecipients(ctx context.Context, wf *repository.Workflow) []string {
	recipients := []string{wf.CreatedBy}
	steps, err := s.steps.ListSteps(ctx, wf.ID)
	if err != nil {
		s.log.Warn().Err(err).Int64("workflow_id", wf.ID).Msg("Could not load steps for notification")
		return recipients
	}
	for _, step := range steps {
		if step.Status != StepPending {
			continue
		}
		recipients = s.appendStepApprovers(ctx, recipients, step)
	}
	return recipients
}

// SetHold toggles the hold flag. Release is never gated on a document
// re-upload: any authorized release action is sufficient.
func (s *WorkflowService) SetHold(ctx context.Context, id int64, hold bool, reason string, ident identity.Identity) (*repository.WorkflowDetail, error) {
	if !hasPermission(ident.Roles, PermWorkflowManageAll) {
		return nil, errors.Unauthorized("Admin role required to set hold")
	}

	unlock := s.locks.lock(id)
	defer unlock()

	wf, err := s.workflows.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.workflows.SetHold(ctx, id, hold); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, "workflow", id, "hold_set", ident.User, map[string]any{
		"hold":   hold,
		"reason": reason,
	})
	if hold {
		s.notifier.Notify(ctx, id, ident.User, EventWorkflowHold, []string{wf.CreatedBy}, map[string]any{
			"reason": reason,
		})
	}

	return s.workflows.GetWorkflowDetail(ctx, id)
}

// AddDocument attaches a document to a workflow. A golden upload atomically
// demotes the previous golden document. A resubmission clears the hold flag,
// marks the workflow resubmitted, and returns a Rejected workflow to review.
func (s *WorkflowService) AddDocument(ctx context.Context, workflowID int64, in *DocumentInput, ident identity.Identity) ([]*repository.Document, error) {
	unlock := s.locks.lock(workflowID)
	defer unlock()

	detail, err := s.workflows.GetWorkflowDetail(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(detail, ident); err != nil {
		return nil, err
	}

	maxVersion, err := s.documents.MaxVersion(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	doc, err := s.buildDocument(workflowID, in, detail.CurrentStatus, ident.User, maxVersion)
	if err != nil {
		return nil, err
	}
	if err := s.documents.AddDocument(ctx, doc); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, "workflow_document", workflowID, "upload", ident.User, map[string]any{
		"path":     doc.FilePath,
		"isGolden": doc.IsGolden,
		"version":  doc.Version,
	})

	if in.Resubmission {
		if err := s.markResubmitted(ctx, detail, ident); err != nil {
			return nil, err
		}
	}

	return s.documents.ListDocuments(ctx, workflowID)
}

// buildDocument validates a document input and writes its content through the
// storage-path collaborator. workflowID 0 means the workflow row does not
// exist yet (creation path).
func (s *WorkflowService) buildDocument(workflowID int64, in *DocumentInput, status, uploader string, maxVersion int) (*repository.Document, error) {
	filename, err := storage.SanitizeFilename(in.Filename)
	if err != nil {
		return nil, err
	}
	version := in.Version
	if version == 0 {
		version = maxVersion + 1
	}
	if version < 1 || version < maxVersion {
		return nil, errors.Validation("document version must not decrease")
	}

	path, err := s.files.Save(filename, in.Content, status)
	if err != nil {
		return nil, err
	}

	doc := &repository.Document{
		WorkflowID: workflowID,
		FilePath:   path,
		IsGolden:   in.IsGolden,
		Version:    version,
		UploadedBy: uploader,
	}
	if in.Note != "" {
		note := in.Note
		doc.Note = &note
	}
	return doc, nil
}

// markResubmitted applies the resubmission side effects: hold cleared,
// resubmitted set, and a Rejected workflow moved back into review.
func (s *WorkflowService) markResubmitted(ctx context.Context, detail *repository.WorkflowDetail, ident identity.Identity) error {
	resubmitted := true
	if detail.CurrentStatus == StatusRejected {
		_, err := s.workflows.UpdateWorkflowStatus(ctx, detail.ID, repository.StatusUpdate{
			NewStatus:      StatusInReview,
			ChangedBy:      ident.User,
			Reason:         "Resubmission",
			SetResubmitted: &resubmitted,
			ClearHold:      true,
		})
		return err
	}
	_, err := s.workflows.UpdateWorkflowStatus(ctx, detail.ID, repository.StatusUpdate{
		NewStatus:      detail.CurrentStatus,
		ChangedBy:      ident.User,
		Reason:         "Resubmission",
		SetResubmitted: &resubmitted,
		ClearHold:      true,
	})
	return err
}

// DecideStep records one Approve/Reject decision and re-derives the workflow
// status. A rejection by any single approver rejects the whole workflow; an
// approval completes the workflow exactly when no pending steps remain at any
// sequence order. All writes of one decision land in a single transaction,
// and decisions against one workflow are serialized by a per-workflow lock.
func (s *WorkflowService) DecideStep(ctx context.Context, stepID int64, decision, comment string, ident identity.Identity) (*repository.WorkflowDetail, error) {
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, errors.Validation("decision must be Approve or Reject")
	}
	if len(comment) > MaxCommentLength {
		return nil, errors.Newf(errors.ErrCodeValidation,
			"comment must be at most %d characters", MaxCommentLength)
	}

	step, err := s.steps.GetStep(ctx, stepID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(step.WorkflowID)
	defer unlock()

	// Re-read under the lock; a parallel peer may have decided meanwhile.
	step, err = s.steps.GetStep(ctx, stepID)
	if err != nil {
		return nil, err
	}
	if step.Status != StepPending {
		return nil, errors.Newf(errors.ErrCodeConflict,
			"step %d is not pending (status: %s)", stepID, step.Status)
	}

	wf, err := s.workflows.GetWorkflow(ctx, step.WorkflowID)
	if err != nil {
		return nil, err
	}

	if !ident.HasRole(step.RequiredRole) && !ident.HasRole(RoleAdmin) {
		// Security-relevant: record the denied attempt before failing.
		s.appendAudit(ctx, "approval", stepID, "decide_denied", ident.User, map[string]any{
			"requiredRole": step.RequiredRole,
		})
		return nil, errors.Newf(errors.ErrCodeUnauthorized,
			"role %q is required to decide this step", step.RequiredRole)
	}

	upd := repository.DecisionUpdate{
		StepID:     stepID,
		WorkflowID: step.WorkflowID,
		Decision:   decision,
		Comment:    comment,
		DecidedBy:  ident.User,
	}

	// A decision only re-derives the workflow status while the workflow is
	// still in process; a step decided after a rejection or cancellation
	// records the decision without resurrecting the workflow.
	inProcess := slices.Contains(InProcessStatuses, wf.CurrentStatus)

	var event string
	if decision == DecisionReject {
		upd.StepStatus = StepRejected
		if inProcess {
			cleared := false
			upd.Workflow = &repository.StatusUpdate{
				NewStatus:      StatusRejected,
				ChangedBy:      ident.User,
				Reason:         "Rejected by approver",
				SetResubmitted: &cleared,
			}
			event = EventWorkflowRejected
		}
	} else {
		upd.StepStatus = StepCompleted
		complete, err := s.wouldComplete(ctx, step)
		if err != nil {
			return nil, err
		}
		if complete && inProcess {
			upd.Workflow = &repository.StatusUpdate{
				NewStatus: s.finalStatus,
				ChangedBy: ident.User,
				Reason:    "All approvals complete",
			}
			event = EventWorkflowCompleted
		}
	}

	if _, err := s.steps.ApplyDecision(ctx, upd); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, "approval", stepID, "decide", ident.User, map[string]any{
		"decision": decision,
	})

	if upd.Workflow != nil {
		recipients := s.terminalRecipients(ctx, wf)
		s.notifier.Notify(ctx, step.WorkflowID, ident.User, event, recipients, map[string]any{
			"status":  upd.Workflow.NewStatus,
			"comment": comment,
		})
	}

	return s.workflows.GetWorkflowDetail(ctx, step.WorkflowID)
}

// wouldComplete reports whether approving the given step leaves no pending
// steps at any sequence order. Parallel peers resolve independently and have
// no ordering preference; approving a later-sequence step early never
// completes the workflow while earlier steps are still pending.
func (s *WorkflowService) wouldComplete(ctx context.Context, deciding *repository.Step) (bool, error) {
	steps, err := s.steps.ListSteps(ctx, deciding.WorkflowID)
	if err != nil {
		return false, err
	}
	for _, step := range steps {
		if step.ID == deciding.ID {
			continue
		}
		if step.Status == StepPending {
			return false, nil
		}
	}
	return true, nil
}

// ListNotifications returns recorded notifications, optionally scoped to one
// workflow.
func (s *WorkflowService) ListNotifications(ctx context.Context, workflowID *int64) ([]*repository.Notification, error) {
	return s.notifier.notifications.ListNotifications(ctx, workflowID)
}

// appendAudit writes an audit entry and logs a warning on failure; audit
// writes never fail the surrounding operation.
func (s *WorkflowService) appendAudit(ctx context.Context, entityType string, entityID int64, action, actor string, details map[string]any) {
	err := s.audit.AppendAudit(ctx, &repository.AuditEntry{
		EntityType: entityType,
		EntityID:   strconv.FormatInt(entityID, 10),
		Action:     action,
		Actor:      actor,
		Details:    details,
	})
	if err != nil {
		s.log.Warn().Err(err).
			Str("entity_type", entityType).
			Str("action", action).
			Msg("Failed to write audit log entry")
	}
}
