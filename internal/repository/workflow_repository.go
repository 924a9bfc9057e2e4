package repository

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/asuwest1/ContractReviewOA/internal/database"
	"github.com/asuwest1/ContractReviewOA/internal/errors"
)

// WorkflowRepository manages workflow records, their steps, documents and
// status history. Creation and status transitions are multi-row writes and
// always run in a single transaction.
type WorkflowRepository struct {
	db *database.DB
}

// NewWorkflowRepository creates a new WorkflowRepository.
func NewWorkflowRepository(db *database.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// CreateWorkflow inserts the workflow, its initial steps, the initial document
// (when present) and the opening status-history row in one transaction.
// Assigned IDs and timestamps are written back into the passed records.
func (r *WorkflowRepository) CreateWorkflow(
	ctx context.Context,
	wf *Workflow,
	steps []*Step,
	doc *Document,
	history *StatusChange,
) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO workflows (title, doc_type, current_status, is_hold, resubmitted, created_by)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING workflow_id, created_at, updated_at
		`,
			wf.Title, wf.DocType, wf.CurrentStatus, wf.IsHold, wf.Resubmitted, wf.CreatedBy,
		).Scan(&wf.ID, &wf.CreatedAt, &wf.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create workflow")
		}

		for _, step := range steps {
			step.WorkflowID = wf.ID
			err := tx.QueryRow(ctx, `
				INSERT INTO workflow_steps
				    (workflow_id, required_role, sequence_order, parallel_group,
				     step_status, assigned_to, assigned_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING step_id
			`,
				step.WorkflowID, step.RequiredRole, step.SequenceOrder, step.ParallelGroup,
				step.Status, step.AssignedTo, step.AssignedAt,
			).Scan(&step.ID)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create workflow step")
			}
		}

		if doc != nil {
			doc.WorkflowID = wf.ID
			if err := insertDocument(ctx, tx, doc); err != nil {
				return err
			}
		}

		history.WorkflowID = wf.ID
		return insertStatusHistory(ctx, tx, history)
	})
}

// GetWorkflow retrieves a workflow row by id.
func (r *WorkflowRepository) GetWorkflow(ctx context.Context, id int64) (*Workflow, error) {
	wf, err := scanWorkflow(r.db.QueryRow(ctx, `
		SELECT workflow_id, title, doc_type, current_status, is_hold, resubmitted,
		       created_by, created_at, updated_at
		FROM workflows
		WHERE workflow_id = $1
	`, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("workflow", formatID(id))
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get workflow")
	}
	return wf, nil
}

// GetWorkflowDetail returns a workflow hydrated with documents, steps and
// status history so callers never need follow-up fetches.
func (r *WorkflowRepository) GetWorkflowDetail(ctx context.Context, id int64) (*WorkflowDetail, error) {
	wf, err := r.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &WorkflowDetail{Workflow: *wf}

	docRows, err := r.db.Query(ctx, `
		SELECT doc_id, workflow_id, file_path, is_golden, version, note, uploaded_by, uploaded_at
		FROM workflow_documents
		WHERE workflow_id = $1
		ORDER BY version, doc_id
	`, id)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get workflow documents")
	}
	detail.Documents, err = scanDocuments(docRows)
	if err != nil {
		return nil, err
	}

	stepRows, err := r.db.Query(ctx, `
		SELECT step_id, workflow_id, required_role, sequence_order, parallel_group,
		       step_status, assigned_to, assigned_at,
		       decided_by, decided_at, decision, decision_comment
		FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY sequence_order, parallel_group, step_id
	`, id)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get workflow steps")
	}
	detail.Steps, err = scanSteps(stepRows)
	if err != nil {
		return nil, err
	}

	histRows, err := r.db.Query(ctx, `
		SELECT history_id, workflow_id, old_status, new_status, changed_by, changed_at, reason
		FROM status_history
		WHERE workflow_id = $1
		ORDER BY history_id
	`, id)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get status history")
	}
	defer histRows.Close()
	for histRows.Next() {
		h := &StatusChange{}
		err := histRows.Scan(&h.ID, &h.WorkflowID, &h.OldStatus, &h.NewStatus, &h.ChangedBy, &h.ChangedAt, &h.Reason)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan status history")
		}
		detail.History = append(detail.History, h)
	}
	return detail, nil
}

// ListWorkflows returns workflows visible to the caller, newest first.
// Non-privileged callers see workflows they created, are assigned to, or
// whose steps require one of their roles.
func (r *WorkflowRepository) ListWorkflows(ctx context.Context, vis Visibility) ([]*Workflow, error) {
	var rows pgx.Rows
	var err error
	if vis.All {
		rows, err = r.db.Query(ctx, `
			SELECT workflow_id, title, doc_type, current_status, is_hold, resubmitted,
			       created_by, created_at, updated_at
			FROM workflows
			ORDER BY workflow_id DESC
		`)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT DISTINCT w.workflow_id, w.title, w.doc_type, w.current_status,
			       w.is_hold, w.resubmitted, w.created_by, w.created_at, w.updated_at
			FROM workflows w
			LEFT JOIN workflow_steps s ON s.workflow_id = w.workflow_id
			WHERE w.created_by = $1
			   OR s.assigned_to = $1
			   OR s.required_role = ANY($2)
			ORDER BY w.workflow_id DESC
		`, vis.User, vis.Roles)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list workflows")
	}
	defer rows.Close()

	var workflows []*Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan workflow")
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}

// ListByStatuses returns workflows whose current status is in statuses.
func (r *WorkflowRepository) ListByStatuses(ctx context.Context, statuses []string) ([]*Workflow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT workflow_id, title, doc_type, current_status, is_hold, resubmitted,
		       created_by, created_at, updated_at
		FROM workflows
		WHERE current_status = ANY($1)
		ORDER BY workflow_id
	`, statuses)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list workflows by status")
	}
	defer rows.Close()

	var workflows []*Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan workflow")
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}

// UpdateWorkflowStatus writes the status transition and its history row in one
// transaction, applying any flag changes that belong to the same event.
func (r *WorkflowRepository) UpdateWorkflowStatus(ctx context.Context, id int64, upd StatusUpdate) (*StatusChange, error) {
	var change *StatusChange
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		change, err = applyStatusUpdate(ctx, tx, id, upd)
		return err
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// SetHold toggles the hold flag.
func (r *WorkflowRepository) SetHold(ctx context.Context, id int64, hold bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE workflows
		SET is_hold = $2, updated_at = NOW()
		WHERE workflow_id = $1
	`, id, hold)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to set hold")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("workflow", formatID(id))
	}
	return nil
}

// CountByStatus returns workflow counts grouped by current status, scoped by
// visibility.
func (r *WorkflowRepository) CountByStatus(ctx context.Context, vis Visibility) (map[string]int, error) {
	var rows pgx.Rows
	var err error
	if vis.All {
		rows, err = r.db.Query(ctx, `
			SELECT current_status, COUNT(*)
			FROM workflows
			GROUP BY current_status
		`)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT current_status, COUNT(*)
			FROM (
				SELECT DISTINCT w.workflow_id, w.current_status
				FROM workflows w
				LEFT JOIN workflow_steps s ON s.workflow_id = w.workflow_id
				WHERE w.created_by = $1
				   OR s.assigned_to = $1
				   OR s.required_role = ANY($2)
			) visible
			GROUP BY current_status
		`, vis.User, vis.Roles)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to count workflows")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan status count")
		}
		counts[status] = count
	}
	return counts, nil
}

// ListCorrectionQueue returns rejected workflows awaiting resubmission,
// most recently updated first.
func (r *WorkflowRepository) ListCorrectionQueue(ctx context.Context, vis Visibility) ([]*Workflow, error) {
	var rows pgx.Rows
	var err error
	if vis.All {
		rows, err = r.db.Query(ctx, `
			SELECT workflow_id, title, doc_type, current_status, is_hold, resubmitted,
			       created_by, created_at, updated_at
			FROM workflows
			WHERE current_status = 'Rejected' AND NOT resubmitted
			ORDER BY updated_at DESC
		`)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT workflow_id, title, doc_type, current_status, is_hold, resubmitted,
			       created_by, created_at, updated_at
			FROM workflows
			WHERE current_status = 'Rejected' AND NOT resubmitted AND created_by = $1
			ORDER BY updated_at DESC
		`, vis.User)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list correction queue")
	}
	defer rows.Close()

	var workflows []*Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan workflow")
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}

// applyStatusUpdate runs inside an open transaction: it updates the workflow
// row and appends the matching status-history entry.
func applyStatusUpdate(ctx context.Context, tx pgx.Tx, id int64, upd StatusUpdate) (*StatusChange, error) {
	var oldStatus string
	err := tx.QueryRow(ctx, `
		SELECT current_status FROM workflows WHERE workflow_id = $1 FOR UPDATE
	`, id).Scan(&oldStatus)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("workflow", formatID(id))
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to lock workflow")
	}

	query := `UPDATE workflows SET current_status = $2, updated_at = NOW()`
	args := []any{id, upd.NewStatus}
	if upd.SetResubmitted != nil {
		query += `, resubmitted = $3`
		args = append(args, *upd.SetResubmitted)
	}
	if upd.ClearHold {
		query += `, is_hold = FALSE`
	}
	query += ` WHERE workflow_id = $1`
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to update workflow status")
	}

	change := &StatusChange{
		WorkflowID: id,
		OldStatus:  &oldStatus,
		NewStatus:  upd.NewStatus,
		ChangedBy:  upd.ChangedBy,
	}
	if upd.Reason != "" {
		change.Reason = &upd.Reason
	}
	if err := insertStatusHistory(ctx, tx, change); err != nil {
		return nil, err
	}
	return change, nil
}

func insertStatusHistory(ctx context.Context, tx pgx.Tx, h *StatusChange) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO status_history (workflow_id, old_status, new_status, changed_by, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING history_id, changed_at
	`, h.WorkflowID, h.OldStatus, h.NewStatus, h.ChangedBy, h.Reason).Scan(&h.ID, &h.ChangedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert status history")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func scanWorkflow(row rowScanner) (*Workflow, error) {
	wf := &Workflow{}
	err := row.Scan(
		&wf.ID,
		&wf.Title,
		&wf.DocType,
		&wf.CurrentStatus,
		&wf.IsHold,
		&wf.Resubmitted,
		&wf.CreatedBy,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return wf, nil
}
