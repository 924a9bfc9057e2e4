package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/asuwest1/ContractReviewOA/internal/database"
	"github.com/asuwest1/ContractReviewOA/internal/errors"
)

// StepRepository handles reads and decision writes on approval steps.
// Step creation is handled by WorkflowRepository.CreateWorkflow.
type StepRepository struct {
	db *database.DB
}

// NewStepRepository creates a new StepRepository.
func NewStepRepository(db *database.DB) *StepRepository {
	return &StepRepository{db: db}
}

// GetStep retrieves a step by id.
func (r *StepRepository) GetStep(ctx context.Context, id int64) (*Step, error) {
	step, err := scanStep(r.db.QueryRow(ctx, `
		SELECT step_id, workflow_id, required_role, sequence_order, parallel_group,
		       step_status, assigned_to, assigned_at,
		       decided_by, decided_at, decision, decision_comment
		FROM workflow_steps
		WHERE step_id = $1
	`, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("step", formatID(id))
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get step")
	}
	return step, nil
}

// ListSteps returns a workflow's steps in evaluation order.
func (r *StepRepository) ListSteps(ctx context.Context, workflowID int64) ([]*Step, error) {
	rows, err := r.db.Query(ctx, `
		SELECT step_id, workflow_id, required_role, sequence_order, parallel_group,
		       step_status, assigned_to, assigned_at,
		       decided_by, decided_at, decision, decision_comment
		FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY sequence_order, parallel_group, step_id
	`, workflowID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list steps")
	}
	return scanSteps(rows)
}

// ApplyDecision lands every write of one decide call in a single transaction:
// the step mutation, the append-only decision row, and the derived workflow
// status change when there is one.
func (r *StepRepository) ApplyDecision(ctx context.Context, upd DecisionUpdate) (*StatusChange, error) {
	var change *StatusChange
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE workflow_steps
			SET step_status = $2,
			    decided_by = $3,
			    decided_at = NOW(),
			    decision = $4,
			    decision_comment = $5
			WHERE step_id = $1
		`, upd.StepID, upd.StepStatus, upd.DecidedBy, upd.Decision, upd.Comment)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to update step")
		}
		if tag.RowsAffected() == 0 {
			return errors.NotFound("step", formatID(upd.StepID))
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO approval_decisions (workflow_id, step_id, decision, comment, decided_by)
			VALUES ($1, $2, $3, $4, $5)
		`, upd.WorkflowID, upd.StepID, upd.Decision, upd.Comment, upd.DecidedBy)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert decision")
		}

		if upd.Workflow != nil {
			change, err = applyStatusUpdate(ctx, tx, upd.WorkflowID, *upd.Workflow)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// ListDecisions returns the append-only decision history for a workflow.
func (r *StepRepository) ListDecisions(ctx context.Context, workflowID int64) ([]*Decision, error) {
	rows, err := r.db.Query(ctx, `
		SELECT decision_id, workflow_id, step_id, decision, comment, decided_by, decided_at
		FROM approval_decisions
		WHERE workflow_id = $1
		ORDER BY decision_id
	`, workflowID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list decisions")
	}
	defer rows.Close()

	var decisions []*Decision
	for rows.Next() {
		d := &Decision{}
		err := rows.Scan(&d.ID, &d.WorkflowID, &d.StepID, &d.Decision, &d.Comment, &d.DecidedBy, &d.DecidedAt)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan decision")
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

// ListPendingSteps returns pending steps joined with their workflow title,
// oldest assignment first, scoped by visibility.
func (r *StepRepository) ListPendingSteps(ctx context.Context, vis Visibility) ([]*PendingStep, error) {
	var rows pgx.Rows
	var err error
	if vis.All {
		rows, err = r.db.Query(ctx, `
			SELECT s.step_id, s.required_role, s.assigned_to, s.assigned_at, w.workflow_id, w.title
			FROM workflow_steps s
			JOIN workflows w ON w.workflow_id = s.workflow_id
			WHERE s.step_status = 'Pending'
			ORDER BY s.assigned_at NULLS LAST, s.step_id
		`)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT s.step_id, s.required_role, s.assigned_to, s.assigned_at, w.workflow_id, w.title
			FROM workflow_steps s
			JOIN workflows w ON w.workflow_id = s.workflow_id
			WHERE s.step_status = 'Pending'
			  AND (s.assigned_to = $1 OR s.required_role = ANY($2))
			ORDER BY s.assigned_at NULLS LAST, s.step_id
		`, vis.User, vis.Roles)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list pending steps")
	}
	defer rows.Close()

	var pending []*PendingStep
	for rows.Next() {
		p := &PendingStep{}
		err := rows.Scan(&p.StepID, &p.RequiredRole, &p.AssignedTo, &p.AssignedAt, &p.WorkflowID, &p.Title)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan pending step")
		}
		pending = append(pending, p)
	}
	return pending, nil
}

func scanStep(row rowScanner) (*Step, error) {
	s := &Step{}
	err := row.Scan(
		&s.ID,
		&s.WorkflowID,
		&s.RequiredRole,
		&s.SequenceOrder,
		&s.ParallelGroup,
		&s.Status,
		&s.AssignedTo,
		&s.AssignedAt,
		&s.DecidedBy,
		&s.DecidedAt,
		&s.Decision,
		&s.DecisionComment,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func scanSteps(rows pgx.Rows) ([]*Step, error) {
	defer rows.Close()
	var steps []*Step
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan step")
		}
		steps = append(steps, s)
	}
	return steps, nil
}
