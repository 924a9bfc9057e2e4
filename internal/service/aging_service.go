package service

import (
	"context"
	"slices"
	"sort"
	"strconv"
	"time"

	"k8s.io/utils/clock"

	"github.com/asuwest1/ContractReviewOA/internal/errors"
	"github.com/asuwest1/ContractReviewOA/internal/identity"
	"github.com/asuwest1/ContractReviewOA/internal/logger"
	"github.com/asuwest1/ContractReviewOA/internal/repository"
)

// AgingWorkflow is one aging-dashboard row: an in-process workflow that has
// crossed at least the first configured age threshold.
type AgingWorkflow struct {
	WorkflowID    int64  `json:"workflowId"`
	Title         string `json:"title"`
	CurrentStatus string `json:"currentStatus"`
	CreatedBy     string `json:"createdBy"`
	DaysOpen      int    `json:"daysOpen"`
	Level         int    `json:"level"`
	ThresholdDays int    `json:"thresholdDays"`
}

// AgingService evaluates workflow age against the configurable thresholds
// and dispatches aging reminders. The clock is injected so tests can advance
// time without sleeping.
type AgingService struct {
	workflows     WorkflowStore
	steps         StepStore
	settings      SettingsStore
	notifications NotificationStore
	notifier      *Notifier
	clock         clock.PassiveClock
	log           *logger.Logger
}

// NewAgingService creates an AgingService. Pass clock.RealClock{} in
// production.
func NewAgingService(
	workflows WorkflowStore,
	steps StepStore,
	settings SettingsStore,
	notifications NotificationStore,
	notifier *Notifier,
	clk clock.PassiveClock,
	log *logger.Logger,
) *AgingService {
	return &AgingService{
		workflows:     workflows,
		steps:         steps,
		settings:      settings,
		notifications: notifications,
		notifier:      notifier,
		clock:         clk,
		log:           log,
	}
}

// thresholds returns the configured aging thresholds in ascending order.
// Unparseable or non-positive values are skipped rather than failing the
// whole evaluation.
func (s *AgingService) thresholds(ctx context.Context) ([]int, error) {
	settings, err := s.settings.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(settings))
	for key, value := range settings {
		if !isSettingKey(key) {
			continue
		}
		days, err := strconv.Atoi(value)
		if err != nil || days <= 0 {
			s.log.Warn().Str("key", key).Str("value", value).Msg("Ignoring invalid aging threshold")
			continue
		}
		out = append(out, days)
	}
	sort.Ints(out)
	return out, nil
}

// agingLevel returns the 1-based index of the highest threshold the age has
// crossed, and that threshold. Level 0 means the workflow is not yet aging.
func agingLevel(daysOpen int, thresholds []int) (level, threshold int) {
	for i, t := range thresholds {
		if daysOpen >= t {
			level = i + 1
			threshold = t
		}
	}
	return level, threshold
}

func daysOpen(createdAt, now time.Time) int {
	d := now.Sub(createdAt)
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}

// Evaluate returns the aging rows for all in-process workflows, scoped by the
// caller's dashboard visibility.
func (s *AgingService) Evaluate(ctx context.Context, ident identity.Identity) ([]*AgingWorkflow, error) {
	thresholds, err := s.thresholds(ctx)
	if err != nil {
		return nil, err
	}
	workflows, err := s.workflows.ListByStatuses(ctx, InProcessStatuses)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	viewAll := hasPermission(ident.Roles, PermDashboardFull)
	rows := make([]*AgingWorkflow, 0)
	for _, wf := range workflows {
		if !viewAll && !s.participates(ctx, wf, ident) {
			continue
		}
		open := daysOpen(wf.CreatedAt, now)
		level, threshold := agingLevel(open, thresholds)
		if level == 0 {
			continue
		}
		rows = append(rows, &AgingWorkflow{
			WorkflowID:    wf.ID,
			Title:         wf.Title,
			CurrentStatus: wf.CurrentStatus,
			CreatedBy:     wf.CreatedBy,
			DaysOpen:      open,
			Level:         level,
			ThresholdDays: threshold,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].DaysOpen > rows[j].DaysOpen })
	return rows, nil
}

// participates reports whether the caller is the creator, an assignee or a
// role holder on the workflow's steps.
func (s *AgingService) participates(ctx context.Context, wf *repository.Workflow, ident identity.Identity) bool {
	if wf.CreatedBy == ident.User {
		return true
	}
	steps, err := s.steps.ListSteps(ctx, wf.ID)
	if err != nil {
		s.log.Warn().Err(err).Int64("workflow_id", wf.ID).Msg("Could not load steps for visibility check")
		return false
	}
	for _, step := range steps {
		if step.AssignedTo != nil && *step.AssignedTo == ident.User {
			return true
		}
		if slices.Contains(ident.Roles, step.RequiredRole) {
			return true
		}
	}
	return false
}

// RunReminders evaluates every in-process workflow and sends one reminder per
// workflow per crossed threshold. The reminder log makes repeated runs at the
// same level no-ops. A failure on one workflow is logged and skipped; the run
// continues. Returns the number of reminders dispatched.
func (s *AgingService) RunReminders(ctx context.Context, ident identity.Identity) (int, error) {
	if !hasPermission(ident.Roles, PermSystemReminders) {
		return 0, errors.Unauthorized("reminder runs require the system reminders permission")
	}
	thresholds, err := s.thresholds(ctx)
	if err != nil {
		return 0, err
	}
	workflows, err := s.workflows.ListByStatuses(ctx, InProcessStatuses)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	sent := 0
	for _, wf := range workflows {
		n, err := s.remindWorkflow(ctx, wf, thresholds, now, ident)
		if err != nil {
			s.log.Error().Err(err).
				Int64("workflow_id", wf.ID).
				Msg("Reminder evaluation failed for workflow, continuing")
			continue
		}
		sent += n
	}

	s.log.Info().Int("sent", sent).Int("workflows", len(workflows)).Msg("Reminder run complete")
	return sent, nil
}

func (s *AgingService) remindWorkflow(ctx context.Context, wf *repository.Workflow, thresholds []int, now time.Time, ident identity.Identity) (int, error) {
	open := daysOpen(wf.CreatedAt, now)
	level, threshold := agingLevel(open, thresholds)
	if level == 0 {
		return 0, nil
	}

	already, err := s.notifications.HasReminder(ctx, wf.ID, threshold)
	if err != nil {
		return 0, err
	}
	if already {
		return 0, nil
	}

	recipients, err := s.reminderRecipients(ctx, wf.ID)
	if err != nil {
		return 0, err
	}

	s.notifier.Notify(ctx, wf.ID, ident.User, EventAgingReminder, recipients, map[string]any{
		"title":         wf.Title,
		"daysOpen":      open,
		"level":         level,
		"thresholdDays": threshold,
	})

	if err := s.notifications.InsertReminder(ctx, &repository.Reminder{
		WorkflowID:    wf.ID,
		ThresholdDays: threshold,
	}); err != nil {
		return 0, err
	}
	return len(recipients), nil
}

// reminderRecipients resolves who a reminder should reach: assigned users of
// pending steps, role holders for unassigned ones, and a sentinel when
// nothing resolves so the gap is still visible in the notification feed.
func (s *AgingService) reminderRecipients(ctx context.Context, workflowID int64) ([]string, error) {
	steps, err := s.steps.ListSteps(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	recipients := make([]string, 0, len(steps))
	for _, step := range steps {
		if step.Status != StepPending {
			continue
		}
		if step.AssignedTo != nil {
			if !slices.Contains(recipients, *step.AssignedTo) {
				recipients = append(recipients, *step.AssignedTo)
			}
			continue
		}
		users, err := s.settings.UsersWithRole(ctx, step.RequiredRole)
		if err != nil {
			return nil, err
		}
		for _, user := range users {
			if !slices.Contains(recipients, user) {
				recipients = append(recipients, user)
			}
		}
	}
	if len(recipients) == 0 {
		recipients = append(recipients, "unassigned")
	}
	return recipients, nil
}
