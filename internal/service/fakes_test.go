package service_test

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	clocktesting "k8s.io/utils/clock/testing"

	"github.com/asuwest1/ContractReviewOA/internal/errors"
	"github.com/asuwest1/ContractReviewOA/internal/identity"
	"github.com/asuwest1/ContractReviewOA/internal/logger"
	"github.com/asuwest1/ContractReviewOA/internal/repository"
	"github.com/asuwest1/ContractReviewOA/internal/service"
)

// fakeStore is an in-memory WorkflowStore + StepStore + DocumentStore with
// the same atomicity and visibility semantics as the pgx repositories.
type fakeStore struct {
	mu        sync.Mutex
	now       func() time.Time
	workflows map[int64]*repository.Workflow
	steps     map[int64]*repository.Step
	documents []*repository.Document
	history   []*repository.StatusChange
	decisions []*repository.Decision
	nextID    int64
}

func newFakeStore(now func() time.Time) *fakeStore {
	return &fakeStore{
		now:       now,
		workflows: make(map[int64]*repository.Workflow),
		steps:     make(map[int64]*repository.Step),
	}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) CreateWorkflow(ctx context.Context, wf *repository.Workflow, steps []*repository.Step, doc *repository.Document, history *repository.StatusChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	wf.ID = f.id()
	wf.CreatedAt = now
	wf.UpdatedAt = now
	cp := *wf
	f.workflows[wf.ID] = &cp

	for _, step := range steps {
		step.ID = f.id()
		step.WorkflowID = wf.ID
		sc := *step
		f.steps[step.ID] = &sc
	}
	if doc != nil {
		doc.ID = f.id()
		doc.WorkflowID = wf.ID
		doc.UploadedAt = now
		dc := *doc
		f.documents = append(f.documents, &dc)
	}
	if history != nil {
		history.ID = f.id()
		history.WorkflowID = wf.ID
		history.ChangedAt = now
		hc := *history
		f.history = append(f.history, &hc)
	}
	return nil
}

func (f *fakeStore) GetWorkflow(ctx context.Context, id int64) (*repository.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wf, ok := f.workflows[id]
	if !ok {
		return nil, errors.NotFound("workflow", fmt.Sprint(id))
	}
	cp := *wf
	return &cp, nil
}

func (f *fakeStore) GetWorkflowDetail(ctx context.Context, id int64) (*repository.WorkflowDetail, error) {
	wf, err := f.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	detail := &repository.WorkflowDetail{Workflow: *wf}
	for _, doc := range f.documents {
		if doc.WorkflowID == id {
			cp := *doc
			detail.Documents = append(detail.Documents, &cp)
		}
	}
	sort.Slice(detail.Documents, func(i, j int) bool {
		return detail.Documents[i].Version < detail.Documents[j].Version
	})
	detail.Steps = f.stepsOfLocked(id)
	for _, h := range f.history {
		if h.WorkflowID == id {
			cp := *h
			detail.History = append(detail.History, &cp)
		}
	}
	return detail, nil
}

func (f *fakeStore) stepsOfLocked(workflowID int64) []*repository.Step {
	var out []*repository.Step
	for _, step := range f.steps {
		if step.WorkflowID == workflowID {
			cp := *step
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SequenceOrder != out[j].SequenceOrder {
			return out[i].SequenceOrder < out[j].SequenceOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (f *fakeStore) visibleLocked(wf *repository.Workflow, vis repository.Visibility) bool {
	if vis.All {
		return true
	}
	if wf.CreatedBy == vis.User {
		return true
	}
	for _, step := range f.steps {
		if step.WorkflowID != wf.ID {
			continue
		}
		if step.AssignedTo != nil && *step.AssignedTo == vis.User {
			return true
		}
		if slices.Contains(vis.Roles, step.RequiredRole) {
			return true
		}
	}
	return false
}

func (f *fakeStore) ListWorkflows(ctx context.Context, vis repository.Visibility) ([]*repository.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*repository.Workflow, 0)
	for _, wf := range f.workflows {
		if f.visibleLocked(wf, vis) {
			cp := *wf
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListByStatuses(ctx context.Context, statuses []string) ([]*repository.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*repository.Workflow, 0)
	for _, wf := range f.workflows {
		if slices.Contains(statuses, wf.CurrentStatus) {
			cp := *wf
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) applyStatusLocked(upd repository.StatusUpdate, id int64) (*repository.StatusChange, error) {
	wf, ok := f.workflows[id]
	if !ok {
		return nil, errors.NotFound("workflow", fmt.Sprint(id))
	}
	old := wf.CurrentStatus
	wf.CurrentStatus = upd.NewStatus
	wf.UpdatedAt = f.now()
	if upd.SetResubmitted != nil {
		wf.Resubmitted = *upd.SetResubmitted
	}
	if upd.ClearHold {
		wf.IsHold = false
	}
	change := &repository.StatusChange{
		ID:         f.id(),
		WorkflowID: id,
		OldStatus:  &old,
		NewStatus:  upd.NewStatus,
		ChangedBy:  upd.ChangedBy,
		ChangedAt:  f.now(),
	}
	if upd.Reason != "" {
		reason := upd.Reason
		change.Reason = &reason
	}
	f.history = append(f.history, change)
	cp := *change
	return &cp, nil
}

func (f *fakeStore) UpdateWorkflowStatus(ctx context.Context, id int64, upd repository.StatusUpdate) (*repository.StatusChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applyStatusLocked(upd, id)
}

func (f *fakeStore) SetHold(ctx context.Context, id int64, hold bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	wf, ok := f.workflows[id]
	if !ok {
		return errors.NotFound("workflow", fmt.Sprint(id))
	}
	wf.IsHold = hold
	wf.UpdatedAt = f.now()
	return nil
}

func (f *fakeStore) CountByStatus(ctx context.Context, vis repository.Visibility) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int)
	for _, wf := range f.workflows {
		if f.visibleLocked(wf, vis) {
			out[wf.CurrentStatus]++
		}
	}
	return out, nil
}

func (f *fakeStore) ListCorrectionQueue(ctx context.Context, vis repository.Visibility) ([]*repository.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*repository.Workflow, 0)
	for _, wf := range f.workflows {
		if wf.CurrentStatus != "Rejected" || wf.Resubmitted {
			continue
		}
		if !vis.All && wf.CreatedBy != vis.User {
			continue
		}
		cp := *wf
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) GetStep(ctx context.Context, id int64) (*repository.Step, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	step, ok := f.steps[id]
	if !ok {
		return nil, errors.NotFound("step", fmt.Sprint(id))
	}
	cp := *step
	return &cp, nil
}

func (f *fakeStore) ListSteps(ctx context.Context, workflowID int64) ([]*repository.Step, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stepsOfLocked(workflowID), nil
}

func (f *fakeStore) ApplyDecision(ctx context.Context, upd repository.DecisionUpdate) (*repository.StatusChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	step, ok := f.steps[upd.StepID]
	if !ok {
		return nil, errors.NotFound("step", fmt.Sprint(upd.StepID))
	}
	now := f.now()
	decidedBy := upd.DecidedBy
	decision := upd.Decision
	step.Status = upd.StepStatus
	step.DecidedBy = &decidedBy
	step.DecidedAt = &now
	step.Decision = &decision
	if upd.Comment != "" {
		comment := upd.Comment
		step.DecisionComment = &comment
	}
	f.decisions = append(f.decisions, &repository.Decision{
		ID:         f.id(),
		WorkflowID: upd.WorkflowID,
		StepID:     upd.StepID,
	})

	if upd.Workflow == nil {
		return nil, nil
	}
	return f.applyStatusLocked(*upd.Workflow, upd.WorkflowID)
}

func (f *fakeStore) ListPendingSteps(ctx context.Context, vis repository.Visibility) ([]*repository.PendingStep, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*repository.PendingStep, 0)
	for _, step := range f.steps {
		if step.Status != "Pending" {
			continue
		}
		if !vis.All {
			assigned := step.AssignedTo != nil && *step.AssignedTo == vis.User
			if !assigned && !slices.Contains(vis.Roles, step.RequiredRole) {
				continue
			}
		}
		wf := f.workflows[step.WorkflowID]
		out = append(out, &repository.PendingStep{
			StepID:       step.ID,
			RequiredRole: step.RequiredRole,
			AssignedTo:   step.AssignedTo,
			AssignedAt:   step.AssignedAt,
			WorkflowID:   step.WorkflowID,
			Title:        wf.Title,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepID < out[j].StepID })
	return out, nil
}

func (f *fakeStore) AddDocument(ctx context.Context, doc *repository.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.workflows[doc.WorkflowID]; !ok {
		return errors.NotFound("workflow", fmt.Sprint(doc.WorkflowID))
	}
	if doc.IsGolden {
		for _, existing := range f.documents {
			if existing.WorkflowID == doc.WorkflowID {
				existing.IsGolden = false
			}
		}
	}
	doc.ID = f.id()
	doc.UploadedAt = f.now()
	cp := *doc
	f.documents = append(f.documents, &cp)
	return nil
}

func (f *fakeStore) ListDocuments(ctx context.Context, workflowID int64) ([]*repository.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*repository.Document, 0)
	for _, doc := range f.documents {
		if doc.WorkflowID == workflowID {
			cp := *doc
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (f *fakeStore) MaxVersion(ctx context.Context, workflowID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	max := 0
	for _, doc := range f.documents {
		if doc.WorkflowID == workflowID && doc.Version > max {
			max = doc.Version
		}
	}
	return max, nil
}

// fakeSettings is an in-memory SettingsStore.
type fakeSettings struct {
	mu        sync.Mutex
	settings  map[string]string
	roles     []string
	userRoles map[string][]string
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{
		settings: map[string]string{
			"aging_threshold_1": "2",
			"aging_threshold_2": "5",
			"aging_threshold_3": "10",
			"aging_threshold_4": "15",
			"aging_threshold_5": "30",
		},
		roles:     []string{"Customer Service", "Technical", "Commercial", "Legal", "Admin"},
		userRoles: make(map[string][]string),
	}
}

func (f *fakeSettings) GetSettings(ctx context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.settings))
	for k, v := range f.settings {
		out[k] = v
	}
	return out, nil
}

func (f *fakeSettings) PutSetting(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings[key] = value
	return nil
}

func (f *fakeSettings) ListRoles(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := slices.Clone(f.roles)
	sort.Strings(out)
	return out, nil
}

func (f *fakeSettings) RoleExists(ctx context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Contains(f.roles, name), nil
}

func (f *fakeSettings) CreateRole(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !slices.Contains(f.roles, name) {
		f.roles = append(f.roles, name)
	}
	return nil
}

func (f *fakeSettings) ListUserRoles(ctx context.Context, user string) ([]*repository.UserRole, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*repository.UserRole, 0)
	for u, roles := range f.userRoles {
		if user != "" && u != user {
			continue
		}
		for _, role := range roles {
			out = append(out, &repository.UserRole{UserName: u, RoleName: role})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserName != out[j].UserName {
			return out[i].UserName < out[j].UserName
		}
		return out[i].RoleName < out[j].RoleName
	})
	return out, nil
}

func (f *fakeSettings) ReplaceUserRoles(ctx context.Context, user string, roles []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userRoles[user] = slices.Clone(roles)
	return nil
}

func (f *fakeSettings) UsersWithRole(ctx context.Context, role string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0)
	for user, roles := range f.userRoles {
		if slices.Contains(roles, role) {
			out = append(out, user)
		}
	}
	sort.Strings(out)
	return out, nil
}

// fakeNotifications is an in-memory NotificationStore with optional failure
// injection for reminder lookups.
type fakeNotifications struct {
	mu            sync.Mutex
	notifications []*repository.Notification
	reminders     []*repository.Reminder
	failReminders map[int64]error
	nextID        int64
}

func newFakeNotifications() *fakeNotifications {
	return &fakeNotifications{failReminders: make(map[int64]error)}
}

func (f *fakeNotifications) InsertNotification(ctx context.Context, n *repository.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	n.ID = f.nextID
	n.CreatedAt = time.Now()
	cp := *n
	f.notifications = append(f.notifications, &cp)
	return nil
}

func (f *fakeNotifications) ListNotifications(ctx context.Context, workflowID *int64) ([]*repository.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*repository.Notification, 0)
	for _, n := range f.notifications {
		if workflowID != nil && (n.WorkflowID == nil || *n.WorkflowID != *workflowID) {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeNotifications) HasReminder(ctx context.Context, workflowID int64, thresholdDays int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failReminders[workflowID]; err != nil {
		return false, err
	}
	for _, rem := range f.reminders {
		if rem.WorkflowID == workflowID && rem.ThresholdDays == thresholdDays {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeNotifications) InsertReminder(ctx context.Context, rem *repository.Reminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rem.ID = f.nextID
	rem.RemindedAt = time.Now()
	cp := *rem
	f.reminders = append(f.reminders, &cp)
	return nil
}

func (f *fakeNotifications) byEvent(event string) []*repository.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*repository.Notification, 0)
	for _, n := range f.notifications {
		if n.Event == event {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out
}

// fakeAudit is an in-memory AuditStore.
type fakeAudit struct {
	mu      sync.Mutex
	entries []*repository.AuditEntry
}

func (f *fakeAudit) AppendAudit(ctx context.Context, entry *repository.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *entry
	f.entries = append(f.entries, &cp)
	return nil
}

func (f *fakeAudit) byAction(action string) []*repository.AuditEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*repository.AuditEntry, 0)
	for _, e := range f.entries {
		if e.Action == action {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

// fakeFiles records saves and composes UNC-style paths without touching disk.
type fakeFiles struct {
	mu    sync.Mutex
	saved []string
}

func (f *fakeFiles) Save(filename, content, status string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := fmt.Sprintf(`\\srv\review\%s\%s`, status, filename)
	f.saved = append(f.saved, path)
	return path, nil
}

// env wires every service over the fakes.
type env struct {
	store         *fakeStore
	settings      *fakeSettings
	notifications *fakeNotifications
	audit         *fakeAudit
	files         *fakeFiles
	clock         *clocktesting.FakeClock

	workflows *service.WorkflowService
	aging     *service.AgingService
	dashboard *service.DashboardService
	admin     *service.AdminService
}

func newEnv() *env {
	return newEnvWithFinalStatus("Archived")
}

func newEnvWithFinalStatus(finalStatus string) *env {
	clk := clocktesting.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	store := newFakeStore(clk.Now)
	settings := newFakeSettings()
	notifications := newFakeNotifications()
	audit := &fakeAudit{}
	files := &fakeFiles{}
	log := logger.Nop()

	notifier := service.NewNotifier(notifications, audit, nil, nil, log)
	workflows := service.NewWorkflowService(
		store, store, store, settings, audit, files, notifier, finalStatus, log,
	)
	aging := service.NewAgingService(store, store, settings, notifications, notifier, clk, log)
	dashboard := service.NewDashboardService(store, store, aging)
	admin := service.NewAdminService(settings, audit, log)

	return &env{
		store:         store,
		settings:      settings,
		notifications: notifications,
		audit:         audit,
		files:         files,
		clock:         clk,
		workflows:     workflows,
		aging:         aging,
		dashboard:     dashboard,
		admin:         admin,
	}
}

func ident(user string, roles ...string) identity.Identity {
	return identity.Identity{User: user, Roles: roles}
}

// createWorkflow seeds one workflow with two parallel first-sequence steps
// (Technical, Commercial) and a golden document.
func (e *env) createWorkflow(ctx context.Context, title string) (*repository.WorkflowDetail, error) {
	return e.workflows.CreateWorkflow(ctx, &service.CreateWorkflowRequest{
		Title:   title,
		DocType: "PO",
		Steps: []service.StepInput{
			{RequiredRole: "Technical", SequenceOrder: 1, ParallelGroup: 1},
			{RequiredRole: "Commercial", SequenceOrder: 1, ParallelGroup: 1},
		},
		Document: &service.DocumentInput{Filename: "po-100.pdf", Content: "order body"},
	}, ident("alice", "Customer Service"))
}
