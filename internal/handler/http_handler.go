package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/asuwest1/ContractReviewOA/internal/errors"
	"github.com/asuwest1/ContractReviewOA/internal/identity"
	"github.com/asuwest1/ContractReviewOA/internal/logger"
	"github.com/asuwest1/ContractReviewOA/internal/service"
)

// HTTPHandler exposes the workflow engine over HTTP.
type HTTPHandler struct {
	workflows *service.WorkflowService
	dashboard *service.DashboardService
	aging     *service.AgingService
	admin     *service.AdminService
	resolver  *identity.Resolver
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	workflows *service.WorkflowService,
	dashboard *service.DashboardService,
	aging *service.AgingService,
	admin *service.AdminService,
	resolver *identity.Resolver,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		workflows: workflows,
		dashboard: dashboard,
		aging:     aging,
		admin:     admin,
		resolver:  resolver,
		log:       log,
	}
}

// Routes mounts every endpoint onto the router.
func (h *HTTPHandler) Routes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/workflows", func(r chi.Router) {
			r.Get("/", h.ListWorkflows)
			r.Post("/", h.CreateWorkflow)
			r.Route("/{workflowID}", func(r chi.Router) {
				r.Get("/", h.GetWorkflow)
				r.Get("/documents", h.ListDocuments)
				r.Post("/documents", h.AddDocument)
				r.Put("/status", h.UpdateStatus)
				r.Put("/hold", h.SetHold)
			})
		})

		r.Post("/approvals/{stepID}/decide", h.DecideStep)

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/summary", h.DashboardSummary)
			r.Get("/pending", h.DashboardPending)
			r.Get("/aging", h.DashboardAging)
			r.Get("/correction-queue", h.DashboardCorrectionQueue)
		})

		r.Get("/notifications", h.ListNotifications)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.UpdateSettings)
			r.Get("/roles", h.ListRoles)
			r.Post("/roles", h.CreateRole)
			r.Get("/user-roles", h.GetUserRoles)
			r.Put("/user-roles/{user}", h.ReplaceUserRoles)
		})

		r.Post("/system/run-reminders", h.RunReminders)
	})
}

// Health reports liveness.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateWorkflow handles workflow creation requests.
func (h *HTTPHandler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req service.CreateWorkflowRequest
	if !h.decode(w, r, &req) {
		return
	}
	detail, err := h.workflows.CreateWorkflow(r.Context(), &req, h.resolver.Resolve(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, detail)
}

// GetWorkflow returns one hydrated workflow.
func (h *HTTPHandler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "workflowID")
	if !ok {
		return
	}
	detail, err := h.workflows.GetWorkflow(r.Context(), id, h.resolver.Resolve(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, detail)
}

// ListWorkflows returns workflows visible to the caller.
func (h *HTTPHandler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := h.workflows.ListWorkflows(r.Context(), h.resolver.Resolve(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, workflows)
}

// ListDocuments returns a workflow's document set.
func (h *HTTPHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "workflowID")
	if !ok {
		return
	}
	detail, err := h.workflows.GetWorkflow(r.Context(), id, h.resolver.Resolve(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, detail.Documents)
}

// AddDocument attaches a document to a workflow.
func (h *HTTPHandler) AddDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "workflowID")
	if !ok {
		return
	}
	var req service.DocumentInput
	if !h.decode(w, r, &req) {
		return
	}
	docs, err := h.workflows.AddDocument(r.Context(), id, &req, h.resolver.Resolve(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, docs)
}

// UpdateStatus transitions a workflow's status.
func (h *HTTPHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "workflowID")
	if !ok {
		return
	}
	var req struct {
		NewStatus string `json:"newStatus"`
		Reason    string `json:"reason"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	detail, err := h.workflows.UpdateStatus(r.Context(), id, req.NewStatus, req.Reason, h.resolver.Resolve(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, detail)
}

// SetHold toggles a workflow's hold flag.
func (h *HTTPHandler) SetHold(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "workflowID")
	if !ok {
		return
	}
	var req struct {
		Hold   bool   `json:"hold"`
		Reason string `json:"reason"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	detail, err := h.workflows.SetHold(r.Context(), id, req.Hold, req.Reason, h.resolver.Resolve(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, detail)
}

// DecideStep records an Approve/Reject decision on a pending step.
func (h *HTTPHandler) DecideStep(w http.ResponseWriter, r *http.Request) {
	stepID, ok := h.pathID(w, r, "stepID")
	if !ok {
		return
	}
	var req struct {
		Decision string `json:"decision"`
		Comment  string `json:"comment"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	detail, err := h.workflows.DecideStep(r.Context(), stepID, req.Decision, req.Comment, h.resolver.Resolve(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, detail)
}

func (h *HTTPHandler) DashboardSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.dashboard.Summary(r.Context(), h.resolver.Resolve(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *HTTPHandler) DashboardPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.dashboard.Pending(r.Context(), h.resolver.Resolve(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, pending)
}

func (h *HTTPHandler) DashboardAging(w http.ResponseWriter, r *http.Request) {
	rows, err := h.dashboard.Aging(r.Context(), h.resolver.Resolve(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rows)
}

func (h *HTTPHandler) DashboardCorrectionQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := h.dashboard.CorrectionQueue(r.Context(), h.resolver.Resolve(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, queue)
}

// ListNotifications returns recorded notifications, optionally filtered by
// ?workflowId=N.
func (h *HTTPHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	var workflowID *int64
	if raw := r.URL.Query().Get("workflowId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.writeError(w, r, errors.InvalidInput("workflowId", "must be an integer"))
			return
		}
		workflowID = &id
	}
	notifications, err := h.workflows.ListNotifications(r.Context(), workflowID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, notifications)
}

func (h *HTTPHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.admin.GetSettings(r.Context(), h.resolver.Resolve(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

func (h *HTTPHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if !h.decode(w, r, &req) {
		return
	}
	settings, err := h.admin.UpdateSettings(r.Context(), req, h.resolver.Resolve(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

func (h *HTTPHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.admin.ListRoles(r.Context(), h.resolver.Resolve(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, roles)
}

func (h *HTTPHandler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	roles, err := h.admin.CreateRole(r.Context(), req.Name, h.resolver.Resolve(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, roles)
}

// GetUserRoles returns role assignments, all of them or one user's via
// ?user=name.
func (h *HTTPHandler) GetUserRoles(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.admin.GetUserRoles(r.Context(), r.URL.Query().Get("user"), h.resolver.Resolve(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, assignments)
}

func (h *HTTPHandler) ReplaceUserRoles(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	var req struct {
		Roles []string `json:"roles"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	assignments, err := h.admin.ReplaceUserRoles(r.Context(), user, req.Roles, h.resolver.Resolve(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, assignments)
}

// RunReminders triggers one aging-reminder evaluation pass.
func (h *HTTPHandler) RunReminders(w http.ResponseWriter, r *http.Request) {
	sent, err := h.aging.RunReminders(r.Context(), h.resolver.Resolve(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"remindersSent": sent})
}

func (h *HTTPHandler) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id < 1 {
		h.writeError(w, r, errors.InvalidInput(param, "must be a positive integer"))
		return 0, false
	}
	return id, true
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, errors.InvalidInput("body", "invalid JSON"))
		return false
	}
	return true
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps application error codes onto HTTP statuses. Internal errors
// are logged in full and returned sanitized.
func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.ErrCodeValidation, errors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeConflict:
		status = http.StatusConflict
	case errors.ErrCodeUnauthorized:
		status = http.StatusForbidden
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Msg("Request failed")
	}
	h.writeJSON(w, status, map[string]string{
		"error": errors.Message(err),
		"code":  string(code),
	})
}
