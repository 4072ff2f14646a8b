package approvalshandler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"paydesk/internal/domain/approval"
	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/auth"
	"paydesk/internal/platform/metrics"
	"paydesk/internal/transport/http/api"
	"paydesk/internal/transport/http/middleware"
	"paydesk/internal/transport/http/shared"
)

type ApprovalService interface {
	Submit(ctx context.Context, actor audit.Actor, in approval.SubmitInput) (approval.Approval, error)
	Approve(ctx context.Context, actor audit.Actor, id int64, reason string) (approval.Approval, error)
	Reject(ctx context.Context, actor audit.Actor, id int64, reason string) (approval.Approval, error)
	Cancel(ctx context.Context, actor audit.Actor, id int64, reason string, asAdmin bool) (approval.Approval, error)
	Get(ctx context.Context, id int64) (approval.Approval, error)
	ListPending(ctx context.Context, employeeID int64) ([]approval.Approval, error)
	List(ctx context.Context, filter approval.ListFilter) ([]approval.Approval, error)
	History(ctx context.Context, id int64) ([]approval.StatusChange, error)
}

type Handler struct {
	Service   ApprovalService
	Perms     middleware.PermissionStore
	Metrics   *metrics.Collector
	Dashboard shared.DashboardCache
}

func NewHandler(service ApprovalService, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/approvals", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermApprovalsRead, h.Perms)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermApprovalsWrite, h.Perms)).Post("/", h.handleSubmit)
		r.With(middleware.RequirePermission(auth.PermApprovalsRead, h.Perms)).Get("/pending", h.handlePending)
		r.With(middleware.RequirePermission(auth.PermApprovalsRead, h.Perms)).Get("/{approvalID}", h.handleGet)
		r.With(middleware.RequirePermission(auth.PermApprovalsRead, h.Perms)).Get("/{approvalID}/history", h.handleHistory)
		r.With(middleware.RequirePermission(auth.PermApprovalsAct, h.Perms)).Post("/{approvalID}/approve", h.handleApprove)
		r.With(middleware.RequirePermission(auth.PermApprovalsAct, h.Perms)).Post("/{approvalID}/reject", h.handleReject)
		r.With(middleware.RequirePermission(auth.PermApprovalsWrite, h.Perms)).Post("/{approvalID}/cancel", h.handleCancel)
	})
}

type submitPayload struct {
	EmployeeID      *int64          `json:"employee_id" validate:"omitempty,gt=0"`
	RequestType     string          `json:"request_type" validate:"required,max=255"`
	Description     string          `json:"description" validate:"required"`
	RelatedModel    string          `json:"related_model" validate:"max=100"`
	RelatedObjectID *int64          `json:"related_object_id" validate:"omitempty,gt=0"`
	ProposedAmount  json.RawMessage `json:"proposed_amount"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	var payload submitPayload
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	validator := shared.NewValidator()
	validator.Struct(payload)
	in := approval.SubmitInput{
		EmployeeID:      payload.EmployeeID,
		RequestType:     strings.TrimSpace(payload.RequestType),
		Description:     strings.TrimSpace(payload.Description),
		RelatedModel:    strings.TrimSpace(payload.RelatedModel),
		RelatedObjectID: payload.RelatedObjectID,
	}
	if len(payload.ProposedAmount) > 0 && string(payload.ProposedAmount) != "null" {
		amount := validator.Decimal("proposed_amount", payload.ProposedAmount, true, decimal.Zero)
		in.ProposedAmount = &amount
	}
	if validator.Reject(w, requestID) {
		return
	}
	created, err := h.Service.Submit(r.Context(), middleware.Actor(r.Context()), in)
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	shared.InvalidateDashboard(r.Context(), h.Dashboard)
	api.Created(w, created, requestID)
}

type decisionPayload struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// decodeDecision reads an optional decision body; an empty body means no reason.
func decodeDecision(w http.ResponseWriter, r *http.Request, requestID string) (string, bool) {
	var payload decisionPayload
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && err != io.EOF {
			api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
			return "", false
		}
	}
	validator := shared.NewValidator()
	validator.Struct(payload)
	if validator.Reject(w, requestID) {
		return "", false
	}
	return strings.TrimSpace(payload.Reason), true
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(ctx context.Context, actor audit.Actor, id int64, reason string) (approval.Approval, error) {
		return h.Service.Approve(ctx, actor, id, reason)
	})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(ctx context.Context, actor audit.Actor, id int64, reason string) (approval.Approval, error) {
		return h.Service.Reject(ctx, actor, id, reason)
	})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	asAdmin := middleware.HasPermission(r.Context(), h.Perms, auth.PermApprovalsAct)
	h.decide(w, r, func(ctx context.Context, actor audit.Actor, id int64, reason string) (approval.Approval, error) {
		return h.Service.Cancel(ctx, actor, id, reason, asAdmin)
	})
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, apply func(context.Context, audit.Actor, int64, string) (approval.Approval, error)) {
	requestID := middleware.GetRequestID(r.Context())
	id, ok := approvalID(w, r, requestID)
	if !ok {
		return
	}
	reason, ok := decodeDecision(w, r, requestID)
	if !ok {
		return
	}
	updated, err := apply(r.Context(), middleware.Actor(r.Context()), id, reason)
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	h.Metrics.Add(metrics.ApprovalsDecided, 1)
	shared.InvalidateDashboard(r.Context(), h.Dashboard)
	api.Success(w, updated, requestID)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	employeeID, ok := optionalEmployeeID(w, r, requestID)
	if !ok {
		return
	}
	list, err := h.Service.List(r.Context(), approval.ListFilter{Status: strings.TrimSpace(r.URL.Query().Get("status")), EmployeeID: employeeID})
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	api.Success(w, list, requestID)
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	employeeID, ok := optionalEmployeeID(w, r, requestID)
	if !ok {
		return
	}
	list, err := h.Service.ListPending(r.Context(), employeeID)
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	api.Success(w, list, requestID)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	id, ok := approvalID(w, r, requestID)
	if !ok {
		return
	}
	item, err := h.Service.Get(r.Context(), id)
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	api.Success(w, item, requestID)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	id, ok := approvalID(w, r, requestID)
	if !ok {
		return
	}
	changes, err := h.Service.History(r.Context(), id)
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	api.Success(w, changes, requestID)
}

func optionalEmployeeID(w http.ResponseWriter, r *http.Request, requestID string) (int64, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("employee_id"))
	if raw == "" {
		return 0, true
	}
	id, ok := shared.PathID(raw)
	if !ok {
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "employee_id", Reason: "must be a positive integer"}})
		return 0, false
	}
	return id, true
}

func approvalID(w http.ResponseWriter, r *http.Request, requestID string) (int64, bool) {
	id, ok := shared.PathID(chi.URLParam(r, "approvalID"))
	if !ok {
		api.Fail(w, http.StatusBadRequest, "invalid_id", "invalid approval id", requestID)
		return 0, false
	}
	return id, true
}
