package adjustmentshandler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"paydesk/internal/domain/adjustment"
	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/auth"
	"paydesk/internal/transport/http/api"
	"paydesk/internal/transport/http/middleware"
	"paydesk/internal/transport/http/shared"
)

type AdjustmentService interface {
	Create(ctx context.Context, actor audit.Actor, kind adjustment.Kind, in adjustment.Input) (adjustment.Adjustment, error)
	Update(ctx context.Context, actor audit.Actor, kind adjustment.Kind, id int64, patch adjustment.Patch) (adjustment.Adjustment, error)
	Delete(ctx context.Context, actor audit.Actor, kind adjustment.Kind, id int64) error
	ListForEmployee(ctx context.Context, kind adjustment.Kind, employeeID int64) ([]adjustment.Adjustment, error)
}

type Handler struct {
	Service   AdjustmentService
	Perms     middleware.PermissionStore
	Dashboard shared.DashboardCache
}

func NewHandler(service AdjustmentService, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Perms: perms}
}

// RegisterRoutes mounts the same handlers for allowances and deductions.
func (h *Handler) RegisterRoutes(r chi.Router) {
	for _, kind := range []adjustment.Kind{adjustment.KindAllowance, adjustment.KindDeduction} {
		kind := kind
		r.Route("/"+string(kind)+"s", func(r chi.Router) {
			r.With(middleware.RequirePermission(auth.PermAdjustRead, h.Perms)).Get("/", h.handleList(kind))
			r.With(middleware.RequirePermission(auth.PermAdjustWrite, h.Perms)).Post("/", h.handleCreate(kind))
			r.With(middleware.RequirePermission(auth.PermAdjustWrite, h.Perms)).Patch("/{adjustmentID}", h.handleUpdate(kind))
			r.With(middleware.RequirePermission(auth.PermAdjustWrite, h.Perms)).Delete("/{adjustmentID}", h.handleDelete(kind))
		})
	}
}

type createPayload struct {
	EmployeeID    int64           `json:"employee_id" validate:"required,gt=0"`
	Type          string          `json:"type" validate:"required,max=100"`
	Amount        json.RawMessage `json:"amount"`
	EffectiveDate string          `json:"effective_date"`
}

func (h *Handler) handleCreate(kind adjustment.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetRequestID(r.Context())
		var payload createPayload
		if !shared.DecodeJSON(w, r, &payload, requestID) {
			return
		}
		validator := shared.NewValidator()
		validator.Struct(payload)
		in := adjustment.Input{
			EmployeeID: payload.EmployeeID,
			Type:       strings.TrimSpace(payload.Type),
			Amount:     validator.Decimal("amount", payload.Amount, true, decimal.Zero),
		}
		if strings.TrimSpace(payload.EffectiveDate) != "" {
			in.EffectiveDate, _ = validator.Date("effective_date", payload.EffectiveDate)
		}
		if validator.Reject(w, requestID) {
			return
		}
		created, err := h.Service.Create(r.Context(), middleware.Actor(r.Context()), kind, in)
		if err != nil {
			api.FailError(w, err, requestID)
			return
		}
		shared.InvalidateDashboard(r.Context(), h.Dashboard)
		api.Created(w, created, requestID)
	}
}

type patchPayload struct {
	Type          *string         `json:"type" validate:"omitempty,max=100"`
	Amount        json.RawMessage `json:"amount"`
	EffectiveDate *string         `json:"effective_date"`
}

func (h *Handler) handleUpdate(kind adjustment.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetRequestID(r.Context())
		id, ok := adjustmentID(w, r, requestID)
		if !ok {
			return
		}
		var payload patchPayload
		if !shared.DecodeJSON(w, r, &payload, requestID) {
			return
		}
		validator := shared.NewValidator()
		validator.Struct(payload)
		patch := adjustment.Patch{Type: payload.Type}
		if len(payload.Amount) > 0 {
			amount := validator.Decimal("amount", payload.Amount, true, decimal.Zero)
			patch.Amount = &amount
		}
		if payload.EffectiveDate != nil {
			if date, ok := validator.Date("effective_date", *payload.EffectiveDate); ok {
				patch.EffectiveDate = &date
			}
		}
		if validator.Reject(w, requestID) {
			return
		}
		updated, err := h.Service.Update(r.Context(), middleware.Actor(r.Context()), kind, id, patch)
		if err != nil {
			api.FailError(w, err, requestID)
			return
		}
		shared.InvalidateDashboard(r.Context(), h.Dashboard)
		api.Success(w, updated, requestID)
	}
}

func (h *Handler) handleDelete(kind adjustment.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetRequestID(r.Context())
		id, ok := adjustmentID(w, r, requestID)
		if !ok {
			return
		}
		if err := h.Service.Delete(r.Context(), middleware.Actor(r.Context()), kind, id); err != nil {
			api.FailError(w, err, requestID)
			return
		}
		shared.InvalidateDashboard(r.Context(), h.Dashboard)
		api.Success(w, map[string]any{"id": id, "deleted": true}, requestID)
	}
}

func (h *Handler) handleList(kind adjustment.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetRequestID(r.Context())
		employeeID, ok := shared.PathID(r.URL.Query().Get("employee_id"))
		if !ok {
			shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "employee_id", Reason: "is required"}})
			return
		}
		list, err := h.Service.ListForEmployee(r.Context(), kind, employeeID)
		if err != nil {
			api.FailError(w, err, requestID)
			return
		}
		api.Success(w, list, requestID)
	}
}

func adjustmentID(w http.ResponseWriter, r *http.Request, requestID string) (int64, bool) {
	id, ok := shared.PathID(chi.URLParam(r, "adjustmentID"))
	if !ok {
		api.Fail(w, http.StatusBadRequest, "invalid_id", "invalid id", requestID)
		return 0, false
	}
	return id, true
}
