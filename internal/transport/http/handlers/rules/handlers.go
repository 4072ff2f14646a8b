package ruleshandler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/auth"
	"paydesk/internal/domain/rules"
	"paydesk/internal/platform/metrics"
	"paydesk/internal/transport/http/api"
	"paydesk/internal/transport/http/middleware"
	"paydesk/internal/transport/http/shared"
)

const (
	endpointExecute    = "rules.execute"
	endpointExecuteOne = "rules.execute_configured"
)

type RulesService interface {
	Configure(ctx context.Context, actor audit.Actor, spec rules.RuleSpec) (rules.RuleConfig, error)
	Execute(ctx context.Context, actor audit.Actor, req rules.ExecuteRequest) (rules.ExecuteResult, error)
	ExecuteConfigured(ctx context.Context, actor audit.Actor, ruleID int64) (rules.ExecuteResult, error)
	List(ctx context.Context) ([]rules.RuleConfig, error)
	Get(ctx context.Context, id int64) (rules.RuleConfig, error)
	SetActive(ctx context.Context, actor audit.Actor, id int64, active bool) (rules.RuleConfig, error)
}

type Handler struct {
	Service   RulesService
	Perms     middleware.PermissionStore
	Idem      middleware.Idempotency
	Metrics   *metrics.Collector
	Dashboard shared.DashboardCache
}

func NewHandler(service RulesService, perms middleware.PermissionStore, idem middleware.Idempotency) *Handler {
	return &Handler{Service: service, Perms: perms, Idem: idem}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/rules", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermRulesRead, h.Perms)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermRulesWrite, h.Perms)).Post("/", h.handleConfigure)
		r.With(middleware.RequirePermission(auth.PermRulesExecute, h.Perms)).Post("/execute", h.handleExecute)
		r.With(middleware.RequirePermission(auth.PermRulesRead, h.Perms)).Get("/{ruleID}", h.handleGet)
		r.With(middleware.RequirePermission(auth.PermRulesWrite, h.Perms)).Patch("/{ruleID}", h.handleSetActive)
		r.With(middleware.RequirePermission(auth.PermRulesExecute, h.Perms)).Post("/{ruleID}/execute", h.handleExecuteConfigured)
	})
}

type configurePayload struct {
	RuleName           string          `json:"rule_name" validate:"required,max=100"`
	ConditionType      string          `json:"condition_type" validate:"required"`
	Comparator         string          `json:"comparator" validate:"required"`
	Threshold          json.RawMessage `json:"threshold"`
	CalculationType    string          `json:"calculation_type" validate:"required"`
	Value              json.RawMessage `json:"value"`
	ExcludeDepartments []int64         `json:"exclude_departments" validate:"omitempty,dive,gt=0"`
}

func (h *Handler) handleConfigure(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	var payload configurePayload
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	validator := shared.NewValidator()
	validator.Struct(payload)
	threshold := scalar(payload.Threshold)
	validator.Required("threshold", threshold, "is required")
	value := validator.Decimal("value", payload.Value, true, decimal.Zero)
	if validator.Reject(w, requestID) {
		return
	}

	created, err := h.Service.Configure(r.Context(), middleware.Actor(r.Context()), rules.RuleSpec{
		Name:               strings.TrimSpace(payload.RuleName),
		ConditionType:      strings.TrimSpace(payload.ConditionType),
		Comparator:         strings.TrimSpace(payload.Comparator),
		Threshold:          threshold,
		CalculationType:    strings.TrimSpace(payload.CalculationType),
		Value:              value,
		ExcludeDepartments: payload.ExcludeDepartments,
	})
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	api.Created(w, map[string]any{"status": rules.StatusSuccess, "rule_id": created.ID, "rule": created}, requestID)
}

type executePayload struct {
	Rank       json.RawMessage `json:"rank"`
	Comparator string          `json:"comparator" validate:"required"`
	CalcMode   string          `json:"calcMode" validate:"required"`
	CalcValue  json.RawMessage `json:"calcValue"`
	Exceptions []int64         `json:"exceptions" validate:"omitempty,dive,gt=0"`
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	body, ok := shared.ReadBody(w, r, requestID)
	if !ok {
		return
	}
	replay, done := shared.CheckReplay(w, r, h.Idem, endpointExecute, body)
	if done {
		return
	}

	var payload executePayload
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	validator := shared.NewValidator()
	validator.Struct(payload)
	rank := scalar(payload.Rank)
	validator.Required("rank", rank, "is required")
	value := validator.Decimal("calcValue", payload.CalcValue, true, decimal.Zero)
	if validator.Reject(w, requestID) {
		return
	}

	result, err := h.Service.Execute(r.Context(), middleware.Actor(r.Context()), rules.ExecuteRequest{
		Rank:       rank,
		Comparator: strings.TrimSpace(payload.Comparator),
		CalcMode:   strings.TrimSpace(payload.CalcMode),
		CalcValue:  value,
		Exceptions: payload.Exceptions,
	})
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	h.afterExecute(r.Context(), result)
	replay.Save(r.Context(), result)
	api.Success(w, result, requestID)
}

func (h *Handler) handleExecuteConfigured(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	ruleID, ok := shared.PathID(chi.URLParam(r, "ruleID"))
	if !ok {
		api.Fail(w, http.StatusBadRequest, "invalid_id", "invalid rule id", requestID)
		return
	}
	replay, done := shared.CheckReplay(w, r, h.Idem, endpointExecuteOne, []byte(chi.URLParam(r, "ruleID")))
	if done {
		return
	}
	result, err := h.Service.ExecuteConfigured(r.Context(), middleware.Actor(r.Context()), ruleID)
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	h.afterExecute(r.Context(), result)
	replay.Save(r.Context(), result)
	api.Success(w, result, requestID)
}

func (h *Handler) afterExecute(ctx context.Context, result rules.ExecuteResult) {
	h.Metrics.Add(metrics.RuleAllowancesCreated, result.Affected)
	if result.Affected > 0 {
		shared.InvalidateDashboard(ctx, h.Dashboard)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.List(r.Context())
	if err != nil {
		api.FailError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, list, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	ruleID, ok := shared.PathID(chi.URLParam(r, "ruleID"))
	if !ok {
		api.Fail(w, http.StatusBadRequest, "invalid_id", "invalid rule id", requestID)
		return
	}
	rule, err := h.Service.Get(r.Context(), ruleID)
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	api.Success(w, rule, requestID)
}

type activePayload struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

func (h *Handler) handleSetActive(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	ruleID, ok := shared.PathID(chi.URLParam(r, "ruleID"))
	if !ok {
		api.Fail(w, http.StatusBadRequest, "invalid_id", "invalid rule id", requestID)
		return
	}
	var payload activePayload
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	validator := shared.NewValidator()
	validator.Struct(payload)
	if validator.Reject(w, requestID) {
		return
	}
	rule, err := h.Service.SetActive(r.Context(), middleware.Actor(r.Context()), ruleID, *payload.IsActive)
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	api.Success(w, rule, requestID)
}

// scalar returns a JSON string or number literal as text. Thresholds and
// ranks arrive in either form.
func scalar(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	if trimmed[0] == '{' || trimmed[0] == '[' || bytes.Equal(trimmed, []byte("true")) || bytes.Equal(trimmed, []byte("false")) {
		return ""
	}
	return string(trimmed)
}
