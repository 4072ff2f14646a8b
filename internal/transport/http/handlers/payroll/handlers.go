package payrollhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/auth"
	"paydesk/internal/domain/money"
	"paydesk/internal/domain/payroll"
	"paydesk/internal/platform/metrics"
	"paydesk/internal/transport/http/api"
	"paydesk/internal/transport/http/middleware"
	"paydesk/internal/transport/http/shared"
)

const endpointCalculate = "payroll.calculate"

type PayrollService interface {
	CalculateBatch(ctx context.Context, actor audit.Actor, req payroll.BatchRequest) (payroll.BatchResult, error)
	Record(ctx context.Context, id int64) (payroll.RecordView, error)
	ListRecords(ctx context.Context, filter payroll.RecordFilter, limit, offset int) ([]payroll.RecordView, int, error)
	RecordsForUser(ctx context.Context, userID int64, limit, offset int) ([]payroll.RecordView, int, error)
	OwnsRecord(ctx context.Context, userID, recordID int64) (bool, error)
	NetSalary(ctx context.Context, recordID int64) (payroll.NetView, error)
	PayslipPDF(ctx context.Context, recordID int64) ([]byte, error)
	ExportCSV(ctx context.Context, filter payroll.RecordFilter) ([]byte, error)
	Anomalies(ctx context.Context, threshold float64) ([]payroll.Anomaly, error)
}

type Handler struct {
	Service          PayrollService
	Perms            middleware.PermissionStore
	Idem             middleware.Idempotency
	Metrics          *metrics.Collector
	Dashboard        shared.DashboardCache
	AnomalyThreshold float64
}

func NewHandler(service PayrollService, perms middleware.PermissionStore, idem middleware.Idempotency) *Handler {
	return &Handler{Service: service, Perms: perms, Idem: idem, AnomalyThreshold: 2}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/payroll", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermPayrollRun, h.Perms)).Post("/calculate", h.handleCalculate)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/records", h.handleListRecords)
		r.With(middleware.RequirePermission(auth.PermPayslipsSelf, h.Perms)).Get("/records/me", h.handleMyRecords)
		r.With(middleware.RequirePermission(auth.PermPayslipsSelf, h.Perms)).Get("/records/{recordID}", h.handleGetRecord)
		r.With(middleware.RequirePermission(auth.PermPayslipsSelf, h.Perms)).Get("/records/{recordID}/net", h.handleNetSalary)
		r.With(middleware.RequirePermission(auth.PermPayslipsSelf, h.Perms)).Get("/records/{recordID}/payslip", h.handlePayslip)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/export", h.handleExport)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/statutory", h.handleStatutory)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/anomalies", h.handleAnomalies)
	})
}

type calculatePayload struct {
	EmployeeIDs []int64         `json:"employee_ids" validate:"required,min=1,unique,dive,gt=0"`
	Performance json.RawMessage `json:"performance"`
	Allowance   json.RawMessage `json:"allowance"`
	Deduction   json.RawMessage `json:"deduction"`
	PayDate     string          `json:"pay_date"`
}

func (h *Handler) handleCalculate(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	body, ok := shared.ReadBody(w, r, requestID)
	if !ok {
		return
	}
	replay, done := shared.CheckReplay(w, r, h.Idem, endpointCalculate, body)
	if done {
		return
	}

	var payload calculatePayload
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	validator := shared.NewValidator()
	validator.Struct(payload)
	req := payroll.BatchRequest{
		EmployeeIDs: payload.EmployeeIDs,
		Performance: validator.Decimal("performance", payload.Performance, false, decimal.NewFromInt(1)),
		Allowance:   validator.Decimal("allowance", payload.Allowance, false, decimal.Zero),
		Deduction:   validator.Decimal("deduction", payload.Deduction, false, decimal.Zero),
	}
	if strings.TrimSpace(payload.PayDate) != "" {
		req.PayDate, _ = validator.Date("pay_date", payload.PayDate)
	}
	if validator.Reject(w, requestID) {
		return
	}

	result, err := h.Service.CalculateBatch(r.Context(), middleware.Actor(r.Context()), req)
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	h.Metrics.Add(metrics.PayrollRecordsCreated, len(result.Results))
	shared.InvalidateDashboard(r.Context(), h.Dashboard)
	replay.Save(r.Context(), result)
	api.Success(w, result, requestID)
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	filter, ok := parseRecordFilter(w, r, requestID)
	if !ok {
		return
	}
	page := shared.ParsePagination(r, 100, 500)
	records, total, err := h.Service.ListRecords(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, records, requestID)
}

func (h *Handler) handleMyRecords(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	page := shared.ParsePagination(r, 100, 500)
	records, total, err := h.Service.RecordsForUser(r.Context(), user.UserID, page.Limit, page.Offset)
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, records, requestID)
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	recordID, ok := h.authorizeRecord(w, r)
	if !ok {
		return
	}
	record, err := h.Service.Record(r.Context(), recordID)
	if err != nil {
		api.FailError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, record, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleNetSalary(w http.ResponseWriter, r *http.Request) {
	recordID, ok := h.authorizeRecord(w, r)
	if !ok {
		return
	}
	net, err := h.Service.NetSalary(r.Context(), recordID)
	if err != nil {
		api.FailError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, net, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handlePayslip(w http.ResponseWriter, r *http.Request) {
	recordID, ok := h.authorizeRecord(w, r)
	if !ok {
		return
	}
	pdf, err := h.Service.PayslipPDF(r.Context(), recordID)
	if err != nil {
		api.FailError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=payslip-%d.pdf", recordID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// authorizeRecord resolves the record id and lets payroll readers through.
// Other callers only see records of their own employee; anything else is
// reported as missing.
func (h *Handler) authorizeRecord(w http.ResponseWriter, r *http.Request) (int64, bool) {
	requestID := middleware.GetRequestID(r.Context())
	recordID, ok := shared.PathID(chi.URLParam(r, "recordID"))
	if !ok {
		api.Fail(w, http.StatusBadRequest, "invalid_id", "invalid payroll record id", requestID)
		return 0, false
	}
	if middleware.HasPermission(r.Context(), h.Perms, auth.PermPayrollRead) {
		return recordID, true
	}
	user, _ := middleware.GetUser(r.Context())
	owns, err := h.Service.OwnsRecord(r.Context(), user.UserID, recordID)
	if err != nil {
		api.FailError(w, err, requestID)
		return 0, false
	}
	if !owns {
		api.Fail(w, http.StatusNotFound, "not_found", "payroll record not found", requestID)
		return 0, false
	}
	return recordID, true
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	filter, ok := parseRecordFilter(w, r, requestID)
	if !ok {
		return
	}
	data, err := h.Service.ExportCSV(r.Context(), filter)
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=payroll-records.csv")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleStatutory(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	raw := strings.TrimSpace(r.URL.Query().Get("annual_gross"))
	if raw == "" {
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "annual_gross", Reason: "is required"}})
		return
	}
	gross, err := money.Parse(raw)
	if err != nil || gross.IsNegative() {
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "annual_gross", Reason: "must be a non-negative decimal number"}})
		return
	}
	api.Success(w, payroll.StatutoryBreakdown(gross), requestID)
}

func (h *Handler) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	threshold := h.AnomalyThreshold
	if raw := strings.TrimSpace(r.URL.Query().Get("threshold")); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 {
			shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "threshold", Reason: "must be a positive number"}})
			return
		}
		threshold = parsed
	}
	anomalies, err := h.Service.Anomalies(r.Context(), threshold)
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	api.Success(w, anomalies, requestID)
}

func parseRecordFilter(w http.ResponseWriter, r *http.Request, requestID string) (payroll.RecordFilter, bool) {
	query := r.URL.Query()
	validator := shared.NewValidator()
	var filter payroll.RecordFilter
	if raw := strings.TrimSpace(query.Get("employee_id")); raw != "" {
		id, ok := shared.PathID(raw)
		if !ok {
			validator.Add("employee_id", "must be a positive integer")
		}
		filter.EmployeeID = id
	}
	if raw := query.Get("from"); raw != "" {
		filter.From, _ = validator.Date("from", raw)
	}
	if raw := query.Get("to"); raw != "" {
		filter.To, _ = validator.Date("to", raw)
	}
	validator.DateOrder("from", filter.From, "to", filter.To)
	if validator.Reject(w, requestID) {
		return payroll.RecordFilter{}, false
	}
	return filter, true
}
