package employeeshandler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/auth"
	"paydesk/internal/domain/employee"
	"paydesk/internal/platform/jobs"
	"paydesk/internal/platform/metrics"
	"paydesk/internal/transport/http/api"
	"paydesk/internal/transport/http/middleware"
	"paydesk/internal/transport/http/shared"
)

const (
	maxBulkEmployees  = 500
	maxImportCSVBytes = 4 * 1024 * 1024
)

type EmployeeService interface {
	Provision(ctx context.Context, actor audit.Actor, draft employee.Draft, opts employee.ProvisionOptions) (employee.Provisioned, error)
	BulkCreate(ctx context.Context, actor audit.Actor, drafts []employee.Draft, suppressSideEffects bool) (employee.BulkResult, error)
	ImportCSV(ctx context.Context, actor audit.Actor, r io.Reader, suppressSideEffects bool) (employee.BulkResult, error)
	ExportCSV(ctx context.Context, w io.Writer, filter employee.ListFilter) error
	Get(ctx context.Context, id int64) (employee.Employee, error)
	ForUser(ctx context.Context, userID int64) (employee.Employee, error)
	List(ctx context.Context, filter employee.ListFilter) ([]employee.Employee, error)
	Update(ctx context.Context, actor audit.Actor, id int64, patch employee.Patch) (employee.Employee, error)
	Terminate(ctx context.Context, actor audit.Actor, id int64, exitDate time.Time) (employee.Employee, error)
	CreateDepartment(ctx context.Context, actor audit.Actor, name string, budget *decimal.Decimal) (employee.Department, error)
	ListDepartments(ctx context.Context) ([]employee.Department, error)
	CreatePosition(ctx context.Context, actor audit.Actor, title string) (employee.Position, error)
	ListPositions(ctx context.Context) ([]employee.Position, error)
	ApplyCostOfLivingAdjustment(ctx context.Context, actor audit.Actor, rate decimal.Decimal) (employee.COLAResult, error)
}

// JobRunner records a synchronous run in job_runs.
type JobRunner interface {
	RunNow(ctx context.Context, jobType string, run func(context.Context) (any, error)) (any, error)
}

type Handler struct {
	Service   EmployeeService
	Perms     middleware.PermissionStore
	Jobs      JobRunner
	Metrics   *metrics.Collector
	Dashboard shared.DashboardCache
}

func NewHandler(service EmployeeService, perms middleware.PermissionStore, jobsSvc JobRunner) *Handler {
	return &Handler{Service: service, Perms: perms, Jobs: jobsSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/employees", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermEmployeesRead, h.Perms)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermEmployeesWrite, h.Perms)).Post("/", h.handleCreate)
		r.With(middleware.RequirePermission(auth.PermEmployeesWrite, h.Perms)).Post("/bulk", h.handleBulk)
		r.With(middleware.RequirePermission(auth.PermEmployeesWrite, h.Perms)).Post("/import", h.handleImport)
		r.With(middleware.RequirePermission(auth.PermEmployeesRead, h.Perms)).Get("/export", h.handleExport)
		r.With(middleware.RequirePermission(auth.PermEmployeesWrite, h.Perms)).Post("/cost-of-living", h.handleCostOfLiving)
		r.With(middleware.RequirePermission(auth.PermPayslipsSelf, h.Perms)).Get("/me", h.handleMe)
		r.With(middleware.RequirePermission(auth.PermEmployeesRead, h.Perms)).Get("/{employeeID}", h.handleGet)
		r.With(middleware.RequirePermission(auth.PermEmployeesWrite, h.Perms)).Patch("/{employeeID}", h.handleUpdate)
		r.With(middleware.RequirePermission(auth.PermEmployeesWrite, h.Perms)).Post("/{employeeID}/terminate", h.handleTerminate)
	})
	r.Route("/departments", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermEmployeesRead, h.Perms)).Get("/", h.handleListDepartments)
		r.With(middleware.RequirePermission(auth.PermEmployeesWrite, h.Perms)).Post("/", h.handleCreateDepartment)
	})
	r.Route("/positions", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermEmployeesRead, h.Perms)).Get("/", h.handleListPositions)
		r.With(middleware.RequirePermission(auth.PermEmployeesWrite, h.Perms)).Post("/", h.handleCreatePosition)
	})
}

type employeePayload struct {
	FirstName    string          `json:"first_name" validate:"required,max=50"`
	LastName     string          `json:"last_name" validate:"required,max=50"`
	Email        string          `json:"email" validate:"omitempty,email"`
	Phone        string          `json:"phone" validate:"max=32"`
	HireDate     string          `json:"hire_date"`
	ExitDate     string          `json:"exit_date"`
	Salary       json.RawMessage `json:"salary"`
	Performance  json.RawMessage `json:"performance"`
	Rank         int             `json:"rank" validate:"omitempty,min=1"`
	Grade        string          `json:"grade" validate:"omitempty,oneof=A B C D a b c d"`
	DepartmentID *int64          `json:"department_id" validate:"omitempty,gt=0"`
	PositionID   *int64          `json:"position_id" validate:"omitempty,gt=0"`
}

func (p employeePayload) draft(v *shared.Validator, prefix string) employee.Draft {
	d := employee.Draft{
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Email:        p.Email,
		Phone:        p.Phone,
		Salary:       v.Decimal(prefix+"salary", p.Salary, true, decimal.Zero),
		Performance:  v.Decimal(prefix+"performance", p.Performance, false, decimal.NewFromInt(1)),
		Rank:         p.Rank,
		Grade:        p.Grade,
		DepartmentID: p.DepartmentID,
		PositionID:   p.PositionID,
	}
	d.HireDate = optionalDate(v, prefix+"hire_date", p.HireDate)
	d.ExitDate = optionalDate(v, prefix+"exit_date", p.ExitDate)
	return d
}

func optionalDate(v *shared.Validator, field, raw string) *time.Time {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parsed, ok := v.Date(field, raw)
	if !ok {
		return nil
	}
	return &parsed
}

type createPayload struct {
	employeePayload
	SuppressSideEffects bool `json:"suppress_side_effects"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	var payload createPayload
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	validator := shared.NewValidator()
	validator.Struct(payload.employeePayload)
	draft := payload.draft(validator, "")
	if validator.Reject(w, requestID) {
		return
	}

	created, err := h.Service.Provision(r.Context(), middleware.Actor(r.Context()), draft, employee.ProvisionOptions{SuppressSideEffects: payload.SuppressSideEffects})
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	h.Metrics.Add(metrics.EmployeesProvisioned, 1)
	shared.InvalidateDashboard(r.Context(), h.Dashboard)
	api.Created(w, created, requestID)
}

type bulkPayload struct {
	Employees           []employeePayload `json:"employees" validate:"required,min=1,dive"`
	SuppressSideEffects bool              `json:"suppress_side_effects"`
}

func (h *Handler) handleBulk(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	var payload bulkPayload
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	validator := shared.NewValidator()
	if len(payload.Employees) > maxBulkEmployees {
		validator.Add("employees", "must contain at most 500 items")
	}
	validator.Struct(payload)
	drafts := make([]employee.Draft, 0, len(payload.Employees))
	for i, item := range payload.Employees {
		drafts = append(drafts, item.draft(validator, "employees["+strconv.Itoa(i)+"]."))
	}
	if validator.Reject(w, requestID) {
		return
	}

	result, err := h.Service.BulkCreate(r.Context(), middleware.Actor(r.Context()), drafts, payload.SuppressSideEffects)
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	h.Metrics.Add(metrics.EmployeesProvisioned, result.Created)
	shared.InvalidateDashboard(r.Context(), h.Dashboard)
	api.Created(w, result, requestID)
}

// handleImport accepts either a multipart upload in the "file" field or a
// raw text/csv body.
func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	suppress := r.URL.Query().Get("suppress_side_effects") == "true"

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxImportCSVBytes); err != nil {
			api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid multipart payload", requestID)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "file", Reason: "is required"}})
			return
		}
		defer file.Close()
		src = file
		if r.FormValue("suppress_side_effects") == "true" {
			suppress = true
		}
	}
	body, err := io.ReadAll(io.LimitReader(src, maxImportCSVBytes+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body is too large", requestID)
			return
		}
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "unreadable upload", requestID)
		return
	}
	if len(body) > maxImportCSVBytes {
		api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "csv file is too large", requestID)
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "file", Reason: "is empty"}})
		return
	}

	result, err := h.Service.ImportCSV(r.Context(), middleware.Actor(r.Context()), bytes.NewReader(body), suppress)
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	h.Metrics.Add(metrics.EmployeesProvisioned, result.Created)
	shared.InvalidateDashboard(r.Context(), h.Dashboard)
	api.Created(w, result, requestID)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	filter, ok := parseListFilter(w, r, requestID)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.Service.ExportCSV(r.Context(), &buf, filter); err != nil {
		api.FailError(w, err, requestID)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=employees.csv")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

type colaPayload struct {
	Rate json.RawMessage `json:"rate"`
}

// handleCostOfLiving applies the adjustment as a recorded job run so the
// outcome shows up next to seeds and other batch work.
func (h *Handler) handleCostOfLiving(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	var payload colaPayload
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	validator := shared.NewValidator()
	rate := validator.Decimal("rate", payload.Rate, true, decimal.Zero)
	if validator.Reject(w, requestID) {
		return
	}

	actor := middleware.Actor(r.Context())
	run := func(ctx context.Context) (any, error) {
		return h.Service.ApplyCostOfLivingAdjustment(ctx, actor, rate)
	}
	var (
		out any
		err error
	)
	if h.Jobs != nil {
		out, err = h.Jobs.RunNow(r.Context(), jobs.JobCostOfLiving, run)
	} else {
		out, err = run(r.Context())
	}
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	shared.InvalidateDashboard(r.Context(), h.Dashboard)
	api.Success(w, out, requestID)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	filter, ok := parseListFilter(w, r, requestID)
	if !ok {
		return
	}
	list, err := h.Service.List(r.Context(), filter)
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	api.Success(w, list, requestID)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	user, _ := middleware.GetUser(r.Context())
	emp, err := h.Service.ForUser(r.Context(), user.UserID)
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	employee.FilterEmployeeFields(&emp, user)
	api.Success(w, emp, requestID)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	id, ok := employeeID(w, r, requestID)
	if !ok {
		return
	}
	emp, err := h.Service.Get(r.Context(), id)
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	api.Success(w, emp, requestID)
}

type patchPayload struct {
	FirstName    *string         `json:"first_name" validate:"omitempty,max=50"`
	LastName     *string         `json:"last_name" validate:"omitempty,max=50"`
	Email        *string         `json:"email" validate:"omitempty,email"`
	Phone        *string         `json:"phone" validate:"omitempty,max=32"`
	HireDate     *string         `json:"hire_date"`
	ExitDate     json.RawMessage `json:"exit_date"`
	Salary       json.RawMessage `json:"salary"`
	Performance  json.RawMessage `json:"performance"`
	Rank         *int            `json:"rank" validate:"omitempty,min=1"`
	Grade        *string         `json:"grade" validate:"omitempty,oneof=A B C D a b c d"`
	DepartmentID *int64          `json:"department_id" validate:"omitempty,gt=0"`
	PositionID   *int64          `json:"position_id" validate:"omitempty,gt=0"`
}

func (p patchPayload) patch(v *shared.Validator) employee.Patch {
	out := employee.Patch{
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Email:        p.Email,
		Phone:        p.Phone,
		Rank:         p.Rank,
		Grade:        p.Grade,
		DepartmentID: p.DepartmentID,
		PositionID:   p.PositionID,
	}
	if p.HireDate != nil {
		out.HireDate = optionalDate(v, "hire_date", *p.HireDate)
	}
	switch raw := strings.TrimSpace(string(p.ExitDate)); raw {
	case "":
	case "null":
		out.ClearExitDate = true
	default:
		var s string
		if err := json.Unmarshal(p.ExitDate, &s); err != nil {
			v.Add("exit_date", shared.InvalidDateReason)
		} else {
			out.ExitDate = optionalDate(v, "exit_date", s)
		}
	}
	if len(p.Salary) > 0 {
		salary := v.Decimal("salary", p.Salary, true, decimal.Zero)
		out.Salary = &salary
	}
	if len(p.Performance) > 0 {
		perf := v.Decimal("performance", p.Performance, true, decimal.Zero)
		out.Performance = &perf
	}
	return out
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	id, ok := employeeID(w, r, requestID)
	if !ok {
		return
	}
	var payload patchPayload
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	validator := shared.NewValidator()
	validator.Struct(payload)
	patch := payload.patch(validator)
	if validator.Reject(w, requestID) {
		return
	}
	updated, err := h.Service.Update(r.Context(), middleware.Actor(r.Context()), id, patch)
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	shared.InvalidateDashboard(r.Context(), h.Dashboard)
	api.Success(w, updated, requestID)
}

type terminatePayload struct {
	ExitDate string `json:"exit_date" validate:"required"`
}

func (h *Handler) handleTerminate(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	id, ok := employeeID(w, r, requestID)
	if !ok {
		return
	}
	var payload terminatePayload
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	validator := shared.NewValidator()
	validator.Struct(payload)
	var exitDate time.Time
	if payload.ExitDate != "" {
		exitDate, _ = validator.Date("exit_date", payload.ExitDate)
	}
	if validator.Reject(w, requestID) {
		return
	}
	updated, err := h.Service.Terminate(r.Context(), middleware.Actor(r.Context()), id, exitDate)
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	shared.InvalidateDashboard(r.Context(), h.Dashboard)
	api.Success(w, updated, requestID)
}

type departmentPayload struct {
	Name   string          `json:"name" validate:"required,max=100"`
	Budget json.RawMessage `json:"budget"`
}

func (h *Handler) handleCreateDepartment(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	var payload departmentPayload
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	validator := shared.NewValidator()
	validator.Struct(payload)
	var budget *decimal.Decimal
	if len(payload.Budget) > 0 && string(payload.Budget) != "null" {
		value := validator.Decimal("budget", payload.Budget, true, decimal.Zero)
		budget = &value
	}
	if validator.Reject(w, requestID) {
		return
	}
	created, err := h.Service.CreateDepartment(r.Context(), middleware.Actor(r.Context()), payload.Name, budget)
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	api.Created(w, created, requestID)
}

func (h *Handler) handleListDepartments(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.ListDepartments(r.Context())
	if err != nil {
		api.FailError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, list, middleware.GetRequestID(r.Context()))
}

type positionPayload struct {
	Title string `json:"title" validate:"required,max=100"`
}

func (h *Handler) handleCreatePosition(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	var payload positionPayload
	if !shared.DecodeJSON(w, r, &payload, requestID) {
		return
	}
	validator := shared.NewValidator()
	validator.Struct(payload)
	if validator.Reject(w, requestID) {
		return
	}
	created, err := h.Service.CreatePosition(r.Context(), middleware.Actor(r.Context()), payload.Title)
	if err != nil {
		api.FailError(w, err, requestID)
		return
	}
	api.Created(w, created, requestID)
}

func (h *Handler) handleListPositions(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.ListPositions(r.Context())
	if err != nil {
		api.FailError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, list, middleware.GetRequestID(r.Context()))
}

func parseListFilter(w http.ResponseWriter, r *http.Request, requestID string) (employee.ListFilter, bool) {
	var filter employee.ListFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("department_id")); raw != "" {
		id, ok := shared.PathID(raw)
		if !ok {
			shared.FailValidation(w, requestID, []shared.ValidationIssue{{Field: "department_id", Reason: "must be a positive integer"}})
			return employee.ListFilter{}, false
		}
		filter.DepartmentID = id
	}
	filter.ActiveOnly = r.URL.Query().Get("active") == "true"
	return filter, true
}

func employeeID(w http.ResponseWriter, r *http.Request, requestID string) (int64, bool) {
	id, ok := shared.PathID(chi.URLParam(r, "employeeID"))
	if !ok {
		api.Fail(w, http.StatusBadRequest, "invalid_id", "invalid employee id", requestID)
		return 0, false
	}
	return id, true
}
