package reportshandler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"paydesk/internal/domain/auth"
	"paydesk/internal/domain/reports"
	"paydesk/internal/transport/http/api"
	"paydesk/internal/transport/http/middleware"
	"paydesk/internal/transport/http/shared"
)

type ReportsService interface {
	Dashboard(ctx context.Context, refresh bool) (reports.DashboardStats, error)
	DashboardPDF(ctx context.Context) ([]byte, error)
	EmployeeSummary(ctx context.Context, userID int64) (reports.EmployeeSummary, error)
	JobRuns(ctx context.Context, filter reports.JobRunFilter, limit, offset int) ([]reports.JobRun, error)
}

type Handler struct {
	Service ReportsService
	Perms   middleware.PermissionStore
}

func NewHandler(service ReportsService, perms middleware.PermissionStore) *Handler {
	return &Handler{Service: service, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermReportsRead, h.Perms)).Get("/dashboard", h.handleDashboard)
		r.With(middleware.RequirePermission(auth.PermReportsRead, h.Perms)).Get("/dashboard.pdf", h.handleDashboardPDF)
		r.With(middleware.RequirePermission(auth.PermPayslipsSelf, h.Perms)).Get("/me", h.handleEmployeeSummary)
		r.With(middleware.RequirePermission(auth.PermReportsRead, h.Perms)).Get("/jobs", h.handleJobRuns)
	})
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	stats, err := h.Service.Dashboard(r.Context(), refresh)
	if err != nil {
		api.FailError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, stats, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDashboardPDF(w http.ResponseWriter, r *http.Request) {
	pdf, err := h.Service.DashboardPDF(r.Context())
	if err != nil {
		api.FailError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=dashboard.pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) handleEmployeeSummary(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	summary, err := h.Service.EmployeeSummary(r.Context(), user.UserID)
	if err != nil {
		api.FailError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, summary, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleJobRuns(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r, 50, 200)
	filter := reports.JobRunFilter{
		JobType: strings.TrimSpace(r.URL.Query().Get("jobType")),
		Status:  strings.TrimSpace(r.URL.Query().Get("status")),
	}
	runs, err := h.Service.JobRuns(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		api.FailError(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, runs, middleware.GetRequestID(r.Context()))
}
