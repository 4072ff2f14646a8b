package reportshandler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"paydesk/internal/domain/apperr"
	"paydesk/internal/domain/auth"
	"paydesk/internal/domain/reports"
	"paydesk/internal/transport/http/middleware"
)

type fakeReports struct {
	refresh bool
	filter  reports.JobRunFilter
	limit   int
	userID  int64
	failPDF bool
}

func (f *fakeReports) Dashboard(_ context.Context, refresh bool) (reports.DashboardStats, error) {
	f.refresh = refresh
	return reports.DashboardStats{ActiveEmployees: 3}, nil
}

func (f *fakeReports) DashboardPDF(context.Context) ([]byte, error) {
	if f.failPDF {
		return nil, apperr.Internal("render dashboard", errors.New("font missing"))
	}
	return []byte("%PDF-1.3"), nil
}

func (f *fakeReports) EmployeeSummary(_ context.Context, userID int64) (reports.EmployeeSummary, error) {
	f.userID = userID
	if userID == 404 {
		return reports.EmployeeSummary{}, apperr.NotFound("user", "no employee record is linked to this account")
	}
	return reports.EmployeeSummary{EmployeeID: 7, PayslipCount: 2}, nil
}

func (f *fakeReports) JobRuns(_ context.Context, filter reports.JobRunFilter, limit, offset int) ([]reports.JobRun, error) {
	f.filter = filter
	f.limit = limit
	return []reports.JobRun{}, nil
}

func newRouter(h *Handler, user auth.UserContext) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithUser(req.Context(), user)))
		})
	})
	h.RegisterRoutes(r)
	return r
}

func serve(router http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestDashboardRoutes(t *testing.T) {
	svc := &fakeReports{}
	router := newRouter(NewHandler(svc, auth.StaticPermissions{}), auth.UserContext{UserID: 1, Role: auth.RoleAdmin})

	rec := serve(router, "/reports/dashboard?refresh=true")
	if rec.Code != http.StatusOK || !svc.refresh || !strings.Contains(rec.Body.String(), `"activeEmployees":3`) {
		t.Fatalf("unexpected dashboard %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(router, "/reports/dashboard.pdf")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("unexpected pdf response %d", rec.Code)
	}

	svc.failPDF = true
	rec = serve(router, "/reports/dashboard.pdf")
	if rec.Code != http.StatusInternalServerError || strings.Contains(rec.Body.String(), "font missing") {
		t.Fatalf("expected generic failure, got %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(router, "/reports/jobs?jobType=seed_employees&limit=500")
	if rec.Code != http.StatusOK || svc.filter.JobType != "seed_employees" || svc.limit != 200 {
		t.Fatalf("unexpected job runs call %+v limit %d", svc.filter, svc.limit)
	}
}

func TestEmployeeSummaryForCaller(t *testing.T) {
	svc := &fakeReports{}
	router := newRouter(NewHandler(svc, auth.StaticPermissions{}), auth.UserContext{UserID: 12, Role: auth.RoleUser})

	rec := serve(router, "/reports/me")
	if rec.Code != http.StatusOK || svc.userID != 12 {
		t.Fatalf("unexpected summary %d for user %d", rec.Code, svc.userID)
	}
	rec = serve(router, "/reports/dashboard")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected org dashboard forbidden, got %d", rec.Code)
	}

	router = newRouter(NewHandler(svc, auth.StaticPermissions{}), auth.UserContext{UserID: 404, Role: auth.RoleUser})
	rec = serve(router, "/reports/me")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without employee link, got %d", rec.Code)
	}
}
