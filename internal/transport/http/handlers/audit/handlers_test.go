package audithandler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/auth"
	"paydesk/internal/transport/http/middleware"
)

type fakeLogs struct {
	entries []audit.Entry
	filter  audit.Filter
	limit   int
}

func (f *fakeLogs) Count(_ context.Context, filter audit.Filter) (int, error) {
	return len(f.entries), nil
}

func (f *fakeLogs) List(_ context.Context, filter audit.Filter, limit, offset int) ([]audit.Entry, error) {
	f.filter = filter
	f.limit = limit
	return f.entries, nil
}

func (f *fakeLogs) History(context.Context) ([]audit.Entry, error) {
	return f.entries, nil
}

func newRouter(h *Handler, role string) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			user := auth.UserContext{UserID: 1, Email: "admin@example.com", Role: role}
			next.ServeHTTP(w, req.WithContext(middleware.WithUser(req.Context(), user)))
		})
	})
	h.RegisterRoutes(r)
	return r
}

func sampleEntries() []audit.Entry {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return []audit.Entry{
		{ID: 2, ActorEmail: "admin@example.com", Action: audit.ActionRuleExecuted, ModelName: "Allowance", ObjectID: "4", Changes: map[string]any{"amount": "100.00"}, LogType: audit.LogTypeSystem, CreatedAt: at},
		{ID: 1, ActorEmail: "admin@example.com", Action: audit.ActionCreate, ModelName: "Payroll", ObjectID: "4", LogType: audit.LogTypeOperation, CreatedAt: at.Add(-time.Hour)},
	}
}

func TestHistoryAndLogs(t *testing.T) {
	svc := &fakeLogs{entries: sampleEntries()}
	router := newRouter(NewHandler(svc, auth.StaticPermissions{}), auth.RoleAdmin)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Rule Executed") {
		t.Fatalf("unexpected history %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs?logType=system&modelName=Allowance&limit=10", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("X-Total-Count") != "2" {
		t.Fatalf("unexpected logs response %d", rec.Code)
	}
	if svc.filter.LogType != audit.LogTypeSystem || svc.filter.ModelName != "Allowance" || svc.limit != 10 {
		t.Fatalf("unexpected filter %+v limit %d", svc.filter, svc.limit)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs?logType=debug", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown log type rejected, got %d", rec.Code)
	}
}

func TestExportLogs(t *testing.T) {
	svc := &fakeLogs{entries: sampleEntries()}
	router := newRouter(NewHandler(svc, auth.StaticPermissions{}), auth.RoleAdmin)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs/export", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("unexpected export %d", rec.Code)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "id,created_at,actor_email") {
		t.Fatalf("unexpected csv %q", rec.Body.String())
	}
	if !strings.Contains(lines[1], "2025-03-01T09:00:00Z") || svc.limit != 0 {
		t.Fatalf("expected full export with timestamps, got %q limit %d", lines[1], svc.limit)
	}
}

func TestLogsRequireAuditPermission(t *testing.T) {
	router := newRouter(NewHandler(&fakeLogs{}, auth.StaticPermissions{}), auth.RoleUser)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}
