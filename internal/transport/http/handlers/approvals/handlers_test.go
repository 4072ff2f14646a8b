package approvalshandler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"paydesk/internal/domain/apperr"
	"paydesk/internal/domain/approval"
	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/auth"
	"paydesk/internal/platform/metrics"
	"paydesk/internal/transport/http/middleware"
)

type fakeApprovals struct {
	submitted approval.SubmitInput
	reason    string
	asAdmin   *bool
	status    map[int64]string
	filter    approval.ListFilter
	pendingID int64
}

func (f *fakeApprovals) Submit(_ context.Context, _ audit.Actor, in approval.SubmitInput) (approval.Approval, error) {
	f.submitted = in
	return approval.Approval{ID: 1, Status: approval.StatusPending}, nil
}

func (f *fakeApprovals) move(id int64, reason, next string) (approval.Approval, error) {
	f.reason = reason
	if f.status[id] != approval.StatusPending {
		return approval.Approval{}, apperr.Conflict("status", "approval is not pending")
	}
	f.status[id] = next
	return approval.Approval{ID: id, Status: next}, nil
}

func (f *fakeApprovals) Approve(_ context.Context, _ audit.Actor, id int64, reason string) (approval.Approval, error) {
	return f.move(id, reason, approval.StatusApproved)
}

func (f *fakeApprovals) Reject(_ context.Context, _ audit.Actor, id int64, reason string) (approval.Approval, error) {
	return f.move(id, reason, approval.StatusRejected)
}

func (f *fakeApprovals) Cancel(_ context.Context, _ audit.Actor, id int64, reason string, asAdmin bool) (approval.Approval, error) {
	f.asAdmin = &asAdmin
	return f.move(id, reason, approval.StatusCancelled)
}

func (f *fakeApprovals) Get(_ context.Context, id int64) (approval.Approval, error) {
	return approval.Approval{ID: id}, nil
}

func (f *fakeApprovals) ListPending(_ context.Context, employeeID int64) ([]approval.Approval, error) {
	f.pendingID = employeeID
	return []approval.Approval{}, nil
}

func (f *fakeApprovals) List(_ context.Context, filter approval.ListFilter) ([]approval.Approval, error) {
	f.filter = filter
	return []approval.Approval{}, nil
}

func (f *fakeApprovals) History(_ context.Context, id int64) ([]approval.StatusChange, error) {
	return []approval.StatusChange{{ApprovalID: id, NewStatus: approval.StatusApproved}}, nil
}

func newRouter(h *Handler, role string) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			user := auth.UserContext{UserID: 2, Email: "someone@example.com", Role: role}
			next.ServeHTTP(w, req.WithContext(middleware.WithUser(req.Context(), user)))
		})
	})
	h.RegisterRoutes(r)
	return r
}

func serve(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestSubmitSalaryAdjustment(t *testing.T) {
	svc := &fakeApprovals{}
	router := newRouter(NewHandler(svc, auth.StaticPermissions{}), auth.RoleUser)

	rec := serve(router, http.MethodPost, "/approvals", `{"employee_id":4,"request_type":"salary_adjustment","description":"annual review","proposed_amount":"32000"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.submitted.ProposedAmount == nil || !svc.submitted.ProposedAmount.Equal(decimal.NewFromInt(32000)) || *svc.submitted.EmployeeID != 4 {
		t.Fatalf("unexpected input %+v", svc.submitted)
	}

	rec = serve(router, http.MethodPost, "/approvals", `{"request_type":"","description":""}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "request_type") {
		t.Fatalf("expected validation error, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestDecisionsOnlyFromPending(t *testing.T) {
	svc := &fakeApprovals{status: map[int64]string{5: approval.StatusPending}}
	h := NewHandler(svc, auth.StaticPermissions{})
	h.Metrics = metrics.New()
	router := newRouter(h, auth.RoleAdmin)

	rec := serve(router, http.MethodPost, "/approvals/5/approve", `{"reason":"within budget"}`)
	if rec.Code != http.StatusOK || svc.reason != "within budget" {
		t.Fatalf("expected approval, got %d %q", rec.Code, svc.reason)
	}
	rec = serve(router, http.MethodPost, "/approvals/5/reject", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on decided approval, got %d", rec.Code)
	}
	events := h.Metrics.Snapshot()["events"].(map[string]uint64)
	if events[metrics.ApprovalsDecided] != 1 {
		t.Fatalf("expected one decision counted, got %v", events)
	}
}

func TestDecisionsRequirePermission(t *testing.T) {
	svc := &fakeApprovals{status: map[int64]string{5: approval.StatusPending}}
	router := newRouter(NewHandler(svc, auth.StaticPermissions{}), auth.RoleUser)

	rec := serve(router, http.MethodPost, "/approvals/5/approve", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	rec = serve(router, http.MethodPost, "/approvals/5/cancel", "")
	if rec.Code != http.StatusOK || svc.asAdmin == nil || *svc.asAdmin {
		t.Fatalf("expected non-admin cancel, got %d %v", rec.Code, svc.asAdmin)
	}
}

func TestListFilters(t *testing.T) {
	svc := &fakeApprovals{}
	router := newRouter(NewHandler(svc, auth.StaticPermissions{}), auth.RoleAdmin)

	rec := serve(router, http.MethodGet, "/approvals?status=approved&employee_id=9", "")
	if rec.Code != http.StatusOK || svc.filter.Status != "approved" || svc.filter.EmployeeID != 9 {
		t.Fatalf("unexpected filter %+v", svc.filter)
	}
	rec = serve(router, http.MethodGet, "/approvals/pending?employee_id=3", "")
	if rec.Code != http.StatusOK || svc.pendingID != 3 {
		t.Fatalf("unexpected pending call %d %d", rec.Code, svc.pendingID)
	}
	rec = serve(router, http.MethodGet, "/approvals/pending?employee_id=x", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec = serve(router, http.MethodGet, "/approvals/5/history", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), approval.StatusApproved) {
		t.Fatalf("unexpected history %d %s", rec.Code, rec.Body.String())
	}
}
