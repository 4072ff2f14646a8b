package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"

	"paydesk/internal/domain/apperr"
	"paydesk/internal/domain/money"
	"paydesk/internal/platform/cache"
)

type fakeStore struct {
	loads        int
	payrollFrom  time.Time
	payrollTo    time.Time
	employeeByID map[int64]int64
}

func (f *fakeStore) Headcount(context.Context) (int, int, error) {
	f.loads++
	return 3, 1, nil
}

func (f *fakeStore) AverageSalary(context.Context) (decimal.Decimal, error) {
	return decimal.RequireFromString("31666.666"), nil
}

func (f *fakeStore) DepartmentTotals(context.Context) ([]DepartmentTotal, error) {
	id := int64(1)
	budget := money.NewAmount(decimal.NewFromInt(100000))
	return []DepartmentTotal{{DepartmentID: &id, Name: "Engineering", Headcount: 3, TotalSalary: money.NewAmount(decimal.NewFromInt(95000)), Budget: &budget}}, nil
}

func (f *fakeStore) PayrollTotals(_ context.Context, from, to time.Time) (PayrollTotals, error) {
	f.payrollFrom, f.payrollTo = from, to
	return PayrollTotals{Records: 3, Gross: money.NewAmount(decimal.NewFromInt(7900))}, nil
}

func (f *fakeStore) PendingApprovals(context.Context, int64) (int, error) {
	return 2, nil
}

func (f *fakeStore) EmployeeIDByUserID(_ context.Context, userID int64) (int64, error) {
	id, ok := f.employeeByID[userID]
	if !ok {
		return 0, ErrEmployeeNotFound
	}
	return id, nil
}

func (f *fakeStore) EmployeeSummary(_ context.Context, employeeID int64) (EmployeeSummary, error) {
	return EmployeeSummary{EmployeeID: employeeID, PayslipCount: 4}, nil
}

func (f *fakeStore) ListJobRuns(context.Context, JobRunFilter, int, int) ([]JobRun, error) {
	return nil, nil
}

func fixedClock() time.Time {
	return time.Date(2024, 2, 15, 10, 0, 0, 0, time.UTC)
}

func TestDashboardAggregatesCurrentMonth(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, WithClock(fixedClock))

	stats, err := svc.Dashboard(context.Background(), false)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if stats.ActiveEmployees != 3 || stats.InactiveEmployees != 1 || stats.PendingApprovals != 2 {
		t.Fatalf("unexpected counts %+v", stats)
	}
	if money.Format(stats.AverageSalary.Decimal) != "31666.67" {
		t.Fatalf("expected rounded average, got %s", money.Format(stats.AverageSalary.Decimal))
	}
	if stats.Payroll.Period != "2024-02" {
		t.Fatalf("expected period 2024-02, got %s", stats.Payroll.Period)
	}
	if store.payrollFrom.Day() != 1 || store.payrollTo.Day() != 29 {
		t.Fatalf("expected February bounds, got %s to %s", store.payrollFrom, store.payrollTo)
	}
}

func TestDashboardServedFromCache(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	store := &fakeStore{}
	svc := NewService(store, WithClock(fixedClock), WithCache(cache.New(rdb), time.Minute))

	cached := DashboardStats{ActiveEmployees: 9, Departments: []DepartmentTotal{}}
	payload, _ := json.Marshal(cached)
	mock.ExpectGet("reports:dashboard:2024-02").SetVal(string(payload))

	stats, err := svc.Dashboard(context.Background(), false)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if stats.ActiveEmployees != 9 || store.loads != 0 {
		t.Fatalf("expected cached stats without a store load, got %+v after %d loads", stats, store.loads)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDashboardRefreshInvalidates(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	mock.MatchExpectationsInOrder(true)
	store := &fakeStore{}
	svc := NewService(store, WithClock(fixedClock), WithCache(cache.New(rdb), time.Minute))

	mock.ExpectDel("reports:dashboard:2024-02").SetVal(1)
	mock.ExpectGet("reports:dashboard:2024-02").RedisNil()
	mock.Regexp().ExpectSet("reports:dashboard:2024-02", `.*`, time.Minute).SetVal("OK")

	if _, err := svc.Dashboard(context.Background(), true); err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if store.loads != 1 {
		t.Fatalf("expected one store load, got %d", store.loads)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDashboardPDF(t *testing.T) {
	svc := NewService(&fakeStore{}, WithClock(fixedClock))
	data, err := svc.DashboardPDF(context.Background())
	if err != nil {
		t.Fatalf("pdf: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatalf("expected a pdf document, got %q", data[:8])
	}
}

func TestEmployeeSummaryRequiresLinkedEmployee(t *testing.T) {
	svc := NewService(&fakeStore{employeeByID: map[int64]int64{5: 12}})

	summary, err := svc.EmployeeSummary(context.Background(), 5)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.EmployeeID != 12 || summary.PayslipCount != 4 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if _, err := svc.EmployeeSummary(context.Background(), 6); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBuildJobRunsQuery(t *testing.T) {
	query, args := buildJobRunsQuery(JobRunFilter{JobType: "welcome_email", Status: "failed"})
	if !bytes.Contains([]byte(query), []byte("job_type = $1 AND status = $2")) {
		t.Fatalf("unexpected query %q", query)
	}
	if len(args) != 2 {
		t.Fatalf("unexpected args %v", args)
	}
}
