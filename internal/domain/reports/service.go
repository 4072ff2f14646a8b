package reports

import (
	"bytes"
	"context"
	"errors"
	"time"

	"paydesk/internal/domain/apperr"
	"paydesk/internal/domain/money"
	"paydesk/internal/platform/cache"
)

const dashboardKeyPrefix = "reports:dashboard:"

type Service struct {
	store StoreAPI
	cache *cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

type Option func(*Service)

func WithCache(c *cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.ttl = ttl
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store StoreAPI, opts ...Option) *Service {
	s := &Service{store: store, cache: cache.New(nil), ttl: time.Minute, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func dashboardKey(now time.Time) string {
	return dashboardKeyPrefix + now.UTC().Format("2006-01")
}

// Dashboard returns organisation-wide figures for the current month. Results
// are cached per month; refresh drops the cached entry first.
func (s *Service) Dashboard(ctx context.Context, refresh bool) (DashboardStats, error) {
	now := s.now()
	key := dashboardKey(now)
	if refresh {
		s.cache.Invalidate(ctx, key)
	}
	stats, err := cache.GetOrLoad(ctx, s.cache, key, s.ttl, func(ctx context.Context) (DashboardStats, error) {
		return s.loadDashboard(ctx, now)
	})
	if err != nil {
		return DashboardStats{}, apperr.Internal("load dashboard", err)
	}
	return stats, nil
}

// InvalidateDashboard drops the cached figures for the current month.
func (s *Service) InvalidateDashboard(ctx context.Context) {
	s.cache.Invalidate(ctx, dashboardKey(s.now()))
}

func (s *Service) loadDashboard(ctx context.Context, now time.Time) (DashboardStats, error) {
	active, inactive, err := s.store.Headcount(ctx)
	if err != nil {
		return DashboardStats{}, err
	}
	avg, err := s.store.AverageSalary(ctx)
	if err != nil {
		return DashboardStats{}, err
	}
	departments, err := s.store.DepartmentTotals(ctx)
	if err != nil {
		return DashboardStats{}, err
	}
	y, m, _ := now.UTC().Date()
	from := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	payroll, err := s.store.PayrollTotals(ctx, from, from.AddDate(0, 1, -1))
	if err != nil {
		return DashboardStats{}, err
	}
	payroll.Period = from.Format("2006-01")
	pending, err := s.store.PendingApprovals(ctx, 0)
	if err != nil {
		return DashboardStats{}, err
	}
	if departments == nil {
		departments = []DepartmentTotal{}
	}
	return DashboardStats{
		ActiveEmployees:   active,
		InactiveEmployees: inactive,
		AverageSalary:     money.NewAmount(avg),
		Departments:       departments,
		Payroll:           payroll,
		PendingApprovals:  pending,
		GeneratedAt:       now.UTC(),
	}, nil
}

func (s *Service) DashboardPDF(ctx context.Context) ([]byte, error) {
	stats, err := s.Dashboard(ctx, false)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := WriteDashboardPDF(&buf, stats); err != nil {
		return nil, apperr.Internal("render dashboard", err)
	}
	return buf.Bytes(), nil
}

func (s *Service) EmployeeSummary(ctx context.Context, userID int64) (EmployeeSummary, error) {
	employeeID, err := s.store.EmployeeIDByUserID(ctx, userID)
	if errors.Is(err, ErrEmployeeNotFound) {
		return EmployeeSummary{}, apperr.NotFound("user", "no employee record is linked to this account")
	}
	if err != nil {
		return EmployeeSummary{}, apperr.Internal("resolve employee", err)
	}
	summary, err := s.store.EmployeeSummary(ctx, employeeID)
	if err != nil {
		return EmployeeSummary{}, apperr.Internal("load employee summary", err)
	}
	return summary, nil
}

func (s *Service) JobRuns(ctx context.Context, filter JobRunFilter, limit, offset int) ([]JobRun, error) {
	runs, err := s.store.ListJobRuns(ctx, filter, limit, offset)
	if err != nil {
		return nil, apperr.Internal("list job runs", err)
	}
	return runs, nil
}
