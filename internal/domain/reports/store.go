package reports

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"paydesk/internal/domain/money"
	"paydesk/internal/platform/querier"
)

type StoreAPI interface {
	Headcount(ctx context.Context) (active, inactive int, err error)
	AverageSalary(ctx context.Context) (decimal.Decimal, error)
	DepartmentTotals(ctx context.Context) ([]DepartmentTotal, error)
	PayrollTotals(ctx context.Context, from, to time.Time) (PayrollTotals, error)
	PendingApprovals(ctx context.Context, employeeID int64) (int, error)
	EmployeeIDByUserID(ctx context.Context, userID int64) (int64, error)
	EmployeeSummary(ctx context.Context, employeeID int64) (EmployeeSummary, error)
	ListJobRuns(ctx context.Context, filter JobRunFilter, limit, offset int) ([]JobRun, error)
}

type Store struct {
	DB querier.Querier
}

func NewStore(db querier.Querier) *Store {
	return &Store{DB: db}
}

func (s *Store) Headcount(ctx context.Context) (int, int, error) {
	var active, inactive int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FILTER (WHERE is_active), COUNT(1) FILTER (WHERE NOT is_active)
    FROM employees
  `).Scan(&active, &inactive)
	return active, inactive, err
}

func (s *Store) AverageSalary(ctx context.Context) (decimal.Decimal, error) {
	var avg decimal.Decimal
	err := s.DB.QueryRow(ctx, "SELECT COALESCE(AVG(salary), 0) FROM employees WHERE is_active").Scan(&avg)
	return avg, err
}

func (s *Store) DepartmentTotals(ctx context.Context) ([]DepartmentTotal, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT d.id, d.name, COUNT(e.id), COALESCE(SUM(e.salary), 0), d.budget
    FROM departments d
    LEFT JOIN employees e ON e.department_id = d.id AND e.is_active
    GROUP BY d.id, d.name, d.budget
    ORDER BY d.name
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DepartmentTotal
	for rows.Next() {
		var (
			id     int64
			t      DepartmentTotal
			budget decimal.NullDecimal
		)
		if err := rows.Scan(&id, &t.Name, &t.Headcount, &t.TotalSalary.Decimal, &budget); err != nil {
			return nil, err
		}
		t.DepartmentID = &id
		if budget.Valid {
			b := money.NewAmount(budget.Decimal)
			t.Budget = &b
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) PayrollTotals(ctx context.Context, from, to time.Time) (PayrollTotals, error) {
	var t PayrollTotals
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1), COALESCE(SUM(total_salary), 0), COALESCE(SUM(tax_amount), 0),
      COALESCE(SUM(pension_deduction), 0), COALESCE(SUM(allowance), 0), COALESCE(SUM(deduction), 0)
    FROM payroll_records
    WHERE period_start >= $1 AND period_start <= $2
  `, from, to).Scan(&t.Records, &t.Gross.Decimal, &t.Tax.Decimal, &t.Pension.Decimal, &t.Allowance.Decimal, &t.Deduction.Decimal)
	return t, err
}

// PendingApprovals counts pending requests, for one employee when
// employeeID is positive.
func (s *Store) PendingApprovals(ctx context.Context, employeeID int64) (int, error) {
	query := "SELECT COUNT(1) FROM approvals WHERE status = 'pending'"
	var args []any
	if employeeID > 0 {
		query += " AND employee_id = $1"
		args = append(args, employeeID)
	}
	var count int
	err := s.DB.QueryRow(ctx, query, args...).Scan(&count)
	return count, err
}

func (s *Store) EmployeeIDByUserID(ctx context.Context, userID int64) (int64, error) {
	var employeeID int64
	err := s.DB.QueryRow(ctx, "SELECT id FROM employees WHERE user_id = $1", userID).Scan(&employeeID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrEmployeeNotFound
	}
	return employeeID, err
}

func (s *Store) EmployeeSummary(ctx context.Context, employeeID int64) (EmployeeSummary, error) {
	summary := EmployeeSummary{EmployeeID: employeeID}
	if err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM payroll_records WHERE employee_id = $1", employeeID).Scan(&summary.PayslipCount); err != nil {
		return EmployeeSummary{}, err
	}
	pending, err := s.PendingApprovals(ctx, employeeID)
	if err != nil {
		return EmployeeSummary{}, err
	}
	summary.PendingApprovals = pending

	var (
		payDate time.Time
		total   decimal.Decimal
	)
	err = s.DB.QueryRow(ctx, `
    SELECT pay_date, total_salary
    FROM payroll_records
    WHERE employee_id = $1
    ORDER BY pay_date DESC, id DESC
    LIMIT 1
  `, employeeID).Scan(&payDate, &total)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return EmployeeSummary{}, err
	default:
		amount := money.NewAmount(total)
		summary.LastPayDate = &payDate
		summary.LastTotalSalary = &amount
	}
	return summary, nil
}

func (s *Store) ListJobRuns(ctx context.Context, filter JobRunFilter, limit, offset int) ([]JobRun, error) {
	query, args := buildJobRunsQuery(filter)
	query += " ORDER BY started_at DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []JobRun
	for rows.Next() {
		var run JobRun
		var details []byte
		if err := rows.Scan(&run.ID, &run.JobType, &run.Status, &details, &run.StartedAt, &run.CompletedAt); err != nil {
			return nil, err
		}
		run.Details = details
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func buildJobRunsQuery(filter JobRunFilter) (string, []any) {
	query := `
    SELECT id, job_type, status, COALESCE(details_json, '{}'::jsonb), started_at, completed_at
    FROM job_runs
  `
	var where []string
	var args []any
	if value := strings.TrimSpace(filter.JobType); value != "" {
		args = append(args, value)
		where = append(where, "job_type = $"+strconv.Itoa(len(args)))
	}
	if value := strings.TrimSpace(filter.Status); value != "" {
		args = append(args, value)
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	return query, args
}
