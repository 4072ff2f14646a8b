package payroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const recordColumns = `
    r.id, r.employee_id, e.first_name || ' ' || e.last_name,
    r.basic_salary, r.bonus, r.allowance, r.deduction, r.pension_deduction,
    r.total_salary, r.tax_amount, r.pay_date, r.period_start, r.period_end, r.created_at`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.EmployeeID, &rec.EmployeeName,
		&rec.BasicSalary, &rec.Bonus, &rec.Allowance, &rec.Deduction, &rec.PensionDeduction,
		&rec.TotalSalary, &rec.TaxAmount, &rec.PayDate, &rec.PeriodStart, &rec.PeriodEnd, &rec.CreatedAt)
	return rec, err
}

func (s *Store) GetRecord(ctx context.Context, id int64) (Record, error) {
	rec, err := scanRecord(s.DB.QueryRow(ctx, `
    SELECT`+recordColumns+`
    FROM payroll_records r
    JOIN employees e ON e.id = r.employee_id
    WHERE r.id = $1
  `, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return rec, err
}

func buildRecordQuery(prefix string, filter RecordFilter) (string, []any) {
	query := prefix + " FROM payroll_records r JOIN employees e ON e.id = r.employee_id WHERE 1=1"
	var args []any
	if filter.EmployeeID > 0 {
		args = append(args, filter.EmployeeID)
		query += fmt.Sprintf(" AND r.employee_id = $%d", len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += fmt.Sprintf(" AND r.pay_date >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += fmt.Sprintf(" AND r.pay_date <= $%d", len(args))
	}
	return query, args
}

func (s *Store) CountRecords(ctx context.Context, filter RecordFilter) (int, error) {
	query, args := buildRecordQuery("SELECT COUNT(1)", filter)
	var total int
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListRecords(ctx context.Context, filter RecordFilter, limit, offset int) ([]Record, error) {
	query, args := buildRecordQuery("SELECT"+recordColumns, filter)
	query += " ORDER BY r.pay_date DESC, r.id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, limit, offset)
	}

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) AdjustmentTotals(ctx context.Context, employeeID int64, from, to time.Time) (decimal.Decimal, decimal.Decimal, error) {
	var allowances, deductions decimal.Decimal
	err := s.DB.QueryRow(ctx, `
    SELECT
      COALESCE((SELECT SUM(amount) FROM allowances
                WHERE employee_id = $1 AND effective_date BETWEEN $2 AND $3), 0),
      COALESCE((SELECT SUM(amount) FROM deductions
                WHERE employee_id = $1 AND effective_date BETWEEN $2 AND $3), 0)
  `, employeeID, from, to).Scan(&allowances, &deductions)
	return allowances, deductions, err
}

func (s *Store) PayslipData(ctx context.Context, recordID int64) (PayslipData, error) {
	var data PayslipData
	rec, err := scanRecord(s.DB.QueryRow(ctx, `
    SELECT`+recordColumns+`
    FROM payroll_records r
    JOIN employees e ON e.id = r.employee_id
    WHERE r.id = $1
  `, recordID))
	if errors.Is(err, pgx.ErrNoRows) {
		return PayslipData{}, ErrRecordNotFound
	}
	if err != nil {
		return PayslipData{}, err
	}
	data.Record = rec

	err = s.DB.QueryRow(ctx, `
    SELECT e.first_name, e.last_name, COALESCE(e.email, ''), COALESCE(d.name, '')
    FROM employees e
    LEFT JOIN departments d ON d.id = e.department_id
    WHERE e.id = $1
  `, rec.EmployeeID).Scan(&data.FirstName, &data.LastName, &data.Email, &data.Department)
	if err != nil {
		return PayslipData{}, err
	}
	return data, nil
}

func (s *Store) EmployeeIDByUserID(ctx context.Context, userID int64) (int64, error) {
	var id int64
	err := s.DB.QueryRow(ctx, "SELECT id FROM employees WHERE user_id = $1", userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrEmployeeNotFound
	}
	return id, err
}

func (s *Store) CompensationSamples(ctx context.Context) ([]CompensationSample, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT e.id, e.first_name || ' ' || e.last_name, e.salary, e.performance,
           COALESCE((SELECT p.bonus FROM payroll_records p
                     WHERE p.employee_id = e.id
                     ORDER BY p.period_start DESC LIMIT 1), 0)
    FROM employees e
    WHERE e.is_active
    ORDER BY e.id
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CompensationSample
	for rows.Next() {
		var sample CompensationSample
		if err := rows.Scan(&sample.EmployeeID, &sample.EmployeeName, &sample.Salary, &sample.Performance, &sample.Bonus); err != nil {
			return nil, err
		}
		out = append(out, sample)
	}
	return out, rows.Err()
}
