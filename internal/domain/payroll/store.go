package payroll

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"paydesk/internal/domain/audit"
	"paydesk/internal/platform/db"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{DB: pool}
}

func (s *Store) WithTx(ctx context.Context, fn func(TxStore) error) error {
	return db.InTx(ctx, s.DB, func(tx pgx.Tx) error {
		return fn(&txStore{tx: tx})
	})
}

type txStore struct {
	tx pgx.Tx
}

// LockEmployee takes a row lock so concurrent batches for the same employee
// run one after the other.
func (t *txStore) LockEmployee(ctx context.Context, id int64) (EmployeeRef, error) {
	var emp EmployeeRef
	err := t.tx.QueryRow(ctx, `
    SELECT id, first_name, last_name, salary
    FROM employees
    WHERE id = $1
    FOR UPDATE
  `, id).Scan(&emp.ID, &emp.FirstName, &emp.LastName, &emp.Salary)
	if errors.Is(err, pgx.ErrNoRows) {
		return EmployeeRef{}, ErrEmployeeNotFound
	}
	return emp, err
}

func (t *txStore) InsertRecord(ctx context.Context, rec Record) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
    INSERT INTO payroll_records (employee_id, basic_salary, bonus, allowance, deduction, pension_deduction,
                                 total_salary, tax_amount, pay_date, period_start, period_end)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    RETURNING id
  `, rec.EmployeeID, rec.BasicSalary, rec.Bonus, rec.Allowance, rec.Deduction, rec.PensionDeduction,
		rec.TotalSalary, rec.TaxAmount, rec.PayDate, rec.PeriodStart, rec.PeriodEnd).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, ErrDuplicatePeriod
	}
	return id, err
}

func (t *txStore) AppendLog(ctx context.Context, entry audit.Entry) error {
	_, err := audit.Record(ctx, t.tx, entry)
	return err
}
