package employee

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/money"
	"paydesk/internal/platform/db"
	"paydesk/internal/platform/querier"
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

const employeeColumns = `id, user_id, first_name, last_name, COALESCE(email, ''), COALESCE(phone, ''),
           hire_date, exit_date, salary, performance, rank, grade,
           department_id, position_id, is_active, created_at, updated_at`

func scanEmployee(row pgx.Row) (Employee, error) {
	var emp Employee
	err := row.Scan(
		&emp.ID, &emp.UserID, &emp.FirstName, &emp.LastName, &emp.Email, &emp.Phone,
		&emp.HireDate, &emp.ExitDate, &emp.Salary.Decimal, &emp.Performance, &emp.Rank, &emp.Grade,
		&emp.DepartmentID, &emp.PositionID, &emp.IsActive, &emp.CreatedAt, &emp.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Employee{}, ErrEmployeeNotFound
	}
	return emp, err
}

func getEmployee(ctx context.Context, q querier.Querier, where string, arg any) (Employee, error) {
	return scanEmployee(q.QueryRow(ctx, "SELECT "+employeeColumns+" FROM employees WHERE "+where, arg))
}

func (s *Store) GetEmployee(ctx context.Context, id int64) (Employee, error) {
	return getEmployee(ctx, s.DB, "id = $1", id)
}

func (s *Store) GetEmployeeByUserID(ctx context.Context, userID int64) (Employee, error) {
	return getEmployee(ctx, s.DB, "user_id = $1", userID)
}

func (s *Store) ListEmployees(ctx context.Context, filter ListFilter) ([]Employee, error) {
	query := "SELECT " + employeeColumns + " FROM employees WHERE 1=1"
	var args []any
	if filter.DepartmentID > 0 {
		args = append(args, filter.DepartmentID)
		query += fmt.Sprintf(" AND department_id = $%d", len(args))
	}
	if filter.ActiveOnly {
		query += " AND is_active"
	}
	query += " ORDER BY last_name, first_name, id"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEmployees(rows)
}

func collectEmployees(rows pgx.Rows) ([]Employee, error) {
	var out []Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, emp)
	}
	return out, rows.Err()
}

func (s *Store) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := s.DB.Query(ctx, "SELECT id, name, budget, created_at FROM departments ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Department
	for rows.Next() {
		dep, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, dep)
	}
	return out, rows.Err()
}

func scanDepartment(row pgx.Row) (Department, error) {
	var dep Department
	var budget decimal.NullDecimal
	if err := row.Scan(&dep.ID, &dep.Name, &budget, &dep.CreatedAt); err != nil {
		return Department{}, err
	}
	if budget.Valid {
		amount := money.NewAmount(budget.Decimal)
		dep.Budget = &amount
	}
	return dep, nil
}

func (s *Store) ListPositions(ctx context.Context) ([]Position, error) {
	rows, err := s.DB.Query(ctx, "SELECT id, title, created_at FROM positions ORDER BY title")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		var pos Position
		if err := rows.Scan(&pos.ID, &pos.Title, &pos.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

type txStore struct {
	tx pgx.Tx
}

func (t *txStore) InsertUser(ctx context.Context, account NewAccount) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
    INSERT INTO users (email, password_hash, role, first_name, last_name)
    VALUES ($1,$2,$3,$4,$5)
    ON CONFLICT (email) DO NOTHING
    RETURNING id
  `, account.Email, account.PasswordHash, account.Role, account.FirstName, account.LastName).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (t *txStore) InsertEmployee(ctx context.Context, emp Employee) (Employee, error) {
	return scanEmployee(t.tx.QueryRow(ctx, `
    INSERT INTO employees (user_id, first_name, last_name, email, phone, hire_date, exit_date,
                           salary, performance, rank, grade, department_id, position_id)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
    RETURNING `+employeeColumns,
		emp.UserID, emp.FirstName, emp.LastName, emp.Email, emp.Phone, emp.HireDate, emp.ExitDate,
		emp.Salary.Decimal, emp.Performance, emp.Rank, emp.Grade, emp.DepartmentID, emp.PositionID,
	))
}

func (t *txStore) GetEmployeeForUpdate(ctx context.Context, id int64) (Employee, error) {
	return getEmployee(ctx, t.tx, "id = $1 FOR UPDATE", id)
}

func (t *txStore) UpdateEmployee(ctx context.Context, emp Employee) (Employee, error) {
	return scanEmployee(t.tx.QueryRow(ctx, `
    UPDATE employees
    SET first_name = $2,
        last_name = $3,
        email = $4,
        phone = $5,
        hire_date = $6,
        exit_date = $7,
        salary = $8,
        performance = $9,
        rank = $10,
        grade = $11,
        department_id = $12,
        position_id = $13,
        updated_at = now()
    WHERE id = $1
    RETURNING `+employeeColumns,
		emp.ID, emp.FirstName, emp.LastName, emp.Email, emp.Phone, emp.HireDate, emp.ExitDate,
		emp.Salary.Decimal, emp.Performance, emp.Rank, emp.Grade, emp.DepartmentID, emp.PositionID,
	))
}

func (t *txStore) ActiveForUpdate(ctx context.Context) ([]Employee, error) {
	rows, err := t.tx.Query(ctx, "SELECT "+employeeColumns+" FROM employees WHERE is_active ORDER BY id FOR UPDATE")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEmployees(rows)
}

func (t *txStore) UpdateSalary(ctx context.Context, id int64, salary decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, "UPDATE employees SET salary = $2, updated_at = now() WHERE id = $1", id, salary)
	return err
}

func (t *txStore) DepartmentExists(ctx context.Context, id int64) (bool, error) {
	var count int
	if err := t.tx.QueryRow(ctx, "SELECT COUNT(1) FROM departments WHERE id = $1", id).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (t *txStore) PositionExists(ctx context.Context, id int64) (bool, error) {
	var count int
	if err := t.tx.QueryRow(ctx, "SELECT COUNT(1) FROM positions WHERE id = $1", id).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (t *txStore) InsertDepartment(ctx context.Context, dep Department) (Department, error) {
	var budget any
	if dep.Budget != nil {
		budget = dep.Budget.Decimal
	}
	created, err := scanDepartment(t.tx.QueryRow(ctx, `
    INSERT INTO departments (name, budget) VALUES ($1, $2)
    RETURNING id, name, budget, created_at
  `, dep.Name, budget))
	if db.IsUniqueViolation(err) {
		return Department{}, ErrDuplicateDepartment
	}
	return created, err
}

func (t *txStore) InsertPosition(ctx context.Context, pos Position) (Position, error) {
	err := t.tx.QueryRow(ctx, `
    INSERT INTO positions (title) VALUES ($1)
    RETURNING id, created_at
  `, pos.Title).Scan(&pos.ID, &pos.CreatedAt)
	if db.IsUniqueViolation(err) {
		return Position{}, ErrDuplicatePosition
	}
	return pos, err
}

func (t *txStore) AppendLog(ctx context.Context, entry audit.Entry) error {
	_, err := audit.Record(ctx, t.tx, entry)
	return err
}
