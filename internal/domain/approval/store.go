package approval

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/money"
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

const approvalColumns = `a.id, a.employee_id, COALESCE(e.first_name || ' ' || e.last_name, ''), a.request_type,
  a.description, a.status, COALESCE(a.related_model, ''), a.related_object_id, a.proposed_amount,
  a.created_by, a.modified_by, a.submitted_at, a.decided_at`

const approvalFrom = " FROM approvals a LEFT JOIN employees e ON e.id = a.employee_id"

func scanApproval(row pgx.Row) (Approval, error) {
	var a Approval
	var proposed decimal.NullDecimal
	err := row.Scan(&a.ID, &a.EmployeeID, &a.EmployeeName, &a.RequestType, &a.Description, &a.Status,
		&a.RelatedModel, &a.RelatedObjectID, &proposed, &a.CreatedBy, &a.ModifiedBy, &a.SubmittedAt, &a.DecidedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Approval{}, ErrNotFound
	}
	if err != nil {
		return Approval{}, err
	}
	if proposed.Valid {
		amount := money.NewAmount(proposed.Decimal)
		a.ProposedAmount = &amount
	}
	return a, nil
}

func (s *Store) Get(ctx context.Context, id int64) (Approval, error) {
	return scanApproval(s.DB.QueryRow(ctx, "SELECT "+approvalColumns+approvalFrom+" WHERE a.id = $1", id))
}

func (s *Store) List(ctx context.Context, filter ListFilter) ([]Approval, error) {
	query := "SELECT " + approvalColumns + approvalFrom
	var where []string
	var args []any
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, "a.status = $"+strconv.Itoa(len(args)))
	}
	if filter.EmployeeID > 0 {
		args = append(args, filter.EmployeeID)
		where = append(where, "a.employee_id = $"+strconv.Itoa(len(args)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY a.submitted_at ASC, a.id ASC"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) StatusHistory(ctx context.Context, id int64) ([]StatusChange, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT l.id, l.approval_id, COALESCE(u.email, ''), l.old_status, l.new_status, COALESCE(l.reason, ''), l.changed_at
    FROM approval_status_log l
    LEFT JOIN users u ON u.id = l.changed_by
    WHERE l.approval_id = $1
    ORDER BY l.changed_at ASC, l.id ASC
  `, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusChange
	for rows.Next() {
		var c StatusChange
		if err := rows.Scan(&c.ID, &c.ApprovalID, &c.ChangedBy, &c.OldStatus, &c.NewStatus, &c.Reason, &c.ChangedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type txStore struct {
	tx pgx.Tx
}

func (t *txStore) EmployeeExists(ctx context.Context, id int64) (bool, error) {
	var count int
	if err := t.tx.QueryRow(ctx, "SELECT COUNT(1) FROM employees WHERE id = $1", id).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (t *txStore) Insert(ctx context.Context, a Approval) (Approval, error) {
	var proposed decimal.NullDecimal
	if a.ProposedAmount != nil {
		proposed = decimal.NewNullDecimal(a.ProposedAmount.Decimal)
	}
	var id int64
	if err := t.tx.QueryRow(ctx, `
    INSERT INTO approvals (employee_id, request_type, description, status, related_model, related_object_id, proposed_amount, created_by, modified_by)
    VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,$7,$8,$8)
    RETURNING id
  `, a.EmployeeID, a.RequestType, a.Description, a.Status, a.RelatedModel, a.RelatedObjectID, proposed, a.CreatedBy).Scan(&id); err != nil {
		return Approval{}, err
	}
	return scanApproval(t.tx.QueryRow(ctx, "SELECT "+approvalColumns+approvalFrom+" WHERE a.id = $1", id))
}

func (t *txStore) GetForUpdate(ctx context.Context, id int64) (Approval, error) {
	return scanApproval(t.tx.QueryRow(ctx,
		"SELECT "+approvalColumns+approvalFrom+" WHERE a.id = $1 FOR UPDATE OF a", id))
}

func (t *txStore) SetStatus(ctx context.Context, id int64, status string, modifiedBy int64) (Approval, error) {
	tag, err := t.tx.Exec(ctx, `
    UPDATE approvals
    SET status = $2, modified_by = NULLIF($3, 0), decided_at = now()
    WHERE id = $1
  `, id, status, modifiedBy)
	if err != nil {
		return Approval{}, err
	}
	if tag.RowsAffected() == 0 {
		return Approval{}, ErrNotFound
	}
	return scanApproval(t.tx.QueryRow(ctx, "SELECT "+approvalColumns+approvalFrom+" WHERE a.id = $1", id))
}

func (t *txStore) InsertStatusChange(ctx context.Context, change StatusChange, changedBy int64) error {
	_, err := t.tx.Exec(ctx, `
    INSERT INTO approval_status_log (approval_id, changed_by, old_status, new_status, reason)
    VALUES ($1, NULLIF($2, 0), $3, $4, NULLIF($5, ''))
  `, change.ApprovalID, changedBy, change.OldStatus, change.NewStatus, change.Reason)
	return err
}

func (t *txStore) SetSalary(ctx context.Context, employeeID int64, salary decimal.Decimal) (decimal.Decimal, error) {
	var old decimal.Decimal
	err := t.tx.QueryRow(ctx, "SELECT salary FROM employees WHERE id = $1 FOR UPDATE", employeeID).Scan(&old)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrEmployeeNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}
	if _, err := t.tx.Exec(ctx, "UPDATE employees SET salary = $2, updated_at = now() WHERE id = $1", employeeID, money.RoundCorrection(salary)); err != nil {
		return decimal.Zero, err
	}
	return old, nil
}

func (t *txStore) AppendLog(ctx context.Context, entry audit.Entry) error {
	_, err := audit.Record(ctx, t.tx, entry)
	return err
}
