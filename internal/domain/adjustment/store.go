package adjustment

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

const adjustmentColumns = "id, employee_id, type, amount, effective_date, COALESCE(source_key, ''), created_at"

func scanAdjustment(row pgx.Row, kind Kind) (Adjustment, error) {
	a := Adjustment{Kind: kind}
	err := row.Scan(&a.ID, &a.EmployeeID, &a.Type, &a.Amount.Decimal, &a.EffectiveDate, &a.SourceKey, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Adjustment{}, ErrNotFound
	}
	return a, err
}

func (s *Store) List(ctx context.Context, kind Kind, employeeID int64) ([]Adjustment, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+adjustmentColumns+`
    FROM `+kind.table()+`
    WHERE employee_id = $1
    ORDER BY effective_date DESC, id DESC
  `, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Adjustment
	for rows.Next() {
		a, err := scanAdjustment(rows, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
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

func (t *txStore) Insert(ctx context.Context, a Adjustment) (Adjustment, error) {
	return scanAdjustment(t.tx.QueryRow(ctx, `
    INSERT INTO `+a.Kind.table()+` (employee_id, type, amount, effective_date)
    VALUES ($1,$2,$3,$4)
    RETURNING `+adjustmentColumns,
		a.EmployeeID, a.Type, a.Amount.Decimal, a.EffectiveDate), a.Kind)
}

func (t *txStore) GetForUpdate(ctx context.Context, kind Kind, id int64) (Adjustment, error) {
	return scanAdjustment(t.tx.QueryRow(ctx,
		"SELECT "+adjustmentColumns+" FROM "+kind.table()+" WHERE id = $1 FOR UPDATE", id), kind)
}

func (t *txStore) Update(ctx context.Context, a Adjustment) (Adjustment, error) {
	return scanAdjustment(t.tx.QueryRow(ctx, `
    UPDATE `+a.Kind.table()+`
    SET type = $2, amount = $3, effective_date = $4
    WHERE id = $1
    RETURNING `+adjustmentColumns,
		a.ID, a.Type, a.Amount.Decimal, a.EffectiveDate), a.Kind)
}

func (t *txStore) Delete(ctx context.Context, kind Kind, id int64) error {
	tag, err := t.tx.Exec(ctx, "DELETE FROM "+kind.table()+" WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txStore) AppendLog(ctx context.Context, entry audit.Entry) error {
	_, err := audit.Record(ctx, t.tx, entry)
	return err
}
