package rules

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"paydesk/internal/domain/audit"
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

const ruleColumns = `id, name, condition_type, comparator, threshold, calculation_type, value,
       COALESCE(created_by, 0), created_at, is_active,
       COALESCE((SELECT array_agg(department_id ORDER BY department_id)
                 FROM rule_config_exclusions x WHERE x.rule_id = rule_configs.id), '{}')`

func scanRule(row pgx.Row) (RuleConfig, error) {
	var rule RuleConfig
	err := row.Scan(&rule.ID, &rule.Name, &rule.ConditionType, &rule.Comparator, &rule.Threshold,
		&rule.CalculationType, &rule.Value, &rule.CreatedBy, &rule.CreatedAt, &rule.IsActive,
		&rule.ExcludeDepartments)
	return rule, err
}

func getRule(ctx context.Context, q querier.Querier, id int64, lock bool) (RuleConfig, error) {
	query := "SELECT " + ruleColumns + " FROM rule_configs WHERE id = $1"
	if lock {
		query += " FOR UPDATE"
	}
	rule, err := scanRule(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return RuleConfig{}, ErrRuleNotFound
	}
	return rule, err
}

func (s *Store) GetRule(ctx context.Context, id int64) (RuleConfig, error) {
	return getRule(ctx, s.DB, id, false)
}

func (s *Store) ListRules(ctx context.Context) ([]RuleConfig, error) {
	rows, err := s.DB.Query(ctx, "SELECT "+ruleColumns+" FROM rule_configs ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RuleConfig
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

type txStore struct {
	tx pgx.Tx
}

func (t *txStore) MissingDepartments(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := t.tx.Query(ctx, `
    SELECT want.id
    FROM unnest($1::bigint[]) AS want(id)
    LEFT JOIN departments d ON d.id = want.id
    WHERE d.id IS NULL
    ORDER BY want.id
  `, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var missing []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		missing = append(missing, id)
	}
	return missing, rows.Err()
}

func (t *txStore) InsertRule(ctx context.Context, rule RuleConfig) (RuleConfig, error) {
	err := t.tx.QueryRow(ctx, `
    INSERT INTO rule_configs (name, condition_type, comparator, threshold, calculation_type, value, created_by, is_active)
    VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7, 0),$8)
    RETURNING id, created_at
  `, rule.Name, rule.ConditionType, rule.Comparator, rule.Threshold, rule.CalculationType,
		rule.Value, rule.CreatedBy, rule.IsActive).Scan(&rule.ID, &rule.CreatedAt)
	if err != nil {
		return RuleConfig{}, err
	}
	for _, deptID := range rule.ExcludeDepartments {
		if _, err := t.tx.Exec(ctx, `
      INSERT INTO rule_config_exclusions (rule_id, department_id) VALUES ($1, $2)
      ON CONFLICT DO NOTHING
    `, rule.ID, deptID); err != nil {
			return RuleConfig{}, err
		}
	}
	return rule, nil
}

func (t *txStore) GetRule(ctx context.Context, id int64) (RuleConfig, error) {
	return getRule(ctx, t.tx, id, true)
}

func (t *txStore) SetActive(ctx context.Context, id int64, active bool) error {
	_, err := t.tx.Exec(ctx, "UPDATE rule_configs SET is_active = $2 WHERE id = $1", id, active)
	return err
}

func (t *txStore) Candidates(ctx context.Context, includeInactive bool) ([]Candidate, error) {
	rows, err := t.tx.Query(ctx, `
    SELECT id, first_name, last_name, salary, rank, grade, department_id
    FROM employees
    WHERE is_active OR $1
    ORDER BY id
  `, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Salary, &c.Rank, &c.Grade, &c.DepartmentID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *txStore) InsertAllowance(ctx context.Context, row NewAllowance) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
    INSERT INTO allowances (employee_id, type, amount, effective_date, source_key)
    VALUES ($1,$2,$3,$4,$5)
    ON CONFLICT (employee_id, source_key, effective_date) DO NOTHING
    RETURNING id
  `, row.EmployeeID, row.Type, row.Amount, row.EffectiveDate, row.SourceKey).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (t *txStore) AppendLog(ctx context.Context, entry audit.Entry) error {
	_, err := audit.Record(ctx, t.tx, entry)
	return err
}
