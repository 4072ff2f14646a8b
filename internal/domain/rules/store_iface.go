package rules

import (
	"context"

	"paydesk/internal/domain/audit"
)

type StoreAPI interface {
	WithTx(ctx context.Context, fn func(TxStore) error) error
	ListRules(ctx context.Context) ([]RuleConfig, error)
	GetRule(ctx context.Context, id int64) (RuleConfig, error)
}

// TxStore runs inside one transaction per configure or execute call.
type TxStore interface {
	MissingDepartments(ctx context.Context, ids []int64) ([]int64, error)
	InsertRule(ctx context.Context, rule RuleConfig) (RuleConfig, error)
	GetRule(ctx context.Context, id int64) (RuleConfig, error)
	SetActive(ctx context.Context, id int64, active bool) error
	// Candidates lists employees by id; terminated ones only when
	// includeInactive is set.
	Candidates(ctx context.Context, includeInactive bool) ([]Candidate, error)
	// InsertAllowance reports created=false when the same source already
	// produced an allowance for the employee on that date.
	InsertAllowance(ctx context.Context, row NewAllowance) (id int64, created bool, err error)
	AppendLog(ctx context.Context, entry audit.Entry) error
}
