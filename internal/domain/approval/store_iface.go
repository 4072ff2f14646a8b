package approval

import (
	"context"

	"github.com/shopspring/decimal"

	"paydesk/internal/domain/audit"
)

type StoreAPI interface {
	WithTx(ctx context.Context, fn func(TxStore) error) error
	Get(ctx context.Context, id int64) (Approval, error)
	List(ctx context.Context, filter ListFilter) ([]Approval, error)
	StatusHistory(ctx context.Context, id int64) ([]StatusChange, error)
}

type TxStore interface {
	EmployeeExists(ctx context.Context, id int64) (bool, error)
	Insert(ctx context.Context, a Approval) (Approval, error)
	GetForUpdate(ctx context.Context, id int64) (Approval, error)
	SetStatus(ctx context.Context, id int64, status string, modifiedBy int64) (Approval, error)
	InsertStatusChange(ctx context.Context, change StatusChange, changedBy int64) error
	// SetSalary returns the salary that was replaced.
	SetSalary(ctx context.Context, employeeID int64, salary decimal.Decimal) (decimal.Decimal, error)
	AppendLog(ctx context.Context, entry audit.Entry) error
}
