package adjustment

import (
	"context"

	"paydesk/internal/domain/audit"
)

type StoreAPI interface {
	WithTx(ctx context.Context, fn func(TxStore) error) error
	List(ctx context.Context, kind Kind, employeeID int64) ([]Adjustment, error)
}

type TxStore interface {
	EmployeeExists(ctx context.Context, id int64) (bool, error)
	Insert(ctx context.Context, a Adjustment) (Adjustment, error)
	GetForUpdate(ctx context.Context, kind Kind, id int64) (Adjustment, error)
	Update(ctx context.Context, a Adjustment) (Adjustment, error)
	Delete(ctx context.Context, kind Kind, id int64) error
	AppendLog(ctx context.Context, entry audit.Entry) error
}
