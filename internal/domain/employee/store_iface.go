package employee

import (
	"context"

	"github.com/shopspring/decimal"

	"paydesk/internal/domain/audit"
)

type StoreAPI interface {
	WithTx(ctx context.Context, fn func(TxStore) error) error
	GetEmployee(ctx context.Context, id int64) (Employee, error)
	GetEmployeeByUserID(ctx context.Context, userID int64) (Employee, error)
	ListEmployees(ctx context.Context, filter ListFilter) ([]Employee, error)
	ListDepartments(ctx context.Context) ([]Department, error)
	ListPositions(ctx context.Context) ([]Position, error)
}

type TxStore interface {
	// InsertUser reports created=false when the email is already taken.
	InsertUser(ctx context.Context, account NewAccount) (id int64, created bool, err error)
	InsertEmployee(ctx context.Context, emp Employee) (Employee, error)
	GetEmployeeForUpdate(ctx context.Context, id int64) (Employee, error)
	UpdateEmployee(ctx context.Context, emp Employee) (Employee, error)
	ActiveForUpdate(ctx context.Context) ([]Employee, error)
	UpdateSalary(ctx context.Context, id int64, salary decimal.Decimal) error
	DepartmentExists(ctx context.Context, id int64) (bool, error)
	PositionExists(ctx context.Context, id int64) (bool, error)
	InsertDepartment(ctx context.Context, dep Department) (Department, error)
	InsertPosition(ctx context.Context, pos Position) (Position, error)
	AppendLog(ctx context.Context, entry audit.Entry) error
}

// Notifier delivers the welcome message for a new account.
type Notifier interface {
	SendWelcome(ctx context.Context, email, name, password string) error
}
