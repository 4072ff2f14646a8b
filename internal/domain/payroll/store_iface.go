package payroll

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"paydesk/internal/domain/audit"
)

type StoreAPI interface {
	WithTx(ctx context.Context, fn func(TxStore) error) error
	GetRecord(ctx context.Context, id int64) (Record, error)
	CountRecords(ctx context.Context, filter RecordFilter) (int, error)
	ListRecords(ctx context.Context, filter RecordFilter, limit, offset int) ([]Record, error)
	AdjustmentTotals(ctx context.Context, employeeID int64, from, to time.Time) (decimal.Decimal, decimal.Decimal, error)
	PayslipData(ctx context.Context, recordID int64) (PayslipData, error)
	EmployeeIDByUserID(ctx context.Context, userID int64) (int64, error)
	CompensationSamples(ctx context.Context) ([]CompensationSample, error)
}

// TxStore is the write side of a batch. Every call shares one transaction.
type TxStore interface {
	LockEmployee(ctx context.Context, id int64) (EmployeeRef, error)
	InsertRecord(ctx context.Context, rec Record) (int64, error)
	AppendLog(ctx context.Context, entry audit.Entry) error
}
