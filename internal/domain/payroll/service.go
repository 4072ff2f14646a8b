package payroll

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"paydesk/internal/domain/apperr"
	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/money"
)

type Service struct {
	store       StoreAPI
	policy      TaxPolicy
	pensionRate decimal.Decimal
	now         func() time.Time
}

type Option func(*Service)

func WithTaxPolicy(policy TaxPolicy) Option {
	return func(s *Service) {
		if policy != nil {
			s.policy = policy
		}
	}
}

func WithPensionRate(rate decimal.Decimal) Option {
	return func(s *Service) {
		s.pensionRate = rate
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store StoreAPI, opts ...Option) *Service {
	s := &Service{
		store:  store,
		policy: FlatRate{Rate: decimal.RequireFromString("0.10")},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CalculateBatch computes and stores one payroll record per employee. The
// whole batch is one transaction: a missing employee or an existing record
// for the pay period rolls back every row written so far.
func (s *Service) CalculateBatch(ctx context.Context, actor audit.Actor, req BatchRequest) (BatchResult, error) {
	if err := validateBatch(req); err != nil {
		return BatchResult{}, err
	}
	payDate := req.PayDate
	if payDate.IsZero() {
		payDate = s.now()
	}
	payDate = time.Date(payDate.Year(), payDate.Month(), payDate.Day(), 0, 0, 0, 0, time.UTC)
	periodStart, periodEnd := PeriodFor(payDate)

	results := make([]LineResult, 0, len(req.EmployeeIDs))
	err := s.store.WithTx(ctx, func(tx TxStore) error {
		for _, employeeID := range req.EmployeeIDs {
			emp, err := tx.LockEmployee(ctx, employeeID)
			if errors.Is(err, ErrEmployeeNotFound) {
				return apperr.NotFound("employee_ids", fmt.Sprintf("employee %d not found", employeeID))
			}
			if err != nil {
				return apperr.Internal(fmt.Sprintf("load employee %d", employeeID), err)
			}

			line := ComputeLine(LineInput{
				BasicSalary: emp.Salary,
				Performance: req.Performance,
				Allowance:   req.Allowance,
				Deduction:   req.Deduction,
			}, s.policy, s.pensionRate)

			rec := Record{
				EmployeeID:       emp.ID,
				BasicSalary:      line.BasicSalary,
				Bonus:            line.Bonus,
				Allowance:        line.Allowance,
				Deduction:        line.Deduction,
				PensionDeduction: line.PensionDeduction,
				TotalSalary:      line.TotalSalary,
				TaxAmount:        line.TaxAmount,
				PayDate:          payDate,
				PeriodStart:      periodStart,
				PeriodEnd:        periodEnd,
			}
			recordID, err := tx.InsertRecord(ctx, rec)
			if errors.Is(err, ErrDuplicatePeriod) {
				return apperr.Conflict("employee_ids", fmt.Sprintf("employee %d already has a payroll record for %s", employeeID, periodStart.Format(periodLayout)))
			}
			if err != nil {
				return apperr.Internal(fmt.Sprintf("store payroll for employee %d", employeeID), err)
			}

			result := lineResult(recordID, emp, line)
			if err := tx.AppendLog(ctx, audit.Entry{
				ActorEmail: actor.Email,
				Action:     audit.ActionCreate,
				ModelName:  ModelPayroll,
				ObjectID:   strconv.FormatInt(emp.ID, 10),
				Changes:    snapshot(result, payDate),
				LogType:    audit.LogTypeOperation,
			}); err != nil {
				return apperr.Internal(fmt.Sprintf("log payroll for employee %d", employeeID), err)
			}
			results = append(results, result)
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}
	return BatchResult{Status: StatusSuccess, Results: results}, nil
}

func validateBatch(req BatchRequest) error {
	if len(req.EmployeeIDs) == 0 {
		return apperr.Invalid("employee_ids", "at least one employee id is required")
	}
	seen := make(map[int64]bool, len(req.EmployeeIDs))
	for _, id := range req.EmployeeIDs {
		if id <= 0 {
			return apperr.Invalid("employee_ids", fmt.Sprintf("employee id %d is not valid", id))
		}
		if seen[id] {
			return apperr.Invalid("employee_ids", fmt.Sprintf("employee id %d is listed more than once", id))
		}
		seen[id] = true
	}
	if req.Performance.IsNegative() {
		return apperr.Invalid("performance", "must not be negative")
	}
	if req.Allowance.IsNegative() {
		return apperr.Invalid("allowance", "must not be negative")
	}
	if req.Deduction.IsNegative() {
		return apperr.Invalid("deduction", "must not be negative")
	}
	return nil
}

func lineResult(recordID int64, emp EmployeeRef, line Line) LineResult {
	return LineResult{
		RecordID:     recordID,
		EmployeeID:   emp.ID,
		EmployeeName: emp.Name(),
		BasicSalary:  money.NewAmount(line.BasicSalary),
		Bonus:        money.NewAmount(line.Bonus),
		Allowance:    money.NewAmount(line.Allowance),
		Deduction:    money.NewAmount(line.Deduction),
		TotalSalary:  money.NewAmount(line.TotalSalary),
		OptimalTax:   money.NewAmount(line.TaxAmount),
		Pension:      money.NewAmount(line.PensionDeduction),
		NetSalary:    money.NewAmount(line.NetSalary),
	}
}

func snapshot(result LineResult, payDate time.Time) map[string]any {
	return map[string]any{
		"record_id":         result.RecordID,
		"employee":          result.EmployeeName,
		"basic_salary":      money.Format(result.BasicSalary.Decimal),
		"bonus":             money.Format(result.Bonus.Decimal),
		"allowance":         money.Format(result.Allowance.Decimal),
		"deduction":         money.Format(result.Deduction.Decimal),
		"total_salary":      money.Format(result.TotalSalary.Decimal),
		"tax_amount":        money.Format(result.OptimalTax.Decimal),
		"pension_deduction": money.Format(result.Pension.Decimal),
		"net_salary":        money.Format(result.NetSalary.Decimal),
		"pay_date":          payDate.Format(payslipDateLayout),
	}
}

func (s *Service) Record(ctx context.Context, id int64) (RecordView, error) {
	rec, err := s.getRecord(ctx, id)
	if err != nil {
		return RecordView{}, err
	}
	return ViewOf(rec), nil
}

func (s *Service) getRecord(ctx context.Context, id int64) (Record, error) {
	rec, err := s.store.GetRecord(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return Record{}, apperr.NotFound("id", fmt.Sprintf("payroll record %d not found", id))
	}
	if err != nil {
		return Record{}, apperr.Internal("load payroll record", err)
	}
	return rec, nil
}

func (s *Service) ListRecords(ctx context.Context, filter RecordFilter, limit, offset int) ([]RecordView, int, error) {
	total, err := s.store.CountRecords(ctx, filter)
	if err != nil {
		return nil, 0, apperr.Internal("count payroll records", err)
	}
	records, err := s.store.ListRecords(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, apperr.Internal("list payroll records", err)
	}
	out := make([]RecordView, 0, len(records))
	for _, rec := range records {
		out = append(out, ViewOf(rec))
	}
	return out, total, nil
}

// RecordsForUser lists the payroll records of the employee linked to userID.
func (s *Service) RecordsForUser(ctx context.Context, userID int64, limit, offset int) ([]RecordView, int, error) {
	employeeID, err := s.store.EmployeeIDByUserID(ctx, userID)
	if errors.Is(err, ErrEmployeeNotFound) {
		return nil, 0, apperr.NotFound("user", "no employee record is linked to this account")
	}
	if err != nil {
		return nil, 0, apperr.Internal("resolve employee", err)
	}
	return s.ListRecords(ctx, RecordFilter{EmployeeID: employeeID}, limit, offset)
}

// OwnsRecord reports whether the record belongs to the employee linked to userID.
func (s *Service) OwnsRecord(ctx context.Context, userID, recordID int64) (bool, error) {
	employeeID, err := s.store.EmployeeIDByUserID(ctx, userID)
	if errors.Is(err, ErrEmployeeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Internal("resolve employee", err)
	}
	rec, err := s.getRecord(ctx, recordID)
	if err != nil {
		return false, err
	}
	return rec.EmployeeID == employeeID, nil
}

// NetSalary derives the net for a record using only allowances and
// deductions whose effective date falls inside the record's pay period.
func (s *Service) NetSalary(ctx context.Context, recordID int64) (NetView, error) {
	rec, err := s.getRecord(ctx, recordID)
	if err != nil {
		return NetView{}, err
	}
	allowances, deductions, err := s.store.AdjustmentTotals(ctx, rec.EmployeeID, rec.PeriodStart, rec.PeriodEnd)
	if err != nil {
		return NetView{}, apperr.Internal("sum period adjustments", err)
	}
	return NetView{
		RecordID:         rec.ID,
		Period:           rec.PeriodStart.Format(periodLayout),
		PeriodAllowances: money.NewAmount(allowances),
		PeriodDeductions: money.NewAmount(deductions),
		NetSalary:        money.NewAmount(NetSalary(rec, allowances, deductions)),
	}, nil
}

func (s *Service) PayslipPDF(ctx context.Context, recordID int64) ([]byte, error) {
	data, err := s.store.PayslipData(ctx, recordID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, apperr.NotFound("id", fmt.Sprintf("payroll record %d not found", recordID))
	}
	if err != nil {
		return nil, apperr.Internal("load payslip data", err)
	}
	allowances, deductions, err := s.store.AdjustmentTotals(ctx, data.Record.EmployeeID, data.Record.PeriodStart, data.Record.PeriodEnd)
	if err != nil {
		return nil, apperr.Internal("sum period adjustments", err)
	}
	data.Net = NetSalary(data.Record, allowances, deductions)

	var buf bytes.Buffer
	if err := WritePayslipPDF(&buf, data); err != nil {
		return nil, apperr.Internal("render payslip", err)
	}
	return buf.Bytes(), nil
}

func (s *Service) ExportCSV(ctx context.Context, filter RecordFilter) ([]byte, error) {
	records, err := s.store.ListRecords(ctx, filter, 0, 0)
	if err != nil {
		return nil, apperr.Internal("list payroll records", err)
	}
	var buf bytes.Buffer
	if err := WriteRecordsCSV(&buf, records); err != nil {
		return nil, apperr.Internal("render payroll csv", err)
	}
	return buf.Bytes(), nil
}

func (s *Service) Anomalies(ctx context.Context, threshold float64) ([]Anomaly, error) {
	samples, err := s.store.CompensationSamples(ctx)
	if err != nil {
		return nil, apperr.Internal("load compensation samples", err)
	}
	return DetectAnomalies(samples, threshold), nil
}
