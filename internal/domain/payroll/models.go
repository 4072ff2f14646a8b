package payroll

import (
	"time"

	"github.com/shopspring/decimal"

	"paydesk/internal/domain/money"
)

// EmployeeRef is the slice of an employee a payroll line needs.
type EmployeeRef struct {
	ID        int64
	FirstName string
	LastName  string
	Salary    decimal.Decimal
}

func (e EmployeeRef) Name() string {
	return e.FirstName + " " + e.LastName
}

// Record is one stored payroll row. Net salary is never stored.
type Record struct {
	ID               int64           `json:"id"`
	EmployeeID       int64           `json:"employeeId"`
	EmployeeName     string          `json:"employeeName,omitempty"`
	BasicSalary      decimal.Decimal `json:"basicSalary"`
	Bonus            decimal.Decimal `json:"bonus"`
	Allowance        decimal.Decimal `json:"allowance"`
	Deduction        decimal.Decimal `json:"deduction"`
	PensionDeduction decimal.Decimal `json:"pensionDeduction"`
	TotalSalary      decimal.Decimal `json:"totalSalary"`
	TaxAmount        decimal.Decimal `json:"taxAmount"`
	PayDate          time.Time       `json:"payDate"`
	PeriodStart      time.Time       `json:"periodStart"`
	PeriodEnd        time.Time       `json:"periodEnd"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// BatchRequest drives CalculateBatch. Amounts have already been parsed as
// decimals at the boundary.
type BatchRequest struct {
	EmployeeIDs []int64
	Performance decimal.Decimal
	Allowance   decimal.Decimal
	Deduction   decimal.Decimal
	PayDate     time.Time
}

type LineResult struct {
	RecordID     int64        `json:"record_id"`
	EmployeeID   int64        `json:"employee_id"`
	EmployeeName string       `json:"employee_name"`
	BasicSalary  money.Amount `json:"basic_salary"`
	Bonus        money.Amount `json:"bonus"`
	Allowance    money.Amount `json:"allowance"`
	Deduction    money.Amount `json:"deduction"`
	TotalSalary  money.Amount `json:"total_salary"`
	OptimalTax   money.Amount `json:"optimal_tax"`
	Pension      money.Amount `json:"pension_deduction"`
	NetSalary    money.Amount `json:"net_salary"`
}

type BatchResult struct {
	Status  string       `json:"status"`
	Results []LineResult `json:"results"`
}

type RecordView struct {
	ID               int64        `json:"id"`
	EmployeeID       int64        `json:"employeeId"`
	EmployeeName     string       `json:"employeeName"`
	BasicSalary      money.Amount `json:"basicSalary"`
	Bonus            money.Amount `json:"bonus"`
	Allowance        money.Amount `json:"allowance"`
	Deduction        money.Amount `json:"deduction"`
	PensionDeduction money.Amount `json:"pensionDeduction"`
	TotalSalary      money.Amount `json:"totalSalary"`
	TaxAmount        money.Amount `json:"taxAmount"`
	PayDate          string       `json:"payDate"`
	Period           string       `json:"period"`
}

func ViewOf(rec Record) RecordView {
	return RecordView{
		ID:               rec.ID,
		EmployeeID:       rec.EmployeeID,
		EmployeeName:     rec.EmployeeName,
		BasicSalary:      money.NewAmount(rec.BasicSalary),
		Bonus:            money.NewAmount(rec.Bonus),
		Allowance:        money.NewAmount(rec.Allowance),
		Deduction:        money.NewAmount(rec.Deduction),
		PensionDeduction: money.NewAmount(rec.PensionDeduction),
		TotalSalary:      money.NewAmount(rec.TotalSalary),
		TaxAmount:        money.NewAmount(rec.TaxAmount),
		PayDate:          rec.PayDate.Format(payslipDateLayout),
		Period:           rec.PeriodStart.Format(periodLayout),
	}
}

// NetView is the derived net salary of a record with the period-scoped
// adjustment totals that went into it.
type NetView struct {
	RecordID         int64        `json:"recordId"`
	Period           string       `json:"period"`
	PeriodAllowances money.Amount `json:"periodAllowances"`
	PeriodDeductions money.Amount `json:"periodDeductions"`
	NetSalary        money.Amount `json:"netSalary"`
}

type RecordFilter struct {
	EmployeeID int64
	From       time.Time
	To         time.Time
}

type PayslipData struct {
	Record     Record
	FirstName  string
	LastName   string
	Email      string
	Department string
	Net        decimal.Decimal
}

// ExportRow is one line of the payroll CSV export.
type ExportRow struct {
	RecordID     int64  `csv:"record_id"`
	EmployeeID   int64  `csv:"employee_id"`
	EmployeeName string `csv:"employee_name"`
	Period       string `csv:"period"`
	PayDate      string `csv:"pay_date"`
	BasicSalary  string `csv:"basic_salary"`
	Bonus        string `csv:"bonus"`
	Allowance    string `csv:"allowance"`
	Deduction    string `csv:"deduction"`
	Pension      string `csv:"pension_deduction"`
	TotalSalary  string `csv:"total_salary"`
	TaxAmount    string `csv:"tax_amount"`
}

// CompensationSample feeds anomaly detection.
type CompensationSample struct {
	EmployeeID   int64
	EmployeeName string
	Salary       decimal.Decimal
	Performance  decimal.Decimal
	// Bonus comes from the employee's latest payroll record, zero when none.
	Bonus        decimal.Decimal
}

type Anomaly struct {
	EmployeeID   int64        `json:"employeeId"`
	EmployeeName string       `json:"employeeName"`
	Salary       money.Amount `json:"salary"`
	Performance  string       `json:"performance"`
	Bonus        money.Amount `json:"bonus"`
	Reasons      []string     `json:"reasons"`
	SalaryZ      float64      `json:"salaryZ"`
	PerformanceZ float64      `json:"performanceZ"`
	BonusZ       float64      `json:"bonusZ"`
}
