package reports

import (
	"encoding/json"
	"time"

	"paydesk/internal/domain/money"
)

type DepartmentTotal struct {
	DepartmentID *int64        `json:"departmentId,omitempty"`
	Name         string        `json:"name"`
	Headcount    int           `json:"headcount"`
	TotalSalary  money.Amount  `json:"totalSalary"`
	Budget       *money.Amount `json:"budget,omitempty"`
}

type PayrollTotals struct {
	Period    string       `json:"period"`
	Records   int          `json:"records"`
	Gross     money.Amount `json:"gross"`
	Tax       money.Amount `json:"tax"`
	Pension   money.Amount `json:"pension"`
	Allowance money.Amount `json:"allowance"`
	Deduction money.Amount `json:"deduction"`
}

type DashboardStats struct {
	ActiveEmployees   int               `json:"activeEmployees"`
	InactiveEmployees int               `json:"inactiveEmployees"`
	AverageSalary     money.Amount      `json:"averageSalary"`
	Departments       []DepartmentTotal `json:"departments"`
	Payroll           PayrollTotals     `json:"payroll"`
	PendingApprovals  int               `json:"pendingApprovals"`
	GeneratedAt       time.Time         `json:"generatedAt"`
}

// EmployeeSummary is the self-service dashboard of one employee.
type EmployeeSummary struct {
	EmployeeID       int64         `json:"employeeId"`
	PayslipCount     int           `json:"payslipCount"`
	PendingApprovals int           `json:"pendingApprovals"`
	LastPayDate      *time.Time    `json:"lastPayDate,omitempty"`
	LastTotalSalary  *money.Amount `json:"lastTotalSalary,omitempty"`
}

type JobRun struct {
	ID          int64           `json:"id"`
	JobType     string          `json:"jobType"`
	Status      string          `json:"status"`
	Details     json.RawMessage `json:"details"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

type JobRunFilter struct {
	JobType string
	Status  string
}
