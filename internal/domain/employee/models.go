package employee

import (
	"time"

	"github.com/shopspring/decimal"

	"paydesk/internal/domain/money"
)

const (
	ModelEmployee   = "Employee"
	ModelDepartment = "Department"
	ModelPosition   = "Position"

	DefaultGrade = "C"
)

var rankLabels = map[int]string{1: "junior", 2: "mid", 3: "senior", 4: "lead"}

// RankLabel names the four standard levels and falls back to the number.
func RankLabel(rank int) string {
	if label, ok := rankLabels[rank]; ok {
		return label
	}
	return itoa(rank)
}

type Employee struct {
	ID           int64           `json:"id"`
	UserID       *int64          `json:"userId,omitempty"`
	FirstName    string          `json:"firstName"`
	LastName     string          `json:"lastName"`
	Email        string          `json:"email"`
	Phone        string          `json:"phone"`
	HireDate     *time.Time      `json:"hireDate,omitempty"`
	ExitDate     *time.Time      `json:"exitDate,omitempty"`
	Salary       money.Amount    `json:"salary"`
	Performance  decimal.Decimal `json:"performance"`
	Rank         int             `json:"rank"`
	Grade        string          `json:"grade"`
	DepartmentID *int64          `json:"departmentId,omitempty"`
	PositionID   *int64          `json:"positionId,omitempty"`
	IsActive     bool            `json:"isActive"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func (e Employee) Name() string {
	return e.FirstName + " " + e.LastName
}

// normalize recomputes derived fields before every save.
func (e *Employee) normalize() {
	e.IsActive = e.ExitDate == nil
	e.Salary = money.NewAmount(e.Salary.Decimal)
}

// snapshot is the field set written to audit entries.
func (e Employee) snapshot() map[string]any {
	out := map[string]any{
		"first_name":  e.FirstName,
		"last_name":   e.LastName,
		"email":       e.Email,
		"phone":       e.Phone,
		"salary":      money.Format(e.Salary.Decimal),
		"performance": e.Performance.String(),
		"rank":        e.Rank,
		"grade":       e.Grade,
		"is_active":   e.IsActive,
	}
	out["hire_date"] = formatDate(e.HireDate)
	out["exit_date"] = formatDate(e.ExitDate)
	out["department_id"] = optionalID(e.DepartmentID)
	out["position_id"] = optionalID(e.PositionID)
	return out
}

// Draft is the input for creating an employee.
type Draft struct {
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	HireDate     *time.Time
	ExitDate     *time.Time
	Salary       decimal.Decimal
	Performance  decimal.Decimal
	Rank         int
	Grade        string
	DepartmentID *int64
	PositionID   *int64
}

// Patch carries the fields an update sets. Nil means unchanged.
type Patch struct {
	FirstName     *string
	LastName      *string
	Email         *string
	Phone         *string
	HireDate      *time.Time
	ExitDate      *time.Time
	ClearExitDate bool
	Salary        *decimal.Decimal
	Performance   *decimal.Decimal
	Rank          *int
	Grade         *string
	DepartmentID  *int64
	PositionID    *int64
}

type ProvisionOptions struct {
	SuppressSideEffects bool
}

// UserAccount is the login linked to a provisioned employee.
type UserAccount struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type Provisioned struct {
	Employee Employee     `json:"employee"`
	Account  *UserAccount `json:"account,omitempty"`
}

type BulkResult struct {
	Created int     `json:"created"`
	IDs     []int64 `json:"ids"`
}

type ListFilter struct {
	DepartmentID int64
	ActiveOnly   bool
}

type Department struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	Budget    *money.Amount `json:"budget,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

type Position struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// CSVRow is one line of the employee import and export files.
type CSVRow struct {
	FirstName    string `csv:"first_name"`
	LastName     string `csv:"last_name"`
	Email        string `csv:"email"`
	Phone        string `csv:"phone"`
	HireDate     string `csv:"hire_date"`
	ExitDate     string `csv:"exit_date"`
	Salary       string `csv:"salary"`
	Performance  string `csv:"performance"`
	Rank         string `csv:"rank"`
	Grade        string `csv:"grade"`
	DepartmentID string `csv:"department_id"`
	PositionID   string `csv:"position_id"`
	IsActive     string `csv:"is_active"`
}

// NewAccount is the user row Provision tries to insert.
type NewAccount struct {
	Email        string
	PasswordHash string
	Role         string
	FirstName    string
	LastName     string
}
