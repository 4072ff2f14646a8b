package rules

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ConditionRank       = "rank"
	ConditionGrade      = "grade"
	ConditionDepartment = "department"
	ConditionSalaryGT   = "salary_gt"
	ConditionSalaryLT   = "salary_lt"

	CalcPercent = "percent"
	CalcFixed   = "fixed"

	ModelRuleConfig = "RuleConfig"
	ModelAllowance  = "Allowance"

	// AllowanceType tags every allowance the engine creates.
	AllowanceType = "Rule-Based Adjustment"

	StatusSuccess = "success"
)

// RuleSpec is the input to Configure.
type RuleSpec struct {
	Name               string
	ConditionType      string
	Comparator         string
	Threshold          string
	CalculationType    string
	Value              decimal.Decimal
	ExcludeDepartments []int64
}

type RuleConfig struct {
	ID                 int64           `json:"id"`
	Name               string          `json:"name"`
	ConditionType      string          `json:"conditionType"`
	Comparator         string          `json:"comparator"`
	Threshold          string          `json:"threshold"`
	CalculationType    string          `json:"calculationType"`
	Value              decimal.Decimal `json:"value"` // full stored scale
	ExcludeDepartments []int64         `json:"excludeDepartments"`
	CreatedBy          int64           `json:"createdBy"`
	CreatedAt          time.Time       `json:"createdAt"`
	IsActive           bool            `json:"isActive"`
}

// ExecuteRequest is an ad hoc rank rule. CalcValue is parsed at the boundary.
type ExecuteRequest struct {
	Rank       string
	Comparator string
	CalcMode   string
	CalcValue  decimal.Decimal
	Exceptions []int64
}

type ExecuteResult struct {
	Status   string `json:"status"`
	Affected int    `json:"affected"`
}

// Candidate is an employee as the engine sees it.
type Candidate struct {
	ID           int64
	FirstName    string
	LastName     string
	Salary       decimal.Decimal
	Rank         int
	Grade        string
	DepartmentID *int64
}

func (c Candidate) Name() string {
	return c.FirstName + " " + c.LastName
}

// NewAllowance is one rule-generated allowance row.
type NewAllowance struct {
	EmployeeID    int64
	Type          string
	Amount        decimal.Decimal
	EffectiveDate time.Time
	SourceKey     string
}
