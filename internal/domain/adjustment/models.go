package adjustment

import (
	"time"

	"github.com/shopspring/decimal"

	"paydesk/internal/domain/money"
)

type Kind string

const (
	KindAllowance Kind = "allowance"
	KindDeduction Kind = "deduction"
)

// Model is the audit model name for the kind.
func (k Kind) Model() string {
	if k == KindDeduction {
		return "Deduction"
	}
	return "Allowance"
}

func (k Kind) table() string {
	if k == KindDeduction {
		return "deductions"
	}
	return "allowances"
}

func (k Kind) Valid() bool {
	return k == KindAllowance || k == KindDeduction
}

var allowedTypes = map[Kind][]string{
	KindAllowance: {"transportation", "meal", "housing", "other", "Rule-Based Adjustment"},
	KindDeduction: {"income_tax", "national_insurance", "retirement", "loan", "other"},
}

// AllowedTypes lists the type values accepted for kind.
func AllowedTypes(kind Kind) []string {
	return append([]string(nil), allowedTypes[kind]...)
}

type Adjustment struct {
	ID            int64        `json:"id"`
	EmployeeID    int64        `json:"employeeId"`
	Kind          Kind         `json:"kind"`
	Type          string       `json:"type"`
	Amount        money.Amount `json:"amount"`
	EffectiveDate time.Time    `json:"effectiveDate"`
	SourceKey     string       `json:"sourceKey,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
}

func (a Adjustment) fields() map[string]any {
	return map[string]any{
		"employee_id":    a.EmployeeID,
		"type":           a.Type,
		"amount":         money.Format(a.Amount.Decimal),
		"effective_date": a.EffectiveDate.Format("2006-01-02"),
	}
}

type Input struct {
	EmployeeID    int64
	Type          string
	Amount        decimal.Decimal
	EffectiveDate time.Time
}

type Patch struct {
	Type          *string
	Amount        *decimal.Decimal
	EffectiveDate *time.Time
}
