package payroll

import (
	"time"

	"github.com/shopspring/decimal"

	"paydesk/internal/domain/money"
)

// TaxPolicy computes the tax withheld on a payroll line's total salary.
type TaxPolicy interface {
	Tax(total decimal.Decimal) decimal.Decimal
}

// FlatRate withholds a single percentage of the total.
type FlatRate struct {
	Rate decimal.Decimal
}

func (f FlatRate) Tax(total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return money.RoundCorrection(total.Mul(f.Rate))
}

// Progressive withholds bracket tax plus the banded contribution.
type Progressive struct {
	Table TaxTable
	Bands ContributionBands
}

func NewProgressive() Progressive {
	return Progressive{Table: DefaultTaxTable, Bands: DefaultContributionBands}
}

func (p Progressive) Tax(total decimal.Decimal) decimal.Decimal {
	return money.RoundCorrection(p.Table.Compute(total).Add(p.Bands.Compute(total)))
}

type LineInput struct {
	BasicSalary decimal.Decimal
	Performance decimal.Decimal
	Allowance   decimal.Decimal
	Deduction   decimal.Decimal
}

type Line struct {
	BasicSalary      decimal.Decimal
	Bonus            decimal.Decimal
	Allowance        decimal.Decimal
	Deduction        decimal.Decimal
	TotalSalary      decimal.Decimal
	TaxAmount        decimal.Decimal
	PensionDeduction decimal.Decimal
	NetSalary        decimal.Decimal
}

// ComputeLine derives bonus, total, tax, pension and net for one employee.
func ComputeLine(in LineInput, policy TaxPolicy, pensionRate decimal.Decimal) Line {
	basic := money.RoundCorrection(in.BasicSalary)
	allowance := money.RoundCorrection(in.Allowance)
	deduction := money.RoundCorrection(in.Deduction)
	bonus := money.RoundCorrection(basic.Mul(in.Performance.Sub(decimal.NewFromInt(1))))
	total := money.RoundCorrection(basic.Add(bonus).Add(allowance).Sub(deduction))
	tax := policy.Tax(total)
	pension := decimal.Zero
	if pensionRate.IsPositive() && total.IsPositive() {
		pension = money.RoundCorrection(total.Mul(pensionRate))
	}
	return Line{
		BasicSalary:      basic,
		Bonus:            bonus,
		Allowance:        allowance,
		Deduction:        deduction,
		TotalSalary:      total,
		TaxAmount:        tax,
		PensionDeduction: pension,
		NetSalary:        money.RoundCorrection(total.Sub(tax).Sub(pension)),
	}
}

// PeriodFor returns the calendar month containing payDate.
func PeriodFor(payDate time.Time) (time.Time, time.Time) {
	y, m, _ := payDate.Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return start, end
}

// NetSalary is the derived net of a stored record. allowances and
// deductions are the adjustment rows dated inside the record's pay period.
func NetSalary(rec Record, allowances, deductions decimal.Decimal) decimal.Decimal {
	return money.RoundCorrection(
		rec.BasicSalary.
			Add(rec.Bonus).
			Sub(rec.TaxAmount).
			Sub(rec.PensionDeduction).
			Sub(deductions).
			Add(allowances),
	)
}
