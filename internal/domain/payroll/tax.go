package payroll

import (
	"github.com/shopspring/decimal"

	"paydesk/internal/domain/money"
)

// Bracket is one band of a progressive table. Income up to Upper (exclusive
// of earlier bands) is taxed at Rate. The final band sets Unbounded.
type Bracket struct {
	Upper     decimal.Decimal
	Rate      decimal.Decimal
	Unbounded bool
}

type TaxTable []Bracket

var DefaultTaxTable = TaxTable{
	{Upper: decimal.NewFromInt(12570), Rate: decimal.Zero},
	{Upper: decimal.NewFromInt(50270), Rate: decimal.RequireFromString("0.20")},
	{Upper: decimal.NewFromInt(150000), Rate: decimal.RequireFromString("0.40")},
	{Rate: decimal.RequireFromString("0.45"), Unbounded: true},
}

// Compute taxes each slice of income at its band's rate and stops as soon as
// the income is used up.
func (t TaxTable) Compute(annualTaxable decimal.Decimal) decimal.Decimal {
	remaining := money.RoundCorrection(annualTaxable)
	tax := decimal.Zero
	lower := decimal.Zero

	for _, band := range t {
		if !remaining.IsPositive() {
			break
		}
		slice := remaining
		if !band.Unbounded {
			width := band.Upper.Sub(lower)
			if width.LessThan(slice) {
				slice = width
			}
			lower = band.Upper
		}
		if slice.IsPositive() {
			tax = tax.Add(money.RoundCorrection(slice.Mul(band.Rate)))
			remaining = remaining.Sub(slice)
		}
	}
	return money.RoundCorrection(tax)
}

func ComputeTax(annualTaxable decimal.Decimal) decimal.Decimal {
	return DefaultTaxTable.Compute(annualTaxable)
}

// ContributionBands describes a weekly-banded contribution such as National
// Insurance. Thresholds are weekly amounts.
type ContributionBands struct {
	PrimaryThreshold decimal.Decimal
	UpperThreshold   decimal.Decimal
	MainRate         decimal.Decimal
	UpperRate        decimal.Decimal
}

const weeksPerYear = 52

var DefaultContributionBands = ContributionBands{
	PrimaryThreshold: decimal.NewFromInt(242),
	UpperThreshold:   decimal.NewFromInt(967),
	MainRate:         decimal.RequireFromString("0.08"),
	UpperRate:        decimal.RequireFromString("0.02"),
}

// Compute converts annual gross to weekly, applies the bands and annualises
// the weekly contribution.
func (b ContributionBands) Compute(annualGross decimal.Decimal) decimal.Decimal {
	weeks := decimal.NewFromInt(weeksPerYear)
	weekly := money.RoundCorrection(annualGross.Div(weeks))
	if weekly.LessThanOrEqual(b.PrimaryThreshold) {
		return decimal.Zero
	}

	mainBand := decimal.Min(weekly, b.UpperThreshold).Sub(b.PrimaryThreshold)
	contribution := money.RoundCorrection(mainBand.Mul(b.MainRate))
	if weekly.GreaterThan(b.UpperThreshold) {
		contribution = contribution.Add(money.RoundCorrection(weekly.Sub(b.UpperThreshold).Mul(b.UpperRate)))
	}
	return money.RoundCorrection(contribution.Mul(weeks))
}

func ComputeContribution(annualGross decimal.Decimal) decimal.Decimal {
	return DefaultContributionBands.Compute(annualGross)
}

// Statutory is the yearly tax and contribution estimate for a gross salary.
type Statutory struct {
	AnnualGross  money.Amount `json:"annualGross"`
	IncomeTax    money.Amount `json:"incomeTax"`
	Contribution money.Amount `json:"contribution"`
	TakeHome     money.Amount `json:"takeHome"`
}

func StatutoryBreakdown(annualGross decimal.Decimal) Statutory {
	gross := money.RoundCorrection(annualGross)
	tax := ComputeTax(gross)
	contribution := ComputeContribution(gross)
	return Statutory{
		AnnualGross:  money.NewAmount(gross),
		IncomeTax:    money.NewAmount(tax),
		Contribution: money.NewAmount(contribution),
		TakeHome:     money.NewAmount(gross.Sub(tax).Sub(contribution)),
	}
}
