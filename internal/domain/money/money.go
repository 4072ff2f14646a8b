package money

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Places is the fixed number of fractional digits for stored amounts.
const Places = 2

var (
	Zero    = decimal.Zero
	Hundred = decimal.NewFromInt(100)

	ErrNotNumeric = errors.New("must be a decimal number")
	ErrOutOfRange = errors.New("must be below 1000000000000 with at most 12 decimal places")
	maxMagnitude  = decimal.New(1, 12)
)

// Literals longer than this or with an exponent outside ±maxExponent are
// rejected before any arithmetic touches them.
const (
	maxLiteralLen = 40
	maxExponent   = 12
)

// RoundCorrection rounds half away from zero to two places. Every amount the
// calculators produce passes through it.
func RoundCorrection(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Parse accepts a plain decimal string such as "20000.00". Values that do not
// fit the stored NUMERIC columns are rejected with ErrOutOfRange.
func Parse(raw string) (decimal.Decimal, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return decimal.Zero, ErrNotNumeric
	}
	if len(value) > maxLiteralLen {
		return decimal.Zero, ErrOutOfRange
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, ErrNotNumeric
	}
	// The exponent is checked first: comparing a huge exponent against
	// maxMagnitude would rescale the coefficient.
	if exp := d.Exponent(); exp < -maxExponent || exp > maxExponent {
		return decimal.Zero, ErrOutOfRange
	}
	if d.Abs().GreaterThanOrEqual(maxMagnitude) {
		return decimal.Zero, ErrOutOfRange
	}
	return d, nil
}

// ParseJSON accepts a JSON number or a JSON string holding a number. The
// literal is parsed directly so no float64 conversion happens.
func ParseJSON(raw json.RawMessage) (decimal.Decimal, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return decimal.Zero, ErrNotNumeric
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return decimal.Zero, ErrNotNumeric
		}
		return Parse(s)
	}
	return Parse(string(trimmed))
}

// Format renders d with exactly two fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

// Amount is a decimal that always marshals as a two-place JSON string.
type Amount struct {
	decimal.Decimal
}

func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: RoundCorrection(d)}
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(Format(a.Decimal))
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	d, err := ParseJSON(data)
	if err != nil {
		return err
	}
	a.Decimal = d
	return nil
}

func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
