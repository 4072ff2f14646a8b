package shared

import "time"

// DateLayout is the wire format for pay dates, hire dates and filters.
const DateLayout = "2006-01-02"

// InvalidDateReason is reported for any date field that does not parse.
const InvalidDateReason = "must be a calendar date such as 2026-01-31"

// ParseDate accepts YYYY-MM-DD or RFC3339 and returns the UTC calendar day,
// which is the granularity pay periods and effective dates work in.
func ParseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(DateLayout, value)
	if err != nil {
		if parsed, err = time.Parse(time.RFC3339, value); err != nil {
			return time.Time{}, err
		}
	}
	y, m, d := parsed.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}
