package employee

import (
	"strconv"
	"time"
)

const dateLayout = "2006-01-02"

func itoa(v int) string {
	return strconv.Itoa(v)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}

func optionalID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func parseOptionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseOptionalID(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, strconv.ErrSyntax
	}
	return &id, nil
}
