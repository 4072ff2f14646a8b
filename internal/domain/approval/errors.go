package approval

import "errors"

var (
	ErrNotFound         = errors.New("approval not found")
	ErrEmployeeNotFound = errors.New("employee not found")
)
