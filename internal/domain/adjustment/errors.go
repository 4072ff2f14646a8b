package adjustment

import "errors"

var (
	ErrNotFound         = errors.New("adjustment not found")
	ErrEmployeeNotFound = errors.New("employee not found")
)
