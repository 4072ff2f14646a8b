package employee

import "errors"

var (
	ErrEmployeeNotFound    = errors.New("employee not found")
	ErrDuplicateDepartment = errors.New("department name already exists")
	ErrDuplicatePosition   = errors.New("position title already exists")
)
