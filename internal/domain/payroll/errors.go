package payroll

import "errors"

var (
	ErrEmployeeNotFound = errors.New("employee not found")
	ErrRecordNotFound   = errors.New("payroll record not found")
	ErrDuplicatePeriod  = errors.New("payroll record already exists for period")
)
