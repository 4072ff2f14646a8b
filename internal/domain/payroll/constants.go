package payroll

const (
	ModelPayroll = "Payroll"

	StatusSuccess = "success"

	payslipDateLayout = "2006-01-02"
	periodLayout      = "2006-01"
)
