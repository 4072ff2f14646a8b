package payroll

import (
	"io"

	"github.com/gocarina/gocsv"

	"paydesk/internal/domain/money"
)

func WriteRecordsCSV(w io.Writer, records []Record) error {
	rows := make([]ExportRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, ExportRow{
			RecordID:     rec.ID,
			EmployeeID:   rec.EmployeeID,
			EmployeeName: rec.EmployeeName,
			Period:       rec.PeriodStart.Format(periodLayout),
			PayDate:      rec.PayDate.Format(payslipDateLayout),
			BasicSalary:  money.Format(rec.BasicSalary),
			Bonus:        money.Format(rec.Bonus),
			Allowance:    money.Format(rec.Allowance),
			Deduction:    money.Format(rec.Deduction),
			Pension:      money.Format(rec.PensionDeduction),
			TotalSalary:  money.Format(rec.TotalSalary),
			TaxAmount:    money.Format(rec.TaxAmount),
		})
	}
	return gocsv.Marshal(rows, w)
}
