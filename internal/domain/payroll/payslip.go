package payroll

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"paydesk/internal/domain/money"
)

func WritePayslipPDF(w io.Writer, data PayslipData) error {
	rec := data.Record

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Payslip")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Employee: %s %s", data.FirstName, data.LastName))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Email: %s", data.Email))
	pdf.Ln(7)
	if data.Department != "" {
		pdf.Cell(0, 8, fmt.Sprintf("Department: %s", data.Department))
		pdf.Ln(7)
	}
	pdf.Cell(0, 8, fmt.Sprintf("Period: %s to %s", rec.PeriodStart.Format(payslipDateLayout), rec.PeriodEnd.Format(payslipDateLayout)))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Pay date: %s", rec.PayDate.Format(payslipDateLayout)))
	pdf.Ln(10)

	lines := []struct {
		label  string
		amount string
	}{
		{"Basic salary", money.Format(rec.BasicSalary)},
		{"Bonus", money.Format(rec.Bonus)},
		{"Allowance", money.Format(rec.Allowance)},
		{"Deduction", money.Format(rec.Deduction)},
		{"Total salary", money.Format(rec.TotalSalary)},
		{"Tax", money.Format(rec.TaxAmount)},
		{"Pension", money.Format(rec.PensionDeduction)},
		{"Net salary", money.Format(data.Net)},
	}
	for _, line := range lines {
		pdf.CellFormat(60, 8, line.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(40, 8, line.amount, "", 1, "R", false, 0, "")
	}

	return pdf.Output(w)
}
