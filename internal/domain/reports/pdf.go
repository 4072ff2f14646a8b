package reports

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jung-kurt/gofpdf"

	"paydesk/internal/domain/money"
)

func WriteDashboardPDF(w io.Writer, stats DashboardStats) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Payroll dashboard")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 8, fmt.Sprintf("Generated: %s", stats.GeneratedAt.Format("2006-01-02 15:04 MST")))
	pdf.Ln(10)

	summary := []struct {
		label string
		value string
	}{
		{"Active employees", strconv.Itoa(stats.ActiveEmployees)},
		{"Inactive employees", strconv.Itoa(stats.InactiveEmployees)},
		{"Average salary", money.Format(stats.AverageSalary.Decimal)},
		{"Pending approvals", strconv.Itoa(stats.PendingApprovals)},
		{"Payroll period", stats.Payroll.Period},
		{"Payroll records", strconv.Itoa(stats.Payroll.Records)},
		{"Gross pay", money.Format(stats.Payroll.Gross.Decimal)},
		{"Tax withheld", money.Format(stats.Payroll.Tax.Decimal)},
		{"Pension", money.Format(stats.Payroll.Pension.Decimal)},
	}
	for _, line := range summary {
		pdf.CellFormat(70, 7, line.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(40, 7, line.value, "", 1, "R", false, 0, "")
	}

	if len(stats.Departments) == 0 {
		return pdf.Output(w)
	}
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(70, 8, "Department", "B", 0, "L", false, 0, "")
	pdf.CellFormat(25, 8, "Headcount", "B", 0, "R", false, 0, "")
	pdf.CellFormat(40, 8, "Salary total", "B", 0, "R", false, 0, "")
	pdf.CellFormat(40, 8, "Budget", "B", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	for _, d := range stats.Departments {
		budget := "-"
		if d.Budget != nil {
			budget = money.Format(d.Budget.Decimal)
		}
		pdf.CellFormat(70, 7, d.Name, "", 0, "L", false, 0, "")
		pdf.CellFormat(25, 7, strconv.Itoa(d.Headcount), "", 0, "R", false, 0, "")
		pdf.CellFormat(40, 7, money.Format(d.TotalSalary.Decimal), "", 0, "R", false, 0, "")
		pdf.CellFormat(40, 7, budget, "", 1, "R", false, 0, "")
	}
	return pdf.Output(w)
}
