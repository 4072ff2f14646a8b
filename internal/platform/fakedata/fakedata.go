// Package fakedata generates plausible employees for demo and load-test
// databases.
package fakedata

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit"
	"github.com/shopspring/decimal"

	"paydesk/internal/domain/employee"
)

var grades = []string{"A", "B", "C", "D"}

type Options struct {
	// Departments are assigned round robin. Empty leaves employees unassigned.
	Departments []int64
	MinSalary   int
	MaxSalary   int
	Now         time.Time
}

// Employees returns n drafts. Emails carry the index so a batch never
// collides with itself.
func Employees(n int, opts Options) []employee.Draft {
	if opts.MinSalary <= 0 {
		opts.MinSalary = 2500
	}
	if opts.MaxSalary < opts.MinSalary {
		opts.MaxSalary = opts.MinSalary * 4
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	earliest := opts.Now.AddDate(-10, 0, 0)

	drafts := make([]employee.Draft, 0, n)
	for i := 0; i < n; i++ {
		first := gofakeit.FirstName()
		last := gofakeit.LastName()
		hired := gofakeit.DateRange(earliest, opts.Now).UTC().Truncate(24 * time.Hour)
		rank := gofakeit.Number(1, 4)

		d := employee.Draft{
			FirstName:   first,
			LastName:    last,
			Email:       fmt.Sprintf("%s.%s.%d@%s", gofakeit.Word(), gofakeit.Word(), i, gofakeit.DomainName()),
			Phone:       gofakeit.Phone(),
			HireDate:    &hired,
			Salary:      decimal.NewFromInt(int64(gofakeit.Number(opts.MinSalary, opts.MaxSalary))),
			Performance: decimal.NewFromFloat(gofakeit.Float64Range(0.8, 1.3)).Round(2),
			Rank:        rank,
			Grade:       grades[gofakeit.Number(0, len(grades)-1)],
		}
		if len(opts.Departments) > 0 {
			dept := opts.Departments[i%len(opts.Departments)]
			d.DepartmentID = &dept
		}
		drafts = append(drafts, d)
	}
	return drafts
}
