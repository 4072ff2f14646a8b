package employee

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"paydesk/internal/domain/apperr"
	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/money"
)

// ImportCSV reads employee rows and creates them through BulkCreate.
func (s *Service) ImportCSV(ctx context.Context, actor audit.Actor, r io.Reader, suppressSideEffects bool) (BulkResult, error) {
	var rows []CSVRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return BulkResult{}, apperr.Invalid("file", fmt.Sprintf("unreadable csv: %v", err))
	}
	drafts := make([]Draft, 0, len(rows))
	for i, row := range rows {
		draft, err := DraftFromCSV(row)
		if err != nil {
			return BulkResult{}, apperr.Invalid(fmt.Sprintf("row %d", i+2), err.Error())
		}
		drafts = append(drafts, draft)
	}
	return s.BulkCreate(ctx, actor, drafts, suppressSideEffects)
}

// DraftFromCSV parses one import row. Empty optional cells keep defaults.
func DraftFromCSV(row CSVRow) (Draft, error) {
	draft := Draft{
		FirstName: row.FirstName,
		LastName:  row.LastName,
		Email:     row.Email,
		Phone:     row.Phone,
		Grade:     row.Grade,
	}
	var err error
	if draft.HireDate, err = parseOptionalDate(strings.TrimSpace(row.HireDate)); err != nil {
		return Draft{}, errors.New("hire_date must be YYYY-MM-DD")
	}
	if draft.ExitDate, err = parseOptionalDate(strings.TrimSpace(row.ExitDate)); err != nil {
		return Draft{}, errors.New("exit_date must be YYYY-MM-DD")
	}
	if raw := strings.TrimSpace(row.Salary); raw != "" {
		if draft.Salary, err = money.Parse(raw); err != nil {
			return Draft{}, fmt.Errorf("salary %w", err)
		}
	}
	if raw := strings.TrimSpace(row.Performance); raw != "" {
		if draft.Performance, err = decimal.NewFromString(raw); err != nil {
			return Draft{}, errors.New("performance must be a decimal number")
		}
	}
	if raw := strings.TrimSpace(row.Rank); raw != "" {
		if draft.Rank, err = parseRank(raw); err != nil {
			return Draft{}, err
		}
	}
	if draft.DepartmentID, err = parseOptionalID(strings.TrimSpace(row.DepartmentID)); err != nil {
		return Draft{}, errors.New("department_id must be a positive integer")
	}
	if draft.PositionID, err = parseOptionalID(strings.TrimSpace(row.PositionID)); err != nil {
		return Draft{}, errors.New("position_id must be a positive integer")
	}
	return draft, nil
}

func parseRank(raw string) (int, error) {
	lower := strings.ToLower(raw)
	for level, label := range rankLabels {
		if label == lower {
			return level, nil
		}
	}
	level, err := strconv.Atoi(raw)
	if err != nil || level < 1 {
		return 0, fmt.Errorf("rank %q is not a known level", raw)
	}
	return level, nil
}

// ExportCSV writes every employee matching filter.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, filter ListFilter) error {
	employees, err := s.List(ctx, filter)
	if err != nil {
		return err
	}
	rows := make([]CSVRow, 0, len(employees))
	for _, emp := range employees {
		rows = append(rows, CSVRow{
			FirstName:    emp.FirstName,
			LastName:     emp.LastName,
			Email:        emp.Email,
			Phone:        emp.Phone,
			HireDate:     formatDate(emp.HireDate),
			ExitDate:     formatDate(emp.ExitDate),
			Salary:       money.Format(emp.Salary.Decimal),
			Performance:  emp.Performance.String(),
			Rank:         RankLabel(emp.Rank),
			Grade:        emp.Grade,
			DepartmentID: idString(emp.DepartmentID),
			PositionID:   idString(emp.PositionID),
			IsActive:     strconv.FormatBool(emp.IsActive),
		})
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return apperr.Internal("render employee csv", err)
	}
	return nil
}

func idString(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}
