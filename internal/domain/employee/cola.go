package employee

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"

	"paydesk/internal/domain/apperr"
	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/money"
)

type COLAResult struct {
	Rate     string `json:"rate"`
	Adjusted int    `json:"adjusted"`
}

// ApplyCostOfLivingAdjustment multiplies every active salary by 1+rate in a
// single transaction and logs each change.
func (s *Service) ApplyCostOfLivingAdjustment(ctx context.Context, actor audit.Actor, rate decimal.Decimal) (COLAResult, error) {
	if rate.LessThanOrEqual(decimal.NewFromInt(-1)) {
		return COLAResult{}, apperr.Invalid("rate", "must be greater than -1")
	}
	factor := decimal.NewFromInt(1).Add(rate)
	adjusted := 0
	err := s.store.WithTx(ctx, func(tx TxStore) error {
		employees, err := tx.ActiveForUpdate(ctx)
		if err != nil {
			return apperr.Internal("load employees", err)
		}
		for _, emp := range employees {
			next := money.RoundCorrection(emp.Salary.Mul(factor))
			if next.Equal(emp.Salary.Decimal) {
				continue
			}
			if err := tx.UpdateSalary(ctx, emp.ID, next); err != nil {
				return apperr.Internal("update salary", err)
			}
			if err := tx.AppendLog(ctx, audit.Entry{
				ActorEmail: actor.Email,
				Action:     audit.ActionUpdate,
				ModelName:  ModelEmployee,
				ObjectID:   strconv.FormatInt(emp.ID, 10),
				Changes: map[string]any{
					"old_salary": money.Format(emp.Salary.Decimal),
					"new_salary": money.Format(next),
					"cola_rate":  rate.String(),
				},
				LogType: audit.LogTypeSystem,
			}); err != nil {
				return apperr.Internal("log salary change", err)
			}
			adjusted++
		}
		return nil
	})
	if err != nil {
		return COLAResult{}, err
	}
	return COLAResult{Rate: rate.String(), Adjusted: adjusted}, nil
}
