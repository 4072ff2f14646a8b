package adjustment

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"paydesk/internal/domain/apperr"
	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/money"
)

type Service struct {
	store StoreAPI
	now   func() time.Time
}

func NewService(store StoreAPI) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) today() time.Time {
	y, m, d := s.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func checkKind(kind Kind) error {
	if !kind.Valid() {
		return apperr.Invalid("kind", fmt.Sprintf("unknown adjustment kind %q", kind))
	}
	return nil
}

func checkType(kind Kind, value string) error {
	if value == "" {
		return apperr.Invalid("type", "is required")
	}
	if !slices.Contains(allowedTypes[kind], value) {
		return apperr.Invalid("type", fmt.Sprintf("must be one of %s", strings.Join(allowedTypes[kind], ", ")))
	}
	return nil
}

// Create stores a manual allowance or deduction and logs it in the same
// transaction.
func (s *Service) Create(ctx context.Context, actor audit.Actor, kind Kind, in Input) (Adjustment, error) {
	if err := checkKind(kind); err != nil {
		return Adjustment{}, err
	}
	in.Type = strings.TrimSpace(in.Type)
	if in.EmployeeID <= 0 {
		return Adjustment{}, apperr.Invalid("employee_id", "is required")
	}
	if err := checkType(kind, in.Type); err != nil {
		return Adjustment{}, err
	}
	if in.Amount.IsNegative() {
		return Adjustment{}, apperr.Invalid("amount", "must not be negative")
	}
	if in.EffectiveDate.IsZero() {
		in.EffectiveDate = s.today()
	}

	var created Adjustment
	err := s.store.WithTx(ctx, func(tx TxStore) error {
		ok, err := tx.EmployeeExists(ctx, in.EmployeeID)
		if err != nil {
			return apperr.Internal("check employee", err)
		}
		if !ok {
			return apperr.NotFound("employee_id", fmt.Sprintf("employee %d not found", in.EmployeeID))
		}
		created, err = tx.Insert(ctx, Adjustment{
			EmployeeID:    in.EmployeeID,
			Kind:          kind,
			Type:          in.Type,
			Amount:        money.NewAmount(in.Amount),
			EffectiveDate: in.EffectiveDate,
		})
		if err != nil {
			return apperr.Internal("store "+string(kind), err)
		}
		return s.log(ctx, tx, actor, audit.ActionCreate, created, audit.Snapshot("new_", created.fields()))
	})
	if err != nil {
		return Adjustment{}, err
	}
	return created, nil
}

// Update changes type, amount or effective date and logs only the fields
// that moved.
func (s *Service) Update(ctx context.Context, actor audit.Actor, kind Kind, id int64, patch Patch) (Adjustment, error) {
	if err := checkKind(kind); err != nil {
		return Adjustment{}, err
	}
	var updated Adjustment
	err := s.store.WithTx(ctx, func(tx TxStore) error {
		current, err := s.load(ctx, tx, kind, id)
		if err != nil {
			return err
		}
		next := current
		if patch.Type != nil {
			next.Type = strings.TrimSpace(*patch.Type)
			if err := checkType(kind, next.Type); err != nil {
				return err
			}
		}
		if patch.Amount != nil {
			if patch.Amount.IsNegative() {
				return apperr.Invalid("amount", "must not be negative")
			}
			next.Amount = money.NewAmount(*patch.Amount)
		}
		if patch.EffectiveDate != nil {
			next.EffectiveDate = *patch.EffectiveDate
		}

		changes := audit.Diff(current.fields(), next.fields())
		if len(changes) == 0 {
			updated = current
			return nil
		}
		updated, err = tx.Update(ctx, next)
		if err != nil {
			return apperr.Internal("update "+string(kind), err)
		}
		return s.log(ctx, tx, actor, audit.ActionUpdate, updated, changes)
	})
	if err != nil {
		return Adjustment{}, err
	}
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, actor audit.Actor, kind Kind, id int64) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	return s.store.WithTx(ctx, func(tx TxStore) error {
		current, err := s.load(ctx, tx, kind, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(ctx, kind, id); err != nil {
			return apperr.Internal("delete "+string(kind), err)
		}
		return s.log(ctx, tx, actor, audit.ActionDelete, current, audit.Snapshot("old_", current.fields()))
	})
}

func (s *Service) ListForEmployee(ctx context.Context, kind Kind, employeeID int64) ([]Adjustment, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	items, err := s.store.List(ctx, kind, employeeID)
	if err != nil {
		return nil, apperr.Internal("list "+string(kind)+"s", err)
	}
	return items, nil
}

func (s *Service) load(ctx context.Context, tx TxStore, kind Kind, id int64) (Adjustment, error) {
	current, err := tx.GetForUpdate(ctx, kind, id)
	if errors.Is(err, ErrNotFound) {
		return Adjustment{}, apperr.NotFound("id", fmt.Sprintf("%s %d not found", kind, id))
	}
	if err != nil {
		return Adjustment{}, apperr.Internal("load "+string(kind), err)
	}
	return current, nil
}

func (s *Service) log(ctx context.Context, tx TxStore, actor audit.Actor, action string, a Adjustment, changes map[string]any) error {
	if err := tx.AppendLog(ctx, audit.Entry{
		ActorEmail: actor.Email,
		Action:     action,
		ModelName:  a.Kind.Model(),
		ObjectID:   strconv.FormatInt(a.ID, 10),
		Changes:    changes,
		LogType:    audit.LogTypeOperation,
	}); err != nil {
		return apperr.Internal("log "+string(a.Kind), err)
	}
	return nil
}
