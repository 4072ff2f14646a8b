package approval

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"paydesk/internal/domain/apperr"
	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/money"
)

type Service struct {
	store StoreAPI
}

func NewService(store StoreAPI) *Service {
	return &Service{store: store}
}

func (s *Service) Submit(ctx context.Context, actor audit.Actor, in SubmitInput) (Approval, error) {
	in.RequestType = strings.TrimSpace(in.RequestType)
	in.Description = strings.TrimSpace(in.Description)
	if in.RequestType == "" {
		return Approval{}, apperr.Invalid("request_type", "is required")
	}
	if len(in.RequestType) > 255 {
		return Approval{}, apperr.Invalid("request_type", "must be at most 255 characters")
	}
	if in.Description == "" {
		return Approval{}, apperr.Invalid("description", "is required")
	}
	if in.RequestType == TypeSalaryAdjustment {
		if in.EmployeeID == nil {
			return Approval{}, apperr.Invalid("employee_id", "is required for a salary adjustment")
		}
		if in.ProposedAmount == nil || !in.ProposedAmount.IsPositive() {
			return Approval{}, apperr.Invalid("proposed_amount", "must be a positive amount")
		}
	}

	var created Approval
	err := s.store.WithTx(ctx, func(tx TxStore) error {
		if in.EmployeeID != nil {
			ok, err := tx.EmployeeExists(ctx, *in.EmployeeID)
			if err != nil {
				return apperr.Internal("check employee", err)
			}
			if !ok {
				return apperr.NotFound("employee_id", fmt.Sprintf("employee %d not found", *in.EmployeeID))
			}
		}
		a := Approval{
			EmployeeID:      in.EmployeeID,
			RequestType:     in.RequestType,
			Description:     in.Description,
			Status:          StatusPending,
			RelatedModel:    strings.TrimSpace(in.RelatedModel),
			RelatedObjectID: in.RelatedObjectID,
		}
		if actor.UserID > 0 {
			id := actor.UserID
			a.CreatedBy = &id
		}
		if in.ProposedAmount != nil {
			amount := money.NewAmount(*in.ProposedAmount)
			a.ProposedAmount = &amount
		}
		var err error
		created, err = tx.Insert(ctx, a)
		if err != nil {
			return apperr.Internal("store approval", err)
		}
		changes := map[string]any{
			"request_type": created.RequestType,
			"status":       created.Status,
		}
		if created.ProposedAmount != nil {
			changes["proposed_amount"] = money.Format(created.ProposedAmount.Decimal)
		}
		return appendLog(ctx, tx, actor, audit.ActionCreate, ModelApproval, created.ID, changes)
	})
	if err != nil {
		return Approval{}, err
	}
	return created, nil
}

func (s *Service) Approve(ctx context.Context, actor audit.Actor, id int64, reason string) (Approval, error) {
	return s.transition(ctx, actor, id, StatusApproved, reason, true)
}

func (s *Service) Reject(ctx context.Context, actor audit.Actor, id int64, reason string) (Approval, error) {
	return s.transition(ctx, actor, id, StatusRejected, reason, true)
}

// Cancel withdraws a pending request. Only the submitter may cancel unless
// asAdmin is set.
func (s *Service) Cancel(ctx context.Context, actor audit.Actor, id int64, reason string, asAdmin bool) (Approval, error) {
	return s.transition(ctx, actor, id, StatusCancelled, reason, asAdmin)
}

var transitionActions = map[string]string{
	StatusApproved:  audit.ActionApprove,
	StatusRejected:  audit.ActionReject,
	StatusCancelled: audit.ActionCancel,
}

// transition moves a request out of pending. Every other starting status is
// a conflict.
func (s *Service) transition(ctx context.Context, actor audit.Actor, id int64, next, reason string, privileged bool) (Approval, error) {
	var updated Approval
	err := s.store.WithTx(ctx, func(tx TxStore) error {
		current, err := tx.GetForUpdate(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("id", fmt.Sprintf("approval %d not found", id))
		}
		if err != nil {
			return apperr.Internal("load approval", err)
		}
		if !privileged && (current.CreatedBy == nil || *current.CreatedBy != actor.UserID) {
			return apperr.NotFound("id", fmt.Sprintf("approval %d not found", id))
		}
		if current.Status != StatusPending {
			return apperr.Conflict("status", fmt.Sprintf("approval %d is already %s", id, current.Status))
		}

		updated, err = tx.SetStatus(ctx, id, next, actor.UserID)
		if err != nil {
			return apperr.Internal("update approval", err)
		}
		if err := tx.InsertStatusChange(ctx, StatusChange{
			ApprovalID: id,
			OldStatus:  current.Status,
			NewStatus:  next,
			Reason:     strings.TrimSpace(reason),
		}, actor.UserID); err != nil {
			return apperr.Internal("record status change", err)
		}
		if err := appendLog(ctx, tx, actor, transitionActions[next], ModelApproval, id, map[string]any{
			"old_status": current.Status,
			"new_status": next,
		}); err != nil {
			return err
		}

		if next == StatusApproved && current.RequestType == TypeSalaryAdjustment {
			return applySalary(ctx, tx, actor, current)
		}
		return nil
	})
	if err != nil {
		return Approval{}, err
	}
	return updated, nil
}

func applySalary(ctx context.Context, tx TxStore, actor audit.Actor, a Approval) error {
	if a.EmployeeID == nil || a.ProposedAmount == nil {
		return apperr.Invalid("proposed_amount", "salary adjustment is missing its employee or amount")
	}
	old, err := tx.SetSalary(ctx, *a.EmployeeID, a.ProposedAmount.Decimal)
	if errors.Is(err, ErrEmployeeNotFound) {
		return apperr.NotFound("employee_id", fmt.Sprintf("employee %d not found", *a.EmployeeID))
	}
	if err != nil {
		return apperr.Internal("apply salary", err)
	}
	return appendLog(ctx, tx, actor, audit.ActionUpdate, ModelEmployee, *a.EmployeeID, map[string]any{
		"old_salary":  money.Format(old),
		"new_salary":  money.Format(a.ProposedAmount.Decimal),
		"approval_id": a.ID,
	})
}

func appendLog(ctx context.Context, tx TxStore, actor audit.Actor, action, model string, id int64, changes map[string]any) error {
	if err := tx.AppendLog(ctx, audit.Entry{
		ActorEmail: actor.Email,
		Action:     action,
		ModelName:  model,
		ObjectID:   strconv.FormatInt(id, 10),
		Changes:    changes,
		LogType:    audit.LogTypeOperation,
	}); err != nil {
		return apperr.Internal("log "+strings.ToLower(model), err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (Approval, error) {
	a, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Approval{}, apperr.NotFound("id", fmt.Sprintf("approval %d not found", id))
	}
	if err != nil {
		return Approval{}, apperr.Internal("load approval", err)
	}
	return a, nil
}

// ListPending returns pending requests oldest first, optionally for one
// employee.
func (s *Service) ListPending(ctx context.Context, employeeID int64) ([]Approval, error) {
	return s.List(ctx, ListFilter{Status: StatusPending, EmployeeID: employeeID})
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Approval, error) {
	switch filter.Status {
	case "", StatusPending, StatusApproved, StatusRejected, StatusCancelled:
	default:
		return nil, apperr.Invalid("status", fmt.Sprintf("unknown status %q", filter.Status))
	}
	items, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, apperr.Internal("list approvals", err)
	}
	return items, nil
}

func (s *Service) History(ctx context.Context, id int64) ([]StatusChange, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	items, err := s.store.StatusHistory(ctx, id)
	if err != nil {
		return nil, apperr.Internal("load approval history", err)
	}
	return items, nil
}
