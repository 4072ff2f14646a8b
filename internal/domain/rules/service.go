package rules

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"paydesk/internal/domain/apperr"
	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/money"
)

type Service struct {
	store StoreAPI
	now   func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store StoreAPI, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) today() time.Time {
	y, m, d := s.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Configure validates and stores a rule together with its department
// exclusions.
func (s *Service) Configure(ctx context.Context, actor audit.Actor, spec RuleSpec) (RuleConfig, error) {
	spec.Name = strings.TrimSpace(spec.Name)
	spec.Threshold = strings.TrimSpace(spec.Threshold)
	if err := validateSpec(spec); err != nil {
		return RuleConfig{}, err
	}

	var created RuleConfig
	err := s.store.WithTx(ctx, func(tx TxStore) error {
		ids := uniqueIDs(spec.ExcludeDepartments)
		if spec.ConditionType == ConditionDepartment {
			id, _ := strconv.ParseInt(spec.Threshold, 10, 64)
			ids = append(ids, id)
		}
		missing, err := tx.MissingDepartments(ctx, ids)
		if err != nil {
			return apperr.Internal("check departments", err)
		}
		if len(missing) > 0 {
			field := "exclude_departments"
			if spec.ConditionType == ConditionDepartment && slices.Contains(missing, ids[len(ids)-1]) {
				field = "threshold"
			}
			return apperr.NotFound(field, fmt.Sprintf("department %d not found", missing[0]))
		}

		created, err = tx.InsertRule(ctx, RuleConfig{
			Name:               spec.Name,
			ConditionType:      spec.ConditionType,
			Comparator:         spec.Comparator,
			Threshold:          spec.Threshold,
			CalculationType:    spec.CalculationType,
			Value:              spec.Value,
			ExcludeDepartments: uniqueIDs(spec.ExcludeDepartments),
			CreatedBy:          actor.UserID,
			IsActive:           true,
		})
		if err != nil {
			return apperr.Internal("store rule", err)
		}
		if err := tx.AppendLog(ctx, audit.Entry{
			ActorEmail: actor.Email,
			Action:     audit.ActionExecute,
			ModelName:  ModelRuleConfig,
			ObjectID:   strconv.FormatInt(created.ID, 10),
			Changes: map[string]any{
				"rule_name":           created.Name,
				"condition_type":      created.ConditionType,
				"comparator":          created.Comparator,
				"threshold":           created.Threshold,
				"calculation_type":    created.CalculationType,
				"value":               created.Value.String(),
				"exclude_departments": created.ExcludeDepartments,
			},
			LogType: audit.LogTypeSystem,
		}); err != nil {
			return apperr.Internal("log rule", err)
		}
		return nil
	})
	if err != nil {
		return RuleConfig{}, err
	}
	return created, nil
}

func validateSpec(spec RuleSpec) error {
	if spec.Name == "" {
		return apperr.Invalid("rule_name", "is required")
	}
	if len(spec.Name) > 100 {
		return apperr.Invalid("rule_name", "must be at most 100 characters")
	}
	if !configComparators[spec.Comparator] {
		return apperr.Invalid("comparator", fmt.Sprintf("unknown comparator %q", spec.Comparator))
	}
	if spec.Threshold == "" {
		return apperr.Invalid("threshold", "is required")
	}
	switch spec.ConditionType {
	case ConditionRank:
		if _, err := ParseRank(spec.Threshold); err != nil {
			return apperr.Invalid("threshold", err.Error())
		}
	case ConditionGrade:
		if _, err := GradeLevel(spec.Threshold); err != nil {
			return apperr.Invalid("threshold", err.Error())
		}
	case ConditionDepartment:
		if spec.Comparator != "=" {
			return apperr.Invalid("comparator", "department rules only support =")
		}
		if id, err := strconv.ParseInt(spec.Threshold, 10, 64); err != nil || id <= 0 {
			return apperr.Invalid("threshold", "must be a department id")
		}
	case ConditionSalaryGT, ConditionSalaryLT:
		if _, err := money.Parse(spec.Threshold); err != nil {
			return apperr.Invalid("threshold", err.Error())
		}
	default:
		return apperr.Invalid("condition_type", fmt.Sprintf("unknown condition type %q", spec.ConditionType))
	}
	if !validMode(spec.CalculationType) {
		return apperr.Invalid("calculation_type", fmt.Sprintf("unknown calculation type %q", spec.CalculationType))
	}
	if spec.Value.IsNegative() {
		return apperr.Invalid("value", "must not be negative")
	}
	for _, id := range spec.ExcludeDepartments {
		if id <= 0 {
			return apperr.Invalid("exclude_departments", fmt.Sprintf("department id %d is not valid", id))
		}
	}
	return nil
}

// Execute applies an ad hoc rank rule to every employee on file, terminated
// ones included. The whole run is one transaction and a same-day repeat with
// identical parameters only reaches employees it has not adjusted yet.
func (s *Service) Execute(ctx context.Context, actor audit.Actor, req ExecuteRequest) (ExecuteResult, error) {
	rank, err := ParseRank(req.Rank)
	if err != nil {
		return ExecuteResult{}, apperr.Invalid("rank", err.Error())
	}
	if !executeComparators[req.Comparator] {
		return ExecuteResult{}, apperr.Invalid("comparator", fmt.Sprintf("unknown comparator %q", req.Comparator))
	}
	if !validMode(req.CalcMode) {
		return ExecuteResult{}, apperr.Invalid("calcMode", fmt.Sprintf("unknown calculation mode %q", req.CalcMode))
	}
	if req.CalcValue.IsNegative() {
		return ExecuteResult{}, apperr.Invalid("calcValue", "must not be negative")
	}

	sourceKey := SourceKey(rank, req)
	affected := 0
	err = s.store.WithTx(ctx, func(tx TxStore) error {
		candidates, err := tx.Candidates(ctx, true)
		if err != nil {
			return apperr.Internal("load employees", err)
		}
		selected := SelectByRank(candidates, rank, req.Comparator, req.Exceptions)
		affected, err = s.apply(ctx, tx, actor, selected, req.CalcMode, req.CalcValue, sourceKey, nil)
		return err
	})
	if err != nil {
		return ExecuteResult{}, err
	}
	return ExecuteResult{Status: StatusSuccess, Affected: affected}, nil
}

// ExecuteConfigured evaluates a stored rule against every active employee.
func (s *Service) ExecuteConfigured(ctx context.Context, actor audit.Actor, ruleID int64) (ExecuteResult, error) {
	affected := 0
	err := s.store.WithTx(ctx, func(tx TxStore) error {
		rule, err := tx.GetRule(ctx, ruleID)
		if errors.Is(err, ErrRuleNotFound) {
			return apperr.NotFound("rule_id", fmt.Sprintf("rule %d not found", ruleID))
		}
		if err != nil {
			return apperr.Internal("load rule", err)
		}
		if !rule.IsActive {
			return apperr.Invalid("rule_id", fmt.Sprintf("rule %d is inactive", ruleID))
		}
		candidates, err := tx.Candidates(ctx, false)
		if err != nil {
			return apperr.Internal("load employees", err)
		}
		selected := SelectByRule(candidates, rule)
		affected, err = s.apply(ctx, tx, actor, selected, rule.CalculationType, rule.Value, ruleSourceKey(rule.ID), &rule)
		return err
	})
	if err != nil {
		return ExecuteResult{}, err
	}
	return ExecuteResult{Status: StatusSuccess, Affected: affected}, nil
}

func (s *Service) apply(ctx context.Context, tx TxStore, actor audit.Actor, selected []Candidate, mode string, value decimal.Decimal, sourceKey string, rule *RuleConfig) (int, error) {
	effective := s.today()
	affected := 0
	for _, c := range selected {
		amount := Adjustment(c.Salary, mode, value)
		id, created, err := tx.InsertAllowance(ctx, NewAllowance{
			EmployeeID:    c.ID,
			Type:          AllowanceType,
			Amount:        amount,
			EffectiveDate: effective,
			SourceKey:     sourceKey,
		})
		if err != nil {
			return 0, apperr.Internal(fmt.Sprintf("create allowance for employee %d", c.ID), err)
		}
		if !created {
			continue
		}
		changes := map[string]any{
			"employee":   c.Name(),
			"adjustment": money.Format(amount),
		}
		if rule != nil {
			changes["rule"] = rule.Name
		}
		if err := tx.AppendLog(ctx, audit.Entry{
			ActorEmail: actor.Email,
			Action:     audit.ActionRuleExecuted,
			ModelName:  ModelAllowance,
			ObjectID:   strconv.FormatInt(id, 10),
			Changes:    changes,
			LogType:    audit.LogTypeOperation,
		}); err != nil {
			return 0, apperr.Internal(fmt.Sprintf("log adjustment for employee %d", c.ID), err)
		}
		affected++
	}
	return affected, nil
}

func (s *Service) List(ctx context.Context) ([]RuleConfig, error) {
	items, err := s.store.ListRules(ctx)
	if err != nil {
		return nil, apperr.Internal("list rules", err)
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, id int64) (RuleConfig, error) {
	rule, err := s.store.GetRule(ctx, id)
	if errors.Is(err, ErrRuleNotFound) {
		return RuleConfig{}, apperr.NotFound("id", fmt.Sprintf("rule %d not found", id))
	}
	if err != nil {
		return RuleConfig{}, apperr.Internal("load rule", err)
	}
	return rule, nil
}

// SetActive toggles is_active, the only field of a rule that may change.
func (s *Service) SetActive(ctx context.Context, actor audit.Actor, id int64, active bool) (RuleConfig, error) {
	var rule RuleConfig
	err := s.store.WithTx(ctx, func(tx TxStore) error {
		var err error
		rule, err = tx.GetRule(ctx, id)
		if errors.Is(err, ErrRuleNotFound) {
			return apperr.NotFound("id", fmt.Sprintf("rule %d not found", id))
		}
		if err != nil {
			return apperr.Internal("load rule", err)
		}
		if rule.IsActive == active {
			return nil
		}
		if err := tx.SetActive(ctx, id, active); err != nil {
			return apperr.Internal("update rule", err)
		}
		if err := tx.AppendLog(ctx, audit.Entry{
			ActorEmail: actor.Email,
			Action:     audit.ActionUpdate,
			ModelName:  ModelRuleConfig,
			ObjectID:   strconv.FormatInt(id, 10),
			Changes:    map[string]any{"old_is_active": rule.IsActive, "new_is_active": active},
			LogType:    audit.LogTypeSystem,
		}); err != nil {
			return apperr.Internal("log rule update", err)
		}
		rule.IsActive = active
		return nil
	})
	if err != nil {
		return RuleConfig{}, err
	}
	return rule, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
