package employee

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"paydesk/internal/domain/apperr"
	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/auth"
	"paydesk/internal/domain/money"
)

type Service struct {
	store       StoreAPI
	notifier    Notifier
	emailDomain string
	hash        func(string) (string, error)
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithEmailDomain(domain string) Option {
	return func(s *Service) {
		if domain = strings.TrimSpace(domain); domain != "" {
			s.emailDomain = domain
		}
	}
}

// WithPasswordHasher replaces bcrypt, mostly so tests run fast.
func WithPasswordHasher(hash func(string) (string, error)) Option {
	return func(s *Service) {
		if hash != nil {
			s.hash = hash
		}
	}
}

func NewService(store StoreAPI, opts ...Option) *Service {
	s := &Service{
		store:       store,
		emailDomain: "company.com",
		hash:        auth.HashPassword,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type welcome struct {
	email    string
	name     string
	password string
}

// Provision creates an employee and, unless side effects are suppressed,
// the linked user account. Email collisions are resolved by suffixing.
func (s *Service) Provision(ctx context.Context, actor audit.Actor, draft Draft, opts ProvisionOptions) (Provisioned, error) {
	var out Provisioned
	var pending *welcome
	err := s.store.WithTx(ctx, func(tx TxStore) error {
		var err error
		out, pending, err = s.provisionTx(ctx, tx, actor, draft, opts.SuppressSideEffects, true)
		return err
	})
	if err != nil {
		return Provisioned{}, err
	}
	if pending != nil {
		s.sendWelcome(ctx, *pending)
	}
	return out, nil
}

// BulkCreate inserts all drafts in one transaction. With side effects
// suppressed no accounts or emails are created and a single system log
// entry summarises the import.
func (s *Service) BulkCreate(ctx context.Context, actor audit.Actor, drafts []Draft, suppressSideEffects bool) (BulkResult, error) {
	if len(drafts) == 0 {
		return BulkResult{}, apperr.Invalid("employees", "at least one employee is required")
	}
	result := BulkResult{IDs: make([]int64, 0, len(drafts))}
	var pending []welcome
	err := s.store.WithTx(ctx, func(tx TxStore) error {
		for i, draft := range drafts {
			created, w, err := s.provisionTx(ctx, tx, actor, draft, suppressSideEffects, !suppressSideEffects)
			if err != nil {
				return rowError(i, err)
			}
			result.IDs = append(result.IDs, created.Employee.ID)
			if w != nil {
				pending = append(pending, *w)
			}
		}
		result.Created = len(result.IDs)
		if !suppressSideEffects {
			return nil
		}
		if err := tx.AppendLog(ctx, audit.Entry{
			ActorEmail: actor.Email,
			Action:     audit.ActionBulkImport,
			ModelName:  ModelEmployee,
			ObjectID:   "bulk",
			Changes:    map[string]any{"created": result.Created},
			LogType:    audit.LogTypeSystem,
		}); err != nil {
			return apperr.Internal("log bulk import", err)
		}
		return nil
	})
	if err != nil {
		return BulkResult{}, err
	}
	for _, w := range pending {
		s.sendWelcome(ctx, w)
	}
	return result, nil
}

func rowError(index int, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Kind != apperr.KindInternal {
		return &apperr.Error{
			Kind:    appErr.Kind,
			Field:   fmt.Sprintf("employees[%d].%s", index, appErr.Field),
			Message: appErr.Message,
		}
	}
	return err
}

func (s *Service) provisionTx(ctx context.Context, tx TxStore, actor audit.Actor, draft Draft, suppress, logEach bool) (Provisioned, *welcome, error) {
	emp, err := employeeFromDraft(draft)
	if err != nil {
		return Provisioned{}, nil, err
	}
	if err := checkReferences(ctx, tx, emp.DepartmentID, emp.PositionID); err != nil {
		return Provisioned{}, nil, err
	}

	var account *UserAccount
	var pending *welcome
	if !suppress {
		password, err := GeneratePassword(emp.FirstName, emp.LastName, emp.HireDate)
		if err != nil {
			return Provisioned{}, nil, apperr.Internal("generate password", err)
		}
		hash, err := s.hash(password)
		if err != nil {
			return Provisioned{}, nil, apperr.Internal("hash password", err)
		}
		account, err = s.createAccount(ctx, tx, emp, hash)
		if err != nil {
			return Provisioned{}, nil, err
		}
		emp.UserID = &account.ID
		if emp.Email == "" {
			emp.Email = account.Email
		}
		pending = &welcome{email: account.Email, name: emp.Name(), password: password}
	}
	if emp.Email == "" {
		emp.Email = EmailCandidate(emp.FirstName, emp.LastName, s.emailDomain, 0)
	}

	emp.normalize()
	created, err := tx.InsertEmployee(ctx, emp)
	if err != nil {
		return Provisioned{}, nil, apperr.Internal("store employee", err)
	}
	if logEach {
		if err := tx.AppendLog(ctx, audit.Entry{
			ActorEmail: actor.Email,
			Action:     audit.ActionCreate,
			ModelName:  ModelEmployee,
			ObjectID:   strconv.FormatInt(created.ID, 10),
			Changes:    map[string]any{"first_name": created.FirstName, "last_name": created.LastName},
			LogType:    audit.LogTypeOperation,
		}); err != nil {
			return Provisioned{}, nil, apperr.Internal("log employee", err)
		}
	}
	return Provisioned{Employee: created, Account: account}, pending, nil
}

// createAccount inserts the user, moving to the next suffixed address each
// time the email is already taken.
func (s *Service) createAccount(ctx context.Context, tx TxStore, emp Employee, hash string) (*UserAccount, error) {
	for attempt := 0; attempt < maxEmailAttempts; attempt++ {
		email := EmailCandidate(emp.FirstName, emp.LastName, s.emailDomain, attempt)
		id, created, err := tx.InsertUser(ctx, NewAccount{
			Email:        email,
			PasswordHash: hash,
			Role:         auth.RoleUser,
			FirstName:    emp.FirstName,
			LastName:     emp.LastName,
		})
		if err != nil {
			return nil, apperr.Internal("create user account", err)
		}
		if created {
			return &UserAccount{ID: id, Email: email, Role: auth.RoleUser}, nil
		}
	}
	return nil, apperr.Conflict("email", fmt.Sprintf("no free address for %s %s", emp.FirstName, emp.LastName))
}

func (s *Service) sendWelcome(ctx context.Context, w welcome) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendWelcome(ctx, w.email, w.name, w.password); err != nil {
		slog.Warn("welcome email failed", "email", w.email, "err", err)
	}
}

func employeeFromDraft(d Draft) (Employee, error) {
	emp := Employee{
		FirstName:    NormalizeName(d.FirstName),
		LastName:     NormalizeName(d.LastName),
		Email:        strings.ToLower(strings.TrimSpace(d.Email)),
		Phone:        strings.TrimSpace(d.Phone),
		HireDate:     d.HireDate,
		ExitDate:     d.ExitDate,
		Salary:       money.NewAmount(d.Salary),
		Performance:  d.Performance,
		Rank:         d.Rank,
		Grade:        strings.ToUpper(strings.TrimSpace(d.Grade)),
		DepartmentID: d.DepartmentID,
		PositionID:   d.PositionID,
	}
	if emp.Performance.IsZero() {
		emp.Performance = decimal.NewFromInt(1)
	}
	if emp.Rank == 0 {
		emp.Rank = 1
	}
	if emp.Grade == "" {
		emp.Grade = DefaultGrade
	}
	if err := validateEmployee(emp); err != nil {
		return Employee{}, err
	}
	return emp, nil
}

func validateEmployee(emp Employee) error {
	if emp.FirstName == "" {
		return apperr.Invalid("first_name", "is required")
	}
	if emp.LastName == "" {
		return apperr.Invalid("last_name", "is required")
	}
	if len(emp.FirstName) > 50 || len(emp.LastName) > 50 {
		return apperr.Invalid("name", "must be at most 50 characters")
	}
	if emp.Email != "" && !strings.Contains(emp.Email, "@") {
		return apperr.Invalid("email", "must be an email address")
	}
	if emp.Salary.IsNegative() {
		return apperr.Invalid("salary", "must not be negative")
	}
	if emp.Performance.IsNegative() {
		return apperr.Invalid("performance", "must not be negative")
	}
	if emp.Rank < 1 {
		return apperr.Invalid("rank", "must be at least 1")
	}
	if len(emp.Grade) != 1 || emp.Grade[0] < 'A' || emp.Grade[0] > 'D' {
		return apperr.Invalid("grade", "must be one of A, B, C, D")
	}
	if emp.HireDate != nil && emp.ExitDate != nil && emp.ExitDate.Before(*emp.HireDate) {
		return apperr.Invalid("exit_date", "must not be before hire date")
	}
	return nil
}

func checkReferences(ctx context.Context, tx TxStore, departmentID, positionID *int64) error {
	if departmentID != nil {
		ok, err := tx.DepartmentExists(ctx, *departmentID)
		if err != nil {
			return apperr.Internal("check department", err)
		}
		if !ok {
			return apperr.NotFound("department_id", fmt.Sprintf("department %d not found", *departmentID))
		}
	}
	if positionID != nil {
		ok, err := tx.PositionExists(ctx, *positionID)
		if err != nil {
			return apperr.Internal("check position", err)
		}
		if !ok {
			return apperr.NotFound("position_id", fmt.Sprintf("position %d not found", *positionID))
		}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (Employee, error) {
	emp, err := s.store.GetEmployee(ctx, id)
	if errors.Is(err, ErrEmployeeNotFound) {
		return Employee{}, apperr.NotFound("id", fmt.Sprintf("employee %d not found", id))
	}
	if err != nil {
		return Employee{}, apperr.Internal("load employee", err)
	}
	return emp, nil
}

// ForUser returns the employee linked to a login.
func (s *Service) ForUser(ctx context.Context, userID int64) (Employee, error) {
	emp, err := s.store.GetEmployeeByUserID(ctx, userID)
	if errors.Is(err, ErrEmployeeNotFound) {
		return Employee{}, apperr.NotFound("user", "no employee record is linked to this account")
	}
	if err != nil {
		return Employee{}, apperr.Internal("load employee", err)
	}
	return emp, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Employee, error) {
	items, err := s.store.ListEmployees(ctx, filter)
	if err != nil {
		return nil, apperr.Internal("list employees", err)
	}
	return items, nil
}

// Update applies a patch and writes one audit entry with the changed fields.
func (s *Service) Update(ctx context.Context, actor audit.Actor, id int64, patch Patch) (Employee, error) {
	var updated Employee
	err := s.store.WithTx(ctx, func(tx TxStore) error {
		current, err := tx.GetEmployeeForUpdate(ctx, id)
		if errors.Is(err, ErrEmployeeNotFound) {
			return apperr.NotFound("id", fmt.Sprintf("employee %d not found", id))
		}
		if err != nil {
			return apperr.Internal("load employee", err)
		}

		next := applyPatch(current, patch)
		if err := validateEmployee(next); err != nil {
			return err
		}
		if err := checkReferences(ctx, tx, changedRef(current.DepartmentID, next.DepartmentID), changedRef(current.PositionID, next.PositionID)); err != nil {
			return err
		}
		next.normalize()

		changes := audit.Diff(current.snapshot(), next.snapshot())
		if len(changes) == 0 {
			updated = current
			return nil
		}
		updated, err = tx.UpdateEmployee(ctx, next)
		if err != nil {
			return apperr.Internal("update employee", err)
		}
		if err := tx.AppendLog(ctx, audit.Entry{
			ActorEmail: actor.Email,
			Action:     audit.ActionUpdate,
			ModelName:  ModelEmployee,
			ObjectID:   strconv.FormatInt(id, 10),
			Changes:    changes,
			LogType:    audit.LogTypeOperation,
		}); err != nil {
			return apperr.Internal("log employee update", err)
		}
		return nil
	})
	if err != nil {
		return Employee{}, err
	}
	return updated, nil
}

// Terminate sets the exit date, which makes the employee inactive in the
// same write.
func (s *Service) Terminate(ctx context.Context, actor audit.Actor, id int64, exitDate time.Time) (Employee, error) {
	if exitDate.IsZero() {
		return Employee{}, apperr.Invalid("exit_date", "is required")
	}
	return s.Update(ctx, actor, id, Patch{ExitDate: &exitDate})
}

func applyPatch(emp Employee, p Patch) Employee {
	if p.FirstName != nil {
		emp.FirstName = NormalizeName(*p.FirstName)
	}
	if p.LastName != nil {
		emp.LastName = NormalizeName(*p.LastName)
	}
	if p.Email != nil {
		emp.Email = strings.ToLower(strings.TrimSpace(*p.Email))
	}
	if p.Phone != nil {
		emp.Phone = strings.TrimSpace(*p.Phone)
	}
	if p.HireDate != nil {
		emp.HireDate = p.HireDate
	}
	if p.ExitDate != nil {
		emp.ExitDate = p.ExitDate
	}
	if p.ClearExitDate {
		emp.ExitDate = nil
	}
	if p.Salary != nil {
		emp.Salary = money.NewAmount(*p.Salary)
	}
	if p.Performance != nil {
		emp.Performance = *p.Performance
	}
	if p.Rank != nil {
		emp.Rank = *p.Rank
	}
	if p.Grade != nil {
		emp.Grade = strings.ToUpper(strings.TrimSpace(*p.Grade))
	}
	if p.DepartmentID != nil {
		emp.DepartmentID = p.DepartmentID
	}
	if p.PositionID != nil {
		emp.PositionID = p.PositionID
	}
	return emp
}

func changedRef(before, after *int64) *int64 {
	if after == nil || (before != nil && *before == *after) {
		return nil
	}
	return after
}

func (s *Service) CreateDepartment(ctx context.Context, actor audit.Actor, name string, budget *decimal.Decimal) (Department, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return Department{}, apperr.Invalid("name", "is required")
	}
	if len(name) > 100 {
		return Department{}, apperr.Invalid("name", "must be at most 100 characters")
	}
	dep := Department{Name: name}
	if budget != nil {
		if budget.IsNegative() {
			return Department{}, apperr.Invalid("budget", "must not be negative")
		}
		amount := money.NewAmount(*budget)
		dep.Budget = &amount
	}

	var created Department
	err := s.store.WithTx(ctx, func(tx TxStore) error {
		var err error
		created, err = tx.InsertDepartment(ctx, dep)
		if errors.Is(err, ErrDuplicateDepartment) {
			return apperr.Conflict("name", fmt.Sprintf("department %q already exists", name))
		}
		if err != nil {
			return apperr.Internal("store department", err)
		}
		changes := map[string]any{"name": created.Name}
		if created.Budget != nil {
			changes["budget"] = money.Format(created.Budget.Decimal)
		}
		if err := tx.AppendLog(ctx, audit.Entry{
			ActorEmail: actor.Email,
			Action:     audit.ActionCreate,
			ModelName:  ModelDepartment,
			ObjectID:   strconv.FormatInt(created.ID, 10),
			Changes:    changes,
		}); err != nil {
			return apperr.Internal("log department", err)
		}
		return nil
	})
	if err != nil {
		return Department{}, err
	}
	return created, nil
}

func (s *Service) ListDepartments(ctx context.Context) ([]Department, error) {
	items, err := s.store.ListDepartments(ctx)
	if err != nil {
		return nil, apperr.Internal("list departments", err)
	}
	return items, nil
}

func (s *Service) CreatePosition(ctx context.Context, actor audit.Actor, title string) (Position, error) {
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return Position{}, apperr.Invalid("title", "is required")
	}
	var created Position
	err := s.store.WithTx(ctx, func(tx TxStore) error {
		var err error
		created, err = tx.InsertPosition(ctx, Position{Title: title})
		if errors.Is(err, ErrDuplicatePosition) {
			return apperr.Conflict("title", fmt.Sprintf("position %q already exists", title))
		}
		if err != nil {
			return apperr.Internal("store position", err)
		}
		if err := tx.AppendLog(ctx, audit.Entry{
			ActorEmail: actor.Email,
			Action:     audit.ActionCreate,
			ModelName:  ModelPosition,
			ObjectID:   strconv.FormatInt(created.ID, 10),
			Changes:    map[string]any{"title": created.Title},
		}); err != nil {
			return apperr.Internal("log position", err)
		}
		return nil
	})
	if err != nil {
		return Position{}, err
	}
	return created, nil
}

func (s *Service) ListPositions(ctx context.Context) ([]Position, error) {
	items, err := s.store.ListPositions(ctx)
	if err != nil {
		return nil, apperr.Internal("list positions", err)
	}
	return items, nil
}
