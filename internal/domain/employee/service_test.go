package employee

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"paydesk/internal/domain/apperr"
	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/auth"
)

type fakeData struct {
	users       map[string]int64
	employees   map[int64]Employee
	departments map[int64]Department
	positions   map[int64]Position
	logs        []audit.Entry
	nextID      int64
}

func (d fakeData) clone() fakeData {
	out := fakeData{
		users:       map[string]int64{},
		employees:   map[int64]Employee{},
		departments: map[int64]Department{},
		positions:   map[int64]Position{},
		logs:        append([]audit.Entry(nil), d.logs...),
		nextID:      d.nextID,
	}
	for k, v := range d.users {
		out.users[k] = v
	}
	for k, v := range d.employees {
		out.employees[k] = v
	}
	for k, v := range d.departments {
		out.departments[k] = v
	}
	for k, v := range d.positions {
		out.positions[k] = v
	}
	return out
}

type fakeStore struct {
	data fakeData
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: fakeData{}.clone()}
}

func (f *fakeStore) WithTx(_ context.Context, fn func(TxStore) error) error {
	tx := &fakeTx{data: f.data.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	f.data = tx.data
	return nil
}

func (f *fakeStore) GetEmployee(_ context.Context, id int64) (Employee, error) {
	emp, ok := f.data.employees[id]
	if !ok {
		return Employee{}, ErrEmployeeNotFound
	}
	return emp, nil
}

func (f *fakeStore) GetEmployeeByUserID(_ context.Context, userID int64) (Employee, error) {
	for _, emp := range f.data.employees {
		if emp.UserID != nil && *emp.UserID == userID {
			return emp, nil
		}
	}
	return Employee{}, ErrEmployeeNotFound
}

func (f *fakeStore) ListEmployees(_ context.Context, filter ListFilter) ([]Employee, error) {
	var out []Employee
	for id := int64(1); id <= f.data.nextID; id++ {
		emp, ok := f.data.employees[id]
		if !ok || (filter.ActiveOnly && !emp.IsActive) {
			continue
		}
		out = append(out, emp)
	}
	return out, nil
}

func (f *fakeStore) ListDepartments(context.Context) ([]Department, error) {
	var out []Department
	for _, d := range f.data.departments {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeStore) ListPositions(context.Context) ([]Position, error) {
	var out []Position
	for _, p := range f.data.positions {
		out = append(out, p)
	}
	return out, nil
}

type fakeTx struct {
	data fakeData
}

func (t *fakeTx) id() int64 {
	t.data.nextID++
	return t.data.nextID
}

func (t *fakeTx) InsertUser(_ context.Context, account NewAccount) (int64, bool, error) {
	if _, taken := t.data.users[account.Email]; taken {
		return 0, false, nil
	}
	id := t.id()
	t.data.users[account.Email] = id
	return id, true, nil
}

func (t *fakeTx) InsertEmployee(_ context.Context, emp Employee) (Employee, error) {
	emp.ID = t.id()
	t.data.employees[emp.ID] = emp
	return emp, nil
}

func (t *fakeTx) GetEmployeeForUpdate(_ context.Context, id int64) (Employee, error) {
	emp, ok := t.data.employees[id]
	if !ok {
		return Employee{}, ErrEmployeeNotFound
	}
	return emp, nil
}

func (t *fakeTx) UpdateEmployee(_ context.Context, emp Employee) (Employee, error) {
	t.data.employees[emp.ID] = emp
	return emp, nil
}

func (t *fakeTx) ActiveForUpdate(_ context.Context) ([]Employee, error) {
	var out []Employee
	for id := int64(1); id <= t.data.nextID; id++ {
		if emp, ok := t.data.employees[id]; ok && emp.IsActive {
			out = append(out, emp)
		}
	}
	return out, nil
}

func (t *fakeTx) UpdateSalary(_ context.Context, id int64, salary decimal.Decimal) error {
	emp := t.data.employees[id]
	emp.Salary.Decimal = salary
	t.data.employees[id] = emp
	return nil
}

func (t *fakeTx) DepartmentExists(_ context.Context, id int64) (bool, error) {
	_, ok := t.data.departments[id]
	return ok, nil
}

func (t *fakeTx) PositionExists(_ context.Context, id int64) (bool, error) {
	_, ok := t.data.positions[id]
	return ok, nil
}

func (t *fakeTx) InsertDepartment(_ context.Context, dep Department) (Department, error) {
	for _, existing := range t.data.departments {
		if strings.EqualFold(existing.Name, dep.Name) {
			return Department{}, ErrDuplicateDepartment
		}
	}
	dep.ID = t.id()
	t.data.departments[dep.ID] = dep
	return dep, nil
}

func (t *fakeTx) InsertPosition(_ context.Context, pos Position) (Position, error) {
	for _, existing := range t.data.positions {
		if existing.Title == pos.Title {
			return Position{}, ErrDuplicatePosition
		}
	}
	pos.ID = t.id()
	t.data.positions[pos.ID] = pos
	return pos, nil
}

func (t *fakeTx) AppendLog(_ context.Context, entry audit.Entry) error {
	t.data.logs = append(t.data.logs, entry)
	return nil
}

type sentWelcome struct {
	email, name, password string
}

type fakeNotifier struct {
	sent []sentWelcome
	err  error
}

func (n *fakeNotifier) SendWelcome(_ context.Context, email, name, password string) error {
	n.sent = append(n.sent, sentWelcome{email, name, password})
	return n.err
}

func plainHash(p string) (string, error) {
	return "hash:" + p, nil
}

var hr = audit.Actor{UserID: 1, Email: "hr@example.com"}

func newService(store *fakeStore, notifier *fakeNotifier) *Service {
	return NewService(store, WithNotifier(notifier), WithPasswordHasher(plainHash), WithEmailDomain("company.com"))
}

func hireDate() *time.Time {
	t := time.Date(2021, time.March, 4, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestProvisionCreatesAccountAndSendsWelcome(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	svc := newService(store, notifier)

	out, err := svc.Provision(context.Background(), hr, Draft{
		FirstName: " ada ",
		LastName:  "LOVELACE",
		HireDate:  hireDate(),
		Salary:    decimal.RequireFromString("42000"),
	}, ProvisionOptions{})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if out.Account == nil || out.Account.Email != "ada.lovelace@company.com" || out.Account.Role != auth.RoleUser {
		t.Fatalf("unexpected account %+v", out.Account)
	}
	emp := out.Employee
	if emp.FirstName != "Ada" || emp.LastName != "Lovelace" {
		t.Fatalf("expected normalised names, got %s %s", emp.FirstName, emp.LastName)
	}
	if emp.UserID == nil || *emp.UserID != out.Account.ID {
		t.Fatal("employee must be linked to its account")
	}
	if !emp.IsActive || emp.Rank != 1 || emp.Grade != DefaultGrade || !emp.Performance.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("unexpected defaults %+v", emp)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].password != "al210304" {
		t.Fatalf("unexpected welcome %+v", notifier.sent)
	}
	if len(store.data.logs) != 1 || store.data.logs[0].ModelName != ModelEmployee {
		t.Fatalf("expected one employee log, got %+v", store.data.logs)
	}
}

func TestProvisionSuffixesCollidingEmail(t *testing.T) {
	store := newFakeStore()
	store.data.users["ada.lovelace@company.com"] = 900
	store.data.users["ada.lovelace1@company.com"] = 901
	svc := newService(store, &fakeNotifier{})

	out, err := svc.Provision(context.Background(), hr, Draft{FirstName: "Ada", LastName: "Lovelace"}, ProvisionOptions{})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if out.Account.Email != "ada.lovelace2@company.com" {
		t.Fatalf("expected suffixed email, got %s", out.Account.Email)
	}
}

func TestProvisionSuppressedSkipsAccountAndEmail(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	svc := newService(store, notifier)

	out, err := svc.Provision(context.Background(), hr, Draft{FirstName: "Ada", LastName: "Lovelace"}, ProvisionOptions{SuppressSideEffects: true})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if out.Account != nil || out.Employee.UserID != nil {
		t.Fatal("suppressed provisioning must not create an account")
	}
	if len(notifier.sent) != 0 || len(store.data.users) != 0 {
		t.Fatal("suppressed provisioning must not send email")
	}
	if out.Employee.Email != "ada.lovelace@company.com" {
		t.Fatalf("expected derived email, got %s", out.Employee.Email)
	}
}

func TestProvisionWelcomeFailureDoesNotFail(t *testing.T) {
	store := newFakeStore()
	svc := newService(store, &fakeNotifier{err: errors.New("smtp down")})
	if _, err := svc.Provision(context.Background(), hr, Draft{FirstName: "Ada", LastName: "Lovelace"}, ProvisionOptions{}); err != nil {
		t.Fatalf("expected provisioning to succeed, got %v", err)
	}
}

func TestProvisionValidation(t *testing.T) {
	svc := newService(newFakeStore(), &fakeNotifier{})
	missingDept := int64(44)
	cases := []struct {
		draft Draft
		kind  apperr.Kind
		field string
	}{
		{Draft{LastName: "L"}, apperr.KindInvalidInput, "first_name"},
		{Draft{FirstName: "A"}, apperr.KindInvalidInput, "last_name"},
		{Draft{FirstName: "A", LastName: "L", Grade: "Z"}, apperr.KindInvalidInput, "grade"},
		{Draft{FirstName: "A", LastName: "L", Salary: decimal.NewFromInt(-1)}, apperr.KindInvalidInput, "salary"},
		{Draft{FirstName: "A", LastName: "L", DepartmentID: &missingDept}, apperr.KindNotFound, "department_id"},
	}
	for _, tc := range cases {
		_, err := svc.Provision(context.Background(), hr, tc.draft, ProvisionOptions{})
		if apperr.KindOf(err) != tc.kind || apperr.FieldOf(err) != tc.field {
			t.Fatalf("expected %s on %s, got %v", tc.kind, tc.field, err)
		}
	}
}

func TestBulkCreateSuppressedWritesSummaryOnly(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	svc := newService(store, notifier)

	result, err := svc.BulkCreate(context.Background(), hr, []Draft{
		{FirstName: "Ada", LastName: "Lovelace"},
		{FirstName: "Alan", LastName: "Turing"},
	}, true)
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if result.Created != 2 || len(result.IDs) != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(store.data.logs) != 1 || store.data.logs[0].LogType != audit.LogTypeSystem {
		t.Fatalf("expected one summary log, got %+v", store.data.logs)
	}
	if len(notifier.sent) != 0 || len(store.data.users) != 0 {
		t.Fatal("suppressed bulk create must not provision accounts")
	}
}

func TestBulkCreateRollsBackOnBadRow(t *testing.T) {
	store := newFakeStore()
	svc := newService(store, &fakeNotifier{})

	_, err := svc.BulkCreate(context.Background(), hr, []Draft{
		{FirstName: "Ada", LastName: "Lovelace"},
		{FirstName: "Alan"},
	}, false)
	if apperr.KindOf(err) != apperr.KindInvalidInput || apperr.FieldOf(err) != "employees[1].last_name" {
		t.Fatalf("expected row error, got %v", err)
	}
	if len(store.data.employees) != 0 || len(store.data.users) != 0 {
		t.Fatal("expected nothing committed")
	}
}

func TestUpdateTracksChangesAndActiveFlag(t *testing.T) {
	store := newFakeStore()
	svc := newService(store, &fakeNotifier{})
	ctx := context.Background()

	out, err := svc.Provision(ctx, hr, Draft{FirstName: "Ada", LastName: "Lovelace", Salary: decimal.NewFromInt(40000)}, ProvisionOptions{SuppressSideEffects: true})
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	id := out.Employee.ID

	exit := time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC)
	updated, err := svc.Terminate(ctx, hr, id, exit)
	if err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if updated.IsActive {
		t.Fatal("setting an exit date must deactivate the employee")
	}
	last := store.data.logs[len(store.data.logs)-1]
	changes := last.Changes.(map[string]any)
	if changes["old_is_active"] != true || changes["new_is_active"] != false || changes["new_exit_date"] != "2024-06-30" {
		t.Fatalf("unexpected diff %v", changes)
	}
	if _, ok := changes["old_salary"]; ok {
		t.Fatal("unchanged salary must not be logged")
	}

	before := len(store.data.logs)
	if _, err := svc.Update(ctx, hr, id, Patch{}); err != nil {
		t.Fatalf("empty update: %v", err)
	}
	if len(store.data.logs) != before {
		t.Fatal("a no-op update must not write a log entry")
	}

	reactivated, err := svc.Update(ctx, hr, id, Patch{ClearExitDate: true})
	if err != nil || !reactivated.IsActive {
		t.Fatalf("expected reactivation, got %+v %v", reactivated, err)
	}

	if _, err := svc.Update(ctx, hr, 999, Patch{}); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateDepartmentConflict(t *testing.T) {
	store := newFakeStore()
	svc := newService(store, &fakeNotifier{})
	ctx := context.Background()
	budget := decimal.RequireFromString("1000.555")

	dep, err := svc.CreateDepartment(ctx, hr, "  Finance ", &budget)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if dep.Name != "Finance" || dep.Budget.StringFixed(2) != "1000.56" {
		t.Fatalf("unexpected department %+v", dep)
	}
	if _, err := svc.CreateDepartment(ctx, hr, "finance", nil); apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := svc.CreateDepartment(ctx, hr, " ", nil); apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestCostOfLivingAdjustment(t *testing.T) {
	store := newFakeStore()
	svc := newService(store, &fakeNotifier{})
	ctx := context.Background()

	for _, salary := range []int64{30000, 45000} {
		if _, err := svc.Provision(ctx, hr, Draft{FirstName: "A", LastName: "B", Salary: decimal.NewFromInt(salary)}, ProvisionOptions{SuppressSideEffects: true}); err != nil {
			t.Fatalf("provision: %v", err)
		}
	}
	exit := time.Now()
	leaver, _ := svc.Provision(ctx, hr, Draft{FirstName: "C", LastName: "D", Salary: decimal.NewFromInt(10000), ExitDate: &exit}, ProvisionOptions{SuppressSideEffects: true})

	result, err := svc.ApplyCostOfLivingAdjustment(ctx, hr, decimal.RequireFromString("0.035"))
	if err != nil {
		t.Fatalf("cola: %v", err)
	}
	if result.Adjusted != 2 {
		t.Fatalf("expected 2 adjusted, got %d", result.Adjusted)
	}
	employees, _ := svc.List(ctx, ListFilter{ActiveOnly: true})
	if employees[0].Salary.StringFixed(2) != "31050.00" || employees[1].Salary.StringFixed(2) != "46575.00" {
		t.Fatalf("unexpected salaries %s %s", employees[0].Salary.StringFixed(2), employees[1].Salary.StringFixed(2))
	}
	if got := store.data.employees[leaver.Employee.ID].Salary.StringFixed(2); got != "10000.00" {
		t.Fatalf("inactive salary changed to %s", got)
	}
	if _, err := svc.ApplyCostOfLivingAdjustment(ctx, hr, decimal.NewFromInt(-1)); apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Fatalf("expected invalid rate, got %v", err)
	}
}

func TestImportAndExportCSV(t *testing.T) {
	store := newFakeStore()
	svc := newService(store, &fakeNotifier{})
	ctx := context.Background()

	input := "first_name,last_name,email,phone,hire_date,exit_date,salary,performance,rank,grade,department_id,position_id,is_active\n" +
		"ada,lovelace,,,2021-03-04,,42000,1.2,senior,B,,,\n" +
		"alan,turing,alan@example.com,,,,38000,,2,,,,\n"
	result, err := svc.ImportCSV(ctx, hr, strings.NewReader(input), true)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Created != 2 {
		t.Fatalf("expected 2 created, got %d", result.Created)
	}

	var buf bytes.Buffer
	if err := svc.ExportCSV(ctx, &buf, ListFilter{}); err != nil {
		t.Fatalf("export: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Ada,Lovelace,ada.lovelace@company.com,,2021-03-04,,42000.00,1.2,senior,B,,,true") {
		t.Fatalf("unexpected export %q", out)
	}
	if !strings.Contains(out, "Alan,Turing,alan@example.com") {
		t.Fatalf("expected explicit email kept, got %q", out)
	}

	_, err = svc.ImportCSV(ctx, hr, strings.NewReader("first_name,last_name,salary\nx,y,abc\n"), true)
	if apperr.KindOf(err) != apperr.KindInvalidInput || apperr.FieldOf(err) != "row 2" {
		t.Fatalf("expected row error, got %v", err)
	}
}

func TestFilterEmployeeFields(t *testing.T) {
	emp := Employee{Performance: decimal.RequireFromString("1.3"), Grade: "A"}
	FilterEmployeeFields(&emp, auth.UserContext{Role: auth.RoleAdmin})
	if emp.Grade != "A" {
		t.Fatal("admin should keep evaluation fields")
	}
	FilterEmployeeFields(&emp, auth.UserContext{Role: auth.RoleUser})
	if emp.Grade != "" || !emp.Performance.IsZero() {
		t.Fatal("user should not see evaluation fields")
	}
}
