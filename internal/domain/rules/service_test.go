package rules

import (
	"context"
	"testing"
	"time"

	"paydesk/internal/domain/apperr"
	"paydesk/internal/domain/audit"
)

type allowanceRow struct {
	id  int64
	row NewAllowance
}

type fakeData struct {
	rules      map[int64]RuleConfig
	allowances []allowanceRow
	logs       []audit.Entry
	nextID     int64
}

func (d fakeData) clone() fakeData {
	rules := make(map[int64]RuleConfig, len(d.rules))
	for k, v := range d.rules {
		rules[k] = v
	}
	return fakeData{
		rules:      rules,
		allowances: append([]allowanceRow(nil), d.allowances...),
		logs:       append([]audit.Entry(nil), d.logs...),
		nextID:     d.nextID,
	}
}

type fakeStore struct {
	departments map[int64]bool
	candidates  []Candidate
	terminated  []Candidate
	data        fakeData
	failInsert  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		departments: map[int64]bool{10: true, 20: true, 30: true},
		candidates:  rankedCandidates(),
		data:        fakeData{rules: map[int64]RuleConfig{}},
	}
}

func (f *fakeStore) WithTx(_ context.Context, fn func(TxStore) error) error {
	tx := &fakeTx{store: f, data: f.data.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	f.data = tx.data
	return nil
}

func (f *fakeStore) ListRules(context.Context) ([]RuleConfig, error) {
	var out []RuleConfig
	for _, r := range f.data.rules {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) GetRule(_ context.Context, id int64) (RuleConfig, error) {
	r, ok := f.data.rules[id]
	if !ok {
		return RuleConfig{}, ErrRuleNotFound
	}
	return r, nil
}

type fakeTx struct {
	store *fakeStore
	data  fakeData
}

func (t *fakeTx) MissingDepartments(_ context.Context, ids []int64) ([]int64, error) {
	var missing []int64
	for _, id := range ids {
		if !t.store.departments[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (t *fakeTx) InsertRule(_ context.Context, rule RuleConfig) (RuleConfig, error) {
	t.data.nextID++
	rule.ID = t.data.nextID
	rule.CreatedAt = time.Now()
	t.data.rules[rule.ID] = rule
	return rule, nil
}

func (t *fakeTx) GetRule(_ context.Context, id int64) (RuleConfig, error) {
	r, ok := t.data.rules[id]
	if !ok {
		return RuleConfig{}, ErrRuleNotFound
	}
	return r, nil
}

func (t *fakeTx) SetActive(_ context.Context, id int64, active bool) error {
	r := t.data.rules[id]
	r.IsActive = active
	t.data.rules[id] = r
	return nil
}

func (t *fakeTx) Candidates(_ context.Context, includeInactive bool) ([]Candidate, error) {
	if !includeInactive {
		return t.store.candidates, nil
	}
	out := append([]Candidate(nil), t.store.candidates...)
	return append(out, t.store.terminated...), nil
}

func (t *fakeTx) InsertAllowance(_ context.Context, row NewAllowance) (int64, bool, error) {
	if row.EmployeeID == t.store.failInsert {
		return 0, false, context.DeadlineExceeded
	}
	for _, existing := range t.data.allowances {
		if existing.row.EmployeeID == row.EmployeeID && existing.row.SourceKey == row.SourceKey && existing.row.EffectiveDate.Equal(row.EffectiveDate) {
			return 0, false, nil
		}
	}
	t.data.nextID++
	t.data.allowances = append(t.data.allowances, allowanceRow{id: t.data.nextID, row: row})
	return t.data.nextID, true, nil
}

func (t *fakeTx) AppendLog(_ context.Context, entry audit.Entry) error {
	t.data.logs = append(t.data.logs, entry)
	return nil
}

var (
	admin    = audit.Actor{UserID: 1, Email: "admin@example.com"}
	ruleDay  = time.Date(2024, time.May, 6, 14, 0, 0, 0, time.UTC)
	fixedNow = func() time.Time { return ruleDay }
)

func executeReq() ExecuteRequest {
	return ExecuteRequest{Rank: "3", Comparator: ">", CalcMode: CalcPercent, CalcValue: dec("10")}
}

func TestExecuteCreatesAllowanceAndLogPerEmployee(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, WithClock(fixedNow))

	result, err := svc.Execute(context.Background(), admin, executeReq())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Status != StatusSuccess || result.Affected != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(store.data.allowances) != 2 || len(store.data.logs) != 2 {
		t.Fatalf("expected 2 allowances and 2 logs, got %d and %d", len(store.data.allowances), len(store.data.logs))
	}
	first := store.data.allowances[0]
	if first.row.EmployeeID != 4 || first.row.Amount.StringFixed(2) != "5000.00" {
		t.Fatalf("unexpected allowance %+v", first.row)
	}
	if first.row.Type != AllowanceType {
		t.Fatalf("unexpected allowance type %q", first.row.Type)
	}
	if first.row.EffectiveDate.Format("2006-01-02") != "2024-05-06" {
		t.Fatalf("unexpected effective date %s", first.row.EffectiveDate)
	}
	log := store.data.logs[0]
	if log.Action != audit.ActionRuleExecuted || log.ModelName != ModelAllowance {
		t.Fatalf("unexpected log %+v", log)
	}
	changes := log.Changes.(map[string]any)
	if changes["adjustment"] != "5000.00" {
		t.Fatalf("unexpected log changes %v", changes)
	}
}

func TestExecuteHonoursExceptions(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, WithClock(fixedNow))
	req := executeReq()
	req.Exceptions = []int64{30}

	result, err := svc.Execute(context.Background(), admin, req)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Affected != 1 || store.data.allowances[0].row.EmployeeID != 4 {
		t.Fatalf("expected only employee 4, got %+v", store.data.allowances)
	}
}

func TestExecuteSameDayRepeatIsDeduplicated(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, WithClock(fixedNow))
	ctx := context.Background()

	if _, err := svc.Execute(ctx, admin, executeReq()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	result, err := svc.Execute(ctx, admin, executeReq())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.Affected != 0 {
		t.Fatalf("expected repeat to affect nobody, got %d", result.Affected)
	}
	if len(store.data.allowances) != 2 || len(store.data.logs) != 2 {
		t.Fatalf("expected no new rows, got %d allowances", len(store.data.allowances))
	}

	next := NewService(store, WithClock(func() time.Time { return ruleDay.AddDate(0, 0, 1) }))
	result, err = next.Execute(ctx, admin, executeReq())
	if err != nil || result.Affected != 2 {
		t.Fatalf("expected next-day run to apply again, got %+v %v", result, err)
	}
}

func TestExecuteRollsBackOnFailure(t *testing.T) {
	store := newFakeStore()
	store.failInsert = 5
	svc := NewService(store, WithClock(fixedNow))

	_, err := svc.Execute(context.Background(), admin, executeReq())
	if apperr.KindOf(err) != apperr.KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
	if len(store.data.allowances) != 0 || len(store.data.logs) != 0 {
		t.Fatal("expected nothing committed")
	}
}

func TestExecuteRejectsInvalidInput(t *testing.T) {
	svc := NewService(newFakeStore())
	cases := []struct {
		mutate func(*ExecuteRequest)
		field  string
	}{
		{func(r *ExecuteRequest) { r.Comparator = ">=" }, "comparator"},
		{func(r *ExecuteRequest) { r.Comparator = "" }, "comparator"},
		{func(r *ExecuteRequest) { r.CalcMode = "ratio" }, "calcMode"},
		{func(r *ExecuteRequest) { r.Rank = "boss" }, "rank"},
		{func(r *ExecuteRequest) { r.CalcValue = dec("-5") }, "calcValue"},
	}
	for _, tc := range cases {
		req := executeReq()
		tc.mutate(&req)
		_, err := svc.Execute(context.Background(), admin, req)
		if apperr.KindOf(err) != apperr.KindInvalidInput || apperr.FieldOf(err) != tc.field {
			t.Fatalf("expected invalid %s, got %v", tc.field, err)
		}
	}
}

func ruleSpec() RuleSpec {
	return RuleSpec{
		Name:               "Senior uplift",
		ConditionType:      ConditionRank,
		Comparator:         ">=",
		Threshold:          "senior",
		CalculationType:    CalcFixed,
		Value:              dec("250"),
		ExcludeDepartments: []int64{30, 30},
	}
}

func TestConfigurePersistsRuleAndSystemLog(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store)

	rule, err := svc.Configure(context.Background(), admin, ruleSpec())
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if rule.ID == 0 || !rule.IsActive || rule.CreatedBy != admin.UserID {
		t.Fatalf("unexpected rule %+v", rule)
	}
	if len(rule.ExcludeDepartments) != 1 {
		t.Fatalf("expected deduplicated exclusions, got %v", rule.ExcludeDepartments)
	}
	if len(store.data.logs) != 1 || store.data.logs[0].LogType != audit.LogTypeSystem || store.data.logs[0].ModelName != ModelRuleConfig {
		t.Fatalf("unexpected logs %+v", store.data.logs)
	}
}

func TestConfigureValidation(t *testing.T) {
	svc := NewService(newFakeStore())
	cases := []struct {
		mutate func(*RuleSpec)
		kind   apperr.Kind
		field  string
	}{
		{func(s *RuleSpec) { s.Name = " " }, apperr.KindInvalidInput, "rule_name"},
		{func(s *RuleSpec) { s.ConditionType = "age" }, apperr.KindInvalidInput, "condition_type"},
		{func(s *RuleSpec) { s.Comparator = "!=" }, apperr.KindInvalidInput, "comparator"},
		{func(s *RuleSpec) { s.Threshold = "boss" }, apperr.KindInvalidInput, "threshold"},
		{func(s *RuleSpec) { s.CalculationType = "ratio" }, apperr.KindInvalidInput, "calculation_type"},
		{func(s *RuleSpec) { s.Value = dec("-250") }, apperr.KindInvalidInput, "value"},
		{func(s *RuleSpec) { s.ConditionType = ConditionGrade; s.Threshold = "Z" }, apperr.KindInvalidInput, "threshold"},
		{func(s *RuleSpec) { s.ConditionType = ConditionSalaryGT; s.Threshold = "lots" }, apperr.KindInvalidInput, "threshold"},
		{func(s *RuleSpec) { s.ConditionType = ConditionDepartment; s.Comparator = ">"; s.Threshold = "10" }, apperr.KindInvalidInput, "comparator"},
		{func(s *RuleSpec) { s.ExcludeDepartments = []int64{99} }, apperr.KindNotFound, "exclude_departments"},
		{func(s *RuleSpec) { s.ConditionType = ConditionDepartment; s.Comparator = "="; s.Threshold = "99" }, apperr.KindNotFound, "threshold"},
	}
	for i, tc := range cases {
		spec := ruleSpec()
		tc.mutate(&spec)
		_, err := svc.Configure(context.Background(), admin, spec)
		if apperr.KindOf(err) != tc.kind || apperr.FieldOf(err) != tc.field {
			t.Fatalf("case %d: expected %s on %s, got %v", i, tc.kind, tc.field, err)
		}
	}
}

func TestExecuteConfiguredUsesStoredRule(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, WithClock(fixedNow))
	ctx := context.Background()

	rule, err := svc.Configure(ctx, admin, ruleSpec())
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	result, err := svc.ExecuteConfigured(ctx, admin, rule.ID)
	if err != nil {
		t.Fatalf("execute configured: %v", err)
	}
	// senior and above minus department 30: employees 3 and 4.
	if result.Affected != 2 {
		t.Fatalf("expected 2 affected, got %d", result.Affected)
	}
	for _, a := range store.data.allowances {
		if a.row.Amount.StringFixed(2) != "250.00" || a.row.SourceKey != "rule:1" {
			t.Fatalf("unexpected allowance %+v", a.row)
		}
	}

	if _, err := svc.SetActive(ctx, admin, rule.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := svc.ExecuteConfigured(ctx, admin, rule.ID); apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Fatalf("expected inactive rule rejected, got %v", err)
	}
	if _, err := svc.ExecuteConfigured(ctx, admin, 404); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestExecuteReachesTerminatedEmployees(t *testing.T) {
	store := newFakeStore()
	store.terminated = []Candidate{{ID: 9, Rank: 5, Salary: dec("10000"), Grade: "B", DepartmentID: deptID(10)}}
	svc := NewService(store, WithClock(fixedNow))

	result, err := svc.Execute(context.Background(), admin, executeReq())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Affected != 3 {
		t.Fatalf("expected employees 4, 5 and 9, got %d", result.Affected)
	}
	last := store.data.allowances[len(store.data.allowances)-1].row
	if last.EmployeeID != 9 || last.Amount.StringFixed(2) != "1000.00" {
		t.Fatalf("unexpected allowance for terminated employee %+v", last)
	}
}

func TestExecuteConfiguredSkipsTerminatedEmployees(t *testing.T) {
	store := newFakeStore()
	store.terminated = []Candidate{{ID: 9, Rank: 5, Salary: dec("10000"), Grade: "B", DepartmentID: deptID(10)}}
	svc := NewService(store, WithClock(fixedNow))
	ctx := context.Background()

	rule, err := svc.Configure(ctx, admin, ruleSpec())
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	result, err := svc.ExecuteConfigured(ctx, admin, rule.ID)
	if err != nil {
		t.Fatalf("execute configured: %v", err)
	}
	if result.Affected != 2 {
		t.Fatalf("expected only active employees 3 and 4, got %d", result.Affected)
	}
	for _, a := range store.data.allowances {
		if a.row.EmployeeID == 9 {
			t.Fatal("terminated employee must not receive a stored-rule allowance")
		}
	}
}

func TestConfiguredValueKeepsFullScale(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, WithClock(fixedNow))
	ctx := context.Background()

	spec := ruleSpec()
	spec.CalculationType = CalcPercent
	spec.Value = dec("2.125")
	rule, err := svc.Configure(ctx, admin, spec)
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if !rule.Value.Equal(dec("2.125")) {
		t.Fatalf("expected stored value 2.125, got %s", rule.Value)
	}
	if _, err := svc.ExecuteConfigured(ctx, admin, rule.ID); err != nil {
		t.Fatalf("execute configured: %v", err)
	}
	// 40000 * 2.125% = 850.00, where a value rounded to 2.13 would give 852.00.
	first := store.data.allowances[0].row
	if first.EmployeeID != 3 || first.Amount.StringFixed(2) != "850.00" {
		t.Fatalf("unexpected allowance %+v", first)
	}
}
