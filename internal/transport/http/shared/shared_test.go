package shared

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type calcPayload struct {
	EmployeeIDs []int64 `json:"employee_ids" validate:"required,min=1,unique,dive,gt=0"`
	Comparator  string  `json:"comparator" validate:"omitempty,oneof=> < =="`
	Email       string  `json:"email" validate:"omitempty,email"`
}

func TestStructValidationUsesJSONNames(t *testing.T) {
	v := NewValidator()
	v.Struct(calcPayload{EmployeeIDs: []int64{1, 1}, Comparator: "!=", Email: "nope"})
	issues := v.Issues()
	fields := map[string]string{}
	for _, issue := range issues {
		fields[issue.Field] = issue.Reason
	}
	if fields["employee_ids"] != "must not contain duplicates" {
		t.Fatalf("expected duplicate issue, got %v", issues)
	}
	if _, ok := fields["comparator"]; !ok {
		t.Fatalf("expected comparator issue, got %v", issues)
	}
	if fields["email"] != "must be a valid email address" {
		t.Fatalf("expected email issue, got %v", issues)
	}
}

func TestStructValidationMissingList(t *testing.T) {
	v := NewValidator()
	v.Struct(calcPayload{})
	if !v.HasIssues() || v.Issues()[0].Field != "employee_ids" {
		t.Fatalf("expected employee_ids issue, got %v", v.Issues())
	}
}

func TestDecimalField(t *testing.T) {
	v := NewValidator()
	if got := v.Decimal("performance", json.RawMessage(`"1.10"`), false, decimal.NewFromInt(1)); !got.Equal(decimal.RequireFromString("1.1")) {
		t.Fatalf("unexpected value %s", got)
	}
	if got := v.Decimal("allowance", nil, false, decimal.Zero); !got.IsZero() || v.HasIssues() {
		t.Fatalf("expected fallback without issue, got %s %v", got, v.Issues())
	}
	v.Decimal("deduction", json.RawMessage(`"abc"`), false, decimal.Zero)
	v.Decimal("calcValue", nil, true, decimal.Zero)
	if len(v.Issues()) != 2 {
		t.Fatalf("expected two issues, got %v", v.Issues())
	}
}

func TestDecodeJSONFailures(t *testing.T) {
	var dst map[string]any
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	if DecodeJSON(rec, req, &dst, "req-1") {
		t.Fatal("expected decode failure")
	}
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "invalid_payload") {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":"`+strings.Repeat("x", 64)+`"}`))
	req.Body = http.MaxBytesReader(rec, req.Body, 16)
	if DecodeJSON(rec, req, &dst, "req-2") {
		t.Fatal("expected decode failure")
	}
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestPathID(t *testing.T) {
	if id, ok := PathID("42"); !ok || id != 42 {
		t.Fatalf("unexpected %d %v", id, ok)
	}
	for _, raw := range []string{"", "0", "-1", "abc"} {
		if _, ok := PathID(raw); ok {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestParsePagination(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500&offset=20", nil)
	p := ParsePagination(req, 50, 200)
	if p.Limit != 200 || p.Offset != 20 {
		t.Fatalf("unexpected pagination %+v", p)
	}
}

func TestParseDateReturnsUTCCalendarDay(t *testing.T) {
	want := time.Date(2026, time.January, 31, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"2026-01-31", "2026-01-31T23:30:00Z", "2026-02-01T01:30:00+03:00"} {
		got, err := ParseDate(raw)
		if err != nil || !got.Equal(want) {
			t.Fatalf("ParseDate(%s) = %v, %v", raw, got, err)
		}
	}
	v := NewValidator()
	v.Date("pay_date", "31/01/2026")
	issues := v.Issues()
	if len(issues) != 1 || issues[0].Reason != InvalidDateReason {
		t.Fatalf("unexpected issues %+v", issues)
	}
}
