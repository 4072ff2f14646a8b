package audit

import (
	"strings"
	"testing"

	"paydesk/internal/domain/apperr"
)

func TestEntryNormalizedDefaults(t *testing.T) {
	entry, err := Entry{Action: " create ", ModelName: "Payroll"}.normalized()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if entry.LogType != LogTypeOperation {
		t.Fatalf("expected default log type operation, got %q", entry.LogType)
	}
	if entry.Action != "create" {
		t.Fatalf("expected trimmed action, got %q", entry.Action)
	}
	if entry.ActorEmail != System.Email {
		t.Fatalf("expected system actor, got %q", entry.ActorEmail)
	}
}

func TestEntryNormalizedRejectsBadInput(t *testing.T) {
	cases := []struct {
		entry Entry
		field string
	}{
		{Entry{ModelName: "Payroll"}, "action"},
		{Entry{Action: "create"}, "modelName"},
		{Entry{Action: "create", ModelName: "Payroll", LogType: "debug"}, "logType"},
	}
	for _, tc := range cases {
		_, err := tc.entry.normalized()
		if apperr.KindOf(err) != apperr.KindInvalidInput {
			t.Fatalf("expected invalid input for %+v, got %v", tc.entry, err)
		}
		if apperr.FieldOf(err) != tc.field {
			t.Fatalf("expected field %s, got %s", tc.field, apperr.FieldOf(err))
		}
	}
}

func TestBuildBaseQueryFilters(t *testing.T) {
	query, args := buildBaseQuery("SELECT COUNT(1)", Filter{LogType: LogTypeSystem, ModelName: "RuleConfig"})
	if !strings.Contains(query, "log_type = $1") || !strings.Contains(query, "model_name = $2") {
		t.Fatalf("unexpected query %q", query)
	}
	if len(args) != 2 || args[0] != LogTypeSystem || args[1] != "RuleConfig" {
		t.Fatalf("unexpected args %v", args)
	}

	query, args = buildBaseQuery("SELECT id", Filter{})
	if strings.Contains(query, "$1") || len(args) != 0 {
		t.Fatalf("expected unfiltered query, got %q %v", query, args)
	}
}

func TestDiffReportsChangedFieldsOnly(t *testing.T) {
	diff := Diff(
		map[string]any{"amount": "100.00", "type": "Travel"},
		map[string]any{"amount": "120.00", "type": "Travel"},
	)
	if len(diff) != 2 {
		t.Fatalf("expected one changed field pair, got %v", diff)
	}
	if diff["old_amount"] != "100.00" || diff["new_amount"] != "120.00" {
		t.Fatalf("unexpected diff %v", diff)
	}
	if _, ok := diff["old_type"]; ok {
		t.Fatal("unchanged field must not appear in diff")
	}
}

func TestSnapshotPrefixesFields(t *testing.T) {
	snap := Snapshot("old_", map[string]any{"amount": "5.00"})
	if snap["old_amount"] != "5.00" || len(snap) != 1 {
		t.Fatalf("unexpected snapshot %v", snap)
	}
}
