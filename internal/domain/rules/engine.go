package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"paydesk/internal/domain/money"
)

var rankNames = map[string]int{
	"junior": 1,
	"mid":    2,
	"senior": 3,
	"lead":   4,
}

// ParseRank accepts a level name or a positive integer.
func ParseRank(raw string) (int, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if level, ok := rankNames[value]; ok {
		return level, nil
	}
	level, err := strconv.Atoi(value)
	if err != nil || level < 1 {
		return 0, fmt.Errorf("rank %q is not a known level", raw)
	}
	return level, nil
}

// GradeLevel orders grades A through D as 1 through 4.
func GradeLevel(raw string) (int, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if len(value) != 1 || value[0] < 'A' || value[0] > 'D' {
		return 0, fmt.Errorf("grade %q must be one of A, B, C, D", raw)
	}
	return int(value[0]-'A') + 1, nil
}

// executeComparators are the operators accepted by an ad hoc run.
var executeComparators = map[string]bool{">": true, "<": true, "==": true}

// configComparators are the operators a stored rule may use.
var configComparators = map[string]bool{"=": true, ">": true, "<": true, ">=": true, "<=": true}

func compare(left, right int, op string) bool {
	switch op {
	case ">":
		return left > right
	case "<":
		return left < right
	case "=", "==":
		return left == right
	case ">=":
		return left >= right
	case "<=":
		return left <= right
	}
	return false
}

func validMode(mode string) bool {
	return mode == CalcPercent || mode == CalcFixed
}

// Adjustment is salary*value/100 in percent mode and value in fixed mode.
func Adjustment(salary decimal.Decimal, mode string, value decimal.Decimal) decimal.Decimal {
	if mode == CalcPercent {
		return money.RoundCorrection(salary.Mul(value).Div(money.Hundred))
	}
	return money.RoundCorrection(value)
}

// SourceKey identifies an ad hoc run so that repeating it on the same day
// does not stack a second allowance.
func SourceKey(rank int, req ExecuteRequest) string {
	exceptions := append([]int64(nil), req.Exceptions...)
	sort.Slice(exceptions, func(i, j int) bool { return exceptions[i] < exceptions[j] })
	parts := []string{
		strconv.Itoa(rank),
		req.Comparator,
		req.CalcMode,
		req.CalcValue.String(),
		fmt.Sprint(exceptions),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "adhoc:" + hex.EncodeToString(sum[:])
}

func ruleSourceKey(id int64) string {
	return "rule:" + strconv.FormatInt(id, 10)
}

func excluded(c Candidate, exclusions map[int64]bool) bool {
	return c.DepartmentID != nil && exclusions[*c.DepartmentID]
}

func exclusionSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// SelectByRank keeps candidates whose rank satisfies op against rank,
// minus those in an excluded department.
func SelectByRank(candidates []Candidate, rank int, op string, exceptions []int64) []Candidate {
	skip := exclusionSet(exceptions)
	var out []Candidate
	for _, c := range candidates {
		if excluded(c, skip) || !compare(c.Rank, rank, op) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Matches evaluates a stored rule's condition against one candidate.
// salary_gt and salary_lt carry their direction in the condition type.
func Matches(rule RuleConfig, c Candidate) bool {
	switch rule.ConditionType {
	case ConditionRank:
		level, err := ParseRank(rule.Threshold)
		return err == nil && compare(c.Rank, level, rule.Comparator)
	case ConditionGrade:
		want, err := GradeLevel(rule.Threshold)
		if err != nil {
			return false
		}
		have, err := GradeLevel(c.Grade)
		return err == nil && compare(have, want, rule.Comparator)
	case ConditionDepartment:
		id, err := strconv.ParseInt(strings.TrimSpace(rule.Threshold), 10, 64)
		return err == nil && c.DepartmentID != nil && *c.DepartmentID == id
	case ConditionSalaryGT, ConditionSalaryLT:
		threshold, err := money.Parse(rule.Threshold)
		if err != nil {
			return false
		}
		if rule.ConditionType == ConditionSalaryGT {
			return c.Salary.GreaterThan(threshold)
		}
		return c.Salary.LessThan(threshold)
	}
	return false
}

// SelectByRule applies a stored rule and its exclusions.
func SelectByRule(candidates []Candidate, rule RuleConfig) []Candidate {
	skip := exclusionSet(rule.ExcludeDepartments)
	var out []Candidate
	for _, c := range candidates {
		if excluded(c, skip) || !Matches(rule, c) {
			continue
		}
		out = append(out, c)
	}
	return out
}
