package auth

import "context"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

const (
	PermEmployeesRead  = "employees.read"
	PermEmployeesWrite = "employees.write"
	PermPayrollRead    = "payroll.read"
	PermPayrollRun     = "payroll.run"
	PermPayslipsSelf   = "payroll.self"
	PermRulesRead      = "rules.read"
	PermRulesWrite     = "rules.write"
	PermRulesExecute   = "rules.execute"
	PermAdjustRead     = "adjustments.read"
	PermAdjustWrite    = "adjustments.write"
	PermApprovalsRead  = "approvals.read"
	PermApprovalsWrite = "approvals.write"
	PermApprovalsAct   = "approvals.decide"
	PermReportsRead    = "reports.read"
	PermAuditRead      = "audit.read"
)

var RolePermissions = map[string][]string{
	RoleAdmin: {
		PermEmployeesRead,
		PermEmployeesWrite,
		PermPayrollRead,
		PermPayrollRun,
		PermPayslipsSelf,
		PermRulesRead,
		PermRulesWrite,
		PermRulesExecute,
		PermAdjustRead,
		PermAdjustWrite,
		PermApprovalsRead,
		PermApprovalsWrite,
		PermApprovalsAct,
		PermReportsRead,
		PermAuditRead,
	},
	RoleUser: {
		PermPayslipsSelf,
		PermApprovalsWrite,
	},
}

func ValidRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}

// StaticPermissions resolves permissions from RolePermissions. The role set
// is fixed, so nothing is stored in the database.
type StaticPermissions struct{}

func (StaticPermissions) HasPermission(_ context.Context, role, permission string) (bool, error) {
	for _, perm := range RolePermissions[role] {
		if perm == permission {
			return true, nil
		}
	}
	return false, nil
}
