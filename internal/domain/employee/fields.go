package employee

import (
	"github.com/shopspring/decimal"

	"paydesk/internal/domain/auth"
)

// FilterEmployeeFields strips evaluation data an employee should not see on
// their own record. Administrators keep everything.
func FilterEmployeeFields(emp *Employee, user auth.UserContext) {
	if user.Role == auth.RoleAdmin {
		return
	}
	emp.Performance = decimal.Zero
	emp.Grade = ""
}
