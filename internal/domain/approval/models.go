package approval

import (
	"time"

	"github.com/shopspring/decimal"

	"paydesk/internal/domain/money"
)

const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"

	TypeSalaryAdjustment = "salary_adjustment"

	ModelApproval = "Approval"
	ModelEmployee = "Employee"
)

type Approval struct {
	ID              int64         `json:"id"`
	EmployeeID      *int64        `json:"employeeId,omitempty"`
	EmployeeName    string        `json:"employeeName,omitempty"`
	RequestType     string        `json:"requestType"`
	Description     string        `json:"description"`
	Status          string        `json:"status"`
	RelatedModel    string        `json:"relatedModel,omitempty"`
	RelatedObjectID *int64        `json:"relatedObjectId,omitempty"`
	ProposedAmount  *money.Amount `json:"proposedAmount,omitempty"`
	CreatedBy       *int64        `json:"createdBy,omitempty"`
	ModifiedBy      *int64        `json:"modifiedBy,omitempty"`
	SubmittedAt     time.Time     `json:"submittedAt"`
	DecidedAt       *time.Time    `json:"decidedAt,omitempty"`
}

type SubmitInput struct {
	EmployeeID      *int64
	RequestType     string
	Description     string
	RelatedModel    string
	RelatedObjectID *int64
	ProposedAmount  *decimal.Decimal
}

type StatusChange struct {
	ID         int64     `json:"id"`
	ApprovalID int64     `json:"approvalId"`
	ChangedBy  string    `json:"changedBy"`
	OldStatus  string    `json:"oldStatus"`
	NewStatus  string    `json:"newStatus"`
	Reason     string    `json:"reason,omitempty"`
	ChangedAt  time.Time `json:"changedAt"`
}

type ListFilter struct {
	Status     string
	EmployeeID int64
}
