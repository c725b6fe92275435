package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeExpenseSubmitted = "expense.submitted"
	EventTypeExpenseAdvanced  = "expense.advanced"
	EventTypeExpenseApproved  = "expense.approved"
	EventTypeExpenseRejected  = "expense.rejected"
	EventTypeExpenseStalled   = "expense.stalled"
)

// ExpenseEventTypes lists every lifecycle event the approval engine emits.
var ExpenseEventTypes = []string{
	EventTypeExpenseSubmitted,
	EventTypeExpenseAdvanced,
	EventTypeExpenseApproved,
	EventTypeExpenseRejected,
	EventTypeExpenseStalled,
}

// ExpenseEvent is published after a lifecycle transition has been committed.
type ExpenseEvent struct {
	BaseEvent
	ExpenseID         int64   `json:"expense_id"`
	CompanyID         int64   `json:"company_id"`
	EmployeeID        int64   `json:"employee_id"`
	ActorID           int64   `json:"actor_id"`
	Status            string  `json:"status"`
	CurrentApproverID *int64  `json:"current_approver_id,omitempty"`
	Comment           *string `json:"comment,omitempty"`
}

type ExpenseEventParams struct {
	ExpenseID         int64
	CompanyID         int64
	EmployeeID        int64
	ActorID           int64
	Status            string
	CurrentApproverID *int64
	Comment           *string
}

func NewExpenseEvent(eventType string, p ExpenseEventParams) *ExpenseEvent {
	data := map[string]interface{}{
		"expense_id":  p.ExpenseID,
		"company_id":  p.CompanyID,
		"employee_id": p.EmployeeID,
		"actor_id":    p.ActorID,
		"status":      p.Status,
	}
	if p.CurrentApproverID != nil {
		data["current_approver_id"] = *p.CurrentApproverID
	}
	if p.Comment != nil {
		data["comment"] = *p.Comment
	}

	return &ExpenseEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now().UTC(),
			Data:      data,
		},
		ExpenseID:         p.ExpenseID,
		CompanyID:         p.CompanyID,
		EmployeeID:        p.EmployeeID,
		ActorID:           p.ActorID,
		Status:            p.Status,
		CurrentApproverID: p.CurrentApproverID,
		Comment:           p.Comment,
	}
}
