package expense

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/core/common/validation"
)

// CreateExpenseDTO is the payload for a new draft expense.
type CreateExpenseDTO struct {
	Description string          `json:"description" validate:"required,max=500"`
	Category    string          `json:"category" validate:"required,max=100"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency" validate:"required,currency_code"`
	ExpenseDate string          `json:"expense_date" validate:"required,datetime=2006-01-02"`
	PaidBy      string          `json:"paid_by" validate:"required,max=100"`
	Remarks     *string         `json:"remarks,omitempty" validate:"omitempty,max=1000"`
	ReceiptRef  *string         `json:"receipt_ref,omitempty" validate:"omitempty,max=500"`
}

func (d *CreateExpenseDTO) normalize() {
	d.Description = strings.TrimSpace(d.Description)
	d.Category = strings.TrimSpace(d.Category)
	d.Currency = strings.ToUpper(strings.TrimSpace(d.Currency))
	d.PaidBy = strings.TrimSpace(d.PaidBy)
}

// Validate runs the struct tags and the money checks the tags cannot express.
func (d CreateExpenseDTO) Validate() error {
	if err := validation.Struct(d); err != nil {
		return err
	}

	b := validation.NewBuilder()
	b.AddIf(!d.Amount.IsPositive(), "amount", "amount must be greater than 0", string(internal.ErrCodeInvalidAmount))
	b.AddIf(d.Amount.Exponent() < -2 && !d.Amount.Equal(d.Amount.Round(2)), "amount", "amount must have at most 2 decimal places", string(internal.ErrCodeInvalidAmount))
	return b.Err()
}

// Date parses ExpenseDate; call after Validate.
func (d CreateExpenseDTO) Date() time.Time {
	t, _ := time.Parse(DateLayout, d.ExpenseDate)
	return t
}

// ListFilter narrows expense listings. A nil EmployeeIDs means the whole
// company.
type ListFilter struct {
	CompanyID   int64
	EmployeeIDs []int64
	Status      *Status
	Limit       int
	Offset      int
}

// DecisionDTO is the approver's action on a pending expense.
type DecisionDTO struct {
	Action  Action  `json:"action" validate:"required,oneof=approved rejected"`
	Comment *string `json:"comment,omitempty" validate:"omitempty,max=1000"`
}
