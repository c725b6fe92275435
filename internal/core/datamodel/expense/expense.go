package expense

import (
	"time"

	"github.com/shopspring/decimal"
)

type Expense struct {
	ID                   int64             `gorm:"primaryKey"`
	EmployeeID           int64             `gorm:"column:employee_id;not null;index"`
	CompanyID            int64             `gorm:"column:company_id;not null;index"`
	Description          string            `gorm:"column:description;not null"`
	Category             string            `gorm:"column:category;not null"`
	Amount               decimal.Decimal   `gorm:"column:amount;type:numeric(18,2);not null"`
	Currency             string            `gorm:"column:currency;size:3;not null"`
	AmountInBaseCurrency decimal.Decimal   `gorm:"column:amount_in_base_currency;type:numeric(18,2);not null"`
	BaseCurrency         string            `gorm:"column:base_currency;size:3;not null"`
	ExchangeRate         decimal.Decimal   `gorm:"column:exchange_rate;type:numeric(18,8);not null"`
	ExpenseDate          time.Time         `gorm:"column:expense_date;type:date;not null"`
	PaidBy               string            `gorm:"column:paid_by;not null"`
	Remarks              *string           `gorm:"column:remarks"`
	ReceiptRef           *string           `gorm:"column:receipt_ref"`
	Status               string            `gorm:"column:status;not null;index"`
	Route                *string           `gorm:"column:route"`
	ApprovalRuleID       *int64            `gorm:"column:approval_rule_id;index"`
	CurrentApproverID    *int64            `gorm:"column:current_approver_id;index"`
	Version              int64             `gorm:"column:version;not null"`
	SubmittedAt          *time.Time        `gorm:"column:submitted_at"`
	DecidedAt            *time.Time        `gorm:"column:decided_at"`
	History              []ApprovalHistory `gorm:"foreignKey:ExpenseID"`
	CreatedAt            time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Expense) TableName() string {
	return "expenses"
}

// ApprovalHistory is append-only. Rows are ordered by ID.
type ApprovalHistory struct {
	ID         int64     `gorm:"primaryKey"`
	ExpenseID  int64     `gorm:"column:expense_id;not null;index"`
	ApproverID int64     `gorm:"column:approver_id;not null"`
	Action     string    `gorm:"column:action;not null"`
	Comment    *string   `gorm:"column:comment"`
	ActedAt    time.Time `gorm:"column:acted_at;not null"`
}

func (ApprovalHistory) TableName() string {
	return "expense_approval_history"
}
