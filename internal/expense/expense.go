package expense

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	expenseDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/expense"
)

type Status string

const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

type Action string

const (
	ActionApproved Action = "approved"
	ActionRejected Action = "rejected"
)

func (a Action) Valid() bool {
	return a == ActionApproved || a == ActionRejected
}

// RouteKind records how the chain was built at submission.
type RouteKind string

const (
	RouteRule    RouteKind = "rule"
	RouteManager RouteKind = "manager"
	RouteAdmin   RouteKind = "admin"
)

type HistoryEntry struct {
	ApproverID int64     `json:"approver_id"`
	Action     Action    `json:"action"`
	Comment    *string   `json:"comment,omitempty"`
	ActedAt    time.Time `json:"timestamp"`
}

type Expense struct {
	ID                   int64           `json:"id"`
	EmployeeID           int64           `json:"employee_id"`
	CompanyID            int64           `json:"company_id"`
	Description          string          `json:"description"`
	Category             string          `json:"category"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	AmountInBaseCurrency decimal.Decimal `json:"amount_in_base_currency"`
	BaseCurrency         string          `json:"base_currency"`
	ExchangeRate         decimal.Decimal `json:"exchange_rate"`
	ExpenseDate          time.Time       `json:"expense_date"`
	PaidBy               string          `json:"paid_by"`
	Remarks              *string         `json:"remarks,omitempty"`
	ReceiptRef           *string         `json:"receipt_ref,omitempty"`
	Status               Status          `json:"status"`
	Route                *RouteKind      `json:"route,omitempty"`
	ApprovalRuleID       *int64          `json:"approval_rule_id,omitempty"`
	CurrentApproverID    *int64          `json:"current_approver_id"`
	Version              int64           `json:"version"`
	SubmittedAt          *time.Time      `json:"submitted_at,omitempty"`
	DecidedAt            *time.Time      `json:"decided_at,omitempty"`
	History              []HistoryEntry  `json:"approval_history"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// MarshalJSON adds the derived stalled flag and renders expense_date as a
// plain date.
func (e *Expense) MarshalJSON() ([]byte, error) {
	type alias Expense
	history := e.History
	if history == nil {
		history = []HistoryEntry{}
	}
	a := alias(*e)
	a.History = history
	return json.Marshal(struct {
		*alias
		ExpenseDate string `json:"expense_date"`
		Stalled     bool   `json:"stalled"`
	}{
		alias:       &a,
		ExpenseDate: e.ExpenseDate.Format(DateLayout),
		Stalled:     e.IsStalled(),
	})
}

const DateLayout = "2006-01-02"

// IsStalled reports a pending expense that no approver can move: the chain
// ended below the approval threshold with no conditional override.
func (e *Expense) IsStalled() bool {
	return e.Status == StatusPending && e.CurrentApproverID == nil
}

func (e *Expense) IsTerminal() bool {
	return e.Status == StatusApproved || e.Status == StatusRejected
}

func (e *Expense) IsCurrentApprover(userID int64) bool {
	return e.CurrentApproverID != nil && *e.CurrentApproverID == userID
}

// InHistory reports whether userID has acted on the expense.
func (e *Expense) InHistory(userID int64) bool {
	for _, h := range e.History {
		if h.ApproverID == userID {
			return true
		}
	}
	return false
}

// ApprovedBy reports an approved history entry by userID.
func (e *Expense) ApprovedBy(userID int64) bool {
	for _, h := range e.History {
		if h.ApproverID == userID && h.Action == ActionApproved {
			return true
		}
	}
	return false
}

// ApprovedCount counts every approved entry regardless of chain position.
func (e *Expense) ApprovedCount() int {
	n := 0
	for _, h := range e.History {
		if h.Action == ActionApproved {
			n++
		}
	}
	return n
}

// Clone copies the expense including its history so callers can compute a
// next state without touching the stored one.
func (e *Expense) Clone() *Expense {
	cp := *e
	cp.History = append([]HistoryEntry(nil), e.History...)
	if e.CurrentApproverID != nil {
		id := *e.CurrentApproverID
		cp.CurrentApproverID = &id
	}
	if e.ApprovalRuleID != nil {
		id := *e.ApprovalRuleID
		cp.ApprovalRuleID = &id
	}
	if e.Route != nil {
		r := *e.Route
		cp.Route = &r
	}
	return &cp
}

func ToDataModel(e *Expense) *expenseDatamodel.Expense {
	row := &expenseDatamodel.Expense{
		ID:                   e.ID,
		EmployeeID:           e.EmployeeID,
		CompanyID:            e.CompanyID,
		Description:          e.Description,
		Category:             e.Category,
		Amount:               e.Amount,
		Currency:             e.Currency,
		AmountInBaseCurrency: e.AmountInBaseCurrency,
		BaseCurrency:         e.BaseCurrency,
		ExchangeRate:         e.ExchangeRate,
		ExpenseDate:          e.ExpenseDate,
		PaidBy:               e.PaidBy,
		Remarks:              e.Remarks,
		ReceiptRef:           e.ReceiptRef,
		Status:               string(e.Status),
		ApprovalRuleID:       e.ApprovalRuleID,
		CurrentApproverID:    e.CurrentApproverID,
		Version:              e.Version,
		SubmittedAt:          e.SubmittedAt,
		DecidedAt:            e.DecidedAt,
		CreatedAt:            e.CreatedAt,
		UpdatedAt:            e.UpdatedAt,
	}
	if e.Route != nil {
		r := string(*e.Route)
		row.Route = &r
	}
	row.History = HistoryRows(e.ID, e.History)
	return row
}

func HistoryRows(expenseID int64, entries []HistoryEntry) []expenseDatamodel.ApprovalHistory {
	rows := make([]expenseDatamodel.ApprovalHistory, len(entries))
	for i, h := range entries {
		rows[i] = expenseDatamodel.ApprovalHistory{
			ExpenseID:  expenseID,
			ApproverID: h.ApproverID,
			Action:     string(h.Action),
			Comment:    h.Comment,
			ActedAt:    h.ActedAt,
		}
	}
	return rows
}

func FromDataModel(row *expenseDatamodel.Expense) *Expense {
	e := &Expense{
		ID:                   row.ID,
		EmployeeID:           row.EmployeeID,
		CompanyID:            row.CompanyID,
		Description:          row.Description,
		Category:             row.Category,
		Amount:               row.Amount,
		Currency:             row.Currency,
		AmountInBaseCurrency: row.AmountInBaseCurrency,
		BaseCurrency:         row.BaseCurrency,
		ExchangeRate:         row.ExchangeRate,
		ExpenseDate:          row.ExpenseDate,
		PaidBy:               row.PaidBy,
		Remarks:              row.Remarks,
		ReceiptRef:           row.ReceiptRef,
		Status:               Status(row.Status),
		ApprovalRuleID:       row.ApprovalRuleID,
		CurrentApproverID:    row.CurrentApproverID,
		Version:              row.Version,
		SubmittedAt:          row.SubmittedAt,
		DecidedAt:            row.DecidedAt,
		History:              make([]HistoryEntry, len(row.History)),
		CreatedAt:            row.CreatedAt,
		UpdatedAt:            row.UpdatedAt,
	}
	if row.Route != nil {
		r := RouteKind(*row.Route)
		e.Route = &r
	}
	for i, h := range row.History {
		e.History[i] = HistoryEntry{
			ApproverID: h.ApproverID,
			Action:     Action(h.Action),
			Comment:    h.Comment,
			ActedAt:    h.ActedAt,
		}
	}
	return e
}

func FromDataModelSlice(rows []*expenseDatamodel.Expense) []*Expense {
	result := make([]*Expense, len(rows))
	for i, row := range rows {
		result[i] = FromDataModel(row)
	}
	return result
}
