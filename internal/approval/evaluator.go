package approval

import (
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/approvalrule"
	"github.com/frahmantamala/expense-approval/internal/expense"
)

type Outcome string

const (
	OutcomeAdvanced Outcome = "advanced"
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
	OutcomeStalled  Outcome = "stalled"
)

type Decision struct {
	ActorID int64
	Action  expense.Action
	Comment *string
	At      time.Time
}

// Evaluate computes the state after d without touching e. The returned
// expense carries the new history entry as its last element. rule is the
// snapshot taken for this decision and must be non-nil for rule routes.
func Evaluate(e *expense.Expense, rule *approvalrule.Rule, d Decision) (*expense.Expense, Outcome, error) {
	if e.Status != expense.StatusPending || !e.IsCurrentApprover(d.ActorID) {
		return nil, "", internal.ErrNotAuthorizedApprover
	}
	if !d.Action.Valid() {
		return nil, "", internal.NewValidationFieldError("action", "action must be one of [approved rejected]", internal.ErrCodeInvalidAction)
	}

	next := e.Clone()
	next.History = append(next.History, expense.HistoryEntry{
		ApproverID: d.ActorID,
		Action:     d.Action,
		Comment:    d.Comment,
		ActedAt:    d.At,
	})

	if d.Action == expense.ActionRejected {
		finish(next, expense.StatusRejected, d.At)
		return next, OutcomeRejected, nil
	}

	if !routedByRule(e) {
		finish(next, expense.StatusApproved, d.At)
		return next, OutcomeApproved, nil
	}
	if rule == nil {
		return nil, "", internal.ErrRuleChanged
	}

	order := rule.OrderedApproverIDs()
	pos := indexOf(order, d.ActorID)
	if pos < 0 {
		return nil, "", internal.ErrRuleChanged
	}

	if pos < len(order)-1 {
		following := order[pos+1]
		next.CurrentApproverID = &following
		return next, OutcomeAdvanced, nil
	}

	if meetsThreshold(next.ApprovedCount(), len(order), rule.MinimumApprovalPercentage) || conditionallyApproved(next, rule) {
		finish(next, expense.StatusApproved, d.At)
		return next, OutcomeApproved, nil
	}

	// Threshold unmet with no conditional override: the chain has ended but
	// the expense stays pending for an operator to resolve.
	next.CurrentApproverID = nil
	return next, OutcomeStalled, nil
}

// meetsThreshold checks 100*approved/total >= minPct without integer
// division truncation.
func meetsThreshold(approved, total, minPct int) bool {
	if total == 0 {
		return false
	}
	return approved*100 >= minPct*total
}

// ApprovalPercentage is the share of the chain that approved, truncated.
func ApprovalPercentage(approved, total int) int {
	if total == 0 {
		return 0
	}
	return approved * 100 / total
}

func conditionallyApproved(e *expense.Expense, rule *approvalrule.Rule) bool {
	for _, id := range rule.AutoApproverIDs() {
		if e.ApprovedBy(id) {
			return true
		}
	}
	return false
}

// routedByRule covers rows written before the route column existed by
// falling back to the attached rule id.
func routedByRule(e *expense.Expense) bool {
	if e.Route != nil {
		return *e.Route == expense.RouteRule
	}
	return e.ApprovalRuleID != nil
}

func finish(e *expense.Expense, status expense.Status, at time.Time) {
	e.Status = status
	e.CurrentApproverID = nil
	decided := at
	e.DecidedAt = &decided
}

func indexOf(ids []int64, id int64) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
