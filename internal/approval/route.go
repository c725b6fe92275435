package approval

import (
	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/approvalrule"
	"github.com/frahmantamala/expense-approval/internal/expense"
)

type RouteKind int

const (
	RouteNone RouteKind = iota
	RouteByRule
	RouteByManager
	RouteByAdmin
)

func (k RouteKind) String() string {
	switch k {
	case RouteByRule:
		return "rule"
	case RouteByManager:
		return "manager"
	case RouteByAdmin:
		return "admin"
	default:
		return "none"
	}
}

// Route is the chain an expense follows after submission. Approvers is the
// full ordered chain; for manager and admin routes it holds one user.
type Route struct {
	Kind      RouteKind
	RuleID    *int64
	Approvers []int64
}

// Current is the first approver, or nil for RouteNone.
func (r Route) Current() *int64 {
	if len(r.Approvers) == 0 {
		return nil
	}
	id := r.Approvers[0]
	return &id
}

// Persisted is the value stored on the expense.
func (r Route) Persisted() *expense.RouteKind {
	var k expense.RouteKind
	switch r.Kind {
	case RouteByRule:
		k = expense.RouteRule
	case RouteByManager:
		k = expense.RouteManager
	case RouteByAdmin:
		k = expense.RouteAdmin
	default:
		return nil
	}
	return &k
}

// BuildChain picks the route for a submission. A rule with approvers wins;
// otherwise the employee's manager, then the company admin. managerID and
// adminID must already be checked as usable approvers. The rule's
// isManagerApprover flag is not consulted.
func BuildChain(rule *approvalrule.Rule, managerID, adminID *int64) (Route, error) {
	var ruleID *int64
	if rule != nil {
		id := rule.ID
		ruleID = &id
	}

	switch {
	case rule != nil && rule.HasApprovers():
		return Route{Kind: RouteByRule, RuleID: ruleID, Approvers: rule.OrderedApproverIDs()}, nil
	case managerID != nil:
		return Route{Kind: RouteByManager, RuleID: ruleID, Approvers: []int64{*managerID}}, nil
	case adminID != nil:
		return Route{Kind: RouteByAdmin, RuleID: ruleID, Approvers: []int64{*adminID}}, nil
	default:
		return Route{Kind: RouteNone, RuleID: ruleID}, internal.ErrNoApproverAvailable
	}
}
