package category

import "sort"

// Category is a company's expense category as seen by the approval engine.
// Categories are free-form and case-sensitive; a name only exists once some
// rule or expense uses it.
type Category struct {
	Name         string `json:"name"`
	ActiveRuleID *int64 `json:"active_rule_id,omitempty"`
	RuleCount    int64  `json:"rule_count"`
	ExpenseCount int64  `json:"expense_count"`
}

// HasActiveRule reports whether submissions in this category route by rule.
func (c *Category) HasActiveRule() bool {
	return c.ActiveRuleID != nil
}

// RuleUsage is one category's aggregate over approval_rules.
type RuleUsage struct {
	Name         string
	Rules        int64
	ActiveRuleID *int64
}

// ExpenseUsage is one category's aggregate over expenses.
type ExpenseUsage struct {
	Name     string
	Expenses int64
}

// Merge folds rule and expense usage into one list sorted by name.
func Merge(rules []RuleUsage, expenses []ExpenseUsage) []*Category {
	byName := make(map[string]*Category, len(rules)+len(expenses))
	get := func(name string) *Category {
		c, ok := byName[name]
		if !ok {
			c = &Category{Name: name}
			byName[name] = c
		}
		return c
	}

	for _, r := range rules {
		c := get(r.Name)
		c.RuleCount += r.Rules
		if r.ActiveRuleID != nil {
			id := *r.ActiveRuleID
			c.ActiveRuleID = &id
		}
	}
	for _, e := range expenses {
		get(e.Name).ExpenseCount += e.Expenses
	}

	out := make([]*Category, 0, len(byName))
	for _, c := range byName {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
