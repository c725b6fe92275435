package approvalrule

import (
	"sort"
	"time"

	ruleDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/approvalrule"
)

type Approver struct {
	UserID   int64 `json:"user_id" validate:"required,gt=0"`
	Sequence int   `json:"sequence"`
}

type ConditionalApprover struct {
	UserID      int64 `json:"user_id" validate:"required,gt=0"`
	AutoApprove bool  `json:"auto_approve"`
}

// Rule routes expenses of one category within one company. Approvers and
// ConditionalApprovers keep the order they were submitted in; chain order is
// derived from Sequence by OrderedApproverIDs.
type Rule struct {
	ID                        int64                 `json:"id"`
	CompanyID                 int64                 `json:"company_id"`
	Name                      string                `json:"name"`
	Category                  string                `json:"category"`
	IsManagerApprover         bool                  `json:"is_manager_approver"`
	Approvers                 []Approver            `json:"approvers"`
	MinimumApprovalPercentage int                   `json:"minimum_approval_percentage"`
	ConditionalApprovers      []ConditionalApprover `json:"conditional_approvers"`
	IsActive                  bool                  `json:"is_active"`
	CreatedAt                 time.Time             `json:"created_at"`
	UpdatedAt                 time.Time             `json:"updated_at"`
}

// OrderedApproverIDs sorts approvers by ascending sequence. Equal sequences
// keep insertion order.
func (r *Rule) OrderedApproverIDs() []int64 {
	sorted := make([]Approver, len(r.Approvers))
	copy(sorted, r.Approvers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Sequence < sorted[j].Sequence
	})

	ids := make([]int64, len(sorted))
	for i, a := range sorted {
		ids[i] = a.UserID
	}
	return ids
}

func (r *Rule) HasApprovers() bool {
	return len(r.Approvers) > 0
}

// AutoApproverIDs lists conditional approvers flagged autoApprove.
func (r *Rule) AutoApproverIDs() []int64 {
	var ids []int64
	for _, c := range r.ConditionalApprovers {
		if c.AutoApprove {
			ids = append(ids, c.UserID)
		}
	}
	return ids
}

// Clone deep-copies the rule so a decision works against a fixed snapshot.
func (r *Rule) Clone() *Rule {
	cp := *r
	cp.Approvers = append([]Approver(nil), r.Approvers...)
	cp.ConditionalApprovers = append([]ConditionalApprover(nil), r.ConditionalApprovers...)
	return &cp
}

func ToDataModel(r *Rule) *ruleDatamodel.ApprovalRule {
	row := &ruleDatamodel.ApprovalRule{
		ID:                        r.ID,
		CompanyID:                 r.CompanyID,
		Name:                      r.Name,
		Category:                  r.Category,
		IsManagerApprover:         r.IsManagerApprover,
		MinimumApprovalPercentage: r.MinimumApprovalPercentage,
		IsActive:                  r.IsActive,
		CreatedAt:                 r.CreatedAt,
		UpdatedAt:                 r.UpdatedAt,
	}
	row.Approvers = ApproverRows(r.ID, r.Approvers)
	row.ConditionalApprovers = ConditionalApproverRows(r.ID, r.ConditionalApprovers)
	return row
}

func ApproverRows(ruleID int64, approvers []Approver) []ruleDatamodel.Approver {
	rows := make([]ruleDatamodel.Approver, len(approvers))
	for i, a := range approvers {
		rows[i] = ruleDatamodel.Approver{RuleID: ruleID, UserID: a.UserID, Sequence: a.Sequence, Position: i}
	}
	return rows
}

func ConditionalApproverRows(ruleID int64, conditionals []ConditionalApprover) []ruleDatamodel.ConditionalApprover {
	rows := make([]ruleDatamodel.ConditionalApprover, len(conditionals))
	for i, c := range conditionals {
		rows[i] = ruleDatamodel.ConditionalApprover{RuleID: ruleID, UserID: c.UserID, AutoApprove: c.AutoApprove, Position: i}
	}
	return rows
}

func FromDataModel(row *ruleDatamodel.ApprovalRule) *Rule {
	approvers := append([]ruleDatamodel.Approver(nil), row.Approvers...)
	sort.SliceStable(approvers, func(i, j int) bool { return approvers[i].Position < approvers[j].Position })
	conditionals := append([]ruleDatamodel.ConditionalApprover(nil), row.ConditionalApprovers...)
	sort.SliceStable(conditionals, func(i, j int) bool { return conditionals[i].Position < conditionals[j].Position })

	r := &Rule{
		ID:                        row.ID,
		CompanyID:                 row.CompanyID,
		Name:                      row.Name,
		Category:                  row.Category,
		IsManagerApprover:         row.IsManagerApprover,
		MinimumApprovalPercentage: row.MinimumApprovalPercentage,
		IsActive:                  row.IsActive,
		Approvers:                 make([]Approver, len(approvers)),
		ConditionalApprovers:      make([]ConditionalApprover, len(conditionals)),
		CreatedAt:                 row.CreatedAt,
		UpdatedAt:                 row.UpdatedAt,
	}
	for i, a := range approvers {
		r.Approvers[i] = Approver{UserID: a.UserID, Sequence: a.Sequence}
	}
	for i, c := range conditionals {
		r.ConditionalApprovers[i] = ConditionalApprover{UserID: c.UserID, AutoApprove: c.AutoApprove}
	}
	return r
}

func FromDataModelSlice(rows []*ruleDatamodel.ApprovalRule) []*Rule {
	result := make([]*Rule, len(rows))
	for i, row := range rows {
		result[i] = FromDataModel(row)
	}
	return result
}
