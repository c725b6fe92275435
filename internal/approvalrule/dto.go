package approvalrule

import "strings"

const DefaultMinimumApprovalPercentage = 100

// CreateRuleDTO is the admin payload for a new rule. The approvers array must
// be present, though it may be empty. Omitted flags take the defaults: not
// manager-approver, 100%, active.
type CreateRuleDTO struct {
	Name                      string                `json:"name" validate:"required,max=200"`
	Category                  string                `json:"category" validate:"required,max=100"`
	IsManagerApprover         *bool                 `json:"is_manager_approver,omitempty"`
	Approvers                 []Approver            `json:"approvers" validate:"required,dive"`
	MinimumApprovalPercentage *int                  `json:"minimum_approval_percentage,omitempty" validate:"omitempty,gte=0,lte=100"`
	ConditionalApprovers      []ConditionalApprover `json:"conditional_approvers" validate:"dive"`
	IsActive                  *bool                 `json:"is_active,omitempty"`
}

func (d *CreateRuleDTO) normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.Category = strings.TrimSpace(d.Category)
}

// UpdateRuleDTO replaces only the fields that are present. A present list
// replaces the whole stored list.
type UpdateRuleDTO struct {
	Name                      *string                `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Category                  *string                `json:"category,omitempty" validate:"omitempty,min=1,max=100"`
	IsManagerApprover         *bool                  `json:"is_manager_approver,omitempty"`
	Approvers                 *[]Approver            `json:"approvers,omitempty" validate:"omitempty,dive"`
	MinimumApprovalPercentage *int                   `json:"minimum_approval_percentage,omitempty" validate:"omitempty,gte=0,lte=100"`
	ConditionalApprovers      *[]ConditionalApprover `json:"conditional_approvers,omitempty" validate:"omitempty,dive"`
	IsActive                  *bool                  `json:"is_active,omitempty"`
}

func (d *UpdateRuleDTO) normalize() {
	if d.Name != nil {
		n := strings.TrimSpace(*d.Name)
		d.Name = &n
	}
	if d.Category != nil {
		c := strings.TrimSpace(*d.Category)
		d.Category = &c
	}
}
