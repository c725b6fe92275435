package approvalrule

import "time"

// ApprovalRule rows own their approver lists through child tables. Position
// records submission order so lists read back exactly as written.
type ApprovalRule struct {
	ID                        int64                 `gorm:"primaryKey"`
	CompanyID                 int64                 `gorm:"column:company_id;not null;index:idx_rule_company_category"`
	Name                      string                `gorm:"column:name;not null"`
	Category                  string                `gorm:"column:category;not null;index:idx_rule_company_category"`
	IsManagerApprover         bool                  `gorm:"column:is_manager_approver;not null"`
	MinimumApprovalPercentage int                   `gorm:"column:minimum_approval_percentage;not null"`
	IsActive                  bool                  `gorm:"column:is_active;not null"`
	Approvers                 []Approver            `gorm:"foreignKey:RuleID"`
	ConditionalApprovers      []ConditionalApprover `gorm:"foreignKey:RuleID"`
	CreatedAt                 time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                 time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (ApprovalRule) TableName() string {
	return "approval_rules"
}

type Approver struct {
	ID       int64 `gorm:"primaryKey"`
	RuleID   int64 `gorm:"column:rule_id;not null;index"`
	UserID   int64 `gorm:"column:user_id;not null"`
	Sequence int   `gorm:"column:sequence;not null"`
	Position int   `gorm:"column:position;not null"`
}

func (Approver) TableName() string {
	return "approval_rule_approvers"
}

type ConditionalApprover struct {
	ID          int64 `gorm:"primaryKey"`
	RuleID      int64 `gorm:"column:rule_id;not null;index"`
	UserID      int64 `gorm:"column:user_id;not null"`
	AutoApprove bool  `gorm:"column:auto_approve;not null"`
	Position    int   `gorm:"column:position;not null"`
}

func (ConditionalApprover) TableName() string {
	return "approval_rule_conditional_approvers"
}
