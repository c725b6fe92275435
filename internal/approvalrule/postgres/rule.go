package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/approvalrule"
	ruleDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/approvalrule"
)

// RuleRepository implements approvalrule.RepositoryAPI using GORM
type RuleRepository struct {
	db *gorm.DB
}

func NewRuleRepository(db *gorm.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

func (r *RuleRepository) withLists(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Approvers", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("ConditionalApprovers", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") })
}

func (r *RuleRepository) Create(ctx context.Context, rule *approvalrule.Rule) error {
	row := approvalrule.ToDataModel(rule)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return internal.ErrDuplicateActiveRule
		}
		return fmt.Errorf("create approval rule: %w", err)
	}
	rule.ID = row.ID
	rule.CreatedAt = row.CreatedAt
	rule.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *RuleRepository) GetByID(ctx context.Context, id int64) (*approvalrule.Rule, error) {
	var row ruleDatamodel.ApprovalRule
	if err := r.withLists(r.db.WithContext(ctx)).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrRuleNotFound
		}
		return nil, fmt.Errorf("get approval rule %d: %w", id, err)
	}
	return approvalrule.FromDataModel(&row), nil
}

func (r *RuleRepository) ListByCompany(ctx context.Context, companyID int64) ([]*approvalrule.Rule, error) {
	var rows []*ruleDatamodel.ApprovalRule
	err := r.withLists(r.db.WithContext(ctx)).
		Where("company_id = ?", companyID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list approval rules: %w", err)
	}
	return approvalrule.FromDataModelSlice(rows), nil
}

func (r *RuleRepository) FindActive(ctx context.Context, companyID int64, category string) ([]*approvalrule.Rule, error) {
	var rows []*ruleDatamodel.ApprovalRule
	err := r.withLists(r.db.WithContext(ctx)).
		Where("company_id = ? AND category = ? AND is_active = ?", companyID, category, true).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("find active approval rules: %w", err)
	}
	return approvalrule.FromDataModelSlice(rows), nil
}

// Update rewrites the rule columns and replaces both approver lists in one
// transaction.
func (r *RuleRepository) Update(ctx context.Context, rule *approvalrule.Rule) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&ruleDatamodel.ApprovalRule{}).
			Where("id = ?", rule.ID).
			Updates(map[string]interface{}{
				"name":                        rule.Name,
				"category":                    rule.Category,
				"is_manager_approver":         rule.IsManagerApprover,
				"minimum_approval_percentage": rule.MinimumApprovalPercentage,
				"is_active":                   rule.IsActive,
			})
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
				return internal.ErrDuplicateActiveRule
			}
			return fmt.Errorf("update approval rule %d: %w", rule.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return internal.ErrRuleNotFound
		}

		if err := replaceLists(tx, rule); err != nil {
			return err
		}
		return nil
	})
}

func replaceLists(tx *gorm.DB, rule *approvalrule.Rule) error {
	if err := tx.Where("rule_id = ?", rule.ID).Delete(&ruleDatamodel.Approver{}).Error; err != nil {
		return fmt.Errorf("clear approvers: %w", err)
	}
	if err := tx.Where("rule_id = ?", rule.ID).Delete(&ruleDatamodel.ConditionalApprover{}).Error; err != nil {
		return fmt.Errorf("clear conditional approvers: %w", err)
	}

	if approvers := approvalrule.ApproverRows(rule.ID, rule.Approvers); len(approvers) > 0 {
		if err := tx.Create(&approvers).Error; err != nil {
			return fmt.Errorf("insert approvers: %w", err)
		}
	}
	if conditionals := approvalrule.ConditionalApproverRows(rule.ID, rule.ConditionalApprovers); len(conditionals) > 0 {
		if err := tx.Create(&conditionals).Error; err != nil {
			return fmt.Errorf("insert conditional approvers: %w", err)
		}
	}
	return nil
}

func (r *RuleRepository) SetActive(ctx context.Context, id int64, active bool) error {
	res := r.db.WithContext(ctx).Model(&ruleDatamodel.ApprovalRule{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return internal.ErrDuplicateActiveRule
		}
		return fmt.Errorf("set approval rule %d active: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return internal.ErrRuleNotFound
	}
	return nil
}

func (r *RuleRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("rule_id = ?", id).Delete(&ruleDatamodel.Approver{}).Error; err != nil {
			return fmt.Errorf("delete approvers: %w", err)
		}
		if err := tx.Where("rule_id = ?", id).Delete(&ruleDatamodel.ConditionalApprover{}).Error; err != nil {
			return fmt.Errorf("delete conditional approvers: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&ruleDatamodel.ApprovalRule{})
		if res.Error != nil {
			return fmt.Errorf("delete approval rule %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return internal.ErrRuleNotFound
		}
		return nil
	})
}
