package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/frahmantamala/expense-approval/internal/category"
	ruleDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/approvalrule"
	expenseDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/expense"
)

type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

type ruleRow struct {
	Category     string
	Rules        int64
	ActiveRuleID *int64
}

func (r *CategoryRepository) RuleUsage(ctx context.Context, companyID int64) ([]category.RuleUsage, error) {
	var rows []ruleRow
	err := r.db.WithContext(ctx).
		Model(&ruleDatamodel.ApprovalRule{}).
		Select("category, COUNT(*) AS rules, MAX(CASE WHEN is_active THEN id END) AS active_rule_id").
		Where("company_id = ?", companyID).
		Group("category").
		Order("category ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate rule categories: %w", err)
	}

	out := make([]category.RuleUsage, len(rows))
	for i, row := range rows {
		out[i] = category.RuleUsage{Name: row.Category, Rules: row.Rules, ActiveRuleID: row.ActiveRuleID}
	}
	return out, nil
}

type expenseRow struct {
	Category string
	Expenses int64
}

func (r *CategoryRepository) ExpenseUsage(ctx context.Context, companyID int64) ([]category.ExpenseUsage, error) {
	var rows []expenseRow
	err := r.db.WithContext(ctx).
		Model(&expenseDatamodel.Expense{}).
		Select("category, COUNT(*) AS expenses").
		Where("company_id = ?", companyID).
		Group("category").
		Order("category ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate expense categories: %w", err)
	}

	out := make([]category.ExpenseUsage, len(rows))
	for i, row := range rows {
		out[i] = category.ExpenseUsage{Name: row.Category, Expenses: row.Expenses}
	}
	return out, nil
}
