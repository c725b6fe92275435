package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/frahmantamala/expense-approval/internal"
	expenseDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/expense"
	"github.com/frahmantamala/expense-approval/internal/expense"
)

// ExpenseRepository implements expense.RepositoryAPI using GORM
type ExpenseRepository struct {
	db *gorm.DB
}

func NewExpenseRepository(db *gorm.DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

func withHistory(db *gorm.DB) *gorm.DB {
	return db.Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") })
}

func (r *ExpenseRepository) Create(ctx context.Context, e *expense.Expense) error {
	row := expense.ToDataModel(e)
	row.History = nil
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	e.ID = row.ID
	e.CreatedAt = row.CreatedAt
	e.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *ExpenseRepository) GetByID(ctx context.Context, id int64) (*expense.Expense, error) {
	var row expenseDatamodel.Expense
	if err := withHistory(r.db.WithContext(ctx)).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrExpenseNotFound
		}
		return nil, fmt.Errorf("get expense %d: %w", id, err)
	}
	return expense.FromDataModel(&row), nil
}

func (r *ExpenseRepository) List(ctx context.Context, filter expense.ListFilter) ([]*expense.Expense, error) {
	q := withHistory(r.db.WithContext(ctx)).Where("company_id = ?", filter.CompanyID)
	if filter.EmployeeIDs != nil {
		q = q.Where("employee_id IN ?", filter.EmployeeIDs)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", string(*filter.Status))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit).Offset(filter.Offset)
	}

	var rows []*expenseDatamodel.Expense
	if err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expense.FromDataModelSlice(rows), nil
}

// ListPendingForApprover returns the approver's queue, oldest submission first.
func (r *ExpenseRepository) ListPendingForApprover(ctx context.Context, approverID int64, limit, offset int) ([]*expense.Expense, error) {
	q := withHistory(r.db.WithContext(ctx)).
		Where("status = ? AND current_approver_id = ?", string(expense.StatusPending), approverID).
		Order("submitted_at ASC").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	var rows []*expenseDatamodel.Expense
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}
	return expense.FromDataModelSlice(rows), nil
}

func (r *ExpenseRepository) ListStalled(ctx context.Context, companyID int64) ([]*expense.Expense, error) {
	var rows []*expenseDatamodel.Expense
	err := withHistory(r.db.WithContext(ctx)).
		Where("company_id = ? AND status = ? AND current_approver_id IS NULL", companyID, string(expense.StatusPending)).
		Order("submitted_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list stalled expenses: %w", err)
	}
	return expense.FromDataModelSlice(rows), nil
}

func (r *ExpenseRepository) CountPendingByRule(ctx context.Context, ruleID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&expenseDatamodel.Expense{}).
		Where("approval_rule_id = ? AND status = ?", ruleID, string(expense.StatusPending)).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count pending expenses for rule %d: %w", ruleID, err)
	}
	return n, nil
}

// ConditionalUpdate is the single write path for state transitions. The
// version guard makes concurrent deciders race on one row: the loser matches
// nothing and gets ErrConcurrentUpdate, and its history entries are never
// written.
func (r *ExpenseRepository) ConditionalUpdate(ctx context.Context, next *expense.Expense, expectStatus expense.Status, appended []expense.HistoryEntry) error {
	var route *string
	if next.Route != nil {
		s := string(*next.Route)
		route = &s
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&expenseDatamodel.Expense{}).
			Where("id = ? AND status = ? AND version = ?", next.ID, string(expectStatus), next.Version).
			Updates(map[string]interface{}{
				"status":              string(next.Status),
				"route":               route,
				"approval_rule_id":    next.ApprovalRuleID,
				"current_approver_id": next.CurrentApproverID,
				"submitted_at":        next.SubmittedAt,
				"decided_at":          next.DecidedAt,
				"version":             gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return fmt.Errorf("update expense %d: %w", next.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return internal.ErrConcurrentUpdate
		}

		if rows := expense.HistoryRows(next.ID, appended); len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("append approval history: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	next.Version++
	return nil
}
