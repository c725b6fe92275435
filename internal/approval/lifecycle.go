package approval

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/approvalrule"
	"github.com/frahmantamala/expense-approval/internal/core/common/validation"
	"github.com/frahmantamala/expense-approval/internal/core/events"
	"github.com/frahmantamala/expense-approval/internal/expense"
	"github.com/frahmantamala/expense-approval/internal/user"
)

type ExpenseStore interface {
	GetByID(ctx context.Context, id int64) (*expense.Expense, error)
	ConditionalUpdate(ctx context.Context, next *expense.Expense, expectStatus expense.Status, appended []expense.HistoryEntry) error
}

type RuleResolver interface {
	Resolve(ctx context.Context, companyID int64, category string) (*approvalrule.Rule, error)
}

type RuleReader interface {
	GetByID(ctx context.Context, id int64) (*approvalrule.Rule, error)
}

type UserDirectory interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
}

type AdminLookup interface {
	AdminUserID(ctx context.Context, companyID int64) (*int64, error)
}

type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// Controller drives expenses through submit and decide. Each transition is
// one read, one pure computation and one conditional write.
type Controller struct {
	expenses  ExpenseStore
	resolver  RuleResolver
	rules     RuleReader
	users     UserDirectory
	admins    AdminLookup
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

type ControllerDeps struct {
	Expenses  ExpenseStore
	Resolver  RuleResolver
	Rules     RuleReader
	Users     UserDirectory
	Admins    AdminLookup
	Publisher Publisher
}

func NewController(deps ControllerDeps, logger *slog.Logger) *Controller {
	return &Controller{
		expenses:  deps.Expenses,
		resolver:  deps.Resolver,
		rules:     deps.Rules,
		users:     deps.Users,
		admins:    deps.Admins,
		publisher: deps.Publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit moves the owner's draft to pending and assigns the first approver.
func (c *Controller) Submit(ctx context.Context, actor internal.ActorContext, expenseID int64) (*expense.Expense, error) {
	e, err := c.expenses.GetByID(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if e.CompanyID != actor.CompanyID {
		return nil, internal.ErrExpenseNotFound
	}
	if e.EmployeeID != actor.UserID {
		c.logger.Warn("submit by non-owner refused", "expense_id", e.ID, "actor_id", actor.UserID)
		return nil, internal.ErrNotOwner
	}
	if e.Status != expense.StatusDraft {
		return nil, internal.ErrInvalidTransition.WithDetails(map[string]string{"status": string(e.Status)})
	}

	rule, err := c.resolver.Resolve(ctx, e.CompanyID, e.Category)
	if err != nil {
		return nil, err
	}
	managerID, err := c.managerOf(ctx, e)
	if err != nil {
		return nil, err
	}
	adminID, err := c.adminOf(ctx, e.CompanyID)
	if err != nil {
		return nil, err
	}

	route, err := BuildChain(rule, managerID, adminID)
	if err != nil {
		c.logger.Warn("no approver available", "expense_id", e.ID, "company_id", e.CompanyID, "category", e.Category)
		return nil, err
	}

	now := c.now()
	next := e.Clone()
	next.Status = expense.StatusPending
	next.Route = route.Persisted()
	next.ApprovalRuleID = route.RuleID
	next.CurrentApproverID = route.Current()
	next.SubmittedAt = &now
	next.UpdatedAt = now

	if err := c.expenses.ConditionalUpdate(ctx, next, expense.StatusDraft, nil); err != nil {
		c.logger.Warn("submit write failed", "error", err, "expense_id", e.ID)
		return nil, err
	}

	c.logger.Info("expense submitted",
		"expense_id", next.ID,
		"route", route.Kind.String(),
		"rule_id", idOrZero(route.RuleID),
		"current_approver_id", *next.CurrentApproverID,
		"chain_length", len(route.Approvers))
	c.publish(ctx, events.EventTypeExpenseSubmitted, next, actor.UserID, nil)
	return next, nil
}

// Decide applies the current approver's action. Anything that is not this
// approver's pending expense reads as not found.
func (c *Controller) Decide(ctx context.Context, actor internal.ActorContext, expenseID int64, dto expense.DecisionDTO) (*expense.Expense, error) {
	if err := validation.Struct(dto); err != nil {
		return nil, err
	}

	e, err := c.expenses.GetByID(ctx, expenseID)
	if errors.Is(err, internal.ErrExpenseNotFound) {
		return nil, internal.ErrNotAuthorizedApprover
	}
	if err != nil {
		return nil, err
	}
	if e.CompanyID != actor.CompanyID || e.Status != expense.StatusPending || !e.IsCurrentApprover(actor.UserID) {
		c.logger.Warn("decision by non-current approver refused",
			"expense_id", expenseID,
			"actor_id", actor.UserID,
			"status", e.Status)
		return nil, internal.ErrNotAuthorizedApprover
	}

	rule, err := c.ruleSnapshot(ctx, e)
	if err != nil {
		return nil, err
	}

	next, outcome, err := Evaluate(e, rule, Decision{
		ActorID: actor.UserID,
		Action:  dto.Action,
		Comment: dto.Comment,
		At:      c.now(),
	})
	if err != nil {
		c.logger.Warn("decision rejected", "error", err, "expense_id", e.ID, "actor_id", actor.UserID)
		return nil, err
	}
	next.UpdatedAt = c.now()

	appended := next.History[len(next.History)-1:]
	if err := c.expenses.ConditionalUpdate(ctx, next, expense.StatusPending, appended); err != nil {
		c.logger.Warn("decision write failed", "error", err, "expense_id", e.ID, "actor_id", actor.UserID)
		return nil, err
	}

	c.logger.Info("expense decision recorded",
		"expense_id", next.ID,
		"actor_id", actor.UserID,
		"action", dto.Action,
		"outcome", outcome,
		"status", next.Status)
	if outcome == OutcomeStalled {
		c.logger.Warn("expense stalled below approval threshold",
			"expense_id", next.ID,
			"company_id", next.CompanyID,
			"rule_id", idOrZero(next.ApprovalRuleID))
	}
	c.publish(ctx, eventTypeFor(outcome), next, actor.UserID, dto.Comment)
	return next, nil
}

// ruleSnapshot loads the attached rule once per decision so an edit made
// while the decision runs cannot change the order it sees.
func (c *Controller) ruleSnapshot(ctx context.Context, e *expense.Expense) (*approvalrule.Rule, error) {
	if !routedByRule(e) || e.ApprovalRuleID == nil {
		return nil, nil
	}
	rule, err := c.rules.GetByID(ctx, *e.ApprovalRuleID)
	if errors.Is(err, internal.ErrRuleNotFound) {
		return nil, internal.ErrRuleChanged
	}
	if err != nil {
		return nil, err
	}
	return rule.Clone(), nil
}

// managerOf returns the owner's manager when they can act as an approver:
// an active manager or admin in the same company.
func (c *Controller) managerOf(ctx context.Context, e *expense.Expense) (*int64, error) {
	employee, err := c.users.GetByID(ctx, e.EmployeeID)
	if err != nil {
		return nil, err
	}
	if employee.ManagerID == nil {
		return nil, nil
	}
	return c.usableApprover(ctx, *employee.ManagerID, e.CompanyID, internal.RoleManager, internal.RoleAdmin)
}

func (c *Controller) adminOf(ctx context.Context, companyID int64) (*int64, error) {
	adminID, err := c.admins.AdminUserID(ctx, companyID)
	if err != nil || adminID == nil {
		return nil, err
	}
	return c.usableApprover(ctx, *adminID, companyID, internal.RoleAdmin)
}

func (c *Controller) usableApprover(ctx context.Context, userID, companyID int64, roles ...internal.Role) (*int64, error) {
	u, err := c.users.GetByID(ctx, userID)
	if errors.Is(err, internal.ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if u.CompanyID != companyID || !u.IsActive || !u.Actor().HasRole(roles...) {
		c.logger.Debug("approver candidate skipped", "user_id", userID, "company_id", companyID)
		return nil, nil
	}
	return &u.ID, nil
}

func (c *Controller) publish(ctx context.Context, eventType string, e *expense.Expense, actorID int64, comment *string) {
	if c.publisher == nil {
		return
	}
	event := events.NewExpenseEvent(eventType, events.ExpenseEventParams{
		ExpenseID:         e.ID,
		CompanyID:         e.CompanyID,
		EmployeeID:        e.EmployeeID,
		ActorID:           actorID,
		Status:            string(e.Status),
		CurrentApproverID: e.CurrentApproverID,
		Comment:           comment,
	})
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Error("failed to publish expense event", "error", err, "expense_id", e.ID, "event_type", eventType)
	}
}

func eventTypeFor(o Outcome) string {
	switch o {
	case OutcomeAdvanced:
		return events.EventTypeExpenseAdvanced
	case OutcomeApproved:
		return events.EventTypeExpenseApproved
	case OutcomeRejected:
		return events.EventTypeExpenseRejected
	default:
		return events.EventTypeExpenseStalled
	}
}

func idOrZero(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
