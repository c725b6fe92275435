package expense

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/company"
	"github.com/frahmantamala/expense-approval/internal/currency"
	"github.com/frahmantamala/expense-approval/internal/user"
)

type RepositoryAPI interface {
	Create(ctx context.Context, e *Expense) error
	// GetByID loads the expense with its history in append order.
	GetByID(ctx context.Context, id int64) (*Expense, error)
	List(ctx context.Context, filter ListFilter) ([]*Expense, error)
	ListPendingForApprover(ctx context.Context, approverID int64, limit, offset int) ([]*Expense, error)
	ListStalled(ctx context.Context, companyID int64) ([]*Expense, error)
	CountPendingByRule(ctx context.Context, ruleID int64) (int64, error)
	// ConditionalUpdate writes next's state and appends entries only if the
	// stored row still has expectStatus and next.Version. On success
	// next.Version is incremented. A lost race returns ErrConcurrentUpdate.
	ConditionalUpdate(ctx context.Context, next *Expense, expectStatus Status, appended []HistoryEntry) error
}

type CompanyDirectory interface {
	GetByID(ctx context.Context, id int64) (*company.Company, error)
}

type UserDirectory interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
	TeamMemberIDs(ctx context.Context, managerID int64) ([]int64, error)
}

type Service struct {
	repo      RepositoryAPI
	converter currency.Converter
	companies CompanyDirectory
	users     UserDirectory
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo RepositoryAPI, converter currency.Converter, companies CompanyDirectory, users UserDirectory, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		converter: converter,
		companies: companies,
		users:     users,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateExpense stores a draft owned by the actor. The base currency amount
// is fixed here; a conversion failure blocks creation.
func (s *Service) CreateExpense(ctx context.Context, actor internal.ActorContext, dto CreateExpenseDTO) (*Expense, error) {
	dto.normalize()
	if err := dto.Validate(); err != nil {
		s.logger.Warn("expense validation failed", "error", err, "actor_id", actor.UserID)
		return nil, err
	}

	c, err := s.companies.GetByID(ctx, actor.CompanyID)
	if err != nil {
		s.logger.Error("failed to load company", "error", err, "company_id", actor.CompanyID)
		return nil, err
	}

	conv, err := s.converter.Convert(ctx, dto.Amount, dto.Currency, c.BaseCurrency)
	if err != nil {
		s.logger.Error("currency conversion failed",
			"error", err,
			"actor_id", actor.UserID,
			"from", dto.Currency,
			"to", c.BaseCurrency)
		if _, ok := internal.IsAppError(err); ok {
			return nil, err
		}
		return nil, internal.ErrCurrencyUnavailable.WithCause(err)
	}

	now := s.now()
	e := &Expense{
		EmployeeID:           actor.UserID,
		CompanyID:            actor.CompanyID,
		Description:          dto.Description,
		Category:             dto.Category,
		Amount:               dto.Amount,
		Currency:             dto.Currency,
		AmountInBaseCurrency: conv.Converted,
		BaseCurrency:         c.BaseCurrency,
		ExchangeRate:         conv.Rate,
		ExpenseDate:          dto.Date(),
		PaidBy:               dto.PaidBy,
		Remarks:              dto.Remarks,
		ReceiptRef:           dto.ReceiptRef,
		Status:               StatusDraft,
		History:              []HistoryEntry{},
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := s.repo.Create(ctx, e); err != nil {
		s.logger.Error("failed to create expense", "error", err, "actor_id", actor.UserID)
		return nil, err
	}

	s.logger.Info("expense created",
		"expense_id", e.ID,
		"actor_id", actor.UserID,
		"company_id", e.CompanyID,
		"amount", e.Amount.String(),
		"currency", e.Currency,
		"amount_in_base_currency", e.AmountInBaseCurrency.String())
	return e, nil
}

// GetByID is the unscoped read used by the approval engine.
func (s *Service) GetByID(ctx context.Context, id int64) (*Expense, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetExpense(ctx context.Context, actor internal.ActorContext, id int64) (*Expense, error) {
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeView(ctx, actor, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) History(ctx context.Context, actor internal.ActorContext, id int64) ([]HistoryEntry, error) {
	e, err := s.GetExpense(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return e.History, nil
}

func (s *Service) ListMine(ctx context.Context, actor internal.ActorContext, status *Status, limit, offset int) ([]*Expense, error) {
	expenses, err := s.repo.List(ctx, ListFilter{
		CompanyID:   actor.CompanyID,
		EmployeeIDs: []int64{actor.UserID},
		Status:      status,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		s.logger.Error("failed to list own expenses", "error", err, "actor_id", actor.UserID)
		return nil, err
	}
	return expenses, nil
}

// ListExpenses scopes by role: admins see the company, managers their team
// and themselves, employees only their own.
func (s *Service) ListExpenses(ctx context.Context, actor internal.ActorContext, status *Status, limit, offset int) ([]*Expense, error) {
	filter := ListFilter{CompanyID: actor.CompanyID, Status: status, Limit: limit, Offset: offset}

	switch actor.Role {
	case internal.RoleAdmin:
	case internal.RoleManager:
		team, err := s.users.TeamMemberIDs(ctx, actor.UserID)
		if err != nil {
			s.logger.Error("failed to load team", "error", err, "actor_id", actor.UserID)
			return nil, err
		}
		filter.EmployeeIDs = append(team, actor.UserID)
	default:
		filter.EmployeeIDs = []int64{actor.UserID}
	}

	expenses, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list expenses", "error", err, "actor_id", actor.UserID)
		return nil, err
	}
	return expenses, nil
}

func (s *Service) ListPendingFor(ctx context.Context, actor internal.ActorContext, limit, offset int) ([]*Expense, error) {
	expenses, err := s.repo.ListPendingForApprover(ctx, actor.UserID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list pending approvals", "error", err, "actor_id", actor.UserID)
		return nil, err
	}
	return expenses, nil
}

func (s *Service) ListStalled(ctx context.Context, actor internal.ActorContext) ([]*Expense, error) {
	if !actor.IsAdmin() {
		return nil, internal.ErrForbiddenRole
	}
	expenses, err := s.repo.ListStalled(ctx, actor.CompanyID)
	if err != nil {
		s.logger.Error("failed to list stalled expenses", "error", err, "company_id", actor.CompanyID)
		return nil, err
	}
	return expenses, nil
}

func (s *Service) CountPendingByRule(ctx context.Context, ruleID int64) (int64, error) {
	return s.repo.CountPendingByRule(ctx, ruleID)
}

func (s *Service) authorizeView(ctx context.Context, actor internal.ActorContext, e *Expense) error {
	var managerID *int64
	if actor.UserID != e.EmployeeID && !actor.IsAdmin() {
		owner, err := s.users.GetByID(ctx, e.EmployeeID)
		switch {
		case err == nil:
			managerID = owner.ManagerID
		case errors.Is(err, internal.ErrUserNotFound):
		default:
			return err
		}
	}
	if !CanView(actor, e, managerID) {
		s.logger.Warn("expense access denied", "expense_id", e.ID, "actor_id", actor.UserID)
		return internal.ErrExpenseNotFound
	}
	return nil
}
