package category

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/expense-approval/internal"
)

type RepositoryAPI interface {
	RuleUsage(ctx context.Context, companyID int64) ([]RuleUsage, error)
	ExpenseUsage(ctx context.Context, companyID int64) ([]ExpenseUsage, error)
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// ListCategories returns every category the actor's company has used, with
// the active rule that currently routes it, if any.
func (s *Service) ListCategories(ctx context.Context, actor internal.ActorContext) ([]*Category, error) {
	rules, err := s.repo.RuleUsage(ctx, actor.CompanyID)
	if err != nil {
		s.logger.Error("failed to aggregate rule categories", "error", err, "company_id", actor.CompanyID)
		return nil, err
	}
	expenses, err := s.repo.ExpenseUsage(ctx, actor.CompanyID)
	if err != nil {
		s.logger.Error("failed to aggregate expense categories", "error", err, "company_id", actor.CompanyID)
		return nil, err
	}

	categories := Merge(rules, expenses)
	s.logger.Debug("retrieved categories", "company_id", actor.CompanyID, "count", len(categories))
	return categories, nil
}
