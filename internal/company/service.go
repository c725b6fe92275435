package company

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/core/common/validation"
	"github.com/frahmantamala/expense-approval/internal/user"
)

type RepositoryAPI interface {
	GetByID(ctx context.Context, id int64) (*Company, error)
	Update(ctx context.Context, c *Company) error
	// CreateWithAdmin stores the company and its first admin atomically and
	// links company.admin_user_id to the new user.
	CreateWithAdmin(ctx context.Context, c *Company, admin *user.User) error
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) GetByID(ctx context.Context, id int64) (*Company, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetCompany(ctx context.Context, actor internal.ActorContext) (*Company, error) {
	c, err := s.repo.GetByID(ctx, actor.CompanyID)
	if err != nil {
		s.logger.Error("failed to load company", "error", err, "company_id", actor.CompanyID)
		return nil, err
	}
	return c, nil
}

func (s *Service) UpdateCompany(ctx context.Context, actor internal.ActorContext, dto UpdateCompanyDTO) (*Company, error) {
	if !actor.IsAdmin() {
		return nil, internal.ErrForbiddenRole
	}
	if err := validation.Struct(dto); err != nil {
		return nil, err
	}

	c, err := s.repo.GetByID(ctx, actor.CompanyID)
	if err != nil {
		return nil, err
	}
	if dto.Name != nil {
		c.Name = *dto.Name
	}
	if dto.Country != nil {
		c.Country = *dto.Country
	}

	if err := s.repo.Update(ctx, c); err != nil {
		s.logger.Error("failed to update company", "error", err, "company_id", c.ID)
		return nil, err
	}
	s.logger.Info("company updated", "company_id", c.ID, "actor_id", actor.UserID)
	return c, nil
}

// AdminUserID returns the company's admin, nil when the company has none.
func (s *Service) AdminUserID(ctx context.Context, companyID int64) (*int64, error) {
	c, err := s.repo.GetByID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return c.AdminUserID, nil
}

func (s *Service) Register(ctx context.Context, c *Company, admin *user.User) error {
	if err := s.repo.CreateWithAdmin(ctx, c, admin); err != nil {
		s.logger.Error("failed to register company", "error", err, "company", c.Name)
		return err
	}
	s.logger.Info("company registered", "company_id", c.ID, "admin_user_id", admin.ID, "base_currency", c.BaseCurrency)
	return nil
}
