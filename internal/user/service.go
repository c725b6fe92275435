package user

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/core/common/validation"
)

type RepositoryAPI interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListByCompany(ctx context.Context, companyID int64) ([]*User, error)
	ListByRole(ctx context.Context, companyID int64, role internal.Role) ([]*User, error)
	ListByManager(ctx context.Context, managerID int64) ([]*User, error)
	Update(ctx context.Context, u *User) error
}

type Service struct {
	repo       RepositoryAPI
	bcryptCost int
	logger     *slog.Logger
}

func NewService(repo RepositoryAPI, bcryptCost int, logger *slog.Logger) *Service {
	if bcryptCost <= 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		repo:       repo,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

// GetByID is an unscoped lookup for other services. HTTP callers go through
// GetUser which enforces the tenant boundary.
func (s *Service) GetByID(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetByEmail(ctx, NormalizeEmail(email))
}

func (s *Service) GetUser(ctx context.Context, actor internal.ActorContext, id int64) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.CompanyID != actor.CompanyID {
		s.logger.Warn("cross-tenant user lookup", "actor_id", actor.UserID, "user_id", id)
		return nil, internal.ErrUserNotFound
	}
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context, actor internal.ActorContext) ([]*User, error) {
	if !actor.HasRole(internal.RoleAdmin, internal.RoleManager) {
		return nil, internal.ErrForbiddenRole
	}
	users, err := s.repo.ListByCompany(ctx, actor.CompanyID)
	if err != nil {
		s.logger.Error("failed to list users", "error", err, "company_id", actor.CompanyID)
		return nil, err
	}
	return users, nil
}

func (s *Service) ListManagers(ctx context.Context, actor internal.ActorContext) ([]*User, error) {
	managers, err := s.repo.ListByRole(ctx, actor.CompanyID, internal.RoleManager)
	if err != nil {
		s.logger.Error("failed to list managers", "error", err, "company_id", actor.CompanyID)
		return nil, err
	}
	active := managers[:0]
	for _, m := range managers {
		if m.IsActive {
			active = append(active, m)
		}
	}
	return active, nil
}

// TeamMemberIDs returns the users whose manager link points at managerID.
func (s *Service) TeamMemberIDs(ctx context.Context, managerID int64) ([]int64, error) {
	members, err := s.repo.ListByManager(ctx, managerID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	return ids, nil
}

func (s *Service) CreateUser(ctx context.Context, actor internal.ActorContext, dto CreateUserDTO) (*User, error) {
	if !actor.IsAdmin() {
		s.logger.Warn("create user denied", "actor_id", actor.UserID, "role", actor.Role)
		return nil, internal.ErrForbiddenRole
	}
	if err := validation.Struct(dto); err != nil {
		return nil, err
	}

	email := NormalizeEmail(dto.Email)
	if err := s.ensureEmailFree(ctx, email); err != nil {
		return nil, err
	}

	if dto.ManagerID != nil {
		if err := s.validateManager(ctx, actor.CompanyID, 0, *dto.ManagerID); err != nil {
			return nil, err
		}
	}

	hash, err := s.HashPassword(dto.Password)
	if err != nil {
		s.logger.Error("failed to hash password", "error", err)
		return nil, internal.NewInternalError("failed to create user", err)
	}

	u := &User{
		CompanyID:    actor.CompanyID,
		Name:         dto.Name,
		Email:        email,
		PasswordHash: hash,
		Role:         internal.Role(dto.Role),
		ManagerID:    dto.ManagerID,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		s.logger.Error("failed to create user", "error", err, "company_id", actor.CompanyID)
		return nil, err
	}

	s.logger.Info("user created", "user_id", u.ID, "company_id", u.CompanyID, "role", u.Role)
	return u, nil
}

func (s *Service) UpdateUser(ctx context.Context, actor internal.ActorContext, id int64, dto UpdateUserDTO) (*User, error) {
	if !actor.IsAdmin() {
		return nil, internal.ErrForbiddenRole
	}
	if err := validation.Struct(dto); err != nil {
		return nil, err
	}

	u, err := s.GetUser(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if dto.Name != nil {
		u.Name = *dto.Name
	}
	if dto.Role != nil && internal.Role(*dto.Role) != u.Role {
		if u.IsAdmin() {
			return nil, internal.NewValidationFieldError("role", "the company admin's role cannot be changed", internal.ErrCodeValidationFailed)
		}
		u.Role = internal.Role(*dto.Role)
	}
	if dto.IsActive != nil {
		if !*dto.IsActive && u.ID == actor.UserID {
			return nil, internal.NewValidationFieldError("is_active", "you cannot deactivate yourself", internal.ErrCodeValidationFailed)
		}
		u.IsActive = *dto.IsActive
	}

	if err := s.repo.Update(ctx, u); err != nil {
		s.logger.Error("failed to update user", "error", err, "user_id", id)
		return nil, err
	}

	s.logger.Info("user updated", "user_id", u.ID, "actor_id", actor.UserID)
	return u, nil
}

func (s *Service) AssignManager(ctx context.Context, actor internal.ActorContext, id int64, dto AssignManagerDTO) (*User, error) {
	if !actor.IsAdmin() {
		return nil, internal.ErrForbiddenRole
	}

	u, err := s.GetUser(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if dto.ManagerID != nil {
		if err := s.validateManager(ctx, actor.CompanyID, u.ID, *dto.ManagerID); err != nil {
			return nil, err
		}
	}

	u.ManagerID = dto.ManagerID
	if err := s.repo.Update(ctx, u); err != nil {
		s.logger.Error("failed to assign manager", "error", err, "user_id", id)
		return nil, err
	}

	s.logger.Info("manager assigned", "user_id", u.ID, "manager_id", dto.ManagerID)
	return u, nil
}

func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *Service) ensureEmailFree(ctx context.Context, email string) error {
	_, err := s.repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return internal.ErrEmailTaken
	case errors.Is(err, internal.ErrUserNotFound):
		return nil
	default:
		s.logger.Error("failed to check email", "error", err)
		return err
	}
}

// validateManager checks the manager link invariant: same company, manager
// role, active, and not the user itself.
func (s *Service) validateManager(ctx context.Context, companyID, userID, managerID int64) error {
	invalid := func(msg string) error {
		return internal.NewValidationFieldError("manager_id", msg, internal.ErrCodeInvalidManager)
	}

	if managerID == userID {
		return invalid("a user cannot be their own manager")
	}

	m, err := s.repo.GetByID(ctx, managerID)
	if errors.Is(err, internal.ErrUserNotFound) {
		return invalid("manager not found")
	}
	if err != nil {
		return err
	}
	if m.CompanyID != companyID {
		return invalid("manager not found")
	}
	if !m.IsManager() {
		return invalid("assigned user must have the manager role")
	}
	if !m.IsActive {
		return invalid("manager is inactive")
	}
	return nil
}
