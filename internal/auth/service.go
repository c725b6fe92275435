package auth

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/company"
	"github.com/frahmantamala/expense-approval/internal/core/common/validation"
	"github.com/frahmantamala/expense-approval/internal/currency"
	"github.com/frahmantamala/expense-approval/internal/user"
)

type UserStore interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
}

// CompanyRegistrar creates a company together with its admin user.
type CompanyRegistrar interface {
	Register(ctx context.Context, c *company.Company, admin *user.User) error
}

type Service struct {
	users      UserStore
	companies  CompanyRegistrar
	tokens     TokenGenerator
	bcryptCost int
	logger     *slog.Logger
}

func NewService(users UserStore, companies CompanyRegistrar, tokens TokenGenerator, bcryptCost int, logger *slog.Logger) *Service {
	if bcryptCost <= 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		users:      users,
		companies:  companies,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

// Register creates a tenant: the company and its admin, in one transaction.
func (s *Service) Register(ctx context.Context, dto RegisterDTO) (*Session, error) {
	dto.normalize()
	if err := validation.Struct(dto); err != nil {
		return nil, err
	}

	email := user.NormalizeEmail(dto.Email)
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, internal.ErrEmailTaken
	} else if !errors.Is(err, internal.ErrUserNotFound) {
		s.logger.Error("failed to check email", "error", err)
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), s.bcryptCost)
	if err != nil {
		return nil, internal.NewInternalError("failed to register", err)
	}

	name := dto.CompanyName
	if name == "" {
		name = dto.Name + "'s Company"
	}
	c := &company.Company{
		Name:         name,
		Country:      dto.Country,
		BaseCurrency: currency.BaseCurrencyForCountry(dto.Country),
	}
	admin := &user.User{
		Name:         dto.Name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         internal.RoleAdmin,
		IsActive:     true,
	}

	if err := s.companies.Register(ctx, c, admin); err != nil {
		return nil, err
	}

	s.logger.Info("tenant registered", "company_id", c.ID, "user_id", admin.ID)
	return s.session(admin)
}

func (s *Service) Login(ctx context.Context, dto LoginDTO) (*Session, error) {
	dto.normalize()
	if err := validation.Struct(dto); err != nil {
		return nil, err
	}

	u, err := s.users.GetByEmail(ctx, user.NormalizeEmail(dto.Email))
	if err != nil {
		if errors.Is(err, internal.ErrUserNotFound) {
			return nil, internal.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(dto.Password)); err != nil {
		s.logger.Warn("login failed", "user_id", u.ID)
		return nil, internal.ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, internal.ErrUserInactive
	}

	s.logger.Info("user logged in", "user_id", u.ID, "company_id", u.CompanyID)
	return s.session(u)
}

// Refresh reissues both tokens. Role and company come from the current user
// record, not the old token.
func (s *Service) Refresh(ctx context.Context, dto RefreshTokenDTO) (*Session, error) {
	if err := validation.Struct(dto); err != nil {
		return nil, err
	}

	claims, err := s.tokens.ValidateToken(dto.RefreshToken, TokenRefresh)
	if err != nil {
		return nil, err
	}
	u, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	return s.session(u)
}

// Authenticate resolves an access token to the acting identity.
func (s *Service) Authenticate(ctx context.Context, token string) (internal.ActorContext, error) {
	claims, err := s.tokens.ValidateToken(token, TokenAccess)
	if err != nil {
		return internal.ActorContext{}, err
	}
	u, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return internal.ActorContext{}, err
	}
	return u.Actor(), nil
}

func (s *Service) Me(ctx context.Context, actor internal.ActorContext) (*user.User, error) {
	return s.activeUser(ctx, actor.UserID)
}

func (s *Service) activeUser(ctx context.Context, id int64) (*user.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, internal.ErrUserNotFound) {
			return nil, internal.ErrInvalidToken
		}
		return nil, err
	}
	if !u.IsActive {
		return nil, internal.ErrUserInactive
	}
	return u, nil
}

func (s *Service) session(u *user.User) (*Session, error) {
	tokens, err := s.tokens.GenerateTokens(u)
	if err != nil {
		s.logger.Error("failed to issue tokens", "error", err, "user_id", u.ID)
		return nil, internal.NewInternalError("failed to issue tokens", err)
	}
	return &Session{AuthTokens: tokens, User: u}, nil
}
