package auth_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/auth"
	"github.com/frahmantamala/expense-approval/internal/company"
	"github.com/frahmantamala/expense-approval/internal/user"
)

type mockUserStore struct {
	byID map[int64]*user.User
}

func (m *mockUserStore) GetByID(_ context.Context, id int64) (*user.User, error) {
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, internal.ErrUserNotFound
}

func (m *mockUserStore) GetByEmail(_ context.Context, email string) (*user.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, internal.ErrUserNotFound
}

type mockRegistrar struct {
	store     *mockUserStore
	companies []*company.Company
}

func (m *mockRegistrar) Register(_ context.Context, c *company.Company, admin *user.User) error {
	c.ID = int64(len(m.companies) + 1)
	admin.ID = int64(len(m.store.byID) + 100)
	admin.CompanyID = c.ID
	c.AdminUserID = &admin.ID
	m.companies = append(m.companies, c)
	m.store.byID[admin.ID] = admin
	return nil
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func testSecurity() internal.SecurityConfig {
	return internal.SecurityConfig{
		AccessTokenSecret:    "access-secret",
		RefreshTokenSecret:   "refresh-secret",
		AccessTokenDuration:  15 * time.Minute,
		RefreshTokenDuration: time.Hour,
	}
}

var _ = Describe("Auth Service", func() {
	var (
		users     *mockUserStore
		registrar *mockRegistrar
		tokens    *auth.JWTTokenGenerator
		svc       *auth.Service
		ctx       context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		hash, err := bcrypt.GenerateFromPassword([]byte("correct_password"), bcrypt.MinCost)
		Expect(err).NotTo(HaveOccurred())

		users = &mockUserStore{byID: map[int64]*user.User{
			1: {ID: 1, CompanyID: 7, Email: "user@example.com", PasswordHash: string(hash), Role: internal.RoleEmployee, IsActive: true},
			2: {ID: 2, CompanyID: 7, Email: "gone@example.com", PasswordHash: string(hash), Role: internal.RoleEmployee, IsActive: false},
		}}
		registrar = &mockRegistrar{store: users}
		tokens = auth.NewJWTTokenGenerator(testSecurity())
		svc = auth.NewService(users, registrar, tokens, bcrypt.MinCost, discard)
	})

	Describe("Register", func() {
		It("creates a company with an admin and derives the base currency", func() {
			session, err := svc.Register(ctx, auth.RegisterDTO{
				Name: "Dana", Email: "Dana@Example.com ", Password: "secret1", Country: "india",
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(registrar.companies).To(HaveLen(1))
			c := registrar.companies[0]
			Expect(c.Name).To(Equal("Dana's Company"))
			Expect(c.BaseCurrency).To(Equal("INR"))
			Expect(session.User.Role).To(Equal(internal.RoleAdmin))
			Expect(session.User.Email).To(Equal("dana@example.com"))
			Expect(session.AccessToken).NotTo(BeEmpty())
		})

		It("falls back to USD for unknown countries", func() {
			_, err := svc.Register(ctx, auth.RegisterDTO{
				Name: "Dana", Email: "dana@example.com", Password: "secret1", Country: "Atlantis", CompanyName: "Acme",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(registrar.companies[0].Name).To(Equal("Acme"))
			Expect(registrar.companies[0].BaseCurrency).To(Equal("USD"))
		})

		It("refuses a registered email", func() {
			_, err := svc.Register(ctx, auth.RegisterDTO{
				Name: "Again", Email: "USER@example.com", Password: "secret1", Country: "India",
			})
			Expect(err).To(MatchError(internal.ErrEmailTaken))
		})

		It("requires a six character password", func() {
			_, err := svc.Register(ctx, auth.RegisterDTO{
				Name: "Dana", Email: "dana@example.com", Password: "short", Country: "India",
			})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
		})
	})

	Describe("Login", func() {
		It("returns tokens carrying the user's identity", func() {
			session, err := svc.Login(ctx, auth.LoginDTO{Email: "user@example.com", Password: "correct_password"})
			Expect(err).NotTo(HaveOccurred())

			claims, err := tokens.ValidateToken(session.AccessToken, auth.TokenAccess)
			Expect(err).NotTo(HaveOccurred())
			Expect(claims.UserID).To(Equal(int64(1)))
			Expect(claims.CompanyID).To(Equal(int64(7)))
			Expect(claims.Role).To(Equal(internal.RoleEmployee))
		})

		It("accepts an email with surrounding whitespace and mixed case", func() {
			session, err := svc.Login(ctx, auth.LoginDTO{Email: "  User@Example.com ", Password: "correct_password"})
			Expect(err).NotTo(HaveOccurred())
			Expect(session.User.ID).To(Equal(int64(1)))
		})

		It("rejects a wrong password", func() {
			_, err := svc.Login(ctx, auth.LoginDTO{Email: "user@example.com", Password: "nope"})
			Expect(err).To(MatchError(internal.ErrInvalidCredentials))
		})

		It("does not reveal unknown emails", func() {
			_, err := svc.Login(ctx, auth.LoginDTO{Email: "who@example.com", Password: "correct_password"})
			Expect(err).To(MatchError(internal.ErrInvalidCredentials))
		})

		It("refuses inactive users", func() {
			_, err := svc.Login(ctx, auth.LoginDTO{Email: "gone@example.com", Password: "correct_password"})
			Expect(err).To(MatchError(internal.ErrUserInactive))
		})
	})

	Describe("Tokens", func() {
		It("does not accept a refresh token as an access token", func() {
			session, err := svc.Login(ctx, auth.LoginDTO{Email: "user@example.com", Password: "correct_password"})
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Authenticate(ctx, session.RefreshToken)
			Expect(err).To(MatchError(internal.ErrInvalidToken))
		})

		It("refreshes with the current user record", func() {
			session, err := svc.Login(ctx, auth.LoginDTO{Email: "user@example.com", Password: "correct_password"})
			Expect(err).NotTo(HaveOccurred())

			users.byID[1].Role = internal.RoleManager
			refreshed, err := svc.Refresh(ctx, auth.RefreshTokenDTO{RefreshToken: session.RefreshToken})
			Expect(err).NotTo(HaveOccurred())

			actor, err := svc.Authenticate(ctx, refreshed.AccessToken)
			Expect(err).NotTo(HaveOccurred())
			Expect(actor.Role).To(Equal(internal.RoleManager))
		})

		It("rejects tokens of users deactivated after issue", func() {
			session, err := svc.Login(ctx, auth.LoginDTO{Email: "user@example.com", Password: "correct_password"})
			Expect(err).NotTo(HaveOccurred())

			users.byID[1].IsActive = false
			_, err = svc.Authenticate(ctx, session.AccessToken)
			Expect(err).To(MatchError(internal.ErrUserInactive))
		})

		It("reports expired tokens", func() {
			cfg := testSecurity()
			cfg.AccessTokenDuration = time.Nanosecond
			short := auth.NewJWTTokenGenerator(cfg)
			issued, err := short.GenerateTokens(users.byID[1])
			Expect(err).NotTo(HaveOccurred())

			time.Sleep(1100 * time.Millisecond)
			_, err = short.ValidateToken(issued.AccessToken, auth.TokenAccess)
			Expect(err).To(MatchError(internal.ErrTokenExpired))
		})

		It("rejects garbage", func() {
			_, err := tokens.ValidateToken("not.a.token", auth.TokenAccess)
			Expect(err).To(MatchError(internal.ErrInvalidToken))
		})
	})

	Describe("AuthMiddleware", func() {
		var h *auth.Handler

		BeforeEach(func() {
			h = auth.NewHandler(svc, discard)
		})

		serve := func(header string) (*httptest.ResponseRecorder, *internal.ActorContext) {
			var seen *internal.ActorContext
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				a, _ := internal.ActorFromContext(r.Context())
				seen = &a
				w.WriteHeader(http.StatusNoContent)
			})
			req := httptest.NewRequest(http.MethodGet, "/api/v1/expenses", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			h.AuthMiddleware(next).ServeHTTP(rec, req)
			return rec, seen
		}

		It("rejects requests without a token", func() {
			rec, seen := serve("")
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
			Expect(seen).To(BeNil())
		})

		It("stores the actor for valid tokens", func() {
			session, err := svc.Login(ctx, auth.LoginDTO{Email: "user@example.com", Password: "correct_password"})
			Expect(err).NotTo(HaveOccurred())

			rec, seen := serve("Bearer " + session.AccessToken)
			Expect(rec.Code).To(Equal(http.StatusNoContent))
			Expect(seen).NotTo(BeNil())
			Expect(seen.UserID).To(Equal(int64(1)))
			Expect(seen.CompanyID).To(Equal(int64(7)))
		})

		It("rejects invalid tokens with 401", func() {
			rec, _ := serve("Bearer nope")
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})
	})
})
