package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/ulule/limiter/v3"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/approval"
	"github.com/frahmantamala/expense-approval/internal/approvalrule"
	"github.com/frahmantamala/expense-approval/internal/auth"
	"github.com/frahmantamala/expense-approval/internal/category"
	"github.com/frahmantamala/expense-approval/internal/company"
	"github.com/frahmantamala/expense-approval/internal/currency"
	"github.com/frahmantamala/expense-approval/internal/expense"
	"github.com/frahmantamala/expense-approval/internal/transport"
	"github.com/frahmantamala/expense-approval/internal/transport/middleware"
	"github.com/frahmantamala/expense-approval/internal/transport/swagger"
	"github.com/frahmantamala/expense-approval/internal/user"
)

// Handlers groups everything the router mounts. Nil handlers leave their
// routes unregistered.
type Handlers struct {
	Auth         *auth.Handler
	Users        *user.Handler
	Company      *company.Handler
	Currency     *currency.Handler
	Expenses     *expense.Handler
	Approvals    *approval.Handler
	ApprovalRule *approvalrule.Handler
	Categories   *category.Handler
}

type RouterOptions struct {
	DB             *sqlx.DB
	Spec           *swagger.Spec
	AllowedOrigins []string
	AuthLimiter    *limiter.Limiter
	Logger         *slog.Logger
}

func RegisterAllRoutes(router chi.Router, h Handlers, opts RouterOptions) {
	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(opts.Logger))
	router.Use(middleware.LoggingMiddleware)

	if opts.Spec != nil {
		router.Handle(swagger.SpecURL, opts.Spec)
		router.Handle("/swagger/*", swagger.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		health := NewHealthHandler(opts.DB, transport.NewBaseHandler(opts.Logger))
		r.Get("/ping", health.Ping)
		if opts.DB != nil {
			r.Get("/health", health.Health)
		}

		if h.Currency != nil {
			r.Get("/currency/countries", h.Currency.ListCountries)
		}

		if h.Auth == nil {
			return
		}

		r.Route("/auth", func(ar chi.Router) {
			ar.Group(func(lr chi.Router) {
				if opts.AuthLimiter != nil {
					lr.Use(middleware.RateLimit(opts.AuthLimiter))
				}
				lr.Post("/register", h.Auth.Register)
				lr.Post("/login", h.Auth.Login)
			})
			ar.Post("/refresh", h.Auth.RefreshToken)
			ar.With(h.Auth.AuthMiddleware).Get("/me", h.Auth.Me)
		})

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			if h.Users != nil {
				pr.Route("/users", func(ur chi.Router) {
					ur.Get("/me", h.Users.GetCurrentUser)
					ur.Get("/managers", h.Users.ListManagers)
					ur.With(middleware.RequireRole(internal.RoleAdmin, internal.RoleManager)).Get("/", h.Users.ListUsers)
					ur.Get("/{id}", h.Users.GetUser)

					ur.Group(func(admin chi.Router) {
						admin.Use(middleware.RequireRole(internal.RoleAdmin))
						admin.Post("/", h.Users.CreateUser)
						admin.Put("/{id}", h.Users.UpdateUser)
						admin.Put("/{id}/manager", h.Users.AssignManager)
					})
				})
			}

			if h.Company != nil {
				pr.Get("/company", h.Company.GetCompany)
				pr.With(middleware.RequireRole(internal.RoleAdmin)).Put("/company", h.Company.UpdateCompany)
			}

			if h.Currency != nil {
				pr.Post("/currency/convert", h.Currency.Convert)
				pr.Get("/currency/rates/{base}", h.Currency.GetRates)
			}

			if h.Categories != nil {
				pr.Get("/categories", h.Categories.GetCategories)
			}

			if h.Expenses != nil {
				pr.Route("/expenses", func(er chi.Router) {
					er.Post("/", h.Expenses.CreateExpense)
					er.Get("/", h.Expenses.ListExpenses)
					er.Get("/mine", h.Expenses.ListMine)
					er.Get("/{id}", h.Expenses.GetExpense)
					if h.Approvals != nil {
						er.Post("/{id}/submit", h.Approvals.SubmitExpense)
					}
				})
			}

			if h.Approvals != nil {
				pr.Route("/approvals", func(apr chi.Router) {
					apr.Get("/pending", h.Approvals.PendingApprovals)
					apr.With(middleware.RequireRole(internal.RoleAdmin)).Get("/stalled", h.Approvals.StalledExpenses)
					apr.Post("/{id}/action", h.Approvals.Decide)
					apr.Get("/{id}/history", h.Approvals.History)
				})
			}

			if h.ApprovalRule != nil {
				pr.Route("/approval-rules", func(rr chi.Router) {
					rr.Use(middleware.RequireRole(internal.RoleAdmin))
					rr.Get("/", h.ApprovalRule.ListRules)
					rr.Post("/", h.ApprovalRule.CreateRule)
					rr.Get("/{id}", h.ApprovalRule.GetRule)
					rr.Put("/{id}", h.ApprovalRule.UpdateRule)
					rr.Delete("/{id}", h.ApprovalRule.DeleteRule)
					rr.Patch("/{id}/toggle", h.ApprovalRule.ToggleRule)
				})
			}
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		transport.NewBaseHandler(opts.Logger).WriteError(w, http.StatusNotFound, "route not found")
	})
}
