package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/approval"
	"github.com/frahmantamala/expense-approval/internal/approvalrule"
	rulePostgres "github.com/frahmantamala/expense-approval/internal/approvalrule/postgres"
	"github.com/frahmantamala/expense-approval/internal/auth"
	"github.com/frahmantamala/expense-approval/internal/category"
	categoryPostgres "github.com/frahmantamala/expense-approval/internal/category/postgres"
	"github.com/frahmantamala/expense-approval/internal/company"
	companyPostgres "github.com/frahmantamala/expense-approval/internal/company/postgres"
	"github.com/frahmantamala/expense-approval/internal/core/events"
	"github.com/frahmantamala/expense-approval/internal/currency"
	"github.com/frahmantamala/expense-approval/internal/expense"
	expensePostgres "github.com/frahmantamala/expense-approval/internal/expense/postgres"
	"github.com/frahmantamala/expense-approval/internal/notification"
	"github.com/frahmantamala/expense-approval/internal/transport/middleware"
	"github.com/frahmantamala/expense-approval/internal/transport/rest"
	"github.com/frahmantamala/expense-approval/internal/transport/swagger"
	"github.com/frahmantamala/expense-approval/internal/user"
	userPostgres "github.com/frahmantamala/expense-approval/internal/user/postgres"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startHTTPServer()
	},
}

type Dependencies struct {
	Config     *internal.Config
	DB         *sqlx.DB
	Gorm       *gorm.DB
	Router     *chi.Mux
	EventBus   *events.EventBus
	Dispatcher *notification.Dispatcher
	Logger     *slog.Logger
}

func startHTTPServer() error {
	deps, err := initializeDependencies()
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	lg := deps.Logger

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		lg.Info("starting HTTP server", "address", addr)
		serverErrChan <- server.ListenAndServe()
	}()

	var runErr error
	select {
	case sig := <-sigChan:
		lg.Info("received signal, shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			lg.Error("server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server failed: %w", err)
		}
	}

	deps.shutdown()
	lg.Info("server stopped")
	return runErr
}

// shutdown drains in-flight events and notifications before closing the
// database.
func (d *Dependencies) shutdown() {
	d.EventBus.Wait()
	d.Dispatcher.Close()
	if err := d.DB.Close(); err != nil {
		d.Logger.Error("database close error", "error", err)
	}
}

func initializeDependencies() (*Dependencies, error) {
	cfg, lg, err := bootstrap()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	gdb, err := initGorm(db, cfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	spec, err := swagger.LoadSpec(context.Background(), cfg.Server.OpenAPIPath)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	lg.Info("openapi spec loaded", "path", cfg.Server.OpenAPIPath, "operations", spec.Operations())

	authLimiter, err := middleware.NewRateLimiter(cfg.RateLimit.Auth)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	notifier, err := notification.NewNotifier(cfg.Notification, lg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize notifier: %w", err)
	}
	dispatcher := notification.NewDispatcher(notifier, notification.DispatcherConfig{
		Workers:    cfg.Notification.Workers,
		QueueSize:  cfg.Notification.QueueSize,
		MaxRetries: 3,
	}, lg)
	bus := events.NewEventBus(lg)
	notification.Register(bus, dispatcher, lg)

	// repositories
	userRepo := userPostgres.NewUserRepository(gdb)
	companyRepo := companyPostgres.NewCompanyRepository(gdb)
	expenseRepo := expensePostgres.NewExpenseRepository(gdb)
	ruleRepo := rulePostgres.NewRuleRepository(gdb)

	// services
	rates := currency.NewRateClient(currencyConfig(cfg.Currency), lg)
	userSvc := user.NewService(userRepo, cfg.Security.BCryptCost, lg)
	companySvc := company.NewService(companyRepo, lg)
	expenseSvc := expense.NewService(expenseRepo, rates, companySvc, userSvc, lg)
	ruleSvc := approvalrule.NewService(ruleRepo, userSvc, expenseSvc, lg)
	controller := approval.NewController(approval.ControllerDeps{
		Expenses:  expenseRepo,
		Resolver:  approvalrule.NewResolver(ruleRepo, lg),
		Rules:     ruleSvc,
		Users:     userSvc,
		Admins:    companySvc,
		Publisher: bus,
	}, lg)
	authSvc := auth.NewService(userSvc, companySvc, auth.NewJWTTokenGenerator(cfg.Security), cfg.Security.BCryptCost, lg)

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, rest.Handlers{
		Auth:         auth.NewHandler(authSvc, lg),
		Users:        user.NewHandler(userSvc, lg),
		Company:      company.NewHandler(companySvc, lg),
		Currency:     currency.NewHandler(rates, lg),
		Expenses:     expense.NewHandler(expenseSvc, lg),
		Approvals:    approval.NewHandler(controller, expenseSvc, lg),
		ApprovalRule: approvalrule.NewHandler(ruleSvc, lg),
		Categories:   category.NewHandler(category.NewService(categoryPostgres.NewCategoryRepository(gdb), lg), lg),
	}, rest.RouterOptions{
		DB:             db,
		Spec:           spec,
		AllowedOrigins: cfg.Server.Origins(),
		AuthLimiter:    authLimiter,
		Logger:         lg,
	})

	return &Dependencies{
		Config:     cfg,
		DB:         db,
		Gorm:       gdb,
		Router:     router,
		EventBus:   bus,
		Dispatcher: dispatcher,
		Logger:     lg,
	}, nil
}

func currencyConfig(c internal.CurrencyConfig) currency.Config {
	return currency.Config{
		RatesURL:       c.RatesURL,
		Timeout:        c.Timeout,
		MaxRetries:     c.MaxRetries,
		CacheTTL:       c.CacheTTL,
		CacheSize:      c.CacheSize,
		RequestsPerSec: c.RequestsPerSec,
	}
}

// initDB opens the pgx-backed connection pool shared by sqlx and gorm.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	db, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// initGorm wraps the existing pool. TranslateError maps unique violations to
// gorm.ErrDuplicatedKey, which the repositories rely on.
func initGorm(db *sqlx.DB, cfg *internal.Config) (*gorm.DB, error) {
	level := gormlogger.Warn
	if cfg.Logging.Level == "debug" {
		level = gormlogger.Info
	}
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(level),
	})
}
