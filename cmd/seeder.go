package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/approvalrule"
	rulePostgres "github.com/frahmantamala/expense-approval/internal/approvalrule/postgres"
	"github.com/frahmantamala/expense-approval/internal/company"
	companyPostgres "github.com/frahmantamala/expense-approval/internal/company/postgres"
	"github.com/frahmantamala/expense-approval/internal/currency"
	"github.com/frahmantamala/expense-approval/internal/user"
	userPostgres "github.com/frahmantamala/expense-approval/internal/user/postgres"
)

const (
	seedPassword     = "password"
	seedAdminEmail   = "admin@acme.test"
	seedCompanyName  = "Acme Corp"
	seedCountry      = "United States"
	seedRuleCategory = "Travel"
)

var clearData bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed a demo company with an admin, a manager, two employees and a Travel approval rule.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return seed(ctx)
	},
}

// seedTables are cleared children first.
var seedTables = []string{
	"expense_approval_history",
	"expenses",
	"approval_rule_conditional_approvers",
	"approval_rule_approvers",
	"approval_rules",
	"users",
	"companies",
}

func seed(ctx context.Context) error {
	cfg, lg, err := bootstrap()
	if err != nil {
		return err
	}
	db, err := initDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	gdb, err := initGorm(db, cfg)
	if err != nil {
		return err
	}

	if clearData {
		if err := clearTables(ctx, gdb); err != nil {
			return err
		}
		lg.Info("cleared existing data")
	}

	userRepo := userPostgres.NewUserRepository(gdb)
	if _, err := userRepo.GetByEmail(ctx, seedAdminEmail); err == nil {
		lg.Info("seed data already present, nothing to do", "admin_email", seedAdminEmail)
		return nil
	} else if !errors.Is(err, internal.ErrUserNotFound) {
		return err
	}

	userSvc := user.NewService(userRepo, cfg.Security.BCryptCost, lg)
	companySvc := company.NewService(companyPostgres.NewCompanyRepository(gdb), lg)

	hash, err := userSvc.HashPassword(seedPassword)
	if err != nil {
		return err
	}
	acme := &company.Company{
		Name:         seedCompanyName,
		Country:      seedCountry,
		BaseCurrency: currency.BaseCurrencyForCountry(seedCountry),
	}
	admin := &user.User{
		Name:         "Alice Admin",
		Email:        seedAdminEmail,
		PasswordHash: hash,
		Role:         internal.RoleAdmin,
		IsActive:     true,
	}
	if err := companySvc.Register(ctx, acme, admin); err != nil {
		return fmt.Errorf("seed company: %w", err)
	}
	actor := admin.Actor()

	manager, err := userSvc.CreateUser(ctx, actor, user.CreateUserDTO{
		Name: "Mark Manager", Email: "manager@acme.test", Password: seedPassword, Role: string(internal.RoleManager),
	})
	if err != nil {
		return fmt.Errorf("seed manager: %w", err)
	}
	for _, e := range []struct{ name, email string }{
		{"Erin Employee", "erin@acme.test"},
		{"Evan Employee", "evan@acme.test"},
	} {
		if _, err := userSvc.CreateUser(ctx, actor, user.CreateUserDTO{
			Name: e.name, Email: e.email, Password: seedPassword, Role: string(internal.RoleEmployee), ManagerID: &manager.ID,
		}); err != nil {
			return fmt.Errorf("seed employee %s: %w", e.email, err)
		}
	}

	ruleSvc := approvalrule.NewService(rulePostgres.NewRuleRepository(gdb), userSvc, nil, lg)
	pct := 100
	rule, err := ruleSvc.CreateRule(ctx, actor, approvalrule.CreateRuleDTO{
		Name:     "Travel approvals",
		Category: seedRuleCategory,
		Approvers: []approvalrule.Approver{
			{UserID: manager.ID, Sequence: 1},
			{UserID: admin.ID, Sequence: 2},
		},
		MinimumApprovalPercentage: &pct,
	})
	if err != nil {
		return fmt.Errorf("seed rule: %w", err)
	}

	lg.Info("seed complete",
		"company_id", acme.ID,
		"admin_email", seedAdminEmail,
		"rule_id", rule.ID,
		"password", "[FILTERED]")
	fmt.Printf("Seeded %s (company %d). Log in as %s, manager@acme.test, erin@acme.test or evan@acme.test with password %q.\n",
		acme.Name, acme.ID, seedAdminEmail, seedPassword)
	return nil
}

func clearTables(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range seedTables {
			if err := tx.Exec("DELETE FROM " + t).Error; err != nil {
				return fmt.Errorf("clear %s: %w", t, err)
			}
		}
		return nil
	})
}

func init() {
	seedCmd.Flags().BoolVar(&clearData, "clear", false, "Clear existing data before seeding")
}
