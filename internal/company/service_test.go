package company_test

import (
	"context"
	"errors"
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/company"
	companyPostgres "github.com/frahmantamala/expense-approval/internal/company/postgres"
	companyDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/company"
	userDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/user"
	"github.com/frahmantamala/expense-approval/internal/user"
)

var _ = Describe("Company Service", func() {
	var (
		ctx     context.Context
		db      *gorm.DB
		service *company.Service
	)

	register := func(name, email string) (*company.Company, *user.User, error) {
		c := &company.Company{Name: name, Country: "Japan", BaseCurrency: "JPY"}
		admin := &user.User{Name: "Admin", Email: email, PasswordHash: "x", Role: internal.RoleAdmin, IsActive: true}
		return c, admin, service.Register(ctx, c, admin)
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
			TranslateError: true,
		})
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		Expect(db.AutoMigrate(&companyDatamodel.Company{}, &userDatamodel.User{})).To(Succeed())

		service = company.NewService(companyPostgres.NewCompanyRepository(db), lg)
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).To(Succeed())
	})

	Describe("Register", func() {
		It("creates the company and links its admin", func() {
			c, admin, err := register("Acme", "root@acme.test")
			Expect(err).NotTo(HaveOccurred())
			Expect(c.ID).To(BeNumerically(">", 0))
			Expect(admin.CompanyID).To(Equal(c.ID))
			Expect(c.AdminUserID).NotTo(BeNil())
			Expect(*c.AdminUserID).To(Equal(admin.ID))

			adminID, err := service.AdminUserID(ctx, c.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(*adminID).To(Equal(admin.ID))
		})

		It("rolls the company back when the admin email is taken", func() {
			_, _, err := register("Acme", "root@acme.test")
			Expect(err).NotTo(HaveOccurred())

			_, _, err = register("Copycat", "root@acme.test")
			Expect(errors.Is(err, internal.ErrEmailTaken)).To(BeTrue())

			var count int64
			Expect(db.Model(&companyDatamodel.Company{}).Count(&count).Error).NotTo(HaveOccurred())
			Expect(count).To(Equal(int64(1)))
		})
	})

	Describe("UpdateCompany", func() {
		var (
			c     *company.Company
			admin *user.User
		)

		BeforeEach(func() {
			var err error
			c, admin, err = register("Acme", "root@acme.test")
			Expect(err).NotTo(HaveOccurred())
		})

		It("changes name and country but never the base currency", func() {
			name, country := "Acme KK", "Brazil"
			updated, err := service.UpdateCompany(ctx, admin.Actor(), company.UpdateCompanyDTO{Name: &name, Country: &country})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Name).To(Equal("Acme KK"))
			Expect(updated.Country).To(Equal("Brazil"))
			Expect(updated.BaseCurrency).To(Equal("JPY"))

			reloaded, err := service.GetByID(ctx, c.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(reloaded.BaseCurrency).To(Equal("JPY"))
			Expect(reloaded.Name).To(Equal("Acme KK"))
		})

		It("is admin only", func() {
			name := "Hijack"
			actor := internal.ActorContext{UserID: 99, CompanyID: c.ID, Role: internal.RoleManager}
			_, err := service.UpdateCompany(ctx, actor, company.UpdateCompanyDTO{Name: &name})
			Expect(errors.Is(err, internal.ErrForbiddenRole)).To(BeTrue())
		})

		It("reports a missing company", func() {
			_, err := service.GetCompany(ctx, internal.ActorContext{UserID: 1, CompanyID: 404, Role: internal.RoleAdmin})
			Expect(errors.Is(err, internal.ErrCompanyNotFound)).To(BeTrue())
		})
	})
})
