package user_test

import (
	"context"
	"errors"
	"log/slog"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/expense-approval/internal"
	userDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/user"
	"github.com/frahmantamala/expense-approval/internal/user"
	userPostgres "github.com/frahmantamala/expense-approval/internal/user/postgres"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool     { return &b }
func idPtr(id int64) *int64    { return &id }

func fieldCode(err error) string {
	appErr, ok := internal.IsAppError(err)
	Expect(ok).To(BeTrue(), "expected AppError, got %v", err)
	details, ok := appErr.Details.(internal.ValidationErrors)
	Expect(ok).To(BeTrue())
	Expect(details.Errors).NotTo(BeEmpty())
	return details.Errors[0].Code
}

var _ = Describe("User Service", func() {
	var (
		ctx     context.Context
		db      *gorm.DB
		repo    *userPostgres.UserRepository
		service *user.Service
		admin   *user.User
		actor   internal.ActorContext
	)

	seed := func(companyID int64, name string, role internal.Role, active bool) *user.User {
		u := &user.User{
			CompanyID:    companyID,
			Name:         name,
			Email:        name + "@example.com",
			PasswordHash: "x",
			Role:         role,
			IsActive:     active,
		}
		Expect(repo.Create(ctx, u)).To(Succeed())
		return u
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
		Expect(db.AutoMigrate(&userDatamodel.User{})).To(Succeed())

		repo = userPostgres.NewUserRepository(db)
		service = user.NewService(repo, bcrypt.MinCost, lg)

		admin = seed(1, "root", internal.RoleAdmin, true)
		actor = admin.Actor()
	})

	AfterEach(func() {
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).To(Succeed())
	})

	Describe("CreateUser", func() {
		It("creates an active user in the admin's company with a hashed password", func() {
			mgr := seed(1, "mia", internal.RoleManager, true)

			u, err := service.CreateUser(ctx, actor, user.CreateUserDTO{
				Name: "Eve", Email: "Eve@Example.COM", Password: "secret1", Role: "employee", ManagerID: idPtr(mgr.ID),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(u.CompanyID).To(Equal(int64(1)))
			Expect(u.Email).To(Equal("eve@example.com"))
			Expect(u.IsActive).To(BeTrue())
			Expect(*u.ManagerID).To(Equal(mgr.ID))
			Expect(bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret1"))).To(Succeed())
		})

		It("refuses non-admins", func() {
			mgr := seed(1, "mia", internal.RoleManager, true)
			_, err := service.CreateUser(ctx, mgr.Actor(), user.CreateUserDTO{
				Name: "Eve", Email: "eve@example.com", Password: "secret1", Role: "employee",
			})
			Expect(errors.Is(err, internal.ErrForbiddenRole)).To(BeTrue())
		})

		It("refuses a taken email regardless of case", func() {
			_, err := service.CreateUser(ctx, actor, user.CreateUserDTO{
				Name: "Dup", Email: "ROOT@example.com", Password: "secret1", Role: "employee",
			})
			Expect(errors.Is(err, internal.ErrEmailTaken)).To(BeTrue())
		})

		It("cannot create a second admin", func() {
			_, err := service.CreateUser(ctx, actor, user.CreateUserDTO{
				Name: "Boss", Email: "boss@example.com", Password: "secret1", Role: "admin",
			})
			Expect(err).To(HaveOccurred())
			appErr, _ := internal.IsAppError(err)
			Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
		})

		DescribeTable("validates the manager link",
			func(setup func() int64) {
				_, err := service.CreateUser(ctx, actor, user.CreateUserDTO{
					Name: "Eve", Email: "eve@example.com", Password: "secret1", Role: "employee", ManagerID: idPtr(setup()),
				})
				Expect(fieldCode(err)).To(Equal(string(internal.ErrCodeInvalidManager)))
			},
			Entry("unknown user", func() int64 { return 999 }),
			Entry("other company", func() int64 { return seed(2, "otto", internal.RoleManager, true).ID }),
			Entry("not a manager", func() int64 { return seed(1, "emp", internal.RoleEmployee, true).ID }),
			Entry("inactive manager", func() int64 { return seed(1, "gone", internal.RoleManager, false).ID }),
		)
	})

	Describe("AssignManager", func() {
		It("sets and clears the manager", func() {
			mgr := seed(1, "mia", internal.RoleManager, true)
			emp := seed(1, "emp", internal.RoleEmployee, true)

			u, err := service.AssignManager(ctx, actor, emp.ID, user.AssignManagerDTO{ManagerID: idPtr(mgr.ID)})
			Expect(err).NotTo(HaveOccurred())
			Expect(*u.ManagerID).To(Equal(mgr.ID))

			u, err = service.AssignManager(ctx, actor, emp.ID, user.AssignManagerDTO{})
			Expect(err).NotTo(HaveOccurred())
			Expect(u.ManagerID).To(BeNil())

			stored, err := repo.GetByID(ctx, emp.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.ManagerID).To(BeNil())
		})

		It("rejects a user managing themselves", func() {
			mgr := seed(1, "mia", internal.RoleManager, true)
			_, err := service.AssignManager(ctx, actor, mgr.ID, user.AssignManagerDTO{ManagerID: idPtr(mgr.ID)})
			Expect(fieldCode(err)).To(Equal(string(internal.ErrCodeInvalidManager)))
		})

		It("hides users of other companies", func() {
			other := seed(2, "otto", internal.RoleEmployee, true)
			_, err := service.AssignManager(ctx, actor, other.ID, user.AssignManagerDTO{})
			Expect(errors.Is(err, internal.ErrUserNotFound)).To(BeTrue())
		})
	})

	Describe("UpdateUser", func() {
		It("updates name, role and active flag", func() {
			emp := seed(1, "emp", internal.RoleEmployee, true)
			u, err := service.UpdateUser(ctx, actor, emp.ID, user.UpdateUserDTO{
				Name: strPtr("Emma"), Role: strPtr("manager"), IsActive: boolPtr(false),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Name).To(Equal("Emma"))
			Expect(u.Role).To(Equal(internal.RoleManager))
			Expect(u.IsActive).To(BeFalse())
		})

		It("keeps the company admin an admin", func() {
			_, err := service.UpdateUser(ctx, actor, admin.ID, user.UpdateUserDTO{Role: strPtr("employee")})
			Expect(err).To(HaveOccurred())
		})

		It("stops admins deactivating themselves", func() {
			_, err := service.UpdateUser(ctx, actor, admin.ID, user.UpdateUserDTO{IsActive: boolPtr(false)})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("listings", func() {
		It("lists only active managers of the actor's company", func() {
			seed(1, "mia", internal.RoleManager, true)
			seed(1, "gone", internal.RoleManager, false)
			seed(2, "otto", internal.RoleManager, true)

			managers, err := service.ListManagers(ctx, actor)
			Expect(err).NotTo(HaveOccurred())
			Expect(managers).To(HaveLen(1))
			Expect(managers[0].Name).To(Equal("mia"))
		})

		It("limits the user list to admins and managers", func() {
			emp := seed(1, "emp", internal.RoleEmployee, true)
			_, err := service.ListUsers(ctx, emp.Actor())
			Expect(errors.Is(err, internal.ErrForbiddenRole)).To(BeTrue())

			users, err := service.ListUsers(ctx, actor)
			Expect(err).NotTo(HaveOccurred())
			Expect(users).To(HaveLen(2))
		})

		It("returns the team of a manager", func() {
			mgr := seed(1, "mia", internal.RoleManager, true)
			emp := seed(1, "emp", internal.RoleEmployee, true)
			_, err := service.AssignManager(ctx, actor, emp.ID, user.AssignManagerDTO{ManagerID: idPtr(mgr.ID)})
			Expect(err).NotTo(HaveOccurred())

			ids, err := service.TeamMemberIDs(ctx, mgr.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(ConsistOf(emp.ID))
		})
	})
})
