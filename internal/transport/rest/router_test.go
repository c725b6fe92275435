package rest_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
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
	approvalruleDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/approvalrule"
	companyDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/company"
	expenseDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/expense"
	userDatamodel "github.com/frahmantamala/expense-approval/internal/core/datamodel/user"
	"github.com/frahmantamala/expense-approval/internal/core/events"
	"github.com/frahmantamala/expense-approval/internal/currency"
	"github.com/frahmantamala/expense-approval/internal/expense"
	expensePostgres "github.com/frahmantamala/expense-approval/internal/expense/postgres"
	"github.com/frahmantamala/expense-approval/internal/transport/rest"
	"github.com/frahmantamala/expense-approval/internal/user"
	userPostgres "github.com/frahmantamala/expense-approval/internal/user/postgres"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type apiClient struct {
	router http.Handler
}

func (c apiClient) do(method, path, token string, body interface{}) (int, map[string]interface{}) {
	var buf bytes.Buffer
	if body != nil {
		Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
	}
	req := httptest.NewRequest(method, "/api/v1"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)

	out := map[string]interface{}{}
	if rec.Body.Len() > 0 {
		Expect(json.Unmarshal(rec.Body.Bytes(), &out)).To(Succeed(), rec.Body.String())
	}
	return rec.Code, out
}

func (c apiClient) login(email string) string {
	code, body := c.do(http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": "secret123"})
	Expect(code).To(Equal(http.StatusOK), fmt.Sprint(body))
	return body["access_token"].(string)
}

func id(body map[string]interface{}) int64 {
	return int64(body["id"].(float64))
}

var _ = Describe("Router", func() {
	var (
		db     *gorm.DB
		client apiClient
		bus    *events.EventBus
	)

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		Expect(db.AutoMigrate(
			&companyDatamodel.Company{},
			&userDatamodel.User{},
			&approvalruleDatamodel.ApprovalRule{},
			&approvalruleDatamodel.Approver{},
			&approvalruleDatamodel.ConditionalApprover{},
			&expenseDatamodel.Expense{},
			&expenseDatamodel.ApprovalHistory{},
		)).To(Succeed())

		userSvc := user.NewService(userPostgres.NewUserRepository(db), bcrypt.MinCost, discard)
		companySvc := company.NewService(companyPostgres.NewCompanyRepository(db), discard)
		rates := currency.NewRateClient(currency.Config{RatesURL: "http://127.0.0.1:1", Timeout: time.Second}, discard)
		expenseSvc := expense.NewService(expensePostgres.NewExpenseRepository(db), rates, companySvc, userSvc, discard)
		ruleRepo := rulePostgres.NewRuleRepository(db)
		ruleSvc := approvalrule.NewService(ruleRepo, userSvc, expenseSvc, discard)
		bus = events.NewEventBus(discard)
		controller := approval.NewController(approval.ControllerDeps{
			Expenses:  expensePostgres.NewExpenseRepository(db),
			Resolver:  approvalrule.NewResolver(ruleRepo, discard),
			Rules:     ruleSvc,
			Users:     userSvc,
			Admins:    companySvc,
			Publisher: bus,
		}, discard)
		tokens := auth.NewJWTTokenGenerator(internal.SecurityConfig{AccessTokenSecret: "a", RefreshTokenSecret: "r"})
		authSvc := auth.NewService(userSvc, companySvc, tokens, bcrypt.MinCost, discard)

		router := chi.NewRouter()
		rest.RegisterAllRoutes(router, rest.Handlers{
			Auth:         auth.NewHandler(authSvc, discard),
			Users:        user.NewHandler(userSvc, discard),
			Company:      company.NewHandler(companySvc, discard),
			Currency:     currency.NewHandler(rates, discard),
			Expenses:     expense.NewHandler(expenseSvc, discard),
			Approvals:    approval.NewHandler(controller, expenseSvc, discard),
			ApprovalRule: approvalrule.NewHandler(ruleSvc, discard),
			Categories:   category.NewHandler(category.NewService(categoryPostgres.NewCategoryRepository(db), discard), discard),
		}, rest.RouterOptions{AllowedOrigins: []string{"*"}, Logger: discard})
		client = apiClient{router: router}
	})

	AfterEach(func() {
		bus.Wait()
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		Expect(sqlDB.Close()).To(Succeed())
	})

	It("answers ping and the public country table", func() {
		code, body := client.do(http.MethodGet, "/ping", "", nil)
		Expect(code).To(Equal(http.StatusOK))
		Expect(body["status"]).To(Equal("OK"))

		code, _ = client.do(http.MethodGet, "/currency/countries", "", nil)
		Expect(code).To(Equal(http.StatusOK))
	})

	It("requires a token for protected routes", func() {
		code, _ := client.do(http.MethodGet, "/expenses", "", nil)
		Expect(code).To(Equal(http.StatusUnauthorized))

		code, _ = client.do(http.MethodGet, "/currency/rates/USD", "", nil)
		Expect(code).To(Equal(http.StatusUnauthorized))
	})

	It("runs an expense through a two-step rule chain", func() {
		// Given a tenant with a manager, an employee and a Travel rule
		code, reg := client.do(http.MethodPost, "/auth/register", "", map[string]string{
			"name": "Ada", "email": "ada@example.com", "password": "secret123", "country": "United States",
		})
		Expect(code).To(Equal(http.StatusCreated), fmt.Sprint(reg))
		adminToken := reg["access_token"].(string)
		adminID := id(reg["user"].(map[string]interface{}))

		code, mgr := client.do(http.MethodPost, "/users", adminToken, map[string]interface{}{
			"name": "Max", "email": "max@example.com", "password": "secret123", "role": "manager",
		})
		Expect(code).To(Equal(http.StatusCreated), fmt.Sprint(mgr))
		managerID := id(mgr)

		code, emp := client.do(http.MethodPost, "/users", adminToken, map[string]interface{}{
			"name": "Eve", "email": "eve@example.com", "password": "secret123", "role": "employee", "manager_id": managerID,
		})
		Expect(code).To(Equal(http.StatusCreated), fmt.Sprint(emp))

		code, rule := client.do(http.MethodPost, "/approval-rules", adminToken, map[string]interface{}{
			"name":     "Travel",
			"category": "Travel",
			"approvers": []map[string]interface{}{
				{"user_id": adminID, "sequence": 2},
				{"user_id": managerID, "sequence": 1},
			},
		})
		Expect(code).To(Equal(http.StatusCreated), fmt.Sprint(rule))

		employeeToken := client.login("eve@example.com")
		managerToken := client.login("max@example.com")

		code, _ = client.do(http.MethodGet, "/approval-rules", employeeToken, nil)
		Expect(code).To(Equal(http.StatusForbidden))

		// When the employee files and submits a Travel expense
		code, exp := client.do(http.MethodPost, "/expenses", employeeToken, map[string]interface{}{
			"description": "Flight", "category": "Travel", "amount": "420.50", "currency": "usd",
			"expense_date": "2026-03-01", "paid_by": "employee",
		})
		Expect(code).To(Equal(http.StatusCreated), fmt.Sprint(exp))
		Expect(exp["status"]).To(Equal("draft"))
		expenseID := id(exp)

		code, exp = client.do(http.MethodPost, fmt.Sprintf("/expenses/%d/submit", expenseID), employeeToken, nil)
		Expect(code).To(Equal(http.StatusOK), fmt.Sprint(exp))
		Expect(exp["status"]).To(Equal("pending"))
		Expect(exp["route"]).To(Equal("rule"))
		Expect(exp["current_approver_id"]).To(BeNumerically("==", managerID))

		// Then the admin cannot act out of turn
		code, _ = client.do(http.MethodPost, fmt.Sprintf("/approvals/%d/action", expenseID), adminToken, map[string]string{"action": "approved"})
		Expect(code).To(Equal(http.StatusNotFound))

		code, pending := client.do(http.MethodGet, "/approvals/pending", managerToken, nil)
		Expect(code).To(Equal(http.StatusOK))
		Expect(pending["expenses"]).To(HaveLen(1))

		code, exp = client.do(http.MethodPost, fmt.Sprintf("/approvals/%d/action", expenseID), managerToken, map[string]string{"action": "approved", "comment": "ok"})
		Expect(code).To(Equal(http.StatusOK), fmt.Sprint(exp))
		Expect(exp["status"]).To(Equal("pending"))
		Expect(exp["current_approver_id"]).To(BeNumerically("==", adminID))

		code, exp = client.do(http.MethodPost, fmt.Sprintf("/approvals/%d/action", expenseID), adminToken, map[string]string{"action": "approved"})
		Expect(code).To(Equal(http.StatusOK), fmt.Sprint(exp))
		Expect(exp["status"]).To(Equal("approved"))
		Expect(exp["current_approver_id"]).To(BeNil())

		code, hist := client.do(http.MethodGet, fmt.Sprintf("/approvals/%d/history", expenseID), employeeToken, nil)
		Expect(code).To(Equal(http.StatusOK))
		entries := hist["history"].([]interface{})
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].(map[string]interface{})["approver_id"]).To(BeNumerically("==", managerID))

		code, cats := client.do(http.MethodGet, "/categories", employeeToken, nil)
		Expect(code).To(Equal(http.StatusOK))
		list := cats["categories"].([]interface{})
		Expect(list).To(HaveLen(1))
		Expect(list[0].(map[string]interface{})["active_rule_id"]).To(BeNumerically("==", id(rule)))

		// And with nothing pending the rule can be deleted
		code, _ = client.do(http.MethodDelete, fmt.Sprintf("/approval-rules/%d", id(rule)), adminToken, nil)
		Expect(code).To(Equal(http.StatusNoContent))
	})

	It("falls back to the manager when no rule matches", func() {
		code, reg := client.do(http.MethodPost, "/auth/register", "", map[string]string{
			"name": "Ada", "email": "ada@example.com", "password": "secret123", "country": "Japan",
		})
		Expect(code).To(Equal(http.StatusCreated))
		adminToken := reg["access_token"].(string)

		code, mgr := client.do(http.MethodPost, "/users", adminToken, map[string]interface{}{
			"name": "Max", "email": "max@example.com", "password": "secret123", "role": "manager",
		})
		Expect(code).To(Equal(http.StatusCreated))
		code, _ = client.do(http.MethodPost, "/users", adminToken, map[string]interface{}{
			"name": "Eve", "email": "eve@example.com", "password": "secret123", "role": "employee", "manager_id": id(mgr),
		})
		Expect(code).To(Equal(http.StatusCreated))

		employeeToken := client.login("eve@example.com")
		code, exp := client.do(http.MethodPost, "/expenses", employeeToken, map[string]interface{}{
			"description": "Lunch", "category": "Meals", "amount": "1200", "currency": "JPY",
			"expense_date": "2026-03-01", "paid_by": "employee",
		})
		Expect(code).To(Equal(http.StatusCreated), fmt.Sprint(exp))

		code, exp = client.do(http.MethodPost, fmt.Sprintf("/expenses/%d/submit", id(exp)), employeeToken, nil)
		Expect(code).To(Equal(http.StatusOK))
		Expect(exp["route"]).To(Equal("manager"))

		code, exp = client.do(http.MethodPost, fmt.Sprintf("/approvals/%d/action", id(exp)), client.login("max@example.com"), map[string]string{"action": "rejected"})
		Expect(code).To(Equal(http.StatusOK))
		Expect(exp["status"]).To(Equal("rejected"))
	})
})
