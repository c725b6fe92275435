package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/transport/middleware"
	"github.com/frahmantamala/expense-approval/pkg/logger"
)

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func errorCode(rec *httptest.ResponseRecorder) string {
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
	return body.Error.Code
}

var _ = Describe("RequireRole", func() {
	guarded := middleware.RequireRole(internal.RoleAdmin)(http.HandlerFunc(ok))

	It("rejects unauthenticated requests", func() {
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("forbids other roles", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(internal.ContextWithActor(req.Context(),
			internal.ActorContext{UserID: 1, CompanyID: 1, Role: internal.RoleEmployee}))

		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusForbidden))
		Expect(errorCode(rec)).To(Equal(string(internal.ErrCodeForbiddenRole)))
	})

	It("passes allowed roles", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(internal.ContextWithActor(req.Context(),
			internal.ActorContext{UserID: 1, CompanyID: 1, Role: internal.RoleAdmin}))

		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusOK))
	})
})

var _ = Describe("RateLimit", func() {
	It("returns 429 once the budget is spent", func() {
		l, err := middleware.NewRateLimiter("2-M")
		Expect(err).NotTo(HaveOccurred())
		h := middleware.RateLimit(l)(http.HandlerFunc(ok))

		codes := make([]int, 3)
		for i := range codes {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
			req.RemoteAddr = "10.0.0.1:5555"
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}
		Expect(codes).To(Equal([]int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}))
	})

	It("rejects malformed rates", func() {
		_, err := middleware.NewRateLimiter("lots")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("RequestID", func() {
	It("echoes a caller trace id", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(middleware.TraceHeader, "trace-123")
		rec := httptest.NewRecorder()
		middleware.RequestID(http.HandlerFunc(ok)).ServeHTTP(rec, req)
		Expect(rec.Header().Get(middleware.TraceHeader)).To(Equal("trace-123"))
	})

	It("mints one when absent", func() {
		rec := httptest.NewRecorder()
		middleware.RequestID(http.HandlerFunc(ok)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		Expect(rec.Header().Get(middleware.TraceHeader)).To(HaveLen(36))
	})
})

var _ = Describe("CORS", func() {
	It("answers preflight for allowed origins", func() {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/expenses", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		rec := httptest.NewRecorder()

		middleware.CORS([]string{"https://app.example.com"})(http.HandlerFunc(ok)).ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("https://app.example.com"))
		Expect(rec.Header().Get("Access-Control-Max-Age")).To(Equal("600"))
	})

	It("allows the trace header on preflight and exposes it on responses", func() {
		pre := httptest.NewRequest(http.MethodOptions, "/api/v1/expenses", nil)
		pre.Header.Set("Origin", "https://app.example.com")
		pre.Header.Set("Access-Control-Request-Method", "PATCH")
		pre.Header.Set("Access-Control-Request-Headers", "Authorization, "+middleware.TraceHeader)
		rec := httptest.NewRecorder()

		cors := middleware.CORS([]string{"https://app.example.com/"})
		cors(http.HandlerFunc(ok)).ServeHTTP(rec, pre)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Header().Get("Access-Control-Allow-Methods")).To(Equal("PATCH"))
		Expect(strings.ToLower(rec.Header().Get("Access-Control-Allow-Headers"))).To(ContainSubstring("x-trace-id"))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/expenses", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rec = httptest.NewRecorder()
		cors(http.HandlerFunc(ok)).ServeHTTP(rec, req)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(strings.EqualFold(rec.Header().Get("Access-Control-Expose-Headers"), middleware.TraceHeader)).To(BeTrue())
	})

	It("answers any origin with a wildcard", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://anywhere.example.com")
		rec := httptest.NewRecorder()

		middleware.CORS([]string{"*"})(http.HandlerFunc(ok)).ServeHTTP(rec, req)
		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("*"))
	})

	It("leaves other origins without allow headers", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()

		middleware.CORS([]string{"https://app.example.com"})(http.HandlerFunc(ok)).ServeHTTP(rec, req)
		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(BeEmpty())
		Expect(rec.Code).To(Equal(http.StatusOK))
	})
})

var _ = Describe("RecoveryMiddleware", func() {
	It("converts panics into a 500", func() {
		boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
		rec := httptest.NewRecorder()
		quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

		middleware.RecoveryMiddleware(quiet)(boom).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		Expect(rec.Body.String()).NotTo(ContainSubstring("boom"))
	})
})

var _ = Describe("LoggingMiddleware", func() {
	It("masks sensitive fields in logged bodies", func() {
		var buf bytes.Buffer
		l := slog.New(slog.NewTextHandler(&buf, nil))

		echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write(body)
		})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
			strings.NewReader(`{"email":"a@example.com","password":"hunter22"}`))
		req.Header.Set("Authorization", "Bearer abc")
		req = req.WithContext(logger.With(logger.WithLogger(context.Background(), l), "trace_id", "t-1"))

		rec := httptest.NewRecorder()
		middleware.LoggingMiddleware(echo).ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusCreated))
		Expect(rec.Body.String()).To(ContainSubstring("hunter22"))
		Expect(buf.String()).NotTo(ContainSubstring("hunter22"))
		Expect(buf.String()).NotTo(ContainSubstring("Bearer abc"))
		Expect(buf.String()).To(ContainSubstring("trace_id=t-1"))
		Expect(buf.String()).To(ContainSubstring("status_code=201"))
	})
})
