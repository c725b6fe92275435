package currency_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/expense-approval/internal"
	"github.com/frahmantamala/expense-approval/internal/currency"
)

var _ = Describe("Country table", func() {
	It("maps countries case-insensitively", func() {
		Expect(currency.BaseCurrencyForCountry("japan")).To(Equal("JPY"))
		Expect(currency.BaseCurrencyForCountry(" United Kingdom ")).To(Equal("GBP"))
	})

	It("falls back to USD for unknown countries", func() {
		Expect(currency.BaseCurrencyForCountry("Atlantis")).To(Equal(currency.DefaultBaseCurrency))
	})

	It("hands out a copy of the table", func() {
		list := currency.Countries()
		list[0].Currency = "XXX"
		Expect(currency.Countries()[0].Currency).To(Equal("USD"))
	})
})

var _ = Describe("NormalizeCode", func() {
	It("upper-cases valid codes", func() {
		code, err := currency.NormalizeCode(" eur ")
		Expect(err).NotTo(HaveOccurred())
		Expect(code).To(Equal("EUR"))
	})

	DescribeTable("rejects malformed codes",
		func(code string) {
			_, err := currency.NormalizeCode(code)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
			details := appErr.Details.(internal.ValidationErrors)
			Expect(details.Errors[0].Code).To(Equal(string(internal.ErrCodeInvalidCurrency)))
		},
		Entry("too short", "US"),
		Entry("too long", "USDT"),
		Entry("digits", "U5D"),
		Entry("empty", ""),
	)
})

var _ = Describe("RateClient", func() {
	var (
		ctx     context.Context
		logger  *slog.Logger
		server  *httptest.Server
		calls   atomic.Int32
		handler http.HandlerFunc
	)

	newClient := func(retries uint64) *currency.RateClient {
		return currency.NewRateClient(currency.Config{
			RatesURL:       server.URL + "/latest/",
			Timeout:        time.Second,
			MaxRetries:     retries,
			RetryBase:      time.Millisecond,
			CacheTTL:       time.Minute,
			RequestsPerSec: 1000,
		}, logger)
	}

	BeforeEach(func() {
		ctx = context.Background()
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		calls.Store(0)
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"base":"USD","rates":{"EUR":0.9,"JPY":151.237}}`)
		}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			handler(w, r)
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("converts and rounds to cents", func() {
		var path string
		handler = func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			fmt.Fprint(w, `{"base":"USD","rates":{"EUR":0.9,"JPY":151.237}}`)
		}

		conv, err := newClient(0).Convert(ctx, decimal.RequireFromString("10.01"), "usd", "jpy")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("/latest/USD"))
		Expect(conv.From).To(Equal("USD"))
		Expect(conv.To).To(Equal("JPY"))
		Expect(conv.Rate.String()).To(Equal("151.237"))
		Expect(conv.Converted.String()).To(Equal("1513.88"))
	})

	It("skips the lookup for identical currencies", func() {
		conv, err := newClient(0).Convert(ctx, decimal.NewFromInt(42), "EUR", "eur")
		Expect(err).NotTo(HaveOccurred())
		Expect(conv.Converted.Equal(decimal.NewFromInt(42))).To(BeTrue())
		Expect(conv.Rate.Equal(decimal.NewFromInt(1))).To(BeTrue())
		Expect(calls.Load()).To(BeZero())
	})

	It("caches the rate table per base currency", func() {
		client := newClient(0)
		for i := 0; i < 3; i++ {
			_, err := client.Convert(ctx, decimal.NewFromInt(1), "USD", "EUR")
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(calls.Load()).To(Equal(int32(1)))
	})

	It("deduplicates concurrent lookups", func() {
		release := make(chan struct{})
		handler = func(w http.ResponseWriter, r *http.Request) {
			<-release
			fmt.Fprint(w, `{"base":"USD","rates":{"EUR":0.9}}`)
		}
		client := newClient(0)

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				_, err := client.Rates(ctx, "USD")
				Expect(err).NotTo(HaveOccurred())
			}()
		}
		Eventually(calls.Load).Should(Equal(int32(1)))
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()
		Expect(calls.Load()).To(Equal(int32(1)))
	})

	It("retries transient upstream failures", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			if calls.Load() < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			fmt.Fprint(w, `{"base":"USD","rates":{"EUR":0.5}}`)
		}

		conv, err := newClient(3).Convert(ctx, decimal.NewFromInt(10), "USD", "EUR")
		Expect(err).NotTo(HaveOccurred())
		Expect(conv.Converted.String()).To(Equal("5"))
		Expect(calls.Load()).To(Equal(int32(3)))
	})

	It("reports the upstream as unavailable once retries run out", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_, err := newClient(2).Convert(ctx, decimal.NewFromInt(10), "USD", "EUR")
		Expect(errors.Is(err, internal.ErrCurrencyUnavailable)).To(BeTrue())
		Expect(calls.Load()).To(Equal(int32(3)))
	})

	It("does not retry client errors", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}

		_, err := newClient(3).Convert(ctx, decimal.NewFromInt(10), "USD", "EUR")
		Expect(errors.Is(err, internal.ErrCurrencyUnavailable)).To(BeTrue())
		Expect(calls.Load()).To(Equal(int32(1)))
	})

	It("reports a missing target currency as unavailable", func() {
		_, err := newClient(0).Convert(ctx, decimal.NewFromInt(10), "USD", "GBP")
		Expect(errors.Is(err, internal.ErrCurrencyUnavailable)).To(BeTrue())
	})

	Describe("Handler", func() {
		It("converts through POST /currency/convert", func() {
			h := currency.NewHandler(newClient(0), logger)
			req := httptest.NewRequest(http.MethodPost, "/currency/convert",
				bytes.NewBufferString(`{"amount":"20","from":"USD","to":"EUR"}`))
			rec := httptest.NewRecorder()

			h.Convert(rec, req)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"converted":"18"`))
		})

		It("serves the rate table through GET /currency/rates/{base}", func() {
			r := chi.NewRouter()
			r.Get("/currency/rates/{base}", currency.NewHandler(newClient(0), logger).GetRates)
			rec := httptest.NewRecorder()

			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/currency/rates/usd", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"base":"USD"`))
			Expect(rec.Body.String()).To(ContainSubstring(`"EUR":"0.9"`))
		})

		It("rejects a malformed base currency without calling upstream", func() {
			r := chi.NewRouter()
			r.Get("/currency/rates/{base}", currency.NewHandler(newClient(0), logger).GetRates)
			rec := httptest.NewRecorder()

			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/currency/rates/US1", nil))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(calls.Load()).To(BeZero())
		})

		It("rejects non-positive amounts", func() {
			h := currency.NewHandler(newClient(0), logger)
			req := httptest.NewRequest(http.MethodPost, "/currency/convert",
				bytes.NewBufferString(`{"amount":"0","from":"USD","to":"EUR"}`))
			rec := httptest.NewRecorder()

			h.Convert(rec, req)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(calls.Load()).To(BeZero())
		})
	})
})
