package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/frahmantamala/expense-approval/internal"
)

type Config struct {
	RatesURL       string
	Timeout        time.Duration
	MaxRetries     uint64
	RetryBase      time.Duration
	CacheTTL       time.Duration
	CacheSize      int
	RequestsPerSec float64
	HTTPClient     *http.Client
}

// RateClient fetches exchange rates from a "latest rates" endpoint that
// answers GET {RatesURL}/{BASE} with {"base": "...", "rates": {...}}.
// Lookups are throttled, retried on transient failures, cached per base
// currency and deduplicated across concurrent callers.
type RateClient struct {
	ratesURL   string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *expirable.LRU[string, map[string]decimal.Decimal]
	group      singleflight.Group
	maxRetries uint64
	retryBase  time.Duration
	logger     *slog.Logger
}

type ratesResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

func NewRateClient(cfg Config, logger *slog.Logger) *RateClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 64
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 5
	}
	retryBase := cfg.RetryBase
	if retryBase <= 0 {
		retryBase = 100 * time.Millisecond
	}

	return &RateClient{
		ratesURL:   strings.TrimRight(cfg.RatesURL, "/"),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		cache:      expirable.NewLRU[string, map[string]decimal.Decimal](cacheSize, nil, ttl),
		maxRetries: cfg.MaxRetries,
		retryBase:  retryBase,
		logger:     logger,
	}
}

// Convert returns amount expressed in the target currency, rounded to cents.
// Identical currencies short-circuit without a lookup.
func (c *RateClient) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (Conversion, error) {
	from, err := NormalizeCode(from)
	if err != nil {
		return Conversion{}, err
	}
	to, err = NormalizeCode(to)
	if err != nil {
		return Conversion{}, err
	}

	if from == to {
		return Conversion{Amount: amount, Converted: amount, Rate: decimal.NewFromInt(1), From: from, To: to}, nil
	}

	rates, err := c.Rates(ctx, from)
	if err != nil {
		c.logger.Error("currency rate lookup failed", "error", err, "from", from, "to", to)
		return Conversion{}, internal.ErrCurrencyUnavailable.WithCause(err)
	}

	r, ok := rates[to]
	if !ok || !r.IsPositive() {
		c.logger.Warn("no exchange rate for currency pair", "from", from, "to", to)
		return Conversion{}, internal.ErrCurrencyUnavailable.WithCause(fmt.Errorf("no rate for %s to %s", from, to))
	}

	return Conversion{
		Amount:    amount,
		Converted: amount.Mul(r).Round(2),
		Rate:      r,
		From:      from,
		To:        to,
	}, nil
}

// RateTable returns the rates quoted against base.
func (c *RateClient) RateTable(ctx context.Context, base string) (RateTable, error) {
	base, err := NormalizeCode(base)
	if err != nil {
		return RateTable{}, err
	}
	rates, err := c.Rates(ctx, base)
	if err != nil {
		c.logger.Error("currency rate table lookup failed", "error", err, "base", base)
		return RateTable{}, internal.ErrCurrencyUnavailable.WithCause(err)
	}
	return RateTable{Base: base, Rates: rates}, nil
}

// Rates returns the rate table for base, from cache when fresh.
func (c *RateClient) Rates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	if rates, ok := c.cache.Get(base); ok {
		return rates, nil
	}

	v, err, shared := c.group.Do(base, func() (interface{}, error) {
		rates, err := c.fetch(ctx, base)
		if err != nil {
			return nil, err
		}
		c.cache.Add(base, rates)
		return rates, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("shared in-flight rate lookup", "base", base)
	}
	return v.(map[string]decimal.Decimal), nil
}

func (c *RateClient) fetch(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	var result map[string]decimal.Decimal
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.retryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ratesURL+"/"+base, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("rate request failed, retrying", "error", err, "base", base)
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			c.logger.Warn("rate provider unavailable, retrying", "status", resp.StatusCode, "base", base)
			return retry.RetryableError(fmt.Errorf("rate provider returned %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("rate provider returned %d", resp.StatusCode)
		}

		var body ratesResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("decode rates: %w", err)
		}
		if len(body.Rates) == 0 {
			return errors.New("rate provider returned no rates")
		}
		result = body.Rates
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
