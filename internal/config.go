package internal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ulule/limiter/v3"
)

type Config struct {
	Env          string             `mapstructure:"env" env:"APP_ENV" envDefault:"development"`
	Server       ServerConfig       `mapstructure:"http_server" envPrefix:"HTTP_SERVER_"`
	Database     DatabaseConfig     `mapstructure:"database" envPrefix:"DATABASE_"`
	Security     SecurityConfig     `mapstructure:"security" envPrefix:"SECURITY_"`
	Currency     CurrencyConfig     `mapstructure:"currency" envPrefix:"CURRENCY_"`
	Notification NotificationConfig `mapstructure:"notification" envPrefix:"NOTIFICATION_"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Logging      LoggingConfig      `mapstructure:"logging" envPrefix:"LOGGING_"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" env:"PORT" envDefault:"8080"`
	BaseURL           string        `mapstructure:"base_url" env:"BASE_URL"`
	AllowedOrigins    string        `mapstructure:"allowed_origins" env:"ALLOWED_ORIGINS" envDefault:"*"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" env:"READ_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" env:"IDLE_TIMEOUT" envDefault:"60s"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" env:"WRITE_TIMEOUT" envDefault:"15s"`
	OpenAPIPath       string        `mapstructure:"openapi_path" env:"OPENAPI_PATH" envDefault:"./api/openapi.yml"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" env:"MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" env:"CONN_MAX_LIFETIME" envDefault:"30m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME" envDefault:"5m"`
	Source          string        `mapstructure:"source" env:"SOURCE,required"`
}

type SecurityConfig struct {
	AccessTokenSecret    string        `mapstructure:"access_token_secret" env:"ACCESS_TOKEN_SECRET,required"`
	RefreshTokenSecret   string        `mapstructure:"refresh_token_secret" env:"REFRESH_TOKEN_SECRET,required"`
	AccessTokenDuration  time.Duration `mapstructure:"access_token_duration" env:"ACCESS_TOKEN_DURATION" envDefault:"15m"`
	RefreshTokenDuration time.Duration `mapstructure:"refresh_token_duration" env:"REFRESH_TOKEN_DURATION" envDefault:"168h"`
	BCryptCost           int           `mapstructure:"bcrypt_cost" env:"BCRYPT_COST" envDefault:"12"`
}

type CurrencyConfig struct {
	RatesURL       string        `mapstructure:"rates_url" env:"RATES_URL" envDefault:"https://api.exchangerate-api.com/v4/latest"`
	Timeout        time.Duration `mapstructure:"timeout" env:"TIMEOUT" envDefault:"5s"`
	MaxRetries     uint64        `mapstructure:"max_retries" env:"MAX_RETRIES" envDefault:"3"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl" env:"CACHE_TTL" envDefault:"10m"`
	CacheSize      int           `mapstructure:"cache_size" env:"CACHE_SIZE" envDefault:"64"`
	RequestsPerSec float64       `mapstructure:"requests_per_sec" env:"REQUESTS_PER_SEC" envDefault:"5"`
}

type NotificationConfig struct {
	Driver        string `mapstructure:"driver" env:"DRIVER" envDefault:"log"`
	NATSURL       string `mapstructure:"nats_url" env:"NATS_URL"`
	SubjectPrefix string `mapstructure:"subject_prefix" env:"SUBJECT_PREFIX" envDefault:"expense"`
	Workers       int    `mapstructure:"workers" env:"WORKERS" envDefault:"4"`
	QueueSize     int    `mapstructure:"queue_size" env:"QUEUE_SIZE" envDefault:"100"`
}

type RateLimitConfig struct {
	// Auth uses the limiter's formatted rate, e.g. "5-M" for five per minute.
	Auth string `mapstructure:"auth" env:"AUTH" envDefault:"10-M"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" env:"LEVEL" envDefault:"info"`
	Format string `mapstructure:"format" env:"FORMAT" envDefault:"text"`
}

// LoadConfigFromEnv builds the configuration purely from the process
// environment, used for container deployments where no config file exists.
func LoadConfigFromEnv() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}
	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}
	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}
	if err := c.Currency.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("currency config: %v", err))
	}
	if err := c.Notification.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("notification config: %v", err))
	}
	if err := c.RateLimit.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("rate limit config: %v", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.AllowedOrigins != "" {
		for _, origin := range strings.Split(c.AllowedOrigins, ",") {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *ServerConfig) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxOpenConns < 1 {
		return errors.New("max_open_conns must be at least 1")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *SecurityConfig) Validate() error {
	if len(c.AccessTokenSecret) < 32 {
		return errors.New("access_token_secret must be at least 32 characters")
	}
	if len(c.RefreshTokenSecret) < 32 {
		return errors.New("refresh_token_secret must be at least 32 characters")
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return errors.New("access and refresh token secrets must differ")
	}
	if c.BCryptCost < 10 || c.BCryptCost > 15 {
		return errors.New("bcrypt_cost must be between 10 and 15")
	}
	if c.AccessTokenDuration < time.Minute {
		return errors.New("access_token_duration must be at least 1m")
	}
	if c.RefreshTokenDuration < time.Hour {
		return errors.New("refresh_token_duration must be at least 1h")
	}
	return nil
}

func (c *CurrencyConfig) Validate() error {
	if _, err := url.ParseRequestURI(c.RatesURL); err != nil {
		return fmt.Errorf("invalid rates_url: %w", err)
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.RequestsPerSec <= 0 {
		return errors.New("requests_per_sec must be positive")
	}
	return nil
}

func (c *NotificationConfig) Validate() error {
	switch c.Driver {
	case "log":
	case "nats":
		if c.NATSURL == "" {
			return errors.New("nats_url is required for the nats driver")
		}
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	return nil
}

func (c *RateLimitConfig) Validate() error {
	if _, err := limiter.NewRateFromFormatted(c.Auth); err != nil {
		return fmt.Errorf("invalid auth rate %q: %w", c.Auth, err)
	}
	return nil
}

func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid level %q", c.Level)
	}
	if c.Format != "json" && c.Format != "text" {
		return fmt.Errorf("invalid format %q", c.Format)
	}
	return nil
}
