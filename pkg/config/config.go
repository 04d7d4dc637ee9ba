package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-storefront/pkg/enums"
	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv            = "STOREFRONT_APP_ENV"
	EnvLogLevel          = "STOREFRONT_LOG_LEVEL"
	EnvLogFormat         = "STOREFRONT_LOG_FORMAT"
	EnvAPIBaseURL        = "STOREFRONT_API_BASE_URL"
	EnvAPITimeout        = "STOREFRONT_API_TIMEOUT"
	EnvPrincipalHeader   = "STOREFRONT_API_PRINCIPAL_HEADER"
	EnvSessionStore      = "STOREFRONT_SESSION_STORE"
	EnvSessionPassphrase = "STOREFRONT_SESSION_PASSPHRASE"
	EnvSQLitePath        = "STOREFRONT_SQLITE_PATH"
	EnvRedisURL          = "STOREFRONT_REDIS_URL"
	EnvMockAPIPort       = "STOREFRONT_MOCK_API_PORT"
	EnvMockAPISecret     = "STOREFRONT_MOCK_API_JWT_SECRET"
	EnvMockAPIUseRedis   = "STOREFRONT_MOCK_API_USE_REDIS"
)

type Config struct {
	App     AppConfig
	API     APIConfig
	Session SessionConfig
	Redis   RedisConfig
	SQLite  SQLiteConfig
	MockAPI MockAPIConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.API.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Session.validate(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadMockAPI reads the configuration needed by the local mock backend. The
// client-side API settings are not required there.
func LoadMockAPI() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if strings.TrimSpace(cfg.MockAPI.JWTSecret) == "" {
		return nil, fmt.Errorf("%s is required", EnvMockAPISecret)
	}
	if cfg.MockAPI.UseRedis && cfg.Redis.URL == "" && cfg.Redis.Address == "" {
		return nil, fmt.Errorf("%s is required when %s=true", EnvRedisURL, EnvMockAPIUseRedis)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type APIConfig struct {
	BaseURL         string        `envconfig:"STOREFRONT_API_BASE_URL"`
	Timeout         time.Duration `envconfig:"STOREFRONT_API_TIMEOUT" default:"30s"`
	PrincipalHeader string        `envconfig:"STOREFRONT_API_PRINCIPAL_HEADER" default:"X-Customer-Id"`
	UserAgent       string        `envconfig:"STOREFRONT_API_USER_AGENT" default:"packfinderz-storefront/1.0"`
}

func (a APIConfig) validate() error {
	parsed, err := url.Parse(strings.TrimSpace(a.BaseURL))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", EnvAPIBaseURL, err)
	}
	if strings.TrimSpace(a.BaseURL) == "" {
		return fmt.Errorf("%s is required", EnvAPIBaseURL)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s must be an absolute URL", EnvAPIBaseURL)
	}
	return nil
}

type SessionConfig struct {
	Store      string        `envconfig:"STOREFRONT_SESSION_STORE" default:"sqlite"`
	Slot       string        `envconfig:"STOREFRONT_SESSION_SLOT" default:"default"`
	TTL        time.Duration `envconfig:"STOREFRONT_SESSION_TTL" default:"720h"`
	Passphrase string        `envconfig:"STOREFRONT_SESSION_PASSPHRASE"`
}

// Kind returns the parsed token store backend.
func (s SessionConfig) Kind() (enums.TokenStoreKind, error) {
	return enums.ParseTokenStoreKind(strings.ToLower(strings.TrimSpace(s.Store)))
}

func (s SessionConfig) validate(cfg Config) error {
	kind, err := s.Kind()
	if err != nil {
		return fmt.Errorf("invalid %s: %w", EnvSessionStore, err)
	}
	switch kind {
	case enums.TokenStoreRedis:
		if cfg.Redis.URL == "" && cfg.Redis.Address == "" {
			return fmt.Errorf("%s is required when %s=redis", EnvRedisURL, EnvSessionStore)
		}
	case enums.TokenStoreSQLite:
		if strings.TrimSpace(cfg.SQLite.Path) == "" {
			return fmt.Errorf("%s is required when %s=sqlite", EnvSQLitePath, EnvSessionStore)
		}
	}
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"4"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"1"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"3s"`
}

type SQLiteConfig struct {
	Path string `envconfig:"STOREFRONT_SQLITE_PATH" default:"storefront.db"`
}

type MockAPIConfig struct {
	Port            string        `envconfig:"STOREFRONT_MOCK_API_PORT" default:"8888"`
	JWTSecret       string        `envconfig:"STOREFRONT_MOCK_API_JWT_SECRET" default:"mock-secret"`
	JWTIssuer       string        `envconfig:"STOREFRONT_MOCK_API_JWT_ISSUER" default:"storefront-mock"`
	AccessTokenTTL  time.Duration `envconfig:"STOREFRONT_MOCK_API_ACCESS_TTL" default:"15m"`
	RefreshTokenTTL time.Duration `envconfig:"STOREFRONT_MOCK_API_REFRESH_TTL" default:"168h"`
	// UseRedis stores refresh tokens in Redis instead of process memory.
	UseRedis bool `envconfig:"STOREFRONT_MOCK_API_USE_REDIS" default:"false"`
}
