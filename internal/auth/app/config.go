package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderLocal = "local"
	ProviderOIDC  = "oidc"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type OIDCConfig struct {
	IssuerURL    string   `yaml:"issuer_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
	RoleClaim    string   `yaml:"role_claim"` // dotted path, e.g. "app_metadata.role"
	NameClaim    string   `yaml:"name_claim"`
}

type BootstrapConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// Config is read from an optional YAML file (AUTH_CONFIG_FILE) and then from
// the environment. Environment variables win.
type Config struct {
	Provider        string        `yaml:"provider"`         // local or oidc (default: local)
	ProviderTimeout time.Duration `yaml:"provider_timeout"` // per provider call (default: 10s)

	StoreDriver  string `yaml:"store_driver"`  // sqlite or postgres (default: sqlite)
	DatabaseFile string `yaml:"database_file"` // sqlite file (default: ./portal.db)
	DatabaseURL  string `yaml:"database_url"`  // postgres DSN

	// Local provider
	Issuer          string        `yaml:"issuer"`           // default: portal-auth
	PepperFile      string        `yaml:"pepper_file"`      // default: ./pepper
	SigningKeyFile  string        `yaml:"signing_key_file"` // default: ./signing.pem
	SessionFile     string        `yaml:"session_file"`     // default: ./session.json, "-" disables
	SessionTTL      time.Duration `yaml:"session_ttl"`      // default: 15m
	RefreshTTL      time.Duration `yaml:"refresh_ttl"`      // default: 168h
	RefreshInterval time.Duration `yaml:"refresh_interval"` // default: 1m

	OIDC OIDCConfig `yaml:"oidc"`

	ProfileCacheSize int           `yaml:"profile_cache_size"` // 0 disables (default: 512)
	ProfileCacheTTL  time.Duration `yaml:"profile_cache_ttl"`  // default: 30s
	LastLoginBuffer  int           `yaml:"last_login_buffer"`  // default: 64

	Bootstrap BootstrapConfig `yaml:"bootstrap"`

	Env                  string        `yaml:"env"`                   // dev, staging, prod (default: dev)
	LogLevel             string        `yaml:"log_level"`             // debug, info, warn, error (default: info)
	LogFormat            string        `yaml:"log_format"`            // json, text (default: json)
	Port                 int           `yaml:"port"`                  // default: 8080
	ShutdownGracePeriod  time.Duration `yaml:"shutdown_grace_period"` // default: 10s
	HousekeepingInterval time.Duration `yaml:"housekeeping_interval"` // default: 1h
}

func defaultConfig() Config {
	return Config{
		Provider:        ProviderLocal,
		ProviderTimeout: 10 * time.Second,
		StoreDriver:     DriverSQLite,
		DatabaseFile:    "portal.db",
		Issuer:          "portal-auth",
		PepperFile:      "pepper",
		SigningKeyFile:  "signing.pem",
		SessionFile:     "session.json",
		SessionTTL:      15 * time.Minute,
		RefreshTTL:      7 * 24 * time.Hour,
		RefreshInterval: time.Minute,
		OIDC: OIDCConfig{
			Scopes:    []string{"openid", "email", "profile"},
			RoleClaim: "app_metadata.role",
			NameClaim: "name",
		},
		ProfileCacheSize:     512,
		ProfileCacheTTL:      30 * time.Second,
		LastLoginBuffer:      64,
		Env:                  "dev",
		LogLevel:             "info",
		LogFormat:            "json",
		Port:                 8080,
		ShutdownGracePeriod:  10 * time.Second,
		HousekeepingInterval: time.Hour,
	}
}

func LoadConfig() (Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("AUTH_CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.Provider = strings.ToLower(getEnvOrDefault("AUTH_PROVIDER", cfg.Provider))
	cfg.ProviderTimeout = getEnvDurationOrDefault("AUTH_PROVIDER_TIMEOUT", cfg.ProviderTimeout)

	cfg.StoreDriver = strings.ToLower(getEnvOrDefault("AUTH_STORE_DRIVER", cfg.StoreDriver))
	cfg.DatabaseFile = getEnvOrDefault("AUTH_DATABASE_FILE", cfg.DatabaseFile)
	cfg.DatabaseURL = getEnvOrDefault("AUTH_DATABASE_URL", cfg.DatabaseURL)

	cfg.Issuer = getEnvOrDefault("AUTH_ISSUER", cfg.Issuer)
	cfg.PepperFile = getEnvOrDefault("AUTH_PEPPER_FILE", cfg.PepperFile)
	cfg.SigningKeyFile = getEnvOrDefault("AUTH_SIGNING_KEY_FILE", cfg.SigningKeyFile)
	cfg.SessionFile = getEnvOrDefault("AUTH_SESSION_FILE", cfg.SessionFile)
	cfg.SessionTTL = getEnvDurationOrDefault("AUTH_SESSION_TTL", cfg.SessionTTL)
	cfg.RefreshTTL = getEnvDurationOrDefault("AUTH_REFRESH_TTL", cfg.RefreshTTL)
	cfg.RefreshInterval = getEnvDurationOrDefault("AUTH_REFRESH_INTERVAL", cfg.RefreshInterval)

	cfg.OIDC.IssuerURL = getEnvOrDefault("AUTH_OIDC_ISSUER_URL", cfg.OIDC.IssuerURL)
	cfg.OIDC.ClientID = getEnvOrDefault("AUTH_OIDC_CLIENT_ID", cfg.OIDC.ClientID)
	cfg.OIDC.ClientSecret = getEnvOrDefault("AUTH_OIDC_CLIENT_SECRET", cfg.OIDC.ClientSecret)
	cfg.OIDC.Scopes = getEnvListOrDefault("AUTH_OIDC_SCOPES", cfg.OIDC.Scopes)
	cfg.OIDC.RoleClaim = getEnvOrDefault("AUTH_OIDC_ROLE_CLAIM", cfg.OIDC.RoleClaim)
	cfg.OIDC.NameClaim = getEnvOrDefault("AUTH_OIDC_NAME_CLAIM", cfg.OIDC.NameClaim)

	cfg.ProfileCacheSize = getEnvIntOrDefault("AUTH_PROFILE_CACHE_SIZE", cfg.ProfileCacheSize)
	cfg.ProfileCacheTTL = getEnvDurationOrDefault("AUTH_PROFILE_CACHE_TTL", cfg.ProfileCacheTTL)
	cfg.LastLoginBuffer = getEnvIntOrDefault("AUTH_LAST_LOGIN_BUFFER", cfg.LastLoginBuffer)

	cfg.Bootstrap.Email = getEnvOrDefault("BOOTSTRAP_EMAIL", cfg.Bootstrap.Email)
	cfg.Bootstrap.Password = getEnvOrDefault("BOOTSTRAP_PASSWORD", cfg.Bootstrap.Password)
	cfg.Bootstrap.Name = getEnvOrDefault("BOOTSTRAP_NAME", cfg.Bootstrap.Name)

	cfg.Env = getEnvOrDefault("ENV", cfg.Env)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.Port = getEnvIntOrDefault("PORT", cfg.Port)
	cfg.ShutdownGracePeriod = getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", cfg.ShutdownGracePeriod)
	cfg.HousekeepingInterval = getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", cfg.HousekeepingInterval)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderLocal:
	case ProviderOIDC:
		if c.OIDC.IssuerURL == "" || c.OIDC.ClientID == "" {
			return errors.New("config: AUTH_OIDC_ISSUER_URL and AUTH_OIDC_CLIENT_ID are required for the oidc provider")
		}
	default:
		return fmt.Errorf("config: unknown provider %q", c.Provider)
	}

	switch c.StoreDriver {
	case DriverSQLite:
		if c.DatabaseFile == "" {
			return errors.New("config: AUTH_DATABASE_FILE is required for sqlite")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: AUTH_DATABASE_URL is required for postgres")
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.StoreDriver)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

// getEnvListOrDefault splits a comma separated value, dropping blanks.
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
