// Package config provides configuration loading and validation for the API server.
// It uses koanf to merge environment variables with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/onnwee/plaques/internal/tracing"
)

// Config holds all configuration values for the API server.
type Config struct {
	// Server settings
	Port                int           `koanf:"port"`
	Env                 string        `koanf:"env"`
	CORSAllowedOrigins  []string      `koanf:"cors_allowed_origins"`
	ViewRefreshInterval time.Duration `koanf:"view_refresh_interval"`

	// Catalog; empty means the embedded default catalog.
	CatalogPath string `koanf:"catalog_path"`

	// Ledger; empty means the in-memory ledger.
	DatabaseURL string `koanf:"database_url"`

	// Sessions
	JWTSecret         string `koanf:"jwt_secret"`
	JWTPreviousSecret string `koanf:"jwt_previous_secret"`
	UsersFile         string `koanf:"users_file"`

	// R2 (Cloudflare Object Storage); all empty means the in-memory store.
	R2BucketName      string `koanf:"r2_bucket_name"`
	R2AccessKeyID     string `koanf:"r2_access_key_id"`
	R2SecretAccessKey string `koanf:"r2_secret_access_key"`
	R2Endpoint        string `koanf:"r2_endpoint"`
	R2PublicBaseURL   string `koanf:"r2_public_base_url"`
	R2MaxUploadSizeMB int    `koanf:"r2_max_upload_size_mb"`

	// Redis; empty means in-process rate limiting and revocation.
	RedisURL string `koanf:"redis_url"`

	// Login rate limiting
	LoginRateLimitRequests int           `koanf:"login_rate_limit_requests"`
	LoginRateLimitWindow   time.Duration `koanf:"login_rate_limit_window"`

	// Tracing
	TracingEnabled      bool    `koanf:"tracing_enabled"`
	TracingExporter     string  `koanf:"tracing_exporter"`
	TracingEndpoint     string  `koanf:"tracing_endpoint"`
	TracingSamplingRate float64 `koanf:"tracing_sampling_rate"`
	TracingInsecure     bool    `koanf:"tracing_insecure"`
}

// Configuration validation errors.
var (
	ErrMissingJWTSecret         = errors.New("JWT_SECRET is required")
	ErrWeakJWTSecret            = errors.New("JWT_SECRET must be at least 32 characters in production")
	ErrMissingR2BucketName      = errors.New("R2_BUCKET_NAME is required")
	ErrMissingR2AccessKeyID     = errors.New("R2_ACCESS_KEY_ID is required")
	ErrMissingR2SecretAccessKey = errors.New("R2_SECRET_ACCESS_KEY is required")
	ErrMissingR2Endpoint        = errors.New("R2_ENDPOINT is required")
	ErrMissingR2PublicBaseURL   = errors.New("R2_PUBLIC_BASE_URL is required")
	ErrInvalidPort              = errors.New("PORT must be a valid integer")
	ErrInvalidInteger           = errors.New("value must be a valid integer")
	ErrInvalidFloat             = errors.New("value must be a valid float")
	ErrInvalidDuration          = errors.New("value must be a valid duration")
	ErrInvalidUploadSize        = errors.New("R2_MAX_UPLOAD_SIZE_MB must be positive")
	ErrInvalidRateLimit         = errors.New("login rate limit must be positive")
	ErrInvalidTracing           = errors.New("invalid tracing configuration")
)

// Default values for non-secret configuration.
const (
	DefaultPort                   = 8080
	DefaultEnv                    = "development"
	DefaultR2MaxUploadSizeMB      = 10
	DefaultLoginRateLimitRequests = 10
	DefaultLoginRateLimitWindow   = time.Minute
	DefaultViewRefreshInterval    = 5 * time.Minute
	DefaultTracingExporter        = tracing.ExporterOTLPHTTP
	DefaultTracingSamplingRate    = 0.1
	DefaultServiceName            = "plaques-api"

	minProductionSecretLength = 32
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	collect := func(err error) {
		if err != nil {
			loadErrs = append(loadErrs, err)
		}
	}

	// PLAQUES_PORT first, then PORT as set by most hosts.
	port, err := getEnvIntOrDefaultMulti([]string{"PLAQUES_PORT", "PORT"}, k.Int("port"), DefaultPort)
	if err != nil {
		collect(fmt.Errorf("%w: %w", ErrInvalidPort, err))
	}
	maxUpload, err := getEnvIntOrDefault("R2_MAX_UPLOAD_SIZE_MB", k.Int("r2_max_upload_size_mb"), DefaultR2MaxUploadSizeMB)
	collect(err)
	loginRequests, err := getEnvIntOrDefault("LOGIN_RATE_LIMIT_REQUESTS", k.Int("login_rate_limit_requests"), DefaultLoginRateLimitRequests)
	collect(err)
	loginWindow, err := getEnvDurationOrDefault("LOGIN_RATE_LIMIT_WINDOW", k.String("login_rate_limit_window"), DefaultLoginRateLimitWindow)
	collect(err)
	refreshInterval, err := getEnvDurationOrDefault("VIEW_REFRESH_INTERVAL", k.String("view_refresh_interval"), DefaultViewRefreshInterval)
	collect(err)
	samplingRate, err := getEnvFloatOrDefault("TRACING_SAMPLING_RATE", k.Float64("tracing_sampling_rate"), DefaultTracingSamplingRate)
	collect(err)

	cfg := &Config{
		Port:                   port,
		Env:                    getEnvOrDefaultMulti([]string{"PLAQUES_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		CORSAllowedOrigins:     getEnvListOrKoanf("CORS_ALLOWED_ORIGINS", k, "cors_allowed_origins"),
		ViewRefreshInterval:    refreshInterval,
		CatalogPath:            getEnvOrKoanf("CATALOG_PATH", k, "catalog_path"),
		DatabaseURL:            getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		JWTSecret:              getEnvOrKoanf("JWT_SECRET", k, "jwt_secret"),
		JWTPreviousSecret:      getEnvOrKoanf("JWT_PREVIOUS_SECRET", k, "jwt_previous_secret"),
		UsersFile:              getEnvOrKoanf("USERS_FILE", k, "users_file"),
		R2BucketName:           getEnvOrKoanf("R2_BUCKET_NAME", k, "r2_bucket_name"),
		R2AccessKeyID:          getEnvOrKoanf("R2_ACCESS_KEY_ID", k, "r2_access_key_id"),
		R2SecretAccessKey:      getEnvOrKoanf("R2_SECRET_ACCESS_KEY", k, "r2_secret_access_key"),
		R2Endpoint:             getEnvOrKoanf("R2_ENDPOINT", k, "r2_endpoint"),
		R2PublicBaseURL:        getEnvOrKoanf("R2_PUBLIC_BASE_URL", k, "r2_public_base_url"),
		R2MaxUploadSizeMB:      maxUpload,
		RedisURL:               getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		LoginRateLimitRequests: loginRequests,
		LoginRateLimitWindow:   loginWindow,
		TracingEnabled:         getEnvBoolOrKoanf("TRACING_ENABLED", k, "tracing_enabled"),
		TracingExporter:        getEnvOrDefault("TRACING_EXPORTER", k.String("tracing_exporter"), DefaultTracingExporter),
		TracingEndpoint:        getEnvOrKoanf("TRACING_ENDPOINT", k, "tracing_endpoint"),
		TracingSamplingRate:    samplingRate,
		TracingInsecure:        getEnvBoolOrKoanf("TRACING_INSECURE", k, "tracing_insecure"),
	}

	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvListOrKoanf reads a comma-separated env var, or a YAML list from the file.
func getEnvListOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) []string {
	var raw []string
	if val := os.Getenv(envKey); val != "" {
		raw = strings.Split(val, ",")
	} else {
		raw = k.Strings(koanfKey)
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// getEnvBoolOrKoanf accepts true/1/yes/on and false/0/no/off from the env;
// anything else falls through to the file value.
func getEnvBoolOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) bool {
	switch strings.ToLower(os.Getenv(envKey)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return k.Bool(koanfKey)
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	return getEnvIntOrDefaultMulti([]string{envKey}, koanfVal, defaultVal)
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s: %w", key, ErrInvalidInteger)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set, otherwise the koanf value, or default.
func getEnvFloatOrDefault(envKey string, koanfVal float64, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", envKey, ErrInvalidFloat)
		}
		return f, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvDurationOrDefault parses Go duration strings such as "90s" or "5m".
func getEnvDurationOrDefault(envKey string, koanfVal string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(envKey)
	if val == "" {
		val = koanfVal
	}
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", envKey, ErrInvalidDuration)
	}
	return d, nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// R2Enabled reports whether object storage credentials are configured.
func (c *Config) R2Enabled() bool {
	return c.R2BucketName != "" || c.R2AccessKeyID != "" || c.R2SecretAccessKey != "" ||
		c.R2Endpoint != "" || c.R2PublicBaseURL != ""
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	} else if c.IsProduction() && len(c.JWTSecret) < minProductionSecretLength {
		errs = append(errs, ErrWeakJWTSecret)
	}

	// R2 configuration is optional. Only validate fields if any R2 value is set.
	if c.R2Enabled() {
		if c.R2BucketName == "" {
			errs = append(errs, ErrMissingR2BucketName)
		}
		if c.R2AccessKeyID == "" {
			errs = append(errs, ErrMissingR2AccessKeyID)
		}
		if c.R2SecretAccessKey == "" {
			errs = append(errs, ErrMissingR2SecretAccessKey)
		}
		if c.R2Endpoint == "" {
			errs = append(errs, ErrMissingR2Endpoint)
		}
		if c.R2PublicBaseURL == "" {
			errs = append(errs, ErrMissingR2PublicBaseURL)
		}
	}

	if c.R2MaxUploadSizeMB <= 0 {
		errs = append(errs, ErrInvalidUploadSize)
	}
	if c.LoginRateLimitRequests <= 0 || c.LoginRateLimitWindow <= 0 {
		errs = append(errs, ErrInvalidRateLimit)
	}
	if err := c.TracingConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalidTracing, err))
	}

	return errs
}

// TracingConfig returns the tracing settings for tracing.NewProvider.
func (c *Config) TracingConfig() tracing.Config {
	return tracing.Config{
		ServiceName:  DefaultServiceName,
		Enabled:      c.TracingEnabled,
		Environment:  c.Env,
		ExporterType: c.TracingExporter,
		OTLPEndpoint: c.TracingEndpoint,
		SamplingRate: c.TracingSamplingRate,
		InsecureMode: c.TracingInsecure,
	}
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                      strconv.Itoa(c.Port),
		"env":                       c.Env,
		"cors_allowed_origins":      strings.Join(c.CORSAllowedOrigins, ","),
		"view_refresh_interval":     c.ViewRefreshInterval.String(),
		"catalog_path":              orDefault(c.CatalogPath, "<embedded>"),
		"database_url":              maskDatabaseURL(c.DatabaseURL),
		"jwt_secret":                maskSecret(c.JWTSecret),
		"jwt_previous_secret":       maskSecret(c.JWTPreviousSecret),
		"users_file":                orDefault(c.UsersFile, "<not set>"),
		"r2_bucket_name":            c.R2BucketName,
		"r2_access_key_id":          maskSecret(c.R2AccessKeyID),
		"r2_secret_access_key":      maskSecret(c.R2SecretAccessKey),
		"r2_endpoint":               c.R2Endpoint,
		"r2_public_base_url":        c.R2PublicBaseURL,
		"r2_max_upload_size_mb":     strconv.Itoa(c.R2MaxUploadSizeMB),
		"redis_url":                 maskDatabaseURL(c.RedisURL),
		"login_rate_limit_requests": strconv.Itoa(c.LoginRateLimitRequests),
		"login_rate_limit_window":   c.LoginRateLimitWindow.String(),
		"tracing_enabled":           strconv.FormatBool(c.TracingEnabled),
		"tracing_exporter":          c.TracingExporter,
		"tracing_endpoint":          c.TracingEndpoint,
		"tracing_sampling_rate":     strconv.FormatFloat(c.TracingSamplingRate, 'f', -1, 64),
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a connection URL (postgres, redis).
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
