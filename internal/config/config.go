package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidConfig = errors.New("invalid config")

const minSecretBytes = 32

// Config is built once at process start and passed by pointer to every
// component. Nothing reads the environment after Load returns.
type Config struct {
	AppEnv   string
	HTTPAddr string
	LogLevel string

	DatabaseDriver string
	DatabaseURL    string

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTIssuer        string
	JWTAudience      string
	JWTAccessSecret  string
	JWTRefreshSecret string
	JWTAccessTTL     time.Duration
	JWTRefreshTTL    time.Duration

	RefreshTokenPepper string
	BcryptCost         int

	PasswordResetTTL      time.Duration
	PasswordResetURL      string
	PasswordResetCooldown time.Duration

	PasswordMinLength      int
	PasswordRequireSpecial bool

	StoreTimeout  time.Duration
	NotifyTimeout time.Duration

	EmailEnabled  bool
	EmailHost     string
	EmailPort     int
	EmailUser     string
	EmailPassword string
	EmailFrom     string

	AuthRateLimitPerMin          int
	PasswordResetRateLimitPerMin int
	APIRateLimitPerMin           int
	RateLimitFailOpen            bool

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration
	OTELTraceSampleRatio      float64
	OTELHTTPEnabled           bool

	ShutdownTimeout time.Duration

	GodEmail    string
	GodPassword string
}

// Load reads an optional env file, then the process environment, and
// validates the result.
func Load(envFile string) (*Config, error) {
	cfg, err := load(envFile)
	appEnv := ""
	if cfg != nil {
		appEnv = cfg.AppEnv
	}
	recordConfigLoad(context.Background(), appEnv, err)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Profile is APP_ENV folded onto one of the Profile constants, "other" or
// "unknown".
func (c *Config) Profile() string {
	return normalizeProfile(c.AppEnv)
}

func load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := LoadEnvFile(envFile); err != nil {
			return nil, err
		}
	}
	var errs []error
	cfg := &Config{
		AppEnv:   envString("APP_ENV", "development"),
		HTTPAddr: envString("HTTP_ADDR", ":8080"),
		LogLevel: envString("LOG_LEVEL", "info"),

		DatabaseDriver: strings.ToLower(envString("DATABASE_DRIVER", "sqlite")),
		DatabaseURL:    envString("DATABASE_URL", "file:authcore.db?_pragma=busy_timeout(5000)"),

		RedisEnabled:  envBool("REDIS_ENABLED", false, &errs),
		RedisAddr:     envString("REDIS_ADDR", "localhost:6379"),
		RedisPassword: envString("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0, &errs),

		JWTIssuer:        envString("JWT_ISSUER", "credential-session-core"),
		JWTAudience:      envString("JWT_AUDIENCE", "credential-session-core"),
		JWTAccessSecret:  envString("JWT_ACCESS_SECRET", ""),
		JWTRefreshSecret: envString("JWT_REFRESH_SECRET", ""),
		JWTAccessTTL:     envDuration("JWT_ACCESS_TTL", 15*time.Minute, &errs),
		JWTRefreshTTL:    envDuration("JWT_REFRESH_TTL", 7*24*time.Hour, &errs),

		RefreshTokenPepper: envString("REFRESH_TOKEN_PEPPER", ""),
		BcryptCost:         envInt("BCRYPT_COST", 10, &errs),

		PasswordResetTTL:      envDuration("PASSWORD_RESET_TTL", time.Hour, &errs),
		PasswordResetURL:      envString("PASSWORD_RESET_URL", "http://localhost:3000/reset-password"),
		PasswordResetCooldown: envDuration("PASSWORD_RESET_COOLDOWN", time.Minute, &errs),

		PasswordMinLength:      envInt("PASSWORD_MIN_LENGTH", 8, &errs),
		PasswordRequireSpecial: envBool("PASSWORD_REQUIRE_SPECIAL", true, &errs),

		StoreTimeout:  envDuration("STORE_TIMEOUT", 3*time.Second, &errs),
		NotifyTimeout: envDuration("NOTIFY_TIMEOUT", 5*time.Second, &errs),

		EmailEnabled:  envBool("EMAIL_ENABLED", false, &errs),
		EmailHost:     envString("EMAIL_HOST", ""),
		EmailPort:     envInt("EMAIL_PORT", 587, &errs),
		EmailUser:     envString("EMAIL_USER", ""),
		EmailPassword: envString("EMAIL_PASSWORD", ""),
		EmailFrom:     envString("EMAIL_FROM", "no-reply@localhost"),

		AuthRateLimitPerMin:          envInt("AUTH_RATE_LIMIT_PER_MIN", 30, &errs),
		PasswordResetRateLimitPerMin: envInt("PASSWORD_RESET_RATE_LIMIT_PER_MIN", 5, &errs),
		APIRateLimitPerMin:           envInt("API_RATE_LIMIT_PER_MIN", 300, &errs),
		RateLimitFailOpen:            envBool("RATE_LIMIT_FAIL_OPEN", false, &errs),

		OTELServiceName:           envString("OTEL_SERVICE_NAME", "credential-session-core"),
		OTELEnvironment:           envString("OTEL_ENVIRONMENT", ""),
		OTELExporterOTLPEndpoint:  envString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure:  envBool("OTEL_EXPORTER_OTLP_INSECURE", true, &errs),
		OTELMetricsEnabled:        envBool("OTEL_METRICS_ENABLED", false, &errs),
		OTELTracingEnabled:        envBool("OTEL_TRACING_ENABLED", false, &errs),
		OTELLogsEnabled:           envBool("OTEL_LOGS_ENABLED", false, &errs),
		OTELMetricsExportInterval: envDuration("OTEL_METRICS_EXPORT_INTERVAL", 15*time.Second, &errs),
		OTELTraceSampleRatio:      envFloat("OTEL_TRACE_SAMPLE_RATIO", 1.0, &errs),
		OTELHTTPEnabled:           envBool("OTEL_HTTP_ENABLED", true, &errs),

		ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 15*time.Second, &errs),

		GodEmail:    envString("GOD_EMAIL", "god@god.com"),
		GodPassword: envString("GOD_PASSWORD", ""),
	}
	if len(errs) > 0 {
		return cfg, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate reports every problem at once so a misconfigured deployment
// fails with the full list.
func (c *Config) Validate() error {
	var problems []string
	if len(c.JWTAccessSecret) < minSecretBytes {
		problems = append(problems, fmt.Sprintf("JWT_ACCESS_SECRET must be at least %d bytes", minSecretBytes))
	}
	if len(c.JWTRefreshSecret) < minSecretBytes {
		problems = append(problems, fmt.Sprintf("JWT_REFRESH_SECRET must be at least %d bytes", minSecretBytes))
	}
	if c.JWTAccessSecret != "" && c.JWTAccessSecret == c.JWTRefreshSecret {
		problems = append(problems, "JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if len(c.RefreshTokenPepper) < 16 {
		problems = append(problems, "REFRESH_TOKEN_PEPPER must be at least 16 bytes")
	}
	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= 0 || c.PasswordResetTTL <= 0 {
		problems = append(problems, "token TTLs must be positive")
	}
	if c.JWTAccessTTL >= c.JWTRefreshTTL {
		problems = append(problems, "JWT_ACCESS_TTL must be shorter than JWT_REFRESH_TTL")
	}
	if c.StoreTimeout <= 0 || c.NotifyTimeout <= 0 {
		problems = append(problems, "STORE_TIMEOUT and NOTIFY_TIMEOUT must be positive")
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("DATABASE_DRIVER %q is not supported", c.DatabaseDriver))
	}
	if c.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	if c.PasswordMinLength < 1 {
		problems = append(problems, "PASSWORD_MIN_LENGTH must be at least 1")
	}
	if c.EmailEnabled && c.EmailHost == "" {
		problems = append(problems, "EMAIL_HOST is required when EMAIL_ENABLED=true")
	}
	if c.RedisEnabled && c.RedisAddr == "" {
		problems = append(problems, "REDIS_ADDR is required when REDIS_ENABLED=true")
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
}
