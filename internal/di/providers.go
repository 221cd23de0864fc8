package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"

	"github.com/sandeepkv93/credential-session-core/internal/config"
	"github.com/sandeepkv93/credential-session-core/internal/health"
	"github.com/sandeepkv93/credential-session-core/internal/http/handler"
	"github.com/sandeepkv93/credential-session-core/internal/http/middleware"
	"github.com/sandeepkv93/credential-session-core/internal/http/router"
	"github.com/sandeepkv93/credential-session-core/internal/observability"
	"github.com/sandeepkv93/credential-session-core/internal/repository"
	"github.com/sandeepkv93/credential-session-core/internal/security"
	"github.com/sandeepkv93/credential-session-core/internal/service"
)

const loggingFlushTimeout = 5 * time.Second

// Logging pairs the process logger with its OTLP provider, which is nil
// when log export is disabled.
type Logging struct {
	Logger   *slog.Logger
	Provider *sdklog.LoggerProvider
}

// provideLogging installs the process logger as the slog default. The cleanup
// flushes batched OTLP records and runs after the app has stopped.
func provideLogging(ctx context.Context, cfg *config.Config) (*Logging, func(), error) {
	logger, lp, err := observability.NewLogger(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	l := &Logging{Logger: logger, Provider: lp}
	return l, l.shutdown, nil
}

func (l *Logging) shutdown() {
	if l.Provider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), loggingFlushTimeout)
	defer cancel()
	if err := l.Provider.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "flush log provider: %v\n", err)
	}
}

func provideLogger(l *Logging) *slog.Logger {
	return l.Logger
}

func provideObservability(ctx context.Context, cfg *config.Config, l *Logging) (*observability.Runtime, error) {
	return observability.InitRuntime(ctx, cfg, l.Logger)
}

func provideDB(cfg *config.Config, logger *slog.Logger) (*gorm.DB, func(), error) {
	db, err := repository.Open(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return db, cleanup, nil
}

// provideRedis returns a nil client when Redis is disabled; consumers fall
// back to in-process stores.
func provideRedis(cfg *config.Config) (redis.UniversalClient, func(), error) {
	if !cfg.RedisEnabled {
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return client, func() { _ = client.Close() }, nil
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret, cfg.JWTRefreshSecret)
}

func providePasswordHasher(cfg *config.Config) *security.PasswordHasher {
	return security.NewPasswordHasher(cfg.BcryptCost)
}

func providePasswordPolicy(cfg *config.Config) security.PasswordPolicy {
	return security.PasswordPolicy{MinLength: cfg.PasswordMinLength, RequireSpecial: cfg.PasswordRequireSpecial}
}

func provideTokenService(cfg *config.Config, jwtMgr *security.JWTManager, sessions repository.SessionRepository, logger *slog.Logger) *service.TokenService {
	return service.NewTokenService(jwtMgr, sessions, cfg.RefreshTokenPepper, cfg.JWTAccessTTL, cfg.JWTRefreshTTL, logger)
}

func provideSessionService(cfg *config.Config, sessions repository.SessionRepository) *service.SessionService {
	return service.NewSessionService(sessions, cfg.StoreTimeout)
}

func provideAuthService(cfg *config.Config, users repository.UserRepository, tokens *service.TokenService, sessions *service.SessionService, hasher *security.PasswordHasher, logger *slog.Logger) *service.AuthService {
	return service.NewAuthService(users, tokens, sessions, hasher, cfg.StoreTimeout, logger)
}

func provideCooldownStore(cfg *config.Config, client redis.UniversalClient) service.CooldownStore {
	if cfg.PasswordResetCooldown <= 0 {
		return service.NewNoopCooldownStore()
	}
	if client != nil {
		return service.NewRedisCooldownStore(client, "authcore:cooldown")
	}
	return service.NewInMemoryCooldownStore()
}

func providePasswordResetService(
	cfg *config.Config,
	users repository.UserRepository,
	resets repository.PasswordResetRepository,
	hasher *security.PasswordHasher,
	policy security.PasswordPolicy,
	sink service.NotificationSink,
	cooldown service.CooldownStore,
	logger *slog.Logger,
) *service.PasswordResetService {
	return service.NewPasswordResetService(users, resets, hasher, policy, sink, cooldown, service.PasswordResetOptions{
		TokenTTL:      cfg.PasswordResetTTL,
		Cooldown:      cfg.PasswordResetCooldown,
		ResetURL:      cfg.PasswordResetURL,
		Pepper:        cfg.RefreshTokenPepper,
		StoreTimeout:  cfg.StoreTimeout,
		NotifyTimeout: cfg.NotifyTimeout,
	}, logger)
}

func provideAccountService(cfg *config.Config, users repository.UserRepository, hasher *security.PasswordHasher, policy security.PasswordPolicy, sink service.NotificationSink, logger *slog.Logger) *service.AccountService {
	return service.NewAccountService(users, hasher, policy, sink, cfg.StoreTimeout, cfg.NotifyTimeout, logger)
}

func provideReadiness(cfg *config.Config, db *gorm.DB, client redis.UniversalClient) *health.ProbeRunner {
	checkers := []health.Checker{health.DBChecker(db)}
	if client != nil {
		checkers = append(checkers, health.RedisChecker(client))
	}
	return health.NewProbeRunner(cfg.StoreTimeout, time.Second, checkers...)
}

func provideRouterDependencies(
	cfg *config.Config,
	authHandler *handler.AuthHandler,
	resetHandler *handler.PasswordResetHandler,
	meHandler *handler.MeHandler,
	adminHandler *handler.AdminHandler,
	authn service.Authenticator,
	readiness *health.ProbeRunner,
	client redis.UniversalClient,
) router.Dependencies {
	dep := router.Dependencies{
		AuthHandler:               authHandler,
		PasswordResetHandler:      resetHandler,
		MeHandler:                 meHandler,
		AdminHandler:              adminHandler,
		Authenticator:             authn,
		AuthRateLimitRPM:          cfg.AuthRateLimitPerMin,
		PasswordResetRateLimitRPM: cfg.PasswordResetRateLimitPerMin,
		APIRateLimitRPM:           cfg.APIRateLimitPerMin,
		Readiness:                 readiness,
		EnableOTelHTTP:            cfg.OTELHTTPEnabled,
	}
	if client == nil {
		return dep
	}
	mode := middleware.FailClosed
	if cfg.RateLimitFailOpen {
		mode = middleware.FailOpen
	}
	limiter := middleware.NewRedisFixedWindowLimiter(client, "authcore:rl")
	dep.GlobalRateLimiter = middleware.NewDistributedRateLimiter(limiter, cfg.APIRateLimitPerMin, time.Minute, mode, "api", middleware.SubjectOrIPKey).Middleware()
	dep.AuthRateLimiter = middleware.NewDistributedRateLimiter(limiter, cfg.AuthRateLimitPerMin, time.Minute, mode, "auth", nil).Middleware()
	dep.PasswordResetRateLimiter = middleware.NewDistributedRateLimiter(limiter, cfg.PasswordResetRateLimitPerMin, time.Minute, mode, "password_reset", nil).Middleware()
	return dep
}

func provideHTTPServer(cfg *config.Config, dep router.Dependencies) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.NewRouter(dep),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Core is the service graph without the HTTP surface, used by CLI commands.
type Core struct {
	Config   *config.Config
	Logger   *slog.Logger
	DB       *gorm.DB
	Users    repository.UserRepository
	Sessions *service.SessionService
	Accounts *service.AccountService
}

func newCore(cfg *config.Config, logger *slog.Logger, db *gorm.DB, users repository.UserRepository, sessions *service.SessionService, accounts *service.AccountService) *Core {
	return &Core{Config: cfg, Logger: logger, DB: db, Users: users, Sessions: sessions, Accounts: accounts}
}
