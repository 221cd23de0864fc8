//go:build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/sandeepkv93/credential-session-core/internal/app"
	"github.com/sandeepkv93/credential-session-core/internal/config"
	"github.com/sandeepkv93/credential-session-core/internal/http/handler"
	"github.com/sandeepkv93/credential-session-core/internal/notify"
	"github.com/sandeepkv93/credential-session-core/internal/repository"
	"github.com/sandeepkv93/credential-session-core/internal/service"
)

var infraSet = wire.NewSet(
	provideLogging,
	provideLogger,
	provideDB,
	provideRedis,
)

var serviceSet = wire.NewSet(
	repository.NewUserRepository,
	repository.NewSessionRepository,
	repository.NewPasswordResetRepository,
	provideJWTManager,
	providePasswordHasher,
	providePasswordPolicy,
	provideTokenService,
	provideSessionService,
	provideAuthService,
	provideCooldownStore,
	notify.Build,
	providePasswordResetService,
	provideAccountService,
	service.NewRequestAuthenticator,
)

var httpSet = wire.NewSet(
	handler.NewAuthHandler,
	handler.NewPasswordResetHandler,
	handler.NewMeHandler,
	handler.NewAdminHandler,
	wire.Bind(new(service.AuthServiceInterface), new(*service.AuthService)),
	wire.Bind(new(service.PasswordResetServiceInterface), new(*service.PasswordResetService)),
	wire.Bind(new(service.SessionServiceInterface), new(*service.SessionService)),
	wire.Bind(new(service.AccountServiceInterface), new(*service.AccountService)),
	wire.Bind(new(service.Authenticator), new(*service.RequestAuthenticator)),
	provideReadiness,
	provideRouterDependencies,
	provideHTTPServer,
)

func InitializeApp(ctx context.Context, cfg *config.Config) (*app.App, func(), error) {
	wire.Build(
		infraSet,
		serviceSet,
		httpSet,
		provideObservability,
		wire.Bind(new(app.BackgroundWork), new(*service.PasswordResetService)),
		app.New,
	)
	return nil, nil, nil
}

func InitializeCore(ctx context.Context, cfg *config.Config) (*Core, func(), error) {
	wire.Build(infraSet, serviceSet, newCore)
	return nil, nil, nil
}
