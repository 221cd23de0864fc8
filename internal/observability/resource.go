package observability

import (
	"context"

	"github.com/sandeepkv93/credential-session-core/internal/config"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
)

// newResource describes this process to every exporter. Without an explicit
// OTEL_ENVIRONMENT the folded APP_ENV profile is reported.
func newResource(ctx context.Context, cfg *config.Config) (*resource.Resource, error) {
	env := cfg.OTELEnvironment
	if env == "" {
		env = cfg.Profile()
	}
	return resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", env),
		),
	)
}
