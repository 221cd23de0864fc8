package config

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Deployment profiles recognised in APP_ENV.
const (
	ProfileDevelopment = "development"
	ProfileTest        = "test"
	ProfileStaging     = "staging"
	ProfileProduction  = "production"
)

var (
	configMetricsOnce sync.Once
	configLoadCounter metric.Int64Counter
)

// recordConfigLoad counts one Load outcome on config.validation.events.
// Parse failures also name the offending variable.
func recordConfigLoad(ctx context.Context, appEnv string, err error) {
	configMetricsOnce.Do(func() {
		counter, cerr := otel.Meter("credential-session-core").Int64Counter(
			"config.validation.events",
			metric.WithDescription("Configuration load outcomes by profile and error class"),
		)
		if cerr == nil {
			configLoadCounter = counter
		}
	})
	if configLoadCounter == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	attrs := []attribute.KeyValue{
		attribute.String("profile", normalizeProfile(appEnv)),
		attribute.String("outcome", outcome),
		attribute.String("error_class", classifyLoadError(err)),
	}
	var perr *ParseError
	if errors.As(err, &perr) {
		attrs = append(attrs, attribute.String("key", perr.Key))
	}
	configLoadCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// normalizeProfile folds APP_ENV aliases onto the known profiles; anything
// else is "other" so the attribute stays low cardinality.
func normalizeProfile(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return "unknown"
	case "dev", "development", "local":
		return ProfileDevelopment
	case "test", "testing", "ci":
		return ProfileTest
	case "stage", "staging":
		return ProfileStaging
	case "prod", "production":
		return ProfileProduction
	default:
		return "other"
	}
}

func classifyLoadError(err error) string {
	var perr *ParseError
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &perr):
		return "parse"
	case errors.Is(err, ErrInvalidConfig):
		return "validation"
	case errors.Is(err, ErrEnvFile):
		return "env_file"
	default:
		return "load"
	}
}
