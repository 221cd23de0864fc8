package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sandeepkv93/credential-session-core/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "credential-session-core"

type AppMetrics struct {
	authLoginCounter     metric.Int64Counter
	authRefreshCounter   metric.Int64Counter
	authLogoutCounter    metric.Int64Counter
	sessionRevokeCounter metric.Int64Counter
	passwordResetCounter metric.Int64Counter
	accountCounter       metric.Int64Counter
	repositoryCounter    metric.Int64Counter
	accessTokenCounter   metric.Int64Counter
	rateLimitCounter     metric.Int64Counter
	rateLimitRetryAfter  metric.Float64Histogram
	notificationCounter  metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	var mp *sdkmetric.MeterProvider
	if !cfg.OTELMetricsEnabled {
		mp = sdkmetric.NewMeterProvider()
		logger.Info("otel metrics disabled")
	} else {
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
		if cfg.OTELExporterOTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp metric exporter: %w", err)
		}
		res, err := newResource(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create metric resource: %w", err)
		}
		reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
		mp = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		)
		logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	}
	otel.SetMeterProvider(mp)

	m, err := newAppMetrics(mp.Meter(meterName))
	if err != nil {
		return nil, err
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()
	return mp, nil
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	var (
		m   AppMetrics
		err error
	)
	counters := []struct {
		name string
		dst  *metric.Int64Counter
	}{
		{"auth.login.attempts", &m.authLoginCounter},
		{"auth.refresh.attempts", &m.authRefreshCounter},
		{"auth.logout.attempts", &m.authLogoutCounter},
		{"session.revocations", &m.sessionRevokeCounter},
		{"password_reset.events", &m.passwordResetCounter},
		{"account.lifecycle.events", &m.accountCounter},
		{"repository.operations", &m.repositoryCounter},
		{"auth.access_token.validations", &m.accessTokenCounter},
		{"rate_limit.decisions", &m.rateLimitCounter},
		{"notification.deliveries", &m.notificationCounter},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name)
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", c.name, err)
		}
	}
	m.rateLimitRetryAfter, err = meter.Float64Histogram("rate_limit.retry_after", metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create histogram rate_limit.retry_after: %w", err)
	}
	return &m, nil
}

func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordAuthLogin(ctx context.Context, status string) {
	if m := current(); m != nil {
		m.authLoginCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

func RecordAuthRefresh(ctx context.Context, status string) {
	if m := current(); m != nil {
		m.authRefreshCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

func RecordAuthLogout(ctx context.Context, scope, status string) {
	if m := current(); m != nil {
		m.authLogoutCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("scope", scope),
			attribute.String("status", status),
		))
	}
}

func RecordSessionRevocations(ctx context.Context, reason string, count int64) {
	if count <= 0 {
		return
	}
	if m := current(); m != nil {
		m.sessionRevokeCounter.Add(ctx, count, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func RecordPasswordReset(ctx context.Context, stage, status string) {
	if m := current(); m != nil {
		m.passwordResetCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("status", status),
		))
	}
}

func RecordAccountEvent(ctx context.Context, action, status string) {
	if m := current(); m != nil {
		m.accountCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("status", status),
		))
	}
}

func RecordRepositoryOperation(ctx context.Context, repo, op, outcome string) {
	if m := current(); m != nil {
		m.repositoryCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("repository", repo),
			attribute.String("operation", op),
			attribute.String("outcome", outcome),
		))
	}
}

func RecordAccessTokenValidation(ctx context.Context, outcome, source string) {
	if m := current(); m != nil {
		m.accessTokenCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("source", source),
		))
	}
}

func RecordRateLimitDecision(ctx context.Context, scope, decision, mode string) {
	if m := current(); m != nil {
		m.rateLimitCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("scope", scope),
			attribute.String("decision", decision),
			attribute.String("mode", mode),
		))
	}
}

func RecordRateLimitRetryAfter(ctx context.Context, scope, reason string, d time.Duration) {
	if m := current(); m != nil {
		m.rateLimitRetryAfter.Record(ctx, d.Seconds(), metric.WithAttributes(
			attribute.String("scope", scope),
			attribute.String("reason", reason),
		))
	}
}

func RecordNotification(ctx context.Context, kind, status string) {
	if m := current(); m != nil {
		m.notificationCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		))
	}
}
