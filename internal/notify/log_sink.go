package notify

import (
	"context"
	"log/slog"
)

// LogSink writes notifications to the process logger. It is the default
// when no mail server is configured. Links and secrets are only written
// when revealSecrets is set, which Build enables for development.
type LogSink struct {
	logger        *slog.Logger
	revealSecrets bool
}

func NewLogSink(logger *slog.Logger, revealSecrets bool) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger, revealSecrets: revealSecrets}
}

func (s *LogSink) SendResetLink(ctx context.Context, to, link string) error {
	attrs := []any{"kind", "reset_link", "to", to}
	if s.revealSecrets {
		attrs = append(attrs, "link", link)
	}
	s.logger.InfoContext(ctx, "notification", attrs...)
	return ctx.Err()
}

func (s *LogSink) SendResetSecretNotice(ctx context.Context, to, secret string) error {
	attrs := []any{"kind", "reset_secret", "to", to}
	if s.revealSecrets {
		attrs = append(attrs, "secret", secret)
	}
	s.logger.InfoContext(ctx, "notification", attrs...)
	return ctx.Err()
}
