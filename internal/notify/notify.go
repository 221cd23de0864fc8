package notify

import (
	"log/slog"

	"github.com/sandeepkv93/credential-session-core/internal/config"
	"github.com/sandeepkv93/credential-session-core/internal/service"
)

// Build picks the SMTP sink when email is enabled and the log sink
// otherwise.
func Build(cfg *config.Config, logger *slog.Logger) service.NotificationSink {
	if cfg.EmailEnabled {
		return NewSMTPSink(SMTPConfig{
			Host:     cfg.EmailHost,
			Port:     cfg.EmailPort,
			Username: cfg.EmailUser,
			Password: cfg.EmailPassword,
			From:     cfg.EmailFrom,
		})
	}
	return NewLogSink(logger, cfg.Profile() == config.ProfileDevelopment)
}
