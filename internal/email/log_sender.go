package email

import (
	"context"
	"log/slog"
)

// LogSender writes emails to the logger instead of delivering them,
// the default when no email driver is configured. Keep it out of
// production: addresses, verification codes and reset links all end up
// in the log.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a new LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{
		logger: logger,
	}
}

// Send logs the email instead of sending it.
func (s *LogSender) Send(_ context.Context, from, recipient Address, subject, body string) error {
	s.logger.Info("send email",
		"from", from,
		"recipient", recipient,
		"subject", subject,
		"body", body,
	)
	return nil
}
