// Package sms sends text messages through Twilio, AWS SNS or the log.
package sms

import (
	"context"
	"errors"
	"fmt"

	"healthfeed/internal/config"

	"go.uber.org/zap"
)

// ErrNotConfigured is returned when the selected provider lacks credentials.
var ErrNotConfigured = errors.New("sms: provider not configured")

// Sender delivers one message to one E.164 number.
type Sender interface {
	Send(ctx context.Context, body, from, to string) error
}

// New builds the Sender selected by cfg.Provider.
func New(ctx context.Context, cfg config.SMSConfig, logger *zap.Logger) (Sender, error) {
	switch cfg.Provider {
	case "twilio":
		if cfg.TwilioSID == "" || cfg.TwilioAuth == "" {
			return nil, fmt.Errorf("%w: TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required", ErrNotConfigured)
		}
		return NewTwilioSender(cfg.TwilioURL, cfg.TwilioSID, cfg.TwilioAuth, cfg.Timeout, cfg.RetryCount, logger), nil
	case "sns":
		return NewSNSSender(ctx, cfg.AWSRegion, logger)
	case "log", "":
		return NewLogSender(logger), nil
	default:
		return nil, fmt.Errorf("unknown sms provider %q", cfg.Provider)
	}
}

// LogSender writes messages to the logger instead of sending them.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender returns a sender that only logs.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the message at info level and never fails.
func (s *LogSender) Send(_ context.Context, body, from, to string) error {
	s.logger.Info("sms (log provider)",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("body", body),
	)
	return nil
}
