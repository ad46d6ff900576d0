package notification

import (
	"context"
	"log/slog"
)

const (
	// ChannelEmail delivers through the email provider.
	ChannelEmail = "email"
	// ChannelSMS delivers through the SMS provider.
	ChannelSMS = "sms"
	// ChannelPush delivers through mobile push.
	ChannelPush = "push"
)

// Message describes a notification payload addressed to one recipient.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Sender delivers notifications through a single channel.
type Sender interface {
	Send(ctx context.Context, message Message) error
}

// LoggerSender is a stub channel implementation that writes notifications to
// the structured logger. Real providers are wired per deployment.
type LoggerSender struct {
	channel string
	logger  *slog.Logger
}

// NewLoggerSender constructs a logging sender for the named channel.
func NewLoggerSender(channel string, logger *slog.Logger) *LoggerSender {
	return &LoggerSender{channel: channel, logger: logger}
}

// Send writes the message to the structured logger.
func (s *LoggerSender) Send(_ context.Context, message Message) error {
	if s == nil || s.logger == nil {
		return nil
	}
	s.logger.Info("notification",
		"channel", s.channel,
		"kind", message.Kind,
		"destination", message.Destination,
		"body", message.Body,
	)
	return nil
}
