package sender

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Message is one formatted notification ready for delivery to a single
// destination address. The scheduler formats the body; senders only move
// bytes.
type Message struct {
	NotificationID string
	Channel        string
	Address        string // chat id, email address, or phone number per channel
	Subject        string
	Body           string
}

// Sender is the unified interface for all delivery channels.
// Implementations: Telegram (primary), Email (SES), SMS (SNS).
type Sender interface {
	Send(ctx context.Context, msg *Message) error
	SupportsChannel(channel string) bool
}

// MultiSender routes messages to the appropriate channel sender.
type MultiSender struct {
	senders []Sender
	logger  *zap.Logger
}

// NewMultiSender creates a router over multiple underlying senders
func NewMultiSender(logger *zap.Logger, senders ...Sender) *MultiSender {
	return &MultiSender{
		senders: senders,
		logger:  logger,
	}
}

// Send routes the message to the first sender supporting its channel
func (m *MultiSender) Send(ctx context.Context, msg *Message) error {
	for _, s := range m.senders {
		if s.SupportsChannel(msg.Channel) {
			m.logger.Debug("routing message to sender",
				zap.String("channel", msg.Channel),
				zap.String("notification_id", msg.NotificationID),
			)
			return s.Send(ctx, msg)
		}
	}

	return fmt.Errorf("no sender found for channel: %s", msg.Channel)
}

// SupportsChannel checks if any underlying sender supports the channel
func (m *MultiSender) SupportsChannel(channel string) bool {
	for _, s := range m.senders {
		if s.SupportsChannel(channel) {
			return true
		}
	}
	return false
}

// LogSender logs messages instead of delivering them (development mode)
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg *Message) error {
	s.logger.Info("logging message (development mode)",
		zap.String("notification_id", msg.NotificationID),
		zap.String("channel", msg.Channel),
		zap.String("address", msg.Address),
		zap.String("body", msg.Body),
	)
	return nil
}

func (s *LogSender) SupportsChannel(channel string) bool {
	return channel == "telegram" || channel == "email" || channel == "sms"
}
