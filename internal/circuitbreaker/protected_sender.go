package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/secondmind/notify/internal/sender"
)

// ProtectedSender wraps a sender.Sender with a CircuitBreaker. When the
// downstream channel (Telegram API, SES, SNS) starts failing, the circuit
// opens and delivery attempts fail fast; the scheduler's poll cycle picks
// the records up again once the channel recovers.
type ProtectedSender struct {
	sender  sender.Sender
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewProtectedSender wraps a sender with circuit breaker protection.
func NewProtectedSender(s sender.Sender, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedSender {
	return &ProtectedSender{
		sender:  s,
		breaker: breaker,
		logger:  logger,
	}
}

// Send attempts delivery through the circuit breaker. If the circuit is
// open, returns ErrCircuitOpen immediately.
func (p *ProtectedSender) Send(ctx context.Context, msg *sender.Message) error {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected delivery",
			zap.String("breaker", p.breaker.config.Name),
			zap.String("notification_id", msg.NotificationID),
			zap.String("channel", msg.Channel),
			zap.String("state", p.breaker.GetState().String()),
		)
		return fmt.Errorf("%w: %s sender unavailable", ErrCircuitOpen, p.breaker.config.Name)
	}

	err := p.sender.Send(ctx, msg)
	if err != nil {
		p.breaker.RecordFailure()
		return err
	}

	p.breaker.RecordSuccess()
	return nil
}

// SupportsChannel delegates to the underlying sender.
func (p *ProtectedSender) SupportsChannel(channel string) bool {
	return p.sender.SupportsChannel(channel)
}

// Breaker returns the underlying circuit breaker for monitoring.
func (p *ProtectedSender) Breaker() *CircuitBreaker {
	return p.breaker
}
