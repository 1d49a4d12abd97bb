package sender

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"

	"github.com/secondmind/notify/internal/db"
)

// SNSSender delivers messages as SMS via AWS SNS.
type SNSSender struct {
	client *sns.Client
	logger *zap.Logger
}

type SNSConfig struct {
	Region string
}

func NewSNSSender(ctx context.Context, cfg SNSConfig, logger *zap.Logger) (*SNSSender, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config for SNS: %w", err)
	}

	return &SNSSender{
		client: sns.NewFromConfig(awsCfg),
		logger: logger,
	}, nil
}

// Send publishes the message body to the user's phone number
func (s *SNSSender) Send(ctx context.Context, msg *Message) error {
	if msg.Channel != db.ChannelSMS {
		return fmt.Errorf("SNS sender only supports SMS, got: %s", msg.Channel)
	}
	if msg.Address == "" {
		return fmt.Errorf("message missing phone number")
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(msg.Address),
		Message:     aws.String(msg.Body),
	}

	result, err := s.client.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}

	s.logger.Info("SMS sent via SNS",
		zap.String("notification_id", msg.NotificationID),
		zap.String("phone_number", msg.Address),
		zap.String("message_id", *result.MessageId),
	)

	return nil
}

// SupportsChannel checks if this sender supports the SMS channel
func (s *SNSSender) SupportsChannel(channel string) bool {
	return channel == db.ChannelSMS
}
