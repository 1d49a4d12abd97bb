// Package events publishes delivery outcomes to an SQS queue so downstream
// consumers (analytics, the bot's activity feed) can react to sends without
// polling the database.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"
)

// Config holds SQS configuration.
type Config struct {
	Region   string
	QueueURL string
}

// DeliveryEvent is the payload published for each delivery attempt outcome.
type DeliveryEvent struct {
	NotificationID   string `json:"notification_id"`
	UserID           string `json:"user_id"`
	NotificationType string `json:"notification_type"`
	Channel          string `json:"channel"`
	Outcome          string `json:"outcome"` // "delivered" or "failed"
	At               int64  `json:"at"`      // unix nanos
}

// Producer publishes delivery events to SQS.
type Producer struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger
}

// NewProducer creates a new delivery-event producer.
func NewProducer(ctx context.Context, cfg Config, logger *zap.Logger) (*Producer, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("delivery event producer initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	return &Producer{
		client:   sqs.NewFromConfig(awsCfg),
		queueURL: cfg.QueueURL,
		logger:   logger,
	}, nil
}

// PublishDelivery sends one delivery outcome to the queue.
func (p *Producer) PublishDelivery(ctx context.Context, notificationID, userID, notificationType, channel, outcome string) error {
	event := DeliveryEvent{
		NotificationID:   notificationID,
		UserID:           userID,
		NotificationType: notificationType,
		Channel:          channel,
		Outcome:          outcome,
		At:               time.Now().UnixNano(),
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery event: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		p.logger.Error("failed to publish delivery event",
			zap.Error(err),
			zap.String("notification_id", notificationID),
		)
		return fmt.Errorf("sqs send failed: %w", err)
	}

	return nil
}
