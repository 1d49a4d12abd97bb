package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/secondmind/notify/internal/db"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramSender delivers messages through the Telegram Bot API.
// This is the primary channel for the assistant.
type TelegramSender struct {
	token   string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

type TelegramConfig struct {
	BotToken string
	BaseURL  string        // override for tests; defaults to the public API
	Timeout  time.Duration // defaults to 10s
}

// NewTelegramSender creates a Telegram sender for the given bot token
func NewTelegramSender(cfg TelegramConfig, logger *zap.Logger) *TelegramSender {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = telegramAPIBase
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &TelegramSender{
		token:   cfg.BotToken,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts the message text to the user's chat. A non-200 status or an
// API-level not-ok response both count as delivery failure.
func (s *TelegramSender) Send(ctx context.Context, msg *Message) error {
	if msg.Channel != db.ChannelTelegram {
		return fmt.Errorf("telegram sender only supports telegram, got: %s", msg.Channel)
	}
	if s.token == "" {
		return fmt.Errorf("telegram bot token not configured")
	}
	if msg.Address == "" {
		return fmt.Errorf("message missing chat id")
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID: msg.Address,
		Text:   msg.Body,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API error: %s, body: %s", resp.Status, string(respBody))
	}

	var apiResp sendMessageResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return fmt.Errorf("decode telegram response: %w", err)
	}
	if !apiResp.OK {
		return fmt.Errorf("telegram API response not ok: %s", apiResp.Description)
	}

	s.logger.Info("telegram message sent",
		zap.String("notification_id", msg.NotificationID),
		zap.String("chat_id", msg.Address),
	)

	return nil
}

// SupportsChannel checks if this sender supports the telegram channel
func (s *TelegramSender) SupportsChannel(channel string) bool {
	return channel == db.ChannelTelegram
}
