package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"stock-price-alerts/pkg/models"
)

const DefaultTelegramURL = "https://api.telegram.org"

// TelegramSink posts alerts to a chat through the Telegram Bot API. A rule's
// own chat replaces the configured one; events with neither are skipped.
type TelegramSink struct {
	client *resty.Client
	token  string
	chatID string
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func NewTelegramSink(baseURL, token, chatID string, timeout time.Duration) (*TelegramSink, error) {
	if token == "" {
		return nil, errors.New("telegram sink needs a bot token")
	}
	if baseURL == "" {
		baseURL = DefaultTelegramURL
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &TelegramSink{client: client, token: token, chatID: chatID}, nil
}

func (s *TelegramSink) Name() string {
	return "telegram"
}

func (s *TelegramSink) Notify(ctx context.Context, event models.AlertEvent) error {
	chatID := s.chatID
	if event.TelegramChatID != "" {
		chatID = event.TelegramChatID
	}
	if chatID == "" {
		return nil
	}

	var out telegramResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id": chatID,
			"text":    FormatMessage(event),
		}).
		SetResult(&out).
		SetError(&out).
		Post(fmt.Sprintf("/bot%s/sendMessage", s.token))
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	if resp.IsError() || !out.OK {
		return fmt.Errorf("telegram api error (status %d): %s", resp.StatusCode(), out.Description)
	}
	return nil
}
