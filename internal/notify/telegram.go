package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTelegramAPI is the Bot API base URL.
const DefaultTelegramAPI = "https://api.telegram.org"

// Telegram delivers messages through the Bot API sendMessage method.
// The owner is used as chat_id.
type Telegram struct {
	token   string
	baseURL string
	client  *http.Client
}

// TelegramOption configures Telegram.
type TelegramOption func(*Telegram)

// WithTelegramAPI overrides the Bot API base URL.
func WithTelegramAPI(baseURL string) TelegramOption {
	return func(t *Telegram) {
		t.baseURL = baseURL
	}
}

// WithTelegramHTTPClient sets a custom HTTP client.
func WithTelegramHTTPClient(client *http.Client) TelegramOption {
	return func(t *Telegram) {
		t.client = client
	}
}

// NewTelegram creates a Telegram notifier for bot token.
func NewTelegram(token string, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		token:   token,
		baseURL: DefaultTelegramAPI,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Notify implements Notifier.
func (t *Telegram) Notify(ctx context.Context, msg Message) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:                msg.Owner,
		Text:                  msg.Text,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var out apiResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("telegram http %d: %s", resp.StatusCode, string(data))
	}
	if !out.OK {
		return fmt.Errorf("telegram error %d: %s", out.ErrorCode, out.Description)
	}
	return nil
}

var _ Notifier = (*Telegram)(nil)
