// Package telegram wraps the Telegram Bot API endpoints used by triagebot.
//
// The bot receives updates through a webhook, so the client only needs the
// outbound surface: sendMessage with reply keyboards and setWebhook.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// DefaultBaseURL is the public Telegram Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// Sender is the outbound surface consumed by the messaging service. Tests
// substitute a MockClient.
type Sender interface {
	// SendMessage sends Markdown text and removes any active reply keyboard.
	SendMessage(ctx context.Context, chatID, text string) error

	// SendKeyboard sends Markdown text with a one-time reply keyboard, one
	// button per choice.
	SendKeyboard(ctx context.Context, chatID, text string, choices []string) error
}

// Opts holds configuration options for the Telegram client.
type Opts struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
}

// Option defines a configuration option for the Telegram client.
type Option func(*Opts)

// WithToken sets the bot token.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithBaseURL overrides the API base URL. Used by tests.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithHTTPClient injects a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client talks to the Telegram Bot API over HTTPS.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a Client, falling back to $TELEGRAM_BOT_TOKEN when no
// token option is given.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" {
		cfg.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	}
	slog.Debug("Telegram client config loaded", "token_set", cfg.Token != "", "baseURL_set", cfg.BaseURL != "")
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram bot token must be provided")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{token: cfg.Token, baseURL: cfg.BaseURL, httpClient: cfg.HTTPClient}, nil
}

type sendMessageRequest struct {
	ChatID      string `json:"chat_id"`
	Text        string `json:"text"`
	ParseMode   string `json:"parse_mode,omitempty"`
	ReplyMarkup any    `json:"reply_markup,omitempty"`
}

type replyKeyboardMarkup struct {
	Keyboard        [][]keyboardButton `json:"keyboard"`
	OneTimeKeyboard bool               `json:"one_time_keyboard"`
	ResizeKeyboard  bool               `json:"resize_keyboard"`
}

type keyboardButton struct {
	Text string `json:"text"`
}

type replyKeyboardRemove struct {
	RemoveKeyboard bool `json:"remove_keyboard"`
}

type setWebhookRequest struct {
	URL string `json:"url"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
}

// SendMessage implements Sender.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	return c.post(ctx, "sendMessage", sendMessageRequest{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   "Markdown",
		ReplyMarkup: replyKeyboardRemove{RemoveKeyboard: true},
	})
}

// SendKeyboard implements Sender.
func (c *Client) SendKeyboard(ctx context.Context, chatID, text string, choices []string) error {
	keyboard := make([][]keyboardButton, 0, len(choices))
	for _, choice := range choices {
		keyboard = append(keyboard, []keyboardButton{{Text: choice}})
	}
	return c.post(ctx, "sendMessage", sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "Markdown",
		ReplyMarkup: replyKeyboardMarkup{
			Keyboard:        keyboard,
			OneTimeKeyboard: true,
			ResizeKeyboard:  true,
		},
	})
}

// SetWebhook registers the webhook URL with Telegram so updates are delivered
// by HTTPS POST instead of long polling.
func (c *Client) SetWebhook(ctx context.Context, url string) error {
	return c.post(ctx, "setWebhook", setWebhookRequest{URL: url})
}

// post sends one Bot API method call and checks the API-level result.
func (c *Client) post(ctx context.Context, method string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("Telegram API request failed", "method", method, "error", err)
		return fmt.Errorf("telegram %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var result apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !result.OK {
		slog.Error("Telegram API returned error", "method", method, "code", result.ErrorCode, "description", result.Description)
		return fmt.Errorf("telegram %s failed: %s (code %d)", method, result.Description, result.ErrorCode)
	}
	slog.Debug("Telegram API call succeeded", "method", method)
	return nil
}
