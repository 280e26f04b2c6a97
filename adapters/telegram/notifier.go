// Package telegram delivers forumwatch notifications to a Telegram chat.
package telegram

import (
	"context"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/coregx/forumwatch"
)

// DefaultTimeout bounds a single Bot API call.
const DefaultTimeout = 15 * time.Second

// Notifier sends plain-text messages through the Telegram Bot API.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

type settings struct {
	endpoint   string
	httpClient *http.Client
}

// Option configures the Notifier.
type Option func(*settings)

// WithEndpoint overrides the Bot API endpoint, a format string taking the
// token and the method name (see tgbotapi.APIEndpoint).
func WithEndpoint(endpoint string) Option {
	return func(s *settings) {
		s.endpoint = endpoint
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) {
		s.httpClient = client
	}
}

// New authenticates the bot (getMe) and returns a Notifier for chatID.
func New(token string, chatID int64, opts ...Option) (*Notifier, error) {
	if token == "" {
		return nil, forumwatch.NewError(forumwatch.ErrCodeConfiguration, "telegram token is required")
	}
	if chatID == 0 {
		return nil, forumwatch.NewError(forumwatch.ErrCodeConfiguration, "telegram chat id is required")
	}

	s := &settings{
		endpoint:   tgbotapi.APIEndpoint,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}

	bot, err := tgbotapi.NewBotAPIWithClient(token, s.endpoint, s.httpClient)
	if err != nil {
		return nil, forumwatch.NewErrorWithCause(forumwatch.ErrCodeConfiguration, "failed to authenticate telegram bot", err)
	}

	return &Notifier{bot: bot, chatID: chatID}, nil
}

// BotName returns the username of the authenticated bot.
func (n *Notifier) BotName() string {
	return n.bot.Self.UserName
}

// Send posts text to the configured chat.
func (n *Notifier) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return forumwatch.NewErrorWithCause(forumwatch.ErrCodeNotify, "send aborted", err)
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.DisableWebPagePreview = true

	if _, err := n.bot.Send(msg); err != nil {
		return forumwatch.NewErrorWithCause(forumwatch.ErrCodeNotify, "telegram sendMessage failed", err)
	}
	return nil
}
