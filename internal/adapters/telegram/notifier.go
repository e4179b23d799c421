package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dcaAlertBot/internal/domain"
	"dcaAlertBot/internal/ports"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// sender is the part of *tgbotapi.BotAPI the notifier needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Config holds configuration for the Telegram notifier.
type Config struct {
	BotToken    string
	ChatID      string // Numeric chat ID or "@channel" username
	APIEndpoint string // Defaults to tgbotapi.APIEndpoint
	Timeout     time.Duration
	Location    *time.Location // Timezone used in messages
	Logger      ports.Logger
}

// Notifier implements ports.Notifier on top of the Telegram Bot API.
type Notifier struct {
	bot      sender
	chatID   int64
	channel  string
	location *time.Location
	logger   ports.Logger
}

// New creates a notifier. It contacts Telegram once (getMe) to validate the token.
func New(cfg Config) (*Notifier, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Telegram notifier")
	}
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("%w: telegram bot token is empty", ports.ErrConfigurationError)
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	cfg.Logger.Info(context.Background(), "Telegram bot authorized", map[string]interface{}{"username": bot.Self.UserName})

	return newWithSender(bot, cfg)
}

func newWithSender(bot sender, cfg Config) (*Notifier, error) {
	n := &Notifier{bot: bot, location: cfg.Location, logger: cfg.Logger}
	if n.location == nil {
		n.location = time.UTC
	}

	chat := strings.TrimSpace(cfg.ChatID)
	switch {
	case chat == "":
		return nil, fmt.Errorf("%w: telegram chat ID is empty", ports.ErrConfigurationError)
	case strings.HasPrefix(chat, "@"):
		n.channel = chat
	default:
		id, err := strconv.ParseInt(chat, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid telegram chat ID '%s': %w", ports.ErrConfigurationError, chat, err)
		}
		n.chatID = id
	}
	return n, nil
}

// Notify renders the alert and sends it to the configured chat.
func (n *Notifier) Notify(ctx context.Context, alert domain.Alert) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrDelivery, err)
	}
	if err := n.Send(ctx, FormatAlert(alert, n.location)); err != nil {
		return err
	}
	n.logger.Info(ctx, "Alert sent to Telegram", map[string]interface{}{
		"symbol":    alert.Decision.Info.Symbol,
		"direction": alert.Decision.Kind.String(),
	})
	return nil
}

// Send delivers a pre-rendered Markdown message.
func (n *Notifier) Send(ctx context.Context, text string) error {
	var msg tgbotapi.MessageConfig
	if n.channel != "" {
		msg = tgbotapi.NewMessageToChannel(n.channel, text)
	} else {
		msg = tgbotapi.NewMessage(n.chatID, text)
	}
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("%w: telegram send: %w", ports.ErrDelivery, err)
	}
	return nil
}
