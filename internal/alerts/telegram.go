package alerts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"delta-hedge-bot/internal/config"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const sendTimeout = 10 * time.Second

// Notifier delivers operator alerts.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
	log    *zap.Logger
}

// NewTelegram returns nil, nil when alerts are disabled. Building the bot
// calls getMe, so a bad token fails here rather than on the first alert.
func NewTelegram(cfg config.TelegramConfig, log *zap.Logger) (*Telegram, error) {
	return newTelegram(cfg, log, tgbot.APIEndpoint, &http.Client{Timeout: sendTimeout})
}

func newTelegram(cfg config.TelegramConfig, log *zap.Logger, endpoint string, client *http.Client) (*Telegram, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("telegram token is required")
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(cfg.ChatID), 10, 64)
	if err != nil || chatID == 0 {
		return nil, fmt.Errorf("telegram chat_id %q is not a numeric id", cfg.ChatID)
	}
	if client == nil {
		client = &http.Client{Timeout: sendTimeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	bot, err := tgbot.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID, log: log}, nil
}

func (t *Telegram) Send(ctx context.Context, message string) error {
	if t == nil || t.bot == nil {
		return nil
	}
	if strings.TrimSpace(message) == "" {
		return errors.New("telegram message is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, message)); err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}
	t.log.Debug("telegram alert sent", zap.Int("chars", len(message)))
	return nil
}

// Update is an incoming chat message addressed to the bot.
type Update struct {
	UpdateID int
	ChatID   int64
	UserID   int64
	Username string
	Text     string
}

// Updates long-polls for messages with ids >= offset. wait is capped below the
// HTTP client timeout.
func (t *Telegram) Updates(ctx context.Context, offset int, wait time.Duration) ([]Update, error) {
	if t == nil || t.bot == nil {
		return nil, errors.New("telegram is disabled")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := tgbot.NewUpdate(offset)
	cfg.Timeout = int(max(0, min(wait, sendTimeout-2*time.Second)) / time.Second)
	cfg.AllowedUpdates = []string{"message"}
	raw, err := t.bot.GetUpdates(cfg)
	if err != nil {
		return nil, fmt.Errorf("telegram updates: %w", err)
	}
	out := make([]Update, 0, len(raw))
	for _, upd := range raw {
		item := Update{UpdateID: upd.UpdateID}
		if msg := upd.Message; msg != nil {
			item.Text = msg.Text
			if msg.Chat != nil {
				item.ChatID = msg.Chat.ID
			}
			if msg.From != nil {
				item.UserID = msg.From.ID
				item.Username = msg.From.UserName
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// ChatID is the chat alerts are delivered to.
func (t *Telegram) ChatID() int64 {
	if t == nil {
		return 0
	}
	return t.chatID
}

// Log writes alerts to the process log. It stands in when Telegram is off.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log}
}

func (l *Log) Send(_ context.Context, message string) error {
	l.log.Warn("alert", zap.String("message", message))
	return nil
}

// New picks Telegram when configured and the log notifier otherwise.
func New(cfg config.TelegramConfig, log *zap.Logger) (Notifier, error) {
	tg, err := NewTelegram(cfg, log)
	if err != nil {
		return nil, err
	}
	if tg == nil {
		return NewLog(log), nil
	}
	return tg, nil
}
