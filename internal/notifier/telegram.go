package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	logx "reviewbadge/pkg/logx"
)

// TelegramConfig configures the Telegram sink.
type TelegramConfig struct {
	Token  string
	ChatID int64
	// APIURL overrides the Bot API endpoint (tests, local bot API servers).
	APIURL string
}

// Telegram sends notifications as chat messages with a link button.
type Telegram struct {
	bot  *tele.Bot
	chat *tele.Chat
	log  logx.Logger

	mu   sync.Mutex
	sent map[string]int // notification id -> message id
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	// Offline: no getMe round trip at startup, and no update polling; this
	// bot only sends.
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Telegram{bot: b, chat: &tele.Chat{ID: cfg.ChatID}, log: log, sent: map[string]int{}}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// Show posts the notification. A message still standing for the same id is
// deleted first so the chat mirrors a replaced desktop notification.
func (t *Telegram) Show(ctx context.Context, n Notification) error {
	_ = t.Clear(ctx, n.ID)

	text := n.Message
	if n.Title != "" {
		text = n.Title + "\n" + n.Message
	}
	opt := &tele.SendOptions{DisableWebPagePreview: true}
	if n.URL != "" {
		rm := &tele.ReplyMarkup{}
		rm.Inline(rm.Row(rm.URL("Study now", n.URL)))
		opt.ReplyMarkup = rm
	}
	msg, err := t.bot.Send(t.chat, text, opt)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.sent[n.ID] = msg.ID
	t.mu.Unlock()
	return nil
}

func (t *Telegram) Clear(ctx context.Context, id string) error {
	_ = ctx
	t.mu.Lock()
	mid, ok := t.sent[id]
	delete(t.sent, id)
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return t.bot.Delete(&tele.Message{ID: mid, Chat: t.chat})
}
