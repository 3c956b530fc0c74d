// Package telegram delivers notifications to a Telegram chat through a bot.
package telegram

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	tele "gopkg.in/telebot.v4"

	"catalogwatch/internal/notify"
	logx "catalogwatch/pkg/logx"
)

// maxText is Telegram's message length limit.
const maxText = 4096

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int // forum topic; 0 for none
	// APIURL overrides the Bot API endpoint (tests, local bot API servers).
	APIURL  string
	Timeout time.Duration
}

// Notifier sends one HTML message per notification. It never polls for
// updates.
type Notifier struct {
	bot      *tele.Bot
	chat     *tele.Chat
	threadID int
	log      logx.Logger
}

func New(cfg Config, log logx.Logger) (*Notifier, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   strings.TrimSpace(cfg.Token),
		URL:     strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		Client:  &http.Client{Timeout: timeout},
		Offline: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init telegram bot")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{
		bot:      b,
		chat:     &tele.Chat{ID: cfg.ChatID},
		threadID: cfg.ThreadID,
		log:      log.With(logx.String("comp", "telegram")),
	}, nil
}

// Format renders m as Telegram HTML.
func Format(m notify.Message) string {
	lines := m.Lines()
	parts := []H{B(m.Header())}
	for _, l := range lines[:len(lines)-1] {
		parts = append(parts, Esc(l))
	}
	if u := lines[len(lines)-1]; u != "" {
		parts = append(parts, Link(u, u))
	}
	s := JoinH("\n", parts...).String()
	if r := []rune(s); len(r) > maxText {
		// Cutting may break a tag; drop the link rather than send broken HTML.
		s = JoinH("\n", parts[:len(parts)-1]...).String()
		if r := []rune(s); len(r) > maxText {
			s = string(r[:maxText])
		}
	}
	return s
}

func (n *Notifier) Notify(ctx context.Context, m notify.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := n.bot.Send(n.chat, Format(m), &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              n.threadID,
	})
	if err != nil {
		return errors.Wrap(err, "telegram send")
	}
	n.log.Debug("message sent", logx.String("key", m.Key), logx.Int("message_id", msg.ID))
	return nil
}
