// Package discord delivers notifications to a Discord channel webhook as
// a single embed per message.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"catalogwatch/internal/notify"
	logx "catalogwatch/pkg/logx"
)

const (
	// maxDescription is Discord's embed description limit, with headroom.
	maxDescription = 4000
	defaultTimeout = 7 * time.Second
	defaultColor   = 0x00AAFF
)

// Config configures the webhook target and embed chrome.
type Config struct {
	WebhookURL string
	Title      string
	Footer     string
	Color      int
	UserAgent  string
	Timeout    time.Duration
}

// Notifier posts embeds to a webhook.
type Notifier struct {
	url  string
	cfg  Config
	http *http.Client
	log  logx.Logger
}

// New validates cfg and returns a notifier.
func New(cfg Config, log logx.Logger) (*Notifier, error) {
	u := NormalizeWebhookURL(cfg.WebhookURL)
	if u == "" {
		return nil, errors.New("discord webhook url is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Color == 0 {
		cfg.Color = defaultColor
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{
		url:  u,
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.With(logx.String("comp", "discord")),
	}, nil
}

// NormalizeWebhookURL rewrites the legacy discordapp.com host and asks
// Discord to wait for the message to be created when no query is present.
func NormalizeWebhookURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	u = strings.ReplaceAll(u, "discordapp.com", "discord.com")
	if !strings.Contains(u, "?") {
		u += "?wait=true"
	}
	return u
}

type embedFooter struct {
	Text string `json:"text"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description"`
	URL         string       `json:"url,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Color       int          `json:"color"`
	Footer      *embedFooter `json:"footer,omitempty"`
}

type payload struct {
	Content *string `json:"content"`
	Embeds  []embed `json:"embeds"`
}

// Description renders the embed body for m: bold header, then the fields.
func Description(m notify.Message) string {
	lines := append([]string{"**" + m.Header() + "**"}, m.Lines()...)
	s := strings.Join(lines, "\n")
	if r := []rune(s); len(r) > maxDescription {
		s = string(r[:maxDescription])
	}
	return s
}

func (n *Notifier) build(m notify.Message) payload {
	at := m.ObservedAt
	if at.IsZero() {
		at = time.Now()
	}
	e := embed{
		Title:       n.cfg.Title,
		Description: Description(m),
		Timestamp:   at.UTC().Format(time.RFC3339),
		Color:       n.cfg.Color,
	}
	if n.cfg.Footer != "" {
		e.Footer = &embedFooter{Text: n.cfg.Footer}
	}
	return payload{Embeds: []embed{e}}
}

// Notify sends one embed. Any non-2xx status is an error carrying the
// status code and the start of the response body.
func (n *Notifier) Notify(ctx context.Context, m notify.Message) error {
	b, err := json.Marshal(n.build(m))
	if err != nil {
		return errors.Wrap(err, "encode payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(b))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	// No Origin/Referer: Discord rejects browser-like origins on webhooks.
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(n.cfg.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := n.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "post webhook")
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	if resp.StatusCode/100 != 2 {
		return errors.Errorf("discord webhook: http=%d body=%q", resp.StatusCode, prefix(body, 200))
	}
	n.log.Debug("webhook ok", logx.Int("status", resp.StatusCode), logx.String("key", m.Key))
	return nil
}

func prefix(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
