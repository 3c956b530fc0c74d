package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"catalogwatch/internal/notify"
	logx "catalogwatch/pkg/logx"
)

func TestNormalizeWebhookURL(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"https://discordapp.com/api/webhooks/1/abc", "https://discord.com/api/webhooks/1/abc?wait=true"},
		{"https://discord.com/api/webhooks/1/abc?thread_id=9", "https://discord.com/api/webhooks/1/abc?thread_id=9"},
		{"  ", ""},
	}
	for _, tt := range tests {
		if got := NormalizeWebhookURL(tt.in); got != tt.want {
			t.Fatalf("NormalizeWebhookURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNotifyPostsEmbed(t *testing.T) {
	t.Parallel()
	var got payload
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		if r.Header.Get("Origin") != "" || r.Header.Get("Referer") != "" {
			t.Errorf("unexpected origin headers")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))
	defer srv.Close()

	n, err := New(Config{WebhookURL: srv.URL, Title: "Catalog watch", Footer: "price/new/stock"}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	msg := notify.Message{
		Key:        "atom-hoody",
		Reasons:    []notify.Reason{notify.ReasonPriceChange, notify.ReasonRestock},
		Title:      "Atom Hoody",
		Price:      "CA$ 300.00",
		OldPrice:   "CA$ 360.00",
		Stock:      "M:2",
		URL:        "https://shop.test/atom-hoody/p",
		ObservedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := n.Notify(context.Background(), msg); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if query != "wait=true" {
		t.Fatalf("query = %q, want wait=true", query)
	}
	if len(got.Embeds) != 1 {
		t.Fatalf("embeds = %d, want 1", len(got.Embeds))
	}
	e := got.Embeds[0]
	if e.Title != "Catalog watch" || e.Footer == nil || e.Footer.Text != "price/new/stock" || e.Color != defaultColor {
		t.Fatalf("embed chrome = %+v", e)
	}
	if !strings.HasPrefix(e.Description, "**Price change, Back in stock**\n") {
		t.Fatalf("description = %q", e.Description)
	}
	if !strings.Contains(e.Description, "CA$ 300.00 (was CA$ 360.00)") {
		t.Fatalf("description missing price: %q", e.Description)
	}
	if e.Timestamp != "2025-01-02T03:04:05Z" {
		t.Fatalf("timestamp = %q", e.Timestamp)
	}
}

func TestNotifyErrorStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"You are being rate limited."}`))
	}))
	defer srv.Close()

	n, err := New(Config{WebhookURL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = n.Notify(context.Background(), notify.Message{Key: "a"})
	if err == nil || !strings.Contains(err.Error(), "http=429") || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("err = %v", err)
	}
}

func TestDescriptionCapped(t *testing.T) {
	t.Parallel()
	d := Description(notify.Message{Reasons: []notify.Reason{notify.ReasonNew}, Title: strings.Repeat("é", 5000)})
	if n := len([]rune(d)); n != maxDescription {
		t.Fatalf("description runes = %d, want %d", n, maxDescription)
	}
}

func TestNewRequiresURL(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, logx.Nop()); err == nil {
		t.Fatal("expected error")
	}
}
