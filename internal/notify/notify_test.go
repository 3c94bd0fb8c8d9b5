package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

type recordingSender struct {
	name   string
	titles []string
	err    error
}

func (r *recordingSender) Send(ctx context.Context, title, message string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{EventBuyConfirmed, " "}, testLogger())
	ctx := context.Background()

	require.NoError(t, n.Notify(ctx, EventBuyConfirmed, "bought", ""))
	require.NoError(t, n.Notify(ctx, EventTradeFailed, "failed", ""))
	require.NoError(t, n.NotifyAll(ctx, "startup", ""))
	assert.Equal(t, []string{"bought", "startup"}, s.titles)

	all := NewNotifier([]Sender{s}, nil, testLogger())
	require.NoError(t, all.Notify(ctx, EventTradeFailed, "any", ""))
	assert.Len(t, s.titles, 3)
	assert.True(t, all.Enabled())
	assert.False(t, NewNotifier(nil, nil, testLogger()).Enabled())
}

func TestNotifierContinuesPastFailingSender(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.NotifyAll(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Equal(t, []string{"t"}, good.titles)
}

func TestTelegramSender(t *testing.T) {
	var path string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.baseURL = srv.URL
	require.NoError(t, s.Send(context.Background(), "Bought X", "Tx: abc"))
	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "42", body["chat_id"])
	assert.Equal(t, "*Bought X*\nTx: abc", body["text"])
}

func TestTelegramSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chat not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.baseURL = srv.URL
	err := s.Send(context.Background(), "t", "m")
	assert.ErrorContains(t, err, "unexpected status 400")
}

func TestDiscordSenderTruncates(t *testing.T) {
	var content string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		content = body["content"]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	require.NoError(t, s.Send(context.Background(), "Sold X", strings.Repeat("a", 3000)))
	assert.Len(t, content, discordMaxContent)
	assert.True(t, strings.HasPrefix(content, "**Sold X**\n"))
}

func TestDiscordSenderTruncatesOnRuneBoundary(t *testing.T) {
	var content string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		content = body["content"]
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	require.NoError(t, s.Send(context.Background(), "Bought 🚀MOON", strings.Repeat("🚀", 2500)))
	assert.True(t, utf8.ValidString(content))
	assert.Equal(t, discordMaxContent, utf8.RuneCountInString(content))
	assert.True(t, strings.HasSuffix(content, "🚀"))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héllo", truncateRunes("héllo", 10))
	assert.Equal(t, "hé", truncateRunes("héllo", 2))
	assert.Equal(t, "", truncateRunes("🚀", 0))
}

func TestFormat(t *testing.T) {
	buy := domain.Decision{Action: domain.ActionBuy, Mint: "9QUYvUGiqCALxrMCyJrVYXtJSpt4BYzPRv5ZRjsdqzkh", Name: "BARRON", Trigger: domain.TriggerNewToken, Price: 0.00000003}
	o := domain.Confirm(buy, "rpc", "sig1")
	o.SolAmount = 10_000_000

	event, title, msg := Format(buy, o)
	assert.Equal(t, EventBuyConfirmed, event)
	assert.Equal(t, "Bought BARRON", title)
	assert.Contains(t, msg, "SOL: 0.010000")
	assert.Contains(t, msg, "Tx: sig1")

	sell := domain.Decision{Action: domain.ActionSell, Mint: "9QUYvUGiqCALxrMCyJrVYXtJSpt4BYzPRv5ZRjsdqzkh", Fraction: 0.5, Trigger: domain.TriggerProfitHalf}
	event, title, msg = Format(sell, domain.Confirm(sell, "rpc", "sig2"))
	assert.Equal(t, EventSellConfirmed, event)
	assert.Equal(t, "Sold 9QUY…qzkh", title)
	assert.Contains(t, msg, "Fraction: 50%")

	event, title, msg = Format(sell, domain.Fail(sell, "rpc", domain.ReasonUnconfirmed, errors.New("timed out")))
	assert.Equal(t, EventTradeFailed, event)
	assert.Equal(t, "Failed sell 9QUY…qzkh", title)
	assert.Contains(t, msg, "Reason: unconfirmed")
	assert.Contains(t, msg, "Detail: timed out")

	event, _, msg = Format(sell, domain.Skip(sell, "rpc", domain.ReasonNoBalance))
	assert.Equal(t, EventTradeSkipped, event)
	assert.Contains(t, msg, "Reason: no_balance")
}
