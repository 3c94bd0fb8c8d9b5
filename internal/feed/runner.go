// Package feed keeps a PumpPortal subscription alive across disconnects and
// exposes its events as a channel.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/pumpbot/internal/domain"
	"github.com/alanyoungcy/pumpbot/internal/platform/pumpportal"
)

// TrackedFunc returns the mints whose trades must be subscribed on connect.
type TrackedFunc func() []string

// ReconnectObserver is notified each time the runner reconnects.
type ReconnectObserver interface {
	FeedReconnected()
}

// Runner connects to the feed, subscribes to new tokens plus the trades of
// every tracked mint, and reconnects after a fixed delay when the connection
// drops.
type Runner struct {
	wsURL          string
	reconnectDelay time.Duration
	tracked        TrackedFunc
	observer       ReconnectObserver
	events         chan domain.TradeEvent
	logger         *slog.Logger

	mu     sync.Mutex
	client *pumpportal.WSClient
}

// NewRunner creates a Runner. tracked is consulted on every (re)connect.
func NewRunner(wsURL string, reconnectDelay time.Duration, tracked TrackedFunc, logger *slog.Logger) *Runner {
	if tracked == nil {
		tracked = func() []string { return nil }
	}
	return &Runner{
		wsURL:          wsURL,
		reconnectDelay: reconnectDelay,
		tracked:        tracked,
		events:         make(chan domain.TradeEvent, 256),
		logger:         logger.With(slog.String("component", "pumpportal_feed")),
	}
}

// SetObserver registers a reconnect observer. Call before Run.
func (r *Runner) SetObserver(o ReconnectObserver) {
	r.observer = o
}

// Events returns the channel feed events are delivered on.
func (r *Runner) Events() <-chan domain.TradeEvent {
	return r.events
}

// Run connects and keeps reconnecting until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	first := true
	for {
		if !first {
			if r.observer != nil {
				r.observer.FeedReconnected()
			}
		}
		first = false

		err := r.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.WarnContext(ctx, "feed disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("delay", r.reconnectDelay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.reconnectDelay):
		}
	}
}

// Track subscribes to the trades of mint on the live connection. When the
// runner is between connections the mint is picked up on the next connect.
func (r *Runner) Track(ctx context.Context, mint string) error {
	client := r.current()
	if client == nil {
		return fmt.Errorf("feed: track %s: %w", mint, domain.ErrNotConnected)
	}
	return client.SubscribeTokenTrade(ctx, mint)
}

// Untrack drops the trade subscription for mint.
func (r *Runner) Untrack(ctx context.Context, mint string) error {
	client := r.current()
	if client == nil {
		return fmt.Errorf("feed: untrack %s: %w", mint, domain.ErrNotConnected)
	}
	return client.UnsubscribeTokenTrade(ctx, mint)
}

func (r *Runner) runConnection(ctx context.Context) error {
	client := pumpportal.NewWSClient(r.wsURL)
	defer client.Close()

	client.OnTrade(func(ev domain.TradeEvent) {
		select {
		case r.events <- ev:
		case <-ctx.Done():
		}
	})

	if err := client.Connect(ctx); err != nil {
		return err
	}
	if err := client.SubscribeNewToken(ctx); err != nil {
		return err
	}
	mints := r.tracked()
	if err := client.SubscribeTokenTrade(ctx, mints...); err != nil {
		return err
	}
	r.setCurrent(client)
	defer r.setCurrent(nil)

	r.logger.InfoContext(ctx, "feed subscribed", slog.Int("tracked", len(mints)))

	select {
	case <-ctx.Done():
		r.unsubscribeAll(client)
		return ctx.Err()
	case <-client.Done():
		return client.Err()
	}
}

// unsubscribeAll is best effort; the connection is closed right after.
func (r *Runner) unsubscribeAll(client *pumpportal.WSClient) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = client.UnsubscribeNewToken(ctx)
	_ = client.UnsubscribeTokenTrade(ctx, r.tracked()...)
}

func (r *Runner) current() *pumpportal.WSClient {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client
}

func (r *Runner) setCurrent(c *pumpportal.WSClient) {
	r.mu.Lock()
	r.client = c
	r.mu.Unlock()
}

func errString(err error) string {
	if err == nil {
		return "connection closed"
	}
	return err.Error()
}
