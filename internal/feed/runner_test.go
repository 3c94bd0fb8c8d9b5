package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pumpbot/internal/domain"
	"github.com/alanyoungcy/pumpbot/internal/platform/pumpportal"
)

type fakeFeed struct {
	*httptest.Server
	mu       sync.Mutex
	commands []pumpportal.WSCommand
	conns    chan *websocket.Conn
}

func newFakeFeed(t *testing.T) *fakeFeed {
	t.Helper()
	f := &fakeFeed{conns: make(chan *websocket.Conn, 8)}
	upgrader := websocket.Upgrader{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd pumpportal.WSCommand
			if json.Unmarshal(data, &cmd) == nil {
				f.mu.Lock()
				f.commands = append(f.commands, cmd)
				f.mu.Unlock()
			}
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeFeed) wsURL() string {
	return "ws" + strings.TrimPrefix(f.URL, "http")
}

func (f *fakeFeed) received() []pumpportal.WSCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pumpportal.WSCommand(nil), f.commands...)
}

type countingObserver struct{ n atomic.Int32 }

func (c *countingObserver) FeedReconnected() { c.n.Add(1) }

func TestRunnerSubscribesTrackedMintsAndReconnects(t *testing.T) {
	srv := newFakeFeed(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRunner(srv.wsURL(), 20*time.Millisecond, func() []string { return []string{"m1"} }, logger)
	obs := &countingObserver{}
	r.SetObserver(obs)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	first := <-srv.conns
	assert.Eventually(t, func() bool { return len(srv.received()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []pumpportal.WSCommand{
		{Method: pumpportal.MethodSubscribeNewToken},
		{Method: pumpportal.MethodSubscribeTokenTrade, Keys: []string{"m1"}},
	}, srv.received())

	require.NoError(t, first.WriteMessage(websocket.TextMessage, []byte(`{"mint":"m1","txType":"sell","tokenAmount":10,"solAmount":1}`)))
	select {
	case ev := <-r.Events():
		assert.Equal(t, domain.EventSell, ev.Kind)
		assert.Equal(t, "m1", ev.Mint)
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}

	require.Eventually(t, func() bool {
		return r.Track(context.Background(), "m2") == nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, first.Close())

	select {
	case <-srv.conns:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not reconnect")
	}
	assert.Eventually(t, func() bool { return len(srv.received()) == 5 }, 2*time.Second, 10*time.Millisecond)
	got := srv.received()
	assert.Equal(t, pumpportal.WSCommand{Method: pumpportal.MethodSubscribeTokenTrade, Keys: []string{"m2"}}, got[2])
	assert.Equal(t, pumpportal.MethodSubscribeNewToken, got[3].Method)
	assert.Equal(t, int32(1), obs.n.Load())

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunnerTrackWhileDisconnected(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRunner("ws://127.0.0.1:1", time.Second, nil, logger)
	assert.ErrorIs(t, r.Track(context.Background(), "m"), domain.ErrNotConnected)
	assert.ErrorIs(t, r.Untrack(context.Background(), "m"), domain.ErrNotConnected)
}

func TestRunnerStopsWhileWaitingToReconnect(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRunner("ws://127.0.0.1:1", time.Hour, nil, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := r.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
