package pumpportal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// TradeHandler is called for every create, buy, or sell notification.
type TradeHandler func(domain.TradeEvent)

// WSClient is a single WebSocket connection to the PumpPortal data feed. It
// does not reconnect on its own; Done is closed when the connection is lost
// and the owner decides what to do next.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn

	mu      sync.Mutex
	writeMu sync.Mutex
	closed  bool

	handlers  []TradeHandler
	handlerMu sync.RWMutex

	// done is closed when the read loop exits.
	done chan struct{}
	err  error
}

// NewWSClient creates a client for wsURL, e.g. "wss://pumpportal.fun/api/data".
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// Connect dials the feed and starts the read and ping loops.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("pumpportal/ws: %w", domain.ErrWSDisconnect)
	}
	if w.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("pumpportal/ws: connect: %w", err)
	}
	w.conn = conn

	// Set up pong handler for keep-alive.
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go w.readLoop(conn)
	go w.pingLoop(conn)
	return nil
}

// OnTrade registers a handler for feed events. Handlers run on the read
// loop goroutine, so a slow handler applies backpressure to the socket.
func (w *WSClient) OnTrade(handler TradeHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// SubscribeNewToken asks for token creation events.
func (w *WSClient) SubscribeNewToken(ctx context.Context) error {
	return w.send(ctx, WSCommand{Method: MethodSubscribeNewToken})
}

// UnsubscribeNewToken stops token creation events.
func (w *WSClient) UnsubscribeNewToken(ctx context.Context) error {
	return w.send(ctx, WSCommand{Method: MethodUnsubscribeNewToken})
}

// SubscribeTokenTrade asks for buy and sell events on mints.
func (w *WSClient) SubscribeTokenTrade(ctx context.Context, mints ...string) error {
	if len(mints) == 0 {
		return nil
	}
	return w.send(ctx, WSCommand{Method: MethodSubscribeTokenTrade, Keys: mints})
}

// UnsubscribeTokenTrade stops buy and sell events on mints.
func (w *WSClient) UnsubscribeTokenTrade(ctx context.Context, mints ...string) error {
	if len(mints) == 0 {
		return nil
	}
	return w.send(ctx, WSCommand{Method: MethodUnsubscribeTokenTrade, Keys: mints})
}

// Done is closed when the connection has been lost or closed.
func (w *WSClient) Done() <-chan struct{} {
	return w.done
}

// Err returns the reason the read loop stopped. It is only meaningful after
// Done is closed.
func (w *WSClient) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close shuts down the WebSocket connection and stops the read loop.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.conn == nil {
		close(w.done)
		return nil
	}

	w.writeMu.Lock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = w.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	w.writeMu.Unlock()
	return w.conn.Close()
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

func (w *WSClient) send(ctx context.Context, cmd WSCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	conn := w.conn
	closed := w.closed
	w.mu.Unlock()

	if conn == nil || closed {
		return fmt.Errorf("pumpportal/ws: %s: %w", cmd.Method, domain.ErrNotConnected)
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("pumpportal/ws: marshal command: %w", err)
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("pumpportal/ws: %s: %w", cmd.Method, err)
	}
	return nil
}

// readLoop reads frames until the connection fails, dispatching trade
// notifications to the registered handlers.
func (w *WSClient) readLoop(conn *websocket.Conn) {
	var readErr error
	defer func() {
		w.mu.Lock()
		if w.closed {
			w.err = nil
		} else {
			w.err = fmt.Errorf("pumpportal/ws: %w: %v", domain.ErrWSDisconnect, readErr)
		}
		w.mu.Unlock()
		_ = conn.Close()
		close(w.done)
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			readErr = err
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				readErr = errors.New("closed by peer")
			}
			return
		}
		w.handleMessage(message)
	}
}

// pingLoop sends periodic ping messages to keep the WebSocket alive.
func (w *WSClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			w.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (w *WSClient) handleMessage(raw []byte) {
	ev, ok := ParseMessage(raw)
	if !ok {
		return
	}

	w.handlerMu.RLock()
	handlers := w.handlers
	w.handlerMu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
