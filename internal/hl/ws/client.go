package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Handler receives every text frame read from the socket.
type Handler func(json.RawMessage)

// Client keeps one websocket connection alive and replays its subscriptions
// after every reconnect.
type Client struct {
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	subs []any
}

var errNotConnected = errors.New("ws not connected")

func New(url string, reconnectDelay, pingInterval time.Duration, log *zap.Logger) *Client {
	if reconnectDelay <= 0 {
		reconnectDelay = 3 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{url: url, reconnectDelay: reconnectDelay, pingInterval: pingInterval, log: log}
}

// Subscribe records sub and sends it right away when a connection is open.
func (c *Client) Subscribe(ctx context.Context, sub any) error {
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return writeJSON(ctx, conn, sub)
}

// Run reads until ctx is done, reconnecting after read errors.
func (c *Client) Run(ctx context.Context, handler Handler) error {
	for {
		err := c.session(ctx, handler)
		if ctx.Err() != nil {
			c.close()
			return ctx.Err()
		}
		c.logSessionEnd(err)
		c.close()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *Client) session(ctx context.Context, handler Handler) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithCancel(ctx)
	pingDone := make(chan struct{})
	go func() {
		defer close(pingDone)
		c.pingLoop(pingCtx, conn)
	}()
	defer func() {
		cancel()
		<-pingDone
	}()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if handler != nil {
			handler(json.RawMessage(data))
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.conn = conn
	subs := append([]any(nil), c.subs...)
	c.mu.Unlock()
	for _, sub := range subs {
		if err := writeJSON(ctx, conn, sub); err != nil {
			return nil, err
		}
	}
	return conn, nil
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	if c.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writeJSON(ctx, conn, pingMessage); err != nil {
				return
			}
		}
	}
}

func (c *Client) logSessionEnd(err error) {
	if err == nil {
		return
	}
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		c.log.Info("ws session ended", zap.Error(err))
		return
	}
	c.log.Warn("ws session ended", zap.Error(err), zap.Duration("retry_in", c.reconnectDelay))
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "reset")
		c.conn = nil
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	if conn == nil {
		return errNotConnected
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

var pingMessage = map[string]any{"method": "ping"}
