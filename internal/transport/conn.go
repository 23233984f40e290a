package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/profai/voice-gateway/internal/protocol"
)

// ErrNotConnected is returned by Send once the socket is known to be gone.
var ErrNotConnected = fmt.Errorf("client connection closed")

// Conn owns one client websocket. It is the single writer for the socket and
// the single source of truth for "can we still write": Connected flips to
// false on the first failed read or write and never flips back.
type Conn struct {
	ws        *websocket.Conn
	clientID  string
	logger    *slog.Logger
	clock     func() time.Time
	writeMu   sync.Mutex
	connected atomic.Bool
	closure   atomic.Int32
}

func NewConn(ws *websocket.Conn, clientID string, logger *slog.Logger) *Conn {
	c := &Conn{
		ws:       ws,
		clientID: clientID,
		logger:   logger.With(slog.String("component", "transport"), slog.String("client_id", clientID)),
		clock:    time.Now,
	}
	c.connected.Store(true)
	c.closure.Store(int32(ClosureNormal))
	return c
}

func (c *Conn) ClientID() string { return c.clientID }

// Connected reports whether the socket is still believed writable. Cheap
// enough to call before every chunk send.
func (c *Conn) Connected() bool { return c.connected.Load() }

// LastClosure reports how the connection ended. Meaningful only once
// Connected returns false.
func (c *Conn) LastClosure() Closure { return Closure(c.closure.Load()) }

// Read blocks for the next text message from the client.
func (c *Conn) Read() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		c.markClosed(err)
		return nil, err
	}
	return data, nil
}

// Send stamps the event with client_id and a server timestamp, serializes it
// and writes it out. A write failure marks the connection closed.
func (c *Conn) Send(event protocol.Event) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}

	event["client_id"] = c.clientID
	event["timestamp"] = float64(c.clock().UnixMilli()) / 1000.0

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.markClosed(err)
		return err
	}
	return nil
}

// Keepalive sends protocol-level pings until ctx is cancelled or the socket
// dies. A missing pong trips the read deadline, which surfaces as a read
// error in the session loop and marks the connection closed.
func (c *Conn) Keepalive(ctx context.Context, interval, timeout time.Duration) {
	if interval <= 0 {
		return
	}
	_ = c.ws.SetReadDeadline(c.clock().Add(interval + timeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(c.clock().Add(interval + timeout))
	})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !c.connected.Load() {
					return
				}
				c.writeMu.Lock()
				err := c.ws.WriteControl(websocket.PingMessage, nil, c.clock().Add(timeout))
				c.writeMu.Unlock()
				if err != nil {
					c.markClosed(err)
					return
				}
			}
		}
	}()
}

// Close performs a best-effort close handshake. Errors are swallowed; the
// client may already be gone.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	deadline := c.clock().Add(time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	c.writeMu.Unlock()
	c.connected.Store(false)
	return c.ws.Close()
}

func (c *Conn) markClosed(err error) {
	if c.connected.CompareAndSwap(true, false) {
		closure := ClassifyClosure(err)
		c.closure.Store(int32(closure))
		if closure == ClosureNormal {
			c.logger.Info("client disconnected", slog.String("closure", closure.String()))
		} else {
			c.logger.Warn("client connection lost",
				slog.String("closure", closure.String()),
				slog.String("error", err.Error()))
		}
	}
}
