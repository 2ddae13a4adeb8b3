// Package transport maintains the single full-duplex websocket connection a
// voice session owns. Control and data messages are JSON text frames; the
// providers never send binary frames.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// CloseError reports the transport dropping with a websocket close code.
type CloseError struct {
	Code int
	Err  error
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("websocket closed (code %d): %v", e.Code, e.Err)
}

func (e *CloseError) Unwrap() error { return e.Err }

// ErrNotConnected is returned for sends attempted without a live connection.
var ErrNotConnected = errors.New("transport not connected")

// Callbacks are invoked from the receive loop goroutine, strictly in frame
// arrival order. They must not block for long; slow handlers delay every
// later inbound event.
type Callbacks struct {
	// OnMessage receives each inbound text frame.
	OnMessage func(data []byte)
	// OnClose fires once when the receive loop exits. err is nil after a
	// locally requested normal closure.
	OnClose func(err error)
}

// Connection is a persistent bidirectional message connection. Writes are
// serialized with a mutex; reads happen on a dedicated loop goroutine.
type Connection struct {
	conn *websocket.Conn

	connMu    sync.Mutex
	closed    bool
	closeOnce sync.Once
	done      chan struct{}

	callbacks Callbacks
}

const defaultDialTimeout = 15 * time.Second

// Connect opens the websocket and starts the receive loop. header carries
// provider authentication (ephemeral token bearer).
func Connect(ctx context.Context, url string, header http.Header, callbacks Callbacks) (*Connection, error) {
	dialCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to provider: %w", err)
	}

	if callbacks.OnMessage == nil {
		callbacks.OnMessage = func([]byte) {}
	}
	if callbacks.OnClose == nil {
		callbacks.OnClose = func(error) {}
	}

	c := &Connection{
		conn:      conn,
		done:      make(chan struct{}),
		callbacks: callbacks,
	}
	go c.readLoop()

	return c, nil
}

// Send writes one JSON text frame. Safe for concurrent use.
func (c *Connection) Send(message []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.closed {
		return ErrNotConnected
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		return fmt.Errorf("failed to write to provider socket: %w", err)
	}
	return nil
}

// Close sends a normal-closure frame and tears the connection down. The
// receive loop's OnClose fires with a nil error for this path.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.connMu.Lock()
		c.closed = true
		writeErr := c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
			time.Now().Add(time.Second),
		)
		c.connMu.Unlock()

		select {
		case <-c.done:
		case <-time.After(2 * time.Second):
		}

		closeErr := c.conn.Close()
		if writeErr != nil {
			err = writeErr
		} else {
			err = closeErr
		}
	})
	return err
}

// Done is closed when the receive loop has exited.
func (c *Connection) Done() <-chan struct{} { return c.done }

func (c *Connection) readLoop() {
	defer close(c.done)

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.connMu.Lock()
			requested := c.closed
			c.closed = true
			c.connMu.Unlock()

			if requested || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.callbacks.OnClose(nil)
				return
			}

			code := websocket.CloseAbnormalClosure
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				code = closeErr.Code
			}
			c.callbacks.OnClose(&CloseError{Code: code, Err: err})
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}
		c.callbacks.OnMessage(data)
	}
}
