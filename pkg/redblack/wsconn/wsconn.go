// Package wsconn carries redblack session frames over WebSocket text messages.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/secmsg/redblack-go/pkg/redblack/session"
)

// DefaultReadLimit bounds the size of a single inbound frame.
const DefaultReadLimit = 1 << 20

const closeTimeout = time.Second

var _ session.Conn = (*Conn)(nil)

// Conn adapts a *websocket.Conn to session.Conn. One goroutine may read while
// others write; writes are serialized.
type Conn struct {
	ws *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// New wraps an established WebSocket connection.
func New(ws *websocket.Conn) *Conn {
	ws.SetReadLimit(DefaultReadLimit)
	return &Conn{ws: ws}
}

// Dial opens a client connection to url.
func Dial(ctx context.Context, url string, header http.Header) (*Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("wsconn: dial: %w", err)
	}
	return New(ws), nil
}

// Upgrade upgrades an HTTP request to a WebSocket connection. A nil upgrader
// uses the zero value, which enforces same-origin requests.
func Upgrade(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader) (*Conn, error) {
	if upgrader == nil {
		upgrader = &websocket.Upgrader{}
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("wsconn: upgrade: %w", err)
	}
	return New(ws), nil
}

// ReadFrame returns the payload of the next data message. Cancelling ctx
// interrupts a blocked read; the connection is unusable afterwards.
func (c *Conn) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// The socket deadline is only moved once ctx is done, so a timed out
	// read always reports ctx.Err() rather than a net timeout.
	if err := c.ws.SetReadDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("wsconn: set read deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("wsconn: read: %w", err)
	}
	return data, nil
}

// WriteFrame sends frame as a single text message. Cancelling ctx
// interrupts a blocked write.
func (c *Conn) WriteFrame(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Time{}); err != nil {
		return fmt.Errorf("wsconn: set write deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetWriteDeadline(time.Now())
	})
	defer stop()

	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("wsconn: write: %w", err)
	}
	return nil
}

// Close sends a normal closure and closes the connection. It is safe to call
// more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		// The peer may already be gone; the close frame is best effort.
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout))
		c.writeMu.Unlock()

		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// IsClosed reports whether err signals the peer closed the connection
// normally.
func IsClosed(err error) bool {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
}
