// Package websocket connects the session driver to the feed over a
// gorilla/websocket client connection.
package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/couchcryptid/lightning-feed-client/internal/session"
	gorilla "github.com/gorilla/websocket"
)

// closeGracePeriod bounds how long Close waits to send the close frame.
const closeGracePeriod = time.Second

// Dialer opens feed connections with a bounded opening handshake.
type Dialer struct {
	dialer *gorilla.Dialer
}

// NewDialer creates a Dialer. A zero handshakeTimeout means no limit beyond
// the context passed to Dial.
func NewDialer(handshakeTimeout time.Duration) *Dialer {
	return &Dialer{dialer: &gorilla.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}}
}

// Dial performs the WebSocket opening handshake against uri.
func (d *Dialer) Dial(ctx context.Context, uri string) (session.Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, uri, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", uri, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", uri, err)
	}
	return &Conn{conn: conn}, nil
}

// Conn is one open feed connection. Send and Receive may run concurrently
// with each other but not with themselves.
type Conn struct {
	conn      *gorilla.Conn
	closeOnce sync.Once
	closeErr  error
}

// Send writes text as a single text message.
func (c *Conn) Send(ctx context.Context, text string) error {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
		defer c.conn.SetWriteDeadline(time.Time{}) //nolint:errcheck // reset only
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	if err := c.conn.WriteMessage(gorilla.TextMessage, []byte(text)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Receive blocks until the next message arrives. A normal or going-away
// close from the peer returns an error wrapping session.ErrConnectionClosed.
// Cancelling ctx unblocks a pending read and returns ctx.Err().
func (c *Conn) Receive(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway) {
			return "", fmt.Errorf("%w: %w", session.ErrConnectionClosed, err)
		}
		return "", fmt.Errorf("read message: %w", err)
	}
	return string(data), nil
}

// Close sends a normal close frame on a best-effort basis and releases the
// underlying connection. Calls after the first return the first result.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		msg := gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, "")
		_ = c.conn.WriteControl(gorilla.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
