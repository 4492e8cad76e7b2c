package session

import (
	"context"
	"errors"
	"time"

	"github.com/couchcryptid/lightning-feed-client/internal/domain"
)

var (
	// ErrConnectionClosed is returned by Conn.Receive when the peer closed
	// the connection in an orderly way.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrConnect, ErrSend and ErrReceive classify the errors Run returns.
	ErrConnect = errors.New("connect")
	ErrSend    = errors.New("send")
	ErrReceive = errors.New("receive")
)

// Dialer opens a connection to the feed.
type Dialer interface {
	Dial(ctx context.Context, uri string) (Conn, error)
}

// Conn is one open feed connection. Receive blocks until a frame arrives,
// the peer closes (ErrConnectionClosed), or ctx is done.
type Conn interface {
	Send(ctx context.Context, text string) error
	Receive(ctx context.Context) (string, error)
	Close() error
}

// Forwarder passes decoded strikes on to another system. Forward must not
// block the receive loop.
type Forwarder interface {
	Forward(ctx context.Context, ev domain.StrikeEvent, receivedAt time.Time) error
}
