package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/lightning-feed-client/internal/domain"
	"github.com/couchcryptid/lightning-feed-client/internal/observability"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// DefaultSubscribeCode asks the feed for all strike events.
const DefaultSubscribeCode = 111

// State is a step of the session lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateListening
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateListening:
		return "listening"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

// Config holds the per-session settings of a Driver.
type Config struct {
	URI string

	// SubscribeCode is sent in the handshake; zero means DefaultSubscribeCode.
	SubscribeCode int

	// BadFrameLogRate caps warnings about undecodable frames per second.
	BadFrameLogRate float64

	// Forwarder is optional.
	Forwarder Forwarder
}

// Status is a point-in-time view of the session.
type Status struct {
	State       string    `json:"state"`
	SessionID   string    `json:"session_id,omitempty"`
	ConnectedAt time.Time `json:"connected_at,omitzero"`
	LastFrameAt time.Time `json:"last_frame_at,omitzero"`
	Frames      uint64    `json:"frames"`
}

type subscription struct {
	Action int `json:"a"`
}

// Driver owns one feed connection: it connects, subscribes, and prints a
// line for every frame until the connection ends or ctx is cancelled.
type Driver struct {
	dialer    Dialer
	cfg       Config
	out       io.Writer
	logger    *slog.Logger
	metrics   *observability.Metrics
	badFrames *rate.Limiter

	state       atomic.Int32
	ready       atomic.Bool
	sessionID   atomic.Pointer[string]
	connectedAt atomic.Int64
	lastFrameAt atomic.Int64
	frames      atomic.Uint64
}

// New creates a Driver writing one line per frame to out.
func New(dialer Dialer, cfg Config, out io.Writer, logger *slog.Logger, metrics *observability.Metrics) *Driver {
	if cfg.SubscribeCode == 0 {
		cfg.SubscribeCode = DefaultSubscribeCode
	}
	return &Driver{
		dialer:    dialer,
		cfg:       cfg,
		out:       out,
		logger:    logger,
		metrics:   metrics,
		badFrames: rate.NewLimiter(rate.Limit(cfg.BadFrameLogRate), 1),
	}
}

// State returns the current lifecycle state.
func (d *Driver) State() State {
	return State(d.state.Load())
}

// CheckReadiness returns nil once the session is subscribed and has handled
// at least one frame.
func (d *Driver) CheckReadiness(_ context.Context) error {
	if d.State() != StateListening {
		return fmt.Errorf("session is %s", d.State())
	}
	if !d.ready.Load() {
		return errors.New("no frames received yet")
	}
	return nil
}

// Status reports the session state for the status endpoint.
func (d *Driver) Status() Status {
	s := Status{
		State:       d.State().String(),
		ConnectedAt: unixNanoTime(d.connectedAt.Load()),
		LastFrameAt: unixNanoTime(d.lastFrameAt.Load()),
		Frames:      d.frames.Load(),
	}
	if id := d.sessionID.Load(); id != nil {
		s.SessionID = *id
	}
	return s
}

// Run connects, subscribes, and handles frames until the feed closes the
// connection or ctx is cancelled, both of which return nil. Connect, send
// and receive failures return errors wrapping ErrConnect, ErrSend and
// ErrReceive. The connection is closed on every path.
func (d *Driver) Run(ctx context.Context) error {
	id := uuid.NewString()
	d.sessionID.Store(&id)
	logger := d.logger.With("session_id", id)

	d.transition(logger, StateConnecting)
	conn, err := d.dialer.Dial(ctx, d.cfg.URI)
	if err != nil {
		if ctx.Err() != nil {
			d.transition(logger, StateClosed)
			return nil
		}
		d.transition(logger, StateFailed)
		return fmt.Errorf("%w %s: %w", ErrConnect, d.cfg.URI, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Warn("close connection failed", "error", err)
		}
	}()

	d.connectedAt.Store(domain.Now().UnixNano())
	d.metrics.SessionConnected.Set(1)
	defer d.metrics.SessionConnected.Set(0)

	handshake, err := json.Marshal(subscription{Action: d.cfg.SubscribeCode})
	if err != nil {
		d.transition(logger, StateFailed)
		return fmt.Errorf("%w: encode subscription: %w", ErrSend, err)
	}
	if err := conn.Send(ctx, string(handshake)); err != nil {
		if ctx.Err() != nil {
			d.transition(logger, StateClosed)
			return nil
		}
		d.transition(logger, StateFailed)
		return fmt.Errorf("%w subscription: %w", ErrSend, err)
	}
	d.transition(logger, StateSubscribed)
	logger.Info("subscription sent", "uri", d.cfg.URI, "code", d.cfg.SubscribeCode)

	d.transition(logger, StateListening)
	for {
		text, err := conn.Receive(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				d.transition(logger, StateClosed)
				logger.Info("session cancelled", "frames", d.frames.Load())
				return nil
			case errors.Is(err, ErrConnectionClosed):
				d.transition(logger, StateClosed)
				logger.Info("connection closed by server", "frames", d.frames.Load())
				return nil
			default:
				d.transition(logger, StateFailed)
				return fmt.Errorf("%w: %w", ErrReceive, err)
			}
		}
		d.handleFrame(ctx, logger, domain.Frame(text))
	}
}

// handleFrame parses, renders and forwards one frame. Failures are logged
// and never end the session.
func (d *Driver) handleFrame(ctx context.Context, logger *slog.Logger, frame domain.Frame) {
	receivedAt := domain.Now()
	d.frames.Add(1)
	d.lastFrameAt.Store(receivedAt.UnixNano())
	d.metrics.FramesReceived.Inc()
	defer d.ready.Store(true)

	p, err := domain.ParseFrame(frame)
	if err != nil {
		d.metrics.FrameErrors.Inc()
		logger.Warn("frame parse failed, skipping", "error", err, "length", len(frame))
		d.emit(logger, domain.RenderError(err, receivedAt))
		return
	}

	if p.Compressed {
		d.metrics.FramesCompressed.Inc()
	}
	d.metrics.PayloadsByKind.WithLabelValues(p.Kind.String()).Inc()
	if p.Kind == domain.PayloadRaw && d.badFrames.Allow() {
		logger.Warn("undecodable frame", "length", len(frame), "compressed", p.Compressed)
	}

	d.emit(logger, domain.RenderPayload(p, receivedAt))

	if p.Kind != domain.PayloadStrike {
		return
	}
	d.metrics.StrikeTimeUnits.WithLabelValues(domain.InferTimeUnit(p.Strike.TimeRaw).String()).Inc()
	d.metrics.StrikeDelay.Observe(p.Strike.DelaySeconds)

	if d.cfg.Forwarder != nil {
		if err := d.cfg.Forwarder.Forward(ctx, p.Strike, receivedAt); err != nil {
			d.metrics.ForwardErrors.Inc()
			logger.Warn("forward strike failed", "error", err)
		}
	}
}

func (d *Driver) emit(logger *slog.Logger, line string) {
	if _, err := fmt.Fprintln(d.out, line); err != nil {
		logger.Error("write line failed", "error", err)
	}
}

func (d *Driver) transition(logger *slog.Logger, to State) {
	from := State(d.state.Swap(int32(to)))
	logger.Debug("session state", "from", from.String(), "to", to.String())
}

func unixNanoTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
