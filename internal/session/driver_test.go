package session_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/lightning-feed-client/internal/domain"
	"github.com/couchcryptid/lightning-feed-client/internal/observability"
	"github.com/couchcryptid/lightning-feed-client/internal/session"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testURI = "wss://feed.test/"

// --- mocks ---

type mockConn struct {
	frames  chan string // closed means orderly close, or recvErr when set
	recvErr error
	sendErr error

	mu     sync.Mutex
	sent   []string
	closed atomic.Int32
}

func newMockConn(frames ...string) *mockConn {
	ch := make(chan string, len(frames))
	for _, f := range frames {
		ch <- f
	}
	close(ch)
	return &mockConn{frames: ch}
}

func (c *mockConn) Send(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return c.sendErr
}

func (c *mockConn) Receive(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case f, ok := <-c.frames:
		if !ok {
			if c.recvErr != nil {
				return "", c.recvErr
			}
			return "", session.ErrConnectionClosed
		}
		return f, nil
	}
}

func (c *mockConn) Close() error {
	c.closed.Add(1)
	return nil
}

func (c *mockConn) sentMessages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type mockDialer struct {
	conn *mockConn
	err  error
	uri  string
}

func (d *mockDialer) Dial(_ context.Context, uri string) (session.Conn, error) {
	d.uri = uri
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

type mockForwarder struct {
	err     error
	strikes []domain.StrikeEvent
}

func (f *mockForwarder) Forward(_ context.Context, ev domain.StrikeEvent, _ time.Time) error {
	f.strikes = append(f.strikes, ev)
	return f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freezeClock(t *testing.T) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.April, 26, 15, 10, 5, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })
}

func newDriver(dialer session.Dialer, out io.Writer, fwd session.Forwarder) *session.Driver {
	cfg := session.Config{URI: testURI, BadFrameLogRate: 1}
	if fwd != nil {
		cfg.Forwarder = fwd
	}
	return session.New(dialer, cfg, out, discardLogger(), observability.NewMetricsForTesting())
}

func lines(buf *bytes.Buffer) []string {
	return strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
}

// --- tests ---

func TestDriver_Run_HappyPath(t *testing.T) {
	freezeClock(t)

	conn := newMockConn(
		`{"lat":47.1234,"lon":8.5678,"time":1700000000,"pol":1,"region":3,"sig":[1,2,3,4,5,6,7],"delay":2.34}`,
		"{\"sig\":[{},ĈĊ}]}",
	)
	dialer := &mockDialer{conn: conn}
	var out bytes.Buffer

	d := newDriver(dialer, &out, nil)
	err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, testURI, dialer.uri)
	assert.Equal(t, []string{`{"a":111}`}, conn.sentMessages())
	assert.Equal(t, []string{
		"[15:10:05] ⚡  47.1234,    8.5678 | 22:13:20 | + | R3 |  7 stations | 2.3s delay",
		"[15:10:05] ⚡   0.0000,    0.0000 | ??:??:?? | - | R0 |  3 stations | 0.0s delay",
	}, lines(&out))
	assert.Equal(t, session.StateClosed, d.State())
	assert.Equal(t, int32(1), conn.closed.Load())
}

func TestDriver_Run_MalformedFrameDoesNotEndSession(t *testing.T) {
	freezeClock(t)

	long := strings.Repeat("z", 120)
	conn := newMockConn(
		`{"lat":1,"lon":2}`,
		long,
		`{"lat":"bad"}`,
		`[1,2]`,
		`{"lat":3,"lon":4}`,
	)
	var out bytes.Buffer

	d := newDriver(&mockDialer{conn: conn}, &out, nil)
	require.NoError(t, d.Run(context.Background()))

	got := lines(&out)
	require.Len(t, got, 5)
	assert.Contains(t, got[0], "   1.0000,    2.0000")
	assert.Equal(t, "[15:10:05] Raw: "+strings.Repeat("z", 100)+"...", got[1])
	assert.True(t, strings.HasPrefix(got[2], "[15:10:05] Error: parse strike"), got[2])
	assert.Equal(t, "[15:10:05] Non-dict data: [1,2]", got[3])
	assert.Contains(t, got[4], "   3.0000,    4.0000")
	assert.Equal(t, uint64(5), d.Status().Frames)
}

func TestDriver_Run_CustomSubscribeCode(t *testing.T) {
	conn := newMockConn()
	d := session.New(&mockDialer{conn: conn}, session.Config{URI: testURI, SubscribeCode: 42},
		io.Discard, discardLogger(), observability.NewMetricsForTesting())

	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, []string{`{"a":42}`}, conn.sentMessages())
}

func TestDriver_Run_ConnectError(t *testing.T) {
	d := newDriver(&mockDialer{err: errors.New("connection refused")}, io.Discard, nil)

	err := d.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrConnect)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, session.StateFailed, d.State())
}

func TestDriver_Run_SendError(t *testing.T) {
	conn := newMockConn()
	conn.sendErr = errors.New("broken pipe")
	d := newDriver(&mockDialer{conn: conn}, io.Discard, nil)

	err := d.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrSend)
	assert.Equal(t, session.StateFailed, d.State())
	assert.Equal(t, int32(1), conn.closed.Load())
}

func TestDriver_Run_ReceiveError(t *testing.T) {
	conn := newMockConn(`{"lat":1}`)
	conn.recvErr = errors.New("unexpected EOF")
	var out bytes.Buffer
	d := newDriver(&mockDialer{conn: conn}, &out, nil)

	err := d.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrReceive)
	assert.Len(t, lines(&out), 1)
	assert.Equal(t, session.StateFailed, d.State())
	assert.Equal(t, int32(1), conn.closed.Load())
}

func TestDriver_Run_ContextCancellation(t *testing.T) {
	conn := &mockConn{frames: make(chan string)} // never delivers
	d := newDriver(&mockDialer{conn: conn}, io.Discard, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return d.State() == session.StateListening }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, session.StateClosed, d.State())
	assert.Equal(t, int32(1), conn.closed.Load())
}

func TestDriver_Run_CancelledBeforeConnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := newDriver(&mockDialer{err: context.Canceled}, io.Discard, nil)
	require.NoError(t, d.Run(ctx))
	assert.Equal(t, session.StateClosed, d.State())
}

func TestDriver_Run_ForwardsStrikesOnly(t *testing.T) {
	conn := newMockConn(`{"lat":1,"region":2}`, `"hello"`, `###`, `{"lat":5}`)
	fwd := &mockForwarder{}
	d := newDriver(&mockDialer{conn: conn}, io.Discard, fwd)

	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, []domain.StrikeEvent{{Lat: 1, Region: 2}, {Lat: 5}}, fwd.strikes)
}

func TestDriver_Run_ForwardErrorIsNotFatal(t *testing.T) {
	conn := newMockConn(`{"lat":1}`, `{"lat":2}`)
	fwd := &mockForwarder{err: errors.New("queue full")}
	var out bytes.Buffer
	d := newDriver(&mockDialer{conn: conn}, &out, fwd)

	require.NoError(t, d.Run(context.Background()))
	assert.Len(t, fwd.strikes, 2)
	assert.Len(t, lines(&out), 2)
}

func TestDriver_CheckReadiness(t *testing.T) {
	conn := &mockConn{frames: make(chan string)}
	d := newDriver(&mockDialer{conn: conn}, io.Discard, nil)
	assert.Error(t, d.CheckReadiness(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return d.State() == session.StateListening }, time.Second, 5*time.Millisecond)
	assert.ErrorContains(t, d.CheckReadiness(ctx), "no frames")

	conn.frames <- `{"lat":1}`
	require.Eventually(t, func() bool { return d.CheckReadiness(ctx) == nil }, time.Second, 5*time.Millisecond)

	status := d.Status()
	assert.Equal(t, "listening", status.State)
	assert.NotEmpty(t, status.SessionID)
	assert.False(t, status.ConnectedAt.IsZero())
	assert.Equal(t, uint64(1), status.Frames)

	cancel()
	require.NoError(t, <-done)
	assert.Error(t, d.CheckReadiness(context.Background()))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", session.StateDisconnected.String())
	assert.Equal(t, "connecting", session.StateConnecting.String())
	assert.Equal(t, "subscribed", session.StateSubscribed.String())
	assert.Equal(t, "listening", session.StateListening.String())
	assert.Equal(t, "closed", session.StateClosed.String())
	assert.Equal(t, "failed", session.StateFailed.String())
}
