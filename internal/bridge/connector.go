package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrTimeout indicates the bridge did not become ready within the
	// connect deadline.
	ErrTimeout = errors.New("bridge: connect timed out")

	// ErrNotImplemented marks bridge operations this client does not
	// support. Callers must not assume reverse tunnels work.
	ErrNotImplemented = errors.New("bridge: not implemented")
)

// Connector opens sessions against a bridge data endpoint. A single
// connector may be used for many Connect calls; each call produces an
// independent session over its own socket.
type Connector struct {
	endpoint Endpoint
	timeout  time.Duration
	clk      clock.Clock
}

// NewConnector creates a connector for the given endpoint. timeout bounds
// how long Connect waits for the socket to become ready.
func NewConnector(ep Endpoint, timeout time.Duration) *Connector {
	return &Connector{endpoint: ep, timeout: timeout, clk: clock.New()}
}

// Connect opens a new socket and races its ready signal against the connect
// deadline. Losing the race closes the socket immediately; a dial still in
// flight notices the closure when it settles and reclaims the connection, so
// a slow bridge cannot accumulate live sockets behind timed-out attempts.
func (c *Connector) Connect(ctx context.Context) (*Session, error) {
	sock := NewSocket(c.endpoint.DataURL)

	timer := c.clk.Timer(c.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		sock.Close(websocket.CloseGoingAway, "connect cancelled")
		return nil, ctx.Err()
	case <-timer.C:
		sock.Close(websocket.CloseGoingAway, "connect deadline exceeded")
		return nil, ErrTimeout
	case <-sock.Ready():
		neg, err := sock.ReadyInfo()
		if err != nil {
			return nil, err
		}
		return &Session{
			ID:   uuid.New(),
			sock: sock,
			neg:  neg,
		}, nil
	}
}

// Session is one live connection to the bridge: an ordered inbound byte
// stream, a serialized outbound sink, and a completion signal. A session is
// owned by exactly one consumer and must be closed on every exit path. It is
// never pooled: a session's underlying socket cannot host a second
// handshake, so every discovery poll and device connect uses a fresh one.
type Session struct {
	// ID correlates this session's log lines across components.
	ID uuid.UUID

	sock *Socket
	neg  Negotiated
}

// Negotiated returns the subprotocol and extension metadata from the
// handshake.
func (s *Session) Negotiated() Negotiated {
	return s.neg
}

// Read returns inbound bytes in arrival order.
func (s *Session) Read(p []byte) (int, error) {
	return s.sock.Read(p)
}

// Write sends p as a single frame. Concurrent writers are serialized and
// never interleave.
func (s *Session) Write(p []byte) error {
	return s.sock.Write(p)
}

// Close ends the session with a normal close code.
func (s *Session) Close() error {
	return s.sock.Close(websocket.CloseNormalClosure, "")
}

// CloseWithReason ends the session with an explicit close code and reason.
func (s *Session) CloseWithReason(code int, reason string) error {
	return s.sock.Close(code, reason)
}

// Done is closed once the session has ended, for any reason. Higher layers
// only need to know that it ended; the close code and reason are dropped
// here.
func (s *Session) Done() <-chan struct{} {
	return s.sock.Closed()
}

// ReverseForward would register a reverse tunnel on the bridge. Not
// supported by this client; it fails loudly rather than silently no-op.
func (s *Session) ReverseForward(remote, local string) error {
	return ErrNotImplemented
}

// RemoveReverseForward would remove a reverse tunnel registration. Not
// supported by this client.
func (s *Session) RemoveReverseForward(remote string) error {
	return ErrNotImplemented
}
