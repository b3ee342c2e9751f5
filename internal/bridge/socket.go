package bridge

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrConnection indicates a transport-level failure before or after the
	// socket became ready.
	ErrConnection = errors.New("bridge: connection failed")

	// ErrSocketClosed is returned by reads and writes after Close.
	ErrSocketClosed = errors.New("bridge: socket closed")
)

// Negotiated carries the handshake metadata surfaced when a socket becomes
// ready.
type Negotiated struct {
	Subprotocol string
	Extensions  string
}

// CloseStatus describes how a socket ended.
type CloseStatus struct {
	Code   int
	Reason string
}

// Socket adapts one websocket connection to the bridge into an ordered
// inbound byte stream, a serialized outbound sink, and two one-shot signals:
// Ready (the handshake completed, negotiation metadata available) and Closed
// (the connection ended, close code and reason available). Closed always
// fires exactly once, whether the connection closed gracefully, abnormally,
// or failed outright. If the connection fails before becoming ready, Ready
// is rejected instead of firing; errors after ready surface through Read.
//
// Both signals fan out: any number of callers may wait on them and all
// observe the same single resolution.
type Socket struct {
	url string

	ready  *oneshot[Negotiated]
	closed *oneshot[CloseStatus]

	connMu sync.Mutex
	conn   *websocket.Conn

	writeMu sync.Mutex

	readMu   sync.Mutex
	readCond *sync.Cond
	queue    [][]byte // frames received but not yet consumed
	cur      []byte   // partially consumed frame
	readErr  error    // terminal; delivered once the queue drains
}

// NewSocket starts connecting to the given ws(s) URL in the background and
// returns immediately. Progress is observed through Ready and Closed.
func NewSocket(url string) *Socket {
	s := &Socket{
		url:    url,
		ready:  newOneshot[Negotiated](),
		closed: newOneshot[CloseStatus](),
	}
	s.readCond = sync.NewCond(&s.readMu)

	go s.dial()

	return s
}

func (s *Socket) dial() {
	dialer := websocket.Dialer{HandshakeTimeout: 20 * time.Second}

	conn, resp, err := dialer.Dial(s.url, nil)
	if err != nil {
		// Never became ready: the failure belongs to the ready signal.
		s.ready.reject(fmt.Errorf("%w: %v", ErrConnection, err))
		s.closed.resolve(CloseStatus{Code: websocket.CloseAbnormalClosure, Reason: err.Error()})
		s.failReads(ErrSocketClosed)
		return
	}

	// Close may have been called while the dial was still in flight (an
	// abandoned connect attempt settling late). The check and the conn
	// assignment share one critical section: Close reads s.conn under the
	// same lock after resolving the closed signal, so either it sees the
	// conn and closes it, or we see the resolved signal here and clean up.
	s.connMu.Lock()
	select {
	case <-s.closed.Done():
		s.connMu.Unlock()
		conn.Close()
		s.ready.reject(ErrSocketClosed)
		s.failReads(ErrSocketClosed)
		return
	default:
		s.conn = conn
	}
	s.connMu.Unlock()

	neg := Negotiated{Subprotocol: conn.Subprotocol()}
	if resp != nil {
		neg.Extensions = resp.Header.Get("Sec-WebSocket-Extensions")
	}
	s.ready.resolve(neg)

	s.readLoop(conn)
}

// readLoop pumps frames into the inbound queue until the connection ends.
// Text frames carry UTF-8 bytes and pass through unchanged alongside binary
// frames.
func (s *Socket) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			st := CloseStatus{Code: websocket.CloseAbnormalClosure, Reason: err.Error()}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				st = CloseStatus{Code: ce.Code, Reason: ce.Text}
			}
			s.closed.resolve(st)
			s.failReads(fmt.Errorf("%w: %v", ErrConnection, err))
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		s.readMu.Lock()
		s.queue = append(s.queue, data)
		s.readCond.Broadcast()
		s.readMu.Unlock()
	}
}

// failReads records the terminal read error and wakes blocked readers.
// Queued frames are still delivered before the error.
func (s *Socket) failReads(err error) {
	s.readMu.Lock()
	if s.readErr == nil {
		s.readErr = err
	}
	s.readCond.Broadcast()
	s.readMu.Unlock()
}

// Ready is closed once the handshake completes or fails. Check ReadyInfo for
// the outcome.
func (s *Socket) Ready() <-chan struct{} {
	return s.ready.Done()
}

// ReadyInfo returns the negotiated metadata, or the connection error if the
// socket failed before becoming ready. Only valid after Ready is closed.
func (s *Socket) ReadyInfo() (Negotiated, error) {
	return s.ready.Result()
}

// Closed is closed once the connection has ended for any reason.
func (s *Socket) Closed() <-chan struct{} {
	return s.closed.Done()
}

// CloseInfo returns the close code and reason. Only valid after Closed.
func (s *Socket) CloseInfo() CloseStatus {
	st, _ := s.closed.Result()
	return st
}

// Read returns inbound bytes in frame arrival order, blocking until data is
// available. Once the connection ends, buffered frames are drained and then
// the terminal error is returned.
func (s *Socket) Read(p []byte) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	for len(s.cur) == 0 && len(s.queue) == 0 && s.readErr == nil {
		s.readCond.Wait()
	}

	if len(s.cur) == 0 && len(s.queue) > 0 {
		s.cur = s.queue[0]
		s.queue = s.queue[1:]
	}
	if len(s.cur) == 0 {
		return 0, s.readErr
	}

	n := copy(p, s.cur)
	s.cur = s.cur[n:]
	return n, nil
}

// Write sends one binary frame. Writes are serialized: concurrent writers
// never interleave within or across frames.
func (s *Socket) Write(p []byte) error {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return ErrSocketClosed
	}

	select {
	case <-s.closed.Done():
		return ErrSocketClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return nil
}

// Close ends the connection with the given close code and reason. The Closed
// signal resolves with these details. Safe to call at any time, including
// before the socket is ready and more than once.
func (s *Socket) Close(code int, reason string) error {
	s.closed.resolve(CloseStatus{Code: code, Reason: reason})

	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		// Still dialing; the dial goroutine notices Closed and cleans up.
		return nil
	}

	msg := websocket.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(time.Second)
	// Best effort: the peer may already be gone.
	conn.WriteControl(websocket.CloseMessage, msg, deadline)
	return conn.Close()
}
