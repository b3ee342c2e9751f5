package device

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// defaultSuspicionWindow is how long after AwaitDisconnect starts that a
// transport disconnect signal is treated as suspicious rather than real.
const defaultSuspicionWindow = time.Second

// ConfirmFunc is the watchdog's secondary confirmation: a blocking request
// that only completes once the session's device has truly vanished. It
// receives the session so the probe can follow the session's own path — a
// relayed session confirms through the relay, a direct one on the device
// itself. Its error is irrelevant — returning at all is the confirmation.
type ConfirmFunc func(ctx context.Context, sess Session) error

// Watchdog reliably detects device disconnection. The transport's own
// disconnect signal is the primary source, but bridges older than the fix
// for the phantom-disconnect bug fire it immediately and spuriously on a
// healthy session. So: if the signal arrives within the first second, it is
// not trusted and a blocking secondary probe confirms the disconnect; if the
// first second passes quietly, the bridge is assumed well-behaved and the
// primary signal alone is awaited.
type Watchdog struct {
	confirm ConfirmFunc
	window  time.Duration
	clk     clock.Clock

	mu    sync.Mutex
	waits map[string]*wait // in-flight waits keyed by serial
}

// wait is one shared in-flight disconnect wait. Concurrent callers for the
// same serial attach to it rather than starting a redundant probe.
type wait struct {
	done chan struct{}
	err  error
}

func NewWatchdog(confirm ConfirmFunc) *Watchdog {
	return &Watchdog{
		confirm: confirm,
		window:  defaultSuspicionWindow,
		clk:     clock.New(),
		waits:   make(map[string]*wait),
	}
}

// AwaitDisconnect blocks until the session's device is confirmed gone, or
// ctx is cancelled. Cancellation detaches this caller only; the shared wait
// keeps running for any others.
func (w *Watchdog) AwaitDisconnect(ctx context.Context, sess Session) error {
	serial := sess.Serial()

	w.mu.Lock()
	wt, inFlight := w.waits[serial]
	if !inFlight {
		wt = &wait{done: make(chan struct{})}
		w.waits[serial] = wt
	}
	w.mu.Unlock()

	if !inFlight {
		go w.watch(sess, wt)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-wt.done:
		return wt.err
	}
}

func (w *Watchdog) watch(sess Session, wt *wait) {
	serial := sess.Serial()
	// Resolution and removal happen in one critical section so a caller
	// either attaches to the in-flight wait or starts a genuinely new one,
	// never a stale in-between.
	defer func() {
		w.mu.Lock()
		close(wt.done)
		delete(w.waits, serial)
		w.mu.Unlock()
	}()

	timer := w.clk.Timer(w.window)
	defer timer.Stop()

	select {
	case <-sess.Done():
		// Fired within the suspicion window. Old bridges report a
		// phantom disconnect here; only the blocking probe knows.
		log.Printf("device %s: early disconnect signal, confirming", serial)
		if err := w.confirm(context.Background(), sess); err != nil {
			// The probe failing still means the device is unreachable.
			log.Printf("device %s: disconnect confirmed by probe failure: %v", serial, err)
		}
	case <-timer.C:
		// A quiet first second means the bridge delivers real
		// disconnect signals; trust the primary one.
		<-sess.Done()
	}
}
