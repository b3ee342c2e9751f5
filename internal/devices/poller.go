package devices

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// FetchFunc opens a fresh bridge client and returns the current device list.
// Implementations must not reuse a prior client: a spent session cannot
// carry a second request.
type FetchFunc func(ctx context.Context) (Snapshot, error)

// ProbeFunc reports whether the bridge is currently alive.
type ProbeFunc func(ctx context.Context) bool

// Poller repeatedly queries the bridge's device directory and emits a
// snapshot whenever the (filtered) list materially changes. On any fetch
// failure it forgets everything it knew — list and bridge-liveness alike —
// so the next cycle starts from a fresh probe.
type Poller struct {
	fetch    FetchFunc
	probe    ProbeFunc
	interval time.Duration
	clk      clock.Clock

	mu          sync.Mutex
	bridgeAlive bool
	last        Snapshot
	emitted     bool

	updates chan Snapshot
	errs    chan error
}

// NewPoller creates a poller that checks the directory at the given
// interval, plus once immediately when Run starts.
func NewPoller(fetch FetchFunc, probe ProbeFunc, interval time.Duration) *Poller {
	return &Poller{
		fetch:    fetch,
		probe:    probe,
		interval: interval,
		clk:      clock.New(),
		updates:  make(chan Snapshot, 1),
		errs:     make(chan error, 8),
	}
}

// Updates delivers changed snapshots. Only the most recent snapshot is
// retained if the consumer falls behind.
func (p *Poller) Updates() <-chan Snapshot {
	return p.updates
}

// Errors delivers fetch failures. Errors are dropped if the channel is full.
func (p *Poller) Errors() <-chan error {
	return p.errs
}

// Run polls until ctx is cancelled. It polls immediately, then on every
// interval tick.
func (p *Poller) Run(ctx context.Context) {
	ticker := p.clk.Ticker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	p.mu.Lock()
	alive := p.bridgeAlive
	p.mu.Unlock()

	if !alive {
		if !p.probe(ctx) {
			return
		}
		p.mu.Lock()
		p.bridgeAlive = true
		p.mu.Unlock()
	}

	snap, err := p.fetch(ctx)
	if err != nil {
		p.fail(err)
		return
	}
	snap = snap.WithoutAuthorizing()

	p.mu.Lock()
	changed := !p.emitted || !p.last.Equal(snap)
	if changed {
		p.last = snap
		p.emitted = true
	}
	p.mu.Unlock()

	if changed {
		p.emit(snap)
	}
}

// fail resets all poller state after a fetch error: the bridge may have
// died, so liveness is re-probed from scratch on the next cycle. The only
// snapshot emitted on the failure path is the implicit transition to an
// empty device list.
func (p *Poller) fail(err error) {
	p.mu.Lock()
	p.bridgeAlive = false
	hadDevices := len(p.last) > 0
	p.last = nil
	p.mu.Unlock()

	if hadDevices {
		p.emit(Snapshot{})
	}

	select {
	case p.errs <- err:
	default:
		log.Printf("devices: dropping poll error (consumer not keeping up): %v", err)
	}
}

// emit delivers snap, displacing an unconsumed older snapshot if needed.
func (p *Poller) emit(snap Snapshot) {
	for {
		select {
		case p.updates <- snap:
			return
		default:
			select {
			case <-p.updates:
			default:
			}
		}
	}
}
