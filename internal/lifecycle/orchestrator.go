package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/Lauriethefish/ModsBeforeFriday-sub000/internal/bridge"
	"github.com/Lauriethefish/ModsBeforeFriday-sub000/internal/config"
	"github.com/Lauriethefish/ModsBeforeFriday-sub000/internal/device"
	"github.com/Lauriethefish/ModsBeforeFriday-sub000/internal/devices"
)

var (
	// ErrNoDeviceSelected is the outcome of a direct connect where the user
	// declined to pick a device. A valid terminal outcome, not a failure:
	// the orchestrator returns to idle with no error state.
	ErrNoDeviceSelected = errors.New("lifecycle: no device selected")

	// ErrDeviceInUse means another process holds the device interface.
	// Distinguished from generic errors so the caller can show remediation
	// steps (close the other program) instead of a failure dialog.
	ErrDeviceInUse = errors.New("lifecycle: device in use by another process")

	// ErrBusy rejects a connect attempt while one is already in progress
	// or a session is live.
	ErrBusy = errors.New("lifecycle: connection already in progress")
)

// Bridge is the orchestrator's view of the relay: open a device-bound
// session, and block until a device has left. Satisfied by wrapping a
// bridge.Connector; faked in tests.
type Bridge interface {
	OpenDevice(ctx context.Context, serial string) (device.Session, error)
	ConfirmDisconnect(ctx context.Context, serial string) error
}

// WrapConnector adapts a bridge.Connector to the Bridge interface.
func WrapConnector(c *bridge.Connector) Bridge {
	return connectorBridge{c}
}

type connectorBridge struct {
	c *bridge.Connector
}

func (b connectorBridge) OpenDevice(ctx context.Context, serial string) (device.Session, error) {
	sess, err := b.c.OpenDevice(ctx, serial)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (b connectorBridge) ConfirmDisconnect(ctx context.Context, serial string) error {
	return b.c.ConfirmDisconnect(ctx, serial)
}

// Platform is the host environment's device-selection surface (the WebUSB
// chooser in the original client). Out of this subsystem's scope; consumed
// as an interface.
type Platform interface {
	// RequestDevice asks the user to pick a device. Returning nil, nil
	// means nothing was chosen — a valid outcome, not an error.
	RequestDevice(ctx context.Context) (USBDevice, error)
}

// USBDevice is one directly attached device offered by the platform.
type USBDevice interface {
	Serial() string

	// Open claims the device interface and authenticates using key
	// material from the store. Implementations return ErrDeviceInUse
	// (possibly wrapped) when another process already holds the interface.
	Open(ctx context.Context, creds CredentialStore) (device.Session, error)
}

// CredentialStore supplies and persists whatever key material the external
// authenticator needs. Opaque here: the orchestrator only passes the handle
// through to USBDevice.Open.
type CredentialStore interface {
	KeyMaterial(ctx context.Context) ([]byte, error)
}

// Orchestrator is the top-level connection state machine. It owns the
// single-active-session invariant: all lifecycle state (state, session,
// classification flags) is cleared together on every exit path, clean or
// not, so the machine can never be observed half-connected.
type Orchestrator struct {
	cfg      *config.Config
	platform Platform
	creds    CredentialStore
	bridge   Bridge
	watchdog *device.Watchdog

	mu           sync.Mutex
	state        State
	sess         device.Session
	lastErr      error
	devicePreV51 bool
	deviceInUse  bool
	usingBridge  bool
	connDone     chan struct{} // closed when the current session has fully reset
}

func New(cfg *config.Config, platform Platform, creds CredentialStore, b Bridge) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		platform: platform,
		creds:    creds,
		bridge:   b,
		state:    StateIdle,
	}
	o.watchdog = device.NewWatchdog(o.confirmGone)
	return o
}

// confirmGone is the watchdog's secondary probe, routed along the session's
// own path. A bridged session asks the bridge to block until the device has
// left it; the bridge's reachability says nothing about a directly attached
// device, so a direct session instead runs a blocking command on the device,
// which only returns once the stream dies with it.
func (o *Orchestrator) confirmGone(ctx context.Context, sess device.Session) error {
	o.mu.Lock()
	viaBridge := o.usingBridge
	o.mu.Unlock()

	if viaBridge {
		return o.bridge.ConfirmDisconnect(ctx, sess.Serial())
	}
	_, err := sess.RunCommand(ctx, "read")
	return err
}

// State returns the current connection state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Err returns the cause recorded for StateError, nil otherwise.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// LegacyDevice reports whether the connected device was classified as a
// legacy (pre-v51) headset. Only meaningful in StateConnected.
func (o *Orchestrator) LegacyDevice() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.devicePreV51
}

// UsingBridge reports whether the current session goes through the bridge.
func (o *Orchestrator) UsingBridge() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.usingBridge
}

// DeviceInUse reports whether the last direct connect found the interface
// claimed by another process.
func (o *Orchestrator) DeviceInUse() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.deviceInUse
}

// ConnectDirect runs the direct (point-to-point) connect path: device
// selection, interface claim, authentication. On success the returned
// session is live and supervised; it is torn down and the machine reset
// when the watchdog confirms disconnect.
func (o *Orchestrator) ConnectDirect(ctx context.Context) (device.Session, error) {
	if err := o.begin(false); err != nil {
		return nil, err
	}

	if o.cfg.Companion.Enabled {
		releaseCompanion(ctx, o.cfg.Companion.Port)
	}

	dev, err := o.platform.RequestDevice(ctx)
	if err != nil {
		return nil, o.failConnect(fmt.Errorf("requesting device: %w", err))
	}
	if dev == nil {
		o.reset()
		return nil, ErrNoDeviceSelected
	}

	sess, err := dev.Open(ctx, o.creds)
	if err != nil {
		if errors.Is(err, ErrDeviceInUse) {
			if name, ok := conflictingProcessName(); ok {
				log.Printf("device %s interface held by %s", dev.Serial(), name)
			}
			o.mu.Lock()
			o.resetLocked()
			o.deviceInUse = true
			o.mu.Unlock()
			return nil, err
		}
		return nil, o.failConnect(fmt.Errorf("opening device %s: %w", dev.Serial(), err))
	}

	return o.finishConnect(ctx, sess, false)
}

// ConnectBridge connects to a previously discovered device through the
// bridge. No device-selection or authentication step is involved: the
// bridge's ADB server already holds the authenticated transport.
func (o *Orchestrator) ConnectBridge(ctx context.Context, rec devices.Record) (device.Session, error) {
	if err := o.begin(true); err != nil {
		return nil, err
	}

	sess, err := o.bridge.OpenDevice(ctx, rec.Serial)
	if err != nil {
		return nil, o.failConnect(fmt.Errorf("connecting to %s via bridge: %w", rec.Serial, err))
	}

	return o.finishConnect(ctx, sess, true)
}

// AwaitDisconnect blocks until the current session has ended and the
// machine has reset, or ctx is cancelled. Returns immediately when no
// session is live.
func (o *Orchestrator) AwaitDisconnect(ctx context.Context) error {
	o.mu.Lock()
	done := o.connDone
	o.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Disconnect closes the active session, if any. The supervising goroutine
// observes the closure through the watchdog and resets the machine.
func (o *Orchestrator) Disconnect() {
	o.mu.Lock()
	sess := o.sess
	o.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
}

// begin transitions Idle/Error -> Authenticating, clearing every flag from
// any previous attempt in the same critical section. Partial resets are a
// correctness bug: either all prior state is gone or the attempt is
// rejected.
func (o *Orchestrator) begin(viaBridge bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateAuthenticating || o.state == StateConnected {
		return ErrBusy
	}

	o.resetLocked()
	o.state = StateAuthenticating
	o.usingBridge = viaBridge
	return nil
}

// finishConnect classifies the device, enters StateConnected, and starts
// the watchdog supervision goroutine.
func (o *Orchestrator) finishConnect(ctx context.Context, sess device.Session, viaBridge bool) (device.Session, error) {
	preV51, err := o.classify(ctx, sess)
	if err != nil {
		sess.Close()
		return nil, o.failConnect(err)
	}

	done := make(chan struct{})

	o.mu.Lock()
	o.state = StateConnected
	o.sess = sess
	o.devicePreV51 = preV51
	o.usingBridge = viaBridge
	o.connDone = done
	o.mu.Unlock()

	log.Printf("connected to %s (bridge=%v, legacy=%v)", sess.Serial(), viaBridge, preV51)

	go o.supervise(sess, done)

	return sess, nil
}

// classify queries the device's Android release and compares it against the
// legacy threshold. An unparseable version is treated as current, not
// legacy.
func (o *Orchestrator) classify(ctx context.Context, sess device.Session) (bool, error) {
	out, err := sess.RunCommand(ctx, "getprop ro.build.version.release")
	if err != nil {
		return false, fmt.Errorf("querying OS version: %w", err)
	}

	version, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		log.Printf("device %s: unparseable OS version %q", sess.Serial(), strings.TrimSpace(out))
		return false, nil
	}
	return version <= o.cfg.Device.LegacyAndroidVersion, nil
}

// supervise blocks on the watchdog, then tears everything down. Every
// session ends through here, which is what keeps the reset atomic and
// complete.
func (o *Orchestrator) supervise(sess device.Session, done chan struct{}) {
	if err := o.watchdog.AwaitDisconnect(context.Background(), sess); err != nil {
		log.Printf("device %s: watchdog ended: %v", sess.Serial(), err)
	}
	sess.Close()

	o.mu.Lock()
	o.resetLocked()
	o.mu.Unlock()

	log.Printf("device %s disconnected", sess.Serial())
	close(done)
}

// failConnect records err as the distinguished error outcome and performs
// the same full reset used on clean disconnect.
func (o *Orchestrator) failConnect(err error) error {
	o.mu.Lock()
	o.resetLocked()
	o.state = StateError
	o.lastErr = err
	o.mu.Unlock()
	return err
}

// resetLocked clears all lifecycle state back to idle. Callers hold o.mu.
func (o *Orchestrator) resetLocked() {
	o.state = StateIdle
	o.sess = nil
	o.lastErr = nil
	o.devicePreV51 = false
	o.deviceInUse = false
	o.usingBridge = false
	o.connDone = nil
}

// reset clears all lifecycle state back to idle.
func (o *Orchestrator) reset() {
	o.mu.Lock()
	o.resetLocked()
	o.mu.Unlock()
}
