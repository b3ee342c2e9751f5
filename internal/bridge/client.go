package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/Lauriethefish/ModsBeforeFriday-sub000/internal/devices"
)

// ErrClientUsed is returned when an operation is attempted on a client whose
// session has already carried a request. The bridge closes or rebinds the
// stream after each service, so a client is single-use: callers create a
// fresh one per discovery poll and per device connect.
var ErrClientUsed = errors.New("bridge: client already used")

// Client issues bridge RPCs over one session. The bridge proxies an ADB
// server, so the wire format is the ADB smart-socket protocol: a request is
// a 4-digit-hex-length-prefixed service string, a response is "OKAY" or
// "FAIL" optionally followed by a length-prefixed payload.
type Client struct {
	sess *Session
	used bool
}

// NewClient wraps a freshly connected session. The client takes ownership:
// Close closes the session.
func NewClient(sess *Session) *Client {
	return &Client{sess: sess}
}

// Session returns the underlying session, e.g. to hand the device-bound
// stream to the protocol layer after Transport.
func (c *Client) Session() *Session {
	return c.sess
}

func (c *Client) Close() error {
	return c.sess.Close()
}

// ListDevices queries the bridge's device directory. The client is spent
// afterwards: the bridge closes the stream once the list is sent.
func (c *Client) ListDevices(ctx context.Context) (devices.Snapshot, error) {
	if c.used {
		return nil, ErrClientUsed
	}
	c.used = true

	var snap devices.Snapshot
	err := c.await(ctx, func() error {
		if err := c.send("host:devices"); err != nil {
			return err
		}
		if err := c.readStatus(); err != nil {
			return err
		}
		payload, err := c.readPayload()
		if err != nil {
			return err
		}
		snap = devices.ParseList(payload)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	return snap, nil
}

// Transport binds the session's stream to the device with the given serial.
// On success the session carries raw device traffic and the client is spent;
// use Session to take the stream.
func (c *Client) Transport(ctx context.Context, serial string) error {
	if c.used {
		return ErrClientUsed
	}
	c.used = true

	err := c.await(ctx, func() error {
		if err := c.send("host:transport:" + serial); err != nil {
			return err
		}
		return c.readStatus()
	})
	if err != nil {
		return fmt.Errorf("binding transport to %s: %w", serial, err)
	}
	return nil
}

// RunShell binds the session to the device and runs one shell command,
// returning its full output. The stream ends when the command does, so this
// also spends the client.
func (c *Client) RunShell(ctx context.Context, serial, cmd string) (string, error) {
	if err := c.Transport(ctx, serial); err != nil {
		return "", err
	}

	var out []byte
	err := c.await(ctx, func() error {
		if err := c.send("shell:" + cmd); err != nil {
			return err
		}
		if err := c.readStatus(); err != nil {
			return err
		}
		out = c.readUntilClosed()
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("running shell on %s: %w", serial, err)
	}
	return string(out), nil
}

// WaitDisconnect blocks until the device with the given serial is gone. This
// is the disconnect watchdog's secondary confirmation: the request only
// completes (successfully or not) once the device has truly vanished.
func (c *Client) WaitDisconnect(ctx context.Context, serial string) error {
	if c.used {
		return ErrClientUsed
	}
	c.used = true

	err := c.await(ctx, func() error {
		if err := c.send("host-serial:" + serial + ":wait-for-disconnect"); err != nil {
			return err
		}
		return c.readStatus()
	})
	if err != nil {
		return fmt.Errorf("waiting for %s to disconnect: %w", serial, err)
	}
	return nil
}

// await runs fn, honouring ctx cancellation by closing the session, which
// unblocks any read fn is stuck in.
func (c *Client) await(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		c.sess.Close()
		<-done
		return ctx.Err()
	}
}

// send writes one length-prefixed service request.
func (c *Client) send(service string) error {
	return c.sess.Write([]byte(fmt.Sprintf("%04x%s", len(service), service)))
}

// readStatus consumes the 4-byte OKAY/FAIL marker, returning the bridge's
// failure message for FAIL.
func (c *Client) readStatus() error {
	status := make([]byte, 4)
	if _, err := io.ReadFull(c.sess, status); err != nil {
		return err
	}
	switch string(status) {
	case "OKAY":
		return nil
	case "FAIL":
		msg, err := c.readPayload()
		if err != nil {
			return fmt.Errorf("request failed (unreadable reason: %v)", err)
		}
		return fmt.Errorf("request failed: %s", msg)
	default:
		return fmt.Errorf("unexpected status %q", status)
	}
}

// readPayload consumes one hex4-length-prefixed payload.
func (c *Client) readPayload() (string, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(c.sess, lenBuf); err != nil {
		return "", err
	}
	n, err := strconv.ParseUint(string(lenBuf), 16, 32)
	if err != nil {
		return "", fmt.Errorf("bad payload length %q: %v", lenBuf, err)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(c.sess, payload); err != nil {
		return "", err
	}
	return string(payload), nil
}

// readUntilClosed drains the stream until it ends, returning what arrived.
// The terminal error is deliberately dropped: end-of-stream is the expected
// way a shell service finishes.
func (c *Client) readUntilClosed() []byte {
	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := c.sess.Read(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			return out
		}
	}
}
