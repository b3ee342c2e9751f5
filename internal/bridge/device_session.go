package bridge

import (
	"context"
	"fmt"
)

// DeviceSession is a session bound to one device through the bridge. The
// main stream carries the device protocol; commands run over their own
// short-lived sessions because a bound stream cannot carry a second service.
//
// DeviceSession implements the device.Session interface consumed by the
// watchdog and the lifecycle orchestrator.
type DeviceSession struct {
	serial    string
	main      *Session
	connector *Connector
}

// OpenDevice connects a fresh session and binds it to the device with the
// given serial.
func (c *Connector) OpenDevice(ctx context.Context, serial string) (*DeviceSession, error) {
	sess, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}

	client := NewClient(sess)
	if err := client.Transport(ctx, serial); err != nil {
		client.Close()
		return nil, err
	}

	return &DeviceSession{serial: serial, main: sess, connector: c}, nil
}

func (d *DeviceSession) Serial() string {
	return d.serial
}

// Stream returns the device-bound data stream for the protocol layer.
func (d *DeviceSession) Stream() *Session {
	return d.main
}

// Done is closed when the main stream ends.
func (d *DeviceSession) Done() <-chan struct{} {
	return d.main.Done()
}

// RunCommand runs one shell command on the device over a fresh session.
func (d *DeviceSession) RunCommand(ctx context.Context, cmd string) (string, error) {
	sess, err := d.connector.Connect(ctx)
	if err != nil {
		return "", fmt.Errorf("opening command stream: %w", err)
	}
	client := NewClient(sess)
	defer client.Close()

	return client.RunShell(ctx, d.serial, cmd)
}

func (d *DeviceSession) Close() error {
	return d.main.Close()
}

// ConfirmDisconnect blocks until the device with the given serial has left
// the bridge, using a fresh session. This backs the disconnect watchdog's
// secondary confirmation.
func (c *Connector) ConfirmDisconnect(ctx context.Context, serial string) error {
	sess, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	client := NewClient(sess)
	defer client.Close()

	return client.WaitDisconnect(ctx, serial)
}
