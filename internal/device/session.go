// Package device holds the client's view of one connected headset: the
// session abstraction handed to the protocol layer and the watchdog that
// decides, with certainty, when that session has actually ended.
package device

import "context"

// Session is one live connection to a device, as this subsystem sees it.
// The protocol riding on the stream (requests, file pushes, process
// spawning) belongs to the layer above; here a session is a serial, a
// termination signal, and a way to run trivial commands.
type Session interface {
	// Serial identifies the device.
	Serial() string

	// Done is closed when the transport reports the connection has ended.
	// Older bridges fire this spuriously right after connecting, which is
	// why the watchdog exists.
	Done() <-chan struct{}

	// RunCommand executes a shell command on the device and returns its
	// output. Each call uses its own stream; the session's main data
	// stream is untouched.
	RunCommand(ctx context.Context, cmd string) (string, error)

	// Close tears the session down. Must be called exactly once on every
	// exit path.
	Close() error
}
