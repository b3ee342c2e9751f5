package bridge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Lauriethefish/ModsBeforeFriday-sub000/internal/devices"
	"github.com/gorilla/websocket"
)

func dialFakeBridge(t *testing.T, handle serviceHandler) *Client {
	t.Helper()

	url := newFakeBridge(t, handle)
	c := NewConnector(Endpoint{DataURL: url}, 5*time.Second)
	sess, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	client := NewClient(sess)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestClientListDevices(t *testing.T) {
	client := dialFakeBridge(t, func(conn *websocket.Conn, service string) bool {
		if service != "host:devices" {
			t.Errorf("service = %q, want host:devices", service)
			return false
		}
		sendRaw(conn, "OKAY")
		sendPayload(conn, "1WMHH123456789\tdevice\n2XKGG987654321\tunauthorized\n")
		return false
	})

	snap, err := client.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}

	want := devices.Snapshot{
		{Serial: "1WMHH123456789", State: devices.StateDevice},
		{Serial: "2XKGG987654321", State: devices.StateUnauthorized},
	}
	if !snap.Equal(want) {
		t.Errorf("snapshot = %v, want %v", snap, want)
	}
}

func TestClientListDevicesEmpty(t *testing.T) {
	client := dialFakeBridge(t, func(conn *websocket.Conn, service string) bool {
		sendRaw(conn, "OKAY")
		sendPayload(conn, "")
		return false
	})

	snap, err := client.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(snap) != 0 {
		t.Errorf("snapshot = %v, want empty", snap)
	}
}

func TestClientListDevicesFail(t *testing.T) {
	client := dialFakeBridge(t, func(conn *websocket.Conn, service string) bool {
		sendRaw(conn, "FAIL")
		sendPayload(conn, "server shutting down")
		return false
	})

	_, err := client.ListDevices(context.Background())
	if err == nil || !strings.Contains(err.Error(), "server shutting down") {
		t.Errorf("ListDevices = %v, want bridge failure message", err)
	}
}

func TestClientSingleUse(t *testing.T) {
	client := dialFakeBridge(t, func(conn *websocket.Conn, service string) bool {
		sendRaw(conn, "OKAY")
		sendPayload(conn, "")
		return false
	})

	if _, err := client.ListDevices(context.Background()); err != nil {
		t.Fatalf("first ListDevices: %v", err)
	}
	if _, err := client.ListDevices(context.Background()); !errors.Is(err, ErrClientUsed) {
		t.Errorf("second ListDevices = %v, want ErrClientUsed", err)
	}
	if err := client.Transport(context.Background(), "x"); !errors.Is(err, ErrClientUsed) {
		t.Errorf("Transport on spent client = %v, want ErrClientUsed", err)
	}
}

func TestClientRunShell(t *testing.T) {
	client := dialFakeBridge(t, func(conn *websocket.Conn, service string) bool {
		switch service {
		case "host:transport:1WMHH123456789":
			sendRaw(conn, "OKAY")
			return true
		case "shell:getprop ro.build.version.release":
			sendRaw(conn, "OKAY")
			sendRaw(conn, "12\n")
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return false
		default:
			t.Errorf("unexpected service %q", service)
			return false
		}
	})

	out, err := client.RunShell(context.Background(), "1WMHH123456789", "getprop ro.build.version.release")
	if err != nil {
		t.Fatalf("RunShell: %v", err)
	}
	if strings.TrimSpace(out) != "12" {
		t.Errorf("output = %q, want 12", out)
	}
}

func TestClientTransportUnknownSerial(t *testing.T) {
	client := dialFakeBridge(t, func(conn *websocket.Conn, service string) bool {
		sendRaw(conn, "FAIL")
		sendPayload(conn, "device 'nope' not found")
		return false
	})

	err := client.Transport(context.Background(), "nope")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Transport = %v, want device-not-found failure", err)
	}
}

func TestClientWaitDisconnect(t *testing.T) {
	release := make(chan struct{})
	client := dialFakeBridge(t, func(conn *websocket.Conn, service string) bool {
		if service != "host-serial:abc:wait-for-disconnect" {
			t.Errorf("service = %q", service)
			return false
		}
		<-release
		sendRaw(conn, "OKAY")
		return false
	})

	done := make(chan error, 1)
	go func() {
		done <- client.WaitDisconnect(context.Background(), "abc")
	}()

	// Still blocked: the device hasn't vanished yet.
	select {
	case err := <-done:
		t.Fatalf("WaitDisconnect returned early: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(release)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WaitDisconnect: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("WaitDisconnect never resolved")
	}
}

func TestClientWaitDisconnectCancelled(t *testing.T) {
	client := dialFakeBridge(t, func(conn *websocket.Conn, service string) bool {
		conn.ReadMessage() // never answer
		return false
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- client.WaitDisconnect(ctx, "abc")
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("WaitDisconnect = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancellation did not unblock WaitDisconnect")
	}
}
