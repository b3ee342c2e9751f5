package bridge

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

// newWSServer starts a websocket server whose connections are driven by
// handler, and returns it together with its ws:// URL.
func newWSServer(t *testing.T, handler func(conn *websocket.Conn)) (*httptest.Server, string) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)

	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

// serviceHandler is a scripted bridge: it answers ADB smart-socket services.
// Returning false ends the connection.
type serviceHandler func(conn *websocket.Conn, service string) bool

// newFakeBridge starts a websocket server speaking the ADB smart-socket
// protocol, dispatching each request to handle.
func newFakeBridge(t *testing.T, handle serviceHandler) string {
	t.Helper()

	_, url := newWSServer(t, func(conn *websocket.Conn) {
		for {
			service, err := readService(conn)
			if err != nil {
				return
			}
			if !handle(conn, service) {
				return
			}
		}
	})
	return url
}

// readService reads one hex4-length-prefixed service request. The client
// sends each request as a single frame.
func readService(conn *websocket.Conn) (string, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return "", err
	}
	if len(data) < 4 {
		return "", fmt.Errorf("short request %q", data)
	}
	n, err := strconv.ParseUint(string(data[:4]), 16, 32)
	if err != nil {
		return "", err
	}
	if len(data) != 4+int(n) {
		return "", fmt.Errorf("request %q length mismatch", data)
	}
	return string(data[4:]), nil
}

func sendRaw(conn *websocket.Conn, s string) error {
	return conn.WriteMessage(websocket.BinaryMessage, []byte(s))
}

func sendPayload(conn *websocket.Conn, s string) error {
	return sendRaw(conn, fmt.Sprintf("%04x%s", len(s), s))
}
