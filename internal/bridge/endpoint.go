package bridge

import (
	"net/url"
	"strings"
)

// DefaultHost is the bridge address used when no override is configured.
const DefaultHost = "127.0.0.1:25037"

// Endpoint holds the resolved bridge addresses. Computed once at startup and
// never mutated.
type Endpoint struct {
	// DataURL is the websocket endpoint carrying the multiplexed ADB data
	// channel, ws(s)://host/bridge.
	DataURL string

	// HealthURL is the HTTP liveness endpoint, http(s)://host/bridge/ping.
	HealthURL string

	// IsLocal reports whether the bridge runs on this machine.
	IsLocal bool
}

// ResolveEndpoint derives bridge addresses from a configured address string,
// which may be a bare host:port, a full URL, or empty (the default local
// bridge). Resolution never fails: anything unparseable falls back to the
// default host.
func ResolveEndpoint(address string) Endpoint {
	if address == "" {
		address = DefaultHost
	}

	raw := address
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		parsed, _ = url.Parse("http://" + DefaultHost)
	}

	secure := parsed.Scheme == "https" || parsed.Scheme == "wss"
	wsScheme, httpScheme := "ws", "http"
	if secure {
		wsScheme, httpScheme = "wss", "https"
	}

	hostname := strings.ToLower(parsed.Hostname())

	return Endpoint{
		DataURL:   wsScheme + "://" + parsed.Host + "/bridge",
		HealthURL: httpScheme + "://" + parsed.Host + "/bridge/ping",
		IsLocal:   hostname == "127.0.0.1" || hostname == "localhost",
	}
}
