package devices

import "strings"

// State is a device's connection/authentication state as reported by the
// bridge.
type State int

const (
	StateUnknown State = iota
	StateDevice
	StateUnauthorized
	StateAuthorizing
	StateOffline
)

var stateNames = map[State]string{
	StateUnknown:      "unknown",
	StateDevice:       "device",
	StateUnauthorized: "unauthorized",
	StateAuthorizing:  "authorizing",
	StateOffline:      "offline",
}

var stateFromName = map[string]State{
	"device":       StateDevice,
	"unauthorized": StateUnauthorized,
	"authorizing":  StateAuthorizing,
	"offline":      StateOffline,
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseState maps a bridge state string to a State. Unrecognized states
// parse as StateUnknown rather than failing.
func ParseState(name string) State {
	if s, ok := stateFromName[name]; ok {
		return s
	}
	return StateUnknown
}

// Record is one device as seen in a single directory poll.
type Record struct {
	Serial string
	State  State
}

// Snapshot is the full device list from one poll cycle.
type Snapshot []Record

// Equal reports whether two snapshots are identical under a strict,
// order-sensitive comparison: equal length, and at every index the same
// serial and state. A reordering of the same devices therefore compares
// unequal. This is intentional: it preserves the observable update cadence
// of the original comparison, at the cost of spurious change events if the
// bridge ever reorders its list between polls.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i].Serial != other[i].Serial || s[i].State != other[i].State {
			return false
		}
	}
	return true
}

// WithoutAuthorizing returns the snapshot with devices mid-authentication
// removed. Those devices churn through transient states during the ADB key
// exchange and would otherwise flood consumers with change events.
func (s Snapshot) WithoutAuthorizing() Snapshot {
	out := make(Snapshot, 0, len(s))
	for _, r := range s {
		if r.State == StateAuthorizing {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ParseList parses a bridge device-list payload: one device per line,
// serial and state separated by whitespace. Blank lines are skipped;
// malformed lines are dropped.
func ParseList(payload string) Snapshot {
	var snap Snapshot
	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		snap = append(snap, Record{Serial: fields[0], State: ParseState(fields[1])})
	}
	return snap
}
