package lifecycle

// State is the orchestrator's connection state. At most one device session
// is live per client instance, so the state is a singleton for the active
// device.
type State int

const (
	// StateIdle means no connection exists or is being attempted.
	StateIdle State = iota

	// StateAuthenticating means a connect attempt is in progress (device
	// selection, interface claim, authentication, bridge transport).
	StateAuthenticating

	// StateConnected means a device session is live and supervised by the
	// disconnect watchdog.
	StateConnected

	// StateError means the last connect attempt failed. Cleared on the
	// next connect attempt.
	StateError
)

var stateNames = map[State]string{
	StateIdle:           "idle",
	StateAuthenticating: "authenticating",
	StateConnected:      "connected",
	StateError:          "error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
