package connection

// State tracks the lifecycle of the managed robot link. Transitions are
// driven only by Connect, Disconnect, and MarkConnectionLost; observers read
// the current value without locking.
type State int32

const (
	// StateDisconnected is the initial state and the result of any Disconnect
	StateDisconnected State = iota

	// StateConnecting covers backend resolution and the first dial attempt
	StateConnecting

	// StateRetrying is entered after a failed attempt when attempts remain
	StateRetrying

	// StateConnected means the adapter transport is established and usable
	StateConnected

	// StateError is terminal for a Connect call: attempts were exhausted or
	// the failure was not retryable. A later Connect starts fresh.
	StateError
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateRetrying:
		return "retrying"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
