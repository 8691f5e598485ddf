// Package backend provides the uniform Adapter surface over the two robot
// control transports.
//
// # Variants
//
// DirectSocketAdapter owns two persistent TCP connections: a command channel
// carrying textual request/reply traffic ("MovL(250,0,300,0,90,0)" answered
// by a comma-delimited status line) and a feedback channel carrying the
// newline-framed coordinate stream.
//
// MessageBusAdapter issues the same logical commands as request/reply calls
// on the bus (subject robot.cmd.<suffix>, JSON envelope with a correlation
// id) and publishes coordinate frames to robot.stream.coordinates. The bus
// node initializes lazily and idempotently on Connect.
//
// # Command registry
//
// Each variant carries an explicit table from logical command name to its
// dispatch detail, fixed at construction. An unregistered name fails with
// ErrUnknownCommand before any wire traffic; there is no dynamic lookup.
//
// # Error conversion
//
// Raw transport failures are converted to the errors package taxonomy at
// this boundary: deadline expiry becomes ErrCommandTimeout (retryable),
// severed sockets become ErrTransport and mark the adapter dead, and a
// missing bus runtime or responder becomes ErrBackendUnavailable. Callers
// never see a net or nats error directly.
package backend
