// Package robotlink bridges a vision client streaming 3D body coordinates to
// a robot arm controller.
//
// # Architecture
//
// Coordinates flow one way, commands flow call/response:
//
//	vision client --TCP/WebSocket--> tracker --> stream --> backend --> robot
//	operator/preflight --> command --> backend --> robot
//
// The backend package abstracts the two transports a controller can expose: a
// raw TCP command API and a message-bus API. The connection package resolves
// which one to use (probing both when configured for auto), establishes it
// with exponential backoff, and exposes the observable connection state.
//
// Streaming is deliberately lossy. Coordinate frames describe the present, so
// when the link is down or slow the stale frames are dropped and counted, not
// buffered. The tracker keeps only the latest unprocessed sample per the same
// reasoning.
//
// # Packages
//
//   - backend: transport adapters (direct socket, message bus)
//   - probe: reachability checks used by backend auto-resolution
//   - connection: lifecycle, state machine, retry policy
//   - stream: coordinate frame codec and drop-stale delivery
//   - command: named command dispatch and response classification
//   - tracker: vision client listeners (TCP and WebSocket)
//   - preflight: robot bring-up check sequence
//   - health, metric, config, errors, pkg/retry: ambient infrastructure
package robotlink
