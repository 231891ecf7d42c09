// Package event delivers session lifecycle events to sinks.
//
// Components:
//
//   - Event: session ID, user, context and the reason the session left
//   - Sink: consumer interface (log, channel, fan-out, no-op)
//   - Dispatcher: buffered async relay; emitting never blocks the caller
//     when DropIfFull is set
//
// The package does not decide which events are emitted; the session
// handler does.
package event
