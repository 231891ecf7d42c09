// Package service orchestrates the in-memory session tier.
//
// SessionHandler composes the memory components (rotation container,
// RefCounter, token and registration stores) with the collaborators it
// consumes through narrow interfaces:
//
//   - SessionStorage: durable persistence, best-effort
//   - Directory: cluster-wide removal broadcast, best-effort
//   - event.Sink: fire-and-forget lifecycle events
//   - Metrics: counters and gauges
//
// All collaborators are passed in through Deps; there is no package state.
// Rotator drives the periodic rotations.
package service
