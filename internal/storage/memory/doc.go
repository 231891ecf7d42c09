// Package memory provides the in-memory session tier of sessiond.
//
// Components:
//
//   - RefCounter: active session counts per (user, context) and per context
//   - SessionContainer: short-term and long-term rotation rings
//   - TokenContainer: random tokens bound to a session, dropped in bulk on logout
//   - DeviceRegistrationStore: pending device registrations with a lifetime
//   - TokenStore: short-lived named tokens grouped by request
//
// Thread Safety:
//
// There is no global lock. Every keyed container follows the same
// discipline: create lazily with GetOrSet, mutate only under the
// container's own lock, and unlink with a tombstone when it empties.
// A caller that finds a tombstoned container starts over from the map
// lookup. Retries are bounded by MaxRetries and surface
// domain.ErrStructuralRace.
package memory
