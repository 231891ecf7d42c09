// Package domain defines the core domain models for sessiond.
//
// Domain models are value objects and entities without IO dependencies:
//
//   - Session: an authenticated principal's session record
//   - SessionControl: a Session paired with its admission time and tier
//   - Tier and RemovalReason: lifecycle enumerations
//   - Errors: structured domain errors with stable codes
package domain
