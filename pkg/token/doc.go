// Package token provides cryptographically secure opaque token generation.
//
// Tokens are random bytes from crypto/rand, encoded as Base64 RawURL (the
// default) or lower-case hex. They carry no structure; callers that need
// uniqueness against a live set must still check for collisions.
package token
