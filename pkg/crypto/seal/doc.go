// Package seal encrypts stored session records.
//
// A Sealer derives a 256-bit key from a configured secret with HKDF-SHA256
// and seals records with AES-256-GCM or ChaCha20-Poly1305. Sealed output
// carries a one-byte algorithm tag followed by the nonce and ciphertext, so
// records written under one algorithm can be opened after the configured
// algorithm changes, as long as the secret is the same.
//
// Usage:
//
//	s, err := seal.New(secret, seal.Auto)
//	box, err := s.Seal(record, []byte(sessionID))
//	record, err := s.Open(box, []byte(sessionID))
package seal
