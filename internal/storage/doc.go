// Package storage provides the durable session tier.
//
// Two adapters implement service.SessionStorage:
//
//   - BadgerStore: embedded badger database with periodic value-log GC
//   - RedisStore: redis strings with a per-user index set; DialRedis takes an
//     optional tls.Config (see internal/infra/tlsroots)
//
// Both persist records produced by Codec: a protobuf Struct holding the
// session's identity and attributes, optionally sealed with pkg/crypto/seal.
// Random tokens are single-use and stay in memory only.
package storage
