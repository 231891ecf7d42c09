// Package cmap provides a generic sharded concurrent map.
//
// Keys are spread over a power-of-two number of shards by a caller supplied
// 32-bit hash (MurmurHash3 helpers are provided for the common key types).
// Each shard is guarded by its own RWMutex, so operations on different keys
// rarely contend.
//
// Besides plain Get/Set/Delete the map offers the primitives the in-memory
// session tier builds its lock discipline on:
//
//   - GetOrSet: insert-if-absent, returning the winner of a creation race.
//   - DeleteIf: remove a key only while a predicate holds for the current
//     value (typically pointer identity), so a thread never removes a
//     container another thread has just re-created.
//   - Pop: remove and return.
//
// Usage:
//
//	m := cmap.New[string, *Entry](cmap.HashString)
//	e, loaded := m.GetOrSet("key", newEntry())
//	m.DeleteIf("key", func(cur *Entry) bool { return cur == e })
//
// Range acquires locks shard by shard, so it observes a consistent view of
// each shard but not of the whole map.
package cmap
