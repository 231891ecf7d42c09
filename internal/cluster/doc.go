// Package cluster propagates session removals between sessiond nodes.
//
// Nodes discover each other with hashicorp/memberlist gossip. A removal made
// on one node is queued as a JSON envelope on a TransmitLimitedQueue and
// piggybacked on gossip until every member has likely seen it. Receivers
// drop their own messages and duplicates, then hand the removal to the
// subscribed handler, which applies it locally without re-publishing.
//
// Delivery is best-effort: a node that is partitioned away misses removals
// and relies on the rotation ring to age sessions out.
package cluster
