package cluster

import (
	"log/slog"

	"github.com/hashicorp/memberlist"
)

// broadcast is one queued removal message.
type broadcast struct {
	msg []byte
}

// Invalidates is false: every removal must be delivered.
func (b *broadcast) Invalidates(memberlist.Broadcast) bool { return false }
func (b *broadcast) Message() []byte                       { return b.msg }
func (b *broadcast) Finished()                             {}

// delegate implements memberlist.Delegate.
type delegate struct {
	dir *Directory
}

func (m *delegate) NodeMeta(limit int) []byte { return nil }

// NotifyMsg is called with user messages from other nodes. msg must not be
// retained.
func (m *delegate) NotifyMsg(msg []byte) {
	if len(msg) == 0 {
		return
	}
	m.dir.receive(append([]byte(nil), msg...))
}

func (m *delegate) GetBroadcasts(overhead, limit int) [][]byte {
	if m.dir.queue == nil {
		return nil
	}
	return m.dir.queue.GetBroadcasts(overhead, limit)
}

func (m *delegate) LocalState(join bool) []byte            { return nil }
func (m *delegate) MergeRemoteState(buf []byte, join bool) {}

// eventDelegate logs membership changes.
type eventDelegate struct {
	logger *slog.Logger
}

func (e *eventDelegate) NotifyJoin(node *memberlist.Node) {
	e.logger.Info("node joined", "peer", node.Name, "addr", node.Address())
}

func (e *eventDelegate) NotifyLeave(node *memberlist.Node) {
	e.logger.Info("node left", "peer", node.Name, "addr", node.Address())
}

func (e *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	e.logger.Debug("node updated", "peer", node.Name, "addr", node.Address())
}
