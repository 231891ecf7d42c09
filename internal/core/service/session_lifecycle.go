package service

import (
	"context"
	"time"

	"github.com/yndnr/sessiond/internal/core/domain"
	"github.com/yndnr/sessiond/internal/core/event"
	"github.com/yndnr/sessiond/internal/storage/memory"
)

// ============================================================================
// Session Removal Operations
// ============================================================================

// RemoveSession logs a session out. The session is also removed from
// durable storage and from the other cluster nodes, even when this node
// does not hold it. Returns the removed session if it was held here.
func (h *SessionHandler) RemoveSession(ctx context.Context, id string) (*domain.Session, bool, error) {
	if id == "" {
		return nil, false, domain.ErrMissingArgument.WithDetails("session_id is required")
	}

	ctl, found, err := h.forget(id)
	if err != nil {
		h.logger.Error("remove session", "session_id", id, "error", err)
		return nil, false, err
	}

	if found {
		h.retire(ctx, []*domain.SessionControl{ctl}, domain.ReasonLogout, true)
	} else {
		h.removeStored(ctx, id)
	}
	if h.directory != nil {
		if err := h.directory.PublishRemoval(ctx, id); err != nil {
			h.logger.Warn("publish session removal", "session_id", id, "error", err)
		}
	}

	if !found {
		return nil, false, nil
	}
	return ctl.Session(), true, nil
}

// RemoveUserSessions removes every session of the user, locally, in
// durable storage and across the cluster.
func (h *SessionHandler) RemoveUserSessions(ctx context.Context, userID, contextID int) ([]*domain.Session, error) {
	removed, err := h.container.RemoveUser(userID, contextID)
	h.retire(ctx, removed, domain.ReasonAdminRemove, true)
	if err != nil {
		h.logger.Error("remove user sessions", "user_id", userID, "context_id", contextID, "error", err)
		return sessionsOf(removed), err
	}

	h.purgeStored(ctx, &SessionFilter{UserID: userID, ContextID: contextID}, domain.ReasonAdminRemove)
	if h.directory != nil {
		if err := h.directory.PublishUserRemoval(ctx, userID, contextID); err != nil {
			h.logger.Warn("publish user removal", "user_id", userID, "context_id", contextID, "error", err)
		}
	}
	return sessionsOf(removed), nil
}

// RemoveContextSessions removes every session of a context, locally, in
// durable storage and across the cluster.
func (h *SessionHandler) RemoveContextSessions(ctx context.Context, contextID int) ([]*domain.Session, error) {
	removed, err := h.container.RemoveContext(contextID)
	h.retire(ctx, removed, domain.ReasonAdminRemove, true)
	if err != nil {
		h.logger.Error("remove context sessions", "context_id", contextID, "error", err)
		return sessionsOf(removed), err
	}

	h.purgeStored(ctx, &SessionFilter{ContextID: contextID}, domain.ReasonAdminRemove)
	if h.directory != nil {
		if err := h.directory.PublishContextRemoval(ctx, contextID); err != nil {
			h.logger.Warn("publish context removal", "context_id", contextID, "error", err)
		}
	}
	return sessionsOf(removed), nil
}

// ============================================================================
// Rotation Operations
// ============================================================================

// RotateShort advances the short-term ring. Sessions that leave the
// container are retired with reason timeout.
func (h *SessionHandler) RotateShort(ctx context.Context) memory.RotationResult {
	res := h.container.RotateShort()
	h.metrics.Rotated(domain.TierShortTerm)
	h.metrics.SessionMoved(len(res.Moved))
	h.retire(ctx, res.TimedOut, domain.ReasonTimeout, true)

	h.logger.Debug("short-term rotation",
		"moved", len(res.Moved),
		"timed_out", len(res.TimedOut),
	)
	return res
}

// RotateLong advances the long-term ring. Evicted sessions are retired
// with reason evicted.
func (h *SessionHandler) RotateLong(ctx context.Context) []*domain.SessionControl {
	if !h.container.LongTermEnabled() {
		return nil
	}
	evicted := h.container.RotateLong()
	h.metrics.Rotated(domain.TierLongTerm)
	h.retire(ctx, evicted, domain.ReasonEvicted, true)

	h.logger.Debug("long-term rotation", "evicted", len(evicted))
	return evicted
}

// ============================================================================
// Cluster
// ============================================================================

// applyRemote applies a removal published by another node. The origin
// already cleaned durable storage and broadcast, so neither is repeated.
func (h *SessionHandler) applyRemote(r RemoteRemoval) {
	ctx := context.Background()

	var (
		removed []*domain.SessionControl
		reason  = domain.ReasonAdminRemove
		err     error
	)
	switch r.Kind {
	case RemoveBySession:
		reason = domain.ReasonLogout
		var ctl *domain.SessionControl
		var found bool
		ctl, found, err = h.forget(r.SessionID)
		if found {
			removed = append(removed, ctl)
		}
	case RemoveByUser:
		removed, err = h.container.RemoveUser(r.UserID, r.ContextID)
	case RemoveByContext:
		removed, err = h.container.RemoveContext(r.ContextID)
	default:
		h.logger.Warn("unknown remote removal", "kind", string(r.Kind), "origin", r.Origin)
		return
	}

	h.retire(ctx, removed, reason, false)
	if err != nil {
		h.logger.Error("apply remote removal", "kind", string(r.Kind), "origin", r.Origin, "error", err)
		return
	}
	if len(removed) > 0 {
		h.logger.Debug("remote removal applied", "kind", string(r.Kind), "origin", r.Origin, "removed", len(removed))
	}
}

// ============================================================================
// Helpers
// ============================================================================

// retire finishes sessions that left the container: their IDs are marked
// retired, their tokens dropped, durable copies removed when removeStored
// is set, and one event per session emitted.
func (h *SessionHandler) retire(ctx context.Context, controls []*domain.SessionControl, reason domain.RemovalReason, removeStored bool) {
	if len(controls) == 0 {
		return
	}
	for _, ctl := range controls {
		s := ctl.Session()
		if _, _, err := h.forget(s.ID); err != nil {
			h.logger.Error("remove restored copy", "session_id", s.ID, "error", err)
		}
		h.tokens.RemoveForSession(s.ID)
		if removeStored {
			h.removeStored(ctx, s.ID)
		}
		h.dispatcher.Emit(ctx, event.FromSession(s, reason))
	}
	h.metrics.SessionRemoved(reason, len(controls))
}

func (h *SessionHandler) removeStored(ctx context.Context, id string) {
	if h.storage == nil {
		return
	}
	if err := h.storage.Remove(ctx, id); err != nil {
		h.metrics.StorageError("remove")
		h.logger.Warn("remove session from storage", "session_id", id, "error", err)
	}
	// Keep the ID retired for a full interval after the durable copy is gone.
	h.retired.Set(id, time.Now())
}

// purgeStored removes stored sessions matching filter that were not held
// in memory. One restored while the purge ran is retired with reason.
func (h *SessionHandler) purgeStored(ctx context.Context, filter *SessionFilter, reason domain.RemovalReason) {
	if h.storage == nil {
		return
	}
	stored, err := h.storage.Find(ctx, filter)
	if err != nil {
		h.metrics.StorageError("find")
		h.logger.Warn("find sessions in storage", "error", err)
		return
	}
	for _, s := range stored {
		ctl, found, err := h.forget(s.ID)
		if err != nil {
			h.logger.Error("remove restored copy", "session_id", s.ID, "error", err)
		}
		if found {
			h.retire(ctx, []*domain.SessionControl{ctl}, reason, true)
			continue
		}
		h.removeStored(ctx, s.ID)
	}
}

func sessionsOf(controls []*domain.SessionControl) []*domain.Session {
	out := make([]*domain.Session, 0, len(controls))
	for _, ctl := range controls {
		out = append(out, ctl.Session())
	}
	return out
}
