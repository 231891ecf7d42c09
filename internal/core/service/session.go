package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/yndnr/sessiond/internal/core/domain"
	"github.com/yndnr/sessiond/pkg/token"
)

// secretLength is the number of random bytes in a session secret.
const secretLength = 16

// ============================================================================
// Session Add Operation
// ============================================================================

// AddSessionRequest contains parameters for admitting a new session.
type AddSessionRequest struct {
	UserID    int               // Required
	ContextID int               // Required
	LoginName string            // Optional
	AuthID    string            // Optional
	Client    string            // Optional
	Hash      string            // Optional browser fingerprint
	LocalIP   string            // Optional
	Secret    string            // Optional, generated when empty
	Params    map[string]string // Optional
}

// AddSession creates a session and admits it into the short-term tier.
func (h *SessionHandler) AddSession(ctx context.Context, req *AddSessionRequest) (*domain.Session, error) {
	if err := h.checkOpen(); err != nil {
		return nil, err
	}

	// 1. Validate required fields
	if req == nil {
		return nil, domain.ErrMissingArgument.WithDetails("request is required")
	}
	if req.UserID <= 0 {
		return nil, domain.ErrInvalidArgument.WithDetails("user_id must be positive")
	}
	if req.ContextID <= 0 {
		return nil, domain.ErrInvalidArgument.WithDetails("context_id must be positive")
	}

	// 2. Check per-user quota
	if limit := h.cfg.MaxSessionsPerUser; limit > 0 {
		if n := h.counter.UserCount(req.UserID, req.ContextID); n >= int64(limit) {
			return nil, domain.ErrSessionQuotaExceeded.WithDetails(
				fmt.Sprintf("user %d in context %d has %d sessions (max %d)", req.UserID, req.ContextID, n, limit),
			)
		}
	}

	// 3. Build the session
	s, err := domain.NewSession(req.UserID, req.ContextID)
	if err != nil {
		return nil, err
	}
	s.LoginName = req.LoginName
	s.AuthID = req.AuthID
	s.Secret = req.Secret
	if s.Secret == "" {
		if s.Secret, err = token.GenerateHex(secretLength); err != nil {
			return nil, domain.ErrTokenGeneration.WithCause(err)
		}
	}
	if h.cfg.RandomTokens {
		rt, err := token.Generate()
		if err != nil {
			return nil, domain.ErrTokenGeneration.WithCause(err)
		}
		s.SetRandomToken(rt)
	}
	s.SetClient(req.Client)
	s.SetHash(req.Hash)
	s.SetLocalIP(req.LocalIP)
	for k, v := range req.Params {
		s.SetParameter(k, v)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	// 4. Admit into the short-term tier, reserving the quota slot
	if _, err := h.container.AddBelow(s, h.cfg.MaxSessionsPerUser); err != nil {
		if errors.Is(err, domain.ErrSessionQuotaExceeded) {
			return nil, domain.ErrSessionQuotaExceeded.WithDetails(
				fmt.Sprintf("user %d in context %d is at the limit of %d sessions", req.UserID, req.ContextID, h.cfg.MaxSessionsPerUser),
			)
		}
		h.logger.Error("admit session", "session_id", s.ID, "user_id", s.UserID, "context_id", s.ContextID, "error", err)
		return nil, err
	}
	h.metrics.SessionAdded()

	// 5. Persist, best-effort
	h.persist(ctx, s)

	h.logger.Debug("session added", "session_id", s.ID, "user_id", s.UserID, "context_id", s.ContextID)
	return s, nil
}

// ============================================================================
// Session Lookup Operations
// ============================================================================

// GetSession returns the session with the given ID. A session missing from
// memory is restored from durable storage when one is configured.
//
// peek is accepted for callers that distinguish inspection from use;
// recency is governed by rotation alone, so both behave the same.
func (h *SessionHandler) GetSession(ctx context.Context, id string, peek bool) (*domain.Session, bool) {
	if id == "" {
		return nil, false
	}
	if ctl, ok := h.container.Get(id); ok {
		return ctl.Session(), true
	}
	if h.storage == nil || h.closed.Load() {
		return nil, false
	}
	return h.restore(ctx, id)
}

// restore re-admits a session found only in durable storage. Restores of
// the same ID are serialized so a session is never admitted twice, and a
// session that was retired is never admitted again.
func (h *SessionHandler) restore(ctx context.Context, id string) (*domain.Session, bool) {
	mu := h.restoreLock(id)
	mu.Lock()
	defer mu.Unlock()

	if ctl, ok := h.container.Get(id); ok {
		return ctl.Session(), true
	}
	if h.retired.Has(id) {
		return nil, false
	}

	s, err := h.storage.Lookup(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			h.metrics.StorageError("lookup")
			h.logger.Warn("lookup session in storage", "session_id", id, "error", err)
		}
		return nil, false
	}

	if _, err := h.container.Add(s); err != nil {
		h.logger.Error("re-admit stored session", "session_id", id, "error", err)
		return nil, false
	}
	h.metrics.SessionRestored()
	h.logger.Debug("session restored from storage", "session_id", id)
	return s, true
}

// GetSessionByRandomToken redeems a single-use random token.
func (h *SessionHandler) GetSessionByRandomToken(ctx context.Context, randomToken string) (*domain.Session, bool) {
	ctl, ok := h.container.GetByRandomToken(randomToken)
	if !ok {
		return nil, false
	}
	s := ctl.Session()
	h.persist(ctx, s)
	return s, true
}

// FindSessions returns the sessions matching filter, oldest first. With
// filter.IncludeStorage, sessions held only in durable storage are added;
// a storage failure is logged and the local result returned.
func (h *SessionHandler) FindSessions(ctx context.Context, filter *SessionFilter) ([]*domain.Session, error) {
	var out []*domain.Session
	seen := make(map[string]bool)
	for _, ctl := range h.container.Sessions() {
		s := ctl.Session()
		if filter.Matches(s) {
			out = append(out, s)
			seen[s.ID] = true
		}
	}

	if filter != nil && filter.IncludeStorage && h.storage != nil {
		stored, err := h.storage.Find(ctx, filter)
		if err != nil {
			h.metrics.StorageError("find")
			h.logger.Warn("find sessions in storage", "error", err)
		}
		for _, s := range stored {
			if !seen[s.ID] && filter.Matches(s) {
				out = append(out, s)
				seen[s.ID] = true
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ============================================================================
// Session Attribute Operation
// ============================================================================

// SessionAttributes lists the mutable attributes. Nil fields are left
// unchanged.
type SessionAttributes struct {
	LocalIP *string
	Client  *string
	Hash    *string
}

// SetSessionAttributes updates the attributes of a held session.
func (h *SessionHandler) SetSessionAttributes(ctx context.Context, id string, attrs SessionAttributes) error {
	if id == "" {
		return domain.ErrMissingArgument.WithDetails("session_id is required")
	}
	ctl, ok := h.container.Get(id)
	if !ok {
		return domain.ErrSessionNotFound.WithDetails(id)
	}

	s := ctl.Session()
	if attrs.LocalIP != nil {
		s.SetLocalIP(*attrs.LocalIP)
	}
	if attrs.Client != nil {
		if len(*attrs.Client) > domain.MaxClientLength {
			return domain.ErrInvalidArgument.WithDetails("client exceeds 128 characters")
		}
		s.SetClient(*attrs.Client)
	}
	if attrs.Hash != nil {
		s.SetHash(*attrs.Hash)
	}

	h.persist(ctx, s)
	return nil
}

// persist writes s to durable storage, best-effort.
func (h *SessionHandler) persist(ctx context.Context, s *domain.Session) {
	if h.storage == nil {
		return
	}
	if err := h.storage.Persist(ctx, s); err != nil {
		h.metrics.StorageError("persist")
		h.logger.Warn("persist session", "session_id", s.ID, "error", err)
	}
}
