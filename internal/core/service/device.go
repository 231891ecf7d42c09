package service

import (
	"github.com/yndnr/sessiond/internal/core/domain"
	"github.com/yndnr/sessiond/internal/storage/memory"
)

// ============================================================================
// Pending Device Registrations
// ============================================================================

// RegisterDevice records a device awaiting enrollment for the user.
func (h *SessionHandler) RegisterDevice(contextID, userID int, device domain.Device) error {
	if device.ID == "" {
		return domain.ErrMissingArgument.WithDetails("device id is required")
	}
	if err := h.registrations.Register(contextID, userID, device); err != nil {
		h.logger.Error("register device", "user_id", userID, "context_id", contextID, "error", err)
		return err
	}
	return nil
}

// UnregisterDevice drops a pending registration by device ID.
func (h *SessionHandler) UnregisterDevice(contextID, userID int, deviceID string) (domain.Device, bool, error) {
	return h.registrations.Unregister(contextID, userID, deviceID)
}

// Devices returns the user's pending registrations, oldest first.
func (h *SessionHandler) Devices(contextID, userID int) []domain.Device {
	return h.registrations.Devices(contextID, userID)
}

// Device returns one pending registration.
func (h *SessionHandler) Device(contextID, userID int, deviceID string) (domain.Device, bool) {
	return h.registrations.Device(contextID, userID, deviceID)
}

// ============================================================================
// Request Tokens
// ============================================================================

// AddRequestToken stores value under key for requestID. It expires after
// the configured request token lifetime.
func (h *SessionHandler) AddRequestToken(requestID, key, value string) error {
	if requestID == "" || key == "" {
		return domain.ErrMissingArgument.WithDetails("request id and key are required")
	}
	return h.requestTokens.Add(requestID, key, memory.NewExpiringToken(value, h.cfg.RequestTokenLifetime))
}

// RedeemRequestToken returns the value under key and removes it, unless it
// is missing or expired.
func (h *SessionHandler) RedeemRequestToken(requestID, key string) (string, bool) {
	tok, ok := h.requestTokens.GetAndRemove(requestID, key)
	if !ok {
		return "", false
	}
	return tok.Value, true
}

// RequestTokenCount returns the number of live tokens of requestID.
func (h *SessionHandler) RequestTokenCount(requestID string) int {
	return h.requestTokens.TokenCount(requestID)
}

// Sweep purges expired registrations, request tokens and retired session
// IDs.
func (h *SessionHandler) Sweep() (registrations, requestTokens int) {
	h.pruneRetired()
	return h.registrations.Cleanup(), h.requestTokens.Cleanup()
}
