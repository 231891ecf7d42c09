package domain

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Session constraints.
const (
	MaxLoginNameLength = 256
	MaxClientLength    = 128
	MaxParamKeyLength  = 64
	MaxParamValueSize  = 1024

	// SessionIDPrefix is the prefix for session IDs.
	SessionIDPrefix = "sess-"
)

// Session is an authenticated principal's session.
//
// Identity fields are immutable once the session is created. The parameter
// map and the attributes changed through SetLocalIP, SetClient and SetHash
// are guarded by an internal lock, as is the single-use random token.
type Session struct {
	// ID is the unique session identifier: sess-{ulid_lowercase}.
	ID string

	// UserID and ContextID identify the owning user within its context.
	UserID    int
	ContextID int

	// LoginName is the login string the session was created for.
	LoginName string

	// Secret is the session secret handed to the client (cookie value).
	Secret string

	// AuthID is the identifier of the authentication that created the session.
	AuthID string

	// CreatedAt is the creation timestamp (Unix milliseconds).
	CreatedAt int64

	mu          sync.RWMutex
	randomToken string
	localIP     string
	client      string
	hash        string
	params      map[string]string
}

// NewSession creates a session for userID in contextID with a generated ID.
func NewSession(userID, contextID int) (*Session, error) {
	id, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:        id,
		UserID:    userID,
		ContextID: contextID,
		CreatedAt: time.Now().UnixMilli(),
		params:    make(map[string]string),
	}, nil
}

// GenerateSessionID generates a new ULID based session ID.
func GenerateSessionID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", ErrInternalServer.WithCause(err)
	}
	return SessionIDPrefix + strings.ToLower(id.String()), nil
}

// IsValidSessionID reports whether id has the sess-{ulid} format.
func IsValidSessionID(id string) bool {
	id = strings.ToLower(id)
	if !strings.HasPrefix(id, SessionIDPrefix) {
		return false
	}
	if len(id) != len(SessionIDPrefix)+ulid.EncodedSize {
		return false
	}
	_, err := ulid.Parse(strings.ToUpper(id[len(SessionIDPrefix):]))
	return err == nil
}

// RandomToken returns the single-use random token, or "" once redeemed.
func (s *Session) RandomToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.randomToken
}

// SetRandomToken sets the single-use random token.
func (s *Session) SetRandomToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.randomToken = token
}

// ClearRandomToken removes the random token if it still equals token.
// Returns true if it did.
func (s *Session) ClearRandomToken(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" || s.randomToken != token {
		return false
	}
	s.randomToken = ""
	return true
}

// LocalIP returns the client IP last associated with the session.
func (s *Session) LocalIP() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localIP
}

// SetLocalIP updates the client IP.
func (s *Session) SetLocalIP(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localIP = ip
}

// Client returns the client identifier (e.g. the UI or sync client name).
func (s *Session) Client() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// SetClient updates the client identifier.
func (s *Session) SetClient(client string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = client
}

// Hash returns the browser fingerprint hash.
func (s *Session) Hash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hash
}

// SetHash updates the browser fingerprint hash.
func (s *Session) SetHash(hash string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hash = hash
}

// Parameter returns a named parameter.
func (s *Session) Parameter(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.params[name]
	return v, ok
}

// SetParameter sets a named parameter.
func (s *Session) SetParameter(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.params == nil {
		s.params = make(map[string]string)
	}
	s.params[name] = value
}

// RemoveParameter deletes a named parameter.
func (s *Session) RemoveParameter(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.params, name)
}

// Parameters returns a copy of the parameter map.
func (s *Session) Parameters() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.params))
	for k, v := range s.params {
		out[k] = v
	}
	return out
}

// Validate checks the session fields against the constraints above.
func (s *Session) Validate() error {
	var violations []string

	if s.ID == "" {
		violations = append(violations, "id is required")
	}
	if s.UserID <= 0 {
		violations = append(violations, "user_id must be positive")
	}
	if s.ContextID <= 0 {
		violations = append(violations, "context_id must be positive")
	}
	if len(s.LoginName) > MaxLoginNameLength {
		violations = append(violations, "login_name exceeds 256 characters")
	}

	s.mu.RLock()
	if len(s.client) > MaxClientLength {
		violations = append(violations, "client exceeds 128 characters")
	}
	for k, v := range s.params {
		if len(k) > MaxParamKeyLength {
			violations = append(violations, "parameter name exceeds 64 characters")
			break
		}
		if len(v) > MaxParamValueSize {
			violations = append(violations, "parameter value exceeds 1KB")
			break
		}
	}
	s.mu.RUnlock()

	if len(violations) > 0 {
		return ErrSessionValidation.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Clone creates a deep copy of the session.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clone := &Session{
		ID:          s.ID,
		UserID:      s.UserID,
		ContextID:   s.ContextID,
		LoginName:   s.LoginName,
		Secret:      s.Secret,
		AuthID:      s.AuthID,
		CreatedAt:   s.CreatedAt,
		randomToken: s.randomToken,
		localIP:     s.localIP,
		client:      s.client,
		hash:        s.hash,
		params:      make(map[string]string, len(s.params)),
	}
	for k, v := range s.params {
		clone.params[k] = v
	}
	return clone
}

// CreatedAtTime returns CreatedAt as time.Time.
func (s *Session) CreatedAtTime() time.Time {
	return time.UnixMilli(s.CreatedAt)
}

// BelongsTo reports whether the session is owned by userID in contextID.
func (s *Session) BelongsTo(userID, contextID int) bool {
	return s.UserID == userID && s.ContextID == contextID
}
