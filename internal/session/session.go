package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Session is the authenticated identity passed explicitly to services
type Session struct {
	ID          string      `json:"sessionId"`
	UserID      string      `json:"uid"`
	Email       string      `json:"email"`
	DisplayName string      `json:"displayName"`
	Role        models.Role `json:"role"`
	ExpiresAt   time.Time   `json:"expiresAt"`
}

// IsAdmin reports whether the session carries the admin role
func (s *Session) IsAdmin() bool {
	return s != nil && s.Role == models.RoleAdmin
}

// Claims are the JWT claims of a session token
type Claims struct {
	Email       string      `json:"email"`
	DisplayName string      `json:"name,omitempty"`
	Role        models.Role `json:"role"`
	jwt.RegisteredClaims
}

// ChangeKind distinguishes login from logout
type ChangeKind string

const (
	ChangeLogin  ChangeKind = "login"
	ChangeLogout ChangeKind = "logout"
)

// Change is delivered to OnAuthChange listeners
type Change struct {
	Kind    ChangeKind
	Session *Session
}

// ChangeFunc receives auth changes
type ChangeFunc func(ctx context.Context, change Change)

// Manager issues and verifies session tokens and fans out auth changes
type Manager struct {
	secret []byte
	ttl    time.Duration

	mu        sync.RWMutex
	listeners []ChangeFunc
}

// NewManager creates a session manager signing with HS256
func NewManager(secret []byte, ttl time.Duration) *Manager {
	return &Manager{secret: secret, ttl: ttl}
}

// TTL returns the lifetime of issued tokens
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a token for user
func (m *Manager) Issue(user *models.UserProfile) (string, *Session, error) {
	now := time.Now()
	sess := &Session{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		ExpiresAt:   now.Add(m.ttl),
	}

	claims := Claims{
		Email:       sess.Email,
		DisplayName: sess.DisplayName,
		Role:        sess.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.ID,
			Subject:   sess.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, sess, nil
}

// Parse verifies a token and returns its session
func (m *Manager) Parse(token string) (*Session, error) {
	if token == "" {
		return nil, apperr.ErrAuthRequired
	}

	var claims Claims
	tkn, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid {
		if err == nil {
			err = errors.New("token invalid")
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrAuthRequired, err)
	}

	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: token missing subject", apperr.ErrAuthRequired)
	}

	role := claims.Role
	if role != models.RoleAdmin {
		role = models.RoleCustomer
	}

	sess := &Session{
		ID:          claims.ID,
		UserID:      claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
		Role:        role,
	}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	return sess, nil
}

// OnAuthChange registers fn to be called on every login and logout
func (m *Manager) OnAuthChange(fn ChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Notify delivers change to every registered listener in registration order
func (m *Manager) Notify(ctx context.Context, change Change) {
	m.mu.RLock()
	listeners := make([]ChangeFunc, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	for _, fn := range listeners {
		fn(ctx, change)
	}
}
