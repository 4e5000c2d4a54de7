package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/session"
	"storefront/internal/util"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password Register accepts
const MinPasswordLength = 6

var errBadCredentials = fmt.Errorf("%w: invalid email or password", apperr.ErrAuthRequired)

// UserStore is the user half of the store
type UserStore interface {
	CreateUser(ctx context.Context, user *models.UserProfile) error
	GetUserByID(ctx context.Context, id string) (*models.UserProfile, error)
	GetUserByEmail(ctx context.Context, email string) (*models.UserProfile, error)
	GetRole(ctx context.Context, userID string) (models.Role, error)
	GetLikedProducts(ctx context.Context, userID string) ([]string, error)
	ToggleLikedProduct(ctx context.Context, userID, productID string) (bool, error)
}

// TokenRevoker remembers logged-out tokens until they expire
type TokenRevoker interface {
	RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

// AuthEventPublisher receives login and logout events
type AuthEventPublisher interface {
	PublishAuthEvent(ctx context.Context, event *models.AuthEvent) error
}

// AuthService handles registration, login and the per-user session data
type AuthService struct {
	users    UserStore
	products ProductLookup
	revoker  TokenRevoker
	sessions *session.Manager
	logger   *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(users UserStore, products ProductLookup, revoker TokenRevoker, sessions *session.Manager) *AuthService {
	return &AuthService{
		users:    users,
		products: products,
		revoker:  revoker,
		sessions: sessions,
		logger:   util.GetLogger(),
	}
}

// AuthResult is returned by Register and Login
type AuthResult struct {
	Token   string              `json:"token"`
	Session *session.Session    `json:"session"`
	User    *models.UserProfile `json:"user"`
}

// Register creates a customer account and logs it in
func (s *AuthService) Register(ctx context.Context, email, password, displayName string) (*AuthResult, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Register")
	defer span.End()

	email = strings.ToLower(strings.TrimSpace(email))
	displayName = strings.TrimSpace(displayName)

	verr := apperr.NewValidationError()
	if _, err := mail.ParseAddress(email); err != nil {
		verr.Add("email", "invalid email address")
	}
	if len(password) < MinPasswordLength {
		verr.Add("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.UserProfile{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         models.RoleCustomer,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, err
		}
		return nil, unavailable(err)
	}

	s.logger.Info("User registered", zap.String("user_id", user.ID))
	return s.issue(ctx, user)
}

// Login checks credentials and issues a session token
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Login")
	defer span.End()

	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, errBadCredentials
		}
		return nil, unavailable(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, errBadCredentials
	}
	return s.issue(ctx, user)
}

func (s *AuthService) issue(ctx context.Context, user *models.UserProfile) (*AuthResult, error) {
	token, sess, err := s.sessions.Issue(user)
	if err != nil {
		return nil, err
	}
	s.sessions.Notify(ctx, session.Change{Kind: session.ChangeLogin, Session: sess})
	return &AuthResult{Token: token, Session: sess, User: user}, nil
}

// Logout revokes the session's token for the rest of its lifetime
func (s *AuthService) Logout(ctx context.Context, sess *session.Session) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	if err := s.revoker.RevokeToken(ctx, sess.ID, time.Until(sess.ExpiresAt)); err != nil {
		return unavailable(err)
	}
	s.sessions.Notify(ctx, session.Change{Kind: session.ChangeLogout, Session: sess})
	return nil
}

// Authenticate resolves a bearer token to a session. The role is re-read from
// the user record so a role change applies to tokens already issued.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*session.Session, error) {
	sess, err := s.sessions.Parse(token)
	if err != nil {
		return nil, err
	}

	revoked, err := s.revoker.IsTokenRevoked(ctx, sess.ID)
	if err != nil {
		return nil, unavailable(err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: session ended", apperr.ErrAuthRequired)
	}

	role, err := s.users.GetRole(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user", apperr.ErrAuthRequired)
		}
		return nil, unavailable(err)
	}
	sess.Role = role
	if role != models.RoleAdmin {
		sess.Role = models.RoleCustomer
	}
	return sess, nil
}

// CurrentUser returns the profile behind a session
func (s *AuthService) CurrentUser(ctx context.Context, sess *session.Session) (*models.UserProfile, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return nil, unavailable(err)
	}
	return user, nil
}

// LikedProducts returns the ids of the products the user has liked
func (s *AuthService) LikedProducts(ctx context.Context, sess *session.Session) ([]string, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	liked, err := s.users.GetLikedProducts(ctx, sess.UserID)
	if err != nil {
		return nil, unavailable(err)
	}
	if liked == nil {
		liked = []string{}
	}
	return liked, nil
}

// ToggleLike likes or unlikes a product and reports whether it is now liked
func (s *AuthService) ToggleLike(ctx context.Context, sess *session.Session, productID string) (bool, error) {
	if err := requireSession(sess); err != nil {
		return false, err
	}
	if _, err := s.products.GetProductByID(ctx, productID); err != nil {
		return false, unavailable(err)
	}
	liked, err := s.users.ToggleLikedProduct(ctx, sess.UserID, productID)
	if err != nil {
		return false, unavailable(err)
	}
	return liked, nil
}

// AuthEventListener counts auth changes and forwards them as events. publisher may be nil.
func AuthEventListener(publisher AuthEventPublisher) session.ChangeFunc {
	logger := util.GetLogger()
	return func(ctx context.Context, change session.Change) {
		util.AuthEventsTotal.WithLabelValues(string(change.Kind)).Inc()
		if publisher == nil || change.Session == nil {
			return
		}

		eventType := models.EventTypeUserLoggedIn
		if change.Kind == session.ChangeLogout {
			eventType = models.EventTypeUserLoggedOut
		}
		event := &models.AuthEvent{
			BaseEvent: models.NewBaseEvent(eventType),
			UserID:    change.Session.UserID,
			Email:     change.Session.Email,
		}
		if err := publisher.PublishAuthEvent(ctx, event); err != nil {
			logger.Error("Failed to publish auth event", zap.String("type", eventType), zap.Error(err))
		}
	}
}

// MemoryRevoker keeps revoked token ids in process memory
type MemoryRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

// NewMemoryRevoker creates an empty MemoryRevoker
func NewMemoryRevoker() *MemoryRevoker {
	return &MemoryRevoker{revoked: make(map[string]time.Time)}
}

// RevokeToken remembers tokenID for ttl
func (r *MemoryRevoker) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[tokenID] = time.Now().Add(ttl)
	return nil
}

// IsTokenRevoked reports whether tokenID is still revoked
func (r *MemoryRevoker) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	expires, ok := r.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if time.Now().After(expires) {
		delete(r.revoked, tokenID)
		return false, nil
	}
	return true, nil
}
