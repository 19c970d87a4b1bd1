package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/citizenintel/portal/internal/leadsapi"
	"github.com/citizenintel/portal/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTTL is the session lifetime when the API token carries no expiry.
const DefaultTTL = 8 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrTokenExpired       = errors.New("issued token is already expired")
	ErrExpired            = errors.New("session expired")
)

// Authenticator exchanges officer credentials for an API token.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*leadsapi.LoginResult, error)
}

// Manager creates, resolves and ends officer sessions.
type Manager struct {
	store  Store
	auth   Authenticator
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewManager returns a Manager persisting to store.
func NewManager(store Store, auth Authenticator, ttl time.Duration, logger *zap.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, auth: auth, ttl: ttl, logger: logger, now: time.Now}
}

// Login authenticates against the API and opens a session holding the
// returned token and profile.
func (m *Manager) Login(ctx context.Context, email, password string) (*model.Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	res, err := m.auth.Login(ctx, email, password)
	if err != nil {
		var se *leadsapi.StatusError
		if errors.As(err, &se) && se.Code < http.StatusInternalServerError {
			m.logger.Info("officer login rejected", zap.String("email", email), zap.Int("status", se.Code))
			if se.Message != "" {
				return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, se.Message)
			}
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	now := m.now().UTC()
	expires, err := m.expiry(res.Token, now)
	if err != nil {
		return nil, err
	}
	sess := &model.Session{
		ID:        uuid.NewString(),
		Token:     res.Token,
		User:      res.User,
		ExpiresAt: expires,
		CreatedAt: now,
	}
	if sess.User.Email == "" {
		sess.User.Email = email
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	m.logger.Info("officer logged in",
		zap.String("email", sess.User.Email),
		zap.String("role", sess.User.Role),
		zap.Time("expires_at", sess.ExpiresAt),
	)
	return sess, nil
}

// expiry takes the exp claim of a JWT token when there is one. The token is
// not verified here; only the API can do that.
func (m *Manager) expiry(token string, now time.Time) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return now.Add(m.ttl), nil
	}
	exp := claims.ExpiresAt.UTC()
	if !exp.After(now) {
		return time.Time{}, ErrTokenExpired
	}
	return exp, nil
}

// Get resolves a session id. Expired sessions are deleted and reported as
// ErrExpired.
func (m *Manager) Get(ctx context.Context, id string) (*model.Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Expired(m.now()) {
		_ = m.store.DeleteSession(ctx, id)
		return nil, ErrExpired
	}
	return sess, nil
}

// Logout ends a session.
func (m *Manager) Logout(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := m.store.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
