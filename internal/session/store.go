// Package session keeps officer sessions: the bearer token issued by the API
// at login and the profile that came with it.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/citizenintel/portal/internal/model"
)

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = errors.New("session not found")

// Store persists sessions.
type Store interface {
	CreateSession(ctx context.Context, sess *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
	// DeleteExpiredSessions removes sessions expired at now and reports how
	// many were removed.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	Close() error
}
