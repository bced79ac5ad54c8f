package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the account subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	Sessions(ctx context.Context) SessionStore
	Settings(ctx context.Context) SettingsStore
}

// UserStore manages user records.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Update(ctx context.Context, id string, upd UserUpdate, actorID string) (*User, error)
	Count(ctx context.Context) (int, error)
	// ListExpired returns available users whose release date is strictly
	// before now.
	ListExpired(ctx context.Context, now time.Time) ([]*User, error)
	// ListInactiveWithSessions returns unavailable users that still have at
	// least one active session.
	ListInactiveWithSessions(ctx context.Context) ([]*User, error)
	Deactivate(ctx context.Context, id, actorID string) error
}

// SessionStore manages session records. Closing is monotone: a closed session
// is never reopened and EndTime never moves backward.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Find(ctx context.Context, id string) (*Session, error)
	ListByUser(ctx context.Context, userID string, activeOnly bool) ([]*Session, error)
	// Close terminates one session. Returns false without writing when the
	// session was already closed.
	Close(ctx context.Context, id, reason string, now time.Time) (bool, error)
	// CloseAll terminates every active session of a user in one statement and
	// returns the number of sessions affected.
	CloseAll(ctx context.Context, userID, reason string, now time.Time) (int64, error)
	// DeleteClosedBefore removes closed sessions whose end time precedes
	// cutoff. Returns the number of rows deleted.
	DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SettingsStore manages per-user notification settings.
type SettingsStore interface {
	Put(ctx context.Context, s *NotificationSettings) error
	Find(ctx context.Context, userID string) (*NotificationSettings, error)
}
