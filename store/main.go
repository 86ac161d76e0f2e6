package store

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrDuplicateUser   = errors.New("user already exists")
	ErrSessionNotFound = errors.New("session not found")
)

type Store interface {
	CreateUser(ctx context.Context, user *User) (string, error)
	UserByID(ctx context.Context, userID string) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByGoogleID(ctx context.Context, googleID string) (*User, error)
	// FindOrCreateByGoogleID returns the user linked to googleID, creating a
	// record with only that identifier when none exists. The bool reports
	// whether a record was created by this call.
	FindOrCreateByGoogleID(ctx context.Context, googleID string) (*User, bool, error)
	UpdateSecret(ctx context.Context, userID string, secret string) error
	DeleteUser(ctx context.Context, userID string) error
	CreateSession(ctx context.Context, sessionID string, userID string, expiresAt int64) (*Session, error)
	DeleteSessionByUserID(ctx context.Context, userID string) error
	DeleteSessionBySessionID(ctx context.Context, sessionID string) error
	SessionAndUserBySessionID(ctx context.Context, sessionID string) (*Session, *User, error)
	RefreshSession(ctx context.Context, sessionID string, newExpiresAt int64) error
	Ping(ctx context.Context) error
	Close() error
}

// New picks the backend from the connection string: mongodb:// and
// mongodb+srv:// URIs open a MongoDB store, anything else is a SQLite path.
func New(ctx context.Context, dsn string) (Store, error) {
	if isMongoURI(dsn) {
		return newMongoStore(ctx, dsn)
	}
	return newSQLiteStore(dsn)
}

func isMongoURI(dsn string) bool {
	return strings.HasPrefix(dsn, "mongodb://") || strings.HasPrefix(dsn, "mongodb+srv://")
}

func newUserID() string {
	return uuid.NewString()
}
