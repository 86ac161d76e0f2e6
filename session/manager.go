package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"lighthouse/cryptoutil"
	"lighthouse/store"
)

const (
	CookieName    = "session"
	oneDayInHours = 24
)

var ErrEmptyToken = errors.New("empty session token")

type Manager struct {
	store                   store.Store
	sessionExpirationInDays int64
	refreshThresholdInDays  int64
	isProd                  bool
}

func NewManager(store store.Store, sessionExpirationInDays int64, refreshThresholdInDays int64, isProd bool) *Manager {
	return &Manager{
		store:                   store,
		sessionExpirationInDays: sessionExpirationInDays,
		refreshThresholdInDays:  refreshThresholdInDays,
		isProd:                  isProd,
	}
}

// CreateSession binds a fresh token to userID and sets it on the response.
// Any session the request already carried is dropped first so a pre-login
// token never becomes authenticated.
func (m *Manager) CreateSession(w http.ResponseWriter, r *http.Request, userID string) (*store.Session, error) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		if err := m.store.DeleteSessionBySessionID(r.Context(), cryptoutil.ID(cookie.Value)); err != nil {
			slog.Warn("Error deleting previous session", "error", err)
		}
	}

	token, err := cryptoutil.Random()
	if err != nil {
		return nil, err
	}

	session, err := m.store.CreateSession(r.Context(), cryptoutil.ID(token), userID, m.newExpiresAt())
	if err != nil {
		return nil, fmt.Errorf("error creating session: %w", err)
	}
	m.SetSessionCookie(w, token, session.ExpiresAt)
	return session, nil
}

func (m *Manager) newExpiresAt() int64 {
	return time.Now().Add(time.Duration(m.sessionExpirationInDays) * oneDayInHours * time.Hour).Unix()
}

// ValidateSessionToken returns nil without error for an expired session,
// which is deleted on the way out.
func (m *Manager) ValidateSessionToken(ctx context.Context, token string) (*Authenticated, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}

	session, user, err := m.store.SessionAndUserBySessionID(ctx, cryptoutil.ID(token))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expiresAt := time.Unix(session.ExpiresAt, 0)

	if now.After(expiresAt) {
		if err := m.store.DeleteSessionBySessionID(ctx, session.ID); err != nil {
			return nil, fmt.Errorf("error deleting expired session: %w", err)
		}
		return nil, nil
	}

	thresholdDuration := time.Duration(m.refreshThresholdInDays) * oneDayInHours * time.Hour
	thresholdTime := expiresAt.Add(-thresholdDuration)

	if now.After(thresholdTime) {
		newExpiresAt := m.newExpiresAt()
		if err := m.store.RefreshSession(ctx, session.ID, newExpiresAt); err != nil {
			return nil, fmt.Errorf("error refreshing session: %w", err)
		}
		session.ExpiresAt = newExpiresAt
	}

	return &Authenticated{Session: session, User: user}, nil
}

// Resolve maps the request cookie to an Identity. Every failure, including
// a session whose user no longer exists, resolves to Anonymous.
func (m *Manager) Resolve(r *http.Request) Identity {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return Anonymous{}
	}

	result, err := m.ValidateSessionToken(r.Context(), cookie.Value)
	if err != nil {
		if !errors.Is(err, store.ErrSessionNotFound) {
			slog.Error("error validating session token", "error", err)
		}
		return Anonymous{}
	}
	if result == nil || result.User == nil {
		return Anonymous{}
	}
	return *result
}

// Destroy removes the request's session, if any, and expires the cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	defer m.DeleteSessionCookie(w)

	if auth, ok := FromContext(r.Context()).(Authenticated); ok {
		return m.InvalidateSession(r.Context(), auth.Session.ID)
	}
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	return m.InvalidateSession(r.Context(), cryptoutil.ID(cookie.Value))
}

func (m *Manager) InvalidateSession(ctx context.Context, sessionID string) error {
	return m.store.DeleteSessionBySessionID(ctx, sessionID)
}

func (m *Manager) InvalidateUserSessions(ctx context.Context, userID string) error {
	return m.store.DeleteSessionByUserID(ctx, userID)
}

func (m *Manager) SetSessionCookie(w http.ResponseWriter, token string, expiresAt int64) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		Secure:   m.isProd,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(expiresAt, 0),
	})
}

func (m *Manager) DeleteSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		HttpOnly: true,
		Path:     "/",
		Secure:   m.isProd,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
