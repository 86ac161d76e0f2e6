package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/mattn/go-sqlite3"
)

type sqliteStore struct {
	db    *sql.DB
	mutex sync.Mutex
}

func newSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error enabling foreign keys: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	store := &sqliteStore{
		db: db,
	}

	if err := store.initializeTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing tables: %w", err)
	}

	return store, nil
}

func (s *sqliteStore) initializeTables() error {
	_, err := s.db.Exec(`
        CREATE TABLE IF NOT EXISTS user (
            id TEXT NOT NULL PRIMARY KEY,
            name TEXT NOT NULL DEFAULT '',
            number INTEGER,
            church TEXT NOT NULL DEFAULT '',
            location TEXT NOT NULL DEFAULT '',
            email TEXT UNIQUE,
            password_hash TEXT NOT NULL DEFAULT '',
            google_id TEXT UNIQUE,
            secret TEXT NOT NULL DEFAULT ''
        )
    `)
	if err != nil {
		return fmt.Errorf("error creating user table: %w", err)
	}

	_, err = s.db.Exec(`
        CREATE TABLE IF NOT EXISTS session (
            id TEXT NOT NULL PRIMARY KEY,
            user_id TEXT NOT NULL REFERENCES user(id) ON DELETE CASCADE,
            expires_at INTEGER NOT NULL
        )
    `)
	if err != nil {
		return fmt.Errorf("error creating session table: %w", err)
	}

	_, err = s.db.Exec(`
        CREATE INDEX IF NOT EXISTS session_user_id_index ON session(user_id)
    `)
	if err != nil {
		return fmt.Errorf("error creating session user_id index: %w", err)
	}

	return nil
}

const userColumns = "user.id, user.name, user.number, user.church, user.location, user.email, user.password_hash, user.google_id, user.secret"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, extra ...any) (*User, error) {
	var (
		user     User
		number   sql.NullInt64
		email    sql.NullString
		googleID sql.NullString
	)
	dest := append(extra,
		&user.ID, &user.Name, &number, &user.Church, &user.Location,
		&email, &user.PasswordHash, &googleID, &user.Secret,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	user.Number = number.Int64
	user.Email = email.String
	user.GoogleID = googleID.String
	return &user, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func (s *sqliteStore) CreateUser(ctx context.Context, user *User) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	query := `
        INSERT INTO user (id, name, number, church, location, email, password_hash, google_id, secret)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	userID := newUserID()
	_, err := s.db.ExecContext(ctx, query,
		userID, user.Name, nullInt(user.Number), user.Church, user.Location,
		nullString(user.Email), user.PasswordHash, nullString(user.GoogleID), user.Secret,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrDuplicateUser
		}
		return "", fmt.Errorf("error creating user: %w", err)
	}
	user.ID = userID
	return userID, nil
}

func (s *sqliteStore) userBy(ctx context.Context, column string, value string) (*User, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.userByLocked(ctx, column, value)
}

func (s *sqliteStore) userByLocked(ctx context.Context, column string, value string) (*User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM user WHERE "+column+" = ?", value)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}
	return user, nil
}

func (s *sqliteStore) UserByID(ctx context.Context, userID string) (*User, error) {
	return s.userBy(ctx, "id", userID)
}

func (s *sqliteStore) UserByEmail(ctx context.Context, email string) (*User, error) {
	return s.userBy(ctx, "email", email)
}

func (s *sqliteStore) UserByGoogleID(ctx context.Context, googleID string) (*User, error) {
	return s.userBy(ctx, "google_id", googleID)
}

func (s *sqliteStore) FindOrCreateByGoogleID(ctx context.Context, googleID string) (*User, bool, error) {
	if googleID == "" {
		return nil, false, errors.New("empty google id")
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	result, err := s.db.ExecContext(ctx, `
        INSERT INTO user (id, google_id) VALUES (?, ?)
        ON CONFLICT(google_id) DO NOTHING
    `, newUserID(), googleID)
	if err != nil {
		return nil, false, fmt.Errorf("error upserting user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("error getting rows affected: %w", err)
	}
	user, err := s.userByLocked(ctx, "google_id", googleID)
	if err != nil {
		return nil, false, err
	}
	return user, rowsAffected == 1, nil
}

func (s *sqliteStore) UpdateSecret(ctx context.Context, userID string, secret string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	result, err := s.db.ExecContext(ctx, "UPDATE user SET secret = ? WHERE id = ?", secret, userID)
	if err != nil {
		return fmt.Errorf("error updating secret: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *sqliteStore) DeleteUser(ctx context.Context, userID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	result, err := s.db.ExecContext(ctx, "DELETE FROM user WHERE id = ?", userID)
	if err != nil {
		return fmt.Errorf("error deleting user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (s *sqliteStore) CreateSession(ctx context.Context, sessionID string, userID string, expiresAt int64) (*Session, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM user WHERE id = ?)", userID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("error checking user existence: %w", err)
	}
	if !exists {
		return nil, ErrUserNotFound
	}

	query := "INSERT INTO session (id, user_id, expires_at) VALUES (?, ?, ?)"
	_, err = tx.ExecContext(ctx, query, sessionID, userID, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing transaction: %w", err)
	}

	session := &Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}
	return session, nil
}

func (s *sqliteStore) DeleteSessionByUserID(ctx context.Context, userID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM session WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("error deleting session by userID: %w", err)
	}
	return nil
}

func (s *sqliteStore) DeleteSessionBySessionID(ctx context.Context, sessionID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM session WHERE id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("error deleting session by sessionID: %w", err)
	}
	return nil
}

func (s *sqliteStore) SessionAndUserBySessionID(ctx context.Context, sessionID string) (*Session, *User, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	session := &Session{}

	query := `
        SELECT session.id, session.user_id, session.expires_at, ` + userColumns + `
        FROM session
        INNER JOIN user ON session.user_id = user.id
        WHERE session.id = ?
    `
	user, err := scanUser(s.db.QueryRowContext(ctx, query, sessionID),
		&session.ID, &session.UserID, &session.ExpiresAt)

	if err == sql.ErrNoRows {
		return nil, nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("error getting session and user: %w", err)
	}

	return session, user, nil
}

func (s *sqliteStore) RefreshSession(ctx context.Context, sessionID string, newExpiresAt int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	query := "UPDATE session SET expires_at = ? WHERE id = ?"
	_, err := s.db.ExecContext(ctx, query, newExpiresAt, sessionID)
	if err != nil {
		return fmt.Errorf("error updating session: %w", err)
	}
	return nil
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
