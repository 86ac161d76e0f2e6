package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// storeSuite runs the behaviour every backend must share. newStore must
// return an empty store.
func storeSuite(t *testing.T, newStore func(t *testing.T) Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store Store)
	}{
		{"CreateUser", testCreateUser},
		{"UserLookups", testUserLookups},
		{"DeleteUser", testDeleteUser},
		{"FindOrCreateByGoogleID", testFindOrCreateByGoogleID},
		{"ConcurrentFindOrCreate", testConcurrentFindOrCreate},
		{"UpdateSecret", testUpdateSecret},
		{"ConcurrentAccess", testConcurrentAccess},
		{"CreateSession", testCreateSession},
		{"DeleteSessionByUserID", testDeleteSessionByUserID},
		{"DeleteSessionBySessionID", testDeleteSessionBySessionID},
		{"SessionAndUserBySessionID", testSessionAndUserBySessionID},
		{"SessionOfDeletedUser", testSessionOfDeletedUser},
		{"RefreshSession", testRefreshSession},
		{"ConcurrentSessionOperations", testConcurrentSessionOperations},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func newTestUser() *User {
	return &User{
		Name:         "Ada Lovelace",
		Number:       5551234,
		Church:       "Light House",
		Location:     "London",
		Email:        "ada@example.com",
		PasswordHash: "$2a$10$hash",
	}
}

func createTestUser(t *testing.T, store Store) string {
	t.Helper()
	userID, err := store.CreateUser(context.Background(), newTestUser())
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return userID
}

func testCreateUser(t *testing.T, store Store) {
	ctx := context.Background()
	testUser := newTestUser()

	id, err := store.CreateUser(ctx, testUser)
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	if id == "" {
		t.Error("Expected non-empty user ID")
	}
	if testUser.ID != id {
		t.Errorf("Expected user ID to be set on the record, got %q", testUser.ID)
	}

	_, err = store.CreateUser(ctx, newTestUser())
	if !errors.Is(err, ErrDuplicateUser) {
		t.Errorf("Expected ErrDuplicateUser for duplicate email, got %v", err)
	}

	// records without an email do not collide with each other
	for i := 0; i < 2; i++ {
		if _, err := store.CreateUser(ctx, &User{GoogleID: fmt.Sprintf("g-%d", i)}); err != nil {
			t.Fatalf("Failed to create email-less user: %v", err)
		}
	}
	_, err = store.CreateUser(ctx, &User{GoogleID: "g-0"})
	if !errors.Is(err, ErrDuplicateUser) {
		t.Errorf("Expected ErrDuplicateUser for duplicate google id, got %v", err)
	}
}

func testUserLookups(t *testing.T, store Store) {
	ctx := context.Background()
	testUser := newTestUser()
	testUser.GoogleID = "123456789"
	id, err := store.CreateUser(ctx, testUser)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	lookups := map[string]func() (*User, error){
		"id":        func() (*User, error) { return store.UserByID(ctx, id) },
		"email":     func() (*User, error) { return store.UserByEmail(ctx, testUser.Email) },
		"google id": func() (*User, error) { return store.UserByGoogleID(ctx, testUser.GoogleID) },
	}
	for name, lookup := range lookups {
		user, err := lookup()
		if err != nil {
			t.Fatalf("Failed to get user by %s: %v", name, err)
		}
		if user.ID != id {
			t.Errorf("Expected user ID %s, got %s", id, user.ID)
		}
		if user.Name != testUser.Name {
			t.Errorf("Expected Name %s, got %s", testUser.Name, user.Name)
		}
		if user.Number != testUser.Number {
			t.Errorf("Expected Number %d, got %d", testUser.Number, user.Number)
		}
		if user.Church != testUser.Church {
			t.Errorf("Expected Church %s, got %s", testUser.Church, user.Church)
		}
		if user.PasswordHash != testUser.PasswordHash {
			t.Errorf("Expected PasswordHash %s, got %s", testUser.PasswordHash, user.PasswordHash)
		}
	}

	if _, err := store.UserByID(ctx, "not real"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
	if _, err := store.UserByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
	if _, err := store.UserByGoogleID(ctx, "not real"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}

func testDeleteUser(t *testing.T, store Store) {
	ctx := context.Background()
	id := createTestUser(t, store)

	if err := store.DeleteUser(ctx, id); err != nil {
		t.Fatalf("Failed to delete user: %v", err)
	}
	if _, err := store.UserByID(ctx, id); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound for deleted user, got %v", err)
	}
	if err := store.DeleteUser(ctx, "4444"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound when deleting non-existent user, got %v", err)
	}
}

func testFindOrCreateByGoogleID(t *testing.T, store Store) {
	ctx := context.Background()

	user, created, err := store.FindOrCreateByGoogleID(ctx, "google-1")
	if err != nil {
		t.Fatalf("Failed to find or create user: %v", err)
	}
	if !created {
		t.Error("Expected first call to create the user")
	}
	if user.GoogleID != "google-1" || user.Email != "" || user.Name != "" {
		t.Errorf("Expected a record with only the google id, got %+v", user)
	}

	again, created, err := store.FindOrCreateByGoogleID(ctx, "google-1")
	if err != nil {
		t.Fatalf("Failed to find existing user: %v", err)
	}
	if created {
		t.Error("Expected second call to reuse the user")
	}
	if again.ID != user.ID {
		t.Errorf("Expected user ID %s, got %s", user.ID, again.ID)
	}

	if _, _, err := store.FindOrCreateByGoogleID(ctx, ""); err == nil {
		t.Error("Expected error for empty google id")
	}
}

func testConcurrentFindOrCreate(t *testing.T, store Store) {
	ctx := context.Background()
	const workers = 10

	ids := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user, _, err := store.FindOrCreateByGoogleID(ctx, "same-subject")
			if err != nil {
				t.Errorf("Failed to find or create in goroutine: %v", err)
				return
			}
			ids <- user.ID
		}()
	}
	wg.Wait()
	close(ids)

	var first string
	for id := range ids {
		if first == "" {
			first = id
		}
		if id != first {
			t.Errorf("Expected every caller to get user %s, got %s", first, id)
		}
	}
}

func testUpdateSecret(t *testing.T, store Store) {
	ctx := context.Background()
	id := createTestUser(t, store)

	for _, secret := range []string{"QUIZ-1", "QUIZ-2"} {
		if err := store.UpdateSecret(ctx, id, secret); err != nil {
			t.Fatalf("Failed to update secret: %v", err)
		}
		user, err := store.UserByID(ctx, id)
		if err != nil {
			t.Fatalf("Failed to get user: %v", err)
		}
		if user.Secret != secret {
			t.Errorf("Expected secret %s, got %s", secret, user.Secret)
		}
	}

	if err := store.UpdateSecret(ctx, "missing", "x"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}

func testConcurrentAccess(t *testing.T, store Store) {
	ctx := context.Background()
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(i int) {
			testUser := &User{
				Email: fmt.Sprintf("user%d@example.com", i),
				Name:  fmt.Sprintf("Test User %d", i),
			}
			_, err := store.CreateUser(ctx, testUser)
			if err != nil {
				t.Errorf("Failed to create user in goroutine: %v", err)
			}
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}
}

func testCreateSession(t *testing.T, store Store) {
	ctx := context.Background()
	userID := createTestUser(t, store)

	sessionID := "12345"
	expiresAt := time.Now().Add(24 * time.Hour).Unix()
	session, err := store.CreateSession(ctx, sessionID, userID, expiresAt)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if session.ID != sessionID {
		t.Errorf("Expected session ID %s, got %s", sessionID, session.ID)
	}
	if session.UserID != userID {
		t.Errorf("Expected user ID %s, got %s", userID, session.UserID)
	}
	if session.ExpiresAt != expiresAt {
		t.Errorf("Expected expires at %d, got %d", expiresAt, session.ExpiresAt)
	}

	_, err = store.CreateSession(ctx, "123453", "9999", expiresAt)
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound when creating session for non-existent user, got %v", err)
	}

	_, err = store.CreateSession(ctx, sessionID, userID, expiresAt)
	if err == nil {
		t.Error("Expected error when creating duplicate session, got nil")
	}
}

func testDeleteSessionByUserID(t *testing.T, store Store) {
	ctx := context.Background()
	userID := createTestUser(t, store)

	sessionID := "1234"
	expiresAt := time.Now().Add(24 * time.Hour).Unix()
	if _, err := store.CreateSession(ctx, sessionID, userID, expiresAt); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if err := store.DeleteSessionByUserID(ctx, userID); err != nil {
		t.Fatalf("Failed to delete session by user ID: %v", err)
	}

	if _, _, err := store.SessionAndUserBySessionID(ctx, sessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound when getting deleted session, got %v", err)
	}

	if err := store.DeleteSessionByUserID(ctx, "9999"); err != nil {
		t.Error("Expected no error when deleting sessions for non-existent user")
	}
}

func testDeleteSessionBySessionID(t *testing.T, store Store) {
	ctx := context.Background()
	userID := createTestUser(t, store)

	sessionID := "12345"
	expiresAt := time.Now().Add(24 * time.Hour).Unix()
	if _, err := store.CreateSession(ctx, sessionID, userID, expiresAt); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	if err := store.DeleteSessionBySessionID(ctx, sessionID); err != nil {
		t.Fatalf("Failed to delete session by session ID: %v", err)
	}

	if _, _, err := store.SessionAndUserBySessionID(ctx, sessionID); err == nil {
		t.Error("Expected error when getting deleted session, got nil")
	}

	if err := store.DeleteSessionBySessionID(ctx, "000000000"); err != nil {
		t.Error("Expected no error when deleting non-existent session")
	}
}

func testSessionAndUserBySessionID(t *testing.T, store Store) {
	ctx := context.Background()
	testUser := newTestUser()
	userID, err := store.CreateUser(ctx, testUser)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	sessionID := "12345"
	expiresAt := time.Now().Add(24 * time.Hour).Unix()
	if _, err := store.CreateSession(ctx, sessionID, userID, expiresAt); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	session, user, err := store.SessionAndUserBySessionID(ctx, sessionID)
	if err != nil {
		t.Fatalf("Failed to get session and user: %v", err)
	}

	if session.ID != sessionID {
		t.Errorf("Expected session ID %s, got %s", sessionID, session.ID)
	}
	if session.UserID != userID {
		t.Errorf("Expected user ID %s, got %s", userID, session.UserID)
	}
	if session.ExpiresAt != expiresAt {
		t.Errorf("Expected expires at %d, got %d", expiresAt, session.ExpiresAt)
	}
	if user.ID != userID {
		t.Errorf("Expected user ID %s, got %s", userID, user.ID)
	}
	if user.Email != testUser.Email {
		t.Errorf("Expected Email %s, got %s", testUser.Email, user.Email)
	}

	if _, _, err := store.SessionAndUserBySessionID(ctx, "000000"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound for non-existent session, got %v", err)
	}
}

func testSessionOfDeletedUser(t *testing.T, store Store) {
	ctx := context.Background()
	userID := createTestUser(t, store)

	expiresAt := time.Now().Add(24 * time.Hour).Unix()
	if _, err := store.CreateSession(ctx, "orphan", userID, expiresAt); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if err := store.DeleteUser(ctx, userID); err != nil {
		t.Fatalf("Failed to delete user: %v", err)
	}
	if _, _, err := store.SessionAndUserBySessionID(ctx, "orphan"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound once the user is gone, got %v", err)
	}
}

func testRefreshSession(t *testing.T, store Store) {
	ctx := context.Background()
	userID := createTestUser(t, store)

	sessionID := "12345"
	expiresAt := time.Now().Add(24 * time.Hour).Unix()
	if _, err := store.CreateSession(ctx, sessionID, userID, expiresAt); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	newExpiresAt := time.Now().Add(48 * time.Hour).Unix()
	if err := store.RefreshSession(ctx, sessionID, newExpiresAt); err != nil {
		t.Fatalf("Failed to refresh session: %v", err)
	}

	session, _, err := store.SessionAndUserBySessionID(ctx, sessionID)
	if err != nil {
		t.Fatalf("Failed to get refreshed session: %v", err)
	}
	if session.ExpiresAt != newExpiresAt {
		t.Errorf("Expected expires at %d, got %d", newExpiresAt, session.ExpiresAt)
	}

	if err := store.RefreshSession(ctx, "000000000", newExpiresAt); err != nil {
		t.Error("Expected no error when refreshing non-existent session")
	}
}

func testConcurrentSessionOperations(t *testing.T, store Store) {
	ctx := context.Background()
	userID := createTestUser(t, store)

	done := make(chan bool)
	sessionCount := 10

	baseTime := time.Now()
	for i := 0; i < sessionCount; i++ {
		go func(i int) {
			sessionID := fmt.Sprintf("sessionID-%d", i)
			expiresAt := baseTime.Add(time.Duration(i) * time.Hour).Unix()
			_, err := store.CreateSession(ctx, sessionID, userID, expiresAt)
			if err != nil {
				t.Errorf("Failed to create session in goroutine: %v", err)
			}

			newExpiresAt := baseTime.Add(time.Duration(i+24) * time.Hour).Unix()
			err = store.RefreshSession(ctx, sessionID, newExpiresAt)
			if err != nil {
				t.Errorf("Failed to refresh session in goroutine: %v", err)
			}

			done <- true
		}(i)
	}

	for i := 0; i < sessionCount; i++ {
		<-done
	}
}
