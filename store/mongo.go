package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const (
	defaultMongoDatabase = "lighthouse"
	usersCollection      = "users"
	sessionsCollection   = "sessions"
	mongoConnectTimeout  = 10 * time.Second
)

type mongoStore struct {
	client   *mongo.Client
	users    *mongo.Collection
	sessions *mongo.Collection
}

func newMongoStore(ctx context.Context, uri string) (Store, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("error parsing mongo uri: %w", err)
	}
	dbName := cs.Database
	if dbName == "" {
		dbName = defaultMongoDatabase
	}

	ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("error pinging mongo: %w", err)
	}

	db := client.Database(dbName)
	store := &mongoStore{
		client:   client,
		users:    db.Collection(usersCollection),
		sessions: db.Collection(sessionsCollection),
	}
	if err := store.initializeIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("error initializing indexes: %w", err)
	}
	return store, nil
}

func (s *mongoStore) initializeIndexes(ctx context.Context) error {
	// empty identifiers are omitted from the document, so uniqueness only
	// applies to records that actually carry the field
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"email": bson.M{"$type": "string"}}),
		},
		{
			Keys: bson.D{{Key: "google_id", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"google_id": bson.M{"$type": "string"}}),
		},
	})
	if err != nil {
		return fmt.Errorf("error creating user indexes: %w", err)
	}
	_, err = s.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("error creating session index: %w", err)
	}
	return nil
}

func (s *mongoStore) CreateUser(ctx context.Context, user *User) (string, error) {
	doc := *user
	doc.ID = newUserID()
	if _, err := s.users.InsertOne(ctx, &doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrDuplicateUser
		}
		return "", fmt.Errorf("error creating user: %w", err)
	}
	user.ID = doc.ID
	return doc.ID, nil
}

func (s *mongoStore) userBy(ctx context.Context, filter bson.M) (*User, error) {
	var user User
	err := s.users.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}
	return &user, nil
}

func (s *mongoStore) UserByID(ctx context.Context, userID string) (*User, error) {
	return s.userBy(ctx, bson.M{"_id": userID})
}

func (s *mongoStore) UserByEmail(ctx context.Context, email string) (*User, error) {
	return s.userBy(ctx, bson.M{"email": email})
}

func (s *mongoStore) UserByGoogleID(ctx context.Context, googleID string) (*User, error) {
	return s.userBy(ctx, bson.M{"google_id": googleID})
}

func (s *mongoStore) FindOrCreateByGoogleID(ctx context.Context, googleID string) (*User, bool, error) {
	if googleID == "" {
		return nil, false, errors.New("empty google id")
	}
	newID := newUserID()
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	update := bson.M{"$setOnInsert": bson.M{"_id": newID}}

	var user User
	err := s.users.FindOneAndUpdate(ctx, bson.M{"google_id": googleID}, update, opts).Decode(&user)
	if mongo.IsDuplicateKeyError(err) {
		// a concurrent upsert won the race on the unique index
		existing, err := s.UserByGoogleID(ctx, googleID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("error upserting user: %w", err)
	}
	return &user, user.ID == newID, nil
}

func (s *mongoStore) UpdateSecret(ctx context.Context, userID string, secret string) error {
	result, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{"secret": secret}})
	if err != nil {
		return fmt.Errorf("error updating secret: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *mongoStore) DeleteUser(ctx context.Context, userID string) error {
	result, err := s.users.DeleteOne(ctx, bson.M{"_id": userID})
	if err != nil {
		return fmt.Errorf("error deleting user: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrUserNotFound
	}
	if _, err := s.sessions.DeleteMany(ctx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("error deleting user sessions: %w", err)
	}
	return nil
}

func (s *mongoStore) CreateSession(ctx context.Context, sessionID string, userID string, expiresAt int64) (*Session, error) {
	count, err := s.users.CountDocuments(ctx, bson.M{"_id": userID}, options.Count().SetLimit(1))
	if err != nil {
		return nil, fmt.Errorf("error checking user existence: %w", err)
	}
	if count == 0 {
		return nil, ErrUserNotFound
	}

	session := &Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}
	if _, err := s.sessions.InsertOne(ctx, session); err != nil {
		return nil, fmt.Errorf("error creating session: %w", err)
	}
	return session, nil
}

func (s *mongoStore) DeleteSessionByUserID(ctx context.Context, userID string) error {
	if _, err := s.sessions.DeleteMany(ctx, bson.M{"user_id": userID}); err != nil {
		return fmt.Errorf("error deleting session by userID: %w", err)
	}
	return nil
}

func (s *mongoStore) DeleteSessionBySessionID(ctx context.Context, sessionID string) error {
	if _, err := s.sessions.DeleteOne(ctx, bson.M{"_id": sessionID}); err != nil {
		return fmt.Errorf("error deleting session by sessionID: %w", err)
	}
	return nil
}

func (s *mongoStore) SessionAndUserBySessionID(ctx context.Context, sessionID string) (*Session, *User, error) {
	var session Session
	err := s.sessions.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("error getting session: %w", err)
	}

	user, err := s.UserByID(ctx, session.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return &session, user, nil
}

func (s *mongoStore) RefreshSession(ctx context.Context, sessionID string, newExpiresAt int64) error {
	_, err := s.sessions.UpdateOne(ctx, bson.M{"_id": sessionID}, bson.M{"$set": bson.M{"expires_at": newExpiresAt}})
	if err != nil {
		return fmt.Errorf("error updating session: %w", err)
	}
	return nil
}

func (s *mongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *mongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
