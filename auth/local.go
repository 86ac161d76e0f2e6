package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"lighthouse/cryptoutil"
	"lighthouse/store"
)

const (
	minNameLength     = 3
	minPasswordLength = 6
	// bcrypt refuses longer input
	maxPasswordBytes = 72
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")

	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every field that failed, not just the first.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

type Registration struct {
	Name     string
	Email    string
	Password string
	Church   string
	Location string
	Number   int64
}

type Local struct {
	store store.Store
}

func NewLocal(store store.Store) *Local {
	return &Local{store: store}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(v *ValidationError, email string) {
	if !emailRegex.MatchString(NormalizeEmail(email)) {
		v.add("email", "Email should be validated")
	}
}

func validatePassword(v *ValidationError, password string) {
	if utf8.RuneCountInString(password) < minPasswordLength {
		v.add("password", fmt.Sprintf("Password should be at least %d characters", minPasswordLength))
	} else if len(password) > maxPasswordBytes {
		v.add("password", fmt.Sprintf("Password should be at most %d bytes", maxPasswordBytes))
	}
}

func ValidateRegistration(reg Registration) error {
	v := &ValidationError{}
	if utf8.RuneCountInString(strings.TrimSpace(reg.Name)) < minNameLength {
		v.add("name", fmt.Sprintf("Name should be at least %d characters", minNameLength))
	}
	validateEmail(v, reg.Email)
	validatePassword(v, reg.Password)
	return v.orNil()
}

func ValidateLogin(email, password string) error {
	v := &ValidationError{}
	validateEmail(v, email)
	validatePassword(v, password)
	return v.orNil()
}

// Register validates reg and persists a new user. Nothing is written when
// validation fails.
func (l *Local) Register(ctx context.Context, reg Registration) (*store.User, error) {
	if err := ValidateRegistration(reg); err != nil {
		record(methodSignup, resultFailure)
		return nil, err
	}

	hash, err := cryptoutil.HashPassword(reg.Password)
	if err != nil {
		record(methodSignup, resultError)
		return nil, err
	}

	user := &store.User{
		Name:         strings.TrimSpace(reg.Name),
		Number:       reg.Number,
		Church:       reg.Church,
		Location:     reg.Location,
		Email:        NormalizeEmail(reg.Email),
		PasswordHash: hash,
	}
	if _, err := l.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateUser) {
			record(methodSignup, resultFailure)
			return nil, err
		}
		record(methodSignup, resultError)
		return nil, fmt.Errorf("error registering user: %w", err)
	}

	record(methodSignup, resultSuccess)
	slog.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Authenticate returns ErrInvalidCredentials for both an unknown email and a
// wrong password. Federated accounts have no password and never match.
func (l *Local) Authenticate(ctx context.Context, email, password string) (*store.User, error) {
	user, err := l.store.UserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, store.ErrUserNotFound) {
		record(methodLocal, resultFailure)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		record(methodLocal, resultError)
		return nil, fmt.Errorf("error looking up user: %w", err)
	}
	if user.PasswordHash == "" {
		record(methodLocal, resultFailure)
		return nil, ErrInvalidCredentials
	}

	if err := cryptoutil.CheckPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, cryptoutil.ErrPasswordMismatch) {
			record(methodLocal, resultFailure)
			return nil, ErrInvalidCredentials
		}
		record(methodLocal, resultError)
		return nil, err
	}

	record(methodLocal, resultSuccess)
	return user, nil
}
