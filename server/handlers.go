package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"lighthouse/auth"
	"lighthouse/herr"
	"lighthouse/session"
	"lighthouse/store"
)

const (
	welcomeText   = "Welcome To Light House Church"
	loginText     = "Kindly Login here!"
	signupText    = "Kindly signup here"
	dashboardText = "Welcome To Your Dashbaord"
	secretsText   = "Enter Your  Quiz Code Here!"
	quizText      = "Here are Your Quiz Questions"
	scoreText     = "Your Score Is..."
	summaryText   = "This Is Your Quiz Summary Sheet"
)

// AuthContext carries everything the handlers need. There is no package
// level state; each Server builds its own.
type AuthContext struct {
	Sessions *session.Manager
	Local    *auth.Local
	Google   *auth.Google
	Store    store.Store
}

func page(text string) herr.Wrap {
	return func(w http.ResponseWriter, r *http.Request) *herr.Error {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write([]byte(text)); err != nil {
			slog.Warn("error writing page", "path", r.URL.Path, "error", err)
		}
		return nil
	}
}

func invalid(err error, desc string) *herr.Error {
	var v *auth.ValidationError
	if !errors.As(err, &v) {
		return herr.BadRequest(err, desc)
	}
	fields := make([]herr.Field, len(v.Fields))
	for i, f := range v.Fields {
		fields[i] = herr.Field{Field: f.Field, Message: f.Message}
	}
	return herr.Invalid(err, desc, fields)
}

func parseNumber(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err == nil {
		return n, true
	}
	// JSON numbers like 5.0 still denote an integer
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

func (a *AuthContext) HandleSignup(w http.ResponseWriter, r *http.Request) *herr.Error {
	values, err := formValues(w, r)
	if err != nil {
		return herr.BadRequest(err, "Error reading signup body")
	}

	reg := auth.Registration{
		Name:     values["name"],
		Email:    values["email"],
		Password: values["password"],
		Church:   values["church"],
		Location: values["location"],
	}
	number, numberOK := parseNumber(values["number"])
	reg.Number = number

	verr := &auth.ValidationError{}
	if err := auth.ValidateRegistration(reg); err != nil {
		errors.As(err, &verr)
	}
	if !numberOK {
		verr.Fields = append(verr.Fields, auth.FieldError{Field: "number", Message: "Number should be numeric"})
	}
	if len(verr.Fields) > 0 {
		return invalid(verr, "Signup validation failed")
	}

	user, err := a.Local.Register(r.Context(), reg)
	if err != nil {
		var v *auth.ValidationError
		switch {
		case errors.As(err, &v):
			return invalid(err, "Signup validation failed")
		case errors.Is(err, store.ErrDuplicateUser):
			return herr.Conflict(err, "Email already registered")
		default:
			return herr.Internal(err, "Error registering user")
		}
	}

	if _, err := a.Sessions.CreateSession(w, r, user.ID); err != nil {
		return herr.Internal(err, "Error creating session after signup")
	}
	http.Redirect(w, r, "/secrets", http.StatusFound)
	return nil
}

func (a *AuthContext) HandleLogin(w http.ResponseWriter, r *http.Request) *herr.Error {
	values, err := formValues(w, r)
	if err != nil {
		return herr.BadRequest(err, "Error reading login body")
	}
	email, password := values["email"], values["password"]

	if err := auth.ValidateLogin(email, password); err != nil {
		return invalid(err, "Login validation failed")
	}

	// the identity is whatever Authenticate returns, never the raw input
	user, err := a.Local.Authenticate(r.Context(), email, password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		slog.Info("login rejected", "ip", r.RemoteAddr)
		http.Redirect(w, r, "/login", http.StatusFound)
		return nil
	}
	if err != nil {
		return herr.Internal(err, "Error authenticating user")
	}

	if _, err := a.Sessions.CreateSession(w, r, user.ID); err != nil {
		return herr.Internal(err, "Error creating session")
	}
	http.Redirect(w, r, "/secrets", http.StatusFound)
	return nil
}

func (a *AuthContext) HandleSubmit(w http.ResponseWriter, r *http.Request) *herr.Error {
	user, ok := session.User(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusFound)
		return nil
	}

	values, err := formValues(w, r)
	if err != nil {
		return herr.BadRequest(err, "Error reading submit body")
	}

	err = a.Store.UpdateSecret(r.Context(), user.ID, values["secret"])
	if errors.Is(err, store.ErrUserNotFound) {
		return herr.NotFound(err, "User disappeared before secret was saved")
	}
	if err != nil {
		return herr.Internal(err, "Error saving secret")
	}
	http.Redirect(w, r, "/quiz", http.StatusFound)
	return nil
}

func (a *AuthContext) HandleLogout(w http.ResponseWriter, r *http.Request) *herr.Error {
	if err := a.Sessions.Destroy(w, r); err != nil {
		return herr.Internal(err, "Error invalidating session")
	}
	http.Redirect(w, r, "/", http.StatusFound)
	return nil
}

func (a *AuthContext) HandleHealth(w http.ResponseWriter, r *http.Request) *herr.Error {
	status, code := "ok", http.StatusOK
	if err := a.Store.Ping(r.Context()); err != nil {
		slog.Error("store ping failed", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": status}); err != nil {
		slog.Warn("error encoding health response", "error", err)
	}
	return nil
}
