package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"lighthouse/cryptoutil"
	"lighthouse/herr"
	"lighthouse/session"
	"lighthouse/store"
)

const (
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

	pendingCookieName = "oauth_pending"
	pendingLifetime   = 10 * time.Minute
	stateKey          = "oauth_state"
	verifierKey       = "oauth_verifier"

	loginPath   = "/login"
	successPath = "/secrets"
)

var scopes = []string{"profile"}

type GoogleCfg struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Store        store.Store
	SessionMgr   *session.Manager
	IsProd       bool
	// Endpoint and UserInfoURL default to Google's.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
	HTTPClient  *http.Client
}

type Google struct {
	oauth       *oauth2.Config
	userInfoURL string
	client      *http.Client
	store       store.Store
	sessionMgr  *session.Manager
	pending     *scs.SessionManager
}

func NewGoogle(cfg GoogleCfg) *Google {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = google.Endpoint
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = googleUserInfoURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	pending := scs.New()
	pending.Store = memstore.New()
	pending.Lifetime = pendingLifetime
	pending.Cookie.Name = pendingCookieName
	pending.Cookie.HttpOnly = true
	pending.Cookie.SameSite = http.SameSiteLaxMode
	pending.Cookie.Secure = cfg.IsProd

	return &Google{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		userInfoURL: userInfoURL,
		client:      client,
		store:       cfg.Store,
		sessionMgr:  cfg.SessionMgr,
		pending:     pending,
	}
}

// LoadAndSave must wrap both Google handlers so the pending handshake state
// survives the round trip to the provider.
func (g *Google) LoadAndSave(next http.Handler) http.Handler {
	return g.pending.LoadAndSave(next)
}

func (g *Google) HandleLogin(w http.ResponseWriter, r *http.Request) *herr.Error {
	state, err := cryptoutil.CreateState()
	if err != nil {
		return herr.Internal(err, "Failed to create OAuth state")
	}
	verifier, err := cryptoutil.CreateCodeVerifier()
	if err != nil {
		return herr.Internal(err, "Failed to create code verifier")
	}

	if err := g.pending.RenewToken(r.Context()); err != nil {
		return herr.Internal(err, "Failed to renew pending session")
	}
	g.pending.Put(r.Context(), stateKey, state)
	g.pending.Put(r.Context(), verifierKey, verifier)

	authorizationURL := g.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", cryptoutil.CreateS256CodeChallenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
	http.Redirect(w, r, authorizationURL, http.StatusFound)
	return nil
}

func (g *Google) fail(w http.ResponseWriter, r *http.Request, reason string, args ...any) {
	record(methodGoogle, resultFailure)
	slog.Warn("google login failed: "+reason, args...)
	http.Redirect(w, r, loginPath, http.StatusFound)
}

func (g *Google) HandleCallBack(w http.ResponseWriter, r *http.Request) *herr.Error {
	ctx := r.Context()
	query := r.URL.Query()

	// single use whether or not the callback succeeds
	storedState := g.pending.PopString(ctx, stateKey)
	verifier := g.pending.PopString(ctx, verifierKey)

	if providerErr := query.Get("error"); providerErr != "" {
		g.fail(w, r, "provider returned error", "error", providerErr)
		return nil
	}

	code := query.Get("code")
	state := query.Get("state")
	if storedState == "" || storedState != state || code == "" {
		g.fail(w, r, "invalid OAuth state or missing code",
			"has_stored_state", storedState != "",
			"state_match", storedState == state,
			"has_code", code != "")
		return nil
	}

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, g.client)
	token, err := g.oauth.Exchange(exchangeCtx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		g.fail(w, r, "code exchange", "error", err)
		return nil
	}

	subject, err := g.fetchSubject(exchangeCtx, token)
	if err != nil {
		g.fail(w, r, "user info", "error", err)
		return nil
	}

	user, created, err := g.store.FindOrCreateByGoogleID(ctx, subject)
	if err != nil {
		record(methodGoogle, resultError)
		return herr.Internal(err, "Failed to find or create google user")
	}

	if _, err := g.sessionMgr.CreateSession(w, r, user.ID); err != nil {
		record(methodGoogle, resultError)
		return herr.Internal(err, "Failed to create session for google user")
	}

	record(methodGoogle, resultSuccess)
	slog.Info("google login", "user_id", user.ID, "created", created)
	http.Redirect(w, r, successPath, http.StatusFound)
	return nil
}

func (g *Google) fetchSubject(ctx context.Context, token *oauth2.Token) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return "", fmt.Errorf("error creating user info request: %w", err)
	}
	resp, err := g.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return "", fmt.Errorf("error executing user info request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("user info endpoint returned status %d", resp.StatusCode)
	}

	var userData struct {
		Sub  string `json:"sub"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userData); err != nil {
		return "", fmt.Errorf("error decoding user info response: %w", err)
	}
	if userData.Sub == "" {
		return "", fmt.Errorf("user info response has no subject")
	}
	return userData.Sub, nil
}
