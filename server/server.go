package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lighthouse/auth"
	"lighthouse/config"
	"lighthouse/herr"
	mw "lighthouse/middleware"
	"lighthouse/session"
	"lighthouse/store"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg      *config.Config
	auth     *AuthContext
	registry *prometheus.Registry
	handler  http.Handler
}

// Options lets tests point the Google bridge at a fake provider.
type Options struct {
	Google *auth.GoogleCfg
}

func New(cfg *config.Config, st store.Store, opts Options) *Server {
	sessionManager := session.NewManager(st, cfg.SessionExpirationDays, cfg.SessionRefreshDays, cfg.IsProd())

	googleCfg := auth.GoogleCfg{}
	if opts.Google != nil {
		googleCfg = *opts.Google
	}
	googleCfg.ClientID = orDefault(googleCfg.ClientID, cfg.ClientID)
	googleCfg.ClientSecret = orDefault(googleCfg.ClientSecret, cfg.ClientSecret)
	googleCfg.CallbackURL = orDefault(googleCfg.CallbackURL, cfg.GoogleCallback())
	googleCfg.Store = st
	googleCfg.SessionMgr = sessionManager
	googleCfg.IsProd = cfg.IsProd()

	s := &Server{
		cfg: cfg,
		auth: &AuthContext{
			Sessions: sessionManager,
			Local:    auth.NewLocal(st),
			Google:   auth.NewGoogle(googleCfg),
			Store:    st,
		},
		registry: prometheus.NewRegistry(),
	}
	s.handler = s.routes()
	return s
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

type route struct {
	pattern string
	handler http.Handler
}

func (s *Server) routeTable() []route {
	a := s.auth
	toLogin := mw.RequireAuth("/login")
	toSecrets := mw.RequireAuth("/secrets")

	return []route{
		{"GET /{$}", page(welcomeText)},
		{"GET /auth/google", a.Google.LoadAndSave(herr.Wrap(a.Google.HandleLogin))},
		{"GET /auth/google/secrets", a.Google.LoadAndSave(herr.Wrap(a.Google.HandleCallBack))},
		{"GET /login", page(loginText)},
		{"GET /signup", page(signupText)},
		{"GET /dashboard", toLogin(page(dashboardText))},
		{"GET /secrets", toLogin(page(secretsText))},
		{"GET /quiz", toSecrets(page(quizText))},
		{"GET /score", toLogin(page(scoreText))},
		{"GET /summary", toLogin(page(summaryText))},
		{"POST /signup", herr.Wrap(a.HandleSignup)},
		{"POST /login", herr.Wrap(a.HandleLogin)},
		{"POST /submit", toLogin(herr.Wrap(a.HandleSubmit))},
		{"POST /logout", herr.Wrap(a.HandleLogout)},
		{"GET /healthz", herr.Wrap(a.HandleHealth)},
		{"GET /metrics", promhttp.HandlerFor(
			prometheus.Gatherers{s.registry, prometheus.DefaultGatherer},
			promhttp.HandlerOpts{},
		)},
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	var paths []string
	for _, rt := range s.routeTable() {
		mux.Handle(rt.pattern, rt.handler)
		paths = append(paths, routePath(rt.pattern))
	}

	corsAllowed := make(map[string]struct{}, len(s.cfg.CORSOrigins))
	for _, origin := range s.cfg.CORSOrigins {
		corsAllowed[origin] = struct{}{}
	}

	return mw.Chain(
		mux,
		mw.RateLimit(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst, s.cfg.TrustProxy),
		mw.Logger(),
		mw.CORS(corsAllowed),
		mw.Metrics(s.registry, paths),
		mw.Identify(s.auth.Sessions),
	)
}

// routePath strips the method and the exact-match marker from a pattern.
func routePath(pattern string) string {
	if _, path, ok := strings.Cut(pattern, " "); ok {
		pattern = path
	}
	return strings.TrimSuffix(pattern, "{$}")
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server is listening", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("error serving http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	return nil
}
