// Package config resolves server settings from defaults, an optional .env
// file, the environment and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DefaultEnvFile = ".env"
)

type Config struct {
	DatabaseURL  string
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Port         int
	Env          string
	LogLevel     slog.Level

	SessionExpirationDays int64
	SessionRefreshDays    int64

	RateLimitRPS   float64
	RateLimitBurst int
	// TrustProxy keys rate limiting by X-Forwarded-For. Enable only behind
	// a proxy that overwrites the header.
	TrustProxy bool

	CORSOrigins []string
}

func (c *Config) LoadDefaults() {
	c.DatabaseURL = "lighthouse.db"
	c.Port = 8080
	c.Env = EnvDevelopment
	c.LogLevel = slog.LevelInfo
	c.SessionExpirationDays = 30
	c.SessionRefreshDays = 15
	c.RateLimitRPS = 15
	c.RateLimitBurst = 50
}

func (c *Config) IsProd() bool {
	return c.Env == EnvProduction
}

// GoogleCallback is CallbackURL, or the local callback on Port when unset.
func (c *Config) GoogleCallback() string {
	if c.CallbackURL != "" {
		return c.CallbackURL
	}
	return fmt.Sprintf("http://localhost:%d/auth/google/secrets", c.Port)
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Load reads DefaultEnvFile when present, then the environment, then args.
func Load(args []string) (*Config, error) {
	return LoadFrom(DefaultEnvFile, args)
}

func LoadFrom(envFile string, args []string) (*Config, error) {
	var c Config
	c.LoadDefaults()

	fileVals, err := godotenv.Read(envFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading %s: %w", envFile, err)
	}

	lookup := func(keys ...string) (string, bool) {
		for _, key := range keys {
			if v, ok := os.LookupEnv(key); ok && v != "" {
				return v, true
			}
		}
		for _, key := range keys {
			if v, ok := fileVals[key]; ok && v != "" {
				return v, true
			}
		}
		return "", false
	}

	if err := c.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := parseFlags(&c, args); err != nil {
		return nil, err
	}

	c.CallbackURL = c.GoogleCallback()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

type lookupFunc func(keys ...string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	if v, ok := lookup("MONGO_URI", "DATABASE_URL"); ok {
		c.DatabaseURL = v
	}
	if v, ok := lookup("CLIENT_ID"); ok {
		c.ClientID = v
	}
	if v, ok := lookup("CLIENT_SECRET"); ok {
		c.ClientSecret = v
	}
	if v, ok := lookup("CALLBACK_URL"); ok {
		c.CallbackURL = v
	}
	if v, ok := lookup("NODE_ENV", "ENV"); ok {
		c.Env = v
	}
	if v, ok := lookup("CORS_ORIGINS"); ok {
		c.CORSOrigins = splitList(v)
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		if err := c.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("invalid LOG_LEVEL %q: %w", v, err)
		}
	}

	ints := []struct {
		key  string
		dest *int64
	}{
		{"SESSION_EXPIRATION_DAYS", &c.SessionExpirationDays},
		{"SESSION_REFRESH_DAYS", &c.SessionRefreshDays},
	}
	for _, i := range ints {
		v, ok := lookup(i.key)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", i.key, v, err)
		}
		*i.dest = n
	}

	if v, ok := lookup("PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Port = n
	}
	if v, ok := lookup("RATE_LIMIT_RPS"); ok {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_RPS %q: %w", v, err)
		}
		c.RateLimitRPS = n
	}
	if v, ok := lookup("RATE_LIMIT_BURST"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_BURST %q: %w", v, err)
		}
		c.RateLimitBurst = n
	}
	if v, ok := lookup("TRUST_PROXY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid TRUST_PROXY %q: %w", v, err)
		}
		c.TrustProxy = b
	}
	return nil
}

func (c *Config) validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("port %d out of range", c.Port)
	case c.SessionExpirationDays <= 0:
		return errors.New("session expiration must be positive")
	case c.SessionRefreshDays < 0 || c.SessionRefreshDays > c.SessionExpirationDays:
		return errors.New("session refresh threshold must be between 0 and the expiration")
	case c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0:
		return errors.New("rate limit must be positive")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
