package query

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tracewell/discover-go/internal/platform/env"
)

type Config struct {
	URL     string
	Timeout time.Duration

	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string

	RedisURL string
	CacheTTL time.Duration
}

func ConfigFromEnv() (Config, error) {
	timeout, err := env.Duration("DISCOVER_QUERY_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	cacheTTL, err := env.Duration("DISCOVER_QUERY_CACHE_TTL", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	clientSecret, err := env.Secret("DISCOVER_QUERY_CLIENT_SECRET", "")
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		URL:          strings.TrimSpace(env.String("DISCOVER_QUERY_URL", "http://localhost:8081")),
		Timeout:      timeout,
		ClientID:     strings.TrimSpace(env.String("DISCOVER_QUERY_CLIENT_ID", "")),
		ClientSecret: clientSecret,
		TokenURL:     strings.TrimSpace(env.String("DISCOVER_QUERY_TOKEN_URL", "")),
		Scopes:       env.CSV("DISCOVER_QUERY_SCOPES", nil),
		RedisURL:     strings.TrimSpace(env.String("REDIS_URL", "")),
		CacheTTL:     cacheTTL,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("DISCOVER_QUERY_URL is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("DISCOVER_QUERY_URL must be an absolute URL")
	}
	if c.Timeout <= 0 {
		return errors.New("DISCOVER_QUERY_TIMEOUT must be positive")
	}
	if c.ClientID != "" && (c.ClientSecret == "" || c.TokenURL == "") {
		return errors.New("DISCOVER_QUERY_CLIENT_SECRET and DISCOVER_QUERY_TOKEN_URL are required with DISCOVER_QUERY_CLIENT_ID")
	}
	if c.RedisURL != "" && c.CacheTTL <= 0 {
		return errors.New("DISCOVER_QUERY_CACHE_TTL must be positive when REDIS_URL is set")
	}
	return nil
}
