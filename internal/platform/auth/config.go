package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tracewell/discover-go/internal/platform/env"
)

type Mode string

const (
	ModeOIDC    Mode = "oidc"
	ModeGateway Mode = "gateway"
	ModeDev     Mode = "dev"
)

var ErrUnauthenticated = errors.New("unauthenticated")

type Config struct {
	Mode Mode

	// ScopesClaim is read first; RolesClaim is expanded only when it is absent.
	ScopesClaim string
	RolesClaim  string
	EmailClaim  string

	OIDCIssuerURL string
	OIDCClientID  string

	InternalAuthSecret  string
	InternalAuthMaxSkew time.Duration

	DevSubject string
	DevEmail   string
	DevScopes  []string
}

func ConfigFromEnv() (Config, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(env.String("AUTH_MODE", string(ModeGateway)))))
	switch mode {
	case ModeOIDC, ModeGateway, ModeDev:
	default:
		return Config{}, fmt.Errorf("AUTH_MODE must be one of: oidc, gateway, dev (got %q)", mode)
	}

	maxSkew, err := env.Duration("DISCOVER_INTERNAL_AUTH_MAX_SKEW", 5*time.Minute)
	if err != nil {
		return Config{}, err
	}
	secret, err := env.Secret("DISCOVER_INTERNAL_AUTH_SECRET", "")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Mode:                mode,
		ScopesClaim:         env.String("AUTH_SCOPES_CLAIM", "scope"),
		RolesClaim:          env.String("AUTH_ROLES_CLAIM", "roles"),
		EmailClaim:          env.String("AUTH_EMAIL_CLAIM", "email"),
		OIDCIssuerURL:       env.String("OIDC_ISSUER_URL", ""),
		OIDCClientID:        env.String("OIDC_CLIENT_ID", ""),
		InternalAuthSecret:  secret,
		InternalAuthMaxSkew: maxSkew,
		DevSubject:          env.String("DEV_AUTH_SUBJECT", "dev-user"),
		DevEmail:            env.String("DEV_AUTH_EMAIL", "dev-user@example.local"),
		DevScopes:           splitList(env.String("DEV_AUTH_SCOPES", "org:read org:write org:admin")),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ScopesClaim) == "" && strings.TrimSpace(c.RolesClaim) == "" {
		return errors.New("one of AUTH_SCOPES_CLAIM or AUTH_ROLES_CLAIM is required")
	}
	if strings.TrimSpace(c.EmailClaim) == "" {
		return errors.New("AUTH_EMAIL_CLAIM is required")
	}

	switch c.Mode {
	case ModeOIDC:
		if strings.TrimSpace(c.OIDCIssuerURL) == "" || strings.TrimSpace(c.OIDCClientID) == "" {
			return errors.New("OIDC_ISSUER_URL and OIDC_CLIENT_ID are required when AUTH_MODE=oidc")
		}
	case ModeGateway:
		if strings.TrimSpace(c.InternalAuthSecret) == "" {
			return errors.New("DISCOVER_INTERNAL_AUTH_SECRET is required when AUTH_MODE=gateway")
		}
		if c.InternalAuthMaxSkew < 0 {
			return errors.New("DISCOVER_INTERNAL_AUTH_MAX_SKEW must be >= 0")
		}
	case ModeDev:
		if strings.TrimSpace(c.DevSubject) == "" {
			return errors.New("DEV_AUTH_SUBJECT is required when AUTH_MODE=dev")
		}
		if len(c.DevScopes) == 0 {
			return errors.New("DEV_AUTH_SCOPES must be non-empty when AUTH_MODE=dev")
		}
	case "":
		return errors.New("AUTH_MODE is required")
	default:
		return fmt.Errorf("unsupported auth mode: %q", c.Mode)
	}
	return nil
}
