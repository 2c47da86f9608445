// Package auth resolves the calling identity and the organization scopes it
// carries, and rejects requests whose scopes do not cover the HTTP method.
package auth

import (
	"context"
	"net/http"
)

type Identity struct {
	Subject string
	Email   string
	Scopes  []string
}

func (i Identity) HasScope(scope string) bool {
	for _, s := range i.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (Identity, error)
}

type ctxKeyIdentity struct{}

func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(ctxKeyIdentity{}).(Identity)
	return v, ok
}

// NewAuthenticator builds the authenticator selected by cfg.Mode.
func NewAuthenticator(ctx context.Context, cfg Config) (Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case ModeOIDC:
		return NewOIDCAuthenticator(ctx, cfg)
	case ModeGateway:
		return NewGatewayHeadersAuthenticator(cfg)
	default:
		return NewDevAuthenticator(cfg), nil
	}
}
