package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// GatewayHeadersAuthenticator trusts identity headers signed by the edge gateway.
type GatewayHeadersAuthenticator struct {
	Secret  string
	MaxSkew time.Duration
	Now     func() time.Time
}

func NewGatewayHeadersAuthenticator(cfg Config) (*GatewayHeadersAuthenticator, error) {
	if strings.TrimSpace(cfg.InternalAuthSecret) == "" {
		return nil, errors.New("DISCOVER_INTERNAL_AUTH_SECRET is required")
	}
	maxSkew := cfg.InternalAuthMaxSkew
	if maxSkew == 0 {
		maxSkew = 5 * time.Minute
	}
	return &GatewayHeadersAuthenticator{Secret: cfg.InternalAuthSecret, MaxSkew: maxSkew, Now: time.Now}, nil
}

func (a *GatewayHeadersAuthenticator) Authenticate(_ context.Context, r *http.Request) (Identity, error) {
	if strings.TrimSpace(r.Header.Get(HeaderSubject)) == "" {
		return Identity{}, ErrUnauthenticated
	}
	now := time.Now()
	if a.Now != nil {
		now = a.Now()
	}

	h, err := readSignedHeaders(r, a.Secret, now.UTC(), a.MaxSkew)
	if errors.Is(err, errMissingSigning) {
		return Identity{}, ErrUnauthenticated
	}
	if err != nil {
		return Identity{}, err
	}
	return Identity{Subject: h.Subject, Email: h.Email, Scopes: splitList(h.Scopes)}, nil
}
