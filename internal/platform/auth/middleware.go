package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tracewell/discover-go/internal/platform/requestid"
)

type AuthorizeFunc func(r *http.Request, identity Identity) error

type DenyEvent struct {
	Time       time.Time
	Status     int
	Reason     string
	Error      string
	RequestID  string
	Method     string
	Path       string
	Subject    string
	Email      string
	Scopes     []string
	RemoteAddr string
	UserAgent  string
}

type AuditFunc func(ctx context.Context, event DenyEvent) error

type Middleware struct {
	Logger        *slog.Logger
	Authenticator Authenticator
	Authorize     AuthorizeFunc
	Audit         AuditFunc
	SkipPrefixes  []string

	// HideUnauthenticated answers 404 instead of 401 so anonymous callers
	// cannot probe which organizations exist.
	HideUnauthenticated bool
}

type denial struct {
	status int
	reason string
	detail string
	err    error
}

func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skip(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := m.Authenticator.Authenticate(r.Context(), r)
		if err == nil && strings.TrimSpace(identity.Subject) == "" {
			err = ErrUnauthenticated
		}
		if err != nil {
			d := denial{status: http.StatusUnauthorized, reason: "invalid_token", detail: "Authentication credentials were not provided.", err: err}
			if errors.Is(err, ErrUnauthenticated) {
				d.reason = "unauthenticated"
			}
			if m.HideUnauthenticated {
				d.status, d.detail = http.StatusNotFound, "The requested resource does not exist"
			}
			m.deny(w, r, Identity{}, d)
			return
		}

		if m.Authorize != nil {
			if err := m.Authorize(r, identity); err != nil {
				m.deny(w, r, identity, denial{
					status: http.StatusForbidden,
					reason: "forbidden",
					detail: "You do not have permission to perform this action.",
					err:    err,
				})
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
	})
}

func (m Middleware) skip(path string) bool {
	for _, prefix := range m.SkipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// deny logs, audits and answers. Audit uses the logical status (401 or 403)
// even when the response is hidden behind a 404.
func (m Middleware) deny(w http.ResponseWriter, r *http.Request, identity Identity, d denial) {
	rid := requestID(r)
	logical := d.status
	if logical == http.StatusNotFound {
		logical = http.StatusUnauthorized
	}

	if m.Logger != nil {
		m.Logger.Warn("auth deny",
			"reason", d.reason,
			"status", logical,
			"request_id", rid,
			"method", r.Method,
			"path", r.URL.Path,
			"subject", identity.Subject,
			"error", d.err.Error(),
		)
	}

	if m.Audit != nil {
		err := m.Audit(r.Context(), DenyEvent{
			Time:       time.Now().UTC(),
			Status:     logical,
			Reason:     d.reason,
			Error:      d.err.Error(),
			RequestID:  rid,
			Method:     r.Method,
			Path:       r.URL.Path,
			Subject:    identity.Subject,
			Email:      identity.Email,
			Scopes:     identity.Scopes,
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
		})
		if err != nil && m.Logger != nil {
			m.Logger.Warn("audit deny failed", "request_id", rid, "error", err.Error())
		}
	}

	body := map[string]any{"detail": d.detail, "request_id": rid}
	if d.status == http.StatusUnauthorized {
		body["error"] = d.reason
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(d.status)
	_ = json.NewEncoder(w).Encode(body)
}

func requestID(r *http.Request) string {
	if id := requestid.FromContext(r.Context()); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get("X-Request-Id"))
}
