package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderSubject = "X-Discover-Subject"
	HeaderEmail   = "X-Discover-Email"
	HeaderScopes  = "X-Discover-Scopes"

	HeaderInternalAuthTimestamp = "X-Discover-Auth-Ts"
	HeaderInternalAuthSignature = "X-Discover-Auth-Sig"
)

var (
	errMissingSecret  = errors.New("internal auth secret is required")
	errBadSignature   = errors.New("invalid signature")
	errTimestampSkew  = errors.New("timestamp outside allowed skew")
	errBadTimestamp   = errors.New("invalid timestamp")
	errMissingSigning = errors.New("timestamp and signature are required")
)

// SignedHeaders is the identity the edge gateway forwards, bound to one
// request by method, path and request id.
type SignedHeaders struct {
	Timestamp time.Time
	Method    string
	Path      string
	RequestID string
	Subject   string
	Email     string
	Scopes    string
}

func (h SignedHeaders) canonical() string {
	return strings.Join([]string{
		strconv.FormatInt(h.Timestamp.Unix(), 10),
		strings.ToUpper(strings.TrimSpace(h.Method)),
		strings.TrimSpace(h.Path),
		strings.TrimSpace(h.RequestID),
		strings.TrimSpace(h.Subject),
		strings.TrimSpace(h.Email),
		strings.TrimSpace(h.Scopes),
	}, "\n")
}

func (h SignedHeaders) Sign(secret string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errMissingSecret
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(h.canonical()))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Apply writes the identity and signing headers onto r.
func (h SignedHeaders) Apply(r *http.Request, secret string) error {
	sig, err := h.Sign(secret)
	if err != nil {
		return err
	}
	r.Header.Set(HeaderSubject, h.Subject)
	r.Header.Set(HeaderEmail, h.Email)
	r.Header.Set(HeaderScopes, h.Scopes)
	r.Header.Set(HeaderInternalAuthTimestamp, strconv.FormatInt(h.Timestamp.Unix(), 10))
	r.Header.Set(HeaderInternalAuthSignature, sig)
	return nil
}

// readSignedHeaders parses the forwarded headers and checks signature and skew.
func readSignedHeaders(r *http.Request, secret string, now time.Time, maxSkew time.Duration) (SignedHeaders, error) {
	rawTS := strings.TrimSpace(r.Header.Get(HeaderInternalAuthTimestamp))
	sig := strings.TrimSpace(r.Header.Get(HeaderInternalAuthSignature))
	if rawTS == "" || sig == "" {
		return SignedHeaders{}, errMissingSigning
	}
	unix, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		return SignedHeaders{}, errBadTimestamp
	}

	h := SignedHeaders{
		Timestamp: time.Unix(unix, 0).UTC(),
		Method:    r.Method,
		Path:      r.URL.Path,
		RequestID: r.Header.Get("X-Request-Id"),
		Subject:   strings.TrimSpace(r.Header.Get(HeaderSubject)),
		Email:     strings.TrimSpace(r.Header.Get(HeaderEmail)),
		Scopes:    strings.TrimSpace(r.Header.Get(HeaderScopes)),
	}
	if maxSkew > 0 && (h.Timestamp.After(now.Add(maxSkew)) || h.Timestamp.Before(now.Add(-maxSkew))) {
		return SignedHeaders{}, errTimestampSkew
	}
	expected, err := h.Sign(secret)
	if err != nil {
		return SignedHeaders{}, err
	}
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return SignedHeaders{}, errBadSignature
	}
	return h, nil
}
