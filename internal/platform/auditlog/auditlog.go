// Package auditlog appends tamper-evident rows to the audit_events table.
//
// Each row carries integrity_sha256, a digest over its canonical JSON form,
// so edits made outside this package can be detected on read.
package auditlog

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

type Event struct {
	OccurredAt time.Time
	Service    string
	// OrganizationID is zero for events outside any organization (auth denies).
	OrganizationID int64
	Actor          string
	Action         string
	ResourceType   string
	ResourceID     string
	RequestID      string
	IP             net.IP
	UserAgent      string
	Payload        map[string]any
}

type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (e Event) Validate() error {
	if e.OccurredAt.IsZero() {
		return errors.New("OccurredAt is required")
	}
	if e.OrganizationID < 0 {
		return errors.New("OrganizationID must be >= 0")
	}
	for name, v := range map[string]string{
		"Actor":        e.Actor,
		"Action":       e.Action,
		"ResourceType": e.ResourceType,
		"ResourceID":   e.ResourceID,
	} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	return nil
}

// row is the canonical form of an event: what gets hashed and what gets stored.
type row struct {
	OccurredAt     time.Time       `json:"occurred_at"`
	OrganizationID int64           `json:"organization_id,omitempty"`
	Actor          string          `json:"actor"`
	Action         string          `json:"action"`
	ResourceType   string          `json:"resource_type"`
	ResourceID     string          `json:"resource_id"`
	RequestID      string          `json:"request_id,omitempty"`
	IP             string          `json:"ip,omitempty"`
	UserAgent      string          `json:"user_agent,omitempty"`
	Payload        json.RawMessage `json:"payload"`
}

func (e Event) canonical() (row, error) {
	payload := make(map[string]any, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	if service := strings.TrimSpace(e.Service); service != "" {
		payload["service"] = service
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return row{}, fmt.Errorf("marshal payload: %w", err)
	}

	r := row{
		OccurredAt:     e.OccurredAt.UTC(),
		OrganizationID: e.OrganizationID,
		Actor:          strings.TrimSpace(e.Actor),
		Action:         strings.TrimSpace(e.Action),
		ResourceType:   strings.TrimSpace(e.ResourceType),
		ResourceID:     strings.TrimSpace(e.ResourceID),
		RequestID:      strings.TrimSpace(e.RequestID),
		UserAgent:      strings.TrimSpace(e.UserAgent),
		Payload:        raw,
	}
	if e.IP != nil {
		r.IP = e.IP.String()
	}
	return r, nil
}

func (r row) digest() (string, error) {
	blob, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal integrity: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

// Integrity returns the digest Insert would store for the event.
func Integrity(event Event) (string, error) {
	r, err := event.canonical()
	if err != nil {
		return "", err
	}
	return r.digest()
}

func Insert(ctx context.Context, q QueryRower, event Event) (int64, error) {
	if q == nil {
		return 0, errors.New("queryer is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		return 0, err
	}

	r, err := event.canonical()
	if err != nil {
		return 0, err
	}
	integrity, err := r.digest()
	if err != nil {
		return 0, err
	}

	var id int64
	err = q.QueryRowContext(ctx,
		`INSERT INTO audit_events (
			occurred_at, organization_id, actor, action, resource_type, resource_id,
			request_id, ip, user_agent, payload, integrity_sha256
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING event_id`,
		r.OccurredAt,
		sql.NullInt64{Int64: r.OrganizationID, Valid: r.OrganizationID > 0},
		r.Actor,
		r.Action,
		r.ResourceType,
		r.ResourceID,
		nullString(r.RequestID),
		nullString(r.IP),
		nullString(r.UserAgent),
		[]byte(r.Payload),
		integrity,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert audit event: %w", err)
	}
	return id, nil
}

// RequestIP extracts the host part of an http.Request RemoteAddr.
func RequestIP(remoteAddr string) net.IP {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
