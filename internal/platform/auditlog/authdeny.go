package auditlog

import (
	"context"
	"strings"

	"github.com/tracewell/discover-go/internal/platform/auth"
)

func InsertAuthDeny(ctx context.Context, q QueryRower, service string, event auth.DenyEvent) error {
	actor := "anonymous"
	if strings.TrimSpace(event.Subject) != "" {
		actor = strings.TrimSpace(event.Subject)
	}

	_, err := Insert(ctx, q, authDenyEvent(service, actor, event))
	return err
}

func authDenyEvent(service, actor string, event auth.DenyEvent) Event {
	return Event{
		OccurredAt:   event.Time,
		Service:      service,
		Actor:        actor,
		Action:       "auth." + strings.TrimSpace(event.Reason),
		ResourceType: "http",
		ResourceID:   event.Method + " " + event.Path,
		RequestID:    event.RequestID,
		IP:           RequestIP(event.RemoteAddr),
		UserAgent:    event.UserAgent,
		Payload: map[string]any{
			"status":  event.Status,
			"reason":  event.Reason,
			"error":   event.Error,
			"subject": event.Subject,
			"email":   event.Email,
			"scopes":  event.Scopes,
		},
	}
}
