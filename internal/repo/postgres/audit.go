package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tracewell/discover-go/internal/domain"
	"github.com/tracewell/discover-go/internal/platform/auditlog"
)

type AuditAppender struct {
	db      auditlog.QueryRower
	service string
	now     func() time.Time
}

func NewAuditAppender(db auditlog.QueryRower, service string) *AuditAppender {
	if db == nil {
		return nil
	}
	return &AuditAppender{db: db, service: service, now: time.Now}
}

func (a *AuditAppender) Append(ctx context.Context, event domain.AuditEvent) (int64, error) {
	if a == nil || a.db == nil {
		return 0, errors.New("audit appender not initialized")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = a.now().UTC()
	}
	return insertAudit(ctx, a.db, a.service, event)
}

// insertAudit writes event through q, which may be a transaction.
func insertAudit(ctx context.Context, q auditlog.QueryRower, service string, event domain.AuditEvent) (int64, error) {
	id, err := auditlog.Insert(ctx, q, auditlog.Event{
		OccurredAt:     event.OccurredAt,
		Service:        service,
		OrganizationID: event.OrganizationID,
		Actor:          event.Actor,
		Action:         event.Action,
		ResourceType:   event.ResourceType,
		ResourceID:     event.ResourceID,
		RequestID:      event.RequestID,
		IP:             event.IP,
		UserAgent:      event.UserAgent,
		Payload:        event.Payload,
	})
	if err != nil {
		return 0, fmt.Errorf("append audit event: %w", err)
	}
	return id, nil
}
