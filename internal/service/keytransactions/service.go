package keytransactions

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/tracewell/discover-go/internal/domain"
	"github.com/tracewell/discover-go/internal/platform/features"
	"github.com/tracewell/discover-go/internal/query"
	"github.com/tracewell/discover-go/internal/repo"
)

const (
	AuditActionCreate = "key_transaction.create"
	AuditActionDelete = "key_transaction.delete"
	AuditActionExport = "key_transaction.export"

	auditResourceType = "key_transaction"
)

// projectField is the client-facing column; the delegate knows it as project.id.
const (
	projectField         = "project"
	delegateProjectField = "project.id"
)

type Service struct {
	features  features.Checker
	projects  repo.ProjectRepository
	records   repo.KeyTransactionRepository
	querier   query.Querier
	audit     repo.AuditEventAppender
	exports   ExportStore
	exportTTL time.Duration
	now       func() time.Time
}

// Actor is the authenticated caller plus the request metadata recorded in audit events.
type Actor struct {
	Subject   string
	RequestID string
	UserAgent string
	IP        net.IP
}

func New(checker features.Checker, projects repo.ProjectRepository, records repo.KeyTransactionRepository, querier query.Querier) *Service {
	if checker == nil || projects == nil || records == nil || querier == nil {
		return nil
	}
	return &Service{
		features: checker,
		projects: projects,
		records:  records,
		querier:  querier,
		now:      time.Now,
	}
}

// WithAudit records exports through appender. Creates and deletes are always
// audited by the record store, in the same transaction as the write.
func (s *Service) WithAudit(appender repo.AuditEventAppender) *Service {
	s.audit = appender
	return s
}

// WithExports enables Export, presigning download URLs valid for ttl.
func (s *Service) WithExports(store ExportStore, ttl time.Duration) *Service {
	s.exports = store
	s.exportTTL = ttl
	return s
}

// CheckFeature returns ErrFeatureDisabled unless the discover feature is on for
// the organization and actor. Callers gate every operation with it before
// validating input; the operations themselves do not check again.
func (s *Service) CheckFeature(ctx context.Context, org domain.Organization, actor Actor) error {
	enabled, err := s.features.Has(ctx, features.Discover, features.Subject{
		OrganizationID:   org.ID,
		OrganizationSlug: org.Slug,
		Actor:            actor.Subject,
	})
	if err != nil {
		return fmt.Errorf("check feature: %w", err)
	}
	if !enabled {
		return ErrFeatureDisabled
	}
	return nil
}

type CreateInput struct {
	ProjectID   int64
	Transaction string
}

func (s *Service) Create(ctx context.Context, org domain.Organization, actor Actor, in CreateInput) (domain.KeyTransaction, error) {
	project, err := s.resolveProject(ctx, org, in.ProjectID)
	if err != nil {
		return domain.KeyTransaction{}, err
	}
	if err := domain.ValidateTransactionName(in.Transaction); err != nil {
		return domain.KeyTransaction{}, &ValidationError{Detail: err.Error()}
	}

	created, err := s.records.CreateCapped(ctx, domain.KeyTransaction{
		OrganizationID: org.ID,
		ProjectID:      project.ID,
		Owner:          actor.Subject,
		Transaction:    in.Transaction,
		CreatedAt:      s.now().UTC(),
	}, domain.MaxKeyTransactions, s.auditRecord(org, actor, AuditActionCreate))
	switch {
	case errors.Is(err, repo.ErrLimitExceeded):
		return domain.KeyTransaction{}, ErrLimitExceeded
	case errors.Is(err, repo.ErrAlreadyExists):
		return domain.KeyTransaction{}, ErrDuplicate
	case err != nil:
		return domain.KeyTransaction{}, fmt.Errorf("create key transaction: %w", err)
	}
	return created, nil
}

type DeleteInput struct {
	ProjectID   int64
	Transaction string
}

// Delete removes the caller's record. An unknown project and an unknown record
// both yield ErrNotFound.
func (s *Service) Delete(ctx context.Context, org domain.Organization, actor Actor, in DeleteInput) error {
	project, err := s.resolveProject(ctx, org, in.ProjectID)
	if errors.Is(err, ErrProjectNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if strings.TrimSpace(in.Transaction) == "" {
		return ErrNotFound
	}

	scope := domain.Scope{OrganizationID: org.ID, ProjectID: project.ID, Owner: actor.Subject}
	err = s.records.Delete(ctx, scope, in.Transaction, s.auditRecord(org, actor, AuditActionDelete))
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete key transaction: %w", err)
	}
	return nil
}

func (s *Service) resolveProject(ctx context.Context, org domain.Organization, projectID int64) (domain.Project, error) {
	if projectID <= 0 {
		return domain.Project{}, ErrProjectNotFound
	}
	project, err := s.projects.Get(ctx, org.ID, projectID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Project{}, ErrProjectNotFound
	}
	if err != nil {
		return domain.Project{}, fmt.Errorf("get project: %w", err)
	}
	if project.OrganizationID != org.ID || !project.Visible() {
		return domain.Project{}, ErrProjectNotFound
	}
	return project, nil
}

func (s *Service) auditEvent(org domain.Organization, actor Actor, action, resourceID string, payload map[string]any) domain.AuditEvent {
	return domain.AuditEvent{
		OccurredAt:     s.now().UTC(),
		OrganizationID: org.ID,
		Actor:          actor.Subject,
		Action:         action,
		ResourceType:   auditResourceType,
		ResourceID:     resourceID,
		RequestID:      actor.RequestID,
		IP:             actor.IP,
		UserAgent:      actor.UserAgent,
		Payload:        payload,
	}
}

// auditRecord describes a create or delete; the resource id is project:transaction
// so create and delete rows of the same record line up.
func (s *Service) auditRecord(org domain.Organization, actor Actor, action string) repo.AuditBuilder {
	return func(kt domain.KeyTransaction) domain.AuditEvent {
		return s.auditEvent(org, actor, action, fmt.Sprintf("%d:%s", kt.ProjectID, kt.Transaction), map[string]any{
			"key_transaction_id": kt.ID,
			"project_id":         kt.ProjectID,
			"transaction":        kt.Transaction,
		})
	}
}

func (s *Service) appendAudit(ctx context.Context, event domain.AuditEvent) error {
	if s.audit == nil {
		return nil
	}
	if _, err := s.audit.Append(ctx, event); err != nil {
		return fmt.Errorf("audit %s: %w", event.Action, err)
	}
	return nil
}
