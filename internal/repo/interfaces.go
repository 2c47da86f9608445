package repo

import (
	"context"

	"github.com/tracewell/discover-go/internal/domain"
)

type KeyTransactionFilter struct {
	OrganizationID int64
	Owner          string
	ProjectIDs     []int64
}

// AuditBuilder describes the audit row for a record being created or deleted.
// Stores insert it in the same transaction as the write, so a failed audit
// insert rolls the write back. A nil builder writes no audit row.
type AuditBuilder func(kt domain.KeyTransaction) domain.AuditEvent

// OrganizationRepository resolves organizations and their members.
type OrganizationRepository interface {
	GetBySlug(ctx context.Context, slug string) (domain.Organization, error)
	IsMember(ctx context.Context, organizationID int64, subject string) (bool, error)
}

// ProjectRepository only ever returns visible projects.
type ProjectRepository interface {
	Get(ctx context.Context, organizationID, projectID int64) (domain.Project, error)
	ListVisible(ctx context.Context, organizationID int64) ([]domain.Project, error)
}

// KeyTransactionRepository manages key transactions. Records are created and
// deleted, never updated.
type KeyTransactionRepository interface {
	// CreateCapped inserts kt unless its scope already holds limit records
	// (ErrLimitExceeded) or the same transaction (ErrAlreadyExists). The count
	// check, the duplicate check, the insert and the audit row are atomic per scope.
	CreateCapped(ctx context.Context, kt domain.KeyTransaction, limit int, audit AuditBuilder) (domain.KeyTransaction, error)
	List(ctx context.Context, filter KeyTransactionFilter) ([]domain.KeyTransaction, error)
	// Delete removes one record of scope and writes its audit row, or neither.
	Delete(ctx context.Context, scope domain.Scope, transaction string, audit AuditBuilder) error
}

// AuditEventAppender ensures append-only audit writes.
type AuditEventAppender interface {
	Append(ctx context.Context, event domain.AuditEvent) (int64, error)
}
