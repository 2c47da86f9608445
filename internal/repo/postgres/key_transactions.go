package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tracewell/discover-go/internal/domain"
	"github.com/tracewell/discover-go/internal/repo"
)

type KeyTransactionStore struct {
	db TxDB
	// service tags the audit rows written alongside each create and delete.
	service string
}

func NewKeyTransactionStore(db TxDB, service string) *KeyTransactionStore {
	if db == nil {
		return nil
	}
	return &KeyTransactionStore{db: db, service: service}
}

const countScopeSQL = `SELECT COUNT(*) FROM key_transactions
	WHERE organization_id = $1 AND project_id = $2 AND owner = $3`

// scopeLockKey names the advisory lock that serialises writers of one
// (organization, project, owner) scope.
func scopeLockKey(scope domain.Scope) string {
	return fmt.Sprintf("key_transactions:%d:%d:%s", scope.OrganizationID, scope.ProjectID, scope.Owner)
}

func (s *KeyTransactionStore) CreateCapped(ctx context.Context, kt domain.KeyTransaction, limit int, audit repo.AuditBuilder) (domain.KeyTransaction, error) {
	if s == nil || s.db == nil {
		return domain.KeyTransaction{}, fmt.Errorf("key transaction store not initialized")
	}
	kt.Owner = strings.TrimSpace(kt.Owner)
	if err := kt.Validate(); err != nil {
		return domain.KeyTransaction{}, err
	}
	if limit <= 0 {
		return domain.KeyTransaction{}, fmt.Errorf("limit must be positive")
	}
	kt.CreatedAt = normalizeTime(kt.CreatedAt)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.KeyTransaction{}, fmt.Errorf("start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, scopeLockKey(kt.Scope())); err != nil {
		return domain.KeyTransaction{}, fmt.Errorf("lock scope: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx, countScopeSQL, kt.OrganizationID, kt.ProjectID, kt.Owner).Scan(&count); err != nil {
		return domain.KeyTransaction{}, fmt.Errorf("count key transactions: %w", err)
	}
	if count >= limit {
		return domain.KeyTransaction{}, repo.ErrLimitExceeded
	}

	var exists bool
	if err := tx.QueryRowContext(
		ctx,
		`SELECT EXISTS (
			SELECT 1 FROM key_transactions
			WHERE organization_id = $1 AND project_id = $2 AND owner = $3 AND transaction = $4
		)`,
		kt.OrganizationID,
		kt.ProjectID,
		kt.Owner,
		kt.Transaction,
	).Scan(&exists); err != nil {
		return domain.KeyTransaction{}, fmt.Errorf("check duplicate: %w", err)
	}
	if exists {
		return domain.KeyTransaction{}, repo.ErrAlreadyExists
	}

	err = tx.QueryRowContext(
		ctx,
		`INSERT INTO key_transactions (
			organization_id,
			project_id,
			owner,
			transaction,
			created_at
		) VALUES ($1,$2,$3,$4,$5)
		RETURNING key_transaction_id`,
		kt.OrganizationID,
		kt.ProjectID,
		kt.Owner,
		kt.Transaction,
		kt.CreatedAt,
	).Scan(&kt.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.KeyTransaction{}, repo.ErrAlreadyExists
		}
		return domain.KeyTransaction{}, fmt.Errorf("insert key transaction: %w", err)
	}
	if err := s.audit(ctx, tx, audit, kt); err != nil {
		return domain.KeyTransaction{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.KeyTransaction{}, fmt.Errorf("commit key transaction: %w", err)
	}
	return kt, nil
}

func (s *KeyTransactionStore) List(ctx context.Context, filter repo.KeyTransactionFilter) ([]domain.KeyTransaction, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("key transaction store not initialized")
	}
	query, args, err := buildKeyTransactionListQuery(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list key transactions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.KeyTransaction, 0)
	for rows.Next() {
		var kt domain.KeyTransaction
		if err := rows.Scan(&kt.ID, &kt.OrganizationID, &kt.ProjectID, &kt.Owner, &kt.Transaction, &kt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan key transaction: %w", err)
		}
		out = append(out, kt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate key transactions: %w", err)
	}
	return out, nil
}

func buildKeyTransactionListQuery(filter repo.KeyTransactionFilter) (string, []any, error) {
	if filter.OrganizationID <= 0 {
		return "", nil, fmt.Errorf("organization id is required")
	}
	owner := strings.TrimSpace(filter.Owner)
	if owner == "" {
		return "", nil, fmt.Errorf("owner is required")
	}

	args := []any{filter.OrganizationID, owner}
	clauses := []string{"organization_id = $1", "owner = $2"}
	if len(filter.ProjectIDs) > 0 {
		args = append(args, filter.ProjectIDs)
		clauses = append(clauses, fmt.Sprintf("project_id = ANY($%d)", len(args)))
	}

	query := `SELECT key_transaction_id, organization_id, project_id, owner, transaction, created_at
		FROM key_transactions
		WHERE ` + strings.Join(clauses, " AND ") + `
		ORDER BY project_id ASC, transaction ASC`
	return query, args, nil
}

func (s *KeyTransactionStore) Delete(ctx context.Context, scope domain.Scope, transaction string, audit repo.AuditBuilder) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("key transaction store not initialized")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	kt := domain.KeyTransaction{
		OrganizationID: scope.OrganizationID,
		ProjectID:      scope.ProjectID,
		Owner:          strings.TrimSpace(scope.Owner),
		Transaction:    transaction,
	}
	err = tx.QueryRowContext(
		ctx,
		`DELETE FROM key_transactions
		 WHERE organization_id = $1 AND project_id = $2 AND owner = $3 AND transaction = $4
		 RETURNING key_transaction_id, created_at`,
		kt.OrganizationID,
		kt.ProjectID,
		kt.Owner,
		kt.Transaction,
	).Scan(&kt.ID, &kt.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return repo.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete key transaction: %w", err)
	}
	if err := s.audit(ctx, tx, audit, kt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

func (s *KeyTransactionStore) audit(ctx context.Context, tx *sql.Tx, build repo.AuditBuilder, kt domain.KeyTransaction) error {
	if build == nil {
		return nil
	}
	if _, err := insertAudit(ctx, tx, s.service, build(kt)); err != nil {
		return err
	}
	return nil
}
