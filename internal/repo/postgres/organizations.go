package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/tracewell/discover-go/internal/domain"
)

type OrganizationStore struct {
	db DB
}

func NewOrganizationStore(db DB) *OrganizationStore {
	if db == nil {
		return nil
	}
	return &OrganizationStore{db: db}
}

func (s *OrganizationStore) GetBySlug(ctx context.Context, slug string) (domain.Organization, error) {
	if s == nil || s.db == nil {
		return domain.Organization{}, fmt.Errorf("organization store not initialized")
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return domain.Organization{}, fmt.Errorf("organization slug is required")
	}
	var org domain.Organization
	row := s.db.QueryRowContext(
		ctx,
		`SELECT organization_id, slug, name, created_at
		 FROM organizations
		 WHERE slug = $1`,
		slug,
	)
	if err := row.Scan(&org.ID, &org.Slug, &org.Name, &org.CreatedAt); err != nil {
		return domain.Organization{}, handleNotFound(err)
	}
	return org, nil
}

func (s *OrganizationStore) IsMember(ctx context.Context, organizationID int64, subject string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("organization store not initialized")
	}
	subject = strings.TrimSpace(subject)
	if organizationID <= 0 || subject == "" {
		return false, nil
	}
	var member bool
	err := s.db.QueryRowContext(
		ctx,
		`SELECT EXISTS (
			SELECT 1 FROM organization_members WHERE organization_id = $1 AND subject = $2
		)`,
		organizationID,
		subject,
	).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return member, nil
}
