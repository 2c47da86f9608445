package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/tracewell/discover-go/internal/domain"
)

const projectColumns = `project_id, organization_id, slug, name, status, created_at`

var errProjectStoreNil = errors.New("project store not initialized")

// ProjectStore only ever returns visible projects; pending deletions resolve as not found.
type ProjectStore struct {
	db DB
}

func NewProjectStore(db DB) *ProjectStore {
	if db == nil {
		return nil
	}
	return &ProjectStore{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(s scanner) (domain.Project, error) {
	var p domain.Project
	err := s.Scan(&p.ID, &p.OrganizationID, &p.Slug, &p.Name, &p.Status, &p.CreatedAt)
	return p, err
}

func (s *ProjectStore) Get(ctx context.Context, organizationID, projectID int64) (domain.Project, error) {
	if s == nil || s.db == nil {
		return domain.Project{}, errProjectStoreNil
	}
	p, err := scanProject(s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects
		 WHERE organization_id = $1 AND project_id = $2 AND status = $3`,
		organizationID, projectID, string(domain.ProjectStatusVisible),
	))
	if err != nil {
		return domain.Project{}, handleNotFound(err)
	}
	return p, nil
}

func (s *ProjectStore) ListVisible(ctx context.Context, organizationID int64) ([]domain.Project, error) {
	if s == nil || s.db == nil {
		return nil, errProjectStoreNil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects
		 WHERE organization_id = $1 AND status = $2
		 ORDER BY slug`,
		organizationID, string(domain.ProjectStatusVisible),
	)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}
