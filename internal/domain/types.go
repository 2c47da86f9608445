package domain

import (
	"errors"
	"net"
	"strings"
	"time"
)

// Organization is the tenancy root; every other entity is scoped to one.
type Organization struct {
	ID        int64
	Slug      string
	Name      string
	CreatedAt time.Time
}

func (o Organization) Validate() error {
	if o.ID <= 0 {
		return errors.New("organization id is required")
	}
	if strings.TrimSpace(o.Slug) == "" {
		return errors.New("organization slug is required")
	}
	return nil
}

type ProjectStatus string

const (
	ProjectStatusVisible            ProjectStatus = "visible"
	ProjectStatusPendingDeletion    ProjectStatus = "pending_deletion"
	ProjectStatusDeletionInProgress ProjectStatus = "deletion_in_progress"
)

type Project struct {
	ID             int64
	OrganizationID int64
	Slug           string
	Name           string
	Status         ProjectStatus
	CreatedAt      time.Time
}

func (p Project) Visible() bool {
	return p.Status == ProjectStatusVisible
}

// AuditEvent is an append-only record of a state change or export.
type AuditEvent struct {
	OccurredAt     time.Time
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
