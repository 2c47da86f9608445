package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type FeatureStore struct {
	db DB
}

func NewFeatureStore(db DB) *FeatureStore {
	if db == nil {
		return nil
	}
	return &FeatureStore{db: db}
}

func (s *FeatureStore) FeatureOverride(ctx context.Context, organizationID int64, feature string) (bool, bool, error) {
	if s == nil || s.db == nil {
		return false, false, fmt.Errorf("feature store not initialized")
	}
	var enabled bool
	err := s.db.QueryRowContext(
		ctx,
		`SELECT enabled FROM organization_features WHERE organization_id = $1 AND feature = $2`,
		organizationID,
		strings.TrimSpace(feature),
	).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("get feature override: %w", err)
	}
	return enabled, true, nil
}
