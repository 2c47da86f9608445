package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxKeyTransactions caps the bookmarks one owner may hold per (organization, project).
const MaxKeyTransactions = 10

// MaxTransactionNameLength matches the width of the key_transactions.transaction column.
const MaxTransactionNameLength = 200

// KeyTransaction is a user-curated bookmark of a transaction name within a project.
// Records are only ever created or deleted.
type KeyTransaction struct {
	ID             int64
	OrganizationID int64
	ProjectID      int64
	Owner          string
	Transaction    string
	CreatedAt      time.Time
}

// Scope identifies the (organization, project, owner) bucket the count cap applies to.
type Scope struct {
	OrganizationID int64
	ProjectID      int64
	Owner          string
}

func (k KeyTransaction) Scope() Scope {
	return Scope{OrganizationID: k.OrganizationID, ProjectID: k.ProjectID, Owner: k.Owner}
}

func (k KeyTransaction) Validate() error {
	if k.OrganizationID <= 0 {
		return errors.New("organization id is required")
	}
	if k.ProjectID <= 0 {
		return errors.New("project id is required")
	}
	if strings.TrimSpace(k.Owner) == "" {
		return errors.New("owner is required")
	}
	return ValidateTransactionName(k.Transaction)
}

func ValidateTransactionName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("transaction is required")
	}
	if utf8.RuneCountInString(name) > MaxTransactionNameLength {
		return fmt.Errorf("transaction must be at most %d characters", MaxTransactionNameLength)
	}
	return nil
}
