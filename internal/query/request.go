package query

import (
	"errors"
	"strings"
	"time"
)

// ReferrerKeyTransactions tags delegate traffic from the key transactions list.
const ReferrerKeyTransactions = "discover.key_transactions"

type Request struct {
	Fields                 []string      `json:"selected_columns"`
	Query                  string        `json:"query,omitempty"`
	Conditions             []Disjunction `json:"conditions,omitempty"`
	OrderBy                string        `json:"orderby,omitempty"`
	ProjectIDs             []int64       `json:"project_ids"`
	Environments           []string      `json:"environments,omitempty"`
	Start                  time.Time     `json:"start"`
	End                    time.Time     `json:"end"`
	Limit                  int           `json:"limit"`
	Offset                 int           `json:"offset"`
	Referrer               string        `json:"referrer"`
	AutoFields             bool          `json:"auto_fields"`
	UseAggregateConditions bool          `json:"use_aggregate_conditions"`
}

func (r Request) Validate() error {
	if len(r.Fields) == 0 {
		return errors.New("at least one field is required")
	}
	for _, f := range r.Fields {
		if strings.TrimSpace(f) == "" {
			return errors.New("fields must be non-empty")
		}
	}
	if r.Start.IsZero() || r.End.IsZero() {
		return errors.New("start and end are required")
	}
	if !r.End.After(r.Start) {
		return errors.New("end must be after start")
	}
	if r.Limit < 0 || r.Offset < 0 {
		return errors.New("limit and offset must be non-negative")
	}
	return nil
}

// Unsatisfiable reports whether some OR group is empty, in which case no row
// can match and the delegate need not be asked.
func (r Request) Unsatisfiable() bool {
	for _, group := range r.Conditions {
		if len(group) == 0 {
			return true
		}
	}
	return false
}

type Result struct {
	Data []map[string]any  `json:"data"`
	Meta map[string]string `json:"meta"`
}
