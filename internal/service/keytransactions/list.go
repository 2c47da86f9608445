package keytransactions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tracewell/discover-go/internal/domain"
	platformotel "github.com/tracewell/discover-go/internal/platform/otel"
	"github.com/tracewell/discover-go/internal/query"
	"github.com/tracewell/discover-go/internal/repo"
)

const (
	DefaultPerPage = 50
	MaxPerPage     = 100
)

type ListInput struct {
	Fields       []string
	OrderBy      string
	ProjectIDs   []int64
	Environments []string
	Query        string
	Start        time.Time
	End          time.Time
	Limit        int
	Offset       int
}

type ListResult struct {
	Data    []map[string]any
	Meta    map[string]string
	HasMore bool
}

// List asks the delegate for one row per key transaction the actor owns,
// restricted to the selected projects.
func (s *Service) List(ctx context.Context, org domain.Organization, actor Actor, in ListInput) (ListResult, error) {
	if in.Limit <= 0 {
		in.Limit = DefaultPerPage
	}
	if in.Limit > MaxPerPage {
		in.Limit = MaxPerPage
	}
	if in.Offset < 0 {
		in.Offset = 0
	}

	req, projects, err := s.buildRequest(ctx, org, actor, in)
	if err != nil {
		return ListResult{}, err
	}
	req.Limit = in.Limit + 1
	req.Offset = in.Offset

	ctx, span := platformotel.Tracer("keytransactions").Start(ctx, "keytransactions.query")
	defer span.End()
	span.SetAttributes(
		attribute.Int("discover.key_transactions", len(req.Conditions[0])),
		attribute.Int("discover.limit", req.Limit),
		attribute.Int("discover.offset", req.Offset),
	)

	res, err := s.querier.Query(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query delegate failed")
		return ListResult{}, fmt.Errorf("query delegate: %w", err)
	}

	out := shapeResult(res, in.Fields, projects)
	if len(out.Data) > in.Limit {
		out.Data = out.Data[:in.Limit]
		out.HasMore = true
	}
	return out, nil
}

// buildRequest validates the list input and translates it into a delegate
// request. The returned map resolves project ids to slugs.
func (s *Service) buildRequest(ctx context.Context, org domain.Organization, actor Actor, in ListInput) (query.Request, map[int64]domain.Project, error) {
	fields := normalizeFields(in.Fields)
	if len(fields) == 0 {
		return query.Request{}, nil, validationf("No columns selected")
	}
	orderBy, err := resolveOrderBy(in.OrderBy, fields)
	if err != nil {
		return query.Request{}, nil, err
	}
	if in.Start.IsZero() || in.End.IsZero() || !in.End.After(in.Start) {
		return query.Request{}, nil, validationf("Invalid time range")
	}

	visible, err := s.projects.ListVisible(ctx, org.ID)
	if err != nil {
		return query.Request{}, nil, fmt.Errorf("list projects: %w", err)
	}
	byID := make(map[int64]domain.Project, len(visible))
	for _, p := range visible {
		byID[p.ID] = p
	}

	selected := make([]int64, 0, len(in.ProjectIDs))
	if len(in.ProjectIDs) == 0 {
		for _, p := range visible {
			selected = append(selected, p.ID)
		}
	} else {
		seen := make(map[int64]struct{}, len(in.ProjectIDs))
		for _, id := range in.ProjectIDs {
			if _, ok := byID[id]; !ok {
				return query.Request{}, nil, ErrInvalidProjects
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			selected = append(selected, id)
		}
	}

	var records []domain.KeyTransaction
	if len(selected) > 0 {
		records, err = s.records.List(ctx, repo.KeyTransactionFilter{
			OrganizationID: org.ID,
			Owner:          actor.Subject,
			ProjectIDs:     selected,
		})
		if err != nil {
			return query.Request{}, nil, fmt.Errorf("list key transactions: %w", err)
		}
	}

	return query.Request{
		Fields:                 delegateFields(fields),
		Query:                  strings.TrimSpace(in.Query),
		Conditions:             []query.Disjunction{query.KeyTransactionConditions(records)},
		OrderBy:                orderBy,
		ProjectIDs:             selected,
		Environments:           in.Environments,
		Start:                  in.Start.UTC(),
		End:                    in.End.UTC(),
		Referrer:               query.ReferrerKeyTransactions,
		AutoFields:             true,
		UseAggregateConditions: true,
	}, byID, nil
}

func normalizeFields(fields []string) []string {
	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func delegateFields(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		if f == projectField {
			f = delegateProjectField
		}
		out[i] = f
	}
	return out
}

// resolveOrderBy accepts a selected field or its alias, optionally prefixed
// with "-", and returns the delegate's column name for it.
func resolveOrderBy(raw string, fields []string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	desc := strings.HasPrefix(raw, "-")
	name := strings.TrimPrefix(raw, "-")
	for _, f := range fields {
		if name != f && name != query.Alias(f) {
			continue
		}
		column := query.Alias(f)
		if f == projectField {
			column = delegateProjectField
		}
		if desc {
			column = "-" + column
		}
		return column, nil
	}
	return "", validationf("Cannot order by a field that is not selected: %s", name)
}

// shapeResult renames delegate columns back to what the caller asked for and
// replaces project ids with slugs.
func shapeResult(res query.Result, fields []string, projects map[int64]domain.Project) ListResult {
	wantsProject := false
	for _, f := range fields {
		if f == projectField {
			wantsProject = true
		}
	}

	meta := make(map[string]string, len(res.Meta))
	for k, v := range res.Meta {
		meta[k] = v
	}
	data := make([]map[string]any, 0, len(res.Data))
	for _, row := range res.Data {
		shaped := make(map[string]any, len(row))
		for k, v := range row {
			shaped[k] = v
		}
		if wantsProject {
			shaped[projectField] = projectSlug(row[delegateProjectField], projects)
			delete(shaped, delegateProjectField)
		}
		data = append(data, shaped)
	}
	if wantsProject {
		delete(meta, delegateProjectField)
		meta[projectField] = "string"
	}
	return ListResult{Data: data, Meta: meta}
}

func projectSlug(v any, projects map[int64]domain.Project) any {
	var id int64
	switch n := v.(type) {
	case float64:
		id = int64(n)
	case int64:
		id = n
	case int:
		id = int64(n)
	default:
		return v
	}
	if p, ok := projects[id]; ok {
		return p.Slug
	}
	return v
}
