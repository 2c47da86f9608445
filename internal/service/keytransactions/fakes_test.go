package keytransactions

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tracewell/discover-go/internal/domain"
	"github.com/tracewell/discover-go/internal/query"
	"github.com/tracewell/discover-go/internal/repo"
)

type fakeProjects struct {
	projects []domain.Project
}

func (f *fakeProjects) Get(_ context.Context, organizationID, projectID int64) (domain.Project, error) {
	for _, p := range f.projects {
		if p.ID == projectID && p.OrganizationID == organizationID && p.Visible() {
			return p, nil
		}
	}
	return domain.Project{}, repo.ErrNotFound
}

func (f *fakeProjects) ListVisible(_ context.Context, organizationID int64) ([]domain.Project, error) {
	out := make([]domain.Project, 0)
	for _, p := range f.projects {
		if p.OrganizationID == organizationID && p.Visible() {
			out = append(out, p)
		}
	}
	return out, nil
}

// fakeRecords writes audit rows through audit as part of each write; a failed
// audit append leaves the records untouched, like a rolled back transaction.
type fakeRecords struct {
	mu      sync.Mutex
	nextID  int64
	records []domain.KeyTransaction
	audit   *fakeAuditAppender
}

func (f *fakeRecords) commitAudit(ctx context.Context, build repo.AuditBuilder, kt domain.KeyTransaction) error {
	if build == nil || f.audit == nil {
		return nil
	}
	_, err := f.audit.Append(ctx, build(kt))
	return err
}

func (f *fakeRecords) CreateCapped(ctx context.Context, kt domain.KeyTransaction, limit int, audit repo.AuditBuilder) (domain.KeyTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, r := range f.records {
		if r.Scope() == kt.Scope() {
			count++
		}
	}
	if count >= limit {
		return domain.KeyTransaction{}, repo.ErrLimitExceeded
	}
	for _, r := range f.records {
		if r.Scope() == kt.Scope() && r.Transaction == kt.Transaction {
			return domain.KeyTransaction{}, repo.ErrAlreadyExists
		}
	}
	kt.ID = f.nextID + 1
	if err := f.commitAudit(ctx, audit, kt); err != nil {
		return domain.KeyTransaction{}, err
	}
	f.nextID = kt.ID
	f.records = append(f.records, kt)
	return kt, nil
}

func (f *fakeRecords) List(_ context.Context, filter repo.KeyTransactionFilter) ([]domain.KeyTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	projects := make(map[int64]struct{}, len(filter.ProjectIDs))
	for _, id := range filter.ProjectIDs {
		projects[id] = struct{}{}
	}
	out := make([]domain.KeyTransaction, 0)
	for _, r := range f.records {
		if r.OrganizationID != filter.OrganizationID || r.Owner != filter.Owner {
			continue
		}
		if len(projects) > 0 {
			if _, ok := projects[r.ProjectID]; !ok {
				continue
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRecords) count(scope domain.Scope) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.records {
		if r.Scope() == scope {
			n++
		}
	}
	return n
}

func (f *fakeRecords) Delete(ctx context.Context, scope domain.Scope, transaction string, audit repo.AuditBuilder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.records {
		if r.Scope() == scope && r.Transaction == transaction {
			if err := f.commitAudit(ctx, audit, r); err != nil {
				return err
			}
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return repo.ErrNotFound
}

// fakeQuerier computes one row per (transaction, project) pair found in the
// request's conditions, sorted by the request's orderby.
type fakeQuerier struct {
	requests []query.Request
	err      error
}

func (f *fakeQuerier) Query(_ context.Context, req query.Request) (query.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return query.Result{}, f.err
	}
	rows := make([]map[string]any, 0)
	for _, group := range req.Conditions {
		for _, cond := range group {
			and := cond.LHS.(query.Function)
			name := and.Args[0].(query.Function).Args[1].(string)
			projectID := and.Args[1].(query.Function).Args[1].(int64)
			row := map[string]any{}
			for _, field := range req.Fields {
				switch field {
				case "transaction":
					row["transaction"] = strings.Trim(name, "'")
				case "project.id":
					row["project.id"] = float64(projectID)
				default:
					row[query.Alias(field)] = float64(len(name))
				}
			}
			rows = append(rows, row)
		}
	}
	if key := strings.TrimPrefix(req.OrderBy, "-"); key != "" {
		desc := strings.HasPrefix(req.OrderBy, "-")
		sort.SliceStable(rows, func(i, j int) bool {
			less := lessValue(rows[i][key], rows[j][key])
			if desc {
				return lessValue(rows[j][key], rows[i][key])
			}
			return less
		})
	}
	if req.Offset < len(rows) {
		rows = rows[req.Offset:]
	} else {
		rows = rows[:0]
	}
	if req.Limit > 0 && len(rows) > req.Limit {
		rows = rows[:req.Limit]
	}
	meta := map[string]string{}
	for _, field := range req.Fields {
		meta[query.Alias(field)] = "string"
	}
	return query.Result{Data: rows, Meta: meta}, nil
}

func lessValue(a, b any) bool {
	switch x := a.(type) {
	case string:
		y, _ := b.(string)
		return x < y
	case float64:
		y, _ := b.(float64)
		return x < y
	}
	return false
}

type fakeAuditAppender struct {
	events []domain.AuditEvent
	err    error
}

func (f *fakeAuditAppender) Append(_ context.Context, event domain.AuditEvent) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.events = append(f.events, event)
	return int64(len(f.events)), nil
}

type fakeExportStore struct {
	objects map[string][]byte
	putErr  error
}

func (f *fakeExportStore) Put(_ context.Context, key string, body io.Reader, size int64, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, body)
	if err != nil {
		return err
	}
	if n != size {
		return errors.New("size mismatch")
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = buf.Bytes()
	return nil
}

func (f *fakeExportStore) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	return "https://exports.example.test/" + key + "?ttl=" + ttl.String(), nil
}
