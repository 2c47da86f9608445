package keytransactions

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tracewell/discover-go/internal/domain"
	"github.com/tracewell/discover-go/internal/query"
)

// ExportStore persists export files and hands out time-limited download URLs.
type ExportStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type ExportInput struct {
	Fields       []string
	OrderBy      string
	ProjectIDs   []int64
	Environments []string
	Query        string
	Start        time.Time
	End          time.Time
}

type ExportResult struct {
	ID        string
	ObjectKey string
	Rows      int
	URL       string
	ExpiresAt time.Time
}

// Export writes every row List would return for the actor's key transactions
// to a CSV object. One row exists per key transaction, so the query is bounded
// by domain.MaxKeyTransactions per project.
func (s *Service) Export(ctx context.Context, org domain.Organization, actor Actor, in ExportInput) (ExportResult, error) {
	if s.exports == nil {
		return ExportResult{}, ErrExportUnavailable
	}

	list := ListInput{
		Fields:       in.Fields,
		OrderBy:      in.OrderBy,
		ProjectIDs:   in.ProjectIDs,
		Environments: in.Environments,
		Query:        in.Query,
		Start:        in.Start,
		End:          in.End,
	}
	req, projects, err := s.buildRequest(ctx, org, actor, list)
	if err != nil {
		return ExportResult{}, err
	}
	req.Limit = len(req.ProjectIDs) * domain.MaxKeyTransactions
	if req.Limit == 0 {
		req.Limit = domain.MaxKeyTransactions
	}

	res, err := s.querier.Query(ctx, req)
	if err != nil {
		return ExportResult{}, fmt.Errorf("query delegate: %w", err)
	}
	fields := normalizeFields(in.Fields)
	shaped := shapeResult(res, fields, projects)

	body, err := encodeCSV(fields, shaped.Data)
	if err != nil {
		return ExportResult{}, err
	}

	exportID := uuid.NewString()
	key := fmt.Sprintf("key-transactions/%s/%s.csv", org.Slug, exportID)
	if err := s.exports.Put(ctx, key, bytes.NewReader(body), int64(len(body)), "text/csv"); err != nil {
		return ExportResult{}, fmt.Errorf("store export: %w", err)
	}
	url, err := s.exports.PresignGet(ctx, key, s.exportTTL)
	if err != nil {
		return ExportResult{}, fmt.Errorf("presign export: %w", err)
	}

	out := ExportResult{
		ID:        exportID,
		ObjectKey: key,
		Rows:      len(shaped.Data),
		URL:       url,
		ExpiresAt: s.now().UTC().Add(s.exportTTL),
	}
	if err := s.appendAudit(ctx, s.auditEvent(org, actor, AuditActionExport, exportID, map[string]any{
		"object_key": key,
		"rows":       out.Rows,
	})); err != nil {
		return out, err
	}
	return out, nil
}

func encodeCSV(fields []string, rows []map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(fields))
	for _, row := range rows {
		for i, f := range fields {
			record[i] = csvValue(row[query.Alias(f)])
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func csvValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
