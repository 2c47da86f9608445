package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tracewell/discover-go/internal/domain"
	"github.com/tracewell/discover-go/internal/platform/auditlog"
	"github.com/tracewell/discover-go/internal/platform/auth"
	"github.com/tracewell/discover-go/internal/platform/openapi"
	"github.com/tracewell/discover-go/internal/platform/requestid"
	"github.com/tracewell/discover-go/internal/query"
	"github.com/tracewell/discover-go/internal/repo"
	"github.com/tracewell/discover-go/internal/service/keytransactions"
)

const (
	keyTransactionsPath = "/organizations/{organization_slug}/key-transactions/"
	exportPath          = "/organizations/{organization_slug}/key-transactions/export/"

	detailNotFound  = "The requested resource does not exist"
	detailForbidden = "You do not have permission to perform this action."
	detailNoProject = "No project with that id found"
	detailDuplicate = "This Key Transaction was already added"
	detailInternal  = "Internal Error"
)

type keyTransactionsAPI struct {
	logger    *slog.Logger
	orgs      repo.OrganizationRepository
	svc       *keytransactions.Service
	validator *openapi.Validator
	now       func() time.Time
}

func newKeyTransactionsAPI(logger *slog.Logger, orgs repo.OrganizationRepository, svc *keytransactions.Service, validator *openapi.Validator) *keyTransactionsAPI {
	return &keyTransactionsAPI{
		logger:    logger,
		orgs:      orgs,
		svc:       svc,
		validator: validator,
		now:       time.Now,
	}
}

func (api *keyTransactionsAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+keyTransactionsPath+"{$}", api.handleList)
	mux.HandleFunc("POST "+keyTransactionsPath+"{$}", api.handleCreate)
	mux.HandleFunc("DELETE "+keyTransactionsPath+"{$}", api.handleDelete)
	mux.HandleFunc("POST "+exportPath+"{$}", api.handleExport)
}

type keyTransactionRequest struct {
	Project     *projectID `json:"project"`
	Transaction *string    `json:"transaction"`
}

type exportRequest struct {
	Field       []string    `json:"field"`
	OrderBy     string      `json:"orderby,omitempty"`
	Project     []projectID `json:"project,omitempty"`
	Environment []string    `json:"environment,omitempty"`
	Query       string      `json:"query,omitempty"`
	StatsPeriod string      `json:"statsPeriod,omitempty"`
	Start       string      `json:"start,omitempty"`
	End         string      `json:"end,omitempty"`
}

type exportResponse struct {
	ExportID  string    `json:"export_id"`
	ObjectKey string    `json:"object_key"`
	Rows      int       `json:"rows"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type listResponse struct {
	Data []map[string]any  `json:"data"`
	Meta map[string]string `json:"meta"`
}

// begin runs the steps shared by every route: organization lookup,
// membership, the feature gate and then request validation. It writes the
// error response itself and reports whether the handler may continue.
func (api *keyTransactionsAPI) begin(w http.ResponseWriter, r *http.Request, path string) (domain.Organization, keytransactions.Actor, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.Subject) == "" {
		api.writeDetail(w, r, http.StatusNotFound, detailNotFound)
		return domain.Organization{}, keytransactions.Actor{}, false
	}

	slug := strings.TrimSpace(r.PathValue("organization_slug"))
	org, err := api.orgs.GetBySlug(r.Context(), slug)
	if errors.Is(err, repo.ErrNotFound) {
		api.writeDetail(w, r, http.StatusNotFound, detailNotFound)
		return domain.Organization{}, keytransactions.Actor{}, false
	}
	if err != nil {
		api.writeInternal(w, r, "resolve organization", err)
		return domain.Organization{}, keytransactions.Actor{}, false
	}

	member, err := api.orgs.IsMember(r.Context(), org.ID, identity.Subject)
	if err != nil {
		api.writeInternal(w, r, "check membership", err)
		return domain.Organization{}, keytransactions.Actor{}, false
	}
	if !member {
		api.writeDetail(w, r, http.StatusForbidden, detailForbidden)
		return domain.Organization{}, keytransactions.Actor{}, false
	}

	actor := keytransactions.Actor{
		Subject:   strings.TrimSpace(identity.Subject),
		RequestID: requestid.FromContext(r.Context()),
		UserAgent: r.UserAgent(),
		IP:        auditlog.RequestIP(r.RemoteAddr),
	}
	if err := api.svc.CheckFeature(r.Context(), org, actor); err != nil {
		api.writeServiceError(w, r, err)
		return domain.Organization{}, keytransactions.Actor{}, false
	}

	if api.validator != nil {
		if err := api.validator.Validate(r, path, map[string]string{"organization_slug": slug}); err != nil {
			var reqErr *openapi.RequestError
			if errors.As(err, &reqErr) {
				api.writeDetail(w, r, http.StatusBadRequest, reqErr.Detail)
			} else {
				api.writeInternal(w, r, "validate request", err)
			}
			return domain.Organization{}, keytransactions.Actor{}, false
		}
	}
	return org, actor, true
}

func (api *keyTransactionsAPI) handleCreate(w http.ResponseWriter, r *http.Request) {
	org, actor, ok := api.begin(w, r, keyTransactionsPath)
	if !ok {
		return
	}

	var req keyTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeDetail(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Project == nil {
		api.writeDetail(w, r, http.StatusBadRequest, detailNoProject)
		return
	}
	if req.Transaction == nil {
		api.writeDetail(w, r, http.StatusBadRequest, "transaction is required")
		return
	}

	if _, err := api.svc.Create(r.Context(), org, actor, keytransactions.CreateInput{
		ProjectID:   int64(*req.Project),
		Transaction: *req.Transaction,
	}); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (api *keyTransactionsAPI) handleDelete(w http.ResponseWriter, r *http.Request) {
	org, actor, ok := api.begin(w, r, keyTransactionsPath)
	if !ok {
		return
	}

	in, err := deleteInput(r)
	if err != nil {
		api.writeDetail(w, r, http.StatusNotFound, detailNotFound)
		return
	}
	if err := api.svc.Delete(r.Context(), org, actor, in); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deleteInput reads project and transaction from the JSON body, falling back
// to query parameters when the body is empty.
func deleteInput(r *http.Request) (keytransactions.DeleteInput, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return keytransactions.DeleteInput{}, err
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		var req keyTransactionRequest
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return keytransactions.DeleteInput{}, err
		}
		var in keytransactions.DeleteInput
		if req.Project != nil {
			in.ProjectID = int64(*req.Project)
		}
		if req.Transaction != nil {
			in.Transaction = *req.Transaction
		}
		return in, nil
	}

	q := r.URL.Query()
	var in keytransactions.DeleteInput
	if raw := strings.TrimSpace(q.Get("project")); raw != "" {
		var id projectID
		if err := id.UnmarshalJSON([]byte(raw)); err != nil {
			return keytransactions.DeleteInput{}, err
		}
		in.ProjectID = int64(id)
	}
	in.Transaction = q.Get("transaction")
	return in, nil
}

func (api *keyTransactionsAPI) handleList(w http.ResponseWriter, r *http.Request) {
	org, actor, ok := api.begin(w, r, keyTransactionsPath)
	if !ok {
		return
	}
	q := r.URL.Query()

	start, end, err := timeframe(q.Get("statsPeriod"), q.Get("start"), q.Get("end"), api.now())
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	projectIDs, err := parseProjectIDs(q["project"])
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	cur, err := parseCursor(q.Get("cursor"))
	if err != nil {
		api.writeDetail(w, r, http.StatusBadRequest, "Invalid cursor parameter.")
		return
	}
	limit := clampInt(parseIntQuery(r, "per_page", keytransactions.DefaultPerPage), 1, keytransactions.MaxPerPage)

	res, err := api.svc.List(r.Context(), org, actor, keytransactions.ListInput{
		Fields:       q["field"],
		OrderBy:      q.Get("orderby"),
		ProjectIDs:   projectIDs,
		Environments: q["environment"],
		Query:        q.Get("query"),
		Start:        start,
		End:          end,
		Limit:        limit,
		Offset:       cur.Offset,
	})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Link", linkHeader(r, limit, cur.Offset, res.HasMore))
	api.writeJSON(w, http.StatusOK, listResponse{Data: res.Data, Meta: res.Meta})
}

func (api *keyTransactionsAPI) handleExport(w http.ResponseWriter, r *http.Request) {
	org, actor, ok := api.begin(w, r, exportPath)
	if !ok {
		return
	}

	var req exportRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeDetail(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	start, end, err := timeframe(req.StatsPeriod, req.Start, req.End, api.now())
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	projectIDs := make([]int64, 0, len(req.Project))
	for _, id := range req.Project {
		projectIDs = append(projectIDs, int64(id))
	}
	projectIDs, err = selectProjects(projectIDs)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	out, err := api.svc.Export(r.Context(), org, actor, keytransactions.ExportInput{
		Fields:       req.Field,
		OrderBy:      req.OrderBy,
		ProjectIDs:   projectIDs,
		Environments: req.Environment,
		Query:        req.Query,
		Start:        start,
		End:          end,
	})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusCreated, exportResponse{
		ExportID:  out.ID,
		ObjectKey: out.ObjectKey,
		Rows:      out.Rows,
		URL:       out.URL,
		ExpiresAt: out.ExpiresAt,
	})
}

func (api *keyTransactionsAPI) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *keytransactions.ValidationError
	var statusErr *query.StatusError
	switch {
	case errors.Is(err, keytransactions.ErrFeatureDisabled),
		errors.Is(err, keytransactions.ErrNotFound),
		errors.Is(err, keytransactions.ErrExportUnavailable):
		api.writeDetail(w, r, http.StatusNotFound, detailNotFound)
	case errors.Is(err, keytransactions.ErrProjectNotFound):
		api.writeDetail(w, r, http.StatusBadRequest, detailNoProject)
	case errors.Is(err, keytransactions.ErrLimitExceeded):
		api.writeDetail(w, r, http.StatusBadRequest, fmt.Sprintf("At most %d Key Transactions can be added", domain.MaxKeyTransactions))
	case errors.Is(err, keytransactions.ErrDuplicate):
		api.writeDetail(w, r, http.StatusBadRequest, detailDuplicate)
	case errors.Is(err, keytransactions.ErrInvalidProjects):
		api.writeDetail(w, r, http.StatusBadRequest, "Invalid project ids")
	case errors.As(err, &vErr):
		api.writeDetail(w, r, http.StatusBadRequest, vErr.Detail)
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusBadRequest:
		api.writeDetail(w, r, http.StatusBadRequest, "Invalid query: "+statusErr.Body)
	case errors.As(err, &statusErr):
		api.logger.Error("query delegate failed", "request_id", r.Header.Get(requestid.Header), "status", statusErr.StatusCode, "error", err)
		api.writeDetail(w, r, http.StatusBadGateway, "Query delegate unavailable")
	default:
		api.writeInternal(w, r, "key transactions", err)
	}
}

func (api *keyTransactionsAPI) writeInternal(w http.ResponseWriter, r *http.Request, op string, err error) {
	api.logger.Error(op+" failed", "request_id", r.Header.Get(requestid.Header), "error", err)
	api.writeDetail(w, r, http.StatusInternalServerError, detailInternal)
}

func (api *keyTransactionsAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *keyTransactionsAPI) writeDetail(w http.ResponseWriter, r *http.Request, status int, detail string) {
	body := map[string]any{"detail": detail}
	if status >= http.StatusInternalServerError {
		body["request_id"] = r.Header.Get(requestid.Header)
	}
	api.writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}
