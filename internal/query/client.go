package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tracewell/discover-go/internal/platform/requestid"
)

// Querier runs a query against the delegate.
type Querier interface {
	Query(ctx context.Context, req Request) (Result, error)
}

// StatusError is returned when the delegate answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("query delegate returned %d: %s", e.StatusCode, e.Body)
}

const maxResponseBytes = 16 << 20

type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient builds an HTTP client for the delegate. When client credentials
// are configured every call carries an OAuth2 bearer token.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	httpClient := base
	if cfg.ClientID != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		httpClient = cc.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
		httpClient.Timeout = cfg.Timeout
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.URL, "/") + "/query",
		http:     httpClient,
	}, nil
}

func (c *Client) Query(ctx context.Context, req Request) (Result, error) {
	if c == nil || c.http == nil {
		return Result{}, fmt.Errorf("query client not initialized")
	}
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	if req.Unsatisfiable() {
		return Result{Data: []map[string]any{}, Meta: map[string]string{}}, nil
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("marshal query: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build query request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if req.Referrer != "" {
		httpReq.Header.Set("Referer", req.Referrer)
	}
	if id := requestid.FromContext(ctx); id != "" {
		httpReq.Header.Set(requestid.Header, id)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("query delegate: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read query response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out Result
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, fmt.Errorf("decode query response: %w", err)
	}
	if out.Data == nil {
		out.Data = []map[string]any{}
	}
	if out.Meta == nil {
		out.Meta = map[string]string{}
	}
	return out, nil
}
