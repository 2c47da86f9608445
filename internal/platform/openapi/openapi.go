// Package openapi validates incoming requests against an embedded OpenAPI 3 document.
package openapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
)

type Validator struct {
	doc     *openapi3.T
	options *openapi3filter.Options
}

// RequestError carries a client-facing description of why a request failed validation.
type RequestError struct {
	Detail string
	Err    error
}

func (e *RequestError) Error() string { return e.Detail }
func (e *RequestError) Unwrap() error { return e.Err }

func Load(ctx context.Context, raw []byte) (*Validator, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("load openapi: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi: %w", err)
	}
	return &Validator{
		doc: doc,
		options: &openapi3filter.Options{
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	}, nil
}

// Validate checks r against the operation registered for (method, path template).
// pathParams are the already-matched path values. The request body is restored
// after validation so handlers can decode it again.
func (v *Validator) Validate(r *http.Request, path string, pathParams map[string]string) error {
	if v == nil || v.doc == nil {
		return errors.New("openapi validator is not configured")
	}
	item := v.doc.Paths.Value(path)
	if item == nil {
		return fmt.Errorf("openapi: no path %q", path)
	}
	op := item.GetOperation(strings.ToUpper(r.Method))
	if op == nil {
		return fmt.Errorf("openapi: no %s operation on %q", r.Method, path)
	}

	input := &openapi3filter.RequestValidationInput{
		Request:    r,
		PathParams: pathParams,
		Route: &routers.Route{
			Spec:      v.doc,
			Path:      path,
			PathItem:  item,
			Method:    strings.ToUpper(r.Method),
			Operation: op,
		},
		Options: v.options,
	}
	if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
		return &RequestError{Detail: describe(err), Err: err}
	}
	return nil
}

func describe(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.Parameter != nil:
			return fmt.Sprintf("Invalid %s parameter %q", reqErr.Parameter.In, reqErr.Parameter.Name)
		case reqErr.RequestBody != nil:
			if reqErr.Reason != "" {
				return "Invalid request body: " + reqErr.Reason
			}
			var schemaErr *openapi3.SchemaError
			if errors.As(reqErr.Err, &schemaErr) {
				field := strings.Join(schemaErr.JSONPointer(), ".")
				if field != "" {
					return fmt.Sprintf("Invalid request body: %s: %s", field, schemaErr.Reason)
				}
				return "Invalid request body: " + schemaErr.Reason
			}
			return "Invalid request body"
		}
	}
	return "Invalid request"
}
