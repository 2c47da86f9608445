// Command discover serves the organization key-transactions API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	apidoc "github.com/tracewell/discover-go/api"
	"github.com/tracewell/discover-go/internal/platform/auditlog"
	"github.com/tracewell/discover-go/internal/platform/auth"
	"github.com/tracewell/discover-go/internal/platform/features"
	"github.com/tracewell/discover-go/internal/platform/httpserver"
	"github.com/tracewell/discover-go/internal/platform/openapi"
	platformotel "github.com/tracewell/discover-go/internal/platform/otel"
	repopg "github.com/tracewell/discover-go/internal/repo/postgres"
	"github.com/tracewell/discover-go/internal/service/keytransactions"
)

const serviceName = "discover"

// configError marks failures caused by the environment rather than by a
// dependency; main exits 2 for them.
type configError struct {
	what string
	err  error
}

func (e configError) Error() string { return fmt.Sprintf("invalid %s config: %v", e.what, e.err) }
func (e configError) Unwrap() error { return e.err }

func invalid(what string, err error) error { return configError{what: what, err: err} }

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, logger)
	stop()
	if err == nil {
		return
	}

	code := 1
	var cfgErr configError
	if errors.As(err, &cfgErr) {
		code = 2
	}
	logger.Error("discover stopped", "error", err, "exit_code", code)
	os.Exit(code)
}

func run(ctx context.Context, logger *slog.Logger) error {
	httpCfg, err := httpserver.ConfigFromEnv(serviceName)
	if err != nil {
		return invalid("http", err)
	}

	shutdownTracing, err := platformotel.Setup(ctx, serviceName)
	if err != nil {
		return invalid("tracing", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	db, err := openDatabase(ctx, logger)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	readiness := []httpserver.ReadinessCheck{{Name: "postgres", Check: db.PingContext}}

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		return invalid("auth", err)
	}
	authenticator, err := auth.NewAuthenticator(ctx, authCfg)
	if err != nil {
		return fmt.Errorf("auth init: %w", err)
	}

	featureCfg, err := features.ConfigFromEnv()
	if err != nil {
		return invalid("feature", err)
	}
	featureRegistry, err := features.Load(featureCfg, repopg.NewFeatureStore(db))
	if err != nil {
		return invalid("feature", err)
	}

	delegate, err := buildQuerier(ctx, logger)
	if err != nil {
		return err
	}
	defer delegate.close()
	readiness = append(readiness, delegate.checks...)

	service := keytransactions.New(featureRegistry, repopg.NewProjectStore(db), repopg.NewKeyTransactionStore(db, serviceName), delegate.querier)
	service.WithAudit(repopg.NewAuditAppender(db, serviceName))

	exportCheck, err := attachExports(ctx, service)
	if err != nil {
		return err
	}
	if exportCheck != nil {
		readiness = append(readiness, *exportCheck)
	}

	validator, err := openapi.Load(ctx, apidoc.KeyTransactions)
	if err != nil {
		return invalid("openapi", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz(serviceName))
	mux.HandleFunc("/readyz", httpserver.ReadyzWithChecks(serviceName, readiness...))
	newKeyTransactionsAPI(logger, repopg.NewOrganizationStore(db), service, validator).register(mux)

	handler := auth.Middleware{
		Logger:        logger,
		Authenticator: authenticator,
		Authorize:     auth.ScopeAuthorizer(),
		Audit: func(ctx context.Context, event auth.DenyEvent) error {
			auditCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
			defer cancel()
			return auditlog.InsertAuthDeny(auditCtx, db, serviceName, event)
		},
		SkipPrefixes:        []string{"/healthz", "/readyz"},
		HideUnauthenticated: true,
	}.Wrap(mux)

	err = httpserver.Run(ctx, logger, httpCfg, httpserver.Wrap(logger, serviceName, handler))
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
