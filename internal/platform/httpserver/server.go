// Package httpserver runs the HTTP listener and the middleware every
// discover route shares: panic recovery, request logging, request ids and
// tracing.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tracewell/discover-go/internal/platform/env"
	"github.com/tracewell/discover-go/internal/platform/requestid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Config struct {
	Service         string
	Addr            string
	ShutdownTimeout time.Duration
	WriteTimeout    time.Duration
}

// ConfigFromEnv reads <PREFIX>_HTTP_ADDR, <PREFIX>_SHUTDOWN_TIMEOUT and
// <PREFIX>_HTTP_WRITE_TIMEOUT, where PREFIX is the upper-cased service name.
func ConfigFromEnv(service string) (Config, error) {
	prefix := strings.ToUpper(strings.ReplaceAll(service, "-", "_"))
	shutdown, err := env.Duration(prefix+"_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	write, err := env.Duration(prefix+"_HTTP_WRITE_TIMEOUT", time.Minute)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Service:         service,
		Addr:            env.String(prefix+"_HTTP_ADDR", ":8080"),
		ShutdownTimeout: shutdown,
		WriteTimeout:    write,
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.Service == "":
		return errors.New("service is required")
	case c.Addr == "":
		return errors.New("addr is required")
	case c.ShutdownTimeout < 0 || c.WriteTimeout < 0:
		return errors.New("timeouts must be >= 0")
	}
	return nil
}

// Wrap installs panic recovery, request logging, request ids and tracing around next.
func Wrap(logger *slog.Logger, service string, next http.Handler) http.Handler {
	traced := otelhttp.NewHandler(next, service)
	return recoverMiddleware(logger, requestLogMiddleware(logger, requestIDMiddleware(service, traced)))
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func Run(ctx context.Context, logger *slog.Logger, cfg Config, handler http.Handler) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = time.Minute
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "service", cfg.Service, "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("http server draining", "service", cfg.Service, "timeout", cfg.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	id := requestid.FromContext(ctx)
	return id, id != ""
}

func requestIDMiddleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestid.Header))
		if id == "" {
			var err error
			if id, err = requestid.New(); err != nil {
				id = fmt.Sprintf("%s-%d", service, time.Now().UnixNano())
			}
		}
		r.Header.Set(requestid.Header, id)
		w.Header().Set(requestid.Header, id)
		next.ServeHTTP(w, r.WithContext(requestid.NewContext(r.Context(), id)))
	})
}

// statusWriter records what the handler wrote. Unwrap lets
// http.ResponseController reach flush and hijack on the underlying writer.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func requestLogMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		level := slog.LevelInfo
		if sw.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(r.Context(), level, "http request",
			"request_id", r.Header.Get(requestid.Header),
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"bytes", sw.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func recoverMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			rid := r.Header.Get(requestid.Header)
			logger.Error("panic recovered", "request_id", rid, "panic", v)
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"detail":     "Internal Error",
				"request_id": rid,
			})
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
