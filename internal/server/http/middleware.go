package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/observe/internal/observability"
	"github.com/helixir/observe/internal/observe"
	"github.com/helixir/observe/internal/opcontext"
)

// OperationHTTPRequest names the scope every API request runs in.
const OperationHTTPRequest = "http.request"

// Data keys recorded by observeMiddleware.
const (
	keyMethod        = "http.method"
	keyPath          = "http.path"
	keyRoute         = "http.route"
	keyRemoteAddr    = "http.remote_addr"
	keyStatus        = "http.status"
	keyBytesWritten  = "http.bytes_written"
	keyCorrelationID = "correlation_id"
	keyRequestID     = "request_id"
)

// StatusError marks a request that completed with a server error status.
// It is passed to failure hooks; the response itself is already written.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d", e.Status)
}

// correlationIDMiddleware ensures every request has a correlation ID and
// stores any incoming trace and span IDs as request fields.
func correlationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = middleware.GetReqID(r.Context())
		}
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		w.Header().Set("X-Correlation-ID", correlationID)
		ctx := observability.WithCorrelationID(r.Context(), correlationID)

		traceID, spanID := r.Header.Get("X-Trace-ID"), r.Header.Get("X-Span-ID")
		if traceID != "" || spanID != "" {
			ctx = observability.WithTraceSpan(ctx, traceID, spanID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// observeMiddleware runs the rest of the chain in an http.request scope. The
// scope is seeded with request attributes and receives the final status and
// response size. Responses with a 5xx status settle as failures.
func observeMiddleware(o *observe.Observer, metrics *observability.Metrics, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			fields := observability.RequestFieldsFromContext(r.Context())
			initial := fields.Map()
			initial[keyMethod] = r.Method
			initial[keyPath] = r.URL.Path
			initial[keyRemoteAddr] = r.RemoteAddr
			if reqID := middleware.GetReqID(r.Context()); reqID != "" {
				initial[keyRequestID] = reqID
			}

			cfg := observe.Config{
				Name:    OperationHTTPRequest,
				Scope:   "http",
				Source:  r.Method + " " + r.URL.Path,
				Initial: initial,
			}
			_ = o.ObserveWith(r.Context(), cfg, func(ctx context.Context) error {
				next.ServeHTTP(ww, r.WithContext(ctx))

				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				c := opcontext.Current(ctx)
				c.Set(keyStatus, status)
				c.Set(keyBytesWritten, ww.BytesWritten())
				if route := routePattern(r); route != "" {
					c.Set(keyRoute, route)
				}

				if metrics != nil {
					metrics.RecordHTTPRequest(r.Method, routeLabel(r), strconv.Itoa(status), time.Since(start).Seconds())
				}
				if status >= http.StatusInternalServerError {
					reqLogger := observability.WithCorrelationContext(logger, fields.CorrelationID)
					reqLogger.Error().
						Str("method", r.Method).
						Str("route", routeLabel(r)).
						Int("status", status).
						Str("context_id", c.ID).
						Msg("request failed")
					return &StatusError{Status: status}
				}
				return nil
			})
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

// routeLabel bounds metric cardinality to registered routes.
func routeLabel(r *http.Request) string {
	if route := routePattern(r); route != "" {
		return route
	}
	return "unmatched"
}

// jsonContentTypeMiddleware sets Content-Type: application/json for all responses.
func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
