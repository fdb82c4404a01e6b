package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// logFields collects fields that inner middleware and handlers attach to
// the request log line. The logging middleware owns it and writes it out
// after the request completes.
type logFields struct {
	mu     sync.Mutex
	fields []zap.Field
}

type logFieldsKey struct{}

// AddLogFields attaches fields to the request log line. It is a no-op
// outside LoggingMiddleware.
func AddLogFields(ctx context.Context, fields ...zap.Field) {
	holder, ok := ctx.Value(logFieldsKey{}).(*logFields)
	if !ok {
		return
	}
	holder.mu.Lock()
	holder.fields = append(holder.fields, fields...)
	holder.mu.Unlock()
}

// routeParams are the URL parameters worth a log field
var routeParams = []struct {
	param string
	field string
}{
	{"contextID", "context_id"},
	{"submissionID", "submission_id"},
}

// LoggingMiddleware logs one line per request with the route pattern, the
// journal and submission from the path, and whatever inner layers added
// through AddLogFields (user, locale).
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			holder := &logFields{}

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), logFieldsKey{}, holder)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("size", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			}

			// chi fills the shared route context while routing
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					fields = append(fields, zap.String("route", pattern))
				}
				for _, p := range routeParams {
					if v := rctx.URLParam(p.param); v != "" {
						fields = append(fields, zap.String(p.field, v))
					}
				}
			}

			holder.mu.Lock()
			fields = append(fields, holder.fields...)
			holder.mu.Unlock()

			switch {
			case status >= http.StatusInternalServerError:
				logger.Error("http request", fields...)
			case status >= http.StatusBadRequest:
				logger.Warn("http request", fields...)
			default:
				logger.Info("http request", fields...)
			}
		})
	}
}

// RecoveryMiddleware turns a handler panic into a 500 and logs the stack
func RecoveryMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						zap.Any("error", rec),
						zap.Stack("stack"),
						zap.String("request_id", chimiddleware.GetReqID(r.Context())),
						zap.String("path", r.URL.Path),
					)
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
