package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/zatekoja/inpatient-core/internal/infrastructure/observability"
)

// LoggingMiddleware logs one line per request, tagged with the trace of the
// request when one is active
func LoggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newStatusWriter(w)

			next.ServeHTTP(rw, r)

			reqLogger := observability.LoggerFromContext(r.Context(), logger)
			var evt *zerolog.Event
			switch {
			case rw.statusCode >= http.StatusInternalServerError:
				evt = reqLogger.Error()
			case rw.statusCode >= http.StatusBadRequest:
				evt = reqLogger.Warn()
			default:
				evt = reqLogger.Info()
			}
			evt.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rw.statusCode).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Msg("http request")
		})
	}
}
