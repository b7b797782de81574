package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// quietPaths are polled by health checks and scrapers. They are logged only when
// they fail.
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer, which
// the websocket upgrade needs to hijack the connection.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// RequestLogger returns middleware that logs each request by its matched
// route. Event API queries are logged with their filter parameters.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			if quietPaths[r.URL.Path] && rec.status < 500 {
				return
			}

			// The mux fills Pattern on r while routing.
			route := r.Pattern
			if route == "" {
				route = r.Method + " " + r.URL.Path
			}
			attrs := []slog.Attr{
				slog.String("route", route),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Int("bytes", rec.bytes),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote", RealIP(r)),
			}
			if strings.HasPrefix(r.URL.Path, "/api/") && r.URL.RawQuery != "" {
				attrs = append(attrs, slog.Any("query", r.URL.Query()))
			}

			level := slog.LevelInfo
			switch {
			case rec.status >= 500:
				level = slog.LevelError
			case rec.status >= 400:
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "request", attrs...)
		})
	}
}
