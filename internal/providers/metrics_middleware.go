package providers

import (
	"net/http"
	"time"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// metricEndpoints is the fixed route set exported as metric labels. Anything
// else (scanners, typos) collapses into one bucket so label cardinality
// stays bounded.
var metricEndpoints = map[string]struct{}{
	"/import/enqueue": {},
	"/import/dequeue": {},
	"/import/start":   {},
	"/import/stop":    {},
	"/import/status":  {},
	"/graph":          {},
	"/games":          {},
}

func normalizeEndpoint(path string) string {
	if _, ok := metricEndpoints[path]; ok {
		return path
	}
	return "other"
}

func MetricsMiddleware(metrics MetricsProviderInterface, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		endpoint := normalizeEndpoint(r.URL.Path)
		metrics.IncRequestsTotal(endpoint, sw.status)
		metrics.ObserveRequestDuration(endpoint, duration)
	})
}
