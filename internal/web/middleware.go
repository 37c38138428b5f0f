package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument logs each request and records it in the HTTP metrics
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		took := time.Since(start)

		route := routeLabel(r.URL.Path)
		if s.metrics != nil {
			s.metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
			s.metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(took.Seconds())
		}
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", took)
	})
}

// routeLabel keeps metric cardinality bounded for file routes
func routeLabel(path string) string {
	for _, prefix := range []string{ExportPrefix, "/static/"} {
		if strings.HasPrefix(path, prefix) {
			return prefix
		}
	}
	switch path {
	case "/", "/search", "/api/search", "/api/bounds", "/api/senders", "/api/record", "/api/locate", "/context", "/health", "/metrics":
		return path
	}
	return "other"
}
