package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the HTTP telemetry for the API surface.
type Metrics struct {
	RequestDuration *prometheus.SummaryVec
}

// NewMetrics registers the API metrics on the given registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestDuration: promauto.With(registry).NewSummaryVec(prometheus.SummaryOpts{
			Namespace: "droply",
			Name:      "requests_duration_seconds",
			Help:      "Time spent answering API requests.",
		}, []string{"route", "status"}),
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument wraps a handler with per-route duration/status telemetry.
func (m *Metrics) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		m.RequestDuration.
			WithLabelValues(route, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}
