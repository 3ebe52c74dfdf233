package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	slotsCreated    prometheus.Counter
	conflicts       prometheus.Counter
	slotsReaped     prometheus.Counter
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		slotsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schedule_slots_created_total",
			Help: "Slots persisted by creation requests.",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schedule_conflicts_total",
			Help: "Creation requests rejected because a candidate overlapped an existing slot.",
		}),
		slotsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schedule_slots_reaped_total",
			Help: "Elapsed AVAILABLE slots removed on the read path.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schedule_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "schedule_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	m.registry.MustRegister(
		m.slotsCreated,
		m.conflicts,
		m.slotsReaped,
		m.requests,
		m.requestDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) SlotsCreated(n int) { m.slotsCreated.Add(float64(n)) }
func (m *Metrics) Conflict()          { m.conflicts.Inc() }
func (m *Metrics) SlotsReaped(n int)  { m.slotsReaped.Add(float64(n)) }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and latency labelled by the matched mux
// pattern, so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
