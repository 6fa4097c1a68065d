package app

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aussiebroadwan/keyhouse/pkg/kv"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal *prometheus.CounterVec

	KVState          prometheus.Gauge
	KVFallbacksTotal *prometheus.CounterVec

	LoginLockoutsTotal prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers every collector on registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyhouse_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "status"},
		),
		KVState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "keyhouse_kv_state",
			Help: "Key-value facade state (0 up, 1 down, 2 syncing)",
		}),
		KVFallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyhouse_kv_fallbacks_total",
				Help: "Operations served by the local key-value tier",
			},
			[]string{"op"},
		),
		LoginLockoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyhouse_login_lockouts_total",
			Help: "Logins locked out after repeated failures",
		}),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.KVState,
		m.KVFallbacksTotal,
		m.LoginLockoutsTotal,
	)
	return m
}

// ObserveKVState is a kv.FacadeConfig.OnStateChange hook.
func (m *Metrics) ObserveKVState(s kv.State) {
	m.KVState.Set(float64(s))
}

// ObserveKVFallback is a kv.FacadeConfig.OnFallback hook.
func (m *Metrics) ObserveKVFallback(op string) {
	m.KVFallbacksTotal.WithLabelValues(op).Inc()
}

// ObserveLockout is a service.EngineConfig.OnLockout hook.
func (m *Metrics) ObserveLockout(string) {
	m.LoginLockoutsTotal.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware counts requests by method and response status.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rw.status)).Inc()
	})
}
