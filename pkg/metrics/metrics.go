package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
)

// Metrics métricas del motor de movimientos sobre un registry propio.
type Metrics struct {
	registry *prometheus.Registry

	CommitsTotal        *prometheus.CounterVec
	CommitDuration      *prometheus.HistogramVec
	CommitRejections    *prometheus.CounterVec
	StockPosted         *prometheus.CounterVec
	CacheLookups        *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
}

// New registra las métricas bajo el namespace dado.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.CommitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commits_total",
		Help:      "Commits de documentos de movimiento por dirección, estado destino y resultado",
	}, []string{"direction", "target", "outcome"})

	m.CommitDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "commit_duration_seconds",
		Help:      "Duración del commit (incluye bloqueos y reintentos)",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"direction"})

	m.CommitRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commit_rejections_total",
		Help:      "Commits rechazados por tipo de error",
	}, []string{"class", "kind"})

	m.StockPosted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_units_posted_total",
		Help:      "Unidades aplicadas al ledger por efecto",
	}, []string{"effect"})

	m.CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "availability_cache_lookups_total",
		Help:      "Consultas a la caché de disponibilidad",
	}, []string{"result"})

	m.CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_state",
		Help:      "Estado del circuit breaker (0=closed, 1=half-open, 2=open)",
	}, []string{"name"})

	registry.MustRegister(
		m.CommitsTotal,
		m.CommitDuration,
		m.CommitRejections,
		m.StockPosted,
		m.CacheLookups,
		m.CircuitBreakerState,
	)
	return m
}

// ObserveBreaker callback para resilience.NewBreaker.
func (m *Metrics) ObserveBreaker(name string, to gobreaker.State) {
	var v float64
	switch to {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(v)
}

// Handler expone el registry en formato Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry registry subyacente (tests).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
