package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obelisk_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "obelisk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	GenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obelisk_generations_total",
			Help: "Total number of generation requests by outcome.",
		},
		[]string{"source", "status"},
	)

	GenerationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "obelisk_generation_duration_seconds",
			Help:    "End-to-end generation latency in seconds.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	InfluenceDrawsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obelisk_influence_draws_total",
			Help: "Total number of influence draws by provenance (quantum or default).",
		},
		[]string{"provenance"},
	)

	InteractionPersistFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "obelisk_interaction_persist_failures_total",
			Help: "Total number of interaction writes that failed after a successful generation.",
		},
	)

	InteractionRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obelisk_interaction_retries_total",
			Help: "Total number of out-of-band interaction write retries by result.",
		},
		[]string{"result"},
	)

	EvolutionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obelisk_evolution_transitions_total",
			Help: "Total number of evolution cycle state transitions by target state.",
		},
		[]string{"state"},
	)

	ModelBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "obelisk_model_breaker_state",
			Help: "Circuit breaker state per model backend (0=closed, 1=half-open, 2=open).",
		},
		[]string{"backend"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		GenerationsTotal,
		GenerationDuration,
		InfluenceDrawsTotal,
		InteractionPersistFailuresTotal,
		InteractionRetriesTotal,
		EvolutionTransitionsTotal,
		ModelBreakerState,
	)
}
