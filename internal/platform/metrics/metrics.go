package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lineup_orchestrator"

// Collectors groups the process metrics. A nil *Collectors is valid and
// records nothing, so packages can take it as an optional dependency.
type Collectors struct {
	gatherer prometheus.Gatherer

	cacheEvents        *prometheus.CounterVec
	cacheDroppedEvents prometheus.Counter
	guardCalls         *prometheus.CounterVec
	guardAttempts      *prometheus.CounterVec
	guardLatency       *prometheus.HistogramVec
	circuitTransitions *prometheus.CounterVec
	circuitState       *prometheus.GaugeVec
	syncState          *prometheus.GaugeVec
	syncDeltas         *prometheus.CounterVec
	optimizationJobs   *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Collectors {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return NewWithRegistry(reg, reg)
}

func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		gatherer: gatherer,
		cacheEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_events_total",
			Help:      "Cache misses and evictions by reason",
		}, []string{"kind", "reason"}),
		cacheDroppedEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_observer_dropped_total",
			Help:      "Cache events dropped because the observer queue was full",
		}),
		guardCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_calls_total",
			Help:      "Guarded remote calls by operation class and outcome kind",
		}, []string{"class", "outcome"}),
		guardAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_attempts_total",
			Help:      "Individual remote attempts including retries",
		}, []string{"class"}),
		guardLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "guard_call_duration_seconds",
			Help:      "Guarded call duration including retries",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"class"}),
		circuitTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_transitions_total",
			Help:      "Circuit breaker transitions",
		}, []string{"class", "from", "to"}),
		circuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "Current breaker state per class (0 closed, 1 half open, 2 open)",
		}, []string{"class"}),
		syncState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_channel_state",
			Help:      "1 for the realtime channel's current state, 0 otherwise",
		}, []string{"state"}),
		syncDeltas: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_deltas_total",
			Help:      "Inbound realtime deltas by merge result",
		}, []string{"result"}),
		optimizationJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimization_jobs_total",
			Help:      "Optimization jobs by terminal status",
		}, []string{"kind", "status"}),
	}
}

func (c *Collectors) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func (c *Collectors) CacheEvent(kind, reason string) {
	if c == nil {
		return
	}
	c.cacheEvents.WithLabelValues(kind, reason).Inc()
}

func (c *Collectors) CacheEventDropped() {
	if c == nil {
		return
	}
	c.cacheDroppedEvents.Inc()
}

func (c *Collectors) GuardCall(class, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.guardCalls.WithLabelValues(class, outcome).Inc()
	c.guardLatency.WithLabelValues(class).Observe(elapsed.Seconds())
}

func (c *Collectors) GuardAttempt(class string) {
	if c == nil {
		return
	}
	c.guardAttempts.WithLabelValues(class).Inc()
}

func (c *Collectors) CircuitTransition(class, from, to string, level float64) {
	if c == nil {
		return
	}
	c.circuitTransitions.WithLabelValues(class, from, to).Inc()
	c.circuitState.WithLabelValues(class).Set(level)
}

// SyncState marks state as current and clears the others.
func (c *Collectors) SyncState(state string, all []string) {
	if c == nil {
		return
	}
	for _, s := range all {
		value := 0.0
		if s == state {
			value = 1
		}
		c.syncState.WithLabelValues(s).Set(value)
	}
}

func (c *Collectors) SyncDelta(result string) {
	if c == nil {
		return
	}
	c.syncDeltas.WithLabelValues(result).Inc()
}

func (c *Collectors) OptimizationJob(kind, status string) {
	if c == nil {
		return
	}
	c.optimizationJobs.WithLabelValues(kind, status).Inc()
}
