// Package metrics exposes Prometheus instrumentation for the dispatch and
// hot-reload core, grounded on the teacher's pkg/metrics package (same
// promauto-vector-of-counters/histograms shape as FilterMetrics and
// BusinessMetrics) but scoped to this dispatcher's five components
// instead of alert filtering.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/histogram the dispatch core emits.
type Metrics struct {
	cyclesTotal      *prometheus.CounterVec
	cycleDuration    *prometheus.HistogramVec
	modulesInvoked   *prometheus.CounterVec
	moduleDuration   *prometheus.HistogramVec
	moduleReloads    *prometheus.CounterVec
	filterEvaluated  *prometheus.CounterVec
	archiveCallsVec  *prometheus.CounterVec
	registrySize     prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Default returns the process-wide Metrics instance, registered against
// the default Prometheus registerer exactly once — the singleton pattern
// the teacher uses for its own DefaultRegistry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New("dicomdispatch")
	})
	return defaultMetrics
}

// New builds a Metrics instance under the given namespace. Tests that
// need an isolated registry (rather than the process-wide default)
// should call NewWithRegisterer with a prometheus.NewRegistry() instead.
func New(namespace string) *Metrics {
	return newWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewWithRegisterer builds a Metrics instance registered against reg
// instead of the global default registerer, for test isolation.
func NewWithRegisterer(namespace string, reg prometheus.Registerer) *Metrics {
	return newWithRegisterer(namespace, reg)
}

func newWithRegisterer(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		cyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "cycles_total",
			Help:      "Total number of event dispatch cycles, by branch taken.",
		}, []string{"branch"}), // branch: echo, external, empty
		cycleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "cycle_duration_seconds",
			Help:      "Wall-clock duration of one event dispatch cycle.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"level"}),
		modulesInvoked: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "invocations_total",
			Help:      "Total number of module process calls, by outcome.",
		}, []string{"module", "outcome"}), // outcome: ok, filtered_out, error
		moduleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "process_duration_seconds",
			Help:      "Duration of a module's process call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"module"}),
		moduleReloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "reloads_total",
			Help:      "Total number of module (re)loads, by kind and outcome.",
		}, []string{"kind", "outcome"}), // kind: full, code_only; outcome: ok, failed
		filterEvaluated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "evaluations_total",
			Help:      "Total number of Filter Engine evaluations, by result.",
		}, []string{"result"}), // result: matched, rejected
		archiveCallsVec: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "calls_total",
			Help:      "Total number of Archive Client calls, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		registrySize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "module",
			Name:      "registry_size",
			Help:      "Number of modules currently loaded.",
		}),
	}
}

func (m *Metrics) ObserveCycle(branch, level string, seconds float64) {
	m.cyclesTotal.WithLabelValues(branch).Inc()
	m.cycleDuration.WithLabelValues(level).Observe(seconds)
}

func (m *Metrics) ObserveModule(moduleID, outcome string, seconds float64) {
	m.modulesInvoked.WithLabelValues(moduleID, outcome).Inc()
	if outcome == "ok" {
		m.moduleDuration.WithLabelValues(moduleID).Observe(seconds)
	}
}

func (m *Metrics) ObserveReload(kind, outcome string) {
	m.moduleReloads.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveFilter(matched bool) {
	result := "rejected"
	if matched {
		result = "matched"
	}
	m.filterEvaluated.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveArchiveCall(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.archiveCallsVec.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) SetRegistrySize(n int) {
	m.registrySize.Set(float64(n))
}
