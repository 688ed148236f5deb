package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PoolLabel is the label carried by every dueflow metric.
const PoolLabel = "pool"

// Registry holds all metric instances for dueflow pools.
type Registry struct {
	// Work lifecycle
	WorkAccepted *prometheus.CounterVec
	WorkPromoted *prometheus.CounterVec
	WorkExecuted *prometheus.CounterVec
	WorkFailed   *prometheus.CounterVec
	WorkDuration *prometheus.HistogramVec

	// Dispatch
	DispatchLag        *prometheus.HistogramVec
	DispatchQueued     *prometheus.GaugeVec
	DispatchIdleWorker *prometheus.GaugeVec

	// Deadline scheduler and pool state
	DeadlinePending *prometheus.GaugeVec
	Workers         *prometheus.GaugeVec
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry registered on prometheus.DefaultRegisterer.
// It is created on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewWithConfig(Config{Registerer: reg})
}

// NewWithConfig creates a metrics registry from cfg.
func NewWithConfig(cfg Config) *Registry {
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}

	factory := promauto.With(cfg.Registerer)
	labels := []string{PoolLabel}
	ns, constLabels := cfg.Namespace, cfg.ConstLabels

	return &Registry{
		WorkAccepted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "work",
				Name:        "accepted_total",
				Help:        "Total number of work items registered with a pool",
				ConstLabels: constLabels,
			},
			labels,
		),

		WorkPromoted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "work",
				Name:        "promoted_total",
				Help:        "Total number of work items moved from the deadline scheduler to the dispatch queue",
				ConstLabels: constLabels,
			},
			labels,
		),

		WorkExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "work",
				Name:        "executed_total",
				Help:        "Total number of work executions",
				ConstLabels: constLabels,
			},
			labels,
		),

		WorkFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "work",
				Name:        "failed_total",
				Help:        "Total number of work executions that returned an error or panicked",
				ConstLabels: constLabels,
			},
			labels,
		),

		WorkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "work",
				Name:        "duration_seconds",
				Help:        "Time spent executing work",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: constLabels,
			},
			labels,
		),

		DispatchLag: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "dispatch",
				Name:        "lag_seconds",
				Help:        "Delay between a work item's due time and the start of its execution",
				Buckets:     prometheus.ExponentialBuckets(0.001, 4, 8),
				ConstLabels: constLabels,
			},
			labels,
		),

		DispatchQueued: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "dispatch",
				Name:        "queued",
				Help:        "Number of due work items waiting for a worker",
				ConstLabels: constLabels,
			},
			labels,
		),

		DispatchIdleWorker: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "dispatch",
				Name:        "idle_workers",
				Help:        "Number of workers parked waiting for due work",
				ConstLabels: constLabels,
			},
			labels,
		),

		DeadlinePending: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "deadline",
				Name:        "pending",
				Help:        "Number of work items waiting to become due",
				ConstLabels: constLabels,
			},
			labels,
		),

		Workers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "pool",
				Name:        "workers",
				Help:        "Number of live workers",
				ConstLabels: constLabels,
			},
			labels,
		),
	}
}

// Forget removes every series carrying the given pool label.
func (r *Registry) Forget(pool string) {
	l := prometheus.Labels{PoolLabel: pool}
	r.WorkAccepted.DeletePartialMatch(l)
	r.WorkPromoted.DeletePartialMatch(l)
	r.WorkExecuted.DeletePartialMatch(l)
	r.WorkFailed.DeletePartialMatch(l)
	r.WorkDuration.DeletePartialMatch(l)
	r.DispatchLag.DeletePartialMatch(l)
	r.DispatchQueued.DeletePartialMatch(l)
	r.DispatchIdleWorker.DeletePartialMatch(l)
	r.DeadlinePending.DeletePartialMatch(l)
	r.Workers.DeletePartialMatch(l)
}
