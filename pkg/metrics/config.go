package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "dueflow"

// Config holds configuration for a metrics Registry.
type Config struct {
	// Registerer receives the collectors. If nil, uses prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer

	// Namespace overrides the default "dueflow" namespace for metrics.
	Namespace string

	// ConstLabels are added to all metrics.
	ConstLabels prometheus.Labels
}
