package workpool

import (
	"go.uber.org/zap"

	"github.com/vnykmshr/dueflow/pkg/common/validation"
	"github.com/vnykmshr/dueflow/pkg/metrics"
)

// Factory creates pools that share a logger and metrics registry.
type Factory struct {
	base Config
}

// NewFactory creates a Factory. Either argument may be nil.
func NewFactory(logger *zap.Logger, registry *metrics.Registry) *Factory {
	return NewFactoryWithConfig(Config{Logger: logger, Metrics: registry})
}

// NewFactoryWithConfig creates a Factory whose pools start from base.
// Name and WorkerCount are overridden by Create.
func NewFactoryWithConfig(base Config) *Factory {
	return &Factory{base: base}
}

// Create returns a new, unstarted pool.
func (f *Factory) Create(name string, workerCount int) (*Pool, error) {
	if err := validation.ValidateNotEmpty("workpool", "Name", name); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositive("workpool", "WorkerCount", workerCount); err != nil {
		return nil, err
	}

	cfg := f.base
	cfg.Name = name
	cfg.WorkerCount = workerCount
	return NewWithConfig(cfg)
}
