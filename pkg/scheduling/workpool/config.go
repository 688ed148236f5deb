package workpool

import (
	"time"

	"github.com/creasty/defaults"
	"go.uber.org/zap"

	"github.com/vnykmshr/dueflow/pkg/common/validation"
	"github.com/vnykmshr/dueflow/pkg/metrics"
)

// Config holds configuration options for creating a pool.
type Config struct {
	// Name labels workers, log records and metrics.
	Name string `default:"default"`

	// WorkerCount is the maximum number of workers started by Start.
	// The pool never starts more workers than it has registered work.
	WorkerCount int `default:"1"`

	// WaitInterval bounds how long an idle worker waits before re-checking
	// the dispatch queue.
	WaitInterval time.Duration `default:"1s"`

	// IdleInterval is how long the deadline scheduler sleeps with nothing pending.
	IdleInterval time.Duration `default:"1s"`

	// MaxSleep caps a single deadline scheduler sleep.
	MaxSleep time.Duration `default:"1h"`

	// Logger defaults to a no-op logger.
	Logger *zap.Logger `default:"-"`

	// Metrics records pool metrics. Nil disables metrics.
	Metrics *metrics.Registry `default:"-"`

	// Now is the time source for due checks. Defaults to time.Now.
	Now func() time.Time `default:"-"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	var cfg Config
	defaults.MustSet(&cfg)
	return cfg
}

// normalize fills zero fields with defaults and validates the result.
func (c *Config) normalize() error {
	if err := defaults.Set(c); err != nil {
		return err
	}
	if err := validation.ValidatePositive("workpool", "WorkerCount", c.WorkerCount); err != nil {
		return err
	}
	for _, d := range []struct {
		field string
		value time.Duration
	}{
		{"WaitInterval", c.WaitInterval},
		{"IdleInterval", c.IdleInterval},
		{"MaxSleep", c.MaxSleep},
	} {
		if err := validation.ValidatePositiveDuration("workpool", d.field, d.value); err != nil {
			return err
		}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}
