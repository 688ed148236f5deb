package workpool

import (
	"time"

	"github.com/vnykmshr/dueflow/pkg/work"
)

// onWorkStart records dispatch lag for work a worker is about to run.
func (p *Pool) onWorkStart(_ string, w work.Work) {
	if p.metrics == nil {
		return
	}
	lag := p.cfg.Now().Sub(w.DueAt())
	if lag < 0 {
		lag = 0
	}
	p.metrics.DispatchLag.WithLabelValues(p.name).Observe(lag.Seconds())
	p.updateMetrics()
}

// onWorkComplete counts an execution and records its duration.
func (p *Pool) onWorkComplete(_ string, _ work.Work, d time.Duration, err error) {
	p.executed.Add(1)
	if err != nil {
		p.failed.Add(1)
	}

	if p.metrics == nil {
		return
	}
	p.metrics.WorkExecuted.WithLabelValues(p.name).Inc()
	p.metrics.WorkDuration.WithLabelValues(p.name).Observe(d.Seconds())
	if err != nil {
		p.metrics.WorkFailed.WithLabelValues(p.name).Inc()
	}
	p.updateMetrics()
}

// updateMetrics updates the current state gauges.
func (p *Pool) updateMetrics() {
	if p.metrics == nil {
		return
	}
	p.metrics.DispatchQueued.WithLabelValues(p.name).Set(float64(p.queue.Len()))
	p.metrics.DispatchIdleWorker.WithLabelValues(p.name).Set(float64(p.queue.Idle()))
	p.metrics.DeadlinePending.WithLabelValues(p.name).Set(float64(p.scheduler.Len()))
}

func (p *Pool) updateWorkersMetric(n int) {
	if p.metrics == nil {
		return
	}
	p.metrics.Workers.WithLabelValues(p.name).Set(float64(n))
}
