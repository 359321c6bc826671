package reaper

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper removes expired entries. *store.MemoryStore satisfies this interface.
type Sweeper interface {
	Sweep(now time.Time) int
}

// Config holds reaper configuration.
type Config struct {
	Interval time.Duration
	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time
}

// DefaultInterval is the sweep period used when Config.Interval is zero.
const DefaultInterval = 30 * time.Second

// MetricsRecordFunc is an optional callback invoked after every sweep.
type MetricsRecordFunc func(removed int, at time.Time)

// Status is a snapshot of reaper activity.
type Status struct {
	LastSweep    time.Time `json:"last_sweep"`
	LastRemoved  int       `json:"last_removed"`
	TotalRemoved int64     `json:"total_removed"`
	Sweeps       int64     `json:"sweeps"`
}

// Reaper periodically purges expired challenge tokens so memory stays bounded.
// Lookups check deadlines themselves; the reaper never affects correctness.
type Reaper struct {
	sweeper   Sweeper
	cfg       Config
	onMetrics MetricsRecordFunc
	logger    *zap.Logger

	mu     sync.Mutex
	status Status
}

// New creates a Reaper.
func New(sweeper Sweeper, cfg Config, logger *zap.Logger) *Reaper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reaper{sweeper: sweeper, cfg: cfg, logger: logger}
}

// SetMetricsRecord configures the metrics recording callback.
func (r *Reaper) SetMetricsRecord(fn MetricsRecordFunc) {
	r.onMetrics = fn
}

// Interval returns the configured sweep period.
func (r *Reaper) Interval() time.Duration { return r.cfg.Interval }

// Start runs the sweep loop until ctx is cancelled.
func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info("reaper started", zap.Duration("interval", r.cfg.Interval))
	for {
		select {
		case <-ticker.C:
			r.SweepOnce()
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return
		}
	}
}

// SweepOnce runs a single sweep and returns the number of tokens removed.
func (r *Reaper) SweepOnce() int {
	now := r.cfg.Now()
	n := r.sweeper.Sweep(now)

	r.mu.Lock()
	r.status.LastSweep = now
	r.status.LastRemoved = n
	r.status.TotalRemoved += int64(n)
	r.status.Sweeps++
	r.mu.Unlock()

	if r.onMetrics != nil {
		r.onMetrics(n, now)
	}
	if n > 0 {
		r.logger.Info("pruned expired challenges", zap.Int("count", n))
	}
	return n
}

// Status returns a snapshot of reaper activity.
func (r *Reaper) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Healthy reports whether a sweep has completed within three intervals of
// now. Before the first sweep, the interval is measured from started.
func (r *Reaper) Healthy(now, started time.Time) bool {
	last := r.Status().LastSweep
	if last.IsZero() {
		last = started
	}
	return now.Sub(last) <= 3*r.cfg.Interval
}
