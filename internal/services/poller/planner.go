package poller

import (
	"math/rand"
	"time"
)

type Rand interface {
	Intn(n int) int
}

// PlannerConfig controls when the next reconciliation cycle starts.
type PlannerConfig struct {
	Interval time.Duration // default: 5 minutes
	Jitter   time.Duration // default: 0

	Backoff1 time.Duration // default: 30 seconds
	Backoff2 time.Duration // default: 2 minutes
	Backoff3 time.Duration // default: 5 minutes
	Backoff4 time.Duration // default: 15 minutes
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		Interval: 5 * time.Minute,

		Backoff1: 30 * time.Second,
		Backoff2: 2 * time.Minute,
		Backoff3: 5 * time.Minute,
		Backoff4: 15 * time.Minute,
	}
}

type Planner struct {
	cfg PlannerConfig
	r   Rand
}

func NewPlanner(cfg PlannerConfig, r Rand) *Planner {
	def := DefaultPlannerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if cfg.Backoff1 <= 0 {
		cfg.Backoff1 = def.Backoff1
	}
	if cfg.Backoff2 <= 0 {
		cfg.Backoff2 = def.Backoff2
	}
	if cfg.Backoff3 <= 0 {
		cfg.Backoff3 = def.Backoff3
	}
	if cfg.Backoff4 <= 0 {
		cfg.Backoff4 = def.Backoff4
	}
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Planner{cfg: cfg, r: r}
}

// NextCycleDelay is the regular pause between cycles, spread by up to Jitter
// so that several workers do not hit the carrier in the same second.
func (p *Planner) NextCycleDelay() time.Duration {
	if p.cfg.Jitter == 0 {
		return p.cfg.Interval
	}
	sec := int(p.cfg.Jitter.Seconds())
	if sec <= 0 {
		return p.cfg.Interval
	}
	return p.cfg.Interval + time.Duration(p.r.Intn(sec+1))*time.Second
}

// RecheckDelay is how long a single order waits after failed polls in a
// row. Unlike BackoffDelay it is not capped, so an order the carrier keeps
// failing on skips whole cycles.
func (p *Planner) RecheckDelay(failures int) time.Duration {
	switch {
	case failures <= 1:
		return p.cfg.Backoff1
	case failures == 2:
		return p.cfg.Backoff2
	case failures == 3:
		return p.cfg.Backoff3
	default:
		return p.cfg.Backoff4
	}
}

// BackoffDelay is used after failed cycles, i.e. when the order store could
// not be read. The delay never exceeds the regular interval.
func (p *Planner) BackoffDelay(failures int) time.Duration {
	d := p.RecheckDelay(failures)
	if d > p.cfg.Interval {
		d = p.cfg.Interval
	}
	return d
}

// Next picks the delay for the given number of consecutive failed cycles.
func (p *Planner) Next(failures int) time.Duration {
	if failures > 0 {
		return p.BackoffDelay(failures)
	}
	return p.NextCycleDelay()
}
