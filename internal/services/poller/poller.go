package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ShipBox/internal/models"
	"github.com/BearBump/ShipBox/internal/services/tracking"
	"go.uber.org/zap"
)

// Source lists orders that still have something to reconcile.
type Source interface {
	ListTrackableOrderIDs(ctx context.Context, limit int) ([]string, error)
}

type Tracker interface {
	TrackMany(ctx context.Context, orderIDs []string) map[string][]models.TrackingEvent
}

// Poller runs periodic reconciliation cycles. Each cycle takes up to
// batchSize trackable orders and hands them to the tracker, which does the
// fan-out and the write-back.
type Poller struct {
	source  Source
	tracker Tracker
	log     *zap.Logger

	planner *Planner

	batchSize int

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalCycles         atomic.Int64
	totalOrders         atomic.Int64
	totalUnavailable    atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	failures            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(source Source, tracker Tracker, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		source:            source,
		tracker:           tracker,
		log:               log,
		planner:           DefaultPlanner(),
		batchSize:         200,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func DefaultPlanner() *Planner {
	return NewPlanner(DefaultPlannerConfig(), nil)
}

func (p *Poller) WithSettings(pollInterval time.Duration, batchSize int) *Poller {
	if pollInterval > 0 {
		cfg := p.planner.cfg
		cfg.Interval = pollInterval
		p.planner = NewPlanner(cfg, p.planner.r)
	}
	if batchSize > 0 {
		p.batchSize = batchSize
	}
	return p
}

func (p *Poller) WithPlanner(cfg PlannerConfig) *Poller {
	p.planner = NewPlanner(cfg, nil)
	return p
}

// Trigger forces an immediate cycle (best-effort, non-blocking).
func (p *Poller) Trigger() {
	p.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt           time.Time  `json:"startedAt"`
	LastCycleAt         *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt       *time.Time `json:"lastTriggerAt,omitempty"`
	TotalCycles         int64      `json:"totalCycles"`
	TotalOrders         int64      `json:"totalOrders"`
	TotalUnavailable    int64      `json:"totalUnavailable"`
	TotalErrors         int64      `json:"totalErrors"`
	InFlight            int64      `json:"inFlight"`
	ConsecutiveFailures int64      `json:"consecutiveFailures"`
	LastError           string     `json:"lastError,omitempty"`
}

func (p *Poller) Stats() Stats {
	st := Stats{
		StartedAt:           time.Unix(0, p.startedAtUnixNano).UTC(),
		TotalCycles:         p.totalCycles.Load(),
		TotalOrders:         p.totalOrders.Load(),
		TotalUnavailable:    p.totalUnavailable.Load(),
		TotalErrors:         p.totalErrors.Load(),
		InFlight:            p.inFlight.Load(),
		ConsecutiveFailures: p.failures.Load(),
	}
	if n := p.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := p.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

// Run blocks until ctx is done. The first cycle starts right away.
func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTimer(0)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		case <-p.triggerCh:
			if !t.Stop() {
				select {
				case <-t.C:
				default:
				}
			}
		}
		p.RunOnce(ctx)
		t.Reset(p.planner.Next(int(p.failures.Load())))
	}
}

// RunOnce performs a single cycle. It returns the number of orders handed
// to the tracker.
func (p *Poller) RunOnce(ctx context.Context) int {
	p.lastCycleUnixNano.Store(time.Now().UTC().UnixNano())
	p.totalCycles.Add(1)

	ids, err := p.source.ListTrackableOrderIDs(ctx, p.batchSize)
	if err != nil {
		n := p.failures.Add(1)
		p.totalErrors.Add(1)
		p.setLastError(err)
		p.log.Error("list trackable orders", zap.Int64("failures", n), zap.Error(err))
		return 0
	}
	p.failures.Store(0)
	if len(ids) == 0 {
		return 0
	}

	p.inFlight.Add(int64(len(ids)))
	res := p.tracker.TrackMany(ctx, ids)
	p.inFlight.Add(-int64(len(ids)))
	p.totalOrders.Add(int64(len(ids)))

	var unavailable int
	for _, events := range res {
		if tracking.IsUnavailable(events) {
			unavailable++
		}
	}
	p.totalUnavailable.Add(int64(unavailable))
	p.log.Info("reconcile cycle done",
		zap.Int("orders", len(ids)), zap.Int("unavailable", unavailable))
	return len(ids)
}

func (p *Poller) setLastError(err error) {
	p.lastErrorMu.Lock()
	p.lastError = err.Error()
	p.lastErrorMu.Unlock()
}
