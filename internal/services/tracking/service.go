package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/BearBump/ShipBox/internal/broker/messages"
	"github.com/BearBump/ShipBox/internal/cache"
	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Repository interface {
	GetOrders(ctx context.Context, ids []string) ([]*models.Order, error)
	UpdateTrackedStatus(ctx context.Context, id string, status models.OrderStatus, at time.Time) (models.OrderStatus, bool, error)
}

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
}

// CheckRecorder keeps per-order poll bookkeeping, so that shipments the
// carrier keeps failing on do not hold the head of the poll queue.
type CheckRecorder interface {
	RecordCheck(ctx context.Context, id string, failed bool, next time.Time) error
}

// Backoff returns how long an order waits after its n-th failed poll in a row.
type Backoff interface {
	RecheckDelay(failures int) time.Duration
}

type Service struct {
	carrier carrier.Client
	repo    Repository
	log     *zap.Logger

	cache    cache.BytesCache
	cacheTTL time.Duration

	rl          cache.RateLimiter
	rlPerMinute int64
	rlBackoff   time.Duration

	publisher   Publisher
	checks      CheckRecorder
	backoff     Backoff
	concurrency int
	now         func() time.Time
	locks       keyedMutex
}

func New(c carrier.Client, repo Repository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		carrier:     c,
		repo:        repo,
		log:         log,
		concurrency: 10,
		rlBackoff:   500 * time.Millisecond,
		now:         time.Now,
	}
}

// WithCache enables caching of TrackOne results. ttl <= 0 keeps it off.
func (s *Service) WithCache(c cache.BytesCache, ttl time.Duration) *Service {
	s.cache = c
	s.cacheTTL = ttl
	return s
}

func (s *Service) WithRateLimit(rl cache.RateLimiter, perMinute int64) *Service {
	s.rl = rl
	s.rlPerMinute = perMinute
	return s
}

func (s *Service) WithPublisher(p Publisher) *Service {
	s.publisher = p
	return s
}

// WithCheckRecorder records every reconciliation attempt. Without backoff a
// failed order is due again right away but still goes behind the others.
func (s *Service) WithCheckRecorder(r CheckRecorder, b Backoff) *Service {
	s.checks = r
	s.backoff = b
	return s
}

func (s *Service) WithConcurrency(n int) *Service {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// TrackOne returns the carrier's current view of one shipment. Failures are
// reported as the Unavailable sentinel, never as an error.
func (s *Service) TrackOne(ctx context.Context, shipmentID string) []models.TrackingEvent {
	if shipmentID == "" {
		return Unavailable(s.now())
	}
	if events, ok := s.cached(ctx, shipmentID); ok {
		return events
	}
	events, ok := s.fetch(ctx, shipmentID)
	if ok {
		s.remember(ctx, shipmentID, events)
	}
	return events
}

// TrackMany reconciles a batch of orders with the carrier. Every input id is
// a key of the result; orders without a shipment, cancelled orders and
// unknown ids get an empty list. One failing shipment never affects the
// others.
func (s *Service) TrackMany(ctx context.Context, orderIDs []string) map[string][]models.TrackingEvent {
	out := make(map[string][]models.TrackingEvent, len(orderIDs))
	uniq := make([]string, 0, len(orderIDs))
	for _, id := range orderIDs {
		if _, ok := out[id]; ok {
			continue
		}
		out[id] = []models.TrackingEvent{}
		if id != "" {
			uniq = append(uniq, id)
		}
	}
	if len(uniq) == 0 {
		return out
	}

	orders, err := s.repo.GetOrders(ctx, uniq)
	if err != nil {
		s.log.Error("load orders for tracking", zap.Int("count", len(uniq)), zap.Error(err))
		return out
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, o := range orders {
		if o == nil || !o.HasShipment() || o.Status == models.OrderStatusCancelled {
			continue
		}
		if _, asked := out[o.ID]; !asked {
			continue
		}
		g.Go(func() error {
			events := s.trackOrder(ctx, o)
			mu.Lock()
			out[o.ID] = events
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *Service) trackOrder(ctx context.Context, o *models.Order) []models.TrackingEvent {
	shipmentID := *o.CarrierShipmentID
	events, ok := s.fetch(ctx, shipmentID)
	s.recordCheck(ctx, o, !ok)
	if !ok {
		return events
	}
	s.remember(ctx, shipmentID, events)
	s.writeBack(ctx, o, events)
	return events
}

// writeBack stores the newest normalized status on the order. The SQL
// guard in the repository keeps terminal statuses; the per-order lock keeps
// two reconciliations of the same order from interleaving.
func (s *Service) writeBack(ctx context.Context, o *models.Order, events []models.TrackingEvent) {
	latest, ok := Latest(events)
	if !ok {
		return
	}
	log := s.log.With(zap.String("order_id", o.ID), zap.String("status", string(latest.Status)))
	if !latest.Status.IsKnown() {
		log.Warn("carrier status outside of order statuses, not stored")
		return
	}
	if o.Status.IsTerminal() {
		return
	}

	unlock := s.locks.Lock(o.ID)
	defer unlock()

	now := s.now().UTC()
	prev, applied, err := s.repo.UpdateTrackedStatus(ctx, o.ID, latest.Status, now)
	if err != nil {
		log.Error("write back tracked status", zap.Error(err))
		return
	}
	if !applied || prev == latest.Status {
		return
	}
	log.Info("order status changed by tracking", zap.String("previous_status", string(prev)))

	if s.publisher == nil {
		return
	}
	msg := messages.NewOrderStatusChanged(o.ID, prev, latest.Status, messages.SourceTracking, now)
	if err := s.publisher.PublishJSON(ctx, messages.TopicOrderStatusChanged, o.ID, msg); err != nil {
		log.Warn("publish status change", zap.Error(err))
	}
}

func (s *Service) recordCheck(ctx context.Context, o *models.Order, failed bool) {
	if s.checks == nil {
		return
	}
	next := s.now().UTC()
	if failed && s.backoff != nil {
		next = next.Add(s.backoff.RecheckDelay(o.CheckFailCount + 1))
	}
	if err := s.checks.RecordCheck(ctx, o.ID, failed, next); err != nil {
		s.log.Warn("record tracking check", zap.String("order_id", o.ID), zap.Error(err))
	}
}

// fetch asks the carrier and normalizes the answer. ok is false when the
// sentinel was returned instead.
func (s *Service) fetch(ctx context.Context, shipmentID string) ([]models.TrackingEvent, bool) {
	s.throttle(ctx)

	res, err := s.carrier.GetTracking(ctx, shipmentID)
	if err != nil {
		s.log.Warn("carrier tracking failed", zap.String("shipment_id", shipmentID), zap.Error(err))
		return Unavailable(s.now()), false
	}
	return NormalizeTracking(res, s.now()), true
}

func (s *Service) throttle(ctx context.Context) {
	if s.rl == nil || s.rlPerMinute <= 0 {
		return
	}
	key := fmt.Sprintf("rl:carrier:tracking:%s", s.now().UTC().Format("200601021504"))
	allowed, n, err := s.rl.Allow(ctx, key, s.rlPerMinute, 70*time.Second)
	if err != nil {
		// limiter unavailable: Redis must not block tracking
		s.log.Warn("rate limiter", zap.Error(err))
		return
	}
	if allowed {
		return
	}
	// Too many requests this minute: wait a little to spare the carrier.
	s.log.Warn("carrier rate limit exceeded", zap.Int64("count", n))
	t := time.NewTimer(s.rlBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (s *Service) cacheOn() bool {
	return s.cache != nil && s.cacheTTL > 0
}

func (s *Service) cached(ctx context.Context, shipmentID string) ([]models.TrackingEvent, bool) {
	if !s.cacheOn() {
		return nil, false
	}
	b, ok, err := s.cache.Get(ctx, eventsKey(shipmentID))
	if err != nil || !ok {
		return nil, false
	}
	var events []models.TrackingEvent
	if json.Unmarshal(b, &events) != nil || len(events) == 0 {
		return nil, false
	}
	return events, true
}

func (s *Service) remember(ctx context.Context, shipmentID string, events []models.TrackingEvent) {
	if !s.cacheOn() {
		return
	}
	b, err := json.Marshal(events)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, eventsKey(shipmentID), b, s.cacheTTL); err != nil {
		s.log.Debug("cache tracking events", zap.String("shipment_id", shipmentID), zap.Error(err))
	}
}

func eventsKey(shipmentID string) string {
	return fmt.Sprintf("tracking:%s:events", shipmentID)
}
