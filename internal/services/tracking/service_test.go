package tracking

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"github.com/BearBump/ShipBox/internal/integrations/carrier/fake"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/stretchr/testify/require"
)

// memRepo is a tiny order store that checks the terminal guard the same way
// the SQL does and counts concurrent writers per order.
type memRepo struct {
	mu      sync.Mutex
	orders  map[string]*models.Order
	writing map[string]int
	overlap atomic.Bool
}

func newMemRepo(orders ...*models.Order) *memRepo {
	r := &memRepo{orders: map[string]*models.Order{}, writing: map[string]int{}}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

func (r *memRepo) GetOrders(ctx context.Context, ids []string) ([]*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Order
	for _, id := range ids {
		if o, ok := r.orders[id]; ok {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRepo) UpdateTrackedStatus(ctx context.Context, id string, status models.OrderStatus, at time.Time) (models.OrderStatus, bool, error) {
	r.mu.Lock()
	r.writing[id]++
	if r.writing[id] > 1 {
		r.overlap.Store(true)
	}
	r.mu.Unlock()

	time.Sleep(2 * time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.writing[id]--
	o, ok := r.orders[id]
	if !ok || o.Status.IsTerminal() {
		return "", false, nil
	}
	prev := o.Status
	o.Status = status
	o.LastTrackingUpdate = &at
	return prev, true, nil
}

type codeCarrier struct {
	*fake.FakeClient
	code  int
	calls atomic.Int32
}

func (c *codeCarrier) GetTracking(ctx context.Context, shipmentID string) (carrier.Tracking, error) {
	c.calls.Add(1)
	return carrier.Tracking{Found: true, TrackStatus: carrier.StatusCode(1), ShipmentStatus: carrier.StatusCode(c.code)}, nil
}

func TestTrackMany_WritesBackDispatched(t *testing.T) {
	repo := newMemRepo(shipped("o1", "S1", models.OrderStatusPlaced))
	c := &codeCarrier{FakeClient: fake.New(), code: 3}
	svc := New(c, repo, nil)

	one := svc.TrackOne(context.Background(), "S1")
	require.Equal(t, models.OrderStatusDispatched, one[0].Status)

	out := svc.TrackMany(context.Background(), []string{"o1"})
	require.Equal(t, models.OrderStatusDispatched, out["o1"][0].Status)
	require.Equal(t, models.OrderStatusDispatched, repo.orders["o1"].Status)
	require.NotNil(t, repo.orders["o1"].LastTrackingUpdate)
}

func TestTrackMany_ConcurrentCallsSerializePerOrder(t *testing.T) {
	repo := newMemRepo(shipped("o1", "S1", models.OrderStatusPlaced), shipped("o2", "S2", models.OrderStatusPlaced))
	c := &codeCarrier{FakeClient: fake.New(), code: 4}
	svc := New(c, repo, nil).WithConcurrency(8)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.TrackMany(context.Background(), []string{"o1", "o2"})
		}()
	}
	wg.Wait()

	require.False(t, repo.overlap.Load())
	require.Equal(t, int32(20), c.calls.Load())
	require.Equal(t, models.OrderStatusInTransit, repo.orders["o1"].Status)
	require.Zero(t, svc.locks.size())
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	var km keyedMutex
	unlockA := km.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b waited for a")
	}
	unlockA()
	require.Zero(t, km.size())
}
