package orders

import (
	"context"
	"time"

	"github.com/BearBump/ShipBox/internal/broker/messages"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

var ErrUnknownStatus = errors.New("unknown order status")

type Repository interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListActive(ctx context.Context, limit, offset int) ([]*models.Order, error)
	ListCancelled(ctx context.Context, limit, offset int) ([]*models.Order, error)
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (models.OrderStatus, error)
}

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
}

// Service backs the admin order views.
type Service struct {
	repo      Repository
	publisher Publisher
	log       *zap.Logger
}

func New(repo Repository, publisher Publisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, publisher: publisher, log: log}
}

// ListActive returns orders that were not cancelled by the customer, newest
// first.
func (s *Service) ListActive(ctx context.Context, limit, offset int) ([]*models.Order, error) {
	limit, offset = page(limit, offset)
	return s.repo.ListActive(ctx, limit, offset)
}

// ListCancelled returns orders cancelled on request. Orders only the carrier
// reported as cancelled are not included.
func (s *Service) ListCancelled(ctx context.Context, limit, offset int) ([]*models.Order, error) {
	limit, offset = page(limit, offset)
	return s.repo.ListCancelled(ctx, limit, offset)
}

func (s *Service) Get(ctx context.Context, id string) (*models.Order, error) {
	if id == "" {
		return nil, errors.New("order id is required")
	}
	return s.repo.GetOrder(ctx, id)
}

// UpdateStatus is the admin override. It may move an order out of a terminal
// status; customer cancellation goes through the shipments service instead.
func (s *Service) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (*models.Order, error) {
	if !status.IsKnown() {
		return nil, errors.Wrapf(ErrUnknownStatus, "%q", status)
	}
	prev, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.log.Info("order status set manually",
		zap.String("order_id", id), zap.String("status", string(status)), zap.String("previous_status", string(prev)))

	if s.publisher != nil && prev != status {
		msg := messages.NewOrderStatusChanged(id, prev, status, messages.SourceAdmin, time.Now())
		if err := s.publisher.PublishJSON(ctx, messages.TopicOrderStatusChanged, id, msg); err != nil {
			s.log.Warn("publish status change", zap.String("order_id", id), zap.Error(err))
		}
	}
	return s.repo.GetOrder(ctx, id)
}

func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
