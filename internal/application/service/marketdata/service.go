package marketdata

import (
	"context"
	"errors"
	"time"

	marketdata "orderbookcollection/internal/domain/entity/marketdata"
	interfaces "orderbookcollection/internal/domain/interfaces"
)

var (
	ErrNilOrderBook = errors.New("order book view is nil")
	ErrInvalidLimit = errors.New("limit must be positive")
)

// Service stores and queries published order book views.
type Service struct {
	repo interfaces.OrderBookViewRepository
}

func NewService(repo interfaces.OrderBookViewRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) AddOrderBookView(ctx context.Context, view *marketdata.OrderBookView) error {
	if view == nil {
		return ErrNilOrderBook
	}
	return s.repo.AddOrderBookView(ctx, view)
}

func (s *Service) AddOrderBookViews(ctx context.Context, views []marketdata.OrderBookView) error {
	if len(views) == 0 {
		return nil
	}
	return s.repo.AddOrderBookViews(ctx, views)
}

func (s *Service) GetOrderBookViewsBetween(ctx context.Context, instrumentID uint64, from, to time.Time) ([]marketdata.OrderBookView, error) {
	if from.After(to) {
		from, to = to, from
	}
	return s.repo.GetOrderBookViewsBetween(ctx, instrumentID, from, to)
}

func (s *Service) GetLastOrderBookViews(ctx context.Context, instrumentID uint64, limit int) ([]marketdata.OrderBookView, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	return s.repo.GetLastOrderBookViews(ctx, instrumentID, limit)
}

func (s *Service) Close() {
	s.repo.Close()
}
