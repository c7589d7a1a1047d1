package interfaces

import (
	"context"
	"time"

	marketdata "orderbookcollection/internal/domain/entity/marketdata"
)

type OrderBookViewRepository interface {
	AddOrderBookView(ctx context.Context, view *marketdata.OrderBookView) error
	AddOrderBookViews(ctx context.Context, views []marketdata.OrderBookView) error
	GetOrderBookViewsBetween(ctx context.Context, instrumentID uint64, from, to time.Time) ([]marketdata.OrderBookView, error)
	GetLastOrderBookViews(ctx context.Context, instrumentID uint64, limit int) ([]marketdata.OrderBookView, error)

	Close()
}

// OrderBookSink receives rendered views, after each applied record or at
// the end of a run.
type OrderBookSink interface {
	PublishOrderBook(ctx context.Context, view *marketdata.OrderBookView) error
}
