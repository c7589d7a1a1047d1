package marketdata

import (
	"context"
	"testing"
	"time"

	marketdata "orderbookcollection/internal/domain/entity/marketdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	added    []marketdata.OrderBookView
	from, to time.Time
	limit    int
	closed   bool
}

func (r *fakeRepo) AddOrderBookView(_ context.Context, view *marketdata.OrderBookView) error {
	r.added = append(r.added, *view)
	return nil
}

func (r *fakeRepo) AddOrderBookViews(_ context.Context, views []marketdata.OrderBookView) error {
	r.added = append(r.added, views...)
	return nil
}

func (r *fakeRepo) GetOrderBookViewsBetween(_ context.Context, id uint64, from, to time.Time) ([]marketdata.OrderBookView, error) {
	r.from, r.to = from, to
	return []marketdata.OrderBookView{{InstrumentID: id}}, nil
}

func (r *fakeRepo) GetLastOrderBookViews(_ context.Context, id uint64, limit int) ([]marketdata.OrderBookView, error) {
	r.limit = limit
	return []marketdata.OrderBookView{{InstrumentID: id}}, nil
}

func (r *fakeRepo) Close() { r.closed = true }

func TestServiceAdd(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)
	ctx := context.Background()

	require.ErrorIs(t, svc.AddOrderBookView(ctx, nil), ErrNilOrderBook)
	require.NoError(t, svc.AddOrderBookViews(ctx, nil))
	require.NoError(t, svc.AddOrderBookView(ctx, &marketdata.OrderBookView{InstrumentID: 1}))
	require.NoError(t, svc.AddOrderBookViews(ctx, []marketdata.OrderBookView{{InstrumentID: 2}, {InstrumentID: 3}}))
	assert.Len(t, repo.added, 3)

	svc.Close()
	assert.True(t, repo.closed)
}

func TestServiceQueries(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.GetLastOrderBookViews(ctx, 1, 0)
	require.ErrorIs(t, err, ErrInvalidLimit)

	views, err := svc.GetLastOrderBookViews(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, repo.limit)
	assert.Equal(t, uint64(1), views[0].InstrumentID)

	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	_, err = svc.GetOrderBookViewsBetween(ctx, 1, late, early)
	require.NoError(t, err)
	assert.Equal(t, early, repo.from)
	assert.Equal(t, late, repo.to)
}
