package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appmarketdata "orderbookcollection/internal/application/service/marketdata"
	"orderbookcollection/internal/application/service/orderbooks"
	domainmarketdata "orderbookcollection/internal/domain/entity/marketdata"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type historyRepo struct {
	views []domainmarketdata.OrderBookView
	limit int
}

func (r *historyRepo) AddOrderBookView(context.Context, *domainmarketdata.OrderBookView) error {
	return nil
}

func (r *historyRepo) AddOrderBookViews(context.Context, []domainmarketdata.OrderBookView) error {
	return nil
}

func (r *historyRepo) GetOrderBookViewsBetween(_ context.Context, id uint64, from, to time.Time) ([]domainmarketdata.OrderBookView, error) {
	var out []domainmarketdata.OrderBookView
	for _, v := range r.views {
		if v.InstrumentID == id && !v.ReportedAt.Before(from) && !v.ReportedAt.After(to) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *historyRepo) GetLastOrderBookViews(_ context.Context, id uint64, limit int) ([]domainmarketdata.OrderBookView, error) {
	r.limit = limit
	var out []domainmarketdata.OrderBookView
	for _, v := range r.views {
		if v.InstrumentID == id && len(out) < limit {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *historyRepo) Close() {}

func level(price float64, qty uint64) domainmarketdata.Level {
	return domainmarketdata.Level{Price: price, Quantity: qty}
}

func newTestHandler(t *testing.T, repo *historyRepo) *Handler {
	t.Helper()
	store := orderbooks.NewViewStore()
	ctx := context.Background()
	mid := 105.5
	require.NoError(t, store.PublishOrderBook(ctx, &domainmarketdata.OrderBookView{
		InstrumentID: 2,
		SeqNo:        9,
		State:        "synced",
		Mid:          &mid,
		Depth:        2,
		Bids:         []domainmarketdata.Level{level(105, 10), level(104, 3)},
		Asks:         []domainmarketdata.Level{level(106, 5), level(107, 1)},
	}))
	require.NoError(t, store.PublishOrderBook(ctx, &domainmarketdata.OrderBookView{InstrumentID: 1, State: "uninitialized"}))

	var md *appmarketdata.Service
	if repo != nil {
		md = appmarketdata.NewService(repo)
	}
	return NewHandler(store, md, nil, 0, nil)
}

func get(t *testing.T, h http.Handler, url string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	return rec
}

func TestListOrderBooks(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := get(t, h, "/api/v1/orderbooks")
	require.Equal(t, http.StatusOK, rec.Code)
	var views []domainmarketdata.OrderBookView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, uint64(1), views[0].InstrumentID)
	assert.Equal(t, uint64(2), views[1].InstrumentID)

	rec = get(t, h, "/api/v1/orderbooks?depth=1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	assert.Equal(t, []domainmarketdata.Level{level(105, 10)}, views[1].Bids)
}

func TestGetOrderBook(t *testing.T) {
	h := newTestHandler(t, nil)

	rec := get(t, h, "/api/v1/orderbooks/2?depth=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var view domainmarketdata.OrderBookView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, uint64(9), view.SeqNo)
	require.NotNil(t, view.Mid)
	assert.Equal(t, 105.5, *view.Mid)
	assert.Equal(t, int32(1), view.Depth)
	assert.Equal(t, []domainmarketdata.Level{level(106, 5)}, view.Asks)

	tests := []struct {
		url    string
		status int
	}{
		{"/api/v1/orderbooks/3", http.StatusNotFound},
		{"/api/v1/orderbooks/abc", http.StatusBadRequest},
		{"/api/v1/orderbooks/-1", http.StatusBadRequest},
		{"/api/v1/orderbooks/2?depth=x", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			rec := get(t, h, tt.url)
			assert.Equal(t, tt.status, rec.Code)
			assert.True(t, strings.Contains(rec.Body.String(), "error"))
		})
	}
}

func TestOrderBookHistory(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := &historyRepo{views: []domainmarketdata.OrderBookView{
		{InstrumentID: 2, SeqNo: 9, ReportedAt: at},
		{InstrumentID: 2, SeqNo: 8, ReportedAt: at.Add(-time.Minute)},
		{InstrumentID: 1, SeqNo: 1, ReportedAt: at},
	}}
	h := newTestHandler(t, repo)

	rec := get(t, h, "/api/v1/orderbooks/2/history?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var views []domainmarketdata.OrderBookView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, uint64(9), views[0].SeqNo)
	assert.Equal(t, 1, repo.limit)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/orderbooks/2/history").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/orderbooks/2/history?limit=0").Code)

	rec = get(t, h, "/api/v1/orderbooks/2/range?from=2024-05-01T11:58:00Z&to=2024-05-01T11:59:30Z")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, uint64(8), views[0].SeqNo)

	rec = get(t, h, "/api/v1/orderbooks/5/range?from=2024-05-01T11:58:00Z&to=2024-05-01T11:59:30Z")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/orderbooks/2/range?from=yesterday&to=today").Code)
}

func TestHistoryWithoutRepository(t *testing.T) {
	h := newTestHandler(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/api/v1/orderbooks/2/history?limit=1").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/api/v1/orderbooks/2/range").Code)
}

func TestMetricsAndHealth(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_events_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	h := NewHandler(orderbooks.NewViewStore(), nil, nil, 0, reg)

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_events_total 1")

	rec = get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, NewHandler(orderbooks.NewViewStore(), nil, nil, 0, nil), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
