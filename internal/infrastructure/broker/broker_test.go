package broker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	appmarketdata "orderbookcollection/internal/application/service/marketdata"
	"orderbookcollection/internal/config"
	domain "orderbookcollection/internal/domain/entity/marketdata"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type memoryRepo struct {
	mu      sync.Mutex
	batches [][]domain.OrderBookView
	err     error
}

func (r *memoryRepo) AddOrderBookView(_ context.Context, view *domain.OrderBookView) error {
	return r.AddOrderBookViews(context.Background(), []domain.OrderBookView{*view})
}

func (r *memoryRepo) AddOrderBookViews(_ context.Context, views []domain.OrderBookView) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.batches = append(r.batches, views)
	return nil
}

func (r *memoryRepo) GetOrderBookViewsBetween(context.Context, uint64, time.Time, time.Time) ([]domain.OrderBookView, error) {
	return nil, nil
}

func (r *memoryRepo) GetLastOrderBookViews(context.Context, uint64, int) ([]domain.OrderBookView, error) {
	return nil, nil
}

func (r *memoryRepo) Close() {}

func (r *memoryRepo) flushed() [][]domain.OrderBookView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]domain.OrderBookView(nil), r.batches...)
}

func view(id, seq uint64) *domain.OrderBookView {
	return &domain.OrderBookView{
		InstrumentID: id,
		SeqNo:        seq,
		State:        "synced",
		Bids:         []domain.Level{{Price: 105, Quantity: 10}},
		Asks:         []domain.Level{{Price: 106, Quantity: 5}},
	}
}

func TestBatchWriterFlushesOnSize(t *testing.T) {
	repo := &memoryRepo{}
	w := NewBatchWriter(BatchConfig{Size: 2}, appmarketdata.NewService(repo), testLogger())
	ctx := context.Background()

	require.Error(t, w.PublishOrderBook(ctx, view(1, 1)), "not running yet")

	w.Run(ctx)
	require.NoError(t, w.PublishOrderBook(ctx, view(1, 1)))
	assert.Empty(t, repo.flushed())
	require.NoError(t, w.PublishOrderBook(ctx, view(1, 2)))
	require.Len(t, repo.flushed(), 1)
	assert.Len(t, repo.flushed()[0], 2)

	require.NoError(t, w.PublishOrderBook(ctx, view(2, 1)))
	require.NoError(t, w.Stop(ctx))
	require.Len(t, repo.flushed(), 2)
	assert.Equal(t, uint64(2), repo.flushed()[1][0].InstrumentID)
}

func TestBatchWriterFlushesOnTimeout(t *testing.T) {
	repo := &memoryRepo{}
	w := NewBatchWriter(BatchConfig{Size: 100, Timeout: 10 * time.Millisecond}, appmarketdata.NewService(repo), testLogger())
	w.Run(context.Background())

	require.NoError(t, w.PublishOrderBook(context.Background(), view(1, 1)))
	assert.Eventually(t, func() bool { return len(repo.flushed()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestBatchWriterCopiesViews(t *testing.T) {
	repo := &memoryRepo{}
	w := NewBatchWriter(BatchConfig{Size: 2}, appmarketdata.NewService(repo), testLogger())
	ctx := context.Background()
	w.Run(ctx)

	v := view(1, 1)
	require.NoError(t, w.PublishOrderBook(ctx, v))
	v.Bids[0].Quantity = 99
	require.NoError(t, w.Stop(ctx))
	assert.Equal(t, uint64(10), repo.flushed()[0][0].Bids[0].Quantity)
}

func TestBatchWriterReportsFlushError(t *testing.T) {
	repo := &memoryRepo{err: errors.New("db down")}
	w := NewBatchWriter(BatchConfig{Size: 1}, appmarketdata.NewService(repo), testLogger())
	w.Run(context.Background())
	assert.EqualError(t, w.PublishOrderBook(context.Background(), view(1, 1)), "db down")
}

type fakeChannel struct {
	declared []string
	sent     []amqp.Publishing
	closed   bool
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	c.declared = append(c.declared, name+":"+kind)
	return nil
}

func (c *fakeChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestPublisher(t *testing.T) {
	_, err := newPublisher(&fakeChannel{}, "", testLogger())
	require.Error(t, err)

	ch := &fakeChannel{}
	pub, err := newPublisher(ch, "orderbooks.views", testLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"orderbooks.views:fanout"}, ch.declared)

	v := view(3, 7)
	v.ID = uuid.New()
	require.NoError(t, pub.PublishOrderBook(context.Background(), v))
	require.Len(t, ch.sent, 1)
	msg := ch.sent[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, v.ID.String(), msg.MessageId)

	var payload BaseMessage
	require.NoError(t, json.Unmarshal(msg.Body, &payload))
	require.NotNil(t, payload.OrderBook)
	assert.Equal(t, uint64(7), payload.OrderBook.SeqNo)
	assert.Equal(t, v.Bids, payload.OrderBook.Bids)

	pub.Close()
	assert.True(t, ch.closed)
}

type captureSink struct {
	views []domain.OrderBookView
}

func (s *captureSink) PublishOrderBook(_ context.Context, v *domain.OrderBookView) error {
	s.views = append(s.views, *v)
	return nil
}

func TestConsumerHandleDelivery(t *testing.T) {
	_, err := NewConsumer(config.RabbitMQConfig{}, nil, testLogger())
	require.Error(t, err)

	repo := &memoryRepo{}
	sink := &captureSink{}
	c, err := NewConsumer(config.RabbitMQConfig{URL: "amqp://localhost", BatchSize: 1}, appmarketdata.NewService(repo), testLogger(), sink)
	require.NoError(t, err)
	ctx := context.Background()
	c.batcher.Run(ctx)

	body, err := json.Marshal(BaseMessage{OrderBook: view(4, 2)})
	require.NoError(t, err)
	require.NoError(t, c.handleDelivery(ctx, body))
	require.Len(t, repo.flushed(), 1)
	require.Len(t, sink.views, 1)
	assert.Equal(t, uint64(4), sink.views[0].InstrumentID)

	assert.ErrorIs(t, c.handleDelivery(ctx, []byte("{")), errBadPayload)
	assert.ErrorIs(t, c.handleDelivery(ctx, []byte("{}")), errBadPayload)

	require.NoError(t, c.Close(ctx))
}
