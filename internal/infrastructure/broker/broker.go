package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	appmarketdata "orderbookcollection/internal/application/service/marketdata"
	"orderbookcollection/internal/config"
	interfaces "orderbookcollection/internal/domain/interfaces"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Consumer subscribes to the order book fanout exchange and forwards views
// into the market data service via a buffered batch writer, plus any extra
// sinks such as the live view store.
type Consumer struct {
	cfg     config.RabbitMQConfig
	service *appmarketdata.Service
	logger  *logrus.Logger

	conn    *amqp.Connection
	channel *amqp.Channel
	wg      sync.WaitGroup
	batcher *BatchWriter
	sinks   []interfaces.OrderBookSink
}

// NewConsumer prepares a consumer for the given configuration.
func NewConsumer(cfg config.RabbitMQConfig, service *appmarketdata.Service, logger *logrus.Logger, sinks ...interfaces.OrderBookSink) (*Consumer, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	batchCfg := BatchConfig{
		Size:    cfg.BatchSize,
		Timeout: cfg.BatchTimeout,
	}
	return &Consumer{
		cfg:     cfg,
		service: service,
		logger:  logger,
		batcher: NewBatchWriter(batchCfg, service, logger),
		sinks:   sinks,
	}, nil
}

// Start establishes the AMQP connection and begins consuming.
func (c *Consumer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	c.conn = conn
	c.batcher.Run(ctx)

	if err := c.startStream(ctx, c.cfg.OrderBooksExchange); err != nil {
		c.Close(ctx)
		return err
	}

	c.logger.Infof("rabbitmq consumer started: exchange=%s", c.cfg.OrderBooksExchange)
	return nil
}

// Close stops consumption, flushes pending batches, and releases resources.
func (c *Consumer) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.channel != nil {
		_ = c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.wg.Wait()
	if c.batcher == nil {
		return nil
	}
	return c.batcher.Stop(ctx)
}

func (c *Consumer) startStream(ctx context.Context, exchange string) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(queue.Name, "", exchange, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("bind queue %s to %s: %w", queue.Name, exchange, err)
	}
	prefetch := c.cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(queue.Name, "", false, true, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("start consume: %w", err)
	}
	c.channel = ch
	c.wg.Add(1)
	go c.consumeLoop(ctx, deliveries)
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	log := c.logger.WithField("component", "consumer")
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				return
			}
			if err := c.handleDelivery(ctx, delivery.Body); err != nil {
				log.WithError(err).Warn("failed to process message")
				_ = delivery.Nack(false, !errors.Is(err, errBadPayload))
				continue
			}
			if err := delivery.Ack(false); err != nil {
				log.WithError(err).Warn("failed to ack delivery")
			}
		}
	}
}

var errBadPayload = errors.New("bad order book payload")

// handleDelivery decodes one message. Undecodable messages are reported as
// errBadPayload so they are dropped instead of redelivered.
func (c *Consumer) handleDelivery(ctx context.Context, body []byte) error {
	var payload BaseMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("%w: decode: %v", errBadPayload, err)
	}
	if payload.OrderBook == nil {
		return fmt.Errorf("%w: order book is nil", errBadPayload)
	}
	if err := c.batcher.PublishOrderBook(ctx, payload.OrderBook); err != nil {
		return err
	}
	for _, sink := range c.sinks {
		if err := sink.PublishOrderBook(ctx, payload.OrderBook); err != nil {
			return err
		}
	}
	return nil
}
