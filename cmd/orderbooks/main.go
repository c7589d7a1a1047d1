package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	appinstruments "orderbookcollection/internal/application/service/instruments"
	appmarketdata "orderbookcollection/internal/application/service/marketdata"
	"orderbookcollection/internal/application/service/orderbooks"
	"orderbookcollection/internal/config"
	"orderbookcollection/internal/domain/entity/instruments"
	"orderbookcollection/internal/domain/entity/marketdata"
	"orderbookcollection/internal/domain/interfaces"
	"orderbookcollection/internal/infrastructure/broker"
	"orderbookcollection/internal/infrastructure/feed"
	infrainstruments "orderbookcollection/internal/infrastructure/instruments"
	inframarketdata "orderbookcollection/internal/infrastructure/marketdata"
	infrahttp "orderbookcollection/internal/interfaces/http"
	"orderbookcollection/internal/orderbook"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const recordBuffer = 1024

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}
	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalf("orderbooks stopped with error: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown LOG_LEVEL %q, using info", cfg.LogLevel)
	}

	bounds, fileBuffer, err := loadBounds(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("load instrument bounds: %w", err)
	}
	bufferSize := cfg.Feed.ResolveBufferSize(fileBuffer)

	factory, err := orderbooks.NewFactory(cfg.Engine, bounds, cfg.Collection.AutoResize)
	if err != nil {
		return fmt.Errorf("init order book factory: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := orderbooks.NewMetrics(reg)

	store := orderbooks.NewViewStore()
	sinks := []interfaces.OrderBookSink{store}

	var marketdataService *appmarketdata.Service
	if cfg.Postgres.DSN != "" {
		repo, err := inframarketdata.NewRepository(ctx, cfg.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("init marketdata repo: %w", err)
		}
		defer repo.Close()
		if err := repo.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate order_book_views: %w", err)
		}
		marketdataService = appmarketdata.NewService(repo)

		batcher := broker.NewBatchWriter(broker.BatchConfig{
			Size:    cfg.RabbitMQ.BatchSize,
			Timeout: cfg.RabbitMQ.BatchTimeout,
		}, marketdataService, logger)
		batcher.Run(ctx)
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := batcher.Stop(flushCtx); err != nil {
				logger.Errorf("flush order book views: %v", err)
			}
		}()
		sinks = append(sinks, batcher)
	}

	if cfg.RabbitMQ.URL != "" {
		conn, err := amqp.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		defer conn.Close()

		pub, err := broker.NewPublisher(conn, cfg.RabbitMQ.OrderBooksExchange, logger)
		if err != nil {
			return fmt.Errorf("init publisher: %w", err)
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	pool := orderbooks.NewPool(cfg.Collection.Workers, func(int) *orderbooks.Service {
		return orderbooks.NewService(orderbooks.Config{
			ReportDepth:        cfg.Collection.ReportDepth,
			PublishEveryUpdate: cfg.Collection.PublishEveryUpdate,
		}, factory, metrics, logger, sinks...)
	}, logger)

	if cfg.Engine == orderbook.EngineArray {
		ids := make([]uint64, 0, len(bounds))
		for id := range bounds {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		if err := pool.Preload(ids...); err != nil {
			return fmt.Errorf("build array books: %w", err)
		}
	}

	var servers []*http.Server
	if cfg.ServeHTTP {
		var cache *redis.Client
		if cfg.Redis.Addr != "" {
			cache = redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			if err := cache.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("connect to redis: %w", err)
			}
			defer cache.Close()
		}
		handler := infrahttp.NewHandler(store, marketdataService, cache, cfg.Cache.TTL(), reg)
		servers = append(servers, serve(cfg.HTTP.Addr(), handler, logger))
	}
	if cfg.MetricsAddr != "" {
		servers = append(servers, serve(cfg.MetricsAddr, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), logger))
	}
	defer shutdown(servers, logger)

	snapshots, err := os.Open(cfg.Feed.SnapshotFile)
	if err != nil {
		return fmt.Errorf("open snapshot file: %w", err)
	}
	defer snapshots.Close()
	incrementals, err := os.Open(cfg.Feed.IncrementalFile)
	if err != nil {
		return fmt.Errorf("open incremental file: %w", err)
	}
	defer incrementals.Close()

	logger.WithFields(logrus.Fields{
		"engine":      cfg.Engine,
		"workers":     cfg.Collection.Workers,
		"instruments": len(bounds),
		"buffer_size": bufferSize,
		"snapshot":    cfg.Feed.SnapshotFile,
		"incremental": cfg.Feed.IncrementalFile,
	}).Info("replay started")

	start := time.Now()
	records := make(chan marketdata.Record, recordBuffer)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(records)
		return feed.Replay(gctx, snapshots, incrementals, bufferSize, records)
	})
	g.Go(func() error {
		return pool.Run(gctx, records)
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("replay interrupted")
		} else {
			return fmt.Errorf("replay: %w", err)
		}
	}

	reportCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := pool.Report(reportCtx); err != nil {
		return fmt.Errorf("report order books: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"books":   pool.Len(),
		"took_ms": time.Since(start).Milliseconds(),
	}).Info("replay finished")

	if len(servers) > 0 && ctx.Err() == nil {
		logger.Info("serving views until interrupted")
		<-ctx.Done()
	}
	return nil
}

// loadBounds returns the instrument bounds and the buffer size from the
// bounds file, if any. A missing file is fatal only for the array engine.
func loadBounds(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (map[uint64]instruments.Config, int, error) {
	if cfg.Instruments.Source == config.SourcePostgres {
		repo, err := infrainstruments.NewRepository(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, 0, err
		}
		svc := appinstruments.NewService(repo)
		defer svc.Close()
		bounds, err := svc.LoadBounds(ctx)
		return bounds, 0, err
	}

	file, err := config.LoadInstruments(cfg.Instruments.File)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && cfg.Engine != orderbook.EngineArray {
			logger.Warnf("instruments file %s not found, continuing without bounds", cfg.Instruments.File)
			return map[uint64]instruments.Config{}, 0, nil
		}
		return nil, 0, err
	}
	if cfg.Engine == orderbook.EngineArray && len(file.Bounds()) == 0 {
		return nil, 0, fmt.Errorf("array engine needs bounds, %s has none", cfg.Instruments.File)
	}
	return file.Bounds(), file.IncrementalBufferSize, nil
}

func serve(addr string, handler http.Handler, logger *logrus.Logger) *http.Server {
	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}
	go func() {
		logger.Infof("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("http server error: %v", err)
		}
	}()
	return server
}

func shutdown(servers []*http.Server, logger *logrus.Logger) {
	if len(servers) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, server := range servers {
		if err := server.Shutdown(ctx); err != nil {
			logger.Errorf("server shutdown error: %v", err)
		}
	}
	logger.Info("servers stopped")
}
