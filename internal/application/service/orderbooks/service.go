// Package orderbooks holds the order book collection: it owns one book per
// instrument, routes records to them and reports their views.
package orderbooks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"orderbookcollection/internal/domain/entity/instruments"
	"orderbookcollection/internal/domain/entity/marketdata"
	"orderbookcollection/internal/domain/interfaces"
	"orderbookcollection/internal/orderbook"
	"orderbookcollection/internal/orderbook/arraybook"
	"orderbookcollection/internal/orderbook/mapbook"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnknownEngine = errors.New("unknown order book engine")
	ErrUnknownRecord = errors.New("unknown record type")
)

// Factory builds the book for an instrument the first time it is seen.
type Factory func(id uint64) (orderbook.Book, error)

// NewFactory selects the engine. The array engine requires bounds for every
// instrument it will see.
func NewFactory(engine string, bounds map[uint64]instruments.Config, autoResize bool) (Factory, error) {
	switch engine {
	case orderbook.EngineBTree:
		return MapFactory(), nil
	case orderbook.EngineArray:
		var opts []arraybook.Option
		if autoResize {
			opts = append(opts, arraybook.WithAutoResize())
		}
		return ArrayFactory(bounds, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
	}
}

func MapFactory() Factory {
	return func(id uint64) (orderbook.Book, error) {
		return mapbook.New(id), nil
	}
}

func ArrayFactory(bounds map[uint64]instruments.Config, opts ...arraybook.Option) Factory {
	return func(id uint64) (orderbook.Book, error) {
		cfg, ok := bounds[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d", orderbook.ErrUnconfiguredInstrument, id)
		}
		if cfg.ID != id {
			return nil, fmt.Errorf("%w: bounds keyed %d carry id %d", orderbook.ErrInvalidConfig, id, cfg.ID)
		}
		return arraybook.New(cfg, opts...)
	}
}

// Config controls reporting.
type Config struct {
	// ReportDepth limits reported levels per side; 0 reports all.
	ReportDepth int
	// PublishEveryUpdate sends the book view to the sinks after every
	// applied record instead of only from Report.
	PublishEveryUpdate bool
}

// Service is a single-owner collection of books. It is not safe for
// concurrent use; Pool runs one per goroutine.
type Service struct {
	cfg     Config
	factory Factory
	books   map[uint64]orderbook.Book
	sinks   []interfaces.OrderBookSink
	metrics *Metrics
	logger  *logrus.Entry
}

func NewService(cfg Config, factory Factory, metrics *Metrics, logger *logrus.Logger, sinks ...interfaces.OrderBookSink) *Service {
	return &Service{
		cfg:     cfg,
		factory: factory,
		books:   make(map[uint64]orderbook.Book),
		sinks:   sinks,
		metrics: metrics,
		logger:  logger.WithField("component", "orderbooks"),
	}
}

// Preload builds the books for ids up front so configuration problems
// surface before any record is read.
func (s *Service) Preload(ids ...uint64) error {
	for _, id := range ids {
		if _, err := s.book(id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) book(id uint64) (orderbook.Book, error) {
	if b, ok := s.books[id]; ok {
		return b, nil
	}
	b, err := s.factory(id)
	if err != nil {
		return nil, fmt.Errorf("create book for instrument %d: %w", id, err)
	}
	s.books[id] = b
	s.metrics.bookAdded(b.Engine())
	return b, nil
}

// Route dispatches rec to its instrument's book. Problems with the record
// itself are logged, counted and swallowed. The returned error is either a
// setup error or a sink failure and should stop the run.
func (s *Service) Route(ctx context.Context, rec marketdata.Record) error {
	b, err := s.book(rec.Instrument())
	if err != nil {
		return err
	}

	var (
		applyErr error
		snapshot bool
	)
	switch r := rec.(type) {
	case marketdata.SnapshotRecord:
		applyErr, snapshot = b.ApplySnapshot(r), true
	case *marketdata.SnapshotRecord:
		applyErr, snapshot = b.ApplySnapshot(*r), true
	case marketdata.IncrementalUpdate:
		applyErr = b.ApplyUpdate(r)
	case *marketdata.IncrementalUpdate:
		applyErr = b.ApplyUpdate(*r)
	case marketdata.UpdateBatch:
		applyErr = b.ApplyBatch(r)
	case *marketdata.UpdateBatch:
		applyErr = b.ApplyBatch(*r)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownRecord, rec)
	}

	if applyErr != nil {
		s.drop(b, rec, applyErr)
		if snapshot || !accepted(b, rec) {
			return nil
		}
	} else if snapshot {
		s.metrics.snapshotApplied(b.Engine())
	} else {
		s.metrics.updateApplied(b.Engine())
	}

	if !s.cfg.PublishEveryUpdate {
		return nil
	}
	return s.publish(ctx, b)
}

// ApplySnapshot routes a snapshot record.
func (s *Service) ApplySnapshot(ctx context.Context, rec marketdata.SnapshotRecord) error {
	return s.Route(ctx, rec)
}

// ApplyUpdate routes an incremental update.
func (s *Service) ApplyUpdate(ctx context.Context, update marketdata.IncrementalUpdate) error {
	return s.Route(ctx, update)
}

// accepted reports whether the book took an update's sequence number even
// though applying it returned an error. A failed snapshot is never accepted.
func accepted(b orderbook.Book, rec marketdata.Record) bool {
	seq, ok := b.LastSeqNo()
	return ok && b.State() == orderbook.Synced && seq == rec.Sequence()
}

func (s *Service) drop(b orderbook.Book, rec marketdata.Record, err error) {
	reason := orderbook.Reason(err)
	s.metrics.dropped(b.Engine(), reason)

	entry := s.logger.WithFields(logrus.Fields{
		"instrument_id": rec.Instrument(),
		"seq_no":        rec.Sequence(),
		"reason":        reason,
		"state":         b.State().String(),
	})
	if last, ok := b.LastSeqNo(); ok {
		entry = entry.WithField("last_seq_no", last)
	}
	entry.WithError(err).Warn("record dropped")
}

func (s *Service) render(b orderbook.Book) marketdata.OrderBookView {
	view := b.Depth(s.cfg.ReportDepth)
	view.ID = uuid.New()
	view.ReportedAt = time.Now().UTC()
	view.Metadata = map[string]any{"engine": b.Engine()}
	return view
}

func (s *Service) publish(ctx context.Context, b orderbook.Book) error {
	if len(s.sinks) == 0 {
		return nil
	}
	view := s.render(b)
	for _, sink := range s.sinks {
		if err := sink.PublishOrderBook(ctx, &view); err != nil {
			return fmt.Errorf("publish order book %d: %w", b.InstrumentID(), err)
		}
	}
	return nil
}

// Book returns the book for id if one has been created.
func (s *Service) Book(id uint64) (orderbook.Book, bool) {
	b, ok := s.books[id]
	return b, ok
}

// View renders the book for id.
func (s *Service) View(id uint64) (marketdata.OrderBookView, bool) {
	b, ok := s.books[id]
	if !ok {
		return marketdata.OrderBookView{}, false
	}
	return s.render(b), true
}

// IDs returns the instrument ids in ascending order.
func (s *Service) IDs() []uint64 {
	ids := make([]uint64, 0, len(s.books))
	for id := range s.books {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *Service) Len() int {
	return len(s.books)
}

// ReportAll renders every book.
func (s *Service) ReportAll() map[uint64]marketdata.OrderBookView {
	out := make(map[uint64]marketdata.OrderBookView, len(s.books))
	for id, b := range s.books {
		out[id] = s.render(b)
	}
	return out
}

// Report logs every book's view and sends it to the sinks.
func (s *Service) Report(ctx context.Context) error {
	for _, id := range s.IDs() {
		b := s.books[id]
		view := s.render(b)
		fields := logrus.Fields{
			"instrument_id": id,
			"seq_no":        view.SeqNo,
			"state":         view.State,
			"bids":          len(view.Bids),
			"asks":          len(view.Asks),
		}
		if view.Mid != nil {
			fields["mid"] = *view.Mid
		}
		s.logger.WithFields(fields).Info(view.String())

		for _, sink := range s.sinks {
			if err := sink.PublishOrderBook(ctx, &view); err != nil {
				return fmt.Errorf("publish order book %d: %w", id, err)
			}
		}
	}
	return nil
}
