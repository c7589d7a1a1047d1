// Package arraybook implements the order book on fixed price-indexed arrays.
//
// Each side reserves one slot per representable price between the
// instrument's bounds, so updates are a direct write and sorted reads walk
// contiguous memory. Prices outside the bounds are rejected with
// orderbook.ErrOutOfBounds unless the book was built WithAutoResize.
package arraybook

import (
	"errors"
	"fmt"

	"orderbookcollection/internal/domain/entity/instruments"
	"orderbookcollection/internal/domain/entity/marketdata"
	"orderbookcollection/internal/orderbook"
)

type Book struct {
	cfg        instruments.Config
	codec      *Codec
	bids       *side
	asks       *side
	tracker    orderbook.Tracker
	timestamp  uint64
	autoResize bool
	resizes    int
}

var _ orderbook.Book = (*Book)(nil)

type Option func(*Book)

// WithAutoResize makes the book grow its bounds instead of rejecting
// out-of-range prices.
func WithAutoResize() Option {
	return func(b *Book) { b.autoResize = true }
}

// New validates cfg and allocates both sides.
func New(cfg instruments.Config, opts ...Option) (*Book, error) {
	codec, err := NewCodec(cfg)
	if err != nil {
		return nil, err
	}
	b := &Book{
		cfg:   cfg,
		codec: codec,
		bids:  newSide(marketdata.SideBid, codec),
		asks:  newSide(marketdata.SideAsk, codec),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *Book) InstrumentID() uint64 { return b.cfg.ID }
func (b *Book) Engine() string { return orderbook.EngineArray }

// Config returns the configuration the book was built with.
func (b *Book) Config() instruments.Config { return b.cfg }

// Bounds returns the current price range, wider than Config after a resize.
func (b *Book) Bounds() (minPrice, maxPrice float64) {
	return b.codec.Min(), b.codec.Max()
}

// Resizes counts how many times the bounds have grown.
func (b *Book) Resizes() int { return b.resizes }

// ApplySnapshot replaces both sides. Nothing changes if any level is out of
// bounds, off the tick grid or not a finite price.
func (b *Book) ApplySnapshot(record marketdata.SnapshotRecord) error {
	if record.InstrumentID != b.cfg.ID {
		return fmt.Errorf("%w: snapshot for %d applied to %d", orderbook.ErrInstrumentMismatch, record.InstrumentID, b.cfg.ID)
	}
	codec := b.codec
	if b.autoResize {
		var err error
		if codec, err = coverLevels(codec, record.Bids, record.Asks); err != nil {
			return fmt.Errorf("%w: %w", orderbook.ErrMalformedSnapshot, err)
		}
	}
	bids, err := buildSide(marketdata.SideBid, codec, record.Bids)
	if err != nil {
		return err
	}
	asks, err := buildSide(marketdata.SideAsk, codec, record.Asks)
	if err != nil {
		return err
	}
	if codec != b.codec {
		b.resizes++
	}
	b.codec, b.bids, b.asks = codec, bids, asks
	b.tracker.Reset(record.SeqNo)
	b.timestamp = record.Timestamp
	return nil
}

func coverLevels(codec *Codec, sides ...[]marketdata.Level) (*Codec, error) {
	for _, levels := range sides {
		for _, l := range levels {
			if l.Quantity == 0 || codec.Contains(l.Price) {
				continue
			}
			next, err := codec.Expand(l.Price)
			if err != nil {
				return nil, err
			}
			codec = next
		}
	}
	return codec, nil
}

func buildSide(kind marketdata.Side, codec *Codec, levels []marketdata.Level) (*side, error) {
	s := newSide(kind, codec)
	for i, l := range levels {
		if l.Quantity == 0 {
			continue
		}
		if err := s.Upsert(l.Price, l.Quantity); err != nil {
			return nil, fmt.Errorf("%w: %s level %d: %w", orderbook.ErrMalformedSnapshot, kind, i, err)
		}
	}
	return s, nil
}

// ApplyUpdate sets one level if seq_no is the next expected one. An
// accepted update with an unusable price still advances the sequence and
// leaves the levels untouched.
func (b *Book) ApplyUpdate(update marketdata.IncrementalUpdate) error {
	if update.InstrumentID != b.cfg.ID {
		return fmt.Errorf("%w: update for %d applied to %d", orderbook.ErrInstrumentMismatch, update.InstrumentID, b.cfg.ID)
	}
	if err := b.tracker.Accept(update.SeqNo); err != nil {
		return err
	}
	b.timestamp = update.Timestamp
	return b.apply(update.Side, update.Price, update.NewQuantity)
}

// ApplyBatch applies every change of one sequence number and joins the
// errors of the changes it had to skip.
func (b *Book) ApplyBatch(batch marketdata.UpdateBatch) error {
	if batch.InstrumentID != b.cfg.ID {
		return fmt.Errorf("%w: batch for %d applied to %d", orderbook.ErrInstrumentMismatch, batch.InstrumentID, b.cfg.ID)
	}
	if err := b.tracker.Accept(batch.SeqNo); err != nil {
		return err
	}
	b.timestamp = batch.Timestamp
	var errs []error
	for _, c := range batch.Changes {
		if err := b.apply(c.Side, c.Price, c.NewQuantity); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Book) apply(kind marketdata.Side, price float64, quantity uint64) error {
	if err := orderbook.CheckSide(kind); err != nil {
		return err
	}
	target := b.asks
	if kind == marketdata.SideBid {
		target = b.bids
	}
	err := target.Upsert(price, quantity)
	if err == nil || !b.autoResize || !errors.Is(err, orderbook.ErrOutOfBounds) {
		return err
	}
	if quantity == 0 {
		// nothing can live outside the bounds, so there is nothing to delete
		return nil
	}
	if err := b.grow(price); err != nil {
		return err
	}
	if kind == marketdata.SideBid {
		return b.bids.Upsert(price, quantity)
	}
	return b.asks.Upsert(price, quantity)
}

// grow swaps in arenas whose bounds cover price, keeping every level.
func (b *Book) grow(price float64) error {
	codec, err := b.codec.Expand(price)
	if err != nil {
		return err
	}
	b.bids = b.bids.rebuild(codec)
	b.asks = b.asks.rebuild(codec)
	b.codec = codec
	b.resizes++
	return nil
}

func (b *Book) BestBid() (marketdata.Level, bool) { return b.bids.Best() }
func (b *Book) BestAsk() (marketdata.Level, bool) { return b.asks.Best() }
func (b *Book) WorstBid() (marketdata.Level, bool) { return b.bids.Worst() }
func (b *Book) WorstAsk() (marketdata.Level, bool) { return b.asks.Worst() }

func (b *Book) Mid() (float64, bool) {
	return orderbook.MidPrice(b.bids, b.asks)
}

func (b *Book) View() marketdata.OrderBookView {
	return b.Depth(0)
}

func (b *Book) Depth(n int) marketdata.OrderBookView {
	return orderbook.BuildView(orderbook.Snapshot{
		InstrumentID: b.cfg.ID,
		Tracker:      &b.tracker,
		Timestamp:    b.timestamp,
		Bids:         b.bids,
		Asks:         b.asks,
	}, n)
}

func (b *Book) LastSeqNo() (uint64, bool) { return b.tracker.Last() }
func (b *Book) State() orderbook.SyncState { return b.tracker.State() }
