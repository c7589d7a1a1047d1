// Package mapbook implements the order book on sorted price maps. Memory is
// proportional to the number of occupied levels and any finite price is
// accepted.
package mapbook

import (
	"errors"
	"fmt"

	"orderbookcollection/internal/domain/entity/marketdata"
	"orderbookcollection/internal/orderbook"
)

type Book struct {
	id        uint64
	bids      *side
	asks      *side
	tracker   orderbook.Tracker
	timestamp uint64
}

var _ orderbook.Book = (*Book)(nil)

// New returns an empty, unsynced book for instrument id.
func New(id uint64) *Book {
	return &Book{
		id:   id,
		bids: newSide(marketdata.SideBid),
		asks: newSide(marketdata.SideAsk),
	}
}

func (b *Book) InstrumentID() uint64 { return b.id }
func (b *Book) Engine() string { return orderbook.EngineBTree }

// ApplySnapshot replaces both sides. Nothing changes if any level is invalid.
func (b *Book) ApplySnapshot(record marketdata.SnapshotRecord) error {
	if record.InstrumentID != b.id {
		return fmt.Errorf("%w: snapshot for %d applied to %d", orderbook.ErrInstrumentMismatch, record.InstrumentID, b.id)
	}
	bids, err := buildSide(marketdata.SideBid, record.Bids)
	if err != nil {
		return err
	}
	asks, err := buildSide(marketdata.SideAsk, record.Asks)
	if err != nil {
		return err
	}
	b.bids, b.asks = bids, asks
	b.tracker.Reset(record.SeqNo)
	b.timestamp = record.Timestamp
	return nil
}

func buildSide(kind marketdata.Side, levels []marketdata.Level) (*side, error) {
	s := newSide(kind)
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

// ApplyUpdate sets one level if seq_no is the next expected one.
func (b *Book) ApplyUpdate(update marketdata.IncrementalUpdate) error {
	if update.InstrumentID != b.id {
		return fmt.Errorf("%w: update for %d applied to %d", orderbook.ErrInstrumentMismatch, update.InstrumentID, b.id)
	}
	if err := b.tracker.Accept(update.SeqNo); err != nil {
		return err
	}
	b.timestamp = update.Timestamp
	return b.apply(update.Side, update.Price, update.NewQuantity)
}

// ApplyBatch applies every change of one sequence number. Invalid changes
// are skipped and reported together; the rest are applied.
func (b *Book) ApplyBatch(batch marketdata.UpdateBatch) error {
	if batch.InstrumentID != b.id {
		return fmt.Errorf("%w: batch for %d applied to %d", orderbook.ErrInstrumentMismatch, batch.InstrumentID, b.id)
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
	if kind == marketdata.SideBid {
		return b.bids.Upsert(price, quantity)
	}
	return b.asks.Upsert(price, quantity)
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
		InstrumentID: b.id,
		Tracker:      &b.tracker,
		Timestamp:    b.timestamp,
		Bids:         b.bids,
		Asks:         b.asks,
	}, n)
}

func (b *Book) LastSeqNo() (uint64, bool) { return b.tracker.Last() }
func (b *Book) State() orderbook.SyncState { return b.tracker.State() }
