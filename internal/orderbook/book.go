// Package orderbook defines the contract shared by the order book engines:
// the level store operations, the sequence tracker and the reported view.
package orderbook

import (
	"fmt"
	"iter"
	"math"

	"orderbookcollection/internal/domain/entity/marketdata"
)

// Engine names accepted by configuration.
const (
	EngineBTree = "btree"
	EngineArray = "array"
)

// LevelStore holds the levels of one side of a book.
type LevelStore interface {
	// Upsert sets the quantity at price. Zero removes the level.
	Upsert(price float64, quantity uint64) error
	// Best is the level nearest to the opposite side.
	Best() (marketdata.Level, bool)
	// Worst is the populated level farthest from the opposite side.
	Worst() (marketdata.Level, bool)
	// SortedByDistance yields levels by ascending |price-ref|, ties by
	// ascending price. Every call starts a new sequence.
	SortedByDistance(ref float64) iter.Seq[marketdata.Level]
	Len() int
}

// Book is one instrument's order book.
type Book interface {
	InstrumentID() uint64
	Engine() string

	ApplySnapshot(record marketdata.SnapshotRecord) error
	ApplyUpdate(update marketdata.IncrementalUpdate) error
	ApplyBatch(batch marketdata.UpdateBatch) error

	BestBid() (marketdata.Level, bool)
	BestAsk() (marketdata.Level, bool)
	WorstBid() (marketdata.Level, bool)
	WorstAsk() (marketdata.Level, bool)
	Mid() (float64, bool)

	// View reports all levels of both sides ordered by distance to mid.
	View() marketdata.OrderBookView
	// Depth is View limited to the n nearest levels per side. n <= 0 means all.
	Depth(n int) marketdata.OrderBookView

	LastSeqNo() (uint64, bool)
	State() SyncState
}

// MidPrice is the average of both best prices, or the best price of the only
// populated side. ok is false when both sides are empty.
func MidPrice(bids, asks LevelStore) (mid float64, ok bool) {
	bid, hasBid := bids.Best()
	ask, hasAsk := asks.Best()
	switch {
	case hasBid && hasAsk:
		return (bid.Price + ask.Price) / 2, true
	case hasBid:
		return bid.Price, true
	case hasAsk:
		return ask.Price, true
	default:
		return 0, false
	}
}

// CheckPrice rejects NaN and infinite prices.
func CheckPrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidPrice, price)
	}
	return nil
}

// CheckSide rejects side values outside bid/ask.
func CheckSide(side marketdata.Side) error {
	if !side.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidSide, uint8(side))
	}
	return nil
}

// Collect drains seq into a slice, stopping after limit levels when limit > 0.
func Collect(seq iter.Seq[marketdata.Level], limit int) []marketdata.Level {
	out := make([]marketdata.Level, 0, max(limit, 0))
	for level := range seq {
		out = append(out, level)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Snapshot describes the book state needed to render a view.
type Snapshot struct {
	InstrumentID uint64
	Tracker      *Tracker
	Timestamp    uint64
	Bids         LevelStore
	Asks         LevelStore
}

// BuildView renders s with at most limit levels per side.
func BuildView(s Snapshot, limit int) marketdata.OrderBookView {
	view := marketdata.OrderBookView{
		InstrumentID: s.InstrumentID,
		State:        s.Tracker.State().String(),
		Timestamp:    s.Timestamp,
		Bids:         []marketdata.Level{},
		Asks:         []marketdata.Level{},
	}
	if seq, ok := s.Tracker.Last(); ok {
		view.SeqNo = seq
	}
	mid, ok := MidPrice(s.Bids, s.Asks)
	if !ok {
		return view
	}
	view.Mid = &mid
	view.Bids = Collect(s.Bids.SortedByDistance(mid), limit)
	view.Asks = Collect(s.Asks.SortedByDistance(mid), limit)
	view.Depth = int32(max(len(view.Bids), len(view.Asks)))
	return view
}
