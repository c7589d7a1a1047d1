package marketdata

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Side identifies the bid or ask half of a book.
type Side uint8

const (
	SideBid Side = iota
	SideAsk
)

func (s Side) String() string {
	switch s {
	case SideBid:
		return "bid"
	case SideAsk:
		return "ask"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// IsValid reports whether s is one of the two known sides.
func (s Side) IsValid() bool {
	return s == SideBid || s == SideAsk
}

// Level holds a price/quantity pair on one side of a book.
// A zero quantity means the level is absent.
type Level struct {
	Price    float64 `json:"price"`
	Quantity uint64  `json:"quantity"`
}

// Record is anything the collection can route to a book.
type Record interface {
	Instrument() uint64
	Sequence() uint64
}

// SnapshotRecord replaces both sides of a book at SeqNo.
type SnapshotRecord struct {
	InstrumentID uint64  `json:"instrument_id"`
	SeqNo        uint64  `json:"seq_no"`
	Timestamp    uint64  `json:"timestamp"`
	Bids         []Level `json:"bids"`
	Asks         []Level `json:"asks"`
}

func (r SnapshotRecord) Instrument() uint64 { return r.InstrumentID }
func (r SnapshotRecord) Sequence() uint64 { return r.SeqNo }

// IncrementalUpdate mutates a single level. NewQuantity 0 deletes the level.
type IncrementalUpdate struct {
	InstrumentID uint64  `json:"instrument_id"`
	SeqNo        uint64  `json:"seq_no"`
	Timestamp    uint64  `json:"timestamp"`
	Side         Side    `json:"side"`
	Price        float64 `json:"price"`
	NewQuantity  uint64  `json:"new_quantity"`
}

func (u IncrementalUpdate) Instrument() uint64 { return u.InstrumentID }
func (u IncrementalUpdate) Sequence() uint64 { return u.SeqNo }

// LevelChange is one entry of an UpdateBatch.
type LevelChange struct {
	Side        Side    `json:"side"`
	Price       float64 `json:"price"`
	NewQuantity uint64  `json:"new_quantity"`
}

// UpdateBatch carries several level changes under one sequence number,
// the shape of the incremental wire record.
type UpdateBatch struct {
	InstrumentID uint64        `json:"instrument_id"`
	SeqNo        uint64        `json:"seq_no"`
	Timestamp    uint64        `json:"timestamp"`
	Changes      []LevelChange `json:"changes"`
}

func (b UpdateBatch) Instrument() uint64 { return b.InstrumentID }
func (b UpdateBatch) Sequence() uint64 { return b.SeqNo }

// OrderBookView is the reported state of one book: both sides ordered by
// ascending distance to the mid price, ties by ascending price.
type OrderBookView struct {
	ID           uuid.UUID      `json:"id"`
	InstrumentID uint64         `json:"instrument_id"`
	SeqNo        uint64         `json:"seq_no"`
	State        string         `json:"state"`
	Timestamp    uint64         `json:"timestamp"`
	Mid          *float64       `json:"mid,omitempty"`
	Depth        int32          `json:"depth"`
	Bids         []Level        `json:"bids"`
	Asks         []Level        `json:"asks"`
	ReportedAt   time.Time      `json:"reported_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func (v OrderBookView) String() string {
	return fmt.Sprintf("OrderBook(id: %d, seq_no: %d, timestamp: %d, bids: %v, asks: %v)",
		v.InstrumentID, v.SeqNo, v.Timestamp, formatLevels(v.Bids), formatLevels(v.Asks))
}

// Clone returns a copy that shares no slices or maps with v.
func (v OrderBookView) Clone() OrderBookView {
	out := v
	out.Bids = slices.Clone(v.Bids)
	out.Asks = slices.Clone(v.Asks)
	out.Metadata = maps.Clone(v.Metadata)
	if v.Mid != nil {
		mid := *v.Mid
		out.Mid = &mid
	}
	return out
}

func formatLevels(levels []Level) string {
	out := make([]string, 0, len(levels))
	for _, l := range levels {
		out = append(out, fmt.Sprintf("(%v, %d)", l.Price, l.Quantity))
	}
	return fmt.Sprintf("%v", out)
}
