package mapbook

import (
	"math"
	"testing"

	"orderbookcollection/internal/domain/entity/marketdata"
	"orderbookcollection/internal/orderbook"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lv(price float64, qty uint64) marketdata.Level {
	return marketdata.Level{Price: price, Quantity: qty}
}

func bidUpdate(seq uint64, price float64, qty uint64) marketdata.IncrementalUpdate {
	return marketdata.IncrementalUpdate{InstrumentID: 1, SeqNo: seq, Side: marketdata.SideBid, Price: price, NewQuantity: qty}
}

func scenarioSnapshot() marketdata.SnapshotRecord {
	return marketdata.SnapshotRecord{
		InstrumentID: 1,
		SeqNo:        1,
		Timestamp:    1000,
		Bids:         []marketdata.Level{lv(105, 10)},
		Asks:         []marketdata.Level{lv(106, 5)},
	}
}

func TestBookScenarioWithGap(t *testing.T) {
	book := New(1)
	require.NoError(t, book.ApplySnapshot(scenarioSnapshot()))
	require.NoError(t, book.ApplyUpdate(bidUpdate(2, 104, 3)))

	err := book.ApplyUpdate(bidUpdate(4, 103, 7))
	require.ErrorIs(t, err, orderbook.ErrSequenceGap)

	seq, ok := book.LastSeqNo()
	require.True(t, ok)
	assert.Equal(t, uint64(2), seq)
	assert.Equal(t, orderbook.Dropping, book.State())

	view := book.View()
	require.NotNil(t, view.Mid)
	assert.Equal(t, 105.5, *view.Mid)
	assert.Equal(t, []marketdata.Level{lv(105, 10), lv(104, 3)}, view.Bids)
	assert.Equal(t, []marketdata.Level{lv(106, 5)}, view.Asks)
	assert.Equal(t, "dropping", view.State)
}

func TestBookDropsUntilSnapshot(t *testing.T) {
	book := New(1)
	require.NoError(t, book.ApplySnapshot(scenarioSnapshot()))
	require.NoError(t, book.ApplyUpdate(bidUpdate(2, 104, 3)))
	require.NoError(t, book.ApplyUpdate(bidUpdate(3, 103, 1)))

	for _, seq := range []uint64{5, 6, 7, 4} {
		require.Error(t, book.ApplyUpdate(bidUpdate(seq, 100, 1)))
	}
	seq, _ := book.LastSeqNo()
	assert.Equal(t, uint64(3), seq)
	_, ok := book.bids.levels.Get(100)
	assert.False(t, ok)

	snap := scenarioSnapshot()
	snap.SeqNo = 10
	require.NoError(t, book.ApplySnapshot(snap))
	assert.Equal(t, orderbook.Synced, book.State())
	require.NoError(t, book.ApplyUpdate(bidUpdate(11, 104, 2)))
	assert.Equal(t, 2, book.bids.Len())
}

func TestBookUpdateBeforeSnapshot(t *testing.T) {
	book := New(1)
	err := book.ApplyUpdate(bidUpdate(1, 100, 1))
	require.ErrorIs(t, err, orderbook.ErrNotSynced)
	assert.Equal(t, orderbook.Uninitialized, book.State())
	assert.Equal(t, 0, book.bids.Len())

	view := book.View()
	assert.Nil(t, view.Mid)
	assert.Empty(t, view.Bids)
	assert.Empty(t, view.Asks)
}

func TestBookSnapshotIdempotent(t *testing.T) {
	book := New(1)
	snap := marketdata.SnapshotRecord{
		InstrumentID: 1,
		SeqNo:        7,
		Bids:         []marketdata.Level{lv(99.5, 1), lv(99, 2), lv(0, 0)},
		Asks:         []marketdata.Level{lv(100.5, 3), lv(101, 4)},
	}
	require.NoError(t, book.ApplySnapshot(snap))
	first := book.View()
	require.NoError(t, book.ApplySnapshot(snap))
	assert.Equal(t, first, book.View())
	assert.Equal(t, 2, book.bids.Len())
}

func TestBookMalformedSnapshotKeepsState(t *testing.T) {
	book := New(1)
	require.NoError(t, book.ApplySnapshot(scenarioSnapshot()))
	before := book.View()

	bad := marketdata.SnapshotRecord{
		InstrumentID: 1,
		SeqNo:        9,
		Bids:         []marketdata.Level{lv(101, 1)},
		Asks:         []marketdata.Level{lv(math.NaN(), 1)},
	}
	err := book.ApplySnapshot(bad)
	require.ErrorIs(t, err, orderbook.ErrMalformedSnapshot)
	require.ErrorIs(t, err, orderbook.ErrInvalidPrice)
	assert.Equal(t, before, book.View())
}

func TestBookRejectsForeignInstrument(t *testing.T) {
	book := New(1)
	snap := scenarioSnapshot()
	snap.InstrumentID = 2
	require.ErrorIs(t, book.ApplySnapshot(snap), orderbook.ErrInstrumentMismatch)
}

func TestBookDeleteAndBestWorst(t *testing.T) {
	book := New(1)
	require.NoError(t, book.ApplySnapshot(marketdata.SnapshotRecord{
		InstrumentID: 1,
		SeqNo:        1,
		Bids:         []marketdata.Level{lv(10, 1), lv(9, 1), lv(8, 1)},
		Asks:         []marketdata.Level{lv(11, 1), lv(12, 1)},
	}))

	best, ok := book.BestBid()
	require.True(t, ok)
	assert.Equal(t, 10.0, best.Price)
	worst, _ := book.WorstBid()
	assert.Equal(t, 8.0, worst.Price)
	bestAsk, _ := book.BestAsk()
	assert.Equal(t, 11.0, bestAsk.Price)
	worstAsk, _ := book.WorstAsk()
	assert.Equal(t, 12.0, worstAsk.Price)

	require.NoError(t, book.ApplyUpdate(bidUpdate(2, 10, 0)))
	require.NoError(t, book.ApplyUpdate(bidUpdate(3, 42, 0)))
	best, _ = book.BestBid()
	assert.Equal(t, 9.0, best.Price)
	mid, ok := book.Mid()
	require.True(t, ok)
	assert.Equal(t, 10.0, mid)
}

func TestBookBatch(t *testing.T) {
	book := New(1)
	require.NoError(t, book.ApplySnapshot(scenarioSnapshot()))

	err := book.ApplyBatch(marketdata.UpdateBatch{
		InstrumentID: 1,
		SeqNo:        2,
		Timestamp:    2000,
		Changes: []marketdata.LevelChange{
			{Side: marketdata.SideBid, Price: 104, NewQuantity: 3},
			{Side: marketdata.Side(9), Price: 1, NewQuantity: 1},
			{Side: marketdata.SideAsk, Price: 107, NewQuantity: 2},
		},
	})
	require.ErrorIs(t, err, orderbook.ErrInvalidSide)

	seq, _ := book.LastSeqNo()
	assert.Equal(t, uint64(2), seq)
	view := book.View()
	assert.Equal(t, uint64(2000), view.Timestamp)
	assert.Equal(t, []marketdata.Level{lv(105, 10), lv(104, 3)}, view.Bids)
	assert.Equal(t, []marketdata.Level{lv(106, 5), lv(107, 2)}, view.Asks)
}

func TestBookDepth(t *testing.T) {
	book := New(1)
	require.NoError(t, book.ApplySnapshot(marketdata.SnapshotRecord{
		InstrumentID: 1,
		SeqNo:        1,
		Bids:         []marketdata.Level{lv(10, 1), lv(9, 1), lv(8, 1)},
		Asks:         []marketdata.Level{lv(11, 1)},
	}))
	view := book.Depth(2)
	assert.Equal(t, []marketdata.Level{lv(10, 1), lv(9, 1)}, view.Bids)
	assert.Equal(t, []marketdata.Level{lv(11, 1)}, view.Asks)
	assert.Equal(t, int32(2), view.Depth)
}

func TestSideSortedByDistance(t *testing.T) {
	s := newSide(marketdata.SideBid)
	for _, p := range []float64{1, 3, 4, 6, 7, 10} {
		require.NoError(t, s.Upsert(p, uint64(p)))
	}

	tests := []struct {
		name string
		ref  float64
		want []float64
	}{
		{name: "between levels with ties", ref: 5, want: []float64{4, 6, 3, 7, 1, 10}},
		{name: "on a level", ref: 4, want: []float64{4, 3, 6, 1, 7, 10}},
		{name: "above all", ref: 20, want: []float64{10, 7, 6, 4, 3, 1}},
		{name: "below all", ref: -1, want: []float64{1, 3, 4, 6, 7, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []float64
			prev := -1.0
			for l := range s.SortedByDistance(tt.ref) {
				d := math.Abs(l.Price - tt.ref)
				assert.GreaterOrEqual(t, d, prev)
				prev = d
				got = append(got, l.Price)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSideIterationRestartable(t *testing.T) {
	s := newSide(marketdata.SideAsk)
	for _, p := range []float64{5, 6, 7} {
		require.NoError(t, s.Upsert(p, 1))
	}
	seq := s.SortedByDistance(5)

	for l := range seq {
		assert.Equal(t, 5.0, l.Price)
		break
	}
	assert.Len(t, orderbook.Collect(seq, 0), 3)
	assert.Len(t, orderbook.Collect(seq, 2), 2)
}
