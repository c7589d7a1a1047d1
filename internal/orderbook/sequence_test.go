package orderbook

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRejectsBeforeSnapshot(t *testing.T) {
	var tr Tracker

	err := tr.Accept(1)
	require.ErrorIs(t, err, ErrNotSynced)
	assert.Equal(t, Uninitialized, tr.State())

	_, ok := tr.Last()
	assert.False(t, ok)
}

func TestTrackerAcceptsConsecutive(t *testing.T) {
	var tr Tracker
	tr.Reset(10)

	for seq := uint64(11); seq <= 15; seq++ {
		require.NoError(t, tr.Accept(seq))
	}
	last, ok := tr.Last()
	require.True(t, ok)
	assert.Equal(t, uint64(15), last)
	assert.Equal(t, Synced, tr.State())
}

func TestTrackerTransitions(t *testing.T) {
	tests := []struct {
		name    string
		seq     uint64
		wantErr error
	}{
		{name: "gap", seq: 7, wantErr: ErrSequenceGap},
		{name: "duplicate", seq: 5, wantErr: ErrStaleSequence},
		{name: "older", seq: 2, wantErr: ErrStaleSequence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tr Tracker
			tr.Reset(5)

			err := tr.Accept(tt.seq)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, Dropping, tr.State())
			assert.Equal(t, tt.seq, tr.LastRejected())

			last, _ := tr.Last()
			assert.Equal(t, uint64(5), last)
		})
	}
}

func TestTrackerDropsUntilReset(t *testing.T) {
	var tr Tracker
	tr.Reset(1)
	require.NoError(t, tr.Accept(2))
	require.ErrorIs(t, tr.Accept(4), ErrSequenceGap)

	for _, seq := range []uint64{3, 5, 6} {
		err := tr.Accept(seq)
		require.ErrorIs(t, err, ErrDropping)
		assert.True(t, errors.Is(err, ErrSequenceGap))
	}
	last, _ := tr.Last()
	assert.Equal(t, uint64(2), last)
	assert.Equal(t, uint64(6), tr.LastRejected())

	tr.Reset(20)
	assert.Equal(t, Synced, tr.State())
	require.NoError(t, tr.Accept(21))
}

func TestTrackerCheckDoesNotAdvance(t *testing.T) {
	var tr Tracker
	tr.Reset(3)

	require.NoError(t, tr.Check(4))
	last, _ := tr.Last()
	assert.Equal(t, uint64(3), last)

	tr.Advance(4)
	require.NoError(t, tr.Check(5))
}

func TestTrackerAtMaxSequence(t *testing.T) {
	for _, seq := range []uint64{0, 1, math.MaxUint64 - 1, math.MaxUint64} {
		var tr Tracker
		tr.Reset(math.MaxUint64)
		require.ErrorIs(t, tr.Accept(seq), ErrStaleSequence, "seq %d", seq)
		assert.Equal(t, Dropping, tr.State())
	}

	var tr Tracker
	tr.Reset(math.MaxUint64 - 1)
	require.NoError(t, tr.Accept(math.MaxUint64))
	last, _ := tr.Last()
	assert.Equal(t, uint64(math.MaxUint64), last)
}

func TestReason(t *testing.T) {
	var tr Tracker
	tr.Reset(1)
	gap := tr.Accept(3)
	dropping := tr.Accept(4)

	assert.Equal(t, "gap", Reason(gap))
	assert.Equal(t, "dropping", Reason(dropping))
	assert.Equal(t, "out_of_bounds", Reason(ErrOutOfBounds))
	assert.Equal(t, "malformed_snapshot", Reason(fmt.Errorf("%w: bid level 0: %w", ErrMalformedSnapshot, ErrOutOfBounds)))
	assert.Equal(t, "", Reason(nil))
	assert.True(t, IsSetupError(ErrUnconfiguredInstrument))
	assert.False(t, IsSetupError(gap))
}
