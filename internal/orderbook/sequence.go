package orderbook

import "fmt"

// SyncState is the gap-detection state of one book.
type SyncState uint8

const (
	Uninitialized SyncState = iota
	Synced
	Dropping
)

func (s SyncState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Synced:
		return "synced"
	case Dropping:
		return "dropping"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Tracker is the per-instrument sequence cursor.
//
// Once an update arrives out of order the tracker stays in Dropping and
// rejects everything until Reset is called for a fresh snapshot. The cursor
// keeps the last applied sequence number while dropping.
type Tracker struct {
	state   SyncState
	last    uint64
	lastBad uint64
}

// State returns the current state.
func (t *Tracker) State() SyncState { return t.state }

// Last returns the last applied sequence number. ok is false before the
// first snapshot.
func (t *Tracker) Last() (seq uint64, ok bool) {
	if t.state == Uninitialized {
		return 0, false
	}
	return t.last, true
}

// LastRejected returns the sequence number that moved the tracker into
// Dropping, or the latest one dropped since.
func (t *Tracker) LastRejected() uint64 { return t.lastBad }

// Reset syncs the tracker to a snapshot's sequence number.
func (t *Tracker) Reset(seq uint64) {
	t.state = Synced
	t.last = seq
	t.lastBad = 0
}

// Check validates seq against the expected next number without advancing.
// A rejected seq still moves a synced tracker into Dropping.
func (t *Tracker) Check(seq uint64) error {
	switch t.state {
	case Uninitialized:
		return fmt.Errorf("%w: seq_no %d", ErrNotSynced, seq)
	case Dropping:
		t.lastBad = seq
		return fmt.Errorf("%w: seq_no %d after %d", ErrDropping, seq, t.last)
	}
	if seq > t.last && seq-t.last == 1 {
		return nil
	}
	t.state = Dropping
	t.lastBad = seq
	// at math.MaxUint64 every seq is stale, nothing can follow it
	if seq <= t.last {
		return fmt.Errorf("%w: seq_no %d, last applied %d", ErrStaleSequence, seq, t.last)
	}
	return fmt.Errorf("%w: expected %d, got %d", ErrSequenceGap, t.last+1, seq)
}

// Advance moves the cursor to seq. Call only after Check accepted it.
func (t *Tracker) Advance(seq uint64) {
	t.last = seq
}

// Accept is Check followed by Advance.
func (t *Tracker) Accept(seq uint64) error {
	if err := t.Check(seq); err != nil {
		return err
	}
	t.Advance(seq)
	return nil
}
