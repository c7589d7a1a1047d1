// Package feed reads and writes the recorded market data files: a file of
// fixed-size snapshot records and a file of variable-size incremental
// records, both little-endian.
//
// Snapshot record (184 bytes):
//
//	timestamp u64 | seq_no u64 | id u64 | 5 x (bid price f64, bid qty u64, ask price f64, ask qty u64)
//
// Incremental record:
//
//	timestamp u64 | seq_no u64 | id u64 | n u64 | n x (side u8, price f64, qty u64)
//
// Side 0 is bid and 1 is ask. Levels with zero quantity in a snapshot are
// padding.
package feed

import "errors"

const (
	SnapshotDepth      = 5
	SnapshotRecordSize = 24 + SnapshotDepth*32

	updateHeaderSize = 32
	updateLevelSize  = 17

	// DefaultBufferSize is the read buffer used when none is configured.
	DefaultBufferSize = 2048

	// maxChanges bounds n in an incremental header so a corrupt count cannot
	// trigger a huge allocation.
	maxChanges = 1 << 16
)

var (
	ErrTruncated      = errors.New("truncated record")
	ErrInvalidSide    = errors.New("invalid side byte")
	ErrTooManyChanges = errors.New("incremental record change count too large")
	ErrTooManyLevels  = errors.New("snapshot has more levels than the record holds")
)
