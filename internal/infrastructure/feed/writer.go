package feed

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"orderbookcollection/internal/domain/entity/marketdata"
)

// SnapshotWriter encodes snapshot records, padding missing levels with zeros.
type SnapshotWriter struct {
	w   *bufio.Writer
	buf [SnapshotRecordSize]byte
}

func NewSnapshotWriter(w io.Writer) *SnapshotWriter {
	return &SnapshotWriter{w: bufio.NewWriter(w)}
}

func (s *SnapshotWriter) Write(rec marketdata.SnapshotRecord) error {
	if len(rec.Bids) > SnapshotDepth || len(rec.Asks) > SnapshotDepth {
		return fmt.Errorf("%w: %d bids, %d asks", ErrTooManyLevels, len(rec.Bids), len(rec.Asks))
	}
	b := s.buf[:]
	clear(b)
	le.PutUint64(b[0:], rec.Timestamp)
	le.PutUint64(b[8:], rec.SeqNo)
	le.PutUint64(b[16:], rec.InstrumentID)
	off := 24
	for i := range SnapshotDepth {
		if i < len(rec.Bids) {
			le.PutUint64(b[off:], math.Float64bits(rec.Bids[i].Price))
			le.PutUint64(b[off+8:], rec.Bids[i].Quantity)
		}
		if i < len(rec.Asks) {
			le.PutUint64(b[off+16:], math.Float64bits(rec.Asks[i].Price))
			le.PutUint64(b[off+24:], rec.Asks[i].Quantity)
		}
		off += 32
	}
	_, err := s.w.Write(b)
	return err
}

func (s *SnapshotWriter) Flush() error {
	return s.w.Flush()
}

// IncrementalWriter encodes incremental records.
type IncrementalWriter struct {
	w *bufio.Writer
}

func NewIncrementalWriter(w io.Writer) *IncrementalWriter {
	return &IncrementalWriter{w: bufio.NewWriter(w)}
}

func (iw *IncrementalWriter) Write(batch marketdata.UpdateBatch) error {
	if len(batch.Changes) > maxChanges {
		return fmt.Errorf("%w: %d", ErrTooManyChanges, len(batch.Changes))
	}
	var header [updateHeaderSize]byte
	le.PutUint64(header[0:], batch.Timestamp)
	le.PutUint64(header[8:], batch.SeqNo)
	le.PutUint64(header[16:], batch.InstrumentID)
	le.PutUint64(header[24:], uint64(len(batch.Changes)))
	if _, err := iw.w.Write(header[:]); err != nil {
		return err
	}

	var level [updateLevelSize]byte
	for _, c := range batch.Changes {
		if !c.Side.IsValid() {
			return fmt.Errorf("%w: %d", ErrInvalidSide, uint8(c.Side))
		}
		level[0] = byte(c.Side)
		le.PutUint64(level[1:], math.Float64bits(c.Price))
		le.PutUint64(level[9:], c.NewQuantity)
		if _, err := iw.w.Write(level[:]); err != nil {
			return err
		}
	}
	return nil
}

func (iw *IncrementalWriter) Flush() error {
	return iw.w.Flush()
}
