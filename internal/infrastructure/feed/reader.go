package feed

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"orderbookcollection/internal/domain/entity/marketdata"
)

var le = binary.LittleEndian

// SnapshotReader decodes snapshot records one at a time.
type SnapshotReader struct {
	r   *bufio.Reader
	buf [SnapshotRecordSize]byte
	n   int
}

func NewSnapshotReader(r io.Reader, bufferSize int) *SnapshotReader {
	return &SnapshotReader{r: bufio.NewReaderSize(r, bufferSizeOrDefault(bufferSize))}
}

// Next returns the next record, io.EOF at a clean end of input or
// ErrTruncated when the input stops inside a record.
func (s *SnapshotReader) Next() (marketdata.SnapshotRecord, error) {
	if err := readFull(s.r, s.buf[:]); err != nil {
		if err == io.EOF {
			return marketdata.SnapshotRecord{}, io.EOF
		}
		return marketdata.SnapshotRecord{}, fmt.Errorf("snapshot record %d: %w", s.n, err)
	}
	s.n++

	b := s.buf[:]
	rec := marketdata.SnapshotRecord{
		Timestamp:    le.Uint64(b[0:]),
		SeqNo:        le.Uint64(b[8:]),
		InstrumentID: le.Uint64(b[16:]),
	}
	off := 24
	for range SnapshotDepth {
		bid := marketdata.Level{Price: math.Float64frombits(le.Uint64(b[off:])), Quantity: le.Uint64(b[off+8:])}
		ask := marketdata.Level{Price: math.Float64frombits(le.Uint64(b[off+16:])), Quantity: le.Uint64(b[off+24:])}
		off += 32
		if bid.Quantity != 0 {
			rec.Bids = append(rec.Bids, bid)
		}
		if ask.Quantity != 0 {
			rec.Asks = append(rec.Asks, ask)
		}
	}
	return rec, nil
}

// IncrementalReader decodes incremental records one at a time.
type IncrementalReader struct {
	r      *bufio.Reader
	header [updateHeaderSize]byte
	level  [updateLevelSize]byte
	n      int
}

func NewIncrementalReader(r io.Reader, bufferSize int) *IncrementalReader {
	return &IncrementalReader{r: bufio.NewReaderSize(r, bufferSizeOrDefault(bufferSize))}
}

// Next returns the next record as a batch of level changes.
func (ir *IncrementalReader) Next() (marketdata.UpdateBatch, error) {
	idx := ir.n
	if err := readFull(ir.r, ir.header[:]); err != nil {
		if err == io.EOF {
			return marketdata.UpdateBatch{}, io.EOF
		}
		return marketdata.UpdateBatch{}, fmt.Errorf("incremental record %d: %w", idx, err)
	}
	ir.n++

	h := ir.header[:]
	batch := marketdata.UpdateBatch{
		Timestamp:    le.Uint64(h[0:]),
		SeqNo:        le.Uint64(h[8:]),
		InstrumentID: le.Uint64(h[16:]),
	}
	count := le.Uint64(h[24:])
	if count > maxChanges {
		return marketdata.UpdateBatch{}, fmt.Errorf("incremental record %d: %w: %d", idx, ErrTooManyChanges, count)
	}

	batch.Changes = make([]marketdata.LevelChange, 0, count)
	for i := range count {
		if err := readFull(ir.r, ir.level[:]); err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrTruncated
			}
			return marketdata.UpdateBatch{}, fmt.Errorf("incremental record %d change %d: %w", idx, i, err)
		}
		side := marketdata.Side(ir.level[0])
		if !side.IsValid() {
			return marketdata.UpdateBatch{}, fmt.Errorf("incremental record %d change %d: %w: %d", idx, i, ErrInvalidSide, ir.level[0])
		}
		batch.Changes = append(batch.Changes, marketdata.LevelChange{
			Side:        side,
			Price:       math.Float64frombits(le.Uint64(ir.level[1:])),
			NewQuantity: le.Uint64(ir.level[9:]),
		})
	}
	return batch, nil
}

// readFull is io.ReadFull with a partial read reported as ErrTruncated.
func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return err
}

func bufferSizeOrDefault(size int) int {
	if size <= 0 {
		return DefaultBufferSize
	}
	return size
}
