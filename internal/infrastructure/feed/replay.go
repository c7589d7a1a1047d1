package feed

import (
	"context"
	"errors"
	"io"

	"orderbookcollection/internal/domain/entity/marketdata"
)

// Replay sends every snapshot record and then every incremental record to
// out, in file order. It returns nil once both inputs are exhausted. Either
// input may be nil.
func Replay(ctx context.Context, snapshots, incrementals io.Reader, bufferSize int, out chan<- marketdata.Record) error {
	if snapshots != nil {
		r := NewSnapshotReader(snapshots, bufferSize)
		for {
			rec, err := r.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			if err := send(ctx, out, rec); err != nil {
				return err
			}
		}
	}
	if incrementals != nil {
		r := NewIncrementalReader(incrementals, bufferSize)
		for {
			batch, err := r.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			if err := send(ctx, out, batch); err != nil {
				return err
			}
		}
	}
	return nil
}

func send(ctx context.Context, out chan<- marketdata.Record, rec marketdata.Record) error {
	select {
	case out <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
