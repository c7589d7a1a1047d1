package orderbook

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfBounds            = errors.New("price out of instrument bounds")
	ErrOffTick                = errors.New("price not aligned to tick size")
	ErrInvalidPrice           = errors.New("price is not a finite number")
	ErrInvalidSide            = errors.New("unknown book side")
	ErrSequenceGap            = errors.New("sequence gap")
	ErrStaleSequence          = fmt.Errorf("stale sequence: %w", ErrSequenceGap)
	ErrDropping               = fmt.Errorf("dropping until next snapshot: %w", ErrSequenceGap)
	ErrNotSynced              = errors.New("book has no snapshot yet")
	ErrMalformedSnapshot      = errors.New("malformed snapshot")
	ErrUnconfiguredInstrument = errors.New("instrument has no bounds configuration")
	ErrInvalidConfig          = errors.New("invalid instrument configuration")
	ErrInstrumentMismatch     = errors.New("record routed to wrong instrument")
)

// IsSetupError reports whether err must abort a run instead of dropping a record.
func IsSetupError(err error) bool {
	return errors.Is(err, ErrUnconfiguredInstrument) || errors.Is(err, ErrInvalidConfig)
}

// Reason maps a record-level error to a short label used in logs and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDropping):
		return "dropping"
	case errors.Is(err, ErrStaleSequence):
		return "stale"
	case errors.Is(err, ErrSequenceGap):
		return "gap"
	case errors.Is(err, ErrNotSynced):
		return "not_synced"
	case errors.Is(err, ErrMalformedSnapshot):
		return "malformed_snapshot"
	case errors.Is(err, ErrOutOfBounds):
		return "out_of_bounds"
	case errors.Is(err, ErrOffTick):
		return "off_tick"
	case errors.Is(err, ErrInvalidPrice), errors.Is(err, ErrInvalidSide):
		return "invalid"
	case errors.Is(err, ErrInstrumentMismatch):
		return "mismatch"
	default:
		return "other"
	}
}
