package instruments

import (
	"errors"
	"fmt"
	"math"
)

// MaxSlots caps the number of price slots an array book may reserve per side.
const MaxSlots = 1_000_000

// gridEpsilon is the tolerance, in ticks, for max_price to sit on the grid.
const gridEpsilon = 1e-6

var (
	ErrInvalidBounds = errors.New("invalid instrument bounds")
	ErrTooManySlots  = errors.New("instrument bounds exceed slot limit")
)

// Config describes the price grid of one instrument. It is immutable once a
// book has been built from it.
type Config struct {
	ID       uint64  `json:"id" yaml:"id"`
	MinPrice float64 `json:"min_price" yaml:"min_price"`
	MaxPrice float64 `json:"max_price" yaml:"max_price"`
	TickSize float64 `json:"tick_size" yaml:"tick_size"`
}

// Validate checks min < max, tick > 0, that max_price lies on the tick grid
// anchored at min_price and that the slot count fits MaxSlots.
func (c Config) Validate() error {
	for _, v := range []float64{c.MinPrice, c.MaxPrice, c.TickSize} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: instrument %d has non-finite value", ErrInvalidBounds, c.ID)
		}
	}
	if c.TickSize <= 0 {
		return fmt.Errorf("%w: instrument %d tick_size %v must be positive", ErrInvalidBounds, c.ID, c.TickSize)
	}
	if c.MinPrice >= c.MaxPrice {
		return fmt.Errorf("%w: instrument %d min_price %v must be below max_price %v", ErrInvalidBounds, c.ID, c.MinPrice, c.MaxPrice)
	}
	if ticks := (c.MaxPrice - c.MinPrice) / c.TickSize; math.Abs(ticks-math.Round(ticks)) > gridEpsilon {
		return fmt.Errorf("%w: instrument %d max_price %v is not min_price %v plus a whole number of ticks %v", ErrInvalidBounds, c.ID, c.MaxPrice, c.MinPrice, c.TickSize)
	}
	if slots := c.span(); slots > MaxSlots {
		return fmt.Errorf("%w: instrument %d needs %.0f slots, limit %d", ErrTooManySlots, c.ID, slots, MaxSlots)
	}
	return nil
}

// Slots returns the number of representable prices, both bounds included.
// Call only on a validated config.
func (c Config) Slots() int {
	return int(c.span())
}

func (c Config) span() float64 {
	return math.Round((c.MaxPrice-c.MinPrice)/c.TickSize) + 1
}
