package arraybook

import (
	"fmt"
	"math"

	"orderbookcollection/internal/domain/entity/instruments"
	"orderbookcollection/internal/orderbook"
)

// tickEpsilon is the tolerance, in ticks, for a price to count as on the grid.
const tickEpsilon = 1e-6

// maxDecimals bounds the decimal precision used to clean reconstructed prices.
const maxDecimals = 12

// Codec maps prices on an instrument's tick grid to slot indices.
//
// The grid is anchored at the configured minimum price. lo and hi are tick
// offsets from that anchor and bound the current slot range; they only move
// when the book grows.
type Codec struct {
	origin float64
	tick   float64
	scale  float64
	lo, hi int64
}

// NewCodec validates cfg and returns a codec covering [MinPrice, MaxPrice].
func NewCodec(cfg instruments.Config) (*Codec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", orderbook.ErrInvalidConfig, err)
	}
	return &Codec{
		origin: cfg.MinPrice,
		tick:   cfg.TickSize,
		scale:  decimalScale(cfg.TickSize, cfg.MinPrice),
		lo:     0,
		hi:     int64(cfg.Slots() - 1),
	}, nil
}

// Index returns the slot of price.
func (c *Codec) Index(price float64) (uint32, error) {
	if err := orderbook.CheckPrice(price); err != nil {
		return 0, err
	}
	raw := (price - c.origin) / c.tick
	if raw < float64(c.lo)-tickEpsilon || raw > float64(c.hi)+tickEpsilon {
		return 0, fmt.Errorf("%w: %v not in [%v, %v]", orderbook.ErrOutOfBounds, price, c.Min(), c.Max())
	}
	k := math.Round(raw)
	if math.Abs(raw-k) > tickEpsilon {
		return 0, fmt.Errorf("%w: %v with tick %v", orderbook.ErrOffTick, price, c.tick)
	}
	return uint32(int64(k) - c.lo), nil
}

// Price is the inverse of Index.
func (c *Codec) Price(index uint32) float64 {
	return c.priceAt(c.lo + int64(index))
}

// Contains reports whether price lies within the current bounds.
func (c *Codec) Contains(price float64) bool {
	_, err := c.Index(price)
	return err == nil
}

// Position converts ref to a fractional index. It may fall outside the
// slot range.
func (c *Codec) Position(ref float64) float64 {
	return (ref-c.origin)/c.tick - float64(c.lo)
}

func (c *Codec) Slots() int { return int(c.hi - c.lo + 1) }
func (c *Codec) Min() float64 { return c.priceAt(c.lo) }
func (c *Codec) Max() float64 { return c.priceAt(c.hi) }

// Expand returns a codec on the same grid whose bounds also cover price,
// with headroom of half the current range on the growing side. It fails
// with ErrOutOfBounds when the result would exceed MaxSlots.
func (c *Codec) Expand(price float64) (*Codec, error) {
	if err := orderbook.CheckPrice(price); err != nil {
		return nil, err
	}
	raw := (price - c.origin) / c.tick
	if math.Abs(raw) > float64(2*instruments.MaxSlots) {
		return nil, fmt.Errorf("%w: %v too far from grid origin %v", orderbook.ErrOutOfBounds, price, c.origin)
	}
	k := math.Round(raw)
	if math.Abs(raw-k) > tickEpsilon {
		return nil, fmt.Errorf("%w: %v with tick %v", orderbook.ErrOffTick, price, c.tick)
	}
	off := int64(k)
	next := *c
	headroom := (c.hi - c.lo + 1) / 2
	switch {
	case off < c.lo:
		if c.hi-off+1 > instruments.MaxSlots {
			return nil, fmt.Errorf("%w: %v needs more than %d slots", orderbook.ErrOutOfBounds, price, instruments.MaxSlots)
		}
		next.lo = max(off-headroom, c.hi-instruments.MaxSlots+1)
	case off > c.hi:
		if off-c.lo+1 > instruments.MaxSlots {
			return nil, fmt.Errorf("%w: %v needs more than %d slots", orderbook.ErrOutOfBounds, price, instruments.MaxSlots)
		}
		next.hi = min(off+headroom, c.lo+instruments.MaxSlots-1)
	}
	return &next, nil
}

// shift is the index offset from a slot of prev to the same price in c.
func (c *Codec) shift(prev *Codec) int64 {
	return prev.lo - c.lo
}

func (c *Codec) priceAt(off int64) float64 {
	p := c.origin + float64(off)*c.tick
	if c.scale == 0 {
		return p
	}
	return math.Round(p*c.scale) / c.scale
}

// decimalScale returns 10^d for the smallest d that represents every value
// exactly in decimal, or 0 when none up to maxDecimals does.
func decimalScale(values ...float64) float64 {
	scale := 1.0
	for d := 0; d <= maxDecimals; d++ {
		ok := true
		for _, v := range values {
			x := v * scale
			if math.Abs(x-math.Round(x)) > 1e-9*math.Max(1, math.Abs(x)) {
				ok = false
				break
			}
		}
		if ok {
			return scale
		}
		scale *= 10
	}
	return 0
}
