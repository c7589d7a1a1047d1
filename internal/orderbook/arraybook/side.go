package arraybook

import (
	"iter"
	"math"
	"unsafe"

	"orderbookcollection/internal/domain/entity/marketdata"
)

// side stores one half of the book as a dense slot arena: qty[i] is the
// quantity at codec.Price(i), zero for an empty slot. lo and hi are the
// lowest and highest occupied slots and are meaningful only when count > 0.
type side struct {
	kind  marketdata.Side
	codec *Codec
	qty   []uint64
	count int
	lo    int
	hi    int
}

func newSide(kind marketdata.Side, codec *Codec) *side {
	return &side{
		kind:  kind,
		codec: codec,
		qty:   make([]uint64, codec.Slots()),
	}
}

// slot returns the address of qty[i] without a bounds check. i must come
// from s.codec.Index or lie within [s.lo, s.hi].
func (s *side) slot(i int) *uint64 {
	return (*uint64)(unsafe.Add(unsafe.Pointer(unsafe.SliceData(s.qty)), uintptr(i)*unsafe.Sizeof(uint64(0))))
}

func (s *side) Upsert(price float64, quantity uint64) error {
	idx, err := s.codec.Index(price)
	if err != nil {
		return err
	}
	s.set(int(idx), quantity)
	return nil
}

func (s *side) set(i int, quantity uint64) {
	p := s.slot(i)
	prev := *p
	*p = quantity

	switch {
	case prev == 0 && quantity != 0:
		if s.count == 0 {
			s.lo, s.hi = i, i
		} else {
			s.lo = min(s.lo, i)
			s.hi = max(s.hi, i)
		}
		s.count++
	case prev != 0 && quantity == 0:
		s.count--
		if s.count == 0 {
			s.lo, s.hi = 0, 0
			return
		}
		if i == s.lo {
			s.lo = s.nextUp(i + 1)
		}
		if i == s.hi {
			s.hi = s.nextDown(i - 1)
		}
	}
}

// nextUp returns the first occupied slot >= i. The caller guarantees one
// exists at or below s.hi.
func (s *side) nextUp(i int) int {
	for *s.slot(i) == 0 {
		i++
	}
	return i
}

// nextDown returns the last occupied slot <= i, at or above s.lo.
func (s *side) nextDown(i int) int {
	for *s.slot(i) == 0 {
		i--
	}
	return i
}

func (s *side) at(i int) marketdata.Level {
	return marketdata.Level{Price: s.codec.Price(uint32(i)), Quantity: *s.slot(i)}
}

func (s *side) Best() (marketdata.Level, bool) {
	if s.count == 0 {
		return marketdata.Level{}, false
	}
	if s.kind == marketdata.SideBid {
		return s.at(s.hi), true
	}
	return s.at(s.lo), true
}

func (s *side) Worst() (marketdata.Level, bool) {
	if s.count == 0 {
		return marketdata.Level{}, false
	}
	if s.kind == marketdata.SideBid {
		return s.at(s.lo), true
	}
	return s.at(s.hi), true
}

func (s *side) Len() int {
	return s.count
}

// SortedByDistance scans outward from the slot nearest ref with two cursors
// limited to the occupied range, skipping empty slots. The slot position of
// ref only seeds the cursors; their order is decided on prices.
func (s *side) SortedByDistance(ref float64) iter.Seq[marketdata.Level] {
	return func(yield func(marketdata.Level) bool) {
		if s.count == 0 {
			return
		}
		pos := s.codec.Position(ref)
		lo, hi := s.lo, s.hi

		var down, up int
		switch {
		case pos < float64(lo):
			down, up = lo-1, lo
		case pos > float64(hi):
			down, up = hi, hi+1
		default:
			down = int(math.Floor(pos))
			up = down + 1
		}

		for down >= lo && *s.slot(down) == 0 {
			down--
		}
		for up <= hi && *s.slot(up) == 0 {
			up++
		}

		for down >= lo || up <= hi {
			takeDown := down >= lo
			if takeDown && up <= hi {
				// compared in price space like the map engine; equal
				// distance goes to the lower price
				takeDown = ref-s.codec.Price(uint32(down)) <= s.codec.Price(uint32(up))-ref
			}
			if takeDown {
				if !yield(s.at(down)) {
					return
				}
				down--
				for down >= lo && *s.slot(down) == 0 {
					down--
				}
				continue
			}
			if !yield(s.at(up)) {
				return
			}
			up++
			for up <= hi && *s.slot(up) == 0 {
				up++
			}
		}
	}
}

// rebuild copies the occupied slots into a new arena laid out by codec.
func (s *side) rebuild(codec *Codec) *side {
	next := newSide(s.kind, codec)
	if s.count == 0 {
		return next
	}
	shift := int(codec.shift(s.codec))
	for i := s.lo; i <= s.hi; i++ {
		if q := *s.slot(i); q != 0 {
			next.set(i+shift, q)
		}
	}
	return next
}
