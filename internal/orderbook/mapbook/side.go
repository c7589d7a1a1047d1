package mapbook

import (
	"iter"

	"orderbookcollection/internal/domain/entity/marketdata"
	"orderbookcollection/internal/orderbook"

	"github.com/tidwall/btree"
)

const degree = 32

// side keeps one half of the book sorted by price.
type side struct {
	kind   marketdata.Side
	levels *btree.Map[float64, uint64]
}

func newSide(kind marketdata.Side) *side {
	return &side{kind: kind, levels: btree.NewMap[float64, uint64](degree)}
}

func (s *side) Upsert(price float64, quantity uint64) error {
	if err := orderbook.CheckPrice(price); err != nil {
		return err
	}
	if quantity == 0 {
		s.levels.Delete(price)
		return nil
	}
	s.levels.Set(price, quantity)
	return nil
}

func (s *side) Best() (marketdata.Level, bool) {
	if s.kind == marketdata.SideBid {
		return level(s.levels.Max())
	}
	return level(s.levels.Min())
}

func (s *side) Worst() (marketdata.Level, bool) {
	if s.kind == marketdata.SideBid {
		return level(s.levels.Min())
	}
	return level(s.levels.Max())
}

func (s *side) Len() int {
	return s.levels.Len()
}

// SortedByDistance merges two cursors walking away from ref: one ascending
// from the first key >= ref, one descending from the last key < ref.
// The map must not be modified while the sequence is consumed.
func (s *side) SortedByDistance(ref float64) iter.Seq[marketdata.Level] {
	return func(yield func(marketdata.Level) bool) {
		up := s.levels.Iter()
		upOK := up.Seek(ref)

		down := s.levels.Iter()
		var downOK bool
		if down.Seek(ref) {
			downOK = down.Prev()
		} else {
			downOK = down.Last()
		}

		for upOK || downOK {
			takeDown := downOK
			if upOK && downOK {
				// equal distance goes to the lower price
				takeDown = ref-down.Key() <= up.Key()-ref
			}
			if takeDown {
				if !yield(marketdata.Level{Price: down.Key(), Quantity: down.Value()}) {
					return
				}
				downOK = down.Prev()
				continue
			}
			if !yield(marketdata.Level{Price: up.Key(), Quantity: up.Value()}) {
				return
			}
			upOK = up.Next()
		}
	}
}

func level(price float64, quantity uint64, ok bool) (marketdata.Level, bool) {
	if !ok {
		return marketdata.Level{}, false
	}
	return marketdata.Level{Price: price, Quantity: quantity}, true
}
