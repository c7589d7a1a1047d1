package orderbooks

import (
	"context"
	"errors"
	"slices"
	"sync"

	"orderbookcollection/internal/domain/entity/marketdata"
)

// ViewStore keeps the latest published view per instrument. Readers such as
// the HTTP API use it instead of touching the books, which are owned by
// their worker.
type ViewStore struct {
	mu    sync.RWMutex
	views map[uint64]marketdata.OrderBookView
}

func NewViewStore() *ViewStore {
	return &ViewStore{views: make(map[uint64]marketdata.OrderBookView)}
}

// PublishOrderBook implements interfaces.OrderBookSink.
func (s *ViewStore) PublishOrderBook(_ context.Context, view *marketdata.OrderBookView) error {
	if view == nil {
		return errors.New("order book view is nil")
	}
	stored := view.Clone()

	s.mu.Lock()
	s.views[view.InstrumentID] = stored
	s.mu.Unlock()
	return nil
}

func (s *ViewStore) Get(id uint64) (marketdata.OrderBookView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[id]
	return v, ok
}

// List returns all views ordered by instrument id.
func (s *ViewStore) List() []marketdata.OrderBookView {
	s.mu.RLock()
	out := make([]marketdata.OrderBookView, 0, len(s.views))
	for _, v := range s.views {
		out = append(out, v)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b marketdata.OrderBookView) int {
		switch {
		case a.InstrumentID < b.InstrumentID:
			return -1
		case a.InstrumentID > b.InstrumentID:
			return 1
		default:
			return 0
		}
	})
	return out
}

func (s *ViewStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.views)
}
