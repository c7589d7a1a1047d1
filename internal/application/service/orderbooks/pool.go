package orderbooks

import (
	"context"
	"errors"

	"orderbookcollection/internal/domain/entity/marketdata"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const partitionBuffer = 1024

// Pool partitions instruments over independent collections by
// instrument_id % workers. Each collection is driven by exactly one
// goroutine, so books are never shared.
type Pool struct {
	workers []*Service
	logger  *logrus.Entry
}

// NewPool creates n collections with newService. n < 1 is treated as 1.
func NewPool(n int, newService func(partition int) *Service, logger *logrus.Logger) *Pool {
	n = max(n, 1)
	workers := make([]*Service, n)
	for i := range workers {
		workers[i] = newService(i)
	}
	return &Pool{workers: workers, logger: logger.WithField("component", "orderbooks_pool")}
}

func (p *Pool) partition(id uint64) *Service {
	return p.workers[id%uint64(len(p.workers))]
}

// Preload builds books for ids in their partitions before Run.
func (p *Pool) Preload(ids ...uint64) error {
	for _, id := range ids {
		if err := p.partition(id).Preload(id); err != nil {
			return err
		}
	}
	return nil
}

// Run routes every record from records until the channel is closed, the
// context ends or a collection returns an error. Records of one instrument
// keep their order.
func (p *Pool) Run(ctx context.Context, records <-chan marketdata.Record) error {
	g, gctx := errgroup.WithContext(ctx)

	inputs := make([]chan marketdata.Record, len(p.workers))
	for i, svc := range p.workers {
		in := make(chan marketdata.Record, partitionBuffer)
		inputs[i] = in
		g.Go(func() error {
			for rec := range in {
				if err := svc.Route(gctx, rec); err != nil {
					return err
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, in := range inputs {
				close(in)
			}
		}()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case rec, ok := <-records:
				if !ok {
					return nil
				}
				in := inputs[rec.Instrument()%uint64(len(inputs))]
				select {
				case in <- rec:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		p.logger.WithError(err).Error("order book processing stopped")
	}
	return err
}

// ReportAll merges the views of all partitions. Call it only after Run
// has returned.
func (p *Pool) ReportAll() map[uint64]marketdata.OrderBookView {
	out := make(map[uint64]marketdata.OrderBookView)
	for _, svc := range p.workers {
		for id, v := range svc.ReportAll() {
			out[id] = v
		}
	}
	return out
}

// Report runs Report on every partition. Call it only after Run has returned.
func (p *Pool) Report(ctx context.Context) error {
	for _, svc := range p.workers {
		if err := svc.Report(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Len is the number of books across partitions.
func (p *Pool) Len() int {
	total := 0
	for _, svc := range p.workers {
		total += svc.Len()
	}
	return total
}
