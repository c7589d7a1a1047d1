package orderbooks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts what the collection did with each record.
type Metrics struct {
	snapshotsApplied *prometheus.CounterVec
	updatesApplied   *prometheus.CounterVec
	updatesDropped   *prometheus.CounterVec
	books            *prometheus.GaugeVec
}

// NewMetrics registers the collection metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		snapshotsApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "orderbooks",
				Name:      "snapshots_applied_total",
				Help:      "Snapshots applied to a book",
			},
			[]string{"engine"},
		),
		updatesApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "orderbooks",
				Name:      "updates_applied_total",
				Help:      "Incremental records applied to a book",
			},
			[]string{"engine"},
		),
		updatesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "orderbooks",
				Name:      "updates_dropped_total",
				Help:      "Records rejected or only partly applied, by reason",
			},
			[]string{"engine", "reason"},
		),
		books: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "orderbooks",
				Name:      "books",
				Help:      "Books held by the collection",
			},
			[]string{"engine"},
		),
	}
}

func (m *Metrics) snapshotApplied(engine string) {
	if m == nil {
		return
	}
	m.snapshotsApplied.WithLabelValues(engine).Inc()
}

func (m *Metrics) updateApplied(engine string) {
	if m == nil {
		return
	}
	m.updatesApplied.WithLabelValues(engine).Inc()
}

func (m *Metrics) dropped(engine, reason string) {
	if m == nil {
		return
	}
	m.updatesDropped.WithLabelValues(engine, reason).Inc()
}

func (m *Metrics) bookAdded(engine string) {
	if m == nil {
		return
	}
	m.books.WithLabelValues(engine).Inc()
}
