// Package vslmetrics exposes the pipeline's Prometheus instrumentation.
// Every counter/gauge is wrapped behind the Metrics interface so the
// pipeline can depend on an interface instead of the concrete
// client_golang types, keeping metrics collection swappable (and mockable
// in tests) the way the rest of the engine is built against interfaces.
package vslmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the instrumentation surface the pipeline drives as it reads
// records, completes transactions, and evicts stale builders.
type Metrics interface {
	RecordsDecoded(tag string)
	RecordsBogus()
	TransactionsCompleted(kind string)
	TransactionsTombstoned(kind string)
	SlotsEvicted(reason string)
	SessionsEmitted()
	SessionsUnresolvedAtFlush()
	StoreSize(size int)
	EpochAdvanced()
}

// Prometheus is the production Metrics implementation, registered against
// a caller-supplied registry so multiple pipelines in one process (or a
// test harness) don't collide on global registration.
type Prometheus struct {
	recordsDecoded         *prometheus.CounterVec
	recordsBogus           prometheus.Counter
	transactionsCompleted  *prometheus.CounterVec
	transactionsTombstoned *prometheus.CounterVec
	slotsEvicted           *prometheus.CounterVec
	sessionsEmitted        prometheus.Counter
	sessionsUnresolved     prometheus.Counter
	storeSize              prometheus.Gauge
	epochTicks             prometheus.Counter
}

// NewPrometheus creates and registers the pipeline's metric set against
// reg. Pass prometheus.DefaultRegisterer for normal process-wide use.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	m := &Prometheus{
		recordsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vsltail",
			Name:      "records_decoded_total",
			Help:      "VSL records decoded from the input stream, by tag.",
		}, []string{"tag"}),
		recordsBogus: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsltail",
			Name:      "records_bogus_total",
			Help:      "Records decoded with an unrecognized tag code.",
		}),
		transactionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vsltail",
			Name:      "transactions_completed_total",
			Help:      "Transactions that reached a complete record, by kind.",
		}, []string{"kind"}),
		transactionsTombstoned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vsltail",
			Name:      "transactions_tombstoned_total",
			Help:      "Transactions abandoned after a payload or state error, by kind.",
		}, []string{"kind"}),
		slotsEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vsltail",
			Name:      "slots_evicted_total",
			Help:      "Record store slots evicted before completion, by reason.",
		}, []string{"reason"}),
		sessionsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsltail",
			Name:      "sessions_emitted_total",
			Help:      "Sessions emitted with all links resolved.",
		}),
		sessionsUnresolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsltail",
			Name:      "sessions_unresolved_total",
			Help:      "Sessions flushed at stream end with at least one unresolved link.",
		}),
		storeSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vsltail",
			Name:      "record_store_size",
			Help:      "Current number of VXIDs tracked by the record store.",
		}),
		epochTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vsltail",
			Name:      "epoch_ticks_total",
			Help:      "Epoch clock advances, used to gauge eviction staleness.",
		}),
	}

	reg.MustRegister(
		m.recordsDecoded, m.recordsBogus,
		m.transactionsCompleted, m.transactionsTombstoned,
		m.slotsEvicted, m.sessionsEmitted, m.sessionsUnresolved,
		m.storeSize, m.epochTicks,
	)
	return m
}

func (m *Prometheus) RecordsDecoded(tag string)         { m.recordsDecoded.WithLabelValues(tag).Inc() }
func (m *Prometheus) RecordsBogus()                     { m.recordsBogus.Inc() }
func (m *Prometheus) TransactionsCompleted(kind string) { m.transactionsCompleted.WithLabelValues(kind).Inc() }
func (m *Prometheus) TransactionsTombstoned(kind string) {
	m.transactionsTombstoned.WithLabelValues(kind).Inc()
}
func (m *Prometheus) SlotsEvicted(reason string)   { m.slotsEvicted.WithLabelValues(reason).Inc() }
func (m *Prometheus) SessionsEmitted()             { m.sessionsEmitted.Inc() }
func (m *Prometheus) SessionsUnresolvedAtFlush()   { m.sessionsUnresolved.Inc() }
func (m *Prometheus) StoreSize(size int)           { m.storeSize.Set(float64(size)) }
func (m *Prometheus) EpochAdvanced()               { m.epochTicks.Inc() }

// Noop satisfies Metrics while doing nothing; used when the pipeline runs
// with metrics disabled.
type Noop struct{}

func (Noop) RecordsDecoded(string)          {}
func (Noop) RecordsBogus()                  {}
func (Noop) TransactionsCompleted(string)   {}
func (Noop) TransactionsTombstoned(string)  {}
func (Noop) SlotsEvicted(string)            {}
func (Noop) SessionsEmitted()               {}
func (Noop) SessionsUnresolvedAtFlush()     {}
func (Noop) StoreSize(int)                  {}
func (Noop) EpochAdvanced()                 {}
