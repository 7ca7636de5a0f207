// Package metrics holds the Prometheus instruments shared by every role.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sedimentology"

// Metrics holds all pipeline metrics.
type Metrics struct {
	// Counters
	SequencerRuns     *prometheus.CounterVec
	SequencerEnqueued *prometheus.CounterVec
	DispatcherStarted *prometheus.CounterVec
	ProcessorSlots    *prometheus.CounterVec
	ProcessorTxs      prometheus.Counter
	RPCCalls          *prometheus.CounterVec
	RegistryHits      *prometheus.CounterVec

	// Gauges
	QueueDepth *prometheus.GaugeVec

	// Histograms
	ProcessorDuration prometheus.Histogram
	RPCDuration       *prometheus.HistogramVec
}

// New creates the metrics and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		SequencerRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sequencer_runs_total",
				Help:      "Sequencer runs by mode and result",
			},
			[]string{"mode", "result"}, // "forward"|"backfill", "enqueued"|"skipped"|"idle"|"error"
		),
		SequencerEnqueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sequencer_enqueued_slots_total",
				Help:      "Slots added to the pending queue",
			},
			[]string{"mode"},
		),
		DispatcherStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatcher_started_total",
				Help:      "Processing workflows started by the dispatcher",
			},
			[]string{"kind"}, // "live", "backfill"
		),
		ProcessorSlots: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "processor_slots_total",
				Help:      "Slots handled by the block processor",
			},
			[]string{"result"}, // "committed", "already_processed", "error"
		),
		ProcessorTxs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "processor_txs_total",
				Help:      "Whirlpool transactions committed",
			},
		),
		RPCCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rpc_calls_total",
				Help:      "JSON-RPC round-trips by method and status",
			},
			[]string{"method", "status"},
		),
		RegistryHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registry_cache_hits_total",
				Help:      "Registry upserts skipped because the value was cached",
			},
			[]string{"registry"}, // "pubkey", "decimals"
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Pending slots waiting to be processed",
			},
			[]string{"kind"},
		),
		ProcessorDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "processor_duration_seconds",
				Help:      "Time to fetch, decode and commit one slot",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		RPCDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rpc_duration_seconds",
				Help:      "JSON-RPC round-trip latency",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.SequencerRuns,
		m.SequencerEnqueued,
		m.DispatcherStarted,
		m.ProcessorSlots,
		m.ProcessorTxs,
		m.RPCCalls,
		m.RegistryHits,
		m.QueueDepth,
		m.ProcessorDuration,
		m.RPCDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveRPC implements rpc.Observer.
func (m *Metrics) ObserveRPC(method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.RPCCalls.WithLabelValues(method, status).Inc()
	m.RPCDuration.WithLabelValues(method).Observe(d.Seconds())
}

// SequencerRun records the outcome of one sequencer run.
func (m *Metrics) SequencerRun(mode, result string, enqueued int) {
	if m == nil {
		return
	}
	m.SequencerRuns.WithLabelValues(mode, result).Inc()
	if enqueued > 0 {
		m.SequencerEnqueued.WithLabelValues(mode).Add(float64(enqueued))
	}
}

// Dispatched records started workflows and the queue depth seen in one pass.
func (m *Metrics) Dispatched(kind string, started int, depth int) {
	if m == nil {
		return
	}
	m.DispatcherStarted.WithLabelValues(kind).Add(float64(started))
	m.QueueDepth.WithLabelValues(kind).Set(float64(depth))
}

// ObserveQueueDepth records the pending slots of one kind.
func (m *Metrics) ObserveQueueDepth(kind string, depth int64) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(kind).Set(float64(depth))
}

// SlotProcessed records one processor outcome.
func (m *Metrics) SlotProcessed(result string, txs int, d time.Duration) {
	if m == nil {
		return
	}
	m.ProcessorSlots.WithLabelValues(result).Inc()
	if txs > 0 {
		m.ProcessorTxs.Add(float64(txs))
	}
	if result == ResultCommitted {
		m.ProcessorDuration.Observe(d.Seconds())
	}
}

// RegistryHit records a registry upsert skipped on cache hit.
func (m *Metrics) RegistryHit(registry string) {
	if m == nil {
		return
	}
	m.RegistryHits.WithLabelValues(registry).Inc()
}

// Label values
const (
	ResultCommitted        = "committed"
	ResultAlreadyProcessed = "already_processed"
	ResultError            = "error"
	ResultEnqueued         = "enqueued"
	ResultSkipped          = "skipped"
	ResultIdle             = "idle"
)
