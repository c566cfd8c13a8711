// Package metrics holds the lazily-initialised Prometheus registries for
// every long-lived pipeline component, following the sync.Once-guarded
// singleton shape used throughout the teacher service for its own metric
// groups.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

type producerMetrics struct {
	recordsSent     *prometheus.CounterVec
	batchesSent     prometheus.Counter
	staleDropped    prometheus.Counter
	inflightGauge   prometheus.Gauge
	flushTimeouts   prometheus.Counter
}

var (
	producerOnce sync.Once
	producerReg  *producerMetrics
)

// Producer returns the producer metrics registry.
func Producer() *producerMetrics {
	producerOnce.Do(func() {
		producerReg = &producerMetrics{
			recordsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "injdata",
				Subsystem: "producer",
				Name:      "records_total",
				Help:      "Count of envelopes submitted to the broker segmented by outcome.",
			}, []string{"outcome"}),
			batchesSent: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "injdata",
				Subsystem: "producer",
				Name:      "batches_total",
				Help:      "Count of batches submitted to the broker.",
			}),
			staleDropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "injdata",
				Subsystem: "producer",
				Name:      "stale_dropped_total",
				Help:      "Count of records dropped for carrying a block height below the tracked tip.",
			}),
			inflightGauge: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "injdata",
				Subsystem: "producer",
				Name:      "inflight_requests",
				Help:      "Current count of in-flight broker submissions.",
			}),
			flushTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "injdata",
				Subsystem: "producer",
				Name:      "flush_timeouts_total",
				Help:      "Count of Flush calls that exceeded their deadline.",
			}),
		}
		prometheus.MustRegister(
			producerReg.recordsSent,
			producerReg.batchesSent,
			producerReg.staleDropped,
			producerReg.inflightGauge,
			producerReg.flushTimeouts,
		)
	})
	return producerReg
}

func (m *producerMetrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.recordsSent.WithLabelValues(outcome).Inc()
}

func (m *producerMetrics) RecordBatch() {
	if m == nil {
		return
	}
	m.batchesSent.Inc()
}

func (m *producerMetrics) RecordStaleDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.staleDropped.Add(float64(n))
}

func (m *producerMetrics) SetInflight(n int) {
	if m == nil {
		return
	}
	m.inflightGauge.Set(float64(n))
}

func (m *producerMetrics) RecordFlushTimeout() {
	if m == nil {
		return
	}
	m.flushTimeouts.Inc()
}

type pubsubMetrics struct {
	published     prometheus.Counter
	errors        prometheus.Counter
	avgPublishUs  prometheus.Gauge
	maxPublishUs  prometheus.Gauge
	queueDepth    prometheus.Gauge
	poolExhausted prometheus.Counter

	// maxPublishUsSeen is the running maximum publish latency since process
	// start; maxPublishUs mirrors it. A bare Gauge.Set from each publish call
	// would just report the latest sample, not a maximum.
	maxPublishUsSeen atomic.Uint64
}

var (
	pubsubOnce sync.Once
	pubsubReg  *pubsubMetrics
)

// PubSub returns the pub/sub fan-out metrics registry.
func PubSub() *pubsubMetrics {
	pubsubOnce.Do(func() {
		pubsubReg = &pubsubMetrics{
			published: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "injdata",
				Subsystem: "pubsub",
				Name:      "messages_published_total",
				Help:      "Count of events successfully published.",
			}),
			errors: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "injdata",
				Subsystem: "pubsub",
				Name:      "publish_errors_total",
				Help:      "Count of failed publish attempts.",
			}),
			avgPublishUs: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "injdata",
				Subsystem: "pubsub",
				Name:      "avg_publish_time_microseconds",
				Help:      "Exponential moving average of publish latency in microseconds.",
			}),
			maxPublishUs: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "injdata",
				Subsystem: "pubsub",
				Name:      "max_publish_time_microseconds",
				Help:      "Maximum observed publish latency in microseconds.",
			}),
			queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "injdata",
				Subsystem: "pubsub",
				Name:      "queue_depth",
				Help:      "Current depth of the outbound publish queue.",
			}),
			poolExhausted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "injdata",
				Subsystem: "pubsub",
				Name:      "pool_exhausted_total",
				Help:      "Count of publish attempts that found the connection pool empty.",
			}),
		}
		prometheus.MustRegister(
			pubsubReg.published,
			pubsubReg.errors,
			pubsubReg.avgPublishUs,
			pubsubReg.maxPublishUs,
			pubsubReg.queueDepth,
			pubsubReg.poolExhausted,
		)
	})
	return pubsubReg
}

func (m *pubsubMetrics) RecordPublished()        { if m != nil { m.published.Inc() } }
func (m *pubsubMetrics) RecordError()            { if m != nil { m.errors.Inc() } }
func (m *pubsubMetrics) RecordPoolExhausted()     { if m != nil { m.poolExhausted.Inc() } }
func (m *pubsubMetrics) SetAvgPublishUs(v uint64) { if m != nil { m.avgPublishUs.Set(float64(v)) } }

// SetMaxPublishUs updates the running maximum publish latency if v exceeds
// it, rather than overwriting the gauge with the latest sample.
func (m *pubsubMetrics) SetMaxPublishUs(v uint64) {
	if m == nil {
		return
	}
	for {
		old := m.maxPublishUsSeen.Load()
		if v <= old {
			return
		}
		if m.maxPublishUsSeen.CompareAndSwap(old, v) {
			m.maxPublishUs.Set(float64(v))
			return
		}
	}
}
func (m *pubsubMetrics) SetQueueDepth(v int)      { if m != nil { m.queueDepth.Set(float64(v)) } }

type consumerMetrics struct {
	processed    *prometheus.CounterVec
	deferred     prometheus.Gauge
	phaseReady   prometheus.Gauge
}

var (
	consumerOnce sync.Once
	consumerReg  map[string]*consumerMetrics
	consumerMu   sync.Mutex
)

// Consumer returns (creating if necessary) the metrics registry for the
// named sink ("cache" or "wcs").
func Consumer(sink string) *consumerMetrics {
	consumerMu.Lock()
	defer consumerMu.Unlock()
	consumerOnce.Do(func() { consumerReg = make(map[string]*consumerMetrics) })
	if m, ok := consumerReg[sink]; ok {
		return m
	}
	m := &consumerMetrics{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "injdata",
			Subsystem:   "consumer",
			Name:        "envelopes_processed_total",
			Help:        "Count of envelopes processed by a sink's consumer, segmented by message type.",
			ConstLabels: prometheus.Labels{"sink": sink},
		}, []string{"message_type"}),
		deferred: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "injdata",
			Subsystem:   "consumer",
			Name:        "deferred_queue_depth",
			Help:        "Depth of the deferred-envelope queue held during the Markets phase.",
			ConstLabels: prometheus.Labels{"sink": sink},
		}),
		phaseReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "injdata",
			Subsystem:   "consumer",
			Name:        "markets_ready",
			Help:        "1 once the sink has transitioned out of the Markets phase, 0 otherwise.",
			ConstLabels: prometheus.Labels{"sink": sink},
		}),
	}
	prometheus.MustRegister(m.processed, m.deferred, m.phaseReady)
	consumerReg[sink] = m
	return m
}

func (m *consumerMetrics) RecordProcessed(messageType string) {
	if m != nil {
		m.processed.WithLabelValues(messageType).Inc()
	}
}
func (m *consumerMetrics) SetDeferredDepth(n int) { if m != nil { m.deferred.Set(float64(n)) } }
func (m *consumerMetrics) SetPhaseReady(ready bool) {
	if m == nil {
		return
	}
	if ready {
		m.phaseReady.Set(1)
	} else {
		m.phaseReady.Set(0)
	}
}

type liquidationMetrics struct {
	liquidatableGauge prometheus.Gauge
	alertsEmitted     prometheus.Counter
	skippedInvalid    prometheus.Counter
}

var (
	liquidationOnce sync.Once
	liquidationReg  *liquidationMetrics
)

// Liquidation returns the liquidation engine metrics registry.
func Liquidation() *liquidationMetrics {
	liquidationOnce.Do(func() {
		liquidationReg = &liquidationMetrics{
			liquidatableGauge: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "injdata",
				Subsystem: "liquidation",
				Name:      "liquidatable_positions",
				Help:      "Current size of the liquidatable position set.",
			}),
			alertsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "injdata",
				Subsystem: "liquidation",
				Name:      "alerts_total",
				Help:      "Count of liquidation alerts emitted.",
			}),
			skippedInvalid: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "injdata",
				Subsystem: "liquidation",
				Name:      "skipped_invalid_total",
				Help:      "Count of position/market updates skipped for non-positive inputs.",
			}),
		}
		prometheus.MustRegister(
			liquidationReg.liquidatableGauge,
			liquidationReg.alertsEmitted,
			liquidationReg.skippedInvalid,
		)
	})
	return liquidationReg
}

func (m *liquidationMetrics) SetLiquidatableCount(n int) {
	if m != nil {
		m.liquidatableGauge.Set(float64(n))
	}
}
func (m *liquidationMetrics) RecordAlert()   { if m != nil { m.alertsEmitted.Inc() } }
func (m *liquidationMetrics) RecordSkipped() { if m != nil { m.skippedInvalid.Inc() } }

type ingesterMetrics struct {
	state        *prometheus.GaugeVec
	reconnects   prometheus.Counter
	recordsRecvd prometheus.Counter
}

var (
	ingesterOnce sync.Once
	ingesterReg  *ingesterMetrics
)

// Ingester returns the stream ingester metrics registry.
func Ingester() *ingesterMetrics {
	ingesterOnce.Do(func() {
		ingesterReg = &ingesterMetrics{
			state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "injdata",
				Subsystem: "ingester",
				Name:      "state",
				Help:      "1 for the ingester's current connection state, 0 for all others.",
			}, []string{"state"}),
			reconnects: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "injdata",
				Subsystem: "ingester",
				Name:      "reconnects_total",
				Help:      "Count of stream reconnect attempts.",
			}),
			recordsRecvd: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "injdata",
				Subsystem: "ingester",
				Name:      "records_received_total",
				Help:      "Count of envelopes produced by the stream ingester and the heartbeat poller.",
			}),
		}
		prometheus.MustRegister(ingesterReg.state, ingesterReg.reconnects, ingesterReg.recordsRecvd)
	})
	return ingesterReg
}

var knownIngesterStates = []string{"connecting", "streaming", "reconnecting", "shutdown"}

func (m *ingesterMetrics) SetState(state string) {
	if m == nil {
		return
	}
	for _, s := range knownIngesterStates {
		if s == state {
			m.state.WithLabelValues(s).Set(1)
		} else {
			m.state.WithLabelValues(s).Set(0)
		}
	}
}
func (m *ingesterMetrics) RecordReconnect()     { if m != nil { m.reconnects.Inc() } }
func (m *ingesterMetrics) RecordRecords(n int)  { if m != nil && n > 0 { m.recordsRecvd.Add(float64(n)) } }
