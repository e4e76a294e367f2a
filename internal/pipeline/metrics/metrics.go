// Package metrics exposes Prometheus collectors for the producer and
// consumer, plus an internal snapshot for programmatic inspection.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics tracks producer and consumer statistics.
type PipelineMetrics struct {
	mu sync.RWMutex

	// Internal counters for snapshots
	counts pipelineCounts

	// Prometheus collectors
	submittedTotal     *prometheus.CounterVec
	batchesTotal       *prometheus.CounterVec
	flushFailuresTotal *prometheus.CounterVec
	batchSizeHist      *prometheus.HistogramVec
	flushSecondsHist   *prometheus.HistogramVec
	consumedTotal      *prometheus.CounterVec
	ackedTotal         *prometheus.CounterVec
	decodeFailures     *prometheus.CounterVec
	receiveTimeouts    *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

type pipelineCounts struct {
	Submitted      uint64
	Batches        uint64
	FlushFailures  uint64
	Consumed       uint64
	Acked          uint64
	DecodeFailures uint64
	Timeouts       uint64
}

// Snapshot provides a point-in-time view of pipeline metrics.
type Snapshot struct {
	MessagesSubmitted uint64    `json:"messages_submitted"`
	BatchesFlushed    uint64    `json:"batches_flushed"`
	FlushFailures     uint64    `json:"flush_failures"`
	MessagesConsumed  uint64    `json:"messages_consumed"`
	MessagesAcked     uint64    `json:"messages_acked"`
	DecodeFailures    uint64    `json:"decode_failures"`
	ReceiveTimeouts   uint64    `json:"receive_timeouts"`
	CollectedAt       time.Time `json:"collected_at"`
}

func newCounterVec(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskwire",
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newHistogramVec(subsystem, name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "riskwire",
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

// New creates a pipeline metrics collector. Passing a nil registerer uses
// the Prometheus default.
func New(registerer prometheus.Registerer) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &PipelineMetrics{
		registerer:         registerer,
		submittedTotal:     newCounterVec("producer", "messages_submitted_total", "Total number of payloads accepted by Submit", []string{"topic"}),
		batchesTotal:       newCounterVec("producer", "batches_flushed_total", "Total number of batch envelopes written to the broker", []string{"topic", "compression"}),
		flushFailuresTotal: newCounterVec("producer", "flush_failures_total", "Total number of batch flushes that failed or timed out", []string{"topic"}),
		batchSizeHist:      newHistogramVec("producer", "batch_size", "Number of payloads per flushed batch", []float64{1, 2, 5, 10, 25, 50, 100, 250, 500}, []string{"topic"}),
		flushSecondsHist:   newHistogramVec("producer", "flush_seconds", "Time to encode, compress, and transmit one batch", []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30}, []string{"topic"}),
		consumedTotal:      newCounterVec("consumer", "messages_consumed_total", "Total number of payloads delivered to the handler", []string{"topic"}),
		ackedTotal:         newCounterVec("consumer", "messages_acked_total", "Total number of broker messages acknowledged", []string{"topic"}),
		decodeFailures:     newCounterVec("consumer", "decode_failures_total", "Total number of payloads that failed envelope or schema decoding", []string{"topic"}),
		receiveTimeouts:    newCounterVec("consumer", "receive_timeouts_total", "Total number of bounded receive waits that expired without a message", []string{"topic"}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times,
// and safe across instances: when a collector with the same name already
// exists (a producer and a consumer sharing one registerer), the existing
// collector is adopted so both instances increment the same series.
func (m *PipelineMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	counters := []**prometheus.CounterVec{
		&m.submittedTotal,
		&m.batchesTotal,
		&m.flushFailuresTotal,
		&m.consumedTotal,
		&m.ackedTotal,
		&m.decodeFailures,
		&m.receiveTimeouts,
	}
	for _, c := range counters {
		adopted, err := registerCounterVec(m.registerer, *c)
		if err != nil {
			return err
		}
		*c = adopted
	}

	histograms := []**prometheus.HistogramVec{
		&m.batchSizeHist,
		&m.flushSecondsHist,
	}
	for _, h := range histograms {
		adopted, err := registerHistogramVec(m.registerer, *h)
		if err != nil {
			return err
		}
		*h = adopted
	}

	m.registered = true
	return nil
}

func registerCounterVec(r prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := r.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(*prometheus.CounterVec), nil
		}
		return nil, err
	}
	return c, nil
}

func registerHistogramVec(r prometheus.Registerer, h *prometheus.HistogramVec) (*prometheus.HistogramVec, error) {
	if err := r.Register(h); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(*prometheus.HistogramVec), nil
		}
		return nil, err
	}
	return h, nil
}

// RecordSubmitted records one payload accepted into the pending buffer.
func (m *PipelineMetrics) RecordSubmitted(topic string) {
	m.mu.Lock()
	m.counts.Submitted++
	m.mu.Unlock()

	m.submittedTotal.WithLabelValues(topic).Inc()
}

// RecordBatchFlushed records a successful batch transmission.
func (m *PipelineMetrics) RecordBatchFlushed(topic, compression string, size int, elapsed time.Duration) {
	m.mu.Lock()
	m.counts.Batches++
	m.mu.Unlock()

	m.batchesTotal.WithLabelValues(topic, compression).Inc()
	m.batchSizeHist.WithLabelValues(topic).Observe(float64(size))
	m.flushSecondsHist.WithLabelValues(topic).Observe(elapsed.Seconds())
}

// RecordFlushFailure records a batch that could not be transmitted.
func (m *PipelineMetrics) RecordFlushFailure(topic string) {
	m.mu.Lock()
	m.counts.FlushFailures++
	m.mu.Unlock()

	m.flushFailuresTotal.WithLabelValues(topic).Inc()
}

// RecordConsumed records payloads handed to the handler.
func (m *PipelineMetrics) RecordConsumed(topic string, count int) {
	m.mu.Lock()
	m.counts.Consumed += uint64(count)
	m.mu.Unlock()

	m.consumedTotal.WithLabelValues(topic).Add(float64(count))
}

// RecordAcked records one broker message acknowledged after full delivery.
func (m *PipelineMetrics) RecordAcked(topic string) {
	m.mu.Lock()
	m.counts.Acked++
	m.mu.Unlock()

	m.ackedTotal.WithLabelValues(topic).Inc()
}

// RecordDecodeFailure records an envelope or payload that could not be decoded.
func (m *PipelineMetrics) RecordDecodeFailure(topic string) {
	m.mu.Lock()
	m.counts.DecodeFailures++
	m.mu.Unlock()

	m.decodeFailures.WithLabelValues(topic).Inc()
}

// RecordReceiveTimeout records an expired bounded receive wait.
func (m *PipelineMetrics) RecordReceiveTimeout(topic string) {
	m.mu.Lock()
	m.counts.Timeouts++
	m.mu.Unlock()

	m.receiveTimeouts.WithLabelValues(topic).Inc()
}

// GetSnapshot returns a point-in-time snapshot of pipeline metrics.
func (m *PipelineMetrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Snapshot{
		MessagesSubmitted: m.counts.Submitted,
		BatchesFlushed:    m.counts.Batches,
		FlushFailures:     m.counts.FlushFailures,
		MessagesConsumed:  m.counts.Consumed,
		MessagesAcked:     m.counts.Acked,
		DecodeFailures:    m.counts.DecodeFailures,
		ReceiveTimeouts:   m.counts.Timeouts,
		CollectedAt:       time.Now(),
	}
}

// Reset resets all metrics (useful for testing).
func (m *PipelineMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counts = pipelineCounts{}
	m.submittedTotal.Reset()
	m.batchesTotal.Reset()
	m.flushFailuresTotal.Reset()
	m.batchSizeHist.Reset()
	m.flushSecondsHist.Reset()
	m.consumedTotal.Reset()
	m.ackedTotal.Reset()
	m.decodeFailures.Reset()
	m.receiveTimeouts.Reset()
}
