package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/riskwire/internal/pipeline/codec"
	"github.com/drblury/riskwire/internal/pipeline/config"
	"github.com/drblury/riskwire/internal/pipeline/envelope"
	errspkg "github.com/drblury/riskwire/internal/pipeline/errors"
	idspkg "github.com/drblury/riskwire/internal/pipeline/ids"
	"github.com/drblury/riskwire/internal/pipeline/logging"
	metadatapkg "github.com/drblury/riskwire/internal/pipeline/metadata"
	"github.com/drblury/riskwire/internal/pipeline/metrics"
	"github.com/drblury/riskwire/internal/pipeline/model"
	"github.com/drblury/riskwire/transport"
)

// buildTransport can be swapped in tests to avoid a real broker.
var buildTransport = transport.Build

// Producer batches financial messages and writes each batch as one compressed
// envelope to the configured topic. Submit returns immediately with a
// SendHandle; transmission happens when the batch fills up, its delay expires,
// or batching is disabled.
//
// The lifecycle is Connect, any number of Submit/Flush calls, Disconnect.
// Connect on a live producer is an error; Disconnect on a disconnected one is
// a no-op.
type Producer struct {
	cfg    *config.Config
	log    logging.ServiceLogger
	stats  *metrics.PipelineMetrics
	tracer trace.Tracer

	mu        sync.Mutex
	connected bool
	closed    bool
	publisher message.Publisher
	sub       message.Subscriber
	exporter  *metrics.Exporter

	// slots bounds payloads buffered but not yet resolved.
	slots chan struct{}

	batchMu sync.Mutex
	batch   *openBatch

	flushes sync.WaitGroup
}

type openBatch struct {
	entries []envelope.Entry
	handles []*SendHandle
	timer   *time.Timer
}

// NewProducer validates the configuration and prepares a disconnected
// producer. No broker I/O happens until Connect.
func NewProducer(cfg *config.Config, log logging.ServiceLogger) (*Producer, error) {
	if cfg == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	stats := metrics.New(nil)
	if cfg.MetricsEnabled {
		if err := stats.Register(); err != nil {
			return nil, fmt.Errorf("register producer metrics: %w", err)
		}
	}

	return &Producer{
		cfg:    cfg,
		log:    log.With(logging.LogFields{"component": "producer", "topic": cfg.Topic}),
		stats:  stats,
		tracer: otel.Tracer("riskwire/producer"),
		slots:  make(chan struct{}, cfg.Producer.MaxPendingMessages),
	}, nil
}

// Connect establishes the broker session. Connecting an already connected
// producer is a fatal misuse and returns a *ConnectionError wrapping
// ErrAlreadyConnected; a disconnected producer stays disconnected after a
// failed attempt.
func (p *Producer) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errspkg.ErrProducerClosed
	}
	if p.connected {
		return &errspkg.ConnectionError{Op: "connect", Err: errspkg.ErrAlreadyConnected}
	}

	tr, err := buildTransport(ctx, p.cfg, logging.NewWatermillAdapter(p.log))
	if err != nil {
		return &errspkg.ConnectionError{Op: "connect", Err: err}
	}

	p.publisher = tr.Publisher
	p.sub = tr.Subscriber
	p.connected = true
	p.exporter = startExporter(p.cfg, p.log)

	p.log.Info("producer connected", logging.LogFields{
		"transport":   p.cfg.PubSubSystem,
		"compression": p.cfg.Producer.Compression.String(),
		"batching":    p.cfg.Producer.BatchingEnabled,
	})
	return nil
}

// SubmitOption adjusts routing or properties for a single submission.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	partitionKey string
	properties   metadatapkg.Metadata
}

// WithPartitionKey routes the message under key instead of the default
// job id, so related messages land on the same partition.
func WithPartitionKey(key string) SubmitOption {
	return func(o *submitOptions) { o.partitionKey = key }
}

// WithProperties attaches extra per-message properties. Caller values win
// over the standard keys on collision.
func WithProperties(props metadatapkg.Metadata) SubmitOption {
	return func(o *submitOptions) {
		if o.properties == nil {
			o.properties = metadatapkg.Metadata{}
		}
		for k, v := range props {
			o.properties[k] = v
		}
	}
}

// Submit serializes the message and stages it for transmission. It blocks (or
// rejects with ErrBacklogFull, per the backpressure policy) once
// MaxPendingMessages payloads are awaiting transmission. Serialization errors
// surface synchronously; transmission errors resolve through the handle.
// By default the message is keyed by its job id and carries the standard
// properties; options override the key and merge extra properties.
func (p *Producer) Submit(ctx context.Context, msg *model.FinancialMessage, opts ...SubmitOption) (*SendHandle, error) {
	payload, err := codec.Encode(msg)
	if err != nil {
		return nil, err
	}

	var so submitOptions
	for _, opt := range opts {
		opt(&so)
	}

	if err := p.acquireSlot(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.releaseSlots(1)
		return nil, errspkg.ErrProducerClosed
	}
	if !p.connected {
		p.mu.Unlock()
		p.releaseSlots(1)
		return nil, errspkg.ErrNotConnected
	}
	p.mu.Unlock()

	props := metadatapkg.New(
		metadatapkg.KeyMessageType, metadatapkg.MessageTypeFinancialAnalysis,
		metadatapkg.KeyJobID, msg.JobID,
		metadatapkg.KeyAnalysisID, msg.AnalysisID,
		metadatapkg.KeyTimestamp, time.Now().UTC().Format(time.RFC3339Nano),
	)
	for k, v := range so.properties {
		props[k] = v
	}

	partitionKey := so.partitionKey
	if partitionKey == "" {
		partitionKey = msg.JobID
	}

	entry := envelope.Entry{
		PartitionKey: partitionKey,
		Properties:   props,
		Payload:      payload,
	}

	handle := newSendHandle()
	p.stage(ctx, entry, handle)
	p.stats.RecordSubmitted(p.cfg.Topic)
	return handle, nil
}

func (p *Producer) acquireSlot(ctx context.Context) error {
	if p.cfg.Producer.Backpressure == config.BackpressureReject {
		select {
		case p.slots <- struct{}{}:
			return nil
		default:
			return errspkg.ErrBacklogFull
		}
	}

	select {
	case p.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Producer) releaseSlots(n int) {
	for i := 0; i < n; i++ {
		<-p.slots
	}
}

// stage appends the entry to the open batch and decides whether to flush.
func (p *Producer) stage(ctx context.Context, entry envelope.Entry, handle *SendHandle) {
	p.batchMu.Lock()

	if p.batch == nil {
		p.batch = &openBatch{}
		if p.cfg.Producer.BatchingEnabled {
			p.batch.timer = time.AfterFunc(p.cfg.Producer.BatchMaxDelay, func() {
				p.flushOpenBatch(context.Background(), "delay")
			})
		}
	}
	p.batch.entries = append(p.batch.entries, entry)
	p.batch.handles = append(p.batch.handles, handle)

	full := len(p.batch.entries) >= p.cfg.Producer.BatchMaxMessages
	immediate := !p.cfg.Producer.BatchingEnabled

	var due *openBatch
	if full || immediate {
		due = p.takeBatchLocked()
	}
	p.batchMu.Unlock()

	if due != nil {
		reason := "size"
		if immediate {
			reason = "unbatched"
		}
		p.dispatch(ctx, due, reason)
	}
}

// takeBatchLocked detaches the open batch. Callers hold batchMu.
func (p *Producer) takeBatchLocked() *openBatch {
	b := p.batch
	p.batch = nil
	if b != nil && b.timer != nil {
		b.timer.Stop()
	}
	return b
}

func (p *Producer) flushOpenBatch(ctx context.Context, reason string) {
	p.batchMu.Lock()
	due := p.takeBatchLocked()
	p.batchMu.Unlock()

	if due != nil {
		p.dispatch(ctx, due, reason)
	}
}

func (p *Producer) dispatch(ctx context.Context, b *openBatch, reason string) {
	p.flushes.Add(1)
	go func() {
		defer p.flushes.Done()
		p.transmit(ctx, b, reason)
	}()
}

// transmit encodes, compresses, and publishes one batch, then resolves every
// handle in it with the shared outcome.
func (p *Producer) transmit(ctx context.Context, b *openBatch, reason string) {
	batchID := idspkg.NewBatchID()
	topic := p.cfg.Topic
	compression := p.cfg.Producer.Compression
	started := time.Now()

	ctx, span := p.tracer.Start(ctx, "riskwire.flush", trace.WithAttributes(
		attribute.String("messaging.destination.name", topic),
		attribute.String("riskwire.batch_id", batchID),
		attribute.Int("riskwire.batch_size", len(b.entries)),
		attribute.String("riskwire.compression", compression.String()),
		attribute.String("riskwire.flush_reason", reason),
	))
	defer span.End()

	defer p.releaseSlots(len(b.entries))

	data, err := envelope.Encode(b.entries, compression)
	if err != nil {
		p.fail(span, b, &errspkg.TransmissionError{Topic: topic, BatchID: batchID, Err: err})
		return
	}

	wm := message.NewMessage(batchID, data)
	wm.Metadata[metadatapkg.KeyMessageType] = metadatapkg.MessageTypeFinancialAnalysis
	wm.Metadata[metadatapkg.KeyCompression] = compression.String()
	wm.Metadata[metadatapkg.KeyBatchCount] = strconv.Itoa(len(b.entries))
	wm.Metadata[metadatapkg.KeyPartitionKey] = b.entries[0].PartitionKey
	wm.SetContext(ctx)

	if err := p.publishWithTimeout(topic, wm); err != nil {
		p.fail(span, b, err)
		return
	}

	for i, handle := range b.handles {
		handle.resolve(fmt.Sprintf("%s:%d", batchID, i), nil)
	}

	p.stats.RecordBatchFlushed(topic, compression.String(), len(b.entries), time.Since(started))
	p.log.Debug("batch transmitted", logging.LogFields{
		"batch_id": batchID,
		"messages": len(b.entries),
		"bytes":    len(data),
		"reason":   reason,
	})
}

func (p *Producer) fail(span trace.Span, b *openBatch, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, "batch transmission failed")

	for _, handle := range b.handles {
		handle.resolve("", err)
	}

	p.stats.RecordFlushFailure(p.cfg.Topic)
	p.log.Error("batch transmission failed", err, logging.LogFields{
		"messages": len(b.entries),
	})
}

// publishWithTimeout bounds the broker write with the configured send timeout.
// Watermill publishers have no deadline parameter, so the write runs in its
// own goroutine; on expiry the handles resolve now and the straggling write is
// abandoned to finish or fail on its own.
func (p *Producer) publishWithTimeout(topic string, wm *message.Message) error {
	p.mu.Lock()
	publisher := p.publisher
	p.mu.Unlock()
	if publisher == nil {
		return &errspkg.TransmissionError{Topic: topic, BatchID: wm.UUID, Err: errspkg.ErrNotConnected}
	}

	done := make(chan error, 1)
	go func() {
		done <- publisher.Publish(topic, wm)
	}()

	timer := time.NewTimer(p.cfg.Producer.SendTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return &errspkg.TransmissionError{Topic: topic, BatchID: wm.UUID, Err: err}
		}
		return nil
	case <-timer.C:
		return &errspkg.TransmissionError{Topic: topic, BatchID: wm.UUID, Timeout: true}
	}
}

// Flush forces transmission of the open batch and waits for every in-flight
// batch to resolve.
func (p *Producer) Flush(ctx context.Context) error {
	p.flushOpenBatch(ctx, "manual")

	done := make(chan struct{})
	go func() {
		p.flushes.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect flushes pending batches best-effort and tears the session down.
// Disconnecting a producer that never connected, or one already disconnected,
// is a no-op. After Disconnect the producer cannot be reused.
func (p *Producer) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	if !p.connected {
		p.closed = true
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.Flush(ctx); err != nil {
		p.log.Error("flush during disconnect abandoned", err, nil)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	if p.publisher != nil {
		if err := p.publisher.Close(); err != nil {
			firstErr = fmt.Errorf("close publisher: %w", err)
		}
		p.publisher = nil
	}
	if p.sub != nil {
		if err := p.sub.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close subscriber: %w", err)
		}
		p.sub = nil
	}
	if p.exporter != nil {
		if err := p.exporter.Close(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop metrics endpoint: %w", err)
		}
		p.exporter = nil
	}

	p.connected = false
	p.closed = true
	p.log.Info("producer disconnected", nil)
	return firstErr
}

// Metrics returns a point-in-time snapshot of the producer counters.
func (p *Producer) Metrics() metrics.Snapshot {
	return p.stats.GetSnapshot()
}

// startExporter serves /metrics when the config enables it. A bind failure
// is logged rather than failing the connection: a producer and a consumer in
// one process share the port, and the first to connect wins.
func startExporter(cfg *config.Config, log logging.ServiceLogger) *metrics.Exporter {
	if !cfg.MetricsEnabled || cfg.MetricsPort <= 0 {
		return nil
	}

	exp, err := metrics.StartExporter(fmt.Sprintf(":%d", cfg.MetricsPort))
	if err != nil {
		log.Error("metrics endpoint unavailable", err, logging.LogFields{"port": cfg.MetricsPort})
		return nil
	}
	log.Info("metrics endpoint listening", logging.LogFields{"addr": exp.Addr()})
	return exp
}
