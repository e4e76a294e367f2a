package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
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
	"github.com/drblury/riskwire/internal/pipeline/logging"
	metadatapkg "github.com/drblury/riskwire/internal/pipeline/metadata"
	"github.com/drblury/riskwire/internal/pipeline/metrics"
	"github.com/drblury/riskwire/internal/pipeline/model"
)

// ConsumerState is the observable position of the consumer in its delivery
// cycle.
type ConsumerState int32

const (
	// StateIdle means no receive is in progress.
	StateIdle ConsumerState = iota
	// StateReceiving means a bounded wait for the next broker message is
	// running.
	StateReceiving
	// StateDelivering means a batch is being decoded or handed to the
	// handler; the broker message is not yet acknowledged.
	StateDelivering
	// StateTimedOut means the last bounded wait expired with no message.
	// The consumer remains usable; the next Receive leaves this state.
	StateTimedOut
	// StateFailed means the broker session is gone. Terminal.
	StateFailed
)

func (s ConsumerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReceiving:
		return "receiving"
	case StateDelivering:
		return "delivering"
	case StateTimedOut:
		return "timed_out"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Handler processes one decoded financial message. Returning an error leaves
// the containing broker message unacknowledged, so the broker redelivers it.
type Handler func(ctx context.Context, msg *model.FinancialMessage) error

// Consumer receives batch envelopes from a subscription, unwraps them, and
// delivers the payloads one at a time. A broker message is acknowledged only
// after every payload in it was decoded and handled successfully.
type Consumer struct {
	cfg    *config.Config
	log    logging.ServiceLogger
	stats  *metrics.PipelineMetrics
	tracer trace.Tracer

	mu         sync.Mutex
	connected  bool
	closed     bool
	subscriber message.Subscriber
	pub        message.Publisher
	msgs       <-chan *message.Message
	exporter   *metrics.Exporter

	state atomic.Int32
}

// NewConsumer validates the configuration and prepares a disconnected
// consumer.
func NewConsumer(cfg *config.Config, log logging.ServiceLogger) (*Consumer, error) {
	if cfg == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if cfg.Subscription == "" {
		return nil, errspkg.ErrSubscriptionRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	stats := metrics.New(nil)
	if cfg.MetricsEnabled {
		if err := stats.Register(); err != nil {
			return nil, fmt.Errorf("register consumer metrics: %w", err)
		}
	}

	return &Consumer{
		cfg: cfg,
		log: log.With(logging.LogFields{
			"component":    "consumer",
			"topic":        cfg.Topic,
			"subscription": cfg.Subscription,
		}),
		stats:  stats,
		tracer: otel.Tracer("riskwire/consumer"),
	}, nil
}

// Connect establishes the subscription. Like the producer, connecting twice
// is a fatal misuse.
func (c *Consumer) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errspkg.ErrConsumerClosed
	}
	if c.connected {
		return &errspkg.ConnectionError{Op: "connect", Err: errspkg.ErrAlreadyConnected}
	}

	tr, err := buildTransport(ctx, c.cfg, logging.NewWatermillAdapter(c.log))
	if err != nil {
		return &errspkg.ConnectionError{Op: "connect", Err: err}
	}

	msgs, err := tr.Subscriber.Subscribe(ctx, c.cfg.Topic)
	if err != nil {
		tr.Subscriber.Close()
		if tr.Publisher != nil {
			tr.Publisher.Close()
		}
		return &errspkg.ConnectionError{Op: "subscribe", Err: err}
	}

	c.subscriber = tr.Subscriber
	c.pub = tr.Publisher
	c.msgs = msgs
	c.connected = true
	c.exporter = startExporter(c.cfg, c.log)
	c.state.Store(int32(StateIdle))

	c.log.Info("consumer connected", logging.LogFields{"transport": c.cfg.PubSubSystem})
	return nil
}

// State reports where the consumer currently is in its delivery cycle.
func (c *Consumer) State() ConsumerState {
	return ConsumerState(c.state.Load())
}

// Delivery is one received broker message unwrapped into its payloads. The
// caller must finish it with exactly one of Ack or Nack; nothing is
// acknowledged implicitly.
type Delivery struct {
	// BatchID is the broker message identifier of the batch envelope.
	BatchID string
	// Messages are the decoded payloads in publish order.
	Messages []*model.FinancialMessage
	// Properties are the per-payload properties, index-aligned with
	// Messages.
	Properties []metadatapkg.Metadata

	consumer *Consumer
	msg      *message.Message
	finished bool
}

// Ack acknowledges the underlying broker message. Call only after every
// payload was processed successfully.
func (d *Delivery) Ack() {
	if d.finished {
		return
	}
	d.finished = true
	d.msg.Ack()
	d.consumer.stats.RecordAcked(d.consumer.cfg.Topic)
	d.consumer.state.Store(int32(StateIdle))
}

// Nack returns the broker message for redelivery.
func (d *Delivery) Nack() {
	if d.finished {
		return
	}
	d.finished = true
	d.msg.Nack()
	d.consumer.state.Store(int32(StateIdle))
}

// Receive waits up to timeout for the next batch envelope. A timeout is a
// routine, non-terminal outcome reported as ErrReceiveTimeout; the consumer
// stays connected and the wait can simply be repeated. A closed subscription
// yields a terminal *ConnectionError. Decoding failures nack the broker
// message and surface the typed codec error; the subscription survives them.
// Pass a non-positive timeout to use the configured receive timeout.
func (c *Consumer) Receive(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, errspkg.ErrNotConnected
	}
	msgs := c.msgs
	c.mu.Unlock()

	if timeout <= 0 {
		timeout = c.cfg.ReceiveTimeout
	}

	c.state.Store(int32(StateReceiving))

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case wm, ok := <-msgs:
		if !ok {
			c.state.Store(int32(StateFailed))
			return nil, &errspkg.ConnectionError{Op: "receive", Err: errors.New("subscription channel closed")}
		}
		c.state.Store(int32(StateDelivering))
		return c.unwrap(ctx, wm)
	case <-timer.C:
		c.state.Store(int32(StateTimedOut))
		c.stats.RecordReceiveTimeout(c.cfg.Topic)
		return nil, errspkg.ErrReceiveTimeout
	case <-ctx.Done():
		c.state.Store(int32(StateIdle))
		return nil, ctx.Err()
	}
}

// unwrap decodes the batch envelope and every payload in it.
func (c *Consumer) unwrap(ctx context.Context, wm *message.Message) (*Delivery, error) {
	_, span := c.tracer.Start(ctx, "riskwire.unwrap", trace.WithAttributes(
		attribute.String("messaging.destination.name", c.cfg.Topic),
		attribute.String("riskwire.batch_id", wm.UUID),
	))
	defer span.End()

	compression, err := envelope.ParseCompression(wm.Metadata[metadatapkg.KeyCompression])
	if err != nil {
		return nil, c.rejectEnvelope(span, wm, &errspkg.MalformedPayloadError{Err: err})
	}

	expectCount := -1
	if raw := wm.Metadata[metadatapkg.KeyBatchCount]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, c.rejectEnvelope(span, wm, &errspkg.MalformedPayloadError{Err: fmt.Errorf("invalid batch count %q: %w", raw, err)})
		}
		expectCount = n
	}

	entries, err := envelope.Decode(wm.Payload, compression, expectCount)
	if err != nil {
		return nil, c.rejectEnvelope(span, wm, err)
	}

	delivery := &Delivery{
		BatchID:    wm.UUID,
		Messages:   make([]*model.FinancialMessage, 0, len(entries)),
		Properties: make([]metadatapkg.Metadata, 0, len(entries)),
		consumer:   c,
		msg:        wm,
	}

	for i, entry := range entries {
		decoded, err := codec.Decode(entry.Payload)
		if err != nil {
			return nil, c.rejectEnvelope(span, wm, fmt.Errorf("payload %d of batch %s: %w", i, wm.UUID, err))
		}
		delivery.Messages = append(delivery.Messages, decoded)
		delivery.Properties = append(delivery.Properties, entry.Properties)
	}

	span.SetAttributes(attribute.Int("riskwire.batch_size", len(delivery.Messages)))
	c.stats.RecordConsumed(c.cfg.Topic, len(delivery.Messages))
	return delivery, nil
}

func (c *Consumer) rejectEnvelope(span trace.Span, wm *message.Message, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "envelope rejected")

	wm.Nack()
	c.stats.RecordDecodeFailure(c.cfg.Topic)
	c.state.Store(int32(StateIdle))
	c.log.Error("envelope rejected", err, logging.LogFields{"batch_id": wm.UUID})
	return err
}

// Run drives the delivery loop until the context is cancelled or the broker
// session fails. Timeouts and decode failures are logged and the loop
// continues; a handler error nacks the whole batch so the broker redelivers
// it. Run returns nil on context cancellation; it returns the terminal error
// when the broker session fails or the consumer is disconnected mid-loop.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errspkg.ErrHandlerRequired
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		delivery, err := c.Receive(ctx, c.cfg.ReceiveTimeout)
		switch {
		case err == nil:
		case errors.Is(err, errspkg.ErrReceiveTimeout):
			c.log.Trace("no message within receive timeout", nil)
			continue
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return nil
		case errors.Is(err, errspkg.ErrNotConnected), errors.Is(err, errspkg.ErrConsumerClosed):
			// The session is gone, whether it never existed or Disconnect
			// raced the loop. Spinning on it would never recover.
			return err
		default:
			var connErr *errspkg.ConnectionError
			if errors.As(err, &connErr) {
				c.log.Error("broker session lost", err, nil)
				return err
			}
			// Typed decode failure: already nacked, keep consuming.
			continue
		}

		if err := c.deliver(ctx, delivery, handler); err != nil {
			c.log.Error("handler failed, batch left unacknowledged", err, logging.LogFields{
				"batch_id": delivery.BatchID,
			})
			delivery.Nack()
			continue
		}
		delivery.Ack()
	}
}

func (c *Consumer) deliver(ctx context.Context, d *Delivery, handler Handler) error {
	for i, msg := range d.Messages {
		if err := handler(ctx, msg); err != nil {
			return fmt.Errorf("payload %d (job %s): %w", i, msg.JobID, err)
		}
	}
	return nil
}

// Disconnect closes the subscription. Repeated calls are no-ops.
func (c *Consumer) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		c.closed = true
		return nil
	}

	var firstErr error
	if c.subscriber != nil {
		if err := c.subscriber.Close(); err != nil {
			firstErr = fmt.Errorf("close subscriber: %w", err)
		}
		c.subscriber = nil
	}
	if c.pub != nil {
		if err := c.pub.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close publisher: %w", err)
		}
		c.pub = nil
	}
	if c.exporter != nil {
		if err := c.exporter.Close(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop metrics endpoint: %w", err)
		}
		c.exporter = nil
	}

	c.connected = false
	c.closed = true
	c.state.Store(int32(StateIdle))
	c.log.Info("consumer disconnected", nil)
	return firstErr
}

// Metrics returns a point-in-time snapshot of the consumer counters.
func (c *Consumer) Metrics() metrics.Snapshot {
	return c.stats.GetSnapshot()
}
