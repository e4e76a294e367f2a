package pipeline

import (
	"context"
	"errors"
	nethttp "net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/riskwire/internal/pipeline/config"
	"github.com/drblury/riskwire/internal/pipeline/envelope"
	errspkg "github.com/drblury/riskwire/internal/pipeline/errors"
	"github.com/drblury/riskwire/internal/pipeline/logging"
	metadatapkg "github.com/drblury/riskwire/internal/pipeline/metadata"
	"github.com/drblury/riskwire/internal/pipeline/model"
	"github.com/drblury/riskwire/transport"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []*message.Message

	// gate, when set, blocks Publish until closed.
	gate chan struct{}
	err  error
}

func (f *fakePublisher) Publish(topic string, msgs ...*message.Message) error {
	if f.gate != nil {
		<-f.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msgs...)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) messages() []*message.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*message.Message(nil), f.published...)
}

type fakeSubscriber struct {
	ch chan *message.Message
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return f.ch, nil
}

func (f *fakeSubscriber) Close() error { return nil }

func stubTransport(t *testing.T, pub message.Publisher, sub message.Subscriber) {
	t.Helper()

	previous := buildTransport
	buildTransport = func(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
		return transport.Transport{Publisher: pub, Subscriber: sub}, nil
	}
	t.Cleanup(func() { buildTransport = previous })
}

func newTestProducer(t *testing.T, pub *fakePublisher, mutate func(*config.Config)) *Producer {
	t.Helper()

	stubTransport(t, pub, &fakeSubscriber{ch: make(chan *message.Message)})

	cfg := config.Dev()
	// Long delay so only the scenario under test triggers flushes.
	cfg.Producer.BatchMaxDelay = time.Hour
	if mutate != nil {
		mutate(&cfg)
	}

	p, err := NewProducer(&cfg, logging.Nop())
	if err != nil {
		t.Fatalf("new producer failed: %v", err)
	}
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	t.Cleanup(func() { p.Disconnect(context.Background()) })
	return p
}

func sampleMsg() *model.FinancialMessage {
	return model.NewSampleMessage(time.Now(), model.DefaultSampleDefaults())
}

func waitResolved(t *testing.T, h *SendHandle) (string, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	id, err := h.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("handle never resolved")
	}
	return id, err
}

func TestProducerConnectTwiceIsFatal(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestProducer(t, pub, nil)

	err := p.Connect(context.Background())
	var connErr *errspkg.ConnectionError
	if !errors.As(err, &connErr) || !errors.Is(err, errspkg.ErrAlreadyConnected) {
		t.Fatalf("expected ConnectionError wrapping ErrAlreadyConnected, got %v", err)
	}
}

func TestSubmitBeforeConnect(t *testing.T) {
	stubTransport(t, &fakePublisher{}, &fakeSubscriber{ch: make(chan *message.Message)})

	cfg := config.Dev()
	p, err := NewProducer(&cfg, logging.Nop())
	if err != nil {
		t.Fatalf("new producer failed: %v", err)
	}

	if _, err := p.Submit(context.Background(), sampleMsg()); !errors.Is(err, errspkg.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestBatchFlushesWhenFull(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestProducer(t, pub, func(c *config.Config) {
		c.Producer.BatchMaxMessages = 3
	})

	handles := make([]*SendHandle, 0, 3)
	for i := 0; i < 3; i++ {
		h, err := p.Submit(context.Background(), sampleMsg())
		if err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
		handles = append(handles, h)
	}

	ids := make([]string, 0, 3)
	for _, h := range handles {
		id, err := waitResolved(t, h)
		if err != nil {
			t.Fatalf("handle resolved with error: %v", err)
		}
		ids = append(ids, id)
	}

	msgs := pub.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one broker write, got %d", len(msgs))
	}
	if got := msgs[0].Metadata[metadatapkg.KeyBatchCount]; got != "3" {
		t.Fatalf("expected batch count 3, got %q", got)
	}
	if got := msgs[0].Metadata[metadatapkg.KeyCompression]; got != "lz4" {
		t.Fatalf("expected lz4 metadata, got %q", got)
	}

	// Per-payload ids share the batch id and index in submit order.
	for i, id := range ids {
		if id != msgs[0].UUID+":"+strconv.Itoa(i) {
			t.Fatalf("handle %d resolved to %q, batch is %q", i, id, msgs[0].UUID)
		}
	}

	entries, err := envelope.Decode(msgs[0].Payload, envelope.CompressionLZ4, 3)
	if err != nil {
		t.Fatalf("published envelope does not decode: %v", err)
	}
	if entries[0].Properties[metadatapkg.KeyMessageType] != metadatapkg.MessageTypeFinancialAnalysis {
		t.Fatalf("missing message type property: %v", entries[0].Properties)
	}
}

func TestBatchFlushesAfterDelay(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestProducer(t, pub, func(c *config.Config) {
		c.Producer.BatchMaxMessages = 100
		c.Producer.BatchMaxDelay = 20 * time.Millisecond
	})

	h, err := p.Submit(context.Background(), sampleMsg())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if _, err := waitResolved(t, h); err != nil {
		t.Fatalf("handle resolved with error: %v", err)
	}
	if len(pub.messages()) != 1 {
		t.Fatalf("expected one broker write, got %d", len(pub.messages()))
	}
}

func TestUnbatchedSubmitFlushesImmediately(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestProducer(t, pub, func(c *config.Config) {
		c.Producer.BatchingEnabled = false
	})

	for i := 0; i < 3; i++ {
		h, err := p.Submit(context.Background(), sampleMsg())
		if err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
		if _, err := waitResolved(t, h); err != nil {
			t.Fatalf("handle %d resolved with error: %v", i, err)
		}
	}

	msgs := pub.messages()
	if len(msgs) != 3 {
		t.Fatalf("expected three broker writes, got %d", len(msgs))
	}
	for _, m := range msgs {
		if m.Metadata[metadatapkg.KeyBatchCount] != "1" {
			t.Fatalf("expected singleton batches, got count %q", m.Metadata[metadatapkg.KeyBatchCount])
		}
	}
}

func TestManyPayloadsSplitIntoBatches(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestProducer(t, pub, func(c *config.Config) {
		c.Producer.BatchMaxMessages = 10
	})

	handles := make([]*SendHandle, 0, 50)
	for i := 0; i < 50; i++ {
		h, err := p.Submit(context.Background(), sampleMsg())
		if err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
		handles = append(handles, h)
	}
	for i, h := range handles {
		if _, err := waitResolved(t, h); err != nil {
			t.Fatalf("handle %d resolved with error: %v", i, err)
		}
	}

	msgs := pub.messages()
	if len(msgs) != 5 {
		t.Fatalf("expected five broker writes, got %d", len(msgs))
	}
	for _, m := range msgs {
		entries, err := envelope.Decode(m.Payload, envelope.CompressionLZ4, 10)
		if err != nil {
			t.Fatalf("envelope %s does not decode: %v", m.UUID, err)
		}
		if len(entries) != 10 {
			t.Fatalf("expected 10 payloads per envelope, got %d", len(entries))
		}
	}
}

func TestRejectBackpressure(t *testing.T) {
	gate := make(chan struct{})
	pub := &fakePublisher{gate: gate}
	p := newTestProducer(t, pub, func(c *config.Config) {
		c.Producer.BatchingEnabled = false
		c.Producer.MaxPendingMessages = 2
		c.Producer.Backpressure = config.BackpressureReject
	})

	h1, err := p.Submit(context.Background(), sampleMsg())
	if err != nil {
		t.Fatalf("submit 1 failed: %v", err)
	}
	h2, err := p.Submit(context.Background(), sampleMsg())
	if err != nil {
		t.Fatalf("submit 2 failed: %v", err)
	}

	if _, err := p.Submit(context.Background(), sampleMsg()); !errors.Is(err, errspkg.ErrBacklogFull) {
		t.Fatalf("expected ErrBacklogFull, got %v", err)
	}

	close(gate)
	for _, h := range []*SendHandle{h1, h2} {
		if _, err := waitResolved(t, h); err != nil {
			t.Fatalf("handle resolved with error: %v", err)
		}
	}

	// With the backlog drained, submits are accepted again.
	h4, err := p.Submit(context.Background(), sampleMsg())
	if err != nil {
		t.Fatalf("submit after drain failed: %v", err)
	}
	if _, err := waitResolved(t, h4); err != nil {
		t.Fatalf("handle resolved with error: %v", err)
	}
}

func TestBlockBackpressureUnblocksOnCancel(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)

	pub := &fakePublisher{gate: gate}
	p := newTestProducer(t, pub, func(c *config.Config) {
		c.Producer.BatchingEnabled = false
		c.Producer.MaxPendingMessages = 1
	})

	if _, err := p.Submit(context.Background(), sampleMsg()); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := p.Submit(ctx, sampleMsg()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}
}

func TestSendTimeoutResolvesHandles(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)

	pub := &fakePublisher{gate: gate}
	p := newTestProducer(t, pub, func(c *config.Config) {
		c.Producer.BatchingEnabled = false
		c.Producer.SendTimeout = 30 * time.Millisecond
	})

	h, err := p.Submit(context.Background(), sampleMsg())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	_, err = waitResolved(t, h)
	var txErr *errspkg.TransmissionError
	if !errors.As(err, &txErr) || !txErr.Timeout {
		t.Fatalf("expected timeout TransmissionError, got %v", err)
	}
}

func TestPublishFailureResolvesWholeBatch(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	p := newTestProducer(t, pub, func(c *config.Config) {
		c.Producer.BatchMaxMessages = 2
	})

	h1, err := p.Submit(context.Background(), sampleMsg())
	if err != nil {
		t.Fatalf("submit 1 failed: %v", err)
	}
	h2, err := p.Submit(context.Background(), sampleMsg())
	if err != nil {
		t.Fatalf("submit 2 failed: %v", err)
	}

	for i, h := range []*SendHandle{h1, h2} {
		_, err := waitResolved(t, h)
		var txErr *errspkg.TransmissionError
		if !errors.As(err, &txErr) {
			t.Fatalf("handle %d: expected TransmissionError, got %v", i, err)
		}
		if !strings.Contains(txErr.Error(), "broker unavailable") {
			t.Fatalf("handle %d: expected cause in error, got %v", i, txErr)
		}
	}
}

func TestDisconnectFlushesOpenBatch(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestProducer(t, pub, func(c *config.Config) {
		c.Producer.BatchMaxMessages = 100
	})

	h, err := p.Submit(context.Background(), sampleMsg())
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if err := p.Disconnect(context.Background()); err != nil {
		t.Fatalf("disconnect failed: %v", err)
	}
	if _, err := waitResolved(t, h); err != nil {
		t.Fatalf("pending handle should resolve on disconnect: %v", err)
	}
	if len(pub.messages()) != 1 {
		t.Fatalf("expected the open batch to flush, got %d writes", len(pub.messages()))
	}

	// Repeat disconnects are no-ops; the producer stays closed.
	if err := p.Disconnect(context.Background()); err != nil {
		t.Fatalf("second disconnect should be a no-op: %v", err)
	}
	if _, err := p.Submit(context.Background(), sampleMsg()); !errors.Is(err, errspkg.ErrProducerClosed) {
		t.Fatalf("expected ErrProducerClosed, got %v", err)
	}
}

func TestSubmitOptionsControlRoutingAndProperties(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestProducer(t, pub, func(c *config.Config) {
		c.Producer.BatchingEnabled = false
	})

	msg := sampleMsg()
	h, err := p.Submit(context.Background(), msg,
		WithPartitionKey("portfolio-emea"),
		WithProperties(metadatapkg.New("desk", "rates", metadatapkg.KeyMessageType, "custom-type")),
	)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := waitResolved(t, h); err != nil {
		t.Fatalf("handle resolved with error: %v", err)
	}

	msgs := pub.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one broker write, got %d", len(msgs))
	}
	if got := msgs[0].Metadata[metadatapkg.KeyPartitionKey]; got != "portfolio-emea" {
		t.Fatalf("expected overridden partition key, got %q", got)
	}

	entries, err := envelope.Decode(msgs[0].Payload, envelope.CompressionLZ4, 1)
	if err != nil {
		t.Fatalf("published envelope does not decode: %v", err)
	}
	if entries[0].PartitionKey != "portfolio-emea" {
		t.Fatalf("expected entry partition key override, got %q", entries[0].PartitionKey)
	}
	if entries[0].Properties["desk"] != "rates" {
		t.Fatalf("expected merged caller property, got %v", entries[0].Properties)
	}
	// Caller values win over the standard keys; untouched ones survive.
	if entries[0].Properties[metadatapkg.KeyMessageType] != "custom-type" {
		t.Fatalf("expected caller override of message type, got %v", entries[0].Properties)
	}
	if entries[0].Properties[metadatapkg.KeyJobID] != msg.JobID {
		t.Fatalf("expected standard job id property, got %v", entries[0].Properties)
	}
}

func TestSubmitDefaultsPartitionKeyToJobID(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestProducer(t, pub, func(c *config.Config) {
		c.Producer.BatchingEnabled = false
	})

	msg := sampleMsg()
	h, err := p.Submit(context.Background(), msg)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := waitResolved(t, h); err != nil {
		t.Fatalf("handle resolved with error: %v", err)
	}

	msgs := pub.messages()
	entries, err := envelope.Decode(msgs[0].Payload, envelope.CompressionLZ4, 1)
	if err != nil {
		t.Fatalf("published envelope does not decode: %v", err)
	}
	if entries[0].PartitionKey != msg.JobID {
		t.Fatalf("expected job id as default key, got %q", entries[0].PartitionKey)
	}
}

func TestSubmitNilMessage(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestProducer(t, pub, nil)

	if _, err := p.Submit(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil message")
	}
}

func TestMetricsEndpointFollowsLifecycle(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestProducer(t, pub, func(c *config.Config) {
		c.MetricsEnabled = true
		c.MetricsPort = 39309
	})

	resp, err := nethttp.Get("http://127.0.0.1:39309/metrics")
	if err != nil {
		t.Fatalf("metrics endpoint not serving: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", resp.StatusCode)
	}

	if err := p.Disconnect(context.Background()); err != nil {
		t.Fatalf("disconnect failed: %v", err)
	}
	if _, err := nethttp.Get("http://127.0.0.1:39309/metrics"); err == nil {
		t.Fatal("metrics endpoint should stop with the producer")
	}
}

func TestProducerMetricsSnapshot(t *testing.T) {
	pub := &fakePublisher{}
	p := newTestProducer(t, pub, func(c *config.Config) {
		c.Producer.BatchMaxMessages = 2
	})

	h1, _ := p.Submit(context.Background(), sampleMsg())
	h2, _ := p.Submit(context.Background(), sampleMsg())
	waitResolved(t, h1)
	waitResolved(t, h2)

	snap := p.Metrics()
	if snap.MessagesSubmitted != 2 || snap.BatchesFlushed != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
