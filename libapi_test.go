package riskwire

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/riskwire/transport/channel"
)

func TestConfigPresetsAreValid(t *testing.T) {
	dev := DevConfig()
	if err := ValidateConfig(&dev); err != nil {
		t.Fatalf("dev config should validate: %v", err)
	}
	prod := ProdConfig()
	if err := ValidateConfig(&prod); err != nil {
		t.Fatalf("prod config should validate: %v", err)
	}
}

func TestCodecExportAliases(t *testing.T) {
	msg := NewSampleMessage(time.Now(), DefaultSampleDefaults())

	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	pretty, err := EncodeIndent(msg)
	if err != nil {
		t.Fatalf("encode indent failed: %v", err)
	}
	if !strings.Contains(string(pretty), "\n") {
		t.Fatal("expected indented output to span multiple lines")
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.JobID != msg.JobID {
		t.Fatalf("job id mismatch: got %q want %q", decoded.JobID, msg.JobID)
	}
}

func TestDecodeSurfacesTypedErrors(t *testing.T) {
	if _, err := Decode([]byte("{not json")); err == nil {
		t.Fatal("expected malformed payload error")
	} else {
		var malformed *MalformedPayloadError
		if !errors.As(err, &malformed) {
			t.Fatalf("expected MalformedPayloadError, got %T", err)
		}
	}

	if _, err := Decode([]byte(`{"analysis_id":"a-1"}`)); err == nil {
		t.Fatal("expected schema mismatch error")
	} else {
		var mismatch *SchemaMismatchError
		if !errors.As(err, &mismatch) {
			t.Fatalf("expected SchemaMismatchError, got %T", err)
		}
	}
}

func TestMetadataExport(t *testing.T) {
	md := NewMetadata(MetadataKeyJobID, "job-1")
	if md[MetadataKeyJobID] != "job-1" {
		t.Fatalf("expected metadata to contain job id, got %#v", md)
	}
}

func TestIDGeneratorExports(t *testing.T) {
	if NewBatchID() == NewBatchID() {
		t.Fatal("batch ids must be unique")
	}
	if NewJobID() == "" || NewJobID() == NewJobID() {
		t.Fatal("job ids must be unique and non-empty")
	}
	if NewAnalysisID() == "" {
		t.Fatal("analysis id must be non-empty")
	}
}

func TestConsumerStateExports(t *testing.T) {
	states := map[ConsumerState]string{
		StateIdle:       "idle",
		StateReceiving:  "receiving",
		StateDelivering: "delivering",
		StateTimedOut:   "timed_out",
		StateFailed:     "failed",
	}
	for state, want := range states {
		if state.String() != want {
			t.Fatalf("state %d: got %q want %q", state, state.String(), want)
		}
	}
}

func TestTransportRegistryExports(t *testing.T) {
	if DefaultTransportRegistry == nil {
		t.Fatal("default registry should exist")
	}
	caps := GetCapabilities("channel")
	if caps.Name != "channel" {
		t.Fatalf("expected channel capabilities, got %q", caps.Name)
	}
}

// Round trip over the in-memory channel transport: one shared gochannel
// instance backs both the producer and the consumer.
func TestChannelRoundTrip(t *testing.T) {
	shared := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NopLogger{})
	originalFactory := channel.Factory
	channel.Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
		return shared, shared
	}
	t.Cleanup(func() { channel.Factory = originalFactory })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := DevConfig()
	log := NopLogger()

	consumer, err := NewConsumer(&cfg, log)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	if err := consumer.Connect(ctx); err != nil {
		t.Fatalf("consumer connect: %v", err)
	}

	producer, err := NewProducer(&cfg, log)
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}
	if err := producer.Connect(ctx); err != nil {
		t.Fatalf("producer connect: %v", err)
	}

	sent := NewSampleMessage(time.Now(), DefaultSampleDefaults())
	handle, err := producer.Submit(ctx, sent)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := producer.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	messageID, err := handle.Wait(ctx)
	if err != nil {
		t.Fatalf("handle resolved with error: %v", err)
	}
	if messageID == "" {
		t.Fatal("expected a broker-assigned message id")
	}

	delivery, err := consumer.Receive(ctx, 2*time.Second)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(delivery.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(delivery.Messages))
	}
	if delivery.Messages[0].JobID != sent.JobID {
		t.Fatalf("job id mismatch: got %q want %q", delivery.Messages[0].JobID, sent.JobID)
	}
	delivery.Ack()

	if err := consumer.Disconnect(ctx); err != nil {
		t.Fatalf("consumer disconnect: %v", err)
	}
	if err := producer.Disconnect(ctx); err != nil {
		t.Fatalf("producer disconnect: %v", err)
	}
}
