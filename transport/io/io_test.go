package io

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/riskwire/transport"
)

func TestRegister(t *testing.T) {
	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "io", caps.Name)
	assert.True(t, caps.SupportsOrdering)
	assert.False(t, caps.SupportsAck)
}

func TestCapabilities(t *testing.T) {
	caps := Capabilities()
	assert.Equal(t, transport.IOCapabilities, caps)
	assert.Equal(t, "io", caps.Name)
}

func TestBuild(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "build.journal")

	t.Run("creates transport with custom file", func(t *testing.T) {
		cfg := &mockConfig{ioFile: testFile}
		tr, err := Build(context.Background(), cfg, watermill.NopLogger{})

		require.NoError(t, err)
		assert.NotNil(t, tr.Publisher)
		assert.NotNil(t, tr.Subscriber)
	})

	t.Run("uses default journal path when empty", func(t *testing.T) {
		cfg := &mockConfig{ioFile: ""}
		tr, err := Build(context.Background(), cfg, watermill.NopLogger{})

		require.NoError(t, err)
		assert.NotNil(t, tr.Publisher)
		assert.NotNil(t, tr.Subscriber)

		os.Remove(DefaultFilePath)
	})

	t.Run("uses custom publisher factory", func(t *testing.T) {
		originalFactory := PublisherFactory
		defer func() { PublisherFactory = originalFactory }()

		mockPub := &Publisher{filePath: "mock"}
		PublisherFactory = func(filePath string, logger watermill.LoggerAdapter) (message.Publisher, error) {
			return mockPub, nil
		}

		cfg := &mockConfig{ioFile: testFile}
		tr, err := Build(context.Background(), cfg, watermill.NopLogger{})

		require.NoError(t, err)
		assert.Equal(t, mockPub, tr.Publisher)
	})

	t.Run("uses custom subscriber factory", func(t *testing.T) {
		originalFactory := SubscriberFactory
		defer func() { SubscriberFactory = originalFactory }()

		mockSub := &Subscriber{filePath: "mock"}
		SubscriberFactory = func(filePath string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
			return mockSub, nil
		}

		cfg := &mockConfig{ioFile: testFile}
		tr, err := Build(context.Background(), cfg, watermill.NopLogger{})

		require.NoError(t, err)
		assert.Equal(t, mockSub, tr.Subscriber)
	})
}

func TestPublisherWritesJournalRecords(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "publish.journal")

	pub := &Publisher{filePath: testFile, logger: watermill.NopLogger{}}
	defer pub.Close()

	before := time.Now().UTC()
	msg := message.NewMessage("batch-1", []byte("envelope bytes"))
	msg.Metadata.Set("riskwire_compression", "lz4")
	msg.Metadata.Set("riskwire_batch_count", "3")

	require.NoError(t, pub.Publish("financial-messages", msg))

	content, err := os.ReadFile(testFile)
	require.NoError(t, err)

	var record journalRecord
	require.NoError(t, json.Unmarshal(content, &record))
	assert.Equal(t, "batch-1", record.BatchID)
	assert.Equal(t, "financial-messages", record.Topic)
	assert.Equal(t, "lz4", record.Metadata["riskwire_compression"])
	assert.Equal(t, "3", record.Metadata["riskwire_batch_count"])
	assert.Equal(t, []byte("envelope bytes"), record.Envelope)
	assert.False(t, record.StoredAt.Before(before))
}

func TestPublisherAppendsAcrossPublishes(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "append.journal")

	pub := &Publisher{filePath: testFile, logger: watermill.NopLogger{}}

	require.NoError(t, pub.Publish("topic", message.NewMessage("batch-1", []byte("one"))))
	require.NoError(t, pub.Publish("topic",
		message.NewMessage("batch-2", []byte("two")),
		message.NewMessage("batch-3", []byte("three")),
	))
	require.NoError(t, pub.Close())

	content, err := os.ReadFile(testFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "batch-1")
	assert.Contains(t, string(content), "batch-2")
	assert.Contains(t, string(content), "batch-3")
}

func TestPublisherRejectsWritesAfterClose(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "closed.journal")

	pub := &Publisher{filePath: testFile, logger: watermill.NopLogger{}}
	require.NoError(t, pub.Publish("topic", message.NewMessage("batch-1", []byte("one"))))
	require.NoError(t, pub.Close())

	err := pub.Publish("topic", message.NewMessage("batch-2", []byte("two")))
	assert.ErrorIs(t, err, os.ErrClosed)

	// Repeat close is a no-op.
	assert.NoError(t, pub.Close())
}

func TestSubscriberReplaysJournal(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "replay.journal")

	pub := &Publisher{filePath: testFile, logger: watermill.NopLogger{}}
	msg := message.NewMessage("batch-1", []byte("envelope bytes"))
	msg.Metadata.Set("riskwire_compression", "none")
	require.NoError(t, pub.Publish("financial-messages", msg))
	require.NoError(t, pub.Close())

	sub := &Subscriber{filePath: testFile, logger: watermill.NopLogger{}}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	msgChan, err := sub.Subscribe(ctx, "financial-messages")
	require.NoError(t, err)

	select {
	case received := <-msgChan:
		assert.Equal(t, "batch-1", received.UUID)
		assert.Equal(t, []byte("envelope bytes"), []byte(received.Payload))
		assert.Equal(t, "none", received.Metadata["riskwire_compression"])
		received.Ack()
	case <-ctx.Done():
		t.Fatal("timeout waiting for replayed batch")
	}
}

func TestSubscriberFiltersByTopic(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "filter.journal")

	pub := &Publisher{filePath: testFile, logger: watermill.NopLogger{}}
	require.NoError(t, pub.Publish("other-topic", message.NewMessage("batch-1", []byte("one"))))
	require.NoError(t, pub.Close())

	sub := &Subscriber{filePath: testFile, logger: watermill.NopLogger{}}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	msgChan, err := sub.Subscribe(ctx, "financial-messages")
	require.NoError(t, err)

	select {
	case <-msgChan:
		t.Fatal("should not replay batches from other topics")
	case <-ctx.Done():
	}
}

func TestSubscriberSkipsUnreadableLines(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "corrupt.journal")

	pub := &Publisher{filePath: testFile, logger: watermill.NopLogger{}}
	require.NoError(t, pub.Publish("financial-messages", message.NewMessage("batch-1", []byte("one"))))
	require.NoError(t, pub.Close())

	// A truncated write from a crashed producer, then a healthy record.
	f, err := os.OpenFile(testFile, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("{\"batch_id\":\"torn\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	pub2 := &Publisher{filePath: testFile, logger: watermill.NopLogger{}}
	require.NoError(t, pub2.Publish("financial-messages", message.NewMessage("batch-2", []byte("two"))))
	require.NoError(t, pub2.Close())

	sub := &Subscriber{filePath: testFile, logger: watermill.NopLogger{}}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msgChan, err := sub.Subscribe(ctx, "financial-messages")
	require.NoError(t, err)

	var got []string
	for len(got) < 2 {
		select {
		case received := <-msgChan:
			got = append(got, received.UUID)
			received.Ack()
		case <-ctx.Done():
			t.Fatalf("timeout, replayed so far: %v", got)
		}
	}
	assert.Equal(t, []string{"batch-1", "batch-2"}, got)
}

func TestSubscriberClose(t *testing.T) {
	sub := &Subscriber{}
	assert.NoError(t, sub.Close())
}

type mockConfig struct {
	ioFile string
}

func (m *mockConfig) GetPubSubSystem() string       { return "io" }
func (m *mockConfig) GetSubscription() string       { return "" }
func (m *mockConfig) GetKafkaBrokers() []string     { return nil }
func (m *mockConfig) GetKafkaConsumerGroup() string { return "" }
func (m *mockConfig) GetRabbitMQURL() string        { return "" }
func (m *mockConfig) GetNATSURL() string            { return "" }
func (m *mockConfig) GetHTTPServerAddress() string  { return "" }
func (m *mockConfig) GetHTTPPublisherURL() string   { return "" }
func (m *mockConfig) GetIOFile() string             { return m.ioFile }
func (m *mockConfig) GetAWSRegion() string          { return "" }
func (m *mockConfig) GetAWSAccountID() string       { return "" }
func (m *mockConfig) GetAWSAccessKeyID() string     { return "" }
func (m *mockConfig) GetAWSSecretAccessKey() string { return "" }
func (m *mockConfig) GetAWSEndpoint() string        { return "" }
func (m *mockConfig) GetAuthToken() string          { return "" }
func (m *mockConfig) GetAuthUsername() string       { return "" }
func (m *mockConfig) GetAuthPassword() string       { return "" }
