// Package io provides a file-backed transport for riskwire. Every batch
// envelope is appended to a journal file as one JSON line, which makes the
// file a cheap audit log and replay source for local runs: point a consumer
// at the same file and it tails the journal like a subscription.
package io

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/riskwire/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "io"

// DefaultFilePath is the journal file used when the config names none.
const DefaultFilePath = "riskwire.journal"

// pollInterval is how long the tailer sleeps at end of journal before
// checking for newly appended batches.
const pollInterval = 50 * time.Millisecond

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(filePath string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return &Publisher{filePath: filePath, logger: logger}, nil
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(filePath string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return &Subscriber{filePath: filePath, logger: logger}, nil
}

func init() {
	Register()
}

// Register registers the I/O transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.IOCapabilities)
}

// Build creates a new I/O transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	filePath := cfg.GetIOFile()
	if filePath == "" {
		filePath = DefaultFilePath
	}

	pub, err := PublisherFactory(filePath, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	sub, err := SubscriberFactory(filePath, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  pub,
		Subscriber: sub,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.IOCapabilities
}

// journalRecord is one batch envelope as persisted in the journal file. The
// envelope bytes are stored as published, compression included, so a replay
// goes through exactly the same decode path as a broker delivery.
type journalRecord struct {
	BatchID  string            `json:"batch_id"`
	Topic    string            `json:"topic"`
	StoredAt time.Time         `json:"stored_at"`
	Metadata map[string]string `json:"metadata"`
	Envelope []byte            `json:"envelope"`
}

// Publisher appends batch envelopes to the journal file. The file stays open
// across publishes and is flushed per Publish call.
type Publisher struct {
	filePath string
	logger   watermill.LoggerAdapter

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	closed bool
}

// Publish appends one journal record per message.
func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return os.ErrClosed
	}
	if p.file == nil {
		f, err := os.OpenFile(p.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return err
		}
		p.file = f
		p.writer = bufio.NewWriter(f)
	}

	enc := json.NewEncoder(p.writer)
	for _, msg := range messages {
		record := journalRecord{
			BatchID:  msg.UUID,
			Topic:    topic,
			StoredAt: time.Now().UTC(),
			Metadata: msg.Metadata,
			Envelope: msg.Payload,
		}
		// Encode terminates each record with a newline.
		if err := enc.Encode(record); err != nil {
			return err
		}
	}
	return p.writer.Flush()
}

// Close flushes and closes the journal file.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.file == nil {
		return nil
	}
	if err := p.writer.Flush(); err != nil {
		p.file.Close()
		return err
	}
	return p.file.Close()
}

// Subscriber tails the journal file and replays batch envelopes for one
// topic.
type Subscriber struct {
	filePath string
	logger   watermill.LoggerAdapter
}

// Subscribe replays the journal from the beginning and then keeps tailing it
// for newly appended batches until the context is cancelled. Lines that are
// not valid records are skipped, so a truncated final line from a crashed
// producer does not wedge the replay.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	out := make(chan *message.Message)

	go func() {
		defer close(out)

		f, err := os.OpenFile(s.filePath, os.O_RDONLY|os.O_CREATE, 0600)
		if err != nil {
			s.logger.Error("Failed to open journal", err, watermill.LogFields{"file": s.filePath})
			return
		}
		defer f.Close()

		var lastPos int64
		var skipped int
		reader := bufio.NewReader(f)

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line, err := reader.ReadBytes('\n')
			if err != nil {
				if err == io.EOF {
					if !s.awaitAppend(f, reader, &lastPos) {
						return
					}
					continue
				}
				s.logger.Error("Failed to read journal", err, watermill.LogFields{"file": s.filePath})
				return
			}

			currentPos, _ := f.Seek(0, io.SeekCurrent)
			lastPos = currentPos - int64(reader.Buffered())

			record, ok := s.parseRecord(line, &skipped)
			if !ok || record.Topic != topic {
				continue
			}
			if !s.emit(ctx, out, record) {
				return
			}
		}
	}()

	return out, nil
}

// Close closes the subscriber.
func (s *Subscriber) Close() error {
	return nil
}

// awaitAppend parks the tailer at end of journal and rewinds the reader to
// the last complete record before polling again.
func (s *Subscriber) awaitAppend(f *os.File, reader *bufio.Reader, lastPos *int64) bool {
	currentPos, _ := f.Seek(0, io.SeekCurrent)
	currentPos -= int64(reader.Buffered())
	if currentPos > *lastPos {
		*lastPos = currentPos
	}

	time.Sleep(pollInterval)

	if _, err := f.Seek(*lastPos, io.SeekStart); err != nil {
		s.logger.Error("Failed to seek journal", err, watermill.LogFields{"file": s.filePath})
		return false
	}
	reader.Reset(f)
	return true
}

func (s *Subscriber) parseRecord(line []byte, skipped *int) (journalRecord, bool) {
	var record journalRecord
	if err := json.Unmarshal(line, &record); err != nil {
		*skipped++
		s.logger.Error("Skipping unreadable journal line", err, watermill.LogFields{
			"skipped": *skipped,
		})
		return journalRecord{}, false
	}
	return record, true
}

// emit hands one replayed batch to the consumer and waits for its verdict,
// mirroring a broker's in-flight message.
func (s *Subscriber) emit(ctx context.Context, out chan<- *message.Message, record journalRecord) bool {
	msg := message.NewMessage(record.BatchID, record.Envelope)
	msg.Metadata = record.Metadata

	select {
	case out <- msg:
		select {
		case <-msg.Acked():
		case <-msg.Nacked():
			s.logger.Debug("Replayed batch nacked", watermill.LogFields{"batch_id": record.BatchID})
		case <-ctx.Done():
			return false
		}
	case <-ctx.Done():
		return false
	}
	return true
}
