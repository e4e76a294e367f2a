package pipeline

import (
	"context"
	"sync"
)

// SendHandle tracks one submitted payload through its batch's transmission.
// It resolves exactly once: either with the broker-assigned message identifier
// or with the TransmissionError shared by every payload in the failed batch.
type SendHandle struct {
	done chan struct{}

	once      sync.Once
	messageID string
	err       error
}

func newSendHandle() *SendHandle {
	return &SendHandle{done: make(chan struct{})}
}

// Done returns a channel closed once the handle has resolved. Use it to select
// over many in-flight sends without blocking.
func (h *SendHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the batch containing this payload was transmitted or
// failed, or the context is cancelled. On success it returns the message
// identifier assigned during transmission.
func (h *SendHandle) Wait(ctx context.Context) (string, error) {
	select {
	case <-h.done:
		return h.messageID, h.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// MessageID returns the assigned identifier after the handle resolved
// successfully, or "" before resolution and on failure.
func (h *SendHandle) MessageID() string {
	select {
	case <-h.done:
		return h.messageID
	default:
		return ""
	}
}

// Err returns the transmission outcome after the handle resolved, nil before.
func (h *SendHandle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

func (h *SendHandle) resolve(messageID string, err error) {
	h.once.Do(func() {
		h.messageID = messageID
		h.err = err
		close(h.done)
	})
}
