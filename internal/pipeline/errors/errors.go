// Package errors defines the error taxonomy shared by the riskwire producer
// and consumer. Sentinels cover misuse of the component lifecycle; the typed
// errors carry enough context for callers to branch with errors.As without
// inspecting message strings.
package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrAlreadyConnected     = sterrors.New("riskwire: producer is already connected")
	ErrNotConnected         = sterrors.New("riskwire: not connected to a broker")
	ErrProducerClosed       = sterrors.New("riskwire: producer has been disconnected")
	ErrConsumerClosed       = sterrors.New("riskwire: consumer has been disconnected")
	ErrBacklogFull          = sterrors.New("riskwire: pending message backlog is full")
	ErrReceiveTimeout       = sterrors.New("riskwire: receive timed out with no message available")
	ErrTopicRequired        = sterrors.New("riskwire: topic is required")
	ErrSubscriptionRequired = sterrors.New("riskwire: subscription name is required")
	ErrHandlerRequired      = sterrors.New("riskwire: message handler is required")
	ErrConfigRequired       = sterrors.New("riskwire: config is required")
	ErrLoggerRequired       = sterrors.New("riskwire: logger is required")
)

// ConnectionError reports a fatal broker session failure. It is never retried
// internally; the owning component surfaces it and stops.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return "riskwire: connection failed during " + e.Op
	}
	return fmt.Sprintf("riskwire: connection failed during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TransmissionError reports a failed batch flush. Every pending send handle in
// the affected batch resolves with the same TransmissionError. Timeout marks a
// send deadline expiry promoted to a transmission failure.
type TransmissionError struct {
	Topic   string
	BatchID string
	Timeout bool
	Err     error
}

func (e *TransmissionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("riskwire: send to %q timed out (batch %s)", e.Topic, e.BatchID)
	}
	return fmt.Sprintf("riskwire: send to %q failed (batch %s): %v", e.Topic, e.BatchID, e.Err)
}

func (e *TransmissionError) Unwrap() error { return e.Err }

// MalformedPayloadError reports bytes that are not valid for the wire format.
type MalformedPayloadError struct {
	Err error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("riskwire: malformed payload: %v", e.Err)
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }

// SchemaMismatchError reports a structurally valid payload that is missing
// mandatory fields. Field names the offending locations in wire terms, for
// example "data[2].instrumentreference.maturitydate".
type SchemaMismatchError struct {
	Fields []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("riskwire: payload is missing mandatory fields: %v", e.Fields)
}
