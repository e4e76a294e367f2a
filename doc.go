// Package riskwire moves financial risk-analysis messages over a pub/sub
// broker. A Producer groups messages into compressed batch envelopes and
// writes each batch as a single broker message; a Consumer unwraps the
// envelopes and delivers the payloads one at a time, acknowledging a batch
// only after every payload in it was handled successfully.
//
// The message tree (FinancialMessage, with instrument references, risk
// metrics, and per-instrument errors) serializes to plain UTF-8 JSON with its
// original field names, so payloads stay human-diffable. Decoding is strict:
// invalid bytes surface as MalformedPayloadError, structurally valid payloads
// missing mandatory identifiers or dates as SchemaMismatchError.
//
// # Transports
//
// The broker is selected by Config.PubSubSystem. Riskwire ships 8 transports:
//   - channel: In-memory Go channels for testing
//   - kafka: High-throughput streaming with consumer groups
//   - rabbitmq: AMQP-based durable queues
//   - aws: AWS SNS/SQS with LocalStack support
//   - nats: High-performance messaging
//   - nats-jetstream: NATS with persistence and redelivery
//   - http: Request/response messaging
//   - io: File-based persistence
//
// Transports register themselves on import:
//
//	import _ "github.com/drblury/riskwire/transport/kafka"
//
// # Lifecycle
//
// A minimal producer fills a Config (or starts from DevConfig/ProdConfig),
// creates a Producer, connects, submits messages, and disconnects. Submit
// returns a SendHandle that resolves with the broker-assigned message
// identifier once the containing batch is transmitted, or with the
// TransmissionError shared by the whole batch. The consumer side mirrors it:
// Receive performs one bounded wait (a timeout is a routine ErrReceiveTimeout,
// not a failure), while Run drives the full receive/decode/deliver/ack loop
// until the context is cancelled or the broker session dies.
package riskwire
