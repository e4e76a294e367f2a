package riskwire

import (
	pipelinepkg "github.com/drblury/riskwire/internal/pipeline"
	codecpkg "github.com/drblury/riskwire/internal/pipeline/codec"
	configpkg "github.com/drblury/riskwire/internal/pipeline/config"
	envelopepkg "github.com/drblury/riskwire/internal/pipeline/envelope"
	errspkg "github.com/drblury/riskwire/internal/pipeline/errors"
	idspkg "github.com/drblury/riskwire/internal/pipeline/ids"
	loggingpkg "github.com/drblury/riskwire/internal/pipeline/logging"
	metadatapkg "github.com/drblury/riskwire/internal/pipeline/metadata"
	metricspkg "github.com/drblury/riskwire/internal/pipeline/metrics"
	modelpkg "github.com/drblury/riskwire/internal/pipeline/model"
	transportpkg "github.com/drblury/riskwire/transport"
)

type (
	Config             = configpkg.Config
	Auth               = configpkg.Auth
	ProducerSettings   = configpkg.ProducerSettings
	BackpressurePolicy = configpkg.BackpressurePolicy

	Producer      = pipelinepkg.Producer
	SendHandle    = pipelinepkg.SendHandle
	SubmitOption  = pipelinepkg.SubmitOption
	Consumer      = pipelinepkg.Consumer
	ConsumerState = pipelinepkg.ConsumerState
	Delivery      = pipelinepkg.Delivery
	Handler       = pipelinepkg.Handler

	// Message model
	FinancialMessage     = modelpkg.FinancialMessage
	InstrumentData       = modelpkg.InstrumentData
	InstrumentReference  = modelpkg.InstrumentReference
	InstrumentRiskMetric = modelpkg.InstrumentRiskMetric
	InstrumentError      = modelpkg.InstrumentError
	Severity             = modelpkg.Severity
	SampleDefaults       = modelpkg.SampleDefaults

	// Wire format
	Compression   = envelopepkg.Compression
	EnvelopeEntry = envelopepkg.Entry

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	// Typed errors
	ConnectionError       = errspkg.ConnectionError
	TransmissionError     = errspkg.TransmissionError
	MalformedPayloadError = errspkg.MalformedPayloadError
	SchemaMismatchError   = errspkg.SchemaMismatchError

	// Metrics
	PipelineMetrics = metricspkg.PipelineMetrics
	MetricsSnapshot = metricspkg.Snapshot

	// Modular transport types
	Transport             = transportpkg.Transport
	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities
)

var (
	NewProducer = pipelinepkg.NewProducer
	NewConsumer = pipelinepkg.NewConsumer

	WithPartitionKey = pipelinepkg.WithPartitionKey
	WithProperties   = pipelinepkg.WithProperties

	DevConfig               = configpkg.Dev
	ProdConfig              = configpkg.Prod
	DefaultProducerSettings = configpkg.DefaultProducerSettings
	ValidateConfig          = configpkg.ValidateConfig

	// Codec
	Encode       = codecpkg.Encode
	EncodeIndent = codecpkg.EncodeIndent
	Decode       = codecpkg.Decode

	// Sample data
	NewSampleMessage      = modelpkg.NewSampleMessage
	DefaultSampleDefaults = modelpkg.DefaultSampleDefaults

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NopLogger                 = loggingpkg.Nop

	NewMetadata = metadatapkg.New

	NewBatchID    = idspkg.NewBatchID
	NewJobID      = idspkg.NewJobID
	NewAnalysisID = idspkg.NewAnalysisID

	ParseCompression = envelopepkg.ParseCompression

	NewPipelineMetrics = metricspkg.New

	// Sentinel errors
	ErrAlreadyConnected     = errspkg.ErrAlreadyConnected
	ErrNotConnected         = errspkg.ErrNotConnected
	ErrProducerClosed       = errspkg.ErrProducerClosed
	ErrConsumerClosed       = errspkg.ErrConsumerClosed
	ErrBacklogFull          = errspkg.ErrBacklogFull
	ErrReceiveTimeout       = errspkg.ErrReceiveTimeout
	ErrTopicRequired        = errspkg.ErrTopicRequired
	ErrSubscriptionRequired = errspkg.ErrSubscriptionRequired
	ErrHandlerRequired      = errspkg.ErrHandlerRequired
	ErrConfigRequired       = errspkg.ErrConfigRequired
	ErrLoggerRequired       = errspkg.ErrLoggerRequired

	// Modular transport registry.
	// Import individual transports via: _ "github.com/drblury/riskwire/transport/kafka"
	DefaultTransportRegistry = transportpkg.DefaultRegistry
	RegisterTransport        = transportpkg.Register
	BuildTransport           = transportpkg.Build
	GetCapabilities          = transportpkg.GetCapabilities
)

// Backpressure policies for ProducerSettings.Backpressure.
const (
	BackpressureBlock  = configpkg.BackpressureBlock
	BackpressureReject = configpkg.BackpressureReject
)

// Compression algorithms for ProducerSettings.Compression.
const (
	CompressionNone = envelopepkg.CompressionNone
	CompressionLZ4  = envelopepkg.CompressionLZ4
	CompressionZstd = envelopepkg.CompressionZstd
)

// Consumer lifecycle states.
const (
	StateIdle       = pipelinepkg.StateIdle
	StateReceiving  = pipelinepkg.StateReceiving
	StateDelivering = pipelinepkg.StateDelivering
	StateTimedOut   = pipelinepkg.StateTimedOut
	StateFailed     = pipelinepkg.StateFailed
)

// Severity levels for InstrumentError.
const (
	SeverityWarning = modelpkg.SeverityWarning
	SeverityError   = modelpkg.SeverityError
)

// Metadata keys - use these constants for standard metadata fields.
const (
	MetadataKeyMessageType  = metadatapkg.KeyMessageType
	MetadataKeyJobID        = metadatapkg.KeyJobID
	MetadataKeyAnalysisID   = metadatapkg.KeyAnalysisID
	MetadataKeyTimestamp    = metadatapkg.KeyTimestamp
	MetadataKeyPartitionKey = metadatapkg.KeyPartitionKey
	MetadataKeyCompression  = metadatapkg.KeyCompression
	MetadataKeyBatchCount   = metadatapkg.KeyBatchCount

	MessageTypeFinancialAnalysis = metadatapkg.MessageTypeFinancialAnalysis
)
