// Package model holds the financial analysis message tree carried over the
// broker. All entities are value objects: ownership is strictly tree-shaped
// (message owns instrument data owns reference, risk metrics, and errors) and
// nothing holds a reference back to its container.
//
// Optional fields are pointers. The wire format (JSON) cannot distinguish an
// absent field from an explicit null, so both decode to nil — that ambiguity
// is the documented convention for every optional slot in this package.
package model

import "encoding/json"

// FinancialMessage is the root unit of transmission. JobID and AnalysisID are
// set once at construction and never mutated; every nested record carrying a
// job or analysis identifier matches the parent message's values.
type FinancialMessage struct {
	JobID      string           `json:"jobidentifier"`
	AnalysisID string           `json:"analysisidentifier"`
	Data       []InstrumentData `json:"data"`
}

// InstrumentKind discriminates the variants of an InstrumentData entry.
// Only KindInstrument exists today; the tag is kept open for future variants.
type InstrumentKind string

const KindInstrument InstrumentKind = "instrument"

// InstrumentData bundles one instrument's full analytic output. The cash-flow
// and time-bucket slots are present in the schema but never populated by this
// system; they are kept as raw JSON so the wire shape survives a round trip.
type InstrumentData struct {
	Kind        InstrumentKind         `json:"type"`
	Reference   InstrumentReference    `json:"instrumentreference"`
	RiskMetrics []InstrumentRiskMetric `json:"instrumentriskmetric"`

	CashFlows          json.RawMessage `json:"instrumentcashflow"`
	TimeBucketMeasures json.RawMessage `json:"instrumenttimebucketmeasures"`

	Errors []InstrumentError `json:"instrumenterror"`

	AccountTimeBucketMeasures json.RawMessage `json:"accounttimebucketmeasures"`
	AccountCashFlows          json.RawMessage `json:"accountcashflow"`
}

// Severity classifies an InstrumentError. Errors are informational payload;
// they never abort message construction.
type Severity string

const (
	SeverityWarning Severity = "Warning"
	SeverityError   Severity = "Error"
)

// InstrumentError is a non-fatal warning or fatal error raised during an
// instrument's analysis.
type InstrumentError struct {
	AnalysisID   string   `json:"analysisidentifier"`
	JobID        string   `json:"jobidentifier"`
	InstrumentID string   `json:"instrumentidentifier"`
	Code         int      `json:"errorcode"`
	Message      string   `json:"errormessage"`
	ModuleCode   int      `json:"modulecode"`
	AsOfDate     *string  `json:"asofdate"`
	ScenarioID   *string  `json:"scenarioidentifier"`
	Severity     Severity `json:"severity"`
	PortfolioID  string   `json:"portfolioidentifier"`
}
