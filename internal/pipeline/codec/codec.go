// Package codec serializes the financial message tree to its wire form: UTF-8
// JSON with the original field names preserved, so payloads stay
// human-diffable. Decode(Encode(m)) == m for every well-formed message;
// numeric fields keep full float64 precision.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"

	errspkg "github.com/drblury/riskwire/internal/pipeline/errors"
	"github.com/drblury/riskwire/internal/pipeline/model"
)

var jsonConfig = sonic.ConfigStd

// Encode serializes a financial message to its wire payload.
func Encode(m *model.FinancialMessage) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("riskwire: cannot encode a nil message")
	}
	return jsonConfig.Marshal(m)
}

// EncodeIndent is Encode with indentation, for logs and fixtures.
func EncodeIndent(m *model.FinancialMessage) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("riskwire: cannot encode a nil message")
	}
	return jsonConfig.MarshalIndent(m, "", "  ")
}

// Decode parses a wire payload back into a financial message. Bytes that are
// not valid JSON yield a *MalformedPayloadError; structurally valid JSON that
// is missing mandatory identifiers or dates yields a *SchemaMismatchError.
// Mandatory fields are never silently defaulted.
func Decode(payload []byte) (*model.FinancialMessage, error) {
	var m model.FinancialMessage
	if err := jsonConfig.Unmarshal(payload, &m); err != nil {
		return nil, &errspkg.MalformedPayloadError{Err: err}
	}

	if missing := missingMandatoryFields(&m); len(missing) > 0 {
		return nil, &errspkg.SchemaMismatchError{Fields: missing}
	}

	normalizeNullContainers(&m)

	return &m, nil
}

// normalizeNullContainers maps explicit JSON nulls in the never-populated
// cash-flow and time-bucket slots back to nil, keeping the round-trip law
// intact: an encoded nil container is an explicit null on the wire, and both
// forms decode to nil.
func normalizeNullContainers(m *model.FinancialMessage) {
	for i := range m.Data {
		data := &m.Data[i]
		for _, raw := range []*json.RawMessage{
			&data.CashFlows, &data.TimeBucketMeasures,
			&data.AccountTimeBucketMeasures, &data.AccountCashFlows,
		} {
			if string(*raw) == "null" {
				*raw = nil
			}
		}
	}
}

func missingMandatoryFields(m *model.FinancialMessage) []string {
	var missing []string

	require := func(value, field string) {
		if value == "" {
			missing = append(missing, field)
		}
	}

	require(m.JobID, "jobidentifier")
	require(m.AnalysisID, "analysisidentifier")

	for i := range m.Data {
		ref := &m.Data[i].Reference
		prefix := fmt.Sprintf("data[%d].instrumentreference.", i)
		require(ref.AnalysisID, prefix+"analysisidentifier")
		require(ref.InstrumentID, prefix+"instrumentidentifier")
		require(ref.JobID, prefix+"jobidentifier")
		require(ref.AsOfDate, prefix+"asofdate")
		require(ref.OriginationDate, prefix+"originationdate")
		require(ref.MaturityDate, prefix+"maturitydate")
		require(ref.AmortizationEndDate, prefix+"amortizationenddate")

		for j := range m.Data[i].RiskMetrics {
			metric := &m.Data[i].RiskMetrics[j]
			prefix := fmt.Sprintf("data[%d].instrumentriskmetric[%d].", i, j)
			require(metric.InstrumentID, prefix+"instrumentidentifier")
			require(metric.ScenarioID, prefix+"scenarioidentifier")
			require(metric.AsOfDate, prefix+"asofdate")
		}

		for j := range m.Data[i].Errors {
			instErr := &m.Data[i].Errors[j]
			prefix := fmt.Sprintf("data[%d].instrumenterror[%d].", i, j)
			require(instErr.InstrumentID, prefix+"instrumentidentifier")
			require(instErr.JobID, prefix+"jobidentifier")
			require(instErr.AnalysisID, prefix+"analysisidentifier")
		}
	}

	return missing
}
