package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	idspkg "github.com/drblury/riskwire/internal/pipeline/ids"
)

const dateLayout = "2006-01-02"

// SampleDefaults parameterises the sample message generator. The zero value is
// not useful; start from DefaultSampleDefaults and override fields as needed.
type SampleDefaults struct {
	InstrumentType  string
	Currency        string
	DayCount        string
	PortfolioPrefix string
	Company         string
	DiscountCurve   string
	AccountSide     string

	ScenarioID  string
	ModelName   string
	ModelOutput string
	PD          float64
	LGD         float64
	RiskWeight  float64
}

// DefaultSampleDefaults returns the stock sample-data parameters.
func DefaultSampleDefaults() SampleDefaults {
	return SampleDefaults{
		InstrumentType:  "Fixed Rate Bond",
		Currency:        "USD",
		DayCount:        "30/360",
		PortfolioPrefix: "PORTFOLIO",
		Company:         "Sample Financial Corp",
		DiscountCurve:   "USD_GOVT",
		AccountSide:     "Asset",
		ScenarioID:      "Baseline",
		ModelName:       "Credit Risk Model v2.1",
		ModelOutput:     "PD_LGD_EAD",
		PD:              0.012,
		LGD:             0.45,
		RiskWeight:      1.0,
	}
}

// NewSampleMessage generates a complete, internally consistent financial
// message. Every call mints fresh job and analysis identifiers and returns an
// independent value; previously returned messages are never mutated. All
// dates derive from the supplied as-of instant so the tree satisfies
// origination < as-of < maturity.
func NewSampleMessage(asOf time.Time, defaults SampleDefaults) *FinancialMessage {
	jobID := idspkg.NewJobID()
	analysisID := idspkg.NewAnalysisID()

	ref := sampleReference(asOf, defaults, analysisID, jobID)

	dates := []string{
		asOf.Format(dateLayout),
		asOf.AddDate(0, 0, 365).Format(dateLayout),
	}
	metrics := sampleRiskMetrics(ref.InstrumentID, dates, defaults)
	errs := sampleErrors(analysisID, jobID, ref.InstrumentID, defaults)

	return &FinancialMessage{
		JobID:      jobID,
		AnalysisID: analysisID,
		Data: []InstrumentData{{
			Kind:        KindInstrument,
			Reference:   ref,
			RiskMetrics: metrics,
			Errors:      errs,
		}},
	}
}

func sampleReference(asOf time.Time, defaults SampleDefaults, analysisID, jobID string) InstrumentReference {
	maturity := asOf.AddDate(0, 0, 5*365).Format(dateLayout)

	return InstrumentReference{
		AnalysisID:   analysisID,
		InstrumentID: "Bond_" + uuid.NewString()[:8],
		AsOfDate:     asOf.Format(dateLayout),
		AccountID:    "TPS/CD/CP_AFS",

		Description:    "Corporate Bond Investment",
		InstrumentType: defaults.InstrumentType,

		OriginationDate:     asOf.AddDate(0, 0, -30).Format(dateLayout),
		MaturityDate:        maturity,
		AmortizationType:    "Constant installment",
		AmortizationEndDate: maturity,

		Currency:                 defaults.Currency,
		UnpaidPrincipalBalance:   "1000000",
		MarketPriceOverride:      "102.5",
		CurrentBookPriceOverride: "100",

		InterestRateType:         "Fixed",
		InterestPaymentFrequency: "Semi-Annual",
		CurrentRate:              0.0325,
		PortfolioID:              defaults.PortfolioPrefix + "_01",
		InterestRateIndex:        "10YT",
		LifetimeRateCap:          99.0,
		PeriodicRateCap:          99.0,

		DayCount: defaults.DayCount,

		Company:       defaults.Company,
		DiscountCurve: defaults.DiscountCurve,
		AccountSide:   defaults.AccountSide,
		JobID:         jobID,

		CashFlowOrder:           10000,
		CashFlowSource:          "API model",
		CashFlowModelName:       "Standard Cash Flow Model",
		PrepaymentOrder:         10000,
		PrepaymentSource:        "Statistical model",
		PrepaymentModelName:     "Standard Prepayment Model",
		PrepaymentScalingFactor: 1.0,
	}
}

func sampleRiskMetrics(instrumentID string, asOfDates []string, defaults SampleDefaults) []InstrumentRiskMetric {
	metrics := make([]InstrumentRiskMetric, 0, len(asOfDates))
	for _, date := range asOfDates {
		metrics = append(metrics, InstrumentRiskMetric{
			InstrumentID: instrumentID,
			ScenarioID:   defaults.ScenarioID,
			ModelName:    defaults.ModelName,
			ModelOutput:  defaults.ModelOutput,
			AsOfDate:     date,
			Term:         1.0,

			AnnualizedCumulativePD: opt(defaults.PD),
			ForwardPD:              opt(0.011),
			CumulativePD:           opt(defaults.PD),
			MarginalPD:             opt(0.001),

			LGD:                opt(defaults.LGD),
			LossRateAnnualized: opt(0.0054),
			LossRateCumulative: opt(0.0054),

			EAD:                   opt(1000000.0),
			ForwardPrepaymentRate: opt(0.15),
			Recovery:              opt(1 - defaults.LGD),

			AnnualizedPDOneYearProjection: opt(0.013),
			Stage1ConditionalPD:           opt(0.01),
			Stage2ConditionalPD:           opt(0.05),
			Stage3ConditionalPD:           opt(0.95),
			ImpliedStageRating:            opt("Investment Grade"),

			ECLAmount:                   opt(5400.0),
			ECLAmountLifetimeProjection: opt(27000.0),
			ECLAmountOneYearProjection:  opt(5400.0),

			Exposure:            opt(1000000.0),
			GrossInterestIncome: opt(32500.0),
			RiskWeightedAssets:  opt(1000000.0 * defaults.RiskWeight),

			Stage1Portion: opt(0.85),
			Stage2Portion: opt(0.12),
			Stage3Portion: opt(0.03),

			// Independent transition estimates, deliberately not a
			// row-stochastic matrix.
			TransitionStage1ToStage2: opt(0.05),
			TransitionStage1ToStage3: opt(0.002),
			TransitionStage2ToStage1: opt(0.15),
			TransitionStage2ToStage3: opt(0.08),
			TransitionStage3ToStage2: opt(0.1),

			BalanceGrowthRate: opt(0.02),
			EDFImpliedRating:  opt("BBB"),
		})
	}
	return metrics
}

func sampleErrors(analysisID, jobID, instrumentID string, defaults SampleDefaults) []InstrumentError {
	return []InstrumentError{{
		AnalysisID:   analysisID,
		JobID:        jobID,
		InstrumentID: instrumentID,
		Code:         1,
		Message:      fmt.Sprintf("Warning: High prepayment rate detected for instrument %s", instrumentID),
		ModuleCode:   101,
		Severity:     SeverityWarning,
		PortfolioID:  defaults.PortfolioPrefix + "_01",
	}}
}

func opt[T any](v T) *T { return &v }
