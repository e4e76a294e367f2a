package model

// InstrumentReference carries the static and contractual attributes of one
// instrument. Identifiers and dates are mandatory; everything else is
// independently optional. A reference is constructed once at
// message-generation time and never mutated after being placed into an
// InstrumentData. Dates are calendar dates in YYYY-MM-DD form, with
// maturity on or after origination.
type InstrumentReference struct {
	AnalysisID   string `json:"analysisidentifier"`
	InstrumentID string `json:"instrumentidentifier"`
	AsOfDate     string `json:"asofdate"`
	AccountID    string `json:"accountidentifier"`

	AccountName             *string `json:"accountname"`
	InstrumentName          *string `json:"instrumentname"`
	Description             string  `json:"description"`
	InstrumentType          string  `json:"instrumenttype"`
	InstrumentSubtype       *string `json:"instrumentsubtype"`
	ConsumerProductCategory *string `json:"consumerproductcategory"`

	OriginationDate     string `json:"originationdate"`
	MaturityDate        string `json:"maturitydate"`
	AmortizationType    string `json:"amortizationtype"`
	AmortizationEndDate string `json:"amortizationenddate"`

	IsInterestOnly *bool   `json:"isinterestonly"`
	CashFlowType   *string `json:"cashflowtype"`

	Currency                 string   `json:"instrumentcurrency"`
	NotionalPortion          *float64 `json:"notionalportion"`
	UnpaidPrincipalBalance   string   `json:"unpaidprincipalbalance"`
	CurrentCommitmentAmount  *float64 `json:"currentcommitmentamount"`
	MarketPriceOverride      string   `json:"marketpriceoverride"`
	FixedPaymentAmount       *float64 `json:"fixedpaymentamount"`
	CurrentBookPriceOverride string   `json:"currentbookpriceoverride"`

	InterestRateType         string   `json:"interestratetype"`
	InterestPaymentFrequency string   `json:"interestpaymentfrequency"`
	CureRate                 *float64 `json:"curerate"`
	FixedRate                *float64 `json:"fixedrate"`
	CurrentRate              float64  `json:"currentrate"`
	PortfolioID              string   `json:"portfolioidentifier"`
	InterestRateSpread       float64  `json:"interestratespread"`
	InterestRateIndexFactor  float64  `json:"interestrateindexmultiplier"`
	InterestRateIndex        string   `json:"interestrateindex"`
	LifetimeRateCap          float64  `json:"lifetimeinterestratecap"`
	LifetimeRateFloor        float64  `json:"lifetimeinterestratefloor"`
	PeriodicRateCap          float64  `json:"periodicinterestratecap"`
	PeriodicRateFloor        float64  `json:"periodicratefloor"`
	RateResetFirstDate       *string  `json:"interestrateresetfirstdate"`
	RateResetFrequency       *string  `json:"interestrateresetfrequency"`

	DayCount                     string   `json:"daycount"`
	OptionAdjustedSpreadOverride float64  `json:"optionadjustedspreadoverride"`
	Modified                     *string  `json:"modified"`
	ParMarketPrice               *float64 `json:"parmarketprice"`
	ServicingSpread              float64  `json:"servicingspread"`

	Company       string `json:"company"`
	DiscountCurve string `json:"discountcurve"`
	AccountSide   string `json:"accountside"`
	JobID         string `json:"jobidentifier"`

	CashFlowOrder           int     `json:"cashfloworder"`
	CashFlowSource          string  `json:"cashflowsource"`
	CashFlowModelName       string  `json:"cashflowmodelname"`
	PrepaymentOrder         int     `json:"prepaymentorder"`
	PrepaymentSource        string  `json:"prepaymentsource"`
	PrepaymentModelName     string  `json:"prepaymentmodelname"`
	PrepaymentShift         float64 `json:"prepaymentshift"`
	PrepaymentScalingFactor float64 `json:"prepaymentscalingfactor"`
}
