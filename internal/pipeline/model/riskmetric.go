package model

// InstrumentRiskMetric is one point-in-time risk assessment for an instrument
// under a scenario, keyed conceptually by (instrument, scenario, as-of date).
// Duplicate keys are permitted and simply appear as separate entries. Stage
// transition probabilities are independent estimates in [0,1]; rows are not
// required to sum to 1 and no row-stochastic invariant is enforced.
type InstrumentRiskMetric struct {
	AnalysisID      *string `json:"analysisidentifier"`
	ReportingDate   *string `json:"reportingdate"`
	InputScenarioID *string `json:"inputscenarioidentifier"`
	InstrumentID    string  `json:"instrumentidentifier"`
	ScenarioID      string  `json:"scenarioidentifier"`
	ModelName       string  `json:"modelname"`
	ModelOutput     string  `json:"modeloutput"`
	AsOfDate        string  `json:"asofdate"`
	Term            float64 `json:"term"`
	TimeSegment     *string `json:"timesegment"`

	AnnualizedCumulativePD *float64 `json:"annualizedcumulativepd"`
	ForwardPD              *float64 `json:"forwardpd"`
	CumulativePD           *float64 `json:"cumulativepd"`
	MarginalPD             *float64 `json:"marginalpd"`
	MaturityRiskPD         *float64 `json:"maturityriskpd"`
	MaturityRiskEL         *float64 `json:"maturityriskel"`

	LGD                *float64 `json:"lgd"`
	MaturityRiskLGD    *float64 `json:"maturityrisklgd"`
	LossRateAnnualized *float64 `json:"lossrateannualized"`
	LossRateCumulative *float64 `json:"lossratecumulative"`

	EAD *float64 `json:"ead"`
	CCF *float64 `json:"ccf"`
	UGD *float64 `json:"ugd"`

	PrepaymentRate           *float64 `json:"prepaymentrate"`
	ForwardPrepaymentRate    *float64 `json:"forwardprepaymentrate"`
	CumulativePrepaymentRate *float64 `json:"cumulativeprepaymentrate"`

	Recovery     *float64 `json:"recovery"`
	NetChargeOff *float64 `json:"netchargeoff"`

	AnnualizedPDOneYearProjection *float64 `json:"annualizedpdoneyearprojection"`
	Stage1ConditionalPD           *float64 `json:"stage1conditionalannualizedcumulativepd"`
	Stage2ConditionalPD           *float64 `json:"stage2conditionalannualizedcumulativepd"`
	Stage3ConditionalPD           *float64 `json:"stage3conditionalannualizedcumulativepd"`
	ImpliedStageRating            *string  `json:"impliedstagerating"`

	NetChargeOffAmount *float64 `json:"netchargeoffamount"`
	CollateralValue    *float64 `json:"collateralvalue"`

	ECLAmount                   *float64 `json:"expectedcreditlossamount"`
	ECLAmountLifetimeProjection *float64 `json:"expectedcreditlossamountlifetimeprojection"`
	ECLAmountOneYearProjection  *float64 `json:"expectedcreditlossamountoneyearprojection"`

	Exposure             *float64 `json:"exposure"`
	GrossInterestIncome  *float64 `json:"grossinterestincome"`
	TotalInterestExpense *float64 `json:"totalinterestexpense"`
	RiskWeightedAssets   *float64 `json:"riskweightedassets"`

	Stage1Portion *float64 `json:"stage1portion"`
	Stage2Portion *float64 `json:"stage2portion"`
	Stage3Portion *float64 `json:"stage3portion"`

	TransitionStage1ToStage2 *float64 `json:"transitionprobabilityfromstage1tostage2"`
	TransitionStage1ToStage3 *float64 `json:"transitionprobabilityfromstage1tostage3"`
	TransitionStage2ToStage1 *float64 `json:"transitionprobabilityfromstage2tostage1"`
	TransitionStage2ToStage3 *float64 `json:"transitionprobabilityfromstage2tostage3"`
	TransitionStage3ToStage2 *float64 `json:"transitionprobabilityfromstage3tostage2"`

	BalanceGrowthRate   *float64 `json:"balancegrowthrate"`
	LGDVariance         *float64 `json:"lgdvariance"`
	TransactionSequence *int     `json:"transactionsequence"`

	CreditOTTI      *float64 `json:"creditotherthantemporaryimpairment"`
	NonCreditOTTI   *float64 `json:"noncreditotherthantemporaryimpairment"`
	TemporaryImp    *float64 `json:"temporaryimpairment"`
	OtherCompIncome *float64 `json:"othercomprehensiveincome"`
	OTTIProbability *float64 `json:"otherthantemporaryimpairmentprobability"`

	JobID     *string  `json:"jobidentifier"`
	ValueDate *string  `json:"valuedate"`
	DecayRate *float64 `json:"decayrate"`

	RateResponseRate           *float64 `json:"rateresponserate"`
	UsageRate                  *float64 `json:"usagerate"`
	LiquidityHaircut           *float64 `json:"liquidityhaircut"`
	SingleMonthlyMortalityRate *float64 `json:"singlemonthlymortalityrate"`
	EDFImpliedRating           *string  `json:"edfimpliedrating"`

	OptionARMMinimumPaymentPortion       *float64 `json:"optionarmminimumpaymentportion"`
	OptionARMInterestOnlyPortion         *float64 `json:"optionarminterestonlyportion"`
	OptionARMPrincipalAndInterestPortion *float64 `json:"optionarmprincipalandinterestportion"`

	ForbearancePortion *float64 `json:"forbearanceportion"`
	ForwardDecayRate   *float64 `json:"forwarddecayrate"`
}
