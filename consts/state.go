package consts

const (
	DefaultQuestion = "Should I buy this stock?"

	// AnalysisErrorPrefix starts every terminal message produced when the
	// loop fails instead of the model answering.
	AnalysisErrorPrefix = "An error occurred during analysis: "
)

// Indicator names as they appear in tool payloads.
const (
	IndicatorRSI        = "RSI"
	IndicatorStochastic = "Stochastic_Oscillator"
	IndicatorMACD       = "MACD"
	IndicatorMACDSignal = "MACD_Signal"
	IndicatorVWAP       = "VWAP"
)
