package consts

// Graph nodes
const (
	NodeAnalyze = "analyze"
	NodeTools   = "tools"
)

// Graph names
const (
	GraphStockAnalysis = "stock_analysis"
)

// Tool names exposed to the model
const (
	ToolGetStockPrices      = "get_stock_prices"
	ToolGetFinancialMetrics = "get_financial_metrics"
	ToolGetFinancialNews    = "get_financial_news"
	ToolGetPriceHistory     = "get_price_history"
)
