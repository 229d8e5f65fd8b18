package broker

// Wire-format structs mirror the Alpaca REST API exactly: numeric fields
// travel as JSON strings (§6), decoded on the way in.

type wireAccount struct {
	Cash                string `json:"cash"`
	BuyingPower         string `json:"buying_power"`
	Equity              string `json:"equity"`
	PortfolioValue      string `json:"portfolio_value"`
	PatternDayTrader    bool   `json:"pattern_day_trader"`
	DaytradeCount       int    `json:"daytrade_count"`
	ShortingEnabled     bool   `json:"shorting_enabled"`
	TradingBlocked      bool   `json:"trading_blocked"`
	Multiplier          string `json:"multiplier"`
	InitialMargin       string `json:"initial_margin"`
	MaintenanceMargin   string `json:"maintenance_margin"`
}

type wirePosition struct {
	Symbol         string `json:"symbol"`
	Qty            string `json:"qty"`
	Side           string `json:"side"`
	AvgEntryPrice  string `json:"avg_entry_price"`
	CurrentPrice   string `json:"current_price"`
	MarketValue    string `json:"market_value"`
	CostBasis      string `json:"cost_basis"`
	UnrealizedPL   string `json:"unrealized_pl"`
	UnrealizedPLPC string `json:"unrealized_plpc"`
	ChangeToday    string `json:"change_today"`
}

type wireOrderRequest struct {
	Symbol        string  `json:"symbol"`
	Qty           string  `json:"qty"`
	Side          string  `json:"side"`
	Type          string  `json:"type"`
	TimeInForce   string  `json:"time_in_force"`
	LimitPrice    *string `json:"limit_price,omitempty"`
	StopPrice     *string `json:"stop_price,omitempty"`
	ClientOrderID string  `json:"client_order_id,omitempty"`
}

type wireOrder struct {
	ID             string  `json:"id"`
	ClientOrderID  string  `json:"client_order_id"`
	Symbol         string  `json:"symbol"`
	Side           string  `json:"side"`
	Type           string  `json:"type"`
	Qty            string  `json:"qty"`
	FilledQty      string  `json:"filled_qty"`
	FilledAvgPrice *string `json:"filled_avg_price"`
	Status         string  `json:"status"`
	TimeInForce    string  `json:"time_in_force"`
	LimitPrice     *string `json:"limit_price"`
	StopPrice      *string `json:"stop_price"`
	SubmittedAt    string  `json:"submitted_at"`
	FilledAt       *string `json:"filled_at"`
}

type wireAsset struct {
	Symbol            string `json:"symbol"`
	Name              string `json:"name"`
	Exchange          string `json:"exchange"`
	Class             string `json:"class"`
	Tradable          bool   `json:"tradable"`
	Fractionable      bool   `json:"fractionable"`
	Shortable         bool   `json:"shortable"`
	Marginable        bool   `json:"marginable"`
	MinOrderSize      string `json:"min_order_size"`
	MinTradeIncrement string `json:"min_trade_increment"`
	PriceIncrement    string `json:"price_increment"`
}

type wireQuote struct {
	Quote struct {
		BidPrice string `json:"bp"`
		AskPrice string `json:"ap"`
	} `json:"quote"`
}

type wireTrade struct {
	Trade struct {
		Price string `json:"p"`
	} `json:"trade"`
}

type wireClock struct {
	IsOpen bool `json:"is_open"`
}

// wireBar mirrors one Alpaca market-data bar. Unlike the trading-API
// wire types above, bars travel as JSON numbers, not strings.
type wireBar struct {
	Timestamp string  `json:"t"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
}

type wireBarsResponse struct {
	Bars          []wireBar `json:"bars"`
	NextPageToken string    `json:"next_page_token"`
}
