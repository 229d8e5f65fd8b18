// Package domain holds the value records shared across the trading core:
// price bars, signals, orders, positions, trade history, and the durable
// watchlist/scheduler records. All entities are value records unless noted;
// times are UTC.
package domain

import "time"

// Direction is a trading signal's bias.
type Direction string

const (
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
	DirectionNeutral Direction = "NEUTRAL"
)

// Strength is a trading signal's conviction bucket.
type Strength string

const (
	StrengthStrong   Strength = "STRONG"
	StrengthModerate Strength = "MODERATE"
	StrengthWeak     Strength = "WEAK"
)

// OrderSide is the broker order side.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the broker order type.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStop      OrderType = "stop"
	OrderTypeStopLimit OrderType = "stop_limit"
	OrderTypeTrailStop OrderType = "trailing_stop"
)

// TimeInForce mirrors the broker's time-in-force enum.
type TimeInForce string

const (
	TIFDay TimeInForce = "day"
	TIFGTC TimeInForce = "gtc"
	TIFIOC TimeInForce = "ioc"
	TIFFOK TimeInForce = "fok"
	TIFOPG TimeInForce = "opg"
	TIFCLS TimeInForce = "cls"
)

// OrderStatus mirrors the broker's order lifecycle states.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "new"
	OrderStatusAccepted        OrderStatus = "accepted"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCanceled        OrderStatus = "canceled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusExpired         OrderStatus = "expired"
	OrderStatusPendingCancel   OrderStatus = "pending_cancel"
)

// PositionSide is long or short.
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// TradeAction is the PM's chosen verb for a decision.
type TradeAction string

const (
	ActionBuy  TradeAction = "buy"
	ActionSell TradeAction = "sell"
	ActionShort TradeAction = "short"
	ActionCover TradeAction = "cover"
	ActionHold TradeAction = "hold"
)

// TradeStatus is the TradeRecord lifecycle state.
type TradeStatus string

const (
	TradeStatusPending TradeStatus = "pending"
	TradeStatusFilled  TradeStatus = "filled"
	TradeStatusClosed  TradeStatus = "closed"
)

// EntryCondition is a WatchlistItem trigger kind.
type EntryCondition string

const (
	EntryAbove    EntryCondition = "above"
	EntryBelow    EntryCondition = "below"
	EntryBreakout EntryCondition = "breakout"
)

// WatchlistStatus is the WatchlistItem lifecycle state. Transitions are
// monotone: watching -> {triggered, expired, cancelled}, never back.
type WatchlistStatus string

const (
	WatchlistWatching  WatchlistStatus = "watching"
	WatchlistTriggered WatchlistStatus = "triggered"
	WatchlistExpired   WatchlistStatus = "expired"
	WatchlistCancelled WatchlistStatus = "cancelled"
)

// PriceBar is one OHLCV bar. Immutable once produced.
type PriceBar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// AssetInfo is the broker's per-symbol tradability metadata. Cached
// in-process; fractionable implies MinTradeIncrement <= 1.
type AssetInfo struct {
	Symbol            string
	Name              string
	Exchange          string
	AssetClass        string
	Tradable          bool
	Fractionable      bool
	Shortable         bool
	Marginable        bool
	MinOrderSize      float64
	MinTradeIncrement float64
	PriceIncrement    float64
}

// TradingSignal is produced pure-functionally by a strategy from a
// PriceBar window. Strategies never mutate shared state.
type TradingSignal struct {
	Ticker           string
	Strategy         string
	Direction        Direction
	Strength         Strength
	Confidence       float64
	EntryPrice       float64
	StopLoss         float64
	TakeProfit       float64
	PositionSizePct  float64
	Reasoning        string
	Timestamp        time.Time
	Fractionable     bool
}

// Order is created by the Broker Gateway and updated only by refresh from
// the broker.
type Order struct {
	ID             string
	ClientOrderID  string
	Symbol         string
	Side           OrderSide
	Type           OrderType
	Qty            float64
	FilledQty      float64
	FilledAvgPrice float64
	Status         OrderStatus
	TimeInForce    TimeInForce
	LimitPrice     *float64
	StopPrice      *float64
	SubmittedAt    time.Time
	FilledAt       *time.Time
}

// Position is a broker-authoritative, locally read-only snapshot.
type Position struct {
	Symbol           string
	Qty              float64
	Side             PositionSide
	AvgEntryPrice    float64
	CurrentPrice     float64
	MarketValue      float64
	CostBasis        float64
	UnrealizedPL     float64
	UnrealizedPLPct  float64
	ChangeToday      float64
}

// Account is the broker account snapshot.
type Account struct {
	Cash                float64
	BuyingPower         float64
	Equity              float64
	PortfolioValue      float64
	PatternDayTrader    bool
	DaytradeCount       int
	ShortingEnabled     bool
	TradingBlocked      bool
	Multiplier          float64
	InitialMargin       float64
	MaintenanceMargin   float64
}

// TradeRecord is the trade-history lifecycle record. Derived fields
// (RealizedPnL, ReturnPct, HoldingPeriodHours) are computed exactly once,
// at close, by FIFO reconciliation.
type TradeRecord struct {
	ID                  string
	Ticker              string
	Action              TradeAction
	Quantity            float64
	EntryPrice          float64
	ExitPrice           *float64
	EntryTime           time.Time
	ExitTime            *time.Time
	Strategy            string
	Status              TradeStatus
	RealizedPnL         *float64
	ReturnPct           *float64
	HoldingPeriodHours  *float64
	Fractionable        bool
	Notes               string
}

// DecisionContext is the full bundle captured at decision time. Immutable
// once written; closed-trade reconciliation writes ActualReturn/WasProfitable.
type DecisionContext struct {
	WorkflowID         string
	Signal             TradingSignal
	ResearchSummary    string
	ResearchConfidence float64
	AgentSignals       map[string]string
	ConsensusFor       int
	ConsensusAgainst   int
	PMAction           TradeAction
	PMQuantity         float64
	PMStopLossPct      *float64
	PMTakeProfitPct    *float64
	PMReasoning        string
	PortfolioSnapshot  map[string]float64
	CreatedAt          time.Time
	ActualReturn       *float64
	WasProfitable      *bool
}

// WatchlistItem is a durable candidate trade.
type WatchlistItem struct {
	ID              int64
	Ticker          string
	EntryTarget     *float64
	EntryCondition  EntryCondition
	StopLoss        *float64
	TakeProfit      *float64
	PositionSizePct float64
	Priority        int
	Status          WatchlistStatus
	ExpiresAt       time.Time
	TriggeredAt     *time.Time
	TriggeredPrice  *float64
	Strategy        string
	Notes           string
	CreatedAt       time.Time
}

// CanTransitionTo enforces the monotone status progression.
func (w WatchlistItem) CanTransitionTo(next WatchlistStatus) bool {
	if w.Status != WatchlistWatching {
		return false
	}
	switch next {
	case WatchlistTriggered, WatchlistExpired, WatchlistCancelled:
		return true
	default:
		return false
	}
}

// ScheduledTask describes a scheduler job registration. No package stores
// or reads it: the Scheduler keeps its job registry in memory only.
type ScheduledTask struct {
	ID             string
	Name           string
	TaskType       string
	CronSchedule   string
	IntervalMinutes int
	NextRun        *time.Time
	LastRun        *time.Time
	RunCount       int
	SuccessCount   int
	FailureCount   int
	IsEnabled      bool
	MaxRetries     int
	Parameters     map[string]string
}

// CallEvent is a single outbound-call telemetry record, stored in a
// bounded ring buffer.
type CallEvent struct {
	APIName            string
	CallType           string
	Timestamp          time.Time
	Success            bool
	LatencyMs          float64
	RateLimitRemaining *int
}

// CycleState is the Trading Cycle Pipeline's state machine.
type CycleState string

const (
	CycleIdle        CycleState = "Idle"
	CycleScreening   CycleState = "Screening"
	CycleResearching CycleState = "Researching"
	CycleAnalyzing   CycleState = "Analyzing"
	CycleDeciding    CycleState = "Deciding"
	CycleExecuting   CycleState = "Executing"
	CycleCompleted   CycleState = "Completed"
	CycleErrored     CycleState = "Errored"
	CycleCancelled   CycleState = "Cancelled"
)

// CycleResult is returned by run_trading_cycle and emitted as a
// trading_cycle_complete workflow event.
type CycleResult struct {
	WorkflowID       string
	State            CycleState
	TickersScreened  int
	SignalsFound     int
	MazoValidated    int
	TradesAnalyzed   int
	TradesExecuted   int
	DurationMs       int64
	StageErrors      map[string][]string
	StartedAt        time.Time
	CompletedAt      time.Time
}
