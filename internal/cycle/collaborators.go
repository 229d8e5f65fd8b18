// Package cycle implements the Trading Cycle Pipeline (§4.3): the single
// run_trading_cycle state machine composing Strategy Engine, the Research
// and Decision Collaborators (external), Risk & Sizing, Broker Gateway, and
// Trade History. Grounded on the teacher's allocation/optimization
// services for the stage-sequencing shape and on
// abdoElHodaky-tradSys/internal/architecture/fx/workerpool for the bounded
// ants/v2 fan-out pattern: an ants pool joined by a WaitGroup (no fx DI here).
package cycle

import (
	"context"
	"time"

	"github.com/mazotrader/orchestrator/internal/broker"
	"github.com/mazotrader/orchestrator/internal/risk"
	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

// PriceSource is the subset of the Price Provider Screening needs.
type PriceSource interface {
	GetPrices(ctx context.Context, ticker string, start, end time.Time) ([]domain.PriceBar, error)
}

// BrokerGateway is the subset of the broker Client the cycle drives
// directly (account/portfolio reads and order execution).
type BrokerGateway interface {
	SyncPortfolio(ctx context.Context) (broker.PortfolioSnapshot, error)
	CheckPDTStatus(ctx context.Context) (broker.PDTStatus, error)
	IsFractionable(ctx context.Context, symbol string) (bool, error)
	ExecuteDecision(ctx context.Context, d broker.DecisionInput) (broker.OrderResult, error)
}

// ResearchDepth selects how much the Research Collaborator should dig.
type ResearchDepth string

const (
	ResearchQuick    ResearchDepth = "quick"
	ResearchStandard ResearchDepth = "standard"
	ResearchDeep     ResearchDepth = "deep"
)

// ResearchResult is the Research Collaborator's answer (§6). Degrades to a
// zero-value (Success=false) on timeout/failure; the cycle treats that as
// sentiment=unknown without aborting.
type ResearchResult struct {
	Success    bool
	Answer     string
	Confidence float64
	Sources    []string
	Error      string
}

// Researcher is the external Research Collaborator contract.
type Researcher interface {
	Research(ctx context.Context, query string, depth ResearchDepth) (ResearchResult, error)
}

// Decision is the Decision Collaborator's verdict on one signal (§6).
type Decision struct {
	Action         domain.TradeAction
	Quantity       float64
	Confidence     float64
	StopLossPct    *float64
	TakeProfitPct  *float64
	Reasoning      string
}

// Decider is the external Decision Collaborator contract.
type Decider interface {
	Decide(ctx context.Context, signal domain.TradingSignal, researchSummary string, portfolio broker.PortfolioSnapshot) (Decision, error)
}

// TradeHistory is the subset of Performance & Trade History the cycle
// writes to when a decision is reached. RecordDecision captures the full
// DecisionContext for every approved decision, live or dry-run;
// RecordSubmission/RecordFill additionally track the TradeRecord lifecycle
// once an order is actually submitted to the broker.
type TradeHistory interface {
	RecordDecision(ctx context.Context, dc domain.DecisionContext) error
	RecordSubmission(ctx context.Context, order domain.Order, action domain.TradeAction, strategy string, fractionable bool) (domain.TradeRecord, error)
	RecordFill(ctx context.Context, tr domain.TradeRecord, order domain.Order) (domain.TradeRecord, error)
}

// Watchlist is the subset of the Watchlist Service the cycle reads from
// when building the default ticker universe.
type Watchlist interface {
	GetWatchlist(status *domain.WatchlistStatus, sortBy string) ([]domain.WatchlistItem, error)
}

// StrategyEngine is the subset of the Strategy Engine the cycle drives.
type StrategyEngine interface {
	ScanUniverse(universe map[string][]domain.PriceBar, strategies []string, minConfidence float64) map[string][]domain.TradingSignal
}

// Sizer is the subset of Risk & Sizing the Execution stage needs.
type Sizer interface {
	ComputeSize(signal domain.TradingSignal, account domain.Account, fractionable bool) (risk.SizeResult, error)
	CheckCooldown(ticker string, now time.Time) error
	RecordTrade(ticker string, now time.Time)
}
