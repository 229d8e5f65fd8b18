package performance

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mazotrader/orchestrator/internal/database/repositories"
)

// AgentPerformance is the per-strategy rollup §2/§6 call "Agent
// Performance" — there is no multi-agent voting layer in this engine
// (§9), so "agent" here is the strategy that produced the signal.
type AgentPerformance struct {
	Strategy      string
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	TotalPnL      float64
	AvgReturnPct  float64
	WinRate       float64
	UpdatedAt     time.Time
}

// AgentPerformanceStore is the durable store for Agent Performance (§6),
// kept in state.db alongside Watchlist and Scheduler Heartbeats.
type AgentPerformanceStore interface {
	RecordTradeClose(strategy string, realizedPnL, returnPct float64) error
	GetAgentPerformance(strategy string) (AgentPerformance, bool, error)
	ListAgentPerformance() ([]AgentPerformance, error)
}

// AgentPerformanceRepository persists per-strategy trade outcomes to
// state.db, embedding the teacher's BaseRepository pattern like
// scheduler.HeartbeatRepository and watchlist.Repository.
type AgentPerformanceRepository struct {
	*repositories.BaseRepository
}

// NewAgentPerformanceRepository wraps a state *sql.DB.
func NewAgentPerformanceRepository(stateDB *sql.DB, log zerolog.Logger) *AgentPerformanceRepository {
	return &AgentPerformanceRepository{BaseRepository: repositories.NewBase(stateDB, log.With().Str("repo", "agent_performance").Logger())}
}

// Migrate creates the agent_performance table if absent.
func (r *AgentPerformanceRepository) Migrate() error {
	_, err := r.DB().Exec(`
		CREATE TABLE IF NOT EXISTS agent_performance (
			strategy       TEXT PRIMARY KEY,
			total_trades   INTEGER NOT NULL DEFAULT 0,
			winning_trades INTEGER NOT NULL DEFAULT 0,
			losing_trades  INTEGER NOT NULL DEFAULT 0,
			total_pnl      REAL NOT NULL DEFAULT 0,
			sum_return_pct REAL NOT NULL DEFAULT 0,
			updated_at     TEXT NOT NULL
		);
	`)
	return err
}

// RecordTradeClose folds one closed trade's outcome into strategy's
// running rollup, creating the row on first close. Called from
// Tracker.closeFromMatches so every reconciled close updates Agent
// Performance exactly once, independent of the Trade History write.
func (r *AgentPerformanceRepository) RecordTradeClose(strategy string, realizedPnL, returnPct float64) error {
	if strategy == "" {
		return nil
	}

	win, lose := 0, 0
	if realizedPnL > 0 {
		win = 1
	} else if realizedPnL < 0 {
		lose = 1
	}

	_, err := r.DB().Exec(`
		INSERT INTO agent_performance (strategy, total_trades, winning_trades, losing_trades, total_pnl, sum_return_pct, updated_at)
		VALUES (?, 1, ?, ?, ?, ?, ?)
		ON CONFLICT(strategy) DO UPDATE SET
			total_trades   = total_trades + 1,
			winning_trades = winning_trades + excluded.winning_trades,
			losing_trades  = losing_trades + excluded.losing_trades,
			total_pnl      = total_pnl + excluded.total_pnl,
			sum_return_pct = sum_return_pct + excluded.sum_return_pct,
			updated_at     = excluded.updated_at
	`, strategy, win, lose, realizedPnL, returnPct, time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record agent performance close: %w", err)
	}
	return nil
}

// GetAgentPerformance reads strategy's current rollup.
func (r *AgentPerformanceRepository) GetAgentPerformance(strategy string) (AgentPerformance, bool, error) {
	row := r.DB().QueryRow(`
		SELECT strategy, total_trades, winning_trades, losing_trades, total_pnl, sum_return_pct, updated_at
		FROM agent_performance WHERE strategy = ?
	`, strategy)
	ap, ok, err := scanAgentPerformance(row)
	if err != nil {
		return AgentPerformance{}, false, fmt.Errorf("get agent performance: %w", err)
	}
	return ap, ok, nil
}

// ListAgentPerformance returns every tracked strategy's rollup, ordered
// by total P&L descending.
func (r *AgentPerformanceRepository) ListAgentPerformance() ([]AgentPerformance, error) {
	rows, err := r.DB().Query(`
		SELECT strategy, total_trades, winning_trades, losing_trades, total_pnl, sum_return_pct, updated_at
		FROM agent_performance ORDER BY total_pnl DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list agent performance: %w", err)
	}
	defer rows.Close()

	var out []AgentPerformance
	for rows.Next() {
		ap, ok, err := scanAgentPerformance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent performance: %w", err)
		}
		if ok {
			out = append(out, ap)
		}
	}
	return out, rows.Err()
}

func scanAgentPerformance(row rowScanner) (AgentPerformance, bool, error) {
	var ap AgentPerformance
	var updatedAt string
	var sumReturnPct float64
	err := row.Scan(&ap.Strategy, &ap.TotalTrades, &ap.WinningTrades, &ap.LosingTrades, &ap.TotalPnL, &sumReturnPct, &updatedAt)
	if err == sql.ErrNoRows {
		return AgentPerformance{}, false, nil
	}
	if err != nil {
		return AgentPerformance{}, false, err
	}
	if ap.TotalTrades > 0 {
		ap.WinRate = float64(ap.WinningTrades) / float64(ap.TotalTrades) * 100
		ap.AvgReturnPct = sumReturnPct / float64(ap.TotalTrades)
	}
	ap.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return AgentPerformance{}, false, err
	}
	return ap, true, nil
}
