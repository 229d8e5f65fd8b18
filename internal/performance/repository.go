package performance

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mazotrader/orchestrator/internal/database/repositories"
	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

// Repository persists TradeRecords and DailySnapshots to the ledger store,
// embedding the teacher's BaseRepository pattern.
type Repository struct {
	*repositories.BaseRepository
}

// NewRepository wraps a ledger *sql.DB.
func NewRepository(ledgerDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{BaseRepository: repositories.NewBase(ledgerDB, log.With().Str("repo", "trade_history").Logger())}
}

// Migrate creates the trade_records and daily_snapshots tables if absent.
func (r *Repository) Migrate() error {
	_, err := r.DB().Exec(`
		CREATE TABLE IF NOT EXISTS trade_records (
			id                    TEXT PRIMARY KEY,
			ticker                TEXT NOT NULL,
			action                TEXT NOT NULL,
			quantity              REAL NOT NULL,
			entry_price           REAL NOT NULL,
			exit_price            REAL,
			entry_time            TEXT NOT NULL,
			exit_time             TEXT,
			strategy              TEXT,
			status                TEXT NOT NULL,
			realized_pnl          REAL,
			return_pct            REAL,
			holding_period_hours  REAL,
			fractionable          INTEGER NOT NULL DEFAULT 0,
			notes                 TEXT
		);
		CREATE TABLE IF NOT EXISTS daily_snapshots (
			snapshot_date   TEXT PRIMARY KEY,
			starting_equity REAL NOT NULL,
			ending_equity   REAL NOT NULL,
			realized_pnl    REAL NOT NULL,
			unrealized_pnl  REAL NOT NULL,
			total_pnl       REAL NOT NULL,
			return_pct      REAL NOT NULL,
			trades_count    INTEGER NOT NULL,
			winning_trades  INTEGER NOT NULL,
			losing_trades   INTEGER NOT NULL,
			biggest_winner  REAL,
			biggest_loser   REAL
		);
		CREATE TABLE IF NOT EXISTS decision_contexts (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			workflow_id         TEXT NOT NULL,
			ticker              TEXT NOT NULL,
			signal              TEXT NOT NULL,
			research_summary    TEXT,
			research_confidence REAL,
			agent_signals       TEXT,
			consensus_for       INTEGER NOT NULL DEFAULT 0,
			consensus_against   INTEGER NOT NULL DEFAULT 0,
			pm_action           TEXT NOT NULL,
			pm_quantity         REAL NOT NULL,
			pm_stop_loss_pct    REAL,
			pm_take_profit_pct  REAL,
			pm_reasoning        TEXT,
			portfolio_snapshot  TEXT,
			created_at          TEXT NOT NULL,
			actual_return       REAL,
			was_profitable      INTEGER
		);
	`)
	return err
}

// SaveDecisionContext persists one decision's full audit trail (§3, §4.3,
// §6) — Signal, AgentSignals, and PortfolioSnapshot are stored as JSON
// since none of them are queried relationally, only read back whole.
func (r *Repository) SaveDecisionContext(dc domain.DecisionContext) error {
	signalJSON, err := json.Marshal(dc.Signal)
	if err != nil {
		return fmt.Errorf("marshal decision context signal: %w", err)
	}
	agentSignalsJSON, err := json.Marshal(dc.AgentSignals)
	if err != nil {
		return fmt.Errorf("marshal decision context agent signals: %w", err)
	}
	portfolioJSON, err := json.Marshal(dc.PortfolioSnapshot)
	if err != nil {
		return fmt.Errorf("marshal decision context portfolio snapshot: %w", err)
	}

	_, err = r.DB().Exec(`
		INSERT INTO decision_contexts
		(workflow_id, ticker, signal, research_summary, research_confidence, agent_signals,
		 consensus_for, consensus_against, pm_action, pm_quantity, pm_stop_loss_pct,
		 pm_take_profit_pct, pm_reasoning, portfolio_snapshot, created_at, actual_return, was_profitable)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		dc.WorkflowID, dc.Signal.Ticker, string(signalJSON), nullString(dc.ResearchSummary), dc.ResearchConfidence,
		string(agentSignalsJSON), dc.ConsensusFor, dc.ConsensusAgainst, string(dc.PMAction), dc.PMQuantity,
		nullFloat64(dc.PMStopLossPct), nullFloat64(dc.PMTakeProfitPct), nullString(dc.PMReasoning),
		string(portfolioJSON), dc.CreatedAt.Format(time.RFC3339), nullFloat64(dc.ActualReturn), nullBool(dc.WasProfitable),
	)
	if err != nil {
		return fmt.Errorf("save decision context: %w", err)
	}
	return nil
}

// Create inserts a new pending TradeRecord.
func (r *Repository) Create(tr domain.TradeRecord) error {
	_, err := r.DB().Exec(`
		INSERT INTO trade_records
		(id, ticker, action, quantity, entry_price, exit_price, entry_time, exit_time,
		 strategy, status, realized_pnl, return_pct, holding_period_hours, fractionable, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tr.ID, tr.Ticker, string(tr.Action), tr.Quantity, tr.EntryPrice,
		nullFloat64(tr.ExitPrice), tr.EntryTime.Format(time.RFC3339), nullTime(tr.ExitTime),
		nullString(tr.Strategy), string(tr.Status), nullFloat64(tr.RealizedPnL),
		nullFloat64(tr.ReturnPct), nullFloat64(tr.HoldingPeriodHours), boolToInt(tr.Fractionable), nullString(tr.Notes),
	)
	if err != nil {
		return fmt.Errorf("create trade record: %w", err)
	}
	return nil
}

// Update rewrites an existing TradeRecord by ID (used on fill/close).
func (r *Repository) Update(tr domain.TradeRecord) error {
	_, err := r.DB().Exec(`
		UPDATE trade_records SET
			quantity = ?, entry_price = ?,
			exit_price = ?, exit_time = ?, status = ?, realized_pnl = ?,
			return_pct = ?, holding_period_hours = ?, notes = ?
		WHERE id = ?
	`,
		tr.Quantity, tr.EntryPrice,
		nullFloat64(tr.ExitPrice), nullTime(tr.ExitTime), string(tr.Status),
		nullFloat64(tr.RealizedPnL), nullFloat64(tr.ReturnPct), nullFloat64(tr.HoldingPeriodHours),
		nullString(tr.Notes), tr.ID,
	)
	if err != nil {
		return fmt.Errorf("update trade record: %w", err)
	}
	return nil
}

// GetByID fetches a single TradeRecord, or nil if absent.
func (r *Repository) GetByID(id string) (*domain.TradeRecord, error) {
	row := r.DB().QueryRow(`SELECT * FROM trade_records WHERE id = ?`, id)
	tr, err := scanTradeRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trade record by id: %w", err)
	}
	return &tr, nil
}

// ListByTicker returns every TradeRecord for ticker, most recent first.
func (r *Repository) ListByTicker(ticker string, limit int) ([]domain.TradeRecord, error) {
	rows, err := r.DB().Query(`
		SELECT * FROM trade_records WHERE ticker = ? ORDER BY entry_time DESC LIMIT ?
	`, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("list trade records by ticker: %w", err)
	}
	defer rows.Close()
	return scanTradeRecords(rows)
}

// ListClosedSince returns closed trades with exit_time >= since, for metrics.
func (r *Repository) ListClosedSince(since time.Time) ([]domain.TradeRecord, error) {
	rows, err := r.DB().Query(`
		SELECT * FROM trade_records WHERE status = ? AND exit_time >= ? ORDER BY exit_time ASC
	`, string(domain.TradeStatusClosed), since.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("list closed trade records: %w", err)
	}
	defer rows.Close()
	return scanTradeRecords(rows)
}

// ListPending returns trade records still awaiting a fill, oldest first —
// the candidate set `sync-orders` reconciles against the broker.
func (r *Repository) ListPending(since time.Time) ([]domain.TradeRecord, error) {
	rows, err := r.DB().Query(`
		SELECT * FROM trade_records WHERE status = ? AND entry_time >= ? ORDER BY entry_time ASC
	`, string(domain.TradeStatusPending), since.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("list pending trade records: %w", err)
	}
	defer rows.Close()
	return scanTradeRecords(rows)
}

// HasSnapshot reports whether a daily snapshot already exists for date
// (idempotence per §8).
func (r *Repository) HasSnapshot(date time.Time) (bool, error) {
	var count int
	err := r.DB().QueryRow(`SELECT COUNT(*) FROM daily_snapshots WHERE snapshot_date = ?`,
		date.Format("2006-01-02")).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check daily snapshot existence: %w", err)
	}
	return count > 0, nil
}

// ListSnapshotsSince returns every DailySnapshot from since onward,
// ordered oldest first — the equity/return curve Sharpe and max drawdown
// reporting (§4.8) are computed over.
func (r *Repository) ListSnapshotsSince(since time.Time) ([]DailySnapshot, error) {
	rows, err := r.DB().Query(`
		SELECT snapshot_date, starting_equity, ending_equity, realized_pnl, unrealized_pnl,
		       total_pnl, return_pct, trades_count, winning_trades, losing_trades, biggest_winner, biggest_loser
		FROM daily_snapshots WHERE snapshot_date >= ? ORDER BY snapshot_date ASC
	`, since.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("list daily snapshots: %w", err)
	}
	defer rows.Close()

	var out []DailySnapshot
	for rows.Next() {
		var s DailySnapshot
		var dateStr string
		var biggestWinner, biggestLoser sql.NullFloat64
		if err := rows.Scan(&dateStr, &s.StartingEquity, &s.EndingEquity, &s.RealizedPnL, &s.UnrealizedPnL,
			&s.TotalPnL, &s.ReturnPct, &s.TradesCount, &s.WinningTrades, &s.LosingTrades, &biggestWinner, &biggestLoser); err != nil {
			return nil, fmt.Errorf("scan daily snapshot: %w", err)
		}
		s.Date, err = time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, fmt.Errorf("parse daily snapshot date: %w", err)
		}
		if biggestWinner.Valid {
			s.BiggestWinner = &biggestWinner.Float64
		}
		if biggestLoser.Valid {
			s.BiggestLoser = &biggestLoser.Float64
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveSnapshot writes or replaces a DailySnapshot for its date.
func (r *Repository) SaveSnapshot(s DailySnapshot) error {
	_, err := r.DB().Exec(`
		INSERT OR REPLACE INTO daily_snapshots
		(snapshot_date, starting_equity, ending_equity, realized_pnl, unrealized_pnl,
		 total_pnl, return_pct, trades_count, winning_trades, losing_trades, biggest_winner, biggest_loser)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.Date.Format("2006-01-02"), s.StartingEquity, s.EndingEquity, s.RealizedPnL,
		s.UnrealizedPnL, s.TotalPnL, s.ReturnPct, s.TradesCount, s.WinningTrades, s.LosingTrades,
		nullFloat64(s.BiggestWinner), nullFloat64(s.BiggestLoser),
	)
	if err != nil {
		return fmt.Errorf("save daily snapshot: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTradeRecord(row rowScanner) (domain.TradeRecord, error) {
	var tr domain.TradeRecord
	var action, status string
	var exitPrice, realizedPnl, returnPct, holdingHours sql.NullFloat64
	var entryTimeStr string
	var exitTimeStr, strategy, notes sql.NullString
	var fractionable int

	err := row.Scan(
		&tr.ID, &tr.Ticker, &action, &tr.Quantity, &tr.EntryPrice, &exitPrice,
		&entryTimeStr, &exitTimeStr, &strategy, &status, &realizedPnl, &returnPct,
		&holdingHours, &fractionable, &notes,
	)
	if err != nil {
		return tr, err
	}

	tr.Action = domain.TradeAction(action)
	tr.Status = domain.TradeStatus(status)
	tr.Fractionable = fractionable != 0
	if t, err := time.Parse(time.RFC3339, entryTimeStr); err == nil {
		tr.EntryTime = t
	}
	if exitTimeStr.Valid {
		if t, err := time.Parse(time.RFC3339, exitTimeStr.String); err == nil {
			tr.ExitTime = &t
		}
	}
	if strategy.Valid {
		tr.Strategy = strategy.String
	}
	if notes.Valid {
		tr.Notes = notes.String
	}
	if exitPrice.Valid {
		tr.ExitPrice = &exitPrice.Float64
	}
	if realizedPnl.Valid {
		tr.RealizedPnL = &realizedPnl.Float64
	}
	if returnPct.Valid {
		tr.ReturnPct = &returnPct.Float64
	}
	if holdingHours.Valid {
		tr.HoldingPeriodHours = &holdingHours.Float64
	}

	return tr, nil
}

func scanTradeRecords(rows *sql.Rows) ([]domain.TradeRecord, error) {
	var out []domain.TradeRecord
	for rows.Next() {
		tr, err := scanTradeRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade record: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat64(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullBool(b *bool) sql.NullInt64 {
	if b == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(boolToInt(*b)), Valid: true}
}
