// Package watchlist implements the Watchlist Service (§4.5): a durable
// store of candidate trades with trigger evaluation and auto-enrichment
// from an external ranking. Grounded on the teacher's BaseRepository
// embed-and-extend pattern and the Performance package's scan-from-rows
// style, generalized from trade records to watchlist entries.
package watchlist

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mazotrader/orchestrator/internal/database/repositories"
	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

// Repository persists WatchlistItems to the durable store.
type Repository struct {
	*repositories.BaseRepository
}

// NewRepository wraps a state *sql.DB.
func NewRepository(stateDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{BaseRepository: repositories.NewBase(stateDB, log.With().Str("repo", "watchlist").Logger())}
}

// Migrate creates the watchlist_items table if absent.
func (r *Repository) Migrate() error {
	_, err := r.DB().Exec(`
		CREATE TABLE IF NOT EXISTS watchlist_items (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker            TEXT NOT NULL,
			entry_target      REAL,
			entry_condition   TEXT NOT NULL,
			stop_loss         REAL,
			take_profit       REAL,
			position_size_pct REAL NOT NULL,
			priority          INTEGER NOT NULL,
			status            TEXT NOT NULL,
			expires_at        TEXT NOT NULL,
			triggered_at      TEXT,
			triggered_price   REAL,
			strategy          TEXT,
			notes             TEXT,
			created_at        TEXT NOT NULL
		);
	`)
	return err
}

// Create inserts a new watching WatchlistItem and returns it with its ID.
func (r *Repository) Create(item domain.WatchlistItem) (domain.WatchlistItem, error) {
	res, err := r.DB().Exec(`
		INSERT INTO watchlist_items
		(ticker, entry_target, entry_condition, stop_loss, take_profit, position_size_pct,
		 priority, status, expires_at, triggered_at, triggered_price, strategy, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.Ticker, nullFloat64(item.EntryTarget), string(item.EntryCondition),
		nullFloat64(item.StopLoss), nullFloat64(item.TakeProfit), item.PositionSizePct,
		item.Priority, string(item.Status), item.ExpiresAt.Format(time.RFC3339),
		nullTime(item.TriggeredAt), nullFloat64(item.TriggeredPrice),
		nullString(item.Strategy), nullString(item.Notes), item.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return domain.WatchlistItem{}, fmt.Errorf("create watchlist item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.WatchlistItem{}, fmt.Errorf("read watchlist item id: %w", err)
	}
	item.ID = id
	return item, nil
}

// Update rewrites an existing WatchlistItem by ID.
func (r *Repository) Update(item domain.WatchlistItem) error {
	_, err := r.DB().Exec(`
		UPDATE watchlist_items SET
			entry_target = ?, entry_condition = ?, stop_loss = ?, take_profit = ?,
			position_size_pct = ?, priority = ?, status = ?, expires_at = ?,
			triggered_at = ?, triggered_price = ?, strategy = ?, notes = ?
		WHERE id = ?
	`,
		nullFloat64(item.EntryTarget), string(item.EntryCondition), nullFloat64(item.StopLoss),
		nullFloat64(item.TakeProfit), item.PositionSizePct, item.Priority, string(item.Status),
		item.ExpiresAt.Format(time.RFC3339), nullTime(item.TriggeredAt),
		nullFloat64(item.TriggeredPrice), nullString(item.Strategy), nullString(item.Notes), item.ID,
	)
	if err != nil {
		return fmt.Errorf("update watchlist item: %w", err)
	}
	return nil
}

// Remove deletes a WatchlistItem by ID.
func (r *Repository) Remove(id int64) error {
	_, err := r.DB().Exec(`DELETE FROM watchlist_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove watchlist item: %w", err)
	}
	return nil
}

// GetByID fetches a single WatchlistItem, or nil if absent.
func (r *Repository) GetByID(id int64) (*domain.WatchlistItem, error) {
	row := r.DB().QueryRow(`SELECT * FROM watchlist_items WHERE id = ?`, id)
	item, err := scanWatchlistItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get watchlist item by id: %w", err)
	}
	return &item, nil
}

// sortColumn maps the public sort_by vocabulary to a SQL column, rejecting
// anything else rather than interpolating an arbitrary caller string.
func sortColumn(sortBy string) string {
	switch sortBy {
	case "priority":
		return "priority DESC, created_at ASC"
	case "ticker":
		return "ticker ASC"
	case "created_at":
		return "created_at ASC"
	default:
		return "priority DESC, created_at ASC"
	}
}

// List returns items optionally filtered by status, ordered by sortBy.
func (r *Repository) List(status *domain.WatchlistStatus, sortBy string) ([]domain.WatchlistItem, error) {
	query := "SELECT * FROM watchlist_items"
	args := []interface{}{}
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY " + sortColumn(sortBy)

	rows, err := r.DB().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list watchlist items: %w", err)
	}
	defer rows.Close()
	return scanWatchlistItems(rows)
}

// ListWatching returns every item currently in the watching state, used by
// check_triggers.
func (r *Repository) ListWatching() ([]domain.WatchlistItem, error) {
	watching := domain.WatchlistWatching
	return r.List(&watching, "priority")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWatchlistItem(row rowScanner) (domain.WatchlistItem, error) {
	var item domain.WatchlistItem
	var entryCondition, status string
	var entryTarget, stopLoss, takeProfit, triggeredPrice sql.NullFloat64
	var expiresAtStr, createdAtStr string
	var triggeredAtStr, strategy, notes sql.NullString

	err := row.Scan(
		&item.ID, &item.Ticker, &entryTarget, &entryCondition, &stopLoss, &takeProfit,
		&item.PositionSizePct, &item.Priority, &status, &expiresAtStr, &triggeredAtStr,
		&triggeredPrice, &strategy, &notes, &createdAtStr,
	)
	if err != nil {
		return item, err
	}

	item.EntryCondition = domain.EntryCondition(entryCondition)
	item.Status = domain.WatchlistStatus(status)
	if t, err := time.Parse(time.RFC3339, expiresAtStr); err == nil {
		item.ExpiresAt = t
	}
	if t, err := time.Parse(time.RFC3339, createdAtStr); err == nil {
		item.CreatedAt = t
	}
	if triggeredAtStr.Valid {
		if t, err := time.Parse(time.RFC3339, triggeredAtStr.String); err == nil {
			item.TriggeredAt = &t
		}
	}
	if entryTarget.Valid {
		item.EntryTarget = &entryTarget.Float64
	}
	if stopLoss.Valid {
		item.StopLoss = &stopLoss.Float64
	}
	if takeProfit.Valid {
		item.TakeProfit = &takeProfit.Float64
	}
	if triggeredPrice.Valid {
		item.TriggeredPrice = &triggeredPrice.Float64
	}
	if strategy.Valid {
		item.Strategy = strategy.String
	}
	if notes.Valid {
		item.Notes = notes.String
	}

	return item, nil
}

func scanWatchlistItems(rows *sql.Rows) ([]domain.WatchlistItem, error) {
	var out []domain.WatchlistItem
	for rows.Next() {
		item, err := scanWatchlistItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan watchlist item: %w", err)
		}
		out = append(out, item)
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
