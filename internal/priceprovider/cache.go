package priceprovider

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

const dateLayout = "2006-01-02"

// Cache is a write-through, per-symbol SQLite price bar store: one .db
// file per ticker under dir, mirroring the teacher's one-file-per-symbol
// layout.
type Cache struct {
	dir string
	log zerolog.Logger
}

// NewCache opens (creating if absent) the cache directory at dir.
func NewCache(dir string, log zerolog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create price cache dir: %w", err)
	}
	return &Cache{dir: dir, log: log.With().Str("component", "price_cache").Logger()}, nil
}

// Get returns cached bars for symbol within [start, end], ascending by date.
func (c *Cache) Get(symbol string, start, end time.Time) ([]domain.PriceBar, error) {
	db, err := c.open(symbol)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT date, open, high, low, close, volume
		FROM price_bars
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC
	`, start.Format(dateLayout), end.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("query price_bars: %w", err)
	}
	defer rows.Close()

	var bars []domain.PriceBar
	for rows.Next() {
		var dateStr string
		var b domain.PriceBar
		if err := rows.Scan(&dateStr, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan price_bar: %w", err)
		}
		b.Date, err = time.Parse(dateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("parse price_bar date: %w", err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Store upserts bars for symbol.
func (c *Cache) Store(symbol string, bars []domain.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}
	db, err := c.open(symbol)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin price cache tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO price_bars (date, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare price cache insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.Exec(b.Date.Format(dateLayout), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("insert price_bar for %s on %s: %w", symbol, b.Date.Format(dateLayout), err)
		}
	}

	return tx.Commit()
}

func (c *Cache) open(symbol string) (*sql.DB, error) {
	dbSymbol := strings.ReplaceAll(symbol, ".", "_")
	dbPath := filepath.Join(c.dir, dbSymbol+".db")

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open price cache for %s: %w", symbol, err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS price_bars (
			date   TEXT PRIMARY KEY,
			open   REAL NOT NULL,
			high   REAL NOT NULL,
			low    REAL NOT NULL,
			close  REAL NOT NULL,
			volume INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate price cache for %s: %w", symbol, err)
	}

	return db, nil
}
