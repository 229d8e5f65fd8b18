package watchlist

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/mazotrader/orchestrator/internal/telemetry"
	"github.com/mazotrader/orchestrator/internal/trading/domain"
	"github.com/mazotrader/orchestrator/internal/trading/errors"
)

// PriceSource is the subset of the Price Provider the Watchlist Service
// needs: the bars to evaluate trigger conditions against.
type PriceSource interface {
	GetPrices(ctx context.Context, ticker string, start, end time.Time) ([]domain.PriceBar, error)
}

// breakoutLookbackDays is the trading-day window for the breakout
// condition, excluding the day being evaluated (§4.5).
const breakoutLookbackDays = 20

// RankedStock is one row of an external AI ranking (e.g. a Danelfin-style
// score feed) used by auto_enrich_from_ranking.
type RankedStock struct {
	Symbol string
	Sector string
	Score  float64
}

// Service implements the Watchlist Service operations (§4.5).
type Service struct {
	repo    *Repository
	prices  PriceSource
	alerter *telemetry.Alerter
	log     zerolog.Logger
}

// New builds a Service.
func New(repo *Repository, prices PriceSource, alerter *telemetry.Alerter, log zerolog.Logger) *Service {
	return &Service{repo: repo, prices: prices, alerter: alerter, log: log.With().Str("component", "watchlist").Logger()}
}

// AddItem creates a new watching entry.
func (s *Service) AddItem(item domain.WatchlistItem) (domain.WatchlistItem, error) {
	item.Status = domain.WatchlistWatching
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	if item.ExpiresAt.IsZero() {
		item.ExpiresAt = item.CreatedAt.AddDate(0, 0, 30)
	}
	return s.repo.Create(item)
}

// UpdateItem rewrites a watching entry's mutable fields. Status changes
// must go through the monotone CanTransitionTo gate, not this path.
func (s *Service) UpdateItem(item domain.WatchlistItem) error {
	existing, err := s.repo.GetByID(item.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return &errors.PreconditionFailed{Reason: fmt.Sprintf("watchlist item %d does not exist", item.ID)}
	}
	item.Status = existing.Status
	item.TriggeredAt = existing.TriggeredAt
	item.TriggeredPrice = existing.TriggeredPrice
	item.CreatedAt = existing.CreatedAt
	return s.repo.Update(item)
}

// RemoveItem deletes an entry outright.
func (s *Service) RemoveItem(id int64) error {
	return s.repo.Remove(id)
}

// GetWatchlist returns items, optionally filtered by status and sorted.
func (s *Service) GetWatchlist(status *domain.WatchlistStatus, sortBy string) ([]domain.WatchlistItem, error) {
	return s.repo.List(status, sortBy)
}

// CheckTriggers evaluates every watching item's trigger condition and
// expiration, persisting any status change, and returns the items that
// fired this pass.
func (s *Service) CheckTriggers(ctx context.Context) ([]domain.WatchlistItem, error) {
	watching, err := s.repo.ListWatching()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var triggered []domain.WatchlistItem

	for _, item := range watching {
		if item.ExpiresAt.Before(now) {
			if !item.CanTransitionTo(domain.WatchlistExpired) {
				continue
			}
			item.Status = domain.WatchlistExpired
			if err := s.repo.Update(item); err != nil {
				s.log.Warn().Err(err).Int64("id", item.ID).Msg("failed to expire watchlist item")
			}
			continue
		}

		fired, latestClose, err := s.evaluateCondition(ctx, item)
		if err != nil {
			s.log.Warn().Err(err).Str("ticker", item.Ticker).Msg("failed to evaluate watchlist trigger")
			continue
		}
		if !fired {
			continue
		}

		item.Status = domain.WatchlistTriggered
		item.TriggeredAt = &now
		item.TriggeredPrice = &latestClose
		if err := s.repo.Update(item); err != nil {
			s.log.Warn().Err(err).Int64("id", item.ID).Msg("failed to mark watchlist item triggered")
			continue
		}
		triggered = append(triggered, item)
	}

	return triggered, nil
}

// evaluateCondition applies the below/above/breakout trigger semantics
// (§4.5) against the most recent available bars for item.Ticker.
func (s *Service) evaluateCondition(ctx context.Context, item domain.WatchlistItem) (fired bool, latestClose float64, err error) {
	end := time.Now()
	start := end.AddDate(0, 0, -(breakoutLookbackDays + 10))

	bars, err := s.prices.GetPrices(ctx, item.Ticker, start, end)
	if err != nil {
		return false, 0, err
	}
	if len(bars) == 0 {
		return false, 0, nil
	}

	latest := bars[len(bars)-1]
	latestClose = latest.Close

	switch item.EntryCondition {
	case domain.EntryBelow:
		if item.EntryTarget == nil {
			return false, latestClose, nil
		}
		return latestClose <= *item.EntryTarget, latestClose, nil
	case domain.EntryAbove:
		if item.EntryTarget == nil {
			return false, latestClose, nil
		}
		return latestClose >= *item.EntryTarget, latestClose, nil
	case domain.EntryBreakout:
		history := bars[:len(bars)-1]
		if len(history) > breakoutLookbackDays {
			history = history[len(history)-breakoutLookbackDays:]
		}
		if len(history) == 0 {
			return false, latestClose, nil
		}
		maxHigh := history[0].High
		for _, b := range history[1:] {
			if b.High > maxHigh {
				maxHigh = b.High
			}
		}
		return latestClose > maxHigh, latestClose, nil
	default:
		return false, latestClose, nil
	}
}

// AnalyzeResult is one watching item's latest close and its distance from
// the entry target, as returned by AnalyzeWatchlist.
type AnalyzeResult struct {
	Ticker        string
	EntryCondition domain.EntryCondition
	LatestClose   float64
	EntryTarget   *float64
	DistancePct   *float64
}

// AnalyzeWatchlist evaluates every watching item without mutating status,
// reporting how far each is from its trigger.
func (s *Service) AnalyzeWatchlist(ctx context.Context) ([]AnalyzeResult, error) {
	watching, err := s.repo.ListWatching()
	if err != nil {
		return nil, err
	}

	var out []AnalyzeResult
	for _, item := range watching {
		_, latestClose, err := s.evaluateCondition(ctx, item)
		if err != nil || latestClose == 0 {
			continue
		}
		r := AnalyzeResult{Ticker: item.Ticker, EntryCondition: item.EntryCondition, LatestClose: latestClose, EntryTarget: item.EntryTarget}
		if item.EntryTarget != nil && *item.EntryTarget != 0 {
			d := (latestClose - *item.EntryTarget) / *item.EntryTarget * 100
			r.DistancePct = &d
		}
		out = append(out, r)
	}
	return out, nil
}

// AutoEnrichFromRanking adds watchlist items for the top external-AI-ranked
// stocks not already present. Ranking resolved per §9 Open Questions: rank
// by score descending, tie-break by symbol ascending, cap per sector.
func (s *Service) AutoEnrichFromRanking(ranked []RankedStock, minScore float64, stocksPerSector, maxTotal int) ([]domain.WatchlistItem, error) {
	existing, err := s.repo.List(nil, "ticker")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(existing))
	for _, item := range existing {
		seen[item.Ticker] = true
	}

	filtered := make([]RankedStock, 0, len(ranked))
	for _, r := range ranked {
		if r.Score >= minScore && !seen[r.Symbol] {
			filtered = append(filtered, r)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Score != filtered[j].Score {
			return filtered[i].Score > filtered[j].Score
		}
		return filtered[i].Symbol < filtered[j].Symbol
	})

	sectorCount := make(map[string]int)
	var added []domain.WatchlistItem
	now := time.Now()

	for _, r := range filtered {
		if len(added) >= maxTotal {
			break
		}
		if sectorCount[r.Sector] >= stocksPerSector {
			continue
		}

		item, err := s.repo.Create(domain.WatchlistItem{
			Ticker:          r.Symbol,
			EntryCondition:  domain.EntryBreakout,
			PositionSizePct: 0.05,
			Priority:        5,
			Status:          domain.WatchlistWatching,
			ExpiresAt:       now.AddDate(0, 0, 30),
			Strategy:        "auto_enrich",
			Notes:           fmt.Sprintf("auto-enriched from ranking, score=%.2f", r.Score),
			CreatedAt:       now,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("ticker", r.Symbol).Msg("failed to auto-enrich watchlist item")
			continue
		}
		sectorCount[r.Sector]++
		added = append(added, item)
	}

	return added, nil
}

// Summary is the get_summary rollup.
type Summary struct {
	TotalWatching   int
	TotalTriggered  int
	TotalExpired    int
	TotalCancelled  int
	ByPriority      map[int]int
}

// GetSummary counts watchlist items by status and priority.
func (s *Service) GetSummary() (Summary, error) {
	items, err := s.repo.List(nil, "created_at")
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{ByPriority: make(map[int]int)}
	for _, item := range items {
		switch item.Status {
		case domain.WatchlistWatching:
			sum.TotalWatching++
			sum.ByPriority[item.Priority]++
		case domain.WatchlistTriggered:
			sum.TotalTriggered++
		case domain.WatchlistExpired:
			sum.TotalExpired++
		case domain.WatchlistCancelled:
			sum.TotalCancelled++
		}
	}
	return sum, nil
}
