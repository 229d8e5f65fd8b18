package performance

import (
	"fmt"
	"time"
)

// DailySnapshot is the end-of-day rollup persisted once per calendar date
// (§4.8), taken at 16:05 ET after the close.
type DailySnapshot struct {
	Date            time.Time
	StartingEquity  float64
	EndingEquity    float64
	RealizedPnL     float64
	UnrealizedPnL   float64
	TotalPnL        float64
	ReturnPct       float64
	TradesCount     int
	WinningTrades   int
	LosingTrades    int
	BiggestWinner   *float64
	BiggestLoser    *float64
}

// BuildDailySnapshot computes the snapshot for date from the day's closed
// trades and the broker-reported equity bookends. It does not persist —
// callers check Repository.HasSnapshot first and call SaveSnapshot after,
// so the idempotence boundary stays in the repository, not here.
func BuildDailySnapshot(date time.Time, startingEquity, endingEquity, unrealizedPnl float64, closedToday []float64) DailySnapshot {
	s := DailySnapshot{
		Date:           date,
		StartingEquity: startingEquity,
		EndingEquity:   endingEquity,
		UnrealizedPnL:  unrealizedPnl,
		TradesCount:    len(closedToday),
	}

	for _, pnl := range closedToday {
		s.RealizedPnL += pnl
		if pnl > 0 {
			s.WinningTrades++
			if s.BiggestWinner == nil || pnl > *s.BiggestWinner {
				w := pnl
				s.BiggestWinner = &w
			}
		} else if pnl < 0 {
			s.LosingTrades++
			if s.BiggestLoser == nil || pnl < *s.BiggestLoser {
				l := pnl
				s.BiggestLoser = &l
			}
		}
	}

	s.TotalPnL = s.RealizedPnL + s.UnrealizedPnL
	if startingEquity != 0 {
		s.ReturnPct = s.TotalPnL / startingEquity * 100
	}
	return s
}

// String renders a one-line summary for log/alert output.
func (s DailySnapshot) String() string {
	return fmt.Sprintf("snapshot[%s] pnl=%.2f (%.2f%%) trades=%d w=%d l=%d",
		s.Date.Format("2006-01-02"), s.TotalPnL, s.ReturnPct, s.TradesCount, s.WinningTrades, s.LosingTrades)
}
