package broker

import (
	"context"
	"net/http"
	"strconv"

	"github.com/mazotrader/orchestrator/internal/trading/domain"
)

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// GetAccount fetches the broker account snapshot.
func (c *Client) GetAccount(ctx context.Context) (domain.Account, error) {
	body, _, err := c.do(ctx, "get_account", http.MethodGet, c.tradingURL("/account"), nil)
	if err != nil {
		return domain.Account{}, err
	}
	var w wireAccount
	if err := decodeInto(body, &w); err != nil {
		return domain.Account{}, err
	}
	return domain.Account{
		Cash:              parseFloat(w.Cash),
		BuyingPower:       parseFloat(w.BuyingPower),
		Equity:            parseFloat(w.Equity),
		PortfolioValue:    parseFloat(w.PortfolioValue),
		PatternDayTrader:  w.PatternDayTrader,
		DaytradeCount:     w.DaytradeCount,
		ShortingEnabled:   w.ShortingEnabled,
		TradingBlocked:    w.TradingBlocked,
		Multiplier:        parseFloat(w.Multiplier),
		InitialMargin:     parseFloat(w.InitialMargin),
		MaintenanceMargin: parseFloat(w.MaintenanceMargin),
	}, nil
}

// CheckAuth satisfies telemetry.BrokerAuthChecker: a successful account
// fetch is proof of valid credentials.
func (c *Client) CheckAuth(ctx context.Context) error {
	_, err := c.GetAccount(ctx)
	return err
}

// BuyingPower satisfies telemetry.BrokerAuthChecker.
func (c *Client) BuyingPower(ctx context.Context) (float64, error) {
	acct, err := c.GetAccount(ctx)
	if err != nil {
		return 0, err
	}
	return acct.BuyingPower, nil
}

const pdtThreshold = 25_000.0

// PDTStatus is the result of check_pdt_status (§4.1).
type PDTStatus struct {
	IsPDT         bool
	DaytradeCount int
	Equity        float64
	CanDayTrade   bool
	Warning       string
	PDTThreshold  float64
}

// CheckPDTStatus evaluates the PDT gate: can_day_trade = equity >= 25_000
// OR (not pattern_day_trader AND daytrade_count <= 2). At exactly 2 day
// trades it allows but warns; at 3 or PDT-flagged under threshold it forbids.
func (c *Client) CheckPDTStatus(ctx context.Context) (PDTStatus, error) {
	acct, err := c.GetAccount(ctx)
	if err != nil {
		return PDTStatus{}, err
	}

	status := PDTStatus{
		IsPDT:         acct.PatternDayTrader,
		DaytradeCount: acct.DaytradeCount,
		Equity:        acct.Equity,
		PDTThreshold:  pdtThreshold,
	}

	if acct.Equity >= pdtThreshold {
		status.CanDayTrade = true
		return status, nil
	}

	status.CanDayTrade = !acct.PatternDayTrader && acct.DaytradeCount <= 2
	if acct.DaytradeCount == 2 && status.CanDayTrade {
		status.Warning = "2 day trades used; one more will trigger PDT restrictions"
	} else if !status.CanDayTrade {
		status.Warning = "day trading blocked: " + strconv.Itoa(acct.DaytradeCount) + " day trades on an account under $25,000"
	}
	return status, nil
}
