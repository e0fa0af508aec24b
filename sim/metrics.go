package sim

import "github.com/marketsim/mt5sim/market"

// Metrics are the aggregate risk figures for one account. Recomputed
// wholesale every tick from the RUNNING trades, never patched
// incrementally, so they cannot drift from the ledger.
type Metrics struct {
	Balance         float64 `json:"balance"`
	Equity          float64 `json:"equity"`
	Margin          float64 `json:"margin"`
	FreeMargin      float64 `json:"free_margin"`
	MarginLevel     float64 `json:"margin_level"`
	Profit          float64 `json:"profit"`
	TotalSwap       float64 `json:"total_swap"`
	TotalProfitLoss float64 `json:"total_profit_loss"`
}

// recomputeMetricsLocked rebuilds the aggregates from the ledger. Caller
// holds the account lock.
func (e *Engine) recomputeMetricsLocked(a *Account) {
	var margin, pnl, swap float64

	for _, t := range a.trades {
		if t.Status != StatusRunning {
			continue
		}
		t.MarginUsed = RequiredMargin(market.USDBase(t.Symbol), t.LotSize, t.CurrentPrice(), e.params.Leverage)
		margin += t.MarginUsed
		pnl += t.ProfitLoss
		swap += t.Swap
	}

	m := &a.metrics
	m.Margin = margin
	m.Equity = m.Balance + pnl
	m.FreeMargin = max(0, m.Equity-m.Margin)
	if m.Margin > 0 {
		m.MarginLevel = m.Equity / m.Margin * 100
	} else {
		m.MarginLevel = 0
	}
	m.Profit = pnl
	m.TotalSwap = swap
	m.TotalProfitLoss = pnl
}
