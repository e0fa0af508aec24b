package sim

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketsim/mt5sim/market"
	"github.com/marketsim/mt5sim/notify"
	"github.com/marketsim/mt5sim/observability"
	"github.com/marketsim/mt5sim/pkg/id"
)

// Params are the account-currency trading constants shared by all accounts.
type Params struct {
	Leverage       float64
	SwapRateBuy    float64
	SwapRateSell   float64
	CommissionRate float64

	// Clock is injectable for tests; defaults to time.Now in UTC. The engine
	// works in absolute instants only; timezone formatting is an
	// external-interface concern.
	Clock func() time.Time
}

// Engine drives the per-account tick: price advance, P&L, target crossing
// with exact back-interpolation, lifecycle transitions, wholesale metrics
// recompute and write-through persistence.
type Engine struct {
	prices   PriceSource
	notifier notify.Notifier
	params   Params
	log      zerolog.Logger
}

func NewEngine(prices PriceSource, notifier notify.Notifier, params Params) *Engine {
	if params.Clock == nil {
		params.Clock = func() time.Time { return time.Now().UTC() }
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Engine{
		prices:   prices,
		notifier: notifier,
		params:   params,
		log:      observability.NewLogger("engine"),
	}
}

// TickUpdate is the per-trade payload attached to price_update events.
type TickUpdate struct {
	Symbol       string     `json:"symbol"`
	Bid          float64    `json:"bid"`
	Ask          float64    `json:"ask"`
	Profit       float64    `json:"profit"`
	Direction    Direction  `json:"direction"`
	Status       Status     `json:"status"`
	TargetKind   TargetKind `json:"target_type"`
	TargetAmount float64    `json:"target_amount"`
	Metrics      Metrics    `json:"account_metrics"`
}

type closedEvent struct {
	trade  Trade
	reason string
}

// Tick advances every RUNNING trade of the account by one step. Per-trade
// failures are isolated: a persistence error retains the trade for the next
// snapshot sweep and the loop continues.
func (e *Engine) Tick(a *Account) {
	a.mu.Lock()

	now := e.params.Clock()
	var closed []closedEvent
	var liveIDs []string

	for _, t := range a.trades {
		if t.Status != StatusRunning {
			// Closed earlier but not yet persisted; the sweep owns it.
			continue
		}

		cfg, ok := a.instruments[t.Symbol]
		if !ok || disabled(cfg, t.Direction) {
			// Force-close at the current price: no further price movement.
			t.close(StatusStopped, now)
			a.metrics.Balance += t.ProfitLoss
			closed = append(closed, closedEvent{trade: *t, reason: "disabled"})
			continue
		}

		prevPnl := t.ProfitLoss

		bid := e.prices.Next(t.CurrentBid, cfg, t.TargetPrice, t.BiasFactor, t.Direction, t.TargetKind)
		t.CurrentBid = bid
		t.CurrentAsk = bid + cfg.Spread

		rate := e.params.SwapRateSell
		if t.Direction == Buy {
			rate = e.params.SwapRateBuy
		}
		t.Swap = SwapAmount(rate, t.LotSize, t.StartTime, now)

		usd := market.USDBase(t.Symbol)
		t.ProfitLoss = PnLAtPrice(t.Direction, usd, t.EntryPrice, t.CurrentPrice(), t.LotSize, t.Commission, t.Swap)

		reason, crossed := crossedTarget(t.TargetKind, t.TargetAmount, prevPnl, t.ProfitLoss)
		if !crossed {
			liveIDs = append(liveIDs, t.ID)
			continue
		}

		// Clamp to the exact target and back-solve the price that reproduces
		// it, preserving the spread. No overshoot: the account is credited
		// the exact target amount.
		if t.TargetKind == TargetProfit {
			t.ProfitLoss = t.TargetAmount
		} else {
			t.ProfitLoss = -t.TargetAmount
		}
		price := PriceForPnL(t.Direction, usd, t.EntryPrice, t.LotSize, t.Commission, t.Swap, t.ProfitLoss)
		if t.Direction == Buy {
			t.CurrentBid = price
			t.CurrentAsk = price + cfg.Spread
		} else {
			t.CurrentAsk = price
			t.CurrentBid = price - cfg.Spread
		}

		t.close(StatusCompleted, now)
		a.metrics.Balance += t.ProfitLoss
		closed = append(closed, closedEvent{trade: *t, reason: reason})
	}

	e.recomputeMetricsLocked(a)
	metrics := a.metrics

	// Write-through before the trade may leave the ledger.
	for _, c := range closed {
		e.persistClosedLocked(a, c.trade.ID)
	}

	var ticks []notify.Event
	for _, tid := range liveIDs {
		t, ok := a.trades[tid]
		if !ok {
			continue
		}
		evt := notify.NewEvent(notify.EventPriceUpdate, a.name)
		evt.TradeID = t.ID
		evt.Data = TickUpdate{
			Symbol:       t.Symbol,
			Bid:          t.CurrentBid,
			Ask:          t.CurrentAsk,
			Profit:       t.ProfitLoss,
			Direction:    t.Direction,
			Status:       t.Status,
			TargetKind:   t.TargetKind,
			TargetAmount: t.TargetAmount,
			Metrics:      metrics,
		}
		ticks = append(ticks, evt)
	}

	a.mu.Unlock()

	// Events go out after the lock is released so a slow notifier cannot
	// stall the account.
	for _, c := range closed {
		e.publishLifecycle(a.name, c)
	}
	for _, evt := range ticks {
		e.notifier.Publish(evt)
	}
}

// crossedTarget is edge-triggered: it compares against the previous tick's
// P&L so a trade closes on the tick where it transitions past the boundary,
// not merely while beyond it.
func crossedTarget(kind TargetKind, amount, prevPnl, newPnl float64) (string, bool) {
	switch kind {
	case TargetProfit:
		if prevPnl < amount && amount <= newPnl {
			return "target_profit_reached", true
		}
	case TargetLoss:
		if prevPnl > -amount && -amount >= newPnl {
			return "target_loss_reached", true
		}
	}
	return "", false
}

func (e *Engine) publishLifecycle(account string, c closedEvent) {
	typ := notify.EventTradeCompleted
	if c.trade.Status == StatusStopped {
		typ = notify.EventTradeStopped
	}
	evt := notify.NewEvent(typ, account)
	evt.TradeID = c.trade.ID
	evt.Reason = c.reason
	evt.Data = c.trade
	e.notifier.Publish(evt)
}

// StartTradeRequest carries the optional overrides for trade admission.
// Unset fields fall back to the instrument's configured defaults.
type StartTradeRequest struct {
	Direction        Direction
	LotSize          *float64
	TargetKind       *TargetKind
	TargetAmount     *float64
	StartingBuyPrice *float64 // BUY trades only: custom entry
}

// StartTrade validates and admits a new RUNNING trade into the ledger.
func (e *Engine) StartTrade(a *Account, symbol string, req StartTradeRequest) (Trade, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cfg, ok := a.instruments[symbol]
	if !ok {
		return Trade{}, ErrInstrumentNotFound
	}
	if disabled(cfg, req.Direction) {
		return Trade{}, fmt.Errorf("%w: %s %s", ErrInstrumentDisabled, req.Direction, symbol)
	}

	lot := cfg.SellLotSize
	if req.Direction == Buy {
		lot = cfg.BuyLotSize
	}
	if req.LotSize != nil {
		lot = *req.LotSize
	}

	var entry, bid, ask float64
	if req.StartingBuyPrice != nil && req.Direction == Buy {
		entry = *req.StartingBuyPrice
		bid = entry
		ask = entry + cfg.Spread
	} else {
		if req.Direction == Buy {
			entry = cfg.SellStartingPrice
		} else {
			entry = cfg.BuyStartingPrice
		}
		bid = cfg.BuyStartingPrice
		ask = cfg.SellStartingPrice
	}

	kind := TargetLoss
	if cfg.DefaultTargetProfit > 0 {
		kind = TargetProfit
	}
	if req.TargetKind != nil {
		kind = *req.TargetKind
	}
	amount := cfg.DefaultTargetLoss
	if kind == TargetProfit {
		amount = cfg.DefaultTargetProfit
	}
	if req.TargetAmount != nil {
		amount = *req.TargetAmount
	}
	if amount <= 0 {
		return Trade{}, ErrInvalidTarget
	}

	usd := market.USDBase(symbol)
	targetPrice := TargetPrice(req.Direction, kind, usd, entry, lot, amount)

	e.recomputeMetricsLocked(a)
	required := RequiredMargin(usd, lot, entry, e.params.Leverage)
	if a.metrics.FreeMargin < required {
		return Trade{}, fmt.Errorf("%w: need %.2f, free %.2f", ErrInsufficientMargin, required, a.metrics.FreeMargin)
	}

	now := e.params.Clock()
	tradeID, err := e.newTradeIDLocked(a, now)
	if err != nil {
		return Trade{}, err
	}

	t := &Trade{
		ID:           tradeID,
		Symbol:       symbol,
		Direction:    req.Direction,
		EntryPrice:   entry,
		CurrentBid:   bid,
		CurrentAsk:   ask,
		StartTime:    now,
		Status:       StatusRunning,
		TargetPrice:  targetPrice,
		TargetKind:   kind,
		TargetAmount: amount,
		LotSize:      lot,
		Commission:   lot * e.params.CommissionRate * contractSize,
	}
	a.trades[tradeID] = t
	e.recomputeMetricsLocked(a)

	e.log.Info().Str("account", a.name).Str("trade_id", tradeID).
		Str("symbol", symbol).Str("direction", string(req.Direction)).
		Float64("lot", lot).Msg("trade started")

	return *t, nil
}

// newTradeIDLocked draws 10-digit IDs until one is unused in both the ledger
// and the store, falling back to a timestamp tail.
func (e *Engine) newTradeIDLocked(a *Account, now time.Time) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		candidate := id.NewTrade()
		if _, taken := a.trades[candidate]; taken {
			continue
		}
		exists, err := a.store.Exists(candidate)
		if err != nil {
			return "", fmt.Errorf("check trade id: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return id.FallbackTrade(now), nil
}

// CloseTrade forces immediate settlement at the current price, following the
// same transition/persist path as a natural closure.
func (e *Engine) CloseTrade(a *Account, tradeID string) (Trade, error) {
	a.mu.Lock()

	t, ok := a.trades[tradeID]
	if !ok {
		a.mu.Unlock()
		return Trade{}, ErrTradeNotFound
	}
	if t.Status != StatusRunning {
		a.mu.Unlock()
		return Trade{}, fmt.Errorf("%w: %s", ErrTradeAlreadyClosed, t.Status)
	}

	t.close(StatusCompleted, e.params.Clock())
	a.metrics.Balance += t.ProfitLoss
	e.recomputeMetricsLocked(a)

	out := *t
	e.persistClosedLocked(a, tradeID)
	a.mu.Unlock()

	e.publishLifecycle(a.name, closedEvent{trade: out, reason: "manually_closed"})
	return out, nil
}

// ApplyBias makes the price walk converge toward the trade's target.
func (e *Engine) ApplyBias(a *Account, tradeID string) error {
	a.mu.Lock()

	t, ok := a.trades[tradeID]
	if !ok {
		a.mu.Unlock()
		return ErrTradeNotFound
	}
	if t.Status != StatusRunning {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTradeAlreadyClosed, t.Status)
	}
	t.BiasFactor = 0.05
	a.mu.Unlock()

	evt := notify.NewEvent(notify.EventBiasApplied, a.name)
	evt.TradeID = tradeID
	e.notifier.Publish(evt)
	return nil
}

// UpdateTarget recomputes the target in place; valid only while RUNNING.
func (e *Engine) UpdateTarget(a *Account, tradeID string, kind TargetKind, amount float64) (Trade, error) {
	if amount <= 0 {
		return Trade{}, ErrInvalidTarget
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.trades[tradeID]
	if !ok {
		return Trade{}, ErrTradeNotFound
	}
	if t.Status != StatusRunning {
		return Trade{}, fmt.Errorf("%w: %s", ErrTradeAlreadyClosed, t.Status)
	}

	t.TargetKind = kind
	t.TargetAmount = amount
	t.TargetPrice = TargetPrice(t.Direction, kind, market.USDBase(t.Symbol), t.EntryPrice, t.LotSize, amount)
	return *t, nil
}

// ListActive returns ledger trades, optionally filtered, oldest first.
func (e *Engine) ListActive(a *Account, status Status, symbol string) []Trade {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Trade, 0, len(a.trades))
	for _, t := range a.trades {
		if status != "" && t.Status != status {
			continue
		}
		if symbol != "" && t.Symbol != symbol {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// Metrics recomputes and returns the account aggregates.
func (e *Engine) Metrics(a *Account) Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	e.recomputeMetricsLocked(a)
	return a.metrics
}
