package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marketsim/mt5sim/market"
	"github.com/marketsim/mt5sim/notify"
	"github.com/marketsim/mt5sim/sim"
	"github.com/marketsim/mt5sim/store"
)

func (s *Server) activeTrade(a *sim.Account, tradeID string) (sim.Trade, bool) {
	for _, t := range s.engine.ListActive(a, "", "") {
		if t.ID == tradeID {
			return t, true
		}
	}
	return sim.Trade{}, false
}

// --- accounts ---

type initializeAccountsRequest struct {
	Accounts map[string]float64 `json:"accounts"`
}

func (s *Server) handleInitializeAccounts(w http.ResponseWriter, r *http.Request) {
	var req initializeAccountsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	applied := make(map[string]float64, len(req.Accounts))
	s.mu.Lock()
	for name, balance := range req.Accounts {
		if a, ok := s.accounts[name]; ok && balance > 0 {
			a.SetBalance(balance)
			applied[name] = balance
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"accounts": applied,
		"message":  "accounts initialized",
	})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, _ *http.Request) {
	type accountInfo struct {
		Balance      float64 `json:"balance"`
		Equity       float64 `json:"equity"`
		ActiveTrades int     `json:"active_trades"`
		Margin       float64 `json:"margin"`
		FreeMargin   float64 `json:"free_margin"`
	}

	s.mu.Lock()
	order := append([]string(nil), s.order...)
	current := s.current
	s.mu.Unlock()

	info := make(map[string]accountInfo, len(order))
	for _, name := range order {
		a := s.accounts[name]
		m := s.engine.Metrics(a)
		info[name] = accountInfo{
			Balance:      m.Balance,
			Equity:       m.Equity,
			ActiveTrades: len(s.engine.ListActive(a, sim.StatusRunning, "")),
			Margin:       m.Margin,
			FreeMargin:   m.FreeMargin,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accounts":        info,
		"current_account": current,
	})
}

type switchAccountRequest struct {
	AccountType string `json:"account_type"`
}

func (s *Server) handleSwitchAccount(w http.ResponseWriter, r *http.Request) {
	var req switchAccountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s.mu.Lock()
	a, ok := s.accounts[req.AccountType]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "unknown account type: "+req.AccountType)
		return
	}
	old := s.current
	s.current = req.AccountType
	s.mu.Unlock()

	evt := notify.NewEvent(notify.EventType("account_switched"), req.AccountType)
	evt.Data = map[string]string{"old_account": old, "timestamp": s.now()}
	s.bus.Publish(evt)
	s.log.Info().Str("from", old).Str("to", req.AccountType).Msg("account switched")

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "success",
		"old_account":     old,
		"new_account":     req.AccountType,
		"account_metrics": s.engine.Metrics(a),
	})
}

func (s *Server) handleUserInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"role":            "user",
		"username":        "public_user",
		"current_account": s.currentName(),
	})
}

// --- timezone ---

func (s *Server) handleGetTimezone(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	name := s.tzName
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"timezone":     name,
		"current_time": s.now(),
	})
}

type timezoneRequest struct {
	Timezone string `json:"timezone"`
}

func (s *Server) handleSetTimezone(w http.ResponseWriter, r *http.Request) {
	var req timezoneRequest
	if !decodeBody(w, r, &req) {
		return
	}

	tz, err := time.LoadLocation(req.Timezone)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid timezone: "+req.Timezone)
		return
	}

	s.mu.Lock()
	old := s.tzName
	s.tzName = req.Timezone
	s.tz = tz
	s.mu.Unlock()

	evt := notify.NewEvent(notify.EventType("timezone_changed"), s.currentName())
	evt.Data = map[string]string{"old_timezone": old, "new_timezone": req.Timezone}
	s.bus.Publish(evt)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"old_timezone": old,
		"new_timezone": req.Timezone,
		"current_time": s.now(),
	})
}

func (s *Server) handleListTimezones(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	current := s.tzName
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"common_timezones": []string{
			"UTC", "US/Eastern", "US/Central", "US/Pacific",
			"Europe/London", "Europe/Berlin", "Europe/Moscow",
			"Asia/Tokyo", "Asia/Shanghai", "Asia/Dubai", "Australia/Sydney",
		},
		"current_timezone": current,
	})
}

// --- instruments ---

func (s *Server) handleGetCurrencyPairs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data":   s.currentAccount().Instruments(),
	})
}

func (s *Server) handleUpdateCurrencyPair(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	var cfg market.Instrument
	if !decodeBody(w, r, &cfg) {
		return
	}
	cfg.Symbol = symbol

	if err := s.currentAccount().SetInstrument(symbol, cfg); err != nil {
		writeEngineError(w, err)
		return
	}
	s.log.Info().Str("account", s.currentName()).Str("symbol", symbol).Msg("instrument updated")
	writeJSON(w, http.StatusOK, cfg)
}

// --- balance / metrics ---

func (s *Server) handleAccountMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Metrics(s.currentAccount()))
}

type setBalanceRequest struct {
	Balance float64 `json:"balance"`
}

func (s *Server) handleSetBalance(w http.ResponseWriter, r *http.Request) {
	var req setBalanceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Balance <= 0 {
		writeError(w, http.StatusBadRequest, "balance must be positive")
		return
	}

	a := s.currentAccount()
	a.SetBalance(req.Balance)
	writeJSON(w, http.StatusOK, s.engine.Metrics(a))
}

func (s *Server) handleDeposit(w http.ResponseWriter, _ *http.Request) {
	a := s.currentAccount()
	newBalance := a.Deposit(depositAmount)

	evt := notify.NewEvent(notify.EventDeposit, a.Name())
	evt.Data = map[string]any{"amount": depositAmount, "new_balance": newBalance, "timestamp": s.now()}
	s.bus.Publish(evt)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"account_type": a.Name(),
		"new_balance":  newBalance,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	a := s.currentAccount()
	if err := a.Reset(s.opts.DefaultBalance); err != nil {
		writeError(w, http.StatusInternalServerError, "reset: "+err.Error())
		return
	}

	evt := notify.NewEvent(notify.EventAccountReset, a.Name())
	evt.Data = map[string]any{"new_balance": s.opts.DefaultBalance, "timestamp": s.now()}
	s.bus.Publish(evt)
	s.log.Info().Str("account", a.Name()).Msg("account reset")

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"account_type": a.Name(),
		"new_balance":  s.opts.DefaultBalance,
	})
}

// --- trade lifecycle ---

type startTradeRequest struct {
	Direction        string   `json:"direction"`
	LotSize          *float64 `json:"lot_size,omitempty"`
	TargetType       *string  `json:"target_type,omitempty"`
	TargetAmount     *float64 `json:"target_amount,omitempty"`
	StartingBuyPrice *float64 `json:"starting_buy_price,omitempty"`
}

func (s *Server) handleStartTrade(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	var req startTradeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	dir := sim.Direction(req.Direction)
	if dir != sim.Buy && dir != sim.Sell {
		writeError(w, http.StatusBadRequest, "direction must be BUY or SELL")
		return
	}

	engineReq := sim.StartTradeRequest{
		Direction:        dir,
		LotSize:          req.LotSize,
		TargetAmount:     req.TargetAmount,
		StartingBuyPrice: req.StartingBuyPrice,
	}
	if req.TargetType != nil {
		kind := sim.TargetKind(*req.TargetType)
		if kind != sim.TargetProfit && kind != sim.TargetLoss {
			writeError(w, http.StatusBadRequest, "target_type must be PROFIT or LOSS")
			return
		}
		engineReq.TargetKind = &kind
	}

	trade, err := s.engine.StartTrade(s.currentAccount(), symbol, engineReq)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"account_type": s.currentName(),
		"trade":        trade,
	})
}

type updateTargetRequest struct {
	TargetType   string  `json:"target_type"`
	TargetAmount float64 `json:"target_amount"`
}

func (s *Server) handleUpdateTarget(w http.ResponseWriter, r *http.Request) {
	tradeID := chi.URLParam(r, "trade_id")

	var req updateTargetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	kind := sim.TargetKind(req.TargetType)
	if kind != sim.TargetProfit && kind != sim.TargetLoss {
		writeError(w, http.StatusBadRequest, "target_type must be PROFIT or LOSS")
		return
	}

	trade, err := s.engine.UpdateTarget(s.currentAccount(), tradeID, kind, req.TargetAmount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "trade": trade})
}

func (s *Server) handleFinishTrade(w http.ResponseWriter, r *http.Request) {
	tradeID := chi.URLParam(r, "trade_id")

	if err := s.engine.ApplyBias(s.currentAccount(), tradeID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "trade biased to reach target faster",
	})
}

func (s *Server) handleCloseTrade(w http.ResponseWriter, r *http.Request) {
	tradeID := chi.URLParam(r, "trade_id")

	trade, err := s.engine.CloseTrade(s.currentAccount(), tradeID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "trade": trade})
}

// --- trade queries ---

func (s *Server) handleActiveTrades(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	writeJSON(w, http.StatusOK, s.engine.ListActive(s.currentAccount(), "", symbol))
}

func (s *Server) handleHistoricalTrades(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")

	recs, err := s.currentAccount().Store().ListClosed(symbol)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list trades: "+err.Error())
		return
	}
	trades := make([]sim.Trade, 0, len(recs))
	for _, rec := range recs {
		trades = append(trades, sim.FromRecord(rec))
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	tradeID := chi.URLParam(r, "trade_id")
	a := s.currentAccount()

	if t, ok := s.activeTrade(a, tradeID); ok {
		writeJSON(w, http.StatusOK, t)
		return
	}
	rec, err := a.Store().Get(tradeID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sim.FromRecord(rec))
}

// --- summaries ---

func (s *Server) handleTradesSummary(w http.ResponseWriter, _ *http.Request) {
	a := s.currentAccount()

	active := s.engine.ListActive(a, "", "")
	recs, err := a.Store().ListClosed("")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list trades: "+err.Error())
		return
	}

	all := make([]sim.Trade, 0, len(active)+len(recs))
	all = append(all, active...)
	for _, rec := range recs {
		all = append(all, sim.FromRecord(rec))
	}

	var running, completed, stopped, profitable, losing int
	var realized, unrealized, totalSwap float64
	for _, t := range all {
		totalSwap += t.Swap
		switch t.Status {
		case sim.StatusRunning:
			running++
			unrealized += t.ProfitLoss
		default:
			if t.Status == sim.StatusCompleted {
				completed++
			} else {
				stopped++
			}
			realized += t.ProfitLoss
			if t.ProfitLoss > 0 {
				profitable++
			} else if t.ProfitLoss < 0 {
				losing++
			}
		}
	}

	winRate := 0.0
	if settled := completed + stopped; settled > 0 {
		winRate = float64(profitable) / float64(settled) * 100
	}

	m := s.engine.Metrics(a)
	writeJSON(w, http.StatusOK, map[string]any{
		"account_type": a.Name(),
		"trades_summary": map[string]any{
			"total_trades":        len(all),
			"running_trades":      running,
			"completed_trades":    completed,
			"stopped_trades":      stopped,
			"win_rate_percentage": winRate,
			"profitable_trades":   profitable,
			"losing_trades":       losing,
		},
		"financial_summary": map[string]any{
			"total_realized_pnl":      realized,
			"current_unrealized_pnl":  unrealized,
			"total_swap_fees":         totalSwap,
			"account_balance":         m.Balance,
			"account_equity":          m.Equity,
			"free_margin":             m.FreeMargin,
			"margin_level_percentage": m.MarginLevel,
		},
		"all_trades": all,
	})
}

func (s *Server) handleAccountSummary(w http.ResponseWriter, _ *http.Request) {
	a := s.currentAccount()
	m := s.engine.Metrics(a)

	active := s.engine.ListActive(a, sim.StatusRunning, "")
	var totalLot float64
	for _, t := range active {
		totalLot += t.LotSize
	}
	utilization := 0.0
	if m.Equity > 0 {
		utilization = m.Margin / m.Equity * 100
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account_type":    a.Name(),
		"account_metrics": m,
		"trading_summary": map[string]any{
			"active_trades_count":           len(active),
			"total_lot_size_active":         totalLot,
			"margin_utilization_percentage": utilization,
		},
	})
}

// --- historical admin edits ---

type updateHistoricalRequest struct {
	EntryPrice   *float64   `json:"entry_price,omitempty"`
	ClosingPrice *float64   `json:"closing_price,omitempty"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	LotSize      *float64   `json:"lot_size,omitempty"`
	Status       *string    `json:"status,omitempty"`
	ProfitLoss   *float64   `json:"profit_loss,omitempty"`
}

// handleUpdateHistorical edits a settled row in place. Active trades are
// refused so the ledger stays the single writer for RUNNING state.
func (s *Server) handleUpdateHistorical(w http.ResponseWriter, r *http.Request) {
	tradeID := chi.URLParam(r, "trade_id")
	a := s.currentAccount()

	if _, ok := s.activeTrade(a, tradeID); ok {
		writeError(w, http.StatusBadRequest, "cannot update active trade, close it first")
		return
	}

	var req updateHistoricalRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rec, err := a.Store().Get(tradeID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if req.EntryPrice != nil && *req.EntryPrice > 0 {
		rec.EntryPrice = *req.EntryPrice
	}
	if req.ClosingPrice != nil && *req.ClosingPrice > 0 {
		rec.ClosingPrice = req.ClosingPrice
	}
	if req.StartTime != nil {
		rec.StartTime = req.StartTime.UTC()
	}
	if req.EndTime != nil {
		end := req.EndTime.UTC()
		rec.EndTime = &end
	} else if rec.EndTime == nil && rec.Status != store.StatusRunning {
		// Settled rows must carry an end time; fall back to the start.
		end := rec.StartTime
		rec.EndTime = &end
	}
	if req.LotSize != nil && *req.LotSize > 0 {
		rec.LotSize = *req.LotSize
	}
	if req.Status != nil {
		switch *req.Status {
		case store.StatusRunning, store.StatusCompleted, store.StatusStopped:
			rec.Status = *req.Status
		default:
			writeError(w, http.StatusBadRequest, "invalid status: "+*req.Status)
			return
		}
	} else if (rec.EndTime != nil || rec.ClosingPrice != nil) && rec.Status == store.StatusRunning {
		rec.Status = store.StatusCompleted
	}
	if req.ProfitLoss != nil {
		rec.ProfitLoss = *req.ProfitLoss
	}

	if err := a.Store().Put(rec); err != nil {
		writeError(w, http.StatusInternalServerError, "update trade: "+err.Error())
		return
	}

	evt := notify.NewEvent(notify.EventType("trade_database_updated"), a.Name())
	evt.TradeID = tradeID
	evt.Data = map[string]string{"timestamp": s.now()}
	s.bus.Publish(evt)

	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "trade": sim.FromRecord(rec)})
}

// handleRecalculate rederives a settled trade's P&L from its closing price,
// after an admin edit changed the inputs.
func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	tradeID := chi.URLParam(r, "trade_id")
	a := s.currentAccount()

	if _, ok := s.activeTrade(a, tradeID); ok {
		writeError(w, http.StatusBadRequest, "cannot recalculate active trade")
		return
	}

	rec, err := a.Store().Get(tradeID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if rec.ClosingPrice == nil {
		writeError(w, http.StatusBadRequest, "closing price must be set before recalculation")
		return
	}

	oldPnl := rec.ProfitLoss
	rec.ProfitLoss = sim.PnLAtPrice(
		sim.Direction(rec.Direction), market.USDBase(rec.Symbol),
		rec.EntryPrice, *rec.ClosingPrice, rec.LotSize, rec.Commission, rec.Swap,
	)

	if err := a.Store().Put(rec); err != nil {
		writeError(w, http.StatusInternalServerError, "recalculate trade: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"old_pnl": oldPnl,
		"new_pnl": rec.ProfitLoss,
		"trade":   sim.FromRecord(rec),
	})
}

func (s *Server) handleDeleteTrade(w http.ResponseWriter, r *http.Request) {
	tradeID := chi.URLParam(r, "trade_id")
	a := s.currentAccount()

	if _, ok := s.activeTrade(a, tradeID); ok {
		writeError(w, http.StatusBadRequest, "cannot delete active trade, close it first")
		return
	}

	if err := a.Store().Delete(tradeID); err != nil {
		writeEngineError(w, err)
		return
	}

	evt := notify.NewEvent(notify.EventType("trade_deleted"), a.Name())
	evt.TradeID = tradeID
	s.bus.Publish(evt)
	s.log.Info().Str("account", a.Name()).Str("trade_id", tradeID).Msg("trade deleted")

	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "trade_id": tradeID})
}
