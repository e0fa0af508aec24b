package sim

import (
	"github.com/marketsim/mt5sim/store"
)

// The persistence bridge reconciles the in-memory ledger with the durable
// store. Two paths, both idempotent upserts keyed by trade id: an immediate
// write-through on every transition out of RUNNING, and a periodic snapshot
// of still-open trades. A failed write never loses state: the trade stays
// in the ledger and the next snapshot cycle retries it.

// persistClosedLocked writes a settled trade through and removes it from the
// ledger only once the write is confirmed. Caller holds the account lock.
func (e *Engine) persistClosedLocked(a *Account, tradeID string) bool {
	t, ok := a.trades[tradeID]
	if !ok || !t.Closed() {
		return false
	}

	if err := a.store.UpsertClosed(ToRecord(*t)); err != nil {
		e.log.Warn().Err(err).Str("account", a.name).Str("trade_id", tradeID).
			Msg("write-through failed, retaining trade for snapshot sweep")
		return false
	}

	delete(a.trades, tradeID)
	e.log.Info().Str("account", a.name).Str("trade_id", tradeID).
		Str("status", string(t.Status)).Msg("trade transferred to store")
	return true
}

// Snapshot runs the slow persistence loop body once: first the self-healing
// sweep of trades that closed but could not be persisted, then a single
// transaction upserting every RUNNING trade's current snapshot. On commit
// failure the batch is rolled back and the ledger keeps everything.
func (e *Engine) Snapshot(a *Account) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for tid, t := range a.trades {
		if t.Closed() {
			e.persistClosedLocked(a, tid)
		}
	}

	recs := make([]store.Record, 0, len(a.trades))
	for _, t := range a.trades {
		if t.Status == StatusRunning {
			recs = append(recs, ToRecord(*t))
		}
	}

	n, err := a.store.SnapshotRunning(recs)
	if err != nil {
		e.log.Warn().Err(err).Str("account", a.name).Msg("snapshot commit failed, ledger retained")
		return err
	}
	if n > 0 {
		e.log.Debug().Str("account", a.name).Int("trades", n).Msg("snapshot saved")
	}
	return nil
}

// ToRecord converts a trade to its durable shape.
func ToRecord(t Trade) store.Record {
	return store.Record{
		TradeID:      t.ID,
		Symbol:       t.Symbol,
		Direction:    string(t.Direction),
		EntryPrice:   t.EntryPrice,
		CurrentBid:   t.CurrentBid,
		CurrentAsk:   t.CurrentAsk,
		StartTime:    t.StartTime,
		EndTime:      t.EndTime,
		Status:       string(t.Status),
		TargetPrice:  t.TargetPrice,
		TargetKind:   string(t.TargetKind),
		TargetAmount: t.TargetAmount,
		LotSize:      t.LotSize,
		ProfitLoss:   t.ProfitLoss,
		MarginUsed:   t.MarginUsed,
		Swap:         t.Swap,
		Commission:   t.Commission,
		BiasFactor:   t.BiasFactor,
		ClosingPrice: t.ClosingPrice,
	}
}

// FromRecord converts a durable record back to the API-facing trade shape.
func FromRecord(r store.Record) Trade {
	return Trade{
		ID:           r.TradeID,
		Symbol:       r.Symbol,
		Direction:    Direction(r.Direction),
		EntryPrice:   r.EntryPrice,
		CurrentBid:   r.CurrentBid,
		CurrentAsk:   r.CurrentAsk,
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		Status:       Status(r.Status),
		TargetPrice:  r.TargetPrice,
		TargetKind:   TargetKind(r.TargetKind),
		TargetAmount: r.TargetAmount,
		LotSize:      r.LotSize,
		ProfitLoss:   r.ProfitLoss,
		MarginUsed:   r.MarginUsed,
		Swap:         r.Swap,
		Commission:   r.Commission,
		BiasFactor:   r.BiasFactor,
		ClosingPrice: r.ClosingPrice,
	}
}
