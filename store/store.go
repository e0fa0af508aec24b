// Package store is the durable side of the trade ledger: one sqlite database
// per account, keyed by trade id, with status-aware upsert semantics so a
// settled row is never clobbered by a stale in-memory snapshot.
package store

import (
	"errors"
	"time"
)

// Statuses as stored. They mirror the engine's lifecycle states.
const (
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusStopped   = "STOPPED"
)

var ErrNotFound = errors.New("trade not found")

// Record is the durable shape of one trade.
type Record struct {
	TradeID      string
	Symbol       string
	Direction    string
	EntryPrice   float64
	CurrentBid   float64
	CurrentAsk   float64
	StartTime    time.Time
	EndTime      *time.Time
	Status       string
	TargetPrice  float64
	TargetKind   string
	TargetAmount float64
	LotSize      float64
	ProfitLoss   float64
	MarginUsed   float64
	Swap         float64
	Commission   float64
	BiasFactor   float64
	ClosingPrice *float64
}

// Closed reports whether the record left the RUNNING state.
func (r Record) Closed() bool { return r.Status != StatusRunning }

// Store is the durable trade store consumed by the settlement engine and the
// external request layer.
type Store interface {
	// UpsertClosed writes a settled trade. Idempotent: re-applying the same
	// record is a no-op. If the stored copy is already non-RUNNING the write
	// does not overwrite it (guards manual admin edits).
	UpsertClosed(rec Record) error

	// SnapshotRunning upserts the current snapshot of every RUNNING trade in
	// a single transaction; on failure nothing is written. The same
	// non-RUNNING guard applies per row. Returns rows written.
	SnapshotRunning(recs []Record) (int, error)

	// Put writes a record unconditionally. Admin surface only.
	Put(rec Record) error

	Get(tradeID string) (Record, error)
	Exists(tradeID string) (bool, error)

	// ListClosed returns COMPLETED/STOPPED trades, most recently closed
	// first. Empty symbol matches all symbols.
	ListClosed(symbol string) ([]Record, error)

	// Delete removes a trade row. Refuses nothing: callers gate on status.
	Delete(tradeID string) error

	// DeleteAll clears the account's history (account reset).
	DeleteAll() error

	Close() error
}
