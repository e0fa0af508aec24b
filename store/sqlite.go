package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite implements Store on a single database file.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

const upsertGuarded = `
	INSERT INTO trades
	(trade_id, symbol, direction, entry_price, current_bid, current_ask,
	 start_time, end_time, status, target_price, target_kind, target_amount,
	 lot_size, profit_loss, margin_used, swap, commission, bias_factor, closing_price)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(trade_id) DO UPDATE SET
		symbol = excluded.symbol,
		direction = excluded.direction,
		entry_price = excluded.entry_price,
		current_bid = excluded.current_bid,
		current_ask = excluded.current_ask,
		start_time = excluded.start_time,
		end_time = excluded.end_time,
		status = excluded.status,
		target_price = excluded.target_price,
		target_kind = excluded.target_kind,
		target_amount = excluded.target_amount,
		lot_size = excluded.lot_size,
		profit_loss = excluded.profit_loss,
		margin_used = excluded.margin_used,
		swap = excluded.swap,
		commission = excluded.commission,
		bias_factor = excluded.bias_factor,
		closing_price = excluded.closing_price
	WHERE trades.status = 'RUNNING'`

func recordArgs(r Record) []any {
	return []any{
		r.TradeID, r.Symbol, r.Direction, r.EntryPrice, r.CurrentBid, r.CurrentAsk,
		r.StartTime, r.EndTime, r.Status, r.TargetPrice, r.TargetKind, r.TargetAmount,
		r.LotSize, r.ProfitLoss, r.MarginUsed, r.Swap, r.Commission, r.BiasFactor, r.ClosingPrice,
	}
}

// UpsertClosed writes a settled trade. The conflict clause only updates rows
// still RUNNING in the database, so a row already settled (or manually
// edited to a settled state) is left alone, and re-applying the same
// snapshot is a no-op.
func (s *SQLite) UpsertClosed(rec Record) error {
	_, err := s.db.Exec(upsertGuarded, recordArgs(rec)...)
	return err
}

// SnapshotRunning upserts all records in one transaction.
func (s *SQLite) SnapshotRunning(recs []Record) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(upsertGuarded)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	written := 0
	for _, rec := range recs {
		if _, err := stmt.Exec(recordArgs(rec)...); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("snapshot trade %s: %w", rec.TradeID, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return written, nil
}

// Put writes a record unconditionally (no RUNNING guard).
func (s *SQLite) Put(rec Record) error {
	_, err := s.db.Exec(`
		INSERT INTO trades
		(trade_id, symbol, direction, entry_price, current_bid, current_ask,
		 start_time, end_time, status, target_price, target_kind, target_amount,
		 lot_size, profit_loss, margin_used, swap, commission, bias_factor, closing_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trade_id) DO UPDATE SET
			symbol = excluded.symbol,
			direction = excluded.direction,
			entry_price = excluded.entry_price,
			current_bid = excluded.current_bid,
			current_ask = excluded.current_ask,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			status = excluded.status,
			target_price = excluded.target_price,
			target_kind = excluded.target_kind,
			target_amount = excluded.target_amount,
			lot_size = excluded.lot_size,
			profit_loss = excluded.profit_loss,
			margin_used = excluded.margin_used,
			swap = excluded.swap,
			commission = excluded.commission,
			bias_factor = excluded.bias_factor,
			closing_price = excluded.closing_price`,
		recordArgs(rec)...)
	return err
}

func (s *SQLite) Exists(tradeID string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM trades WHERE trade_id = ?`, tradeID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLite) Delete(tradeID string) error {
	res, err := s.db.Exec(`DELETE FROM trades WHERE trade_id = ?`, tradeID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) DeleteAll() error {
	_, err := s.db.Exec(`DELETE FROM trades`)
	return err
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
