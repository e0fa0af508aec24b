package store

import (
	"database/sql"
)

const recordColumns = `trade_id, symbol, direction, entry_price, current_bid, current_ask,
	start_time, end_time, status, target_price, target_kind, target_amount,
	lot_size, profit_loss, margin_used, swap, commission, bias_factor, closing_price`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.TradeID, &rec.Symbol, &rec.Direction, &rec.EntryPrice, &rec.CurrentBid, &rec.CurrentAsk,
		&rec.StartTime, &rec.EndTime, &rec.Status, &rec.TargetPrice, &rec.TargetKind, &rec.TargetAmount,
		&rec.LotSize, &rec.ProfitLoss, &rec.MarginUsed, &rec.Swap, &rec.Commission, &rec.BiasFactor, &rec.ClosingPrice,
	)
	return rec, err
}

// Get returns a single trade record by ID.
func (s *SQLite) Get(tradeID string) (Record, error) {
	row := s.db.QueryRow(`SELECT `+recordColumns+` FROM trades WHERE trade_id = ?`, tradeID)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ListClosed returns settled trades, most recently closed first.
func (s *SQLite) ListClosed(symbol string) ([]Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM trades
		WHERE status IN ('COMPLETED', 'STOPPED')`
	args := []any{}
	if symbol != "" {
		query += ` AND symbol = ?`
		args = append(args, symbol)
	}
	query += ` ORDER BY end_time DESC, start_time DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
