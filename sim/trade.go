package sim

import "time"

type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusStopped   Status = "STOPPED"
)

type TargetKind string

const (
	TargetProfit TargetKind = "PROFIT"
	TargetLoss   TargetKind = "LOSS"
)

// Trade is one open or settled position. While RUNNING it is owned
// exclusively by its account's ledger; ownership transfers to the durable
// store on closure. EndTime and ClosingPrice are set iff Status != RUNNING,
// and CurrentAsk = CurrentBid + spread holds while RUNNING.
type Trade struct {
	ID           string     `json:"trade_id"`
	Symbol       string     `json:"symbol"`
	Direction    Direction  `json:"trade_direction"`
	EntryPrice   float64    `json:"entry_price"`
	CurrentBid   float64    `json:"current_buy_price"`
	CurrentAsk   float64    `json:"current_sell_price"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Status       Status     `json:"status"`
	TargetPrice  float64    `json:"target_price"`
	TargetKind   TargetKind `json:"target_type"`
	TargetAmount float64    `json:"target_amount"`
	LotSize      float64    `json:"lot_size"`
	ProfitLoss   float64    `json:"profit_loss"`
	MarginUsed   float64    `json:"margin_used"`
	Swap         float64    `json:"swap"`
	Commission   float64    `json:"commission"`
	BiasFactor   float64    `json:"bias_factor"`
	ClosingPrice *float64   `json:"closing_price,omitempty"`
}

// CurrentPrice is the settlement-relevant side: bid for BUY, ask for SELL.
func (t *Trade) CurrentPrice() float64 {
	if t.Direction == Buy {
		return t.CurrentBid
	}
	return t.CurrentAsk
}

func (t *Trade) Closed() bool { return t.Status != StatusRunning }

// close transitions the trade out of RUNNING at its current price and marks
// the closing side. The caller realizes the P&L into the balance.
func (t *Trade) close(status Status, now time.Time) {
	t.Status = status
	end := now
	t.EndTime = &end
	price := t.CurrentPrice()
	t.ClosingPrice = &price
}
