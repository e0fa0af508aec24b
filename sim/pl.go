package sim

import "time"

// contractSize is units per standard lot.
const contractSize = 100000.0

func dirSign(d Direction) float64 {
	if d == Buy {
		return 1
	}
	return -1
}

// PnLAtPrice is the forward half of the price↔P&L relationship: the profit
// or loss, in account currency, of a position marked at price. For USD-base
// pairs the quote-currency P&L is converted back through the price itself.
func PnLAtPrice(dir Direction, usdBase bool, entry, price, lot, commission, swap float64) float64 {
	pnl := dirSign(dir) * (price - entry) * lot * contractSize
	if usdBase {
		pnl /= price
	}
	return pnl - (commission + swap)
}

// PriceForPnL is the inverse half: the price at which the position shows
// exactly pnl. The USD-base branch converts through the entry price, which
// is the accepted linearization for back-solving a just-crossed target; the
// reported P&L is clamped to the exact target independently of it.
func PriceForPnL(dir Direction, usdBase bool, entry, lot, commission, swap, pnl float64) float64 {
	diff := (pnl + commission + swap) / (lot * contractSize)
	if usdBase {
		diff = (pnl + commission + swap) * entry / (lot * contractSize)
	}
	return entry + dirSign(dir)*diff
}

// TargetPrice derives the raw price level a target amount corresponds to at
// trade admission, before any fees have accrued.
func TargetPrice(dir Direction, kind TargetKind, usdBase bool, entry, lot, amount float64) float64 {
	signed := amount
	if kind == TargetLoss {
		signed = -amount
	}
	return PriceForPnL(dir, usdBase, entry, lot, 0, 0, signed)
}

// SwapAmount is the linear carrying cost accrued since the trade started.
// Recomputed wholesale each tick from absolute elapsed time, never
// incremented, so it cannot drift with tick jitter.
func SwapAmount(rate, lot float64, start, now time.Time) float64 {
	days := now.Sub(start).Seconds() / (24 * 3600)
	return rate * lot * contractSize * days
}

// RequiredMargin is the collateral reserved for a position.
func RequiredMargin(usdBase bool, lot, price, leverage float64) float64 {
	if usdBase {
		return lot * contractSize / leverage
	}
	return lot * contractSize * price / leverage
}
