package sim

import (
	"math"
	"math/rand"
	"sync"

	"github.com/marketsim/mt5sim/market"
)

// PriceSource produces the next tick price for a trade. The settlement
// engine depends on this interface so tests can feed scripted sequences.
type PriceSource interface {
	Next(prev float64, cfg market.Instrument, target, biasFactor float64, dir Direction, kind TargetKind) float64
}

// PriceModel is a mean-reverting random walk with an optional directional
// bias toward the trade's target and a hard per-tick bound. The random draw
// is its only non-deterministic input; the source is injected so tests can
// seed it.
type PriceModel struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewPriceModel(src rand.Source) *PriceModel {
	return &PriceModel{rng: rand.New(src)}
}

func (m *PriceModel) Next(prev float64, cfg market.Instrument, target, biasFactor float64, dir Direction, kind TargetKind) float64 {
	pip := market.Pip(cfg.Symbol)

	// Normalize volatility so every pair moves a similar number of pips per
	// tick regardless of quote scale.
	sigma := cfg.Volatility * (0.0001 / pip)

	m.mu.Lock()
	change := m.rng.NormFloat64() * sigma
	m.mu.Unlock()

	// Mean reversion toward the static configured anchor. The anchor is the
	// buy starting price, not a rolling mean: it keeps the walk bounded.
	reversion := cfg.MeanReversion * (cfg.BuyStartingPrice - prev) / prev

	if biasFactor > 0 {
		targetDir := -1.0
		if (dir == Buy && kind == TargetProfit) || (dir == Sell && kind == TargetLoss) {
			targetDir = 1.0
		}
		bias := biasFactor * (target - prev) / prev
		// Cap at 0.1% per tick; applying |bias| in the target direction means
		// the bias can only ever push toward the target.
		bias = math.Max(math.Min(bias, 0.001), -0.001)
		change += targetDir * math.Abs(bias)
	}

	next := prev * (1 + change + reversion)

	// Bound the move to 5 pips per tick.
	maxPct := 5 * pip / prev
	next = math.Max(prev*(1-maxPct), math.Min(prev*(1+maxPct), next))

	// Never zero or negative.
	return math.Max(pip, next)
}
