package sim

import (
	"sync"

	"github.com/marketsim/mt5sim/market"
	"github.com/marketsim/mt5sim/store"
)

// Account is one isolated partition: a ledger of RUNNING trades, aggregate
// metrics, an instrument table and a durable store handle, all guarded by a
// single mutex. The tick loop, the snapshot loop and inbound requests all
// mutate through that one lock; different accounts share nothing and run in
// parallel.
type Account struct {
	mu sync.Mutex

	name        string
	trades      map[string]*Trade
	metrics     Metrics
	instruments map[string]market.Instrument
	store       store.Store
}

func NewAccount(name string, balance float64, instruments map[string]market.Instrument, st store.Store) *Account {
	return &Account{
		name:   name,
		trades: make(map[string]*Trade),
		metrics: Metrics{
			Balance:    balance,
			Equity:     balance,
			FreeMargin: balance,
		},
		instruments: instruments,
		store:       st,
	}
}

func (a *Account) Name() string { return a.name }

// Store exposes the durable handle for read-side history queries.
func (a *Account) Store() store.Store { return a.store }

// Instruments returns a copy of the instrument table.
func (a *Account) Instruments() map[string]market.Instrument {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]market.Instrument, len(a.instruments))
	for k, v := range a.instruments {
		out[k] = v
	}
	return out
}

// Instrument looks up one symbol's config.
func (a *Account) Instrument(symbol string) (market.Instrument, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cfg, ok := a.instruments[symbol]
	return cfg, ok
}

// SetInstrument replaces one symbol's config between ticks.
func (a *Account) SetInstrument(symbol string, cfg market.Instrument) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.instruments[symbol]; !ok {
		return ErrInstrumentNotFound
	}
	a.instruments[symbol] = cfg
	return nil
}

// SetBalance overwrites the realized balance.
func (a *Account) SetBalance(balance float64) {
	a.mu.Lock()
	a.metrics.Balance = balance
	a.mu.Unlock()
}

// Deposit credits the realized balance and returns the new value.
func (a *Account) Deposit(amount float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.metrics.Balance += amount
	return a.metrics.Balance
}

// Reset clears the ledger, restores the balance and wipes the durable
// history.
func (a *Account) Reset(balance float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.trades = make(map[string]*Trade)
	a.metrics = Metrics{Balance: balance, Equity: balance, FreeMargin: balance}
	return a.store.DeleteAll()
}

func disabled(cfg market.Instrument, dir Direction) bool {
	if dir == Buy {
		return !cfg.BuyEnabled
	}
	return !cfg.SellEnabled
}
