package sim

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketsim/mt5sim/observability"
)

// Runner owns the per-account loops: a fast tick loop and a slower snapshot
// loop for every account. Loops for different accounts run in parallel and
// share no state; the two loops of one account serialize on the account
// mutex. Run blocks until the context is cancelled and every loop has
// finished its in-flight work, so a just-closed trade's write-through always
// completes before shutdown.
type Runner struct {
	engine   *Engine
	accounts []*Account
	tick     time.Duration
	snapshot time.Duration
	log      zerolog.Logger
}

func NewRunner(engine *Engine, accounts []*Account, tick, snapshot time.Duration) *Runner {
	return &Runner{
		engine:   engine,
		accounts: accounts,
		tick:     tick,
		snapshot: snapshot,
		log:      observability.NewLogger("runner"),
	}
}

func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for _, a := range r.accounts {
		wg.Add(2)
		go func(a *Account) {
			defer wg.Done()
			r.tickLoop(ctx, a)
		}(a)
		go func(a *Account) {
			defer wg.Done()
			r.snapshotLoop(ctx, a)
		}(a)
	}

	wg.Wait()
	r.log.Info().Msg("all account loops stopped")
}

func (r *Runner) tickLoop(ctx context.Context, a *Account) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	r.log.Info().Str("account", a.Name()).Dur("interval", r.tick).Msg("tick loop started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.engine.Tick(a)
		}
	}
}

func (r *Runner) snapshotLoop(ctx context.Context, a *Account) {
	ticker := time.NewTicker(r.snapshot)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final sweep so closed-but-unpersisted trades survive shutdown.
			if err := r.engine.Snapshot(a); err != nil {
				r.log.Warn().Err(err).Str("account", a.Name()).Msg("final snapshot failed")
			}
			return
		case <-ticker.C:
			if err := r.engine.Snapshot(a); err != nil {
				r.log.Warn().Err(err).Str("account", a.Name()).Msg("periodic snapshot failed")
			}
		}
	}
}
