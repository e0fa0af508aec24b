package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/marketsim/mt5sim/api"
	"github.com/marketsim/mt5sim/config"
	"github.com/marketsim/mt5sim/notify"
	"github.com/marketsim/mt5sim/observability"
	"github.com/marketsim/mt5sim/sim"
	"github.com/marketsim/mt5sim/store"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulator and its HTTP interface",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML or JSON)")
	return cmd
}

func serve(ctx context.Context, configPath string) error {
	// Optional .env for local overrides like MT5SIM_LOG_LEVEL.
	_ = godotenv.Load()

	log := observability.NewLogger("main")

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		log.Info().Str("path", configPath).Msg("config loaded")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	tick, _ := cfg.Simulation.ParseTickInterval()
	snapshot, _ := cfg.Simulation.ParseSnapshotInterval()

	src := rand.NewSource(time.Now().UnixNano())
	if cfg.Simulation.Seed != 0 {
		src = rand.NewSource(cfg.Simulation.Seed)
	}

	bus := notify.NewBus()
	engine := sim.NewEngine(sim.NewPriceModel(src), bus, sim.Params{
		Leverage:       cfg.Trading.Leverage,
		SwapRateBuy:    cfg.Trading.SwapRateBuy,
		SwapRateSell:   cfg.Trading.SwapRateSell,
		CommissionRate: cfg.Trading.CommissionRate,
	})

	accounts := make([]*sim.Account, 0, len(cfg.Accounts))
	for _, ac := range cfg.Accounts {
		path := filepath.Join(cfg.Store.Dir, fmt.Sprintf("trades_%s.db", ac.Name))
		st, err := store.NewSQLite(path)
		if err != nil {
			return fmt.Errorf("open store for %s: %w", ac.Name, err)
		}
		defer st.Close()

		accounts = append(accounts, sim.NewAccount(ac.Name, ac.Balance, cfg.InstrumentTable(), st))
		log.Info().Str("account", ac.Name).Float64("balance", ac.Balance).Str("db", path).Msg("account ready")
	}

	server, err := api.NewServer(engine, accounts, bus, api.Options{
		JWTSecret:      cfg.Server.JWTSecret,
		Timezone:       cfg.Server.Timezone,
		DefaultBalance: cfg.Accounts[0].Balance,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runner := sim.NewRunner(engine, accounts, tick, snapshot)
	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		runner.Run(ctx)
	}()

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("http server listening")
		httpErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	case err := <-httpErr:
		cancel()
		<-runnerDone
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn().Err(err).Msg("http shutdown")
	}

	// The runner's final snapshot sweep runs on context cancellation; wait for
	// it so every closed trade is durable before the stores close.
	<-runnerDone
	log.Info().Msg("stopped")
	return nil
}
