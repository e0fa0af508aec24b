package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/marketsim/mt5sim/market"
	"gopkg.in/yaml.v3"
)

// Config is the complete simulator configuration.
type Config struct {
	Accounts   []AccountConfig              `json:"accounts" yaml:"accounts"`
	Trading    TradingConfig                `json:"trading" yaml:"trading"`
	Simulation SimulationConfig             `json:"simulation" yaml:"simulation"`
	Server     ServerConfig                 `json:"server" yaml:"server"`
	Store      StoreConfig                  `json:"store" yaml:"store"`
	Instruments map[string]market.Instrument `json:"instruments,omitempty" yaml:"instruments,omitempty"`
}

// AccountConfig declares one isolated account partition.
type AccountConfig struct {
	Name    string  `json:"name" yaml:"name"`
	Balance float64 `json:"balance" yaml:"balance"`
}

// TradingConfig holds the account-currency trading constants.
type TradingConfig struct {
	Leverage       float64 `json:"leverage" yaml:"leverage"`
	SwapRateBuy    float64 `json:"swap_rate_buy" yaml:"swap_rate_buy"`
	SwapRateSell   float64 `json:"swap_rate_sell" yaml:"swap_rate_sell"`
	CommissionRate float64 `json:"commission_rate" yaml:"commission_rate"`
}

// SimulationConfig holds the loop cadence.
type SimulationConfig struct {
	TickInterval     string `json:"tick_interval" yaml:"tick_interval"`
	SnapshotInterval string `json:"snapshot_interval" yaml:"snapshot_interval"`
	Seed             int64  `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// ParseTickInterval converts the tick interval to a duration.
func (s SimulationConfig) ParseTickInterval() (time.Duration, error) {
	return time.ParseDuration(s.TickInterval)
}

// ParseSnapshotInterval converts the snapshot interval to a duration.
func (s SimulationConfig) ParseSnapshotInterval() (time.Duration, error) {
	return time.ParseDuration(s.SnapshotInterval)
}

// ServerConfig holds the external-interface settings.
type ServerConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
	Timezone  string `json:"timezone" yaml:"timezone"`
}

// StoreConfig locates the durable per-account trade databases.
type StoreConfig struct {
	// Dir receives one sqlite file per account: trades_<account>.db
	Dir string `json:"dir" yaml:"dir"`
}

// LoadFromFile loads configuration from a file (YAML first, JSON fallback).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account is required")
	}
	seen := map[string]bool{}
	for _, a := range c.Accounts {
		if a.Name == "" {
			return fmt.Errorf("account name is required")
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate account name: %s", a.Name)
		}
		seen[a.Name] = true
		if a.Balance <= 0 {
			return fmt.Errorf("account %s: balance must be positive", a.Name)
		}
	}
	if c.Trading.Leverage <= 0 {
		return fmt.Errorf("trading.leverage must be positive")
	}
	if c.Trading.CommissionRate < 0 {
		return fmt.Errorf("trading.commission_rate cannot be negative")
	}
	if _, err := c.Simulation.ParseTickInterval(); err != nil {
		return fmt.Errorf("simulation.tick_interval: %w", err)
	}
	if _, err := c.Simulation.ParseSnapshotInterval(); err != nil {
		return fmt.Errorf("simulation.snapshot_interval: %w", err)
	}
	if c.Server.Timezone != "" {
		if _, err := time.LoadLocation(c.Server.Timezone); err != nil {
			return fmt.Errorf("server.timezone: %w", err)
		}
	}
	if c.Store.Dir == "" {
		return fmt.Errorf("store.dir is required")
	}
	for sym, inst := range c.Instruments {
		if inst.Symbol == "" {
			inst.Symbol = sym
			c.Instruments[sym] = inst
		}
		if err := c.Instruments[sym].Validate(); err != nil {
			return fmt.Errorf("instrument %s: %w", sym, err)
		}
	}
	return nil
}

// InstrumentTable returns the configured instrument set, falling back to the
// stock table when none is configured. Each account gets its own copy.
func (c *Config) InstrumentTable() map[string]market.Instrument {
	src := c.Instruments
	if len(src) == 0 {
		src = market.Defaults()
	}
	out := make(map[string]market.Instrument, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Default returns a configuration with the stock account set.
func Default() *Config {
	return &Config{
		Accounts: []AccountConfig{
			{Name: "VIP", Balance: 10000},
			{Name: "DEMO", Balance: 10000},
			{Name: "PRO", Balance: 10000},
			{Name: "MONEY", Balance: 10000},
		},
		Trading: TradingConfig{
			Leverage:       100,
			SwapRateBuy:    -0.0001,
			SwapRateSell:   0.00005,
			CommissionRate: 0.0001,
		},
		Simulation: SimulationConfig{
			TickInterval:     "1s",
			SnapshotInterval: "30s",
		},
		Server: ServerConfig{
			Addr:      ":8002",
			JWTSecret: "change-me-in-production",
			Timezone:  "UTC",
		},
		Store: StoreConfig{Dir: "."},
	}
}
