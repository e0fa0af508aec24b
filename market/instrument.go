// Package market defines the tradable instrument table shared by every
// account partition.
package market

import "strings"

// Instrument holds the per-symbol price model parameters for one account.
// Immutable during a tick; replaced wholesale by a configuration update.
type Instrument struct {
	Symbol              string  `json:"symbol" yaml:"symbol"`
	BuyStartingPrice    float64 `json:"buy_starting_price" yaml:"buy_starting_price"`
	SellStartingPrice   float64 `json:"sell_starting_price" yaml:"sell_starting_price"`
	BuyLotSize          float64 `json:"buy_lot_size" yaml:"buy_lot_size"`
	SellLotSize         float64 `json:"sell_lot_size" yaml:"sell_lot_size"`
	DefaultTargetProfit float64 `json:"default_target_profit" yaml:"default_target_profit"`
	DefaultTargetLoss   float64 `json:"default_target_loss" yaml:"default_target_loss"`
	Volatility          float64 `json:"volatility" yaml:"volatility"`
	Spread              float64 `json:"spread" yaml:"spread"`
	PipValue            float64 `json:"pip_value" yaml:"pip_value"`
	BuyEnabled          bool    `json:"buy_enabled" yaml:"buy_enabled"`
	SellEnabled         bool    `json:"sell_enabled" yaml:"sell_enabled"`
	MeanReversion       float64 `json:"mean_reversion_strength" yaml:"mean_reversion_strength"`
}

// Pip returns the standard pip increment for a symbol: 0.01 for
// JPY/RUB/SEK-quoted pairs, 0.0001 otherwise.
func Pip(symbol string) float64 {
	if strings.HasSuffix(symbol, "JPY") || strings.HasSuffix(symbol, "RUB") || strings.HasSuffix(symbol, "SEK") {
		return 0.01
	}
	return 0.0001
}

// USDBase reports whether the pair is quoted with USD as the base currency
// (USDJPY, USDCNH, ...). P&L for these pairs is converted back to USD by
// dividing by the price.
func USDBase(symbol string) bool {
	return strings.HasPrefix(symbol, "USD")
}

// Defaults returns the stock instrument table every account starts with.
func Defaults() map[string]Instrument {
	return map[string]Instrument{
		"EURUSD": {Symbol: "EURUSD", BuyStartingPrice: 1.1726, SellStartingPrice: 1.1727, Volatility: 0.00005, Spread: 0.0002, BuyLotSize: 0.1, SellLotSize: 0.1, DefaultTargetProfit: 100.0, DefaultTargetLoss: 50.0, PipValue: 0.0001, BuyEnabled: true, SellEnabled: true, MeanReversion: 0.05},
		"GBPUSD": {Symbol: "GBPUSD", BuyStartingPrice: 1.3577, SellStartingPrice: 1.3579, Volatility: 0.00005, Spread: 0.0003, BuyLotSize: 0.1, SellLotSize: 0.1, DefaultTargetProfit: 100.0, DefaultTargetLoss: 50.0, PipValue: 0.0001, BuyEnabled: true, SellEnabled: true, MeanReversion: 0.05},
		"USDJPY": {Symbol: "USDJPY", BuyStartingPrice: 147.1960, SellStartingPrice: 147.2060, Volatility: 0.00005, Spread: 0.02, BuyLotSize: 0.1, SellLotSize: 0.1, DefaultTargetProfit: 1000.0, DefaultTargetLoss: 500.0, PipValue: 0.01, BuyEnabled: true, SellEnabled: true, MeanReversion: 0.0004},
		"USDCNH": {Symbol: "USDCNH", BuyStartingPrice: 7.1823, SellStartingPrice: 7.1837, Volatility: 0.00005, Spread: 0.0020, BuyLotSize: 0.1, SellLotSize: 0.1, DefaultTargetProfit: 500.0, DefaultTargetLoss: 250.0, PipValue: 0.0001, BuyEnabled: true, SellEnabled: true, MeanReversion: 0.05},
		"USDRUB": {Symbol: "USDRUB", BuyStartingPrice: 84.9900, SellStartingPrice: 85.0400, Volatility: 0.00005, Spread: 0.02, BuyLotSize: 0.1, SellLotSize: 0.1, DefaultTargetProfit: 5000.0, DefaultTargetLoss: 2500.0, PipValue: 0.01, BuyEnabled: true, SellEnabled: true, MeanReversion: 0.0007},
		"AUDUSD": {Symbol: "AUDUSD", BuyStartingPrice: 0.6639, SellStartingPrice: 0.6641, Volatility: 0.00005, Spread: 0.0002, BuyLotSize: 0.1, SellLotSize: 0.1, DefaultTargetProfit: 100.0, DefaultTargetLoss: 50.0, PipValue: 0.0001, BuyEnabled: true, SellEnabled: true, MeanReversion: 0.05},
		"NZDUSD": {Symbol: "NZDUSD", BuyStartingPrice: 0.5975, SellStartingPrice: 0.5977, Volatility: 0.00005, Spread: 0.0002, BuyLotSize: 0.1, SellLotSize: 0.1, DefaultTargetProfit: 100.0, DefaultTargetLoss: 50.0, PipValue: 0.0001, BuyEnabled: true, SellEnabled: true, MeanReversion: 0.05},
		"USDSEK": {Symbol: "USDSEK", BuyStartingPrice: 9.3673, SellStartingPrice: 9.3873, Volatility: 0.00005, Spread: 0.02, BuyLotSize: 0.1, SellLotSize: 0.1, DefaultTargetProfit: 1000.0, DefaultTargetLoss: 500.0, PipValue: 0.01, BuyEnabled: true, SellEnabled: true, MeanReversion: 0.05},
	}
}

// Validate checks the config is internally consistent.
func (i Instrument) Validate() error {
	switch {
	case i.Symbol == "":
		return errField("symbol is required")
	case i.BuyStartingPrice <= 0 || i.SellStartingPrice <= 0:
		return errField("starting prices must be positive")
	case i.SellStartingPrice <= i.BuyStartingPrice:
		return errField("sell starting price must be greater than buy starting price")
	case i.BuyLotSize <= 0 || i.BuyLotSize > 100 || i.SellLotSize <= 0 || i.SellLotSize > 100:
		return errField("lot sizes must be in (0, 100]")
	case i.Volatility <= 0:
		return errField("volatility must be positive")
	case i.Spread <= 0:
		return errField("spread must be positive")
	case i.MeanReversion <= 0 || i.MeanReversion > 1:
		return errField("mean_reversion_strength must be in (0, 1]")
	case i.DefaultTargetProfit < 0 || i.DefaultTargetLoss < 0:
		return errField("default targets cannot be negative")
	}
	return nil
}

type errField string

func (e errField) Error() string { return string(e) }
