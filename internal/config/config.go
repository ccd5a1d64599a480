package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/quantbed/quantbed/internal/core"
	"github.com/spf13/viper"
)

type Config struct {
	Backtest   BacktestConfig            `mapstructure:"backtest"`
	Costs      CostsConfig               `mapstructure:"costs"`
	Risk       RiskConfig                `mapstructure:"risk"`
	Strategies map[string]StrategyConfig `mapstructure:"strategies"`
	Store      StoreConfig               `mapstructure:"store"`
	Archive    ArchiveConfig             `mapstructure:"archive"`
	Log        LogConfig                 `mapstructure:"log"`
}

// BacktestConfig holds run-level simulation settings.
type BacktestConfig struct {
	InitialCapital float64 `mapstructure:"initial_capital"`
	SizeMethod     string  `mapstructure:"size_method"` // "fixed", "percent", "risk", "kelly"
	SizeValue      float64 `mapstructure:"size_value"`  // notional for fixed, fraction for percent/kelly
	KellyWinRate   float64 `mapstructure:"kelly_win_rate"`
	WarmupBars     int     `mapstructure:"warmup_bars"`
	StartDate      string  `mapstructure:"start_date"` // "2006-01-02", empty means unbounded
	EndDate        string  `mapstructure:"end_date"`

	// Reserved flags. Long-only whole-share simulation is the only
	// supported mode; setting either is a configuration error.
	AllowShort       bool `mapstructure:"allow_short"`
	FractionalShares bool `mapstructure:"fractional_shares"`
}

// CostsConfig holds commission and slippage settings.
type CostsConfig struct {
	CommissionType string       `mapstructure:"commission_type"` // "percent", "fixed", "tiered"
	BuyRate        float64      `mapstructure:"buy_rate"`
	SellRate       float64      `mapstructure:"sell_rate"`
	TaxRate        float64      `mapstructure:"tax_rate"` // sell-side only
	MinCommission  float64      `mapstructure:"min_commission"`
	FixedAmount    float64      `mapstructure:"fixed_amount"`
	Tiers          []TierConfig `mapstructure:"tiers"`

	SlippageType   string  `mapstructure:"slippage_type"` // "percent", "tick"
	SlippageValue  float64 `mapstructure:"slippage_value"`
	SlippageRange  float64 `mapstructure:"slippage_range"`
	RandomSlippage bool    `mapstructure:"random_slippage"`
}

// TierConfig is one commission tier: the rate applies to notionals up to
// and including the ceiling.
type TierConfig struct {
	UpTo float64 `mapstructure:"up_to"`
	Rate float64 `mapstructure:"rate"`
}

// RiskConfig holds risk limits and stop parameters. A zero fraction
// disables the corresponding limit.
type RiskConfig struct {
	MaxDrawdown         float64 `mapstructure:"max_drawdown"`
	MaxPositionPct      float64 `mapstructure:"max_position_pct"`
	MaxPositions        int     `mapstructure:"max_positions"`
	MaxDailyLoss        float64 `mapstructure:"max_daily_loss"`
	StopLossPct         float64 `mapstructure:"stop_loss_pct"`
	TakeProfitPct       float64 `mapstructure:"take_profit_pct"`
	ATRStopMultiplier   float64 `mapstructure:"atr_stop_multiplier"`
	ATRProfitMultiplier float64 `mapstructure:"atr_profit_multiplier"`
	UseTrailingStop     bool    `mapstructure:"use_trailing_stop"`
	UseDynamicStops     bool    `mapstructure:"use_dynamic_stops"`
	StopOnMaxDrawdown   bool    `mapstructure:"stop_on_max_drawdown"`
}

type StrategyConfig struct {
	Enabled bool           `mapstructure:"enabled"`
	Params  map[string]any `mapstructure:"params"`
}

// StoreConfig holds the run-index database settings.
type StoreConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ArchiveConfig holds result-document archive settings.
type ArchiveConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Type    string   `mapstructure:"type"` // "localfs" or "s3"
	Path    string   `mapstructure:"path"` // For localfs
	S3      S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// LogConfig selects the logger profile.
type LogConfig struct {
	Development bool `mapstructure:"development"`
}

// Load reads configuration from file
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Backtest: BacktestConfig{
			InitialCapital: 1_000_000,
			SizeMethod:     "percent",
			SizeValue:      0.2,
			KellyWinRate:   0.55,
			WarmupBars:     20,
		},
		Costs: CostsConfig{
			CommissionType: "percent",
			BuyRate:        0.0003,
			SellRate:       0.0003,
			TaxRate:        0.001,
			MinCommission:  5,
			SlippageType:   "percent",
			SlippageValue:  0.0005,
		},
		Risk: RiskConfig{
			MaxDrawdown:    0.2,
			MaxPositionPct: 0.3,
			MaxPositions:   5,
			MaxDailyLoss:   0.05,
			StopLossPct:    0.08,
			TakeProfitPct:  0.15,
		},
		Store: StoreConfig{
			DSN: "quantbed.db",
		},
		Archive: ArchiveConfig{
			Type: "localfs",
			Path: "archive",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Backtest validation
	if c.Backtest.InitialCapital <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("initial_capital must be positive, got %f", c.Backtest.InitialCapital))
	}
	switch c.Backtest.SizeMethod {
	case "fixed":
		if c.Backtest.SizeValue <= 0 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("size_value must be a positive notional for fixed sizing, got %f", c.Backtest.SizeValue))
		}
	case "percent", "kelly":
		if c.Backtest.SizeValue <= 0 || c.Backtest.SizeValue > 1 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("size_value must be in (0,1] for %s sizing, got %f", c.Backtest.SizeMethod, c.Backtest.SizeValue))
		}
	case "risk":
		// Risk sizing derives the notional from the daily loss budget and
		// the stop distance; both must be set.
		if c.Risk.MaxDailyLoss <= 0 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("risk sizing requires a positive max_daily_loss"))
		}
		if c.Risk.StopLossPct <= 0 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("risk sizing requires a positive stop_loss_pct"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown size_method %q", c.Backtest.SizeMethod))
	}
	if c.Backtest.WarmupBars < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("warmup_bars cannot be negative, got %d", c.Backtest.WarmupBars))
	}
	if c.Backtest.KellyWinRate < 0 || c.Backtest.KellyWinRate > 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("kelly_win_rate must be between 0 and 1, got %f", c.Backtest.KellyWinRate))
	}
	for _, d := range []string{c.Backtest.StartDate, c.Backtest.EndDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("dates must use YYYY-MM-DD, got %q", d))
		}
	}
	if c.Backtest.AllowShort {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("allow_short is reserved, only long positions are supported"))
	}
	if c.Backtest.FractionalShares {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("fractional_shares is reserved, only whole shares are supported"))
	}

	// Costs validation
	switch c.Costs.CommissionType {
	case "percent", "fixed":
	case "tiered":
		if len(c.Costs.Tiers) == 0 {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("tiers required when commission_type is tiered"))
		}
		prev := 0.0
		for i, tier := range c.Costs.Tiers {
			if tier.Rate < 0 {
				return core.WrapError(core.ErrConfigInvalid,
					fmt.Errorf("tier %d rate cannot be negative, got %f", i, tier.Rate))
			}
			if tier.UpTo <= prev {
				return core.WrapError(core.ErrConfigInvalid,
					fmt.Errorf("tier ceilings must be strictly increasing, tier %d has %f", i, tier.UpTo))
			}
			prev = tier.UpTo
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown commission_type %q", c.Costs.CommissionType))
	}
	for name, rate := range map[string]float64{
		"buy_rate":       c.Costs.BuyRate,
		"sell_rate":      c.Costs.SellRate,
		"tax_rate":       c.Costs.TaxRate,
		"min_commission": c.Costs.MinCommission,
		"fixed_amount":   c.Costs.FixedAmount,
	} {
		if rate < 0 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("%s cannot be negative, got %f", name, rate))
		}
	}
	switch c.Costs.SlippageType {
	case "percent", "tick":
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown slippage_type %q", c.Costs.SlippageType))
	}
	if c.Costs.SlippageValue < 0 || c.Costs.SlippageRange < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("slippage values cannot be negative"))
	}

	// Risk validation
	for name, frac := range map[string]float64{
		"max_drawdown":     c.Risk.MaxDrawdown,
		"max_position_pct": c.Risk.MaxPositionPct,
		"max_daily_loss":   c.Risk.MaxDailyLoss,
		"stop_loss_pct":    c.Risk.StopLossPct,
		"take_profit_pct":  c.Risk.TakeProfitPct,
	} {
		if frac < 0 || frac > 1 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("%s must be between 0 and 1, got %f", name, frac))
		}
	}
	if c.Risk.MaxPositions < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("max_positions cannot be negative, got %d", c.Risk.MaxPositions))
	}
	if c.Risk.ATRStopMultiplier < 0 || c.Risk.ATRProfitMultiplier < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("atr multipliers cannot be negative"))
	}

	return nil
}
