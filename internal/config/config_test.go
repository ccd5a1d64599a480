package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/quantbed/quantbed/internal/core"
)

func TestLoad_FromFile(t *testing.T) {
	content := []byte(`
backtest:
  initial_capital: 100000000
  size_method: percent
  size_value: 0.2
  warmup_bars: 20

costs:
  commission_type: percent
  buy_rate: 0.00015
  sell_rate: 0.00015
  tax_rate: 0.0023

archive:
  type: localfs
  path: "/tmp/quantbed/archive"
`)

	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, content, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Backtest.InitialCapital != 100000000 {
		t.Errorf("expected initial_capital 100000000, got %f", cfg.Backtest.InitialCapital)
	}

	if cfg.Costs.TaxRate != 0.0023 {
		t.Errorf("expected tax_rate 0.0023, got %f", cfg.Costs.TaxRate)
	}

	if cfg.Archive.Type != "localfs" {
		t.Errorf("expected localfs, got %s", cfg.Archive.Type)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Backtest.SizeMethod != "percent" {
		t.Errorf("expected default size_method percent, got %s", cfg.Backtest.SizeMethod)
	}

	if cfg.Backtest.WarmupBars != 20 {
		t.Errorf("expected default warmup_bars 20, got %d", cfg.Backtest.WarmupBars)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return *Defaults()
	}

	tests := []struct {
		name    string
		mod     func(*Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"zero capital", func(c *Config) { c.Backtest.InitialCapital = 0 }, true},
		{"negative capital", func(c *Config) { c.Backtest.InitialCapital = -100 }, true},
		{"unknown size method", func(c *Config) { c.Backtest.SizeMethod = "martingale" }, true},
		{"percent fraction above one", func(c *Config) { c.Backtest.SizeValue = 1.5 }, true},
		{"fixed notional", func(c *Config) { c.Backtest.SizeMethod = "fixed"; c.Backtest.SizeValue = 50000 }, false},
		{"risk sizing", func(c *Config) { c.Backtest.SizeMethod = "risk" }, false},
		{"risk sizing without daily loss limit", func(c *Config) {
			c.Backtest.SizeMethod = "risk"
			c.Risk.MaxDailyLoss = 0
		}, true},
		{"risk sizing without stop", func(c *Config) {
			c.Backtest.SizeMethod = "risk"
			c.Risk.StopLossPct = 0
		}, true},
		{"negative warmup", func(c *Config) { c.Backtest.WarmupBars = -1 }, true},
		{"bad date format", func(c *Config) { c.Backtest.StartDate = "01/02/2024" }, true},
		{"good date format", func(c *Config) { c.Backtest.StartDate = "2024-01-02" }, false},
		{"shorting reserved", func(c *Config) { c.Backtest.AllowShort = true }, true},
		{"fractional shares reserved", func(c *Config) { c.Backtest.FractionalShares = true }, true},
		{"unknown commission type", func(c *Config) { c.Costs.CommissionType = "per_share" }, true},
		{"tiered without tiers", func(c *Config) { c.Costs.CommissionType = "tiered" }, true},
		{"tiered with tiers", func(c *Config) {
			c.Costs.CommissionType = "tiered"
			c.Costs.Tiers = []TierConfig{{UpTo: 100000, Rate: 0.0005}, {UpTo: 1000000, Rate: 0.0003}}
		}, false},
		{"tiers out of order", func(c *Config) {
			c.Costs.CommissionType = "tiered"
			c.Costs.Tiers = []TierConfig{{UpTo: 1000000, Rate: 0.0003}, {UpTo: 100000, Rate: 0.0005}}
		}, true},
		{"negative tax", func(c *Config) { c.Costs.TaxRate = -0.001 }, true},
		{"unknown slippage type", func(c *Config) { c.Costs.SlippageType = "impact" }, true},
		{"drawdown above one", func(c *Config) { c.Risk.MaxDrawdown = 1.2 }, true},
		{"negative max positions", func(c *Config) { c.Risk.MaxPositions = -1 }, true},
		{"negative atr multiplier", func(c *Config) { c.Risk.ATRStopMultiplier = -2 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mod(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, core.ErrConfigInvalid) && !errors.Is(err, core.ErrConfigMissing) {
				t.Errorf("expected a config error code, got %v", err)
			}
		})
	}
}
