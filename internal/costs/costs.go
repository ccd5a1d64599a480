package costs

import (
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/quantbed/quantbed/internal/core"
)

// CommissionType selects how commission is derived from trade notional.
type CommissionType string

const (
	CommissionPercent CommissionType = "percent"
	CommissionFixed   CommissionType = "fixed"
	CommissionTiered  CommissionType = "tiered"
)

// SlippageType selects how fills deviate from the reference price.
type SlippageType string

const (
	SlippagePercent SlippageType = "percent"
	SlippageTick    SlippageType = "tick"
)

// Tier is one commission bracket. Rate applies to notionals up to and
// including UpTo; notionals beyond the last ceiling use the last rate.
type Tier struct {
	UpTo decimal.Decimal
	Rate decimal.Decimal
}

// Config holds commission, tax and slippage settings for a model.
type Config struct {
	CommissionType CommissionType
	BuyRate        decimal.Decimal
	SellRate       decimal.Decimal
	TaxRate        decimal.Decimal // charged on sale proceeds only
	MinCommission  decimal.Decimal
	FixedAmount    decimal.Decimal
	Tiers          []Tier

	SlippageType   SlippageType
	SlippageValue  decimal.Decimal
	SlippageRange  decimal.Decimal
	RandomSlippage bool
}

// Model prices commissions, taxes and slippage for simulated fills.
// Methods are pure given a fixed random source.
type Model struct {
	cfg Config
	rng *rand.Rand
}

// New validates the config and builds a model. Random slippage draws from
// rng; a nil rng falls back to a fixed-seed source so runs stay
// reproducible unless a caller opts in to real randomness.
func New(cfg Config, rng *rand.Rand) (*Model, error) {
	switch cfg.CommissionType {
	case CommissionPercent, CommissionFixed:
	case CommissionTiered:
		if len(cfg.Tiers) == 0 {
			return nil, core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("tiered commission requires at least one tier"))
		}
		prev := decimal.Zero
		for i, tier := range cfg.Tiers {
			if tier.Rate.IsNegative() {
				return nil, core.WrapError(core.ErrConfigInvalid,
					fmt.Errorf("tier %d rate cannot be negative", i))
			}
			if !tier.UpTo.GreaterThan(prev) {
				return nil, core.WrapError(core.ErrConfigInvalid,
					fmt.Errorf("tier ceilings must be strictly increasing"))
			}
			prev = tier.UpTo
		}
	default:
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown commission type %q", cfg.CommissionType))
	}

	for name, v := range map[string]decimal.Decimal{
		"buy rate":       cfg.BuyRate,
		"sell rate":      cfg.SellRate,
		"tax rate":       cfg.TaxRate,
		"min commission": cfg.MinCommission,
		"fixed amount":   cfg.FixedAmount,
	} {
		if v.IsNegative() {
			return nil, core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("%s cannot be negative", name))
		}
	}

	switch cfg.SlippageType {
	case SlippagePercent, SlippageTick:
	default:
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown slippage type %q", cfg.SlippageType))
	}
	if cfg.SlippageValue.IsNegative() || cfg.SlippageRange.IsNegative() {
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("slippage values cannot be negative"))
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	return &Model{cfg: cfg, rng: rng}, nil
}

// BuyCost returns the commission charged on a buy of the given notional.
func (m *Model) BuyCost(notional decimal.Decimal) decimal.Decimal {
	return m.commission(notional, m.cfg.BuyRate)
}

// SellCost returns the commission plus sale-proceeds tax for the given
// notional. Tax is independent of the commission type.
func (m *Model) SellCost(notional decimal.Decimal) decimal.Decimal {
	c := m.commission(notional, m.cfg.SellRate)
	return c.Add(notional.Mul(m.cfg.TaxRate))
}

func (m *Model) commission(notional, rate decimal.Decimal) decimal.Decimal {
	var c decimal.Decimal
	switch m.cfg.CommissionType {
	case CommissionFixed:
		return m.cfg.FixedAmount
	case CommissionTiered:
		c = notional.Mul(m.tierRate(notional))
	default:
		c = notional.Mul(rate)
	}
	if c.LessThan(m.cfg.MinCommission) {
		return m.cfg.MinCommission
	}
	return c
}

func (m *Model) tierRate(notional decimal.Decimal) decimal.Decimal {
	for _, tier := range m.cfg.Tiers {
		if notional.LessThanOrEqual(tier.UpTo) {
			return tier.Rate
		}
	}
	return m.cfg.Tiers[len(m.cfg.Tiers)-1].Rate
}

// ApplySlippage moves the price against the trader: up for buys, down for
// sells. Percent mode scales by a fraction, tick mode shifts by a fixed
// amount. Fills never cross zero; a tick larger than the price leaves the
// price untouched.
func (m *Model) ApplySlippage(price decimal.Decimal, isBuy bool) decimal.Decimal {
	if m.cfg.SlippageType == SlippageTick {
		if isBuy {
			return price.Add(m.cfg.SlippageValue)
		}
		adjusted := price.Sub(m.cfg.SlippageValue)
		if !adjusted.IsPositive() {
			return price
		}
		return adjusted
	}

	frac := m.cfg.SlippageValue
	if m.cfg.RandomSlippage {
		frac = m.cfg.SlippageRange.Mul(decimal.NewFromFloat(m.rng.Float64()))
	}
	if isBuy {
		return price.Mul(decimal.NewFromInt(1).Add(frac))
	}
	return price.Mul(decimal.NewFromInt(1).Sub(frac))
}
