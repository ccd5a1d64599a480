package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quantbed/quantbed/internal/config"
	"github.com/quantbed/quantbed/internal/core"
	"github.com/quantbed/quantbed/internal/strategy"
	"github.com/quantbed/quantbed/internal/strategy/bollinger_breakout"
	"github.com/quantbed/quantbed/internal/strategy/ensemble"
	"github.com/quantbed/quantbed/internal/strategy/ma_crossover"
	"github.com/quantbed/quantbed/internal/strategy/rsi_reversion"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "quantbed",
	Short: "QUANTBED - daily-bar strategy backtesting engine",
	Long: `QUANTBED replays trading strategies over historical daily bars with
realistic execution costs, risk controls and full performance analytics.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configured file, or falls back to defaults.
// The second return reports whether the fallback was taken.
func loadConfig() (*config.Config, bool, error) {
	if cfgFile == "" {
		return config.Defaults(), true, nil
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, false, fmt.Errorf("loading config: %w", err)
	}
	return cfg, false, nil
}

// buildRegistry registers the built-in strategies, applying any params
// from the config. The ensemble is wired from its configured members.
func buildRegistry(cfg *config.Config, log *zap.Logger) (*strategy.Engine, error) {
	registry := strategy.NewEngine(log)

	base := []strategy.Strategy{
		ma_crossover.New(5, 20),
		rsi_reversion.New(14, 30, 70),
		bollinger_breakout.New(20, 2.0),
	}
	byName := make(map[string]strategy.Strategy, len(base))
	for _, s := range base {
		if sc, ok := cfg.Strategies[s.Name()]; ok {
			if err := s.Init(strategy.Config{Enabled: sc.Enabled, Params: sc.Params}); err != nil {
				return nil, fmt.Errorf("configuring strategy %q: %w", s.Name(), err)
			}
		}
		registry.Register(s)
		byName[s.Name()] = s
	}

	if sc, ok := cfg.Strategies["ensemble"]; ok {
		members, err := ensembleMembers(sc.Params, byName)
		if err != nil {
			return nil, err
		}
		ens := ensemble.New(0.5, members...)
		if err := ens.Init(strategy.Config{Enabled: sc.Enabled, Params: sc.Params}); err != nil {
			return nil, fmt.Errorf("configuring strategy %q: %w", ens.Name(), err)
		}
		registry.Register(ens)
	}

	return registry, nil
}

// ensembleMembers resolves the configured member names against the
// base strategies, defaulting to all of them with uniform weight.
func ensembleMembers(params map[string]any, byName map[string]strategy.Strategy) ([]ensemble.Member, error) {
	names := []string{"ma_crossover", "rsi_reversion", "bollinger_breakout"}

	if raw, ok := params["members"]; ok {
		names = names[:0]
		switch list := raw.(type) {
		case []string:
			names = list
		case []any:
			for _, v := range list {
				name, ok := v.(string)
				if !ok {
					return nil, fmt.Errorf("ensemble members must be strategy names, got %T", v)
				}
				names = append(names, name)
			}
		default:
			return nil, fmt.Errorf("ensemble members must be a list, got %T", raw)
		}
	}

	members := make([]ensemble.Member, 0, len(names))
	for _, name := range names {
		s, ok := byName[name]
		if !ok {
			return nil, core.WrapError(core.ErrStrategyNotFound, fmt.Errorf("ensemble member %q", name))
		}
		members = append(members, ensemble.Member{Strategy: s, Weight: 1})
	}
	return members, nil
}
