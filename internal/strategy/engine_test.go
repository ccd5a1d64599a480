package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/quantbed/quantbed/internal/core"
)

type mockStrategy struct {
	name    string
	signals []core.Signal
	err     error
}

func (m *mockStrategy) Name() string        { return m.name }
func (m *mockStrategy) Description() string { return "mock strategy" }
func (m *mockStrategy) RequiredData() DataRequirements {
	return DataRequirements{PriceHistory: 200}
}
func (m *mockStrategy) Init(cfg Config) error { return nil }
func (m *mockStrategy) Analyze(ctx AnalysisContext) ([]core.Signal, error) {
	return m.signals, m.err
}

func TestEngine_RegisterAndRun(t *testing.T) {
	engine := NewEngine()

	mockSig := core.Signal{
		Symbol:   "600519",
		Action:   core.ActionBuy,
		Strength: 0.8,
	}

	engine.Register(&mockStrategy{
		name:    "mock",
		signals: []core.Signal{mockSig},
	})

	ctx := AnalysisContext{
		Symbol: "600519",
		Bars:   []core.Bar{},
	}

	signals, err := engine.AnalyzeAll(context.Background(), ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}

	if signals[0].Action != core.ActionBuy {
		t.Errorf("expected Buy action, got %s", signals[0].Action)
	}

	if signals[0].Strategy != "mock" {
		t.Errorf("expected strategy name to be stamped, got %q", signals[0].Strategy)
	}
}

func TestEngine_NamesSorted(t *testing.T) {
	engine := NewEngine()
	engine.Register(&mockStrategy{name: "zeta"})
	engine.Register(&mockStrategy{name: "alpha"})
	engine.Register(&mockStrategy{name: "mid"})

	names := engine.Names()
	if len(names) != 3 {
		t.Fatalf("expected 3 names, got %d", len(names))
	}
	if names[0] != "alpha" || names[2] != "zeta" {
		t.Errorf("expected sorted names, got %v", names)
	}

	all := engine.GetAll()
	if len(all) != 3 || all[0].Name() != "alpha" {
		t.Errorf("expected GetAll in name order, got %d entries", len(all))
	}
}

func TestEngine_AnalyzeSubset(t *testing.T) {
	engine := NewEngine()

	engine.Register(&mockStrategy{
		name:    "s1",
		signals: []core.Signal{{Symbol: "A", Action: core.ActionBuy}},
	})
	engine.Register(&mockStrategy{
		name:    "s2",
		signals: []core.Signal{{Symbol: "B", Action: core.ActionSell}},
	})

	ctx := AnalysisContext{Symbol: "TEST"}

	// Only run s1
	signals, err := engine.Analyze(context.Background(), ctx, []string{"s1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}

	if signals[0].Strategy != "s1" {
		t.Errorf("expected strategy s1, got %s", signals[0].Strategy)
	}
}

func TestEngine_AnalyzeUnknownStrategy(t *testing.T) {
	engine := NewEngine()

	_, err := engine.Analyze(context.Background(), AnalysisContext{}, []string{"missing"})
	if !errors.Is(err, core.ErrStrategyNotFound) {
		t.Errorf("expected ErrStrategyNotFound, got %v", err)
	}
}

func TestEngine_AnalyzeStrategyError(t *testing.T) {
	engine := NewEngine()
	engine.Register(&mockStrategy{name: "bad", err: errors.New("boom")})

	_, err := engine.Analyze(context.Background(), AnalysisContext{}, []string{"bad"})
	if !errors.Is(err, core.ErrStrategyFailed) {
		t.Errorf("expected ErrStrategyFailed, got %v", err)
	}
}

func TestEngine_DropsInvalidSignals(t *testing.T) {
	engine := NewEngine()
	engine.Register(&mockStrategy{
		name: "mixed",
		signals: []core.Signal{
			{Symbol: "A", Action: core.ActionBuy, Strength: 0.5},
			{Symbol: "", Action: core.ActionBuy}, // missing symbol
			{Symbol: "B", Action: "short"},       // unknown action
		},
	})

	signals, err := engine.AnalyzeAll(context.Background(), AnalysisContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("expected 1 valid signal, got %d", len(signals))
	}
	if signals[0].Symbol != "A" {
		t.Errorf("expected the valid signal to survive, got %s", signals[0].Symbol)
	}
}

func TestEngine_RequiredHistory(t *testing.T) {
	engine := NewEngine()
	engine.Register(&mockStrategy{name: "deep"})

	if got := engine.RequiredHistory([]string{"deep", "missing"}); got != 200 {
		t.Errorf("expected 200, got %d", got)
	}
	if got := engine.RequiredHistory(nil); got != 0 {
		t.Errorf("expected 0 for empty list, got %d", got)
	}
}
