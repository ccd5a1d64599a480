package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/quantbed/quantbed/internal/core"
)

// Engine manages and runs strategies
type Engine struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	logger     *zap.Logger
}

// NewEngine creates a new strategy engine
func NewEngine(logger ...*zap.Logger) *Engine {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Engine{
		strategies: make(map[string]Strategy),
		logger:     l,
	}
}

// Register adds a strategy to the engine
func (e *Engine) Register(s Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies[s.Name()] = s
}

// Get retrieves a strategy by name
func (e *Engine) Get(name string) (Strategy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.strategies[name]
	return s, ok
}

// Names returns the registered strategy names in sorted order.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.strategies))
	for name := range e.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetAll returns all registered strategies in name order
func (e *Engine) GetAll() []Strategy {
	names := e.Names()

	e.mu.RLock()
	defer e.mu.RUnlock()
	result := make([]Strategy, 0, len(names))
	for _, name := range names {
		result = append(result, e.strategies[name])
	}
	return result
}

// RequiredHistory returns the largest history requirement among the
// named strategies.
func (e *Engine) RequiredHistory(names []string) int {
	max := 0
	for _, name := range names {
		s, ok := e.Get(name)
		if !ok {
			continue
		}
		if h := s.RequiredData().PriceHistory; h > max {
			max = h
		}
	}
	return max
}

// Analyze runs the named strategies in order on the given context.
// Callers pass an explicit name list so identical inputs always produce
// identical signal sequences. A strategy error aborts the analysis
// rather than silently dropping the strategy.
func (e *Engine) Analyze(ctx context.Context, analysisCtx AnalysisContext, names []string) ([]core.Signal, error) {
	var allSignals []core.Signal

	for _, name := range names {
		select {
		case <-ctx.Done():
			return allSignals, ctx.Err()
		default:
		}

		s, ok := e.Get(name)
		if !ok {
			return nil, core.WrapError(core.ErrStrategyNotFound, fmt.Errorf("strategy %q", name))
		}

		signals, err := s.Analyze(analysisCtx)
		if err != nil {
			return nil, core.WrapError(core.ErrStrategyFailed, fmt.Errorf("strategy %q: %w", name, err))
		}

		for i := range signals {
			signals[i].Strategy = s.Name()
			if !signals[i].IsValid() {
				e.logger.Warn("dropping invalid signal",
					zap.String("strategy", s.Name()),
					zap.String("symbol", signals[i].Symbol),
				)
				continue
			}
			allSignals = append(allSignals, signals[i])
		}
	}

	return allSignals, nil
}

// AnalyzeAll runs every registered strategy in name order
func (e *Engine) AnalyzeAll(ctx context.Context, analysisCtx AnalysisContext) ([]core.Signal, error) {
	return e.Analyze(ctx, analysisCtx, e.Names())
}
