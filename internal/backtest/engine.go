// Package backtest replays trading strategies against historical daily
// bars. The engine walks the sorted union of trading dates, marks open
// positions, evaluates protective exits against each bar's high/low
// range, executes strategy signals at slippage-adjusted closes and
// records one snapshot per bar. Runs are deterministic: instruments and
// strategies are always iterated in sorted order.
package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantbed/quantbed/internal/config"
	"github.com/quantbed/quantbed/internal/core"
	"github.com/quantbed/quantbed/internal/costs"
	"github.com/quantbed/quantbed/internal/perf"
	"github.com/quantbed/quantbed/internal/portfolio"
	"github.com/quantbed/quantbed/internal/risk"
	"github.com/quantbed/quantbed/internal/strategy"
)

// Engine simulates one run at a time. Construct a fresh engine or wait
// for Run to return before starting another run; instances are not
// reentrant.
type Engine struct {
	cfg       *config.Config
	costModel *costs.Model
	policy    risk.Policy
	sizer     Sizer
	registry  *strategy.Engine
	names     []string
	calc      *perf.Calculator
	logger    *zap.Logger

	initialCapital decimal.Decimal
	warmup         int
	startDate      time.Time
	endDate        time.Time

	running atomic.Bool

	// Per-run state, reset at the top of Run. Owned exclusively by the
	// running goroutine.
	cash        decimal.Decimal
	ledger      *portfolio.Ledger
	trades      *portfolio.Log
	snapshots   []portfolio.DailySnapshot
	peak        decimal.Decimal
	prevEquity  decimal.Decimal
	tradesToday int
}

// instrumentData holds one instrument's sorted bars and a date index so
// bar lookups and history windows are O(1) per bar.
type instrumentData struct {
	bars  []core.Bar
	index map[time.Time]int
}

// New validates the configuration and wires the engine's collaborators.
// Configuration problems surface here, before any simulation work.
func New(cfg *config.Config, registry *strategy.Engine, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	model, err := costs.New(costsFromConfig(cfg.Costs), nil)
	if err != nil {
		return nil, err
	}

	policy := policyFromConfig(cfg.Risk)

	names := make([]string, 0, len(cfg.Strategies))
	for name, sc := range cfg.Strategies {
		if !sc.Enabled {
			continue
		}
		if _, ok := registry.Get(name); !ok {
			return nil, core.WrapError(core.ErrStrategyNotFound, fmt.Errorf("strategy %q", name))
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("no strategies enabled"))
	}

	var start, end time.Time
	if cfg.Backtest.StartDate != "" {
		start, _ = time.Parse("2006-01-02", cfg.Backtest.StartDate)
	}
	if cfg.Backtest.EndDate != "" {
		end, _ = time.Parse("2006-01-02", cfg.Backtest.EndDate)
	}

	return &Engine{
		cfg:       cfg,
		costModel: model,
		policy:    policy,
		sizer: Sizer{
			Method:         SizeMethod(cfg.Backtest.SizeMethod),
			Value:          decimal.NewFromFloat(cfg.Backtest.SizeValue),
			KellyWinRate:   decimal.NewFromFloat(cfg.Backtest.KellyWinRate),
			MaxPositionPct: policy.MaxPositionPct,
			RiskBudget:     policy.MaxDailyLoss,
			StopLossPct:    policy.StopLossPct,
		},
		registry:       registry,
		names:          names,
		calc:           perf.NewCalculator(),
		logger:         logger,
		initialCapital: decimal.NewFromFloat(cfg.Backtest.InitialCapital),
		warmup:         cfg.Backtest.WarmupBars,
		startDate:      start,
		endDate:        end,
	}, nil
}

// Strategies returns the enabled strategy names the engine will run.
func (e *Engine) Strategies() []string {
	return e.names
}

// Run replays the enabled strategies over the supplied bar series and
// returns the result. On failure the returned result carries whatever
// trades and snapshots were recorded before the error, marked failed.
func (e *Engine) Run(ctx context.Context, series map[string][]core.Bar) (*Result, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, core.WrapError(core.ErrRunFailed, fmt.Errorf("engine already running"))
	}
	defer e.running.Store(false)

	symbols := make([]string, 0, len(series))
	for sym := range series {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	res := NewResult(e.cfg, e.names, symbols)

	axis, data, err := e.prepare(series, symbols)
	if err != nil {
		res.MarkFailed(err)
		return res, err
	}

	e.reset()
	res.MarkRunning(axis[0])
	e.logger.Info("backtest started",
		zap.String("run_id", res.ID),
		zap.Strings("symbols", symbols),
		zap.Strings("strategies", e.names),
		zap.Int("bars", len(axis)),
		zap.String("initial_capital", e.initialCapital.String()),
	)

	last, err := e.loop(ctx, res, axis, data, symbols)
	res.Trades = e.trades.All()
	res.Snapshots = e.snapshots
	if err != nil {
		res.MarkFailed(err)
		e.logger.Error("backtest failed",
			zap.String("run_id", res.ID),
			zap.Error(err),
		)
		return res, err
	}

	res.Metrics = e.calc.Calculate(e.snapshots, e.trades.Closed(), e.initialCapital)
	res.MonthlyReturns = perf.MonthlyReturns(e.snapshots, e.initialCapital)
	res.YearlyReturns = perf.YearlyReturns(e.snapshots, e.initialCapital)
	res.MarkCompleted(last, e.cash)

	e.logger.Info("backtest completed",
		zap.String("run_id", res.ID),
		zap.Int("trades", len(res.Trades)),
		zap.String("final_capital", e.cash.String()),
		zap.Duration("elapsed", res.Duration),
	)
	return res, nil
}

// reset clears per-run state so the run starts from initial capital.
func (e *Engine) reset() {
	e.cash = e.initialCapital
	e.ledger = portfolio.NewLedger()
	e.trades = portfolio.NewLog()
	e.snapshots = nil
	e.peak = e.initialCapital
	e.prevEquity = e.initialCapital
	e.tradesToday = 0
}

// prepare sorts each instrument's bars, indexes them by date, and
// builds the post-warmup date axis from the union of trading dates
// within the configured range.
func (e *Engine) prepare(series map[string][]core.Bar, symbols []string) ([]time.Time, map[string]*instrumentData, error) {
	if len(series) == 0 {
		return nil, nil, core.WrapError(core.ErrInsufficientData, fmt.Errorf("no instruments supplied"))
	}

	data := make(map[string]*instrumentData, len(series))
	dateSet := make(map[time.Time]struct{})

	for _, sym := range symbols {
		bars := make([]core.Bar, len(series[sym]))
		copy(bars, series[sym])
		sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

		index := make(map[time.Time]int, len(bars))
		for i, b := range bars {
			index[b.Date] = i
			if e.inRange(b.Date) {
				dateSet[b.Date] = struct{}{}
			}
		}
		data[sym] = &instrumentData{bars: bars, index: index}
	}

	if len(dateSet) == 0 {
		return nil, nil, core.WrapError(core.ErrInsufficientData,
			fmt.Errorf("no trading dates within the configured range"))
	}

	axis := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		axis = append(axis, d)
	}
	sort.Slice(axis, func(i, j int) bool { return axis[i].Before(axis[j]) })

	if len(axis) <= e.warmup {
		return nil, nil, core.WrapError(core.ErrInsufficientData,
			fmt.Errorf("%d bars in range, need more than the %d warmup bars", len(axis), e.warmup))
	}
	return axis[e.warmup:], data, nil
}

func (e *Engine) inRange(d time.Time) bool {
	if !e.startDate.IsZero() && d.Before(e.startDate) {
		return false
	}
	if !e.endDate.IsZero() && d.After(e.endDate) {
		return false
	}
	return true
}

// loop is the bar-by-bar walk. It returns the last processed date.
func (e *Engine) loop(ctx context.Context, res *Result, axis []time.Time, data map[string]*instrumentData, symbols []string) (time.Time, error) {
	var last time.Time

	for i, date := range axis {
		select {
		case <-ctx.Done():
			e.logger.Warn("backtest cancelled",
				zap.String("run_id", res.ID),
				zap.Time("bar", date),
			)
			return last, core.WrapError(core.ErrRunFailed, ctx.Err())
		default:
		}

		e.tradesToday = 0
		dayOpen := e.prevEquity

		// 1. Mark open positions and run protective exits.
		if err := e.manageExits(date, data); err != nil {
			return last, err
		}

		// 2. Circuit breakers, evaluated before new entries.
		equity := e.cash.Add(e.ledger.MarkValue())
		skipEntries := e.policy.DailyLossBreached(dayOpen, equity)
		if skipEntries {
			e.logger.Debug("daily loss limit hit, entries suspended for the bar", zap.Time("bar", date))
		}
		halt := e.policy.ShouldHalt(e.peak, equity)

		// 3+4. Signal generation and execution.
		if !halt {
			if err := e.processSignals(ctx, date, data, symbols, skipEntries); err != nil {
				return last, err
			}
		}

		// Liquidate on the last bar, or at a halt, before the snapshot
		// so the final equity includes exit costs.
		if halt || i == len(axis)-1 {
			if err := e.liquidate(date); err != nil {
				return last, err
			}
		}

		// 5. Snapshot.
		snap := portfolio.Snapshot(date, e.cash, e.ledger, e.prevEquity, e.peak, e.initialCapital, e.tradesToday)
		e.snapshots = append(e.snapshots, snap)
		if snap.Equity.GreaterThan(e.peak) {
			e.peak = snap.Equity
		}
		e.prevEquity = snap.Equity
		last = date

		if halt {
			res.StoppedEarly = true
			res.StopReason = "max_drawdown"
			e.logger.Warn("max drawdown breached, stopping run early",
				zap.Time("bar", date),
				zap.String("equity", equity.String()),
			)
			break
		}
	}
	return last, nil
}

// manageExits marks every open position to the bar and evaluates its
// protective levels against the bar's high/low range. Instruments with
// no data today are skipped, not closed.
func (e *Engine) manageExits(date time.Time, data map[string]*instrumentData) error {
	for _, sym := range e.ledger.Symbols() {
		d := data[sym]
		idx, ok := d.index[date]
		if !ok {
			continue
		}
		bar := d.bars[idx]

		pos := e.ledger.Get(sym)
		pos.MarkToMarket(bar.Close, bar.High)

		levels := risk.Levels{StopLoss: pos.StopLoss, TakeProfit: pos.TakeProfit, Trailing: pos.TrailingStop}
		if trig := e.policy.EvaluateExit(levels, bar.High, bar.Low); trig != nil {
			// Threshold exits fill at the level itself, with no further
			// slippage.
			if err := e.closePosition(date, sym, trig.Price, trig.Price, trig.Reason); err != nil {
				return err
			}
			continue
		}

		// Today's high feeds tomorrow's trailing level, never today's.
		pos.TrailingStop = e.policy.RaiseTrailing(pos.TrailingStop, bar.High)
	}
	return nil
}

// processSignals asks every enabled strategy for signals per instrument
// and executes them. Strategies see history up to and including the
// current bar only.
func (e *Engine) processSignals(ctx context.Context, date time.Time, data map[string]*instrumentData, symbols []string, skipEntries bool) error {
	for _, sym := range symbols {
		d := data[sym]
		idx, ok := d.index[date]
		if !ok {
			continue
		}

		actx := strategy.AnalysisContext{
			Symbol:      sym,
			Bars:        d.bars[:idx+1],
			Positions:   e.ledger.PositionMap(),
			HasPosition: e.ledger.Has(sym),
			Now:         date,
		}
		signals, err := e.registry.Analyze(ctx, actx, e.names)
		if err != nil {
			return err
		}

		for _, sig := range signals {
			if sig.Symbol != sym {
				e.logger.Warn("ignoring signal for foreign symbol",
					zap.String("strategy", sig.Strategy),
					zap.String("symbol", sig.Symbol),
				)
				continue
			}
			switch sig.Action {
			case core.ActionBuy:
				if skipEntries {
					continue
				}
				if err := e.openPosition(date, d.bars[idx], sig); err != nil {
					return err
				}
			case core.ActionSell:
				if !e.ledger.Has(sym) {
					continue
				}
				raw := d.bars[idx].Close
				fill := e.costModel.ApplySlippage(raw, false)
				if err := e.closePosition(date, sym, raw, fill, core.ExitSignal); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// openPosition sizes and books an entry fill at the bar's close,
// slippage-adjusted. Undersized or unaffordable orders are skipped, not
// errors.
func (e *Engine) openPosition(date time.Time, bar core.Bar, sig core.Signal) error {
	sym := bar.Symbol
	if e.ledger.Has(sym) {
		e.logger.Debug("entry rejected, position already open",
			zap.String("symbol", sym), zap.Time("bar", date))
		return nil
	}
	if chk := e.policy.CheckEntry(e.ledger.Count()); !chk.Allowed {
		e.logger.Debug("entry rejected",
			zap.String("symbol", sym), zap.Time("bar", date), zap.String("reason", chk.Reason))
		return nil
	}

	raw := bar.Close
	fill := e.costModel.ApplySlippage(raw, true)
	if !fill.IsPositive() {
		return nil
	}

	equity := e.cash.Add(e.ledger.MarkValue())
	notional := e.sizer.Notional(equity, e.cash, sig.Strength)
	if !notional.IsPositive() {
		return nil
	}
	qty := MaxAffordable(notional.Div(fill).IntPart(), fill, e.cash, e.costModel)
	if qty <= 0 {
		return nil
	}

	qtyDec := decimal.NewFromInt(qty)
	actual := fill.Mul(qtyDec)
	commission := e.costModel.BuyCost(actual)
	e.cash = e.cash.Sub(actual).Sub(commission)

	levels := e.policy.EntryLevels(fill, sig.StopLoss, sig.TakeProfit, sig.ATR)

	pos := &portfolio.Position{
		Symbol:       sym,
		Name:         sym,
		EntryDate:    date,
		EntryPrice:   fill,
		Quantity:     qty,
		StopLoss:     levels.StopLoss,
		TakeProfit:   levels.TakeProfit,
		TrailingStop: levels.Trailing,
		HighestPrice: fill,
	}
	// The entry happens at the close, so the day's earlier high does not
	// count toward the highest-since-entry watermark.
	pos.MarkToMarket(raw, fill)
	if err := e.ledger.Open(pos); err != nil {
		return core.WrapError(core.ErrOrderRejected, err)
	}

	e.trades.Append(&portfolio.Trade{
		Symbol:          sym,
		Strategy:        sig.Strategy,
		EntryDate:       date,
		EntryPrice:      fill,
		Quantity:        qty,
		EntryCommission: commission,
		SlippageCost:    fill.Sub(raw).Mul(qtyDec),
	})
	e.tradesToday++

	e.logger.Debug("position opened",
		zap.String("symbol", sym),
		zap.Time("bar", date),
		zap.Int64("quantity", qty),
		zap.String("fill", fill.String()),
		zap.String("strategy", sig.Strategy),
	)
	return nil
}

// closePosition books the exit fill: proceeds net of commission and tax
// move into cash and the trade's exit half is populated.
func (e *Engine) closePosition(date time.Time, sym string, rawPrice, fillPrice decimal.Decimal, reason core.ExitReason) error {
	pos, err := e.ledger.Close(sym)
	if err != nil {
		return core.WrapError(core.ErrRunFailed, err)
	}

	qty := decimal.NewFromInt(pos.Quantity)
	proceeds := fillPrice.Mul(qty)
	exitCost := e.costModel.SellCost(proceeds)
	slippage := rawPrice.Sub(fillPrice).Mul(qty)
	e.cash = e.cash.Add(proceeds).Sub(exitCost)

	tr := e.trades.Find(sym)
	if tr == nil {
		return core.WrapError(core.ErrRunFailed, fmt.Errorf("no open trade for %s", sym))
	}
	if err := tr.Close(date, fillPrice, reason, exitCost, slippage); err != nil {
		return core.WrapError(core.ErrRunFailed, err)
	}
	e.tradesToday++

	e.logger.Debug("position closed",
		zap.String("symbol", sym),
		zap.Time("bar", date),
		zap.String("reason", string(reason)),
		zap.String("fill", fillPrice.String()),
		zap.String("net_pnl", tr.NetPnL.String()),
	)
	return nil
}

// liquidate force-closes every remaining position at its last marked
// price, slippage-adjusted.
func (e *Engine) liquidate(date time.Time) error {
	for _, sym := range e.ledger.Symbols() {
		pos := e.ledger.Get(sym)
		raw := pos.MarkPrice
		fill := e.costModel.ApplySlippage(raw, false)
		if err := e.closePosition(date, sym, raw, fill, core.ExitEndOfRun); err != nil {
			return err
		}
	}
	return nil
}

func costsFromConfig(c config.CostsConfig) costs.Config {
	cc := costs.Config{
		CommissionType: costs.CommissionType(c.CommissionType),
		BuyRate:        decimal.NewFromFloat(c.BuyRate),
		SellRate:       decimal.NewFromFloat(c.SellRate),
		TaxRate:        decimal.NewFromFloat(c.TaxRate),
		MinCommission:  decimal.NewFromFloat(c.MinCommission),
		FixedAmount:    decimal.NewFromFloat(c.FixedAmount),
		SlippageType:   costs.SlippageType(c.SlippageType),
		SlippageValue:  decimal.NewFromFloat(c.SlippageValue),
		SlippageRange:  decimal.NewFromFloat(c.SlippageRange),
		RandomSlippage: c.RandomSlippage,
	}
	for _, t := range c.Tiers {
		cc.Tiers = append(cc.Tiers, costs.Tier{
			UpTo: decimal.NewFromFloat(t.UpTo),
			Rate: decimal.NewFromFloat(t.Rate),
		})
	}
	return cc
}

func policyFromConfig(c config.RiskConfig) risk.Policy {
	return risk.Policy{
		MaxDrawdown:         decimal.NewFromFloat(c.MaxDrawdown),
		MaxPositionPct:      decimal.NewFromFloat(c.MaxPositionPct),
		MaxPositions:        c.MaxPositions,
		MaxDailyLoss:        decimal.NewFromFloat(c.MaxDailyLoss),
		StopLossPct:         decimal.NewFromFloat(c.StopLossPct),
		TakeProfitPct:       decimal.NewFromFloat(c.TakeProfitPct),
		ATRStopMultiplier:   decimal.NewFromFloat(c.ATRStopMultiplier),
		ATRProfitMultiplier: decimal.NewFromFloat(c.ATRProfitMultiplier),
		UseTrailingStop:     c.UseTrailingStop,
		UseDynamicStops:     c.UseDynamicStops,
		StopOnMaxDrawdown:   c.StopOnMaxDrawdown,
	}
}
