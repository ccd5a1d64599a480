package backtest

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quantbed/quantbed/internal/config"
	"github.com/quantbed/quantbed/internal/perf"
	"github.com/quantbed/quantbed/internal/portfolio"
)

// Status tracks a run through its lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	// StatusCancelled is reserved for callers that distinguish operator
	// aborts when storing results; the engine itself maps context
	// cancellation to StatusFailed.
	StatusCancelled Status = "cancelled"
)

// Result is the self-contained output of one run: the config snapshot,
// every trade and daily snapshot, and the computed metrics bundle.
type Result struct {
	// ID uniquely identifies the run.
	ID string `json:"id"`
	// Strategies lists the strategy names the run executed, in order.
	Strategies []string `json:"strategies"`
	// Symbols lists the instruments supplied to the run.
	Symbols []string `json:"symbols"`
	// Status is the run lifecycle state.
	Status Status `json:"status"`
	// StartDate and EndDate bound the bars actually processed.
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	// InitialCapital and FinalCapital are the cash book-ends of the run.
	InitialCapital decimal.Decimal `json:"initial_capital"`
	FinalCapital   decimal.Decimal `json:"final_capital"`
	// Config is the configuration snapshot the run executed under.
	Config *config.Config `json:"config,omitempty"`
	// Trades is the ordered trade list.
	Trades []*portfolio.Trade `json:"trades"`
	// Snapshots is the ordered daily snapshot list.
	Snapshots []portfolio.DailySnapshot `json:"snapshots"`
	// Metrics is the computed metrics bundle; nil when the run failed
	// before completion.
	Metrics *perf.Metrics `json:"metrics,omitempty"`
	// MonthlyReturns and YearlyReturns are resampled period returns keyed
	// by "2006-01" and "2006".
	MonthlyReturns map[string]float64 `json:"monthly_returns,omitempty"`
	YearlyReturns  map[string]float64 `json:"yearly_returns,omitempty"`
	// StoppedEarly is set when a circuit breaker terminated the run
	// before the last supplied bar; StopReason names the breaker.
	StoppedEarly bool   `json:"stopped_early,omitempty"`
	StopReason   string `json:"stop_reason,omitempty"`
	// Error carries the failure message when Status is failed.
	Error string `json:"error,omitempty"`
	// StartedAt, FinishedAt and Duration record execution time.
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
}

// NewResult creates a pending result for a run about to start.
func NewResult(cfg *config.Config, strategies, symbols []string) *Result {
	return &Result{
		ID:             uuid.NewString(),
		Strategies:     strategies,
		Symbols:        symbols,
		Status:         StatusPending,
		InitialCapital: decimal.NewFromFloat(cfg.Backtest.InitialCapital),
		Config:         cfg,
		StartedAt:      time.Now(),
	}
}

// MarkRunning transitions the result into the running state.
func (r *Result) MarkRunning(start time.Time) {
	r.Status = StatusRunning
	r.StartDate = start
}

// MarkCompleted finalizes a successful run.
func (r *Result) MarkCompleted(end time.Time, finalCapital decimal.Decimal) {
	r.Status = StatusCompleted
	r.EndDate = end
	r.FinalCapital = finalCapital
	r.finish()
}

// MarkFailed records the failure and preserves whatever trades and
// snapshots were collected before it.
func (r *Result) MarkFailed(err error) {
	r.Status = StatusFailed
	if err != nil {
		r.Error = err.Error()
	}
	r.finish()
}

func (r *Result) finish() {
	r.FinishedAt = time.Now()
	r.Duration = r.FinishedAt.Sub(r.StartedAt)
}

// TotalTrades returns the number of recorded trades.
func (r *Result) TotalTrades() int {
	return len(r.Trades)
}

// TotalReturn returns the fractional capital growth over the run.
func (r *Result) TotalReturn() float64 {
	if !r.InitialCapital.IsPositive() {
		return 0
	}
	ret, _ := r.FinalCapital.Sub(r.InitialCapital).Div(r.InitialCapital).Float64()
	return ret
}
