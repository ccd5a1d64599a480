package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quantbed/quantbed/internal/archive"
	"github.com/quantbed/quantbed/internal/backtest"
	"github.com/quantbed/quantbed/internal/feed"
	"github.com/quantbed/quantbed/internal/logger"
	"github.com/quantbed/quantbed/internal/report"
	"github.com/quantbed/quantbed/internal/store"
)

var (
	runData    string
	runSymbols []string
	runFrom    string
	runTo      string
	runNoStore bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a backtest over CSV bar data",
	Long:  "Replay the enabled strategies over daily bars, print the report and index the result",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runData, "data", "", "Directory of <symbol>.csv bar files (required)")
	runCmd.Flags().StringSliceVar(&runSymbols, "symbols", nil, "Symbols to include (default: every file in --data)")
	runCmd.Flags().StringVar(&runFrom, "from", "", "Start date YYYY-MM-DD (overrides config)")
	runCmd.Flags().StringVar(&runTo, "to", "", "End date YYYY-MM-DD (overrides config)")
	runCmd.Flags().BoolVar(&runNoStore, "no-store", false, "Skip writing the result to the run index")

	runCmd.MarkFlagRequired("data")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, usedDefaults, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.Must(debug || cfg.Log.Development)
	defer log.Sync()

	if usedDefaults {
		log.Warn("no config file specified, using defaults")
	}

	if runFrom != "" {
		if _, err := time.Parse("2006-01-02", runFrom); err != nil {
			return fmt.Errorf("invalid from date format (expected YYYY-MM-DD): %w", err)
		}
		cfg.Backtest.StartDate = runFrom
	}
	if runTo != "" {
		if _, err := time.Parse("2006-01-02", runTo); err != nil {
			return fmt.Errorf("invalid to date format (expected YYYY-MM-DD): %w", err)
		}
		cfg.Backtest.EndDate = runTo
	}
	if cfg.Backtest.StartDate != "" && cfg.Backtest.EndDate != "" && cfg.Backtest.EndDate < cfg.Backtest.StartDate {
		return fmt.Errorf("end date must be after start date")
	}

	registry, err := buildRegistry(cfg, log)
	if err != nil {
		return err
	}

	// New validates the configuration before any data is touched.
	engine, err := backtest.New(cfg, registry, log)
	if err != nil {
		return err
	}

	dataset, err := feed.NewLoader(log).LoadDir(runData, runSymbols...)
	if err != nil {
		return err
	}

	first, last := dataset.Range()
	fmt.Println("=== QUANTBED Backtest ===")
	fmt.Printf("Strategies: %s\n", strings.Join(engine.Strategies(), ", "))
	fmt.Printf("Symbols:    %s\n", strings.Join(dataset.Symbols(), ", "))
	fmt.Printf("Data:       %d bars, %s to %s\n", dataset.TotalBars(),
		first.Format("2006-01-02"), last.Format("2006-01-02"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, runErr := engine.Run(ctx, dataset)
	if res == nil {
		return runErr
	}

	report.NewConsole().Render(res)

	// Failed runs are persisted too so they show up in the index.
	if !runNoStore && cfg.Store.DSN != "" {
		if err := saveToStore(cfg.Store.DSN, res); err != nil {
			log.Error("storing result", zap.Error(err))
		} else {
			log.Info("result stored",
				zap.String("run_id", res.ID),
				zap.String("dsn", cfg.Store.DSN),
			)
		}
	}

	arc, err := archive.FromConfig(cfg.Archive)
	if err != nil {
		log.Error("configuring archive", zap.Error(err))
	} else if arc != nil {
		key, err := arc.SaveResult(context.Background(), res)
		if err != nil {
			log.Error("archiving result", zap.Error(err))
		} else {
			log.Info("result archived", zap.String("key", key))
		}
	}

	return runErr
}

func saveToStore(dsn string, res *backtest.Result) error {
	st, err := store.Open(dsn)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.SaveResult(context.Background(), res)
}
