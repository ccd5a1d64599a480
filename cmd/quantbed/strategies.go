package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quantbed/quantbed/internal/logger"
)

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List the available strategies",
	RunE:  runStrategies,
}

func init() {
	rootCmd.AddCommand(strategiesCmd)
}

func runStrategies(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.Must(debug || cfg.Log.Development)
	defer log.Sync()

	registry, err := buildRegistry(cfg, log)
	if err != nil {
		return err
	}

	fmt.Println("Available strategies:")
	for _, s := range registry.GetAll() {
		marker := " "
		if sc, ok := cfg.Strategies[s.Name()]; ok && sc.Enabled {
			marker = "*"
		}
		fmt.Printf("  %s %-20s %s (needs %d bars)\n",
			marker, s.Name(), s.Description(), s.RequiredData().PriceHistory)
	}
	fmt.Println("\n* enabled in the current config")
	return nil
}
