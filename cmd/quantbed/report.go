package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/quantbed/quantbed/internal/report"
	"github.com/quantbed/quantbed/internal/store"
)

var listLimit int

var reportCmd = &cobra.Command{
	Use:   "report [run-id]",
	Short: "Print the full report for a stored run",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs, newest first",
	RunE:  runList,
}

func init() {
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum number of runs to show")

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(listCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := st.GetResult(context.Background(), args[0])
	if err != nil {
		return err
	}

	report.NewConsole().Render(res)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(context.Background(), listLimit)
	if err != nil {
		return err
	}

	report.NewConsole().RenderRuns(runs)
	return nil
}
