package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/procesa/pesaje/internal/ledger/db"
	"github.com/procesa/pesaje/internal/ledger/loadtest"
	"github.com/procesa/pesaje/internal/sitetime"
	"github.com/procesa/pesaje/internal/ui"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "advanced",
	Short:   "Stress a scratch ledger with concurrent scales and docks",
	Long: `Run concurrent weighing and receiving writers against a scratch ledger
while snapshot collectors read today's rows, then verify every write landed
exactly once.

The configured ledger is never touched: the run uses a temporary database
that is removed afterwards unless --keep is given.

Examples:
  pesaje loadtest
  pesaje loadtest --scales 8 --weighings 100 --docks 4
  pesaje loadtest --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := loadtest.DefaultOptions()
		opts.Scales, _ = cmd.Flags().GetInt("scales")
		opts.WeighingsPerScale, _ = cmd.Flags().GetInt("weighings")
		opts.Docks, _ = cmd.Flags().GetInt("docks")
		opts.RecordsPerDock, _ = cmd.Flags().GetInt("records")
		opts.Collectors, _ = cmd.Flags().GetInt("collectors")
		keep, _ := cmd.Flags().GetBool("keep")
		asJSON, _ := cmd.Flags().GetBool("json")

		dir, err := os.MkdirTemp("", "pesaje-loadtest-")
		if err != nil {
			return err
		}
		if !keep {
			defer os.RemoveAll(dir)
		}

		clock, err := sitetime.New(cfg.Site.Zone)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, "loadtest.db")
		ledger, err := db.OpenWithConfig(path, &db.Config{
			Clock:        clock,
			BusyTimeout:  cfg.Database.BusyTimeout,
			MaxOpenConns: cfg.Database.MaxOpenConns,
		})
		if err != nil {
			return err
		}
		defer ledger.Close()
		if err := ledger.EnsureSchema(cmd.Context()); err != nil {
			return err
		}

		if !asJSON {
			fmt.Printf("%s %d scales x %d weighings, %d docks x %d records, %d collectors\n",
				ui.RenderAccent("▶"), opts.Scales, opts.WeighingsPerScale, opts.Docks, opts.RecordsPerDock, opts.Collectors)
		}
		report, runErr := loadtest.Run(cmd.Context(), ledger, opts)

		if asJSON {
			if report == nil {
				return runErr
			}
			out := struct {
				*loadtest.Report
				Errors []string
			}{Report: report}
			for _, e := range report.Errors {
				out.Errors = append(out.Errors, e.Error())
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			return runErr
		}

		if report != nil {
			report.Weighings.Print(os.Stdout, "Weighings")
			report.Receiving.Print(os.Stdout, "Receiving records")
			report.Collects.Print(os.Stdout, "Snapshot collections")
			fmt.Printf("Elapsed: %v\n", report.Elapsed.Round(time.Millisecond))
		}
		if keep {
			fmt.Printf("Ledger kept at %s\n", path)
		}
		if runErr != nil {
			fmt.Printf("%s %v\n", ui.RenderFail("✗"), runErr)
			return runErr
		}
		fmt.Printf("%s Ledger consistent\n", ui.RenderPass("✓"))
		return nil
	},
}

func init() {
	d := loadtest.DefaultOptions()
	loadtestCmd.Flags().Int("scales", d.Scales, "concurrent weighing writers")
	loadtestCmd.Flags().Int("weighings", d.WeighingsPerScale, "weighings per scale")
	loadtestCmd.Flags().Int("docks", d.Docks, "concurrent receiving writers")
	loadtestCmd.Flags().Int("records", d.RecordsPerDock, "receiving records per dock")
	loadtestCmd.Flags().Int("collectors", d.Collectors, "concurrent snapshot readers")
	loadtestCmd.Flags().Bool("keep", false, "keep the scratch ledger")
	loadtestCmd.Flags().Bool("json", false, "print the report as JSON")
	rootCmd.AddCommand(loadtestCmd)
}
