package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/procesa/pesaje/internal/config"
	"github.com/procesa/pesaje/internal/ledger/schema"
	"github.com/procesa/pesaje/internal/split"
	"github.com/procesa/pesaje/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show ledger and sync status",
	Long: `Display the local ledger status:
  - Ledger file location and size
  - Change queue counters
  - Rows in today's snapshot per table
  - Runtime switch state`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer ledger.Close()
		ctx := cmd.Context()

		stats, err := ledger.QueueStats(ctx)
		if err != nil {
			return err
		}
		snap, err := ledger.CollectToday(ctx)
		if err != nil {
			return err
		}

		sizeStr := "unknown"
		if info, err := os.Stat(cfg.Database.Path); err == nil {
			sizeStr = formatSize(info.Size())
		}
		sw := config.NewRuntimeSwitch(cfg.Sync.SwitchFile)
		syncState := ui.RenderPass("enabled")
		if !sw.SyncEnabled() {
			syncState = ui.RenderWarn("disabled")
		}

		fmt.Printf("\n%s\n\n", ui.RenderHeader("Ledger Status"))
		fmt.Print(ui.KV([][2]string{
			{"Location", cfg.Database.Path},
			{"Size", sizeStr},
			{"Today", string(ledger.Today())},
			{"Background sync", syncState},
			{"Queue pending", strconv.Itoa(stats.Pending)},
			{"Queue processed", strconv.Itoa(stats.Processed)},
		}))

		fmt.Printf("\n%s\n", ui.RenderHeader("Today's snapshot"))
		counts := snap.Counts()
		rows := make([][2]string, 0, len(schema.LedgerTables))
		for _, t := range schema.LedgerTables {
			rows = append(rows, [2]string{string(t), strconv.Itoa(counts[t])})
		}
		fmt.Print(ui.KV(rows))
		fmt.Println()
		return nil
	},
}

func formatSize(size int64) string {
	switch {
	case size > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	case size > 1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	}
	return fmt.Sprintf("%d bytes", size)
}

var splitCmd = &cobra.Command{
	Use:     "split <requested> <net>...",
	GroupID: "advanced",
	Short:   "Compute how the last container of a load is divided",
	Long: `Compute the container division for a load, without touching the ledger.

Nets are the container net weights in loading order; only the last one is
divided. The new container always goes to production and the original one,
now lighter, stays in storage.

Example:
  pesaje split 1700 500 500 1000`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		qty, err := parseWeight(args[0])
		if err != nil {
			return err
		}
		nets := make([]float64, 0, len(args)-1)
		for _, a := range args[1:] {
			for _, part := range strings.Split(a, ",") {
				if strings.TrimSpace(part) == "" {
					continue
				}
				n, err := parseWeight(part)
				if err != nil {
					return err
				}
				nets = append(nets, n)
			}
		}

		res, err := split.Split(qty, nets)
		if err != nil {
			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(map[string]string{"error": err.Error()})
			}
			return err
		}
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		if res.NoSplitNeeded {
			fmt.Printf("%s %s\n", ui.RenderPass("✓"), split.NoSplitMessage)
			return nil
		}

		fmt.Print(ui.KV([][2]string{
			{"Requested", fmtKg(res.RequestedQty)},
			{"Available", fmtKg(res.Total)},
			{"Surplus", fmtKg(res.Surplus)},
			{"Last container", fmtKg(res.Original)},
			{"To production", ui.RenderAccent(fmtKg(res.ToProduction))},
			{"To storage", fmtKg(res.ToStorage)},
			{"Containers", strconv.Itoa(res.ContainersUsed)},
		}))
		fmt.Printf("   %s\n", ui.RenderMuted(res.Recommendation))
		if !res.Divisible() {
			fmt.Printf("   %s surplus covers the whole last container\n", ui.RenderWarn("⚠"))
		}
		return nil
	},
}

func parseWeight(s string) (float64, error) {
	n, ok, err := schema.ParseNumber(s)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("empty weight")
	}
	return n, nil
}

func fmtKg(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + " kg"
}

func init() {
	splitCmd.Flags().Bool("json", false, "print the result as JSON")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(splitCmd)
}
