package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/procesa/pesaje/internal/config"
	ledgersync "github.com/procesa/pesaje/internal/ledger/sync"
	"github.com/procesa/pesaje/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Run one sync pass now",
	Long: `Run a single sync pass in the foreground:
  1. Replay pending receiving-record changes in the order they were made
  2. Push today's snapshot of every ledger table

The pass ignores the runtime switch, like the manual trigger of a running
server. Do not run it while "pesaje serve" is syncing the same ledger.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		queueOnly, _ := cmd.Flags().GetBool("queue-only")

		ledger, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer ledger.Close()
		syncer := newSyncer(ledger)

		start := time.Now()
		if queueOnly {
			report, err := syncer.DrainQueue(cmd.Context())
			printQueueReport(report)
			if err != nil {
				return fmt.Errorf("queue drain failed: %w", err)
			}
			return nil
		}

		out := syncer.RunPass(cmd.Context())
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}

		if out.OK() {
			fmt.Printf("%s %s (%v)\n", ui.RenderPass("✓"), out.Message, time.Since(start).Round(time.Millisecond))
		} else {
			fmt.Printf("%s %s\n", ui.RenderFail("✗"), out.Message)
		}
		printQueueReport(out.Queue)
		if out.Snapshot.Sent {
			fmt.Printf("   Snapshot %s: %d rows sent\n", out.Snapshot.Day, out.Snapshot.Rows)
		}
		if !out.OK() {
			return out.Err
		}
		return nil
	},
}

func printQueueReport(r ledgersync.QueueReport) {
	fmt.Print(ui.KV([][2]string{
		{"Pending", fmt.Sprint(r.Pending)},
		{"Processed", fmt.Sprint(r.Processed)},
		{"Failed", fmt.Sprint(r.Failed)},
		{"Blocked", fmt.Sprint(r.Blocked)},
	}))
	if r.Aborted {
		fmt.Printf("   %s remote unreachable, remaining entries left for the next pass\n", ui.RenderWarn("⚠"))
	}
}

var switchCmd = &cobra.Command{
	Use:     "switch [on|off]",
	GroupID: "sync",
	Short:   "Show or set the runtime sync switch",
	Long: `Show or set sync_enabled in the runtime switch file.

A running server reads the file before every scheduled pass, so the change
takes effect at the next tick without a restart. Other keys in the file are
kept.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		sw := config.NewRuntimeSwitch(cfg.Sync.SwitchFile)
		if len(args) == 1 {
			switch args[0] {
			case "on":
				if err := sw.SetSyncEnabled(true); err != nil {
					return err
				}
			case "off":
				if err := sw.SetSyncEnabled(false); err != nil {
					return err
				}
			default:
				return fmt.Errorf("expected on or off, got %q", args[0])
			}
		}

		state := ui.RenderPass("enabled")
		if !sw.SyncEnabled() {
			state = ui.RenderWarn("disabled")
		}
		fmt.Printf("Background sync %s (%s)\n", state, sw.Path())
		return nil
	},
}

func init() {
	syncCmd.Flags().Bool("json", false, "print the pass outcome as JSON")
	syncCmd.Flags().Bool("queue-only", false, "replay the change queue without pushing the snapshot")
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(switchCmd)
}
