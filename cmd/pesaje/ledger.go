package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/procesa/pesaje/internal/ledger/catalog"
	"github.com/procesa/pesaje/internal/ui"
)

var snapshotCmd = &cobra.Command{
	Use:     "snapshot",
	GroupID: "sync",
	Short:   "Print the snapshot of a day as JSON",
	Long: `Print the active rows of one site-local day, shaped exactly like the
document the sync pass pushes to the remote backend.

--day accepts YYYY-MM-DD or an expression such as "yesterday" or
"last friday". The default is today.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dayExpr, _ := cmd.Flags().GetString("day")

		ledger, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer ledger.Close()

		day, err := ledger.Clock().ResolveDay(dayExpr)
		if err != nil {
			return err
		}
		snap, err := ledger.CollectDay(cmd.Context(), day)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "%s %s: %d rows\n", ui.RenderAccent("●"), day, snap.Len())
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

var queueCmd = &cobra.Command{
	Use:     "queue",
	GroupID: "sync",
	Short:   "Inspect the change queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent queue entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		pendingOnly, _ := cmd.Flags().GetBool("pending")

		ledger, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer ledger.Close()

		entries, err := ledger.QueueEntries(cmd.Context(), limit)
		if pendingOnly {
			entries, err = ledger.PendingEntries(cmd.Context())
		}
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Printf("%s Queue is empty\n", ui.RenderPass("✓"))
			return nil
		}

		for _, e := range entries {
			state := ui.RenderWarn("pending  ")
			if e.Processed {
				state = ui.RenderMuted("processed")
			}
			fmt.Printf("%6d  %s  %-6s  %s  %s\n", e.ID, state, e.Operation, e.RecordID, ui.RenderMuted(e.CreatedAt))
		}
		return nil
	},
}

var queueRequeueCmd = &cobra.Command{
	Use:   "requeue <entry-id>",
	Short: "Mark a processed entry as pending again",
	Long: `Mark a processed queue entry as pending so the next pass replays it.

Use this when the remote backend lost a change it had confirmed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid entry id %q", args[0])
		}

		ledger, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer ledger.Close()

		if err := ledger.UnmarkProcessed(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("%s Entry %d requeued\n", ui.RenderPass("✓"), id)
		return nil
	},
}

var catalogCmd = &cobra.Command{
	Use:     "catalog",
	GroupID: "advanced",
	Short:   "Manage the tare, size and ship catalogs",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <tina|talla|barcos> <file.json>",
	Short: "Replace a catalog from a JSON array",
	Long: `Replace a catalog with the entries of a JSON array, in one transaction.

  tina:   [{"sku": "TL-01", "tara": 171}]
  talla:  [{"sku": "P16", "descripcion": "...", "especie": "...", "talla": "16/20"}]
  barcos: [{"inicial": "A", "descripcion": "..."}]

A malformed file leaves the current catalog untouched.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := catalog.ParseKind(args[0])
		if err != nil {
			return err
		}
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()

		ledger, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer ledger.Close()

		n, err := catalog.Import(cmd.Context(), ledger, kind, f)
		if err != nil {
			return err
		}
		fmt.Printf("%s Imported %d %s entries\n", ui.RenderPass("✓"), n, kind)
		return nil
	},
}

var catalogCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count entries per catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer ledger.Close()

		store := catalog.New(ledger)
		rows := make([][2]string, 0, len(catalog.Kinds))
		for _, k := range catalog.Kinds {
			n, err := store.Count(cmd.Context(), k)
			if err != nil {
				return err
			}
			rows = append(rows, [2]string{string(k), strconv.Itoa(n)})
		}
		fmt.Print(ui.KV(rows))
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "advanced",
	Short:   "Show the effective configuration",
	Long: `Print the configuration after merging defaults, pesaje.yaml, .env and
PESAJE_* variables. The remote key is masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		if used := v.ConfigFileUsed(); used != "" {
			fmt.Fprintf(os.Stderr, "# %s\n", used)
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

func init() {
	snapshotCmd.Flags().String("day", "", "day to collect (YYYY-MM-DD or natural language)")
	queueListCmd.Flags().Int("limit", 50, "maximum entries to list (0 for all)")
	queueListCmd.Flags().Bool("pending", false, "list only pending entries, oldest first")

	queueCmd.AddCommand(queueListCmd, queueRequeueCmd)
	catalogCmd.AddCommand(catalogImportCmd, catalogCountCmd)

	rootCmd.AddCommand(snapshotCmd, queueCmd, catalogCmd, configCmd)
}
