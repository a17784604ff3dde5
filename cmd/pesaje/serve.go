package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/procesa/pesaje/internal/api"
	"github.com/procesa/pesaje/internal/config"
	"github.com/procesa/pesaje/internal/ledger/catalog"
	"github.com/procesa/pesaje/internal/ledger/daemon"
	"github.com/procesa/pesaje/internal/ledger/dashboard"
	"github.com/procesa/pesaje/internal/ledger/gateway"
	"github.com/procesa/pesaje/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "sync",
	Short:   "Serve the scales and run the background sync",
	Long: `Start the HTTP entry points and the sync orchestrator in one process.

The orchestrator runs a pass every sync.interval unless the runtime switch
file says sync_enabled: false. Manual passes requested through
/sincronizacion_manual wait for a running pass and never overlap it.

Live events (sync_started, sync_complete, sync_failed, sync_skipped,
config_changed, field_updated) are broadcast on ws://<addr>/ws.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, err := openLedger(cmd)
		if err != nil {
			return err
		}
		defer ledger.Close()

		hub := dashboard.NewHub(&dashboard.Config{
			BufferSize:   100,
			WriteTimeout: dashboard.DefaultConfig().WriteTimeout,
			Logger:       sink.New("dashboard"),
		})
		hub.Start()
		defer hub.Stop()
		notifier := dashboard.NewNotifier(hub, sink.New("dashboard"))

		switchPath := ""
		if cfg.Sync.Watch {
			switchPath = cfg.Sync.SwitchFile
		}
		orch, err := daemon.NewWithConfig(newSyncer(ledger), config.NewRuntimeSwitch(cfg.Sync.SwitchFile), &daemon.Config{
			Interval:   cfg.Sync.Interval,
			SwitchPath: switchPath,
			Logger:     sink.New("daemon"),
			Observer:   notifier,
		})
		if err != nil {
			return fmt.Errorf("failed to create orchestrator: %w", err)
		}

		srv, err := api.NewWithConfig(api.Deps{
			Ledger:  ledger,
			Sync:    orch,
			Gateway: gateway.New(ledger, notifier, sink.New("gateway")),
			Catalog: catalog.New(ledger),
			Hub:     hub,
		}, &api.Config{
			Addr:            cfg.Server.Addr,
			Mode:            cfg.Server.Mode,
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			Logger:          sink.New("api"),
			AccessLog:       sink.Writer(),
		})
		if err != nil {
			return fmt.Errorf("failed to create server: %w", err)
		}

		fmt.Printf("%s Serving on %s\n", ui.RenderAccent("▶"), cfg.Server.Addr)
		fmt.Print(ui.KV([][2]string{
			{"Ledger", cfg.Database.Path},
			{"Sync interval", cfg.Sync.Interval.String()},
			{"Switch file", cfg.Sync.SwitchFile},
			{"Live feed", "ws://" + displayAddr(cfg.Server.Addr) + "/ws"},
		}))
		fmt.Println("\nPress Ctrl+C to stop")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Run(gctx) })
		g.Go(func() error { return orch.Run(gctx) })
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		fmt.Printf("%s Stopped\n", ui.RenderPass("✓"))
		return nil
	},
}

// displayAddr turns ":5000" into "localhost:5000".
func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
