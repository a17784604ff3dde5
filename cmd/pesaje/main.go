// Command pesaje runs a site's weighing ledger: the HTTP entry points used
// by the scales, the background sync with the remote backend, and the
// operator tooling around both.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/procesa/pesaje/internal/config"
	"github.com/procesa/pesaje/internal/ledger/db"
	ledgersync "github.com/procesa/pesaje/internal/ledger/sync"
	"github.com/procesa/pesaje/internal/logging"
	"github.com/procesa/pesaje/internal/sitetime"
)

var (
	v       = config.NewViper()
	cfgFile string
	quiet   bool

	cfg  *config.Config
	sink *logging.Sink
)

var rootCmd = &cobra.Command{
	Use:   "pesaje",
	Short: "Offline-first weighing ledger for a processing site",
	Long: `pesaje keeps the weighing ledger of a site on local disk and reconciles it
with the remote backend in the background.

Every write is committed locally first; connectivity only decides when the
remote catches up. Configuration comes from pesaje.yaml, a .env file and
PESAJE_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		cfg = c

		s, err := logging.NewSink(logging.Options{
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
			Quiet:      quiet,
		})
		if err != nil {
			return fmt.Errorf("failed to open log: %w", err)
		}
		sink = s
		log.SetOutput(sink.Writer())
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if sink != nil {
			return sink.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Ledger and sync:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default: pesaje.yaml in . or ./configs)")
	flags.String("db", "", "ledger database path")
	flags.String("zone", "", "site time zone")
	flags.BoolVarP(&quiet, "quiet", "q", false, "log to the log file only")

	bindFlag("database.path", "db")
	bindFlag("site.zone", "zone")
}

// bindFlag lets a persistent flag override a config key.
func bindFlag(key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("failed to bind --%s: %v", flag, err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openLedger opens the configured ledger and makes sure its schema exists.
func openLedger(cmd *cobra.Command) (*db.DB, error) {
	clock, err := sitetime.New(cfg.Site.Zone)
	if err != nil {
		return nil, err
	}
	ledger, err := db.OpenWithConfig(cfg.Database.Path, &db.Config{
		Clock:        clock,
		BusyTimeout:  cfg.Database.BusyTimeout,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return nil, err
	}
	if err := ledger.EnsureSchema(cmd.Context()); err != nil {
		_ = ledger.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return ledger, nil
}

// newSyncer wires the remote client for the configured endpoints.
func newSyncer(ledger *db.DB) ledgersync.Syncer {
	remote := ledgersync.NewClient(ledgersync.ClientConfig{
		SnapshotURL: cfg.Remote.SnapshotURL,
		RecordURL:   cfg.Remote.RecordURL,
		UpdateURL:   cfg.Remote.UpdateURL,
		DeleteURL:   cfg.Remote.DeleteURL,
		Key:         cfg.Remote.Key,
		Timeout:     cfg.Remote.Timeout,
	})
	return ledgersync.New(ledger, remote, sink.New("sync"))
}
