// Command stitch is the point-of-sale terminal for the tailoring shop.
//
// All reads and writes go to a local SQLite database and work with no
// network at all; a background daemon (or an explicit `stitch sync`)
// reconciles the local state with the remote backend whenever a
// connection is available.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/aliakbrhasan/stitchsync/internal/config"
	"github.com/aliakbrhasan/stitchsync/internal/connectivity"
	"github.com/aliakbrhasan/stitchsync/internal/remote"
	"github.com/aliakbrhasan/stitchsync/internal/store"
	syncengine "github.com/aliakbrhasan/stitchsync/internal/sync"
)

var (
	flagConfig string
	flagDB     string
)

var rootCmd = &cobra.Command{
	Use:   "stitch",
	Short: "Offline-first POS for the tailoring shop",
	Long: `stitch manages customers, invoices and orders for a tailoring shop.

Every command works against the local database and never blocks on the
network. Run 'stitch serve' for background sync, or 'stitch sync' to
reconcile with the remote backend on demand.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: stitch.yaml in . or ~/.stitchsync)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "local database path (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads configuration, applying the --db override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagDB != "" {
		cfg.DBPath = flagDB
	}
	return cfg, nil
}

// openStore opens the local database for a one-shot command.
func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.DBPath, err)
	}
	return st, nil
}

// buildEngine wires the sync engine for a one-shot command. The
// returned monitor has not probed yet; callers decide whether to.
func buildEngine(cfg *config.Config, st *store.Store, logger *log.Logger) (*syncengine.Engine, *remote.Client, *connectivity.Monitor) {
	client := remote.NewClient(&http.Client{Timeout: cfg.Remote.Timeout}, cfg.Remote.URL, cfg.Remote.Token)

	monCfg := connectivity.DefaultConfig()
	monCfg.Interval = cfg.Sync.ProbeInterval
	monCfg.Timeout = cfg.Remote.Timeout
	monCfg.Logger = logger
	monitor := connectivity.New(client, monCfg)

	opts := syncengine.DefaultOptions()
	opts.CallTimeout = cfg.Remote.Timeout
	opts.AdoptRemote = cfg.Sync.AdoptRemote
	engine := syncengine.New(st, client, monitor, opts, logger)

	return engine, client, monitor
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
