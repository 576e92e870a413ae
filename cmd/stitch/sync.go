package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	syncengine "github.com/aliakbrhasan/stitchsync/internal/sync"
)

var syncForce bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile local changes with the remote backend now",
	Long: `Reconcile local changes with the remote backend.

Pushes every pending local change, then pulls remote updates. Newer
remote records overwrite local ones; records edited locally since their
last sync win over older remote copies. Safe to run while 'stitch
serve' is active: overlapping passes are skipped, not doubled.

--force runs the same pass as an explicit retry; the offline and
already-running guards still apply.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}
		st, err := openStore(cfg)
		if err != nil {
			fatalf("%v", err)
		}
		defer st.Close()

		logger := log.New(os.Stderr, "[sync] ", log.LstdFlags)
		engine, _, monitor := buildEngine(cfg, st, logger)

		// One-shot commands have no background prober; check now.
		monitor.ProbeNow(cmd.Context())

		run := engine.Sync
		if syncForce {
			run = engine.Force
		}
		result, err := run(cmd.Context())
		if err != nil {
			switch {
			case errors.Is(err, syncengine.ErrNotConfigured):
				fatalf("no remote configured; set remote.url and remote.token in stitch.yaml")
			case errors.Is(err, syncengine.ErrOffline):
				fatalf("remote unreachable; changes remain queued locally")
			case errors.Is(err, syncengine.ErrAlreadySyncing):
				fatalf("a sync pass is already running")
			default:
				fatalf("sync failed: %v", err)
			}
		}

		fmt.Println(result.Message)
		if result.Failed > 0 {
			os.Exit(1)
		}
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity and pending changes",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}
		st, err := openStore(cfg)
		if err != nil {
			fatalf("%v", err)
		}
		defer st.Close()

		logger := log.New(os.Stderr, "[sync] ", log.LstdFlags)
		engine, client, monitor := buildEngine(cfg, st, logger)

		if client.Configured() {
			monitor.ProbeNow(cmd.Context())
		}

		status, err := engine.Status(cmd.Context())
		if err != nil {
			fatalf("failed to read status: %v", err)
		}

		conn := "offline"
		if !client.Configured() {
			conn = "offline (no remote configured)"
		} else if status.Online {
			conn = "online"
		}
		fmt.Printf("Connection:      %s\n", conn)
		fmt.Printf("Pending changes: %d\n", status.PendingChanges)
		if status.LastSyncAt != nil {
			fmt.Printf("Last sync:       %s\n", status.LastSyncAt.Format("2006-01-02 15:04:05"))
		} else {
			fmt.Printf("Last sync:       never\n")
		}
	},
}

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent local changes",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}
		st, err := openStore(cfg)
		if err != nil {
			fatalf("%v", err)
		}
		defer st.Close()

		entries, err := st.ListChanges(cmd.Context(), logLimit)
		if err != nil {
			fatalf("failed to read change log: %v", err)
		}
		if len(entries) == 0 {
			fmt.Println("No changes recorded")
			return
		}
		for _, e := range entries {
			ack := "pending"
			if e.Acknowledged {
				ack = "synced"
			}
			fmt.Printf("%5d  %s  %-8s %-8s %s  %s\n",
				e.Seq, e.At.Format("2006-01-02 15:04:05"), e.Op, e.Kind, e.RecordID, ack)
		}
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "retry now even if nothing looks pending")
	logCmd.Flags().IntVar(&logLimit, "limit", 50, "maximum entries to show")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logCmd)
}
