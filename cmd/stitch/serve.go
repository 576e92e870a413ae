package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/aliakbrhasan/stitchsync/internal/daemon"
	"github.com/aliakbrhasan/stitchsync/internal/dashboard"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background sync daemon and live dashboard",
	Long: `Run the background sync daemon.

The daemon probes connectivity, pushes pending changes whenever the
terminal is online, applies config changes without a restart, and
serves a WebSocket dashboard with live sync status.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}

		var logOut io.Writer = os.Stderr
		if cfg.LogFile != "" {
			logOut = io.MultiWriter(os.Stderr, &lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    10, // MB
				MaxBackups: 3,
				MaxAge:     28, // days
			})
		}
		logger := log.New(logOut, "[stitch] ", log.LstdFlags)

		st, err := openStore(cfg)
		if err != nil {
			fatalf("%v", err)
		}
		defer st.Close()

		engine, client, monitor := buildEngine(cfg, st, logger)

		dash := dashboard.NewServer(&dashboard.Config{
			Port:   cfg.Dashboard.Port,
			Status: engine.Status,
			Logger: logger,
		})
		if err := dash.Start(); err != nil {
			fatalf("failed to start dashboard: %v", err)
		}
		defer dash.Stop()

		dmCfg := daemon.DefaultConfig()
		dmCfg.SyncInterval = cfg.Sync.Interval
		dmCfg.ConfigFile = cfg.File
		dmCfg.Logger = logger

		dm, err := daemon.New(st, engine, monitor, client, dash, dmCfg)
		if err != nil {
			fatalf("failed to create daemon: %v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("stitch daemon running (dashboard on %s), Ctrl-C to stop\n", dash.Addr())
		if err := dm.Start(ctx); err != nil {
			fatalf("daemon error: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
