package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dentops/chairside/internal/dashboard"
	"github.com/dentops/chairside/internal/trigger"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Run the sync daemon for this workstation.

The daemon:
  1. Probes canonical-store connectivity on an interval
  2. Drains the pending queue when connectivity returns
  3. Re-runs reconciliation periodically as a retry safety net
  4. Serves a WebSocket dashboard with live sync and queue events

Stop with Ctrl+C; shutdown waits for an in-flight pass to finish.`,
	Run: func(cmd *cobra.Command, args []string) {
		app, err := openApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		var dash *dashboard.Server
		if app.cfg.DashboardPort > 0 {
			dash = dashboard.NewServer(&dashboard.Config{
				Port:   app.cfg.DashboardPort,
				Logger: log.New(app.logger.Writer(), "[dashboard] ", log.LstdFlags),
			})
			if err := dash.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
				os.Exit(1)
			}
			app.engine.SetNotifier(dash)
			fmt.Printf("Dashboard: http://localhost:%d (ws://localhost:%d/ws)\n",
				app.cfg.DashboardPort, app.cfg.DashboardPort)
		}

		app.monitor.Start()
		defer app.monitor.Stop()

		trigCfg := trigger.DefaultConfig()
		trigCfg.Interval = app.cfg.SyncInterval
		trigCfg.Logger = app.logger
		trig := trigger.New(app.engine, app.monitor, app.cfg.ClinicID, trigCfg)
		trig.Start()
		defer trig.Stop()

		// Feed connectivity transitions and queue depth to the dashboard.
		done := make(chan struct{})
		if dash != nil {
			go func() {
				ticker := time.NewTicker(app.cfg.SyncInterval)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						counts, err := app.local.PendingCounts(cmd.Context(), app.cfg.ClinicID)
						if err != nil {
							app.logger.Printf("Warning: failed to count pending records: %v", err)
							continue
						}
						dash.BroadcastPending(app.cfg.ClinicID, counts)
					}
				}
			}()
		}

		fmt.Printf("Chairside daemon running for clinic %s\n", app.cfg.ClinicID)
		fmt.Println("Press Ctrl+C to stop...")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down...")
		close(done)
		if dash != nil {
			if err := dash.Stop(); err != nil {
				app.logger.Printf("Warning: dashboard shutdown: %v", err)
			}
		}
	},
}
