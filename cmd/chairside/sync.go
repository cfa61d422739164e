package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dentops/chairside/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain the pending queue now",
	Long: `Run one reconciliation pass immediately.

Pending creates, updates, and deletes are replayed to the canonical store in
dependency order (consultations, appointments, treatments, payments). Records
that fail stay queued and are retried on the next pass.`,
	Run: func(cmd *cobra.Command, args []string) {
		app, err := openApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		if !app.monitor.CheckNow(cmd.Context()) {
			fmt.Printf("%s canonical store unreachable, nothing synced\n", ui.Offline.Render("OFFLINE:"))
			fmt.Println(ui.Muted.Render("Queued changes will sync automatically when connectivity returns."))
			return
		}

		start := time.Now()
		if err := app.engine.Sync(cmd.Context(), app.cfg.ClinicID); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		counts, err := app.local.PendingCounts(cmd.Context(), app.cfg.ClinicID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		remaining := 0
		for _, n := range counts {
			remaining += n
		}
		fmt.Printf("Sync pass complete in %v\n", time.Since(start).Round(time.Millisecond))
		if remaining == 0 {
			fmt.Println(ui.Online.Render("Queue empty, everything reconciled"))
		} else {
			fmt.Printf("%s\n", ui.Pending.Render(fmt.Sprintf("%d records still pending (conflicts or unreachable parents)", remaining)))
		}
	},
}
