package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dentops/chairside/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity and pending-queue status",
	Run: func(cmd *cobra.Command, args []string) {
		app, err := openApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		online := app.monitor.CheckNow(cmd.Context())

		fmt.Println(ui.Header.Render("Chairside status"))
		fmt.Printf("  Clinic:     %s\n", app.cfg.ClinicID)
		fmt.Printf("  Cache:      %s\n", app.cfg.CachePath)
		fmt.Printf("  Canonical:  %s\n", ui.StatusWord(online))
		if app.engine.Syncing(app.cfg.ClinicID) {
			fmt.Printf("  Engine:     %s\n", ui.Pending.Render("syncing"))
		} else {
			fmt.Printf("  Engine:     idle\n")
		}

		counts, err := app.local.PendingCounts(cmd.Context(), app.cfg.ClinicID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		total := 0
		families := make([]string, 0, len(counts))
		for family, n := range counts {
			total += n
			families = append(families, family)
		}
		sort.Strings(families)

		fmt.Println()
		if total == 0 {
			fmt.Println(ui.Online.Render("  No pending changes"))
			return
		}
		fmt.Println(ui.Pending.Render(fmt.Sprintf("  %d changes waiting to sync:", total)))
		for _, family := range families {
			if counts[family] == 0 {
				continue
			}
			fmt.Printf("    %-15s %d\n", family, counts[family])
		}
	},
}
