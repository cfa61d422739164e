// Command chairside is the offline-first sync tool for clinic workstations.
//
// It keeps a local SQLite cache of the clinic's records, lets the front desk
// keep booking and billing while the canonical store is unreachable, and
// reconciles the backlog automatically when connectivity returns.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "chairside",
	Short: "Offline-first sync for dental clinic workstations",
	Long: `Chairside keeps clinic records available through network outages.

Reads prefer the canonical store and fall back to the local cache; writes made
offline are queued with provisional ids and replayed in dependency order when
connectivity returns. Run "chairside daemon" on the workstation to sync
automatically, or "chairside sync" to drain the queue by hand.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.chairside/config.yaml)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(bookCmd)
	rootCmd.AddCommand(consultCmd)
	rootCmd.AddCommand(payCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
