package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dentops/chairside/internal/auth"
	"github.com/dentops/chairside/internal/ui"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in operator, online or offline",
	Run: func(cmd *cobra.Command, args []string) {
		app, err := openApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		token := app.sessionToken()
		if token == "" {
			fmt.Fprintf(os.Stderr, "Error: not logged in (run \"chairside login\")\n")
			os.Exit(1)
		}

		online := app.monitor.CheckNow(cmd.Context())

		op, err := app.resolver.CurrentOperator(cmd.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrNoCachedOperator) {
				fmt.Fprintf(os.Stderr, "Error: session cannot be resolved offline; log in again once online\n")
			} else {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			os.Exit(1)
		}

		fmt.Printf("%s (%s) at clinic %s [%s]\n", op.Name, op.Role, op.ClinicID, ui.StatusWord(online))
		if !online {
			fmt.Println(ui.Muted.Render("Resolved from cached session; identity provider unreachable."))
		}
	},
}
