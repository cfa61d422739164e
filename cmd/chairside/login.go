package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/dentops/chairside/internal/remote"
	"github.com/dentops/chairside/internal/ui"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and cache the session for offline use",
	Long: `Authenticate against the identity provider.

The session token and operator record are cached locally, so "who is logged
in" keeps resolving while the provider is unreachable. Logging in itself
requires connectivity.`,
	Run: func(cmd *cobra.Command, args []string) {
		app, err := openApp()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		if !app.monitor.CheckNow(cmd.Context()) {
			fmt.Fprintf(os.Stderr, "Error: login requires connectivity to the identity provider\n")
			os.Exit(1)
		}

		var email, password string
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Email").
					Value(&email),
				huh.NewInput().
					Title("Password").
					EchoMode(huh.EchoModePassword).
					Value(&password),
			),
		)
		if err := form.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		token, op, err := app.resolver.Login(cmd.Context(), email, password)
		if err != nil {
			if errors.Is(err, remote.ErrInvalidCredentials) {
				fmt.Fprintf(os.Stderr, "%s invalid email or password\n", ui.Err.Render("Error:"))
			} else {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			os.Exit(1)
		}

		if err := app.saveSessionToken(token); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s logged in as %s (%s)\n", ui.Online.Render("OK:"), op.Name, op.Role)
	},
}
