package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/stockroom-labs/inventory-gate/client"
	"github.com/stockroom-labs/inventory-gate/session"
)

// loginCmd creates the login subcommand
func loginCmd(a *app) *cobra.Command {
	var username string
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the inventory backend",
		Long: `Exchange username and password for a session token and load your
permissions. Without flags an interactive form is shown; in scripts pass
--username and pipe the password with --password-stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if passwordStdin {
				if username == "" {
					return errors.New("--username is required with --password-stdin")
				}
				var err error
				if password, err = readSecretLine(a.in); err != nil {
					return err
				}
			} else {
				if !interactive(a.in) {
					return errors.New("no terminal available for the login form (use --username and --password-stdin)")
				}
				if err := promptCredentials(&username, &password); err != nil {
					return err
				}
			}

			if err := a.store.SignIn(cmd.Context(), username, password); err != nil {
				if errors.Is(err, client.ErrInvalidCredentials) {
					return errors.New("invalid username or password")
				}
				return fmt.Errorf("login failed: %w", err)
			}

			fmt.Fprintf(a.out, "✓ Logged in as %s\n", a.store.User().Username)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")

	return cmd
}

// logoutCmd creates the logout subcommand
func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "✓ Logged out")
			return nil
		},
	}
}

// whoamiCmd creates the whoami subcommand
func whoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current user and its permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.authenticate(cmd.Context())
			if err != nil {
				return err
			}
			renderUser(a.out, user)
			return nil
		},
	}
}

// statusCmd creates the status subcommand
func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session without contacting the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(a.out, "Backend:  %s\n", a.cfg.BackendURL)
			fmt.Fprintf(a.out, "Storage:  %s\n", a.storage.Path())

			token := a.store.Token()
			if token == "" {
				fmt.Fprintln(a.out, "Session:  none")
				return nil
			}

			if ts, ok, err := a.storage.UpdatedAt(cmd.Context(), session.TokenKey); err == nil && ok {
				fmt.Fprintf(a.out, "Session:  stored %s\n", ts.Local().Format(time.RFC1123))
			} else {
				fmt.Fprintln(a.out, "Session:  stored")
			}

			exp, ok := session.TokenExpiry(token)
			switch {
			case !ok:
				fmt.Fprintln(a.out, "Expires:  unknown")
			case exp.Before(time.Now()):
				fmt.Fprintf(a.out, "Expires:  %s\n", deniedStyle.Render("expired "+exp.Local().Format(time.RFC1123)))
			default:
				fmt.Fprintf(a.out, "Expires:  %s (in %s)\n", exp.Local().Format(time.RFC1123), time.Until(exp).Round(time.Minute))
			}
			return nil
		},
	}
}
