package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/stockroom-labs/inventory-gate/auth"
	"github.com/stockroom-labs/inventory-gate/client"
)

// userCmd creates the user subcommand with register/update/passwd/delete
func userCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users (admin only)",
	}
	cmd.AddCommand(userRegisterCmd(a), userUpdateCmd(a), userPasswdCmd(a), userDeleteCmd(a))
	return cmd
}

// requireAdmin runs the admin-only gate the user pages use.
func (a *app) requireAdmin(ctx context.Context) (*auth.User, error) {
	user, err := a.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	d := auth.NewAuthorizationGuard(a.store, auth.AdminOnly(), "", a.guards).Resolve(ctx)
	if d.Kind != auth.DecisionRender {
		return nil, errors.New("user management is restricted to the administrator")
	}
	return user, nil
}

// readPassword gets a password from stdin or an interactive form.
func (a *app) readPassword(fromStdin bool) (string, error) {
	if fromStdin {
		return readSecretLine(a.in)
	}
	if !interactive(a.in) {
		return "", errors.New("no terminal available for the password prompt (use --password-stdin)")
	}
	var password string
	if err := promptNewPassword(&password); err != nil {
		return "", err
	}
	return password, nil
}

func flagMap(grant, revoke []string) (map[auth.Flag]bool, error) {
	out := make(map[auth.Flag]bool, len(grant)+len(revoke))
	granted, err := auth.ParseFlags(grant)
	if err != nil {
		return nil, err
	}
	revoked, err := auth.ParseFlags(revoke)
	if err != nil {
		return nil, err
	}
	for _, f := range granted {
		out[f] = true
	}
	for _, f := range revoked {
		if out[f] {
			return nil, fmt.Errorf("flag %s both granted and revoked", f)
		}
		out[f] = false
	}
	return out, nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

func userRegisterCmd(a *app) *cobra.Command {
	var reg client.Registration
	var grant []string
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.requireAdmin(cmd.Context()); err != nil {
				return err
			}
			flags, err := flagMap(grant, nil)
			if err != nil {
				return err
			}
			reg.Flags = flags
			if reg.Password, err = a.readPassword(passwordStdin); err != nil {
				return err
			}

			user, err := a.client.Register(cmd.Context(), a.store.Token(), reg)
			if err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}
			fmt.Fprintf(a.out, "✓ Created user '%s' (id %d)\n", user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&reg.Username, "username", "u", "", "Username (required)")
	cmd.Flags().StringVar(&reg.JobName, "job", "", "Job name")
	cmd.Flags().StringVar(&reg.PhoneNumber, "phone", "", "Phone number")
	cmd.Flags().StringSliceVarP(&grant, "grant", "g", nil, "Permission flags to grant")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	cmd.MarkFlagRequired("username")

	return cmd
}

func userUpdateCmd(a *app) *cobra.Command {
	var username, job, phone string
	var grant, revoke []string

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a user's details and permissions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			me, err := a.requireAdmin(ctx)
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			flags, err := flagMap(grant, revoke)
			if err != nil {
				return err
			}

			var update client.UserUpdate
			update.Flags = flags
			if cmd.Flags().Changed("username") {
				update.Username = &username
			}
			if cmd.Flags().Changed("job") {
				update.JobName = &job
			}
			if cmd.Flags().Changed("phone") {
				update.PhoneNumber = &phone
			}

			user, err := a.client.UpdateUser(ctx, a.store.Token(), id, update)
			if err != nil {
				return fmt.Errorf("failed to update user: %w", err)
			}
			fmt.Fprintf(a.out, "✓ Updated user '%s'\n", user.Username)

			// Our own record changed: reload it so later checks see it.
			if id == me.ID {
				if err := a.store.Refresh(ctx); err != nil {
					return fmt.Errorf("failed to reload your permissions: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "New username")
	cmd.Flags().StringVar(&job, "job", "", "New job name")
	cmd.Flags().StringVar(&phone, "phone", "", "New phone number")
	cmd.Flags().StringSliceVarP(&grant, "grant", "g", nil, "Permission flags to grant")
	cmd.Flags().StringSliceVarP(&revoke, "revoke", "r", nil, "Permission flags to revoke")

	return cmd
}

func userPasswdCmd(a *app) *cobra.Command {
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "passwd <id>",
		Short: "Set a user's password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.requireAdmin(cmd.Context()); err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			password, err := a.readPassword(passwordStdin)
			if err != nil {
				return err
			}
			if err := a.client.ChangePassword(cmd.Context(), a.store.Token(), id, password); err != nil {
				return fmt.Errorf("failed to change password: %w", err)
			}
			fmt.Fprintf(a.out, "✓ Password changed for user %d\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	return cmd
}

func userDeleteCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			me, err := a.requireAdmin(cmd.Context())
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if id == me.ID {
				return errors.New("refusing to delete your own account")
			}

			if !force {
				if !interactive(a.in) {
					return errors.New("use --force to delete without confirmation")
				}
				ok, err := confirm(fmt.Sprintf("Delete user %d?", id))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(a.out, "Aborted.")
					return nil
				}
			}

			if err := a.client.DeleteUser(cmd.Context(), a.store.Token(), id); err != nil {
				return fmt.Errorf("failed to delete user: %w", err)
			}
			fmt.Fprintf(a.out, "✓ Deleted user %d\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Do not ask for confirmation")
	return cmd
}
