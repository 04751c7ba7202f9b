package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stockroom-labs/inventory-gate/auth"
	"github.com/stockroom-labs/inventory-gate/formats"
	"github.com/stockroom-labs/inventory-gate/nav"
	"github.com/stockroom-labs/inventory-gate/routes"
)

// navCmd creates the nav subcommand
func navCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "nav",
		Short: "Print the navigation menu visible to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.authenticate(cmd.Context())
			if err != nil {
				return err
			}
			entries := nav.Filter(user, routes.DefaultMenu())
			if len(entries) == 0 {
				fmt.Fprintln(a.out, "No menu entries.")
				return nil
			}
			renderMenu(a.out, entries)
			return nil
		},
	}
}

// routesCmd creates the routes subcommand
func routesCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List application pages and the permission each requires",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := formats.Parse(output)
			if err != nil {
				return err
			}
			table := formats.Table{Columns: []string{"name", "path", "requires", "fallback"}}
			for _, r := range routes.Default().Routes() {
				table.Rows = append(table.Rows, []string{r.Name, r.Path, r.Requirement.String(), r.Fallback})
			}
			return formats.Write(a.out, format, table)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, csv, json)")
	return cmd
}

// openCmd creates the open subcommand
func openCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Check whether you may open an application page",
		Long: `Run the session and permission checks for an application page, the
same way the web gateway does, and print the outcome. Exits non-zero unless
the page would be shown.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			route, ok := routes.Default().Match(path)
			if !ok {
				fmt.Fprintf(a.out, "%s is not an application page\n", path)
				return errSilent
			}

			d := auth.NewGate(a.store, a.guards).Resolve(cmd.Context(), route.Requirement, route.Fallback)
			renderDecision(a.out, path, d)
			if d.Kind != auth.DecisionRender {
				return errSilent
			}
			return nil
		},
	}
}
