package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/stockroom-labs/inventory-gate/auth"
	"github.com/stockroom-labs/inventory-gate/nav"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	groupStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	pathStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	grantedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	deniedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	boxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// renderUser prints the profile and the granted permission flags.
func renderUser(w io.Writer, u *auth.User) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", titleStyle.Render("User:"), u.Username)
	fmt.Fprintf(&b, "%s %d\n", titleStyle.Render("ID:"), u.ID)
	if u.JobName != "" {
		fmt.Fprintf(&b, "%s %s\n", titleStyle.Render("Job:"), u.JobName)
	}
	if u.PhoneNumber != "" {
		fmt.Fprintf(&b, "%s %s\n", titleStyle.Render("Phone:"), u.PhoneNumber)
	}

	if auth.Evaluate(u, auth.AdminOnly()) {
		fmt.Fprintf(&b, "%s %s", titleStyle.Render("Permissions:"), grantedStyle.Render("administrator (all)"))
	} else {
		granted := grantedFlags(u)
		if len(granted) == 0 {
			fmt.Fprintf(&b, "%s %s", titleStyle.Render("Permissions:"), pathStyle.Render("none"))
		} else {
			fmt.Fprintf(&b, "%s", titleStyle.Render("Permissions:"))
			for _, f := range granted {
				fmt.Fprintf(&b, "\n  %s %s", grantedStyle.Render("✓"), f)
			}
		}
	}
	fmt.Fprintln(w, boxStyle.Render(b.String()))
}

func grantedFlags(u *auth.User) []string {
	var out []string
	for f, v := range u.Flags {
		if v {
			out = append(out, string(f))
		}
	}
	sort.Strings(out)
	return out
}

// renderMenu prints the navigation tree.
func renderMenu(w io.Writer, entries []nav.Entry) {
	nav.Walk(entries, func(depth int, e nav.Entry) {
		indent := strings.Repeat("  ", depth)
		if e.IsGroup() {
			fmt.Fprintf(w, "%s%s\n", indent, groupStyle.Render(e.Label))
			return
		}
		fmt.Fprintf(w, "%s%s %s\n", indent, e.Label, pathStyle.Render(e.Path))
	})
}

// renderDecision prints a guard decision for path.
func renderDecision(w io.Writer, path string, d auth.Decision) {
	switch d.Kind {
	case auth.DecisionRender:
		fmt.Fprintf(w, "%s %s\n", grantedStyle.Render("granted"), path)
	case auth.DecisionRedirect:
		fmt.Fprintf(w, "%s %s -> %s (%s)\n", warnStyle.Render("redirect"), path, d.Location, d.Reason)
	case auth.DecisionDenied:
		fmt.Fprintf(w, "%s %s: %s\n", deniedStyle.Render("denied"), path, d.Reason)
		if len(d.Missing) > 0 {
			names := make([]string, len(d.Missing))
			for i, f := range d.Missing {
				names[i] = string(f)
			}
			fmt.Fprintf(w, "  missing: %s\n", strings.Join(names, ", "))
		}
	case auth.DecisionUnavailable:
		fmt.Fprintf(w, "%s %s: %s\n", warnStyle.Render("unavailable"), path, d.Reason)
	default:
		fmt.Fprintf(w, "%s %s\n", d.Kind, path)
	}
}
