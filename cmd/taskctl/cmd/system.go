package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/taskflow/internal/models"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the backend is reachable",
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		status, err := a.client.Health(ctx)
		if err != nil {
			return err
		}
		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), status)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", status.Service, status.Status, a.cfg.API.BaseURL)
		return nil
	}),
}

var enumsOffline bool

var enumsCmd = &cobra.Command{
	Use:   "enums",
	Short: "Show priorities, categories, statuses, roles and colors",
	Long: `Show the value catalogue served by the backend.

When the backend cannot be reached the built-in catalogue is shown.`,
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		enums := models.DefaultEnums()
		if !enumsOffline {
			enums = a.client.EnumsOrDefault(ctx)
		}
		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), enums)
		}

		w := cmd.OutOrStdout()
		printOptions(w, "Priorities", enums.TaskPriorities)
		printOptions(w, "Categories", enums.TaskCategories)
		printOptions(w, "Statuses", enums.TaskStatuses)
		printOptions(w, "Project roles", enums.ProjectRoles)
		printOptions(w, "User roles", enums.UserRoles)
		printOptions(w, "Colors", enums.Colors)
		return nil
	}),
}

func printOptions(w io.Writer, title string, opts []models.EnumOption) {
	values := make([]string, 0, len(opts))
	for _, o := range opts {
		if o.Label != "" && o.Label != o.Value {
			values = append(values, fmt.Sprintf("%s (%s)", o.Value, o.Label))
			continue
		}
		values = append(values, o.Value)
	}
	fmt.Fprintf(w, "%-14s %s\n", title+":", strings.Join(values, ", "))
}

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Reset the backend to its sample data",
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		if err := a.client.InitDB(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Database initialized with sample data.")
		return nil
	}),
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List registered users",
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		if _, err := a.currentUser(); err != nil {
			return err
		}
		users, err := a.client.ListUsers(ctx)
		if err != nil {
			return err
		}
		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), users)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-6s  %-20s  %-30s  %s\n", "ID", "USERNAME", "EMAIL", "ROLE")
		fmt.Fprintln(w, strings.Repeat("-", 70))
		for _, u := range users {
			fmt.Fprintf(w, "%-6d  %-20s  %-30s  %s\n", u.ID, truncate(u.Username, 20), truncate(u.Email, 30), u.Role)
		}
		fmt.Fprintf(w, "\nTotal: %d user(s)\n", len(users))
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(healthCmd, enumsCmd, initDBCmd, usersCmd)

	enumsCmd.Flags().BoolVar(&enumsOffline, "offline", false, "show the built-in catalogue without contacting the backend")
}
