package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/taskflow/internal/access"
	"github.com/good-yellow-bee/taskflow/internal/models"
)

var (
	memberUserID int64
	memberRole   string
)

var memberCmd = &cobra.Command{
	Use:   "member",
	Short: "Project membership commands",
	Long: `Commands for managing who belongs to a project.

Roles are Owner and Viewer. Only the project owner may change membership.

Examples:
  # List members of project 1
  taskctl member list 1

  # Add user 3 to project 1 as a viewer
  taskctl member add 1 --user 3

  # Remove user 3 from project 1
  taskctl member remove 1 3`,
}

var memberListCmd = &cobra.Command{
	Use:   "list <project-id>",
	Short: "List project members",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		projectID, err := parseID(args[0])
		if err != nil {
			return err
		}
		if _, err := a.currentUser(); err != nil {
			return err
		}
		members, err := a.client.ListMembers(ctx, projectID)
		if err != nil {
			return err
		}
		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), members)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-6s  %-20s  %-30s  %s\n", "ID", "USERNAME", "EMAIL", "ROLE")
		fmt.Fprintln(w, strings.Repeat("-", 70))
		for _, m := range members {
			fmt.Fprintf(w, "%-6d  %-20s  %-30s  %s\n", m.UserID, truncate(m.Username, 20), truncate(m.Email, 30), m.ProjectRole)
		}
		fmt.Fprintf(w, "\nTotal: %d member(s)\n", len(members))
		return nil
	}),
}

var memberAddCmd = &cobra.Command{
	Use:   "add <project-id>",
	Short: "Add a user to a project",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		projectID, err := parseID(args[0])
		if err != nil {
			return err
		}
		if memberUserID <= 0 {
			return fmt.Errorf("--user is required")
		}
		role, err := parseProjectRole(memberRole)
		if err != nil {
			return err
		}
		if _, _, err := authorize(ctx, a, projectID, access.ActionManageMembers); err != nil {
			return err
		}
		if err := a.client.AddMember(ctx, projectID, memberUserID, role); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "User %d added to project %d as %s.\n", memberUserID, projectID, role)
		return nil
	}),
}

var memberSetRoleCmd = &cobra.Command{
	Use:   "set-role <project-id> <user-id>",
	Short: "Change a member's role",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		projectID, err := parseID(args[0])
		if err != nil {
			return err
		}
		userID, err := parseID(args[1])
		if err != nil {
			return err
		}
		role, err := parseProjectRole(memberRole)
		if err != nil {
			return err
		}
		if _, _, err := authorize(ctx, a, projectID, access.ActionManageMembers); err != nil {
			return err
		}
		if err := a.client.UpdateMemberRole(ctx, projectID, userID, role); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "User %d is now %s in project %d.\n", userID, role, projectID)
		return nil
	}),
}

var memberRemoveCmd = &cobra.Command{
	Use:   "remove <project-id> <user-id>",
	Short: "Remove a member from a project",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		projectID, err := parseID(args[0])
		if err != nil {
			return err
		}
		userID, err := parseID(args[1])
		if err != nil {
			return err
		}
		project, _, err := authorize(ctx, a, projectID, access.ActionManageMembers)
		if err != nil {
			return err
		}
		if project.OwnerID == userID {
			return fmt.Errorf("the project owner cannot be removed")
		}
		if err := a.client.RemoveMember(ctx, projectID, userID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "User %d removed from project %d.\n", userID, projectID)
		return nil
	}),
}

// parseProjectRole accepts the canonical role names in any case.
func parseProjectRole(s string) (models.ProjectRole, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "viewer":
		return models.ProjectRoleViewer, nil
	case "owner":
		return models.ProjectRoleOwner, nil
	default:
		return "", fmt.Errorf("invalid role %q (want Owner or Viewer)", s)
	}
}

func init() {
	rootCmd.AddCommand(memberCmd)
	memberCmd.AddCommand(memberListCmd, memberAddCmd, memberSetRoleCmd, memberRemoveCmd)

	memberAddCmd.Flags().Int64Var(&memberUserID, "user", 0, "user id to add (required)")
	memberAddCmd.Flags().StringVar(&memberRole, "role", "Viewer", "project role (Owner, Viewer)")
	memberSetRoleCmd.Flags().StringVar(&memberRole, "role", "", "project role (Owner, Viewer)")
	memberSetRoleCmd.MarkFlagRequired("role")
}
