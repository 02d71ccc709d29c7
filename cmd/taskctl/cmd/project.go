package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/taskflow/internal/access"
	"github.com/good-yellow-bee/taskflow/internal/client"
	"github.com/good-yellow-bee/taskflow/internal/models"
)

var (
	projectName        string
	projectDescription string
	projectColor       string
	projectYes         bool
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Project commands",
	Long: `Commands for listing and managing projects.

Only the project owner may edit or delete a project. Members can view it.

Examples:
  # List your projects
  taskctl project list

  # Show a project with its members, tasks and your permissions
  taskctl project show 1

  # Create a project
  taskctl project create --name "Website" --color "#0000FF"`,
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects you own or belong to",
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		user, err := a.currentUser()
		if err != nil {
			return err
		}
		projects, err := a.client.ListProjects(ctx)
		if err != nil {
			return err
		}
		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), projects)
		}
		if len(projects) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No projects found.")
			return nil
		}
		printProjects(cmd.OutOrStdout(), projects, user.ID)
		return nil
	}),
}

func printProjects(w io.Writer, projects []*models.Project, userID int64) {
	fmt.Fprintf(w, "%-6s  %-30s  %-8s  %-8s  %s\n", "ID", "NAME", "COLOR", "OWNER", "CREATED")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, p := range projects {
		owner := strconv.FormatInt(p.OwnerID, 10)
		if p.OwnerID == userID {
			owner = "you"
		}
		fmt.Fprintf(w, "%-6d  %-30s  %-8s  %-8s  %s\n",
			p.ID, truncate(p.Name, 30), p.Color, owner, formatDate(p.CreationDate))
	}
	fmt.Fprintf(w, "\nTotal: %d project(s)\n", len(projects))
}

// staticMembers serves an already fetched membership list.
type staticMembers []*models.ProjectMember

func (s staticMembers) ListMembers(context.Context, int64) ([]*models.ProjectMember, error) {
	return s, nil
}

type projectDetail struct {
	Project     *models.Project         `json:"project"`
	Members     []*models.ProjectMember `json:"members"`
	Tasks       []*models.Task          `json:"tasks"`
	Permissions access.Permissions      `json:"permissions"`
}

var projectShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a project with members, tasks and your permissions",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		user, err := a.currentUser()
		if err != nil {
			return err
		}

		var detail projectDetail
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			detail.Project, err = a.client.GetProject(gctx, id)
			return err
		})
		g.Go(func() error {
			var err error
			detail.Members, err = a.client.ListMembers(gctx, id)
			return err
		})
		g.Go(func() error {
			var err error
			detail.Tasks, err = a.client.ListTasks(gctx, models.TaskFilter{ProjectID: id})
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}

		resolver := access.NewResolver(staticMembers(detail.Members), a.logger.Named("access"))
		res, err := resolver.Resolve(ctx, detail.Project, user)
		if err != nil {
			return err
		}
		detail.Permissions = access.PermissionsFor(res)

		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), detail)
		}
		printProjectDetail(cmd.OutOrStdout(), &detail)
		return nil
	}),
}

func printProjectDetail(w io.Writer, d *projectDetail) {
	p := d.Project
	fmt.Fprintf(w, "Project %d: %s\n", p.ID, p.Name)
	if p.Description != "" {
		fmt.Fprintf(w, "  %s\n", p.Description)
	}
	fmt.Fprintf(w, "Color:   %s\n", p.Color)
	fmt.Fprintf(w, "Created: %s\n", formatDate(p.CreationDate))
	fmt.Fprintf(w, "Role:    %s\n", d.Permissions.Role)

	allowed := make([]string, 0, 7)
	for _, action := range []access.Action{
		access.ActionView, access.ActionEditProject, access.ActionDeleteProject,
		access.ActionManageMembers, access.ActionCreateTask, access.ActionEditTask, access.ActionDeleteTask,
	} {
		if d.Permissions.Can(action) {
			allowed = append(allowed, string(action))
		}
	}
	if len(allowed) == 0 {
		allowed = append(allowed, "nothing")
	}
	fmt.Fprintf(w, "You may: %s\n", strings.Join(allowed, ", "))

	fmt.Fprintf(w, "\nMembers (%d):\n", len(d.Members))
	for _, m := range d.Members {
		fmt.Fprintf(w, "  %-6d  %-20s  %s\n", m.UserID, truncate(m.Username, 20), m.ProjectRole)
	}

	fmt.Fprintf(w, "\nTasks (%d):\n", len(d.Tasks))
	for _, t := range d.Tasks {
		fmt.Fprintf(w, "  %-6d  %-40s  %-10s  %s\n", t.ID, truncate(t.Title, 40), t.Status, t.Priority)
	}
}

var projectCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a project owned by you",
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		if _, err := a.currentUser(); err != nil {
			return err
		}
		name := strings.TrimSpace(projectName)
		if name == "" {
			return fmt.Errorf("--name is required")
		}

		in := &client.ProjectInput{Name: name, Color: projectColor}
		if cmd.Flags().Changed("description") {
			in.Description = &projectDescription
		}
		project, err := a.client.CreateProject(ctx, in)
		if err != nil {
			return err
		}
		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), project)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Project created: %s (id %d)\n", project.Name, project.ID)
		return nil
	}),
}

var projectUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change a project's name, description or color",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		in := &client.ProjectInput{}
		changed := false
		if cmd.Flags().Changed("name") {
			in.Name = strings.TrimSpace(projectName)
			if in.Name == "" {
				return fmt.Errorf("--name must not be empty")
			}
			changed = true
		}
		if cmd.Flags().Changed("description") {
			in.Description = &projectDescription
			changed = true
		}
		if cmd.Flags().Changed("color") {
			in.Color = projectColor
			changed = true
		}
		if !changed {
			return fmt.Errorf("nothing to update, set --name, --description or --color")
		}

		if _, _, err := authorize(ctx, a, id, access.ActionEditProject); err != nil {
			return err
		}
		project, err := a.client.UpdateProject(ctx, id, in)
		if err != nil {
			return err
		}
		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), project)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Project %d updated.\n", project.ID)
		return nil
	}),
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a project and all of its tasks",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		project, _, err := authorize(ctx, a, id, access.ActionDeleteProject)
		if err != nil {
			return err
		}
		if !projectYes {
			return fmt.Errorf("refusing to delete %q without --yes", project.Name)
		}
		if err := a.client.DeleteProject(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Project %q deleted.\n", project.Name)
		return nil
	}),
}

// parseID parses a positive numeric id argument.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func formatDate(t models.Timestamp) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectListCmd, projectShowCmd, projectCreateCmd, projectUpdateCmd, projectDeleteCmd)

	for _, c := range []*cobra.Command{projectCreateCmd, projectUpdateCmd} {
		c.Flags().StringVar(&projectName, "name", "", "project name")
		c.Flags().StringVar(&projectDescription, "description", "", "project description")
		c.Flags().StringVar(&projectColor, "color", "", "hex color, e.g. #FF0000 (default #FFFFFF)")
	}
	projectDeleteCmd.Flags().BoolVarP(&projectYes, "yes", "y", false, "confirm deletion")
}
