package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/taskflow/internal/access"
	"github.com/good-yellow-bee/taskflow/internal/client"
	"github.com/good-yellow-bee/taskflow/internal/models"
)

var (
	taskProjectID   int64
	taskTitle       string
	taskDescription string
	taskPriority    string
	taskCategory    string
	taskStatus      string
	taskDeadline    string
	taskParentID    int64
	taskAssignees   []int64
	taskAssigneeID  int64
	taskSearch      string
	taskMine        bool
	taskYes         bool
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Task commands",
	Long: `Commands for listing and managing tasks.

Only the project owner may create, edit, assign or delete tasks. Members
can view them and comment.

Examples:
  # List open high priority tasks in project 1
  taskctl task list --project 1 --priority High --status ToDo

  # Create a task with a deadline and two assignees
  taskctl task create --project 1 --title "Fix login" --deadline 2026-12-01 --assignee 1 --assignee 2

  # Move a task to review
  taskctl task update 4 --status Review`,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks across your projects",
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		user, err := a.currentUser()
		if err != nil {
			return err
		}
		filter, err := taskFilterFromFlags()
		if err != nil {
			return err
		}
		if taskMine {
			filter.AssigneeID = user.ID
		}

		tasks, err := a.client.ListTasks(ctx, filter)
		if err != nil {
			return err
		}
		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), tasks)
		}
		if len(tasks) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No tasks found.")
			return nil
		}
		printTasks(cmd.OutOrStdout(), tasks)
		return nil
	}),
}

func taskFilterFromFlags() (models.TaskFilter, error) {
	filter := models.TaskFilter{
		ProjectID:  taskProjectID,
		AssigneeID: taskAssigneeID,
		Search:     strings.TrimSpace(taskSearch),
	}
	var err error
	if filter.Priority, err = models.ParsePriority(taskPriority); err != nil {
		return filter, err
	}
	if filter.Category, err = models.ParseCategory(taskCategory); err != nil {
		return filter, err
	}
	if filter.Status, err = models.ParseStatus(taskStatus); err != nil {
		return filter, err
	}
	return filter, nil
}

func printTasks(w io.Writer, tasks []*models.Task) {
	fmt.Fprintf(w, "%-6s  %-7s  %-36s  %-10s  %-8s  %-13s  %s\n",
		"ID", "PROJECT", "TITLE", "STATUS", "PRIORITY", "CATEGORY", "DEADLINE")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for _, t := range tasks {
		title := t.Title
		if t.ParentID != nil {
			title = "  " + title
		}
		fmt.Fprintf(w, "%-6d  %-7d  %-36s  %-10s  %-8s  %-13s  %s\n",
			t.ID, t.ProjectID, truncate(title, 36), t.Status, t.Priority, t.Category, formatDate(t.DeadlineDate))
	}
	fmt.Fprintf(w, "\nTotal: %d task(s)\n", len(tasks))
}

var taskShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a task",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if _, err := a.currentUser(); err != nil {
			return err
		}
		task, err := a.client.GetTask(ctx, id)
		if err != nil {
			return err
		}
		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), task)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Task %d: %s\n", task.ID, task.Title)
		if task.Description != "" {
			fmt.Fprintf(w, "  %s\n", task.Description)
		}
		fmt.Fprintf(w, "Project:   %d\n", task.ProjectID)
		if task.ParentID != nil {
			fmt.Fprintf(w, "Parent:    %d\n", *task.ParentID)
		}
		fmt.Fprintf(w, "Status:    %s\n", task.Status)
		fmt.Fprintf(w, "Priority:  %s\n", task.Priority)
		fmt.Fprintf(w, "Category:  %s\n", task.Category)
		fmt.Fprintf(w, "Deadline:  %s\n", formatDate(task.DeadlineDate))
		fmt.Fprintf(w, "Created:   %s\n", formatDate(task.CreationDate))
		fmt.Fprintf(w, "Assignees: %s\n", joinIDs(task.Assignees))
		return nil
	}),
}

var taskCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a task",
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		if taskProjectID <= 0 {
			return fmt.Errorf("--project is required")
		}
		in := &client.TaskInput{ProjectID: taskProjectID, Title: strings.TrimSpace(taskTitle)}
		if in.Title == "" {
			return fmt.Errorf("--title is required")
		}
		if err := applyTaskFlags(cmd, in); err != nil {
			return err
		}

		project, _, err := authorize(ctx, a, taskProjectID, access.ActionCreateTask)
		if err != nil {
			return err
		}
		if err := checkAssignees(ctx, a, project, in.AssigneeIDs); err != nil {
			return err
		}

		task, err := a.client.CreateTask(ctx, in)
		if err != nil {
			return err
		}
		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), task)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task created: %s (id %d)\n", task.Title, task.ID)
		return nil
	}),
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change a task's fields",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		in := &client.TaskInput{}
		if cmd.Flags().Changed("title") {
			if in.Title = strings.TrimSpace(taskTitle); in.Title == "" {
				return fmt.Errorf("--title must not be empty")
			}
		}
		if err := applyTaskFlags(cmd, in); err != nil {
			return err
		}
		if isEmptyTaskInput(in) {
			return fmt.Errorf("nothing to update")
		}

		project, err := authorizeTask(ctx, a, id, access.ActionEditTask)
		if err != nil {
			return err
		}
		if err := checkAssignees(ctx, a, project, in.AssigneeIDs); err != nil {
			return err
		}

		task, err := a.client.UpdateTask(ctx, id, in)
		if err != nil {
			return err
		}
		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), task)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task %d updated.\n", task.ID)
		return nil
	}),
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a task and its subtasks",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if _, err := authorizeTask(ctx, a, id, access.ActionDeleteTask); err != nil {
			return err
		}
		if !taskYes {
			return fmt.Errorf("refusing to delete task %d without --yes", id)
		}
		if err := a.client.DeleteTask(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task %d deleted.\n", id)
		return nil
	}),
}

var taskAssignCmd = &cobra.Command{
	Use:   "assign <id>",
	Short: "Replace a task's assignees",
	Long: `Replace a task's assignees. Every assignee must be a member of the
task's project. Pass no --user flags to clear the assignees.

Example:
  taskctl task assign 4 --user 2 --user 3`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		project, err := authorizeTask(ctx, a, id, access.ActionEditTask)
		if err != nil {
			return err
		}
		if err := checkAssignees(ctx, a, project, taskAssignees); err != nil {
			return err
		}
		if err := a.client.AssignTask(ctx, id, taskAssignees); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Task %d assignees: %s\n", id, joinIDs(taskAssignees))
		return nil
	}),
}

// applyTaskFlags copies the optional task flags the user set into in.
func applyTaskFlags(cmd *cobra.Command, in *client.TaskInput) error {
	flags := cmd.Flags()
	var err error
	if flags.Changed("description") {
		in.Description = &taskDescription
	}
	if flags.Changed("priority") {
		if in.Priority, err = models.ParsePriority(taskPriority); err != nil {
			return err
		}
	}
	if flags.Changed("category") {
		if in.Category, err = models.ParseCategory(taskCategory); err != nil {
			return err
		}
	}
	if flags.Changed("status") {
		if in.Status, err = models.ParseStatus(taskStatus); err != nil {
			return err
		}
	}
	if flags.Changed("deadline") {
		deadline, err := parseDeadline(taskDeadline)
		if err != nil {
			return err
		}
		in.DeadlineDate = &deadline
	}
	if flags.Changed("parent") {
		parent := taskParentID
		in.ParentID = &parent
	}
	if flags.Changed("assignee") {
		in.AssigneeIDs = taskAssignees
	}
	return nil
}

func isEmptyTaskInput(in *client.TaskInput) bool {
	return in.Title == "" && in.Description == nil && in.Priority == "" &&
		in.Category == "" && in.Status == "" && in.DeadlineDate == nil &&
		in.ParentID == nil && in.AssigneeIDs == nil
}

func parseDeadline(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid deadline %q (want YYYY-MM-DD or RFC 3339)", s)
}

// authorizeTask loads the task's project and checks action against it.
func authorizeTask(ctx context.Context, a *app, taskID int64, action access.Action) (*models.Project, error) {
	if _, err := a.currentUser(); err != nil {
		return nil, err
	}
	task, err := a.client.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	project, _, err := authorize(ctx, a, task.ProjectID, action)
	return project, err
}

// checkAssignees fails unless every id is a member of project.
func checkAssignees(ctx context.Context, a *app, project *models.Project, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	members, err := a.client.ListMembers(ctx, project.ID)
	if err != nil {
		return err
	}
	var missing []int64
	for _, id := range ids {
		if id == project.OwnerID {
			continue
		}
		if _, ok := models.FindMember(members, id); !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("not members of project %d: %s", project.ID, joinIDs(missing))
	}
	return nil
}

func joinIDs(ids []int64) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ", ")
}

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskListCmd, taskShowCmd, taskCreateCmd, taskUpdateCmd, taskDeleteCmd, taskAssignCmd)

	taskListCmd.Flags().Int64Var(&taskProjectID, "project", 0, "only tasks in this project")
	taskListCmd.Flags().StringVar(&taskPriority, "priority", "", "filter by priority (Low, Medium, High, Critical)")
	taskListCmd.Flags().StringVar(&taskCategory, "category", "", "filter by category (Bug, Feature, Improvement, Documentation)")
	taskListCmd.Flags().StringVar(&taskStatus, "status", "", "filter by status (ToDo, InProgress, Review, Done)")
	taskListCmd.Flags().Int64Var(&taskAssigneeID, "assignee", 0, "only tasks assigned to this user")
	taskListCmd.Flags().BoolVar(&taskMine, "mine", false, "only tasks assigned to you")
	taskListCmd.Flags().StringVarP(&taskSearch, "search", "s", "", "search title and description")

	for _, c := range []*cobra.Command{taskCreateCmd, taskUpdateCmd} {
		c.Flags().StringVar(&taskTitle, "title", "", "task title")
		c.Flags().StringVar(&taskDescription, "description", "", "task description")
		c.Flags().StringVar(&taskPriority, "priority", "", "priority (Low, Medium, High, Critical)")
		c.Flags().StringVar(&taskCategory, "category", "", "category (Bug, Feature, Improvement, Documentation)")
		c.Flags().StringVar(&taskStatus, "status", "", "status (ToDo, InProgress, Review, Done)")
		c.Flags().StringVar(&taskDeadline, "deadline", "", "deadline, YYYY-MM-DD")
		c.Flags().Int64Var(&taskParentID, "parent", 0, "parent task id")
		c.Flags().Int64SliceVar(&taskAssignees, "assignee", nil, "assignee user id (repeatable)")
	}
	taskCreateCmd.Flags().Int64Var(&taskProjectID, "project", 0, "project id (required)")

	taskAssignCmd.Flags().Int64SliceVar(&taskAssignees, "user", nil, "assignee user id (repeatable)")
	taskDeleteCmd.Flags().BoolVarP(&taskYes, "yes", "y", false, "confirm deletion")
}
