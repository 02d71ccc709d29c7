package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var commentCmd = &cobra.Command{
	Use:   "comment",
	Short: "Task comment commands",
	Long: `Commands for reading and writing task comments.

Any project member may comment. Only the author may edit a comment; the
author or the project owner may delete it.

Examples:
  taskctl comment list 4
  taskctl comment add 4 "Looks good to me"
  taskctl comment edit 12 "Looks good, ship it"
  taskctl comment delete 12 --yes`,
}

var commentYes bool

var commentListCmd = &cobra.Command{
	Use:   "list <task-id>",
	Short: "List a task's comments, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		taskID, err := parseID(args[0])
		if err != nil {
			return err
		}
		if _, err := a.currentUser(); err != nil {
			return err
		}
		comments, err := a.client.ListComments(ctx, taskID)
		if err != nil {
			return err
		}
		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), comments)
		}
		if len(comments) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No comments.")
			return nil
		}

		authors := make(map[int64]string)
		w := cmd.OutOrStdout()
		for _, c := range comments {
			name, ok := authors[c.AuthorID]
			if !ok {
				name = fmt.Sprintf("user %d", c.AuthorID)
				if u, err := a.client.GetUser(ctx, c.AuthorID); err == nil {
					name = u.Username
				} else {
					PrintVerbose(cmd, "look up user %d: %v", c.AuthorID, err)
				}
				authors[c.AuthorID] = name
			}
			fmt.Fprintf(w, "#%d  %s  %s\n    %s\n", c.ID, name, formatDate(c.CreationDate), c.Text)
		}
		return nil
	}),
}

var commentAddCmd = &cobra.Command{
	Use:   "add <task-id> <text>...",
	Short: "Comment on a task",
	Args:  cobra.MinimumNArgs(2),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		taskID, err := parseID(args[0])
		if err != nil {
			return err
		}
		text := strings.TrimSpace(strings.Join(args[1:], " "))
		if text == "" {
			return fmt.Errorf("comment text is required")
		}
		if _, err := a.currentUser(); err != nil {
			return err
		}

		comment, err := a.client.AddComment(ctx, taskID, text)
		if err != nil {
			return err
		}
		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), comment)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Comment %d added to task %d.\n", comment.ID, taskID)
		return nil
	}),
}

var commentEditCmd = &cobra.Command{
	Use:   "edit <comment-id> <text>...",
	Short: "Replace the text of your comment",
	Args:  cobra.MinimumNArgs(2),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		text := strings.TrimSpace(strings.Join(args[1:], " "))
		if text == "" {
			return fmt.Errorf("comment text is required")
		}
		if _, err := a.currentUser(); err != nil {
			return err
		}

		comment, err := a.client.UpdateComment(ctx, id, text)
		if err != nil {
			return err
		}
		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), comment)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Comment %d updated.\n", comment.ID)
		return nil
	}),
}

var commentDeleteCmd = &cobra.Command{
	Use:   "delete <comment-id>",
	Short: "Delete a comment",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if !commentYes {
			return fmt.Errorf("refusing to delete comment %d without --yes", id)
		}
		if _, err := a.currentUser(); err != nil {
			return err
		}

		if err := a.client.DeleteComment(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Comment %d deleted.\n", id)
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(commentCmd)
	commentCmd.AddCommand(commentListCmd, commentAddCmd, commentEditCmd, commentDeleteCmd)

	commentDeleteCmd.Flags().BoolVarP(&commentYes, "yes", "y", false, "confirm deletion")
}
