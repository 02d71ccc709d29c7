package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/taskflow/internal/client"
	"github.com/good-yellow-bee/taskflow/internal/models"
	"github.com/good-yellow-bee/taskflow/internal/session"
	"github.com/good-yellow-bee/taskflow/internal/storage"
)

// keyLastEmail remembers the last account that signed in. It lives beside
// the session keys and survives logout.
const keyLastEmail = "last_email"

var (
	authEmail    string
	authUsername string
	authRole     string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the backend",
	Long: `Sign in and keep the session for later commands.

The password is prompted interactively. When stdin is not a terminal a
single line is read from it instead. Without --email the account that
signed in last is used.

Example:
  taskctl login --email admin@example.com`,
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		email := authEmail
		if email == "" {
			last, err := a.kv.Get(ctx, keyLastEmail)
			switch {
			case errors.Is(err, storage.ErrNotFound):
				return fmt.Errorf("--email is required")
			case err != nil:
				return fmt.Errorf("read last email: %w", err)
			}
			email = last
			PrintVerbose(cmd, "using last email %s", email)
		}
		password, err := promptPassword(cmd, "Password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}

		sess, err := a.client.Login(ctx, email, password)
		if err != nil {
			return err
		}
		if err := a.kv.PutMany(ctx, map[string]string{keyLastEmail: sess.User.Email}); err != nil {
			a.logger.Warn("remember last email", zap.Error(err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", sess.User.Username, sess.User.Email)
		return nil
	}),
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and sign in",
	Long: `Create a new account. The password is prompted twice.

Example:
  taskctl register --username jane --email jane@example.com`,
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		password, err := promptPassword(cmd, "Password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		confirm, err := promptPassword(cmd, "Confirm password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}

		sess, err := a.client.Register(ctx, &client.RegisterRequest{
			Username:        authUsername,
			Email:           authEmail,
			Password:        password,
			ConfirmPassword: confirm,
			Role:            models.ParseRole(authRole),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Registered and signed in as %s (id %d)\n", sess.User.Username, sess.User.ID)
		return nil
	}),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		if !a.session.SignedIn() {
			fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
			return nil
		}
		a.nav.settle()
		if err := a.client.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	}),
}

type whoamiOutput struct {
	User             models.User `json:"user"`
	AccessExpiresAt  *time.Time  `json:"access_expires_at,omitempty"`
	RefreshExpiresAt *time.Time  `json:"refresh_expires_at,omitempty"`
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user and token lifetimes",
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		sess := a.session.Current()
		if sess == nil {
			return errNotSignedIn
		}

		out := whoamiOutput{User: sess.User}
		if exp, err := session.TokenExpiry(sess.AccessToken); err == nil {
			out.AccessExpiresAt = &exp
		}
		if exp, err := session.TokenExpiry(sess.RefreshToken); err == nil {
			out.RefreshExpiresAt = &exp
		}

		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), out)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "User:    %s (id %d)\n", out.User.Username, out.User.ID)
		fmt.Fprintf(w, "Email:   %s\n", out.User.Email)
		fmt.Fprintf(w, "Role:    %s\n", out.User.Role)
		fmt.Fprintf(w, "Access:  %s\n", describeExpiry(out.AccessExpiresAt))
		fmt.Fprintf(w, "Refresh: %s\n", describeExpiry(out.RefreshExpiresAt))
		return nil
	}),
}

func describeExpiry(t *time.Time) string {
	if t == nil {
		return "unknown"
	}
	left := time.Until(*t)
	if left <= 0 {
		return fmt.Sprintf("expired at %s", t.Local().Format(time.DateTime))
	}
	return fmt.Sprintf("valid until %s (%s left)", t.Local().Format(time.DateTime), left.Round(time.Second))
}

func init() {
	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, whoamiCmd)

	loginCmd.Flags().StringVar(&authEmail, "email", "", "account email (default: the last one used)")

	registerCmd.Flags().StringVar(&authUsername, "username", "", "username, 3-64 characters (required)")
	registerCmd.Flags().StringVar(&authEmail, "email", "", "account email (required)")
	registerCmd.Flags().StringVar(&authRole, "role", "client", "global role (client, admin)")
	registerCmd.MarkFlagRequired("username")
	registerCmd.MarkFlagRequired("email")
}
