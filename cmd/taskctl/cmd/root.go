// Package cmd contains the CLI commands for taskflow.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/good-yellow-bee/taskflow/internal/access"
	"github.com/good-yellow-bee/taskflow/internal/client"
	"github.com/good-yellow-bee/taskflow/internal/models"
	"github.com/good-yellow-bee/taskflow/internal/session"
	"github.com/good-yellow-bee/taskflow/internal/storage"
)

var (
	// Used for flags
	verbose    bool
	output     string
	configPath string
)

var errNotSignedIn = errors.New("not signed in, run 'taskctl login' first")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "taskctl",
	Short: "taskflow - project and task tracker client",
	Long: `taskctl is a command-line client for the taskflow project tracker.

It keeps you signed in between invocations, renews expired access tokens
transparently and refuses actions your project role does not allow before
anything is sent to the server.

Examples:
  # Sign in
  taskctl login --email admin@example.com

  # List your projects
  taskctl project list

  # Create a task
  taskctl task create --project 1 --title "Write release notes" --priority High

  # Run a local backend with sample data
  taskctl devserver --seed`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		PrintError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: $TASKFLOW_CONFIG or ~/.config/taskflow/config.yaml)")
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

// GetOutput returns the output format.
func GetOutput() string {
	return output
}

// PrintError prints err with a hint matching its kind.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, "Error:", err)
	switch {
	case errors.Is(err, client.ErrNetwork):
		fmt.Fprintln(w, "Hint: the server could not be reached; check api.base_url or try again.")
	case errors.Is(err, access.ErrActionDenied), errors.Is(err, access.ErrNoAccess):
		fmt.Fprintln(w, "Hint: ask the project owner for access.")
	}
}

// PrintVerbose prints a message to stderr only if verbose mode is enabled.
func PrintVerbose(cmd *cobra.Command, format string, args ...any) {
	if verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
	}
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newLogger logs to stderr at level, or at debug with --verbose.
func newLogger(level zapcore.Level) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Level = zap.NewAtomicLevelAt(level)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// app bundles what an API command needs.
type app struct {
	cfg      *Config
	logger   *zap.Logger
	kv       *storage.SQLiteStorage
	session  *session.Store
	nav      *terminalNavigator
	client   *client.Client
	resolver *access.Resolver
}

// openApp loads config, restores the persisted session and builds the API
// client. Callers must Close the result.
func openApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Verbose = verbose

	logger, err := newLogger(zap.WarnLevel)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	kv, err := storage.OpenSQLite(cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	PrintVerbose(cmd, "state: %s", cfg.State.Path)

	store := session.NewStore(kv, logger.Named("session"))
	if _, err := store.Init(ctx); err != nil {
		switch {
		case errors.Is(err, session.ErrNoSession):
		case errors.Is(err, session.ErrCorruptSession):
			fmt.Fprintln(cmd.ErrOrStderr(), "Stored session was unreadable and has been cleared. Please sign in again.")
		default:
			kv.Close()
			return nil, err
		}
	}

	nav := newTerminalNavigator(cmd.ErrOrStderr(), !store.SignedIn())
	c, err := client.New(store, client.Config{
		BaseURL:        cfg.API.BaseURL,
		Timeout:        cfg.API.Timeout,
		RefreshTimeout: cfg.API.RefreshTimeout,
		RateLimit:      cfg.API.RateLimit,
		Burst:          cfg.API.Burst,
		Navigator:      nav,
		Logger:         logger.Named("client"),
	})
	if err != nil {
		kv.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		kv:       kv,
		session:  store,
		nav:      nav,
		client:   c,
		resolver: access.NewResolver(c, logger.Named("access")),
	}, nil
}

func (a *app) Close() {
	if err := a.kv.Close(); err != nil {
		a.logger.Warn("close state", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// currentUser returns a copy of the signed-in user or errNotSignedIn.
func (a *app) currentUser() (*models.User, error) {
	sess := a.session.Current()
	if sess == nil {
		return nil, errNotSignedIn
	}
	user := sess.User
	return &user, nil
}

// withApp adapts an API command body into a cobra RunE.
func withApp(fn func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		a, err := openApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		return fn(ctx, cmd, a, args)
	}
}

// truncate shortens s to max runes.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 2 {
		return string(r[:max])
	}
	return string(r[:max-2]) + ".."
}
