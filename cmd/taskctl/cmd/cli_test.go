package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/good-yellow-bee/taskflow/internal/access"
	"github.com/good-yellow-bee/taskflow/internal/client"
	"github.com/good-yellow-bee/taskflow/internal/devserver"
	"github.com/good-yellow-bee/taskflow/internal/models"
)

type cliEnv struct {
	server     *devserver.Server
	configPath string
	taskPosts  atomic.Int64
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	srv, err := devserver.New(devserver.Config{
		Secret:     []byte("cli-test-secret"),
		BcryptCost: bcrypt.MinCost,
		Seed:       true,
	}, nil)
	require.NoError(t, err)

	env := &cliEnv{server: srv}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/api/tasks" {
			env.taskPosts.Add(1)
		}
		srv.Handler().ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	env.configPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(env.configPath, nil, 0o600))
	t.Setenv(envAPIURL, ts.URL+"/api")
	t.Setenv(envStatePath, filepath.Join(dir, "state.db"))
	return env
}

// run executes one taskctl invocation with stdin set to in.
func (e *cliEnv) run(t *testing.T, in string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetIn(strings.NewReader(in))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	t.Cleanup(func() {
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err = rootCmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func (e *cliEnv) login(t *testing.T, email string) {
	t.Helper()
	out, _, err := e.run(t, devserver.SeedPassword+"\n", "login", "--email", email)
	require.NoError(t, err)
	require.Contains(t, out, "Signed in as")
}

// resetFlags restores every flag to its default so invocations do not
// leak into each other.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func TestCLI_ViewerTaskCreateRefusedLocally(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t, "user2@example.com")

	_, _, err := env.run(t, "", "task", "create", "--project", "1", "--title", "Sneaky task")
	require.Error(t, err)
	assert.ErrorIs(t, err, access.ErrActionDenied)
	assert.Equal(t, int64(0), env.taskPosts.Load(), "denied create must not reach the server")
}

func TestCLI_OwnerCreatesTaskAndAssigneesMustBeMembers(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t, "user1@example.com")

	out, _, err := env.run(t, "", "task", "create", "--project", "2", "--title", "Offline mode",
		"--priority", "High", "--assignee", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Task created: Offline mode")
	assert.Equal(t, int64(1), env.taskPosts.Load())

	_, _, err = env.run(t, "", "task", "create", "--project", "2", "--title", "Dark mode", "--assignee", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not members of project 2")
	assert.Equal(t, int64(1), env.taskPosts.Load())

	_, _, err = env.run(t, "", "task", "create", "--project", "2", "--title", "Bad", "--priority", "Urgent")
	require.Error(t, err)
	assert.Equal(t, int64(1), env.taskPosts.Load())
}

func TestCLI_WhoamiAndLogout(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run(t, "", "whoami")
	require.ErrorIs(t, err, errNotSignedIn)

	env.login(t, "admin@example.com")

	out, _, err := env.run(t, "", "-o", "json", "whoami")
	require.NoError(t, err)
	var who whoamiOutput
	require.NoError(t, json.Unmarshal([]byte(out), &who))
	assert.Equal(t, "admin", who.User.Username)
	require.NotNil(t, who.AccessExpiresAt)
	require.NotNil(t, who.RefreshExpiresAt)
	assert.True(t, who.RefreshExpiresAt.After(*who.AccessExpiresAt))

	out, stderr, err := env.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out.")
	assert.NotContains(t, stderr, "session has expired")

	_, _, err = env.run(t, "", "project", "list")
	require.ErrorIs(t, err, errNotSignedIn)
}

func TestCLI_LoginRemembersLastEmail(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run(t, devserver.SeedPassword+"\n", "login")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--email is required")

	env.login(t, "user2@example.com")
	_, _, err = env.run(t, "", "logout")
	require.NoError(t, err)

	out, _, err := env.run(t, devserver.SeedPassword+"\n", "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as user2 (user2@example.com)")
}

func TestCLI_ProjectShowPermissions(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t, "user2@example.com")

	out, _, err := env.run(t, "", "--output", "json", "project", "show", "1")
	require.NoError(t, err)

	var detail struct {
		Project     models.Project         `json:"project"`
		Members     []models.ProjectMember `json:"members"`
		Tasks       []models.Task          `json:"tasks"`
		Permissions access.Permissions     `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &detail))
	assert.Equal(t, "Website Redesign", detail.Project.Name)
	assert.Len(t, detail.Members, 3)
	assert.NotEmpty(t, detail.Tasks)
	assert.Equal(t, access.Permissions{Role: "Viewer", CanView: true}, detail.Permissions)
}

func TestCLI_CommentAsViewer(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t, "user2@example.com")

	out, _, err := env.run(t, "", "comment", "add", "1", "Looks", "good")
	require.NoError(t, err)
	assert.Contains(t, out, "added to task 1")

	out, _, err = env.run(t, "", "comment", "list", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Looks good")
	assert.Contains(t, out, "user2", "author is shown by username")
}

func TestCLI_CommentEditAndDelete(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t, "user2@example.com")

	out, _, err := env.run(t, "", "-o", "json", "comment", "add", "1", "first", "draft")
	require.NoError(t, err)
	var c models.Comment
	require.NoError(t, json.Unmarshal([]byte(out), &c))
	id := strconv.FormatInt(c.ID, 10)

	out, _, err = env.run(t, "", "comment", "edit", id, "final", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "Comment "+id+" updated.")

	env.login(t, "user1@example.com")
	_, _, err = env.run(t, "", "comment", "edit", id, "hijack")
	assert.ErrorIs(t, err, client.ErrAccessDenied)
	_, _, err = env.run(t, "", "comment", "delete", id, "--yes")
	assert.ErrorIs(t, err, client.ErrAccessDenied)

	env.login(t, "admin@example.com")
	_, _, err = env.run(t, "", "comment", "delete", id)
	require.Error(t, err, "delete needs --yes")
	out, _, err = env.run(t, "", "comment", "delete", id, "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Comment "+id+" deleted.")

	out, _, err = env.run(t, "", "comment", "list", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "No comments.")
}

func TestCLI_SessionExpiredNotice(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t, "admin@example.com")

	env.server.ExpireAccessTokens()
	env.server.ExpireRefreshTokens()

	_, stderr, err := env.run(t, "", "project", "list")
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrSessionExpired)
	assert.Equal(t, 1, strings.Count(stderr, "Your session has expired"))

	_, _, err = env.run(t, "", "project", "list")
	require.ErrorIs(t, err, errNotSignedIn)
}

func TestCLI_TransparentRenewal(t *testing.T) {
	env := newCLIEnv(t)
	env.login(t, "admin@example.com")
	env.server.ExpireAccessTokens()

	out, _, err := env.run(t, "", "project", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Website Redesign")
	assert.Equal(t, int64(1), env.server.RefreshCalls())
}

func TestCLI_EnumsOffline(t *testing.T) {
	env := newCLIEnv(t)

	out, _, err := env.run(t, "", "enums", "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "Critical")
	assert.Contains(t, out, "Owner")
}

func TestParseDeadline(t *testing.T) {
	d, err := parseDeadline("2026-12-01")
	require.NoError(t, err)
	assert.Equal(t, 2026, d.Year())
	assert.Equal(t, 1, d.Day())

	_, err = parseDeadline("next week")
	assert.Error(t, err)
}

func TestParseProjectRole(t *testing.T) {
	tests := []struct {
		in   string
		want models.ProjectRole
		ok   bool
	}{
		{"", models.ProjectRoleViewer, true},
		{"viewer", models.ProjectRoleViewer, true},
		{"OWNER", models.ProjectRoleOwner, true},
		{"Editor", "", false},
	}
	for _, tc := range tests {
		got, err := parseProjectRole(tc.in)
		if !tc.ok {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}
