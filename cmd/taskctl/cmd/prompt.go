package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/good-yellow-bee/taskflow/internal/access"
	"github.com/good-yellow-bee/taskflow/internal/models"
)

// terminalNavigator is the CLI's entry point: a forced logout prints a
// single notice telling the user to sign in again.
type terminalNavigator struct {
	mu      sync.Mutex
	w       io.Writer
	atEntry bool
}

func newTerminalNavigator(w io.Writer, atEntry bool) *terminalNavigator {
	return &terminalNavigator{w: w, atEntry: atEntry}
}

func (n *terminalNavigator) AtEntry() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.atEntry
}

func (n *terminalNavigator) ToEntry() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.atEntry {
		return
	}
	n.atEntry = true
	fmt.Fprintln(n.w, "Your session has expired. Run 'taskctl login' to sign in again.")
}

// settle marks the user as already at the entry point, for a deliberate
// logout.
func (n *terminalNavigator) settle() {
	n.mu.Lock()
	n.atEntry = true
	n.mu.Unlock()
}

// promptPassword reads a password without echo when stdin is a terminal,
// otherwise a single line from the command's input.
func promptPassword(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)

	fd := int(syscall.Stdin)
	if f, ok := cmd.InOrStdin().(*os.File); ok && f == os.Stdin && term.IsTerminal(fd) {
		passwordBytes, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return string(passwordBytes), nil
	}

	password, err := lineReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && (err != io.EOF || password == "") {
		return "", err
	}
	return strings.TrimSpace(password), nil
}

var (
	lineMu     sync.Mutex
	lineSource io.Reader
	lineBuf    *bufio.Reader
)

// lineReader returns one buffered reader per input so consecutive prompts
// do not lose lines to a discarded buffer.
func lineReader(r io.Reader) *bufio.Reader {
	lineMu.Lock()
	defer lineMu.Unlock()
	if lineSource != r || lineBuf == nil {
		lineSource = r
		lineBuf = bufio.NewReader(r)
	}
	return lineBuf
}

// authorize loads the project and checks action for the signed-in user
// before any mutating call is made.
func authorize(ctx context.Context, a *app, projectID int64, action access.Action) (*models.Project, access.Permissions, error) {
	user, err := a.currentUser()
	if err != nil {
		return nil, access.Permissions{}, err
	}
	project, err := a.client.GetProject(ctx, projectID)
	if err != nil {
		return nil, access.Permissions{}, err
	}
	perms, err := access.Authorize(ctx, a.resolver, project, user, action)
	return project, perms, err
}
