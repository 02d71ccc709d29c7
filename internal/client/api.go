package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/taskflow/internal/models"
)

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	Username        string      `json:"username"`
	Email           string      `json:"email"`
	Password        string      `json:"password"`
	ConfirmPassword string      `json:"confirm_password"`
	Role            models.Role `json:"role"`
}

// Validate checks the fields the backend would reject.
func (r *RegisterRequest) Validate() error {
	if len(r.Username) < 3 || len(r.Username) > 64 {
		return fmt.Errorf("username must be 3-64 characters")
	}
	if r.Email == "" {
		return fmt.Errorf("email is required")
	}
	if len(r.Password) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}
	if r.Password != r.ConfirmPassword {
		return fmt.Errorf("passwords do not match")
	}
	return nil
}

// ProjectInput is the body of project create and update calls.
type ProjectInput struct {
	Name        string  `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       string  `json:"color,omitempty"`
}

// TaskInput is the body of task create and update calls. Nil fields are
// left unchanged on update.
type TaskInput struct {
	ProjectID    int64           `json:"project_id,omitempty"`
	Title        string          `json:"title,omitempty"`
	Description  *string         `json:"description,omitempty"`
	Priority     models.Priority `json:"priority,omitempty"`
	Category     models.Category `json:"category,omitempty"`
	Status       models.Status   `json:"status,omitempty"`
	DeadlineDate *time.Time      `json:"deadline_date,omitempty"`
	ParentID     *int64          `json:"parent_id,omitempty"`
	AssigneeIDs  []int64         `json:"assignee_ids,omitempty"`
}

// HealthStatus is returned by GET /health.
type HealthStatus struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
}

// Register creates an account and starts a session for it.
func (c *Client) Register(ctx context.Context, in *RegisterRequest) (*models.Session, error) {
	if err := in.Validate(); err != nil {
		return nil, &Error{Kind: KindValidation, Message: err.Error()}
	}
	return c.authenticate(ctx, "/register", in)
}

// Login exchanges credentials for a session and persists it.
func (c *Client) Login(ctx context.Context, email, password string) (*models.Session, error) {
	body := map[string]string{"email": email, "password": password}
	return c.authenticate(ctx, "/login", body)
}

func (c *Client) authenticate(ctx context.Context, path string, in any) (*models.Session, error) {
	data, err := encodeBody(in)
	if err != nil {
		return nil, err
	}

	var resp models.AuthResponse
	req := &request{method: http.MethodPost, path: path, body: data, noRefresh: true}
	if err := c.do(ctx, req, &resp); err != nil {
		return nil, err
	}

	sess := resp.Session()
	if err := c.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	c.logger.Info("signed in", zap.String("username", sess.User.Username), zap.Int64("user_id", sess.User.ID))
	return sess, nil
}

// Logout tells the server (best effort) and always clears the local
// session.
func (c *Client) Logout(ctx context.Context) error {
	if access := c.store.AccessToken(); access != "" {
		req := &request{method: http.MethodPost, path: "/logout", noRefresh: true, bearer: access}
		if err := c.do(ctx, req, nil); err != nil {
			c.logger.Debug("server logout failed", zap.Error(err))
		}
	}
	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	c.toEntry()
	return nil
}

// Health checks that the backend is up.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var out HealthStatus
	if err := c.do(ctx, &request{method: http.MethodGet, path: "/health"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Enums fetches the backend's value catalogue.
func (c *Client) Enums(ctx context.Context) (*models.Enums, error) {
	var out models.Enums
	if err := c.do(ctx, &request{method: http.MethodGet, path: "/enums"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EnumsOrDefault returns the backend catalogue, falling back to the built-in
// one when the backend cannot be reached.
func (c *Client) EnumsOrDefault(ctx context.Context) *models.Enums {
	enums, err := c.Enums(ctx)
	if err != nil {
		c.logger.Debug("using built-in enums", zap.Error(err))
		return models.DefaultEnums()
	}
	return enums
}

// InitDB reseeds the backend with sample data. Development only.
func (c *Client) InitDB(ctx context.Context) error {
	return c.do(ctx, &request{method: http.MethodPost, path: "/init-db"}, nil)
}

// ListUsers returns all registered users.
func (c *Client) ListUsers(ctx context.Context) ([]*models.User, error) {
	var out []*models.User
	if err := c.do(ctx, &request{method: http.MethodGet, path: "/users"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetUser returns one user's public profile.
func (c *Client) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var out models.User
	path := "/users/" + strconv.FormatInt(id, 10)
	if err := c.do(ctx, &request{method: http.MethodGet, path: path}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListProjects returns the projects the caller owns or belongs to.
func (c *Client) ListProjects(ctx context.Context) ([]*models.Project, error) {
	var out []*models.Project
	if err := c.do(ctx, &request{method: http.MethodGet, path: "/projects"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetProject returns one project.
func (c *Client) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	var out models.Project
	if err := c.do(ctx, &request{method: http.MethodGet, path: projectPath(id)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateProject creates a project owned by the caller.
func (c *Client) CreateProject(ctx context.Context, in *ProjectInput) (*models.Project, error) {
	if in.Color == "" {
		in.Color = models.DefaultProjectColor
	}
	var out models.Project
	if err := c.sendJSON(ctx, http.MethodPost, "/projects", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProject changes a project's name, description or color.
func (c *Client) UpdateProject(ctx context.Context, id int64, in *ProjectInput) (*models.Project, error) {
	var out models.Project
	if err := c.sendJSON(ctx, http.MethodPut, projectPath(id), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteProject deletes a project and its tasks.
func (c *Client) DeleteProject(ctx context.Context, id int64) error {
	return c.do(ctx, &request{method: http.MethodDelete, path: projectPath(id)}, nil)
}

// ListMembers returns the project's membership, owner included.
func (c *Client) ListMembers(ctx context.Context, projectID int64) ([]*models.ProjectMember, error) {
	var out []*models.ProjectMember
	if err := c.do(ctx, &request{method: http.MethodGet, path: projectPath(projectID) + "/members"}, &out); err != nil {
		return nil, err
	}
	for _, m := range out {
		if m != nil && m.ProjectID == 0 {
			m.ProjectID = projectID
		}
	}
	return out, nil
}

// AddMember adds a user to a project with role.
func (c *Client) AddMember(ctx context.Context, projectID, userID int64, role models.ProjectRole) error {
	body := map[string]any{"user_id": userID, "role": role}
	return c.sendJSON(ctx, http.MethodPost, projectPath(projectID)+"/members", body, nil)
}

// UpdateMemberRole changes a member's role.
func (c *Client) UpdateMemberRole(ctx context.Context, projectID, userID int64, role models.ProjectRole) error {
	body := map[string]any{"role": role}
	return c.sendJSON(ctx, http.MethodPut, memberPath(projectID, userID), body, nil)
}

// RemoveMember removes a user from a project.
func (c *Client) RemoveMember(ctx context.Context, projectID, userID int64) error {
	return c.do(ctx, &request{method: http.MethodDelete, path: memberPath(projectID, userID)}, nil)
}

// ListTasks returns tasks matching filter across the caller's projects.
func (c *Client) ListTasks(ctx context.Context, filter models.TaskFilter) ([]*models.Task, error) {
	q := url.Values{}
	if filter.ProjectID != 0 {
		q.Set("project_id", strconv.FormatInt(filter.ProjectID, 10))
	}
	if filter.Priority != "" && filter.Priority != models.PriorityNone {
		q.Set("priority", string(filter.Priority))
	}
	if filter.Category != "" && filter.Category != models.CategoryNone {
		q.Set("category", string(filter.Category))
	}
	if filter.Status != "" && filter.Status != models.StatusNone {
		q.Set("status", string(filter.Status))
	}
	if filter.AssigneeID != 0 {
		q.Set("assignee_id", strconv.FormatInt(filter.AssigneeID, 10))
	}
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}

	var out []*models.Task
	if err := c.do(ctx, &request{method: http.MethodGet, path: "/tasks", query: q}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTask returns one task.
func (c *Client) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	var out models.Task
	if err := c.do(ctx, &request{method: http.MethodGet, path: taskPath(id)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateTask creates a task in in.ProjectID.
func (c *Client) CreateTask(ctx context.Context, in *TaskInput) (*models.Task, error) {
	if in.ProjectID == 0 {
		return nil, &Error{Kind: KindValidation, Message: "project_id is required"}
	}
	if in.Title == "" {
		return nil, &Error{Kind: KindValidation, Message: "title is required"}
	}
	var out models.Task
	if err := c.sendJSON(ctx, http.MethodPost, "/tasks", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTask changes the set fields of a task.
func (c *Client) UpdateTask(ctx context.Context, id int64, in *TaskInput) (*models.Task, error) {
	var out models.Task
	if err := c.sendJSON(ctx, http.MethodPut, taskPath(id), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTask deletes a task and its subtasks.
func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, &request{method: http.MethodDelete, path: taskPath(id)}, nil)
}

// AssignTask replaces a task's assignees.
func (c *Client) AssignTask(ctx context.Context, id int64, userIDs []int64) error {
	if userIDs == nil {
		userIDs = []int64{}
	}
	body := map[string]any{"user_ids": userIDs}
	return c.sendJSON(ctx, http.MethodPost, taskPath(id)+"/assignees", body, nil)
}

// ListComments returns a task's comments, newest first.
func (c *Client) ListComments(ctx context.Context, taskID int64) ([]*models.Comment, error) {
	var out []*models.Comment
	if err := c.do(ctx, &request{method: http.MethodGet, path: taskPath(taskID) + "/comments"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddComment posts a comment on a task.
func (c *Client) AddComment(ctx context.Context, taskID int64, text string) (*models.Comment, error) {
	if text == "" {
		return nil, &Error{Kind: KindValidation, Message: "comment text is required"}
	}
	var out models.Comment
	body := map[string]string{"text_comment": text}
	if err := c.sendJSON(ctx, http.MethodPost, taskPath(taskID)+"/comments", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateComment replaces a comment's text. Only its author may do this.
func (c *Client) UpdateComment(ctx context.Context, id int64, text string) (*models.Comment, error) {
	if text == "" {
		return nil, &Error{Kind: KindValidation, Message: "comment text is required"}
	}
	var out models.Comment
	body := map[string]string{"text_comment": text}
	if err := c.sendJSON(ctx, http.MethodPut, commentPath(id), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteComment deletes a comment. The author and the project owner may do
// this.
func (c *Client) DeleteComment(ctx context.Context, id int64) error {
	return c.do(ctx, &request{method: http.MethodDelete, path: commentPath(id)}, nil)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	data, err := encodeBody(in)
	if err != nil {
		return err
	}
	return c.do(ctx, &request{method: method, path: path, body: data}, out)
}

func projectPath(id int64) string {
	return "/projects/" + strconv.FormatInt(id, 10)
}

func memberPath(projectID, userID int64) string {
	return projectPath(projectID) + "/members/" + strconv.FormatInt(userID, 10)
}

func taskPath(id int64) string {
	return "/tasks/" + strconv.FormatInt(id, 10)
}

func commentPath(id int64) string {
	return "/comments/" + strconv.FormatInt(id, 10)
}
