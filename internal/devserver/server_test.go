package devserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/good-yellow-bee/taskflow/internal/models"
)

func newTestServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()
	cfg := Config{
		Secret:     []byte("test-secret"),
		BcryptCost: bcrypt.MinCost,
		Seed:       true,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg, nil)
	require.NoError(t, err)
	return s
}

func call(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, s *Server, email string) authResponse {
	t.Helper()
	rec := call(t, s, http.MethodPost, "/api/login", "", loginRequest{Email: email, Password: SeedPassword})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, nil)

	resp := login(t, s, "admin@example.com")
	assert.Equal(t, "admin", resp.User.Username)
	assert.Equal(t, models.RoleAdmin, resp.User.Role)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)

	rec := call(t, s, http.MethodPost, "/api/login", "", loginRequest{Email: "admin@example.com", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid email or password"}`, rec.Body.String())
}

func TestLogin_Lockout(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.LockoutThreshold = 2 })
	bad := loginRequest{Email: "user1@example.com", Password: "nope"}

	assert.Equal(t, http.StatusUnauthorized, call(t, s, http.MethodPost, "/api/login", "", bad).Code)
	assert.Equal(t, http.StatusUnauthorized, call(t, s, http.MethodPost, "/api/login", "", bad).Code)

	good := loginRequest{Email: "user1@example.com", Password: SeedPassword}
	assert.Equal(t, http.StatusTooManyRequests, call(t, s, http.MethodPost, "/api/login", "", good).Code)
}

func TestRegister(t *testing.T) {
	s := newTestServer(t, nil)
	req := registerRequest{Username: "carol", Email: "carol@example.com", Password: "secret1", ConfirmPassword: "secret1"}

	rec := call(t, s, http.MethodPost, "/api/register", "", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.RoleClient, resp.User.Role)

	rec = call(t, s, http.MethodPost, "/api/register", "", req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	req.ConfirmPassword = "other"
	req.Email = "dave@example.com"
	rec = call(t, s, http.MethodPost, "/api/register", "", req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefresh(t *testing.T) {
	s := newTestServer(t, nil)
	sess := login(t, s, "user1@example.com")

	rec := call(t, s, http.MethodPost, "/api/refresh", sess.RefreshToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp refreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.Empty(t, resp.RefreshToken, "refresh token is not rotated by default")

	rec = call(t, s, http.MethodPost, "/api/refresh", sess.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "access token cannot refresh")

	rec = call(t, s, http.MethodGet, "/api/projects", sess.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "refresh token cannot call the API")

	assert.Equal(t, int64(2), s.RefreshCalls())
}

func TestRefresh_Rotation(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.RotateRefresh = true })
	sess := login(t, s, "user1@example.com")

	rec := call(t, s, http.MethodPost, "/api/refresh", sess.RefreshToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp refreshResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RefreshToken)

	rec = call(t, s, http.MethodPost, "/api/refresh", sess.RefreshToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "rotated token is revoked")

	rec = call(t, s, http.MethodPost, "/api/refresh", resp.RefreshToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestExpireTokens(t *testing.T) {
	s := newTestServer(t, nil)
	sess := login(t, s, "admin@example.com")

	require.Equal(t, http.StatusOK, call(t, s, http.MethodGet, "/api/projects", sess.AccessToken, nil).Code)

	s.ExpireAccessTokens()
	assert.Equal(t, http.StatusUnauthorized, call(t, s, http.MethodGet, "/api/projects", sess.AccessToken, nil).Code)
	require.Equal(t, http.StatusOK, call(t, s, http.MethodPost, "/api/refresh", sess.RefreshToken, nil).Code)

	s.ExpireRefreshTokens()
	assert.Equal(t, http.StatusUnauthorized, call(t, s, http.MethodPost, "/api/refresh", sess.RefreshToken, nil).Code)
}

func TestHoldRefresh(t *testing.T) {
	s := newTestServer(t, nil)
	sess := login(t, s, "admin@example.com")
	release := s.HoldRefresh()

	done := make(chan int, 1)
	go func() {
		done <- call(t, s, http.MethodPost, "/api/refresh", sess.RefreshToken, nil).Code
	}()

	select {
	case <-done:
		t.Fatal("refresh returned while held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	release()
	select {
	case code := <-done:
		assert.Equal(t, http.StatusOK, code)
	case <-time.After(time.Second):
		t.Fatal("refresh not released")
	}
}

func TestProjectAccess(t *testing.T) {
	s := newTestServer(t, nil)
	admin := login(t, s, "admin@example.com")
	user2 := login(t, s, "user2@example.com")

	var projects []*models.Project
	rec := call(t, s, http.MethodGet, "/api/projects", user2.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &projects))
	require.Len(t, projects, 2, "user2 is a viewer on two projects")
	web := projects[0]

	tests := []struct {
		name   string
		token  string
		method string
		path   string
		body   any
		want   int
	}{
		{"viewer reads project", user2.AccessToken, http.MethodGet, "/api/projects/1", nil, http.StatusOK},
		{"viewer cannot rename", user2.AccessToken, http.MethodPut, "/api/projects/1", map[string]string{"name": "x"}, http.StatusForbidden},
		{"viewer cannot create task", user2.AccessToken, http.MethodPost, "/api/tasks", map[string]any{"project_id": web.ID, "title": "x"}, http.StatusForbidden},
		{"viewer cannot add member", user2.AccessToken, http.MethodPost, "/api/projects/1/members", memberRequest{UserID: 3}, http.StatusForbidden},
		{"stranger cannot read", user2.AccessToken, http.MethodGet, "/api/projects/3", nil, http.StatusForbidden},
		{"missing project", admin.AccessToken, http.MethodGet, "/api/projects/999", nil, http.StatusNotFound},
		{"owner creates task", admin.AccessToken, http.MethodPost, "/api/tasks", map[string]any{"project_id": web.ID, "title": "Ship it", "priority": "High"}, http.StatusCreated},
		{"bad priority", admin.AccessToken, http.MethodPost, "/api/tasks", map[string]any{"project_id": web.ID, "title": "x", "priority": "Urgent"}, http.StatusBadRequest},
		{"owner cannot be removed", admin.AccessToken, http.MethodDelete, "/api/projects/1/members/1", nil, http.StatusBadRequest},
		{"no token", "", http.MethodGet, "/api/projects", nil, http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := call(t, s, tc.method, tc.path, tc.token, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestListMembers_IncludesOwner(t *testing.T) {
	s := newTestServer(t, nil)
	user1 := login(t, s, "user1@example.com")

	rec := call(t, s, http.MethodGet, "/api/projects/1/members", user1.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var members []*models.ProjectMember
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &members))
	require.Len(t, members, 3)
	assert.Equal(t, int64(1), members[0].UserID)
	assert.Equal(t, models.ProjectRoleOwner, members[0].ProjectRole)
	assert.Equal(t, models.ProjectRoleViewer, members[1].ProjectRole)
}

func TestMemberRoleStoredVerbatim(t *testing.T) {
	s := newTestServer(t, nil)
	admin := login(t, s, "admin@example.com")

	rec := call(t, s, http.MethodPost, "/api/projects/3/members", admin.AccessToken, memberRequest{UserID: 2, Role: "Editor"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = call(t, s, http.MethodGet, "/api/projects/3/members", admin.AccessToken, nil)
	var raw []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.Len(t, raw, 2)
	assert.Equal(t, "Editor", raw[1]["project_role"])

	user1 := login(t, s, "user1@example.com")
	rec = call(t, s, http.MethodPost, "/api/tasks", user1.AccessToken, map[string]any{"project_id": 3, "title": "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "legacy roles are read-only")
}

func TestTasks_FilterAssignAndComments(t *testing.T) {
	s := newTestServer(t, nil)
	admin := login(t, s, "admin@example.com")

	rec := call(t, s, http.MethodGet, "/api/tasks?project_id=1&priority=High", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tasks []*models.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	task := tasks[0]
	assert.Equal(t, "Design new homepage", task.Title)

	rec = call(t, s, http.MethodPost, "/api/tasks/"+itoa(task.ID)+"/assignees", admin.AccessToken, assignRequest{UserIDs: []int64{3}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(t, s, http.MethodPost, "/api/tasks/"+itoa(task.ID)+"/assignees", admin.AccessToken, assignRequest{UserIDs: []int64{99}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, s, http.MethodPost, "/api/tasks/"+itoa(task.ID)+"/comments", admin.AccessToken, commentRequest{Text: "first"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = call(t, s, http.MethodPost, "/api/tasks/"+itoa(task.ID)+"/comments", admin.AccessToken, commentRequest{Text: "second"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = call(t, s, http.MethodGet, "/api/tasks/"+itoa(task.ID)+"/comments", admin.AccessToken, nil)
	var comments []*models.Comment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &comments))
	require.Len(t, comments, 2)
	assert.Equal(t, "second", comments[0].Text, "newest first")

	rec = call(t, s, http.MethodDelete, "/api/tasks/"+itoa(task.ID), admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = call(t, s, http.MethodGet, "/api/tasks?search=hero", admin.AccessToken, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	assert.Empty(t, tasks, "subtasks are deleted with their parent")
}

func TestComments_EditAndDelete(t *testing.T) {
	s := newTestServer(t, nil)
	admin := login(t, s, "admin@example.com")
	user1 := login(t, s, "user1@example.com")
	user2 := login(t, s, "user2@example.com")

	post := func(token, text string) *models.Comment {
		t.Helper()
		rec := call(t, s, http.MethodPost, "/api/tasks/1/comments", token, commentRequest{Text: text})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var c models.Comment
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
		return &c
	}
	mine := post(user2.AccessToken, "draft")
	other := post(user2.AccessToken, "to be removed by the owner")
	path := "/api/comments/" + itoa(mine.ID)

	rec := call(t, s, http.MethodPut, path, user1.AccessToken, commentRequest{Text: "hijack"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "only the author may edit")
	rec = call(t, s, http.MethodPut, path, admin.AccessToken, commentRequest{Text: "hijack"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "the owner may not edit someone else's comment")

	rec = call(t, s, http.MethodPut, path, user2.AccessToken, commentRequest{Text: "final"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var edited models.Comment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &edited))
	assert.Equal(t, "final", edited.Text)
	assert.Equal(t, mine.ID, edited.ID)

	rec = call(t, s, http.MethodPut, path, user2.AccessToken, commentRequest{Text: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, s, http.MethodDelete, path, user1.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "viewers cannot delete others' comments")
	rec = call(t, s, http.MethodDelete, path, user2.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = call(t, s, http.MethodDelete, path, user2.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(t, s, http.MethodDelete, "/api/comments/"+itoa(other.ID), admin.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "the project owner may delete any comment")

	rec = call(t, s, http.MethodGet, "/api/tasks/1/comments", admin.AccessToken, nil)
	var comments []*models.Comment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &comments))
	assert.Empty(t, comments)
}

func TestGetUser(t *testing.T) {
	s := newTestServer(t, nil)
	admin := login(t, s, "admin@example.com")

	rec := call(t, s, http.MethodGet, "/api/users/2", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var u models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	assert.Equal(t, "user1", u.Username)

	rec = call(t, s, http.MethodGet, "/api/users/999", admin.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = call(t, s, http.MethodGet, "/api/users/2", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthAndEnums(t *testing.T) {
	s := newTestServer(t, nil)

	rec := call(t, s, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	rec = call(t, s, http.MethodGet, "/api/enums", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var enums models.Enums
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &enums))
	assert.NotEmpty(t, enums.TaskPriorities)

	rec = call(t, s, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
