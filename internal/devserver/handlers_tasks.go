package devserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/good-yellow-bee/taskflow/internal/models"
)

type taskRequest struct {
	ProjectID    *int64            `json:"project_id"`
	Title        *string           `json:"title"`
	Description  *string           `json:"description"`
	Priority     *string           `json:"priority"`
	Category     *string           `json:"category"`
	Status       *string           `json:"status"`
	DeadlineDate *models.Timestamp `json:"deadline_date"`
	ParentID     *int64            `json:"parent_id"`
	AssigneeIDs  []int64           `json:"assignee_ids"`
}

// apply copies the set fields onto t, validating enum values.
func (req *taskRequest) apply(t *models.Task) error {
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return errors.New("title is required")
		}
		t.Title = title
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Priority != nil {
		p, err := models.ParsePriority(*req.Priority)
		if err != nil {
			return err
		}
		t.Priority = p
	}
	if req.Category != nil {
		c, err := models.ParseCategory(*req.Category)
		if err != nil {
			return err
		}
		t.Category = c
	}
	if req.Status != nil {
		st, err := models.ParseStatus(*req.Status)
		if err != nil {
			return err
		}
		t.Status = st
	}
	if req.DeadlineDate != nil {
		t.DeadlineDate = *req.DeadlineDate
	}
	if req.AssigneeIDs != nil {
		t.Assignees = append(models.UserIDs{}, req.AssigneeIDs...)
	}
	return nil
}

func parseTaskFilter(r *http.Request) (models.TaskFilter, error) {
	q := r.URL.Query()
	var f models.TaskFilter
	var err error

	if v := q.Get("project_id"); v != "" {
		if f.ProjectID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return f, errors.New("invalid project_id")
		}
	}
	if v := q.Get("assignee_id"); v != "" {
		if f.AssigneeID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return f, errors.New("invalid assignee_id")
		}
	}
	if v := q.Get("priority"); v != "" {
		if f.Priority, err = models.ParsePriority(v); err != nil {
			return f, err
		}
	}
	if v := q.Get("category"); v != "" {
		if f.Category, err = models.ParseCategory(v); err != nil {
			return f, err
		}
	}
	if v := q.Get("status"); v != "" {
		if f.Status, err = models.ParseStatus(v); err != nil {
			return f, err
		}
	}
	f.Search = strings.TrimSpace(q.Get("search"))
	return f, nil
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	filter, err := parseTaskFilter(r)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	tasks := s.store.tasksFor(userIDFrom(r.Context()), filter)
	if tasks == nil {
		tasks = []*models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ProjectID == nil || *req.ProjectID <= 0 {
		jsonError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	if req.Title == nil {
		jsonError(w, http.StatusBadRequest, "title is required")
		return
	}
	if !s.requireRole(w, r, *req.ProjectID, true) {
		return
	}

	t := models.Task{
		ProjectID: *req.ProjectID,
		ParentID:  req.ParentID,
		Priority:  models.PriorityNone,
		Category:  models.CategoryNone,
	}
	if err := req.apply(&t); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.store.createTask(t)
	if err != nil {
		jsonError(w, http.StatusNotFound, "Parent task not found")
		return
	}
	if len(created.Assignees) > 0 {
		if err := s.store.setAssignees(created.ID, created.Assignees); err != nil {
			_ = s.store.deleteTask(created.ID)
			jsonError(w, http.StatusBadRequest, "Assignees must be project members")
			return
		}
	}
	writeJSON(w, http.StatusCreated, created)
}

// loadTask writes an error and returns nil unless the caller may access the
// task.
func (s *Server) loadTask(w http.ResponseWriter, r *http.Request, ownerOnly bool) *models.Task {
	id, ok := pathID(r, "taskID")
	if !ok {
		jsonError(w, http.StatusBadRequest, "Invalid task id")
		return nil
	}
	t, ok := s.store.task(id)
	if !ok {
		jsonError(w, http.StatusNotFound, "Task not found")
		return nil
	}
	if !s.requireRole(w, r, t.ProjectID, ownerOnly) {
		return nil
	}
	return t
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	if t := s.loadTask(w, r, false); t != nil {
		writeJSON(w, http.StatusOK, t)
	}
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	t := s.loadTask(w, r, true)
	if t == nil {
		return
	}
	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Validate against a copy so a bad field leaves the task untouched.
	draft := *t
	if err := req.apply(&draft); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.AssigneeIDs != nil {
		if err := s.store.setAssignees(t.ID, req.AssigneeIDs); err != nil {
			jsonError(w, http.StatusBadRequest, "Assignees must be project members")
			return
		}
	}

	updated, err := s.store.updateTask(t.ID, func(cur *models.Task) {
		_ = req.apply(cur) // validated above
	})
	if err != nil {
		jsonError(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	t := s.loadTask(w, r, true)
	if t == nil {
		return
	}
	if err := s.store.deleteTask(t.ID); err != nil {
		jsonError(w, http.StatusNotFound, "Task not found")
		return
	}
	jsonMessage(w, http.StatusOK, "Task deleted successfully")
}

type assignRequest struct {
	UserIDs []int64 `json:"user_ids"`
}

func (s *Server) handleAssignTask(w http.ResponseWriter, r *http.Request) {
	t := s.loadTask(w, r, true)
	if t == nil {
		return
	}
	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.setAssignees(t.ID, req.UserIDs); err != nil {
		jsonError(w, http.StatusBadRequest, "Assignees must be project members")
		return
	}
	jsonMessage(w, http.StatusOK, "Assignees updated successfully")
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	t := s.loadTask(w, r, false)
	if t == nil {
		return
	}
	comments := s.store.listComments(t.ID)
	if comments == nil {
		comments = []*models.Comment{}
	}
	writeJSON(w, http.StatusOK, comments)
}

type commentRequest struct {
	Text string `json:"text_comment"`
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	t := s.loadTask(w, r, false)
	if t == nil {
		return
	}
	var req commentRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		jsonError(w, http.StatusBadRequest, "Comment text is required")
		return
	}
	c, err := s.store.addComment(t.ID, userIDFrom(r.Context()), req.Text)
	if err != nil {
		jsonError(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// loadComment writes an error and returns nil unless the comment exists and
// the caller belongs to its project. role is the caller's project role.
func (s *Server) loadComment(w http.ResponseWriter, r *http.Request) (*models.Comment, models.ProjectRole) {
	id, ok := pathID(r, "commentID")
	if !ok {
		jsonError(w, http.StatusBadRequest, "Invalid comment id")
		return nil, ""
	}
	c, projectID, ok := s.store.comment(id)
	if !ok {
		jsonError(w, http.StatusNotFound, "Comment not found")
		return nil, ""
	}
	role, member, err := s.store.projectRole(projectID, userIDFrom(r.Context()))
	if err != nil || !member {
		jsonError(w, http.StatusForbidden, "Access denied")
		return nil, ""
	}
	return c, role
}

// handleUpdateComment lets the author, and only the author, edit the text.
func (s *Server) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	c, _ := s.loadComment(w, r)
	if c == nil {
		return
	}
	if c.AuthorID != userIDFrom(r.Context()) {
		jsonError(w, http.StatusForbidden, "You are not the author of this comment")
		return
	}
	var req commentRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		jsonError(w, http.StatusBadRequest, "Comment text is required")
		return
	}
	updated, err := s.store.updateComment(c.ID, req.Text)
	if err != nil {
		jsonError(w, http.StatusNotFound, "Comment not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteComment allows the author or the project owner.
func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	c, role := s.loadComment(w, r)
	if c == nil {
		return
	}
	if c.AuthorID != userIDFrom(r.Context()) && role != models.ProjectRoleOwner {
		jsonError(w, http.StatusForbidden, "Not allowed to delete this comment")
		return
	}
	if err := s.store.deleteComment(c.ID); err != nil {
		jsonError(w, http.StatusNotFound, "Comment not found")
		return
	}
	jsonMessage(w, http.StatusOK, "Comment deleted successfully")
}
