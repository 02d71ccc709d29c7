package devserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/good-yellow-bee/taskflow/internal/models"
)

// requireRole writes an error and returns false unless the caller may act
// on the project. Non-owners may only read.
func (s *Server) requireRole(w http.ResponseWriter, r *http.Request, projectID int64, ownerOnly bool) bool {
	role, ok, err := s.store.projectRole(projectID, userIDFrom(r.Context()))
	if errors.Is(err, errNotFound) {
		jsonError(w, http.StatusNotFound, "Project not found")
		return false
	}
	if !ok {
		jsonError(w, http.StatusForbidden, "Access denied")
		return false
	}
	if ownerOnly && role != models.ProjectRoleOwner {
		jsonError(w, http.StatusForbidden, "Only the project owner can perform this action")
		return false
	}
	return true
}

type projectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Color       *string `json:"color"`
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects := s.store.projectsFor(userIDFrom(r.Context()))
	if projects == nil {
		projects = []*models.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		jsonError(w, http.StatusBadRequest, "Project name is required")
		return
	}
	var description, color string
	if req.Description != nil {
		description = *req.Description
	}
	if req.Color != nil {
		color = *req.Color
	}

	p := s.store.createProject(userIDFrom(r.Context()), strings.TrimSpace(*req.Name), description, color)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "projectID")
	if !ok {
		jsonError(w, http.StatusBadRequest, "Invalid project id")
		return
	}
	if !s.requireRole(w, r, id, false) {
		return
	}
	p, _ := s.store.project(id)
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "projectID")
	if !ok {
		jsonError(w, http.StatusBadRequest, "Invalid project id")
		return
	}
	if !s.requireRole(w, r, id, true) {
		return
	}
	var req projectRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		jsonError(w, http.StatusBadRequest, "Project name cannot be empty")
		return
	}

	p, err := s.store.updateProject(id, func(p *models.Project) {
		if req.Name != nil {
			p.Name = strings.TrimSpace(*req.Name)
		}
		if req.Description != nil {
			p.Description = *req.Description
		}
		if req.Color != nil && *req.Color != "" {
			p.Color = *req.Color
		}
	})
	if err != nil {
		jsonError(w, http.StatusNotFound, "Project not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "projectID")
	if !ok {
		jsonError(w, http.StatusBadRequest, "Invalid project id")
		return
	}
	if !s.requireRole(w, r, id, true) {
		return
	}
	if err := s.store.deleteProject(id); err != nil {
		jsonError(w, http.StatusNotFound, "Project not found")
		return
	}
	jsonMessage(w, http.StatusOK, "Project deleted successfully")
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "projectID")
	if !ok {
		jsonError(w, http.StatusBadRequest, "Invalid project id")
		return
	}
	if !s.requireRole(w, r, id, false) {
		return
	}
	members, err := s.store.listMembers(id)
	if err != nil {
		jsonError(w, http.StatusNotFound, "Project not found")
		return
	}
	writeJSON(w, http.StatusOK, members)
}

type memberRequest struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

// memberRole accepts any non-empty role string; the default is Viewer.
// Stored values are returned verbatim so clients must normalize them.
func memberRole(raw string) models.ProjectRole {
	if strings.TrimSpace(raw) == "" {
		return models.ProjectRoleViewer
	}
	return models.ProjectRole(strings.TrimSpace(raw))
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "projectID")
	if !ok {
		jsonError(w, http.StatusBadRequest, "Invalid project id")
		return
	}
	if !s.requireRole(w, r, id, true) {
		return
	}
	var req memberRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID <= 0 {
		jsonError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	switch err := s.store.addMember(id, req.UserID, memberRole(req.Role)); {
	case errors.Is(err, errConflict):
		jsonError(w, http.StatusConflict, "User is already a member of this project")
	case errors.Is(err, errNotFound):
		jsonError(w, http.StatusNotFound, "User not found")
	case err != nil:
		jsonError(w, http.StatusInternalServerError, "Internal server error")
	default:
		jsonMessage(w, http.StatusCreated, "Member added successfully")
	}
}

func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	id, ok1 := pathID(r, "projectID")
	userID, ok2 := pathID(r, "userID")
	if !ok1 || !ok2 {
		jsonError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	if !s.requireRole(w, r, id, true) {
		return
	}
	var req memberRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch err := s.store.setMemberRole(id, userID, memberRole(req.Role)); {
	case errors.Is(err, errOwnerRemoval):
		jsonError(w, http.StatusBadRequest, "Cannot change the project owner's role")
	case errors.Is(err, errNotFound):
		jsonError(w, http.StatusNotFound, "Member not found")
	case err != nil:
		jsonError(w, http.StatusInternalServerError, "Internal server error")
	default:
		jsonMessage(w, http.StatusOK, "Member role updated successfully")
	}
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	id, ok1 := pathID(r, "projectID")
	userID, ok2 := pathID(r, "userID")
	if !ok1 || !ok2 {
		jsonError(w, http.StatusBadRequest, "Invalid id")
		return
	}
	if !s.requireRole(w, r, id, true) {
		return
	}

	switch err := s.store.removeMember(id, userID); {
	case errors.Is(err, errOwnerRemoval):
		jsonError(w, http.StatusBadRequest, "Cannot remove the project owner")
	case errors.Is(err, errNotFound):
		jsonError(w, http.StatusNotFound, "Member not found")
	case err != nil:
		jsonError(w, http.StatusInternalServerError, "Internal server error")
	default:
		jsonMessage(w, http.StatusOK, "Member removed successfully")
	}
}
