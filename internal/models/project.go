package models

import "encoding/json"

// Project represents a logical grouping of tasks and members.
type Project struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Color        string    `json:"color,omitempty"`
	OwnerID      int64     `json:"owner"`
	CreationDate Timestamp `json:"creation_date"`
}

// DefaultProjectColor is used when a project is created without a color.
const DefaultProjectColor = "#FFFFFF"

// ProjectRole is a member's role within a single project.
type ProjectRole string

const (
	ProjectRoleOwner  ProjectRole = "Owner"
	ProjectRoleViewer ProjectRole = "Viewer"
)

// NormalizeProjectRole maps a stored role string onto the two-tier model.
// Only the exact value "Owner" is privileged. Case or whitespace variants,
// legacy values such as "Editor" and unknown strings all become Viewer.
func NormalizeProjectRole(raw string) ProjectRole {
	if ProjectRole(raw) == ProjectRoleOwner {
		return ProjectRoleOwner
	}
	return ProjectRoleViewer
}

// ProjectMember represents a user's membership in a project.
type ProjectMember struct {
	ProjectID   int64       `json:"project_id,omitempty"`
	UserID      int64       `json:"user_id"`
	Username    string      `json:"username"`
	Email       string      `json:"email"`
	ProjectRole ProjectRole `json:"project_role"`
}

// UnmarshalJSON accepts both member shapes the backend has served:
// {user_id, project_role} and {id, role}.
func (m *ProjectMember) UnmarshalJSON(data []byte) error {
	var raw struct {
		ProjectID   int64  `json:"project_id"`
		UserID      *int64 `json:"user_id"`
		ID          *int64 `json:"id"`
		Username    string `json:"username"`
		Email       string `json:"email"`
		ProjectRole string `json:"project_role"`
		Role        string `json:"role"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	m.ProjectID = raw.ProjectID
	m.Username = raw.Username
	m.Email = raw.Email
	switch {
	case raw.UserID != nil:
		m.UserID = *raw.UserID
	case raw.ID != nil:
		m.UserID = *raw.ID
	}

	role := raw.ProjectRole
	if role == "" {
		role = raw.Role
	}
	m.ProjectRole = NormalizeProjectRole(role)
	return nil
}

// FindMember returns the member row for userID, if any.
func FindMember(members []*ProjectMember, userID int64) (*ProjectMember, bool) {
	for _, m := range members {
		if m != nil && m.UserID == userID {
			return m, true
		}
	}
	return nil, false
}
