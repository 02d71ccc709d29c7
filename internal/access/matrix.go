package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/good-yellow-bee/taskflow/internal/models"
)

// ErrActionDenied is matched by every *DeniedError.
var ErrActionDenied = errors.New("action not permitted")

// Action is a project-scoped operation the UI may offer.
type Action string

const (
	ActionView          Action = "view project"
	ActionEditProject   Action = "edit project"
	ActionDeleteProject Action = "delete project"
	ActionManageMembers Action = "manage members"
	ActionCreateTask    Action = "create tasks"
	ActionEditTask      Action = "edit tasks"
	ActionDeleteTask    Action = "delete tasks"
)

// Permissions is the capability set for one resolution. It is derived on
// demand and never stored.
type Permissions struct {
	Role             string `json:"role"`
	CanView          bool   `json:"can_view"`
	CanEditProject   bool   `json:"can_edit_project"`
	CanDeleteProject bool   `json:"can_delete_project"`
	CanManageMembers bool   `json:"can_manage_members"`
	CanCreateTasks   bool   `json:"can_create_tasks"`
	CanEditTasks     bool   `json:"can_edit_tasks"`
	CanDeleteTasks   bool   `json:"can_delete_tasks"`
}

// PermissionsFor maps a resolution to capabilities. Only two tiers are
// distinguished: owners may do everything, members may only view. Pending
// and Absent grant nothing.
func PermissionsFor(res Resolution) Permissions {
	switch res.Tier {
	case TierPrivileged:
		return Permissions{
			Role:             string(models.ProjectRoleOwner),
			CanView:          true,
			CanEditProject:   true,
			CanDeleteProject: true,
			CanManageMembers: true,
			CanCreateTasks:   true,
			CanEditTasks:     true,
			CanDeleteTasks:   true,
		}
	case TierRestricted:
		return Permissions{
			Role:    string(models.ProjectRoleViewer),
			CanView: true,
		}
	case TierPending:
		return Permissions{Role: "pending"}
	default:
		return Permissions{Role: "none"}
	}
}

// Can reports whether action is allowed.
func (p Permissions) Can(action Action) bool {
	switch action {
	case ActionView:
		return p.CanView
	case ActionEditProject:
		return p.CanEditProject
	case ActionDeleteProject:
		return p.CanDeleteProject
	case ActionManageMembers:
		return p.CanManageMembers
	case ActionCreateTask:
		return p.CanCreateTasks
	case ActionEditTask:
		return p.CanEditTasks
	case ActionDeleteTask:
		return p.CanDeleteTasks
	default:
		return false
	}
}

// Allow returns a *DeniedError when action is not allowed.
func (p Permissions) Allow(action Action) error {
	if p.Can(action) {
		return nil
	}
	return &DeniedError{Action: action, Role: p.Role}
}

// DeniedError is returned when the matrix refuses an action.
type DeniedError struct {
	Action Action
	Role   string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: role %q may not %s", ErrActionDenied, e.Role, e.Action)
}

func (e *DeniedError) Is(target error) bool {
	return target == ErrActionDenied
}

// Authorize resolves the user's role in project and checks action against
// the matrix. It returns ErrNoAccess when the user is not a member, and
// the derived permissions in every resolved case.
func Authorize(ctx context.Context, r *Resolver, project *models.Project, user *models.User, action Action) (Permissions, error) {
	res, err := r.Resolve(ctx, project, user)
	if err != nil {
		return PermissionsFor(res), err
	}
	perms := PermissionsFor(res)
	if res.Tier == TierAbsent {
		return perms, ErrNoAccess
	}
	return perms, perms.Allow(action)
}
