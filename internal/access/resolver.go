// Package access derives what the signed-in user may do inside a project.
// It is advisory: the server enforces the real rules, the client uses the
// result to hide or refuse actions before making a call.
package access

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/taskflow/internal/models"
)

// ErrNoAccess is returned when the user has no role in the project. The
// session is still valid.
var ErrNoAccess = errors.New("no access to project")

// Tier is the outcome of role resolution.
type Tier int

const (
	// TierPending means the role is still being resolved.
	TierPending Tier = iota
	// TierPrivileged is the project owner.
	TierPrivileged
	// TierRestricted is a read-only member.
	TierRestricted
	// TierAbsent means the user is not a member.
	TierAbsent
)

func (t Tier) String() string {
	switch t {
	case TierPending:
		return "pending"
	case TierPrivileged:
		return "privileged"
	case TierRestricted:
		return "restricted"
	case TierAbsent:
		return "absent"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Resolution is the caller's standing in one project.
type Resolution struct {
	Tier Tier
	// Role is the canonical project role for Privileged and Restricted.
	Role models.ProjectRole
}

// Resolved reports whether resolution has finished.
func (r Resolution) Resolved() bool {
	return r.Tier != TierPending
}

var (
	pending    = Resolution{Tier: TierPending}
	absent     = Resolution{Tier: TierAbsent}
	privileged = Resolution{Tier: TierPrivileged, Role: models.ProjectRoleOwner}
	restricted = Resolution{Tier: TierRestricted, Role: models.ProjectRoleViewer}
)

// FromRole maps a canonical project role onto a resolution.
func FromRole(role models.ProjectRole) Resolution {
	if role == models.ProjectRoleOwner {
		return privileged
	}
	return restricted
}

// MemberLister fetches a project's membership.
type MemberLister interface {
	ListMembers(ctx context.Context, projectID int64) ([]*models.ProjectMember, error)
}

// Resolver determines a user's role within a project.
type Resolver struct {
	members MemberLister
	logger  *zap.Logger
}

// NewResolver creates a resolver that looks up membership via members.
func NewResolver(members MemberLister, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{members: members, logger: logger}
}

// Resolve returns the user's standing in project. The owner is privileged
// without a network call. A membership fetch failure is returned as an
// error, never as Absent.
func (r *Resolver) Resolve(ctx context.Context, project *models.Project, user *models.User) (Resolution, error) {
	if project == nil || user == nil {
		return absent, nil
	}

	if project.OwnerID == user.ID {
		return privileged, nil
	}

	members, err := r.members.ListMembers(ctx, project.ID)
	if err != nil {
		return pending, fmt.Errorf("list members of project %d: %w", project.ID, err)
	}

	member, ok := models.FindMember(members, user.ID)
	if !ok {
		r.logger.Debug("user is not a project member",
			zap.Int64("project_id", project.ID), zap.Int64("user_id", user.ID))
		return absent, nil
	}
	// ProjectRole is already normalized at decode time; normalize again so
	// hand-built rows cannot smuggle in a legacy value.
	return FromRole(models.NormalizeProjectRole(string(member.ProjectRole))), nil
}

// Handle is an in-progress resolution. State is Pending until the lookup
// finishes.
type Handle struct {
	done chan struct{}
	res  Resolution
	err  error
}

// ResolveAsync starts resolution in the background.
func (r *Resolver) ResolveAsync(ctx context.Context, project *models.Project, user *models.User) *Handle {
	h := &Handle{done: make(chan struct{}), res: pending}
	go func() {
		defer close(h.done)
		h.res, h.err = r.Resolve(ctx, project, user)
	}()
	return h
}

// State returns the current resolution without blocking.
func (h *Handle) State() Resolution {
	select {
	case <-h.done:
		return h.res
	default:
		return pending
	}
}

// Done is closed when resolution finishes.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until resolution finishes or ctx ends.
func (h *Handle) Wait(ctx context.Context) (Resolution, error) {
	select {
	case <-h.done:
		return h.res, h.err
	case <-ctx.Done():
		return pending, ctx.Err()
	}
}
