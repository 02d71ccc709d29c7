package access

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good-yellow-bee/taskflow/internal/models"
)

type fakeMembers struct {
	members []*models.ProjectMember
	err     error
	calls   atomic.Int32
	block   chan struct{}
}

func (f *fakeMembers) ListMembers(ctx context.Context, projectID int64) ([]*models.ProjectMember, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.members, f.err
}

var (
	owner   = &models.User{ID: 1, Username: "owner"}
	visitor = &models.User{ID: 2, Username: "visitor"}
	project = &models.Project{ID: 10, Name: "Roadmap", OwnerID: 1}
)

func TestResolve_OwnerShortcut(t *testing.T) {
	members := &fakeMembers{err: errors.New("must not be called")}
	r := NewResolver(members, nil)

	res, err := r.Resolve(context.Background(), project, owner)
	require.NoError(t, err)
	assert.Equal(t, TierPrivileged, res.Tier)
	assert.Equal(t, models.ProjectRoleOwner, res.Role)
	assert.Equal(t, int32(0), members.calls.Load(), "owner resolution must not fetch members")
}

func TestResolve_Membership(t *testing.T) {
	tests := []struct {
		name     string
		members  []*models.ProjectMember
		wantTier Tier
	}{
		{
			name:     "explicit owner row",
			members:  []*models.ProjectMember{{UserID: 2, ProjectRole: models.ProjectRoleOwner}},
			wantTier: TierPrivileged,
		},
		{
			name:     "viewer",
			members:  []*models.ProjectMember{{UserID: 2, ProjectRole: models.ProjectRoleViewer}},
			wantTier: TierRestricted,
		},
		{
			name:     "legacy editor defaults to restricted",
			members:  []*models.ProjectMember{{UserID: 2, ProjectRole: "Editor"}},
			wantTier: TierRestricted,
		},
		{
			name:     "upper case owner is not privileged",
			members:  []*models.ProjectMember{{UserID: 2, ProjectRole: "OWNER"}},
			wantTier: TierRestricted,
		},
		{
			name:     "padded owner is not privileged",
			members:  []*models.ProjectMember{{UserID: 2, ProjectRole: " owner "}},
			wantTier: TierRestricted,
		},
		{
			name:     "unknown role defaults to restricted",
			members:  []*models.ProjectMember{{UserID: 2, ProjectRole: "superadmin"}},
			wantTier: TierRestricted,
		},
		{
			name:     "not a member",
			members:  []*models.ProjectMember{{UserID: 3, ProjectRole: models.ProjectRoleOwner}},
			wantTier: TierAbsent,
		},
		{
			name:     "empty membership",
			members:  nil,
			wantTier: TierAbsent,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			members := &fakeMembers{members: tc.members}
			r := NewResolver(members, nil)

			res, err := r.Resolve(context.Background(), project, visitor)
			require.NoError(t, err)
			assert.Equal(t, tc.wantTier, res.Tier)
			assert.Equal(t, int32(1), members.calls.Load())
		})
	}
}

func TestResolve_DecodedCaseVariantOwner(t *testing.T) {
	for _, role := range []string{"OWNER", " owner ", "oWnEr"} {
		t.Run(role, func(t *testing.T) {
			var m models.ProjectMember
			body := `{"user_id": 2, "project_role": "` + role + `"}`
			require.NoError(t, json.Unmarshal([]byte(body), &m))

			r := NewResolver(&fakeMembers{members: []*models.ProjectMember{&m}}, nil)
			res, err := r.Resolve(context.Background(), project, visitor)
			require.NoError(t, err)
			assert.Equal(t, TierRestricted, res.Tier)
			assert.False(t, PermissionsFor(res).CanDeleteProject)
		})
	}
}

func TestResolve_FetchErrorIsNotAbsent(t *testing.T) {
	r := NewResolver(&fakeMembers{err: errors.New("boom")}, nil)

	res, err := r.Resolve(context.Background(), project, visitor)
	require.Error(t, err)
	assert.NotEqual(t, TierAbsent, res.Tier)
	assert.False(t, res.Resolved())
}

func TestResolveAsync_PendingThenResolved(t *testing.T) {
	members := &fakeMembers{
		members: []*models.ProjectMember{{UserID: 2, ProjectRole: models.ProjectRoleViewer}},
		block:   make(chan struct{}),
	}
	r := NewResolver(members, nil)

	h := r.ResolveAsync(context.Background(), project, visitor)
	assert.Equal(t, TierPending, h.State().Tier, "pending while fetch is in flight")
	assert.False(t, PermissionsFor(h.State()).CanView)

	close(members.block)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, TierRestricted, res.Tier)
	assert.Equal(t, TierRestricted, h.State().Tier)
}

func TestResolveAsync_AbsentIsDistinctFromPending(t *testing.T) {
	r := NewResolver(&fakeMembers{}, nil)

	h := r.ResolveAsync(context.Background(), project, visitor)
	<-h.Done()

	assert.Equal(t, TierAbsent, h.State().Tier)
	assert.True(t, h.State().Resolved())
}

func TestPermissionsFor(t *testing.T) {
	all := Permissions{
		Role: "Owner", CanView: true, CanEditProject: true, CanDeleteProject: true,
		CanManageMembers: true, CanCreateTasks: true, CanEditTasks: true, CanDeleteTasks: true,
	}

	tests := []struct {
		name string
		res  Resolution
		want Permissions
	}{
		{"privileged", Resolution{Tier: TierPrivileged}, all},
		{"restricted", Resolution{Tier: TierRestricted}, Permissions{Role: "Viewer", CanView: true}},
		{"absent", Resolution{Tier: TierAbsent}, Permissions{Role: "none"}},
		{"pending", Resolution{Tier: TierPending}, Permissions{Role: "pending"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := PermissionsFor(tc.res)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("PermissionsFor() mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(got, PermissionsFor(tc.res)); diff != "" {
				t.Errorf("PermissionsFor() not deterministic:\n%s", diff)
			}
		})
	}
}

func TestPermissions_Allow(t *testing.T) {
	viewer := PermissionsFor(Resolution{Tier: TierRestricted})

	assert.NoError(t, viewer.Allow(ActionView))
	for _, a := range []Action{ActionEditProject, ActionDeleteProject, ActionManageMembers, ActionCreateTask, ActionEditTask, ActionDeleteTask} {
		err := viewer.Allow(a)
		assert.ErrorIs(t, err, ErrActionDenied, "action %s", a)

		var denied *DeniedError
		require.ErrorAs(t, err, &denied)
		assert.Equal(t, a, denied.Action)
	}

	assert.False(t, viewer.Can(Action("fly")))
}

func TestAuthorize(t *testing.T) {
	r := NewResolver(&fakeMembers{members: []*models.ProjectMember{{UserID: 2, ProjectRole: models.ProjectRoleViewer}}}, nil)
	ctx := context.Background()

	_, err := Authorize(ctx, r, project, visitor, ActionCreateTask)
	assert.ErrorIs(t, err, ErrActionDenied)

	perms, err := Authorize(ctx, r, project, visitor, ActionView)
	require.NoError(t, err)
	assert.True(t, perms.CanView)

	perms, err = Authorize(ctx, r, project, owner, ActionDeleteProject)
	require.NoError(t, err)
	assert.True(t, perms.CanDeleteProject)

	stranger := &models.User{ID: 99}
	_, err = Authorize(ctx, r, project, stranger, ActionView)
	assert.ErrorIs(t, err, ErrNoAccess)
}
