package permissions

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	owners      map[int64]int64
	memberships map[string]Role
}

func (f *fakeSource) OwnerID(_ context.Context, projectID int64) (int64, error) {
	owner, ok := f.owners[projectID]
	if !ok {
		return 0, fmt.Errorf("project %d not found", projectID)
	}
	return owner, nil
}

func (f *fakeSource) MembershipRole(_ context.Context, userID, projectID int64) (Role, error) {
	return f.memberships[fmt.Sprintf("%d/%d", userID, projectID)], nil
}

func TestRoleOf(t *testing.T) {
	source := &fakeSource{
		owners: map[int64]int64{10: 1},
		memberships: map[string]Role{
			"2/10": RoleEditor,
			"3/10": RoleViewer,
		},
	}
	engine := NewEngine(source)
	ctx := context.Background()

	t.Run("recorded owner resolves to owner without membership rows", func(t *testing.T) {
		role, err := engine.RoleOf(ctx, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, RoleOwner, role)
	})

	t.Run("accepted membership decides for non-owners", func(t *testing.T) {
		role, err := engine.RoleOf(ctx, 2, 10)
		require.NoError(t, err)
		assert.Equal(t, RoleEditor, role)

		role, err = engine.RoleOf(ctx, 3, 10)
		require.NoError(t, err)
		assert.Equal(t, RoleViewer, role)
	})

	t.Run("no membership means no access", func(t *testing.T) {
		role, err := engine.RoleOf(ctx, 99, 10)
		require.NoError(t, err)
		assert.Equal(t, RoleNone, role)
	})

	t.Run("unknown project surfaces the source error", func(t *testing.T) {
		_, err := engine.RoleOf(ctx, 1, 404)
		assert.Error(t, err)
	})
}

func TestCheck(t *testing.T) {
	source := &fakeSource{
		owners: map[int64]int64{10: 1},
		memberships: map[string]Role{
			"3/10": RoleViewer,
		},
	}
	engine := NewEngine(source)
	ctx := context.Background()

	t.Run("owner can delete the project", func(t *testing.T) {
		role, ok, err := engine.Check(ctx, 1, 10, PermProjectDelete)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, RoleOwner, role)
	})

	t.Run("viewer cannot mutate data", func(t *testing.T) {
		role, ok, err := engine.Check(ctx, 3, 10, PermDataCreate)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, RoleViewer, role)
	})

	t.Run("stranger has no permissions at all", func(t *testing.T) {
		role, ok, err := engine.Check(ctx, 99, 10, PermProjectRead)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, RoleNone, role)
	})
}

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleOwner, PermProjectDelete, true},
		{RoleOwner, PermMembersInvite, true},
		{RoleOwner, PermSettingsUpdate, true},
		{RoleEditor, PermProjectRead, true},
		{RoleEditor, PermProjectUpdate, false},
		{RoleEditor, PermMembersInvite, false},
		{RoleEditor, PermTablesCreate, true},
		{RoleEditor, PermDataDelete, true},
		{RoleEditor, PermFilesUpload, true},
		{RoleEditor, PermSettingsUpdate, false},
		{RoleViewer, PermProjectRead, true},
		{RoleViewer, PermTablesRead, true},
		{RoleViewer, PermTablesCreate, false},
		{RoleViewer, PermDataCreate, false},
		{RoleViewer, PermFilesUpload, false},
		{RoleNone, PermProjectRead, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %s", tt.role, tt.perm), func(t *testing.T) {
			assert.Equal(t, tt.want, HasPermission(tt.role, tt.perm))
		})
	}
}

func TestHasRoleOrHigher(t *testing.T) {
	assert.True(t, HasRoleOrHigher(RoleOwner, RoleOwner))
	assert.True(t, HasRoleOrHigher(RoleOwner, RoleEditor))
	assert.True(t, HasRoleOrHigher(RoleOwner, RoleViewer))
	assert.True(t, HasRoleOrHigher(RoleEditor, RoleViewer))
	assert.False(t, HasRoleOrHigher(RoleEditor, RoleOwner))
	assert.False(t, HasRoleOrHigher(RoleViewer, RoleEditor))
	assert.False(t, HasRoleOrHigher(RoleNone, RoleViewer))
}

func TestEffectivePermissionsHierarchy(t *testing.T) {
	asSet := func(perms []Permission) map[Permission]struct{} {
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		return set
	}

	owner := asSet(EffectivePermissions(RoleOwner))
	editor := asSet(EffectivePermissions(RoleEditor))
	viewer := asSet(EffectivePermissions(RoleViewer))

	// Each role grants a strict superset of the role below it.
	for p := range editor {
		assert.Contains(t, owner, p, "owner missing editor permission %s", p)
	}
	for p := range viewer {
		assert.Contains(t, editor, p, "editor missing viewer permission %s", p)
	}
	assert.Greater(t, len(owner), len(editor))
	assert.Greater(t, len(editor), len(viewer))

	assert.Empty(t, EffectivePermissions(RoleNone))
}
