package permissions

import (
	"context"
	"sort"
)

// Role is a project-scoped role. Roles form a strict hierarchy:
// owner > editor > viewer.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"

	// RoleNone means the user has no access to the project at all.
	RoleNone Role = ""
)

// Permission identifies a single allowed action, e.g. "data:create".
type Permission string

const (
	PermProjectRead   Permission = "project:read"
	PermProjectUpdate Permission = "project:update"
	PermProjectDelete Permission = "project:delete"

	PermMembersRead   Permission = "members:read"
	PermMembersInvite Permission = "members:invite"
	PermMembersUpdate Permission = "members:update"
	PermMembersRemove Permission = "members:remove"

	PermTablesRead   Permission = "tables:read"
	PermTablesCreate Permission = "tables:create"
	PermTablesUpdate Permission = "tables:update"
	PermTablesDelete Permission = "tables:delete"

	PermDataRead   Permission = "data:read"
	PermDataCreate Permission = "data:create"
	PermDataUpdate Permission = "data:update"
	PermDataDelete Permission = "data:delete"

	PermFilesRead   Permission = "files:read"
	PermFilesUpload Permission = "files:upload"
	PermFilesDelete Permission = "files:delete"

	PermSettingsRead   Permission = "settings:read"
	PermSettingsUpdate Permission = "settings:update"
)

// roleHierarchy lists the roles each role fully includes. Kept as an explicit
// table rather than computed at call time so the contract stays auditable.
var roleHierarchy = map[Role][]Role{
	RoleOwner:  {RoleEditor, RoleViewer},
	RoleEditor: {RoleViewer},
	RoleViewer: {},
}

// rolePermissions is the full permission set per role. Each set is written
// out explicitly; nothing is inherited at lookup time.
var rolePermissions = map[Role]map[Permission]struct{}{
	RoleOwner: permSet(
		PermProjectRead, PermProjectUpdate, PermProjectDelete,
		PermMembersRead, PermMembersInvite, PermMembersUpdate, PermMembersRemove,
		PermTablesRead, PermTablesCreate, PermTablesUpdate, PermTablesDelete,
		PermDataRead, PermDataCreate, PermDataUpdate, PermDataDelete,
		PermFilesRead, PermFilesUpload, PermFilesDelete,
		PermSettingsRead, PermSettingsUpdate,
	),
	RoleEditor: permSet(
		PermProjectRead,
		PermMembersRead,
		PermTablesRead, PermTablesCreate, PermTablesUpdate, PermTablesDelete,
		PermDataRead, PermDataCreate, PermDataUpdate, PermDataDelete,
		PermFilesRead, PermFilesUpload, PermFilesDelete,
		PermSettingsRead,
	),
	RoleViewer: permSet(
		PermProjectRead,
		PermMembersRead,
		PermTablesRead,
		PermDataRead,
		PermFilesRead,
		PermSettingsRead,
	),
}

func permSet(perms ...Permission) map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// HasPermission reports whether the role grants the permission.
func HasPermission(role Role, perm Permission) bool {
	_, ok := rolePermissions[role][perm]
	return ok
}

// HasRoleOrHigher reports whether the role is equal to or above the required
// role in the hierarchy.
func HasRoleOrHigher(role, required Role) bool {
	if role == required {
		return true
	}
	for _, included := range roleHierarchy[role] {
		if included == required {
			return true
		}
	}
	return false
}

// EffectivePermissions returns the sorted permission list for a role,
// including everything inherited from lower roles.
func EffectivePermissions(role Role) []Permission {
	set := make(map[Permission]struct{})
	for p := range rolePermissions[role] {
		set[p] = struct{}{}
	}
	for _, lower := range roleHierarchy[role] {
		for p := range rolePermissions[lower] {
			set[p] = struct{}{}
		}
	}

	perms := make([]Permission, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

// RoleSource resolves ownership and membership records for a project. The
// platform store implements it.
type RoleSource interface {
	// OwnerID returns the recorded owner of the project.
	OwnerID(ctx context.Context, projectID int64) (int64, error)

	// MembershipRole returns the role of the user's accepted membership, or
	// RoleNone when the user has no accepted membership for the project.
	MembershipRole(ctx context.Context, userID, projectID int64) (Role, error)
}

// Engine resolves a user's role for a project and answers permission checks
// against it. Every dynamic operation goes through this gate before acting.
type Engine struct {
	source RoleSource
}

// NewEngine creates a permission engine backed by the given role source.
func NewEngine(source RoleSource) *Engine {
	return &Engine{source: source}
}

// RoleOf resolves the user's role for a project. The recorded project owner
// always resolves to owner regardless of membership rows; otherwise the
// accepted membership row decides. RoleNone means no access.
func (e *Engine) RoleOf(ctx context.Context, userID, projectID int64) (Role, error) {
	ownerID, err := e.source.OwnerID(ctx, projectID)
	if err != nil {
		return RoleNone, err
	}
	if ownerID == userID {
		return RoleOwner, nil
	}

	return e.source.MembershipRole(ctx, userID, projectID)
}

// Check resolves the user's role and verifies the permission in one step.
// It returns the resolved role so callers can include it in error details.
func (e *Engine) Check(ctx context.Context, userID, projectID int64, perm Permission) (Role, bool, error) {
	role, err := e.RoleOf(ctx, userID, projectID)
	if err != nil {
		return RoleNone, false, err
	}
	if role == RoleNone {
		return RoleNone, false, nil
	}
	return role, HasPermission(role, perm), nil
}
