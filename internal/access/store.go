package access

import (
	"context"
	"time"
)

// RoleMembership is a stored user-to-role link with its creation time.
type RoleMembership struct {
	UserID  int64
	AddedAt time.Time
}

// Store is the role and grant repository consumed by the service. All
// operations must be safe for concurrent use; multi-step mutations run
// through WithTx, which hands the callback a Store bound to a single
// transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, Store) error) error

	CreateRole(ctx context.Context, role Role) (Role, error)
	GetRole(ctx context.Context, id RoleID) (Role, error)
	RootRoleByName(ctx context.Context, name string) (Role, error)
	RootRoles(ctx context.Context) ([]Role, error)
	RolesForProject(ctx context.Context, projectID string) ([]Role, error)
	RolesForUser(ctx context.Context, userID int64) ([]Role, error)
	DeleteRolesForProject(ctx context.Context, projectID string) error

	InsertGrant(ctx context.Context, grant Grant) error
	DeleteGrant(ctx context.Context, grant Grant) error
	GrantsForRole(ctx context.Context, id RoleID) ([]Grant, error)

	InsertAssignment(ctx context.Context, a Assignment) error
	DeleteAssignment(ctx context.Context, a Assignment) error
	DeleteAssignmentsOfType(ctx context.Context, userID int64, roleType RoleType) error
	UsersForRole(ctx context.Context, id RoleID) ([]RoleMembership, error)

	ResolvedPermissionsForUser(ctx context.Context, userID int64) ([]ResolvedPermission, error)
}

// UserDirectory resolves user ids into display projections. Absent ids
// are simply omitted from the result.
type UserDirectory interface {
	ByIDs(ctx context.Context, ids []int64) ([]UserRef, error)
}
