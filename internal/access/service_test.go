package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// MOCK STORE
// ============================================================================

type membership struct {
	Assignment
	addedAt time.Time
}

type mockStore struct {
	roles      map[RoleID]Role
	nextRoleID RoleID
	grants     []Grant
	members    []membership

	// Error injection
	withTxError           error
	createRoleError       error
	getRoleError          error
	insertGrantError      error
	insertAssignmentError error
	deleteOfTypeError     error
	resolvedError         error
	usersForRoleError     error
}

func newMockStore() *mockStore {
	return &mockStore{
		roles:      make(map[RoleID]Role),
		nextRoleID: 1,
	}
}

type storeSnapshot struct {
	roles   map[RoleID]Role
	nextID  RoleID
	grants  []Grant
	members []membership
}

func (m *mockStore) snapshot() storeSnapshot {
	roles := make(map[RoleID]Role, len(m.roles))
	for id, r := range m.roles {
		roles[id] = r
	}
	return storeSnapshot{
		roles:   roles,
		nextID:  m.nextRoleID,
		grants:  append([]Grant(nil), m.grants...),
		members: append([]membership(nil), m.members...),
	}
}

func (m *mockStore) restore(s storeSnapshot) {
	m.roles = s.roles
	m.nextRoleID = s.nextID
	m.grants = s.grants
	m.members = s.members
}

func (m *mockStore) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	if m.withTxError != nil {
		return m.withTxError
	}
	snap := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *mockStore) CreateRole(ctx context.Context, role Role) (Role, error) {
	if m.createRoleError != nil {
		return Role{}, m.createRoleError
	}
	role.ID = m.nextRoleID
	m.nextRoleID++
	m.roles[role.ID] = role
	return role, nil
}

func (m *mockStore) GetRole(ctx context.Context, id RoleID) (Role, error) {
	if m.getRoleError != nil {
		return Role{}, m.getRoleError
	}
	role, ok := m.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (m *mockStore) RootRoleByName(ctx context.Context, name string) (Role, error) {
	for _, r := range m.roles {
		if r.Type == RoleRoot && r.Name == name {
			return r, nil
		}
	}
	return Role{}, ErrNotFound
}

func (m *mockStore) RootRoles(ctx context.Context) ([]Role, error) {
	var out []Role
	for id := RoleID(1); id < m.nextRoleID; id++ {
		if r, ok := m.roles[id]; ok && r.Type == RoleRoot {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) RolesForProject(ctx context.Context, projectID string) ([]Role, error) {
	var out []Role
	for id := RoleID(1); id < m.nextRoleID; id++ {
		if r, ok := m.roles[id]; ok && r.Type == RoleProject && r.ProjectID == projectID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) RolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	var out []Role
	for _, mem := range m.members {
		if mem.UserID != userID {
			continue
		}
		if r, ok := m.roles[mem.RoleID]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) DeleteRolesForProject(ctx context.Context, projectID string) error {
	for id, r := range m.roles {
		if r.Type == RoleProject && r.ProjectID == projectID {
			delete(m.roles, id)
			m.cascadeRole(id)
		}
	}
	return nil
}

func (m *mockStore) cascadeRole(id RoleID) {
	grants := m.grants[:0]
	for _, g := range m.grants {
		if g.RoleID != id {
			grants = append(grants, g)
		}
	}
	m.grants = grants
	members := m.members[:0]
	for _, mem := range m.members {
		if mem.RoleID != id {
			members = append(members, mem)
		}
	}
	m.members = members
}

func (m *mockStore) InsertGrant(ctx context.Context, grant Grant) error {
	if m.insertGrantError != nil {
		return m.insertGrantError
	}
	for _, g := range m.grants {
		if g == grant {
			return nil
		}
	}
	m.grants = append(m.grants, grant)
	return nil
}

func (m *mockStore) DeleteGrant(ctx context.Context, grant Grant) error {
	grants := m.grants[:0]
	for _, g := range m.grants {
		if g != grant {
			grants = append(grants, g)
		}
	}
	m.grants = grants
	return nil
}

func (m *mockStore) GrantsForRole(ctx context.Context, id RoleID) ([]Grant, error) {
	var out []Grant
	for _, g := range m.grants {
		if g.RoleID == id {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *mockStore) InsertAssignment(ctx context.Context, a Assignment) error {
	if m.insertAssignmentError != nil {
		return m.insertAssignmentError
	}
	for _, mem := range m.members {
		if mem.Assignment == a {
			return ErrConflict
		}
	}
	m.members = append(m.members, membership{Assignment: a, addedAt: time.Now()})
	return nil
}

func (m *mockStore) DeleteAssignment(ctx context.Context, a Assignment) error {
	members := m.members[:0]
	for _, mem := range m.members {
		if mem.Assignment != a {
			members = append(members, mem)
		}
	}
	m.members = members
	return nil
}

func (m *mockStore) DeleteAssignmentsOfType(ctx context.Context, userID int64, roleType RoleType) error {
	if m.deleteOfTypeError != nil {
		return m.deleteOfTypeError
	}
	members := m.members[:0]
	for _, mem := range m.members {
		role := m.roles[mem.RoleID]
		if mem.UserID == userID && role.Type == roleType {
			continue
		}
		members = append(members, mem)
	}
	m.members = members
	return nil
}

func (m *mockStore) UsersForRole(ctx context.Context, id RoleID) ([]RoleMembership, error) {
	if m.usersForRoleError != nil {
		return nil, m.usersForRoleError
	}
	var out []RoleMembership
	for _, mem := range m.members {
		if mem.RoleID == id {
			out = append(out, RoleMembership{UserID: mem.UserID, AddedAt: mem.addedAt})
		}
	}
	return out, nil
}

// ResolvedPermissionsForUser mirrors the SQL resolution: grants are
// joined through the user's roles, and a project-type role contributes
// its project id to grants that carry none.
func (m *mockStore) ResolvedPermissionsForUser(ctx context.Context, userID int64) ([]ResolvedPermission, error) {
	if m.resolvedError != nil {
		return nil, m.resolvedError
	}
	seen := make(map[ResolvedPermission]struct{})
	var out []ResolvedPermission
	for _, mem := range m.members {
		if mem.UserID != userID {
			continue
		}
		role := m.roles[mem.RoleID]
		for _, g := range m.grants {
			if g.RoleID != mem.RoleID {
				continue
			}
			p := ResolvedPermission{Permission: g.Permission, Project: g.Project, Environment: g.Environment}
			if p.Project == "" && role.Type == RoleProject {
				p.Project = role.ProjectID
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out, nil
}

// ============================================================================
// MOCK USER DIRECTORY
// ============================================================================

type mockDirectory struct {
	users map[int64]UserRef
	err   error
}

func newMockDirectory(users ...UserRef) *mockDirectory {
	d := &mockDirectory{users: make(map[int64]UserRef)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *mockDirectory) ByIDs(ctx context.Context, ids []int64) ([]UserRef, error) {
	if d.err != nil {
		return nil, d.err
	}
	var out []UserRef
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func newTestService(store *mockStore, dir *mockDirectory) *Service {
	if dir == nil {
		dir = newMockDirectory()
	}
	return NewService(store, dir, DefaultCatalog(), nil)
}

// ============================================================================
// PERMISSION CHECKS
// ============================================================================

func TestHasPermissionAdminOverridesEverything(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	admin, err := store.CreateRole(ctx, Role{Name: RoleNameAdmin, Type: RoleRoot})
	require.NoError(t, err)
	require.NoError(t, store.InsertGrant(ctx, Grant{RoleID: admin.ID, Permission: PermAdmin}))
	require.NoError(t, store.InsertAssignment(ctx, Assignment{UserID: 1, RoleID: admin.ID}))

	for _, perm := range []string{PermCreateProject, PermUpdateFeature, "SOMETHING_NOBODY_GRANTED"} {
		ok, err := svc.HasPermission(ctx, 1, perm, "any-project")
		require.NoError(t, err)
		assert.True(t, ok, "admin should hold %s", perm)
	}
}

func TestHasPermissionProjectScoping(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	role, err := store.CreateRole(ctx, Role{Name: "custom", Type: RoleRoot})
	require.NoError(t, err)
	require.NoError(t, store.InsertGrant(ctx, Grant{RoleID: role.ID, Permission: PermUpdateProject, Project: "payments"}))
	require.NoError(t, store.InsertAssignment(ctx, Assignment{UserID: 7, RoleID: role.ID}))

	ok, err := svc.HasPermission(ctx, 7, PermUpdateProject, "payments")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasPermission(ctx, 7, PermUpdateProject, "billing")
	require.NoError(t, err)
	assert.False(t, ok, "grant for payments must not leak into billing")

	ok, err = svc.HasPermission(ctx, 7, PermDeleteProject, "payments")
	require.NoError(t, err)
	assert.False(t, ok, "only the granted permission name matches")
}

func TestHasPermissionWildcardProject(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	role, err := store.CreateRole(ctx, Role{Name: RoleNameEditor, Type: RoleRoot})
	require.NoError(t, err)
	require.NoError(t, store.InsertGrant(ctx, Grant{RoleID: role.ID, Permission: PermCreateFeature, Project: AllProjects}))
	require.NoError(t, store.InsertAssignment(ctx, Assignment{UserID: 2, RoleID: role.ID}))

	for _, project := range []string{"payments", "billing", "anything"} {
		ok, err := svc.HasPermission(ctx, 2, PermCreateFeature, project)
		require.NoError(t, err)
		assert.True(t, ok, "wildcard grant should cover %s", project)
	}
}

func TestHasPermissionUnscopedGrantMatchesAnyProject(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	role, err := store.CreateRole(ctx, Role{Name: "platform", Type: RoleRoot})
	require.NoError(t, err)
	require.NoError(t, store.InsertGrant(ctx, Grant{RoleID: role.ID, Permission: PermCreateProject}))
	require.NoError(t, store.InsertAssignment(ctx, Assignment{UserID: 3, RoleID: role.ID}))

	ok, err := svc.HasPermission(ctx, 3, PermCreateProject, "irrelevant")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasPermissionUnknownUser(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)

	ok, err := svc.HasPermission(context.Background(), 999, PermCreateProject, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasPermissionStoreErrorPropagates(t *testing.T) {
	store := newMockStore()
	store.resolvedError = errors.New("connection reset")
	svc := newTestService(store, nil)

	ok, err := svc.HasPermission(context.Background(), 1, PermCreateProject, "")
	require.Error(t, err)
	assert.False(t, ok)
	assert.EqualError(t, err, "connection reset")
}

func TestHasEnvironmentPermission(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	role, err := store.CreateRole(ctx, Role{Name: "deployer", Type: RoleRoot})
	require.NoError(t, err)
	require.NoError(t, store.InsertGrant(ctx, Grant{
		RoleID: role.ID, Permission: "UPDATE_FEATURE_STRATEGY",
		Project: "payments", Environment: "production",
	}))
	require.NoError(t, store.InsertAssignment(ctx, Assignment{UserID: 4, RoleID: role.ID}))

	ok, err := svc.HasEnvironmentPermission(ctx, 4, "UPDATE_FEATURE_STRATEGY", "payments", "production")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasEnvironmentPermission(ctx, 4, "UPDATE_FEATURE_STRATEGY", "payments", "staging")
	require.NoError(t, err)
	assert.False(t, ok, "production grant must not cover staging")

	ok, err = svc.HasEnvironmentPermission(ctx, 4, "UPDATE_FEATURE_STRATEGY", "billing", "production")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasEnvironmentPermissionWildcardEnv(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	role, err := store.CreateRole(ctx, Role{Name: "deployer", Type: RoleRoot})
	require.NoError(t, err)
	require.NoError(t, store.InsertGrant(ctx, Grant{
		RoleID: role.ID, Permission: "CREATE_FEATURE_STRATEGY",
		Project: AllProjects, Environment: AllEnvs,
	}))
	require.NoError(t, store.InsertAssignment(ctx, Assignment{UserID: 5, RoleID: role.ID}))

	ok, err := svc.HasEnvironmentPermission(ctx, 5, "CREATE_FEATURE_STRATEGY", "payments", "staging")
	require.NoError(t, err)
	assert.True(t, ok)
}

// ============================================================================
// PROJECT ROLE LIFECYCLE
// ============================================================================

func TestCreateDefaultProjectRoles(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	require.NoError(t, svc.CreateDefaultProjectRoles(ctx, 10, "payments"))

	roles, err := store.RolesForProject(ctx, "payments")
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, ProjectRoleAdmin, roles[0].Name)
	assert.Equal(t, ProjectRoleRegular, roles[1].Name)

	adminGrants, err := store.GrantsForRole(ctx, roles[0].ID)
	require.NoError(t, err)
	assert.Len(t, adminGrants, 5)

	regularGrants, err := store.GrantsForRole(ctx, roles[1].ID)
	require.NoError(t, err)
	assert.Len(t, regularGrants, 3)

	members, err := store.UsersForRole(ctx, roles[0].ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, int64(10), members[0].UserID)
}

func TestCreateDefaultProjectRolesOwnerGetsAccess(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	require.NoError(t, svc.CreateDefaultProjectRoles(ctx, 10, "payments"))

	ok, err := svc.HasPermission(ctx, 10, PermUpdateFeature, "payments")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasPermission(ctx, 10, PermUpdateFeature, "billing")
	require.NoError(t, err)
	assert.False(t, ok, "project admin role must be scoped to its project")
}

func TestCreateDefaultProjectRolesWithoutOwner(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	require.NoError(t, svc.CreateDefaultProjectRoles(ctx, 0, "system-project"))

	roles, err := store.RolesForProject(ctx, "system-project")
	require.NoError(t, err)
	require.Len(t, roles, 2)
	members, err := store.UsersForRole(ctx, roles[0].ID)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestCreateDefaultProjectRolesEmptyProject(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)

	err := svc.CreateDefaultProjectRoles(context.Background(), 1, "")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCreateDefaultProjectRolesRollsBackOnFailure(t *testing.T) {
	store := newMockStore()
	store.insertAssignmentError = errors.New("disk full")
	svc := newTestService(store, nil)
	ctx := context.Background()

	err := svc.CreateDefaultProjectRoles(ctx, 10, "payments")
	require.Error(t, err)

	roles, lerr := store.RolesForProject(ctx, "payments")
	require.NoError(t, lerr)
	assert.Empty(t, roles, "partial provisioning must not survive a failed transaction")
}

func TestRemoveDefaultProjectRoles(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	require.NoError(t, svc.CreateDefaultProjectRoles(ctx, 10, "payments"))
	require.NoError(t, svc.RemoveDefaultProjectRoles(ctx, "payments"))

	roles, err := store.RolesForProject(ctx, "payments")
	require.NoError(t, err)
	assert.Empty(t, roles)
	assert.Empty(t, store.grants, "grants must cascade with the role")
	assert.Empty(t, store.members, "assignments must cascade with the role")

	// Removing again is a no-op.
	require.NoError(t, svc.RemoveDefaultProjectRoles(ctx, "payments"))
}

// ============================================================================
// ROOT ROLE ASSIGNMENT
// ============================================================================

func TestSetUserRootRoleReplacesPrevious(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	editor, err := store.CreateRole(ctx, Role{Name: RoleNameEditor, Type: RoleRoot})
	require.NoError(t, err)
	viewer, err := store.CreateRole(ctx, Role{Name: RoleNameViewer, Type: RoleRoot})
	require.NoError(t, err)

	require.NoError(t, svc.SetUserRootRole(ctx, 1, editor.ID))
	require.NoError(t, svc.SetUserRootRole(ctx, 1, viewer.ID))

	roles, err := svc.RolesForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, roles, 1, "a user holds exactly one root role")
	assert.Equal(t, viewer.ID, roles[0].ID)
}

func TestSetUserRootRoleKeepsProjectRoles(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	require.NoError(t, svc.CreateDefaultProjectRoles(ctx, 1, "payments"))
	editor, err := store.CreateRole(ctx, Role{Name: RoleNameEditor, Type: RoleRoot})
	require.NoError(t, err)

	require.NoError(t, svc.SetUserRootRole(ctx, 1, editor.ID))

	roles, err := svc.RolesForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, roles, 2)
}

func TestSetUserRootRoleUnknownRole(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)

	err := svc.SetUserRootRole(context.Background(), 1, 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetUserRootRoleRejectsProjectRole(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	role, err := store.CreateRole(ctx, Role{Name: ProjectRoleAdmin, Type: RoleProject, ProjectID: "payments"})
	require.NoError(t, err)

	err = svc.SetUserRootRole(ctx, 1, role.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetUserRootRoleAtomicOnFailure(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	editor, err := store.CreateRole(ctx, Role{Name: RoleNameEditor, Type: RoleRoot})
	require.NoError(t, err)
	viewer, err := store.CreateRole(ctx, Role{Name: RoleNameViewer, Type: RoleRoot})
	require.NoError(t, err)
	require.NoError(t, svc.SetUserRootRole(ctx, 1, editor.ID))

	store.insertAssignmentError = errors.New("connection lost")
	err = svc.SetUserRootRole(ctx, 1, viewer.ID)
	require.Error(t, err)

	store.insertAssignmentError = nil
	roles, err := svc.RolesForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, roles, 1, "failed replacement must leave the prior assignment intact")
	assert.Equal(t, editor.ID, roles[0].ID)
}

// ============================================================================
// GRANT MANAGEMENT
// ============================================================================

func TestAddPermissionToRole(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	role, err := store.CreateRole(ctx, Role{Name: "custom", Type: RoleRoot})
	require.NoError(t, err)

	require.NoError(t, svc.AddPermissionToRole(ctx, role.ID, PermUpdateProject, "payments"))
	grants, err := store.GrantsForRole(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "payments", grants[0].Project)

	// Re-granting is a no-op, not a conflict.
	require.NoError(t, svc.AddPermissionToRole(ctx, role.ID, PermUpdateProject, "payments"))
	grants, err = store.GrantsForRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Len(t, grants, 1)
}

func TestAddPermissionToRoleRootScopeIgnoresProject(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	role, err := store.CreateRole(ctx, Role{Name: "custom", Type: RoleRoot})
	require.NoError(t, err)

	require.NoError(t, svc.AddPermissionToRole(ctx, role.ID, PermCreateProject, "payments"))
	grants, err := store.GrantsForRole(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Empty(t, grants[0].Project, "root scoped grants carry no project")
}

func TestAddPermissionToRoleValidation(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	role, err := store.CreateRole(ctx, Role{Name: "custom", Type: RoleRoot})
	require.NoError(t, err)

	err = svc.AddPermissionToRole(ctx, role.ID, "NO_SUCH_PERMISSION", "")
	require.ErrorIs(t, err, ErrNotFound)

	err = svc.AddPermissionToRole(ctx, 42, PermCreateProject, "")
	require.ErrorIs(t, err, ErrNotFound)

	err = svc.AddPermissionToRole(ctx, role.ID, PermUpdateProject, "")
	require.ErrorIs(t, err, ErrInvalidArgument)

	err = svc.AddPermissionToRole(ctx, role.ID, "UPDATE_FEATURE_STRATEGY", "payments")
	require.ErrorIs(t, err, ErrInvalidArgument, "environment scoped permissions take the environment path")
}

func TestAddEnvironmentPermissionToRole(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	role, err := store.CreateRole(ctx, Role{Name: "deployer", Type: RoleRoot})
	require.NoError(t, err)

	require.NoError(t, svc.AddEnvironmentPermissionToRole(ctx, role.ID, "UPDATE_FEATURE_STRATEGY", "payments", "production"))
	grants, err := store.GrantsForRole(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "production", grants[0].Environment)

	err = svc.AddEnvironmentPermissionToRole(ctx, role.ID, "UPDATE_FEATURE_STRATEGY", "payments", "")
	require.ErrorIs(t, err, ErrInvalidArgument)

	err = svc.AddEnvironmentPermissionToRole(ctx, role.ID, PermUpdateProject, "payments", "production")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRemovePermissionFromRole(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	role, err := store.CreateRole(ctx, Role{Name: "custom", Type: RoleRoot})
	require.NoError(t, err)
	require.NoError(t, svc.AddPermissionToRole(ctx, role.ID, PermUpdateProject, "payments"))

	require.NoError(t, svc.RemovePermissionFromRole(ctx, role.ID, PermUpdateProject, "payments"))
	grants, err := store.GrantsForRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)

	// Removing an absent grant is a no-op.
	require.NoError(t, svc.RemovePermissionFromRole(ctx, role.ID, PermUpdateProject, "payments"))
}

// ============================================================================
// USER / ROLE ASSIGNMENT
// ============================================================================

func TestAddUserToRoleConflicts(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	require.NoError(t, svc.CreateDefaultProjectRoles(ctx, 0, "payments"))
	roles, err := store.RolesForProject(ctx, "payments")
	require.NoError(t, err)
	admin, regular := roles[0], roles[1]

	require.NoError(t, svc.AddUserToRole(ctx, 5, admin.ID))

	err = svc.AddUserToRole(ctx, 5, admin.ID)
	require.ErrorIs(t, err, ErrConflict, "re-adding a held role conflicts")

	err = svc.AddUserToRole(ctx, 5, regular.ID)
	require.ErrorIs(t, err, ErrConflict, "a user holds one role per project")
}

func TestAddUserToRoleAcrossProjects(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	require.NoError(t, svc.CreateDefaultProjectRoles(ctx, 0, "payments"))
	require.NoError(t, svc.CreateDefaultProjectRoles(ctx, 0, "billing"))
	payments, err := store.RolesForProject(ctx, "payments")
	require.NoError(t, err)
	billing, err := store.RolesForProject(ctx, "billing")
	require.NoError(t, err)

	require.NoError(t, svc.AddUserToRole(ctx, 5, payments[0].ID))
	require.NoError(t, svc.AddUserToRole(ctx, 5, billing[1].ID))
}

func TestAddUserToRoleUnknownRole(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)

	err := svc.AddUserToRole(context.Background(), 5, 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAddUserToRoleRunsInTransaction(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	role, err := store.CreateRole(ctx, Role{Name: RoleNameViewer, Type: RoleRoot})
	require.NoError(t, err)

	// The duplicate scan and insert must go through the store
	// transaction; a transaction that cannot start assigns nothing.
	store.withTxError = errors.New("serialization failure")
	err = svc.AddUserToRole(ctx, 5, role.ID)
	require.EqualError(t, err, "serialization failure")

	store.withTxError = nil
	members, err := store.UsersForRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Empty(t, members)

	require.NoError(t, svc.AddUserToRole(ctx, 5, role.ID))
}

func TestRemoveUserFromRole(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	role, err := store.CreateRole(ctx, Role{Name: RoleNameViewer, Type: RoleRoot})
	require.NoError(t, err)
	require.NoError(t, svc.AddUserToRole(ctx, 5, role.ID))

	require.NoError(t, svc.RemoveUserFromRole(ctx, 5, role.ID))
	members, err := store.UsersForRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Empty(t, members)

	// Removing an assignment that is not there is a no-op.
	require.NoError(t, svc.RemoveUserFromRole(ctx, 5, role.ID))

	err = svc.RemoveUserFromRole(ctx, 5, 42)
	require.ErrorIs(t, err, ErrNotFound, "the role itself must exist")
}

// ============================================================================
// ROLE DATA
// ============================================================================

func TestGetRole(t *testing.T) {
	store := newMockStore()
	dir := newMockDirectory(
		UserRef{ID: 5, Name: "Ada", Email: "ada@beacon.local"},
		UserRef{ID: 6, Name: "Grace", Email: "grace@beacon.local"},
	)
	svc := newTestService(store, dir)
	ctx := context.Background()

	role, err := store.CreateRole(ctx, Role{Name: "custom", Type: RoleRoot})
	require.NoError(t, err)
	require.NoError(t, svc.AddPermissionToRole(ctx, role.ID, PermUpdateProject, "payments"))
	require.NoError(t, svc.AddPermissionToRole(ctx, role.ID, PermUpdateProject, "billing"))
	require.NoError(t, svc.AddPermissionToRole(ctx, role.ID, PermCreateProject, ""))
	require.NoError(t, svc.AddUserToRole(ctx, 5, role.ID))
	require.NoError(t, svc.AddUserToRole(ctx, 6, role.ID))

	data, err := svc.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, role.ID, data.Role.ID)
	assert.Len(t, data.Permissions, 2, "per-project grants of the same permission collapse to one entry")
	require.Len(t, data.Users, 2)
	assert.Equal(t, "Ada", data.Users[0].Name)
}

func TestGetRoleNotFound(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store, nil)

	_, err := svc.GetRole(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetRoleMemberLookupFailure(t *testing.T) {
	store := newMockStore()
	store.usersForRoleError = errors.New("timeout")
	svc := newTestService(store, nil)
	ctx := context.Background()

	role, err := store.CreateRole(ctx, Role{Name: "custom", Type: RoleRoot})
	require.NoError(t, err)

	_, err = svc.GetRole(ctx, role.ID)
	require.EqualError(t, err, "timeout")
}

func TestProjectRoleUsers(t *testing.T) {
	store := newMockStore()
	dir := newMockDirectory(
		UserRef{ID: 10, Name: "Owner"},
		UserRef{ID: 11, Name: "Contributor"},
	)
	svc := newTestService(store, dir)
	ctx := context.Background()

	require.NoError(t, svc.CreateDefaultProjectRoles(ctx, 10, "payments"))
	roles, err := store.RolesForProject(ctx, "payments")
	require.NoError(t, err)
	require.NoError(t, svc.AddUserToRole(ctx, 11, roles[1].ID))

	gotRoles, users, err := svc.ProjectRoleUsers(ctx, "payments")
	require.NoError(t, err)
	require.Len(t, gotRoles, 2)
	require.Len(t, users, 2)
	assert.Equal(t, roles[0].ID, users[0].RoleID)
	assert.Equal(t, "Owner", users[0].Name)
	assert.Equal(t, roles[1].ID, users[1].RoleID)
	assert.False(t, users[1].AddedAt.IsZero())
}
