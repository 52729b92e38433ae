package access

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Grants provisioned for the default project roles.
var (
	projectAdminPermissions = []string{
		PermUpdateProject,
		PermDeleteProject,
		PermCreateFeature,
		PermUpdateFeature,
		PermDeleteFeature,
	}
	projectRegularPermissions = []string{
		PermCreateFeature,
		PermUpdateFeature,
		PermDeleteFeature,
	}
)

// Service is the access decision engine and role lifecycle manager. It
// holds no in-process state beyond its collaborators and is safe for
// concurrent use as long as the store is.
type Service struct {
	store   Store
	users   UserDirectory
	catalog *Catalog
	logger  *slog.Logger
}

// NewService constructs a Service.
func NewService(store Store, users UserDirectory, catalog *Catalog, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, users: users, catalog: catalog, logger: logger}
}

// Catalog returns the permission catalog the service was built with.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// HasPermission reports whether the user may perform the named
// permission, optionally scoped to a project. Unknown permissions and
// unknown users resolve to false. A grant named ADMIN satisfies any
// check. Store failures propagate to the caller.
func (s *Service) HasPermission(ctx context.Context, userID int64, permission, projectID string) (bool, error) {
	s.logger.Debug("checking permission",
		slog.String("permission", permission),
		slog.Int64("user_id", userID),
		slog.String("project_id", projectID))

	perms, err := s.store.ResolvedPermissionsForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if !projectMatches(p.Project, projectID) {
			continue
		}
		if p.Permission == permission || p.Permission == PermAdmin {
			return true, nil
		}
	}
	return false, nil
}

// HasEnvironmentPermission is the environment-aware variant of
// HasPermission: the environment filter mirrors the project one.
func (s *Service) HasEnvironmentPermission(ctx context.Context, userID int64, permission, projectID, environment string) (bool, error) {
	perms, err := s.store.ResolvedPermissionsForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if !projectMatches(p.Project, projectID) {
			continue
		}
		if p.Environment != "" && p.Environment != environment && p.Environment != AllEnvs {
			continue
		}
		if p.Permission == permission || p.Permission == PermAdmin {
			return true, nil
		}
	}
	return false, nil
}

// PermissionsForUser returns the user's full resolved permission set.
func (s *Service) PermissionsForUser(ctx context.Context, userID int64) ([]ResolvedPermission, error) {
	return s.store.ResolvedPermissionsForUser(ctx, userID)
}

// CreateDefaultProjectRoles provisions the Admin and Regular roles for
// a freshly created project and assigns the owner to Admin, all within
// one transaction.
func (s *Service) CreateDefaultProjectRoles(ctx context.Context, ownerID int64, projectID string) error {
	if projectID == "" {
		return fmt.Errorf("%w: project id cannot be empty", ErrInvalidArgument)
	}
	return s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		admin, err := tx.CreateRole(ctx, Role{
			Name:        ProjectRoleAdmin,
			Type:        RoleProject,
			ProjectID:   projectID,
			Description: "Admin role for project = " + projectID,
		})
		if err != nil {
			return err
		}
		for _, perm := range projectAdminPermissions {
			if err := tx.InsertGrant(ctx, Grant{RoleID: admin.ID, Permission: perm}); err != nil {
				return err
			}
		}

		regular, err := tx.CreateRole(ctx, Role{
			Name:        ProjectRoleRegular,
			Type:        RoleProject,
			ProjectID:   projectID,
			Description: "Contributor role for project = " + projectID,
		})
		if err != nil {
			return err
		}
		for _, perm := range projectRegularPermissions {
			if err := tx.InsertGrant(ctx, Grant{RoleID: regular.ID, Permission: perm}); err != nil {
				return err
			}
		}

		if ownerID != 0 {
			s.logger.Info("assigning project owner",
				slog.Int64("owner_id", ownerID),
				slog.String("project_id", projectID),
				slog.Int64("role_id", int64(admin.ID)))
			if err := tx.InsertAssignment(ctx, Assignment{UserID: ownerID, RoleID: admin.ID}); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveDefaultProjectRoles deletes every project-type role for the
// project, cascading grants and assignments. Removing roles for a
// project that has none is a no-op.
func (s *Service) RemoveDefaultProjectRoles(ctx context.Context, projectID string) error {
	s.logger.Info("removing project roles", slog.String("project_id", projectID))
	return s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		return tx.DeleteRolesForProject(ctx, projectID)
	})
}

// SetUserRootRole atomically replaces the user's root role assignments
// with a single assignment to roleID. A mid-sequence failure leaves the
// prior assignments intact and surfaces the error.
func (s *Service) SetUserRootRole(ctx context.Context, userID int64, roleID RoleID) error {
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.Type != RoleRoot {
		return fmt.Errorf("%w: role %d is not a root role", ErrNotFound, roleID)
	}
	return s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.DeleteAssignmentsOfType(ctx, userID, RoleRoot); err != nil {
			return err
		}
		return tx.InsertAssignment(ctx, Assignment{UserID: userID, RoleID: roleID})
	})
}

// RootRoleByName resolves a seeded root role (Admin, Editor, Viewer) by
// its name.
func (s *Service) RootRoleByName(ctx context.Context, name string) (Role, error) {
	return s.store.RootRoleByName(ctx, name)
}

// RootRoles lists the seeded root roles.
func (s *Service) RootRoles(ctx context.Context) ([]Role, error) {
	return s.store.RootRoles(ctx)
}

// RolesForUser lists every role the user is assigned to.
func (s *Service) RolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	return s.store.RolesForUser(ctx, userID)
}

// AddPermissionToRole grants a catalog permission to a role. Project-
// scoped permissions require a project id (the wildcard AllProjects is
// valid); root-scoped permissions ignore it. Duplicate grants are
// no-ops.
func (s *Service) AddPermissionToRole(ctx context.Context, roleID RoleID, permission, projectID string) error {
	grant, err := s.grantFor(ctx, roleID, permission, projectID)
	if err != nil {
		return err
	}
	return s.store.InsertGrant(ctx, grant)
}

// RemovePermissionFromRole is the mirror of AddPermissionToRole;
// removing a grant that does not exist is a no-op.
func (s *Service) RemovePermissionFromRole(ctx context.Context, roleID RoleID, permission, projectID string) error {
	grant, err := s.grantFor(ctx, roleID, permission, projectID)
	if err != nil {
		return err
	}
	return s.store.DeleteGrant(ctx, grant)
}

// AddEnvironmentPermissionToRole grants an environment-scoped
// permission, recording the environment on the grant itself.
func (s *Service) AddEnvironmentPermissionToRole(ctx context.Context, roleID RoleID, permission, projectID, environment string) error {
	perm, ok := s.catalog.Get(permission)
	if !ok {
		return fmt.Errorf("%w: unknown permission %s", ErrNotFound, permission)
	}
	if perm.Scope != ScopeEnvironment {
		return fmt.Errorf("%w: permission %s is not environment scoped", ErrInvalidArgument, permission)
	}
	if environment == "" {
		return fmt.Errorf("%w: environment cannot be empty for permission=%s", ErrInvalidArgument, permission)
	}
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return err
	}
	return s.store.InsertGrant(ctx, Grant{
		RoleID:      roleID,
		Permission:  permission,
		Project:     projectID,
		Environment: environment,
	})
}

// AddUserToRole assigns the user to a role. Re-adding a held role, or
// adding a second project-type role for the same project, is a
// conflict. The duplicate scan and the insert share a transaction so
// two concurrent calls cannot both pass the check.
func (s *Service) AddUserToRole(ctx context.Context, userID int64, roleID RoleID) error {
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	return s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		existing, err := tx.RolesForUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, r := range existing {
			if r.ID == roleID {
				return fmt.Errorf("%w: user %d already holds role %d", ErrConflict, userID, roleID)
			}
			if role.Type == RoleProject && r.Type == RoleProject && r.ProjectID == role.ProjectID {
				return fmt.Errorf("%w: user %d already holds a role for project %s", ErrConflict, userID, role.ProjectID)
			}
		}
		return tx.InsertAssignment(ctx, Assignment{UserID: userID, RoleID: roleID})
	})
}

// RemoveUserFromRole removes the assignment. The role must exist;
// removing an assignment that does not is a no-op.
func (s *Service) RemoveUserFromRole(ctx context.Context, userID int64, roleID RoleID) error {
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return err
	}
	return s.store.DeleteAssignment(ctx, Assignment{UserID: userID, RoleID: roleID})
}

// GetRole returns the role together with its permissions and assigned
// users. The three store reads run concurrently.
func (s *Service) GetRole(ctx context.Context, roleID RoleID) (RoleData, error) {
	var (
		role   Role
		grants []Grant
		users  []UserRef
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		role, err = s.store.GetRole(gctx, roleID)
		return err
	})
	g.Go(func() error {
		var err error
		grants, err = s.store.GrantsForRole(gctx, roleID)
		return err
	})
	g.Go(func() error {
		members, err := s.store.UsersForRole(gctx, roleID)
		if err != nil {
			return err
		}
		users, err = s.resolveUsers(gctx, members)
		return err
	})
	if err := g.Wait(); err != nil {
		return RoleData{}, err
	}

	perms := make([]Permission, 0, len(grants))
	seen := make(map[string]struct{}, len(grants))
	for _, grant := range grants {
		if _, ok := seen[grant.Permission]; ok {
			continue
		}
		seen[grant.Permission] = struct{}{}
		if p, ok := s.catalog.Get(grant.Permission); ok {
			perms = append(perms, p)
		}
	}
	if users == nil {
		users = []UserRef{}
	}
	return RoleData{Role: role, Permissions: perms, Users: users}, nil
}

// ProjectRoleUsers resolves, for every role scoped to the project, the
// users holding it, each tagged with the originating role id.
func (s *Service) ProjectRoleUsers(ctx context.Context, projectID string) ([]Role, []UserWithRole, error) {
	roles, err := s.store.RolesForProject(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	var tagged []UserWithRole
	for _, role := range roles {
		members, err := s.store.UsersForRole(ctx, role.ID)
		if err != nil {
			return nil, nil, err
		}
		refs, err := s.resolveUsers(ctx, members)
		if err != nil {
			return nil, nil, err
		}
		added := make(map[int64]RoleMembership, len(members))
		for _, m := range members {
			added[m.UserID] = m
		}
		for _, ref := range refs {
			tagged = append(tagged, UserWithRole{
				UserRef: ref,
				RoleID:  role.ID,
				AddedAt: added[ref.ID].AddedAt,
			})
		}
	}
	return roles, tagged, nil
}

func (s *Service) resolveUsers(ctx context.Context, members []RoleMembership) ([]UserRef, error) {
	if len(members) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(members))
	for i, m := range members {
		ids[i] = m.UserID
	}
	return s.users.ByIDs(ctx, ids)
}

func (s *Service) grantFor(ctx context.Context, roleID RoleID, permission, projectID string) (Grant, error) {
	perm, ok := s.catalog.Get(permission)
	if !ok {
		return Grant{}, fmt.Errorf("%w: unknown permission %s", ErrNotFound, permission)
	}
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return Grant{}, err
	}
	grant := Grant{RoleID: roleID, Permission: permission}
	switch perm.Scope {
	case ScopeProject:
		if projectID == "" {
			return Grant{}, fmt.Errorf("%w: project id cannot be empty for permission=%s", ErrInvalidArgument, permission)
		}
		grant.Project = projectID
	case ScopeEnvironment:
		return Grant{}, fmt.Errorf("%w: permission %s requires an environment, use AddEnvironmentPermissionToRole", ErrInvalidArgument, permission)
	}
	return grant, nil
}

func projectMatches(grantProject, requested string) bool {
	return grantProject == "" || grantProject == requested || grantProject == AllProjects
}
