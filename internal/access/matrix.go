package access

import "context"

// MatrixBuilder assembles the read-only "who can do what" view for
// presentation layers. It composes the service's read methods and keeps
// no state of its own: authorization data is re-resolved from the store
// on every call, never cached.
type MatrixBuilder struct {
	svc *Service
}

// NewMatrixBuilder constructs a MatrixBuilder.
func NewMatrixBuilder(svc *Service) *MatrixBuilder {
	return &MatrixBuilder{svc: svc}
}

// Build resolves the user's permission matrix. When projectID or
// environment is non-empty, the permission list is narrowed with the
// same filter the resolver applies (unset, exact match, or wildcard);
// project roles are narrowed to the requested project.
func (b *MatrixBuilder) Build(ctx context.Context, userID int64, projectID, environment string) (Matrix, error) {
	perms, err := b.svc.PermissionsForUser(ctx, userID)
	if err != nil {
		return Matrix{}, err
	}
	roles, err := b.svc.RolesForUser(ctx, userID)
	if err != nil {
		return Matrix{}, err
	}

	m := Matrix{Permissions: make([]ResolvedPermission, 0, len(perms))}
	for _, p := range perms {
		if projectID != "" && !projectMatches(p.Project, projectID) {
			continue
		}
		if environment != "" && p.Environment != "" && p.Environment != environment && p.Environment != AllEnvs {
			continue
		}
		m.Permissions = append(m.Permissions, p)
	}
	for _, r := range roles {
		if r.Type == RoleRoot {
			root := r
			m.RootRole = &root
			continue
		}
		if projectID == "" || r.ProjectID == projectID {
			m.ProjectRoles = append(m.ProjectRoles, r)
		}
	}
	return m, nil
}
