package access

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/beaconhq/beacon/internal/platform/db"
)

const uniqueViolation = "23505"

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// repository is the PostgreSQL-backed Store.
type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a Store backed by the provided pool.
func NewRepository(pool *pgxpool.Pool) Store {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) CreateRole(ctx context.Context, role Role) (Role, error) {
	var projectID *string
	if role.Type == RoleProject {
		projectID = &role.ProjectID
	}
	row := r.db.QueryRow(ctx, `
		INSERT INTO roles (name, description, role_type, project_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		role.Name, role.Description, role.Type, projectID)
	if err := row.Scan(&role.ID); err != nil {
		if isUniqueViolation(err) {
			return Role{}, ErrConflict
		}
		return Role{}, err
	}
	return role, nil
}

func (r *repository) GetRole(ctx context.Context, id RoleID) (Role, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, description, role_type, COALESCE(project_id, '')
		FROM roles WHERE id = $1`, id)
	return scanRole(row)
}

func (r *repository) RootRoleByName(ctx context.Context, name string) (Role, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, description, role_type, COALESCE(project_id, '')
		FROM roles WHERE role_type = $1 AND name = $2`, RoleRoot, name)
	return scanRole(row)
}

func (r *repository) RootRoles(ctx context.Context) ([]Role, error) {
	return r.queryRoles(ctx, `
		SELECT id, name, description, role_type, COALESCE(project_id, '')
		FROM roles WHERE role_type = $1 ORDER BY id`, RoleRoot)
}

func (r *repository) RolesForProject(ctx context.Context, projectID string) ([]Role, error) {
	return r.queryRoles(ctx, `
		SELECT id, name, description, role_type, COALESCE(project_id, '')
		FROM roles WHERE role_type = $1 AND project_id = $2 ORDER BY id`,
		RoleProject, projectID)
}

func (r *repository) RolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	return r.queryRoles(ctx, `
		SELECT r.id, r.name, r.description, r.role_type, COALESCE(r.project_id, '')
		FROM roles r
		JOIN role_users ru ON ru.role_id = r.id
		WHERE ru.user_id = $1 ORDER BY r.id`, userID)
}

func (r *repository) DeleteRolesForProject(ctx context.Context, projectID string) error {
	// Grants and assignments cascade via foreign keys.
	_, err := r.db.Exec(ctx, `
		DELETE FROM roles WHERE role_type = $1 AND project_id = $2`,
		RoleProject, projectID)
	return err
}

func (r *repository) InsertGrant(ctx context.Context, grant Grant) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO role_permissions (role_id, permission, project, environment)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''))
		ON CONFLICT DO NOTHING`,
		grant.RoleID, grant.Permission, grant.Project, grant.Environment)
	return err
}

func (r *repository) DeleteGrant(ctx context.Context, grant Grant) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM role_permissions
		WHERE role_id = $1 AND permission = $2
		  AND COALESCE(project, '') = $3 AND COALESCE(environment, '') = $4`,
		grant.RoleID, grant.Permission, grant.Project, grant.Environment)
	return err
}

func (r *repository) GrantsForRole(ctx context.Context, id RoleID) ([]Grant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT role_id, permission, COALESCE(project, ''), COALESCE(environment, '')
		FROM role_permissions WHERE role_id = $1 ORDER BY permission`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.RoleID, &g.Permission, &g.Project, &g.Environment); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (r *repository) InsertAssignment(ctx context.Context, a Assignment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO role_users (user_id, role_id) VALUES ($1, $2)`,
		a.UserID, a.RoleID)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r *repository) DeleteAssignment(ctx context.Context, a Assignment) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM role_users WHERE user_id = $1 AND role_id = $2`,
		a.UserID, a.RoleID)
	return err
}

func (r *repository) DeleteAssignmentsOfType(ctx context.Context, userID int64, roleType RoleType) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM role_users ru
		USING roles r
		WHERE ru.role_id = r.id AND ru.user_id = $1 AND r.role_type = $2`,
		userID, roleType)
	return err
}

func (r *repository) UsersForRole(ctx context.Context, id RoleID) ([]RoleMembership, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id, created_at FROM role_users WHERE role_id = $1 ORDER BY created_at`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []RoleMembership
	for rows.Next() {
		var m RoleMembership
		if err := rows.Scan(&m.UserID, &m.AddedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *repository) ResolvedPermissionsForUser(ctx context.Context, userID int64) ([]ResolvedPermission, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT rp.permission,
		       COALESCE(rp.project, CASE WHEN r.role_type = 'project' THEN r.project_id END, ''),
		       COALESCE(rp.environment, '')
		FROM role_users ru
		JOIN roles r ON r.id = ru.role_id
		JOIN role_permissions rp ON rp.role_id = ru.role_id
		JOIN permissions p ON p.name = rp.permission
		WHERE ru.user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []ResolvedPermission
	for rows.Next() {
		var p ResolvedPermission
		if err := rows.Scan(&p.Permission, &p.Project, &p.Environment); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// EnsureCatalog upserts the permission catalog so grants can reference
// entries by name. Called once at startup.
func EnsureCatalog(ctx context.Context, pool *pgxpool.Pool, catalog *Catalog) error {
	for _, p := range catalog.Permissions() {
		_, err := pool.Exec(ctx, `
			INSERT INTO permissions (name, display_name, scope_type)
			VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE SET display_name = $2, scope_type = $3`,
			p.Name, p.DisplayName, p.Scope)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) queryRoles(ctx context.Context, sql string, args ...interface{}) ([]Role, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.Type, &role.ProjectID); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.Type, &role.ProjectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
