package access

import "time"

// RoleID identifies a role. Lookups by name go through RootRoleByName
// instead of overloading the identifier.
type RoleID int64

// Scope classifies where a permission applies.
type Scope string

const (
	ScopeRoot        Scope = "root"
	ScopeProject     Scope = "project"
	ScopeEnvironment Scope = "environment"
)

// RoleType separates instance-wide roles from per-project ones.
type RoleType string

const (
	RoleRoot    RoleType = "root"
	RoleProject RoleType = "project"
)

const (
	// PermAdmin is the reserved super-permission: holding it satisfies
	// every permission check.
	PermAdmin = "ADMIN"

	// AllProjects is the wildcard project sentinel on a grant.
	AllProjects = "*"

	// AllEnvs is the wildcard environment sentinel on a grant.
	AllEnvs = "*"
)

// Built-in root role names, seeded once.
const (
	RoleNameAdmin  = "Admin"
	RoleNameEditor = "Editor"
	RoleNameViewer = "Viewer"
)

// Default project role names, provisioned per project.
const (
	ProjectRoleAdmin   = "Admin"
	ProjectRoleRegular = "Regular"
)

// Permission is an immutable catalog entry.
type Permission struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Scope       Scope  `json:"scope"`
}

// Role groups permissions. ProjectID is set iff Type is RoleProject.
type Role struct {
	ID          RoleID   `json:"id"`
	Name        string   `json:"name"`
	Type        RoleType `json:"type"`
	ProjectID   string   `json:"projectId,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Grant associates a permission with a role. Project is only set for
// explicit per-project (or wildcard) grants on root and custom roles;
// project-type roles scope their grants through the role itself.
// Environment is only set for environment-scoped permissions.
type Grant struct {
	RoleID      RoleID
	Permission  string
	Project     string
	Environment string
}

// Assignment ties a user to a role.
type Assignment struct {
	UserID int64
	RoleID RoleID
}

// ResolvedPermission is the flattened result of joining a user's
// assignments through grants to the catalog. Project is empty for
// root-scoped permissions; Environment is set only for
// environment-scoped ones.
type ResolvedPermission struct {
	Permission  string `json:"permission"`
	Project     string `json:"project,omitempty"`
	Environment string `json:"environment,omitempty"`
}

// UserRef is the display projection of a user, resolved through the
// user directory.
type UserRef struct {
	ID       int64  `json:"id"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// UserWithRole tags a user with the role that gave them project access.
type UserWithRole struct {
	UserRef
	RoleID  RoleID    `json:"roleId"`
	AddedAt time.Time `json:"addedAt,omitempty"`
}

// RoleData is the composite view returned by GetRole.
type RoleData struct {
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
	Users       []UserRef    `json:"users"`
}

// Matrix is the read-only "who can do what" view assembled by the
// MatrixBuilder.
type Matrix struct {
	Permissions  []ResolvedPermission `json:"permissions"`
	RootRole     *Role                `json:"rootRole,omitempty"`
	ProjectRoles []Role               `json:"projectRoles,omitempty"`
}
