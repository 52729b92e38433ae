package access

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Permission names referenced by the lifecycle manager and seeding.
const (
	PermCreateProject = "CREATE_PROJECT"
	PermUpdateProject = "UPDATE_PROJECT"
	PermDeleteProject = "DELETE_PROJECT"
	PermCreateFeature = "CREATE_FEATURE"
	PermUpdateFeature = "UPDATE_FEATURE"
	PermDeleteFeature = "DELETE_FEATURE"
)

// Catalog is the immutable permission table, loaded once at startup.
// Scope is an explicit field on every entry so that adding a permission
// cannot drift out of sync with its classification.
type Catalog struct {
	entries []Permission
	byName  map[string]Permission
}

// DefaultCatalog returns the built-in permission set.
func DefaultCatalog() *Catalog {
	return NewCatalog([]Permission{
		{Name: PermAdmin, DisplayName: "Admin", Scope: ScopeRoot},
		{Name: PermCreateProject, Scope: ScopeRoot},
		{Name: "UPDATE_APPLICATION", Scope: ScopeRoot},
		{Name: "CREATE_CONTEXT_FIELD", Scope: ScopeRoot},
		{Name: "UPDATE_CONTEXT_FIELD", Scope: ScopeRoot},
		{Name: "DELETE_CONTEXT_FIELD", Scope: ScopeRoot},
		{Name: "CREATE_STRATEGY", Scope: ScopeRoot},
		{Name: "UPDATE_STRATEGY", Scope: ScopeRoot},
		{Name: "DELETE_STRATEGY", Scope: ScopeRoot},
		{Name: "CREATE_ADDON", Scope: ScopeRoot},
		{Name: "UPDATE_ADDON", Scope: ScopeRoot},
		{Name: "DELETE_ADDON", Scope: ScopeRoot},
		{Name: "UPDATE_TAG_TYPE", Scope: ScopeRoot},
		{Name: "DELETE_TAG_TYPE", Scope: ScopeRoot},
		{Name: PermUpdateProject, Scope: ScopeProject},
		{Name: PermDeleteProject, Scope: ScopeProject},
		{Name: PermCreateFeature, Scope: ScopeProject},
		{Name: PermUpdateFeature, Scope: ScopeProject},
		{Name: PermDeleteFeature, Scope: ScopeProject},
		{Name: "MOVE_FEATURE", Scope: ScopeProject},
		{Name: "CREATE_FEATURE_STRATEGY", Scope: ScopeEnvironment},
		{Name: "UPDATE_FEATURE_STRATEGY", Scope: ScopeEnvironment},
		{Name: "DELETE_FEATURE_STRATEGY", Scope: ScopeEnvironment},
		{Name: "UPDATE_FEATURE_ENVIRONMENT", Scope: ScopeEnvironment},
	})
}

// NewCatalog builds a catalog from explicit entries, deriving display
// names for entries that omit one.
func NewCatalog(entries []Permission) *Catalog {
	c := &Catalog{
		entries: make([]Permission, 0, len(entries)),
		byName:  make(map[string]Permission, len(entries)),
	}
	for _, e := range entries {
		if e.DisplayName == "" {
			e.DisplayName = deriveDisplayName(e.Name)
		}
		if _, ok := c.byName[e.Name]; ok {
			continue
		}
		c.entries = append(c.entries, e)
		c.byName[e.Name] = e
	}
	return c
}

// Get returns the catalog entry for name.
func (c *Catalog) Get(name string) (Permission, bool) {
	p, ok := c.byName[name]
	return p, ok
}

// Permissions returns all entries in catalog order.
func (c *Catalog) Permissions() []Permission {
	out := make([]Permission, len(c.entries))
	copy(out, c.entries)
	return out
}

// WithScope returns the entries whose scope matches.
func (c *Catalog) WithScope(scope Scope) []Permission {
	var out []Permission
	for _, e := range c.entries {
		if e.Scope == scope {
			out = append(out, e)
		}
	}
	return out
}

// deriveDisplayName turns UPDATE_PROJECT into "Update project".
func deriveDisplayName(name string) string {
	words := strings.Split(strings.ToLower(name), "_")
	if len(words) == 0 || words[0] == "" {
		return name
	}
	words[0] = cases.Title(language.English, cases.NoLower).String(words[0])
	return strings.Join(words, " ")
}
