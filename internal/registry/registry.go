package registry

import "sort"

// Registry is the composed, immutable lookup state shared read-only by all
// concurrent requests after startup composition completes.
type Registry struct {
	entities map[string]EntityConfig
	children map[string][]string
	roles    map[RoleSet]map[string]Role
	perms    map[string]Permission
}

// Entity resolves an entity by slug. Disabled entities still resolve so
// callers can distinguish "disabled" from "unknown".
func (r *Registry) Entity(slug string) (EntityConfig, bool) {
	e, ok := r.entities[slug]
	return e, ok
}

// MenuEntities lists enabled entities flagged for the dashboard menu,
// ordered by slug. Entities resolvable by slug but absent here remain
// reachable through the API.
func (r *Registry) MenuEntities() []EntityConfig {
	var out []EntityConfig
	for _, e := range r.entities {
		if e.Enabled && e.UI.DashboardMenu {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// ChildEntities returns the sub-resources declaring the given parent slug.
func (r *Registry) ChildEntities(parent string) []EntityConfig {
	slugs := r.children[parent]
	out := make([]EntityConfig, 0, len(slugs))
	for _, slug := range slugs {
		out = append(out, r.entities[slug])
	}
	return out
}

// Entities lists every composed entity ordered by slug.
func (r *Registry) Entities() []EntityConfig {
	out := make([]EntityConfig, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// Role resolves a role within a role set.
func (r *Registry) Role(set RoleSet, name string) (Role, bool) {
	byName, ok := r.roles[set]
	if !ok {
		return Role{}, false
	}
	role, ok := byName[name]
	return role, ok
}

// Roles lists the roles of a set ordered by descending rank, then name.
func (r *Registry) Roles(set RoleSet) []Role {
	var out []Role
	for _, role := range r.roles[set] {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Permission resolves a catalog entry by key.
func (r *Registry) Permission(key string) (Permission, bool) {
	p, ok := r.perms[key]
	return p, ok
}

// Permissions lists the full catalog ordered by key.
func (r *Registry) Permissions() []Permission {
	out := make([]Permission, 0, len(r.perms))
	for _, p := range r.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// HasPermission reports whether the named role satisfies the permission.
// An unknown role or unknown permission fails closed. A role qualifies via
// an explicit grant (or wildcard), via the permission's rank threshold, or
// via the permission's role allowlist.
func (r *Registry) HasPermission(set RoleSet, roleName, key string) bool {
	role, ok := r.Role(set, roleName)
	if !ok {
		return false
	}
	perm, ok := r.perms[key]
	if !ok {
		return false
	}
	for _, grant := range role.Grants {
		if grant == WildcardGrant || grant == key {
			return true
		}
	}
	if perm.MinRank > 0 && role.Rank >= perm.MinRank {
		return true
	}
	for _, allowed := range perm.AllowRoles {
		if allowed == roleName {
			return true
		}
	}
	return false
}

// CompareRank orders two roles by rank: -1 when a is lower, 0 when equal,
// 1 when a is higher.
func CompareRank(a, b Role) int {
	switch {
	case a.Rank < b.Rank:
		return -1
	case a.Rank > b.Rank:
		return 1
	default:
		return 0
	}
}

// CanManage reports whether role a may modify role b. A role only manages
// roles with strictly lower rank.
func CanManage(a, b Role) bool {
	return a.Rank > b.Rank
}
