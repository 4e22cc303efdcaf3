package registry

import (
	"errors"
	"fmt"
	"sort"
)

// Configuration errors detected during composition. The process must not
// start with an inconsistent registry, so Compose failures are fatal.
var (
	ErrDuplicateSlug     = errors.New("registry: duplicate entity slug")
	ErrDuplicateRole     = errors.New("registry: duplicate role")
	ErrDuplicatePerm     = errors.New("registry: duplicate permission")
	ErrUnknownPermission = errors.New("registry: unknown permission referenced")
	ErrUnknownRole       = errors.New("registry: unknown role referenced")
	ErrUnknownParent     = errors.New("registry: unknown parent entity")
	ErrDanglingExtension = errors.New("registry: extension has no base entity")
)

type entityEntry struct {
	config EntityConfig
	tier   Tier
	source string
}

type roleEntry struct {
	role   Role
	tier   Tier
	source string
}

type permEntry struct {
	perm   Permission
	tier   Tier
	source string
}

// Compose merges registry sources into an immutable Registry. Precedence is
// core < theme < plugins: a higher-tier source with a colliding slug replaces
// the earlier entry in full unless it opts into field-level extension. Two
// sources at the same tier defining the same slug is a fatal configuration
// error. Composition is deterministic: the same inputs always produce the
// same registry.
func Compose(core Source, theme *Source, plugins ...Source) (*Registry, error) {
	core.Tier = TierCore
	sources := []Source{core}
	if theme != nil {
		t := *theme
		t.Tier = TierTheme
		sources = append(sources, t)
	}
	for _, p := range plugins {
		p.Tier = TierPlugin
		sources = append(sources, p)
	}

	entities := make(map[string]entityEntry)
	roles := make(map[RoleSet]map[string]roleEntry)
	perms := make(map[string]permEntry)

	for _, src := range sources {
		if err := mergeEntities(entities, src); err != nil {
			return nil, err
		}
		if err := mergeRoles(roles, src); err != nil {
			return nil, err
		}
		if err := mergePermissions(perms, src); err != nil {
			return nil, err
		}
	}

	reg := &Registry{
		entities: make(map[string]EntityConfig, len(entities)),
		children: make(map[string][]string),
		roles:    make(map[RoleSet]map[string]Role, len(roles)),
		perms:    make(map[string]Permission, len(perms)),
	}
	for slug, e := range entities {
		reg.entities[slug] = e.config
	}
	for set, byName := range roles {
		reg.roles[set] = make(map[string]Role, len(byName))
		for name, r := range byName {
			reg.roles[set][name] = r.role
		}
	}
	for key, p := range perms {
		reg.perms[key] = p.perm
	}

	derivePermissions(reg)

	if err := validate(reg); err != nil {
		return nil, err
	}

	for slug, e := range reg.entities {
		if e.Parent != "" {
			reg.children[e.Parent] = append(reg.children[e.Parent], slug)
		}
	}
	for parent := range reg.children {
		sort.Strings(reg.children[parent])
	}

	return reg, nil
}

func mergeEntities(into map[string]entityEntry, src Source) error {
	for _, e := range src.Entities {
		existing, ok := into[e.Slug]
		if ok && existing.tier == src.Tier {
			return fmt.Errorf("%w: %q defined by both %s source %q and %q",
				ErrDuplicateSlug, e.Slug, src.Tier, existing.source, src.Name)
		}
		if e.Extends {
			if !ok {
				return fmt.Errorf("%w: %q in source %q", ErrDanglingExtension, e.Slug, src.Name)
			}
			into[e.Slug] = entityEntry{config: extendEntity(existing.config, e), tier: src.Tier, source: src.Name}
			continue
		}
		into[e.Slug] = entityEntry{config: e, tier: src.Tier, source: src.Name}
	}
	return nil
}

// extendEntity applies an opted-in field-level extension on top of a base
// definition. Names override when set, boolean capabilities only widen, and
// fields/actions merge by name with the extension winning.
func extendEntity(base, ext EntityConfig) EntityConfig {
	out := base
	out.Enabled = ext.Enabled
	if ext.DisplayName != "" {
		out.DisplayName = ext.DisplayName
	}
	if ext.PluralName != "" {
		out.PluralName = ext.PluralName
	}
	if ext.Parent != "" {
		out.Parent = ext.Parent
	}
	out.Access = EntityAccess{
		Public:   base.Access.Public || ext.Access.Public,
		API:      base.Access.API || ext.Access.API,
		Metadata: base.Access.Metadata || ext.Access.Metadata,
		Shared:   base.Access.Shared || ext.Access.Shared,
	}
	out.UI = EntityUI{
		DashboardMenu: base.UI.DashboardMenu || ext.UI.DashboardMenu,
		Topbar:        base.UI.Topbar || ext.UI.Topbar,
	}
	out.Features = EntityFeatures{
		Searchable:     base.Features.Searchable || ext.Features.Searchable,
		Sortable:       base.Features.Sortable || ext.Features.Sortable,
		Filterable:     base.Features.Filterable || ext.Features.Filterable,
		BulkOperations: base.Features.BulkOperations || ext.Features.BulkOperations,
	}
	out.BuilderMode = base.BuilderMode || ext.BuilderMode
	out.Fields = mergeFields(base.Fields, ext.Fields)
	out.Actions = mergeActions(base.Actions, ext.Actions)
	out.Extends = false
	return out
}

func mergeFields(base, ext []Field) []Field {
	out := make([]Field, len(base))
	copy(out, base)
	for _, f := range ext {
		replaced := false
		for i := range out {
			if out[i].Name == f.Name {
				out[i] = f
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, f)
		}
	}
	return out
}

func mergeActions(base, ext []CustomAction) []CustomAction {
	out := make([]CustomAction, len(base))
	copy(out, base)
	for _, a := range ext {
		replaced := false
		for i := range out {
			if out[i].Name == a.Name {
				out[i] = a
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, a)
		}
	}
	return out
}

func mergeRoles(into map[RoleSet]map[string]roleEntry, src Source) error {
	for _, r := range src.Roles {
		byName, ok := into[r.Set]
		if !ok {
			byName = make(map[string]roleEntry)
			into[r.Set] = byName
		}
		if existing, ok := byName[r.Name]; ok && existing.tier == src.Tier {
			return fmt.Errorf("%w: %s role %q defined by both %q and %q",
				ErrDuplicateRole, r.Set, r.Name, existing.source, src.Name)
		}
		byName[r.Name] = roleEntry{role: r, tier: src.Tier, source: src.Name}
	}
	return nil
}

func mergePermissions(into map[string]permEntry, src Source) error {
	for _, p := range src.Permissions {
		if existing, ok := into[p.Key]; ok && existing.tier == src.Tier {
			return fmt.Errorf("%w: %q defined by both %q and %q",
				ErrDuplicatePerm, p.Key, existing.source, src.Name)
		}
		into[p.Key] = permEntry{perm: p, tier: src.Tier, source: src.Name}
	}
	return nil
}

// derivePermissions fills the catalog with CRUD permissions for every entity
// plus one permission per declared custom action. Explicit catalog entries
// always win over derived ones.
func derivePermissions(reg *Registry) {
	for slug, e := range reg.entities {
		for _, action := range CRUDActions {
			key := slug + "." + action
			if _, ok := reg.perms[key]; ok {
				continue
			}
			reg.perms[key] = Permission{
				Key:      key,
				Label:    crudLabel(action, e),
				Category: slug,
				Danger:   action == "delete",
			}
		}
		for _, a := range e.Actions {
			key := slug + "." + a.Name
			if _, ok := reg.perms[key]; ok {
				continue
			}
			reg.perms[key] = Permission{
				Key:             key,
				Label:           a.Label,
				Category:        slug,
				Danger:          a.Danger,
				AllowRoles:      a.AllowRoles,
				RequiresFeature: a.RequiresFeature,
				ConsumesLimit:   a.ConsumesLimit,
			}
		}
	}
}

func validate(reg *Registry) error {
	for set, byName := range reg.roles {
		for name, r := range byName {
			for _, grant := range r.Grants {
				if grant == WildcardGrant {
					continue
				}
				if _, ok := reg.perms[grant]; !ok {
					return fmt.Errorf("%w: %q granted to %s role %q", ErrUnknownPermission, grant, set, name)
				}
			}
		}
	}
	teamRoles := reg.roles[RoleSetTeam]
	for key, p := range reg.perms {
		for _, roleName := range p.AllowRoles {
			if _, ok := teamRoles[roleName]; !ok {
				return fmt.Errorf("%w: %q allowlisted on permission %q", ErrUnknownRole, roleName, key)
			}
		}
	}
	for slug, e := range reg.entities {
		if e.Parent == "" {
			continue
		}
		if _, ok := reg.entities[e.Parent]; !ok {
			return fmt.Errorf("%w: %q referenced by %q", ErrUnknownParent, e.Parent, slug)
		}
	}
	return nil
}
