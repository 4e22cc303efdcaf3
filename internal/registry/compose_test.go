package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimalCore() Source {
	return Source{
		Name: "core",
		Roles: []Role{
			{Name: "owner", Set: RoleSetTeam, Rank: 100, Grants: []string{WildcardGrant}},
			{Name: "viewer", Set: RoleSetTeam, Rank: 10, Grants: []string{"tasks.list", "tasks.read"}},
		},
		Entities: []EntityConfig{
			{Slug: "tasks", Enabled: false, DisplayName: "Task", PluralName: "Tasks",
				Fields: []Field{{Name: "title", Kind: "text"}}},
		},
	}
}

func TestComposeThemeOverridesCoreEntityInFull(t *testing.T) {
	theme := Source{
		Name: "aurora",
		Entities: []EntityConfig{
			{Slug: "tasks", Enabled: true, DisplayName: "Task", PluralName: "Tasks",
				UI: EntityUI{DashboardMenu: true},
				Fields: []Field{
					{Name: "title", Kind: "text"},
					{Name: "priority", Kind: "select"},
				}},
		},
	}

	reg, err := Compose(minimalCore(), &theme)
	require.NoError(t, err)

	e, ok := reg.Entity("tasks")
	require.True(t, ok)
	assert.True(t, e.Enabled, "theme definition wins over the disabled core one")
	require.Len(t, e.Fields, 2)
	assert.Equal(t, "priority", e.Fields[1].Name)
}

func TestComposeExtensionMergesFields(t *testing.T) {
	theme := Source{
		Name: "aurora",
		Entities: []EntityConfig{
			{Slug: "tasks", Enabled: true, Extends: true,
				Fields: []Field{
					{Name: "title", Kind: "text", Required: true},
					{Name: "priority", Kind: "select"},
				}},
		},
	}

	reg, err := Compose(minimalCore(), &theme)
	require.NoError(t, err)

	e, _ := reg.Entity("tasks")
	assert.True(t, e.Enabled)
	assert.Equal(t, "Task", e.DisplayName, "extension keeps base names it does not set")
	require.Len(t, e.Fields, 2)
	assert.True(t, e.Fields[0].Required, "same-named field replaced by extension")
	assert.False(t, e.Extends, "composed config is a plain definition")
}

func TestComposeExtensionWithoutBaseFails(t *testing.T) {
	theme := Source{
		Name:     "aurora",
		Entities: []EntityConfig{{Slug: "widgets", Enabled: true, Extends: true}},
	}

	_, err := Compose(minimalCore(), &theme)
	require.ErrorIs(t, err, ErrDanglingExtension)
}

func TestComposeDuplicateSlugSameTierFails(t *testing.T) {
	pluginA := Source{Name: "crm", Entities: []EntityConfig{{Slug: "contacts", Enabled: true}}}
	pluginB := Source{Name: "newsletter", Entities: []EntityConfig{{Slug: "contacts", Enabled: true}}}

	_, err := Compose(minimalCore(), nil, pluginA, pluginB)
	require.ErrorIs(t, err, ErrDuplicateSlug)
	assert.Contains(t, err.Error(), "contacts")
}

func TestComposePluginOverridesTheme(t *testing.T) {
	theme := Source{
		Name:     "aurora",
		Entities: []EntityConfig{{Slug: "tasks", Enabled: true, DisplayName: "Task"}},
	}
	plugin := Source{
		Name:     "kanban",
		Entities: []EntityConfig{{Slug: "tasks", Enabled: true, DisplayName: "Card"}},
	}

	reg, err := Compose(minimalCore(), &theme, plugin)
	require.NoError(t, err)

	e, _ := reg.Entity("tasks")
	assert.Equal(t, "Card", e.DisplayName)
}

func TestComposeUnknownGrantFails(t *testing.T) {
	core := minimalCore()
	core.Roles = append(core.Roles, Role{Name: "ghost", Set: RoleSetTeam, Rank: 5, Grants: []string{"no.such"}})

	_, err := Compose(core, nil)
	require.ErrorIs(t, err, ErrUnknownPermission)
}

func TestComposeUnknownAllowlistRoleFails(t *testing.T) {
	core := minimalCore()
	core.Entities[0].Actions = []CustomAction{{Name: "archive", AllowRoles: []string{"missing_role"}}}

	_, err := Compose(core, nil)
	require.ErrorIs(t, err, ErrUnknownRole)
}

func TestComposeUnknownParentFails(t *testing.T) {
	core := minimalCore()
	core.Entities = append(core.Entities, EntityConfig{Slug: "comments", Enabled: true, Parent: "posts"})

	_, err := Compose(core, nil)
	require.ErrorIs(t, err, ErrUnknownParent)
}

func TestComposeChildIndex(t *testing.T) {
	core := minimalCore()
	core.Entities = append(core.Entities,
		EntityConfig{Slug: "comments", Enabled: true, Parent: "tasks"},
		EntityConfig{Slug: "attachments", Enabled: true, Parent: "tasks"},
	)

	reg, err := Compose(core, nil)
	require.NoError(t, err)

	children := reg.ChildEntities("tasks")
	require.Len(t, children, 2)
	assert.Equal(t, "attachments", children[0].Slug)
	assert.Equal(t, "comments", children[1].Slug)
	assert.Empty(t, reg.ChildEntities("comments"))
}

func TestMenuEntitiesExcludesHiddenButSlugStillResolves(t *testing.T) {
	core := minimalCore()
	core.Entities = []EntityConfig{
		{Slug: "tasks", Enabled: true, UI: EntityUI{DashboardMenu: true}},
		{Slug: "media", Enabled: true},
		{Slug: "legacy", Enabled: false, UI: EntityUI{DashboardMenu: true}},
	}
	core.Roles[1].Grants = nil

	reg, err := Compose(core, nil)
	require.NoError(t, err)

	menu := reg.MenuEntities()
	require.Len(t, menu, 1)
	assert.Equal(t, "tasks", menu[0].Slug)

	_, ok := reg.Entity("media")
	assert.True(t, ok, "hidden entity stays resolvable by slug")
	_, ok = reg.Entity("legacy")
	assert.True(t, ok, "disabled entity resolves so callers can report it as disabled")
}

func TestComposeIsIdempotent(t *testing.T) {
	theme := Source{
		Name:     "aurora",
		Entities: []EntityConfig{{Slug: "tasks", Enabled: true, DisplayName: "Task"}},
	}

	first, err := Compose(minimalCore(), &theme)
	require.NoError(t, err)
	second, err := Compose(minimalCore(), &theme)
	require.NoError(t, err)

	assert.Equal(t, first.Entities(), second.Entities())
	assert.Equal(t, first.Permissions(), second.Permissions())
	assert.Equal(t, first.Roles(RoleSetTeam), second.Roles(RoleSetTeam))
}

func TestDerivedPermissions(t *testing.T) {
	core := minimalCore()
	core.Entities[0].Actions = []CustomAction{{
		Name: "archive", Label: "Archive Task", AllowRoles: []string{"owner"},
		ConsumesLimit: "archives",
	}}
	core.Permissions = []Permission{
		{Key: "tasks.delete", Label: "Purge Task", Category: "tasks", MinRank: 100, Danger: true},
	}

	reg, err := Compose(core, nil)
	require.NoError(t, err)

	create, ok := reg.Permission("tasks.create")
	require.True(t, ok)
	assert.Equal(t, "Create Task", create.Label)
	assert.Equal(t, "tasks", create.Category)

	del, ok := reg.Permission("tasks.delete")
	require.True(t, ok)
	assert.Equal(t, "Purge Task", del.Label, "explicit catalog entry wins over derived")
	assert.True(t, del.Danger)

	archive, ok := reg.Permission("tasks.archive")
	require.True(t, ok)
	assert.Equal(t, []string{"owner"}, archive.AllowRoles)
	assert.Equal(t, "archives", archive.ConsumesLimit)
	assert.True(t, archive.Gated())
}

func TestCoreSourceComposes(t *testing.T) {
	reg, err := Compose(CoreSource(), nil)
	require.NoError(t, err)

	_, ok := reg.Permission("billing.manage")
	assert.True(t, ok)
	assert.NotEmpty(t, reg.MenuEntities())
}
