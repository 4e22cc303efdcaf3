package registry

// CoreSource returns the compiled-in platform defaults: the base role
// hierarchy, the system-wide permission catalog and the built-in entities.
// Themes and plugins build on top of this source.
func CoreSource() Source {
	return Source{
		Name: "core",
		Tier: TierCore,
		Roles: []Role{
			{Name: "owner", Set: RoleSetTeam, Rank: 100, Label: "Owner", Grants: []string{WildcardGrant}},
			{Name: "admin", Set: RoleSetTeam, Rank: 80, Label: "Administrator"},
			{Name: "editor", Set: RoleSetTeam, Rank: 50, Label: "Editor", Grants: []string{
				"pages.list", "pages.read", "pages.create", "pages.update",
				"media.list", "media.read", "media.create", "media.update",
			}},
			{Name: "viewer", Set: RoleSetTeam, Rank: 10, Label: "Viewer", Grants: []string{
				"pages.list", "pages.read",
				"media.list", "media.read",
			}},
			{Name: "system_admin", Set: RoleSetSystem, Rank: 100, Label: "System Administrator", Grants: []string{WildcardGrant}},
			{Name: "support", Set: RoleSetSystem, Rank: 50, Label: "Support", Grants: []string{"teams.view", "members.view"}},
		},
		Permissions: []Permission{
			{Key: "teams.view", Label: "View Team", Category: "team", MinRank: 10},
			{Key: "teams.edit", Label: "Edit Team", Category: "team", MinRank: 80},
			{Key: "teams.delete", Label: "Delete Team", Category: "team", MinRank: 100, Danger: true},
			{Key: "members.view", Label: "View Members", Category: "members", MinRank: 10},
			{Key: "members.invite", Label: "Invite Members", Category: "members", MinRank: 50},
			{Key: "members.manage", Label: "Manage Members", Category: "members", MinRank: 80},
			{Key: "billing.view", Label: "View Billing", Category: "billing", MinRank: 80},
			{Key: "billing.manage", Label: "Manage Billing", Category: "billing", MinRank: 80,
				RequiresFeature: "billing_management"},
		},
		Entities: []EntityConfig{
			{
				Slug:        "pages",
				Enabled:     true,
				DisplayName: "Page",
				PluralName:  "Pages",
				Access:      EntityAccess{Public: true, API: true},
				UI:          EntityUI{DashboardMenu: true},
				Features:    EntityFeatures{Searchable: true, Sortable: true},
				BuilderMode: true,
				Fields: []Field{
					{Name: "title", Kind: "text", Label: "Title", Required: true},
					{Name: "slug", Kind: "slug", Label: "Slug", Required: true},
					{Name: "content", Kind: "richtext", Label: "Content"},
				},
			},
			{
				Slug:        "media",
				Enabled:     true,
				DisplayName: "Media Item",
				PluralName:  "Media",
				Access:      EntityAccess{API: true, Shared: true},
				Features:    EntityFeatures{Searchable: true, Filterable: true},
				Fields: []Field{
					{Name: "file", Kind: "file", Label: "File", Required: true},
					{Name: "alt", Kind: "text", Label: "Alt Text"},
				},
			},
		},
	}
}
