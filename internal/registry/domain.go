package registry

// RoleSet separates role namespaces. Team roles govern a user's powers inside
// a single team, system roles govern the platform itself.
type RoleSet string

const (
	RoleSetTeam   RoleSet = "team"
	RoleSetSystem RoleSet = "system"
)

// WildcardGrant in a role's grant list matches every catalog permission.
const WildcardGrant = "*"

// Role bundles permissions under a name with a hierarchy rank.
// Higher rank means more privileged.
type Role struct {
	Name   string   `json:"name" validate:"required"`
	Set    RoleSet  `json:"set" validate:"required,oneof=team system"`
	Rank   int      `json:"rank" validate:"gte=0"`
	Label  string   `json:"label"`
	Grants []string `json:"grants"`
}

// Permission is an atomic capability identified by "<namespace>.<action>".
// A permission is satisfied either through an explicit role grant, through a
// rank threshold (MinRank > 0), or through an explicit role allowlist.
type Permission struct {
	Key         string   `json:"key" validate:"required"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Danger      bool     `json:"danger"`
	Category    string   `json:"category"`
	MinRank     int      `json:"minRank" validate:"gte=0"`
	AllowRoles  []string `json:"allowRoles"`

	// Billing gate. Empty values mean the permission is not billing-gated.
	RequiresFeature string `json:"requiresFeature"`
	ConsumesLimit   string `json:"consumesLimit"`
}

// Gated reports whether the permission carries any billing requirement.
func (p Permission) Gated() bool {
	return p.RequiresFeature != "" || p.ConsumesLimit != ""
}

// Field describes a single configurable entity attribute.
type Field struct {
	Name     string `json:"name" validate:"required"`
	Kind     string `json:"kind" validate:"required"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
}

// EntityAccess holds coarse access flags for an entity.
type EntityAccess struct {
	Public   bool `json:"public"`
	API      bool `json:"api"`
	Metadata bool `json:"metadata"`
	Shared   bool `json:"shared"`
}

// EntityUI controls where the entity surfaces in navigation.
type EntityUI struct {
	DashboardMenu bool `json:"dashboardMenu"`
	Topbar        bool `json:"topbar"`
}

// EntityFeatures toggles list-view capabilities.
type EntityFeatures struct {
	Searchable     bool `json:"searchable"`
	Sortable       bool `json:"sortable"`
	Filterable     bool `json:"filterable"`
	BulkOperations bool `json:"bulkOperations"`
}

// CustomAction declares an entity-specific action beyond the CRUD set.
// The resulting permission key is "<slug>.<name>".
type CustomAction struct {
	Name            string   `json:"name" validate:"required"`
	Label           string   `json:"label"`
	Danger          bool     `json:"danger"`
	AllowRoles      []string `json:"allowRoles" validate:"min=1"`
	RequiresFeature string   `json:"requiresFeature"`
	ConsumesLimit   string   `json:"consumesLimit"`
}

// EntityConfig describes a manageable resource type. The slug derives the
// table name, API path and translation namespace in the host application.
type EntityConfig struct {
	Slug        string         `json:"slug" validate:"required,lowercase"`
	Enabled     bool           `json:"enabled"`
	DisplayName string         `json:"displayName"`
	PluralName  string         `json:"pluralName"`
	Parent      string         `json:"parent"`
	Access      EntityAccess   `json:"access"`
	UI          EntityUI       `json:"ui"`
	Features    EntityFeatures `json:"features"`
	Fields      []Field        `json:"fields" validate:"dive"`
	Actions     []CustomAction `json:"actions" validate:"dive"`

	// BuilderMode redirects detail views to the edit surface.
	BuilderMode bool `json:"builderMode"`

	// Extends merges this definition into a lower-precedence one with the
	// same slug instead of replacing it wholesale.
	Extends bool `json:"extends"`
}

// CRUDActions is the fixed action set auto-derived for every entity.
var CRUDActions = []string{"list", "read", "create", "update", "delete"}
