package registry

// Tier fixes the precedence of a registry source. Higher tiers win slug
// collisions: core < theme < plugin. Collisions inside a single tier are a
// configuration error, never a silent overwrite.
type Tier int

const (
	TierCore Tier = iota
	TierTheme
	TierPlugin
)

func (t Tier) String() string {
	switch t {
	case TierCore:
		return "core"
	case TierTheme:
		return "theme"
	case TierPlugin:
		return "plugin"
	default:
		return "unknown"
	}
}

// Source is one provider of registry definitions: the compiled-in core, the
// active theme, or an enabled plugin. Sources are assumed to be validated
// static data produced at build time, not user input.
type Source struct {
	Name        string         `json:"name" validate:"required"`
	Tier        Tier           `json:"-"`
	Entities    []EntityConfig `json:"entities" validate:"dive"`
	Roles       []Role         `json:"roles" validate:"dive"`
	Permissions []Permission   `json:"permissions" validate:"dive"`
}
