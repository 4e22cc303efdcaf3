package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrNoDefaultPlan indicates a catalog without exactly one default.
	ErrNoDefaultPlan = errors.New("billing: catalog needs exactly one default plan")
	// ErrDuplicatePlan indicates two plans sharing a slug.
	ErrDuplicatePlan = errors.New("billing: duplicate plan slug")
)

var planValidator = validator.New()

// Catalog holds the configured plans. Teams without an active subscription
// fall back to the default plan, never to an automatic deny or an automatic
// unlimited-allow.
type Catalog struct {
	plans       map[string]Plan
	defaultSlug string
}

// NewCatalog validates and indexes a plan list.
func NewCatalog(plans []Plan) (*Catalog, error) {
	c := &Catalog{plans: make(map[string]Plan, len(plans))}
	for _, p := range plans {
		if err := planValidator.Struct(p); err != nil {
			return nil, fmt.Errorf("billing: invalid plan %q: %w", p.Slug, err)
		}
		if _, ok := c.plans[p.Slug]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicatePlan, p.Slug)
		}
		c.plans[p.Slug] = p
		if p.Default {
			if c.defaultSlug != "" {
				return nil, ErrNoDefaultPlan
			}
			c.defaultSlug = p.Slug
		}
	}
	if c.defaultSlug == "" {
		return nil, ErrNoDefaultPlan
	}
	return c, nil
}

// LoadCatalog reads a plan catalog from a JSON file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("billing: read catalog %s: %w", path, err)
	}
	var plans []Plan
	if err := json.Unmarshal(data, &plans); err != nil {
		return nil, fmt.Errorf("billing: parse catalog %s: %w", path, err)
	}
	return NewCatalog(plans)
}

// Plan resolves a plan by slug.
func (c *Catalog) Plan(slug string) (Plan, bool) {
	p, ok := c.plans[slug]
	return p, ok
}

// Default returns the fallback (free) plan.
func (c *Catalog) Default() Plan {
	return c.plans[c.defaultSlug]
}

// BuiltinCatalog returns the compiled-in plan set used when no catalog file
// is configured.
func BuiltinCatalog() *Catalog {
	catalog, err := NewCatalog([]Plan{
		{
			Slug:    "free",
			Name:    "Free",
			Default: true,
			Limits: map[string]Limit{
				"tasks":   {Cap: 10, Reset: ResetNever},
				"members": {Cap: 3, Reset: ResetNever},
				"api_calls": {
					Cap:   1000,
					Reset: ResetMonthly,
				},
			},
		},
		{
			Slug:     "pro",
			Name:     "Pro",
			Features: []string{"billing_management", "custom_domains"},
			Limits: map[string]Limit{
				"tasks":     {Cap: 1000, Reset: ResetNever},
				"members":   {Cap: 25, Reset: ResetNever},
				"api_calls": {Cap: 100000, Reset: ResetMonthly},
			},
		},
		{
			Slug:     "business",
			Name:     "Business",
			Features: []string{"billing_management", "custom_domains", "audit_export", "sso"},
			Limits: map[string]Limit{
				"api_calls": {Cap: 1000000, Reset: ResetMonthly},
			},
		},
	})
	if err != nil {
		panic(err)
	}
	return catalog
}
