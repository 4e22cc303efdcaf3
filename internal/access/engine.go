package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gatehouse-authz/gatehouse/internal/billing"
	"github.com/gatehouse-authz/gatehouse/internal/membership"
	"github.com/gatehouse-authz/gatehouse/internal/registry"
)

// MembershipResolver loads the caller's role within a team.
type MembershipResolver interface {
	Get(ctx context.Context, userID, teamID string) (membership.Membership, error)
}

// BillingResolver answers plan-feature and quota questions for a team.
type BillingResolver interface {
	HasFeature(ctx context.Context, teamID, feature string) (bool, error)
	CheckQuota(ctx context.Context, teamID, limitSlug string, mode billing.Mode) (billing.QuotaCheck, error)
}

// Options tunes a single evaluation.
type Options struct {
	// Mode selects the quota failure policy. Defaults to consume, the
	// fail-closed side, so callers must opt in to the lenient view policy.
	Mode billing.Mode
}

// Engine composes the three authorization layers into one verdict:
// role permission AND plan feature AND usage quota. The AND lives only
// here; callers never recombine layers by hand, so no layer can be
// bypassed by a handler that forgets one.
type Engine struct {
	reg         *registry.Registry
	memberships MembershipResolver
	billing     BillingResolver
}

// NewEngine builds an Engine instance.
func NewEngine(reg *registry.Registry, memberships MembershipResolver, billingResolver BillingResolver) *Engine {
	return &Engine{reg: reg, memberships: memberships, billing: billingResolver}
}

// Evaluate decides whether userID may exercise the permission within teamID.
// Pure composition, no side effects. Checks run cheapest first and the first
// failing layer fixes the reason: registry lookups, then membership and
// role, then plan feature, then quota. Quota runs last so usage is never
// consulted for an action a cheaper layer already denies.
//
// A non-nil error means the answer could not be determined (store or
// provider failure), which is distinct from a deny and maps to 503 rather
// than 403 at the HTTP boundary.
func (e *Engine) Evaluate(ctx context.Context, userID, teamID, permissionKey string, opts *Options) (Decision, error) {
	perm, ok := e.reg.Permission(permissionKey)
	if !ok {
		return deny(ReasonUnknownPermission,
			fmt.Sprintf("permission %q is not in the catalog", permissionKey), nil), nil
	}

	if d, denied := e.entityGate(permissionKey); denied {
		return d, nil
	}

	m, err := e.memberships.Get(ctx, userID, teamID)
	if err != nil {
		if errors.Is(err, membership.ErrNoMembership) {
			return deny(ReasonNotAMember, "no active membership in this team", nil), nil
		}
		return Decision{}, err
	}

	if d, denied := e.roleGate(m, perm); denied {
		return d, nil
	}

	if perm.RequiresFeature != "" {
		has, err := e.billing.HasFeature(ctx, teamID, perm.RequiresFeature)
		if err != nil {
			return Decision{}, err
		}
		if !has {
			return deny(ReasonPlanFeatureMissing,
				"the team's plan does not include this feature",
				map[string]any{"requiredFeature": perm.RequiresFeature}), nil
		}
	}

	if perm.ConsumesLimit != "" {
		mode := billing.ModeConsume
		if opts != nil && opts.Mode != "" {
			mode = opts.Mode
		}
		check, err := e.billing.CheckQuota(ctx, teamID, perm.ConsumesLimit, mode)
		if err != nil {
			return Decision{}, err
		}
		meta := quotaMeta(perm.ConsumesLimit, check)
		if !check.Allowed {
			return deny(ReasonQuotaExceeded, "the team's quota for this action is exhausted", meta), nil
		}
		return allow(meta), nil
	}

	return allow(nil), nil
}

// EvaluateAll answers many permissions at once for UI guards. Checks fan
// out concurrently and always use view mode: guards render state, they do
// not consume quota.
func (e *Engine) EvaluateAll(ctx context.Context, userID, teamID string, permissionKeys []string) (map[string]Decision, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	var mu sync.Mutex
	decisions := make(map[string]Decision, len(permissionKeys))
	for _, key := range permissionKeys {
		key := key
		g.Go(func() error {
			d, err := e.Evaluate(ctx, userID, teamID, key, &Options{Mode: billing.ModeView})
			if err != nil {
				return err
			}
			mu.Lock()
			decisions[key] = d
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return decisions, nil
}

// ResolveMember binds a membership snapshot to the registry so callers can
// run repeated role checks without re-deriving context. The snapshot is
// valid only for the current request.
func (e *Engine) ResolveMember(ctx context.Context, userID, teamID string) (*MemberContext, error) {
	m, err := e.memberships.Get(ctx, userID, teamID)
	if err != nil {
		return nil, err
	}
	return &MemberContext{engine: e, membership: m}, nil
}

// MemberContext is a resolved membership plus the registry it was resolved
// against.
type MemberContext struct {
	engine     *Engine
	membership membership.Membership
}

// Membership returns the underlying snapshot.
func (c *MemberContext) Membership() membership.Membership {
	return c.membership
}

// CanPerform runs the registry and role layers for this member. Billing
// layers are composed in by Engine.Evaluate; UI guards that only need the
// role answer use this cheaper path.
func (c *MemberContext) CanPerform(permissionKey string) Decision {
	perm, ok := c.engine.reg.Permission(permissionKey)
	if !ok {
		return deny(ReasonUnknownPermission,
			fmt.Sprintf("permission %q is not in the catalog", permissionKey), nil)
	}
	if d, denied := c.engine.entityGate(permissionKey); denied {
		return d
	}
	if d, denied := c.engine.roleGate(c.membership, perm); denied {
		return d
	}
	return allow(nil)
}

// entityGate denies permissions whose namespace names a disabled entity.
// Namespaces that are not entity slugs (system permissions) pass through.
func (e *Engine) entityGate(permissionKey string) (Decision, bool) {
	namespace, _, found := strings.Cut(permissionKey, ".")
	if !found {
		return Decision{}, false
	}
	entity, ok := e.reg.Entity(namespace)
	if ok && !entity.Enabled {
		return deny(ReasonEntityDisabled, "this entity is disabled",
			map[string]any{"entity": namespace}), true
	}
	return Decision{}, false
}

func (e *Engine) roleGate(m membership.Membership, perm registry.Permission) (Decision, bool) {
	if e.reg.HasPermission(registry.RoleSetTeam, m.Role, perm.Key) {
		return Decision{}, false
	}
	meta := map[string]any{"role": m.Role}
	if perm.MinRank > 0 {
		meta["requiredRank"] = perm.MinRank
	}
	if len(perm.AllowRoles) > 0 {
		meta["allowedRoles"] = perm.AllowRoles
	}
	return deny(ReasonRoleInsufficient, "the member's role does not grant this permission", meta), true
}

func quotaMeta(limitSlug string, check billing.QuotaCheck) map[string]any {
	meta := map[string]any{
		"limitSlug": limitSlug,
		"used":      check.Used,
		"limit":     check.Limit,
		"remaining": check.Remaining,
	}
	if check.Unlimited {
		meta["unlimited"] = true
	}
	if check.Degraded {
		meta["degraded"] = true
	}
	return meta
}
