package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/gatehouse-authz/gatehouse/internal/registry"
	"github.com/gatehouse-authz/gatehouse/internal/shared"
)

var (
	// ErrNoMembership indicates the user holds no active role in the team.
	// Expected absence, never an exception: callers convert it to a deny.
	ErrNoMembership = errors.New("membership: not a member")
	// ErrUnknownRole indicates a role name absent from the team role set.
	ErrUnknownRole = errors.New("membership: unknown role")
	// ErrRankForbidden indicates the actor's rank does not cover the change.
	ErrRankForbidden = errors.New("membership: insufficient rank")
)

// RepositoryPort defines data access methods for memberships.
type RepositoryPort interface {
	Get(ctx context.Context, userID, teamID string) (Membership, error)
	Upsert(ctx context.Context, userID, teamID, role string) (Membership, error)
	Delete(ctx context.Context, userID, teamID string) (int64, error)
	SwapRoles(ctx context.Context, teamID, userA, roleA, userB, roleB string) error
	ListForTeam(ctx context.Context, teamID string, limit, offset int) ([]Membership, error)
	CountForTeam(ctx context.Context, teamID string) (int, error)
}

// Resolver loads memberships and enforces the role-management rank rule.
type Resolver struct {
	repo RepositoryPort
	reg  *registry.Registry
}

// NewResolver builds a Resolver instance.
func NewResolver(repo RepositoryPort, reg *registry.Registry) *Resolver {
	return &Resolver{repo: repo, reg: reg}
}

// Get resolves the active membership for a (user, team) pair. Absence maps
// to ErrNoMembership; store failures map to shared.ErrUnavailable so callers
// can tell "not a member" apart from "could not determine".
func (r *Resolver) Get(ctx context.Context, userID, teamID string) (Membership, error) {
	m, err := r.repo.Get(ctx, userID, teamID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Membership{}, ErrNoMembership
		}
		return Membership{}, shared.Unavailable(err)
	}
	return m, nil
}

// Assign creates or updates a membership without an actor guard. Reserved
// for trusted paths: invite acceptance and system provisioning.
func (r *Resolver) Assign(ctx context.Context, userID, teamID, role string) (Membership, error) {
	if _, ok := r.reg.Role(registry.RoleSetTeam, role); !ok {
		return Membership{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	m, err := r.repo.Upsert(ctx, userID, teamID, role)
	if err != nil {
		return Membership{}, shared.Unavailable(err)
	}
	return m, nil
}

// ChangeRole updates a member's role on behalf of an actor. The actor must
// outrank both the member's current role and the new role.
func (r *Resolver) ChangeRole(ctx context.Context, actorID, userID, teamID, newRole string) (Membership, error) {
	target, ok := r.reg.Role(registry.RoleSetTeam, newRole)
	if !ok {
		return Membership{}, fmt.Errorf("%w: %q", ErrUnknownRole, newRole)
	}
	actor, err := r.Get(ctx, actorID, teamID)
	if err != nil {
		return Membership{}, err
	}
	actorRole, ok := r.reg.Role(registry.RoleSetTeam, actor.Role)
	if !ok {
		return Membership{}, fmt.Errorf("%w: %q", ErrUnknownRole, actor.Role)
	}
	current, err := r.Get(ctx, userID, teamID)
	if err != nil {
		return Membership{}, err
	}
	currentRole, ok := r.reg.Role(registry.RoleSetTeam, current.Role)
	if !ok {
		return Membership{}, fmt.Errorf("%w: %q", ErrUnknownRole, current.Role)
	}
	if !registry.CanManage(actorRole, currentRole) || !registry.CanManage(actorRole, target) {
		return Membership{}, ErrRankForbidden
	}
	m, err := r.repo.Upsert(ctx, userID, teamID, newRole)
	if err != nil {
		return Membership{}, shared.Unavailable(err)
	}
	return m, nil
}

// Remove deletes the member on behalf of an actor outranking them.
func (r *Resolver) Remove(ctx context.Context, actorID, userID, teamID string) error {
	actor, err := r.Get(ctx, actorID, teamID)
	if err != nil {
		return err
	}
	actorRole, ok := r.reg.Role(registry.RoleSetTeam, actor.Role)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRole, actor.Role)
	}
	current, err := r.Get(ctx, userID, teamID)
	if err != nil {
		return err
	}
	currentRole, ok := r.reg.Role(registry.RoleSetTeam, current.Role)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRole, current.Role)
	}
	if !registry.CanManage(actorRole, currentRole) {
		return ErrRankForbidden
	}
	deleted, err := r.repo.Delete(ctx, userID, teamID)
	if err != nil {
		return shared.Unavailable(err)
	}
	if deleted == 0 {
		return ErrNoMembership
	}
	return nil
}

// TransferOwnership swaps roles between the team's current top-ranked member
// and another member, atomically. Only the member holding the highest-ranked
// team role may transfer it.
func (r *Resolver) TransferOwnership(ctx context.Context, actorID, userID, teamID string) error {
	if actorID == userID {
		return ErrRankForbidden
	}
	actor, err := r.Get(ctx, actorID, teamID)
	if err != nil {
		return err
	}
	actorRole, ok := r.reg.Role(registry.RoleSetTeam, actor.Role)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRole, actor.Role)
	}
	ranked := r.reg.Roles(registry.RoleSetTeam)
	if len(ranked) == 0 || ranked[0].Rank != actorRole.Rank {
		return ErrRankForbidden
	}
	target, err := r.Get(ctx, userID, teamID)
	if err != nil {
		return err
	}
	if err := r.repo.SwapRoles(ctx, teamID, actorID, target.Role, userID, actor.Role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNoMembership
		}
		return shared.Unavailable(err)
	}
	return nil
}

// ListForTeam returns one page of a team's active memberships.
func (r *Resolver) ListForTeam(ctx context.Context, teamID string, page, perPage int) ([]Membership, shared.Pagination, error) {
	total, err := r.repo.CountForTeam(ctx, teamID)
	if err != nil {
		return nil, shared.Pagination{}, shared.Unavailable(err)
	}
	pagination := shared.NewPagination(page, perPage, total)
	members, err := r.repo.ListForTeam(ctx, teamID, pagination.PerPage, pagination.Offset())
	if err != nil {
		return nil, shared.Pagination{}, shared.Unavailable(err)
	}
	return members, pagination, nil
}
