package membership

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-authz/gatehouse/internal/registry"
	"github.com/gatehouse-authz/gatehouse/internal/shared"
)

type mockRepo struct {
	rows    map[string]Membership
	getErr  error
	saveErr error
}

func key(userID, teamID string) string { return userID + "/" + teamID }

func newMockRepo() *mockRepo {
	return &mockRepo{rows: make(map[string]Membership)}
}

func (m *mockRepo) Get(ctx context.Context, userID, teamID string) (Membership, error) {
	if m.getErr != nil {
		return Membership{}, m.getErr
	}
	row, ok := m.rows[key(userID, teamID)]
	if !ok || row.Status != StatusActive {
		return Membership{}, pgx.ErrNoRows
	}
	return row, nil
}

func (m *mockRepo) Upsert(ctx context.Context, userID, teamID, role string) (Membership, error) {
	if m.saveErr != nil {
		return Membership{}, m.saveErr
	}
	row := Membership{UserID: userID, TeamID: teamID, Role: role, Status: StatusActive, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.rows[key(userID, teamID)] = row
	return row, nil
}

func (m *mockRepo) Delete(ctx context.Context, userID, teamID string) (int64, error) {
	if m.saveErr != nil {
		return 0, m.saveErr
	}
	if _, ok := m.rows[key(userID, teamID)]; !ok {
		return 0, nil
	}
	delete(m.rows, key(userID, teamID))
	return 1, nil
}

func (m *mockRepo) SwapRoles(ctx context.Context, teamID, userA, roleA, userB, roleB string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	for _, change := range []struct{ userID, role string }{{userA, roleA}, {userB, roleB}} {
		row, ok := m.rows[key(change.userID, teamID)]
		if !ok || row.Status != StatusActive {
			return pgx.ErrNoRows
		}
		row.Role = change.role
		m.rows[key(change.userID, teamID)] = row
	}
	return nil
}

func (m *mockRepo) ListForTeam(ctx context.Context, teamID string, limit, offset int) ([]Membership, error) {
	var out []Membership
	for _, row := range m.rows {
		if row.TeamID == teamID && row.Status == StatusActive {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *mockRepo) CountForTeam(ctx context.Context, teamID string) (int, error) {
	rows, _ := m.ListForTeam(ctx, teamID, 0, 0)
	return len(rows), nil
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Compose(registry.CoreSource(), nil)
	require.NoError(t, err)
	return reg
}

func TestGetReturnsNoMembershipForAbsentPair(t *testing.T) {
	resolver := NewResolver(newMockRepo(), testRegistry(t))

	_, err := resolver.Get(context.Background(), "u1", "t1")
	assert.ErrorIs(t, err, ErrNoMembership)
}

func TestGetWrapsStoreFailuresAsUnavailable(t *testing.T) {
	repo := newMockRepo()
	repo.getErr = errors.New("connection refused")
	resolver := NewResolver(repo, testRegistry(t))

	_, err := resolver.Get(context.Background(), "u1", "t1")
	assert.ErrorIs(t, err, shared.ErrUnavailable)
	assert.NotErrorIs(t, err, ErrNoMembership)
}

func TestAssignRejectsUnknownRole(t *testing.T) {
	resolver := NewResolver(newMockRepo(), testRegistry(t))

	_, err := resolver.Assign(context.Background(), "u1", "t1", "warlord")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestChangeRoleEnforcesRankRule(t *testing.T) {
	repo := newMockRepo()
	resolver := NewResolver(repo, testRegistry(t))
	ctx := context.Background()

	_, err := resolver.Assign(ctx, "owner-user", "t1", "owner")
	require.NoError(t, err)
	_, err = resolver.Assign(ctx, "admin-user", "t1", "admin")
	require.NoError(t, err)
	_, err = resolver.Assign(ctx, "viewer-user", "t1", "viewer")
	require.NoError(t, err)

	// Admin may promote a viewer to editor (both outranked).
	m, err := resolver.ChangeRole(ctx, "admin-user", "viewer-user", "t1", "editor")
	require.NoError(t, err)
	assert.Equal(t, "editor", m.Role)

	// Admin may not touch the owner, nor hand out a rank at or above their own.
	_, err = resolver.ChangeRole(ctx, "admin-user", "owner-user", "t1", "viewer")
	assert.ErrorIs(t, err, ErrRankForbidden)
	_, err = resolver.ChangeRole(ctx, "admin-user", "viewer-user", "t1", "admin")
	assert.ErrorIs(t, err, ErrRankForbidden)
}

func TestRemoveRequiresStrictlyHigherRank(t *testing.T) {
	repo := newMockRepo()
	resolver := NewResolver(repo, testRegistry(t))
	ctx := context.Background()

	_, err := resolver.Assign(ctx, "admin-a", "t1", "admin")
	require.NoError(t, err)
	_, err = resolver.Assign(ctx, "admin-b", "t1", "admin")
	require.NoError(t, err)
	_, err = resolver.Assign(ctx, "viewer-user", "t1", "viewer")
	require.NoError(t, err)

	assert.ErrorIs(t, resolver.Remove(ctx, "admin-a", "admin-b", "t1"), ErrRankForbidden)

	require.NoError(t, resolver.Remove(ctx, "admin-a", "viewer-user", "t1"))
	_, err = resolver.Get(ctx, "viewer-user", "t1")
	assert.ErrorIs(t, err, ErrNoMembership)
}

func TestTransferOwnershipSwapsRoles(t *testing.T) {
	repo := newMockRepo()
	resolver := NewResolver(repo, testRegistry(t))
	ctx := context.Background()

	_, err := resolver.Assign(ctx, "owner-user", "t1", "owner")
	require.NoError(t, err)
	_, err = resolver.Assign(ctx, "admin-user", "t1", "admin")
	require.NoError(t, err)

	require.NoError(t, resolver.TransferOwnership(ctx, "owner-user", "admin-user", "t1"))

	m, err := resolver.Get(ctx, "admin-user", "t1")
	require.NoError(t, err)
	assert.Equal(t, "owner", m.Role)
	m, err = resolver.Get(ctx, "owner-user", "t1")
	require.NoError(t, err)
	assert.Equal(t, "admin", m.Role)
}

func TestTransferOwnershipRequiresTopRank(t *testing.T) {
	repo := newMockRepo()
	resolver := NewResolver(repo, testRegistry(t))
	ctx := context.Background()

	_, err := resolver.Assign(ctx, "admin-user", "t1", "admin")
	require.NoError(t, err)
	_, err = resolver.Assign(ctx, "viewer-user", "t1", "viewer")
	require.NoError(t, err)

	assert.ErrorIs(t, resolver.TransferOwnership(ctx, "admin-user", "viewer-user", "t1"), ErrRankForbidden)
	assert.ErrorIs(t, resolver.TransferOwnership(ctx, "admin-user", "admin-user", "t1"), ErrRankForbidden)
}

func TestListForTeamPaginates(t *testing.T) {
	repo := newMockRepo()
	resolver := NewResolver(repo, testRegistry(t))
	ctx := context.Background()

	for _, id := range []string{"u1", "u2", "u3"} {
		_, err := resolver.Assign(ctx, id, "t1", "viewer")
		require.NoError(t, err)
	}

	members, pagination, err := resolver.ListForTeam(ctx, "t1", 1, 50)
	require.NoError(t, err)
	assert.Len(t, members, 3)
	assert.Equal(t, 3, pagination.Total)
	assert.Equal(t, 1, pagination.TotalPages)
}
