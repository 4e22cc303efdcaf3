package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rankedRegistry(t *testing.T) *Registry {
	t.Helper()
	core := Source{
		Name: "core",
		Roles: []Role{
			{Name: "owner", Set: RoleSetTeam, Rank: 100, Grants: []string{WildcardGrant}},
			{Name: "admin", Set: RoleSetTeam, Rank: 80},
			{Name: "editor", Set: RoleSetTeam, Rank: 50},
			{Name: "viewer", Set: RoleSetTeam, Rank: 1, Grants: []string{"team.view"}},
		},
		Permissions: []Permission{
			{Key: "team.view", MinRank: 1},
			{Key: "team.edit", MinRank: 10},
			{Key: "reports.export", AllowRoles: []string{"editor"}},
		},
	}
	reg, err := Compose(core, nil)
	require.NoError(t, err)
	return reg
}

func TestHasPermissionRankThreshold(t *testing.T) {
	reg := rankedRegistry(t)

	assert.True(t, reg.HasPermission(RoleSetTeam, "viewer", "team.view"))
	assert.False(t, reg.HasPermission(RoleSetTeam, "viewer", "team.edit"),
		"rank 1 is below the rank-10 threshold")
	assert.True(t, reg.HasPermission(RoleSetTeam, "editor", "team.edit"))
	assert.True(t, reg.HasPermission(RoleSetTeam, "admin", "team.edit"))
}

func TestHasPermissionMonotonicInRank(t *testing.T) {
	reg := rankedRegistry(t)

	// Every role outranking one that qualifies via threshold also qualifies.
	ranked := reg.Roles(RoleSetTeam)
	for i, lower := range ranked {
		if !reg.HasPermission(RoleSetTeam, lower.Name, "team.edit") {
			continue
		}
		for j := 0; j < i; j++ {
			higher := ranked[j]
			assert.True(t, reg.HasPermission(RoleSetTeam, higher.Name, "team.edit"),
				"role %s outranks %s", higher.Name, lower.Name)
		}
	}
}

func TestHasPermissionAllowlist(t *testing.T) {
	reg := rankedRegistry(t)

	assert.True(t, reg.HasPermission(RoleSetTeam, "editor", "reports.export"))
	assert.False(t, reg.HasPermission(RoleSetTeam, "admin", "reports.export"),
		"allowlist permissions have no rank fallback")
	assert.True(t, reg.HasPermission(RoleSetTeam, "owner", "reports.export"),
		"wildcard grant covers allowlisted permissions")
}

func TestHasPermissionFailsClosed(t *testing.T) {
	reg := rankedRegistry(t)

	assert.False(t, reg.HasPermission(RoleSetTeam, "nonexistent", "team.view"))
	assert.False(t, reg.HasPermission(RoleSetTeam, "owner", "no.such.permission"))
	assert.False(t, reg.HasPermission(RoleSetSystem, "owner", "team.view"),
		"roles do not leak across role sets")
}

func TestCompareRankAndCanManage(t *testing.T) {
	reg := rankedRegistry(t)

	owner, _ := reg.Role(RoleSetTeam, "owner")
	admin, _ := reg.Role(RoleSetTeam, "admin")

	assert.Equal(t, 1, CompareRank(owner, admin))
	assert.Equal(t, -1, CompareRank(admin, owner))
	assert.Equal(t, 0, CompareRank(owner, owner))

	assert.True(t, CanManage(owner, admin))
	assert.False(t, CanManage(admin, owner))
	assert.False(t, CanManage(admin, admin), "equal rank cannot manage itself")
}
