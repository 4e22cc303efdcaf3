package membership

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-authz/gatehouse/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get loads the active membership for a (user, team) pair.
func (r *Repository) Get(ctx context.Context, userID, teamID string) (Membership, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT user_id, team_id, role, status, created_at, updated_at
		 FROM memberships
		 WHERE user_id = $1 AND team_id = $2 AND status = 'active'`,
		userID, teamID)
	var m Membership
	if err := row.Scan(&m.UserID, &m.TeamID, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return Membership{}, err
	}
	return m, nil
}

// Upsert creates or reactivates the membership with the given role. The
// unique (user_id, team_id) index keeps one row per pair.
func (r *Repository) Upsert(ctx context.Context, userID, teamID, role string) (Membership, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO memberships (user_id, team_id, role, status, created_at, updated_at)
		 VALUES ($1, $2, $3, 'active', NOW(), NOW())
		 ON CONFLICT (user_id, team_id)
		 DO UPDATE SET role = EXCLUDED.role, status = 'active', updated_at = NOW()
		 RETURNING user_id, team_id, role, status, created_at, updated_at`,
		userID, teamID, role)
	var m Membership
	if err := row.Scan(&m.UserID, &m.TeamID, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return Membership{}, err
	}
	return m, nil
}

// Delete removes the membership row. Returns the number of deleted rows.
func (r *Repository) Delete(ctx context.Context, userID, teamID string) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM memberships WHERE user_id = $1 AND team_id = $2`, userID, teamID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListForTeam returns active memberships of a team ordered by user.
func (r *Repository) ListForTeam(ctx context.Context, teamID string, limit, offset int) ([]Membership, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, team_id, role, status, created_at, updated_at
		 FROM memberships
		 WHERE team_id = $1 AND status = 'active'
		 ORDER BY user_id
		 LIMIT $2 OFFSET $3`,
		teamID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.UserID, &m.TeamID, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SwapRoles reassigns two members' roles in one transaction. Used for
// ownership transfer, where a half-applied swap would leave the team with
// two owners or none.
func (r *Repository) SwapRoles(ctx context.Context, teamID, userA, roleA, userB, roleB string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, change := range []struct{ userID, role string }{{userA, roleA}, {userB, roleB}} {
			tag, err := tx.Exec(ctx,
				`UPDATE memberships SET role = $3, updated_at = NOW()
				 WHERE user_id = $1 AND team_id = $2 AND status = 'active'`,
				change.userID, teamID, change.role)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return pgx.ErrNoRows
			}
		}
		return nil
	})
}

// CountForTeam counts active memberships of a team.
func (r *Repository) CountForTeam(ctx context.Context, teamID string) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM memberships WHERE team_id = $1 AND status = 'active'`, teamID).Scan(&total)
	return total, err
}
