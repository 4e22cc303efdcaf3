package billing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ActiveSubscription loads the team's usable subscription, if any.
func (r *Repository) ActiveSubscription(ctx context.Context, teamID string) (Subscription, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, team_id, plan_slug, status, anchor_at, current_period_start, current_period_end, created_at, updated_at
		 FROM subscriptions
		 WHERE team_id = $1 AND status IN ('active', 'trialing')
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		teamID)
	return scanSubscription(row)
}

// UpsertSubscription writes provider state, one row per team.
func (r *Repository) UpsertSubscription(ctx context.Context, sub Subscription) (Subscription, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO subscriptions (id, team_id, plan_slug, status, anchor_at, current_period_start, current_period_end, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		 ON CONFLICT (team_id)
		 DO UPDATE SET id = EXCLUDED.id, plan_slug = EXCLUDED.plan_slug, status = EXCLUDED.status,
		               anchor_at = EXCLUDED.anchor_at, current_period_start = EXCLUDED.current_period_start,
		               current_period_end = EXCLUDED.current_period_end, updated_at = NOW()
		 RETURNING id, team_id, plan_slug, status, anchor_at, current_period_start, current_period_end, created_at, updated_at`,
		sub.ID, sub.TeamID, sub.PlanSlug, sub.Status, sub.AnchorAt, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
	return scanSubscription(row)
}

// SumUsageSince totals tracked usage for a (team, limit) pair since the
// reset boundary. Compacted history in usage_rollups counts too; rollups are
// monthly buckets, which is exact for the horizons the worker compacts.
func (r *Repository) SumUsageSince(ctx context.Context, teamID, limitSlug string, since time.Time) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE((SELECT SUM(quantity) FROM usage_events
		                  WHERE team_id = $1 AND limit_slug = $2 AND occurred_at >= $3), 0)
		      + COALESCE((SELECT SUM(quantity) FROM usage_rollups
		                  WHERE team_id = $1 AND limit_slug = $2 AND period_start >= $3), 0)`,
		teamID, limitSlug, since).Scan(&total)
	return total, err
}

// InsertUsage records one usage event as a single atomic insert. A replayed
// idempotency key returns the original record with inserted=false.
func (r *Repository) InsertUsage(ctx context.Context, id string, event UsageEvent) (UsageRecord, bool, error) {
	var key any
	if event.IdempotencyKey != "" {
		key = event.IdempotencyKey
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO usage_events (id, team_id, limit_slug, quantity, idempotency_key, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, team_id, limit_slug, quantity, COALESCE(idempotency_key, ''), occurred_at`,
		id, event.TeamID, event.LimitSlug, event.Quantity, key, event.OccurredAt)
	record, err := scanUsage(row)
	if err == nil {
		return record, true, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" || event.IdempotencyKey == "" {
		return UsageRecord{}, false, err
	}

	row = r.pool.QueryRow(ctx,
		`SELECT id, team_id, limit_slug, quantity, COALESCE(idempotency_key, ''), occurred_at
		 FROM usage_events
		 WHERE idempotency_key = $1`,
		event.IdempotencyKey)
	record, err = scanUsage(row)
	if err != nil {
		return UsageRecord{}, false, err
	}
	return record, false, nil
}

// ExpireLapsed flips active subscriptions whose period ended before the
// cutoff to past_due. Returns the number of rows changed.
func (r *Repository) ExpireLapsed(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE subscriptions SET status = 'past_due', updated_at = NOW()
		 WHERE status = 'active' AND current_period_end <> '0001-01-01' AND current_period_end < $1`,
		cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RollupUsage compacts events older than the horizon into monthly buckets.
// The delete and the insert run as one statement so a cancelled request
// never loses usage.
func (r *Repository) RollupUsage(ctx context.Context, horizon time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`WITH moved AS (
		    DELETE FROM usage_events WHERE occurred_at < $1
		    RETURNING team_id, limit_slug, quantity, occurred_at
		 )
		 INSERT INTO usage_rollups (team_id, limit_slug, quantity, period_start)
		 SELECT team_id, limit_slug, SUM(quantity), date_trunc('month', occurred_at)
		 FROM moved
		 GROUP BY team_id, limit_slug, date_trunc('month', occurred_at)
		 ON CONFLICT (team_id, limit_slug, period_start)
		 DO UPDATE SET quantity = usage_rollups.quantity + EXCLUDED.quantity`,
		horizon)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanSubscription(row pgx.Row) (Subscription, error) {
	var s Subscription
	err := row.Scan(&s.ID, &s.TeamID, &s.PlanSlug, &s.Status, &s.AnchorAt,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Subscription{}, err
	}
	return s, nil
}

func scanUsage(row pgx.Row) (UsageRecord, error) {
	var u UsageRecord
	err := row.Scan(&u.ID, &u.TeamID, &u.LimitSlug, &u.Quantity, &u.IdempotencyKey, &u.OccurredAt)
	if err != nil {
		return UsageRecord{}, err
	}
	return u, nil
}
