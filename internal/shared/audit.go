package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DecisionLog represents a record stored in decision_logs. Reason codes are
// stable string constants referenced by audit tooling and UI translations.
type DecisionLog struct {
	ClientID   string
	UserID     string
	TeamID     string
	Permission string
	Allowed    bool
	Reason     string
	Meta       map[string]any
	At         time.Time
}

// DecisionRecorder writes evaluated access decisions into decision_logs.
type DecisionRecorder struct {
	pool *pgxpool.Pool
}

// NewDecisionRecorder returns a new DecisionRecorder.
func NewDecisionRecorder(pool *pgxpool.Pool) *DecisionRecorder {
	return &DecisionRecorder{pool: pool}
}

// Record persists the log entry. Recording is best effort for callers: a
// failed insert must never flip an already-made decision.
func (r *DecisionRecorder) Record(ctx context.Context, log DecisionLog) error {
	if r == nil {
		return errors.New("decision recorder not initialised")
	}
	if log.Permission == "" || log.Reason == "" {
		return errors.New("decision log requires permission/reason")
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO decision_logs (client_id, user_id, team_id, permission, allowed, reason, meta, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE(NULLIF($8, '0001-01-01'::timestamptz), NOW()))`,
		log.ClientID, log.UserID, log.TeamID, log.Permission, log.Allowed, log.Reason, metaJSON, log.At)
	return err
}
