package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-authz/gatehouse/internal/billing"
	jobmetrics "github.com/gatehouse-authz/gatehouse/internal/jobs"
)

// DecisionLogRetention bounds how long evaluated decisions stay queryable.
const DecisionLogRetention = 90 * 24 * time.Hour

// Handlers binds task handlers to their dependencies.
type Handlers struct {
	Billing        *billing.Service
	Pool           *pgxpool.Pool
	Logger         *slog.Logger
	Metrics        *jobmetrics.Metrics
	UsageRetention time.Duration
}

// HandleUsageRollup processes TaskUsageRollup tasks.
func (h *Handlers) HandleUsageRollup(ctx context.Context, t *asynq.Task) error {
	tracker := h.Metrics.Track("usage_rollup")
	var payload UsageRollupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	retention := h.UsageRetention
	if payload.RetentionHours > 0 {
		retention = time.Duration(payload.RetentionHours) * time.Hour
	}
	moved, err := h.Billing.CompactUsage(ctx, retention)
	if err != nil {
		h.Logger.Error("usage rollup failed", slog.Any("error", err))
		return tracker.End(err)
	}
	h.Logger.Info("usage rollup complete", slog.Int64("moved", moved))
	return tracker.End(nil)
}

// HandleSubscriptionReconcile processes TaskSubscriptionReconcile tasks.
func (h *Handlers) HandleSubscriptionReconcile(ctx context.Context, t *asynq.Task) error {
	tracker := h.Metrics.Track("subscription_reconcile")
	expired, err := h.Billing.ExpireLapsed(ctx)
	if err != nil {
		h.Logger.Error("subscription reconcile failed", slog.Any("error", err))
		return tracker.End(err)
	}
	if expired > 0 {
		h.Logger.Warn("subscriptions lapsed without provider event", slog.Int64("count", expired))
	}
	return tracker.End(nil)
}

// HandleDecisionLogPrune processes TaskDecisionLogPrune tasks.
func (h *Handlers) HandleDecisionLogPrune(ctx context.Context, t *asynq.Task) error {
	tracker := h.Metrics.Track("decision_log_prune")
	if h.Pool == nil {
		return tracker.End(nil)
	}
	tag, err := h.Pool.Exec(ctx,
		`DELETE FROM decision_logs WHERE occurred_at < $1`,
		time.Now().UTC().Add(-DecisionLogRetention))
	if err != nil {
		h.Logger.Error("decision log prune failed", slog.Any("error", err))
		return tracker.End(err)
	}
	h.Logger.Info("decision logs pruned", slog.Int64("deleted", tag.RowsAffected()))
	return tracker.End(nil)
}
