package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskUsageRollup compacts aged usage events into monthly buckets.
	TaskUsageRollup = "billing:usage_rollup"
	// TaskSubscriptionReconcile expires subscriptions whose period lapsed
	// without the provider telling us.
	TaskSubscriptionReconcile = "billing:subscription_reconcile"
	// TaskDecisionLogPrune trims old decision_logs rows.
	TaskDecisionLogPrune = "audit:decision_log_prune"
)

// UsageRollupPayload configures one rollup run. Retention overrides the
// configured default when positive.
type UsageRollupPayload struct {
	RetentionHours int `json:"retentionHours,omitempty"`
}

// NewUsageRollupTask constructs an Asynq task.
func NewUsageRollupTask(payload UsageRollupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskUsageRollup, data), nil
}

// NewSubscriptionReconcileTask constructs an Asynq task.
func NewSubscriptionReconcileTask() *asynq.Task {
	return asynq.NewTask(TaskSubscriptionReconcile, nil)
}

// NewDecisionLogPruneTask constructs an Asynq task.
func NewDecisionLogPruneTask() *asynq.Task {
	return asynq.NewTask(TaskDecisionLogPrune, nil)
}
