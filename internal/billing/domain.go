package billing

import "time"

// ResetPeriod controls when a limit's usage window restarts.
type ResetPeriod string

const (
	ResetNever   ResetPeriod = "never"
	ResetDaily   ResetPeriod = "daily"
	ResetMonthly ResetPeriod = "monthly"
	ResetYearly  ResetPeriod = "yearly"
)

// Limit caps usage of one limit slug within a reset window. A zero cap is an
// explicit "none allowed", distinct from the limit being absent from a plan.
type Limit struct {
	Cap   int64       `json:"cap" validate:"gte=0"`
	Reset ResetPeriod `json:"reset" validate:"omitempty,oneof=never daily monthly yearly"`
}

// Plan is a billing plan with its feature set and limit caps. Plans are
// static configuration; which plan a team is on lives in the store.
type Plan struct {
	Slug     string           `json:"slug" validate:"required,lowercase"`
	Name     string           `json:"name" validate:"required"`
	Default  bool             `json:"default"`
	Features []string         `json:"features"`
	Limits   map[string]Limit `json:"limits" validate:"dive"`
}

// HasFeature reports whether the plan includes the feature slug.
func (p Plan) HasFeature(slug string) bool {
	for _, f := range p.Features {
		if f == slug {
			return true
		}
	}
	return false
}

// Limit returns the plan's cap for a limit slug. Absent means uncapped.
func (p Plan) Limit(slug string) (Limit, bool) {
	l, ok := p.Limits[slug]
	return l, ok
}

// SubscriptionStatus tracks the provider-side subscription lifecycle.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Subscription binds a team to a plan. State is written only by the billing
// provider webhook; this service reads it.
type Subscription struct {
	ID                 string             `json:"id"`
	TeamID             string             `json:"teamId"`
	PlanSlug           string             `json:"planSlug"`
	Status             SubscriptionStatus `json:"status"`
	AnchorAt           time.Time          `json:"anchorAt"`
	CurrentPeriodStart time.Time          `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time          `json:"currentPeriodEnd"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// Usable reports whether the subscription still confers its plan.
func (s Subscription) Usable() bool {
	return s.Status == SubscriptionActive || s.Status == SubscriptionTrialing
}

// UsageEvent is one tracked consumption of a limit.
type UsageEvent struct {
	TeamID         string    `json:"teamId" validate:"required"`
	LimitSlug      string    `json:"limitSlug" validate:"required"`
	Quantity       int64     `json:"quantity" validate:"gte=0"`
	IdempotencyKey string    `json:"idempotencyKey"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// UsageRecord is the persisted form of a tracked event.
type UsageRecord struct {
	ID             string    `json:"id"`
	TeamID         string    `json:"teamId"`
	LimitSlug      string    `json:"limitSlug"`
	Quantity       int64     `json:"quantity"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`

	// Duplicate marks a replayed idempotency key: the original record is
	// returned and nothing new was charged.
	Duplicate bool `json:"duplicate,omitempty"`
}

// Mode separates quota checks that gate new consumption from read-only
// views of existing resources. The two carry different failure policies.
type Mode string

const (
	ModeConsume Mode = "consume"
	ModeView    Mode = "view"
)

// QuotaCheck is the outcome of comparing current-period usage to a cap.
type QuotaCheck struct {
	Allowed   bool  `json:"allowed"`
	Used      int64 `json:"used"`
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
	Unlimited bool  `json:"unlimited,omitempty"`

	// Degraded marks a fail-open answer given while the store was
	// unreachable; only view-mode checks may be degraded.
	Degraded bool `json:"degraded,omitempty"`
}
