package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/singleflight"

	"github.com/gatehouse-authz/gatehouse/internal/shared"
)

// ErrInvalidEvent indicates a usage event missing its team or limit.
var ErrInvalidEvent = errors.New("billing: usage event requires team and limit")

// RepositoryPort defines data access methods for billing state.
type RepositoryPort interface {
	ActiveSubscription(ctx context.Context, teamID string) (Subscription, error)
	UpsertSubscription(ctx context.Context, sub Subscription) (Subscription, error)
	SumUsageSince(ctx context.Context, teamID, limitSlug string, since time.Time) (int64, error)
	InsertUsage(ctx context.Context, id string, event UsageEvent) (UsageRecord, bool, error)
	ExpireLapsed(ctx context.Context, cutoff time.Time) (int64, error)
	RollupUsage(ctx context.Context, horizon time.Time) (int64, error)
}

// Service resolves plans and quotas for teams.
type Service struct {
	repo    RepositoryPort
	catalog *Catalog
	logger  *slog.Logger
	now     func() time.Time
	views   singleflight.Group
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, catalog *Catalog, logger *slog.Logger) *Service {
	return &Service{repo: repo, catalog: catalog, logger: logger, now: time.Now}
}

// ActiveSubscription returns the team's usable subscription or nil.
func (s *Service) ActiveSubscription(ctx context.Context, teamID string) (*Subscription, error) {
	sub, err := s.repo.ActiveSubscription(ctx, teamID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, shared.Unavailable(err)
	}
	return &sub, nil
}

// PlanFor resolves the plan currently governing a team. No subscription, or
// a subscription naming a plan missing from the catalog, falls back to the
// default plan. The anchor drives reset boundaries and is zero on fallback.
func (s *Service) PlanFor(ctx context.Context, teamID string) (Plan, time.Time, error) {
	sub, err := s.repo.ActiveSubscription(ctx, teamID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.catalog.Default(), time.Time{}, nil
		}
		return Plan{}, time.Time{}, err
	}
	plan, ok := s.catalog.Plan(sub.PlanSlug)
	if !ok {
		s.logger.Warn("subscription names unknown plan, using default",
			slog.String("team_id", teamID), slog.String("plan", sub.PlanSlug))
		return s.catalog.Default(), sub.AnchorAt, nil
	}
	return plan, sub.AnchorAt, nil
}

// HasFeature reports whether the team's current plan carries the feature.
func (s *Service) HasFeature(ctx context.Context, teamID, feature string) (bool, error) {
	plan, _, err := s.PlanFor(ctx, teamID)
	if err != nil {
		return false, shared.Unavailable(err)
	}
	return plan.HasFeature(feature), nil
}

// CheckQuota compares current-period usage against the plan's cap. Usage is
// always measured against the *current* plan, so cap changes mid-period take
// effect immediately. A plan that does not define the limit is unlimited
// unless it explicitly zero-caps it.
//
// Failure policy when the store is unreachable: consumption checks fail
// closed (error), view checks fail open with Degraded set.
func (s *Service) CheckQuota(ctx context.Context, teamID, limitSlug string, mode Mode) (QuotaCheck, error) {
	if mode == ModeView {
		return s.checkQuotaShared(ctx, teamID, limitSlug)
	}
	return s.checkQuota(ctx, teamID, limitSlug, mode)
}

// checkQuotaShared collapses concurrent identical view checks into one store
// round trip. Only view mode flows through here: the result is still fresh
// for the request that triggered it and nothing is consumed.
func (s *Service) checkQuotaShared(ctx context.Context, teamID, limitSlug string) (QuotaCheck, error) {
	resultCh := s.views.DoChan(teamID+"/"+limitSlug, func() (any, error) {
		check, err := s.checkQuota(context.WithoutCancel(ctx), teamID, limitSlug, ModeView)
		if err != nil {
			return nil, err
		}
		return check, nil
	})
	select {
	case <-ctx.Done():
		return QuotaCheck{}, ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return QuotaCheck{}, res.Err
		}
		return res.Val.(QuotaCheck), nil
	}
}

func (s *Service) checkQuota(ctx context.Context, teamID, limitSlug string, mode Mode) (QuotaCheck, error) {
	plan, anchor, err := s.PlanFor(ctx, teamID)
	if err != nil {
		return s.degrade(mode, err)
	}

	limit, ok := plan.Limit(limitSlug)
	if !ok {
		return QuotaCheck{Allowed: true, Unlimited: true}, nil
	}

	since := resetBoundary(limit.Reset, anchor, s.now())
	used, err := s.repo.SumUsageSince(ctx, teamID, limitSlug, since)
	if err != nil {
		return s.degrade(mode, err)
	}

	remaining := limit.Cap - used
	if remaining < 0 {
		remaining = 0
	}
	return QuotaCheck{
		Allowed:   used < limit.Cap,
		Used:      used,
		Limit:     limit.Cap,
		Remaining: remaining,
	}, nil
}

func (s *Service) degrade(mode Mode, err error) (QuotaCheck, error) {
	if mode == ModeView {
		s.logger.Warn("quota view degraded, store unreachable", slog.Any("error", err))
		return QuotaCheck{Allowed: true, Degraded: true}, nil
	}
	return QuotaCheck{}, shared.Unavailable(err)
}

// Track records a usage event as one atomic insert. Supplying an
// idempotency key makes retries safe: a replay returns the original record
// flagged Duplicate and charges nothing.
func (s *Service) Track(ctx context.Context, event UsageEvent) (UsageRecord, error) {
	if event.TeamID == "" || event.LimitSlug == "" {
		return UsageRecord{}, ErrInvalidEvent
	}
	if event.Quantity <= 0 {
		event.Quantity = 1
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	record, inserted, err := s.repo.InsertUsage(ctx, uuid.NewString(), event)
	if err != nil {
		return UsageRecord{}, shared.Unavailable(err)
	}
	record.Duplicate = !inserted
	return record, nil
}

// ExpireLapsed marks active subscriptions past their period end as past_due.
func (s *Service) ExpireLapsed(ctx context.Context) (int64, error) {
	return s.repo.ExpireLapsed(ctx, s.now())
}

// CompactUsage rolls usage events older than the retention horizon into
// monthly buckets.
func (s *Service) CompactUsage(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.RollupUsage(ctx, s.now().Add(-retention))
}
