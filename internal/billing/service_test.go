package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-authz/gatehouse/internal/shared"
)

type trackedEvent struct {
	record UsageRecord
	event  UsageEvent
}

type mockBillingRepo struct {
	sub       *Subscription
	subErr    error
	upsertErr error
	usageErr  error
	events    []trackedEvent
	expired   int64
	rolled    int64
}

func (m *mockBillingRepo) ActiveSubscription(ctx context.Context, teamID string) (Subscription, error) {
	if m.subErr != nil {
		return Subscription{}, m.subErr
	}
	if m.sub == nil || m.sub.TeamID != teamID {
		return Subscription{}, pgx.ErrNoRows
	}
	return *m.sub, nil
}

func (m *mockBillingRepo) UpsertSubscription(ctx context.Context, sub Subscription) (Subscription, error) {
	if m.upsertErr != nil {
		err := m.upsertErr
		m.upsertErr = nil
		return Subscription{}, err
	}
	m.sub = &sub
	return sub, nil
}

func (m *mockBillingRepo) SumUsageSince(ctx context.Context, teamID, limitSlug string, since time.Time) (int64, error) {
	if m.usageErr != nil {
		return 0, m.usageErr
	}
	var total int64
	for _, e := range m.events {
		if e.event.TeamID == teamID && e.event.LimitSlug == limitSlug && !e.record.OccurredAt.Before(since) {
			total += e.event.Quantity
		}
	}
	return total, nil
}

func (m *mockBillingRepo) InsertUsage(ctx context.Context, id string, event UsageEvent) (UsageRecord, bool, error) {
	if m.usageErr != nil {
		return UsageRecord{}, false, m.usageErr
	}
	if event.IdempotencyKey != "" {
		for _, e := range m.events {
			if e.record.IdempotencyKey == event.IdempotencyKey {
				return e.record, false, nil
			}
		}
	}
	record := UsageRecord{
		ID: id, TeamID: event.TeamID, LimitSlug: event.LimitSlug,
		Quantity: event.Quantity, IdempotencyKey: event.IdempotencyKey, OccurredAt: event.OccurredAt,
	}
	m.events = append(m.events, trackedEvent{record: record, event: event})
	return record, true, nil
}

func (m *mockBillingRepo) ExpireLapsed(ctx context.Context, cutoff time.Time) (int64, error) {
	return m.expired, nil
}

func (m *mockBillingRepo) RollupUsage(ctx context.Context, horizon time.Time) (int64, error) {
	return m.rolled, nil
}

func newBillingService(repo *mockBillingRepo) *Service {
	return NewService(repo, BuiltinCatalog(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func seedUsage(t *testing.T, svc *Service, teamID, limitSlug string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := svc.Track(context.Background(), UsageEvent{TeamID: teamID, LimitSlug: limitSlug})
		require.NoError(t, err)
	}
}

func TestPlanForFallsBackToDefault(t *testing.T) {
	svc := newBillingService(&mockBillingRepo{})

	plan, anchor, err := svc.PlanFor(context.Background(), "team-1")
	require.NoError(t, err)
	assert.Equal(t, "free", plan.Slug)
	assert.True(t, anchor.IsZero())
}

func TestPlanForUnknownPlanSlugFallsBackToDefault(t *testing.T) {
	repo := &mockBillingRepo{sub: &Subscription{TeamID: "team-1", PlanSlug: "legacy-gold", Status: SubscriptionActive}}
	svc := newBillingService(repo)

	plan, _, err := svc.PlanFor(context.Background(), "team-1")
	require.NoError(t, err)
	assert.Equal(t, "free", plan.Slug)
}

func TestCheckQuotaBoundaries(t *testing.T) {
	svc := newBillingService(&mockBillingRepo{})
	ctx := context.Background()

	// Free plan caps tasks at 10.
	seedUsage(t, svc, "team-1", "tasks", 9)
	check, err := svc.CheckQuota(ctx, "team-1", "tasks", ModeConsume)
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Equal(t, int64(9), check.Used)
	assert.Equal(t, int64(1), check.Remaining)

	seedUsage(t, svc, "team-1", "tasks", 1)
	check, err = svc.CheckQuota(ctx, "team-1", "tasks", ModeConsume)
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, int64(10), check.Used)
	assert.Equal(t, int64(0), check.Remaining)
}

func TestCheckQuotaMissingLimitIsUnlimited(t *testing.T) {
	// Business plan defines no tasks limit at all.
	repo := &mockBillingRepo{sub: &Subscription{TeamID: "team-1", PlanSlug: "business", Status: SubscriptionActive}}
	svc := newBillingService(repo)

	check, err := svc.CheckQuota(context.Background(), "team-1", "tasks", ModeConsume)
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.True(t, check.Unlimited)
}

func TestCheckQuotaZeroCapDenies(t *testing.T) {
	catalog, err := NewCatalog([]Plan{{
		Slug: "trial", Name: "Trial", Default: true,
		Limits: map[string]Limit{"exports": {Cap: 0, Reset: ResetNever}},
	}})
	require.NoError(t, err)
	svc := NewService(&mockBillingRepo{}, catalog, slog.New(slog.NewTextHandler(io.Discard, nil)))

	check, err := svc.CheckQuota(context.Background(), "team-1", "exports", ModeConsume)
	require.NoError(t, err)
	assert.False(t, check.Allowed, "explicit zero cap is not unlimited")
	assert.False(t, check.Unlimited)
}

func TestCheckQuotaUsesCurrentPlanCap(t *testing.T) {
	repo := &mockBillingRepo{}
	svc := newBillingService(repo)
	ctx := context.Background()

	seedUsage(t, svc, "team-1", "tasks", 10)
	check, err := svc.CheckQuota(ctx, "team-1", "tasks", ModeConsume)
	require.NoError(t, err)
	require.False(t, check.Allowed)

	// Mid-period upgrade: the new plan's cap applies immediately.
	repo.sub = &Subscription{TeamID: "team-1", PlanSlug: "pro", Status: SubscriptionActive}
	check, err = svc.CheckQuota(ctx, "team-1", "tasks", ModeConsume)
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Equal(t, int64(1000), check.Limit)
}

func TestCheckQuotaFailurePolicyByMode(t *testing.T) {
	repo := &mockBillingRepo{subErr: errors.New("connection refused")}
	svc := newBillingService(repo)
	ctx := context.Background()

	_, err := svc.CheckQuota(ctx, "team-1", "tasks", ModeConsume)
	assert.ErrorIs(t, err, shared.ErrUnavailable, "consumption fails closed")

	check, err := svc.CheckQuota(ctx, "team-1", "tasks", ModeView)
	require.NoError(t, err, "read-only viewing fails open")
	assert.True(t, check.Allowed)
	assert.True(t, check.Degraded)
}

func TestTrackIsIdempotentPerKey(t *testing.T) {
	svc := newBillingService(&mockBillingRepo{})
	ctx := context.Background()

	first, err := svc.Track(ctx, UsageEvent{TeamID: "team-1", LimitSlug: "tasks", IdempotencyKey: "evt-1"})
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.Equal(t, int64(1), first.Quantity, "quantity defaults to one")

	replay, err := svc.Track(ctx, UsageEvent{TeamID: "team-1", LimitSlug: "tasks", IdempotencyKey: "evt-1"})
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)
	assert.Equal(t, first.ID, replay.ID)

	check, err := svc.CheckQuota(ctx, "team-1", "tasks", ModeConsume)
	require.NoError(t, err)
	assert.Equal(t, int64(1), check.Used, "replay charged nothing")
}

func TestTrackRejectsIncompleteEvents(t *testing.T) {
	svc := newBillingService(&mockBillingRepo{})

	_, err := svc.Track(context.Background(), UsageEvent{TeamID: "team-1"})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}
