package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/gatehouse-authz/gatehouse/internal/shared"
)

var (
	// ErrBadSignature indicates a webhook payload failing HMAC verification.
	ErrBadSignature = errors.New("billing: webhook signature mismatch")
	// ErrReplayedEvent indicates an event ID already processed.
	ErrReplayedEvent = errors.New("billing: webhook event already processed")
)

const webhookDedupPrefix = "billing:webhook:"

// ProviderEvent is the envelope delivered by the billing provider. The
// provider is the only writer of subscription state; Gatehouse never calls
// its API directly.
type ProviderEvent struct {
	ID           string `json:"id" validate:"required"`
	Type         string `json:"type" validate:"required"`
	Subscription struct {
		ID                 string    `json:"id" validate:"required"`
		TeamID             string    `json:"teamId" validate:"required"`
		PlanSlug           string    `json:"planSlug"`
		Status             string    `json:"status"`
		AnchorAt           time.Time `json:"anchorAt"`
		CurrentPeriodStart time.Time `json:"currentPeriodStart"`
		CurrentPeriodEnd   time.Time `json:"currentPeriodEnd"`
	} `json:"subscription"`
}

// WebhookProcessor ingests provider events: verifies the signature, drops
// replays, and writes the resulting subscription state.
type WebhookProcessor struct {
	repo     RepositoryPort
	redis    *redis.Client
	secret   []byte
	dedupTTL time.Duration
	logger   *slog.Logger
	validate *validator.Validate
}

// NewWebhookProcessor builds a WebhookProcessor.
func NewWebhookProcessor(repo RepositoryPort, rdb *redis.Client, secret string, logger *slog.Logger) *WebhookProcessor {
	return &WebhookProcessor{
		repo:     repo,
		redis:    rdb,
		secret:   []byte(secret),
		dedupTTL: 24 * time.Hour,
		logger:   logger,
		validate: validator.New(),
	}
}

// VerifySignature checks the hex-encoded HMAC-SHA256 of the raw payload.
func (p *WebhookProcessor) VerifySignature(payload []byte, signature string) error {
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), provided) {
		return ErrBadSignature
	}
	return nil
}

// Process verifies, deduplicates and applies one provider event.
func (p *WebhookProcessor) Process(ctx context.Context, payload []byte, signature string) error {
	if err := p.VerifySignature(payload, signature); err != nil {
		return err
	}

	var event ProviderEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("billing: parse webhook: %w", err)
	}
	if err := p.validate.Struct(event); err != nil {
		return fmt.Errorf("billing: invalid webhook event: %w", err)
	}

	dedupKey := webhookDedupPrefix + event.ID
	fresh, err := p.redis.SetNX(ctx, dedupKey, 1, p.dedupTTL).Result()
	dedupHeld := err == nil
	if err != nil {
		// Applying a duplicate is harmless: the upsert is idempotent per
		// team. Losing an event is not, so keep going without dedup.
		p.logger.Warn("webhook dedup unavailable", slog.Any("error", err))
	} else if !fresh {
		return ErrReplayedEvent
	}

	var applyErr error
	switch event.Type {
	case "subscription.updated", "subscription.created":
		applyErr = p.applySubscription(ctx, event, SubscriptionStatus(event.Subscription.Status))
	case "subscription.deleted":
		applyErr = p.applySubscription(ctx, event, SubscriptionCanceled)
	default:
		p.logger.Info("ignoring webhook event type", slog.String("type", event.Type))
		return nil
	}

	if applyErr != nil && dedupHeld {
		// The provider retries on error; the event must not look processed
		// until the subscription write landed.
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if delErr := p.redis.Del(relCtx, dedupKey).Err(); delErr != nil {
			p.logger.Warn("webhook dedup release failed",
				slog.String("event", event.ID), slog.Any("error", delErr))
		}
	}
	return applyErr
}

func (p *WebhookProcessor) applySubscription(ctx context.Context, event ProviderEvent, status SubscriptionStatus) error {
	sub := Subscription{
		ID:                 event.Subscription.ID,
		TeamID:             event.Subscription.TeamID,
		PlanSlug:           event.Subscription.PlanSlug,
		Status:             status,
		AnchorAt:           event.Subscription.AnchorAt,
		CurrentPeriodStart: event.Subscription.CurrentPeriodStart,
		CurrentPeriodEnd:   event.Subscription.CurrentPeriodEnd,
	}
	if _, err := p.repo.UpsertSubscription(ctx, sub); err != nil {
		return shared.Unavailable(err)
	}
	return nil
}
