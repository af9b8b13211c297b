package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-provisioner/internal/subscriptions"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
	"github.com/angelmondragon/storefront-provisioner/pkg/logger"
)

const (
	defaultRenewalLimit = 100
	// maxRenewalCatchUp bounds how many lapsed periods one run advances a
	// single subscription through.
	maxRenewalCatchUp = 24
)

type subscriptionRenewer interface {
	ListDueForRenewal(ctx context.Context, now time.Time, limit int) ([]subscriptions.SubscriptionDTO, error)
	Renew(ctx context.Context, merchantID uuid.UUID) (*subscriptions.SubscriptionDTO, error)
	MarkPastDue(ctx context.Context, merchantID uuid.UUID) (*subscriptions.SubscriptionDTO, error)
}

// SubscriptionRenewalJobParams configures the period rollover job.
type SubscriptionRenewalJobParams struct {
	Logger        *logger.Logger
	Subscriptions subscriptionRenewer
	Limit         int
	Now           func() time.Time
}

// NewSubscriptionRenewalJob builds a job that rolls lapsed subscriptions into
// their next period, cancels those flagged to end, and marks the rest past due.
func NewSubscriptionRenewalJob(params SubscriptionRenewalJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription renewer required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultRenewalLimit
	}
	return &subscriptionRenewalJob{
		logg:  params.Logger,
		subs:  params.Subscriptions,
		now:   now,
		limit: limit,
	}, nil
}

type subscriptionRenewalJob struct {
	logg  *logger.Logger
	subs  subscriptionRenewer
	now   func() time.Time
	limit int
}

func (j *subscriptionRenewalJob) Name() string { return "subscription-renewal" }

func (j *subscriptionRenewalJob) Run(ctx context.Context) error {
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"job":   j.Name(),
		"event": "cron.job",
	})
	now := j.now().UTC()
	due, err := j.subs.ListDueForRenewal(logCtx, now, j.limit)
	if err != nil {
		return fmt.Errorf("list subscriptions due for renewal: %w", err)
	}

	var errs error
	renewed, cancelled, pastDue := 0, 0, 0
	for i := range due {
		sub := &due[i]
		if !sub.AutoRenew && !sub.CancelAtPeriodEnd {
			if _, err := j.subs.MarkPastDue(logCtx, sub.MerchantID); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("mark subscription %s past due: %w", sub.ID, err))
				continue
			}
			pastDue++
			continue
		}
		final, err := j.rollForward(logCtx, sub.MerchantID, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("renew subscription %s: %w", sub.ID, err))
			continue
		}
		if final.Status == enums.SubscriptionStatusCancelled {
			cancelled++
			continue
		}
		renewed++
	}

	reportCtx := j.logg.WithFields(logCtx, map[string]any{
		"candidates": len(due),
		"renewed":    renewed,
		"cancelled":  cancelled,
		"past_due":   pastDue,
	})
	j.logg.Info(reportCtx, "subscription renewal loop complete")
	return errs
}

// rollForward renews until the current period covers now, so a worker that
// was down for several cycles does not leave subscriptions behind.
func (j *subscriptionRenewalJob) rollForward(ctx context.Context, merchantID uuid.UUID, now time.Time) (*subscriptions.SubscriptionDTO, error) {
	var current *subscriptions.SubscriptionDTO
	for i := 0; i < maxRenewalCatchUp; i++ {
		next, err := j.subs.Renew(ctx, merchantID)
		if err != nil {
			return nil, err
		}
		current = next
		if current.Status != enums.SubscriptionStatusActive || current.CurrentPeriodEnd.After(now) {
			return current, nil
		}
	}
	return current, nil
}
