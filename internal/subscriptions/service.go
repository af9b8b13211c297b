package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-provisioner/pkg/db/models"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-provisioner/pkg/errors"
)

type merchantReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Merchant, error)
}

type planReader interface {
	FindByID(ctx context.Context, id string) (*models.Plan, error)
}

// Service binds merchants to plans and moves subscriptions through their
// billing periods.
type Service interface {
	Bind(ctx context.Context, merchantID uuid.UUID, planID string, billingCycleMonths int) (*SubscriptionDTO, error)
	Get(ctx context.Context, merchantID uuid.UUID) (*SubscriptionDTO, error)
	Cancel(ctx context.Context, merchantID uuid.UUID, atPeriodEnd bool) (*SubscriptionDTO, error)
	Renew(ctx context.Context, merchantID uuid.UUID) (*SubscriptionDTO, error)
	MarkPastDue(ctx context.Context, merchantID uuid.UUID) (*SubscriptionDTO, error)
	ListDueForRenewal(ctx context.Context, now time.Time, limit int) ([]SubscriptionDTO, error)
}

type service struct {
	repo      Repository
	merchants merchantReader
	plans     planReader
	now       func() time.Time
}

// Option customises the subscription service.
type Option func(*service)

// WithClock overrides the time source used for period boundaries.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds a subscription service.
func NewService(repo Repository, merchants merchantReader, plans planReader, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	if merchants == nil {
		return nil, fmt.Errorf("merchant reader required")
	}
	if plans == nil {
		return nil, fmt.Errorf("plan reader required")
	}
	s := &service{
		repo:      repo,
		merchants: merchants,
		plans:     plans,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Bind links a merchant to a plan starting now. The amount and currency are
// copied from the plan so later plan edits leave the subscription alone.
func (s *service) Bind(ctx context.Context, merchantID uuid.UUID, planID string, billingCycleMonths int) (*SubscriptionDTO, error) {
	cycle, err := enums.BillingCycleForMonths(billingCycleMonths)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "billingCycleMonths must be 1, 6 or 12").
			WithDetails(map[string]any{"field": "billingCycleMonths", "value": billingCycleMonths})
	}

	merchant, err := s.merchants.FindByID(ctx, merchantID)
	if err != nil {
		return nil, lookupError(err, "merchant", merchantID.String())
	}
	if merchant.Status == enums.MerchantStatusClosed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "merchant is closed").
			WithDetails(map[string]any{"merchantId": merchantID.String()})
	}
	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		return nil, lookupError(err, "plan", planID)
	}
	if !plan.IsActive {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "plan %s is not active", planID).
			WithDetails(map[string]any{"planId": planID})
	}

	now := s.now()
	start, end := periodFor(now, billingCycleMonths, 0)
	sub := &models.Subscription{
		MerchantID:         merchantID,
		PlanID:             plan.ID,
		Status:             enums.SubscriptionStatusActive,
		BillingCycle:       cycle,
		BillingCycleMonths: billingCycleMonths,
		Amount:             amountFor(plan, billingCycleMonths),
		Currency:           plan.Currency,
		BillingAnchor:      now,
		RenewalCount:       0,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
		CancelAtPeriodEnd:  false,
		AutoRenew:          true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	created, err := s.repo.CreateIfAbsent(ctx, sub)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
	}
	if created {
		return FromModel(sub), nil
	}

	existing, err := s.repo.FindByMerchant(ctx, merchantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if existing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "subscription changed concurrently, retry").
			WithDetails(map[string]any{"merchantId": merchantID.String()})
	}
	if existing.Status != enums.SubscriptionStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "merchant already has a subscription").
			WithDetails(map[string]any{"subscriptionId": existing.ID.String(), "status": existing.Status})
	}

	// rebind the cancelled row in place
	sub.ID = existing.ID
	sub.CreatedAt = existing.CreatedAt
	sub.CancelledAt = nil
	cancelled := enums.SubscriptionStatusCancelled
	ok, err := s.repo.UpdateWhere(ctx, sub, Guard{Status: &cancelled})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rebind subscription")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "merchant already has a subscription").
			WithDetails(map[string]any{"subscriptionId": existing.ID.String()})
	}
	return FromModel(sub), nil
}

func (s *service) Get(ctx context.Context, merchantID uuid.UUID) (*SubscriptionDTO, error) {
	sub, err := s.load(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	return FromModel(sub), nil
}

// Cancel stops renewal. With atPeriodEnd the subscription stays active until
// its current period ends; otherwise it is cancelled immediately. Cancelling a
// cancelled subscription returns it unchanged.
func (s *service) Cancel(ctx context.Context, merchantID uuid.UUID, atPeriodEnd bool) (*SubscriptionDTO, error) {
	sub, err := s.load(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if sub.Status == enums.SubscriptionStatusCancelled {
		return FromModel(sub), nil
	}
	guard := guardOf(sub)
	now := s.now()
	sub.AutoRenew = false
	if atPeriodEnd {
		sub.CancelAtPeriodEnd = true
	} else {
		sub.Status = enums.SubscriptionStatusCancelled
		sub.CancelledAt = &now
	}
	sub.UpdatedAt = now
	if err := s.write(ctx, sub, guard, "cancel subscription"); err != nil {
		return nil, err
	}
	return FromModel(sub), nil
}

// Renew shifts the current period forward by one cycle in place. Periods are
// derived from the billing anchor. A subscription flagged to cancel at period
// end is cancelled instead.
func (s *service) Renew(ctx context.Context, merchantID uuid.UUID) (*SubscriptionDTO, error) {
	sub, err := s.load(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if sub.Status == enums.SubscriptionStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cancelled subscriptions cannot be renewed").
			WithDetails(map[string]any{"subscriptionId": sub.ID.String(), "status": sub.Status})
	}

	now := s.now()
	expected := sub.RenewalCount
	if sub.CancelAtPeriodEnd {
		sub.Status = enums.SubscriptionStatusCancelled
		sub.AutoRenew = false
		sub.CancelledAt = &now
	} else {
		sub.RenewalCount++
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd = periodFor(sub.BillingAnchor, sub.BillingCycleMonths, sub.RenewalCount)
		sub.Status = enums.SubscriptionStatusActive
	}
	sub.UpdatedAt = now

	ok, err := s.repo.UpdateWhere(ctx, sub, Guard{RenewalCount: &expected})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "renew subscription")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "subscription was renewed concurrently").
			WithDetails(map[string]any{"subscriptionId": sub.ID.String()})
	}
	return FromModel(sub), nil
}

// MarkPastDue flags an active subscription whose period lapsed without renewal.
func (s *service) MarkPastDue(ctx context.Context, merchantID uuid.UUID) (*SubscriptionDTO, error) {
	sub, err := s.load(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if sub.Status != enums.SubscriptionStatusActive {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "subscription is %s", sub.Status).
			WithDetails(map[string]any{"subscriptionId": sub.ID.String(), "status": sub.Status})
	}
	guard := guardOf(sub)
	sub.Status = enums.SubscriptionStatusPastDue
	sub.UpdatedAt = s.now()
	if err := s.write(ctx, sub, guard, "mark subscription past due"); err != nil {
		return nil, err
	}
	return FromModel(sub), nil
}

// guardOf pins the status and renewal count sub was loaded with.
func guardOf(sub *models.Subscription) Guard {
	status, count := sub.Status, sub.RenewalCount
	return Guard{Status: &status, RenewalCount: &count}
}

// write stores sub when the row still matches guard.
func (s *service) write(ctx context.Context, sub *models.Subscription, guard Guard, action string) error {
	ok, err := s.repo.UpdateWhere(ctx, sub, guard)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConflict, "subscription changed concurrently, retry").
			WithDetails(map[string]any{"subscriptionId": sub.ID.String()})
	}
	return nil
}

func (s *service) ListDueForRenewal(ctx context.Context, now time.Time, limit int) ([]SubscriptionDTO, error) {
	rows, err := s.repo.ListDue(ctx, now.UTC(), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due subscriptions")
	}
	out := make([]SubscriptionDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) load(ctx context.Context, merchantID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.repo.FindByMerchant(ctx, merchantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "merchant %s has no subscription", merchantID).
			WithDetails(map[string]any{"resource": "subscription", "merchantId": merchantID.String()})
	}
	return sub, nil
}

// amountFor charges the plan price for the plan's own cycle and the monthly
// base price times the month count for any other cycle.
func amountFor(plan *models.Plan, months int) decimal.Decimal {
	if months == plan.BillingCycleMonths {
		return plan.Price.Round(2)
	}
	return plan.BasePrice.Mul(decimal.NewFromInt(int64(months))).Round(2)
}

func lookupError(err error, resource, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "%s %s not found", resource, id).
			WithDetails(map[string]any{"resource": resource, "id": id})
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+resource)
}
