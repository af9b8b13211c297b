package subscriptions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-provisioner/internal/merchants"
	"github.com/angelmondragon/storefront-provisioner/internal/plans"
	"github.com/angelmondragon/storefront-provisioner/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-provisioner/pkg/db/models"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-provisioner/pkg/errors"
)

type fixture struct {
	db       *gorm.DB
	svc      Service
	clock    *manualClock
	merchant uuid.UUID
}

type manualClock struct {
	mu sync.Mutex
	at time.Time
}

func (c *manualClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *manualClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = t
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	clock := &manualClock{at: time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)}

	merchant := &models.Merchant{
		Name:     "m1",
		Email:    "m1@shop.test",
		Status:   enums.MerchantStatusActive,
		Settings: datatypes.NewJSONType(models.MerchantSettings{BrandName: "m1", Currency: enums.CurrencyUSD, Timezone: "UTC"}),
	}
	require.NoError(t, conn.Create(merchant).Error)
	createPlan(t, conn, "plan_x", "29.99", "29.99", 1)

	svc, err := NewService(NewRepository(conn), merchants.NewRepository(conn), plans.NewRepository(conn), WithClock(clock.now))
	require.NoError(t, err)
	return &fixture{db: conn, svc: svc, clock: clock, merchant: merchant.ID}
}

func createPlan(t *testing.T, conn *gorm.DB, id, base, price string, months int) {
	t.Helper()
	cycle, err := enums.BillingCycleForMonths(months)
	require.NoError(t, err)
	require.NoError(t, conn.Create(&models.Plan{
		ID:                 id,
		Name:               id,
		BasePrice:          decimal.RequireFromString(base),
		Price:              decimal.RequireFromString(price),
		Currency:           enums.CurrencyUSD,
		BillingCycle:       cycle,
		BillingCycleMonths: months,
		Features:           datatypes.JSON(`{}`),
		IsActive:           true,
	}).Error)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	conn := dbtest.Open(t)
	_, err := NewService(nil, merchants.NewRepository(conn), plans.NewRepository(conn))
	require.Error(t, err)
	_, err = NewService(NewRepository(conn), nil, plans.NewRepository(conn))
	require.Error(t, err)
	_, err = NewService(NewRepository(conn), merchants.NewRepository(conn), nil)
	require.Error(t, err)
}

func TestBindMonthEndScenario(t *testing.T) {
	f := newFixture(t)

	sub, err := f.svc.Bind(context.Background(), f.merchant, "plan_x", 1)
	require.NoError(t, err)
	requireInstant(t, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), sub.CurrentPeriodStart)
	requireInstant(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), sub.CurrentPeriodEnd)
	require.True(t, decimal.RequireFromString("29.99").Equal(sub.Amount))
	require.Equal(t, enums.CurrencyUSD, sub.Currency)
	require.Equal(t, enums.SubscriptionStatusActive, sub.Status)
	require.True(t, sub.AutoRenew)
	require.False(t, sub.CancelAtPeriodEnd)
	require.Equal(t, enums.BillingCycleMonthly, sub.BillingCycle)
}

func TestBindLeapYear(t *testing.T) {
	f := newFixture(t)
	f.clock.set(time.Date(2024, 1, 31, 9, 30, 0, 0, time.UTC))

	sub, err := f.svc.Bind(context.Background(), f.merchant, "plan_x", 1)
	require.NoError(t, err)
	requireInstant(t, time.Date(2024, 2, 29, 9, 30, 0, 0, time.UTC), sub.CurrentPeriodEnd)
}

func TestBindOtherCycleUsesBasePrice(t *testing.T) {
	f := newFixture(t)

	sub, err := f.svc.Bind(context.Background(), f.merchant, "plan_x", 12)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("359.88").Equal(sub.Amount), "got %s", sub.Amount)
	requireInstant(t, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), sub.CurrentPeriodEnd)
	require.Equal(t, enums.BillingCycleYearly, sub.BillingCycle)
}

func TestBindAmountIsSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Bind(ctx, f.merchant, "plan_x", 1)
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&models.Plan{}).Where("id = ?", "plan_x").
		Updates(map[string]any{"price": decimal.RequireFromString("49.99"), "base_price": decimal.RequireFromString("49.99")}).Error)

	got, err := f.svc.Get(ctx, f.merchant)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("29.99").Equal(got.Amount))

	renewed, err := f.svc.Renew(ctx, f.merchant)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("29.99").Equal(renewed.Amount), "renewal must keep the bound amount")
}

func TestBindValidationAndNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, months := range []int{0, -1, 3, 24} {
		_, err := f.svc.Bind(ctx, f.merchant, "plan_x", months)
		require.Truef(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "months=%d got %v", months, err)
	}

	missing := uuid.New()
	_, err := f.svc.Bind(ctx, missing, "plan_x", 1)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeNotFound, typed.Code())
	require.Equal(t, "merchant", typed.DetailMap()["resource"])
	require.Equal(t, missing.String(), typed.DetailMap()["id"])

	_, err = f.svc.Bind(ctx, f.merchant, "plan_nope", 1)
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeNotFound, typed.Code())
	require.Equal(t, "plan", typed.DetailMap()["resource"])
	require.Equal(t, "plan_nope", typed.DetailMap()["id"])
}

func TestBindTwiceConflictsAndRebindAfterCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Bind(ctx, f.merchant, "plan_x", 1)
	require.NoError(t, err)

	_, err = f.svc.Bind(ctx, f.merchant, "plan_x", 6)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)

	_, err = f.svc.Cancel(ctx, f.merchant, false)
	require.NoError(t, err)

	f.clock.set(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	rebound, err := f.svc.Bind(ctx, f.merchant, "plan_x", 6)
	require.NoError(t, err)
	require.Equal(t, first.ID, rebound.ID, "rebind reuses the merchant's row")
	require.Equal(t, enums.SubscriptionStatusActive, rebound.Status)
	require.Nil(t, rebound.CancelledAt)
	requireInstant(t, time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC), rebound.CurrentPeriodEnd)

	var count int64
	require.NoError(t, f.db.Model(&models.Subscription{}).Where("merchant_id = ?", f.merchant).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestConcurrentBindCreatesOneSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Bind(ctx, f.merchant, "plan_x", 1)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "unexpected error %v", err)
	}
	require.Equal(t, 1, succeeded)

	var count int64
	require.NoError(t, f.db.Model(&models.Subscription{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestRenewFromMonthEndAnchor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Bind(ctx, f.merchant, "plan_x", 1)
	require.NoError(t, err)

	first, err := f.svc.Renew(ctx, f.merchant)
	require.NoError(t, err)
	requireInstant(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), first.CurrentPeriodStart)
	requireInstant(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), first.CurrentPeriodEnd)
	require.Equal(t, 1, first.RenewalCount)

	second, err := f.svc.Renew(ctx, f.merchant)
	require.NoError(t, err)
	requireInstant(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), second.CurrentPeriodStart)
	requireInstant(t, time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC), second.CurrentPeriodEnd)
}

func TestCancelAtPeriodEndThenRenewCancels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Bind(ctx, f.merchant, "plan_x", 1)
	require.NoError(t, err)

	sub, err := f.svc.Cancel(ctx, f.merchant, true)
	require.NoError(t, err)
	require.Equal(t, enums.SubscriptionStatusActive, sub.Status)
	require.True(t, sub.CancelAtPeriodEnd)
	require.False(t, sub.AutoRenew)

	f.clock.set(time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC))
	sub, err = f.svc.Renew(ctx, f.merchant)
	require.NoError(t, err)
	require.Equal(t, enums.SubscriptionStatusCancelled, sub.Status)
	require.NotNil(t, sub.CancelledAt)
	requireInstant(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), sub.CurrentPeriodEnd)

	_, err = f.svc.Renew(ctx, f.merchant)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	again, err := f.svc.Cancel(ctx, f.merchant, false)
	require.NoError(t, err, "cancel is idempotent")
	require.Equal(t, enums.SubscriptionStatusCancelled, again.Status)
}

func TestListDueAndMarkPastDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Bind(ctx, f.merchant, "plan_x", 1)
	require.NoError(t, err)

	due, err := f.svc.ListDueForRenewal(ctx, time.Date(2025, 2, 27, 0, 0, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	require.Empty(t, due)

	due, err = f.svc.ListDueForRenewal(ctx, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, f.merchant, due[0].MerchantID)

	sub, err := f.svc.MarkPastDue(ctx, f.merchant)
	require.NoError(t, err)
	require.Equal(t, enums.SubscriptionStatusPastDue, sub.Status)

	due, err = f.svc.ListDueForRenewal(ctx, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	require.Empty(t, due, "past due subscriptions are not picked up again")

	_, err = f.svc.MarkPastDue(ctx, f.merchant)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	renewed, err := f.svc.Renew(ctx, f.merchant)
	require.NoError(t, err)
	require.Equal(t, enums.SubscriptionStatusActive, renewed.Status)
}

func TestGetWithoutSubscriptionIsNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Get(context.Background(), f.merchant)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeNotFound, typed.Code())
	require.Equal(t, f.merchant.String(), typed.DetailMap()["merchantId"])
}

func requireInstant(t *testing.T, want, got time.Time) {
	t.Helper()
	require.Truef(t, want.Equal(got), "expected %s got %s", want, got)
}

// interleavedRepository runs before ahead of the next guarded write.
type interleavedRepository struct {
	Repository
	before func()
}

func (r *interleavedRepository) UpdateWhere(ctx context.Context, sub *models.Subscription, guard Guard) (bool, error) {
	if before := r.before; before != nil {
		r.before = nil
		before()
	}
	return r.Repository.UpdateWhere(ctx, sub, guard)
}

func TestCancelDoesNotOverwriteConcurrentRenewal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Bind(ctx, f.merchant, "plan_x", 1)
	require.NoError(t, err)

	repo := &interleavedRepository{Repository: NewRepository(f.db)}
	svc, err := NewService(repo, merchants.NewRepository(f.db), plans.NewRepository(f.db), WithClock(f.clock.now))
	require.NoError(t, err)

	f.clock.set(time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC))
	repo.before = func() {
		_, err := f.svc.Renew(ctx, f.merchant)
		require.NoError(t, err)
	}
	_, err = svc.Cancel(ctx, f.merchant, false)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	var stored models.Subscription
	require.NoError(t, f.db.Where("merchant_id = ?", f.merchant).First(&stored).Error)
	require.Equal(t, enums.SubscriptionStatusActive, stored.Status)
	require.Equal(t, 1, stored.RenewalCount)
	require.Nil(t, stored.CancelledAt)

	cancelled, err := svc.Cancel(ctx, f.merchant, false)
	require.NoError(t, err)
	require.Equal(t, enums.SubscriptionStatusCancelled, cancelled.Status)
}
