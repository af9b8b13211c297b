package plans

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-provisioner/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-provisioner/pkg/db/models"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-provisioner/pkg/errors"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	return svc, conn
}

func TestNewServiceRequiresRepo(t *testing.T) {
	_, err := NewService(nil)
	require.Error(t, err)
}

func TestCreateAndGetPlan(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	price := decimal.RequireFromString("29.99")

	created, err := svc.Create(ctx, CreatePlanInput{
		ID:                 "plan_x",
		Name:               "Starter",
		BasePrice:          price,
		Price:              &price,
		BillingCycleMonths: 1,
		Features: FeatureMap{
			"custom_domain":    BoolFeature(true),
			"max_products":     NumberFeature(100),
			"payment_gateways": StringListFeature("stripe", "cod"),
		},
	})
	require.NoError(t, err)
	require.Equal(t, "plan_x", created.ID)
	require.Equal(t, enums.BillingCycleMonthly, created.BillingCycle)
	require.Equal(t, enums.CurrencyUSD, created.Currency)
	require.True(t, created.IsActive)

	got, err := svc.Get(ctx, "plan_x")
	require.NoError(t, err)
	require.True(t, price.Equal(got.Price))
	require.Len(t, got.Features, 3)
	for key, value := range created.Features {
		require.Truef(t, value.Equal(got.Features[key]), "feature %s changed after persistence", key)
	}
}

func TestCreatePlanDefaultsPriceFromBase(t *testing.T) {
	svc, _ := newTestService(t)

	plan, err := svc.Create(context.Background(), CreatePlanInput{
		Name:               "Growth",
		BasePrice:          decimal.RequireFromString("10.00"),
		BillingCycleMonths: 6,
	})
	require.NoError(t, err)
	require.Regexp(t, `^plan_[0-9a-f]{12}$`, plan.ID)
	require.Equal(t, enums.BillingCycleSemiannual, plan.BillingCycle)
	require.True(t, decimal.RequireFromString("60").Equal(plan.Price))
}

func TestCreatePlanValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := map[string]struct {
		input CreatePlanInput
		field string
	}{
		"cycle":    {CreatePlanInput{Name: "A", BillingCycleMonths: 3}, "billingCycleMonths"},
		"zero":     {CreatePlanInput{Name: "A", BillingCycleMonths: 0}, "billingCycleMonths"},
		"name":     {CreatePlanInput{BillingCycleMonths: 1}, "name"},
		"id":       {CreatePlanInput{ID: "Bad ID!", Name: "A", BillingCycleMonths: 1}, "id"},
		"negative": {CreatePlanInput{Name: "A", BillingCycleMonths: 1, BasePrice: decimal.NewFromInt(-1)}, "basePrice"},
		"currency": {CreatePlanInput{Name: "A", BillingCycleMonths: 1, Currency: "XYZ"}, "currency"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.input)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			require.Equal(t, pkgerrors.CodeValidation, typed.Code())
			require.Equal(t, tc.field, typed.DetailMap()["field"])
		})
	}

	_, err := svc.Create(ctx, CreatePlanInput{
		Name:               "A",
		BillingCycleMonths: 1,
		Features:           FeatureMap{"max_products": StringFeature("many")},
	})
	require.Equal(t, "max_products", pkgerrors.As(err).DetailMap()["feature"])
}

func TestCreatePlanDuplicateIsConflict(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	input := CreatePlanInput{ID: "plan_dup", Name: "Dup", BillingCycleMonths: 1}

	_, err := svc.Create(ctx, input)
	require.NoError(t, err)
	_, err = svc.Create(ctx, input)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)
}

func TestGetPlanNotFoundNamesID(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Get(context.Background(), "plan_missing")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeNotFound, typed.Code())
	require.Equal(t, "plan_missing", typed.DetailMap()["id"])
	require.Equal(t, "plan", typed.DetailMap()["resource"])
}

func TestUpdatePlanEditsInPlace(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, CreatePlanInput{ID: "plan_u", Name: "Old", BasePrice: decimal.NewFromInt(5), BillingCycleMonths: 1})
	require.NoError(t, err)

	newPrice := decimal.RequireFromString("7.50")
	newName := "New"
	features := FeatureMap{"analytics": StringFeature("advanced")}
	popular := true
	updated, err := svc.Update(ctx, "plan_u", UpdatePlanInput{Name: &newName, Price: &newPrice, Features: &features, IsPopular: &popular})
	require.NoError(t, err)
	require.Equal(t, "New", updated.Name)
	require.True(t, newPrice.Equal(updated.Price))
	require.True(t, updated.IsPopular)

	badFeatures := FeatureMap{"analytics": StringFeature("ultra")}
	_, err = svc.Update(ctx, "plan_u", UpdatePlanInput{Features: &badFeatures})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	got, err := svc.Get(ctx, "plan_u")
	require.NoError(t, err)
	v, _ := got.Features["analytics"].StringValue()
	require.Equal(t, "advanced", v)
}

func TestListPlansOrdersAndFilters(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	inactive := false
	for _, in := range []CreatePlanInput{
		{ID: "plan_c", Name: "C", BillingCycleMonths: 1, SortOrder: 2},
		{ID: "plan_a", Name: "A", BillingCycleMonths: 1, SortOrder: 1},
		{ID: "plan_b", Name: "B", BillingCycleMonths: 12, SortOrder: 1, IsActive: &inactive},
	} {
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}

	all, err := svc.List(ctx, false)
	require.NoError(t, err)
	require.Equal(t, []string{"plan_a", "plan_b", "plan_c"}, planIDs(all))

	active, err := svc.List(ctx, true)
	require.NoError(t, err)
	require.Equal(t, []string{"plan_a", "plan_c"}, planIDs(active))
}

func TestDeletePlanRefusedWhileSubscribed(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, CreatePlanInput{ID: "plan_d", Name: "D", BillingCycleMonths: 1})
	require.NoError(t, err)

	now := time.Now().UTC()
	sub := &models.Subscription{
		MerchantID:         uuid.New(),
		PlanID:             "plan_d",
		Status:             enums.SubscriptionStatusActive,
		BillingCycle:       enums.BillingCycleMonthly,
		BillingCycleMonths: 1,
		Currency:           enums.CurrencyUSD,
		BillingAnchor:      now,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
	}
	require.NoError(t, conn.Create(sub).Error)

	err = svc.Delete(ctx, "plan_d")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)

	require.NoError(t, conn.Model(sub).Update("status", enums.SubscriptionStatusCancelled).Error)
	require.NoError(t, svc.Delete(ctx, "plan_d"))

	_, err = svc.Get(ctx, "plan_d")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	require.True(t, pkgerrors.IsCode(svc.Delete(ctx, "plan_d"), pkgerrors.CodeNotFound))
}

func TestServiceDependencyError(t *testing.T) {
	svc, err := NewService(&failingRepo{err: errors.New("connection refused")})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "plan_x")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	require.True(t, pkgerrors.As(err).Retryable())
}

func planIDs(plans []PlanDTO) []string {
	ids := make([]string, 0, len(plans))
	for _, p := range plans {
		ids = append(ids, p.ID)
	}
	return ids
}

type failingRepo struct {
	Repository
	err error
}

func (r *failingRepo) FindByID(context.Context, string) (*models.Plan, error) {
	return nil, r.err
}

// vanishingRepo deletes the plan right before the update reaches the table.
type vanishingRepo struct {
	Repository
}

func (r vanishingRepo) Update(ctx context.Context, plan *models.Plan) error {
	if err := r.Repository.Delete(ctx, plan.ID); err != nil {
		return err
	}
	return r.Repository.Update(ctx, plan)
}

func TestUpdatePlanDoesNotRestoreDeletedPlan(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()
	seed, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	_, err = seed.Create(ctx, CreatePlanInput{ID: "plan_gone", Name: "Gone", BillingCycleMonths: 1})
	require.NoError(t, err)

	svc, err := NewService(vanishingRepo{Repository: NewRepository(conn)})
	require.NoError(t, err)
	name := "Renamed"
	_, err = svc.Update(ctx, "plan_gone", UpdatePlanInput{Name: &name})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)

	var rows int64
	require.NoError(t, conn.Model(&models.Plan{}).Where("id = ?", "plan_gone").Count(&rows).Error)
	require.Zero(t, rows)
}
