package provisioning

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-provisioner/internal/deployments"
	"github.com/angelmondragon/storefront-provisioner/internal/domains"
	"github.com/angelmondragon/storefront-provisioner/internal/merchants"
	"github.com/angelmondragon/storefront-provisioner/internal/plans"
	"github.com/angelmondragon/storefront-provisioner/internal/subscriptions"
	"github.com/angelmondragon/storefront-provisioner/internal/tenantdb"
	"github.com/angelmondragon/storefront-provisioner/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-provisioner/pkg/db/models"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-provisioner/pkg/errors"
	"github.com/angelmondragon/storefront-provisioner/pkg/metrics"
)

const edgeIP = "203.0.113.10"

type memoryDatastore struct {
	mu      sync.Mutex
	owners  map[string]string
	creates int
}

func (m *memoryDatastore) Engine() enums.DatastoreEngine { return enums.DatastoreEnginePostgres }

func (m *memoryDatastore) NamespaceExists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.owners[name]
	return ok, nil
}

func (m *memoryDatastore) NamespaceOwner(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owners[name], nil
}

func (m *memoryDatastore) CreateNamespace(_ context.Context, name, merchantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	m.owners[name] = merchantID
	return nil
}

func (m *memoryDatastore) MarkNamespace(_ context.Context, name, merchantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[name] = merchantID
	return nil
}

func (m *memoryDatastore) SeedCollections(context.Context, string) ([]string, error) {
	return append([]string(nil), tenantdb.Collections...), nil
}

func (m *memoryDatastore) ConnectionString(name string) (string, error) {
	return "postgres://app:pw@db:5432/" + name, nil
}

func (m *memoryDatastore) Ping(context.Context) error  { return nil }
func (m *memoryDatastore) Close(context.Context) error { return nil }

type switchProvider struct {
	fail  error
	calls int
}

func (p *switchProvider) Name() string { return "test" }

func (p *switchProvider) Deploy(_ context.Context, r deployments.Release) (*deployments.Outcome, error) {
	p.calls++
	if p.fail != nil {
		return nil, p.fail
	}
	return &deployments.Outcome{DeploymentID: "dpl_" + r.Project, Status: "ready"}, nil
}

type edgeResolver struct{}

func (edgeResolver) LookupIPAddr(context.Context, string) ([]net.IPAddr, error) {
	return []net.IPAddr{{IP: net.ParseIP(edgeIP)}}, nil
}
func (edgeResolver) LookupCNAME(_ context.Context, host string) (string, error) { return host, nil }
func (edgeResolver) LookupTXT(context.Context, string) ([]string, error)        { return nil, nil }

type harness struct {
	pipeline *Pipeline
	db       *gorm.DB
	store    *memoryDatastore
	provider *switchProvider
	reg      *prometheus.Registry
	merchant uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	now := func() time.Time { return time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC) }

	merchant := &models.Merchant{
		Name:     "m1",
		Email:    "m1@shop.test",
		Status:   enums.MerchantStatusTrial,
		Settings: datatypes.NewJSONType(models.MerchantSettings{BrandName: "m1", Currency: enums.CurrencyUSD, Timezone: "UTC"}),
	}
	require.NoError(t, conn.Create(merchant).Error)
	require.NoError(t, conn.Create(&models.Plan{
		ID:                 "plan_x",
		Name:               "Starter",
		BasePrice:          decimal.RequireFromString("29.99"),
		Price:              decimal.RequireFromString("29.99"),
		Currency:           enums.CurrencyUSD,
		BillingCycle:       enums.BillingCycleMonthly,
		BillingCycleMonths: 1,
		Features:           datatypes.JSON(`{}`),
		IsActive:           true,
	}).Error)

	merchantRepo := merchants.NewRepository(conn)
	subSvc, err := subscriptions.NewService(subscriptions.NewRepository(conn), merchantRepo, plans.NewRepository(conn), subscriptions.WithClock(now))
	require.NoError(t, err)

	store := &memoryDatastore{owners: map[string]string{}}
	dbSvc, err := tenantdb.NewService(tenantdb.NewRepository(conn), merchantRepo, store, tenantdb.Config{CallTimeout: time.Second})
	require.NoError(t, err)

	provider := &switchProvider{}
	deploySvc, err := deployments.NewService(deployments.NewRepository(conn), merchantRepo, dbSvc, provider,
		deployments.Config{RootDomain: "stores.test", Timeout: time.Second})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.NewProvisioningMetrics(reg)
	domainSvc, err := domains.NewService(domains.NewRepository(conn), merchantRepo, edgeResolver{},
		domains.Config{EdgeIPv4: edgeIP, LookupTimeout: time.Second},
		domains.WithDomainBinder(deploySvc), domains.WithMetrics(m))
	require.NoError(t, err)

	p, err := NewPipeline(subSvc, dbSvc, deploySvc, domainSvc, m, nil)
	require.NoError(t, err)
	return &harness{pipeline: p, db: conn, store: store, provider: provider, reg: reg, merchant: merchant.ID}
}

func TestRunProvisionsEverything(t *testing.T) {
	h := newHarness(t)

	res, err := h.pipeline.Run(context.Background(), Input{
		MerchantID:         h.merchant,
		PlanID:             "plan_x",
		BillingCycleMonths: 1,
		Domain:             "shop.example.com",
	})
	require.NoError(t, err)
	require.Equal(t, []string{StepSubscription, StepDatabase, StepDeployment, StepDomain}, res.CompletedSteps)
	require.Empty(t, res.SkippedSteps)

	require.Equal(t, "29.99", res.Subscription.Amount.StringFixed(2))
	require.True(t, res.Subscription.CurrentPeriodEnd.Equal(time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, enums.TenantDatabaseStatusReady, res.Database.Status)
	require.Equal(t, enums.DeploymentStatusActive, res.Deployment.DeploymentStatus)
	require.True(t, res.Domain.Verified)

	var dep models.Deployment
	require.NoError(t, h.db.Where("merchant_id = ?", h.merchant).First(&dep).Error)
	require.Equal(t, enums.DeploymentTypeCustomDomain, dep.DeploymentType)
	require.Equal(t, "https://shop.example.com", dep.DeploymentURL)
}

func TestRunTwiceSkipsSatisfiedSteps(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	in := Input{MerchantID: h.merchant, PlanID: "plan_x", BillingCycleMonths: 1}

	_, err := h.pipeline.Run(ctx, in)
	require.NoError(t, err)
	res, err := h.pipeline.Run(ctx, in)
	require.NoError(t, err)

	require.Equal(t, []string{StepSubscription, StepDatabase, StepDeployment}, res.SkippedSteps)
	require.Equal(t, 1, h.store.creates)
	require.Equal(t, 1, h.provider.calls)

	for _, model := range []any{&models.Subscription{}, &models.TenantDatabase{}, &models.Deployment{}} {
		var n int64
		require.NoError(t, h.db.Model(model).Where("merchant_id = ?", h.merchant).Count(&n).Error)
		require.EqualValues(t, 1, n)
	}
}

func TestRunReportsFailingStepAndResumes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	in := Input{MerchantID: h.merchant, PlanID: "plan_x", BillingCycleMonths: 1}

	h.provider.fail = errors.New("provider unavailable")
	res, err := h.pipeline.Run(ctx, in)
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	details := pkgerrors.As(err).DetailMap()
	require.Equal(t, StepDeployment, details["step"])
	require.Equal(t, []string{StepSubscription, StepDatabase}, details["completed_steps"])
	require.Equal(t, true, details["resumable"])
	require.Equal(t, true, details["partial_state"])
	require.Equal(t, []string{StepSubscription, StepDatabase}, res.CompletedSteps)

	h.provider.fail = nil
	res, err = h.pipeline.Run(ctx, in)
	require.NoError(t, err)
	require.Equal(t, []string{StepSubscription, StepDatabase}, res.SkippedSteps)
	require.Equal(t, enums.DeploymentStatusActive, res.Deployment.DeploymentStatus)
	require.Equal(t, 1, h.store.creates)

	got := stepCount(t, h.reg, StepDeployment, metrics.OutcomeFailure)
	require.Equal(t, 1.0, got)
}

func TestRunUnknownPlanLeavesNothingBehind(t *testing.T) {
	h := newHarness(t)

	_, err := h.pipeline.Run(context.Background(), Input{MerchantID: h.merchant, PlanID: "plan_missing", BillingCycleMonths: 1})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	details := pkgerrors.As(err).DetailMap()
	require.Equal(t, StepSubscription, details["step"])
	require.Equal(t, false, details["partial_state"])
	require.Equal(t, "plan", details["resource"])

	var n int64
	require.NoError(t, h.db.Model(&models.TenantDatabase{}).Count(&n).Error)
	require.Zero(t, n)
}

func stepCount(t *testing.T, reg *prometheus.Registry, step, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != "provisioner_provisioning_steps_total" {
			continue
		}
		for _, m := range fam.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["step"] == step && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
