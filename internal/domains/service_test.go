package domains

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-provisioner/internal/deployments"
	"github.com/angelmondragon/storefront-provisioner/internal/merchants"
	"github.com/angelmondragon/storefront-provisioner/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-provisioner/pkg/db/models"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-provisioner/pkg/errors"
	"github.com/angelmondragon/storefront-provisioner/pkg/metrics"
)

const edgeIP = "203.0.113.10"

type fakeResolver struct {
	mu   sync.Mutex
	a    map[string][]string
	errs map[string]error
	hits int
	// during runs after each A lookup, outside the lock.
	during func()
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{a: map[string][]string{}, errs: map[string]error{}}
}

func (f *fakeResolver) set(host string, ips ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.a[host] = ips
}

func (f *fakeResolver) LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error) {
	f.mu.Lock()
	during := f.during
	f.mu.Unlock()
	if during != nil {
		defer during()
	}
	return f.lookupA(ctx, host)
}

func (f *fakeResolver) lookupA(_ context.Context, host string) ([]net.IPAddr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits++
	if err := f.errs[host]; err != nil {
		return nil, err
	}
	ips, ok := f.a[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	out := make([]net.IPAddr, 0, len(ips))
	for _, ip := range ips {
		out = append(out, net.IPAddr{IP: net.ParseIP(ip)})
	}
	return out, nil
}

func (f *fakeResolver) LookupCNAME(_ context.Context, host string) (string, error) {
	return host + ".", nil
}

func (f *fakeResolver) LookupTXT(_ context.Context, name string) ([]string, error) {
	return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

type recordingBinder struct {
	attached []string
	detached int
	err      error
}

func (b *recordingBinder) AttachDomain(_ context.Context, _ uuid.UUID, domain string) (*deployments.DeploymentDTO, error) {
	b.attached = append(b.attached, domain)
	return &deployments.DeploymentDTO{}, b.err
}

func (b *recordingBinder) DetachDomain(context.Context, uuid.UUID) (*deployments.DeploymentDTO, error) {
	b.detached++
	return &deployments.DeploymentDTO{}, b.err
}

type fixture struct {
	svc      Service
	db       *gorm.DB
	resolver *fakeResolver
	binder   *recordingBinder
	reg      *prometheus.Registry
	merchant uuid.UUID
}

var checkedAt = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	resolver := newFakeResolver()
	binder := &recordingBinder{}
	reg := prometheus.NewRegistry()

	merchantID := createMerchant(t, conn, "m1")
	svc, err := NewService(NewRepository(conn), merchants.NewRepository(conn), resolver,
		Config{EdgeIPv4: edgeIP, LookupTimeout: time.Second},
		WithClock(func() time.Time { return checkedAt }),
		WithDomainBinder(binder),
		WithMetrics(metrics.NewProvisioningMetrics(reg)),
	)
	require.NoError(t, err)
	return &fixture{svc: svc, db: conn, resolver: resolver, binder: binder, reg: reg, merchant: merchantID}
}

func createMerchant(t *testing.T, conn *gorm.DB, name string) uuid.UUID {
	t.Helper()
	m := &models.Merchant{
		Name:     name,
		Email:    name + "@shop.test",
		Status:   enums.MerchantStatusActive,
		Settings: datatypes.NewJSONType(models.MerchantSettings{BrandName: name, Currency: enums.CurrencyUSD, Timezone: "UTC"}),
	}
	require.NoError(t, conn.Create(m).Error)
	return m.ID
}

func TestRequestThenVerifyScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cfg, err := f.svc.Request(ctx, f.merchant, "shop.example.com")
	require.NoError(t, err)
	require.False(t, cfg.Verified)
	require.Equal(t, enums.DomainStatusRequested, cfg.Status)
	require.Nil(t, cfg.ConfiguredCorrectly)
	require.Equal(t, []models.DNSRecord{{Type: enums.DNSRecordTypeA, Name: "shop.example.com", Value: edgeIP}}, cfg.DNSRecords)
	require.False(t, cfg.Apex)

	f.resolver.set("shop.example.com", edgeIP)
	checked, err := f.svc.Check(ctx, cfg.ID)
	require.NoError(t, err)
	require.True(t, checked.Verified)
	require.Equal(t, enums.DomainStatusVerified, checked.Status)
	require.NotNil(t, checked.ConfiguredCorrectly)
	require.True(t, *checked.ConfiguredCorrectly)
	require.True(t, checked.LastCheckedAt.Equal(checkedAt))
	require.True(t, checked.VerifiedAt.Equal(checkedAt))
	require.Equal(t, []string{"shop.example.com"}, f.binder.attached)
	require.Equal(t, 1.0, domainChecks(t, f.reg, "verified"))
}

func TestCheckPendingWhenNotPropagated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg, err := f.svc.Request(ctx, f.merchant, "shop.example.com")
	require.NoError(t, err)

	checked, err := f.svc.Check(ctx, cfg.ID)
	require.NoError(t, err)
	require.False(t, checked.Verified)
	require.Equal(t, enums.DomainStatusPending, checked.Status)
	require.Nil(t, checked.ConfiguredCorrectly)
	require.Len(t, checked.RecordChecks, 1)
	require.Empty(t, checked.RecordChecks[0].Error)
	require.Empty(t, f.binder.attached)
}

func TestCheckMisconfiguredOnWrongValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg, err := f.svc.Request(ctx, f.merchant, "shop.example.com")
	require.NoError(t, err)

	f.resolver.set("shop.example.com", "203.0.113.100")
	checked, err := f.svc.Check(ctx, cfg.ID)
	require.NoError(t, err)
	require.False(t, checked.Verified)
	require.Equal(t, enums.DomainStatusMisconfigured, checked.Status)
	require.NotNil(t, checked.ConfiguredCorrectly)
	require.False(t, *checked.ConfiguredCorrectly)
	require.Equal(t, []string{"203.0.113.100"}, checked.RecordChecks[0].Observed)

	f.resolver.set("shop.example.com", edgeIP, "198.51.100.1")
	checked, err = f.svc.Check(ctx, cfg.ID)
	require.NoError(t, err)
	require.Equal(t, enums.DomainStatusMisconfigured, checked.Status)

	f.resolver.set("shop.example.com", edgeIP)
	checked, err = f.svc.Check(ctx, cfg.ID)
	require.NoError(t, err)
	require.True(t, checked.Verified)
}

func TestCheckResolverFailureIsPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg, err := f.svc.Request(ctx, f.merchant, "shop.example.com")
	require.NoError(t, err)

	f.resolver.errs["shop.example.com"] = errors.New("server misbehaving")
	checked, err := f.svc.Check(ctx, cfg.ID)
	require.NoError(t, err)
	require.Equal(t, enums.DomainStatusPending, checked.Status)
	require.Nil(t, checked.ConfiguredCorrectly)
	require.Contains(t, checked.RecordChecks[0].Error, "server misbehaving")
}

func TestCheckRetriesTimeoutOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg, err := f.svc.Request(ctx, f.merchant, "shop.example.com")
	require.NoError(t, err)

	f.resolver.errs["shop.example.com"] = &net.DNSError{Err: "i/o timeout", Name: "shop.example.com", IsTimeout: true}
	checked, err := f.svc.Check(ctx, cfg.ID)
	require.NoError(t, err)
	require.Equal(t, enums.DomainStatusPending, checked.Status)
	require.Equal(t, 2, f.resolver.hits)
}

func TestRequestRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Request(ctx, f.merchant, "Shop.Example.com.")
	require.NoError(t, err)
	require.Equal(t, "shop.example.com", first.Domain)

	again, err := f.svc.Request(ctx, f.merchant, "shop.example.com")
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)

	_, err = f.svc.Request(ctx, f.merchant, "other.example.com")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	other := createMerchant(t, f.db, "m2")
	_, err = f.svc.Request(ctx, other, "shop.example.com")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = f.svc.Request(ctx, f.merchant, "not a domain")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	require.Equal(t, "domain", pkgerrors.As(err).DetailMap()["field"])

	_, err = f.svc.Request(ctx, uuid.New(), "fresh.example.com")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRemoveIsIdempotentAndAllowsReRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg, err := f.svc.Request(ctx, f.merchant, "shop.example.com")
	require.NoError(t, err)
	f.resolver.set("shop.example.com", edgeIP)
	_, err = f.svc.Check(ctx, cfg.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Remove(ctx, cfg.ID))
	require.Equal(t, 1, f.binder.detached)
	require.NoError(t, f.svc.Remove(ctx, cfg.ID))
	require.NoError(t, f.svc.Remove(ctx, uuid.New()))
	require.Equal(t, 1, f.binder.detached)

	_, err = f.svc.Get(ctx, cfg.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	again, err := f.svc.Request(ctx, f.merchant, "new.example.com")
	require.NoError(t, err)
	require.Equal(t, enums.DomainStatusRequested, again.Status)
	require.False(t, again.Verified)
}

func TestCheckDoesNotRestoreRemovedDomain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	repo := NewRepository(f.db)

	cfg, err := f.svc.Request(ctx, f.merchant, "shop.example.com")
	require.NoError(t, err)
	f.resolver.set("shop.example.com", edgeIP)
	f.resolver.during = func() {
		require.NoError(t, f.svc.Remove(ctx, cfg.ID))
	}

	_, err = f.svc.Check(ctx, cfg.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	row, err := repo.FindByID(ctx, cfg.ID)
	require.NoError(t, err)
	require.Nil(t, row)
	require.Empty(t, f.binder.attached)

	f.resolver.during = nil
	again, err := f.svc.Request(ctx, f.merchant, "other.example.com")
	require.NoError(t, err)
	require.Equal(t, enums.DomainStatusRequested, again.Status)
}

func TestVerifiedStaysVerified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cfg, err := f.svc.Request(ctx, f.merchant, "shop.example.com")
	require.NoError(t, err)
	f.resolver.set("shop.example.com", edgeIP)
	_, err = f.svc.Check(ctx, cfg.ID)
	require.NoError(t, err)

	f.resolver.set("shop.example.com", "192.0.2.1")
	checked, err := f.svc.Check(ctx, cfg.ID)
	require.NoError(t, err)
	require.True(t, checked.Verified)
	require.Len(t, f.binder.attached, 1)
}

func TestListUnverified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pending, err := f.svc.Request(ctx, f.merchant, "shop.example.com")
	require.NoError(t, err)

	other := createMerchant(t, f.db, "m2")
	done, err := f.svc.Request(ctx, other, "done.example.com")
	require.NoError(t, err)
	f.resolver.set("done.example.com", edgeIP)
	_, err = f.svc.Check(ctx, done.ID)
	require.NoError(t, err)

	rows, err := f.svc.ListUnverified(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, pending.ID, rows[0].ID)
}

func TestNewServiceRejectsBadEdgeIP(t *testing.T) {
	conn := dbtest.Open(t)
	_, err := NewService(NewRepository(conn), merchants.NewRepository(conn), newFakeResolver(), Config{EdgeIPv4: "2001:db8::1"})
	require.Error(t, err)
}

func domainChecks(t *testing.T, reg *prometheus.Registry, status string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != "provisioner_domain_checks_total" {
			continue
		}
		for _, m := range fam.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "status" && l.GetValue() == status {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
