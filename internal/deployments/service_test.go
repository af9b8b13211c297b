package deployments

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-provisioner/internal/merchants"
	"github.com/angelmondragon/storefront-provisioner/internal/tenantdb"
	"github.com/angelmondragon/storefront-provisioner/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-provisioner/pkg/db/models"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-provisioner/pkg/errors"
)

type fakeProvider struct {
	mu       sync.Mutex
	releases []Release
	fail     error
	// during runs once, outside the lock, after the next release is accepted.
	during func()
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Deploy(_ context.Context, release Release) (*Outcome, error) {
	f.mu.Lock()
	during := f.during
	f.during = nil
	f.mu.Unlock()
	if during != nil {
		defer during()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases = append(f.releases, release)
	if f.fail != nil {
		return nil, f.fail
	}
	return &Outcome{DeploymentID: "dpl_" + release.Project, Status: "ready"}, nil
}

func (f *fakeProvider) last() Release {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases[len(f.releases)-1]
}

type staticDescriptors struct {
	desc tenantdb.Descriptor
}

func (s staticDescriptors) Descriptor(context.Context, uuid.UUID) (*tenantdb.Descriptor, error) {
	d := s.desc
	return &d, nil
}

var clockAt = time.Date(2025, 4, 2, 9, 30, 0, 0, time.UTC)

func testDescriptor() tenantdb.Descriptor {
	return tenantdb.Descriptor{
		DatabaseName:     "store_abc",
		Engine:           enums.DatastoreEnginePostgres,
		ConnectionString: "postgres://admin:hunter2@db:5432/store_abc",
	}
}

func newTestService(t *testing.T, provider Provider) (Service, *gorm.DB, uuid.UUID) {
	t.Helper()
	conn := dbtest.Open(t)
	merchant := &models.Merchant{
		Name:     "m1",
		Email:    "m1@shop.test",
		Status:   enums.MerchantStatusActive,
		Settings: datatypes.NewJSONType(models.MerchantSettings{BrandName: "m1", Currency: enums.CurrencyUSD, Timezone: "UTC"}),
	}
	require.NoError(t, conn.Create(merchant).Error)

	svc, err := NewService(NewRepository(conn), merchants.NewRepository(conn), staticDescriptors{desc: testDescriptor()}, provider,
		Config{RootDomain: "stores.test", RuntimeMode: "production", Timeout: time.Second},
		WithClock(func() time.Time { return clockAt }),
	)
	require.NoError(t, err)
	return svc, conn, merchant.ID
}

func TestRegisterActivatesAfterProviderSuccess(t *testing.T) {
	provider := &fakeProvider{}
	svc, _, merchantID := newTestService(t, provider)

	got, err := svc.Register(context.Background(), merchantID, testDescriptor())
	require.NoError(t, err)

	host := SubdomainFor(merchantID, "stores.test")
	require.Equal(t, enums.DeploymentStatusActive, got.DeploymentStatus)
	require.Equal(t, enums.DeploymentTypeSubdomain, got.DeploymentType)
	require.Equal(t, host, got.Subdomain)
	require.Equal(t, "https://"+host, got.DeploymentURL)
	require.Equal(t, "fake", got.DeploymentProvider)
	require.NotNil(t, got.DeploymentID)
	require.NotNil(t, got.LastDeployedAt)
	require.True(t, got.LastDeployedAt.Equal(clockAt))
	require.Equal(t, map[string]string{
		EnvMerchantID:      merchantID.String(),
		EnvDatabaseName:    "store_abc",
		EnvDatastoreEngine: "postgres",
		EnvRuntimeMode:     "production",
		EnvStoreHost:       host,
	}, got.EnvironmentVariables)

	release := provider.last()
	require.Equal(t, "postgres://admin:hunter2@db:5432/store_abc", release.Env[EnvDatabaseURL])
	require.Equal(t, []string{host}, release.Domains)
}

func TestRegisterNeverPersistsDatabaseURL(t *testing.T) {
	svc, conn, merchantID := newTestService(t, &fakeProvider{})
	_, err := svc.Register(context.Background(), merchantID, testDescriptor())
	require.NoError(t, err)

	var stored models.Deployment
	require.NoError(t, conn.Where("merchant_id = ?", merchantID).First(&stored).Error)
	_, ok := stored.EnvironmentVariables[EnvDatabaseURL]
	require.False(t, ok)
}

func TestRegisterTwiceKeepsOneRecord(t *testing.T) {
	provider := &fakeProvider{}
	svc, conn, merchantID := newTestService(t, provider)
	ctx := context.Background()

	first, err := svc.Register(ctx, merchantID, testDescriptor())
	require.NoError(t, err)
	second, err := svc.Register(ctx, merchantID, testDescriptor())
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	var rows int64
	require.NoError(t, conn.Model(&models.Deployment{}).Where("merchant_id = ?", merchantID).Count(&rows).Error)
	require.EqualValues(t, 1, rows)
	require.Len(t, provider.releases, 2)
}

func TestRegisterConcurrentCallsKeepOneRecord(t *testing.T) {
	svc, conn, merchantID := newTestService(t, &fakeProvider{})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Register(context.Background(), merchantID, testDescriptor())
		}()
	}
	wg.Wait()

	var rows int64
	require.NoError(t, conn.Model(&models.Deployment{}).Where("merchant_id = ?", merchantID).Count(&rows).Error)
	require.EqualValues(t, 1, rows)
}

func TestRegisterFailurePersistsFailedStatus(t *testing.T) {
	provider := &fakeProvider{fail: errors.New("quota exceeded")}
	svc, conn, merchantID := newTestService(t, provider)

	_, err := svc.Register(context.Background(), merchantID, testDescriptor())
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	require.Equal(t, true, pkgerrors.As(err).DetailMap()["resumable"])

	var stored models.Deployment
	require.NoError(t, conn.Where("merchant_id = ?", merchantID).First(&stored).Error)
	require.Equal(t, enums.DeploymentStatusFailed, stored.DeploymentStatus)
	require.NotNil(t, stored.LastError)
	require.Equal(t, "quota exceeded", *stored.LastError)
	require.Nil(t, stored.LastDeployedAt)

	provider.fail = nil
	got, err := svc.Redeploy(context.Background(), stored.ID)
	require.NoError(t, err)
	require.Equal(t, enums.DeploymentStatusActive, got.DeploymentStatus)
	require.Nil(t, got.LastError)
}

func TestRedeployBumpsLastDeployedAt(t *testing.T) {
	svc, conn, merchantID := newTestService(t, &fakeProvider{})
	ctx := context.Background()

	first, err := svc.Register(ctx, merchantID, testDescriptor())
	require.NoError(t, err)

	later := clockAt.Add(time.Hour)
	svc.(*service).now = func() time.Time { return later }
	again, err := svc.Redeploy(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)
	require.True(t, again.LastDeployedAt.Equal(later))

	_, err = svc.Redeploy(ctx, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	var rows int64
	require.NoError(t, conn.Model(&models.Deployment{}).Count(&rows).Error)
	require.EqualValues(t, 1, rows)
}

func TestAttachAndDetachDomain(t *testing.T) {
	provider := &fakeProvider{}
	svc, _, merchantID := newTestService(t, provider)
	ctx := context.Background()

	_, err := svc.AttachDomain(ctx, merchantID, "shop.example.com")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.Register(ctx, merchantID, testDescriptor())
	require.NoError(t, err)

	attached, err := svc.AttachDomain(ctx, merchantID, "Shop.Example.com.")
	require.NoError(t, err)
	require.Equal(t, enums.DeploymentTypeCustomDomain, attached.DeploymentType)
	require.Equal(t, "https://shop.example.com", attached.DeploymentURL)
	require.Equal(t, "shop.example.com", attached.EnvironmentVariables[EnvStoreHost])
	require.Equal(t, []string{"shop.example.com", SubdomainFor(merchantID, "stores.test")}, provider.last().Domains)

	detached, err := svc.DetachDomain(ctx, merchantID)
	require.NoError(t, err)
	require.Equal(t, enums.DeploymentTypeSubdomain, detached.DeploymentType)
	require.Nil(t, detached.CustomDomain)
	require.Equal(t, "https://"+SubdomainFor(merchantID, "stores.test"), detached.DeploymentURL)

	releases := len(provider.releases)
	_, err = svc.DetachDomain(ctx, merchantID)
	require.NoError(t, err)
	require.Len(t, provider.releases, releases)
}

func TestRegisterValidation(t *testing.T) {
	svc, _, merchantID := newTestService(t, &fakeProvider{})

	_, err := svc.Register(context.Background(), merchantID, tenantdb.Descriptor{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Register(context.Background(), uuid.New(), testDescriptor())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestAttachDoesNotOverwriteConcurrentDetach(t *testing.T) {
	provider := &fakeProvider{}
	svc, conn, merchantID := newTestService(t, provider)
	ctx := context.Background()

	_, err := svc.Register(ctx, merchantID, testDescriptor())
	require.NoError(t, err)
	_, err = svc.AttachDomain(ctx, merchantID, "a.example.com")
	require.NoError(t, err)

	provider.during = func() {
		_, err := svc.DetachDomain(ctx, merchantID)
		require.NoError(t, err)
	}
	_, err = svc.AttachDomain(ctx, merchantID, "b.example.com")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	var stored models.Deployment
	require.NoError(t, conn.Where("merchant_id = ?", merchantID).First(&stored).Error)
	require.Nil(t, stored.CustomDomain)
	require.Equal(t, enums.DeploymentTypeSubdomain, stored.DeploymentType)
	require.Equal(t, 3, stored.Revision)
}

func TestFailureSummaryKeepsValidUTF8(t *testing.T) {
	msg := strings.Repeat("a", maxErrorSummary-1) + "ü provider rejected"
	got := summarize(errors.New(msg))
	require.True(t, utf8.ValidString(got))
	require.Equal(t, strings.Repeat("a", maxErrorSummary-1), got)

	provider := &fakeProvider{fail: errors.New(strings.Repeat("é", maxErrorSummary))}
	svc, conn, merchantID := newTestService(t, provider)
	_, err := svc.Register(context.Background(), merchantID, testDescriptor())
	require.Error(t, err)

	var stored models.Deployment
	require.NoError(t, conn.Where("merchant_id = ?", merchantID).First(&stored).Error)
	require.Equal(t, enums.DeploymentStatusFailed, stored.DeploymentStatus)
	require.NotNil(t, stored.LastError)
	require.True(t, utf8.ValidString(*stored.LastError))
	require.LessOrEqual(t, len(*stored.LastError), maxErrorSummary)
	require.Equal(t, maxErrorSummary/2, utf8.RuneCountInString(*stored.LastError))
}
