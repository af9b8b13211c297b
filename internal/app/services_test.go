package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-provisioner/pkg/config"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
	"github.com/angelmondragon/storefront-provisioner/pkg/logger"
	"github.com/angelmondragon/storefront-provisioner/pkg/metrics"
)

type stubDatastore struct{ closed bool }

func (s *stubDatastore) Engine() enums.DatastoreEngine { return enums.DatastoreEnginePostgres }
func (s *stubDatastore) NamespaceExists(context.Context, string) (bool, error) {
	return false, nil
}
func (s *stubDatastore) NamespaceOwner(context.Context, string) (string, error) { return "", nil }
func (s *stubDatastore) CreateNamespace(context.Context, string, string) error  { return nil }
func (s *stubDatastore) MarkNamespace(context.Context, string, string) error    { return nil }
func (s *stubDatastore) SeedCollections(context.Context, string) ([]string, error) {
	return nil, nil
}
func (s *stubDatastore) ConnectionString(name string) (string, error) { return "stub://" + name, nil }
func (s *stubDatastore) Ping(context.Context) error                   { return nil }
func (s *stubDatastore) Close(context.Context) error {
	s.closed = true
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Tenant: config.TenantConfig{Engine: config.TenantEnginePostgres, NamePrefix: "store_"},
		Deploy: config.DeployConfig{Provider: config.DeployProviderNoop, RootDomain: "stores.test", RuntimeMode: "production"},
		Domain: config.DomainConfig{EdgeIPv4: "203.0.113.10"},
	}
}

func TestNewServicesWiresGraph(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	store := &stubDatastore{}

	svcs, err := NewServices(testConfig(), conn, store, metrics.NewProvisioningMetrics(nil), logger.New(logger.Options{ServiceName: "test"}))
	require.NoError(t, err)
	require.NotNil(t, svcs.Plans)
	require.NotNil(t, svcs.Merchants)
	require.NotNil(t, svcs.Subscriptions)
	require.NotNil(t, svcs.Databases)
	require.NotNil(t, svcs.Deployments)
	require.NotNil(t, svcs.Domains)
	require.NotNil(t, svcs.Pipeline)

	require.NoError(t, svcs.Close(context.Background()))
	require.True(t, store.closed)
}

func TestNewServicesRejectsUnknownProvider(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	cfg := testConfig()
	cfg.Deploy.Provider = "carrier-pigeon"

	_, err = NewServices(cfg, conn, &stubDatastore{}, nil, logger.New(logger.Options{ServiceName: "test"}))
	require.ErrorContains(t, err, "deploy provider")
}

func TestNewServicesRequiresDependencies(t *testing.T) {
	_, err := NewServices(testConfig(), nil, &stubDatastore{}, nil, logger.New(logger.Options{ServiceName: "test"}))
	require.Error(t, err)
}

func TestNewDatastoreRejectsUnknownEngine(t *testing.T) {
	_, err := NewDatastore(context.Background(), config.TenantConfig{Engine: "cassandra"})
	require.ErrorContains(t, err, "unsupported tenant engine")
}

func TestNewDatastoreValidatesMongoURI(t *testing.T) {
	_, err := NewDatastore(context.Background(), config.TenantConfig{Engine: config.TenantEngineMongo, MongoURI: "http://not-mongo"})
	require.Error(t, err)
}
