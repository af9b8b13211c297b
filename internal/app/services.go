package app

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-provisioner/internal/deployments"
	"github.com/angelmondragon/storefront-provisioner/internal/domains"
	"github.com/angelmondragon/storefront-provisioner/internal/merchants"
	"github.com/angelmondragon/storefront-provisioner/internal/plans"
	"github.com/angelmondragon/storefront-provisioner/internal/provisioning"
	"github.com/angelmondragon/storefront-provisioner/internal/subscriptions"
	"github.com/angelmondragon/storefront-provisioner/internal/tenantdb"
	"github.com/angelmondragon/storefront-provisioner/pkg/config"
	"github.com/angelmondragon/storefront-provisioner/pkg/logger"
	"github.com/angelmondragon/storefront-provisioner/pkg/metrics"
)

// Services is the provisioning service graph shared by every binary.
type Services struct {
	Plans         plans.Service
	Merchants     merchants.Service
	Subscriptions subscriptions.Service
	Databases     tenantdb.Service
	Deployments   deployments.Service
	Domains       domains.Service
	Pipeline      *provisioning.Pipeline

	TenantStore tenantdb.Datastore
}

// NewDatastore opens the tenant datastore selected by cfg.Engine.
func NewDatastore(ctx context.Context, cfg config.TenantConfig) (tenantdb.Datastore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Engine)) {
	case config.TenantEnginePostgres:
		return tenantdb.NewPostgresDatastore(ctx, cfg.AdminDSN, cfg.MaxConns)
	case config.TenantEngineMongo:
		return tenantdb.NewMongoDatastore(cfg.MongoURI)
	default:
		return nil, fmt.Errorf("unsupported tenant engine %q", cfg.Engine)
	}
}

// NewServices builds the service graph on top of an open control-plane
// connection and tenant datastore. m may be nil.
func NewServices(cfg *config.Config, conn *gorm.DB, store tenantdb.Datastore, m *metrics.ProvisioningMetrics, logg *logger.Logger) (*Services, error) {
	if cfg == nil || conn == nil || store == nil || logg == nil {
		return nil, fmt.Errorf("config, database, tenant store and logger are required")
	}

	merchantRepo := merchants.NewRepository(conn)
	planRepo := plans.NewRepository(conn)

	planSvc, err := plans.NewService(planRepo)
	if err != nil {
		return nil, fmt.Errorf("plan service: %w", err)
	}
	merchantSvc, err := merchants.NewService(merchantRepo)
	if err != nil {
		return nil, fmt.Errorf("merchant service: %w", err)
	}
	subSvc, err := subscriptions.NewService(subscriptions.NewRepository(conn), merchantRepo, planRepo)
	if err != nil {
		return nil, fmt.Errorf("subscription service: %w", err)
	}

	dbSvc, err := tenantdb.NewService(tenantdb.NewRepository(conn), merchantRepo, store, tenantdb.Config{
		NamePrefix:  cfg.Tenant.NamePrefix,
		CallTimeout: cfg.Tenant.CallTimeout,
	}, tenantdb.WithLogger(logg))
	if err != nil {
		return nil, fmt.Errorf("tenant database service: %w", err)
	}

	provider, err := deployments.NewProvider(cfg.Deploy)
	if err != nil {
		return nil, fmt.Errorf("deploy provider: %w", err)
	}
	deploySvc, err := deployments.NewService(deployments.NewRepository(conn), merchantRepo, dbSvc, provider, deployments.Config{
		RootDomain:  cfg.Deploy.RootDomain,
		RuntimeMode: cfg.Deploy.RuntimeMode,
		Timeout:     cfg.Deploy.Timeout,
	}, deployments.WithLogger(logg))
	if err != nil {
		return nil, fmt.Errorf("deployment service: %w", err)
	}

	resolver := domains.NewResolver(cfg.Domain.ResolverAddr, cfg.Domain.LookupTimeout)
	domainSvc, err := domains.NewService(domains.NewRepository(conn), merchantRepo, resolver, domains.Config{
		EdgeIPv4:      cfg.Domain.EdgeIPv4,
		LookupTimeout: cfg.Domain.LookupTimeout,
	}, domains.WithLogger(logg), domains.WithMetrics(m), domains.WithDomainBinder(deploySvc))
	if err != nil {
		return nil, fmt.Errorf("domain service: %w", err)
	}

	pipeline, err := provisioning.NewPipeline(subSvc, dbSvc, deploySvc, domainSvc, m, logg)
	if err != nil {
		return nil, fmt.Errorf("provisioning pipeline: %w", err)
	}

	return &Services{
		Plans:         planSvc,
		Merchants:     merchantSvc,
		Subscriptions: subSvc,
		Databases:     dbSvc,
		Deployments:   deploySvc,
		Domains:       domainSvc,
		Pipeline:      pipeline,
		TenantStore:   store,
	}, nil
}

// Close releases the tenant datastore connection.
func (s *Services) Close(ctx context.Context) error {
	if s == nil || s.TenantStore == nil {
		return nil
	}
	return s.TenantStore.Close(ctx)
}
