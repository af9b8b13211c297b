package deployments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-provisioner/internal/tenantdb"
	"github.com/angelmondragon/storefront-provisioner/pkg/db/models"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-provisioner/pkg/errors"
	"github.com/angelmondragon/storefront-provisioner/pkg/logger"
)

// Environment keys injected into every storefront.
const (
	EnvMerchantID      = "MERCHANT_ID"
	EnvDatabaseName    = "DATABASE_NAME"
	EnvDatastoreEngine = "DATASTORE_ENGINE"
	EnvRuntimeMode     = "RUNTIME_MODE"
	EnvStoreHost       = "STORE_HOST"
	// EnvDatabaseURL is only sent to the provider, never persisted.
	EnvDatabaseURL = "DATABASE_URL"
)

const maxErrorSummary = 500

type merchantReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Merchant, error)
}

type descriptorSource interface {
	Descriptor(ctx context.Context, merchantID uuid.UUID) (*tenantdb.Descriptor, error)
}

// Service registers and redeploys merchant storefronts.
type Service interface {
	Register(ctx context.Context, merchantID uuid.UUID, db tenantdb.Descriptor) (*DeploymentDTO, error)
	Redeploy(ctx context.Context, deploymentID uuid.UUID) (*DeploymentDTO, error)
	Get(ctx context.Context, merchantID uuid.UUID) (*DeploymentDTO, error)
	GetByID(ctx context.Context, deploymentID uuid.UUID) (*DeploymentDTO, error)
	AttachDomain(ctx context.Context, merchantID uuid.UUID, domain string) (*DeploymentDTO, error)
	DetachDomain(ctx context.Context, merchantID uuid.UUID) (*DeploymentDTO, error)
}

// Config controls the addresses and runtime mode of deployed storefronts.
type Config struct {
	RootDomain  string
	RuntimeMode string
	Timeout     time.Duration
}

type service struct {
	repo        Repository
	merchants   merchantReader
	descriptors descriptorSource
	provider    Provider
	cfg         Config
	logg        *logger.Logger
	now         func() time.Time
}

// Option customises the deployment service.
type Option func(*service)

func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logg *logger.Logger) Option {
	return func(s *service) {
		s.logg = logg
	}
}

// NewService builds a deployment service.
func NewService(repo Repository, merchants merchantReader, descriptors descriptorSource, provider Provider, cfg Config, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("deployment repository required")
	}
	if merchants == nil {
		return nil, fmt.Errorf("merchant reader required")
	}
	if descriptors == nil {
		return nil, fmt.Errorf("database descriptor source required")
	}
	if provider == nil {
		return nil, fmt.Errorf("deploy provider required")
	}
	cfg.RootDomain = strings.Trim(strings.ToLower(strings.TrimSpace(cfg.RootDomain)), ".")
	if cfg.RootDomain == "" {
		return nil, fmt.Errorf("deploy root domain required")
	}
	if cfg.RuntimeMode == "" {
		cfg.RuntimeMode = "production"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	s := &service{
		repo:        repo,
		merchants:   merchants,
		descriptors: descriptors,
		provider:    provider,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SubdomainFor is the default storefront host of a merchant.
func SubdomainFor(merchantID uuid.UUID, root string) string {
	return "store-" + strings.ReplaceAll(merchantID.String(), "-", "") + "." + root
}

// Register creates the merchant's deployment record and applies it. A second
// call for the same merchant redeploys the existing record.
func (s *service) Register(ctx context.Context, merchantID uuid.UUID, db tenantdb.Descriptor) (*DeploymentDTO, error) {
	if strings.TrimSpace(db.DatabaseName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "database name is required").
			WithDetails(map[string]any{"field": "databaseName", "reason": "required"})
	}
	if _, err := s.merchants.FindByID(ctx, merchantID); err != nil {
		return nil, lookupError(err, "merchant", merchantID.String())
	}

	host := SubdomainFor(merchantID, s.cfg.RootDomain)
	d := &models.Deployment{
		MerchantID:         merchantID,
		DeploymentType:     enums.DeploymentTypeSubdomain,
		Subdomain:          host,
		DeploymentStatus:   enums.DeploymentStatusPending,
		DeploymentURL:      "https://" + host,
		DeploymentProvider: s.provider.Name(),
	}
	d.EnvironmentVariables = toJSONMap(s.envBag(d, db))

	created, err := s.repo.CreateIfAbsent(ctx, d)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create deployment")
	}
	if !created {
		existing, err := s.repo.FindByMerchant(ctx, merchantID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deployment")
		}
		if existing == nil {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "deployment changed concurrently, retry").
				WithDetails(map[string]any{"merchantId": merchantID.String()})
		}
		d = existing
	}
	return s.apply(ctx, d, db)
}

// Redeploy re-applies the environment of an existing deployment and bumps
// lastDeployedAt.
func (s *service) Redeploy(ctx context.Context, deploymentID uuid.UUID) (*DeploymentDTO, error) {
	d, err := s.repo.FindByID(ctx, deploymentID)
	if err != nil {
		return nil, lookupError(err, "deployment", deploymentID.String())
	}
	db, err := s.descriptors.Descriptor(ctx, d.MerchantID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, d, *db)
}

func (s *service) Get(ctx context.Context, merchantID uuid.UUID) (*DeploymentDTO, error) {
	d, err := s.loadByMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	return FromModel(d), nil
}

func (s *service) GetByID(ctx context.Context, deploymentID uuid.UUID) (*DeploymentDTO, error) {
	d, err := s.repo.FindByID(ctx, deploymentID)
	if err != nil {
		return nil, lookupError(err, "deployment", deploymentID.String())
	}
	return FromModel(d), nil
}

// AttachDomain serves the storefront on a verified custom domain.
func (s *service) AttachDomain(ctx context.Context, merchantID uuid.UUID, domain string) (*DeploymentDTO, error) {
	domain = strings.Trim(strings.ToLower(strings.TrimSpace(domain)), ".")
	if domain == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "domain is required").
			WithDetails(map[string]any{"field": "domain", "reason": "required"})
	}
	d, err := s.loadByMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if d.CustomDomain != nil && *d.CustomDomain == domain && d.DeploymentStatus == enums.DeploymentStatusActive {
		return FromModel(d), nil
	}
	d.CustomDomain = &domain
	d.DeploymentType = enums.DeploymentTypeCustomDomain
	return s.reapply(ctx, d)
}

// DetachDomain falls back to the default subdomain. Detaching when no custom
// domain is attached returns the deployment unchanged.
func (s *service) DetachDomain(ctx context.Context, merchantID uuid.UUID) (*DeploymentDTO, error) {
	d, err := s.loadByMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if d.CustomDomain == nil {
		return FromModel(d), nil
	}
	d.CustomDomain = nil
	d.DeploymentType = enums.DeploymentTypeSubdomain
	return s.reapply(ctx, d)
}

func (s *service) reapply(ctx context.Context, d *models.Deployment) (*DeploymentDTO, error) {
	db, err := s.descriptors.Descriptor(ctx, d.MerchantID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, d, *db)
}

// apply sends the release to the provider and persists the outcome. The
// record is active only after the provider reports success.
func (s *service) apply(ctx context.Context, d *models.Deployment, db tenantdb.Descriptor) (*DeploymentDTO, error) {
	revision := d.Revision
	env := s.envBag(d, db)
	d.EnvironmentVariables = toJSONMap(env)
	d.DeploymentProvider = s.provider.Name()
	d.DeploymentURL = "https://" + storeHost(d)

	release := Release{
		Project: "store-" + strings.ReplaceAll(d.MerchantID.String(), "-", ""),
		Env:     withSecret(env, db.ConnectionString),
		Domains: domainsOf(d),
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	outcome, deployErr := s.provider.Deploy(callCtx, release)
	cancel()

	now := s.now()
	d.UpdatedAt = now
	d.Revision = revision + 1
	if deployErr != nil {
		summary := summarize(deployErr)
		d.DeploymentStatus = enums.DeploymentStatusFailed
		d.LastError = &summary
		if err := s.save(ctx, d, revision, "record failed deployment"); err != nil {
			return nil, err
		}
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"merchant_id":   d.MerchantID.String(),
				"deployment_id": d.ID.String(),
				"provider":      d.DeploymentProvider,
			})
			s.logg.Error(logCtx, "storefront deployment failed", deployErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, deployErr, "deployment provider failed").
			WithDetails(map[string]any{
				"step":         "deploy",
				"deploymentId": d.ID.String(),
				"resumable":    true,
				"lastError":    summary,
			})
	}

	d.DeploymentStatus = enums.DeploymentStatusActive
	d.LastError = nil
	d.LastDeployedAt = &now
	if outcome.DeploymentID != "" {
		id := outcome.DeploymentID
		d.ProviderDeploymentID = &id
	}
	if err := s.save(ctx, d, revision, "record deployment"); err != nil {
		return nil, err
	}
	return FromModel(d), nil
}

// save persists d unless another writer moved the row past revision while
// the provider call ran.
func (s *service) save(ctx context.Context, d *models.Deployment, revision int, action string) error {
	ok, err := s.repo.UpdateRevision(ctx, d, revision)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConflict, "deployment changed concurrently, retry").
			WithDetails(map[string]any{"deploymentId": d.ID.String(), "revision": revision})
	}
	return nil
}

// envBag derives the persisted, non-secret environment of a storefront.
func (s *service) envBag(d *models.Deployment, db tenantdb.Descriptor) map[string]string {
	return map[string]string{
		EnvMerchantID:      d.MerchantID.String(),
		EnvDatabaseName:    db.DatabaseName,
		EnvDatastoreEngine: string(db.Engine),
		EnvRuntimeMode:     s.cfg.RuntimeMode,
		EnvStoreHost:       storeHost(d),
	}
}

func (s *service) loadByMerchant(ctx context.Context, merchantID uuid.UUID) (*models.Deployment, error) {
	d, err := s.repo.FindByMerchant(ctx, merchantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deployment")
	}
	if d == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "merchant %s has no deployment", merchantID).
			WithDetails(map[string]any{"resource": "deployment", "merchantId": merchantID.String()})
	}
	return d, nil
}

func storeHost(d *models.Deployment) string {
	if d.CustomDomain != nil && *d.CustomDomain != "" {
		return *d.CustomDomain
	}
	return d.Subdomain
}

func domainsOf(d *models.Deployment) []string {
	if d.CustomDomain != nil && *d.CustomDomain != "" {
		return []string{*d.CustomDomain, d.Subdomain}
	}
	return []string{d.Subdomain}
}

func withSecret(env map[string]string, dsn string) map[string]string {
	out := make(map[string]string, len(env)+1)
	for k, v := range env {
		out[k] = v
	}
	if dsn != "" {
		out[EnvDatabaseURL] = dsn
	}
	return out
}

func toJSONMap(env map[string]string) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

func summarize(err error) string {
	msg := strings.TrimSpace(err.Error())
	if len(msg) <= maxErrorSummary {
		return strings.ToValidUTF8(msg, "")
	}
	cut := maxErrorSummary
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return strings.ToValidUTF8(msg[:cut], "")
}

func lookupError(err error, resource, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "%s %s not found", resource, id).
			WithDetails(map[string]any{"resource": resource, "id": id})
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+resource)
}
