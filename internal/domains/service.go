package domains

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-provisioner/internal/deployments"
	"github.com/angelmondragon/storefront-provisioner/pkg/db"
	"github.com/angelmondragon/storefront-provisioner/pkg/db/models"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-provisioner/pkg/errors"
	"github.com/angelmondragon/storefront-provisioner/pkg/logger"
	"github.com/angelmondragon/storefront-provisioner/pkg/metrics"
	"github.com/angelmondragon/storefront-provisioner/pkg/retry"
)

type merchantReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Merchant, error)
}

// domainBinder moves the storefront onto or off a custom domain.
type domainBinder interface {
	AttachDomain(ctx context.Context, merchantID uuid.UUID, domain string) (*deployments.DeploymentDTO, error)
	DetachDomain(ctx context.Context, merchantID uuid.UUID) (*deployments.DeploymentDTO, error)
}

// Service manages merchant custom domains and their DNS verification.
type Service interface {
	Request(ctx context.Context, merchantID uuid.UUID, domain string) (*DomainConfigurationDTO, error)
	Check(ctx context.Context, id uuid.UUID) (*DomainConfigurationDTO, error)
	Remove(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*DomainConfigurationDTO, error)
	GetByMerchant(ctx context.Context, merchantID uuid.UUID) (*DomainConfigurationDTO, error)
	ListUnverified(ctx context.Context, limit int) ([]DomainConfigurationDTO, error)
}

// Config holds the published edge address and lookup bounds.
type Config struct {
	EdgeIPv4      string
	LookupTimeout time.Duration
}

type service struct {
	repo      Repository
	merchants merchantReader
	resolver  Resolver
	binder    domainBinder
	metrics   *metrics.ProvisioningMetrics
	logg      *logger.Logger
	cfg       Config
	now       func() time.Time
}

// Option customises the domain service.
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

func WithMetrics(m *metrics.ProvisioningMetrics) Option {
	return func(s *service) {
		s.metrics = m
	}
}

// WithDomainBinder attaches verified domains to the merchant deployment.
func WithDomainBinder(b domainBinder) Option {
	return func(s *service) {
		s.binder = b
	}
}

// NewService builds a domain verifier.
func NewService(repo Repository, merchants merchantReader, resolver Resolver, cfg Config, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("domain repository required")
	}
	if merchants == nil {
		return nil, fmt.Errorf("merchant reader required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("dns resolver required")
	}
	ip := net4(cfg.EdgeIPv4)
	if ip == "" {
		return nil, fmt.Errorf("edge ipv4 %q is not a valid IPv4 address", cfg.EdgeIPv4)
	}
	cfg.EdgeIPv4 = ip
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 5 * time.Second
	}
	s := &service{
		repo:      repo,
		merchants: merchants,
		resolver:  resolver,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RequiredRecords is the record set a merchant must publish for domain.
func RequiredRecords(domain, edgeIPv4 string) []models.DNSRecord {
	return []models.DNSRecord{{Type: enums.DNSRecordTypeA, Name: domain, Value: edgeIPv4}}
}

// Request registers domain for the merchant. Asking again for the same domain
// returns the existing configuration.
func (s *service) Request(ctx context.Context, merchantID uuid.UUID, raw string) (*DomainConfigurationDTO, error) {
	domain, err := NormalizeDomain(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()).
			WithDetails(map[string]any{"field": "domain", "reason": err.Error()})
	}
	if _, err := s.merchants.FindByID(ctx, merchantID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "merchant %s not found", merchantID).
				WithDetails(map[string]any{"resource": "merchant", "id": merchantID.String()})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load merchant")
	}

	if existing, err := s.repo.FindByMerchant(ctx, merchantID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load domain configuration")
	} else if existing != nil {
		return s.sameOrConflict(existing, domain)
	}
	if claimed, err := s.repo.FindByDomain(ctx, domain); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load domain configuration")
	} else if claimed != nil {
		return nil, domainTaken(domain)
	}

	cfg := &models.DomainConfiguration{
		MerchantID: merchantID,
		Domain:     domain,
		Verified:   false,
		Status:     enums.DomainStatusRequested,
		DNSRecords: RequiredRecords(domain, s.cfg.EdgeIPv4),
	}
	created, err := s.repo.CreateIfAbsent(ctx, cfg)
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, domainTaken(domain)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create domain configuration")
	}
	if created {
		return FromModel(cfg), nil
	}
	existing, err := s.repo.FindByMerchant(ctx, merchantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load domain configuration")
	}
	if existing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "domain configuration changed concurrently, retry").
			WithDetails(map[string]any{"merchantId": merchantID.String()})
	}
	return s.sameOrConflict(existing, domain)
}

func (s *service) sameOrConflict(existing *models.DomainConfiguration, domain string) (*DomainConfigurationDTO, error) {
	if existing.Domain == domain {
		return FromModel(existing), nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "merchant already has a custom domain; remove it first").
		WithDetails(map[string]any{"domainId": existing.ID.String(), "domain": existing.Domain})
}

// Check resolves every required record and records the outcome. DNS problems
// end up in the status, never in the returned error. A verified domain stays
// verified until it is removed.
func (s *service) Check(ctx context.Context, id uuid.UUID) (*DomainConfigurationDTO, error) {
	cfg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cfg.Verified {
		return FromModel(cfg), nil
	}

	checks := make([]models.DNSRecordCheck, 0, len(cfg.DNSRecords))
	for _, record := range cfg.DNSRecords {
		checks = append(checks, checkRecord(ctx, s.resolver, record, s.lookup))
	}
	status, configured := summarize(checks)

	now := s.now()
	cfg.RecordChecks = checks
	cfg.Status = status
	cfg.ConfiguredCorrectly = configured
	cfg.LastCheckedAt = &now
	cfg.UpdatedAt = now
	if status == enums.DomainStatusVerified {
		cfg.Verified = true
		cfg.VerifiedAt = &now
	}
	if err := s.repo.RecordCheck(ctx, cfg); err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record domain check")
		}
		// Removed or verified by someone else while the lookups ran.
		current, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		return FromModel(current), nil
	}
	s.metrics.IncDomainCheck(string(status))

	if cfg.Verified && s.binder != nil {
		if _, err := s.binder.AttachDomain(ctx, cfg.MerchantID, cfg.Domain); err != nil {
			s.logError(ctx, cfg, "attach verified domain to deployment failed", err)
		}
	}
	return FromModel(cfg), nil
}

// Remove deletes the configuration. Removing a configuration that does not
// exist is not an error.
func (s *service) Remove(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete domain configuration")
	}
	if deleted == nil || !deleted.Verified || s.binder == nil {
		return nil
	}
	if _, err := s.binder.DetachDomain(ctx, deleted.MerchantID); err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		s.logError(ctx, deleted, "detach removed domain from deployment failed", err)
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*DomainConfigurationDTO, error) {
	cfg, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(cfg), nil
}

func (s *service) GetByMerchant(ctx context.Context, merchantID uuid.UUID) (*DomainConfigurationDTO, error) {
	cfg, err := s.repo.FindByMerchant(ctx, merchantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load domain configuration")
	}
	if cfg == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "merchant %s has no custom domain", merchantID).
			WithDetails(map[string]any{"resource": "domain_configuration", "merchantId": merchantID.String()})
	}
	return FromModel(cfg), nil
}

func (s *service) ListUnverified(ctx context.Context, limit int) ([]DomainConfigurationDTO, error) {
	rows, err := s.repo.ListUnverified(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unverified domains")
	}
	out := make([]DomainConfigurationDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.DomainConfiguration, error) {
	cfg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load domain configuration")
	}
	if cfg == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "domain configuration %s not found", id).
			WithDetails(map[string]any{"resource": "domain_configuration", "id": id.String()})
	}
	return cfg, nil
}

func (s *service) lookup(ctx context.Context, fn func(context.Context) error) error {
	policy := retry.Once(s.cfg.LookupTimeout)
	policy.Transient = isTransientLookup
	return retry.Do(ctx, policy, fn)
}

func (s *service) logError(ctx context.Context, cfg *models.DomainConfiguration, msg string, err error) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"merchant_id": cfg.MerchantID.String(),
		"domain":      cfg.Domain,
	})
	s.logg.Error(ctx, msg, err)
}

func domainTaken(domain string) error {
	return pkgerrors.Newf(pkgerrors.CodeConflict, "domain %s is already claimed", domain).
		WithDetails(map[string]any{"domain": domain})
}
