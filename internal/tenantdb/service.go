package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-provisioner/pkg/db"
	"github.com/angelmondragon/storefront-provisioner/pkg/db/models"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-provisioner/pkg/errors"
	"github.com/angelmondragon/storefront-provisioner/pkg/logger"
	"github.com/angelmondragon/storefront-provisioner/pkg/retry"
)

// Provisioning steps reported in error details.
const (
	stepRecord    = "record"
	stepCheck     = "check_namespace"
	stepOwnership = "verify_ownership"
	stepCreate    = "create_namespace"
	stepSeed      = "seed_collections"
	stepFinalize  = "finalize"
)

type merchantReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Merchant, error)
}

// Service provisions and describes per-merchant tenant databases.
type Service interface {
	Provision(ctx context.Context, merchantID uuid.UUID) (*TenantDatabaseDTO, error)
	Get(ctx context.Context, merchantID uuid.UUID) (*TenantDatabaseDTO, error)
	Descriptor(ctx context.Context, merchantID uuid.UUID) (*Descriptor, error)
	ListByStatus(ctx context.Context, status enums.TenantDatabaseStatus, limit int) ([]TenantDatabaseDTO, error)
}

// Config tunes namespace naming and datastore call bounds.
type Config struct {
	NamePrefix  string
	CallTimeout time.Duration
}

type service struct {
	repo      Repository
	merchants merchantReader
	store     Datastore
	cfg       Config
	logg      *logger.Logger
	now       func() time.Time
	group     singleflight.Group
}

// Option customises the tenant database service.
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

// NewService builds a tenant database service over one datastore engine.
func NewService(repo Repository, merchants merchantReader, store Datastore, cfg Config, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("tenant database repository required")
	}
	if merchants == nil {
		return nil, fmt.Errorf("merchant reader required")
	}
	if store == nil {
		return nil, fmt.Errorf("tenant datastore required")
	}
	if cfg.NamePrefix == "" {
		cfg.NamePrefix = "store_"
	}
	if !prefixRe.MatchString(cfg.NamePrefix) {
		return nil, fmt.Errorf("invalid tenant name prefix %q", cfg.NamePrefix)
	}
	s := &service{
		repo:      repo,
		merchants: merchants,
		store:     store,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Provision creates the merchant's namespace and seeds it. A ready config is
// returned as is without touching the datastore; a config left in
// provisioning or error resumes where it stopped. Concurrent calls for the
// same merchant in this process share one run, which keeps going when the
// caller that started it goes away.
func (s *service) Provision(ctx context.Context, merchantID uuid.UUID) (*TenantDatabaseDTO, error) {
	if merchantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchantId is required").
			WithDetails(map[string]any{"field": "merchantId", "reason": "required"})
	}
	ch := s.group.DoChan(merchantID.String(), func() (any, error) {
		// The run is shared, so no single caller's cancellation may end it.
		return s.provision(context.WithoutCancel(ctx), merchantID)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "provision tenant database: caller gave up").
			WithDetails(map[string]any{"merchantId": merchantID.String(), "resumable": true})
	}
	v, err := res.Val, res.Err
	if err != nil {
		return nil, err
	}
	dto := *v.(*TenantDatabaseDTO)
	return &dto, nil
}

func (s *service) provision(ctx context.Context, merchantID uuid.UUID) (*TenantDatabaseDTO, error) {
	if _, err := s.merchants.FindByID(ctx, merchantID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "merchant %s not found", merchantID).
				WithDetails(map[string]any{"resource": "merchant", "id": merchantID.String()})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load merchant")
	}

	name, err := NamespaceFor(s.cfg.NamePrefix, merchantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()).
			WithDetails(map[string]any{"field": "databaseName", "reason": "invalid"})
	}

	cfg, err := s.record(ctx, merchantID, name)
	if err != nil {
		return nil, err
	}
	if cfg.Status == enums.TenantDatabaseStatusReady {
		return FromModel(cfg), nil
	}

	ctx = s.logFields(ctx, merchantID, cfg.DatabaseName)
	run := &run{svc: s, cfg: cfg, merchantID: merchantID.String()}
	return run.execute(ctx)
}

// record inserts the config row or loads the one already there.
func (s *service) record(ctx context.Context, merchantID uuid.UUID, name string) (*models.TenantDatabase, error) {
	cfg := &models.TenantDatabase{
		MerchantID:   merchantID,
		DatabaseName: name,
		Engine:       s.store.Engine(),
		Status:       enums.TenantDatabaseStatusProvisioning,
	}
	created, err := s.repo.CreateIfAbsent(ctx, cfg)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_tenant_databases_name") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, fmt.Sprintf("database name %s is taken", name)).
				WithDetails(map[string]any{"databaseName": name})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create tenant database config").
			WithDetails(map[string]any{"step": stepRecord, "completed_steps": []string{}, "resumable": true})
	}
	if created {
		return cfg, nil
	}

	existing, err := s.repo.FindByMerchant(ctx, merchantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tenant database config")
	}
	if existing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "tenant database config changed concurrently, retry").
			WithDetails(map[string]any{"merchantId": merchantID.String()})
	}
	if existing.Engine != s.store.Engine() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("merchant database uses engine %s, service runs %s", existing.Engine, s.store.Engine())).
			WithDetails(map[string]any{"databaseName": existing.DatabaseName, "engine": existing.Engine})
	}
	return existing, nil
}

func (s *service) Get(ctx context.Context, merchantID uuid.UUID) (*TenantDatabaseDTO, error) {
	cfg, err := s.load(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	return FromModel(cfg), nil
}

// Descriptor re-derives the connection details of a ready tenant database.
func (s *service) Descriptor(ctx context.Context, merchantID uuid.UUID) (*Descriptor, error) {
	cfg, err := s.load(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	if cfg.Status != enums.TenantDatabaseStatusReady {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "tenant database is %s", cfg.Status).
			WithDetails(map[string]any{"databaseName": cfg.DatabaseName, "status": cfg.Status})
	}
	dsn, err := s.store.ConnectionString(cfg.DatabaseName)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "derive connection string")
	}
	return &Descriptor{DatabaseName: cfg.DatabaseName, Engine: cfg.Engine, ConnectionString: dsn}, nil
}

func (s *service) ListByStatus(ctx context.Context, status enums.TenantDatabaseStatus, limit int) ([]TenantDatabaseDTO, error) {
	if !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown status %q", status).
			WithDetails(map[string]any{"field": "status", "reason": "invalid"})
	}
	rows, err := s.repo.ListByStatus(ctx, status, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tenant databases")
	}
	out := make([]TenantDatabaseDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) load(ctx context.Context, merchantID uuid.UUID) (*models.TenantDatabase, error) {
	cfg, err := s.repo.FindByMerchant(ctx, merchantID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tenant database config")
	}
	if cfg == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "merchant %s has no tenant database", merchantID).
			WithDetails(map[string]any{"resource": "tenant_database", "merchantId": merchantID.String()})
	}
	return cfg, nil
}

func (s *service) logFields(ctx context.Context, merchantID uuid.UUID, name string) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithFields(ctx, map[string]any{
		"merchant_id":   merchantID.String(),
		"database_name": name,
		"engine":        s.store.Engine(),
	})
}

// run walks one config from provisioning to ready.
type run struct {
	svc        *service
	cfg        *models.TenantDatabase
	merchantID string
	completed  []string
}

func (r *run) execute(ctx context.Context) (*TenantDatabaseDTO, error) {
	s := r.svc
	name := r.cfg.DatabaseName

	if r.cfg.Status == enums.TenantDatabaseStatusError {
		if err := s.repo.MarkProvisioning(ctx, r.cfg.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resume tenant database config")
		}
		r.cfg.Status = enums.TenantDatabaseStatusProvisioning
		r.cfg.LastError = nil
	}
	r.completed = append(r.completed, stepRecord)

	var exists bool
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		exists, err = s.store.NamespaceExists(ctx, name)
		return err
	})
	if err != nil {
		return nil, r.fail(ctx, stepCheck, err)
	}
	r.completed = append(r.completed, stepCheck)

	if !exists {
		if err := r.claim(ctx); err != nil {
			return nil, r.fail(ctx, stepCreate, err)
		}
		err = r.call(ctx, func(ctx context.Context) error {
			return s.store.CreateNamespace(ctx, name, r.merchantID)
		})
		switch {
		case errors.Is(err, ErrNamespaceExists):
			exists = true
		case err != nil:
			return nil, r.fail(ctx, stepCreate, err)
		default:
			r.completed = append(r.completed, stepCreate)
		}
	}

	if exists {
		if err := r.verifyOwnership(ctx); err != nil {
			return nil, err
		}
	}

	var collections []string
	err = r.call(ctx, func(ctx context.Context) error {
		var err error
		collections, err = s.store.SeedCollections(ctx, name)
		return err
	})
	if err != nil {
		return nil, r.fail(ctx, stepSeed, err)
	}
	r.completed = append(r.completed, stepSeed)

	at := s.now()
	if err := s.repo.MarkReady(ctx, r.cfg.ID, collections, at); err != nil {
		return nil, r.fail(ctx, stepFinalize, err)
	}
	r.cfg.Status = enums.TenantDatabaseStatusReady
	r.cfg.LastError = nil
	r.cfg.Collections = collections
	r.cfg.ProvisionedAt = &at
	r.cfg.UpdatedAt = at
	if s.logg != nil {
		s.logg.Info(ctx, "tenant database ready")
	}
	return FromModel(r.cfg), nil
}

// verifyOwnership accepts an existing namespace only when it carries this
// merchant's marker. Anything else is left untouched for an operator.
func (r *run) verifyOwnership(ctx context.Context) error {
	s := r.svc
	name := r.cfg.DatabaseName
	var owner string
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		owner, err = s.store.NamespaceOwner(ctx, name)
		return err
	})
	if err != nil {
		return r.fail(ctx, stepOwnership, err)
	}
	if owner == r.merchantID {
		r.completed = append(r.completed, stepOwnership)
		return nil
	}
	if owner == "" && r.cfg.NamespaceClaimedAt != nil {
		return r.remark(ctx)
	}

	reason := "namespace exists without a provisioner marker"
	if owner != "" {
		reason = "namespace belongs to another merchant"
	}
	msg := fmt.Sprintf("%s: %s", reason, name)
	if err := s.repo.MarkError(ctx, r.cfg.ID, msg); err != nil && s.logg != nil {
		s.logg.Error(ctx, "failed to record tenant database error", err)
	}
	if s.logg != nil {
		s.logg.Warn(ctx, msg)
	}
	return pkgerrors.New(pkgerrors.CodeConflict, msg).
		WithDetails(map[string]any{
			"step":            stepOwnership,
			"completed_steps": r.steps(),
			"resumable":       false,
			"databaseName":    name,
		})
}

// claim records that this config is about to create its namespace.
func (r *run) claim(ctx context.Context) error {
	if r.cfg.NamespaceClaimedAt != nil {
		return nil
	}
	at := r.svc.now()
	if err := r.svc.repo.ClaimNamespace(ctx, r.cfg.ID, at); err != nil {
		return fmt.Errorf("claim namespace: %w", err)
	}
	r.cfg.NamespaceClaimedAt = &at
	return nil
}

// remark finishes a create that an earlier run of this config started but
// did not get to mark.
func (r *run) remark(ctx context.Context) error {
	s := r.svc
	if s.logg != nil {
		s.logg.Warn(ctx, "re-marking unmarked namespace claimed by this config")
	}
	err := r.call(ctx, func(ctx context.Context) error {
		return s.store.MarkNamespace(ctx, r.cfg.DatabaseName, r.merchantID)
	})
	if err != nil {
		return r.fail(ctx, stepOwnership, err)
	}
	r.completed = append(r.completed, stepOwnership)
	return nil
}

func (r *run) call(ctx context.Context, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, retry.Once(r.svc.cfg.CallTimeout), fn)
}

// fail records the error on the config and returns a retryable error that
// names the failing step.
func (r *run) fail(ctx context.Context, step string, cause error) error {
	s := r.svc
	if err := s.repo.MarkError(ctx, r.cfg.ID, fmt.Sprintf("%s: %v", step, cause)); err != nil && s.logg != nil {
		s.logg.Error(ctx, "failed to record tenant database error", err)
	}
	if s.logg != nil {
		s.logg.Error(s.logg.WithStep(ctx, step), "tenant database provisioning failed", cause)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, fmt.Sprintf("provision tenant database: %s failed", step)).
		WithDetails(map[string]any{
			"step":            step,
			"completed_steps": r.steps(),
			"resumable":       true,
			"databaseName":    r.cfg.DatabaseName,
		})
}

func (r *run) steps() []string {
	out := make([]string, len(r.completed))
	copy(out, r.completed)
	return out
}
