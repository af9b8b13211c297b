package provisioning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-provisioner/internal/deployments"
	"github.com/angelmondragon/storefront-provisioner/internal/domains"
	"github.com/angelmondragon/storefront-provisioner/internal/subscriptions"
	"github.com/angelmondragon/storefront-provisioner/internal/tenantdb"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-provisioner/pkg/errors"
	"github.com/angelmondragon/storefront-provisioner/pkg/logger"
	"github.com/angelmondragon/storefront-provisioner/pkg/metrics"
)

// Pipeline steps in execution order.
const (
	StepSubscription = "subscription"
	StepDatabase     = "database"
	StepDeployment   = "deployment"
	StepDomain       = "domain"
)

type subscriptionBinder interface {
	Bind(ctx context.Context, merchantID uuid.UUID, planID string, billingCycleMonths int) (*subscriptions.SubscriptionDTO, error)
	Get(ctx context.Context, merchantID uuid.UUID) (*subscriptions.SubscriptionDTO, error)
}

type databaseProvisioner interface {
	Provision(ctx context.Context, merchantID uuid.UUID) (*tenantdb.TenantDatabaseDTO, error)
	Get(ctx context.Context, merchantID uuid.UUID) (*tenantdb.TenantDatabaseDTO, error)
	Descriptor(ctx context.Context, merchantID uuid.UUID) (*tenantdb.Descriptor, error)
}

type deploymentRegistrar interface {
	Register(ctx context.Context, merchantID uuid.UUID, db tenantdb.Descriptor) (*deployments.DeploymentDTO, error)
	Get(ctx context.Context, merchantID uuid.UUID) (*deployments.DeploymentDTO, error)
}

type domainVerifier interface {
	Request(ctx context.Context, merchantID uuid.UUID, domain string) (*domains.DomainConfigurationDTO, error)
	Check(ctx context.Context, id uuid.UUID) (*domains.DomainConfigurationDTO, error)
}

// Input names everything one provisioning run needs.
type Input struct {
	MerchantID         uuid.UUID `json:"merchantId"`
	PlanID             string    `json:"planId" validate:"required"`
	BillingCycleMonths int       `json:"billingCycleMonths" validate:"required,oneof=1 6 12"`
	Domain             string    `json:"domain,omitempty" validate:"omitempty,max=253"`
}

// Result is the state of every record after a run.
type Result struct {
	Subscription   *subscriptions.SubscriptionDTO  `json:"subscription"`
	Database       *tenantdb.TenantDatabaseDTO     `json:"database"`
	Deployment     *deployments.DeploymentDTO      `json:"deployment"`
	Domain         *domains.DomainConfigurationDTO `json:"domain,omitempty"`
	CompletedSteps []string                        `json:"completedSteps"`
	SkippedSteps   []string                        `json:"skippedSteps"`
}

// Pipeline runs the provisioning steps for one merchant in dependency order.
// Steps whose record is already in a good state are skipped, so a failed run
// can be repeated as is.
type Pipeline struct {
	subs    subscriptionBinder
	dbs     databaseProvisioner
	deploys deploymentRegistrar
	domains domainVerifier
	metrics *metrics.ProvisioningMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewPipeline wires the pipeline. The domain verifier is optional; without it
// runs that ask for a domain fail at the domain step.
func NewPipeline(subs subscriptionBinder, dbs databaseProvisioner, deploys deploymentRegistrar, domainSvc domainVerifier, m *metrics.ProvisioningMetrics, logg *logger.Logger) (*Pipeline, error) {
	if subs == nil || dbs == nil || deploys == nil {
		return nil, fmt.Errorf("subscription, database and deployment services are required")
	}
	return &Pipeline{
		subs:    subs,
		dbs:     dbs,
		deploys: deploys,
		domains: domainSvc,
		metrics: m,
		logg:    logg,
		now:     time.Now,
	}, nil
}

type step struct {
	name string
	run  func(ctx context.Context, res *Result) (skipped bool, err error)
}

// Run provisions in.MerchantID. On failure the returned error keeps its code
// and carries step, completed_steps and resumable details.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	if in.MerchantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "merchantId is required").
			WithDetails(map[string]any{"field": "merchantId", "reason": "required"})
	}
	in.PlanID = strings.TrimSpace(in.PlanID)
	if p.logg != nil {
		ctx = p.logg.WithMerchantID(ctx, in.MerchantID.String())
	}

	res := &Result{CompletedSteps: []string{}, SkippedSteps: []string{}}
	for _, st := range p.steps(in) {
		started := p.now()
		skipped, err := st.run(ctx, res)
		took := p.now().Sub(started)
		if err != nil {
			p.metrics.ObserveStep(st.name, metrics.OutcomeFailure, took)
			if p.logg != nil {
				p.logg.Error(p.logg.WithStep(ctx, st.name), "provisioning step failed", err)
			}
			return res, stepError(st.name, res.CompletedSteps, err)
		}
		if skipped {
			p.metrics.ObserveStep(st.name, metrics.OutcomeSkipped, 0)
			res.SkippedSteps = append(res.SkippedSteps, st.name)
		} else {
			p.metrics.ObserveStep(st.name, metrics.OutcomeSuccess, took)
		}
		res.CompletedSteps = append(res.CompletedSteps, st.name)
	}
	if p.logg != nil {
		p.logg.Info(ctx, "merchant provisioned")
	}
	return res, nil
}

func (p *Pipeline) steps(in Input) []step {
	steps := []step{
		{name: StepSubscription, run: func(ctx context.Context, res *Result) (bool, error) {
			existing, err := p.subs.Get(ctx, in.MerchantID)
			if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return false, err
			}
			if existing != nil && existing.Status.Live() {
				res.Subscription = existing
				return true, nil
			}
			sub, err := p.subs.Bind(ctx, in.MerchantID, in.PlanID, in.BillingCycleMonths)
			if err != nil {
				return false, err
			}
			res.Subscription = sub
			return false, nil
		}},
		{name: StepDatabase, run: func(ctx context.Context, res *Result) (bool, error) {
			existing, err := p.dbs.Get(ctx, in.MerchantID)
			if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return false, err
			}
			if existing != nil && existing.Status == enums.TenantDatabaseStatusReady {
				res.Database = existing
				return true, nil
			}
			db, err := p.dbs.Provision(ctx, in.MerchantID)
			if err != nil {
				return false, err
			}
			res.Database = db
			return false, nil
		}},
		{name: StepDeployment, run: func(ctx context.Context, res *Result) (bool, error) {
			existing, err := p.deploys.Get(ctx, in.MerchantID)
			if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return false, err
			}
			if existing != nil && existing.DeploymentStatus == enums.DeploymentStatusActive {
				res.Deployment = existing
				return true, nil
			}
			desc, err := p.dbs.Descriptor(ctx, in.MerchantID)
			if err != nil {
				return false, err
			}
			dep, err := p.deploys.Register(ctx, in.MerchantID, *desc)
			if err != nil {
				return false, err
			}
			res.Deployment = dep
			return false, nil
		}},
	}
	if strings.TrimSpace(in.Domain) != "" {
		steps = append(steps, step{name: StepDomain, run: func(ctx context.Context, res *Result) (bool, error) {
			if p.domains == nil {
				return false, pkgerrors.New(pkgerrors.CodeInternal, "domain verifier not configured")
			}
			cfg, err := p.domains.Request(ctx, in.MerchantID, in.Domain)
			if err != nil {
				return false, err
			}
			if cfg.Verified {
				res.Domain = cfg
				return true, nil
			}
			checked, err := p.domains.Check(ctx, cfg.ID)
			if err != nil {
				return false, err
			}
			res.Domain = checked
			return false, nil
		}})
	}
	return steps
}

// stepError keeps the code of err and adds where the run stopped. Partial
// state exists once any step completed; re-running is then safe because every
// step is idempotent by merchant.
func stepError(name string, completed []string, err error) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, err.Error())
	}
	details := map[string]any{}
	for k, v := range typed.DetailMap() {
		details[k] = v
	}
	if _, ok := details["resumable"]; !ok {
		details["resumable"] = typed.Retryable() || len(completed) > 0
	}
	done := make([]string, len(completed))
	copy(done, completed)
	details["step"] = name
	details["completed_steps"] = done
	details["partial_state"] = len(completed) > 0
	return pkgerrors.Wrap(typed.Code(), err, fmt.Sprintf("%s step failed: %s", name, typed.Message())).
		WithDetails(details)
}
