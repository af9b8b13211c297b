package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-provisioner/internal/deployments"
	"github.com/angelmondragon/storefront-provisioner/internal/domains"
	"github.com/angelmondragon/storefront-provisioner/internal/plans"
	"github.com/angelmondragon/storefront-provisioner/internal/provisioning"
	"github.com/angelmondragon/storefront-provisioner/internal/subscriptions"
	"github.com/angelmondragon/storefront-provisioner/internal/tenantdb"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-provisioner/pkg/errors"
)

const defaultListLimit = 50

type pipelineRunner interface {
	Run(ctx context.Context, in provisioning.Input) (*provisioning.Result, error)
}

type planLister interface {
	List(ctx context.Context, activeOnly bool) ([]plans.PlanDTO, error)
}

type subscriptionReader interface {
	Get(ctx context.Context, merchantID uuid.UUID) (*subscriptions.SubscriptionDTO, error)
	Renew(ctx context.Context, merchantID uuid.UUID) (*subscriptions.SubscriptionDTO, error)
}

type databaseReader interface {
	Get(ctx context.Context, merchantID uuid.UUID) (*tenantdb.TenantDatabaseDTO, error)
	ListByStatus(ctx context.Context, status enums.TenantDatabaseStatus, limit int) ([]tenantdb.TenantDatabaseDTO, error)
}

type deploymentReader interface {
	Get(ctx context.Context, merchantID uuid.UUID) (*deployments.DeploymentDTO, error)
}

type domainChecker interface {
	Check(ctx context.Context, id uuid.UUID) (*domains.DomainConfigurationDTO, error)
	GetByMerchant(ctx context.Context, merchantID uuid.UUID) (*domains.DomainConfigurationDTO, error)
	ListUnverified(ctx context.Context, limit int) ([]domains.DomainConfigurationDTO, error)
}

type cli struct {
	out           io.Writer
	pipeline      pipelineRunner
	plans         planLister
	subscriptions subscriptionReader
	databases     databaseReader
	deployments   deploymentReader
	domains       domainChecker
}

var commands = []string{"provision", "status", "verify-domain", "renew", "list-plans", "list-databases", "list-domains"}

func knownCommand(name string) bool {
	for _, c := range commands {
		if c == name {
			return true
		}
	}
	return false
}

func (c *cli) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "provision":
		return c.provision(ctx, args)
	case "status":
		return c.status(ctx, args)
	case "verify-domain":
		return c.verifyDomain(ctx, args)
	case "renew":
		return c.renew(ctx, args)
	case "list-plans":
		return c.listPlans(ctx, args)
	case "list-databases":
		return c.listDatabases(ctx, args)
	case "list-domains":
		return c.listDomains(ctx, args)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func (c *cli) provision(ctx context.Context, args []string) error {
	fs := newFlagSet("provision")
	merchant := fs.String("merchant", "", "merchant id")
	plan := fs.String("plan", "", "plan id")
	cycle := fs.Int("cycle", 1, "billing cycle in months (1, 6 or 12)")
	domain := fs.String("domain", "", "optional custom domain")
	if err := fs.Parse(args); err != nil {
		return err
	}
	merchantID, err := parseID("merchant", *merchant)
	if err != nil {
		return err
	}
	if *plan == "" {
		return fmt.Errorf("--plan is required")
	}

	result, err := c.pipeline.Run(ctx, provisioning.Input{
		MerchantID:         merchantID,
		PlanID:             *plan,
		BillingCycleMonths: *cycle,
		Domain:             *domain,
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Details() != nil {
			_ = c.print(map[string]any{"error": typed.Message(), "details": typed.Details()})
		}
		return err
	}
	return c.print(result)
}

type merchantStatus struct {
	MerchantID   uuid.UUID                       `json:"merchantId"`
	Subscription *subscriptions.SubscriptionDTO  `json:"subscription"`
	Database     *tenantdb.TenantDatabaseDTO     `json:"database"`
	Deployment   *deployments.DeploymentDTO      `json:"deployment"`
	Domain       *domains.DomainConfigurationDTO `json:"domain"`
}

func (c *cli) status(ctx context.Context, args []string) error {
	fs := newFlagSet("status")
	merchant := fs.String("merchant", "", "merchant id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	merchantID, err := parseID("merchant", *merchant)
	if err != nil {
		return err
	}

	out := merchantStatus{MerchantID: merchantID}
	if out.Subscription, err = c.subscriptions.Get(ctx, merchantID); ignoreNotFound(err) != nil {
		return err
	}
	if out.Database, err = c.databases.Get(ctx, merchantID); ignoreNotFound(err) != nil {
		return err
	}
	if out.Deployment, err = c.deployments.Get(ctx, merchantID); ignoreNotFound(err) != nil {
		return err
	}
	if out.Domain, err = c.domains.GetByMerchant(ctx, merchantID); ignoreNotFound(err) != nil {
		return err
	}
	return c.print(out)
}

func (c *cli) verifyDomain(ctx context.Context, args []string) error {
	fs := newFlagSet("verify-domain")
	id := fs.String("id", "", "domain id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	domainID, err := parseID("id", *id)
	if err != nil {
		return err
	}
	dto, err := c.domains.Check(ctx, domainID)
	if err != nil {
		return err
	}
	return c.print(dto)
}

func (c *cli) renew(ctx context.Context, args []string) error {
	fs := newFlagSet("renew")
	merchant := fs.String("merchant", "", "merchant id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	merchantID, err := parseID("merchant", *merchant)
	if err != nil {
		return err
	}
	dto, err := c.subscriptions.Renew(ctx, merchantID)
	if err != nil {
		return err
	}
	return c.print(dto)
}

func (c *cli) listPlans(ctx context.Context, args []string) error {
	fs := newFlagSet("list-plans")
	all := fs.Bool("all", false, "include inactive plans")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rows, err := c.plans.List(ctx, !*all)
	if err != nil {
		return err
	}
	return c.print(rows)
}

func (c *cli) listDatabases(ctx context.Context, args []string) error {
	fs := newFlagSet("list-databases")
	rawStatus := fs.String("status", string(enums.TenantDatabaseStatusError), "provisioning, ready or error")
	limit := fs.Int("limit", defaultListLimit, "maximum rows")
	if err := fs.Parse(args); err != nil {
		return err
	}
	status, err := enums.ParseTenantDatabaseStatus(*rawStatus)
	if err != nil {
		return err
	}
	rows, err := c.databases.ListByStatus(ctx, status, *limit)
	if err != nil {
		return err
	}
	return c.print(rows)
}

func (c *cli) listDomains(ctx context.Context, args []string) error {
	fs := newFlagSet("list-domains")
	limit := fs.Int("limit", defaultListLimit, "maximum rows")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rows, err := c.domains.ListUnverified(ctx, *limit)
	if err != nil {
		return err
	}
	return c.print(rows)
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseID(flagName, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, fmt.Errorf("--%s is required", flagName)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s must be a uuid: %w", flagName, err)
	}
	return id, nil
}

func ignoreNotFound(err error) error {
	if err == nil || pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil
	}
	return err
}
