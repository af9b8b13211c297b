package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-provisioner/internal/domains"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-provisioner/pkg/errors"
	"github.com/angelmondragon/storefront-provisioner/pkg/logger"
)

const defaultDomainRecheckLimit = 100

type domainChecker interface {
	ListUnverified(ctx context.Context, limit int) ([]domains.DomainConfigurationDTO, error)
	Check(ctx context.Context, id uuid.UUID) (*domains.DomainConfigurationDTO, error)
}

// DomainRecheckJobParams configures the domain re-verification job.
type DomainRecheckJobParams struct {
	Logger  *logger.Logger
	Domains domainChecker
	Limit   int
}

// NewDomainRecheckJob builds a job that re-runs DNS checks for domains that
// are not verified yet, least recently checked first.
func NewDomainRecheckJob(params DomainRecheckJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Domains == nil {
		return nil, fmt.Errorf("domain checker required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultDomainRecheckLimit
	}
	return &domainRecheckJob{
		logg:    params.Logger,
		domains: params.Domains,
		limit:   limit,
	}, nil
}

type domainRecheckJob struct {
	logg    *logger.Logger
	domains domainChecker
	limit   int
}

func (j *domainRecheckJob) Name() string { return "domain-recheck" }

func (j *domainRecheckJob) Run(ctx context.Context) error {
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"job":   j.Name(),
		"event": "cron.job",
	})
	pending, err := j.domains.ListUnverified(logCtx, j.limit)
	if err != nil {
		return fmt.Errorf("list unverified domains: %w", err)
	}

	var errs error
	counts := map[enums.DomainStatus]int{}
	for _, cfg := range pending {
		checked, err := j.domains.Check(logCtx, cfg.ID)
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			// removed since it was listed
			continue
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("check domain %s: %w", cfg.Domain, err))
			continue
		}
		counts[checked.Status]++
	}

	reportCtx := j.logg.WithFields(logCtx, map[string]any{
		"candidates":    len(pending),
		"verified":      counts[enums.DomainStatusVerified],
		"pending":       counts[enums.DomainStatusPending],
		"misconfigured": counts[enums.DomainStatusMisconfigured],
	})
	j.logg.Info(reportCtx, "domain recheck complete")
	return errs
}
