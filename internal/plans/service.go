package plans

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-provisioner/pkg/db"
	"github.com/angelmondragon/storefront-provisioner/pkg/db/models"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-provisioner/pkg/errors"
)

var planIDRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,62}$`)

// Service exposes the plan registry.
type Service interface {
	Create(ctx context.Context, input CreatePlanInput) (*PlanDTO, error)
	Get(ctx context.Context, id string) (*PlanDTO, error)
	Update(ctx context.Context, id string, input UpdatePlanInput) (*PlanDTO, error)
	List(ctx context.Context, activeOnly bool) ([]PlanDTO, error)
	Delete(ctx context.Context, id string) error
	FeatureCatalog() []FeatureDefinition
}

type service struct {
	repo Repository
}

// NewService builds a plan service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("plan repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, input CreatePlanInput) (*PlanDTO, error) {
	id := strings.ToLower(strings.TrimSpace(input.ID))
	if id == "" {
		id = "plan_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	if !planIDRe.MatchString(id) {
		return nil, fieldError("id", "must be 2-63 characters of a-z, 0-9, '_' or '-'")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fieldError("name", "is required")
	}
	cycle, err := cycleFor(input.BillingCycleMonths)
	if err != nil {
		return nil, err
	}
	if input.BasePrice.IsNegative() {
		return nil, fieldError("basePrice", "must not be negative")
	}
	price := input.BasePrice.Mul(decimal.NewFromInt(int64(input.BillingCycleMonths)))
	if input.Price != nil {
		if input.Price.IsNegative() {
			return nil, fieldError("price", "must not be negative")
		}
		price = *input.Price
	}
	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyUSD
	}
	if !currency.IsValid() {
		return nil, fieldError("currency", fmt.Sprintf("unsupported currency %q", currency))
	}
	if err := ValidateFeatures(input.Features); err != nil {
		return nil, err
	}
	features, err := encodeFeatures(input.Features)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode features")
	}
	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}

	plan := &models.Plan{
		ID:                 id,
		Name:               name,
		Description:        trimmedPtr(input.Description),
		BasePrice:          input.BasePrice.Round(2),
		Price:              price.Round(2),
		Currency:           currency,
		BillingCycle:       cycle,
		BillingCycleMonths: input.BillingCycleMonths,
		Features:           features,
		IsActive:           active,
		IsPopular:          input.IsPopular,
		SortOrder:          input.SortOrder,
	}
	if err := s.repo.Create(ctx, plan); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "plan already exists").
				WithDetails(map[string]any{"planId": id})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create plan")
	}
	return toDTO(plan)
}

func (s *service) Get(ctx context.Context, id string) (*PlanDTO, error) {
	plan, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return toDTO(plan)
}

func (s *service) Update(ctx context.Context, id string, input UpdatePlanInput) (*PlanDTO, error) {
	plan, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, fieldError("name", "must not be empty")
		}
		plan.Name = name
	}
	if input.Description != nil {
		plan.Description = trimmedPtr(input.Description)
	}
	if input.BasePrice != nil {
		if input.BasePrice.IsNegative() {
			return nil, fieldError("basePrice", "must not be negative")
		}
		plan.BasePrice = input.BasePrice.Round(2)
	}
	if input.Price != nil {
		if input.Price.IsNegative() {
			return nil, fieldError("price", "must not be negative")
		}
		plan.Price = input.Price.Round(2)
	}
	if input.Currency != nil {
		if !input.Currency.IsValid() {
			return nil, fieldError("currency", fmt.Sprintf("unsupported currency %q", *input.Currency))
		}
		plan.Currency = *input.Currency
	}
	if input.BillingCycleMonths != nil {
		cycle, err := cycleFor(*input.BillingCycleMonths)
		if err != nil {
			return nil, err
		}
		plan.BillingCycle = cycle
		plan.BillingCycleMonths = *input.BillingCycleMonths
	}
	if input.Features != nil {
		if err := ValidateFeatures(*input.Features); err != nil {
			return nil, err
		}
		raw, err := encodeFeatures(*input.Features)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode features")
		}
		plan.Features = raw
	}
	if input.IsActive != nil {
		plan.IsActive = *input.IsActive
	}
	if input.IsPopular != nil {
		plan.IsPopular = *input.IsPopular
	}
	if input.SortOrder != nil {
		plan.SortOrder = *input.SortOrder
	}

	if err := s.repo.Update(ctx, plan); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(plan.ID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update plan")
	}
	return toDTO(plan)
}

func (s *service) List(ctx context.Context, activeOnly bool) ([]PlanDTO, error) {
	rows, err := s.repo.List(ctx, activeOnly)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list plans")
	}
	out := make([]PlanDTO, 0, len(rows))
	for i := range rows {
		dto, err := toDTO(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *dto)
	}
	return out, nil
}

// Delete removes a plan that no live subscription references.
func (s *service) Delete(ctx context.Context, id string) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	count, err := s.repo.CountLiveSubscriptions(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count plan subscriptions")
	}
	if count > 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "plan has live subscriptions").
			WithDetails(map[string]any{"planId": id, "subscriptions": count})
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound(id)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete plan")
	}
	return nil
}

func (s *service) FeatureCatalog() []FeatureDefinition {
	return Catalog()
}

func (s *service) load(ctx context.Context, id string) (*models.Plan, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fieldError("planId", "is required")
	}
	plan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(id)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	return plan, nil
}

func toDTO(plan *models.Plan) (*PlanDTO, error) {
	dto, err := FromModel(plan)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "map plan")
	}
	return dto, nil
}

func cycleFor(months int) (enums.BillingCycle, error) {
	cycle, err := enums.BillingCycleForMonths(months)
	if err != nil {
		return "", fieldError("billingCycleMonths", "must be 1, 6 or 12")
	}
	return cycle, nil
}

func notFound(id string) error {
	return pkgerrors.Newf(pkgerrors.CodeNotFound, "plan %s not found", id).
		WithDetails(map[string]any{"resource": "plan", "id": id})
}

func fieldError(field, reason string) error {
	return pkgerrors.Newf(pkgerrors.CodeValidation, "%s %s", field, reason).
		WithDetails(map[string]any{"field": field, "reason": reason})
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}
