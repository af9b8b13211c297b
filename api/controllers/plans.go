package controllers

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-provisioner/api/responses"
	"github.com/angelmondragon/storefront-provisioner/api/validators"
	"github.com/angelmondragon/storefront-provisioner/internal/plans"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
	"github.com/angelmondragon/storefront-provisioner/pkg/logger"
)

// PlanService describes the plan registry methods used by the HTTP controllers.
type PlanService interface {
	Create(ctx context.Context, input plans.CreatePlanInput) (*plans.PlanDTO, error)
	Get(ctx context.Context, id string) (*plans.PlanDTO, error)
	Update(ctx context.Context, id string, input plans.UpdatePlanInput) (*plans.PlanDTO, error)
	List(ctx context.Context, activeOnly bool) ([]plans.PlanDTO, error)
	Delete(ctx context.Context, id string) error
	FeatureCatalog() []plans.FeatureDefinition
}

type planCreateRequest struct {
	ID                 string           `json:"id,omitempty" validate:"omitempty,max=63"`
	Name               string           `json:"name" validate:"required,max=120"`
	Description        *string          `json:"description,omitempty"`
	BasePrice          decimal.Decimal  `json:"basePrice"`
	Price              *decimal.Decimal `json:"price,omitempty"`
	Currency           enums.Currency   `json:"currency,omitempty"`
	BillingCycleMonths int              `json:"billingCycleMonths" validate:"required,billing_cycle"`
	Features           plans.FeatureMap `json:"features,omitempty"`
	IsActive           *bool            `json:"isActive,omitempty"`
	IsPopular          bool             `json:"isPopular,omitempty"`
	SortOrder          int              `json:"sortOrder,omitempty"`
}

type planUpdateRequest struct {
	Name               *string           `json:"name,omitempty" validate:"omitempty,max=120"`
	Description        *string           `json:"description,omitempty"`
	BasePrice          *decimal.Decimal  `json:"basePrice,omitempty"`
	Price              *decimal.Decimal  `json:"price,omitempty"`
	Currency           *enums.Currency   `json:"currency,omitempty"`
	BillingCycleMonths *int              `json:"billingCycleMonths,omitempty" validate:"omitempty,billing_cycle"`
	Features           *plans.FeatureMap `json:"features,omitempty"`
	IsActive           *bool             `json:"isActive,omitempty"`
	IsPopular          *bool             `json:"isPopular,omitempty"`
	SortOrder          *int              `json:"sortOrder,omitempty"`
}

type planListResponse struct {
	Plans []plans.PlanDTO `json:"plans"`
}

func FeatureCatalog(svc PlanService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]any{"features": svc.FeatureCatalog()})
	}
}

func PlanCreate(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var payload planCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		plan, err := svc.Create(ctx, plans.CreatePlanInput{
			ID:                 payload.ID,
			Name:               payload.Name,
			Description:        payload.Description,
			BasePrice:          payload.BasePrice,
			Price:              payload.Price,
			Currency:           payload.Currency,
			BillingCycleMonths: payload.BillingCycleMonths,
			Features:           payload.Features,
			IsActive:           payload.IsActive,
			IsPopular:          payload.IsPopular,
			SortOrder:          payload.SortOrder,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, plan)
	}
}

func PlanList(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		activeOnly, err := validators.ParseQueryBool(r, "active", false)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		list, err := svc.List(ctx, activeOnly)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if list == nil {
			list = []plans.PlanDTO{}
		}
		responses.WriteSuccess(w, planListResponse{Plans: list})
	}
}

func PlanGet(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := validators.PathParam(r, "planId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		plan, err := svc.Get(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, plan)
	}
}

func PlanUpdate(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := validators.PathParam(r, "planId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload planUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		plan, err := svc.Update(ctx, id, plans.UpdatePlanInput{
			Name:               payload.Name,
			Description:        payload.Description,
			BasePrice:          payload.BasePrice,
			Price:              payload.Price,
			Currency:           payload.Currency,
			BillingCycleMonths: payload.BillingCycleMonths,
			Features:           payload.Features,
			IsActive:           payload.IsActive,
			IsPopular:          payload.IsPopular,
			SortOrder:          payload.SortOrder,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, plan)
	}
}

func PlanDelete(svc PlanService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := validators.PathParam(r, "planId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := svc.Delete(ctx, id); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
