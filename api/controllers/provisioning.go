package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront-provisioner/api/responses"
	"github.com/angelmondragon/storefront-provisioner/api/validators"
	"github.com/angelmondragon/storefront-provisioner/internal/provisioning"
	"github.com/angelmondragon/storefront-provisioner/pkg/logger"
)

// Provisioner runs the end-to-end merchant provisioning workflow.
type Provisioner interface {
	Run(ctx context.Context, in provisioning.Input) (*provisioning.Result, error)
}

type provisionRequest struct {
	PlanID             string `json:"planId" validate:"required"`
	BillingCycleMonths int    `json:"billingCycleMonths" validate:"required,billing_cycle"`
	Domain             string `json:"domain,omitempty" validate:"omitempty,max=253"`
}

func MerchantProvision(p Provisioner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		merchantID, err := validators.ParseUUIDParam(r, "merchantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload provisionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithMerchantID(ctx, merchantID.String())
		}
		result, err := p.Run(ctx, provisioning.Input{
			MerchantID:         merchantID,
			PlanID:             payload.PlanID,
			BillingCycleMonths: payload.BillingCycleMonths,
			Domain:             payload.Domain,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
