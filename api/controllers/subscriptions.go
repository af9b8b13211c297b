package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-provisioner/api/responses"
	"github.com/angelmondragon/storefront-provisioner/api/validators"
	"github.com/angelmondragon/storefront-provisioner/internal/subscriptions"
	"github.com/angelmondragon/storefront-provisioner/pkg/logger"
)

// SubscriptionService describes the subscription methods used by the HTTP controllers.
type SubscriptionService interface {
	Bind(ctx context.Context, merchantID uuid.UUID, planID string, billingCycleMonths int) (*subscriptions.SubscriptionDTO, error)
	Get(ctx context.Context, merchantID uuid.UUID) (*subscriptions.SubscriptionDTO, error)
	Cancel(ctx context.Context, merchantID uuid.UUID, atPeriodEnd bool) (*subscriptions.SubscriptionDTO, error)
	Renew(ctx context.Context, merchantID uuid.UUID) (*subscriptions.SubscriptionDTO, error)
}

type subscriptionBindRequest struct {
	PlanID             string `json:"planId" validate:"required"`
	BillingCycleMonths int    `json:"billingCycleMonths" validate:"required,billing_cycle"`
}

type subscriptionCancelRequest struct {
	AtPeriodEnd bool `json:"atPeriodEnd"`
}

func SubscriptionBind(svc SubscriptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		merchantID, err := validators.ParseUUIDParam(r, "merchantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload subscriptionBindRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		sub, err := svc.Bind(ctx, merchantID, payload.PlanID, payload.BillingCycleMonths)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, sub)
	}
}

func SubscriptionGet(svc SubscriptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		merchantID, err := validators.ParseUUIDParam(r, "merchantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		sub, err := svc.Get(ctx, merchantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, sub)
	}
}

func SubscriptionCancel(svc SubscriptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		merchantID, err := validators.ParseUUIDParam(r, "merchantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload subscriptionCancelRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}
		sub, err := svc.Cancel(ctx, merchantID, payload.AtPeriodEnd)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, sub)
	}
}

func SubscriptionRenew(svc SubscriptionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		merchantID, err := validators.ParseUUIDParam(r, "merchantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		sub, err := svc.Renew(ctx, merchantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, sub)
	}
}
