package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-provisioner/api/responses"
	"github.com/angelmondragon/storefront-provisioner/api/validators"
	"github.com/angelmondragon/storefront-provisioner/internal/tenantdb"
	"github.com/angelmondragon/storefront-provisioner/pkg/logger"
)

// TenantDatabaseService describes the tenant database methods used by the HTTP controllers.
type TenantDatabaseService interface {
	DescriptorSource
	Provision(ctx context.Context, merchantID uuid.UUID) (*tenantdb.TenantDatabaseDTO, error)
	Get(ctx context.Context, merchantID uuid.UUID) (*tenantdb.TenantDatabaseDTO, error)
}

func DatabaseProvision(svc TenantDatabaseService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		merchantID, err := validators.ParseUUIDParam(r, "merchantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithMerchantID(ctx, merchantID.String())
		}
		cfg, err := svc.Provision(ctx, merchantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, cfg)
	}
}

func DatabaseGet(svc TenantDatabaseService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		merchantID, err := validators.ParseUUIDParam(r, "merchantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cfg, err := svc.Get(ctx, merchantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, cfg)
	}
}
