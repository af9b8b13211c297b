package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-provisioner/api/responses"
	"github.com/angelmondragon/storefront-provisioner/api/validators"
	"github.com/angelmondragon/storefront-provisioner/internal/deployments"
	"github.com/angelmondragon/storefront-provisioner/internal/tenantdb"
	"github.com/angelmondragon/storefront-provisioner/pkg/logger"
)

// DeploymentService describes the deployment registrar methods used by the HTTP controllers.
type DeploymentService interface {
	Register(ctx context.Context, merchantID uuid.UUID, db tenantdb.Descriptor) (*deployments.DeploymentDTO, error)
	Redeploy(ctx context.Context, deploymentID uuid.UUID) (*deployments.DeploymentDTO, error)
	Get(ctx context.Context, merchantID uuid.UUID) (*deployments.DeploymentDTO, error)
}

// DescriptorSource resolves the connection details of a ready tenant database.
type DescriptorSource interface {
	Descriptor(ctx context.Context, merchantID uuid.UUID) (*tenantdb.Descriptor, error)
}

// DeploymentRegister deploys the storefront against the merchant's ready
// tenant database.
func DeploymentRegister(svc DeploymentService, dbs DescriptorSource, logg *logger.Logger) http.HandlerFunc {
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
		desc, err := dbs.Descriptor(ctx, merchantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		deployment, err := svc.Register(ctx, merchantID, *desc)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, deployment)
	}
}

func DeploymentGet(svc DeploymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		merchantID, err := validators.ParseUUIDParam(r, "merchantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		deployment, err := svc.Get(ctx, merchantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, deployment)
	}
}

func DeploymentRedeploy(svc DeploymentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		deploymentID, err := validators.ParseUUIDParam(r, "deploymentId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		deployment, err := svc.Redeploy(ctx, deploymentID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, deployment)
	}
}
