package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-provisioner/api/responses"
	"github.com/angelmondragon/storefront-provisioner/api/validators"
	"github.com/angelmondragon/storefront-provisioner/internal/domains"
	"github.com/angelmondragon/storefront-provisioner/pkg/logger"
)

// DomainService describes the domain verifier methods used by the HTTP controllers.
type DomainService interface {
	Request(ctx context.Context, merchantID uuid.UUID, domain string) (*domains.DomainConfigurationDTO, error)
	Check(ctx context.Context, id uuid.UUID) (*domains.DomainConfigurationDTO, error)
	Remove(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*domains.DomainConfigurationDTO, error)
	GetByMerchant(ctx context.Context, merchantID uuid.UUID) (*domains.DomainConfigurationDTO, error)
}

type domainRequest struct {
	Domain string `json:"domain" validate:"required,max=253"`
}

func DomainRequest(svc DomainService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		merchantID, err := validators.ParseUUIDParam(r, "merchantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload domainRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cfg, err := svc.Request(ctx, merchantID, payload.Domain)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, cfg)
	}
}

func DomainGetByMerchant(svc DomainService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		merchantID, err := validators.ParseUUIDParam(r, "merchantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cfg, err := svc.GetByMerchant(ctx, merchantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, cfg)
	}
}

func DomainGet(svc DomainService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := validators.ParseUUIDParam(r, "domainId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cfg, err := svc.Get(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, cfg)
	}
}

// DomainVerify re-runs the DNS checks; a pending or misconfigured outcome is
// still a 200 carrying the per-record diagnostics.
func DomainVerify(svc DomainService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := validators.ParseUUIDParam(r, "domainId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cfg, err := svc.Check(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, cfg)
	}
}

func DomainRemove(svc DomainService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := validators.ParseUUIDParam(r, "domainId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := svc.Remove(ctx, id); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
