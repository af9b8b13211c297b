package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-provisioner/api/responses"
	"github.com/angelmondragon/storefront-provisioner/api/validators"
	"github.com/angelmondragon/storefront-provisioner/internal/merchants"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
	"github.com/angelmondragon/storefront-provisioner/pkg/logger"
	"github.com/angelmondragon/storefront-provisioner/pkg/pagination"
)

// MerchantService describes the merchant registry methods used by the HTTP controllers.
type MerchantService interface {
	Create(ctx context.Context, input merchants.CreateMerchantInput) (*merchants.MerchantDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*merchants.MerchantDTO, error)
	UpdateSettings(ctx context.Context, id uuid.UUID, input merchants.UpdateSettingsInput) (*merchants.MerchantDTO, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.MerchantStatus) (*merchants.MerchantDTO, error)
	List(ctx context.Context, params pagination.Params) (*merchants.ListResult, error)
}

type merchantCreateRequest struct {
	Name      string               `json:"name" validate:"required,max=200"`
	Email     string               `json:"email" validate:"required,email"`
	Phone     *string              `json:"phone,omitempty" validate:"omitempty,max=32"`
	Status    enums.MerchantStatus `json:"status,omitempty"`
	BrandName string               `json:"brandName,omitempty" validate:"omitempty,max=200"`
	Currency  enums.Currency       `json:"currency,omitempty"`
	Timezone  string               `json:"timezone,omitempty"`
}

type merchantSettingsRequest struct {
	BrandName *string         `json:"brandName,omitempty" validate:"omitempty,max=200"`
	Currency  *enums.Currency `json:"currency,omitempty"`
	Timezone  *string         `json:"timezone,omitempty"`
}

type merchantStatusRequest struct {
	Status enums.MerchantStatus `json:"status" validate:"required"`
}

func MerchantCreate(svc MerchantService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var payload merchantCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		merchant, err := svc.Create(ctx, merchants.CreateMerchantInput{
			Name:      payload.Name,
			Email:     payload.Email,
			Phone:     payload.Phone,
			Status:    payload.Status,
			BrandName: payload.BrandName,
			Currency:  payload.Currency,
			Timezone:  payload.Timezone,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, merchant)
	}
}

func MerchantList(svc MerchantService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.List(ctx, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func MerchantGet(svc MerchantService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := validators.ParseUUIDParam(r, "merchantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		merchant, err := svc.Get(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, merchant)
	}
}

func MerchantUpdateSettings(svc MerchantService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := validators.ParseUUIDParam(r, "merchantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload merchantSettingsRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		merchant, err := svc.UpdateSettings(ctx, id, merchants.UpdateSettingsInput{
			BrandName: payload.BrandName,
			Currency:  payload.Currency,
			Timezone:  payload.Timezone,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, merchant)
	}
}

func MerchantUpdateStatus(svc MerchantService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := validators.ParseUUIDParam(r, "merchantId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload merchantStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		merchant, err := svc.UpdateStatus(ctx, id, payload.Status)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, merchant)
	}
}
