package merchants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-provisioner/pkg/db/models"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-provisioner/pkg/errors"
	"github.com/angelmondragon/storefront-provisioner/pkg/pagination"
)

const defaultTimezone = "UTC"

// allowedTransitions lists the statuses each status may move to. Closed is terminal.
var allowedTransitions = map[enums.MerchantStatus][]enums.MerchantStatus{
	enums.MerchantStatusTrial:     {enums.MerchantStatusActive, enums.MerchantStatusSuspended, enums.MerchantStatusClosed},
	enums.MerchantStatusActive:    {enums.MerchantStatusSuspended, enums.MerchantStatusClosed},
	enums.MerchantStatusSuspended: {enums.MerchantStatusActive, enums.MerchantStatusClosed},
}

// Service exposes the merchant registry.
type Service interface {
	Create(ctx context.Context, input CreateMerchantInput) (*MerchantDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*MerchantDTO, error)
	UpdateSettings(ctx context.Context, id uuid.UUID, input UpdateSettingsInput) (*MerchantDTO, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.MerchantStatus) (*MerchantDTO, error)
	List(ctx context.Context, params pagination.Params) (*ListResult, error)
}

type service struct {
	repo     Repository
	validate *validator.Validate
	now      func() time.Time
}

// Option customises the merchant service.
type Option func(*service)

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds a merchant service.
func NewService(repo Repository, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("merchant repository required")
	}
	s := &service{
		repo:     repo,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *service) Create(ctx context.Context, input CreateMerchantInput) (*MerchantDTO, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := s.validate.Struct(input); err != nil {
		return nil, validationError(err)
	}

	status := input.Status
	if status == "" {
		status = enums.MerchantStatusTrial
	}
	if !status.IsValid() {
		return nil, fieldError("status", fmt.Sprintf("unknown status %q", status))
	}

	brand := strings.TrimSpace(input.BrandName)
	if brand == "" {
		brand = input.Name
	}
	currency := input.Currency
	if currency == "" {
		currency = enums.CurrencyUSD
	}
	tz := strings.TrimSpace(input.Timezone)
	if tz == "" {
		tz = defaultTimezone
	}
	settings, err := buildSettings(brand, currency, tz)
	if err != nil {
		return nil, err
	}

	now := s.now()
	merchant := &models.Merchant{
		Name:      input.Name,
		Email:     input.Email,
		Phone:     trimmedPtr(input.Phone),
		Status:    status,
		Settings:  datatypes.NewJSONType(settings),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, merchant); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create merchant")
	}
	return FromModel(merchant), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*MerchantDTO, error) {
	merchant, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(merchant), nil
}

func (s *service) UpdateSettings(ctx context.Context, id uuid.UUID, input UpdateSettingsInput) (*MerchantDTO, error) {
	merchant, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	current := merchant.Settings.Data()
	brand, currency, tz := current.BrandName, current.Currency, current.Timezone
	if input.BrandName != nil {
		brand = strings.TrimSpace(*input.BrandName)
		if brand == "" {
			return nil, fieldError("brandName", "must not be empty")
		}
	}
	if input.Currency != nil {
		currency = *input.Currency
	}
	if input.Timezone != nil {
		tz = strings.TrimSpace(*input.Timezone)
	}
	settings, err := buildSettings(brand, currency, tz)
	if err != nil {
		return nil, err
	}
	merchant.Settings = datatypes.NewJSONType(settings)
	merchant.UpdatedAt = s.now()
	if err := s.repo.UpdateSettings(ctx, merchant); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound(id)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update merchant settings")
	}
	return FromModel(merchant), nil
}

func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.MerchantStatus) (*MerchantDTO, error) {
	if !status.IsValid() {
		return nil, fieldError("status", fmt.Sprintf("unknown status %q", status))
	}
	merchant, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if merchant.Status == status {
		return FromModel(merchant), nil
	}
	if !canTransition(merchant.Status, status) {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "merchant cannot move from %s to %s", merchant.Status, status).
			WithDetails(map[string]any{"from": merchant.Status, "to": status})
	}
	from := merchant.Status
	merchant.Status = status
	merchant.UpdatedAt = s.now()
	ok, err := s.repo.UpdateStatus(ctx, merchant, from)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update merchant status")
	}
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "merchant %s changed concurrently, retry", id).
			WithDetails(map[string]any{"merchantId": id.String(), "from": from, "to": status})
	}
	return FromModel(merchant), nil
}

func (s *service) List(ctx context.Context, params pagination.Params) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, fieldError("cursor", "is invalid")
	}
	rows, err := s.repo.List(ctx, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list merchants")
	}
	page, next := pagination.Trim(rows, params.Limit, func(m models.Merchant) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})
	out := &ListResult{Merchants: make([]MerchantDTO, 0, len(page)), NextCursor: next}
	for i := range page {
		out.Merchants = append(out.Merchants, *FromModel(&page[i]))
	}
	return out, nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Merchant, error) {
	if id == uuid.Nil {
		return nil, fieldError("merchantId", "is required")
	}
	merchant, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound(id)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load merchant")
	}
	return merchant, nil
}

// NotFound is the error returned for a missing merchant.
func NotFound(id uuid.UUID) error {
	return pkgerrors.Newf(pkgerrors.CodeNotFound, "merchant %s not found", id).
		WithDetails(map[string]any{"resource": "merchant", "id": id.String()})
}

func buildSettings(brand string, currency enums.Currency, tz string) (models.MerchantSettings, error) {
	parsed, err := enums.ParseCurrency(string(currency))
	if err != nil {
		return models.MerchantSettings{}, fieldError("currency", fmt.Sprintf("unsupported currency %q", currency))
	}
	if tz == "" {
		return models.MerchantSettings{}, fieldError("timezone", "must not be empty")
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return models.MerchantSettings{}, fieldError("timezone", fmt.Sprintf("unknown timezone %q", tz))
	}
	return models.MerchantSettings{BrandName: brand, Currency: parsed, Timezone: tz}, nil
}

func canTransition(from, to enums.MerchantStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.ToLower(fe.Field())
		reason := "is invalid"
		switch fe.Tag() {
		case "required":
			reason = "is required"
		case "email":
			reason = "must be a valid email"
		case "max":
			reason = fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fieldError(field, reason)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
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
