package merchants

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-provisioner/pkg/db/models"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
)

// SettingsDTO mirrors the embedded merchant settings.
type SettingsDTO struct {
	BrandName string         `json:"brandName"`
	Currency  enums.Currency `json:"currency"`
	Timezone  string         `json:"timezone"`
}

// MerchantDTO is the wire shape of a merchant.
type MerchantDTO struct {
	ID        uuid.UUID            `json:"id"`
	Name      string               `json:"name"`
	Email     string               `json:"email"`
	Phone     *string              `json:"phone,omitempty"`
	Status    enums.MerchantStatus `json:"status"`
	Settings  SettingsDTO          `json:"settings"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// ListResult is one page of merchants.
type ListResult struct {
	Merchants  []MerchantDTO `json:"merchants"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

// CreateMerchantInput holds signup data. Settings fall back to the merchant
// name, USD and UTC.
type CreateMerchantInput struct {
	Name      string `validate:"required,max=200"`
	Email     string `validate:"required,email"`
	Phone     *string
	Status    enums.MerchantStatus
	BrandName string
	Currency  enums.Currency
	Timezone  string
}

// UpdateSettingsInput is a partial settings edit.
type UpdateSettingsInput struct {
	BrandName *string
	Currency  *enums.Currency
	Timezone  *string
}

// FromModel maps the persisted merchant into a DTO.
func FromModel(m *models.Merchant) *MerchantDTO {
	if m == nil {
		return nil
	}
	settings := m.Settings.Data()
	return &MerchantDTO{
		ID:     m.ID,
		Name:   m.Name,
		Email:  m.Email,
		Phone:  m.Phone,
		Status: m.Status,
		Settings: SettingsDTO{
			BrandName: settings.BrandName,
			Currency:  settings.Currency,
			Timezone:  settings.Timezone,
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
