package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
)

// MerchantSettings is embedded as JSON on the merchant row.
type MerchantSettings struct {
	BrandName string         `json:"brandName"`
	Currency  enums.Currency `json:"currency"`
	Timezone  string         `json:"timezone"`
}

// Merchant is a store owner's identity record.
type Merchant struct {
	ID        uuid.UUID                            `gorm:"column:id;type:uuid;primaryKey"`
	Name      string                               `gorm:"column:name;not null"`
	Email     string                               `gorm:"column:email;not null"`
	Phone     *string                              `gorm:"column:phone"`
	Status    enums.MerchantStatus                 `gorm:"column:status;not null"`
	Settings  datatypes.JSONType[MerchantSettings] `gorm:"column:settings;type:jsonb;not null"`
	CreatedAt time.Time                            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time                            `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *Merchant) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
