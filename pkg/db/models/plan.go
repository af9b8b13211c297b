package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
)

// Plan is an operator-defined subscription offering. Prices are edited in
// place; subscriptions keep their own snapshot of the amount.
type Plan struct {
	ID                 string             `gorm:"column:id;primaryKey"`
	Name               string             `gorm:"column:name;not null"`
	Description        *string            `gorm:"column:description"`
	BasePrice          decimal.Decimal    `gorm:"column:base_price;type:numeric(12,2);not null"`
	Price              decimal.Decimal    `gorm:"column:price;type:numeric(12,2);not null"`
	Currency           enums.Currency     `gorm:"column:currency;not null"`
	BillingCycle       enums.BillingCycle `gorm:"column:billing_cycle;not null"`
	BillingCycleMonths int                `gorm:"column:billing_cycle_months;not null"`
	Features           datatypes.JSON     `gorm:"column:features;type:jsonb;not null"`
	IsActive           bool               `gorm:"column:is_active;not null"`
	IsPopular          bool               `gorm:"column:is_popular;not null"`
	SortOrder          int                `gorm:"column:sort_order;not null"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
