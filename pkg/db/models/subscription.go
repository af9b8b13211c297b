package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
)

// Subscription binds a merchant to a plan. There is one current row per
// merchant; renewals shift its period in place.
type Subscription struct {
	ID                 uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	MerchantID         uuid.UUID                `gorm:"column:merchant_id;type:uuid;not null;uniqueIndex:uq_subscriptions_merchant"`
	PlanID             string                   `gorm:"column:plan_id;not null;index"`
	Status             enums.SubscriptionStatus `gorm:"column:status;not null"`
	BillingCycle       enums.BillingCycle       `gorm:"column:billing_cycle;not null"`
	BillingCycleMonths int                      `gorm:"column:billing_cycle_months;not null"`
	Amount             decimal.Decimal          `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency           enums.Currency           `gorm:"column:currency;not null"`
	BillingAnchor      time.Time                `gorm:"column:billing_anchor;not null"`
	RenewalCount       int                      `gorm:"column:renewal_count;not null"`
	CurrentPeriodStart time.Time                `gorm:"column:current_period_start;not null"`
	CurrentPeriodEnd   time.Time                `gorm:"column:current_period_end;not null;index"`
	CancelAtPeriodEnd  bool                     `gorm:"column:cancel_at_period_end;not null"`
	AutoRenew          bool                     `gorm:"column:auto_renew;not null"`
	CancelledAt        *time.Time               `gorm:"column:cancelled_at"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Subscription) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
