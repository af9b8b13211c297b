package subscriptions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-provisioner/pkg/db/models"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
)

// SubscriptionDTO is the wire shape of a subscription.
type SubscriptionDTO struct {
	ID                 uuid.UUID                `json:"id"`
	MerchantID         uuid.UUID                `json:"merchantId"`
	PlanID             string                   `json:"planId"`
	Status             enums.SubscriptionStatus `json:"status"`
	BillingCycle       enums.BillingCycle       `json:"billingCycle"`
	BillingCycleMonths int                      `json:"billingCycleMonths"`
	Amount             decimal.Decimal          `json:"amount"`
	Currency           enums.Currency           `json:"currency"`
	CurrentPeriodStart time.Time                `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time                `json:"currentPeriodEnd"`
	CancelAtPeriodEnd  bool                     `json:"cancelAtPeriodEnd"`
	AutoRenew          bool                     `json:"autoRenew"`
	RenewalCount       int                      `json:"renewalCount"`
	CancelledAt        *time.Time               `json:"cancelledAt,omitempty"`
	CreatedAt          time.Time                `json:"createdAt"`
	UpdatedAt          time.Time                `json:"updatedAt"`
}

// FromModel maps the persisted subscription into a DTO.
func FromModel(m *models.Subscription) *SubscriptionDTO {
	if m == nil {
		return nil
	}
	return &SubscriptionDTO{
		ID:                 m.ID,
		MerchantID:         m.MerchantID,
		PlanID:             m.PlanID,
		Status:             m.Status,
		BillingCycle:       m.BillingCycle,
		BillingCycleMonths: m.BillingCycleMonths,
		Amount:             m.Amount,
		Currency:           m.Currency,
		CurrentPeriodStart: m.CurrentPeriodStart,
		CurrentPeriodEnd:   m.CurrentPeriodEnd,
		CancelAtPeriodEnd:  m.CancelAtPeriodEnd,
		AutoRenew:          m.AutoRenew,
		RenewalCount:       m.RenewalCount,
		CancelledAt:        m.CancelledAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}
