package plans

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-provisioner/pkg/db/models"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
)

// PlanDTO is the wire shape of a plan.
type PlanDTO struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Description        *string            `json:"description,omitempty"`
	BasePrice          decimal.Decimal    `json:"basePrice"`
	Price              decimal.Decimal    `json:"price"`
	Currency           enums.Currency     `json:"currency"`
	BillingCycle       enums.BillingCycle `json:"billingCycle"`
	BillingCycleMonths int                `json:"billingCycleMonths"`
	Features           FeatureMap         `json:"features"`
	IsActive           bool               `json:"isActive"`
	IsPopular          bool               `json:"isPopular"`
	SortOrder          int                `json:"sortOrder"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// CreatePlanInput holds operator input for a new plan. Price defaults to
// BasePrice times the cycle length when omitted.
type CreatePlanInput struct {
	ID                 string
	Name               string
	Description        *string
	BasePrice          decimal.Decimal
	Price              *decimal.Decimal
	Currency           enums.Currency
	BillingCycleMonths int
	Features           FeatureMap
	IsActive           *bool
	IsPopular          bool
	SortOrder          int
}

// UpdatePlanInput is a partial edit; nil fields are left untouched.
type UpdatePlanInput struct {
	Name               *string
	Description        *string
	BasePrice          *decimal.Decimal
	Price              *decimal.Decimal
	Currency           *enums.Currency
	BillingCycleMonths *int
	Features           *FeatureMap
	IsActive           *bool
	IsPopular          *bool
	SortOrder          *int
}

// FromModel maps the persisted plan into a DTO.
func FromModel(m *models.Plan) (*PlanDTO, error) {
	if m == nil {
		return nil, nil
	}
	features, err := decodeFeatures(m.Features)
	if err != nil {
		return nil, fmt.Errorf("decode features of plan %s: %w", m.ID, err)
	}
	return &PlanDTO{
		ID:                 m.ID,
		Name:               m.Name,
		Description:        m.Description,
		BasePrice:          m.BasePrice,
		Price:              m.Price,
		Currency:           m.Currency,
		BillingCycle:       m.BillingCycle,
		BillingCycleMonths: m.BillingCycleMonths,
		Features:           features,
		IsActive:           m.IsActive,
		IsPopular:          m.IsPopular,
		SortOrder:          m.SortOrder,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}, nil
}

func encodeFeatures(features FeatureMap) ([]byte, error) {
	if features == nil {
		features = FeatureMap{}
	}
	return json.Marshal(features)
}

func decodeFeatures(raw []byte) (FeatureMap, error) {
	features := FeatureMap{}
	if len(raw) == 0 {
		return features, nil
	}
	if err := json.Unmarshal(raw, &features); err != nil {
		return nil, err
	}
	return features, nil
}
