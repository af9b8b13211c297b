package domains

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-provisioner/pkg/db/models"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
)

// DomainConfigurationDTO is the wire shape of a custom domain.
type DomainConfigurationDTO struct {
	ID                  uuid.UUID               `json:"id"`
	MerchantID          uuid.UUID               `json:"merchantId"`
	Domain              string                  `json:"domain"`
	Apex                bool                    `json:"apex"`
	Verified            bool                    `json:"verified"`
	Status              enums.DomainStatus      `json:"status"`
	ConfiguredCorrectly *bool                   `json:"configuredCorrectly"`
	DNSRecords          []models.DNSRecord      `json:"dnsRecords"`
	RecordChecks        []models.DNSRecordCheck `json:"recordChecks,omitempty"`
	LastCheckedAt       *time.Time              `json:"lastCheckedAt,omitempty"`
	VerifiedAt          *time.Time              `json:"verifiedAt,omitempty"`
	CreatedAt           time.Time               `json:"createdAt"`
	UpdatedAt           time.Time               `json:"updatedAt"`
}

// FromModel maps the persisted configuration into a DTO.
func FromModel(m *models.DomainConfiguration) *DomainConfigurationDTO {
	if m == nil {
		return nil
	}
	records := []models.DNSRecord(m.DNSRecords)
	if records == nil {
		records = []models.DNSRecord{}
	}
	return &DomainConfigurationDTO{
		ID:                  m.ID,
		MerchantID:          m.MerchantID,
		Domain:              m.Domain,
		Apex:                IsApex(m.Domain),
		Verified:            m.Verified,
		Status:              m.Status,
		ConfiguredCorrectly: m.ConfiguredCorrectly,
		DNSRecords:          records,
		RecordChecks:        []models.DNSRecordCheck(m.RecordChecks),
		LastCheckedAt:       m.LastCheckedAt,
		VerifiedAt:          m.VerifiedAt,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}
