package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
)

// DNSRecord is a record the merchant must publish at their registrar.
type DNSRecord struct {
	Type  enums.DNSRecordType `json:"type"`
	Name  string              `json:"name"`
	Value string              `json:"value"`
}

// DNSRecordCheck captures what the resolver returned for one required record.
type DNSRecordCheck struct {
	Type     enums.DNSRecordType `json:"type"`
	Name     string              `json:"name"`
	Expected string              `json:"expected"`
	Observed []string            `json:"observed,omitempty"`
	Status   enums.DomainStatus  `json:"status"`
	Error    string              `json:"error,omitempty"`
}

// DomainConfiguration is a merchant's custom domain request and the outcome
// of its most recent DNS check.
type DomainConfiguration struct {
	ID                  uuid.UUID                           `gorm:"column:id;type:uuid;primaryKey"`
	MerchantID          uuid.UUID                           `gorm:"column:merchant_id;type:uuid;not null;uniqueIndex:uq_domain_configurations_merchant"`
	Domain              string                              `gorm:"column:domain;not null;uniqueIndex:uq_domain_configurations_domain"`
	Verified            bool                                `gorm:"column:verified;not null"`
	Status              enums.DomainStatus                  `gorm:"column:status;not null;index"`
	ConfiguredCorrectly *bool                               `gorm:"column:configured_correctly"`
	DNSRecords          datatypes.JSONSlice[DNSRecord]      `gorm:"column:dns_records;type:jsonb;not null"`
	RecordChecks        datatypes.JSONSlice[DNSRecordCheck] `gorm:"column:record_checks;type:jsonb"`
	LastCheckedAt       *time.Time                          `gorm:"column:last_checked_at"`
	VerifiedAt          *time.Time                          `gorm:"column:verified_at"`
	CreatedAt           time.Time                           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time                           `gorm:"column:updated_at;autoUpdateTime"`
}

func (d *DomainConfiguration) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
