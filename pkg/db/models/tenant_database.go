package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
)

// TenantDatabase records the isolated namespace provisioned for a merchant.
// The connection string is derived on demand and never stored.
// NamespaceClaimedAt is set just before the provisioner issues the create for
// a namespace it observed as absent.
type TenantDatabase struct {
	ID                 uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	MerchantID         uuid.UUID                   `gorm:"column:merchant_id;type:uuid;not null;uniqueIndex:uq_tenant_databases_merchant"`
	DatabaseName       string                      `gorm:"column:database_name;not null;uniqueIndex:uq_tenant_databases_name"`
	Engine             enums.DatastoreEngine       `gorm:"column:engine;not null"`
	Status             enums.TenantDatabaseStatus  `gorm:"column:status;not null;index"`
	LastError          *string                     `gorm:"column:last_error"`
	Collections        datatypes.JSONSlice[string] `gorm:"column:collections;type:jsonb"`
	ProvisionedAt      *time.Time                  `gorm:"column:provisioned_at"`
	NamespaceClaimedAt *time.Time                  `gorm:"column:namespace_claimed_at"`
	CreatedAt          time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *TenantDatabase) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
