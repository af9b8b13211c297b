package tenantdb

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-provisioner/pkg/db"
	"github.com/angelmondragon/storefront-provisioner/pkg/db/models"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
)

// TenantDatabaseDTO is the wire shape of a tenant database config. It never
// carries credentials.
type TenantDatabaseDTO struct {
	ID            uuid.UUID                  `json:"id"`
	MerchantID    uuid.UUID                  `json:"merchantId"`
	DatabaseName  string                     `json:"databaseName"`
	Engine        enums.DatastoreEngine      `json:"engine"`
	Status        enums.TenantDatabaseStatus `json:"status"`
	LastError     *string                    `json:"lastError,omitempty"`
	Collections   []string                   `json:"collections"`
	ProvisionedAt *time.Time                 `json:"provisionedAt,omitempty"`
	CreatedAt     time.Time                  `json:"createdAt"`
	UpdatedAt     time.Time                  `json:"updatedAt"`
}

// Descriptor is what a deployment needs to reach the tenant namespace.
type Descriptor struct {
	DatabaseName     string                `json:"databaseName"`
	Engine           enums.DatastoreEngine `json:"engine"`
	ConnectionString string                `json:"-"`
}

// Redacted returns the connection string with its password masked.
func (d Descriptor) Redacted() string {
	return db.RedactDSN(d.ConnectionString)
}

// FromModel maps the persisted config into a DTO.
func FromModel(m *models.TenantDatabase) *TenantDatabaseDTO {
	if m == nil {
		return nil
	}
	collections := []string(m.Collections)
	if collections == nil {
		collections = []string{}
	}
	return &TenantDatabaseDTO{
		ID:            m.ID,
		MerchantID:    m.MerchantID,
		DatabaseName:  m.DatabaseName,
		Engine:        m.Engine,
		Status:        m.Status,
		LastError:     m.LastError,
		Collections:   collections,
		ProvisionedAt: m.ProvisionedAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
