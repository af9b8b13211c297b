package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
)

// Deployment records where a merchant's storefront is served and the last
// state the provider reported. Revision grows by one on every write after
// the insert.
type Deployment struct {
	ID                   uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	MerchantID           uuid.UUID              `gorm:"column:merchant_id;type:uuid;not null;uniqueIndex:uq_deployments_merchant"`
	DeploymentType       enums.DeploymentType   `gorm:"column:deployment_type;not null"`
	Subdomain            string                 `gorm:"column:subdomain;not null"`
	CustomDomain         *string                `gorm:"column:custom_domain"`
	DeploymentStatus     enums.DeploymentStatus `gorm:"column:deployment_status;not null"`
	DeploymentURL        string                 `gorm:"column:deployment_url;not null"`
	DeploymentProvider   string                 `gorm:"column:deployment_provider;not null"`
	ProviderDeploymentID *string                `gorm:"column:provider_deployment_id"`
	EnvironmentVariables datatypes.JSONMap      `gorm:"column:environment_variables;type:jsonb"`
	LastError            *string                `gorm:"column:last_error"`
	LastDeployedAt       *time.Time             `gorm:"column:last_deployed_at"`
	Revision             int                    `gorm:"column:revision;not null;default:0"`
	CreatedAt            time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (d *Deployment) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
