package deployments

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-provisioner/pkg/db/models"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
)

// DeploymentDTO is the wire shape of a deployment.
type DeploymentDTO struct {
	ID                   uuid.UUID              `json:"id"`
	MerchantID           uuid.UUID              `json:"merchantId"`
	DeploymentType       enums.DeploymentType   `json:"deploymentType"`
	Subdomain            string                 `json:"subdomain,omitempty"`
	CustomDomain         *string                `json:"customDomain,omitempty"`
	DeploymentStatus     enums.DeploymentStatus `json:"deploymentStatus"`
	DeploymentURL        string                 `json:"deploymentUrl"`
	DeploymentProvider   string                 `json:"deploymentProvider"`
	DeploymentID         *string                `json:"deploymentId,omitempty"`
	EnvironmentVariables map[string]string      `json:"environmentVariables"`
	LastError            *string                `json:"lastError,omitempty"`
	LastDeployedAt       *time.Time             `json:"lastDeployedAt,omitempty"`
	CreatedAt            time.Time              `json:"createdAt"`
	UpdatedAt            time.Time              `json:"updatedAt"`
}

// FromModel maps the persisted deployment into a DTO.
func FromModel(m *models.Deployment) *DeploymentDTO {
	if m == nil {
		return nil
	}
	env := make(map[string]string, len(m.EnvironmentVariables))
	for k, v := range m.EnvironmentVariables {
		if s, ok := v.(string); ok {
			env[k] = s
		}
	}
	return &DeploymentDTO{
		ID:                   m.ID,
		MerchantID:           m.MerchantID,
		DeploymentType:       m.DeploymentType,
		Subdomain:            m.Subdomain,
		CustomDomain:         m.CustomDomain,
		DeploymentStatus:     m.DeploymentStatus,
		DeploymentURL:        m.DeploymentURL,
		DeploymentProvider:   m.DeploymentProvider,
		DeploymentID:         m.ProviderDeploymentID,
		EnvironmentVariables: env,
		LastError:            m.LastError,
		LastDeployedAt:       m.LastDeployedAt,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}
