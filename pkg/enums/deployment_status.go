package enums

import "fmt"

// DeploymentStatus is the last known state reported by the deployment provider.
type DeploymentStatus string

const (
	DeploymentStatusPending DeploymentStatus = "pending"
	DeploymentStatusActive  DeploymentStatus = "active"
	DeploymentStatusFailed  DeploymentStatus = "failed"
)

var validDeploymentStatuses = []DeploymentStatus{
	DeploymentStatusPending,
	DeploymentStatusActive,
	DeploymentStatusFailed,
}

// String implements fmt.Stringer.
func (d DeploymentStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is known.
func (d DeploymentStatus) IsValid() bool {
	for _, candidate := range validDeploymentStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDeploymentStatus converts raw input into a DeploymentStatus.
func ParseDeploymentStatus(value string) (DeploymentStatus, error) {
	for _, candidate := range validDeploymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid deployment status %q", value)
}
