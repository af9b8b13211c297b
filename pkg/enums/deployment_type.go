package enums

import "fmt"

// DeploymentType describes how a storefront is addressed.
type DeploymentType string

const (
	DeploymentTypeSubdomain    DeploymentType = "subdomain"
	DeploymentTypeCustomDomain DeploymentType = "custom_domain"
)

var validDeploymentTypes = []DeploymentType{
	DeploymentTypeSubdomain,
	DeploymentTypeCustomDomain,
}

// String implements fmt.Stringer.
func (d DeploymentType) String() string {
	return string(d)
}

// IsValid reports whether the value is known.
func (d DeploymentType) IsValid() bool {
	for _, candidate := range validDeploymentTypes {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDeploymentType converts raw input into a DeploymentType.
func ParseDeploymentType(value string) (DeploymentType, error) {
	for _, candidate := range validDeploymentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid deployment type %q", value)
}
