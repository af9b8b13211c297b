package enums

import "fmt"

// TenantDatabaseStatus tracks provisioning of a merchant's isolated datastore namespace.
type TenantDatabaseStatus string

const (
	TenantDatabaseStatusProvisioning TenantDatabaseStatus = "provisioning"
	TenantDatabaseStatusReady        TenantDatabaseStatus = "ready"
	TenantDatabaseStatusError        TenantDatabaseStatus = "error"
)

var validTenantDatabaseStatuses = []TenantDatabaseStatus{
	TenantDatabaseStatusProvisioning,
	TenantDatabaseStatusReady,
	TenantDatabaseStatusError,
}

// String implements fmt.Stringer.
func (t TenantDatabaseStatus) String() string {
	return string(t)
}

// IsValid reports whether the value is known.
func (t TenantDatabaseStatus) IsValid() bool {
	for _, candidate := range validTenantDatabaseStatuses {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTenantDatabaseStatus converts raw input into a TenantDatabaseStatus.
func ParseTenantDatabaseStatus(value string) (TenantDatabaseStatus, error) {
	for _, candidate := range validTenantDatabaseStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid tenant database status %q", value)
}
