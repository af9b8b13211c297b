package enums

import "fmt"

// DomainStatus is the verification state of a custom domain.
type DomainStatus string

const (
	DomainStatusRequested     DomainStatus = "requested"
	DomainStatusPending       DomainStatus = "pending"
	DomainStatusMisconfigured DomainStatus = "misconfigured"
	DomainStatusVerified      DomainStatus = "verified"
)

var validDomainStatuses = []DomainStatus{
	DomainStatusRequested,
	DomainStatusPending,
	DomainStatusMisconfigured,
	DomainStatusVerified,
}

// String implements fmt.Stringer.
func (d DomainStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is known.
func (d DomainStatus) IsValid() bool {
	for _, candidate := range validDomainStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDomainStatus converts raw input into a DomainStatus.
func ParseDomainStatus(value string) (DomainStatus, error) {
	for _, candidate := range validDomainStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid domain status %q", value)
}
