package enums

import "fmt"

// MerchantStatus is the lifecycle state of a merchant account.
type MerchantStatus string

const (
	MerchantStatusTrial     MerchantStatus = "trial"
	MerchantStatusActive    MerchantStatus = "active"
	MerchantStatusSuspended MerchantStatus = "suspended"
	MerchantStatusClosed    MerchantStatus = "closed"
)

var validMerchantStatuses = []MerchantStatus{
	MerchantStatusTrial,
	MerchantStatusActive,
	MerchantStatusSuspended,
	MerchantStatusClosed,
}

// String implements fmt.Stringer.
func (m MerchantStatus) String() string {
	return string(m)
}

// IsValid reports whether the value is known.
func (m MerchantStatus) IsValid() bool {
	for _, candidate := range validMerchantStatuses {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMerchantStatus converts raw input into a MerchantStatus.
func ParseMerchantStatus(value string) (MerchantStatus, error) {
	for _, candidate := range validMerchantStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid merchant status %q", value)
}
