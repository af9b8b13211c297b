package enums

import "fmt"

// DNSRecordType is a DNS record type merchants are asked to publish.
type DNSRecordType string

const (
	DNSRecordTypeA     DNSRecordType = "A"
	DNSRecordTypeCNAME DNSRecordType = "CNAME"
	DNSRecordTypeTXT   DNSRecordType = "TXT"
)

var validDNSRecordTypes = []DNSRecordType{
	DNSRecordTypeA,
	DNSRecordTypeCNAME,
	DNSRecordTypeTXT,
}

// String implements fmt.Stringer.
func (d DNSRecordType) String() string {
	return string(d)
}

// IsValid reports whether the value is known.
func (d DNSRecordType) IsValid() bool {
	for _, candidate := range validDNSRecordTypes {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDNSRecordType converts raw input into a DNSRecordType.
func ParseDNSRecordType(value string) (DNSRecordType, error) {
	for _, candidate := range validDNSRecordTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dns record type %q", value)
}
