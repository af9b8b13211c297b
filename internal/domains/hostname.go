package domains

import (
	"fmt"
	"strings"

	"golang.org/x/net/publicsuffix"
)

const (
	maxHostnameLen = 253
	maxLabelLen    = 63
)

// NormalizeDomain lower-cases raw, strips a trailing dot and checks it against
// hostname grammar. The returned reason names the first rule that failed.
func NormalizeDomain(raw string) (string, error) {
	name := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), ".")
	if name == "" {
		return "", fmt.Errorf("domain is required")
	}
	if len(name) > maxHostnameLen {
		return "", fmt.Errorf("domain exceeds %d characters", maxHostnameLen)
	}
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return "", fmt.Errorf("domain must contain at least one dot")
	}
	for _, label := range labels {
		if err := checkLabel(label); err != nil {
			return "", err
		}
	}
	if !validTLD(labels[len(labels)-1]) {
		return "", fmt.Errorf("top-level domain %q is not valid", labels[len(labels)-1])
	}
	// a bare public suffix such as co.uk can never be claimed by one merchant
	if suffix, _ := publicsuffix.PublicSuffix(name); suffix == name {
		return "", fmt.Errorf("%q is a public suffix", name)
	}
	return name, nil
}

// IsApex reports whether domain is a registrable domain rather than a
// subdomain of one.
func IsApex(domain string) bool {
	apex, err := publicsuffix.EffectiveTLDPlusOne(domain)
	return err == nil && apex == domain
}

func checkLabel(label string) error {
	if label == "" {
		return fmt.Errorf("domain contains an empty label")
	}
	if len(label) > maxLabelLen {
		return fmt.Errorf("label %q exceeds %d characters", label, maxLabelLen)
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return fmt.Errorf("label %q must not start or end with a hyphen", label)
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return fmt.Errorf("label %q contains invalid character %q", label, c)
		}
	}
	return nil
}

func validTLD(tld string) bool {
	if strings.HasPrefix(tld, "xn--") {
		return len(tld) > 4
	}
	if len(tld) < 2 {
		return false
	}
	for i := 0; i < len(tld); i++ {
		if tld[i] < 'a' || tld[i] > 'z' {
			return false
		}
	}
	return true
}
