package tenantdb

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// maxNamespaceLen is the PostgreSQL identifier limit; MongoDB allows more.
const maxNamespaceLen = 63

var (
	prefixRe    = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	namespaceRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// NamespaceFor derives the tenant namespace of a merchant: the prefix followed
// by the merchant id in hex without dashes. The result is stable across calls
// and unique per merchant.
func NamespaceFor(prefix string, merchantID uuid.UUID) (string, error) {
	if merchantID == uuid.Nil {
		return "", fmt.Errorf("merchant id is required")
	}
	prefix = strings.TrimSpace(prefix)
	if !prefixRe.MatchString(prefix) {
		return "", fmt.Errorf("namespace prefix %q must start with a letter and contain only a-z, 0-9 or '_'", prefix)
	}
	name := prefix + strings.ReplaceAll(merchantID.String(), "-", "")
	if err := ValidateNamespace(name); err != nil {
		return "", err
	}
	return name, nil
}

// ValidateNamespace rejects names the datastores would refuse or need quoting
// tricks for.
func ValidateNamespace(name string) error {
	if len(name) > maxNamespaceLen {
		return fmt.Errorf("namespace %q exceeds %d bytes", name, maxNamespaceLen)
	}
	if !namespaceRe.MatchString(name) {
		return fmt.Errorf("namespace %q must start with a letter and contain only a-z, 0-9 or '_'", name)
	}
	return nil
}

// ownerMarker is the value written into a namespace to prove the platform
// created it for a merchant.
func ownerMarker(merchantID string) string {
	return markerPrefix + merchantID
}

const markerPrefix = "storefront-provisioner:merchant="

// parseOwnerMarker returns the merchant id carried by marker, or "" when the
// marker was not written by the provisioner.
func parseOwnerMarker(marker string) string {
	marker = strings.TrimSpace(marker)
	if !strings.HasPrefix(marker, markerPrefix) {
		return ""
	}
	return strings.TrimPrefix(marker, markerPrefix)
}
