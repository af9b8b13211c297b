package instance

import (
	"os"

	"github.com/angelmondragon/storefront-provisioner/pkg/env"
)

// ID identifies the running process in logs. It prefers an explicit
// PROVISIONER_INSTANCE_ID, then the platform dyno name, then the hostname.
func ID() string {
	if id := env.First("PROVISIONER_INSTANCE_ID", "DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
