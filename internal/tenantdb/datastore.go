package tenantdb

import (
	"context"
	"errors"

	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
)

// ErrNamespaceExists is returned by CreateNamespace when the namespace was
// created by someone else between the existence check and the create.
var ErrNamespaceExists = errors.New("namespace already exists")

// Datastore is the engine-specific half of tenant provisioning. Every method
// must be safe to call again after a partial failure.
type Datastore interface {
	Engine() enums.DatastoreEngine
	NamespaceExists(ctx context.Context, name string) (bool, error)
	// NamespaceOwner returns the merchant id recorded in the namespace, or ""
	// when the namespace carries no provisioner marker.
	NamespaceOwner(ctx context.Context, name string) (string, error)
	CreateNamespace(ctx context.Context, name, merchantID string) error
	// MarkNamespace writes the owner marker into an existing namespace,
	// replacing any marker already there.
	MarkNamespace(ctx context.Context, name, merchantID string) error
	SeedCollections(ctx context.Context, name string) ([]string, error)
	ConnectionString(name string) (string, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Collections seeded into every tenant namespace, in creation order.
var Collections = []string{"categories", "products", "customers", "orders"}
